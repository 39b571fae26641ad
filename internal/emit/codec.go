package emit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/signalsfoundry/constellation-router/model"
)

// FormatRecord renders a forwarding record as
// src,dst,next_hop,local_if,remote_if and, when tagged, a trailing path_id.
func FormatRecord(r model.Record, tagged bool) string {
	if tagged {
		return fmt.Sprintf("%d,%d,%d,%d,%d,%d", r.Src, r.Dst, r.NextHop, r.LocalInterface, r.RemoteInterface, r.PathID)
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d", r.Src, r.Dst, r.NextHop, r.LocalInterface, r.RemoteInterface)
}

// ParseRecord reads a five or six column forwarding record. Five column
// records get path id 0.
func ParseRecord(line string) (model.Record, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 5 && len(fields) != 6 {
		return model.Record{}, fmt.Errorf("forwarding record %q: want 5 or 6 columns, got %d", line, len(fields))
	}
	vals := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return model.Record{}, fmt.Errorf("forwarding record %q column %d: %w", line, i, err)
		}
		vals[i] = v
	}
	r := model.Record{
		Src: vals[0],
		Dst: vals[1],
		ForwardingEntry: model.ForwardingEntry{
			NextHop:         vals[2],
			LocalInterface:  vals[3],
			RemoteInterface: vals[4],
		},
	}
	if len(vals) == 6 {
		r.PathID = vals[5]
	}
	return r, nil
}

// FormatBandwidth renders node,interface,bandwidth.
func FormatBandwidth(b model.BandwidthRecord) string {
	return fmt.Sprintf("%d,%d,%f", b.Node, b.Interface, b.Bandwidth)
}

// ParseBandwidth reads a bandwidth record.
func ParseBandwidth(line string) (model.BandwidthRecord, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 3 {
		return model.BandwidthRecord{}, fmt.Errorf("bandwidth record %q: want 3 columns, got %d", line, len(fields))
	}
	node, err := strconv.Atoi(fields[0])
	if err != nil {
		return model.BandwidthRecord{}, fmt.Errorf("bandwidth record %q node: %w", line, err)
	}
	iface, err := strconv.Atoi(fields[1])
	if err != nil {
		return model.BandwidthRecord{}, fmt.Errorf("bandwidth record %q interface: %w", line, err)
	}
	bw, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return model.BandwidthRecord{}, fmt.Errorf("bandwidth record %q bandwidth: %w", line, err)
	}
	return model.BandwidthRecord{InterfaceRef: model.InterfaceRef{Node: node, Interface: iface}, Bandwidth: bw}, nil
}

// WriteRecords writes one forwarding record per line.
func WriteRecords(w io.Writer, records []model.Record, tagged bool) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(FormatRecord(r, tagged) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteBandwidth writes one bandwidth record per line.
func WriteBandwidth(w io.Writer, records []model.BandwidthRecord) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		if _, err := bw.WriteString(FormatBandwidth(r) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadRecords parses every non-empty line of r as a forwarding record.
func ReadRecords(r io.Reader) ([]model.Record, error) {
	var out []model.Record
	err := scanLines(r, func(line string) error {
		rec, err := ParseRecord(line)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// ReadBandwidth parses every non-empty line of r as a bandwidth record.
func ReadBandwidth(r io.Reader) ([]model.BandwidthRecord, error) {
	var out []model.BandwidthRecord
	err := scanLines(r, func(line string) error {
		rec, err := ParseBandwidth(line)
		if err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

func scanLines(r io.Reader, fn func(string) error) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	return sc.Err()
}
