package emit

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/signalsfoundry/constellation-router/model"
)

const (
	forwardingPrefix = "fstate_"
	bandwidthPrefix  = "gsl_if_bandwidth_"
	recordSuffix     = ".txt"
)

// ForwardingFile is the delta file name of a step.
func ForwardingFile(timeNs int64) string {
	return fmt.Sprintf("%s%d%s", forwardingPrefix, timeNs, recordSuffix)
}

// BandwidthFile is the bandwidth file name of a step.
func BandwidthFile(timeNs int64) string {
	return fmt.Sprintf("%s%d%s", bandwidthPrefix, timeNs, recordSuffix)
}

// FileSink writes each step as two record files in Dir. Files are written
// to a temporary name and renamed into place.
type FileSink struct {
	Dir string
}

// NewFileSink creates dir if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	return &FileSink{Dir: dir}, nil
}

func (s *FileSink) Write(ctx context.Context, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(s.Dir, BandwidthFile(step.TimeNs)), func(w io.Writer) error {
		return WriteBandwidth(w, step.Bandwidth)
	}); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(s.Dir, ForwardingFile(step.TimeNs)), func(w io.Writer) error {
		return WriteRecords(w, step.Records, step.Tagged)
	})
}

func writeAtomic(path string, fill func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// StepFiles lists the step ids that have a forwarding file in dir, in
// ascending order.
func StepFiles(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var steps []int64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, forwardingPrefix) || !strings.HasSuffix(name, recordSuffix) {
			continue
		}
		ns, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, forwardingPrefix), recordSuffix), 10, 64)
		if err != nil {
			continue
		}
		steps = append(steps, ns)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps, nil
}

// ReplayDir rebuilds the full forwarding table at step upTo by applying
// every delta file in dir up to and including that step. numSatellites is
// needed to key satellite records.
func ReplayDir(dir string, upTo int64, numSatellites int) (*model.Table, error) {
	steps, err := StepFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	table := model.NewTable()
	for _, ns := range steps {
		if ns > upTo {
			break
		}
		records, err := readRecordFile(filepath.Join(dir, ForwardingFile(ns)))
		if err != nil {
			return nil, err
		}
		table.Apply(numSatellites, records)
		table.Normalize()
	}
	return table, nil
}

// ReadBandwidthFile loads the bandwidth assignment of one step.
func ReadBandwidthFile(dir string, timeNs int64) ([]model.BandwidthRecord, error) {
	path := filepath.Join(dir, BandwidthFile(timeNs))
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ReadBandwidth(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}

func readRecordFile(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	recs, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}
