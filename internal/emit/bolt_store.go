package emit

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/signalsfoundry/constellation-router/model"
)

var (
	forwardingBucket = []byte("forwarding")
	bandwidthBucket  = []byte("bandwidth")
	metaBucket       = []byte("meta")

	metaStep          = []byte("step_ns")
	metaNumSatellites = []byte("num_satellites")
)

// ErrNoStep is returned by BoltStore readers before the first step lands.
var ErrNoStep = errors.New("no step applied yet")

// BoltStore is the live routing state of the latest applied step, kept the
// way a data-plane consumer would: by applying forwarding deltas in place.
type BoltStore struct {
	db            *bbolt.DB
	numSatellites int
}

// OpenBoltStore opens or creates the store at path. A store written for a
// different satellite count is rejected; numSatellites <= 0 adopts the
// stored count. The file is locked while open, so a second opener fails
// after one second.
func OpenBoltStore(path string, numSatellites int) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{forwardingBucket, bandwidthBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		meta := tx.Bucket(metaBucket)
		if v := meta.Get(metaNumSatellites); v != nil {
			got := int(binary.BigEndian.Uint32(v))
			if numSatellites <= 0 {
				numSatellites = got
				return nil
			}
			if got != numSatellites {
				return fmt.Errorf("store holds %d satellites, want %d", got, numSatellites)
			}
			return nil
		}
		if numSatellites <= 0 {
			return fmt.Errorf("new store needs a satellite count, got %d", numSatellites)
		}
		return meta.Put(metaNumSatellites, encodeInts(numSatellites))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, numSatellites: numSatellites}, nil
}

// Write applies the step's forwarding delta and replaces the bandwidth
// assignment in one transaction.
func (s *BoltStore) Write(ctx context.Context, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if step.Full {
			if err := resetBucket(tx, forwardingBucket); err != nil {
				return err
			}
		}
		fb := tx.Bucket(forwardingBucket)

		type pair struct{ node, dst int }
		touched := make(map[pair]struct{})
		for _, r := range step.Records {
			k := r.KeyFor(s.numSatellites)
			if err := fb.Put(encodeInts(k.Node, k.Dst, k.Path), encodeEntry(r.ForwardingEntry)); err != nil {
				return err
			}
			touched[pair{k.Node, k.Dst}] = struct{}{}
		}
		pairs := make([]pair, 0, len(touched))
		for p := range touched {
			pairs = append(pairs, p)
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].node != pairs[j].node {
				return pairs[i].node < pairs[j].node
			}
			return pairs[i].dst < pairs[j].dst
		})
		for _, p := range pairs {
			if err := normalizePair(fb, p.node, p.dst); err != nil {
				return err
			}
		}

		if err := resetBucket(tx, bandwidthBucket); err != nil {
			return err
		}
		bb := tx.Bucket(bandwidthBucket)
		for _, b := range step.Bandwidth {
			v := make([]byte, 8)
			binary.BigEndian.PutUint64(v, math.Float64bits(b.Bandwidth))
			if err := bb.Put(encodeInts(b.Node, b.Interface), v); err != nil {
				return err
			}
		}

		ts := make([]byte, 8)
		binary.BigEndian.PutUint64(ts, uint64(step.TimeNs))
		return tx.Bucket(metaBucket).Put(metaStep, ts)
	})
}

// normalizePair drops superseded sentinels of one (node, dst) group.
func normalizePair(b *bbolt.Bucket, node, dst int) error {
	prefix := encodeInts(node, dst)
	var keys [][]byte
	live := false
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
		if !decodeEntry(v).IsDrop() {
			live = true
		}
	}
	for _, k := range keys {
		if live {
			if decodeEntry(b.Get(k)).IsDrop() {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			continue
		}
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	if !live {
		return b.Put(encodeInts(node, dst, 0), encodeEntry(model.Drop))
	}
	return nil
}

// Step returns the id of the last applied step.
func (s *BoltStore) Step() (int64, error) {
	var ns int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(metaStep)
		if v == nil {
			return ErrNoStep
		}
		ns = int64(binary.BigEndian.Uint64(v))
		return nil
	})
	return ns, err
}

// Lookup returns the live entries of (node, dst) ordered by path.
func (s *BoltStore) Lookup(node, dst int) ([]model.Record, error) {
	var out []model.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		prefix := encodeInts(node, dst)
		c := tx.Bucket(forwardingBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			out = append(out, model.Record{Src: node, Dst: dst, ForwardingEntry: decodeEntry(v)})
		}
		return nil
	})
	return out, err
}

// Table loads the whole live table.
func (s *BoltStore) Table() (*model.Table, error) {
	table := model.NewTable()
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(forwardingBucket).ForEach(func(k, v []byte) error {
			ids := decodeInts(k)
			table.Set(model.Key{Node: ids[0], Dst: ids[1], Path: ids[2]}, decodeEntry(v))
			return nil
		})
	})
	return table, err
}

// Bandwidth returns the bandwidth records of node, or of every node when
// node is negative.
func (s *BoltStore) Bandwidth(node int) ([]model.BandwidthRecord, error) {
	var out []model.BandwidthRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bandwidthBucket).ForEach(func(k, v []byte) error {
			ids := decodeInts(k)
			if node >= 0 && ids[0] != node {
				return nil
			}
			out = append(out, model.BandwidthRecord{
				InterfaceRef: model.InterfaceRef{Node: ids[0], Interface: ids[1]},
				Bandwidth:    math.Float64frombits(binary.BigEndian.Uint64(v)),
			})
			return nil
		})
	})
	return out, err
}

// Count returns the number of live forwarding entries.
func (s *BoltStore) Count() (count int) {
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(forwardingBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0
	}
	return count
}

// NumSatellites is the satellite count the store was opened for.
func (s *BoltStore) NumSatellites() int { return s.numSatellites }

// Close closes the underlying bbolt database.
func (s *BoltStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func resetBucket(tx *bbolt.Tx, name []byte) error {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return err
	}
	_, err := tx.CreateBucket(name)
	return err
}

// Ids and interface indices are stored as big-endian int32 so that keys sort
// by (node, dst, path) and sentinels (-1) round-trip.
func encodeInts(vals ...int) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(b[4*i:], uint32(int32(v)))
	}
	return b
}

func decodeInts(b []byte) []int {
	out := make([]int, len(b)/4)
	for i := range out {
		out[i] = int(int32(binary.BigEndian.Uint32(b[4*i:])))
	}
	return out
}

func encodeEntry(e model.ForwardingEntry) []byte {
	return encodeInts(e.NextHop, e.LocalInterface, e.RemoteInterface, e.PathID)
}

func decodeEntry(b []byte) model.ForwardingEntry {
	v := decodeInts(b)
	return model.ForwardingEntry{NextHop: v[0], LocalInterface: v[1], RemoteInterface: v[2], PathID: v[3]}
}
