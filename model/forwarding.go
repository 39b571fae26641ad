package model

import "sort"

// ForwardingEntry is a next-hop decision. Drop (-1,-1,-1) means the
// destination is currently unreachable.
type ForwardingEntry struct {
	NextHop         int
	LocalInterface  int
	RemoteInterface int
	// PathID tags concurrently valid paths between the same pair. It is 0
	// for ISL hops and for untagged policies.
	PathID int
}

// Drop is the unreachable sentinel.
var Drop = ForwardingEntry{NextHop: -1, LocalInterface: -1, RemoteInterface: -1}

// IsDrop reports whether e is the drop sentinel.
func (e ForwardingEntry) IsDrop() bool { return e.NextHop < 0 }

// Key identifies a table slot. Path is non-zero only for tagged ground
// station to ground station entries.
type Key struct {
	Node int
	Dst  int
	Path int
}

func keyLess(a, b Key) bool {
	if a.Node != b.Node {
		return a.Node < b.Node
	}
	if a.Dst != b.Dst {
		return a.Dst < b.Dst
	}
	return a.Path < b.Path
}

// Record is one emitted forwarding tuple.
type Record struct {
	Src, Dst int
	ForwardingEntry
}

// KeyFor maps a record back onto its table key. Entries originated by a
// satellite are never multi-path, so their key path is always 0 even when
// the record carries a downlink tag.
func (r Record) KeyFor(numSatellites int) Key {
	if r.Src < numSatellites {
		return Key{Node: r.Src, Dst: r.Dst}
	}
	return Key{Node: r.Src, Dst: r.Dst, Path: r.PathID}
}

// Table is the full forwarding state of one step.
type Table struct {
	entries map[Key]ForwardingEntry
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]ForwardingEntry)}
}

// Set stores e at k, replacing any previous value.
func (t *Table) Set(k Key, e ForwardingEntry) { t.entries[k] = e }

// Get returns the entry at k.
func (t *Table) Get(k Key) (ForwardingEntry, bool) {
	e, ok := t.entries[k]
	return e, ok
}

// Len returns the number of entries, drops included.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Drops counts drop sentinels.
func (t *Table) Drops() int {
	n := 0
	for _, e := range t.entries {
		if e.IsDrop() {
			n++
		}
	}
	return n
}

// Keys returns every key ordered by (node, dst, path).
func (t *Table) Keys() []Key {
	if t == nil {
		return nil
	}
	keys := make([]Key, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

// Lookup returns all entries for (node, dst) ordered by path.
func (t *Table) Lookup(node, dst int) []Record {
	var out []Record
	for k, e := range t.entries {
		if k.Node == node && k.Dst == dst {
			out = append(out, Record{Src: node, Dst: dst, ForwardingEntry: e})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PathID < out[j].PathID })
	return out
}

// Records returns the whole table as ordered records.
func (t *Table) Records() []Record {
	keys := t.Keys()
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, Record{Src: k.Node, Dst: k.Dst, ForwardingEntry: t.entries[k]})
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{entries: make(map[Key]ForwardingEntry, len(t.entries))}
	for k, e := range t.entries {
		c.entries[k] = e
	}
	return c
}

// Equal reports whether both tables hold the same keys and values.
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for k, e := range t.entries {
		if oe, ok := o.entries[k]; !ok || oe != e {
			return false
		}
	}
	return true
}

// Diff returns the records needed to turn prev into next. A nil prev
// yields the full table. Keys present in prev but absent from next are
// withdrawn with a drop sentinel carrying the withdrawn path id.
func Diff(prev, next *Table) []Record {
	if prev == nil {
		return next.Records()
	}
	var out []Record
	for _, k := range next.Keys() {
		e := next.entries[k]
		if pe, ok := prev.entries[k]; ok && pe == e {
			continue
		}
		out = append(out, Record{Src: k.Node, Dst: k.Dst, ForwardingEntry: e})
	}
	for _, k := range prev.Keys() {
		if _, ok := next.entries[k]; ok {
			continue
		}
		withdrawn := Drop
		withdrawn.PathID = k.Path
		out = append(out, Record{Src: k.Node, Dst: k.Dst, ForwardingEntry: withdrawn})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a := Key{Node: out[i].Src, Dst: out[i].Dst, Path: out[i].PathID}
		b := Key{Node: out[j].Src, Dst: out[j].Dst, Path: out[j].PathID}
		return keyLess(a, b)
	})
	return out
}

// Apply writes records into t. Call Normalize once all records of a step
// have been applied.
func (t *Table) Apply(numSatellites int, records []Record) {
	for _, r := range records {
		t.entries[r.KeyFor(numSatellites)] = r.ForwardingEntry
	}
}

// Normalize enforces the per-(node,dst) invariant: live entries supersede
// drop sentinels, and a group with no live entry is a single drop at path 0.
func (t *Table) Normalize() {
	type pair struct{ node, dst int }
	live := make(map[pair]bool)
	for k, e := range t.entries {
		if !e.IsDrop() {
			live[pair{k.Node, k.Dst}] = true
		}
	}
	for k, e := range t.entries {
		if !e.IsDrop() {
			continue
		}
		p := pair{k.Node, k.Dst}
		switch {
		case live[p]:
			delete(t.entries, k)
		case k.Path != 0:
			delete(t.entries, k)
			t.entries[Key{Node: k.Node, Dst: k.Dst}] = Drop
		default:
			t.entries[k] = Drop
		}
	}
}
