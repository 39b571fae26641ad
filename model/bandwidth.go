package model

import "sort"

// InterfaceRef names a local interface on a node.
type InterfaceRef struct {
	Node      int
	Interface int
}

// BandwidthAssignment maps every GSL interface to its allocated bandwidth.
// It is always emitted in full.
type BandwidthAssignment map[InterfaceRef]float64

// BandwidthRecord is one emitted bandwidth tuple.
type BandwidthRecord struct {
	InterfaceRef
	Bandwidth float64
}

// Records returns the assignment ordered by (node, interface).
func (b BandwidthAssignment) Records() []BandwidthRecord {
	out := make([]BandwidthRecord, 0, len(b))
	for ref, bw := range b {
		out = append(out, BandwidthRecord{InterfaceRef: ref, Bandwidth: bw})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Node != out[j].Node {
			return out[i].Node < out[j].Node
		}
		return out[i].Interface < out[j].Interface
	})
	return out
}

// NodeTotal sums the bandwidth allocated across a node's interfaces.
func (b BandwidthAssignment) NodeTotal(node int) float64 {
	var total float64
	for ref, bw := range b {
		if ref.Node == node {
			total += bw
		}
	}
	return total
}
