package core

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/constellation-router/model"
)

// UnfilledPolicy decides what an unfilled ground station slot receives.
type UnfilledPolicy int

const (
	// UnfilledZero gives unfilled slots no bandwidth.
	UnfilledZero UnfilledPolicy = iota
	// UnfilledDrain gives unfilled slots their nominal share so queued
	// packets on a dropped attachment can still drain.
	UnfilledDrain
)

func (p UnfilledPolicy) String() string {
	if p == UnfilledDrain {
		return "drain"
	}
	return "zero"
}

// ParseUnfilledPolicy accepts "zero" (or empty) and "drain".
func ParseUnfilledPolicy(s string) (UnfilledPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero":
		return UnfilledZero, nil
	case "drain":
		return UnfilledDrain, nil
	default:
		return UnfilledZero, fmt.Errorf("unknown unfilled slot policy %q", s)
	}
}

// Allocator splits per-node aggregate GSL bandwidth across interfaces.
type Allocator struct {
	HomingDegree int
	Unfilled     UnfilledPolicy
}

// Allocate returns the full bandwidth assignment for one step. Every
// satellite GSL slot is present (unused slots at zero) and every ground
// station has exactly HomingDegree slots.
func (a Allocator) Allocate(c *model.Constellation, set model.AttachmentSet) model.BandwidthAssignment {
	out := make(model.BandwidthAssignment)

	inUse := make([]int, c.NumSatellites())
	for _, attachments := range set {
		for _, att := range attachments {
			inUse[att.Satellite]++
		}
	}
	for sid, spec := range c.Satellites {
		share := 0.0
		if inUse[sid] > 0 {
			share = spec.AggregateBandwidth / float64(inUse[sid])
		}
		for slot := 0; slot < spec.GSLInterfaces; slot++ {
			bw := 0.0
			if slot < inUse[sid] {
				bw = share
			}
			out[model.InterfaceRef{Node: sid, Interface: spec.ISLInterfaces + slot}] = bw
		}
	}

	h := a.HomingDegree
	if h < 1 {
		return out
	}
	for gid, spec := range c.GroundStations {
		node := c.GroundStationID(gid)
		share := spec.AggregateBandwidth / float64(h)
		filled := len(set.Of(gid))
		for slot := 0; slot < h; slot++ {
			bw := share
			if slot >= filled && a.Unfilled == UnfilledZero {
				bw = 0
			}
			out[model.InterfaceRef{Node: node, Interface: slot}] = bw
		}
	}
	return out
}
