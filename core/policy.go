package core

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/signalsfoundry/constellation-router/model"
)

// Policy names accepted by NewPolicy.
const (
	PolicySingle    = "single"
	PolicyMultipath = "multipath"
	PolicyMultiBest = "multi-best"
	PolicyGSRelay   = "gs-relay"
)

// ReachFunc returns the best achievable distance from a satellite to the
// destination ground station under consideration, or +Inf.
type ReachFunc func(satellite int) float64

// Policy is the ground-station forwarding strategy.
type Policy interface {
	Name() string
	// HomingDegree is h, the number of attachments per ground station.
	HomingDegree() int
	// TagsPaths reports whether entries carry path ids. Tagged policies key
	// ground station to ground station entries by path id and emit six
	// column records.
	TagsPaths() bool
	// DeliversDirect reports whether a satellite attached to the destination
	// always delivers over its own GSL instead of relaying to a closer
	// attachment.
	DeliversDirect() bool
	// Uplinks picks the ground station to ground station entries among the
	// source's attachments. An empty result means drop.
	Uplinks(attachments []model.Attachment, reach ReachFunc) []model.ForwardingEntry
	// RelaysViaGroundStations reports whether shortest paths run over the
	// graph including GSL edges, so that a ground station may forward
	// traffic it did not originate. Such policies replace both passes.
	RelaysViaGroundStations() bool
}

// NewPolicy builds a policy by name. homing 0 selects the policy default.
// symmetric is only meaningful for the multipath policy.
func NewPolicy(name string, homing int, symmetric bool) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicySingle, "":
		if homing != 0 && homing != 1 {
			return nil, fmt.Errorf("policy %q is single-homed, got homing degree %d", PolicySingle, homing)
		}
		if symmetric {
			return nil, fmt.Errorf("policy %q does not support symmetric fan-in", PolicySingle)
		}
		return singleBest{name: PolicySingle, h: 1}, nil
	case PolicyMultiBest:
		h, err := multiHoming(homing)
		if err != nil {
			return nil, err
		}
		if symmetric {
			return nil, fmt.Errorf("policy %q does not support symmetric fan-in", PolicyMultiBest)
		}
		return singleBest{name: PolicyMultiBest, h: h}, nil
	case PolicyMultipath:
		h, err := multiHoming(homing)
		if err != nil {
			return nil, err
		}
		return multiPath{h: h, symmetric: symmetric}, nil
	case PolicyGSRelay:
		if homing == 0 {
			homing = 1
		}
		h, err := multiHoming(homing)
		if err != nil {
			return nil, err
		}
		if symmetric {
			return nil, fmt.Errorf("policy %q does not support symmetric fan-in", PolicyGSRelay)
		}
		return gsRelay{singleBest{name: PolicyGSRelay, h: h}}, nil
	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

func multiHoming(homing int) (int, error) {
	if homing == 0 {
		return MaxHomingDegree, nil
	}
	if homing < 1 || homing > MaxHomingDegree {
		return 0, fmt.Errorf("homing degree %d outside [1,%d]", homing, MaxHomingDegree)
	}
	return homing, nil
}

// singleBest forwards every ground station pair over exactly one
// attachment: the one minimising first hop plus best onward distance, ties
// to the lowest satellite id.
type singleBest struct {
	name string
	h    int
}

func (p singleBest) Name() string         { return p.name }
func (p singleBest) HomingDegree() int    { return p.h }
func (p singleBest) TagsPaths() bool      { return false }
func (p singleBest) DeliversDirect() bool { return false }

func (p singleBest) RelaysViaGroundStations() bool { return false }

func (p singleBest) Uplinks(attachments []model.Attachment, reach ReachFunc) []model.ForwardingEntry {
	best := -1
	bestDist := math.Inf(1)
	for i, att := range attachments {
		onward := reach(att.Satellite)
		if math.IsInf(onward, 1) {
			continue
		}
		d := att.Distance + onward
		if d < bestDist || (d == bestDist && att.Satellite < attachments[best].Satellite) {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return nil
	}
	return []model.ForwardingEntry{uplink(attachments[best], 0)}
}

// multiPath fans traffic across every attachment that can reach the
// destination, tagging each with the source side interface index. It trades
// path length for parallelism.
type multiPath struct {
	h         int
	symmetric bool
}

func (p multiPath) Name() string         { return PolicyMultipath }
func (p multiPath) HomingDegree() int    { return p.h }
func (p multiPath) TagsPaths() bool      { return true }
func (p multiPath) DeliversDirect() bool { return p.symmetric }

func (p multiPath) RelaysViaGroundStations() bool { return false }

func (p multiPath) Uplinks(attachments []model.Attachment, reach ReachFunc) []model.ForwardingEntry {
	var out []model.ForwardingEntry
	for _, att := range attachments {
		if math.IsInf(reach(att.Satellite), 1) {
			continue
		}
		out = append(out, uplink(att, att.GroundInterface))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PathID < out[j].PathID })
	return out
}

// gsRelay routes every node over shortest paths of the full graph, so a
// ground station with several attachments may carry transit traffic
// between satellites. Entries are untagged and single path. Uplinks is
// only used when the full graph is unavailable.
type gsRelay struct {
	singleBest
}

func (gsRelay) RelaysViaGroundStations() bool { return true }

func uplink(att model.Attachment, pathID int) model.ForwardingEntry {
	return model.ForwardingEntry{
		NextHop:         att.Satellite,
		LocalInterface:  att.GroundInterface,
		RemoteInterface: att.SatelliteInterface,
		PathID:          pathID,
	}
}
