package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/constellation-router/model"
)

// Computer builds the full forwarding table of one step from the oracle's
// distances and the step's attachments.
type Computer struct {
	Policy Policy
}

// Compute runs both passes, or the relayed computation for policies that
// relay via ground stations. Unreachable destinations become drop entries;
// only structural inconsistencies between the inputs return an error.
//
// Tie-break invariant: choices are ordered by distance. When the graph has
// zero-weight edges, equal distances are then ordered by fewer hops (see
// Oracle.closer). Remaining ties go to the lowest satellite id (egress
// attachment and uplink) or the lowest neighbor id (next hop).
func (cp Computer) Compute(c *model.Constellation, o *Oracle, set model.AttachmentSet) (*model.Table, error) {
	if err := checkAttachments(c, o, set); err != nil {
		return nil, err
	}
	if cp.Policy.RelaysViaGroundStations() {
		return computeRelayed(c, o.WithGroundStations(c, set)), nil
	}

	s, g := c.NumSatellites(), c.NumGroundStations()
	table := model.NewTable()
	// reach[sat*g+gid] is the best distance from sat to ground station gid.
	reach := make([]float64, s*g)

	for curr := 0; curr < s; curr++ {
		for gid := 0; gid < g; gid++ {
			entry, dist := cp.towardGroundStation(c, o, curr, gid, set.Of(gid))
			reach[curr*g+gid] = dist
			table.Set(model.Key{Node: curr, Dst: c.GroundStationID(gid)}, entry)
		}
	}

	for src := 0; src < g; src++ {
		for dst := 0; dst < g; dst++ {
			if src == dst {
				continue
			}
			srcID, dstID := c.GroundStationID(src), c.GroundStationID(dst)
			entries := cp.Policy.Uplinks(set.Of(src), func(sat int) float64 {
				return reach[sat*g+dst]
			})
			if len(entries) == 0 {
				table.Set(model.Key{Node: srcID, Dst: dstID}, model.Drop)
				continue
			}
			for _, e := range entries {
				key := model.Key{Node: srcID, Dst: dstID}
				if cp.Policy.TagsPaths() {
					key.Path = e.PathID
				}
				table.Set(key, e)
			}
		}
	}
	return table, nil
}

// towardGroundStation is pass 1 for a single (satellite, destination) pair.
// It returns the entry and the best achievable distance.
func (cp Computer) towardGroundStation(c *model.Constellation, o *Oracle, curr, gid int, atts []model.Attachment) (model.ForwardingEntry, float64) {
	best := -1
	bestDist, bestHops := math.Inf(1), 0
	for i, att := range atts {
		d := o.Distance(curr, att.Satellite)
		if math.IsInf(d, 1) {
			continue
		}
		d += att.Distance
		h := o.Hops(curr, att.Satellite)
		if best < 0 || o.closer(d, h, bestDist, bestHops) ||
			(o.tied(d, h, bestDist, bestHops) && att.Satellite < atts[best].Satellite) {
			best, bestDist, bestHops = i, d, h
		}
	}
	if best < 0 {
		return model.Drop, bestDist
	}

	egress := atts[best]
	if cp.Policy.DeliversDirect() {
		for _, att := range atts {
			if att.Satellite == curr {
				egress = att
				break
			}
		}
	}

	if curr == egress.Satellite {
		e := model.ForwardingEntry{
			NextHop:         c.GroundStationID(gid),
			LocalInterface:  egress.SatelliteInterface,
			RemoteInterface: egress.GroundInterface,
		}
		if cp.Policy.TagsPaths() {
			e.PathID = egress.GroundInterface
		}
		return e, bestDist
	}

	return nextHop(o, curr, egress.Satellite), bestDist
}

// computeRelayed gives every node, satellite or ground station, the
// neighbor minimising edge weight plus onward distance to each destination
// ground station in the full graph.
func computeRelayed(c *model.Constellation, full *Oracle) *model.Table {
	table := model.NewTable()
	for curr := 0; curr < c.NumNodes(); curr++ {
		for gid := 0; gid < c.NumGroundStations(); gid++ {
			dst := c.GroundStationID(gid)
			if curr == dst {
				continue
			}
			table.Set(model.Key{Node: curr, Dst: dst}, nextHop(full, curr, dst))
		}
	}
	return table
}

// nextHop is the greedy relaxation shared by both computations: the
// neighbor of curr on a shortest path to target, ties to the lowest id.
func nextHop(o *Oracle, curr, target int) model.ForwardingEntry {
	next := model.Drop
	nextDist, nextHops := math.Inf(1), 0
	for _, nb := range o.Neighbors(curr) {
		rest := o.Distance(nb.ID, target)
		if math.IsInf(rest, 1) {
			continue
		}
		d, h := nb.Weight+rest, 1+o.Hops(nb.ID, target)
		if next.IsDrop() || o.closer(d, h, nextDist, nextHops) {
			nextDist, nextHops = d, h
			next = model.ForwardingEntry{
				NextHop:         nb.ID,
				LocalInterface:  nb.LocalInterface,
				RemoteInterface: nb.RemoteInterface,
			}
		}
	}
	return next
}

// checkAttachments guards against inputs that were not produced by Resolve
// or that disagree with the oracle.
func checkAttachments(c *model.Constellation, o *Oracle, set model.AttachmentSet) error {
	if o.NumSatellites() != c.NumSatellites() {
		return fmt.Errorf("%w: oracle has %d satellites, constellation has %d",
			ErrInvalidTopology, o.NumSatellites(), c.NumSatellites())
	}
	if len(set) != c.NumGroundStations() {
		return fmt.Errorf("%w: %d attachment lists for %d ground stations",
			ErrMalformedCandidates, len(set), c.NumGroundStations())
	}

	satIfOwner := make(map[[2]int]int)
	for gid, atts := range set {
		gsID := c.GroundStationID(gid)
		gsIfs := make(map[int]struct{}, len(atts))
		sats := make(map[int]struct{}, len(atts))
		for _, att := range atts {
			if !c.IsSatellite(att.Satellite) {
				return fmt.Errorf("%w: ground station %d attached to non-satellite id %d",
					ErrMalformedCandidates, gsID, att.Satellite)
			}
			if _, dup := sats[att.Satellite]; dup {
				return fmt.Errorf("%w: ground station %d attached twice to satellite %d",
					ErrInterfaceCollision, gsID, att.Satellite)
			}
			sats[att.Satellite] = struct{}{}
			if _, dup := gsIfs[att.GroundInterface]; dup {
				return fmt.Errorf("%w: ground station %d interface %d used twice",
					ErrInterfaceCollision, gsID, att.GroundInterface)
			}
			gsIfs[att.GroundInterface] = struct{}{}

			key := [2]int{att.Satellite, att.SatelliteInterface}
			if other, taken := satIfOwner[key]; taken {
				return fmt.Errorf("%w: satellite %d interface %d assigned to ground stations %d and %d",
					ErrInterfaceCollision, att.Satellite, att.SatelliteInterface, c.GroundStationID(other), gsID)
			}
			satIfOwner[key] = gid
		}
	}
	return nil
}
