package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/constellation-router/model"
)

// MaxHomingDegree bounds the number of concurrent attachments per ground station.
const MaxHomingDegree = 3

// Resolver turns per-ground-station visibility into interface-assigned
// attachments.
type Resolver struct {
	HomingDegree int
}

// slotAllocator hands out satellite GSL slots first-come within one call.
// Slot identity is not kept across steps.
type slotAllocator struct {
	constellation *model.Constellation
	next          []int
	owner         map[[2]int]int // (satellite, slot) -> ground station index
}

func newSlotAllocator(c *model.Constellation) *slotAllocator {
	return &slotAllocator{
		constellation: c,
		next:          make([]int, c.NumSatellites()),
		owner:         make(map[[2]int]int),
	}
}

func (a *slotAllocator) assign(sat, gid int) (int, error) {
	budget := a.constellation.Satellites[sat].GSLInterfaces
	slot := a.next[sat]
	if slot >= budget {
		return -1, fmt.Errorf("%w: satellite %d has %d GSL interfaces, ground station %d needs another",
			ErrInterfaceExhausted, sat, budget, a.constellation.GroundStationID(gid))
	}
	key := [2]int{sat, slot}
	if other, taken := a.owner[key]; taken {
		return -1, fmt.Errorf("%w: satellite %d slot %d already assigned to ground station %d",
			ErrInterfaceCollision, sat, slot, a.constellation.GroundStationID(other))
	}
	a.owner[key] = gid
	a.next[sat]++
	return slot, nil
}

// Resolve selects, for every ground station, its nearest HomingDegree
// candidates (ties broken by lowest satellite id) and assigns interfaces.
// The ground station side gets indices 0..h-1 in selection order. A ground
// station without candidates gets an empty list.
func (r Resolver) Resolve(c *model.Constellation, candidates [][]model.Candidate) (model.AttachmentSet, error) {
	h := r.HomingDegree
	if h < 1 || h > MaxHomingDegree {
		return nil, fmt.Errorf("%w: homing degree %d outside [1,%d]", ErrMalformedCandidates, h, MaxHomingDegree)
	}
	g := c.NumGroundStations()
	if len(candidates) > g {
		return nil, fmt.Errorf("%w: %d candidate lists for %d ground stations", ErrMalformedCandidates, len(candidates), g)
	}

	alloc := newSlotAllocator(c)
	set := make(model.AttachmentSet, g)
	for gid := 0; gid < g; gid++ {
		var list []model.Candidate
		if gid < len(candidates) {
			list = candidates[gid]
		}
		selected, err := selectNearest(c, gid, list, h)
		if err != nil {
			return nil, err
		}

		attachments := make([]model.Attachment, 0, len(selected))
		for gsIf, cand := range selected {
			slot, err := alloc.assign(cand.Satellite, gid)
			if err != nil {
				return nil, err
			}
			attachments = append(attachments, model.Attachment{
				Satellite:          cand.Satellite,
				Distance:           cand.Distance,
				SatelliteSlot:      slot,
				SatelliteInterface: c.Satellites[cand.Satellite].ISLInterfaces + slot,
				GroundInterface:    gsIf,
			})
		}
		set[gid] = attachments
	}
	return set, nil
}

func selectNearest(c *model.Constellation, gid int, list []model.Candidate, h int) ([]model.Candidate, error) {
	gsID := c.GroundStationID(gid)
	seen := make(map[int]struct{}, len(list))
	for _, cand := range list {
		if !c.IsSatellite(cand.Satellite) {
			return nil, fmt.Errorf("%w: ground station %d lists non-satellite id %d", ErrMalformedCandidates, gsID, cand.Satellite)
		}
		if cand.Distance < 0 || math.IsNaN(cand.Distance) || math.IsInf(cand.Distance, 0) {
			return nil, fmt.Errorf("%w: ground station %d to satellite %d has invalid distance %v",
				ErrMalformedCandidates, gsID, cand.Satellite, cand.Distance)
		}
		if _, dup := seen[cand.Satellite]; dup {
			return nil, fmt.Errorf("%w: ground station %d lists satellite %d twice", ErrMalformedCandidates, gsID, cand.Satellite)
		}
		seen[cand.Satellite] = struct{}{}
	}

	sorted := append([]model.Candidate(nil), list...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Distance != sorted[j].Distance {
			return sorted[i].Distance < sorted[j].Distance
		}
		return sorted[i].Satellite < sorted[j].Satellite
	})
	if len(sorted) > h {
		sorted = sorted[:h]
	}
	return sorted, nil
}
