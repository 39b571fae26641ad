package core

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/constellation-router/model"
)

func TestResolveNearestWithTieBreak(t *testing.T) {
	c := buildConstellation(5, 1, 4, 2, 10, 10)
	cands := [][]model.Candidate{{
		{Satellite: 4, Distance: 2},
		{Satellite: 3, Distance: 1},
		{Satellite: 1, Distance: 2},
		{Satellite: 0, Distance: 9},
	}}

	set, err := Resolver{HomingDegree: 2}.Resolve(c, cands)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got := set.Of(0)
	if len(got) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(got))
	}
	// 3 is nearest; 1 and 4 tie at distance 2 and the lower id wins.
	if got[0].Satellite != 3 || got[1].Satellite != 1 {
		t.Fatalf("unexpected selection %+v", got)
	}
	for i, att := range got {
		if att.GroundInterface != i {
			t.Errorf("attachment %d: ground interface %d, want %d", i, att.GroundInterface, i)
		}
		if att.SatelliteSlot != 0 || att.SatelliteInterface != 4 {
			t.Errorf("attachment %d: slot %d interface %d, want slot 0 interface 4",
				i, att.SatelliteSlot, att.SatelliteInterface)
		}
	}
}

func TestResolveSharesSatelliteSlots(t *testing.T) {
	c := buildConstellation(2, 3, 2, 3, 10, 10)
	cands := [][]model.Candidate{
		{{Satellite: 0, Distance: 1}},
		{{Satellite: 0, Distance: 2}},
		{{Satellite: 0, Distance: 3}, {Satellite: 1, Distance: 4}},
	}

	set, err := Resolver{HomingDegree: 1}.Resolve(c, cands)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for gid := 0; gid < 3; gid++ {
		att := set.Of(gid)[0]
		if att.Satellite != 0 || att.SatelliteSlot != gid || att.SatelliteInterface != 2+gid {
			t.Fatalf("ground station %d: unexpected attachment %+v", gid, att)
		}
	}
}

func TestResolveEmptyAndMissingLists(t *testing.T) {
	c := buildConstellation(2, 3, 2, 1, 10, 10)
	set, err := Resolver{HomingDegree: 1}.Resolve(c, [][]model.Candidate{{}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(set) != 3 {
		t.Fatalf("expected one list per ground station, got %d", len(set))
	}
	for gid := range set {
		if len(set.Of(gid)) != 0 {
			t.Fatalf("ground station %d should have no attachments", gid)
		}
	}
}

func TestResolveInterfaceExhausted(t *testing.T) {
	c := buildConstellation(2, 2, 2, 1, 10, 10)
	cands := [][]model.Candidate{
		{{Satellite: 1, Distance: 1}},
		{{Satellite: 1, Distance: 1}, {Satellite: 0, Distance: 5}},
	}
	_, err := Resolver{HomingDegree: 1}.Resolve(c, cands)
	if !errors.Is(err, ErrInterfaceExhausted) {
		t.Fatalf("expected ErrInterfaceExhausted, got %v", err)
	}
}

func TestResolveMalformedCandidates(t *testing.T) {
	c := buildConstellation(2, 1, 2, 2, 10, 10)
	cases := []struct {
		name   string
		homing int
		cands  [][]model.Candidate
	}{
		{"non-satellite", 1, [][]model.Candidate{{{Satellite: 2, Distance: 1}}}},
		{"negative distance", 1, [][]model.Candidate{{{Satellite: 0, Distance: -1}}}},
		{"nan distance", 1, [][]model.Candidate{{{Satellite: 0, Distance: math.NaN()}}}},
		{"duplicate satellite", 2, [][]model.Candidate{{{Satellite: 0, Distance: 1}, {Satellite: 0, Distance: 2}}}},
		{"too many lists", 1, [][]model.Candidate{{}, {}}},
		{"homing zero", 0, nil},
		{"homing too large", MaxHomingDegree + 1, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolver{HomingDegree: tc.homing}.Resolve(c, tc.cands)
			if !errors.Is(err, ErrMalformedCandidates) {
				t.Fatalf("expected ErrMalformedCandidates, got %v", err)
			}
		})
	}
}
