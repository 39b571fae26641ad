package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/constellation-router/model"
)

func TestBuildOracleRingDistances(t *testing.T) {
	o, err := BuildOracle([]int{2, 2, 2, 2}, ringLinks(4, 1), 1)
	if err != nil {
		t.Fatalf("BuildOracle: %v", err)
	}

	want := map[[2]int]float64{
		{0, 0}: 0, {0, 1}: 1, {0, 2}: 2, {0, 3}: 1,
		{1, 3}: 2, {2, 3}: 1,
	}
	for pair, d := range want {
		if got := o.Distance(pair[0], pair[1]); got != d {
			t.Errorf("Distance(%d,%d) = %v, want %v", pair[0], pair[1], got, d)
		}
	}
	if h := o.Hops(0, 2); h != 2 {
		t.Errorf("Hops(0,2) = %d, want 2", h)
	}
}

func TestBuildOracleInterfacesInLinkOrder(t *testing.T) {
	o, err := BuildOracle([]int{2, 2, 2, 2}, ringLinks(4, 1), 1)
	if err != nil {
		t.Fatalf("BuildOracle: %v", err)
	}

	// Link 0 is (0,1) and link 3 is (3,0), so satellite 0 uses interface 0
	// toward 1 and interface 1 toward 3.
	nbs := o.Neighbors(0)
	if len(nbs) != 2 {
		t.Fatalf("expected 2 neighbors of satellite 0, got %d", len(nbs))
	}
	if nbs[0] != (Neighbor{ID: 1, Weight: 1, LocalInterface: 0, RemoteInterface: 0}) {
		t.Errorf("unexpected neighbor 0 of satellite 0: %+v", nbs[0])
	}
	if nbs[1] != (Neighbor{ID: 3, Weight: 1, LocalInterface: 1, RemoteInterface: 1}) {
		t.Errorf("unexpected neighbor 1 of satellite 0: %+v", nbs[1])
	}
}

func TestBuildOracleUnreachable(t *testing.T) {
	links := []model.Link{{A: 0, B: 1, Weight: 3}, {A: 2, B: 3, Weight: 4}}
	o, err := BuildOracle([]int{1, 1, 1, 1}, links, 0)
	if err != nil {
		t.Fatalf("BuildOracle: %v", err)
	}
	if d := o.Distance(0, 3); !math.IsInf(d, 1) {
		t.Fatalf("expected +Inf between components, got %v", d)
	}
	if h := o.Hops(1, 2); h != -1 {
		t.Fatalf("expected -1 hops between components, got %d", h)
	}
	if d := o.Distance(0, 17); !math.IsInf(d, 1) {
		t.Fatalf("expected +Inf for out of range id, got %v", d)
	}
	if o.Neighbors(-1) != nil {
		t.Fatalf("expected no neighbors for out of range id")
	}
}

func TestBuildOracleEmpty(t *testing.T) {
	o, err := BuildOracle(nil, nil, 4)
	if err != nil {
		t.Fatalf("BuildOracle: %v", err)
	}
	if o.NumSatellites() != 0 {
		t.Fatalf("expected empty oracle, got %d satellites", o.NumSatellites())
	}
}

func TestBuildOracleInvalidTopology(t *testing.T) {
	cases := []struct {
		name  string
		isl   []int
		links []model.Link
	}{
		{"non-satellite id", []int{2, 2}, []model.Link{{A: 0, B: 2, Weight: 1}}},
		{"negative id", []int{2, 2}, []model.Link{{A: -1, B: 0, Weight: 1}}},
		{"self loop", []int{2, 2}, []model.Link{{A: 1, B: 1, Weight: 1}}},
		{"negative weight", []int{2, 2}, []model.Link{{A: 0, B: 1, Weight: -1}}},
		{"nan weight", []int{2, 2}, []model.Link{{A: 0, B: 1, Weight: math.NaN()}}},
		{"infinite weight", []int{2, 2}, []model.Link{{A: 0, B: 1, Weight: math.Inf(1)}}},
		{"duplicate link", []int{2, 2}, []model.Link{{A: 0, B: 1, Weight: 1}, {A: 1, B: 0, Weight: 2}}},
		{"interface budget", []int{1, 2, 2}, []model.Link{{A: 0, B: 1, Weight: 1}, {A: 0, B: 2, Weight: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildOracle(tc.isl, tc.links, 1)
			if !errors.Is(err, ErrInvalidTopology) {
				t.Fatalf("expected ErrInvalidTopology, got %v", err)
			}
			if !IsConfigurationError(err) {
				t.Fatalf("expected configuration error family for %v", err)
			}
		})
	}
}

func TestOracleSymmetryAndTriangleInequality(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	const n = 40
	isl := make([]int, n)
	for i := range isl {
		isl[i] = 4
	}
	links := randomLinks(r, n, 4, false)
	o, err := BuildOracle(isl, links, 3)
	if err != nil {
		t.Fatalf("BuildOracle: %v", err)
	}

	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			if o.Distance(u, v) != o.Distance(v, u) {
				t.Fatalf("Distance(%d,%d)=%v differs from Distance(%d,%d)=%v",
					u, v, o.Distance(u, v), v, u, o.Distance(v, u))
			}
		}
	}
	for _, l := range links {
		for x := 0; x < n; x++ {
			if o.Distance(x, l.B) > o.Distance(x, l.A)+l.Weight+1e-9 {
				t.Fatalf("triangle inequality violated for %d via link %d-%d", x, l.A, l.B)
			}
			if o.Distance(x, l.A) > o.Distance(x, l.B)+l.Weight+1e-9 {
				t.Fatalf("triangle inequality violated for %d via link %d-%d", x, l.B, l.A)
			}
		}
	}
}

func TestOracleIndependentOfWorkerCount(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	const n = 64
	isl := make([]int, n)
	for i := range isl {
		isl[i] = 4
	}
	links := randomLinks(r, n, 4, true)

	serial, err := BuildOracle(isl, links, 1)
	if err != nil {
		t.Fatalf("BuildOracle serial: %v", err)
	}
	for _, workers := range []int{2, 5, 64, 0} {
		parallel, err := BuildOracle(isl, links, workers)
		if err != nil {
			t.Fatalf("BuildOracle workers=%d: %v", workers, err)
		}
		for u := 0; u < n; u++ {
			for v := 0; v < n; v++ {
				if serial.Distance(u, v) != parallel.Distance(u, v) || serial.Hops(u, v) != parallel.Hops(u, v) {
					t.Fatalf("workers=%d: (%d,%d) got (%v,%d), want (%v,%d)", workers, u, v,
						parallel.Distance(u, v), parallel.Hops(u, v), serial.Distance(u, v), serial.Hops(u, v))
				}
			}
		}
	}
}

func TestOracleWithGroundStations(t *testing.T) {
	c := buildConstellation(4, 1, 2, 1, 10, 10)
	o, err := BuildOracle(c.ISLInterfaceCounts(), ringLinks(4, 5), 2)
	if err != nil {
		t.Fatalf("BuildOracle: %v", err)
	}
	set := model.AttachmentSet{{
		{Satellite: 0, Distance: 1, SatelliteInterface: 2, GroundInterface: 0},
		{Satellite: 2, Distance: 1, SatelliteInterface: 2, GroundInterface: 1},
	}}

	full := o.WithGroundStations(c, set)
	if full.NumNodes() != 5 || full.NumSatellites() != 4 {
		t.Fatalf("expected 5 nodes and 4 satellites, got %d and %d", full.NumNodes(), full.NumSatellites())
	}
	if d := full.Distance(0, 2); d != 2 {
		t.Fatalf("expected the ground station shortcut 0-4-2 of length 2, got %v", d)
	}
	if h := full.Hops(0, 2); h != 2 {
		t.Fatalf("Hops(0,2) = %d, want 2", h)
	}
	if d := o.Distance(0, 2); d != 10 {
		t.Fatalf("receiver must keep ISL-only distances, got %v", d)
	}
	if o.NumNodes() != 4 {
		t.Fatalf("receiver grew to %d nodes", o.NumNodes())
	}

	gs := full.Neighbors(4)
	want := []Neighbor{
		{ID: 0, Weight: 1, LocalInterface: 0, RemoteInterface: 2},
		{ID: 2, Weight: 1, LocalInterface: 1, RemoteInterface: 2},
	}
	if len(gs) != len(want) || gs[0] != want[0] || gs[1] != want[1] {
		t.Fatalf("ground station neighbors = %+v, want %+v", gs, want)
	}
	sat := full.Neighbors(0)
	if len(sat) != 3 || sat[2] != (Neighbor{ID: 4, Weight: 1, LocalInterface: 2, RemoteInterface: 0}) {
		t.Fatalf("satellite 0 neighbors = %+v", sat)
	}
}
