package core

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/constellation-router/model"
)

// buildConstellation returns s identical satellites followed by g identical
// ground stations.
func buildConstellation(s, g, isl, gsl int, satBW, gsBW float64) *model.Constellation {
	c := &model.Constellation{}
	for i := 0; i < s; i++ {
		c.Satellites = append(c.Satellites, model.NodeSpec{
			Name:               fmt.Sprintf("sat-%d", i),
			Kind:               model.NodeKindSatellite,
			ISLInterfaces:      isl,
			GSLInterfaces:      gsl,
			AggregateBandwidth: satBW,
		})
	}
	for i := 0; i < g; i++ {
		c.GroundStations = append(c.GroundStations, model.NodeSpec{
			Name:               fmt.Sprintf("gs-%d", i),
			Kind:               model.NodeKindGroundStation,
			AggregateBandwidth: gsBW,
		})
	}
	return c
}

func ringLinks(n int, weight float64) []model.Link {
	links := make([]model.Link, 0, n)
	for i := 0; i < n; i++ {
		links = append(links, model.Link{A: i, B: (i + 1) % n, Weight: weight})
	}
	return links
}

// randomLinks builds a path plus random chords with integer weights,
// honouring a per-satellite budget of isl links.
func randomLinks(r *rand.Rand, n, isl int, zeroWeights bool) []model.Link {
	used := make([]int, n)
	seen := make(map[[2]int]bool)
	var links []model.Link
	add := func(a, b int) {
		if a == b || used[a] >= isl || used[b] >= isl {
			return
		}
		p := [2]int{min(a, b), max(a, b)}
		if seen[p] {
			return
		}
		seen[p] = true
		used[a]++
		used[b]++
		w := float64(1 + r.Intn(9))
		if zeroWeights && r.Intn(3) == 0 {
			w = 0
		}
		links = append(links, model.Link{A: a, B: b, Weight: w})
	}
	for i := 0; i+1 < n; i++ {
		add(i, i+1)
	}
	for i := 0; i < n*2; i++ {
		add(r.Intn(n), r.Intn(n))
	}
	return links
}

func randomCandidates(r *rand.Rand, s, g, maxVisible int) [][]model.Candidate {
	out := make([][]model.Candidate, g)
	for gid := range out {
		k := r.Intn(maxVisible + 1)
		for _, sat := range r.Perm(s)[:k] {
			out[gid] = append(out[gid], model.Candidate{Satellite: sat, Distance: 1 + r.Float64()*5})
		}
	}
	return out
}

// walk follows next hops from src toward dst and returns the hop count, or
// fails the test when the path drops, leaves the table, transits a ground
// station or exceeds limit.
func walk(t *testing.T, table *model.Table, numSatellites, src, dst, limit int) int {
	t.Helper()
	return walkPath(t, table, numSatellites, src, dst, limit, false)
}

// walkRelayed is walk for tables in which ground stations may forward
// transit traffic.
func walkRelayed(t *testing.T, table *model.Table, src, dst, limit int) int {
	t.Helper()
	return walkPath(t, table, 0, src, dst, limit, true)
}

func walkPath(t *testing.T, table *model.Table, numSatellites, src, dst, limit int, transit bool) int {
	t.Helper()
	curr := src
	for hops := 0; hops <= limit; hops++ {
		if curr == dst {
			return hops
		}
		recs := table.Lookup(curr, dst)
		if len(recs) == 0 {
			t.Fatalf("no entry for (%d,%d) while walking from %d", curr, dst, src)
		}
		next := recs[0]
		if next.IsDrop() {
			t.Fatalf("walk from %d to %d hit a drop at %d", src, dst, curr)
		}
		if !transit && curr != src && next.NextHop >= numSatellites && next.NextHop != dst {
			t.Fatalf("walk from %d to %d transits ground station %d", src, dst, next.NextHop)
		}
		curr = next.NextHop
	}
	t.Fatalf("walk from %d to %d did not terminate within %d hops", src, dst, limit)
	return -1
}
