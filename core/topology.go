package core

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/signalsfoundry/constellation-router/model"
)

// Neighbor is one edge of a node as seen from that node.
type Neighbor struct {
	ID     int
	Weight float64
	// LocalInterface is the interface on the owning node and
	// RemoteInterface the one on the neighbor.
	LocalInterface  int
	RemoteInterface int
}

// Oracle holds the ISL graph of one step together with its all-pairs
// shortest distances. Node ids [0, NumSatellites) are satellites; an oracle
// extended by WithGroundStations also covers ground station ids.
type Oracle struct {
	n          int
	satellites int
	workers    int
	dist       []float64
	hops      []int32
	neighbors [][]Neighbor
	// zeroWeight is set when some ISL has weight 0. Equal-distance choices
	// are then ordered by hop count first so that greedy forwarding cannot
	// cycle across zero-weight edges.
	zeroWeight bool
}

// BuildOracle validates the ISL set against the per-satellite ISL interface
// budget and runs all-pairs shortest paths. ISL interface indices are handed
// out per satellite in link order. workers <= 0 uses GOMAXPROCS; the result
// does not depend on the worker count.
func BuildOracle(islInterfaces []int, links []model.Link, workers int) (*Oracle, error) {
	n := len(islInterfaces)
	o := newOracle(n, n, workers)

	used := make([]int, n)
	seen := make(map[[2]int]int, len(links))
	for idx, l := range links {
		if l.A < 0 || l.A >= n || l.B < 0 || l.B >= n {
			return nil, fmt.Errorf("%w: link %d (%d-%d) references a non-satellite id (satellites are [0,%d))",
				ErrInvalidTopology, idx, l.A, l.B, n)
		}
		if l.A == l.B {
			return nil, fmt.Errorf("%w: link %d is a self-loop on satellite %d", ErrInvalidTopology, idx, l.A)
		}
		if l.Weight < 0 || math.IsNaN(l.Weight) || math.IsInf(l.Weight, 0) {
			return nil, fmt.Errorf("%w: link %d (%d-%d) has invalid weight %v", ErrInvalidTopology, idx, l.A, l.B, l.Weight)
		}
		pair := [2]int{min(l.A, l.B), max(l.A, l.B)}
		if first, dup := seen[pair]; dup {
			return nil, fmt.Errorf("%w: link %d duplicates link %d between satellites %d and %d",
				ErrInvalidTopology, idx, first, pair[0], pair[1])
		}
		seen[pair] = idx

		for _, s := range [2]int{l.A, l.B} {
			if used[s] >= islInterfaces[s] {
				return nil, fmt.Errorf("%w: satellite %d has more than %d ISLs (link %d)",
					ErrInvalidTopology, s, islInterfaces[s], idx)
			}
		}
		ifA, ifB := used[l.A], used[l.B]
		used[l.A]++
		used[l.B]++

		o.addEdge(l.A, l.B, l.Weight, ifA, ifB)
	}

	o.finish()
	return o, nil
}

func newOracle(n, satellites, workers int) *Oracle {
	o := &Oracle{
		n:          n,
		satellites: satellites,
		workers:    workers,
		dist:       make([]float64, n*n),
		hops:       make([]int32, n*n),
		neighbors:  make([][]Neighbor, n),
	}
	for i := range o.dist {
		o.dist[i] = math.Inf(1)
		o.hops[i] = math.MaxInt32
	}
	for i := 0; i < n; i++ {
		o.dist[i*n+i] = 0
		o.hops[i*n+i] = 0
	}
	return o
}

// addEdge records an undirected edge; ifA is the interface on a and ifB the
// one on b.
func (o *Oracle) addEdge(a, b int, w float64, ifA, ifB int) {
	n := o.n
	o.neighbors[a] = append(o.neighbors[a], Neighbor{ID: b, Weight: w, LocalInterface: ifA, RemoteInterface: ifB})
	o.neighbors[b] = append(o.neighbors[b], Neighbor{ID: a, Weight: w, LocalInterface: ifB, RemoteInterface: ifA})
	o.dist[a*n+b] = w
	o.dist[b*n+a] = w
	o.hops[a*n+b] = 1
	o.hops[b*n+a] = 1
	if w == 0 {
		o.zeroWeight = true
	}
}

func (o *Oracle) finish() {
	for _, nb := range o.neighbors {
		sort.Slice(nb, func(i, j int) bool { return nb[i].ID < nb[j].ID })
	}
	o.floydWarshall(o.workers)
}

// WithGroundStations returns a new oracle over all S+G nodes: the ISLs of o
// plus one GSL edge per attachment, weighted by its one-hop distance. Paths
// in it may relay through ground stations. The receiver is not modified.
func (o *Oracle) WithGroundStations(c *model.Constellation, set model.AttachmentSet) *Oracle {
	full := newOracle(o.satellites+len(set), o.satellites, o.workers)
	for u := 0; u < o.satellites; u++ {
		for _, nb := range o.neighbors[u] {
			if nb.ID > u {
				full.addEdge(u, nb.ID, nb.Weight, nb.LocalInterface, nb.RemoteInterface)
			}
		}
	}
	for gid, atts := range set {
		gs := c.GroundStationID(gid)
		for _, att := range atts {
			full.addEdge(att.Satellite, gs, att.Distance, att.SatelliteInterface, att.GroundInterface)
		}
	}
	full.finish()
	return full
}

// floydWarshall relaxes the matrix in place, ordering paths by (distance,
// hops). For a fixed k, row k and column k are invariant (weights are
// non-negative), so rows can be relaxed independently.
func (o *Oracle) floydWarshall(workers int) {
	n := o.n
	if n == 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers

	relax := func(k, lo, hi int) {
		rowK := o.dist[k*n : (k+1)*n]
		hopK := o.hops[k*n : (k+1)*n]
		for i := lo; i < hi; i++ {
			dik := o.dist[i*n+k]
			if math.IsInf(dik, 1) {
				continue
			}
			hik := o.hops[i*n+k]
			row := o.dist[i*n : (i+1)*n]
			hop := o.hops[i*n : (i+1)*n]
			for j, dkj := range rowK {
				if math.IsInf(dkj, 1) {
					continue
				}
				d, h := dik+dkj, hik+hopK[j]
				if d < row[j] || (d == row[j] && h < hop[j]) {
					row[j], hop[j] = d, h
				}
			}
		}
	}

	for k := 0; k < n; k++ {
		if workers == 1 {
			relax(k, 0, n)
			continue
		}
		var wg sync.WaitGroup
		for lo := 0; lo < n; lo += chunk {
			hi := min(lo+chunk, n)
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				relax(k, lo, hi)
			}(lo, hi)
		}
		wg.Wait()
	}
}

// NumSatellites returns S.
func (o *Oracle) NumSatellites() int { return o.satellites }

// NumNodes returns the number of node ids the oracle covers.
func (o *Oracle) NumNodes() int { return o.n }

// Distance returns the shortest distance between two nodes, or +Inf when
// either id is out of range or v is unreachable from u.
func (o *Oracle) Distance(u, v int) float64 {
	if u < 0 || u >= o.n || v < 0 || v >= o.n {
		return math.Inf(1)
	}
	return o.dist[u*o.n+v]
}

// Hops returns the number of ISL hops on the shortest path from u to v, or
// -1 when v is unreachable.
func (o *Oracle) Hops(u, v int) int {
	if math.IsInf(o.Distance(u, v), 1) {
		return -1
	}
	return int(o.hops[u*o.n+v])
}

// closer reports whether (d1, h1) should be preferred over (d2, h2). Hop
// counts only matter when the graph has zero-weight edges.
func (o *Oracle) closer(d1 float64, h1 int, d2 float64, h2 int) bool {
	if d1 != d2 {
		return d1 < d2
	}
	return o.zeroWeight && h1 < h2
}

// tied reports whether (d1, h1) and (d2, h2) are equally preferred.
func (o *Oracle) tied(d1 float64, h1 int, d2 float64, h2 int) bool {
	return d1 == d2 && (!o.zeroWeight || h1 == h2)
}

// Neighbors returns the neighbors of u ordered by neighbor id.
func (o *Oracle) Neighbors(u int) []Neighbor {
	if u < 0 || u >= o.n {
		return nil
	}
	return o.neighbors[u]
}
