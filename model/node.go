package model

// NodeKind distinguishes the two disjoint node id ranges.
type NodeKind int

const (
	NodeKindUnknown NodeKind = iota
	NodeKindSatellite
	NodeKindGroundStation
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindSatellite:
		return "satellite"
	case NodeKindGroundStation:
		return "ground_station"
	default:
		return "unknown"
	}
}

// NodeSpec describes a node's static interface budget. Satellites use all
// fields; ground stations only use Name and AggregateBandwidth.
type NodeSpec struct {
	Name string
	Kind NodeKind

	// ISLInterfaces is the fixed ISL degree upper bound k. ISL interfaces
	// occupy local indices [0, k).
	ISLInterfaces int
	// GSLInterfaces is the number of attachment slots m. GSL interfaces
	// occupy local indices [k, k+m).
	GSLInterfaces int
	// AggregateBandwidth is shared by the node's GSL interfaces.
	AggregateBandwidth float64
}

// Constellation is an immutable snapshot of every node in a run. Satellite
// ids are [0, NumSatellites) and ground station ids are
// [NumSatellites, NumSatellites+NumGroundStations).
type Constellation struct {
	Satellites     []NodeSpec
	GroundStations []NodeSpec
}

// NumSatellites returns S.
func (c *Constellation) NumSatellites() int { return len(c.Satellites) }

// NumGroundStations returns G.
func (c *Constellation) NumGroundStations() int { return len(c.GroundStations) }

// NumNodes returns S+G.
func (c *Constellation) NumNodes() int { return len(c.Satellites) + len(c.GroundStations) }

// IsSatellite reports whether id falls in the satellite range.
func (c *Constellation) IsSatellite(id int) bool {
	return id >= 0 && id < len(c.Satellites)
}

// IsGroundStation reports whether id falls in the ground station range.
func (c *Constellation) IsGroundStation(id int) bool {
	return id >= len(c.Satellites) && id < c.NumNodes()
}

// GroundStationID converts a ground station index into its node id.
func (c *Constellation) GroundStationID(gid int) int { return len(c.Satellites) + gid }

// GroundStationIndex converts a ground station node id into its index.
func (c *Constellation) GroundStationIndex(id int) int { return id - len(c.Satellites) }

// Spec returns the spec for any node id. ok is false when id is out of range.
func (c *Constellation) Spec(id int) (NodeSpec, bool) {
	switch {
	case c.IsSatellite(id):
		return c.Satellites[id], true
	case c.IsGroundStation(id):
		return c.GroundStations[c.GroundStationIndex(id)], true
	default:
		return NodeSpec{}, false
	}
}

// ISLInterfaceCounts returns k per satellite, indexed by satellite id.
func (c *Constellation) ISLInterfaceCounts() []int {
	out := make([]int, len(c.Satellites))
	for i, s := range c.Satellites {
		out[i] = s.ISLInterfaces
	}
	return out
}
