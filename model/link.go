package model

// Link is an undirected inter-satellite link. Weight is the propagation
// delay or distance used as the shortest-path metric.
type Link struct {
	A      int     `yaml:"a" json:"a"`
	B      int     `yaml:"b" json:"b"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Candidate is a satellite visible from a ground station this step,
// together with the one-hop (GSL) distance.
type Candidate struct {
	Satellite int     `yaml:"satellite" json:"satellite"`
	Distance  float64 `yaml:"distance" json:"distance"`
}

// Attachment is an active GSL chosen for a ground station this step.
type Attachment struct {
	Satellite int
	// Distance is the one-hop distance carried over from the candidate.
	Distance float64
	// SatelliteSlot is the GSL slot on the satellite in [0, m).
	SatelliteSlot int
	// SatelliteInterface is the absolute local interface index k+slot.
	SatelliteInterface int
	// GroundInterface is the ground station side index in [0, h).
	GroundInterface int
}

// AttachmentSet holds the ordered attachments of every ground station,
// indexed by ground station index (not node id).
type AttachmentSet [][]Attachment

// Of returns the attachments of ground station index gid.
func (s AttachmentSet) Of(gid int) []Attachment {
	if gid < 0 || gid >= len(s) {
		return nil
	}
	return s[gid]
}

// StepInput is everything the routing plane needs for one time step.
type StepInput struct {
	// TimeNs identifies the step (elapsed simulation time in nanoseconds).
	TimeNs int64
	ISLs   []Link
	// Candidates is indexed by ground station index.
	Candidates [][]Candidate
}
