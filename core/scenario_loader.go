// core/scenario_loader.go
package core

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/constellation-router/kb"
	"github.com/signalsfoundry/constellation-router/model"
)

// ErrNoStepInput is returned by Scenario.InputAt before the first step.
var ErrNoStepInput = errors.New("no step input at or before elapsed time")

// Scenario is the per-step geometry of a run: ISL sets and ground station
// visibility, keyed by elapsed simulation time.
type Scenario struct {
	Satellites     int
	GroundStations int
	// Steps are ordered by strictly increasing TimeNs.
	Steps []model.StepInput
}

// internal YAML shapes, kept unexported so the file format can evolve.
// Plain JSON documents decode through the same path.
type scenarioYAML struct {
	SatelliteDefaults *nodeYAML  `yaml:"satellite_defaults"`
	NumSatellites     int        `yaml:"num_satellites"`
	Satellites        []nodeYAML `yaml:"satellites"`
	GroundStations    []nodeYAML `yaml:"ground_stations"`
	Steps             []stepYAML `yaml:"steps"`
}

type nodeYAML struct {
	Name          string  `yaml:"name"`
	ISLInterfaces int     `yaml:"isl_interfaces"`
	GSLInterfaces int     `yaml:"gsl_interfaces"`
	Bandwidth     float64 `yaml:"bandwidth"`
}

type stepYAML struct {
	TimeNs int64 `yaml:"time_ns"`
	// At is an alternative to time_ns such as "1.5s".
	At         string                       `yaml:"at"`
	ISLs       []model.Link                 `yaml:"isls"`
	Candidates map[string][]model.Candidate `yaml:"candidates"`
}

// LoadScenario reads a YAML (or JSON) scenario from r, registers its nodes
// in k and returns the step inputs with candidate lists indexed by ground
// station index.
//
// Explicit satellites are registered first, then num_satellites-len(satellites)
// generated ones named sat-<id> using satellite_defaults. Step contents are
// not validated here beyond name resolution; the engine rejects bad
// topologies when the step runs.
func LoadScenario(k *kb.KnowledgeBase, r io.Reader) (*Scenario, error) {
	if k == nil {
		return nil, fmt.Errorf("LoadScenario: kb is nil")
	}

	var payload scenarioYAML
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}

	for _, n := range payload.Satellites {
		if _, err := k.AddSatellite(n.spec(model.NodeKindSatellite)); err != nil {
			return nil, fmt.Errorf("LoadScenario: satellite %q: %w", n.Name, err)
		}
	}
	if extra := payload.NumSatellites - len(payload.Satellites); extra > 0 {
		if payload.SatelliteDefaults == nil {
			return nil, fmt.Errorf("LoadScenario: num_satellites=%d needs satellite_defaults", payload.NumSatellites)
		}
		for i := 0; i < extra; i++ {
			n := *payload.SatelliteDefaults
			n.Name = fmt.Sprintf("sat-%d", len(payload.Satellites)+i)
			if _, err := k.AddSatellite(n.spec(model.NodeKindSatellite)); err != nil {
				return nil, fmt.Errorf("LoadScenario: satellite %q: %w", n.Name, err)
			}
		}
	}
	for _, n := range payload.GroundStations {
		if _, err := k.AddGroundStation(n.spec(model.NodeKindGroundStation)); err != nil {
			return nil, fmt.Errorf("LoadScenario: ground station %q: %w", n.Name, err)
		}
	}

	c := k.Constellation()
	sc := &Scenario{
		Satellites:     c.NumSatellites(),
		GroundStations: c.NumGroundStations(),
		Steps:          make([]model.StepInput, 0, len(payload.Steps)),
	}
	for i, st := range payload.Steps {
		in, err := st.input(k, c)
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: step %d: %w", i, err)
		}
		if n := len(sc.Steps); n > 0 && in.TimeNs <= sc.Steps[n-1].TimeNs {
			return nil, fmt.Errorf("LoadScenario: step %d time %d not after %d", i, in.TimeNs, sc.Steps[n-1].TimeNs)
		}
		sc.Steps = append(sc.Steps, in)
	}
	return sc, nil
}

func (n nodeYAML) spec(kind model.NodeKind) model.NodeSpec {
	return model.NodeSpec{
		Name:               n.Name,
		Kind:               kind,
		ISLInterfaces:      n.ISLInterfaces,
		GSLInterfaces:      n.GSLInterfaces,
		AggregateBandwidth: n.Bandwidth,
	}
}

func (st stepYAML) input(k *kb.KnowledgeBase, c *model.Constellation) (model.StepInput, error) {
	in := model.StepInput{
		TimeNs:     st.TimeNs,
		ISLs:       st.ISLs,
		Candidates: make([][]model.Candidate, c.NumGroundStations()),
	}
	if st.At != "" {
		d, err := time.ParseDuration(st.At)
		if err != nil {
			return in, fmt.Errorf("parse at %q: %w", st.At, err)
		}
		in.TimeNs = d.Nanoseconds()
	}

	names := make([]string, 0, len(st.Candidates))
	for name := range st.Candidates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id, ok := k.ID(name)
		if !ok || !c.IsGroundStation(id) {
			return in, fmt.Errorf("%w: candidates for unknown ground station %q", ErrMalformedCandidates, name)
		}
		in.Candidates[c.GroundStationIndex(id)] = st.Candidates[name]
	}
	return in, nil
}

// InputAt returns the latest step at or before elapsed.
func (s *Scenario) InputAt(elapsed time.Duration) (model.StepInput, error) {
	ns := elapsed.Nanoseconds()
	i := sort.Search(len(s.Steps), func(i int) bool { return s.Steps[i].TimeNs > ns })
	if i == 0 {
		return model.StepInput{}, fmt.Errorf("%w: %s", ErrNoStepInput, elapsed)
	}
	return s.Steps[i-1], nil
}

// Duration is the time of the last step plus one cadence, the natural run
// length when every step should be visited.
func (s *Scenario) Duration(cadence time.Duration) time.Duration {
	if len(s.Steps) == 0 {
		return 0
	}
	return time.Duration(s.Steps[len(s.Steps)-1].TimeNs) + cadence
}
