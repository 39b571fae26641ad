package kb

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/signalsfoundry/constellation-router/model"
)

var (
	ErrNodeExists   = errors.New("node already exists")
	ErrNodeNotFound = errors.New("node not found")
	ErrNodeInvalid  = errors.New("invalid node")
	ErrNodeOrdering = errors.New("satellites must be registered before ground stations")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventNodeAdded EventType = iota
	EventNodeUpdated
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type EventType
	ID   int
	Node model.NodeSpec
}

// KnowledgeBase is an in-memory, thread-safe registry of satellites and
// ground stations. It hands out dense node ids: satellites get [0, S) in
// registration order and ground stations follow at [S, S+G).
type KnowledgeBase struct {
	mu sync.RWMutex

	satellites     []model.NodeSpec
	groundStations []model.NodeSpec
	byName         map[string]int

	subs []func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		byName: make(map[string]int),
	}
}

// AddSatellite registers a satellite and returns its node id.
func (kb *KnowledgeBase) AddSatellite(spec model.NodeSpec) (int, error) {
	spec.Kind = model.NodeKindSatellite
	if err := validate(spec); err != nil {
		return -1, err
	}
	if spec.ISLInterfaces < 0 || spec.GSLInterfaces < 0 {
		return -1, fmt.Errorf("%w: satellite %q has negative interface count", ErrNodeInvalid, spec.Name)
	}

	kb.mu.Lock()
	if len(kb.groundStations) > 0 {
		kb.mu.Unlock()
		return -1, fmt.Errorf("%w: satellite %q", ErrNodeOrdering, spec.Name)
	}
	if _, exists := kb.byName[spec.Name]; exists {
		kb.mu.Unlock()
		return -1, fmt.Errorf("%w: %q", ErrNodeExists, spec.Name)
	}
	id := len(kb.satellites)
	kb.satellites = append(kb.satellites, spec)
	kb.byName[spec.Name] = id
	subs := append([]func(Event){}, kb.subs...)
	kb.mu.Unlock()

	notify(subs, Event{Type: EventNodeAdded, ID: id, Node: spec})
	return id, nil
}

// AddGroundStation registers a ground station and returns its node id.
func (kb *KnowledgeBase) AddGroundStation(spec model.NodeSpec) (int, error) {
	spec.Kind = model.NodeKindGroundStation
	spec.ISLInterfaces = 0
	spec.GSLInterfaces = 0
	if err := validate(spec); err != nil {
		return -1, err
	}

	kb.mu.Lock()
	if _, exists := kb.byName[spec.Name]; exists {
		kb.mu.Unlock()
		return -1, fmt.Errorf("%w: %q", ErrNodeExists, spec.Name)
	}
	id := len(kb.satellites) + len(kb.groundStations)
	kb.groundStations = append(kb.groundStations, spec)
	kb.byName[spec.Name] = id
	subs := append([]func(Event){}, kb.subs...)
	kb.mu.Unlock()

	notify(subs, Event{Type: EventNodeAdded, ID: id, Node: spec})
	return id, nil
}

// ID returns the node id registered under name.
func (kb *KnowledgeBase) ID(name string) (int, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	id, ok := kb.byName[name]
	return id, ok
}

// Node returns the spec of node id.
func (kb *KnowledgeBase) Node(id int) (model.NodeSpec, error) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	spec, ok := kb.nodeLocked(id)
	if !ok {
		return model.NodeSpec{}, fmt.Errorf("%w: id %d", ErrNodeNotFound, id)
	}
	return spec, nil
}

// UpdateAggregateBandwidth changes the aggregate GSL bandwidth of a node and
// notifies subscribers.
func (kb *KnowledgeBase) UpdateAggregateBandwidth(name string, bandwidth float64) error {
	if bandwidth < 0 || math.IsNaN(bandwidth) || math.IsInf(bandwidth, 0) {
		return fmt.Errorf("%w: node %q bandwidth %v", ErrNodeInvalid, name, bandwidth)
	}

	kb.mu.Lock()
	id, ok := kb.byName[name]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	var spec model.NodeSpec
	if id < len(kb.satellites) {
		kb.satellites[id].AggregateBandwidth = bandwidth
		spec = kb.satellites[id]
	} else {
		gid := id - len(kb.satellites)
		kb.groundStations[gid].AggregateBandwidth = bandwidth
		spec = kb.groundStations[gid]
	}
	subs := append([]func(Event){}, kb.subs...)
	kb.mu.Unlock()

	notify(subs, Event{Type: EventNodeUpdated, ID: id, Node: spec})
	return nil
}

// Constellation returns an immutable snapshot of every registered node.
func (kb *KnowledgeBase) Constellation() *model.Constellation {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return &model.Constellation{
		Satellites:     append([]model.NodeSpec(nil), kb.satellites...),
		GroundStations: append([]model.NodeSpec(nil), kb.groundStations...),
	}
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.subs = append(kb.subs, fn)
	idx := len(kb.subs) - 1

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		if idx < 0 || idx >= len(kb.subs) {
			return
		}
		kb.subs = append(kb.subs[:idx], kb.subs[idx+1:]...)
		idx = -1
	}
}

func (kb *KnowledgeBase) nodeLocked(id int) (model.NodeSpec, bool) {
	switch {
	case id >= 0 && id < len(kb.satellites):
		return kb.satellites[id], true
	case id >= len(kb.satellites) && id < len(kb.satellites)+len(kb.groundStations):
		return kb.groundStations[id-len(kb.satellites)], true
	default:
		return model.NodeSpec{}, false
	}
}

func validate(spec model.NodeSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: empty name", ErrNodeInvalid)
	}
	bw := spec.AggregateBandwidth
	if bw < 0 || math.IsNaN(bw) || math.IsInf(bw, 0) {
		return fmt.Errorf("%w: node %q bandwidth %v", ErrNodeInvalid, spec.Name, bw)
	}
	return nil
}

// Notify subscribers outside the lock to avoid deadlocks.
func notify(subs []func(Event), e Event) {
	for _, sub := range subs {
		sub(e)
	}
}
