package query

import (
	"github.com/signalsfoundry/constellation-router/core"
	"github.com/signalsfoundry/constellation-router/model"
)

// Reader is the forwarding state the service answers from.
// *emit.BoltStore implements it; FromEngine adapts a running engine.
type Reader interface {
	Step() (int64, error)
	Lookup(node, dst int) ([]model.Record, error)
	// Bandwidth returns the records of node, or of every node when node is
	// negative.
	Bandwidth(node int) ([]model.BandwidthRecord, error)
	Count() int
	NumSatellites() int
}

type engineReader struct {
	engine *core.Engine
}

// FromEngine serves the engine's latest emitted step.
func FromEngine(e *core.Engine) Reader {
	return engineReader{engine: e}
}

func (r engineReader) Step() (int64, error) {
	latest := r.engine.Latest()
	if latest == nil {
		return 0, ErrNotReady
	}
	return latest.TimeNs, nil
}

func (r engineReader) Lookup(node, dst int) ([]model.Record, error) {
	latest := r.engine.Latest()
	if latest == nil {
		return nil, ErrNotReady
	}
	return latest.Table.Lookup(node, dst), nil
}

func (r engineReader) Bandwidth(node int) ([]model.BandwidthRecord, error) {
	latest := r.engine.Latest()
	if latest == nil {
		return nil, ErrNotReady
	}
	var out []model.BandwidthRecord
	for _, rec := range latest.Bandwidth.Records() {
		if node < 0 || rec.Node == node {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r engineReader) Count() int {
	latest := r.engine.Latest()
	if latest == nil {
		return 0
	}
	return latest.Table.Len()
}

func (r engineReader) NumSatellites() int {
	return r.engine.Constellation().NumSatellites()
}
