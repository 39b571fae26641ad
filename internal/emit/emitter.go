// Package emit persists the per-step routing outputs: the full bandwidth
// assignment and the forwarding table as a delta against the previously
// emitted step.
package emit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/constellation-router/internal/logging"
	"github.com/signalsfoundry/constellation-router/model"
)

// ErrEmission wraps every sink failure. The step that failed can be emitted
// again without recomputation.
var ErrEmission = errors.New("emission failed")

// Step is what a sink receives for one time step.
type Step struct {
	TimeNs    int64
	Bandwidth []model.BandwidthRecord
	// Records is the forwarding delta against the previous step.
	Records []model.Record
	// Table is the full table after the step. Sinks must not modify it.
	Table *model.Table
	// Tagged selects six column forwarding records.
	Tagged bool
	// Full is set when Records is the whole table rather than a delta, that
	// is for the first step an emitter writes.
	Full bool
}

// Sink persists steps. Writing the same step twice must leave the sink as
// if it had been written once.
type Sink interface {
	Write(ctx context.Context, step Step) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, step Step) error

func (f SinkFunc) Write(ctx context.Context, step Step) error { return f(ctx, step) }

// MultiSink writes to each sink in order and stops at the first failure.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, step Step) error {
	for i, s := range m {
		if err := s.Write(ctx, step); err != nil {
			return fmt.Errorf("sink %d: %w", i, err)
		}
	}
	return nil
}

// Emitter owns the previously emitted table and turns each new table into
// a delta for its sink.
type Emitter struct {
	mu     sync.Mutex
	sink   Sink
	tagged bool
	log    logging.Logger
	prev   *model.Table
}

// NewEmitter returns an emitter with no previous table, so its first step is
// emitted in full.
func NewEmitter(sink Sink, tagged bool, log logging.Logger) *Emitter {
	if log == nil {
		log = logging.Noop()
	}
	return &Emitter{sink: sink, tagged: tagged, log: log}
}

// Emit diffs table against the previous one and writes the step. On failure
// the previous table is kept, so calling Emit again with the same table
// produces the same records.
func (e *Emitter) Emit(ctx context.Context, timeNs int64, bw model.BandwidthAssignment, table *model.Table) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	step := Step{
		TimeNs:    timeNs,
		Bandwidth: bw.Records(),
		Records:   model.Diff(e.prev, table),
		Table:     table,
		Tagged:    e.tagged,
		Full:      e.prev == nil,
	}
	if err := e.sink.Write(ctx, step); err != nil {
		return 0, fmt.Errorf("%w: step %d: %w", ErrEmission, timeNs, err)
	}
	e.prev = table
	e.log.Debug(ctx, "step emitted",
		logging.Int64("step_ns", timeNs),
		logging.Int("records", len(step.Records)),
		logging.Int("bandwidth_records", len(step.Bandwidth)),
	)
	return len(step.Records), nil
}

// Previous returns the last successfully emitted table, or nil.
func (e *Emitter) Previous() *model.Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prev
}
