package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/constellation-router/internal/logging"
	"github.com/signalsfoundry/constellation-router/internal/observability"
	"github.com/signalsfoundry/constellation-router/kb"
	"github.com/signalsfoundry/constellation-router/model"
)

const tracerName = "github.com/signalsfoundry/constellation-router/core"

// Emitter delivers one step's outputs downstream and reports how many
// forwarding records it wrote.
type Emitter interface {
	Emit(ctx context.Context, timeNs int64, bw model.BandwidthAssignment, table *model.Table) (int, error)
}

// MetricsRecorder receives per-step measurements. *observability.StepCollector
// implements it.
type MetricsRecorder interface {
	ObserveStep(result string, d time.Duration)
	ObserveShortestPaths(d time.Duration)
	SetTableSize(entries, drops int)
	AddDeltaRecords(n int)
	SetBandwidthInterfaces(n int)
	SetPendingEmission(pending bool)
}

type noopMetrics struct{}

func (noopMetrics) ObserveStep(string, time.Duration)  {}
func (noopMetrics) ObserveShortestPaths(time.Duration) {}
func (noopMetrics) SetTableSize(int, int)              {}
func (noopMetrics) AddDeltaRecords(int)                {}
func (noopMetrics) SetBandwidthInterfaces(int)         {}
func (noopMetrics) SetPendingEmission(bool)            {}

// StepResult is everything computed for one step.
type StepResult struct {
	TimeNs      int64
	Attachments model.AttachmentSet
	Bandwidth   model.BandwidthAssignment
	Table       *model.Table
	// Records is the number of forwarding records emitted for the step.
	Records  int
	Duration time.Duration
}

// Engine runs the per-step pipeline: topology, attachments, bandwidth,
// forwarding state and emission.
type Engine struct {
	mu sync.Mutex

	kb       *kb.KnowledgeBase
	policy   Policy
	unfilled UnfilledPolicy
	workers  int
	emitter  Emitter
	log      logging.Logger
	metrics  MetricsRecorder
	tracer   trace.Tracer
	runID    string

	snapshot    atomic.Pointer[model.Constellation]
	unsubscribe func()

	// pending holds a computed step whose emission failed.
	pending *StepResult

	latestMu sync.RWMutex
	latest   *StepResult
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithEmitter sets the downstream emitter. Without one, steps are computed
// and published through Latest only.
func WithEmitter(em Emitter) EngineOption {
	return func(e *Engine) { e.emitter = em }
}

// WithWorkers bounds the shortest path parallelism. 0 uses GOMAXPROCS.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) { e.workers = n }
}

// WithUnfilledPolicy selects the bandwidth of unfilled ground station slots.
func WithUnfilledPolicy(p UnfilledPolicy) EngineOption {
	return func(e *Engine) { e.unfilled = p }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) EngineOption {
	return func(e *Engine) {
		if id != "" {
			e.runID = id
		}
	}
}

// NewEngine builds an engine over the nodes registered in k. Node changes in
// k are picked up at the next step.
func NewEngine(k *kb.KnowledgeBase, policy Policy, opts ...EngineOption) (*Engine, error) {
	if k == nil {
		return nil, errors.New("core: knowledge base is nil")
	}
	if policy == nil {
		return nil, errors.New("core: policy is nil")
	}
	e := &Engine{
		kb:      k,
		policy:  policy,
		log:     logging.Noop(),
		metrics: noopMetrics{},
		tracer:  otel.Tracer(tracerName),
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.unsubscribe = k.Subscribe(func(kb.Event) {
		e.snapshot.Store(nil)
	})
	return e, nil
}

// Close detaches the engine from the knowledge base.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// RunID identifies this engine's run in logs and archives.
func (e *Engine) RunID() string { return e.runID }

// Policy returns the forwarding policy in use.
func (e *Engine) Policy() Policy { return e.policy }

// Constellation returns the node snapshot used for the next step.
func (e *Engine) Constellation() *model.Constellation {
	if c := e.snapshot.Load(); c != nil {
		return c
	}
	c := e.kb.Constellation()
	e.snapshot.Store(c)
	return c
}

// Step computes and emits one step. A configuration error emits nothing and
// leaves the previously emitted state untouched. An emission error keeps the
// computed step pending for RetryEmit and is returned alongside the result.
func (e *Engine) Step(ctx context.Context, in model.StepInput) (*StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	log := logging.WithStepLogger(e.log, e.runID, in.TimeNs)
	ctx, span := e.tracer.Start(ctx, "routing.step", trace.WithAttributes(
		attribute.Int64("step.time_ns", in.TimeNs),
		attribute.String("routing.policy", e.policy.Name()),
		attribute.String("run.id", e.runID),
	))
	defer span.End()

	res, err := e.compute(ctx, in)
	if err != nil {
		result := observability.StepResultConfigurationError
		if ctx.Err() != nil && !IsConfigurationError(err) {
			result = observability.StepResultCanceled
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveStep(result, time.Since(start))
		log.Error(ctx, "routing step rejected", logging.Err(err), logging.String("result", result))
		return nil, err
	}

	if e.pending != nil {
		log.Warn(ctx, "discarding undelivered step",
			logging.Int64("pending_step_ns", e.pending.TimeNs))
	}
	e.pending = res
	e.metrics.SetTableSize(res.Table.Len(), res.Table.Drops())
	e.metrics.SetBandwidthInterfaces(len(res.Bandwidth))

	if err := e.emitPending(ctx, log); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.metrics.ObserveStep(observability.StepResultEmissionError, time.Since(start))
		return res, err
	}

	res.Duration = time.Since(start)
	e.metrics.ObserveStep(observability.StepResultOK, res.Duration)
	span.SetAttributes(
		attribute.Int("forwarding.entries", res.Table.Len()),
		attribute.Int("forwarding.records", res.Records),
	)
	log.Info(ctx, "routing step computed",
		logging.Int("entries", res.Table.Len()),
		logging.Int("drops", res.Table.Drops()),
		logging.Int("records", res.Records),
		logging.String("duration", res.Duration.String()),
	)
	return res, nil
}

// RetryEmit re-sends the pending step without recomputing it.
func (e *Engine) RetryEmit(ctx context.Context) (*StepResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil {
		return nil, ErrNoPendingEmission
	}
	res := e.pending
	log := logging.WithStepLogger(e.log, e.runID, res.TimeNs)
	if err := e.emitPending(ctx, log); err != nil {
		return res, err
	}
	log.Info(ctx, "pending step emitted", logging.Int("records", res.Records))
	return res, nil
}

// Pending reports whether a step awaits re-emission.
func (e *Engine) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending != nil
}

// Latest returns the last successfully emitted step, or nil.
func (e *Engine) Latest() *StepResult {
	e.latestMu.RLock()
	defer e.latestMu.RUnlock()
	return e.latest
}

func (e *Engine) compute(ctx context.Context, in model.StepInput) (*StepResult, error) {
	c := e.Constellation()
	h := e.policy.HomingDegree()

	_, span := e.tracer.Start(ctx, "routing.topology")
	apspStart := time.Now()
	oracle, err := BuildOracle(c.ISLInterfaceCounts(), in.ISLs, e.workers)
	span.End()
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveShortestPaths(time.Since(apspStart))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span = e.tracer.Start(ctx, "routing.attachments")
	set, err := Resolver{HomingDegree: h}.Resolve(c, in.Candidates)
	span.End()
	if err != nil {
		return nil, err
	}

	_, span = e.tracer.Start(ctx, "routing.bandwidth")
	bw := Allocator{HomingDegree: h, Unfilled: e.unfilled}.Allocate(c, set)
	span.End()

	_, span = e.tracer.Start(ctx, "routing.forwarding")
	table, err := Computer{Policy: e.policy}.Compute(c, oracle, set)
	span.End()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &StepResult{
		TimeNs:      in.TimeNs,
		Attachments: set,
		Bandwidth:   bw,
		Table:       table,
	}, nil
}

// emitPending must be called with e.mu held.
func (e *Engine) emitPending(ctx context.Context, log logging.Logger) error {
	res := e.pending
	if e.emitter != nil {
		ctx, span := e.tracer.Start(ctx, "routing.emit")
		n, err := e.emitter.Emit(ctx, res.TimeNs, res.Bandwidth, res.Table)
		span.End()
		if err != nil {
			e.metrics.SetPendingEmission(true)
			log.Error(ctx, "step emission failed", logging.Err(err))
			return fmt.Errorf("emit step %d: %w", res.TimeNs, err)
		}
		res.Records = n
		e.metrics.AddDeltaRecords(n)
	}
	e.pending = nil
	e.metrics.SetPendingEmission(false)

	e.latestMu.Lock()
	e.latest = res
	e.latestMu.Unlock()
	return nil
}

// StepSource yields the step input valid at an elapsed simulation time.
type StepSource interface {
	InputAt(elapsed time.Duration) (model.StepInput, error)
}

// TickListener adapts the engine to a time controller listener. Emission
// failures are retried with exponential backoff starting at initial, up to
// retries attempts, before the error is returned.
func (e *Engine) TickListener(src StepSource, retries int, initial time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, elapsed time.Duration) error {
		in, err := src.InputAt(elapsed)
		if err != nil {
			return err
		}
		in.TimeNs = elapsed.Nanoseconds()

		_, err = e.Step(ctx, in)
		if err == nil || retries <= 0 || !e.Pending() {
			return err
		}

		b := backoff.NewExponentialBackOff()
		if initial > 0 {
			b.InitialInterval = initial
		}
		_, err = backoff.Retry(ctx, func() (*StepResult, error) {
			res, err := e.RetryEmit(ctx)
			if errors.Is(err, ErrNoPendingEmission) {
				return res, backoff.Permanent(err)
			}
			return res, err
		}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(retries)))
		return err
	}
}
