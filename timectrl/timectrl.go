package timectrl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners return while still
	// stepping by Tick.
	Accelerated
)

// ParseMode maps "realtime" and "accelerated" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "realtime", "real-time", "":
		return RealTime, nil
	case "accelerated":
		return Accelerated, nil
	default:
		return RealTime, fmt.Errorf("unknown time mode %q", s)
	}
}

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// Listener is called once per tick with the simulation time elapsed since
// StartTime. A listener error stops the run.
type Listener func(ctx context.Context, elapsed time.Duration) error

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// currentTime tracks the current simulation time. It is updated
	// as the controller advances time.
	currentTime time.Time

	listeners []Listener
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Elapsed returns the simulation time elapsed since StartTime.
func (tc *TimeController) Elapsed() time.Duration {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime.Sub(tc.StartTime)
}

// SetTime moves the current simulation time without notifying listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every tick, in registration
// order.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Run ticks at elapsed 0, Tick, 2*Tick, ... while elapsed < duration, or
// until ctx is done when duration is 0. It returns the first listener error,
// or ctx.Err() when canceled.
func (tc *TimeController) Run(ctx context.Context, duration time.Duration) error {
	if tc.Tick <= 0 {
		return errors.New("timectrl: tick must be positive")
	}

	tc.mu.Lock()
	tc.currentTime = tc.StartTime
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	var ticks <-chan time.Time
	if tc.Mode == RealTime {
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for elapsed := time.Duration(0); duration <= 0 || elapsed < duration; elapsed += tc.Tick {
		if elapsed > 0 && ticks != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticks:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		tc.mu.Lock()
		tc.currentTime = tc.StartTime.Add(elapsed)
		tc.mu.Unlock()

		for _, fn := range listeners {
			if err := fn(ctx, elapsed); err != nil {
				return fmt.Errorf("tick at %s: %w", elapsed, err)
			}
		}
	}
	return nil
}

// Start runs the controller in a separate goroutine. The returned channel
// receives Run's result and is then closed.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- tc.Run(ctx, duration)
	}()
	return done
}
