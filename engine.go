package slidewin

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// LaunchPolicy selects how a supply fetch is executed.
type LaunchPolicy int

const (
	// Deferred runs the fetch on the consumer's own goroutine, at the
	// moment its result is needed. No true parallelism, same interface.
	Deferred LaunchPolicy = iota
	// Eager runs the fetch concurrently on a background goroutine while
	// the consumer keeps working through the current window.
	Eager
)

func (p LaunchPolicy) String() string {
	switch p {
	case Eager:
		return "eager"
	case Deferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// fetchFunc performs a bounded read from a supply, returning up to n
// elements in source order. Supplies may return fewer (end of stream); the
// engine never retries. ctx is the engine's own context, canceled by
// Close: supplies that perform real I/O (the SQL and remote HTTP supplies)
// thread it through so an in-flight fetch aborts promptly instead of
// blocking Close until it finishes on its own.
type fetchFunc[T any] func(ctx context.Context, n uint32) ([]T, error)

// fetchResult is the one-shot payload an eager background goroutine
// publishes exactly once via the atomic pointer in fetchSlot.
type fetchResult[T any] struct {
	vals []T
	err  error
}

// fetchSlot holds at most one outstanding fetch handle. Under the eager
// policy, result is published by the background goroutine through an
// atomic.Pointer store (the release) and observed by the consumer via Load
// (the acquire); done is closed afterward so a blocking await never spins.
// Under the deferred policy there is no background goroutine at all: fn is
// simply invoked on the consumer's goroutine when awaited.
type fetchSlot[T any] struct {
	policy LaunchPolicy
	fn     func() ([]T, error)
	result atomic.Pointer[fetchResult[T]]
	done   chan struct{}
}

func newFetchSlot[T any](ctx context.Context, policy LaunchPolicy, n uint32, fn fetchFunc[T]) *fetchSlot[T] {
	s := &fetchSlot[T]{
		policy: policy,
		fn:     func() ([]T, error) { return fn(ctx, n) },
	}
	if policy == Eager {
		s.done = make(chan struct{})
		go func() {
			vals, err := s.fn()
			s.result.Store(&fetchResult[T]{vals: vals, err: err})
			close(s.done)
		}()
	}
	return s
}

// ready reports whether a completed result is available without blocking.
// Deferred fetches are never spontaneously ready: they only produce a
// result when explicitly awaited.
func (s *fetchSlot[T]) ready() bool {
	if s == nil || s.policy != Eager {
		return false
	}
	return s.result.Load() != nil
}

// await blocks (if necessary) for the fetch to complete and returns its
// result. Safe to call more than once.
func (s *fetchSlot[T]) await(ctx context.Context) ([]T, error) {
	if s.policy == Eager {
		select {
		case <-s.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		r := s.result.Load()
		return r.vals, r.err
	}
	if r := s.result.Load(); r != nil {
		return r.vals, r.err
	}
	vals, err := s.fn()
	s.result.Store(&fetchResult[T]{vals: vals, err: err})
	return vals, err
}

// engineConfig carries the shared construction parameters for the file and
// SQL sources, in the same spirit as the teacher's StreamerConfig: a plain
// struct whose defaults come from defaultEngineConfig (Deferred, limit of
// the maximum uint32, no-op logger).
type engineConfig struct {
	policy LaunchPolicy
	limit  uint32
	logger zerolog.Logger
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		policy: Deferred,
		limit:  ^uint32(0),
		logger: zerolog.Nop(),
	}
}

// fetchEngine is the async streaming core shared by the file and SQL
// sources (spec §4.2). It owns a growing working buffer, a cursor (start)
// into that buffer marking the window start, and the single outstanding
// fetch slot coordinating consumer and background fetcher.
type fetchEngine[T any] struct {
	windowSize uint32
	limit      uint32
	policy     LaunchPolicy
	log        zerolog.Logger

	buf   []T
	start uint32

	consumed uint32
	refill   fetchFunc[T]

	slot     *fetchSlot[T]
	terminal bool
	termErr  error

	ctx    context.Context
	cancel context.CancelFunc
}

// newFetchEngine constructs the engine and immediately schedules the
// initial fetch (3*windowSize elements), entering the Fetching state. ctx
// and cancel are owned by the engine from this point on: Close calls
// cancel, and initial/refill both observe ctx on every fetch they perform.
// Callers whose supply also launches its own background I/O (the remote
// HTTP supply's chunk downloader) should construct ctx themselves and
// thread the same value into that supply, so Close cancels both.
func newFetchEngine[T any](ctx context.Context, cancel context.CancelFunc, windowSize uint32, cfg engineConfig, initial, refill fetchFunc[T]) *fetchEngine[T] {
	e := &fetchEngine[T]{
		windowSize: windowSize,
		limit:      cfg.limit,
		policy:     cfg.policy,
		log:        cfg.logger,
		buf:        make([]T, 0, 3*int(windowSize)),
		refill:     refill,
		ctx:        ctx,
		cancel:     cancel,
	}
	e.slot = newFetchSlot(ctx, cfg.policy, 3*windowSize, initial)
	e.log.Debug().Str("policy", cfg.policy.String()).Uint32("window_size", windowSize).Msg("scheduled initial fetch")
	return e
}

func (e *fetchEngine[T]) validWindows() uint32 {
	if uint32(len(e.buf)) < e.start {
		return 0
	}
	avail := uint32(len(e.buf)) - e.start
	if avail < e.windowSize {
		return 0
	}
	return avail - e.windowSize + 1
}

func (e *fetchEngine[T]) hasValidWindow() bool { return e.validWindows() > 0 }

// fold drains a completed fetch into the working buffer: it discards the
// consumed prefix [0, start), appends the fetched elements, and resets
// start to 0, so the buffer is always a single contiguous allocation.
func (e *fetchEngine[T]) fold(s *fetchSlot[T]) error {
	vals, err := s.await(e.ctx)
	if err != nil {
		e.terminal = true
		e.termErr = &SupplyFailedError{Cause: errors.Wrap(err, "fetch failed")}
		e.log.Warn().Err(err).Msg("supply fetch failed, source is now terminal")
		return e.termErr
	}

	n := copy(e.buf, e.buf[e.start:])
	e.buf = append(e.buf[:n], vals...)
	e.start = 0
	e.consumed += uint32(len(vals))
	e.slot = nil

	e.log.Debug().Int("fetched", len(vals)).Uint32("consumed", e.consumed).Msg("folded fetch result")
	return nil
}

// check implements the engine's fold()/check() protocol, invoked by every
// public entry point: fold an already-complete eager fetch opportunistically,
// then block-fold if the buffer has dropped below one window and a fetch is
// outstanding, or fail if none is.
func (e *fetchEngine[T]) check() error {
	if e.terminal {
		return e.termErr
	}

	if e.slot != nil && e.slot.ready() {
		if err := e.fold(e.slot); err != nil {
			return err
		}
	}

	if !e.hasValidWindow() {
		if e.slot != nil {
			if err := e.fold(e.slot); err != nil {
				return err
			}
			// A fold can legitimately still leave us short (the supply
			// returned fewer elements than requested, e.g. end of
			// stream); current() and exhausted() report that themselves
			// once check() returns, and after advance() the next check()
			// does, not here.
			return nil
		}
		return ErrSourceExhausted
	}

	return nil
}

// current returns the window slice, after completing any required fold.
func (e *fetchEngine[T]) current() ([]T, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if !e.hasValidWindow() {
		return nil, ErrSourceExhausted
	}
	return e.buf[e.start : e.start+e.windowSize], nil
}

// advance implements the refill trigger: check, then increment start; once
// start reaches windowSize, a refill is scheduled covering the next
// windowSize elements. When the last fold left 3*windowSize elements (the
// initial fetch, or an eager refill folded as soon as start reached
// windowSize), two full windows' worth remain buffered at that point; after
// a deferred refill, which is folded only once fewer than windowSize
// elements remain, the buffer holds 2*windowSize-1 and windowSize-1 remain.
func (e *fetchEngine[T]) advance() error {
	if err := e.check(); err != nil {
		return err
	}

	e.start++

	if e.start == e.windowSize && e.slot == nil {
		e.slot = newFetchSlot(e.ctx, e.policy, e.windowSize, e.refill)
		e.log.Debug().Str("policy", e.policy.String()).Msg("scheduled refill fetch")
	}

	return nil
}

// exhausted reports whether any further full window can be produced, after
// completing any fold that is required to know for sure.
func (e *fetchEngine[T]) exhausted() bool {
	if e.terminal {
		return true
	}
	if err := e.check(); err != nil {
		return true
	}
	return !e.hasValidWindow()
}

// close cancels any in-flight fetch context and joins the background
// goroutine (if any) before returning, so the supply can be torn down
// safely by the caller.
func (e *fetchEngine[T]) close() {
	e.cancel()
	if e.slot != nil && e.slot.policy == Eager {
		<-e.slot.done
	}
}
