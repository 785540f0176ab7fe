// Package goal turns the session's one-shot "goal reached" notification into a
// deadline-bounded wait that resolves exactly once.
package goal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/metrics"
	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/race"
	"github.com/msageha/craftbridge/internal/session"
)

var (
	// ErrTimedOut wraps a goal deadline. The timeout has already been reported on the wire.
	ErrTimedOut  = errors.New("goal timed out")
	ErrCancelled = errors.New("goal wait cancelled")
)

// Source is the slice of a session the waiter needs.
type Source interface {
	SubscribeGoalReached() session.Subscription
	ClearGoal() error
}

type Outcome int32

const (
	Pending Outcome = iota
	Reached
	TimedOut
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Reached:
		return "reached"
	case TimedOut:
		return "timeout"
	case Cancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Registry tracks every unresolved handle so they can be force-resolved together.
type Registry struct {
	mu      sync.Mutex
	handles map[uint64]*Handle
	nextID  uint64

	emit    func(model.Event)
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewRegistry(emit func(model.Event), logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emit == nil {
		emit = func(model.Event) {}
	}
	return &Registry{
		handles: make(map[uint64]*Handle),
		emit:    emit,
		logger:  logger,
		metrics: m,
	}
}

// Handle is one outstanding wait.
type Handle struct {
	id       uint64
	reg      *Registry
	src      Source
	action   string
	deadline time.Duration

	resolved atomic.Bool
	outcome  atomic.Int32
	done     chan struct{}

	mu    sync.Mutex
	sub   session.Subscription
	timer *time.Timer

	onReached func()
	onTimeout func()
}

// Wait registers interest in the next goal-reached notification from src.
// Exactly one of onReached (notification first) or onTimeout (deadline first) runs,
// unless the handle is cancelled, in which case neither runs. Either callback may be nil.
// action names the command for the timeout diagnostic.
func (r *Registry) Wait(src Source, action string, deadline time.Duration, onReached, onTimeout func()) *Handle {
	h := &Handle{
		reg:       r,
		src:       src,
		action:    action,
		deadline:  deadline,
		done:      make(chan struct{}),
		onReached: onReached,
		onTimeout: onTimeout,
	}

	r.mu.Lock()
	r.nextID++
	h.id = r.nextID
	r.handles[h.id] = h
	r.mu.Unlock()

	sub := src.SubscribeGoalReached()
	h.mu.Lock()
	h.sub = sub
	h.timer = time.AfterFunc(deadline, h.expire)
	h.mu.Unlock()

	// Cancelled between registration and arming.
	if h.resolved.Load() {
		h.release()
	}

	go h.watch(sub.C)
	return h
}

func (h *Handle) watch(reached <-chan struct{}) {
	select {
	case <-reached:
		h.fire()
	case <-h.done:
	}
}

// resolve is the single transition out of Pending. Only the first caller wins.
func (h *Handle) resolve(o Outcome) bool {
	if !h.resolved.CompareAndSwap(false, true) {
		return false
	}
	h.outcome.Store(int32(o))
	h.release()
	close(h.done)
	h.reg.metrics.RecordGoalWait(o.String())
	return true
}

// release unsubscribes, stops the timer and drops the handle from the registry.
// Safe to call more than once.
func (h *Handle) release() {
	h.mu.Lock()
	if h.sub.Unsubscribe != nil {
		h.sub.Unsubscribe()
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()

	h.reg.mu.Lock()
	delete(h.reg.handles, h.id)
	h.reg.mu.Unlock()
}

func (h *Handle) fire() {
	if !h.resolve(Reached) {
		return
	}
	if h.onReached != nil {
		h.onReached()
	}
}

func (h *Handle) expire() {
	if !h.resolve(TimedOut) {
		return
	}
	ignoreFailure(h.reg.logger, "clear goal", h.src.ClearGoal)
	if h.onTimeout != nil {
		h.onTimeout()
	}
	msg := (&race.TimeoutError{Label: "Pathfinding", After: h.deadline}).Error()
	h.reg.logger.Warn("goal wait timed out", zap.String("action", h.action), zap.Duration("deadline", h.deadline))
	h.reg.emit(model.ErrorEvent(h.action, msg, model.ErrCodeTimeout))
}

// Cancel resolves the handle without invoking either callback.
func (h *Handle) Cancel() {
	h.resolve(Cancelled)
}

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Outcome() Outcome { return Outcome(h.outcome.Load()) }

// CancelAll force-resolves every outstanding handle and returns how many it resolved.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	n := 0
	for _, h := range handles {
		if h.resolve(Cancelled) {
			n++
		}
	}
	if n > 0 {
		r.logger.Debug("cancelled outstanding goal waits", zap.Int("count", n))
	}
	return n
}

func (r *Registry) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Await subscribes, then calls start (typically SetGoal) so a fast notification cannot be
// missed, and blocks until the goal is reached, the deadline passes, the handle is
// cancelled or ctx ends. A timeout returns an error wrapping ErrTimedOut; the diagnostic
// event has already been emitted by then. start may be nil.
func (r *Registry) Await(ctx context.Context, src Source, action string, deadline time.Duration, start func() error) error {
	h := r.Wait(src, action, deadline, nil, nil)
	if start != nil {
		if err := start(); err != nil {
			h.Cancel()
			return err
		}
	}
	select {
	case <-h.Done():
	case <-ctx.Done():
		h.Cancel()
		<-h.Done()
		if h.Outcome() == Cancelled {
			return ctx.Err()
		}
	}
	switch h.Outcome() {
	case Reached:
		return nil
	case TimedOut:
		return fmt.Errorf("%w: %w", ErrTimedOut, &race.TimeoutError{Label: "Pathfinding", After: deadline})
	default:
		return ErrCancelled
	}
}

func ignoreFailure(logger *zap.Logger, label string, fn func() error) {
	if err := fn(); err != nil {
		logger.Debug("ignored cleanup failure", zap.String("op", label), zap.Error(err))
	}
}
