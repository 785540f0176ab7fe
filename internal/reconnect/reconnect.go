// Package reconnect owns the session lifecycle after the first dial: disconnect cleanup,
// fatal/retryable classification and exponential backoff between attempts.
package reconnect

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/metrics"
	"github.com/msageha/craftbridge/internal/model"
)

// Exit codes passed to Options.Exit.
const (
	ExitFatal = 1
)

// Backoff returns min(base * 2^(attempt-1), cap) for attempt >= 1.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= cap || d > cap/2 {
			return cap
		}
		d *= 2
	}
	if d > cap {
		return cap
	}
	return d
}

// IsFatal reports whether reason matches one of patterns, case-insensitively.
func IsFatal(reason string, patterns []string) bool {
	lower := strings.ToLower(reason)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Dialer establishes a new session tagged with gen. A returned error counts as a failed
// attempt. Readiness is reported separately through Controller.Ready.
type Dialer func(ctx context.Context, gen uint64) error

type Options struct {
	MaxAttempts   int
	Base          time.Duration
	Cap           time.Duration
	FatalPatterns []string

	Dial Dialer
	// Cleanup runs once per ended session, before the reconnect decision.
	Cleanup func()
	// Exit terminates the process. It is called at most once.
	Exit func(code int)
	Emit func(model.Event)

	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// AfterFunc schedules f after d and returns a stop function. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) (stop func() bool)
}

type Status struct {
	State        model.SessionState `json:"state"`
	Attempt      int                `json:"attempt"`
	Reconnecting bool               `json:"reconnecting"`
	Generation   uint64             `json:"generation"`
}

// Controller is the only writer of the attempt counter and the reconnecting flag.
type Controller struct {
	opts   Options
	logger *zap.Logger

	mu           sync.Mutex
	ctx          context.Context
	state        model.SessionState
	attempt      int
	reconnecting bool
	gen          uint64
	endedGen     uint64
	stopTimer    func() bool
}

func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emit == nil {
		opts.Emit = func(model.Event) {}
	}
	if opts.Cleanup == nil {
		opts.Cleanup = func() {}
	}
	if opts.Exit == nil {
		opts.Exit = func(int) {}
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	return &Controller{
		opts:   opts,
		logger: opts.Logger,
		state:  model.SessionDisconnected,
		ctx:    context.Background(),
	}
}

// Start performs the first dial. A failure enters the same backoff path as a disconnect.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.state = model.SessionConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.dial(gen)
}

func (c *Controller) dial(gen uint64) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	c.logger.Info("connecting", zap.Uint64("generation", gen))
	if err := c.opts.Dial(ctx, gen); err != nil {
		c.logger.Warn("connect failed", zap.Uint64("generation", gen), zap.Error(err))
		c.failed(gen, err.Error())
	}
}

// Ready marks session gen as established and resets the retry state.
func (c *Controller) Ready(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.endedGen == gen || c.state == model.SessionTerminated {
		c.mu.Unlock()
		return
	}
	c.transition(model.SessionConnected)
	prev := c.attempt
	c.attempt = 0
	c.reconnecting = false
	c.mu.Unlock()

	c.opts.Metrics.ResetReconnect()
	c.opts.Metrics.SetSessionUp(true)
	if prev > 0 {
		c.logger.Info("reconnected", zap.Int("attempts", prev), zap.Uint64("generation", gen))
	}
}

// SessionEnded handles the end of session gen. Stale or repeated signals are ignored.
func (c *Controller) SessionEnded(gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.gen || c.endedGen == gen || c.state == model.SessionTerminated {
		c.mu.Unlock()
		return
	}
	c.endedGen = gen
	c.transition(model.SessionDisconnected)
	c.mu.Unlock()

	c.opts.Metrics.SetSessionUp(false)
	c.logger.Info("session ended", zap.Uint64("generation", gen), zap.String("reason", reason))
	c.opts.Cleanup()

	if IsFatal(reason, c.opts.FatalPatterns) {
		c.logger.Error("fatal disconnect, not retrying", zap.String("reason", reason))
		c.opts.Emit(model.ErrorEvent("", fmt.Sprintf("Fatal disconnect: %s", reason), model.ErrCodeFatalDisconnect))
		c.terminate(ExitFatal)
		return
	}
	c.scheduleRetry()
}

// failed handles a dial that never produced a session; there is nothing to clean up.
func (c *Controller) failed(gen uint64, reason string) {
	c.mu.Lock()
	if gen != c.gen || c.endedGen == gen || c.state == model.SessionTerminated {
		c.mu.Unlock()
		return
	}
	c.endedGen = gen
	c.transition(model.SessionDisconnected)
	c.mu.Unlock()

	if IsFatal(reason, c.opts.FatalPatterns) {
		c.opts.Emit(model.ErrorEvent("", fmt.Sprintf("Fatal disconnect: %s", reason), model.ErrCodeFatalDisconnect))
		c.terminate(ExitFatal)
		return
	}
	c.scheduleRetry()
}

func (c *Controller) scheduleRetry() {
	c.mu.Lock()
	if c.state != model.SessionDisconnected {
		// Terminated, or a retry is already pending.
		c.mu.Unlock()
		return
	}
	c.attempt++
	attempt := c.attempt
	if attempt > c.opts.MaxAttempts {
		c.mu.Unlock()
		msg := fmt.Sprintf("Failed to reconnect after %d attempts", c.opts.MaxAttempts)
		c.logger.Error("reconnect attempts exhausted", zap.Int("max_attempts", c.opts.MaxAttempts))
		c.opts.Emit(model.ErrorEvent("", msg, model.ErrCodeReconnectExhausted))
		c.terminate(ExitFatal)
		return
	}
	delay := Backoff(attempt, c.opts.Base, c.opts.Cap)
	c.reconnecting = true
	c.transition(model.SessionBackoff)
	// Emitted under the lock so the notification precedes the attempt it announces.
	c.opts.Emit(model.NewEvent(model.EventReconnecting, map[string]any{
		"attempt":    attempt,
		"backoff_ms": delay.Milliseconds(),
	}))
	c.stopTimer = c.opts.AfterFunc(delay, c.redial)
	c.mu.Unlock()

	c.opts.Metrics.RecordReconnectAttempt(attempt)
	c.logger.Info("reconnect scheduled", zap.Int("attempt", attempt), zap.Duration("backoff", delay))
}

func (c *Controller) redial() {
	c.mu.Lock()
	if c.state != model.SessionBackoff {
		c.mu.Unlock()
		return
	}
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.stopTimer = nil
	c.transition(model.SessionConnecting)
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.dial(gen)
}

func (c *Controller) terminate(code int) {
	c.mu.Lock()
	if c.state == model.SessionTerminated {
		c.mu.Unlock()
		return
	}
	c.transition(model.SessionTerminated)
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	c.mu.Unlock()
	c.opts.Metrics.SetSessionUp(false)
	c.opts.Exit(code)
}

// Stop ends the lifecycle without exiting, cancelling any pending retry.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == model.SessionTerminated {
		return
	}
	c.transition(model.SessionTerminated)
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
}

// transition must be called with mu held.
func (c *Controller) transition(to model.SessionState) {
	if err := model.ValidateSessionTransition(c.state, to); err != nil {
		c.logger.Debug("unexpected session transition", zap.Error(err))
	}
	c.state = to
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, Attempt: c.attempt, Reconnecting: c.reconnecting, Generation: c.gen}
}

// Current returns the generation of the newest session.
func (c *Controller) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}
