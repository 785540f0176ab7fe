// Package actions holds the dispatch table: every command kind the bridge understands,
// its classification, and its implementation against the game session.
package actions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/msageha/craftbridge/internal/bulk"
	"github.com/msageha/craftbridge/internal/goal"
	"github.com/msageha/craftbridge/internal/metrics"
	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/race"
	"github.com/msageha/craftbridge/internal/session"
)

// Lane is the exclusive queue as seen by the actions that inspect or reset it.
type Lane interface {
	Reset() int
	Len() int
	Busy() bool
}

// LinkStatus is the reconnection state reported by status.
type LinkStatus struct {
	State        model.SessionState
	Reconnecting bool
	Attempt      int
	SessionID    string
}

type Options struct {
	Config model.Config
	// Session returns the live session, or nil while none is established.
	Session func() session.Session
	Link    func() LinkStatus
	Goals   *goal.Registry
	Flag    *bulk.Flag
	Emit    func(model.Event)
	// Quit asks the process to exit 0.
	Quit    func()
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// unknownKind labels metrics for kinds outside the table so typos cannot grow label sets.
const unknownKind = "unknown"

type handler func(ctx context.Context, s session.Session, cmd model.Command) error

type entry struct {
	class model.Class
	run   handler
	// offline marks kinds accepted while no session is established.
	offline bool
}

// Executor runs commands. It is the queue's Runner and Classifier.
type Executor struct {
	cfg     model.Config
	opts    Options
	table   map[string]entry
	chat    *rate.Limiter
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	lane      Lane
	moveTimer *time.Timer
}

// NewExecutor creates a new Executor with the full dispatch table.
func NewExecutor(opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emit == nil {
		opts.Emit = func(model.Event) {}
	}
	if opts.Session == nil {
		opts.Session = func() session.Session { return nil }
	}
	if opts.Link == nil {
		opts.Link = func() LinkStatus { return LinkStatus{} }
	}
	if opts.Quit == nil {
		opts.Quit = func() {}
	}
	if opts.Flag == nil {
		opts.Flag = &bulk.Flag{}
	}
	if opts.Goals == nil {
		opts.Goals = goal.NewRegistry(opts.Emit, opts.Logger, opts.Metrics)
	}
	e := &Executor{
		cfg:     opts.Config,
		opts:    opts,
		chat:    rate.NewLimiter(rate.Limit(opts.Config.Chat.RatePerSecond), opts.Config.Chat.Burst),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	e.table = e.buildTable()
	return e
}

func (e *Executor) buildTable() map[string]entry {
	imm := func(h handler) entry { return entry{class: model.ClassImmediate, run: h} }
	exc := func(h handler) entry { return entry{class: model.ClassExclusive, run: h} }
	offline := func(en entry) entry { en.offline = true; return en }

	return map[string]entry{
		"chat":      imm(e.chatCmd),
		"whisper":   imm(e.whisper),
		"position":  imm(e.position),
		"inventory": imm(e.inventory),
		"players":   imm(e.players),
		"look":      imm(e.look),
		"jump":      imm(e.jump),
		"sneak":     imm(e.sneak),
		"survey":    imm(e.survey),
		"follow":    imm(e.follow),
		"status":    offline(imm(e.status)),
		"stop":      offline(imm(e.stop)),
		"quit":      offline(imm(e.quit)),
		"cancel":    offline(imm(e.cancel)),

		"move":            exc(e.move),
		"goto":            exc(e.gotoCmd),
		"attack":          exc(e.attack),
		"dig":             exc(e.dig),
		"dig_looking_at":  exc(e.digLookingAt),
		"dig_area":        exc(e.digArea),
		"find_and_dig":    exc(e.findAndDig),
		"place":           exc(e.place),
		"activate_block":  exc(e.activateBlock),
		"equip":           exc(e.equip),
		"craft":           exc(e.craft),
		"drop":            exc(e.drop),
		"drop_item":       exc(e.dropItem),
		"drop_all":        exc(e.dropAll),
		"use_item":        exc(e.useItem),
		"deactivate_item": exc(e.deactivateItem),
		"sleep":           exc(e.sleep),
		"wake":            exc(e.wake),
	}
}

// SetLane wires the queue. It must be called before any command is dispatched.
func (e *Executor) SetLane(l Lane) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lane = l
}

func (e *Executor) laneRef() Lane {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lane
}

// Classify tags a kind. Unknown kinds are exclusive so their error still passes
// through the lane in arrival order.
func (e *Executor) Classify(kind string) model.Class {
	if en, ok := e.table[kind]; ok {
		return en.class
	}
	return model.ClassExclusive
}

func (e *Executor) Known(kind string) bool {
	_, ok := e.table[kind]
	return ok
}

// Admit rejects a command that cannot run without a session while none is established.
// It reports whether the command should be dispatched.
func (e *Executor) Admit(cmd model.Command) bool {
	if en, ok := e.table[cmd.Kind]; ok && en.offline {
		return true
	}
	if e.opts.Session() != nil {
		return true
	}
	kind := cmd.Kind
	if !e.Known(kind) {
		kind = unknownKind
	}
	e.metrics.RecordAction(kind, metrics.OutcomeRejected)
	e.emit(model.ErrorEvent(cmd.Kind, session.ErrNotConnected.Error(), model.ErrCodeNotConnected))
	return false
}

// Run executes cmd to completion and reports any failure on the wire.
func (e *Executor) Run(ctx context.Context, cmd model.Command) {
	en, ok := e.table[cmd.Kind]
	if !ok {
		e.metrics.RecordAction(unknownKind, metrics.OutcomeUnknown)
		e.emit(model.ErrorEvent(cmd.Kind, fmt.Sprintf("Unknown action: %s", cmd.Kind), model.ErrCodeUnknownCommand))
		return
	}
	s := e.opts.Session()
	if s == nil && !en.offline {
		e.metrics.RecordAction(cmd.Kind, metrics.OutcomeRejected)
		e.emit(model.ErrorEvent(cmd.Kind, session.ErrNotConnected.Error(), model.ErrCodeNotConnected))
		return
	}

	logger := e.logger.With(zap.String("kind", cmd.Kind), zap.String("command_id", cmd.ID))
	logger.Debug("action start", zap.Stringer("class", en.class))
	err := en.run(ctx, s, cmd)
	e.finish(ctx, logger, cmd, err)
}

// reportedError marks a failure whose error event the handler already emitted.
type reportedError struct{ error }

func (r reportedError) Unwrap() error { return r.error }

func (e *Executor) finish(ctx context.Context, logger *zap.Logger, cmd model.Command, err error) {
	var reported reportedError
	switch {
	case err == nil:
		e.metrics.RecordAction(cmd.Kind, metrics.OutcomeOK)
		logger.Debug("action done")
	case errors.Is(err, goal.ErrTimedOut):
		// The goal registry has already reported the timeout.
		e.metrics.RecordAction(cmd.Kind, metrics.OutcomeTimeout)
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, goal.ErrCancelled)):
		e.metrics.RecordAction(cmd.Kind, metrics.OutcomeCancelled)
		logger.Debug("action abandoned after reset", zap.Error(err))
	case errors.As(err, &reported):
		e.metrics.RecordAction(cmd.Kind, metrics.OutcomeError)
		logger.Info("action failed", zap.Error(err))
	case errors.Is(err, goal.ErrCancelled):
		e.metrics.RecordAction(cmd.Kind, metrics.OutcomeCancelled)
		e.emit(model.ErrorEvent(cmd.Kind, fmt.Sprintf("%s cancelled", cmd.Kind), model.ErrCodeCancelled))
	case race.IsTimeout(err):
		e.metrics.RecordAction(cmd.Kind, metrics.OutcomeTimeout)
		logger.Warn("action timed out", zap.Error(err))
		e.emit(model.ErrorEvent(cmd.Kind, err.Error(), model.ErrCodeTimeout))
	default:
		e.metrics.RecordAction(cmd.Kind, metrics.OutcomeError)
		logger.Info("action failed", zap.Error(err))
		e.emit(model.ErrorEvent(cmd.Kind, err.Error(), model.CodeOf(err)))
	}
}

func (e *Executor) emit(ev model.Event) { e.opts.Emit(ev) }

func (e *Executor) timeout(label string) time.Duration {
	return e.cfg.Timeouts.For(label)
}

// call runs a session operation under the label's deadline.
func (e *Executor) call(ctx context.Context, label string, op func(context.Context) error) error {
	return race.Do(ctx, e.timeout(label), label, op)
}

func (e *Executor) ignoreFailure(label string, fn func() error) {
	if err := fn(); err != nil {
		e.logger.Debug("ignored cleanup failure", zap.String("op", label), zap.Error(err))
	}
}

func coords(cmd model.Command) (model.Vec3, error) {
	v, err := cmd.Coords()
	if err != nil {
		return model.Vec3{}, model.WrapError(model.ErrCodeValidation, err)
	}
	return v, nil
}

func ack(kind string, fields map[string]any) model.Event {
	ev := model.Ack(kind, "")
	for k, v := range fields {
		ev = ev.With(k, v)
	}
	return ev
}
