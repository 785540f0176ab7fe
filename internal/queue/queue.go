// Package queue serializes exclusive actions while letting immediate ones through.
package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/metrics"
	"github.com/msageha/craftbridge/internal/model"
)

// Runner executes one command to completion. For exclusive commands the queue advances
// when Runner returns; ctx is cancelled when the queue is reset.
type Runner func(ctx context.Context, cmd model.Command)

type Classifier func(kind string) model.Class

type Options struct {
	Classify Classifier
	Run      Runner
	Emit     func(model.Event)
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Queue holds the exclusive lane: at most one exclusive command runs at a time and
// the rest wait in arrival order.
type Queue struct {
	classify Classifier
	run      Runner
	emit     func(model.Event)
	logger   *zap.Logger
	metrics  *metrics.Metrics

	base context.Context

	mu        sync.Mutex
	busy      bool
	pending   []model.Command
	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc

	wg sync.WaitGroup
}

func New(ctx context.Context, opts Options) *Queue {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Emit == nil {
		opts.Emit = func(model.Event) {}
	}
	q := &Queue{
		classify: opts.Classify,
		run:      opts.Run,
		emit:     opts.Emit,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		base:     ctx,
	}
	q.genCtx, q.genCancel = context.WithCancel(ctx)
	return q
}

// Dispatch runs an immediate command synchronously, starts an exclusive command when
// the lane is free, and otherwise queues it and emits a queued acknowledgment.
func (q *Queue) Dispatch(cmd model.Command) {
	if q.classify(cmd.Kind) == model.ClassImmediate {
		q.mu.Lock()
		ctx := q.genCtx
		q.mu.Unlock()
		q.runImmediate(ctx, cmd)
		return
	}

	q.mu.Lock()
	if q.busy {
		q.pending = append(q.pending, cmd)
		depth := len(q.pending)
		q.metrics.SetQueue(depth, true)
		// Emitted under the lock so it always precedes the command's own output.
		q.emit(model.Queued(cmd.Kind, depth))
		q.mu.Unlock()
		q.logger.Debug("queued", zap.String("kind", cmd.Kind), zap.String("command_id", cmd.ID), zap.Int("queue_length", depth))
		return
	}
	q.busy = true
	gen, ctx := q.gen, q.genCtx
	q.metrics.SetQueue(0, true)
	q.mu.Unlock()

	q.start(ctx, gen, cmd)
}

func (q *Queue) runImmediate(ctx context.Context, cmd model.Command) {
	defer q.recoverPanic(cmd)
	q.run(ctx, cmd)
}

func (q *Queue) start(ctx context.Context, gen uint64, cmd model.Command) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer q.complete(gen)
		defer q.recoverPanic(cmd)
		q.run(ctx, cmd)
	}()
}

func (q *Queue) recoverPanic(cmd model.Command) {
	if r := recover(); r != nil {
		q.logger.Error("action panicked", zap.String("kind", cmd.Kind), zap.String("command_id", cmd.ID), zap.Any("panic", r))
		q.emit(model.ErrorEvent(cmd.Kind, fmt.Sprintf("internal error: %v", r), model.ErrCodeFailed))
	}
}

// complete frees the lane and starts the next pending command. Completions from a
// generation that has since been reset are ignored.
func (q *Queue) complete(gen uint64) {
	q.mu.Lock()
	if gen != q.gen {
		q.mu.Unlock()
		q.logger.Debug("ignored stale completion", zap.Uint64("generation", gen))
		return
	}
	q.busy = false
	if len(q.pending) == 0 {
		q.metrics.SetQueue(0, false)
		q.mu.Unlock()
		return
	}
	next := q.pending[0]
	q.pending[0] = model.Command{}
	q.pending = q.pending[1:]
	q.busy = true
	ctx := q.genCtx
	q.metrics.SetQueue(len(q.pending), true)
	q.mu.Unlock()

	q.start(ctx, gen, next)
}

// Reset drops every pending command and frees the lane. The running action's context is
// cancelled and its eventual completion ignored. Returns the number of discarded commands.
func (q *Queue) Reset() int {
	q.mu.Lock()
	dropped := len(q.pending)
	q.pending = nil
	q.busy = false
	q.gen++
	q.genCancel()
	q.genCtx, q.genCancel = context.WithCancel(q.base)
	q.metrics.SetQueue(0, false)
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Info("queue reset", zap.Int("discarded", dropped))
	}
	return dropped
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.busy
}

// Wait blocks until every started exclusive action has returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}
