// Package bulk clears a box of blocks one target at a time, with cooperative
// cancellation checked between targets.
package bulk

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/goal"
	"github.com/msageha/craftbridge/internal/metrics"
	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/race"
	"github.com/msageha/craftbridge/internal/session"
)

// Flag is the process-wide cancellation request for the running area clear.
type Flag struct {
	v atomic.Bool
}

func (f *Flag) Set()        { f.v.Store(true) }
func (f *Flag) Clear()      { f.v.Store(false) }
func (f *Flag) IsSet() bool { return f.v.Load() }

// Plan lists the box's targets top layer first, then by x, then by z.
// Dimensions are clamped to [1, max].
func Plan(origin model.BlockPos, width, height, depth, maxWidth, maxHeight, maxDepth int) []model.BlockPos {
	w := Clamp(width, maxWidth)
	h := Clamp(height, maxHeight)
	d := Clamp(depth, maxDepth)
	targets := make([]model.BlockPos, 0, w*h*d)
	for dy := h - 1; dy >= 0; dy-- {
		for dx := 0; dx < w; dx++ {
			for dz := 0; dz < d; dz++ {
				targets = append(targets, origin.Offset(dx, dy, dz))
			}
		}
	}
	return targets
}

// Clamp bounds one box dimension to [1, hi].
func Clamp(v, hi int) int {
	if v < 1 {
		return 1
	}
	if v > hi {
		return hi
	}
	return v
}

// Session is what the walk needs from the game session.
type Session interface {
	goal.Source
	Self() (model.Entity, bool)
	BlockAt(p model.BlockPos) (model.Block, bool)
	HasPathfinder() bool
	SetGoal(g session.Goal) error
	Dig(ctx context.Context, b model.Block) error
}

type State int

const (
	Running State = iota
	Cancelled
	Done
)

type Result struct {
	State     State
	Processed int
	Skipped   int
	Total     int
}

type Clearer struct {
	Session Session
	Goals   *goal.Registry
	Flag    *Flag
	Emit    func(model.Event)
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	Action          string
	Reach           float64
	ApproachRange   int
	ApproachTimeout time.Duration
	DigTimeout      time.Duration
	ProgressEvery   int
}

// Run walks targets in order. A target that is already air is skipped; otherwise the bot
// approaches when out of reach (best effort) and digs it (failures are logged). After
// every target the cancellation flag and ctx are checked.
func (c *Clearer) Run(ctx context.Context, targets []model.BlockPos) Result {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	res := Result{State: Running, Total: len(targets)}

	for cursor := 0; cursor < len(targets); cursor++ {
		if c.step(ctx, logger, targets[cursor]) {
			res.Processed++
		} else {
			res.Skipped++
		}

		if c.ProgressEvery > 0 && (cursor+1)%c.ProgressEvery == 0 {
			c.Emit(model.Ack(c.Action, fmt.Sprintf("Progress: %d/%d blocks", cursor+1, len(targets))))
		}

		if c.Flag.IsSet() || ctx.Err() != nil {
			res.State = Cancelled
			return res
		}
	}
	res.State = Done
	return res
}

// step handles one target and reports whether it needed clearing.
func (c *Clearer) step(ctx context.Context, logger *zap.Logger, pos model.BlockPos) bool {
	block, ok := c.Session.BlockAt(pos)
	if !ok || model.IsAir(block.Name) {
		c.Metrics.RecordAreaBlock("skipped")
		return false
	}

	if self, ok := c.Session.Self(); ok && self.Position.DistanceTo(pos.Vec()) > c.Reach && c.Session.HasPathfinder() {
		if err := c.approach(ctx, pos); err != nil {
			logger.Info("approach failed, digging anyway",
				zap.String("pos", pos.String()), zap.Error(err))
		}
	}

	current, ok := c.Session.BlockAt(pos)
	if !ok || model.IsAir(current.Name) {
		c.Metrics.RecordAreaBlock("dug")
		return true
	}
	err := race.Do(ctx, c.DigTimeout, c.Action+":dig", func(ctx context.Context) error {
		return c.Session.Dig(ctx, current)
	})
	if err != nil {
		logger.Warn("dig failed", zap.String("pos", pos.String()), zap.String("block", current.Name), zap.Error(err))
		c.Metrics.RecordAreaBlock("failed")
		return true
	}
	c.Metrics.RecordAreaBlock("dug")
	return true
}

func (c *Clearer) approach(ctx context.Context, pos model.BlockPos) error {
	return c.Goals.Await(ctx, c.Session, c.Action, c.ApproachTimeout, func() error {
		return c.Session.SetGoal(session.Goal{Kind: session.GoalNear, Pos: pos.Vec(), Range: c.ApproachRange})
	})
}
