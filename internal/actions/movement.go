package actions

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
)

func (e *Executor) move(ctx context.Context, s session.Session, cmd model.Command) error {
	target, err := coords(cmd)
	if err != nil {
		return err
	}
	if !s.HasPathfinder() {
		return e.walkToward(ctx, s, cmd.Kind, target, e.cfg.Movement.FallbackMove.Duration(), nil)
	}
	err = e.opts.Goals.Await(ctx, s, cmd.Kind, e.timeout("goal"), func() error {
		if err := s.SetGoal(session.Goal{Kind: session.GoalBlock, Pos: target}); err != nil {
			return err
		}
		e.emit(ack(cmd.Kind, nil))
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(model.NewEvent("move_done", map[string]any{"x": target.X, "y": target.Y, "z": target.Z}))
	return nil
}

func (e *Executor) gotoCmd(ctx context.Context, s session.Session, cmd model.Command) error {
	var dest model.Vec3
	name := cmd.String("target")
	if name != "" {
		p, ok := visiblePlayer(s, name)
		if !ok {
			return fmt.Errorf("Player %s not found or not visible", name)
		}
		dest = *p.Position
	} else {
		v, err := coords(cmd)
		if err != nil {
			return err
		}
		dest = v
	}
	label := name
	if label == "" {
		label = fmt.Sprintf("%s,%s,%s", formatNum(dest.X), formatNum(dest.Y), formatNum(dest.Z))
	}
	ackEv := ack(cmd.Kind, map[string]any{"target": label})

	if !s.HasPathfinder() {
		return e.walkToward(ctx, s, cmd.Kind, dest, e.cfg.Movement.FallbackGoto.Duration(), map[string]any{"target": label})
	}
	err := e.opts.Goals.Await(ctx, s, cmd.Kind, e.timeout("goal"), func() error {
		if err := s.SetGoal(session.Goal{Kind: session.GoalNear, Pos: dest, Range: e.cfg.Movement.GotoRange}); err != nil {
			return err
		}
		e.emit(ackEv)
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(model.NewEvent("goto_done", map[string]any{"x": dest.X, "y": dest.Y, "z": dest.Z}))
	return nil
}

// walkToward faces target and holds forward for d, the movement used without a pathfinder.
func (e *Executor) walkToward(ctx context.Context, s session.Session, kind string, target model.Vec3, d time.Duration, ackFields map[string]any) error {
	e.startWalking(s, target)
	e.emit(ack(kind, ackFields))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
	e.ignoreFailure("clear controls", s.ClearControls)
	return ctx.Err()
}

func (e *Executor) startWalking(s session.Session, target model.Vec3) {
	if self, ok := s.Self(); ok {
		dx := target.X - self.Position.X
		dz := target.Z - self.Position.Z
		e.ignoreFailure("look", func() error { return s.Look(math.Atan2(-dx, dz), 0) })
	}
	e.ignoreFailure("forward", func() error { return s.SetControl(session.ControlForward, true) })
}

// follow sets a continuous goal and returns at once; stop ends it.
func (e *Executor) follow(_ context.Context, s session.Session, cmd model.Command) error {
	name := cmd.String("target")
	p, ok := visiblePlayer(s, name)
	if !ok {
		return fmt.Errorf("Player %s not found or not visible", name)
	}
	if s.HasPathfinder() {
		dist := cmd.IntOr("distance", 0)
		if dist <= 0 {
			dist = e.cfg.Movement.FollowDistance
		}
		if err := s.SetGoal(session.Goal{Kind: session.GoalFollow, Target: name, Pos: *p.Position, Range: dist}); err != nil {
			return err
		}
	} else {
		e.startWalking(s, *p.Position)
		e.afterMove(e.cfg.Movement.FallbackMove.Duration(), func() {
			e.ignoreFailure("clear controls", s.ClearControls)
		})
	}
	e.emit(ack(cmd.Kind, map[string]any{"target": name}))
	return nil
}

// afterMove replaces the pending fallback-movement timer.
func (e *Executor) afterMove(d time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.moveTimer != nil {
		e.moveTimer.Stop()
	}
	e.moveTimer = time.AfterFunc(d, fn)
}

func (e *Executor) stopMoveTimer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.moveTimer != nil {
		e.moveTimer.Stop()
		e.moveTimer = nil
	}
}

func (e *Executor) look(_ context.Context, s session.Session, cmd model.Command) error {
	if err := s.Look(cmd.NumberOr("yaw", 0), cmd.NumberOr("pitch", 0)); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, nil))
	return nil
}

func (e *Executor) jump(_ context.Context, s session.Session, cmd model.Command) error {
	if err := s.SetControl(session.ControlJump, true); err != nil {
		return err
	}
	time.AfterFunc(e.cfg.Movement.JumpPulse.Duration(), func() {
		e.ignoreFailure("release jump", func() error { return s.SetControl(session.ControlJump, false) })
	})
	e.emit(ack(cmd.Kind, nil))
	return nil
}

func (e *Executor) sneak(_ context.Context, s session.Session, cmd model.Command) error {
	on := true
	if v, ok := cmd.Params["enabled"].(bool); ok {
		on = v
	}
	if err := s.SetControl(session.ControlSneak, on); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, nil))
	return nil
}

// stop abandons everything in flight: goal waits, pathing, digging, controls, the area
// clear and the whole exclusive lane.
func (e *Executor) stop(_ context.Context, s session.Session, cmd model.Command) error {
	// The lane goes first so a goal wait released below finishes as abandoned and
	// cannot start the next queued command.
	e.opts.Flag.Set()
	dropped := 0
	if lane := e.laneRef(); lane != nil {
		dropped = lane.Reset()
	}
	cancelled := e.opts.Goals.CancelAll()
	if s != nil {
		e.ignoreFailure("stop pathing", s.StopPathing)
		e.ignoreFailure("stop digging", s.StopDigging)
		e.ignoreFailure("clear controls", s.ClearControls)
	}
	e.stopMoveTimer()
	e.logger.Info("stopped", zap.Int("goals_cancelled", cancelled), zap.Int("queue_dropped", dropped))
	e.emit(model.NewEvent(model.EventStopped, nil))
	return nil
}

// cancel requests the running area clear to end at its next step boundary and releases
// outstanding goal waits. The lane itself is left alone.
func (e *Executor) cancel(_ context.Context, _ session.Session, cmd model.Command) error {
	e.opts.Flag.Set()
	n := e.opts.Goals.CancelAll()
	e.logger.Info("cancel requested", zap.Int("goals_cancelled", n))
	e.emit(ack(cmd.Kind, nil))
	return nil
}

func visiblePlayer(s session.Session, name string) (model.Player, bool) {
	if name == "" {
		return model.Player{}, false
	}
	for _, p := range s.Players() {
		if p.Username == name && p.Position != nil {
			return p, true
		}
	}
	return model.Player{}, false
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
