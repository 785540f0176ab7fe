package actions

import (
	"context"
	"fmt"
	"math"

	"github.com/msageha/craftbridge/internal/bulk"
	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/race"
	"github.com/msageha/craftbridge/internal/session"
)

func (e *Executor) attack(_ context.Context, s session.Session, cmd model.Command) error {
	target, ok := s.NearestEntity()
	if !ok {
		return fmt.Errorf("No entity nearby to attack")
	}
	if err := s.Attack(target); err != nil {
		return err
	}
	name := target.Name
	if name == "" {
		name = "entity"
	}
	e.emit(ack(cmd.Kind, map[string]any{"target": name}))
	return nil
}

func blockFields(b model.Block) map[string]any {
	return map[string]any{"block": b.Name, "x": b.Pos.X, "y": b.Pos.Y, "z": b.Pos.Z}
}

func (e *Executor) dig(ctx context.Context, s session.Session, cmd model.Command) error {
	v, err := coords(cmd)
	if err != nil {
		return err
	}
	block, ok := s.BlockAt(v.Floored())
	if !ok || model.IsAir(block.Name) {
		return fmt.Errorf("No block at %s, %s, %s", formatNum(v.X), formatNum(v.Y), formatNum(v.Z))
	}
	if err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.Dig(ctx, block) }); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, blockFields(block)))
	e.emit(model.NewEvent("dig_done", blockFields(block)))
	return nil
}

func (e *Executor) digLookingAt(ctx context.Context, s session.Session, cmd model.Command) error {
	block, ok := s.BlockAtCursor(e.cfg.Movement.DigReach)
	if !ok || model.IsAir(block.Name) {
		return fmt.Errorf("No block in line of sight")
	}
	if err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.Dig(ctx, block) }); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, blockFields(block)))
	return nil
}

// digArea clears a bounded box. It owns the lane until the walk ends, whether it finishes
// or is cancelled.
func (e *Executor) digArea(ctx context.Context, s session.Session, cmd model.Command) error {
	v, err := coords(cmd)
	if err != nil {
		return err
	}
	area := e.cfg.Area
	w := bulk.Clamp(dimension(cmd, "width", area.DefaultWidth), area.MaxWidth)
	h := bulk.Clamp(dimension(cmd, "height", area.DefaultHeight), area.MaxHeight)
	d := bulk.Clamp(dimension(cmd, "depth", area.DefaultDepth), area.MaxDepth)
	targets := bulk.Plan(v.Floored(), w, h, d, area.MaxWidth, area.MaxHeight, area.MaxDepth)

	e.opts.Flag.Clear()
	e.emit(model.Ack(cmd.Kind, fmt.Sprintf("Starting to dig %dx%dx%d area (%d blocks)", w, h, d, len(targets))))

	c := &bulk.Clearer{
		Session:         s,
		Goals:           e.opts.Goals,
		Flag:            e.opts.Flag,
		Emit:            e.emit,
		Logger:          e.logger.Named("bulk"),
		Metrics:         e.metrics,
		Action:          cmd.Kind,
		Reach:           area.Reach,
		ApproachRange:   area.ApproachRange,
		ApproachTimeout: e.timeout(cmd.Kind + ":approach"),
		DigTimeout:      e.timeout(cmd.Kind + ":dig"),
		ProgressEvery:   area.ProgressEvery,
	}
	res := c.Run(ctx, targets)
	if res.State == bulk.Cancelled {
		e.emit(model.NewEvent(model.EventDigAreaCancelled, map[string]any{"processed": res.Processed, "total": res.Total}))
		return nil
	}
	e.emit(model.NewEvent(model.EventDigAreaDone, map[string]any{
		"processed": res.Processed,
		"skipped":   res.Skipped,
		"total":     res.Total,
	}))
	return nil
}

// dimension reads a box size; absent or zero means the default.
func dimension(cmd model.Command, key string, def int) int {
	if v, ok := cmd.Int(key); ok && v != 0 {
		return v
	}
	return def
}

func (e *Executor) findAndDig(ctx context.Context, s session.Session, cmd model.Command) error {
	blockType := cmd.String("block_type")
	if blockType == "" {
		return model.ValidationErrorf("Unknown block type: %s", blockType)
	}
	radius := e.cfg.Movement.SearchRadius
	found := s.FindBlocks(blockType, radius, 1)
	if len(found) == 0 {
		return fmt.Errorf("No %s found within %d blocks", blockType, radius)
	}
	pos := found[0]

	if s.HasPathfinder() {
		err := e.opts.Goals.Await(ctx, s, cmd.Kind, e.timeout(cmd.Kind+":approach"), func() error {
			return s.SetGoal(session.Goal{Kind: session.GoalNear, Pos: pos.Vec(), Range: e.cfg.Movement.GotoRange})
		})
		if err != nil {
			return err
		}
	} else if self, ok := s.Self(); ok {
		if dist := self.Position.DistanceTo(pos.Vec()); dist > e.cfg.Movement.DigReach {
			e.emit(model.ErrorEvent(cmd.Kind, fmt.Sprintf("%s found at (%s) but too far (%d blocks) and no pathfinder",
				blockType, pos, int(math.Round(dist))), model.ErrCodeFailed))
			e.emit(model.NewEvent("find_and_dig_error", map[string]any{"error": blockType + " too far and no pathfinder"}))
			return reportedError{fmt.Errorf("%s out of reach", blockType)}
		}
	}

	done := model.NewEvent("find_and_dig_done", map[string]any{"block": blockType, "x": pos.X, "y": pos.Y, "z": pos.Z})
	block, ok := s.BlockAt(pos)
	if !ok || model.IsAir(block.Name) {
		e.emit(ack(cmd.Kind, map[string]any{"block": blockType, "message": "block already gone"}))
		e.emit(done)
		return nil
	}
	err := e.call(ctx, cmd.Kind+":dig", func(ctx context.Context) error { return s.Dig(ctx, block) })
	if err != nil {
		code := model.CodeOf(err)
		if race.IsTimeout(err) {
			code = model.ErrCodeTimeout
		}
		e.emit(model.ErrorEvent(cmd.Kind, err.Error(), code))
		e.emit(model.NewEvent("find_and_dig_error", map[string]any{"error": err.Error()}))
		return reportedError{err}
	}
	e.emit(ack(cmd.Kind, map[string]any{"block": blockType, "x": pos.X, "y": pos.Y, "z": pos.Z}))
	e.emit(done)
	return nil
}

func (e *Executor) place(ctx context.Context, s session.Session, cmd model.Command) error {
	v, err := coords(cmd)
	if err != nil {
		return err
	}
	faceVec, faceName := placementFace(cmd.Params["face"])
	ref, ok := s.BlockAt(v.Floored())
	if !ok {
		return fmt.Errorf("No reference block at %s, %s, %s", formatNum(v.X), formatNum(v.Y), formatNum(v.Z))
	}
	if err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.PlaceBlock(ctx, ref, faceVec) }); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, map[string]any{"x": v.X, "y": v.Y, "z": v.Z, "face": faceName}))
	return nil
}

// placementFace accepts a face name or an explicit {fx, fy, fz} normal. Anything else is top.
func placementFace(raw any) (model.Vec3, any) {
	switch f := raw.(type) {
	case string:
		return session.FaceVector(session.Face(f)), f
	case map[string]any:
		fx, okx := f["fx"].(float64)
		if okx {
			fy, _ := f["fy"].(float64)
			fz, _ := f["fz"].(float64)
			return model.Vec3{X: fx, Y: fy, Z: fz}, f
		}
	}
	return session.FaceVector(session.FaceTop), string(session.FaceTop)
}

func (e *Executor) activateBlock(ctx context.Context, s session.Session, cmd model.Command) error {
	v, err := coords(cmd)
	if err != nil {
		return err
	}
	block, ok := s.BlockAt(v.Floored())
	if !ok {
		return fmt.Errorf("No block at %s, %s, %s", formatNum(v.X), formatNum(v.Y), formatNum(v.Z))
	}
	if err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.ActivateBlock(ctx, block) }); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, blockFields(block)))
	return nil
}
