package actions

import (
	"context"
	"fmt"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
)

const defaultSurveyRange = 16

func (e *Executor) chatCmd(_ context.Context, s session.Session, cmd model.Command) error {
	if !e.chat.Allow() {
		return model.Errorf(model.ErrCodeRateLimited, "chat rate limit exceeded")
	}
	if err := s.Chat(cmd.String("message")); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, nil))
	return nil
}

func (e *Executor) whisper(_ context.Context, s session.Session, cmd model.Command) error {
	target := cmd.String("target")
	if target == "" {
		return model.ValidationErrorf("whisper needs a target")
	}
	if !e.chat.Allow() {
		return model.Errorf(model.ErrCodeRateLimited, "chat rate limit exceeded")
	}
	if err := s.Whisper(target, cmd.String("message")); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, nil))
	return nil
}

func (e *Executor) position(_ context.Context, s session.Session, _ model.Command) error {
	self, ok := s.Self()
	if !ok {
		e.emit(model.NewEvent(model.EventPosition, map[string]any{"error": "not_spawned"}))
		return nil
	}
	e.emit(model.NewEvent(model.EventPosition, map[string]any{
		"x":         self.Position.X,
		"y":         self.Position.Y,
		"z":         self.Position.Z,
		"yaw":       self.Yaw,
		"pitch":     self.Pitch,
		"dimension": s.Vitals().Dimension,
	}))
	return nil
}

func (e *Executor) inventory(_ context.Context, s session.Session, _ model.Command) error {
	items := s.Inventory()
	if items == nil {
		items = []model.Item{}
	}
	e.emit(model.NewEvent(model.EventInventory, map[string]any{"items": items}))
	return nil
}

func (e *Executor) players(_ context.Context, s session.Session, _ model.Command) error {
	list := make([]map[string]any, 0)
	for _, p := range s.Players() {
		list = append(list, map[string]any{"username": p.Username, "ping": p.Ping, "entity": p.Position != nil})
	}
	e.emit(model.NewEvent(model.EventPlayers, map[string]any{"list": list}))
	return nil
}

// status reports the lane and link even while no session is established.
func (e *Executor) status(_ context.Context, s session.Session, _ model.Command) error {
	link := e.opts.Link()
	fields := map[string]any{
		"connected":         s != nil,
		"session_state":     string(link.State),
		"reconnecting":      link.Reconnecting,
		"attempt":           link.Attempt,
		"action_busy":       false,
		"queue_length":      0,
		"pathfinder_moving": false,
		"digging":           false,
		"health":            nil,
		"food":              nil,
		"position":          nil,
		"dimension":         nil,
	}
	if lane := e.laneRef(); lane != nil {
		fields["action_busy"] = lane.Busy()
		fields["queue_length"] = lane.Len()
	}
	if s != nil {
		v := s.Vitals()
		fields["pathfinder_moving"] = s.HasPathfinder() && s.IsMoving()
		fields["digging"] = s.Digging()
		fields["health"] = v.Health
		fields["food"] = v.Food
		fields["dimension"] = v.Dimension
		if self, ok := s.Self(); ok {
			fields["position"] = self.Position
		}
	}
	e.emit(model.NewEvent(model.EventStatus, fields))
	return nil
}

func (e *Executor) survey(_ context.Context, s session.Session, cmd model.Command) error {
	radius := cmd.IntOr("range", 0)
	if radius <= 0 {
		radius = defaultSurveyRange
	}
	fields := map[string]any{}
	for k, v := range s.Survey(radius) {
		fields[k] = v
	}
	fields["looking_at"] = nil
	if b, ok := s.BlockAtCursor(e.cfg.Movement.DigReach); ok {
		fields["looking_at"] = b.Name
	}
	v := s.Vitals()
	fields["health"] = v.Health
	fields["food"] = v.Food
	e.emit(model.NewEvent(model.EventSurvey, fields))
	return nil
}

// quit ends the process with status 0 after closing the session.
func (e *Executor) quit(_ context.Context, s session.Session, cmd model.Command) error {
	e.opts.Quit()
	if s != nil {
		if err := s.Quit(cmd.String("reason")); err != nil {
			return fmt.Errorf("quit session: %w", err)
		}
	}
	return nil
}
