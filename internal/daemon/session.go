package daemon

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/actions"
	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
)

// dial opens session gen. The controller owns retries; a returned error counts as a
// failed attempt.
func (d *Daemon) dial(ctx context.Context, gen uint64) error {
	sc := d.cfg.Session
	s, err := d.opts.Driver.Dial(ctx, session.Identity{
		Host:     sc.Host,
		Port:     sc.Port,
		Username: sc.Username,
		Auth:     sc.Auth,
	})
	if err != nil {
		return fmt.Errorf("dial %s: %w", sc.Address(), err)
	}

	d.mu.Lock()
	if ctx.Err() != nil {
		d.mu.Unlock()
		_ = s.Quit("shutdown")
		return ctx.Err()
	}
	d.gen = gen
	d.dialled = s
	d.ready = nil
	d.sessionID = ""
	d.mu.Unlock()

	d.logger.Info("session dialled", zap.Uint64("generation", gen), zap.String("server", sc.Address()))
	go d.pump(gen, s)
	return nil
}

// pump translates session events for gen into wire events until the stream ends.
func (d *Daemon) pump(gen uint64, s session.Session) {
	var kickReason string
	for ev := range s.Events() {
		switch ev.Kind {
		case session.EventSpawn:
			d.spawned(gen, s, ev)
		case session.EventChat, session.EventWhisper:
			if ev.Username == d.cfg.Session.Username {
				continue
			}
			name := model.EventChat
			if ev.Kind == session.EventWhisper {
				name = model.EventWhisper
			}
			d.emitter.Emit(model.NewEvent(name, map[string]any{"username": ev.Username, "message": ev.Message}))
		case session.EventPlayerJoined:
			d.emitter.Emit(model.NewEvent(model.EventPlayerJoined, map[string]any{"username": ev.Username}))
		case session.EventPlayerLeft:
			d.emitter.Emit(model.NewEvent(model.EventPlayerLeft, map[string]any{"username": ev.Username}))
		case session.EventHealth:
			d.emitter.Emit(model.NewEvent(model.EventHealth, map[string]any{"health": ev.Health, "food": ev.Food}))
		case session.EventDeath:
			d.emitter.Emit(model.NewEvent(model.EventDeath, nil))
		case session.EventKicked:
			kickReason = ev.Reason
			d.logger.Warn("kicked", zap.Uint64("generation", gen), zap.String("reason", ev.Reason))
			d.emitter.Emit(model.NewEvent(model.EventKicked, map[string]any{"reason": ev.Reason}))
		case session.EventError:
			d.logger.Warn("session error", zap.Uint64("generation", gen), zap.String("message", ev.Message))
			d.emitter.Emit(model.ErrorEvent("", ev.Message, ""))
		case session.EventEnd:
			d.ended(gen, ev.Reason, kickReason)
			return
		}
	}
	d.ended(gen, "connection closed", kickReason)
}

func (d *Daemon) spawned(gen uint64, s session.Session, ev session.Event) {
	id, err := model.GenerateID(model.IDTypeSession)
	if err != nil {
		d.logger.Warn("session id", zap.Error(err))
	}
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.ready = s
	if d.sessionID == "" {
		d.sessionID = id
	}
	id = d.sessionID
	d.mu.Unlock()

	d.ctl.Ready(gen)
	d.logger.Info("spawned", zap.Uint64("generation", gen), zap.String("session_id", id))
	d.emitter.Emit(model.NewEvent(model.EventSpawn, map[string]any{
		"position":  ev.Position,
		"dimension": ev.Dimension,
	}))
}

// ended reports the end of session gen. A kick reason takes precedence over the end
// reason when deciding whether the disconnect is fatal.
func (d *Daemon) ended(gen uint64, reason, kickReason string) {
	d.mu.Lock()
	if d.gen != gen || d.dialled == nil {
		d.mu.Unlock()
		return
	}
	d.dialled = nil
	d.ready = nil
	d.sessionID = ""
	d.mu.Unlock()

	if reason == "" {
		reason = "unknown"
	}
	d.emitter.Emit(model.NewEvent(model.EventDisconnected, map[string]any{"reason": reason}))

	cause := reason
	if kickReason != "" {
		cause = kickReason
	}
	d.ctl.SessionEnded(gen, cause)
}

// cleanupSession runs once per lost session, before any retry is scheduled.
func (d *Daemon) cleanupSession() {
	goals := d.goals.CancelAll()
	dropped := d.queue.Reset()
	d.flag.Set()
	d.logger.Info("session cleanup", zap.Int("goals_cancelled", goals), zap.Int("queued_dropped", dropped))
}

// current is the session commands run against: dialled and spawned.
func (d *Daemon) current() session.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

// takeSession detaches whatever session is open so shutdown can close it.
func (d *Daemon) takeSession() session.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.dialled
	d.dialled = nil
	d.ready = nil
	return s
}

func (d *Daemon) link() actions.LinkStatus {
	st := d.ctl.Status()
	d.mu.Lock()
	id := d.sessionID
	d.mu.Unlock()
	return actions.LinkStatus{
		State:        st.State,
		Reconnecting: st.Reconnecting,
		Attempt:      st.Attempt,
		SessionID:    id,
	}
}
