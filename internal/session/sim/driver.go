package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
)

type Options struct {
	// Pathfinder enables goal-based movement. Without it movement falls back to controls.
	Pathfinder bool
	// PathDelay is how long a goal takes to be reached.
	PathDelay time.Duration
	// DigDelay is how long one dig takes.
	DigDelay time.Duration
	// StallGoals keeps goals from ever being reached.
	StallGoals bool
	// StallDigs makes Dig block until its context ends.
	StallDigs bool
	// NoSpawn suppresses the spawn event after dial.
	NoSpawn bool
	Spawn   model.Vec3
}

// Driver dials simulated sessions against one shared World.
type Driver struct {
	mu       sync.Mutex
	opts     Options
	world    *World
	dials    int
	dialErr  func(n int) error
	sessions []*Session
}

var _ session.Driver = (*Driver)(nil)

func NewDriver(world *World, opts Options) *Driver {
	if world == nil {
		world = NewWorld()
	}
	return &Driver{opts: opts, world: world}
}

func (d *Driver) World() *World { return d.world }

// FailDials makes the next n dials fail.
func (d *Driver) FailDials(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	remaining := n
	d.dialErr = func(int) error {
		if remaining <= 0 {
			return nil
		}
		remaining--
		return fmt.Errorf("connect ECONNREFUSED")
	}
}

// SetDialHook installs fn, called with the 1-based dial count; a non-nil error fails the dial.
func (d *Driver) SetDialHook(fn func(n int) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = fn
}

func (d *Driver) SetOptions(fn func(*Options)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.opts)
}

func (d *Driver) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Current returns the most recently dialled session, or nil.
func (d *Driver) Current() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

func (d *Driver) Dial(ctx context.Context, id session.Identity) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.dials++
	n := d.dials
	hook := d.dialErr
	opts := d.opts
	d.mu.Unlock()

	if hook != nil {
		if err := hook(n); err != nil {
			return nil, err
		}
	}

	s := newSession(d.world, id.Username, opts)
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()

	if !opts.NoSpawn {
		s.Spawn()
	}
	return s, nil
}
