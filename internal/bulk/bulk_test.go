package bulk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/msageha/craftbridge/internal/goal"
	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
	"github.com/msageha/craftbridge/internal/session/sim"
)

type events struct {
	mu  sync.Mutex
	evs []model.Event
}

func (e *events) emit(ev model.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evs = append(e.evs, ev)
}

func (e *events) all() []model.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Event(nil), e.evs...)
}

func dial(t *testing.T, w *sim.World, opts sim.Options) *sim.Session {
	t.Helper()
	s, err := sim.NewDriver(w, opts).Dial(context.Background(), session.Identity{Username: "bot"})
	require.NoError(t, err)
	return s.(*sim.Session)
}

func newClearer(t *testing.T, s Session, flag *Flag, rec *events) *Clearer {
	return &Clearer{
		Session:         s,
		Goals:           goal.NewRegistry(rec.emit, zaptest.NewLogger(t), nil),
		Flag:            flag,
		Emit:            rec.emit,
		Logger:          zaptest.NewLogger(t),
		Action:          "dig_area",
		Reach:           4.5,
		ApproachRange:   3,
		ApproachTimeout: 200 * time.Millisecond,
		DigTimeout:      time.Second,
		ProgressEvery:   10,
	}
}

func TestPlan(t *testing.T) {
	targets := Plan(model.BlockPos{X: 10, Y: 64, Z: -5}, 2, 2, 2, 20, 10, 20)
	assert.Equal(t, []model.BlockPos{
		{X: 10, Y: 65, Z: -5}, {X: 10, Y: 65, Z: -4}, {X: 11, Y: 65, Z: -5}, {X: 11, Y: 65, Z: -4},
		{X: 10, Y: 64, Z: -5}, {X: 10, Y: 64, Z: -4}, {X: 11, Y: 64, Z: -5}, {X: 11, Y: 64, Z: -4},
	}, targets)
}

func TestPlan_Clamped(t *testing.T) {
	tests := []struct {
		name    string
		w, h, d int
		want    int
	}{
		{"caps", 100, 100, 100, 20 * 10 * 20},
		{"zero becomes one", 0, 0, 0, 1},
		{"negative becomes one", -3, 2, 2, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, Plan(model.BlockPos{}, tt.w, tt.h, tt.d, 20, 10, 20), tt.want)
		})
	}
}

func TestRun_SkipsAir(t *testing.T) {
	w := sim.NewWorld()
	w.Fill(model.BlockPos{X: 0, Y: 0, Z: 0}, model.BlockPos{X: 1, Y: 0, Z: 1}, "dirt")
	w.SetBlock(model.BlockPos{}, "air")
	s := dial(t, w, sim.Options{})
	rec := &events{}

	res := newClearer(t, s, &Flag{}, rec).Run(context.Background(), Plan(model.BlockPos{}, 2, 1, 2, 20, 10, 20))

	assert.Equal(t, Done, res.State)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, []model.BlockPos{{X: 0, Z: 1}, {X: 1, Z: 0}, {X: 1, Z: 1}}, s.Digs())
	assert.NotContains(t, s.Digs(), model.BlockPos{})
}

// cancelAfter sets the flag once the n-th dig finishes.
type cancelAfter struct {
	*sim.Session
	flag *Flag
	n    int
	digs int
}

func (c *cancelAfter) Dig(ctx context.Context, b model.Block) error {
	err := c.Session.Dig(ctx, b)
	c.digs++
	if c.digs == c.n {
		c.flag.Set()
	}
	return err
}

func TestRun_CancelledBetweenSteps(t *testing.T) {
	w := sim.NewWorld()
	w.Fill(model.BlockPos{}, model.BlockPos{X: 1, Z: 1}, "stone")
	flag := &Flag{}
	s := &cancelAfter{Session: dial(t, w, sim.Options{}), flag: flag, n: 1}
	rec := &events{}

	res := newClearer(t, s, flag, rec).Run(context.Background(), Plan(model.BlockPos{}, 2, 1, 2, 20, 10, 20))

	assert.Equal(t, Cancelled, res.State)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 1, s.digs)
}

func TestRun_ContextCancelled(t *testing.T) {
	w := sim.NewWorld()
	w.Fill(model.BlockPos{}, model.BlockPos{X: 1, Z: 1}, "stone")
	s := dial(t, w, sim.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newClearer(t, s, &Flag{}, &events{}).Run(ctx, Plan(model.BlockPos{}, 2, 1, 2, 20, 10, 20))
	assert.Equal(t, Cancelled, res.State)
	assert.Equal(t, 1, res.Processed)
}

func TestRun_Progress(t *testing.T) {
	w := sim.NewWorld()
	w.Fill(model.BlockPos{}, model.BlockPos{X: 4, Z: 4}, "dirt")
	s := dial(t, w, sim.Options{Spawn: model.Vec3{X: 2, Y: 0, Z: 2}})
	rec := &events{}

	res := newClearer(t, s, &Flag{}, rec).Run(context.Background(), Plan(model.BlockPos{}, 5, 1, 5, 20, 10, 20))
	require.Equal(t, Done, res.State)
	assert.Equal(t, 25, res.Processed)

	var progress []any
	for _, ev := range rec.all() {
		if ev.Name == model.EventAck {
			progress = append(progress, ev.Get("message"))
		}
	}
	assert.Equal(t, []any{"Progress: 10/25 blocks", "Progress: 20/25 blocks"}, progress)
}

func TestRun_ApproachesDistantTargets(t *testing.T) {
	w := sim.NewWorld()
	w.SetBlock(model.BlockPos{X: 20}, "stone")
	s := dial(t, w, sim.Options{Pathfinder: true, PathDelay: 5 * time.Millisecond})

	res := newClearer(t, s, &Flag{}, &events{}).Run(context.Background(), []model.BlockPos{{X: 20}})
	assert.Equal(t, 1, res.Processed)

	goals := s.GoalsSet()
	require.Len(t, goals, 1)
	assert.Equal(t, session.GoalNear, goals[0].Kind)
	assert.Equal(t, 3, goals[0].Range)
	assert.Equal(t, "air", w.Block(model.BlockPos{X: 20}))
}

func TestRun_ApproachTimeoutIsBestEffort(t *testing.T) {
	w := sim.NewWorld()
	w.SetBlock(model.BlockPos{X: 20}, "stone")
	s := dial(t, w, sim.Options{Pathfinder: true, StallGoals: true})
	rec := &events{}

	c := newClearer(t, s, &Flag{}, rec)
	c.ApproachTimeout = 20 * time.Millisecond
	res := c.Run(context.Background(), []model.BlockPos{{X: 20}})

	assert.Equal(t, Done, res.State)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, "air", w.Block(model.BlockPos{X: 20}), "dig still attempted after failed approach")
	require.Eventually(t, func() bool { return len(rec.all()) > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Pathfinding timed out after 20ms", rec.all()[0].Get("message"))
}

func TestRun_DigFailureContinues(t *testing.T) {
	w := sim.NewWorld()
	w.SetBlock(model.BlockPos{X: 0}, "bedrock")
	w.SetBlock(model.BlockPos{X: 1}, "stone")
	s := dial(t, w, sim.Options{})

	res := newClearer(t, s, &Flag{}, &events{}).Run(context.Background(), []model.BlockPos{{X: 0}, {X: 1}})
	assert.Equal(t, Done, res.State)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, []model.BlockPos{{X: 1}}, s.Digs())
}

func TestRun_StalledDigTimesOut(t *testing.T) {
	w := sim.NewWorld()
	w.SetBlock(model.BlockPos{}, "stone")
	s := dial(t, w, sim.Options{StallDigs: true})

	c := newClearer(t, s, &Flag{}, &events{})
	c.DigTimeout = 20 * time.Millisecond
	start := time.Now()
	res := c.Run(context.Background(), []model.BlockPos{{}})
	assert.Equal(t, Done, res.State)
	assert.Less(t, time.Since(start), time.Second)
}
