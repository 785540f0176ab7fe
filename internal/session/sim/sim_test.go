package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
)

func dial(t *testing.T, d *Driver) *Session {
	t.Helper()
	s, err := d.Dial(context.Background(), session.Identity{Username: "McFunBot"})
	require.NoError(t, err)
	return s.(*Session)
}

func TestDial_EmitsSpawn(t *testing.T) {
	d := NewDriver(nil, Options{Spawn: model.Vec3{X: 1, Y: 64, Z: 1}})
	s := dial(t, d)

	ev := <-s.Events()
	assert.Equal(t, session.EventSpawn, ev.Kind)
	assert.Equal(t, model.Vec3{X: 1, Y: 64, Z: 1}, ev.Position)
	assert.Equal(t, "overworld", ev.Dimension)
	assert.Equal(t, 1, d.Dials())
	assert.Same(t, s, d.Current())
}

func TestDial_Failures(t *testing.T) {
	d := NewDriver(nil, Options{})
	d.FailDials(2)
	for i := 0; i < 2; i++ {
		_, err := d.Dial(context.Background(), session.Identity{})
		assert.Error(t, err)
	}
	_, err := d.Dial(context.Background(), session.Identity{})
	assert.NoError(t, err)
	assert.Equal(t, 3, d.Dials())
}

func TestGoalReached_FiresOnceToEachSubscriber(t *testing.T) {
	d := NewDriver(nil, Options{Pathfinder: true, StallGoals: true})
	s := dial(t, d)

	a := s.SubscribeGoalReached()
	b := s.SubscribeGoalReached()
	b.Unsubscribe()
	b.Unsubscribe()

	require.NoError(t, s.SetGoal(session.Goal{Kind: session.GoalBlock, Pos: model.Vec3{X: 5, Y: 64, Z: 5}}))
	assert.True(t, s.IsMoving())
	s.ReachGoal()

	select {
	case <-a.C:
	case <-time.After(time.Second):
		t.Fatal("subscriber not notified")
	}
	select {
	case <-b.C:
		t.Fatal("unsubscribed channel fired")
	default:
	}
	assert.False(t, s.IsMoving())
	assert.Equal(t, model.Vec3{X: 5, Y: 64, Z: 5}, s.Position())
	assert.Zero(t, s.Subscribers())
}

func TestSetGoal_PathDelay(t *testing.T) {
	d := NewDriver(nil, Options{Pathfinder: true, PathDelay: 10 * time.Millisecond})
	s := dial(t, d)
	sub := s.SubscribeGoalReached()
	defer sub.Unsubscribe()

	require.NoError(t, s.SetGoal(session.Goal{Kind: session.GoalNear, Pos: model.Vec3{X: 2}}))
	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("goal never reached")
	}
}

func TestSetGoal_NoPathfinder(t *testing.T) {
	s := dial(t, NewDriver(nil, Options{}))
	assert.ErrorIs(t, s.SetGoal(session.Goal{}), session.ErrNoPathfinder)
}

func TestDig(t *testing.T) {
	w := NewWorld()
	w.SetBlock(model.BlockPos{X: 1, Y: 1, Z: 1}, "stone")
	w.SetBlock(model.BlockPos{X: 2, Y: 1, Z: 1}, "bedrock")
	s := dial(t, NewDriver(w, Options{}))

	require.NoError(t, s.Dig(context.Background(), model.Block{Name: "stone", Pos: model.BlockPos{X: 1, Y: 1, Z: 1}}))
	assert.Equal(t, "air", w.Block(model.BlockPos{X: 1, Y: 1, Z: 1}))
	assert.Equal(t, 1, w.ItemCount("stone"))
	assert.Error(t, s.Dig(context.Background(), model.Block{Name: "bedrock", Pos: model.BlockPos{X: 2, Y: 1, Z: 1}}))
}

func TestDig_Stall(t *testing.T) {
	w := NewWorld()
	w.SetBlock(model.BlockPos{}, "stone")
	s := dial(t, NewDriver(w, Options{StallDigs: true}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Dig(ctx, model.Block{Pos: model.BlockPos{}}), context.DeadlineExceeded)
	assert.Equal(t, "stone", w.Block(model.BlockPos{}))
}

func TestKick_EndsStream(t *testing.T) {
	s := dial(t, NewDriver(nil, Options{NoSpawn: true}))
	s.Kick("You are not whitelisted on this server!")

	var kinds []session.EventKind
	for ev := range s.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []session.EventKind{session.EventKicked, session.EventEnd}, kinds)
	assert.True(t, s.Closed())

	s.Disconnect("again")
	s.Emit(session.Event{Kind: session.EventChat})
}

func TestFindBlocks_NearestFirst(t *testing.T) {
	w := NewWorld()
	w.SetBlock(model.BlockPos{X: 10}, "oak_log")
	w.SetBlock(model.BlockPos{X: 3}, "oak_log")
	w.SetBlock(model.BlockPos{X: 40}, "oak_log")
	s := dial(t, NewDriver(w, Options{}))

	found := s.FindBlocks("oak_log", 32, 0)
	assert.Equal(t, []model.BlockPos{{X: 3}, {X: 10}}, found)
	assert.Len(t, s.FindBlocks("oak_log", 32, 1), 1)
}

func TestInventoryActions(t *testing.T) {
	w := NewWorld()
	w.AddItem("cobblestone", 3)
	w.AddRecipe("stick")
	w.SetBlock(model.BlockPos{Y: 63}, "stone")
	s := dial(t, NewDriver(w, Options{}))
	ctx := context.Background()

	require.NoError(t, s.Equip(ctx, model.Item{Name: "cobblestone"}, "hand"))
	held, ok := s.HeldItem()
	require.True(t, ok)
	assert.Equal(t, "cobblestone", held.Name)

	require.NoError(t, s.PlaceBlock(ctx, model.Block{Pos: model.BlockPos{Y: 63}}, session.FaceVector(session.FaceTop)))
	assert.Equal(t, "cobblestone", w.Block(model.BlockPos{Y: 64}))
	assert.Equal(t, 2, w.ItemCount("cobblestone"))

	assert.ErrorIs(t, s.Craft(ctx, "diamond_sword", 1), session.ErrNoRecipe)
	require.NoError(t, s.Craft(ctx, "stick", 4))
	assert.Equal(t, 4, w.ItemCount("stick"))

	require.NoError(t, s.TossStack(ctx, model.Item{Name: "cobblestone"}))
	assert.Zero(t, w.ItemCount("cobblestone"))
	_, ok = s.HeldItem()
	assert.False(t, ok)
}
