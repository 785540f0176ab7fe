package sim

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
)

const eventBuffer = 1024

// Session is one simulated connection.
type Session struct {
	world    *World
	username string
	opts     Options

	mu        sync.Mutex
	events    chan session.Event
	closed    bool
	pos       model.Vec3
	yaw       float64
	pitch     float64
	goal      *session.Goal
	goalTimer *time.Timer
	subs      map[int]chan struct{}
	nextSub   int
	controls  map[session.Control]bool
	digging   bool
	sleeping  bool
	active    bool
	health    float64
	food      float64

	chats     []string
	attacks   []model.Entity
	digs      []model.BlockPos
	goalsSet  []session.Goal
	clears    int
	quitCause string
}

var _ session.Session = (*Session)(nil)

func newSession(world *World, username string, opts Options) *Session {
	return &Session{
		world:    world,
		username: username,
		opts:     opts,
		events:   make(chan session.Event, eventBuffer),
		pos:      opts.Spawn,
		subs:     make(map[int]chan struct{}),
		controls: make(map[session.Control]bool),
		health:   20,
		food:     20,
	}
}

func (s *Session) Events() <-chan session.Event { return s.events }
func (s *Session) Username() string             { return s.username }

// Emit pushes an event onto the stream. Events after the end are dropped.
func (s *Session) Emit(ev session.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(ev)
}

func (s *Session) emitLocked(ev session.Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Session) Spawn() {
	s.world.mu.Lock()
	dim := s.world.dimension
	s.world.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(session.Event{Kind: session.EventSpawn, Position: s.pos, Dimension: dim})
}

// Kick reports a kick followed by the end of the session, as a server does.
func (s *Session) Kick(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(session.Event{Kind: session.EventKicked, Reason: reason})
	s.endLocked(reason)
}

// Disconnect ends the session with reason and closes the event stream.
func (s *Session) Disconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(reason)
}

func (s *Session) endLocked(reason string) {
	if s.closed {
		return
	}
	s.emitLocked(session.Event{Kind: session.EventEnd, Reason: reason})
	s.closed = true
	close(s.events)
	if s.goalTimer != nil {
		s.goalTimer.Stop()
	}
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) HasPathfinder() bool { return s.opts.Pathfinder }

func (s *Session) SetGoal(g session.Goal) error {
	if !s.opts.Pathfinder {
		return session.ErrNoPathfinder
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.ErrClosed
	}
	if s.goalTimer != nil {
		s.goalTimer.Stop()
		s.goalTimer = nil
	}
	goal := g
	s.goal = &goal
	s.goalsSet = append(s.goalsSet, g)
	if s.opts.StallGoals || g.Kind == session.GoalFollow {
		return nil
	}
	s.goalTimer = time.AfterFunc(s.opts.PathDelay, func() { s.reach(&goal) })
	return nil
}

// ReachGoal completes the current goal now.
func (s *Session) ReachGoal() {
	s.mu.Lock()
	g := s.goal
	s.mu.Unlock()
	if g != nil {
		s.reach(g)
	}
}

func (s *Session) reach(g *session.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.goal != g || s.closed {
		return
	}
	s.pos = g.Pos
	s.goal = nil
	s.goalTimer = nil
	for id, ch := range s.subs {
		ch <- struct{}{}
		delete(s.subs, id)
	}
}

func (s *Session) ClearGoal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.goal = nil
	if s.goalTimer != nil {
		s.goalTimer.Stop()
		s.goalTimer = nil
	}
	return nil
}

func (s *Session) StopPathing() error { return s.ClearGoal() }

func (s *Session) IsMoving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goal != nil
}

func (s *Session) SubscribeGoalReached() session.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch
	var once sync.Once
	return session.Subscription{
		C: ch,
		Unsubscribe: func() {
			once.Do(func() {
				s.mu.Lock()
				delete(s.subs, id)
				s.mu.Unlock()
			})
		},
	}
}

// Subscribers is the number of live goal-reached subscriptions.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Session) Position() model.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Session) Teleport(p model.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = p
}

func (s *Session) Self() (model.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Entity{Name: s.username, Type: "player", Position: s.pos, Yaw: s.yaw, Pitch: s.pitch}, true
}

func (s *Session) BlockAt(p model.BlockPos) (model.Block, bool) {
	return model.Block{Name: s.world.Block(p), Pos: p}, true
}

func (s *Session) BlockAtCursor(maxDistance float64) (model.Block, bool) {
	s.world.mu.Lock()
	cursor := s.world.cursor
	s.world.mu.Unlock()
	if cursor == nil || cursor.Center().DistanceTo(s.Position()) > maxDistance {
		return model.Block{}, false
	}
	return model.Block{Name: s.world.Block(*cursor), Pos: *cursor}, true
}

func (s *Session) FindBlocks(name string, maxDistance int, count int) []model.BlockPos {
	origin := s.Position()
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	found := s.world.findLocked(origin, maxDistance, func(n string) bool { return n == name })
	if count > 0 && len(found) > count {
		found = found[:count]
	}
	return found
}

func (s *Session) FindBlock(match func(name string) bool, maxDistance int) (model.Block, bool) {
	origin := s.Position()
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	found := s.world.findLocked(origin, maxDistance, match)
	if len(found) == 0 {
		return model.Block{}, false
	}
	return model.Block{Name: s.world.blocks[found[0]], Pos: found[0]}, true
}

func (s *Session) Players() []model.Player {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	out := make([]model.Player, 0, len(s.world.players)+1)
	out = append(out, model.Player{Username: s.username})
	for _, p := range s.world.players {
		out = append(out, p)
	}
	return out
}

func (s *Session) Inventory() []model.Item {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	return append([]model.Item(nil), s.world.inventory...)
}

func (s *Session) HeldItem() (model.Item, bool) {
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	if s.world.held < 0 || s.world.held >= len(s.world.inventory) {
		return model.Item{}, false
	}
	return s.world.inventory[s.world.held], true
}

func (s *Session) Vitals() model.Vitals {
	s.world.mu.Lock()
	dim, night := s.world.dimension, s.world.night
	s.world.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Vitals{Health: s.health, Food: s.food, Position: s.pos, Dimension: dim, IsDay: !night}
}

func (s *Session) SetHealth(health, food float64) {
	s.mu.Lock()
	s.health, s.food = health, food
	s.emitLocked(session.Event{Kind: session.EventHealth, Health: health, Food: food})
	s.mu.Unlock()
}

func (s *Session) Digging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.digging
}

func (s *Session) NearestEntity() (model.Entity, bool) {
	origin := s.Position()
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	best, bestDist := model.Entity{}, math.Inf(1)
	for _, e := range s.world.entities {
		if d := e.Position.DistanceTo(origin); d < bestDist {
			best, bestDist = e, d
		}
	}
	return best, !math.IsInf(bestDist, 1)
}

func (s *Session) Survey(radius int) model.Survey {
	origin := s.Position()
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	return s.world.surveyLocked(origin, radius)
}

func (s *Session) wait(ctx context.Context, d time.Duration, stall bool) error {
	if stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Dig(ctx context.Context, b model.Block) error {
	if s.Closed() {
		return session.ErrClosed
	}
	if s.world.Block(b.Pos) == "bedrock" {
		return fmt.Errorf("cannot dig bedrock")
	}
	s.mu.Lock()
	s.digging = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.digging = false
		s.mu.Unlock()
	}()
	if err := s.wait(ctx, s.opts.DigDelay, s.opts.StallDigs); err != nil {
		return err
	}
	name := s.world.Block(b.Pos)
	if model.IsAir(name) {
		return nil
	}
	s.world.SetBlock(b.Pos, "air")
	s.world.AddItem(name, 1)
	s.mu.Lock()
	s.digs = append(s.digs, b.Pos)
	s.mu.Unlock()
	return nil
}

// Digs lists the positions dug so far, in order.
func (s *Session) Digs() []model.BlockPos {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.BlockPos(nil), s.digs...)
}

func (s *Session) GoalsSet() []session.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Goal(nil), s.goalsSet...)
}

func (s *Session) GoalClears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func (s *Session) PlaceBlock(ctx context.Context, ref model.Block, face model.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	held, ok := s.HeldItem()
	if !ok {
		return fmt.Errorf("must be holding an item to place")
	}
	target := ref.Pos.Offset(int(face.X), int(face.Y), int(face.Z))
	if !model.IsAir(s.world.Block(target)) {
		return fmt.Errorf("block at %s is occupied", target)
	}
	s.world.mu.Lock()
	s.world.removeItemLocked(held.Name, 1)
	s.world.mu.Unlock()
	s.world.SetBlock(target, held.Name)
	return nil
}

func (s *Session) ActivateBlock(ctx context.Context, b model.Block) error {
	return ctx.Err()
}

func (s *Session) Equip(ctx context.Context, item model.Item, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if destination != "hand" && destination != "off-hand" && destination != "head" &&
		destination != "torso" && destination != "legs" && destination != "feet" {
		return fmt.Errorf("invalid destination: %s", destination)
	}
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	for i, it := range s.world.inventory {
		if it.Name == item.Name {
			if destination == "hand" {
				s.world.held = i
			}
			return nil
		}
	}
	return fmt.Errorf("item %s not in inventory", item.Name)
}

func (s *Session) Craft(ctx context.Context, itemName string, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	if !s.world.recipes[itemName] {
		return session.ErrNoRecipe
	}
	s.world.addItemLocked(itemName, count)
	return nil
}

func (s *Session) Toss(ctx context.Context, item model.Item, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.world.mu.Lock()
	defer s.world.mu.Unlock()
	if s.world.removeItemLocked(item.Name, count) == 0 {
		return fmt.Errorf("item %s not in inventory", item.Name)
	}
	return nil
}

func (s *Session) TossStack(ctx context.Context, item model.Item) error {
	return s.Toss(ctx, item, math.MaxInt32)
}

func (s *Session) Sleep(ctx context.Context, bed model.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.world.mu.Lock()
	night := s.world.night
	s.world.mu.Unlock()
	if !night {
		return fmt.Errorf("it's not night and it's not a thunderstorm")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeping = true
	return nil
}

func (s *Session) Wake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sleeping {
		return session.ErrNotSleeping
	}
	s.sleeping = false
	return nil
}

func (s *Session) Chat(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return session.ErrClosed
	}
	s.chats = append(s.chats, message)
	return nil
}

func (s *Session) Whisper(target, message string) error {
	return s.Chat(fmt.Sprintf("/tell %s %s", target, message))
}

// Chats lists every message sent, whispers included.
func (s *Session) Chats() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chats...)
}

// Say injects a chat line from another player.
func (s *Session) Say(username, message string) {
	kind := session.EventChat
	if strings.HasPrefix(message, "/tell ") {
		kind = session.EventWhisper
		message = strings.TrimPrefix(message, "/tell ")
	}
	s.Emit(session.Event{Kind: kind, Username: username, Message: message})
}

func (s *Session) Look(yaw, pitch float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.yaw, s.pitch = yaw, pitch
	return nil
}

func (s *Session) Facing() (yaw, pitch float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.yaw, s.pitch
}

func (s *Session) SetControl(c session.Control, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls[c] = on
	return nil
}

func (s *Session) Control(c session.Control) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controls[c]
}

func (s *Session) ClearControls() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = make(map[session.Control]bool)
	return nil
}

func (s *Session) ActivateItem() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	return nil
}

func (s *Session) DeactivateItem() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	return nil
}

func (s *Session) Attack(e model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attacks = append(s.attacks, e)
	return nil
}

func (s *Session) Attacks() []model.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Entity(nil), s.attacks...)
}

func (s *Session) StopDigging() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digging = false
	return nil
}

func (s *Session) Quit(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quitCause = reason
	s.endLocked(reason)
	return nil
}
