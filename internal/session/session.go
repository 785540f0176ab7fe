// Package session declares the boundary to the game-session driver. Everything behind it
// (protocol, pathfinding, world state) is owned by the driver.
package session

import (
	"context"
	"errors"

	"github.com/msageha/craftbridge/internal/model"
)

var (
	ErrNotConnected = errors.New("Bot not connected yet")
	ErrNoPathfinder = errors.New("pathfinder not available")
	ErrClosed       = errors.New("session closed")
)

type Identity struct {
	Host     string
	Port     int
	Username string
	Auth     string
}

// Driver opens sessions. Dial returns once the connection is established; readiness is
// signalled later by an EventSpawn on the session's event stream.
type Driver interface {
	Dial(ctx context.Context, id Identity) (Session, error)
}

type EventKind string

const (
	EventSpawn        EventKind = "spawn"
	EventChat         EventKind = "chat"
	EventWhisper      EventKind = "whisper"
	EventPlayerJoined EventKind = "player_joined"
	EventPlayerLeft   EventKind = "player_left"
	EventHealth       EventKind = "health"
	EventDeath        EventKind = "death"
	EventKicked       EventKind = "kicked"
	EventError        EventKind = "error"
	EventEnd          EventKind = "end"
)

// Event is one notification from the driver. Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind
	Username  string
	Message   string
	Reason    string
	Position  model.Vec3
	Dimension string
	Health    float64
	Food      float64
}

type GoalKind int

const (
	GoalBlock GoalKind = iota
	GoalNear
	GoalFollow
)

type Goal struct {
	Kind   GoalKind
	Pos    model.Vec3
	Range  int
	Target string
}

// Subscription delivers at most one goal-reached notification on C.
// Unsubscribe is idempotent; after it returns C never fires.
type Subscription struct {
	C           <-chan struct{}
	Unsubscribe func()
}

type Control string

const (
	ControlForward Control = "forward"
	ControlBack    Control = "back"
	ControlJump    Control = "jump"
	ControlSneak   Control = "sneak"
	ControlSprint  Control = "sprint"
)

type Face string

const (
	FaceTop    Face = "top"
	FaceBottom Face = "bottom"
	FaceNorth  Face = "north"
	FaceSouth  Face = "south"
	FaceEast   Face = "east"
	FaceWest   Face = "west"
)

var faceVectors = map[Face]model.Vec3{
	FaceTop:    {X: 0, Y: 1, Z: 0},
	FaceBottom: {X: 0, Y: -1, Z: 0},
	FaceNorth:  {X: 0, Y: 0, Z: -1},
	FaceSouth:  {X: 0, Y: 0, Z: 1},
	FaceEast:   {X: 1, Y: 0, Z: 0},
	FaceWest:   {X: -1, Y: 0, Z: 0},
}

// FaceVector maps a face name to its unit normal; unknown names mean top.
func FaceVector(f Face) model.Vec3 {
	if v, ok := faceVectors[f]; ok {
		return v
	}
	return faceVectors[FaceTop]
}

// Session is one live connection to the game world.
type Session interface {
	Events() <-chan Event
	Username() string

	HasPathfinder() bool
	SetGoal(g Goal) error
	ClearGoal() error
	StopPathing() error
	IsMoving() bool
	SubscribeGoalReached() Subscription

	Self() (model.Entity, bool)
	BlockAt(p model.BlockPos) (model.Block, bool)
	BlockAtCursor(maxDistance float64) (model.Block, bool)
	FindBlocks(name string, maxDistance int, count int) []model.BlockPos
	FindBlock(match func(name string) bool, maxDistance int) (model.Block, bool)
	Players() []model.Player
	Inventory() []model.Item
	HeldItem() (model.Item, bool)
	Vitals() model.Vitals
	Digging() bool
	NearestEntity() (model.Entity, bool)
	Survey(radius int) model.Survey

	Dig(ctx context.Context, b model.Block) error
	PlaceBlock(ctx context.Context, ref model.Block, face model.Vec3) error
	ActivateBlock(ctx context.Context, b model.Block) error
	Equip(ctx context.Context, item model.Item, destination string) error
	Craft(ctx context.Context, itemName string, count int) error
	Toss(ctx context.Context, item model.Item, count int) error
	TossStack(ctx context.Context, item model.Item) error
	Sleep(ctx context.Context, bed model.Block) error

	Chat(message string) error
	Whisper(target, message string) error
	Look(yaw, pitch float64) error
	SetControl(c Control, on bool) error
	ClearControls() error
	ActivateItem() error
	DeactivateItem() error
	Wake() error
	Attack(e model.Entity) error
	StopDigging() error
	Quit(reason string) error
}

var (
	ErrNoRecipe    = errors.New("no recipe")
	ErrNotSleeping = errors.New("not sleeping")
)
