package model

import (
	"fmt"
	"math"
)

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) DistanceTo(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Floored snaps a position to the containing block.
func (v Vec3) Floored() BlockPos {
	return BlockPos{int(math.Floor(v.X)), int(math.Floor(v.Y)), int(math.Floor(v.Z))}
}

// Rounded keeps one decimal place, the precision reported in position events.
func (v Vec3) Rounded() Vec3 {
	r := func(f float64) float64 { return math.Round(f*10) / 10 }
	return Vec3{r(v.X), r(v.Y), r(v.Z)}
}

type BlockPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p BlockPos) Offset(dx, dy, dz int) BlockPos { return BlockPos{p.X + dx, p.Y + dy, p.Z + dz} }

// Center is the middle of the block, used for reach checks.
func (p BlockPos) Center() Vec3 {
	return Vec3{float64(p.X) + 0.5, float64(p.Y) + 0.5, float64(p.Z) + 0.5}
}

func (p BlockPos) Vec() Vec3 { return Vec3{float64(p.X), float64(p.Y), float64(p.Z)} }

func (p BlockPos) String() string { return fmt.Sprintf("%d, %d, %d", p.X, p.Y, p.Z) }

type Block struct {
	Name string   `json:"name"`
	Pos  BlockPos `json:"position"`
}

var airBlocks = map[string]bool{"air": true, "cave_air": true, "void_air": true}

// IsAir reports whether name is an empty block; the empty name counts as air.
func IsAir(name string) bool {
	return name == "" || airBlocks[name]
}

type Item struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Slot  int    `json:"slot"`
}

type Player struct {
	Username string `json:"username"`
	Ping     int    `json:"ping"`
	Position *Vec3  `json:"position,omitempty"`
}

type Entity struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Position Vec3    `json:"position"`
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
}

type Vitals struct {
	Health    float64 `json:"health"`
	Food      float64 `json:"food"`
	Position  Vec3    `json:"position"`
	Dimension string  `json:"dimension"`
	Time      int64   `json:"time"`
	IsDay     bool    `json:"is_day"`
}

// Survey is the driver's terrain summary around the bot; its contents are opaque here.
type Survey map[string]any
