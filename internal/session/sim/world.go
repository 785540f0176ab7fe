// Package sim is an in-memory game world implementing the session driver. It backs the
// tests and the "sim" driver for dry runs without a server.
package sim

import (
	"math"
	"sort"
	"sync"

	"github.com/msageha/craftbridge/internal/model"
)

// World is the terrain, inventory and population shared by every session a Driver opens,
// so changes survive a reconnect.
type World struct {
	mu        sync.Mutex
	blocks    map[model.BlockPos]string
	inventory []model.Item
	held      int
	players   map[string]model.Player
	entities  []model.Entity
	recipes   map[string]bool
	cursor    *model.BlockPos
	dimension string
	night     bool
}

func NewWorld() *World {
	return &World{
		blocks:    make(map[model.BlockPos]string),
		held:      -1,
		players:   make(map[string]model.Player),
		recipes:   make(map[string]bool),
		dimension: "overworld",
	}
}

func (w *World) SetBlock(p model.BlockPos, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if model.IsAir(name) {
		delete(w.blocks, p)
		return
	}
	w.blocks[p] = name
}

// Fill sets every block in the box [from, to] inclusive.
func (w *World) Fill(from, to model.BlockPos, name string) {
	for x := min(from.X, to.X); x <= max(from.X, to.X); x++ {
		for y := min(from.Y, to.Y); y <= max(from.Y, to.Y); y++ {
			for z := min(from.Z, to.Z); z <= max(from.Z, to.Z); z++ {
				w.SetBlock(model.BlockPos{X: x, Y: y, Z: z}, name)
			}
		}
	}
}

func (w *World) Block(p model.BlockPos) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if name, ok := w.blocks[p]; ok {
		return name
	}
	return "air"
}

func (w *World) AddItem(name string, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addItemLocked(name, count)
}

func (w *World) addItemLocked(name string, count int) {
	for i := range w.inventory {
		if w.inventory[i].Name == name {
			w.inventory[i].Count += count
			return
		}
	}
	w.inventory = append(w.inventory, model.Item{Name: name, Count: count, Slot: 36 + len(w.inventory)})
}

func (w *World) removeItemLocked(name string, count int) int {
	for i := range w.inventory {
		if w.inventory[i].Name != name {
			continue
		}
		n := min(count, w.inventory[i].Count)
		w.inventory[i].Count -= n
		if w.inventory[i].Count == 0 {
			w.inventory = append(w.inventory[:i], w.inventory[i+1:]...)
			switch {
			case w.held == i:
				w.held = -1
			case w.held > i:
				w.held--
			}
		}
		return n
	}
	return 0
}

func (w *World) ItemCount(name string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, it := range w.inventory {
		if it.Name == name {
			return it.Count
		}
	}
	return 0
}

func (w *World) AddPlayer(p model.Player) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.players[p.Username] = p
}

func (w *World) AddEntity(e model.Entity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entities = append(w.entities, e)
}

func (w *World) AddRecipe(item string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recipes[item] = true
}

func (w *World) SetCursor(p model.BlockPos) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursor = &p
}

func (w *World) SetNight(night bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.night = night
}

func (w *World) findLocked(origin model.Vec3, maxDistance int, match func(string) bool) []model.BlockPos {
	var found []model.BlockPos
	for p, name := range w.blocks {
		if !match(name) {
			continue
		}
		if p.Center().DistanceTo(origin) <= float64(maxDistance) {
			found = append(found, p)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		di, dj := found[i].Center().DistanceTo(origin), found[j].Center().DistanceTo(origin)
		if di != dj {
			return di < dj
		}
		a, b := found[i], found[j]
		if a.Y != b.Y {
			return a.Y > b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return found
}

var commonBlocks = map[string]bool{
	"stone": true, "dirt": true, "grass_block": true, "deepslate": true, "bedrock": true,
	"water": true, "lava": true, "sand": true, "gravel": true, "cobblestone": true,
}

func (w *World) surveyLocked(origin model.Vec3, radius int) model.Survey {
	counts := make(map[string]int)
	for p, name := range w.blocks {
		if commonBlocks[name] || p.Center().DistanceTo(origin) > float64(radius) {
			continue
		}
		counts[name]++
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	blocks := make([]map[string]any, 0, len(names))
	for _, name := range names {
		blocks = append(blocks, map[string]any{"name": name, "count": counts[name]})
	}

	var entities []map[string]any
	for _, e := range w.entities {
		d := e.Position.DistanceTo(origin)
		if d <= float64(radius) {
			entities = append(entities, map[string]any{"type": e.Type, "name": e.Name, "distance": math.Round(d)})
		}
	}
	items := make([]map[string]any, 0, len(w.inventory))
	for _, it := range w.inventory {
		items = append(items, map[string]any{"name": it.Name, "count": it.Count})
	}
	return model.Survey{
		"position":  origin.Floored(),
		"blocks":    blocks,
		"entities":  entities,
		"inventory": items,
	}
}
