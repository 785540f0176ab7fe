package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/msageha/craftbridge/internal/model"
	"github.com/msageha/craftbridge/internal/session"
)

// bedSearchRadius is how close a bed must be to sleep in it.
const bedSearchRadius = 4

func findItem(s session.Session, name string) (model.Item, bool) {
	for _, it := range s.Inventory() {
		if it.Name == name {
			return it, true
		}
	}
	return model.Item{}, false
}

func (e *Executor) equip(ctx context.Context, s session.Session, cmd model.Command) error {
	name := cmd.String("item_name")
	dest := cmd.String("destination")
	if dest == "" {
		dest = "hand"
	}
	item, ok := findItem(s, name)
	if !ok {
		return fmt.Errorf("Item '%s' not in inventory", name)
	}
	if err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.Equip(ctx, item, dest) }); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, map[string]any{"item_name": name, "destination": dest}))
	return nil
}

func (e *Executor) craft(ctx context.Context, s session.Session, cmd model.Command) error {
	name := cmd.String("item_name")
	if name == "" {
		return model.ValidationErrorf("Unknown item: '%s'", name)
	}
	count := cmd.IntOr("count", 0)
	if count <= 0 {
		count = 1
	}
	err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.Craft(ctx, name, count) })
	if errors.Is(err, session.ErrNoRecipe) {
		return fmt.Errorf("No recipe for '%s' (need crafting table nearby?)", name)
	}
	if err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, map[string]any{"item_name": name, "count": count}))
	return nil
}

func (e *Executor) drop(ctx context.Context, s session.Session, cmd model.Command) error {
	held, ok := s.HeldItem()
	if !ok {
		return fmt.Errorf("Not holding any item")
	}
	if err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.TossStack(ctx, held) }); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, map[string]any{"item": held.Name, "count": held.Count}))
	return nil
}

func (e *Executor) dropItem(ctx context.Context, s session.Session, cmd model.Command) error {
	name := cmd.String("item_name")
	item, ok := findItem(s, name)
	if !ok {
		return fmt.Errorf("Item '%s' not in inventory", name)
	}
	n := item.Count
	if want := cmd.IntOr("count", 0); want > 0 && want < n {
		n = want
	}
	if err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.Toss(ctx, item, n) }); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, map[string]any{"item_name": name, "count": n}))
	return nil
}

// dropAll tosses every stack once. A failed toss still counts, so one stuck stack cannot
// keep the action from finishing.
func (e *Executor) dropAll(ctx context.Context, s session.Session, cmd model.Command) error {
	dropped := 0
	err := e.call(ctx, cmd.Kind, func(ctx context.Context) error {
		for _, it := range s.Inventory() {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.ignoreFailure("toss "+it.Name, func() error { return s.TossStack(ctx, it) })
			dropped++
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, map[string]any{"count": dropped}))
	return nil
}

func (e *Executor) useItem(_ context.Context, s session.Session, cmd model.Command) error {
	if err := s.ActivateItem(); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, nil))
	return nil
}

func (e *Executor) deactivateItem(_ context.Context, s session.Session, cmd model.Command) error {
	if err := s.DeactivateItem(); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, nil))
	return nil
}

func (e *Executor) sleep(ctx context.Context, s session.Session, cmd model.Command) error {
	bed, ok := s.FindBlock(func(name string) bool { return strings.Contains(name, "bed") }, bedSearchRadius)
	if !ok {
		return fmt.Errorf("No bed found within %d blocks", bedSearchRadius)
	}
	if err := e.call(ctx, cmd.Kind, func(ctx context.Context) error { return s.Sleep(ctx, bed) }); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, nil))
	return nil
}

func (e *Executor) wake(_ context.Context, s session.Session, cmd model.Command) error {
	if err := s.Wake(); err != nil {
		return err
	}
	e.emit(ack(cmd.Kind, nil))
	return nil
}
