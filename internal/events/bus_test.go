package events

import (
	"sync"
	"testing"
	"time"

	"github.com/msageha/craftbridge/internal/model"
)

type collector struct {
	mu  sync.Mutex
	got []model.Event
}

func (c *collector) add(ev model.Event) {
	c.mu.Lock()
	c.got = append(c.got, ev)
	c.mu.Unlock()
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10, nil)
	defer bus.Close()

	c := &collector{}
	unsub := bus.Subscribe(model.EventChat, c.add)
	defer unsub()

	bus.Publish(model.NewEvent(model.EventChat, map[string]any{"username": "Steve", "message": "hi"}))
	bus.Publish(model.NewEvent(model.EventHealth, nil))

	waitFor(t, func() bool { return c.len() == 1 })
	time.Sleep(20 * time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(c.got))
	}
	if c.got[0].Get("username") != "Steve" {
		t.Errorf("username = %v", c.got[0].Get("username"))
	}
}

func TestBus_Wildcard(t *testing.T) {
	bus := NewBus(10, nil)
	defer bus.Close()

	all := &collector{}
	named := &collector{}
	bus.Subscribe(AllEvents, all.add)
	bus.Subscribe(model.EventSpawn, named.add)

	bus.Publish(model.NewEvent(model.EventSpawn, nil))
	bus.Publish(model.NewEvent(model.EventDeath, nil))
	bus.Publish(model.Queued("dig", 1))

	waitFor(t, func() bool { return all.len() == 3 && named.len() == 1 })
}

func TestBus_NonBlocking(t *testing.T) {
	bus := NewBus(1, nil)
	defer bus.Close()

	release := make(chan struct{})
	bus.Subscribe(AllEvents, func(model.Event) { <-release })

	start := time.Now()
	for i := 0; i < 100; i++ {
		bus.Publish(model.NewEvent(model.EventHealth, map[string]any{"n": i}))
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("publish blocked for %v", elapsed)
	}
	close(release)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10, nil)
	defer bus.Close()

	c := &collector{}
	unsub := bus.Subscribe(model.EventChat, c.add)
	bus.Publish(model.NewEvent(model.EventChat, nil))
	waitFor(t, func() bool { return c.len() == 1 })

	unsub()
	unsub()
	bus.Publish(model.NewEvent(model.EventChat, nil))
	time.Sleep(20 * time.Millisecond)
	if c.len() != 1 {
		t.Errorf("received %d events after unsubscribe, want 1", c.len())
	}
}

func TestBus_SubscriberPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(10, nil)
	defer bus.Close()

	c := &collector{}
	bus.Subscribe(AllEvents, func(ev model.Event) {
		if ev.Name == "boom" {
			panic("subscriber bug")
		}
		c.add(ev)
	})
	bus.Publish(model.NewEvent("boom", nil))
	bus.Publish(model.NewEvent(model.EventDeath, nil))
	waitFor(t, func() bool { return c.len() == 1 })
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus(10, nil)
	unsub := bus.Subscribe(AllEvents, func(model.Event) {})
	bus.Close()
	bus.Close()
	unsub()
	bus.Publish(model.NewEvent(model.EventDeath, nil))
	bus.Subscribe(AllEvents, func(model.Event) {})()
}
