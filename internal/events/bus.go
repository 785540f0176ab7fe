package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/model"
)

// AllEvents subscribes to every event name.
const AllEvents = "*"

// Subscriber receives published events on its own goroutine.
type Subscriber func(model.Event)

// Bus fans outbound events out to secondary consumers (mirror, transcript).
// Delivery is asynchronous through per-subscriber buffers; when a buffer is full the
// event is dropped for that subscriber so the protocol stream never blocks.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan model.Event
	bufferSize  int
	logger      *zap.Logger
	closed      bool
	wg          sync.WaitGroup
}

func NewBus(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[string][]chan model.Event),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers fn for events named name (or AllEvents) and returns an
// unsubscribe function.
func (b *Bus) Subscribe(name string, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Event, b.bufferSize)
	if b.closed {
		close(ch)
		return func() {}
	}
	b.subscribers[name] = append(b.subscribers[name], ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for ev := range ch {
			b.deliver(fn, ev)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[name]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[name] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

func (b *Bus) deliver(fn Subscriber, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event subscriber panicked", zap.String("event", ev.Name), zap.Any("panic", r))
		}
	}()
	fn(ev)
}

// Publish hands ev to every matching subscriber without blocking.
func (b *Bus) Publish(ev model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, key := range [2]string{ev.Name, AllEvents} {
		for _, ch := range b.subscribers[key] {
			select {
			case ch <- ev:
			default:
				b.logger.Debug("event dropped for slow subscriber", zap.String("event", ev.Name))
			}
		}
	}
}

// Close stops delivery and waits for in-flight subscriber calls to return.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for name, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, name)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
