package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Options configures a Bus.
type Options struct {
	// Buffer is the per-subscriber queue length. Zero means DefaultBuffer.
	Buffer int
	// Origin identifies this instance on a relay. Empty generates one.
	Origin string
	Logger *slog.Logger
}

// Bus fans events out to every registered subscription.
//
// Publishing never blocks on a subscriber: an event that does not fit in a
// subscriber's queue is dropped for that subscriber only.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}

	// publishMu keeps delivery order equal to publish order for all subscribers.
	publishMu sync.Mutex

	buffer  int
	origin  string
	logger  *slog.Logger
	relay   atomic.Pointer[relayHolder]
	dropped atomic.Uint64
	sent    atomic.Uint64
}

type relayHolder struct {
	relay Relay
}

// NewBus creates an empty bus.
func NewBus(opts Options) *Bus {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	origin := opts.Origin
	if origin == "" {
		origin = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		origin: origin,
		logger: logger,
	}
}

// Origin returns the instance id stamped on locally published events.
func (b *Bus) Origin() string {
	return b.origin
}

// AttachRelay forwards future local publishes to r.
func (b *Bus) AttachRelay(r Relay) {
	if r == nil {
		b.relay.Store(nil)
		return
	}
	b.relay.Store(&relayHolder{relay: r})
}

// Subscribe registers a new subscription. Its first event is always
// KindConnected; nothing published earlier is replayed.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		bus:  b,
		ch:   make(chan Event, b.buffer),
		done: make(chan struct{}),
	}
	sub.ch <- Event{Kind: KindConnected, At: now(), Origin: b.origin}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. It is safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.Close()
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Len reports the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped reports how many per-subscriber deliveries were dropped.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Delivered reports how many per-subscriber deliveries succeeded.
func (b *Bus) Delivered() uint64 {
	return b.sent.Load()
}

// Publish delivers ev to every subscription registered when the call
// starts and forwards it to the relay, if any.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = now()
	}
	if ev.Origin == "" {
		ev.Origin = b.origin
	}
	b.fanout(ev)

	if h := b.relay.Load(); h != nil && ev.Origin == b.origin {
		if err := h.relay.Forward(ev); err != nil {
			b.logger.Warn("relay forward failed", "kind", ev.Kind, "id", ev.ID, "error", err)
		}
	}
}

// Receive fans out an event that arrived from another instance. Events
// carrying this bus's own origin are ignored.
func (b *Bus) Receive(ev Event) {
	if ev.Origin == "" || ev.Origin == b.origin {
		return
	}
	if ev.At.IsZero() {
		ev.At = now()
	}
	b.fanout(ev)
}

func (b *Bus) fanout(ev Event) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.RLock()
	snapshot := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		snapshot = append(snapshot, sub)
	}
	b.mu.RUnlock()

	for _, sub := range snapshot {
		if sub.deliver(ev) {
			b.sent.Add(1)
			continue
		}
		b.dropped.Add(1)
	}
}

// Subscription is one subscriber's handle on a Bus.
type Subscription struct {
	bus  *Bus
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// Events returns the subscriber's queue. It is never closed; select on
// Done to observe unsubscription.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unregisters the subscription. It is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
}

func (s *Subscription) deliver(ev Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

func now() time.Time {
	return time.Now().UTC()
}
