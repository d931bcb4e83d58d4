// Package events carries in-process notifications between billing, analysis and their observers.
package events

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindUpgradeRequired     Kind = "upgrade_required"
	KindSubscriptionUpdated Kind = "subscription_updated"
	KindSignalGenerated     Kind = "signal_generated"
)

// Event is one notification. Payload is one of the *Payload types or a model value.
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	UserID  string    `json:"user_id"`
	Email   string    `json:"-"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`

	// Origin names the process that first published the event over AMQP.
	Origin string `json:"origin,omitempty"`
}

type UpgradeRequiredPayload struct {
	PlanType string `json:"plan_type"`
	Count    int    `json:"count"`
	Limit    int    `json:"limit"`
}

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type Handler func(ctx context.Context, e Event)

// Bus delivers each event synchronously to every subscriber in subscription order.
// Subscribers doing network I/O use SubscribeAsync.
type Bus struct {
	mu    sync.RWMutex
	next  int
	order []int
	subs  map[int]Handler
}

func NewBus() *Bus {
	return &Bus{subs: map[int]Handler{}}
}

// Subscribe registers fn. The returned func removes it.
func (b *Bus) Subscribe(fn Handler) (cancel func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish stamps e and hands it to every subscriber. A panicking subscriber is logged and skipped.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		deliver(ctx, h, e)
	}
}

type queued struct {
	ctx context.Context
	e   Event
}

// SubscribeAsync registers fn behind a queue of buffer events drained by one
// goroutine, so Publish never waits on fn. Each call gets timeout, detached
// from the publisher's cancellation. Events arriving on a full queue are
// dropped. cancel unsubscribes, delivers what is queued and waits for it.
func (b *Bus) SubscribeAsync(fn Handler, buffer int, timeout time.Duration) (cancel func()) {
	queue := make(chan queued, buffer)
	done := make(chan struct{})
	var wg sync.WaitGroup

	run := func(q queued) {
		ctx, cancel := context.WithTimeout(q.ctx, timeout)
		defer cancel()
		deliver(ctx, fn, q.e)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case q := <-queue:
				run(q)
			case <-done:
				for {
					select {
					case q := <-queue:
						run(q)
					default:
						return
					}
				}
			}
		}
	}()

	unsubscribe := b.Subscribe(func(ctx context.Context, e Event) {
		select {
		case queue <- queued{ctx: context.WithoutCancel(ctx), e: e}:
		default:
			log.Printf("event queue full, dropping kind=%s user=%s", e.Kind, e.UserID)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(done)
			wg.Wait()
		})
	}
}

func deliver(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event subscriber panic kind=%s user=%s err=%v", e.Kind, e.UserID, r)
		}
	}()
	h(ctx, e)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
