// Package store is the persistent key-value accessor shared by every per-user state holder.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrNotFound is returned by a Backend when a key has never been written.
var ErrNotFound = errors.New("store: key not found")

// Persisted keys. Per-user values append ":<userID>".
const (
	KeyUser         = "tickrify-user"
	KeySubscription = "tickrify-subscription"
	KeyMonthlyUsage = "tickrify-monthly-usage"
	KeyAnalyses     = "tickrify-analyses"
	KeySignals      = "tickrify-signals"
	KeyLocalUsers   = "tickrify-local-users"
	KeyPendingPrice = "tickrify-pending-price"
	KeyPerformance  = "tickrify-performance"
)

// UserKey scopes a key to one user.
func UserKey(key, userID string) string {
	return key + ":" + userID
}

// Backend persists raw JSON blobs by key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Modifier is implemented by backends that can run a read-modify-write of one
// key as a single step, so concurrent writers in other processes are not lost.
// fn may be called more than once when the backend retries.
type Modifier interface {
	Modify(ctx context.Context, key string, fn func(old []byte, found bool) ([]byte, error)) error
}

// Value reads and writes one key of a Backend. Every Get reloads and every
// Update is a read-modify-write, so holders in other processes see each
// other's changes. Write failures are logged and never reach the caller; the
// unsaved value is served from memory until a later write succeeds.
type Value[T any] struct {
	mu      sync.Mutex
	backend Backend
	key     string
	def     T
	last    T
	dirty   bool
}

// Bind returns a Value for key. Nothing is read until Get or Update; a missing
// or unreadable value yields def.
func Bind[T any](backend Backend, key string, def T) *Value[T] {
	return &Value[T]{backend: backend, key: key, def: def, last: def}
}

func (v *Value[T]) load(ctx context.Context) T {
	data, err := v.backend.Load(ctx, v.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return v.def
		}
		log.Printf("store load failed key=%s err=%v", v.key, err)
		return v.last
	}
	return v.decode(data)
}

func (v *Value[T]) decode(data []byte) T {
	var decoded T
	if err := Decode(data, &decoded); err != nil {
		log.Printf("store decode failed key=%s err=%v", v.key, err)
		return v.def
	}
	return decoded
}

// Get returns the value currently stored in the backend.
func (v *Value[T]) Get(ctx context.Context) T {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.dirty {
		return v.last
	}
	v.last = v.load(ctx)
	return v.last
}

// Set replaces the value and persists it.
func (v *Value[T]) Set(ctx context.Context, val T) {
	v.Update(ctx, func(T) T { return val })
}

// Update applies fn to the stored value, persists the result and returns it.
func (v *Value[T]) Update(ctx context.Context, fn func(T) T) T {
	v.mu.Lock()
	defer v.mu.Unlock()

	if m, ok := v.backend.(Modifier); ok && !v.dirty {
		var (
			next   T
			called bool
		)
		err := m.Modify(ctx, v.key, func(old []byte, found bool) ([]byte, error) {
			cur := v.def
			if found {
				cur = v.decode(old)
			}
			next, called = fn(cur), true
			return json.Marshal(next)
		})
		if err != nil {
			log.Printf("store save failed key=%s err=%v", v.key, err)
			if !called {
				next = fn(v.last)
			}
			v.dirty = true
		}
		v.last = next
		return next
	}

	cur := v.last
	if !v.dirty {
		cur = v.load(ctx)
	}
	next := fn(cur)
	v.last = next
	data, err := json.Marshal(next)
	if err != nil {
		log.Printf("store encode failed key=%s err=%v", v.key, err)
		return next
	}
	if err := v.backend.Save(ctx, v.key, data); err != nil {
		log.Printf("store save failed key=%s err=%v", v.key, err)
		v.dirty = true
		return next
	}
	v.dirty = false
	return next
}

// Clear removes the key from the backend and resets the value to def.
func (v *Value[T]) Clear(ctx context.Context) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last, v.dirty = v.def, false
	if err := v.backend.Delete(ctx, v.key); err != nil && !errors.Is(err, ErrNotFound) {
		log.Printf("store delete failed key=%s err=%v", v.key, err)
	}
}

// Decode unmarshals data into dst and revives any object field named
// "timestamp" holding an RFC3339 string as a time.Time.
func Decode(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	switch d := dst.(type) {
	case *any:
		*d = revive(*d)
	case *map[string]any:
		*d = revive(*d).(map[string]any)
	case *[]any:
		*d = revive(*d).([]any)
	}
	return nil
}

func revive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			if k == "timestamp" {
				if s, ok := inner.(string); ok {
					if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
						t[k] = ts
						continue
					}
				}
			}
			t[k] = revive(inner)
		}
		return t
	case []any:
		for i := range t {
			t[i] = revive(t[i])
		}
		return t
	}
	return v
}
