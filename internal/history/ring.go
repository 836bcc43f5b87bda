// Package history keeps the bounded recent-case history used for rolling
// display metrics.
package history

import (
	"encoding/json"
	"log/slog"

	"github.com/lehigh-university-libraries/radtrack/internal/localstore"
)

// Capacity is the number of recent entries retained.
const Capacity = 5

// Ring is a fixed-capacity FIFO buffer. Pushing onto a full ring evicts the oldest entry.
type Ring[T any] struct {
	buf   []T
	start int
	size  int
}

// NewRing returns an empty ring holding at most capacity entries.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) Cap() int { return len(r.buf) }
func (r *Ring[T]) Len() int { return r.size }

// Push appends v, evicting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

// Items returns the entries oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// MarshalJSON encodes the ring as a plain array, oldest first.
func (r *Ring[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Items())
}

// UnmarshalJSON replaces the contents with the last Cap() entries of an array.
func (r *Ring[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if len(r.buf) == 0 {
		r.buf = make([]T, Capacity)
	}
	r.start, r.size = 0, 0
	for _, v := range items {
		r.Push(v)
	}
	return nil
}

// Load reads a ring from field. Missing or malformed data yields an empty ring.
func Load[T any](ns *localstore.Namespace, field string) *Ring[T] {
	r := NewRing[T](Capacity)
	raw := ns.String(field)
	if raw == "" {
		return r
	}
	if err := json.Unmarshal([]byte(raw), r); err != nil {
		slog.Warn("Discarding malformed history", "key", ns.Key(field), "err", err)
		return NewRing[T](Capacity)
	}
	return r
}

// Save writes the ring to field as a JSON array.
func Save[T any](ns *localstore.Namespace, field string, r *Ring[T]) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return ns.SetString(field, string(data))
}
