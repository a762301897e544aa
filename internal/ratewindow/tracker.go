package ratewindow

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

type Result struct {
	WithinLimit bool
	Count       int
}

// Tracker counts events per (guild, user) over a sliding window.
type Tracker interface {
	Record(ctx context.Context, guildID, userID string, at time.Time, span time.Duration, max int) (Result, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type shard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// MemoryTracker is a sharded in-process Tracker. Record never fails.
type MemoryTracker struct {
	shards [shardCount]*shard
}

var _ Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker() *MemoryTracker {
	t := &MemoryTracker{}
	for i := range t.shards {
		t.shards[i] = &shard{windows: make(map[string]*window)}
	}
	return t
}

func (t *MemoryTracker) Record(_ context.Context, guildID, userID string, at time.Time, span time.Duration, max int) (Result, error) {
	key := Key(guildID, userID)
	s := t.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil {
		w = &window{}
		s.windows[key] = w
	}
	count := w.add(at, span)
	return Result{WithinLimit: count <= max, Count: count}, nil
}

// Sweep drops stale hits and evicts keys left empty.
func (t *MemoryTracker) Sweep(_ context.Context, now time.Time) (int, error) {
	evicted := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for key, w := range s.windows {
			w.prune(now)
			if w.empty() {
				delete(s.windows, key)
				evicted++
			}
		}
		s.mu.Unlock()
	}
	return evicted, nil
}

// Len reports the number of tracked keys.
func (t *MemoryTracker) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += len(s.windows)
		s.mu.Unlock()
	}
	return total
}

func (t *MemoryTracker) shardFor(key string) *shard {
	return t.shards[xxhash.Sum64String(key)%shardCount]
}

func Key(guildID, userID string) string {
	return guildID + ":" + userID
}
