package ratewindow

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// eachTracker runs fn against the in-memory tracker and a Redis tracker
// backed by miniredis, which evaluates the Lua script.
func eachTracker(t *testing.T, fn func(t *testing.T, tracker Tracker)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryTracker())
	})
	t.Run("redis", func(t *testing.T) {
		server := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		fn(t, NewRedisTracker(client, ""))
	})
}

func record(t *testing.T, tracker Tracker, guildID, userID string, at time.Time, span time.Duration, max int) Result {
	t.Helper()
	res, err := tracker.Record(context.Background(), guildID, userID, at, span, max)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	return res
}

func TestRecordElevenEventsOverLimit(t *testing.T) {
	eachTracker(t, func(t *testing.T, tracker Tracker) {
		base := time.Unix(1_700_000_000, 0)

		var res Result
		for i := 0; i < 11; i++ {
			res = record(t, tracker, "g1", "u1", base.Add(time.Duration(i)*time.Second), time.Minute, 10)
			if i < 10 && !res.WithinLimit {
				t.Fatalf("event %d unexpectedly over limit", i+1)
			}
		}
		if res.WithinLimit || res.Count != 11 {
			t.Fatalf("expected over limit with count 11, got %+v", res)
		}
	})
}

func TestRecordMatchesHalfOpenInterval(t *testing.T) {
	eachTracker(t, func(t *testing.T, tracker Tracker) {
		rng := rand.New(rand.NewSource(7))
		base := time.Unix(1_700_000_000, 0)
		span := 60 * time.Second

		var seen []time.Time
		current := base
		for i := 0; i < 300; i++ {
			current = current.Add(time.Duration(rng.Intn(20_000)) * time.Millisecond)
			seen = append(seen, current)

			res := record(t, tracker, "g1", "u1", current, span, 10)

			want := 0
			for _, ts := range seen {
				if ts.After(current.Add(-span)) && !ts.After(current) {
					want++
				}
			}
			if res.Count != want {
				t.Fatalf("step %d: expected %d, got %d", i, want, res.Count)
			}
			if res.WithinLimit != (want <= 10) {
				t.Fatalf("step %d: within limit mismatch for count %d", i, want)
			}
		}
	})
}

func TestRecordBoundaryExcludesExactCutoff(t *testing.T) {
	eachTracker(t, func(t *testing.T, tracker Tracker) {
		base := time.Unix(0, 0)

		record(t, tracker, "g1", "u1", base, time.Minute, 10)
		res := record(t, tracker, "g1", "u1", base.Add(time.Minute), time.Minute, 10)
		if res.Count != 1 {
			t.Fatalf("expected hit at cutoff to be dropped, got count %d", res.Count)
		}
	})
}

func TestRecordOutOfOrder(t *testing.T) {
	eachTracker(t, func(t *testing.T, tracker Tracker) {
		base := time.Unix(0, 0)

		record(t, tracker, "g1", "u1", base.Add(10*time.Second), time.Minute, 10)
		res := record(t, tracker, "g1", "u1", base.Add(5*time.Second), time.Minute, 10)
		if res.Count != 1 {
			t.Fatalf("expected only the earlier hit counted at its own time, got %d", res.Count)
		}
		res = record(t, tracker, "g1", "u1", base.Add(11*time.Second), time.Minute, 10)
		if res.Count != 3 {
			t.Fatalf("expected 3, got %d", res.Count)
		}
	})
}

func TestRecordLateEventCountsItself(t *testing.T) {
	eachTracker(t, func(t *testing.T, tracker Tracker) {
		base := time.Unix(0, 0)

		record(t, tracker, "g1", "u1", base.Add(2*time.Minute), time.Minute, 10)
		res := record(t, tracker, "g1", "u1", base, time.Minute, 10)
		if res.Count != 1 || !res.WithinLimit {
			t.Fatalf("expected the late event to count itself, got %+v", res)
		}
		res = record(t, tracker, "g1", "u1", base.Add(2*time.Minute+time.Second), time.Minute, 10)
		if res.Count != 2 {
			t.Fatalf("expected the late event pruned from the newest window, got %d", res.Count)
		}
	})
}

func TestRecordConcurrentSameKey(t *testing.T) {
	eachTracker(t, func(t *testing.T, tracker Tracker) {
		base := time.Unix(0, 0)

		const workers = 64
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				_, _ = tracker.Record(context.Background(), "g1", "u1", base, time.Minute, 1000)
			}()
		}
		wg.Wait()

		res := record(t, tracker, "g1", "u1", base, time.Minute, 1000)
		if res.Count != workers+1 {
			t.Fatalf("expected %d, got %d", workers+1, res.Count)
		}
	})
}

func TestRecordIsolatesGuilds(t *testing.T) {
	eachTracker(t, func(t *testing.T, tracker Tracker) {
		base := time.Unix(0, 0)

		for i := 0; i < 50; i++ {
			record(t, tracker, "gB", "u1", base, time.Minute, 5)
		}
		res := record(t, tracker, "gA", "u1", base, time.Minute, 5)
		if res.Count != 1 || !res.WithinLimit {
			t.Fatalf("expected guild A unaffected, got %+v", res)
		}
	})
}

func TestRedisTrackerSetsExpiry(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tracker := NewRedisTracker(client, "")

	record(t, tracker, "g1", "u1", time.Unix(0, 0), time.Minute, 10)
	if ttl := server.TTL("guildwarden:ratewindow:g1:u1"); ttl != time.Minute {
		t.Fatalf("expected a one minute ttl, got %v", ttl)
	}

	server.FastForward(time.Minute)
	if server.Exists("guildwarden:ratewindow:g1:u1") {
		t.Fatalf("expected the window key to expire")
	}
}

func TestSweepEvictsStaleKeys(t *testing.T) {
	tracker := NewMemoryTracker()
	base := time.Unix(0, 0)

	_, _ = tracker.Record(context.Background(), "g1", "u1", base, time.Minute, 10)
	_, _ = tracker.Record(context.Background(), "g1", "u2", base.Add(50*time.Second), time.Minute, 10)

	evicted, err := tracker.Sweep(context.Background(), base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if tracker.Len() != 1 {
		t.Fatalf("expected 1 key left, got %d", tracker.Len())
	}

	_, _ = tracker.Sweep(context.Background(), base.Add(5*time.Minute))
	if tracker.Len() != 0 {
		t.Fatalf("expected no keys, got %d", tracker.Len())
	}
}

func TestRedisTrackerKey(t *testing.T) {
	tracker := NewRedisTracker(nil, "")
	if got := tracker.key("g1", "u1"); got != "guildwarden:ratewindow:g1:u1" {
		t.Fatalf("unexpected key %q", got)
	}
}
