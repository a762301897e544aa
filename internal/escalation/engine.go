package escalation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"guildwarden/internal/moderation"
)

type ResetMode string

const (
	// ResetSweep clears every strike on each periodic sweep.
	ResetSweep ResetMode = "sweep"
	// ResetIdle clears a strike only after Cooldown without a new escalation.
	ResetIdle ResetMode = "idle"
)

type Config struct {
	TimeoutMinutes int
	ResetMode      ResetMode
	Cooldown       time.Duration
}

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Recorder persists the case for a decision.
type Recorder interface {
	Append(ctx context.Context, record moderation.Record) (moderation.Case, error)
}

type step struct {
	action moderation.Action
	purge  int
}

var ladder = []step{
	{action: moderation.ActionWarn, purge: 5},
	{action: moderation.ActionTimeout, purge: 10},
	{action: moderation.ActionKick, purge: 15},
}

// MaxStrikes is the ordinal of the terminal sanction.
var MaxStrikes = len(ladder)

type Decision struct {
	GuildID         string
	UserID          string
	StrikeOrdinal   int
	Action          moderation.Action
	TimeoutMinutes  int
	MessagesToPurge int
	EventCount      int
}

func (d Decision) Reason() string {
	switch d.StrikeOrdinal {
	case 1:
		return fmt.Sprintf("Auto-moderation: Spam detected (%d messages/minute)", d.EventCount)
	case 2:
		return fmt.Sprintf("Auto-moderation: Repeated spam (%d messages/minute)", d.EventCount)
	default:
		return fmt.Sprintf("Auto-moderation: Excessive spam (%d messages/minute, %d strikes)", d.EventCount, d.StrikeOrdinal)
	}
}

func (d Decision) Record(actorID string, at time.Time) moderation.Record {
	rec := moderation.Record{
		GuildID:         d.GuildID,
		TargetUserID:    d.UserID,
		ModeratorUserID: actorID,
		Action:          d.Action,
		Reason:          d.Reason(),
		CreatedAt:       at,
	}
	if d.Action == moderation.ActionTimeout {
		rec.DurationMinutes = moderation.Minutes(d.TimeoutMinutes)
	}
	return rec
}

type strikeState struct {
	count  int
	lastAt time.Time
}

type Engine struct {
	mu      sync.Mutex
	cfg     Config
	clock   Clock
	ledger  Recorder
	strikes map[string]*strikeState
}

func NewEngine(cfg Config, ledger Recorder) *Engine {
	if cfg.TimeoutMinutes <= 0 {
		cfg.TimeoutMinutes = 5
	}
	if cfg.ResetMode == "" {
		cfg.ResetMode = ResetSweep
	}
	return &Engine{
		cfg:     cfg,
		clock:   realClock{},
		ledger:  ledger,
		strikes: make(map[string]*strikeState),
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// Escalate advances the strike state for the key by exactly one step.
// After the terminal step the key is removed.
func (e *Engine) Escalate(guildID, userID string, eventCount int) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := guildID + ":" + userID
	now := e.clock.Now()

	state := e.strikes[key]
	if state != nil && e.idleExpired(state, now) {
		delete(e.strikes, key)
		state = nil
	}
	if state == nil {
		state = &strikeState{}
		e.strikes[key] = state
	}
	state.count++
	state.lastAt = now

	ordinal := state.count
	current := ladder[ordinal-1]
	if ordinal >= len(ladder) {
		delete(e.strikes, key)
	}

	decision := Decision{
		GuildID:         guildID,
		UserID:          userID,
		StrikeOrdinal:   ordinal,
		Action:          current.action,
		MessagesToPurge: current.purge,
		EventCount:      eventCount,
	}
	if current.action == moderation.ActionTimeout {
		decision.TimeoutMinutes = e.cfg.TimeoutMinutes
	}
	return decision
}

// Commit writes the case for a decision. The strike transition is not
// rolled back when this fails.
func (e *Engine) Commit(ctx context.Context, decision Decision, actorID string) (moderation.Case, error) {
	if e.ledger == nil {
		return moderation.Case{}, fmt.Errorf("escalation: no case recorder configured")
	}
	return e.ledger.Append(ctx, decision.Record(actorID, e.clock.Now()))
}

func (e *Engine) Strikes(guildID, userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.strikes[guildID+":"+userID]
	if state == nil || e.idleExpired(state, e.clock.Now()) {
		return 0
	}
	return state.count
}

func (e *Engine) Reset(guildID, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.strikes, guildID+":"+userID)
}

// Sweep clears strikes according to the reset mode and returns how many
// keys were removed.
func (e *Engine) Sweep(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.ResetMode == ResetSweep {
		cleared := len(e.strikes)
		e.strikes = make(map[string]*strikeState)
		return cleared
	}

	cleared := 0
	for key, state := range e.strikes {
		if e.idleExpired(state, now) {
			delete(e.strikes, key)
			cleared++
		}
	}
	return cleared
}

func (e *Engine) idleExpired(state *strikeState, now time.Time) bool {
	if e.cfg.ResetMode != ResetIdle || e.cfg.Cooldown <= 0 {
		return false
	}
	return now.Sub(state.lastAt) >= e.cfg.Cooldown
}
