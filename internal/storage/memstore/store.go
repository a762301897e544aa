package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
)

// Store keeps everything in memory behind one mutex. With a path set,
// every write is flushed to a JSON snapshot that Open reloads.
type Store struct {
	mu    sync.Mutex
	path  string
	now   func() time.Time
	state snapshot
}

type snapshot struct {
	Configs     map[string]storage.ServerConfig  `json:"configs"`
	Counters    map[string]int                   `json:"case_counters"`
	Cases       map[string][]moderation.Case     `json:"cases"`
	Warnings    []storage.Warning                `json:"warnings"`
	Tickets     []storage.Ticket                 `json:"tickets"`
	Commands    map[string]storage.CustomCommand `json:"custom_commands"`
	MessageLogs []storage.MessageLog             `json:"message_logs"`
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{now: time.Now, state: emptySnapshot()}
}

// Open loads the snapshot at path, starting empty when it does not exist.
func Open(path string) (*Store, error) {
	s := New()
	s.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &s.state); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	s.state.fill()
	return s, nil
}

func emptySnapshot() snapshot {
	var snap snapshot
	snap.fill()
	return snap
}

func (s *snapshot) fill() {
	if s.Configs == nil {
		s.Configs = make(map[string]storage.ServerConfig)
	}
	if s.Counters == nil {
		s.Counters = make(map[string]int)
	}
	if s.Cases == nil {
		s.Cases = make(map[string][]moderation.Case)
	}
	if s.Commands == nil {
		s.Commands = make(map[string]storage.CustomCommand)
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// commitLocked flushes the snapshot. When the flush fails, undo restores
// the in-memory state so a failed write leaves nothing behind.
func (s *Store) commitLocked(undo func()) error {
	if err := s.flushLocked(); err != nil {
		undo()
		return err
	}
	return nil
}

func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *Store) GetServerConfig(_ context.Context, guildID string) (storage.ServerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.state.Configs[guildID]
	if !ok {
		return storage.ServerConfig{}, storage.ErrNotFound
	}
	return cloneConfig(cfg), nil
}

func (s *Store) UpsertServerConfig(_ context.Context, cfg storage.ServerConfig) (storage.ServerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Truncate(time.Millisecond)
	existing, had := s.state.Configs[cfg.GuildID]
	if had {
		cfg.CreatedAt = existing.CreatedAt
	} else if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	s.state.Configs[cfg.GuildID] = cloneConfig(cfg)
	err := s.commitLocked(func() {
		if had {
			s.state.Configs[cfg.GuildID] = existing
		} else {
			delete(s.state.Configs, cfg.GuildID)
		}
	})
	if err != nil {
		return storage.ServerConfig{}, err
	}
	return cloneConfig(cfg), nil
}

func cloneConfig(cfg storage.ServerConfig) storage.ServerConfig {
	cfg.ModeratorRoleIDs = append([]string(nil), cfg.ModeratorRoleIDs...)
	cfg.AdminRoleIDs = append([]string(nil), cfg.AdminRoleIDs...)
	return cfg
}

func (s *Store) NextCaseNumber(_ context.Context, guildID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextCaseLocked(guildID), nil
}

func (s *Store) nextCaseLocked(guildID string) int {
	if last, ok := s.state.Counters[guildID]; ok {
		return last + 1
	}
	highest := 0
	for _, c := range s.state.Cases[guildID] {
		if c.CaseNumber > highest {
			highest = c.CaseNumber
		}
	}
	return highest + 1
}

func (s *Store) AppendCase(_ context.Context, record moderation.Record) (moderation.Case, error) {
	if err := record.Validate(); err != nil {
		return moderation.Case{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	record.CreatedAt = record.CreatedAt.Truncate(time.Millisecond)
	if record.DurationMinutes != nil {
		record.DurationMinutes = moderation.Minutes(*record.DurationMinutes)
	}

	guildID := record.GuildID
	number := s.nextCaseLocked(guildID)
	c := moderation.Case{ID: uuid.NewString(), CaseNumber: number, Record: record}

	lastCase, hadCounter := s.state.Counters[guildID]
	prior, hadCases := s.state.Cases[guildID]
	s.state.Counters[guildID] = number
	s.state.Cases[guildID] = append(prior, c)
	err := s.commitLocked(func() {
		if hadCounter {
			s.state.Counters[guildID] = lastCase
		} else {
			delete(s.state.Counters, guildID)
		}
		if hadCases {
			s.state.Cases[guildID] = prior
		} else {
			delete(s.state.Cases, guildID)
		}
	})
	if err != nil {
		return moderation.Case{}, err
	}
	return c, nil
}

func (s *Store) GetCase(_ context.Context, guildID string, caseNumber int) (moderation.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.state.Cases[guildID] {
		if c.CaseNumber == caseNumber {
			return c, nil
		}
	}
	return moderation.Case{}, storage.ErrNotFound
}

func (s *Store) ListCases(_ context.Context, guildID string, limit int) ([]moderation.Case, error) {
	s.mu.Lock()
	cases := append([]moderation.Case(nil), s.state.Cases[guildID]...)
	s.mu.Unlock()

	sort.Slice(cases, func(i, j int) bool {
		if !cases[i].CreatedAt.Equal(cases[j].CreatedAt) {
			return cases[i].CreatedAt.After(cases[j].CreatedAt)
		}
		return cases[i].CaseNumber > cases[j].CaseNumber
	})
	return truncate(cases, storage.ClampLimit(limit, storage.DefaultCaseListLimit)), nil
}

func truncate[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func commandKey(guildID, name string) string {
	return guildID + ":" + strings.ToLower(name)
}
