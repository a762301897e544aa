package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"guildwarden/internal/storage"
)

func (s *Store) AddWarning(_ context.Context, warning storage.Warning) (storage.Warning, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if warning.ID == "" {
		warning.ID = uuid.NewString()
	}
	if warning.CreatedAt.IsZero() {
		warning.CreatedAt = s.now()
	}
	warning.CreatedAt = warning.CreatedAt.Truncate(time.Millisecond)
	prior := s.state.Warnings
	s.state.Warnings = append(prior, warning)
	if err := s.commitLocked(func() { s.state.Warnings = prior }); err != nil {
		return storage.Warning{}, err
	}
	return warning, nil
}

func (s *Store) ListWarnings(_ context.Context, guildID, userID string, limit int) ([]storage.Warning, error) {
	s.mu.Lock()
	var warnings []storage.Warning
	for _, w := range s.state.Warnings {
		if w.GuildID == guildID && w.UserID == userID {
			warnings = append(warnings, w)
		}
	}
	s.mu.Unlock()

	sort.Slice(warnings, func(i, j int) bool {
		return newer(warnings[i].CreatedAt, warnings[i].ID, warnings[j].CreatedAt, warnings[j].ID)
	})
	return truncate(warnings, storage.ClampLimit(limit, storage.DefaultWarningListLimit)), nil
}

func (s *Store) CreateTicket(_ context.Context, ticket storage.Ticket) (storage.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.state.Tickets {
		if existing.GuildID == ticket.GuildID && existing.UserID == ticket.UserID && existing.Status == storage.TicketOpen {
			return storage.Ticket{}, storage.ErrConflict
		}
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = s.now()
	}
	ticket.CreatedAt = ticket.CreatedAt.Truncate(time.Millisecond)
	ticket.Status = storage.TicketOpen
	ticket.ClosedAt = nil
	prior := s.state.Tickets
	s.state.Tickets = append(prior, ticket)
	if err := s.commitLocked(func() { s.state.Tickets = prior }); err != nil {
		return storage.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicketByChannel(_ context.Context, channelID string) (storage.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *storage.Ticket
	for i := range s.state.Tickets {
		t := s.state.Tickets[i]
		if t.ChannelID == channelID && (found == nil || t.CreatedAt.After(found.CreatedAt)) {
			found = &t
		}
	}
	if found == nil {
		return storage.Ticket{}, storage.ErrNotFound
	}
	return *found, nil
}

func (s *Store) GetOpenTicket(_ context.Context, guildID, userID string) (storage.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.state.Tickets {
		if t.GuildID == guildID && t.UserID == userID && t.Status == storage.TicketOpen {
			return t, nil
		}
	}
	return storage.Ticket{}, storage.ErrNotFound
}

func (s *Store) ListTickets(_ context.Context, guildID string) ([]storage.Ticket, error) {
	s.mu.Lock()
	var tickets []storage.Ticket
	for _, t := range s.state.Tickets {
		if t.GuildID == guildID {
			tickets = append(tickets, t)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
	return tickets, nil
}

func (s *Store) CloseTicket(_ context.Context, ticketID string, at time.Time) (storage.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.Tickets {
		t := &s.state.Tickets[i]
		if t.ID != ticketID || t.Status != storage.TicketOpen {
			continue
		}
		open := *t
		closed := at.Truncate(time.Millisecond)
		t.Status = storage.TicketClosed
		t.ClosedAt = &closed
		if err := s.commitLocked(func() { *t = open }); err != nil {
			return storage.Ticket{}, err
		}
		return *t, nil
	}
	return storage.Ticket{}, storage.ErrNotFound
}

func (s *Store) CreateCustomCommand(_ context.Context, cmd storage.CustomCommand) (storage.CustomCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd.Name = strings.ToLower(cmd.Name)
	key := commandKey(cmd.GuildID, cmd.Name)
	if _, ok := s.state.Commands[key]; ok {
		return storage.CustomCommand{}, storage.ErrConflict
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = s.now()
	}
	cmd.CreatedAt = cmd.CreatedAt.Truncate(time.Millisecond)
	s.state.Commands[key] = cmd
	if err := s.commitLocked(func() { delete(s.state.Commands, key) }); err != nil {
		return storage.CustomCommand{}, err
	}
	return cmd, nil
}

func (s *Store) GetCustomCommand(_ context.Context, guildID, name string) (storage.CustomCommand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, ok := s.state.Commands[commandKey(guildID, name)]
	if !ok {
		return storage.CustomCommand{}, storage.ErrNotFound
	}
	return cmd, nil
}

func (s *Store) ListCustomCommands(_ context.Context, guildID string) ([]storage.CustomCommand, error) {
	s.mu.Lock()
	var commands []storage.CustomCommand
	for _, cmd := range s.state.Commands {
		if cmd.GuildID == guildID {
			commands = append(commands, cmd)
		}
	}
	s.mu.Unlock()

	sort.Slice(commands, func(i, j int) bool { return commands[i].Name < commands[j].Name })
	return commands, nil
}

func (s *Store) DeleteCustomCommand(_ context.Context, guildID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := commandKey(guildID, name)
	cmd, ok := s.state.Commands[key]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.state.Commands, key)
	return s.commitLocked(func() { s.state.Commands[key] = cmd })
}

func (s *Store) AddMessageLog(_ context.Context, entry storage.MessageLog) (storage.MessageLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	entry.CreatedAt = entry.CreatedAt.Truncate(time.Millisecond)
	prior := s.state.MessageLogs
	s.state.MessageLogs = append(prior, entry)
	if err := s.commitLocked(func() { s.state.MessageLogs = prior }); err != nil {
		return storage.MessageLog{}, err
	}
	return entry, nil
}

func (s *Store) ListMessageLogs(_ context.Context, guildID string, limit int) ([]storage.MessageLog, error) {
	s.mu.Lock()
	var logs []storage.MessageLog
	for _, entry := range s.state.MessageLogs {
		if entry.GuildID == guildID {
			logs = append(logs, entry)
		}
	}
	s.mu.Unlock()

	sort.Slice(logs, func(i, j int) bool {
		return newer(logs[i].CreatedAt, logs[i].ID, logs[j].CreatedAt, logs[j].ID)
	})
	return truncate(logs, storage.ClampLimit(limit, storage.DefaultMessageLogLimit)), nil
}

func (s *Store) CleanupMessageLogs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.state.MessageLogs
	kept := make([]storage.MessageLog, 0, len(prior))
	var removed int64
	for _, entry := range prior {
		if entry.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	s.state.MessageLogs = kept
	if removed == 0 {
		return 0, nil
	}
	if err := s.commitLocked(func() { s.state.MessageLogs = prior }); err != nil {
		return 0, err
	}
	return removed, nil
}

// newer orders by time descending, then id descending, matching the SQL store.
func newer(at time.Time, id string, otherAt time.Time, otherID string) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return id > otherID
}
