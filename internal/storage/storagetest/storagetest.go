// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
)

// Run executes the suite; newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("ServerConfig", func(t *testing.T) { testServerConfig(t, newStore(t)) })
	t.Run("CaseNumbering", func(t *testing.T) { testCaseNumbering(t, newStore(t)) })
	t.Run("ConcurrentCases", func(t *testing.T) { testConcurrentCases(t, newStore(t)) })
	t.Run("CaseOrdering", func(t *testing.T) { testCaseOrdering(t, newStore(t)) })
	t.Run("Warnings", func(t *testing.T) { testWarnings(t, newStore(t)) })
	t.Run("Tickets", func(t *testing.T) { testTickets(t, newStore(t)) })
	t.Run("CustomCommands", func(t *testing.T) { testCustomCommands(t, newStore(t)) })
	t.Run("MessageLogs", func(t *testing.T) { testMessageLogs(t, newStore(t)) })
}

func testServerConfig(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, err := store.GetServerConfig(ctx, "g1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	cfg := storage.DefaultServerConfig("g1", "Guild One")
	cfg.ModeratorRoleIDs = []string{"r1", "r2"}
	cfg.AdminRoleIDs = []string{"r9"}
	cfg.MaxMessagesPerMinute = 5
	saved, err := store.UpsertServerConfig(ctx, cfg)
	require.NoError(t, err)
	assert.False(t, saved.CreatedAt.IsZero())

	saved.EnableSpamProtection = false
	saved.ModerationLogChannelID = "c-log"
	_, err = store.UpsertServerConfig(ctx, saved)
	require.NoError(t, err)

	got, err := store.GetServerConfig(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Guild One", got.Name)
	assert.Equal(t, "c-log", got.ModerationLogChannelID)
	assert.False(t, got.EnableSpamProtection)
	assert.Equal(t, 5, got.MaxMessagesPerMinute)
	assert.Equal(t, []string{"r1", "r2"}, got.ModeratorRoleIDs)
	assert.Equal(t, []string{"r9"}, got.AdminRoleIDs)

	policy := got.Policy()
	assert.False(t, policy.EnableSpamProtection)
	assert.Equal(t, 5, policy.MaxMessages())
}

func record(guildID string, action moderation.Action, at time.Time) moderation.Record {
	return moderation.Record{
		GuildID:         guildID,
		TargetUserID:    "u1",
		ModeratorUserID: "mod",
		Action:          action,
		Reason:          "test",
		CreatedAt:       at,
	}
}

func testCaseNumbering(t *testing.T, store storage.Store) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	next, err := store.NextCaseNumber(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	for i := 1; i <= 3; i++ {
		c, err := store.AppendCase(ctx, record("g1", moderation.ActionWarn, base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.Equal(t, i, c.CaseNumber)
		assert.NotEmpty(t, c.ID)
	}

	other, err := store.AppendCase(ctx, record("g2", moderation.ActionKick, base))
	require.NoError(t, err)
	assert.Equal(t, 1, other.CaseNumber, "guilds number independently")

	next, err = store.NextCaseNumber(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 4, next)

	timeout := record("g1", moderation.ActionTimeout, base.Add(10*time.Second))
	timeout.DurationMinutes = moderation.Minutes(5)
	timeout.Reason = ""
	created, err := store.AppendCase(ctx, timeout)
	require.NoError(t, err)

	got, err := store.GetCase(ctx, "g1", created.CaseNumber)
	require.NoError(t, err)
	assert.Equal(t, moderation.ActionTimeout, got.Action)
	require.NotNil(t, got.DurationMinutes)
	assert.Equal(t, 5, *got.DurationMinutes)
	assert.Equal(t, "", got.Reason)
	assert.True(t, got.CreatedAt.Equal(timeout.CreatedAt))

	_, err = store.GetCase(ctx, "g1", 99)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.AppendCase(ctx, record("g1", moderation.Action("purge"), base))
	assert.True(t, errors.Is(err, moderation.ErrUnknownAction))
}

func testConcurrentCases(t *testing.T, store storage.Store) {
	ctx := context.Background()

	first, err := store.AppendCase(ctx, record("g1", moderation.ActionWarn, time.Now()))
	require.NoError(t, err)

	const workers = 40
	numbers := make([]int, 0, workers)
	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make(chan error, workers*2)

	wg.Add(workers * 2)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			c, err := store.AppendCase(ctx, record("g1", moderation.ActionWarn, time.Now()))
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			numbers = append(numbers, c.CaseNumber)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			if _, err := store.AppendCase(ctx, record("g2", moderation.ActionWarn, time.Now())); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sort.Ints(numbers)
	require.Len(t, numbers, workers)
	for i, n := range numbers {
		assert.Equal(t, first.CaseNumber+1+i, n)
	}

	next, err := store.NextCaseNumber(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, workers+1, next)
}

func testCaseOrdering(t *testing.T, store storage.Store) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < 5; i++ {
		_, err := store.AppendCase(ctx, record("g1", moderation.ActionWarn, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}
	// same timestamp as the newest: case number breaks the tie
	_, err := store.AppendCase(ctx, record("g1", moderation.ActionBan, base.Add(4*time.Minute)))
	require.NoError(t, err)

	cases, err := store.ListCases(ctx, "g1", 3)
	require.NoError(t, err)
	require.Len(t, cases, 3)
	assert.Equal(t, []int{6, 5, 4}, []int{cases[0].CaseNumber, cases[1].CaseNumber, cases[2].CaseNumber})

	all, err := store.ListCases(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	none, err := store.ListCases(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testWarnings(t *testing.T, store storage.Store) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < 12; i++ {
		_, err := store.AddWarning(ctx, storage.Warning{GuildID: "g1", UserID: "u1", ModeratorID: "m", Reason: "r", CreatedAt: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, err)
	}
	_, err := store.AddWarning(ctx, storage.Warning{GuildID: "g1", UserID: "u2", ModeratorID: "m", Reason: "r"})
	require.NoError(t, err)

	warnings, err := store.ListWarnings(ctx, "g1", "u1", 0)
	require.NoError(t, err)
	require.Len(t, warnings, storage.DefaultWarningListLimit)
	assert.True(t, warnings[0].CreatedAt.Equal(base.Add(11*time.Second)))
	assert.True(t, warnings[0].CreatedAt.After(warnings[1].CreatedAt))
}

func testTickets(t *testing.T, store storage.Store) {
	ctx := context.Background()

	ticket, err := store.CreateTicket(ctx, storage.Ticket{GuildID: "g1", ChannelID: "c1", UserID: "u1", Subject: "help"})
	require.NoError(t, err)
	assert.Equal(t, storage.TicketOpen, ticket.Status)

	_, err = store.CreateTicket(ctx, storage.Ticket{GuildID: "g1", ChannelID: "c2", UserID: "u1"})
	require.ErrorIs(t, err, storage.ErrConflict)

	open, err := store.GetOpenTicket(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, open.ID)

	byChannel, err := store.GetTicketByChannel(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, byChannel.ID)

	closedAt := time.UnixMilli(1_700_000_100_000)
	closed, err := store.CloseTicket(ctx, ticket.ID, closedAt)
	require.NoError(t, err)
	assert.Equal(t, storage.TicketClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.ClosedAt.Equal(closedAt))

	_, err = store.CloseTicket(ctx, ticket.ID, closedAt)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetOpenTicket(ctx, "g1", "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.CreateTicket(ctx, storage.Ticket{GuildID: "g1", ChannelID: "c3", UserID: "u1"})
	require.NoError(t, err, "a closed ticket does not block a new one")

	tickets, err := store.ListTickets(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, tickets, 2)

	_, err = store.GetTicketByChannel(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testCustomCommands(t *testing.T, store storage.Store) {
	ctx := context.Background()

	_, err := store.CreateCustomCommand(ctx, storage.CustomCommand{GuildID: "g1", Name: "Rules", Response: "be nice", CreatedBy: "m"})
	require.NoError(t, err)
	_, err = store.CreateCustomCommand(ctx, storage.CustomCommand{GuildID: "g1", Name: "faq", Response: "read it"})
	require.NoError(t, err)
	_, err = store.CreateCustomCommand(ctx, storage.CustomCommand{GuildID: "g2", Name: "rules", Response: "other guild"})
	require.NoError(t, err)

	_, err = store.CreateCustomCommand(ctx, storage.CustomCommand{GuildID: "g1", Name: "rules", Response: "dup"})
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := store.GetCustomCommand(ctx, "g1", "RULES")
	require.NoError(t, err)
	assert.Equal(t, "be nice", got.Response)

	list, err := store.ListCustomCommands(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "faq", list[0].Name)
	assert.Equal(t, "rules", list[1].Name)

	require.NoError(t, store.DeleteCustomCommand(ctx, "g1", "rules"))
	assert.ErrorIs(t, store.DeleteCustomCommand(ctx, "g1", "rules"), storage.ErrNotFound)
	_, err = store.GetCustomCommand(ctx, "g1", "rules")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testMessageLogs(t *testing.T, store storage.Store) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)

	for i := 0; i < 3; i++ {
		_, err := store.AddMessageLog(ctx, storage.MessageLog{
			GuildID:   "g1",
			ChannelID: "c1",
			MessageID: "m",
			UserID:    "u1",
			Content:   "hello",
			Action:    storage.MessageDeleted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	logs, err := store.ListMessageLogs(ctx, "g1", 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].CreatedAt.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, storage.MessageDeleted, logs[0].Action)

	removed, err := store.CleanupMessageLogs(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	logs, err = store.ListMessageLogs(ctx, "g1", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
