package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
	"guildwarden/internal/storage/storagetest"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newSQLiteStore(t)
	})
}

func TestMigrateTwice(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Migrate())
}

func TestCounterKeepsNumbersAfterDelete(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.AppendCase(ctx, moderation.Record{GuildID: "g1", TargetUserID: "u1", Action: moderation.ActionWarn})
		require.NoError(t, err)
	}
	_, err := store.db.ExecContext(ctx, `DELETE FROM moderation_cases WHERE guild_id = $1 AND case_number = $2`, "g1", 3)
	require.NoError(t, err)

	next, err := store.NextCaseNumber(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 4, next)

	c, err := store.AppendCase(ctx, moderation.Record{GuildID: "g1", TargetUserID: "u1", Action: moderation.ActionKick})
	require.NoError(t, err)
	assert.Equal(t, 4, c.CaseNumber)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "dsn")
	assert.Error(t, err)
}
