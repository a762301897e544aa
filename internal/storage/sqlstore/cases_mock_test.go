package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildwarden/internal/moderation"
	"guildwarden/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := New(db)
	store.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return store, mock
}

func warnRecord() moderation.Record {
	return moderation.Record{GuildID: "g1", TargetUserID: "u1", ModeratorUserID: "bot", Action: moderation.ActionWarn, Reason: "spam"}
}

func TestAppendCaseRollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO case_counters")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"last_case"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO moderation_cases")).
		WithArgs(sqlmock.AnyArg(), "g1", 7, "u1", "bot", "warn", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1_700_000_000_000)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.AppendCase(context.Background(), warnRecord())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCaseRetriesUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO case_counters")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"last_case"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO moderation_cases")).
		WillReturnError(unique)
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO case_counters")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"last_case"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO moderation_cases")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	c, err := store.AppendCase(context.Background(), warnRecord())
	require.NoError(t, err)
	assert.Equal(t, 4, c.CaseNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendCaseGivesUpAfterRepeatedConflicts(t *testing.T) {
	store, mock := newMockStore(t)

	for i := 0; i < appendCaseAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO case_counters")).
			WillReturnRows(sqlmock.NewRows([]string{"last_case"}).AddRow(1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO moderation_cases")).
			WillReturnError(errors.New("UNIQUE constraint failed: moderation_cases.guild_id, moderation_cases.case_number"))
		mock.ExpectRollback()
	}

	_, err := store.AppendCase(context.Background(), warnRecord())
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetServerConfigNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM server_configs WHERE guild_id = $1")).
		WithArgs("g1").
		WillReturnRows(sqlmock.NewRows([]string{"guild_id"}))

	_, err := store.GetServerConfig(context.Background(), "g1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
