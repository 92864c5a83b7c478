package entities

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davis-data/davis-storage/pkg/apperrors"
	"github.com/davis-data/davis-storage/pkg/logging"
	"github.com/davis-data/davis-storage/pkg/models"
)

// mockQuerier records the last statement issued. Query and QueryRow fail the
// test when a case is not supposed to reach the database; setting queryErr
// lets a test drive the write path up to its first read instead.
type mockQuerier struct {
	t        *testing.T
	execSQL  string
	execArgs []any
	execTag  pgconn.CommandTag
	execErr  error
	queryErr error
}

func (m *mockQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execSQL = sql
	m.execArgs = args
	return m.execTag, m.execErr
}

func (m *mockQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	m.t.Fatal("unexpected Query call")
	return nil, nil
}

func (m *mockQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	m.t.Fatal("unexpected QueryRow call")
	return nil
}

func newTestStorage(t *testing.T) (Storage, *mockQuerier) {
	q := &mockQuerier{t: t}
	return NewStorage(q, newTestRegistry(), zap.NewNop()), q
}

func TestCreateRejectsNonZeroIDs(t *testing.T) {
	s, _ := newTestStorage(t)

	fresh := models.NewFolder("fresh", 0)
	stale := models.NewFolder("stale", 0)
	stale.ID = 9

	_, err := s.Create(context.Background(), "master", []models.Entity{fresh, stale})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "database records must have empty id properties when inserting new records")
}

func TestCreateRejectsUnknownEntityType(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Create(context.Background(), "master", []models.Entity{unknownEntity{}})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), `bad entity type: "widget"`)
}

// One invalid entity anywhere in the batch stops the whole batch before any
// insert happens.
func TestCreateFailsFastOnInvalidEntity(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Create(context.Background(), "master", []models.Entity{
		models.NewFolder("ok", 0),
		models.NewUser("NoEmail", "", "hash"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestCreateEmptyBatch(t *testing.T) {
	s, _ := newTestStorage(t)

	result, err := s.Create(context.Background(), "master", nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestUpdateRequiresIDs(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Update(context.Background(), "master", []models.Entity{models.NewFolder("unsaved", 0)})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "database records must not have empty id properties when updating records")
}

func TestUpdateValidatesBeforeWriting(t *testing.T) {
	s, _ := newTestStorage(t)

	u := models.NewUser("Pat", "", "hash")
	u.ID = 4

	_, err := s.Update(context.Background(), "master", []models.Entity{u})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDeleteFiltersInvalidIDs(t *testing.T) {
	s, q := newTestStorage(t)
	q.execTag = pgconn.NewCommandTag("DELETE 2")

	count, err := s.Delete(context.Background(), "master", models.EntityTypeFolder,
		[]any{"", 8, nil, 9, 56.7, map[string]any{}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, `DELETE FROM "master"."folders" WHERE id = ANY($1)`, q.execSQL)
	require.Len(t, q.execArgs, 1)
	assert.Equal(t, []int64{8, 9}, q.execArgs[0])
}

func TestDeleteNoUsableIDs(t *testing.T) {
	s, q := newTestStorage(t)
	q.execTag = pgconn.NewCommandTag("DELETE 0")

	count, err := s.Delete(context.Background(), "master", models.EntityTypeFolder, []any{"", nil})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, []int64{}, q.execArgs[0])
}

func TestDeleteRejectsUnknownEntityType(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Delete(context.Background(), "master", "widget", []any{1})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestQueryByIDsEmptyListSkipsDatabase(t *testing.T) {
	// The mock querier fails the test on any Query call, so an empty id
	// list must return without touching the database.
	s, _ := newTestStorage(t)

	found, err := s.QueryByIDs(context.Background(), "master", models.EntityTypeFolder, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

// Record-level debug logging must never expose credential columns.
func TestInsertLogsRedactPasswords(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	q := &mockQuerier{t: t, queryErr: errors.New("insert aborted")}
	s := NewStorage(q, newTestRegistry(), zap.New(core))

	_, err := s.Create(context.Background(), "master", []models.Entity{
		models.NewUser("Pat", "pat@example.com", "bcrypt-hash"),
	})
	require.Error(t, err)

	entries := logs.FilterMessage("Inserting entity record").All()
	require.Len(t, entries, 1)
	record, ok := entries[0].ContextMap()["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, logging.RedactedText, record["password"])
	assert.Equal(t, "pat@example.com", record["email"])
}

func TestQueryRejectsBadCatalog(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Query(context.Background(), "master; DROP SCHEMA web", models.EntityTypeFolder, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestQueryRejectsBadExpression(t *testing.T) {
	s, _ := newTestStorage(t)

	_, err := s.Query(context.Background(), "master", models.EntityTypeFolder,
		models.Expression{"bogus", "name", "x"}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

type unknownEntity struct{}

func (unknownEntity) EntityType() string                 { return "widget" }
func (unknownEntity) EntityID() int64                    { return 0 }
func (unknownEntity) EntityName() string                 { return "w" }
func (unknownEntity) CreatedAt() time.Time               { return time.Time{} }
func (unknownEntity) ModifiedAt() time.Time              { return time.Time{} }
func (unknownEntity) ExtendedProperties() map[string]any { return nil }
