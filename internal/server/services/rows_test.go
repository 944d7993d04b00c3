package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survivalcodex/codex/internal/common"
	"github.com/survivalcodex/codex/internal/dbx"
	"github.com/survivalcodex/codex/internal/server/models"
	"github.com/survivalcodex/codex/internal/server/repositories/rows"
)

func newRowService(t *testing.T) (*RowService, *fakeRepoManager) {
	t.Helper()
	db, _ := newSQLMockDB(t)
	rm := newFakeRepoManager()
	return NewRowService(db, rm), rm
}

func TestRowService_SelectScopesToOwner(t *testing.T) {
	s, rm := newRowService(t)

	_, err := s.Select(context.Background(), "u1", models.Query{Collection: "bookmarks", Limit: 5000})
	require.NoError(t, err)

	q := rm.w.last("select").query
	assert.Equal(t, models.Row{"user_id": "u1"}, q.Filter)
	assert.Equal(t, MaxSelectRows, q.Limit)
}

func TestRowService_SelectRejects(t *testing.T) {
	s, _ := newRowService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		uid  string
		q    models.Query
		want error
	}{
		{"anonymous private", "", models.Query{Collection: "bookmarks"}, common.ErrorUnauthorized},
		{"other owner", "u1", models.Query{Collection: "bookmarks", Filter: models.Row{"user_id": "u2"}}, common.ErrorForbidden},
		{"unknown collection", "u1", models.Query{Collection: "users"}, common.ErrorUnknownCollection},
		{"unknown filter column", "u1", models.Query{Collection: "bookmarks", Filter: models.Row{"password_hash": "x"}}, common.ErrorUnknownColumn},
		{"unknown order column", "u1", models.Query{Collection: "bookmarks", OrderBy: "1; DROP TABLE users"}, common.ErrorUnknownColumn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Select(ctx, tt.uid, tt.q)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRowService_PublicCollection(t *testing.T) {
	s, rm := newRowService(t)
	ctx := context.Background()

	_, err := s.Select(ctx, "", models.Query{Collection: "techniques", Filter: models.Row{"category": "water"}})
	require.NoError(t, err)
	assert.Equal(t, models.Row{"category": "water"}, rm.w.last("select").query.Filter)

	_, err = s.Insert(ctx, "u1", "techniques", []models.Row{{"id": "x"}})
	assert.ErrorIs(t, err, common.ErrorReadOnly)
}

func TestRowService_UpsertStampsOwner(t *testing.T) {
	s, rm := newRowService(t)
	db, m := newSQLMockDB(t)
	s.db = db
	m.ExpectBegin()
	m.ExpectCommit()

	out, err := s.Upsert(context.Background(), "u1", "bookmarks",
		[]models.Row{{"technique_id": "fire-bow-drill"}}, []string{"user_id", "technique_id"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	call := rm.w.last("upsert")
	assert.Equal(t, []string{"user_id", "technique_id"}, call.onConflict)
	assert.Equal(t, models.Row{"user_id": "u1", "technique_id": "fire-bow-drill"}, call.rows[0])
	assert.NoError(t, m.ExpectationsWereMet())
}

// postgresRows serves the real row repository so the generated SQL runs
// against sqlmock.
type postgresRows struct {
	*fakeRepoManager
}

func (postgresRows) Rows(tx dbx.DBTX) rows.Repository { return rows.NewPostgresRepository(tx) }

func TestRowService_UpsertCannotTakeOverForeignRow(t *testing.T) {
	db, m := newSQLMockDB(t)
	s := NewRowService(db, postgresRows{newFakeRepoManager()})
	id := "0b7c2f3e-8a51-4c53-9d55-1d2f8f1b6a10"

	// c1 exists and belongs to u1; u2 upserts the same id
	m.ExpectBegin()
	m.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title WHERE ai_conversations.user_id = EXCLUDED.user_id RETURNING")).
		WithArgs(id, "hijacked", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	m.ExpectRollback()

	out, err := s.Upsert(context.Background(), "u2", "ai_conversations",
		[]models.Row{{"id": id, "title": "hijacked"}}, []string{"id"})
	assert.ErrorIs(t, err, common.ErrorForbidden)
	assert.Nil(t, out)
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestRowService_UpsertNeedsConflictColumns(t *testing.T) {
	s, _ := newRowService(t)

	_, err := s.Upsert(context.Background(), "u1", "bookmarks", []models.Row{{"technique_id": "x"}}, nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Upsert(context.Background(), "u1", "bookmarks", []models.Row{{"technique_id": "x"}}, []string{"nope"})
	assert.ErrorIs(t, err, common.ErrorUnknownColumn)
}

func TestRowService_InsertValidates(t *testing.T) {
	s, rm := newRowService(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "u1", "profiles", []models.Row{{"subscription_tier": "gold"}})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Insert(ctx, "u1", "profiles", []models.Row{{"id": "u2"}})
	assert.ErrorIs(t, err, common.ErrorForbidden)

	assert.Empty(t, rm.w.calls)
}

func TestRowService_MessagesNeedOwnConversation(t *testing.T) {
	s, rm := newRowService(t)
	ctx := context.Background()
	msg := models.Row{
		"id":              "6f1d4c2e-7a5b-4c3d-9e8f-0a1b2c3d4e5f",
		"conversation_id": "0e9d8c7b-6a5f-4e3d-8c2b-1a0f9e8d7c6b",
		"role":            "user",
		"content":         "how do I purify water?",
	}

	_, err := s.Insert(ctx, "u1", "ai_messages", []models.Row{msg})
	assert.ErrorIs(t, err, common.ErrorNotFound)
	sel := rm.w.last("select")
	assert.Equal(t, "ai_conversations", sel.collection)
	assert.Equal(t, "u1", sel.query.Filter["user_id"])

	db, m := newSQLMockDB(t)
	s.db = db
	m.ExpectBegin()
	m.ExpectCommit()
	rm.w.selected = map[string][]models.Row{"ai_conversations": {{"id": msg["conversation_id"]}}}

	out, err := s.Insert(ctx, "u1", "ai_messages", []models.Row{msg})
	require.NoError(t, err)
	assert.Equal(t, "u1", out[0]["user_id"])
	assert.NoError(t, m.ExpectationsWereMet())
}

func TestRowService_UpdateAndDelete(t *testing.T) {
	s, rm := newRowService(t)
	ctx := context.Background()

	n, err := s.Update(ctx, "u1", "profiles", nil, models.Row{"name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.Row{"id": "u1"}, rm.w.last("update").filter)

	_, err = s.Update(ctx, "u1", "profiles", nil, models.Row{"id": "u2"})
	assert.ErrorIs(t, err, common.ErrorForbidden)

	_, err = s.Update(ctx, "u1", "profiles", nil, nil)
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Delete(ctx, "u1", "downloads", models.Row{"technique_id": "x"})
	require.NoError(t, err)
	assert.Equal(t, models.Row{"user_id": "u1", "technique_id": "x"}, rm.w.last("delete").filter)

	_, err = s.Delete(ctx, "", "downloads", nil)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestRowService_SubscriptionFieldsAreSelfServiceOnly(t *testing.T) {
	s, rm := newRowService(t)
	ctx := context.Background()
	patch := models.Row{"subscription_tier": "premium", "subscription_expiry_date": "2026-12-01T00:00:00Z"}

	_, err := s.Update(ctx, "u1", "profiles", nil, patch)
	require.NoError(t, err)
	assert.Equal(t, models.Row{"id": "u1"}, rm.w.last("update").filter)

	_, err = s.Update(ctx, "u1", "profiles", models.Row{"id": "u2"}, patch)
	assert.ErrorIs(t, err, common.ErrorForbidden)

	_, err = s.Update(ctx, "u1", "profiles", nil, models.Row{"subscription_tier": "gold"})
	assert.ErrorIs(t, err, common.ErrorValidation)

	_, err = s.Update(ctx, "", "profiles", nil, patch)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}
