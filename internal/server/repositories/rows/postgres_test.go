package rows

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survivalcodex/codex/internal/common"
	"github.com/survivalcodex/codex/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestSelect_FilterOrderLimit(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT created_at, technique_id, user_id FROM bookmarks WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2").
		WithArgs("u1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "technique_id", "user_id"}).
			AddRow(at, []byte("7"), "u1"))

	got, err := repo.Select(context.Background(), Schema["bookmarks"], models.Query{
		Filter:  models.Row{"user_id": "u1"},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   5,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.Row{"created_at": at, "technique_id": "7", "user_id": "u1"}, got[0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelect_NullFilterAndDefaultOrder(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery("SELECT api_key, avatar_url, created_at, email, id, language, name, subscription_expiry_date, subscription_tier, updated_at FROM profiles WHERE avatar_url IS NULL AND id = $1 ORDER BY id").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.Select(context.Background(), Schema["profiles"], models.Query{
		Filter: models.Row{"id": "u1", "avatar_url": nil},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpsert_KeyOnlyRowStillReturns(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery("INSERT INTO bookmarks (technique_id, user_id) VALUES ($1, $2) ON CONFLICT (user_id, technique_id) DO UPDATE SET user_id = EXCLUDED.user_id WHERE bookmarks.user_id = EXCLUDED.user_id RETURNING created_at, technique_id, user_id").
		WithArgs("7", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "technique_id", "user_id"}).
			AddRow(time.Now(), "7", "u1"))

	got, err := repo.Upsert(context.Background(), Schema["bookmarks"],
		[]models.Row{{"user_id": "u1", "technique_id": "7"}}, []string{"user_id", "technique_id"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_UpdatesOtherColumns(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery("INSERT INTO profiles (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name WHERE profiles.id = EXCLUDED.id RETURNING api_key, avatar_url, created_at, email, id, language, name, subscription_expiry_date, subscription_tier, updated_at").
		WithArgs("u1", "Ana").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("u1", "Ana"))

	got, err := repo.Upsert(context.Background(), Schema["profiles"], []models.Row{{"id": "u1", "name": "Ana"}}, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", got[0]["name"])
}

func TestUpsert_ForeignRowIsNotTakenOver(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	// the conflicting conversation belongs to another user, so the guarded
	// DO UPDATE touches nothing and RETURNING is empty
	mock.ExpectQuery("INSERT INTO ai_conversations (id, title, user_id) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title WHERE ai_conversations.user_id = EXCLUDED.user_id RETURNING "+
		strings.Join(Schema["ai_conversations"].ColumnNames(), ", ")).
		WithArgs("c1", "mine now", "u2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := repo.Upsert(context.Background(), Schema["ai_conversations"],
		[]models.Row{{"id": "c1", "title": "mine now", "user_id": "u2"}}, []string{"id"})
	require.ErrorIs(t, err, common.ErrorForbidden)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_PublicCollectionIsUnguarded(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	cols := strings.Join(Schema["techniques"].ColumnNames(), ", ")

	mock.ExpectQuery("INSERT INTO techniques (id) VALUES ($1) ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id RETURNING " + cols).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("7"))

	got, err := repo.Upsert(context.Background(), Schema["techniques"], []models.Row{{"id": "7"}}, []string{"id"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_EncodesTimesAndJSON(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	expiry := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO billing_receipts (expiry_time, platform, product_id, purchase_token, raw_payload, user_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, expiry_time, order_id, platform, product_id, purchase_token, raw_payload, user_id").
		WithArgs(expiry, "sandbox", "premium_monthly", "tok", `{"a":1}`, "u1").
		WillReturnRows(sqlmock.NewRows([]string{"purchase_token", "raw_payload", "order_id"}).
			AddRow("tok", []byte(`{"a":1}`), nil))

	got, err := repo.Insert(context.Background(), Schema["billing_receipts"], []models.Row{{
		"user_id":        "u1",
		"platform":       "sandbox",
		"product_id":     "premium_monthly",
		"purchase_token": "tok",
		"expiry_time":    "2026-05-01T00:00:00Z",
		"raw_payload":    map[string]any{"a": 1},
	}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"a": float64(1)}, got[0]["raw_payload"])
	assert.Nil(t, got[0]["order_id"])
}

func TestInsert_BadTime(t *testing.T) {
	repo, _ := newRepoWithMock(t)

	_, err := repo.Insert(context.Background(), Schema["ai_conversations"], []models.Row{{"id": "c1", "created_at": "yesterday"}})
	require.ErrorContains(t, err, "created_at")
}

func TestInsert_Conflict(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery("INSERT INTO ai_conversations (id, title, user_id) VALUES ($1, $2, $3) RETURNING created_at, id, title, updated_at, user_id").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Insert(context.Background(), Schema["ai_conversations"], []models.Row{{"id": "c1", "title": "t", "user_id": "u1"}})
	require.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE profiles SET name = $1, updated_at = $2 WHERE id = $3").
		WithArgs("Ana", at, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.Update(context.Background(), Schema["profiles"],
		models.Row{"id": "u1"}, models.Row{"name": "Ana", "updated_at": "2026-03-01T00:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec("DELETE FROM ai_conversations WHERE id = $1 AND user_id = $2").
		WithArgs("c1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.Delete(context.Background(), Schema["ai_conversations"], models.Row{"user_id": "u1", "id": "c1"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDecode(t *testing.T) {
	id := [16]byte{0x12, 0x34}
	v, err := decode(Text, id)
	require.NoError(t, err)
	assert.Equal(t, "12340000-0000-0000-0000-000000000000", v)

	v, err = decode(JSON, `["a","b"]`)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)

	_, err = decode(JSON, []byte("{"))
	require.Error(t, err)
}

func TestLookup(t *testing.T) {
	c, err := Lookup("ai_messages")
	require.NoError(t, err)
	assert.Equal(t, "user_id", c.Owner)
	assert.False(t, c.Public())

	c, err = Lookup("techniques")
	require.NoError(t, err)
	assert.True(t, c.Public())
	assert.True(t, c.ReadOnly)

	_, err = Lookup("users")
	require.ErrorIs(t, err, common.ErrorUnknownCollection)

	require.ErrorIs(t, Schema["bookmarks"].Check("user_id", "password"), common.ErrorUnknownColumn)
}
