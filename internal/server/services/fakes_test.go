package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/survivalcodex/codex/internal/common"
	"github.com/survivalcodex/codex/internal/dbx"
	"github.com/survivalcodex/codex/internal/server/models"
	refreshtokensrepo "github.com/survivalcodex/codex/internal/server/repositories/refreshtokens"
	"github.com/survivalcodex/codex/internal/server/repositories/rows"
	usersrepo "github.com/survivalcodex/codex/internal/server/repositories/users"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	byEmail   map[string]*models.User
	createErr error
	created   []string
}

func (f *fakeUsersRepo) Create(_ context.Context, email, hash string) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*models.User{}
	}
	if _, ok := f.byEmail[email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	u := &models.User{ID: "u-" + email, Email: email, PasswordHash: hash}
	f.byEmail[email] = u
	f.created = append(f.created, email)
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakeRefreshRepo struct {
	tokens    map[string]*models.RefreshToken
	createErr error
	deleted   []string
}

func (f *fakeRefreshRepo) Create(_ context.Context, userID, token string, validity time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.tokens == nil {
		f.tokens = map[string]*models.RefreshToken{}
	}
	f.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := f.tokens[token]; ok {
		return t, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRefreshRepo) Delete(_ context.Context, token string) error {
	f.deleted = append(f.deleted, token)
	delete(f.tokens, token)
	return nil
}

type rowCall struct {
	op         string
	collection string
	query      models.Query
	rows       []models.Row
	filter     models.Row
	patch      models.Row
	onConflict []string
}

type fakeRowsRepo struct {
	calls    []rowCall
	selected map[string][]models.Row
	err      error
}

func (f *fakeRowsRepo) Select(_ context.Context, c rows.Collection, q models.Query) ([]models.Row, error) {
	f.calls = append(f.calls, rowCall{op: "select", collection: c.Name, query: q})
	return f.selected[c.Name], f.err
}

func (f *fakeRowsRepo) Insert(_ context.Context, c rows.Collection, rs []models.Row) ([]models.Row, error) {
	f.calls = append(f.calls, rowCall{op: "insert", collection: c.Name, rows: rs})
	return rs, f.err
}

func (f *fakeRowsRepo) Upsert(_ context.Context, c rows.Collection, rs []models.Row, onConflict []string) ([]models.Row, error) {
	f.calls = append(f.calls, rowCall{op: "upsert", collection: c.Name, rows: rs, onConflict: onConflict})
	return rs, f.err
}

func (f *fakeRowsRepo) Update(_ context.Context, c rows.Collection, filter, patch models.Row) (int, error) {
	f.calls = append(f.calls, rowCall{op: "update", collection: c.Name, filter: filter, patch: patch})
	return 1, f.err
}

func (f *fakeRowsRepo) Delete(_ context.Context, c rows.Collection, filter models.Row) (int, error) {
	f.calls = append(f.calls, rowCall{op: "delete", collection: c.Name, filter: filter})
	return 1, f.err
}

// last returns the most recent call with op.
func (f *fakeRowsRepo) last(op string) rowCall {
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].op == op {
			return f.calls[i]
		}
	}
	return rowCall{}
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	w *fakeRowsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{u: &fakeUsersRepo{}, r: &fakeRefreshRepo{}, w: &fakeRowsRepo{}}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error        { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) Rows(dbx.DBTX) rows.Repository                       { return m.w }
