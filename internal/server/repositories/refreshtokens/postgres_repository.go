package refreshtokens

import (
	"context"
	"time"

	"github.com/survivalcodex/codex/internal/dbx"
	"github.com/survivalcodex/codex/internal/server/models"
	"github.com/survivalcodex/codex/internal/server/repositories/pgerr"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const (
	insertToken = `INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)`
	selectToken = `SELECT id, user_id, expires_at, created_at FROM refresh_tokens WHERE token = $1`
	deleteToken = `DELETE FROM refresh_tokens WHERE token = $1`
)

// Create fails with common.ErrorNotFound when userID no longer exists.
func (r *PostgresRepository) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	_, err := r.db.ExecContext(ctx, insertToken, userID, token, time.Now().Add(validity).UTC())
	return pgerr.Map(err)
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt := &models.RefreshToken{Token: token}
	err := r.db.QueryRowContext(ctx, selectToken, token).Scan(&rt.ID, &rt.UserID, &rt.Expires, &rt.CreatedAt)
	if err != nil {
		return nil, pgerr.Map(err)
	}
	return rt, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, deleteToken, token)
	return pgerr.Map(err)
}
