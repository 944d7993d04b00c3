package rows

import (
	"context"

	"github.com/survivalcodex/codex/internal/server/models"
)

// Repository runs row operations against one collection. Callers have
// already checked names and ownership.
type Repository interface {
	Select(ctx context.Context, c Collection, q models.Query) ([]models.Row, error)
	Insert(ctx context.Context, c Collection, rows []models.Row) ([]models.Row, error)
	// Upsert inserts rows, updating the other supplied columns when a row
	// with the same onConflict values exists.
	Upsert(ctx context.Context, c Collection, rows []models.Row, onConflict []string) ([]models.Row, error)
	Update(ctx context.Context, c Collection, filter, patch models.Row) (int, error)
	Delete(ctx context.Context, c Collection, filter models.Row) (int, error)
}
