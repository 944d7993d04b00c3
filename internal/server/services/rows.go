package services

import (
	"context"
	"database/sql"
	"fmt"
	"maps"

	"github.com/go-playground/validator/v10"

	"github.com/survivalcodex/codex/internal/common"
	"github.com/survivalcodex/codex/internal/dbx"
	"github.com/survivalcodex/codex/internal/server/models"
	"github.com/survivalcodex/codex/internal/server/repositories/repomanager"
	"github.com/survivalcodex/codex/internal/server/repositories/rows"
)

// MaxSelectRows caps a single select.
const MaxSelectRows = 1000

// RowService exposes the collections declared in rows.Schema to a signed-in
// user. Every filter is narrowed to the caller's rows and every written row
// is stamped with the caller as owner; naming another owner is forbidden.
type RowService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	validate    *validator.Validate
}

func NewRowService(db *sql.DB, m repomanager.RepositoryManager) *RowService {
	return &RowService{db: db, repomanager: m, validate: validator.New()}
}

func (s *RowService) collection(name string, write bool) (rows.Collection, error) {
	c, err := rows.Lookup(name)
	if err != nil {
		return c, err
	}
	if write && c.ReadOnly {
		return c, fmt.Errorf("%w: %s", common.ErrorReadOnly, name)
	}
	return c, nil
}

// scope copies filter and pins the owner column to uid.
func scope(c rows.Collection, uid string, filter models.Row) (models.Row, error) {
	out := maps.Clone(filter)
	if out == nil {
		out = models.Row{}
	}
	for col := range out {
		if err := c.Check(col); err != nil {
			return nil, err
		}
	}
	if c.Public() {
		return out, nil
	}
	if uid == "" {
		return nil, common.ErrorUnauthorized
	}
	if v, ok := out[c.Owner]; ok && v != uid {
		return nil, fmt.Errorf("%w: %s belongs to another user", common.ErrorForbidden, c.Owner)
	}
	out[c.Owner] = uid
	return out, nil
}

func (s *RowService) check(c rows.Collection, row models.Row) error {
	for col, v := range row {
		if err := c.Check(col); err != nil {
			return err
		}
		tag, ok := c.Rules[col]
		if !ok || v == nil {
			continue
		}
		if err := s.validate.Var(v, tag); err != nil {
			return fmt.Errorf("%w: %s: %v", common.ErrorValidation, col, err)
		}
	}
	return nil
}

func (s *RowService) Select(ctx context.Context, uid string, q models.Query) ([]models.Row, error) {
	c, err := s.collection(q.Collection, false)
	if err != nil {
		return nil, err
	}
	if q.Filter, err = scope(c, uid, q.Filter); err != nil {
		return nil, err
	}
	if q.OrderBy != "" {
		if err := c.Check(q.OrderBy); err != nil {
			return nil, err
		}
	}
	if q.Limit <= 0 || q.Limit > MaxSelectRows {
		q.Limit = MaxSelectRows
	}
	return s.repomanager.Rows(s.db).Select(ctx, c, q)
}

// owned validates rows and stamps them with uid.
func (s *RowService) owned(ctx context.Context, c rows.Collection, uid string, in []models.Row) ([]models.Row, error) {
	out := make([]models.Row, 0, len(in))
	for _, r := range in {
		r, err := scope(c, uid, r)
		if err != nil {
			return nil, err
		}
		if err := s.check(c, r); err != nil {
			return nil, err
		}
		if c.Name == "ai_messages" {
			if err := s.ownsConversation(ctx, uid, r["conversation_id"]); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// ownsConversation stops messages being attached to another user's
// conversation; the foreign key alone would allow it.
func (s *RowService) ownsConversation(ctx context.Context, uid string, id any) error {
	if id == nil {
		return fmt.Errorf("%w: conversation_id is required", common.ErrorValidation)
	}
	found, err := s.repomanager.Rows(s.db).Select(ctx, rows.Schema["ai_conversations"], models.Query{
		Filter: models.Row{"id": id, "user_id": uid},
		Limit:  1,
	})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: conversation %v", common.ErrorNotFound, id)
	}
	return nil
}

func (s *RowService) write(ctx context.Context, uid, collection string, in []models.Row, onConflict []string) ([]models.Row, error) {
	c, err := s.collection(collection, true)
	if err != nil {
		return nil, err
	}
	if err := c.Check(onConflict...); err != nil {
		return nil, err
	}
	rs, err := s.owned(ctx, c, uid, in)
	if err != nil {
		return nil, err
	}

	var out []models.Row
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		repo := s.repomanager.Rows(tx)
		if len(onConflict) == 0 {
			out, err = repo.Insert(ctx, c, rs)
		} else {
			out, err = repo.Upsert(ctx, c, rs, onConflict)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Insert adds rows atomically; an existing key fails the whole call.
func (s *RowService) Insert(ctx context.Context, uid, collection string, in []models.Row) ([]models.Row, error) {
	return s.write(ctx, uid, collection, in, nil)
}

// Upsert requires conflict columns; repeating it with the same rows is a no-op.
func (s *RowService) Upsert(ctx context.Context, uid, collection string, in []models.Row, onConflict []string) ([]models.Row, error) {
	if len(onConflict) == 0 {
		return nil, fmt.Errorf("%w: on_conflict is required", common.ErrorValidation)
	}
	return s.write(ctx, uid, collection, in, onConflict)
}

func (s *RowService) Update(ctx context.Context, uid, collection string, filter, patch models.Row) (int, error) {
	c, err := s.collection(collection, true)
	if err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, fmt.Errorf("%w: empty patch", common.ErrorValidation)
	}
	if v, ok := patch[c.Owner]; ok && v != uid {
		return 0, fmt.Errorf("%w: cannot change %s", common.ErrorForbidden, c.Owner)
	}
	if err := s.check(c, patch); err != nil {
		return 0, err
	}
	if filter, err = scope(c, uid, filter); err != nil {
		return 0, err
	}
	return s.repomanager.Rows(s.db).Update(ctx, c, filter, patch)
}

// Delete removes the caller's matching rows. Deleting nothing is not an error.
func (s *RowService) Delete(ctx context.Context, uid, collection string, filter models.Row) (int, error) {
	c, err := s.collection(collection, true)
	if err != nil {
		return 0, err
	}
	if filter, err = scope(c, uid, filter); err != nil {
		return 0, err
	}
	return s.repomanager.Rows(s.db).Delete(ctx, c, filter)
}
