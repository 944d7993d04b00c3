package rows

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/survivalcodex/codex/internal/common"
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

// statement accumulates SQL text and its positional arguments.
type statement struct {
	sql  strings.Builder
	args []any
}

func (s *statement) arg(v any) string {
	s.args = append(s.args, v)
	return fmt.Sprintf("$%d", len(s.args))
}

func sortedKeys(r models.Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *statement) where(c Collection, filter models.Row) error {
	for i, col := range sortedKeys(filter) {
		if i == 0 {
			s.sql.WriteString(" WHERE ")
		} else {
			s.sql.WriteString(" AND ")
		}
		v, err := encode(c, col, filter[col])
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Fprintf(&s.sql, "%s IS NULL", col)
			continue
		}
		fmt.Fprintf(&s.sql, "%s = %s", col, s.arg(v))
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, c Collection, s *statement) ([]models.Row, error) {
	rs, err := r.db.QueryContext(ctx, s.sql.String(), s.args...)
	if err != nil {
		return nil, pgerr.Map(err)
	}
	out, err := dbx.CollectRows(rs, scanner(c))
	if err != nil {
		return nil, pgerr.Map(err)
	}
	return out, nil
}

func (r *PostgresRepository) Select(ctx context.Context, c Collection, q models.Query) ([]models.Row, error) {
	s := &statement{}
	fmt.Fprintf(&s.sql, "SELECT %s FROM %s", strings.Join(c.ColumnNames(), ", "), c.Name)
	if err := s.where(c, q.Filter); err != nil {
		return nil, err
	}

	order := q.OrderBy
	if order == "" {
		order = c.Order
	}
	fmt.Fprintf(&s.sql, " ORDER BY %s", order)
	if q.Desc {
		s.sql.WriteString(" DESC")
	}
	if q.Limit > 0 {
		fmt.Fprintf(&s.sql, " LIMIT %s", s.arg(q.Limit))
	}
	return r.query(ctx, c, s)
}

func (r *PostgresRepository) insert(ctx context.Context, c Collection, row models.Row, onConflict []string) ([]models.Row, error) {
	cols := sortedKeys(row)
	placeholders := make([]string, len(cols))

	s := &statement{}
	for i, col := range cols {
		v, err := encode(c, col, row[col])
		if err != nil {
			return nil, err
		}
		placeholders[i] = s.arg(v)
	}
	fmt.Fprintf(&s.sql, "INSERT INTO %s (%s) VALUES (%s)", c.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	guarded := len(onConflict) > 0 && !c.Public()
	if len(onConflict) > 0 {
		var set []string
		for _, col := range cols {
			if !slices.Contains(onConflict, col) && col != c.Owner {
				set = append(set, fmt.Sprintf("%s = EXCLUDED.%[1]s", col))
			}
		}
		// DO NOTHING would return no row for an existing key.
		if len(set) == 0 {
			set = []string{fmt.Sprintf("%s = EXCLUDED.%[1]s", onConflict[0])}
		}
		fmt.Fprintf(&s.sql, " ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(onConflict, ", "), strings.Join(set, ", "))
		// a conflicting row owned by someone else is left untouched
		if guarded {
			fmt.Fprintf(&s.sql, " WHERE %s.%s = EXCLUDED.%[2]s", c.Name, c.Owner)
		}
	}
	fmt.Fprintf(&s.sql, " RETURNING %s", strings.Join(c.ColumnNames(), ", "))
	out, err := r.query(ctx, c, s)
	if err != nil {
		return nil, err
	}
	if guarded && len(out) == 0 {
		return nil, fmt.Errorf("%s: conflicting row belongs to another user: %w", c.Name, common.ErrorForbidden)
	}
	return out, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, c Collection, rows []models.Row) ([]models.Row, error) {
	return r.Upsert(ctx, c, rows, nil)
}

func (r *PostgresRepository) Upsert(ctx context.Context, c Collection, rows []models.Row, onConflict []string) ([]models.Row, error) {
	out := make([]models.Row, 0, len(rows))
	for _, row := range rows {
		got, err := r.insert(ctx, c, row, onConflict)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

func (r *PostgresRepository) exec(ctx context.Context, s *statement) (int, error) {
	res, err := r.db.ExecContext(ctx, s.sql.String(), s.args...)
	if err != nil {
		return 0, pgerr.Map(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, pgerr.Map(err)
	}
	return int(n), nil
}

func (r *PostgresRepository) Update(ctx context.Context, c Collection, filter, patch models.Row) (int, error) {
	s := &statement{}
	cols := sortedKeys(patch)
	set := make([]string, len(cols))
	for i, col := range cols {
		v, err := encode(c, col, patch[col])
		if err != nil {
			return 0, err
		}
		set[i] = fmt.Sprintf("%s = %s", col, s.arg(v))
	}
	fmt.Fprintf(&s.sql, "UPDATE %s SET %s", c.Name, strings.Join(set, ", "))
	if err := s.where(c, filter); err != nil {
		return 0, err
	}
	return r.exec(ctx, s)
}

func (r *PostgresRepository) Delete(ctx context.Context, c Collection, filter models.Row) (int, error) {
	s := &statement{}
	fmt.Fprintf(&s.sql, "DELETE FROM %s", c.Name)
	if err := s.where(c, filter); err != nil {
		return 0, err
	}
	return r.exec(ctx, s)
}

// encode converts a wire value into a driver argument. Times travel as
// RFC 3339 strings and JSON columns as encoded documents.
func encode(c Collection, col string, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.Kind(col) {
	case Time:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", col, err)
		}
		return t, nil
	case JSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", col, err)
		}
		return string(b), nil
	}
	return v, nil
}

func scanner(c Collection) func(*sql.Rows) (models.Row, error) {
	return func(rs *sql.Rows) (models.Row, error) {
		cols, err := rs.Columns()
		if err != nil {
			return nil, err
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(models.Row, len(cols))
		for i, col := range cols {
			v, err := decode(c.Kind(col), vals[i])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", col, err)
			}
			row[col] = v
		}
		return row, nil
	}
}

func decode(kind Kind, v any) (any, error) {
	switch x := v.(type) {
	case []byte:
		if kind == JSON {
			var out any
			if err := json.Unmarshal(x, &out); err != nil {
				return nil, err
			}
			return out, nil
		}
		return string(x), nil
	case string:
		if kind == JSON {
			var out any
			if err := json.Unmarshal([]byte(x), &out); err != nil {
				return nil, err
			}
			return out, nil
		}
		return x, nil
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case time.Time:
		return x.UTC(), nil
	}
	return v, nil
}
