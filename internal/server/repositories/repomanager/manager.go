package repomanager

import (
	"context"
	"database/sql"

	"github.com/survivalcodex/codex/internal/dbx"
	"github.com/survivalcodex/codex/internal/server/repositories/refreshtokens"
	"github.com/survivalcodex/codex/internal/server/repositories/rows"
	"github.com/survivalcodex/codex/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a handle, so services can
// run several of them inside one transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Rows(db dbx.DBTX) rows.Repository
}
