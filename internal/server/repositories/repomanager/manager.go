package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authbridge/internal/dbx"
	"github.com/dmitrijs2005/authbridge/internal/server/repositories/pins"
)

// RepositoryManager vends repositories bound to a DBTX, so services can use
// the same repository inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Pins(db dbx.DBTX) pins.Repository
}
