package db

import (
	"context"
	"fmt"

	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/db/drivers"
)

// NewConnection opens the database named by db.driver. SQLite serves
// single-node installs; Postgres is the multi-worker path.
func NewConnection(ctx context.Context, cfg *config.Config) (drivers.Driver, error) {
	switch cfg.DB.Driver {
	case "sqlite":
		return drivers.NewSQLiteDriver(ctx, cfg.DB.DSN)
	case "pg":
		return drivers.NewPGDriver(ctx, cfg.DB.DSN)
	default:
		return nil, fmt.Errorf("invalid database driver: %s", cfg.DB.Driver)
	}
}
