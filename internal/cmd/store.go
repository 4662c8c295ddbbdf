package cmd

import (
	"context"

	"github.com/phonelens/phonelens/internal/config"
	"github.com/phonelens/phonelens/internal/core/store"
	apperrors "github.com/phonelens/phonelens/internal/errors"
)

// openStore opens and migrates the result store. It returns nil when the
// store is disabled.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}

	db, err := store.OpenMigrated(ctx, cfg.Store)
	if err != nil {
		return nil, apperrors.WrapDatabaseError(ctx, err, "failed to open result store")
	}
	return db, nil
}
