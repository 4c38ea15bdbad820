package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/uptrace/bun"
)

type IRegistryRepository interface {
	WithTx(tx *bun.Tx) IRegistryRepository
	WithDB(db *bun.DB) IRegistryRepository

	// Get returns the live classifier identity, or ErrNotFound when the
	// registry row has never been written.
	Get(ctx context.Context) (*models.ModelRegistryEntry, error)
	// Upsert replaces the live classifier identity. Workers observe the
	// change lazily on their next cache check.
	Upsert(ctx context.Context, modelID, modelRevision string) (*models.ModelRegistryEntry, error)
}

type RegistryRepository struct {
	db bun.IDB
}

func NewRegistryRepository(db *bun.DB) IRegistryRepository {
	return &RegistryRepository{db: db}
}

func (r *RegistryRepository) Get(ctx context.Context) (*models.ModelRegistryEntry, error) {
	var entry models.ModelRegistryEntry
	if err := r.db.NewSelect().Model(&entry).Where("id = ?", models.RegistryRowID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, scaleerr.NotFoundf("model registry is empty")
		}

		return nil, err
	}

	return &entry, nil
}

func (r *RegistryRepository) Upsert(ctx context.Context, modelID, modelRevision string) (*models.ModelRegistryEntry, error) {
	entry := &models.ModelRegistryEntry{
		ID:            models.RegistryRowID,
		ModelID:       modelID,
		ModelRevision: modelRevision,
	}

	_, err := r.db.NewInsert().Model(entry).
		On("CONFLICT (id) DO UPDATE").
		Set("model_id = EXCLUDED.model_id").
		Set("model_revision = EXCLUDED.model_revision").
		Set("updated_at = current_timestamp").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	return r.Get(ctx)
}

func (r *RegistryRepository) WithTx(tx *bun.Tx) IRegistryRepository {
	return &RegistryRepository{db: tx}
}

func (r *RegistryRepository) WithDB(db *bun.DB) IRegistryRepository {
	return &RegistryRepository{db: db}
}
