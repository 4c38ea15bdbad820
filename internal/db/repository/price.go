package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/smartscale/scale-server/internal/scaleerr"
	"github.com/uptrace/bun"
)

type IPriceRepository interface {
	WithTx(tx *bun.Tx) IPriceRepository
	WithDB(db *bun.DB) IPriceRepository

	GetByLabel(ctx context.Context, label string) (*models.ProductPrice, error)
}

type PriceRepository struct {
	db bun.IDB
}

func NewPriceRepository(db *bun.DB) IPriceRepository {
	return &PriceRepository{db: db}
}

func (r *PriceRepository) GetByLabel(ctx context.Context, label string) (*models.ProductPrice, error) {
	var price models.ProductPrice
	if err := r.db.NewSelect().Model(&price).Where("label = ?", label).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, scaleerr.NotFoundf("no price for label %q", label)
		}

		return nil, err
	}

	return &price, nil
}

func (r *PriceRepository) WithTx(tx *bun.Tx) IPriceRepository {
	return &PriceRepository{db: tx}
}

func (r *PriceRepository) WithDB(db *bun.DB) IPriceRepository {
	return &PriceRepository{db: db}
}
