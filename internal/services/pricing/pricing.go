package pricing

import (
	"context"
	"errors"

	"github.com/smartscale/scale-server/internal/config"
	"github.com/smartscale/scale-server/internal/db/repository"
	"github.com/smartscale/scale-server/internal/scaleerr"

	"go.uber.org/zap"
)

// Resolver prices classified produce off the price table, falling back
// to the configured default for labels without a row.
type Resolver struct {
	prices       repository.IPriceRepository
	defaultPrice float64
	logger       *zap.Logger
}

func NewResolver(cfg *config.Config, prices repository.IPriceRepository, logger *zap.Logger) *Resolver {
	defaultPrice := config.DefaultPricePerKG
	if cfg.Pricing != nil && cfg.Pricing.DefaultPricePerKG > 0 {
		defaultPrice = cfg.Pricing.DefaultPricePerKG
	}

	return &Resolver{
		prices:       prices,
		defaultPrice: defaultPrice,
		logger:       logger.Named("pricing"),
	}
}

// Resolve returns the per-kg and total price for a classified item.
// Both stay nil when no weight was declared; the table is not consulted
// in that case.
func (r *Resolver) Resolve(ctx context.Context, label string, weightKG *float64) (*float64, *float64, error) {
	if weightKG == nil {
		return nil, nil, nil
	}

	pricePerKG := r.defaultPrice
	row, err := r.prices.GetByLabel(ctx, label)
	switch {
	case err == nil:
		pricePerKG = row.PricePerKG
	case errors.Is(err, scaleerr.ErrNotFound):
		r.logger.Debug("no price row, using default",
			zap.String("label", label),
			zap.Float64("default_price_per_kg", r.defaultPrice))
	default:
		return nil, nil, err
	}

	totalPrice := pricePerKG * (*weightKG)

	return &pricePerKG, &totalPrice, nil
}
