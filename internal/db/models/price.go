package models

import (
	"github.com/uptrace/bun"
)

type ProductPrice struct {
	bun.BaseModel `bun:"table:product_prices"`

	Label      string  `bun:",pk"`
	PricePerKG float64 `bun:"price_per_kg,notnull"`
}
