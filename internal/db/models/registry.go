package models

import (
	"github.com/uptrace/bun"
)

// RegistryRowID is the id of the single model_registry row. The registry
// holds one live classifier identity for the whole deployment.
const RegistryRowID = 1

type ModelRegistryEntry struct {
	bun.BaseModel `bun:"table:model_registry"`

	ID            int64        `bun:",pk"`
	ModelID       string       `bun:"model_id,notnull"`
	ModelRevision string       `bun:"model_revision,notnull"`
	UpdatedAt     bun.NullTime `bun:",nullzero,notnull,default:current_timestamp"`
}
