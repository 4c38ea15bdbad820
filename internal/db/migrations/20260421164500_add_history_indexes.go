package migrations

import (
	"context"

	"github.com/smartscale/scale-server/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateIndex().Model((*models.InferenceJob)(nil)).
			Index("idx_inference_jobs_created_at").Column("created_at").
			IfNotExists().Exec(ctx); err != nil {
			return err
		}

		if _, err := db.NewCreateIndex().Model((*models.InferenceJob)(nil)).
			Index("idx_inference_jobs_predicted_label").Column("predicted_label").
			IfNotExists().Exec(ctx); err != nil {
			return err
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewDropIndex().Model((*models.InferenceJob)(nil)).
			Index("idx_inference_jobs_predicted_label").IfExists().Exec(ctx); err != nil {
			return err
		}

		if _, err := db.NewDropIndex().Model((*models.InferenceJob)(nil)).
			Index("idx_inference_jobs_created_at").IfExists().Exec(ctx); err != nil {
			return err
		}

		return nil
	})
}
