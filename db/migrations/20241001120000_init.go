package migrations

import (
	"context"

	"github.com/innopay/innopay-hub/db/models"
	"github.com/uptrace/bun"
)

/* This init reflects the latest model fields when run on a fresh db.
Later migrations that add/remove columns must use IfNotExists/IfExists
otherwise they will fail on fresh databases.
*/
func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateTable().Model((*models.Debt)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}
		if _, err := db.NewCreateTable().Model((*models.CurrencyRate)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}
		return nil
	}, nil)
}
