package rates

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/innopay/innopay-hub/db/models"
	"github.com/uptrace/bun"
)

const (
	baseEUR  = "EUR"
	quoteUSD = "USD"
)

// Store persists fetched rates so a feed outage can fall back to the last known value.
type Store interface {
	SaveRate(ctx context.Context, rate *models.CurrencyRate) error
	LatestRate(ctx context.Context, base, quote string, notAfter time.Time) (*models.CurrencyRate, error)
}

type BunStore struct {
	DB *bun.DB
}

func (s *BunStore) SaveRate(ctx context.Context, rate *models.CurrencyRate) error {
	_, err := s.DB.NewInsert().Model(rate).Exec(ctx)
	return err
}

// LatestRate returns nil, nil when nothing was stored yet.
func (s *BunStore) LatestRate(ctx context.Context, base, quote string, notAfter time.Time) (*models.CurrencyRate, error) {
	rate := models.CurrencyRate{}
	err := s.DB.NewSelect().
		Model(&rate).
		Where("base = ? AND quote = ?", base, quote).
		Where("as_of <= ?", notAfter.Format(dateLayout)).
		OrderExpr("as_of DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}
