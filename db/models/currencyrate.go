package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrencyRate : Currency Rate Model
// One row per fetched feed value, used as the stale fallback when the feed is down.
type CurrencyRate struct {
	ID        int64           `bun:",pk,autoincrement"`
	Base      string          `bun:",notnull"`
	Quote     string          `bun:",notnull"`
	Rate      decimal.Decimal `bun:"type:numeric(12,6),notnull"`
	AsOf      time.Time       `bun:"type:date,notnull"`
	Source    string          `bun:",nullzero"`
	CreatedAt time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
}
