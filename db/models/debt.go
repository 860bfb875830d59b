package models

import (
	"context"
	"time"

	"github.com/innopay/innopay-hub/common"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Debt : Debt Model
// Append-only record of a liability left behind by a failed transfer leg.
// An empty Debtor means the hub itself owes the creditor.
type Debt struct {
	ID                   int64               `json:"id" bun:",pk,autoincrement"`
	Creditor             string              `json:"creditor" bun:",notnull"`
	Debtor               string              `json:"debtor,omitempty" bun:",nullzero"`
	AmountEuro           decimal.Decimal     `json:"amount_euro" bun:"type:numeric(20,6),notnull,default:0"`
	AmountUsdAsset       decimal.Decimal     `json:"amount_usd_asset" bun:"type:numeric(20,6),notnull,default:0"`
	EurUsdRateAtCreation decimal.NullDecimal `json:"eur_usd_rate_at_creation" bun:"type:numeric(12,6)"`
	Reason               string              `json:"reason" bun:",notnull"`
	Notes                string              `json:"notes" bun:",nullzero"`
	Status               string              `json:"status" bun:",notnull,default:'unpaid'"`
	PaymentTxRef         string              `json:"payment_tx_ref,omitempty" bun:",nullzero"`
	CreatedAt            time.Time           `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt            bun.NullTime        `json:"updated_at"`
	PaidAt               bun.NullTime        `json:"paid_at"`
}

func (d *Debt) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		if d.Status == "" {
			d.Status = common.DebtStatusUnpaid
		}
	case *bun.UpdateQuery:
		d.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

// Asset returns the asset the debt is denominated in.
// USD asset wins when both amounts are set.
func (d *Debt) Asset() string {
	if d.AmountUsdAsset.IsPositive() {
		return common.AssetUsdStable
	}
	return common.AssetEuroToken
}

// PrimaryAmount is the amount owed in Asset().
func (d *Debt) PrimaryAmount() decimal.Decimal {
	if d.AmountUsdAsset.IsPositive() {
		return d.AmountUsdAsset
	}
	return d.AmountEuro
}

var _ bun.BeforeAppendModelHook = (*Debt)(nil)
