package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client moves value between ledger accounts and returns the transaction id.
// Account names are logical; remapping happens in ResolvingClient.
type Client interface {
	TransferStableEuroToken(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error)
	TransferStableUsdAsset(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error)
}
