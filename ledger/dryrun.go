package ledger

import (
	"context"

	"github.com/innopay/innopay-hub/common"
	"github.com/labstack/gommon/random"
	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
)

// DryRunClient pretends every transfer succeeds. Development only.
type DryRunClient struct {
	logger *lecho.Logger
}

func NewDryRunClient(logger *lecho.Logger) *DryRunClient {
	return &DryRunClient{logger: logger}
}

func (c *DryRunClient) TransferStableEuroToken(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	return c.transfer(common.AssetEuroToken, from, to, amount, memo), nil
}

func (c *DryRunClient) TransferStableUsdAsset(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	return c.transfer(common.AssetUsdStable, from, to, amount, memo), nil
}

func (c *DryRunClient) transfer(asset, from, to string, amount decimal.Decimal, memo string) string {
	txID := "dryrun-" + random.String(32, random.Hex)
	c.logger.Infof("Dry run %s transfer %s -> %s amount:%s memo:%q tx_id:%s", asset, from, to, amount.String(), memo, txID)
	return txID
}
