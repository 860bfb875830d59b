package ledger

import (
	"fmt"
	"time"

	"github.com/ziflex/lecho/v3"
)

func InitLedgerClient(c *Config, logger *lecho.Logger) (result Client, err error) {
	var inner Client
	switch c.LedgerClientType {
	case GATEWAY_CLIENT_TYPE:
		if c.GatewayUrl == "" {
			return nil, fmt.Errorf("LEDGER_GATEWAY_URL is required for the %s ledger client", GATEWAY_CLIENT_TYPE)
		}
		inner = NewGatewayClient(GatewayOptions{
			Url:   c.GatewayUrl,
			Token: c.GatewayToken,
		})
	case DRYRUN_CLIENT_TYPE:
		inner = NewDryRunClient(logger)
	default:
		return nil, fmt.Errorf("did not recognize ledger client type %s", c.LedgerClientType)
	}
	if len(c.AccountRemap) > 0 {
		logger.Infof("Ledger account remapping active for %d accounts", len(c.AccountRemap))
	}
	return NewResolvingClient(inner, MapResolver(c.AccountRemap), time.Duration(c.TimeoutSeconds)*time.Second), nil
}
