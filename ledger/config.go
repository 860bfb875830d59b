package ledger

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	GATEWAY_CLIENT_TYPE = "gateway"
	DRYRUN_CLIENT_TYPE  = "dryrun"
)

type Config struct {
	LedgerClientType string     `envconfig:"LEDGER_CLIENT_TYPE" default:"gateway"` //gateway, dryrun
	GatewayUrl       string     `envconfig:"LEDGER_GATEWAY_URL"`
	GatewayToken     string     `envconfig:"LEDGER_GATEWAY_TOKEN"`
	TimeoutSeconds   int        `envconfig:"LEDGER_TIMEOUT_SECONDS" default:"30"`
	AccountRemap     AccountMap `envconfig:"ACCOUNT_REMAP"`
}

func LoadConfig() (c *Config, err error) {
	c = &Config{}
	err = envconfig.Process("", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// envconfig map decoder uses colon (:) as the default separator
// account names may contain dots and dashes so we go with "from=to;from=to"

type AccountMap map[string]string

func (am *AccountMap) Decode(value string) error {
	m := map[string]string{}
	if strings.TrimSpace(value) == "" {
		*am = m
		return nil
	}
	for _, pair := range strings.Split(value, ";") {
		kvpair := strings.Split(pair, "=")
		if len(kvpair) != 2 || kvpair[0] == "" || kvpair[1] == "" {
			return fmt.Errorf("invalid account remap item: %q", pair)
		}
		m[strings.TrimSpace(kvpair[0])] = strings.TrimSpace(kvpair[1])
	}
	*am = m
	return nil
}
