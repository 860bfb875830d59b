package rates

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	FeedUrl              string  `envconfig:"RATE_FEED_URL" default:"https://api.frankfurter.app"`
	FeedTimeoutSeconds   int     `envconfig:"RATE_FEED_TIMEOUT_SECONDS" default:"5"`
	CacheTTLSeconds      int     `envconfig:"RATE_CACHE_TTL_SECONDS" default:"3600"`
	FeedRequestsPerSec   float64 `envconfig:"RATE_FEED_RPS" default:"1"`
	LookupRequestsPerSec float64 `envconfig:"RATE_LOOKUP_RPS" default:"0.2"`
}

func LoadConfig() (c *Config, err error) {
	c = &Config{}
	err = envconfig.Process("", c)
	if err != nil {
		return nil, err
	}
	return c, nil
}
