package rates

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/innopay/innopay-hub/db/models"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"
	"github.com/ziflex/lecho/v3"
	"golang.org/x/time/rate"
)

const (
	SourceFeed     = "feed"
	SourceCache    = "cache"
	SourceStore    = "store"
	SourceFallback = "fallback"
)

var errFeedThrottled = errors.New("rate feed throttled")

// ExchangeRate is the EUR/USD quote: how many USD one EUR buys.
// IsFresh=false is a quality signal only, never an error.
type ExchangeRate struct {
	AsOf    time.Time       `json:"as_of"`
	EurUsd  decimal.Decimal `json:"eur_usd"`
	IsFresh bool            `json:"is_fresh"`
	Source  string          `json:"source"`
}

type cachedRate struct {
	rate      ExchangeRate
	fetchedAt time.Time
}

// Provider resolves a rate through cache, feed, store and finally parity.
// Settlements and public lookups draw on separate feed budgets.
type Provider struct {
	feed          Feed
	store         Store
	limiter       *rate.Limiter
	lookupLimiter *rate.Limiter
	ttl           time.Duration
	logger        *lecho.Logger
	now           func() time.Time

	mu    sync.Mutex
	cache map[string]cachedRate
	last  *ExchangeRate
}

type ProviderOption = func(p *Provider)

func WithStore(store Store) ProviderOption {
	return func(p *Provider) {
		p.store = store
	}
}

func WithLogger(logger *lecho.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithCacheTTL(ttl time.Duration) ProviderOption {
	return func(p *Provider) {
		p.ttl = ttl
	}
}

// WithFeedLimit caps the number of upstream feed calls per second.
func WithFeedLimit(perSecond float64) ProviderOption {
	return func(p *Provider) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLookupLimit caps the feed calls made on behalf of LookupEurUsdRate.
func WithLookupLimit(perSecond float64) ProviderOption {
	return func(p *Provider) {
		if perSecond > 0 {
			p.lookupLimiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func withClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

func NewProvider(feed Feed, options ...ProviderOption) *Provider {
	p := &Provider{
		feed:  feed,
		ttl:   time.Hour,
		now:   time.Now,
		cache: map[string]cachedRate{},
		logger: lecho.New(
			os.Stdout,
			lecho.WithLevel(log.INFO),
			lecho.WithTimestamp(),
		),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func NewProviderFromConfig(c *Config, store Store, logger *lecho.Logger) *Provider {
	return NewProvider(
		NewHTTPFeed(c.FeedUrl, time.Duration(c.FeedTimeoutSeconds)*time.Second),
		WithStore(store),
		WithLogger(logger),
		WithCacheTTL(time.Duration(c.CacheTTLSeconds)*time.Second),
		WithFeedLimit(c.FeedRequestsPerSec),
		WithLookupLimit(c.LookupRequestsPerSec),
	)
}

// GetEurUsdRate is the rate used by settlements.
func (p *Provider) GetEurUsdRate(ctx context.Context, asOf time.Time) ExchangeRate {
	return p.resolve(ctx, asOf, p.limiter)
}

// LookupEurUsdRate serves public rate queries. It never spends the settlement feed budget.
func (p *Provider) LookupEurUsdRate(ctx context.Context, asOf time.Time) ExchangeRate {
	return p.resolve(ctx, asOf, p.lookupLimiter)
}

func (p *Provider) resolve(ctx context.Context, asOf time.Time, limiter *rate.Limiter) ExchangeRate {
	day := asOf.UTC().Truncate(24 * time.Hour)
	key := day.Format(dateLayout)

	p.mu.Lock()
	cached, hasCached := p.cache[key]
	p.mu.Unlock()
	if hasCached && p.now().Sub(cached.fetchedAt) < p.ttl {
		result := cached.rate
		result.Source = SourceCache
		return result
	}

	value, publishedAt, err := p.fetch(ctx, day, limiter)
	if err == nil {
		result := ExchangeRate{AsOf: publishedAt, EurUsd: value, IsFresh: true, Source: SourceFeed}
		p.remember(key, result)
		p.persist(ctx, result)
		return result
	}
	p.logger.Errorj(log.JSON{
		"message": "eur/usd rate feed unavailable, using fallback",
		"as_of":   key,
		"error":   err.Error(),
	})

	if hasCached {
		result := cached.rate
		result.IsFresh = false
		result.Source = SourceCache
		return result
	}
	if stored := p.fromStore(ctx, day); stored != nil {
		return *stored
	}

	p.mu.Lock()
	last := p.last
	p.mu.Unlock()
	if last != nil {
		result := *last
		result.IsFresh = false
		result.Source = SourceCache
		return result
	}

	p.logger.Errorf("No eur/usd rate available for %s, degrading to parity", key)
	return ExchangeRate{AsOf: day, EurUsd: decimal.NewFromInt(1), IsFresh: false, Source: SourceFallback}
}

func (p *Provider) fetch(ctx context.Context, day time.Time, limiter *rate.Limiter) (decimal.Decimal, time.Time, error) {
	if p.feed == nil {
		return decimal.Zero, time.Time{}, errors.New("no rate feed configured")
	}
	if limiter != nil && !limiter.Allow() {
		return decimal.Zero, time.Time{}, errFeedThrottled
	}
	return p.feed.FetchEurUsd(ctx, day)
}

func (p *Provider) remember(key string, result ExchangeRate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[key] = cachedRate{rate: result, fetchedAt: p.now()}
	// quotes for past dates never replace a newer last known rate
	if p.last == nil || result.AsOf.After(p.last.AsOf) {
		last := result
		p.last = &last
	}
}

func (p *Provider) persist(ctx context.Context, result ExchangeRate) {
	if p.store == nil {
		return
	}
	err := p.store.SaveRate(ctx, &models.CurrencyRate{
		Base:   baseEUR,
		Quote:  quoteUSD,
		Rate:   result.EurUsd,
		AsOf:   result.AsOf,
		Source: SourceFeed,
	})
	if err != nil {
		p.logger.Errorf("Failed to persist eur/usd rate as_of:%s error: %v", result.AsOf.Format(dateLayout), err)
	}
}

func (p *Provider) fromStore(ctx context.Context, day time.Time) *ExchangeRate {
	if p.store == nil {
		return nil
	}
	stored, err := p.store.LatestRate(ctx, baseEUR, quoteUSD, day)
	if err != nil {
		p.logger.Errorf("Failed to load stored eur/usd rate: %v", err)
		return nil
	}
	if stored == nil {
		return nil
	}
	return &ExchangeRate{AsOf: stored.AsOf, EurUsd: stored.Rate, IsFresh: false, Source: SourceStore}
}
