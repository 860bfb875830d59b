package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AccountResolver maps a logical account name to the physical ledger account.
type AccountResolver interface {
	Resolve(account string) string
}

// MapResolver resolves through a fixed table; unknown names map to themselves.
type MapResolver map[string]string

func (m MapResolver) Resolve(account string) string {
	if physical, ok := m[account]; ok {
		return physical
	}
	return account
}

// ResolvingClient applies the resolver and a per-call timeout around another Client.
type ResolvingClient struct {
	inner    Client
	resolver AccountResolver
	timeout  time.Duration
}

func NewResolvingClient(inner Client, resolver AccountResolver, timeout time.Duration) *ResolvingClient {
	if resolver == nil {
		resolver = MapResolver{}
	}
	return &ResolvingClient{inner: inner, resolver: resolver, timeout: timeout}
}

func (c *ResolvingClient) TransferStableEuroToken(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.inner.TransferStableEuroToken(ctx, c.resolver.Resolve(from), c.resolver.Resolve(to), amount, memo)
}

func (c *ResolvingClient) TransferStableUsdAsset(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.inner.TransferStableUsdAsset(ctx, c.resolver.Resolve(from), c.resolver.Resolve(to), amount, memo)
}

func (c *ResolvingClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
