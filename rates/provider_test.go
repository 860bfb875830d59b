package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/innopay/innopay-hub/db/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeed struct {
	mu    sync.Mutex
	rate  decimal.Decimal
	err   error
	calls int
}

func (f *stubFeed) FetchEurUsd(ctx context.Context, asOf time.Time) (decimal.Decimal, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return decimal.Zero, time.Time{}, f.err
	}
	return f.rate, asOf, nil
}

type memoryStore struct {
	rates   []models.CurrencyRate
	saveErr error
}

func (s *memoryStore) SaveRate(ctx context.Context, rate *models.CurrencyRate) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rates = append(s.rates, *rate)
	return nil
}

func (s *memoryStore) LatestRate(ctx context.Context, base, quote string, notAfter time.Time) (*models.CurrencyRate, error) {
	var latest *models.CurrencyRate
	for i := range s.rates {
		r := s.rates[i]
		if r.Base != base || r.Quote != quote || r.AsOf.After(notAfter) {
			continue
		}
		if latest == nil || r.AsOf.After(latest.AsOf) {
			latest = &r
		}
	}
	return latest, nil
}

var testDay = time.Date(2024, 3, 14, 15, 4, 5, 0, time.UTC)

func TestProviderFetchesAndCaches(t *testing.T) {
	feed := &stubFeed{rate: decimal.RequireFromString("1.08")}
	store := &memoryStore{}
	p := NewProvider(feed, WithStore(store))

	first := p.GetEurUsdRate(context.Background(), testDay)
	assert.True(t, first.IsFresh)
	assert.Equal(t, SourceFeed, first.Source)
	assert.True(t, decimal.RequireFromString("1.08").Equal(first.EurUsd))

	second := p.GetEurUsdRate(context.Background(), testDay.Add(time.Hour))
	assert.True(t, second.IsFresh)
	assert.Equal(t, SourceCache, second.Source)
	assert.Equal(t, 1, feed.calls)
	require.Len(t, store.rates, 1)
	assert.Equal(t, "EUR", store.rates[0].Base)
}

func TestProviderRefetchesAfterTTL(t *testing.T) {
	now := testDay
	feed := &stubFeed{rate: decimal.RequireFromString("1.08")}
	p := NewProvider(feed, WithCacheTTL(time.Minute), withClock(func() time.Time { return now }))

	p.GetEurUsdRate(context.Background(), testDay)
	now = now.Add(2 * time.Minute)
	feed.rate = decimal.RequireFromString("1.09")
	got := p.GetEurUsdRate(context.Background(), testDay)

	assert.Equal(t, 2, feed.calls)
	assert.True(t, decimal.RequireFromString("1.09").Equal(got.EurUsd))
}

func TestProviderFallsBackToExpiredCacheEntry(t *testing.T) {
	now := testDay
	feed := &stubFeed{rate: decimal.RequireFromString("1.08")}
	p := NewProvider(feed, WithCacheTTL(time.Minute), withClock(func() time.Time { return now }))

	p.GetEurUsdRate(context.Background(), testDay)
	now = now.Add(2 * time.Minute)
	feed.err = errors.New("feed down")
	got := p.GetEurUsdRate(context.Background(), testDay)

	assert.False(t, got.IsFresh)
	assert.True(t, decimal.RequireFromString("1.08").Equal(got.EurUsd))
}

func TestProviderFallsBackToStore(t *testing.T) {
	feed := &stubFeed{err: errors.New("feed down")}
	store := &memoryStore{rates: []models.CurrencyRate{
		{Base: "EUR", Quote: "USD", Rate: decimal.RequireFromString("1.05"), AsOf: testDay.AddDate(0, 0, -10)},
		{Base: "EUR", Quote: "USD", Rate: decimal.RequireFromString("1.07"), AsOf: testDay.AddDate(0, 0, -1)},
		{Base: "EUR", Quote: "USD", Rate: decimal.RequireFromString("1.20"), AsOf: testDay.AddDate(0, 0, 5)},
	}}
	p := NewProvider(feed, WithStore(store))

	got := p.GetEurUsdRate(context.Background(), testDay)
	assert.False(t, got.IsFresh)
	assert.Equal(t, SourceStore, got.Source)
	assert.True(t, decimal.RequireFromString("1.07").Equal(got.EurUsd))
}

func TestProviderUsesLastKnownRateForOtherDay(t *testing.T) {
	feed := &stubFeed{rate: decimal.RequireFromString("1.08")}
	p := NewProvider(feed)
	p.GetEurUsdRate(context.Background(), testDay)

	feed.err = errors.New("feed down")
	got := p.GetEurUsdRate(context.Background(), testDay.AddDate(0, 0, 1))
	assert.False(t, got.IsFresh)
	assert.True(t, decimal.RequireFromString("1.08").Equal(got.EurUsd))
}

func TestProviderDegradesToParity(t *testing.T) {
	p := NewProvider(&stubFeed{err: errors.New("feed down")}, WithStore(&memoryStore{}))

	got := p.GetEurUsdRate(context.Background(), testDay)
	assert.False(t, got.IsFresh)
	assert.Equal(t, SourceFallback, got.Source)
	assert.True(t, decimal.NewFromInt(1).Equal(got.EurUsd))
}

func TestProviderSurvivesStoreWriteFailure(t *testing.T) {
	p := NewProvider(&stubFeed{rate: decimal.RequireFromString("1.08")}, WithStore(&memoryStore{saveErr: errors.New("db down")}))

	got := p.GetEurUsdRate(context.Background(), testDay)
	assert.True(t, got.IsFresh)
}

func TestProviderThrottlesFeed(t *testing.T) {
	feed := &stubFeed{rate: decimal.RequireFromString("1.08")}
	p := NewProvider(feed, WithFeedLimit(0.0001))

	p.GetEurUsdRate(context.Background(), testDay)
	got := p.GetEurUsdRate(context.Background(), testDay.AddDate(0, 0, 1))

	assert.Equal(t, 1, feed.calls)
	assert.False(t, got.IsFresh)
}

func TestProviderLookupsHaveTheirOwnBudget(t *testing.T) {
	feed := &stubFeed{rate: decimal.RequireFromString("1.08")}
	p := NewProvider(feed, WithFeedLimit(0.0001), WithLookupLimit(0.0001))

	p.LookupEurUsdRate(context.Background(), testDay.AddDate(0, 0, -3))
	throttled := p.LookupEurUsdRate(context.Background(), testDay.AddDate(0, 0, -2))
	assert.False(t, throttled.IsFresh)
	assert.Equal(t, 1, feed.calls)

	got := p.GetEurUsdRate(context.Background(), testDay)
	assert.True(t, got.IsFresh)
	assert.Equal(t, SourceFeed, got.Source)
	assert.Equal(t, 2, feed.calls)
}

func TestProviderKeepsNewestLastKnownRate(t *testing.T) {
	feed := &stubFeed{rate: decimal.RequireFromString("1.08")}
	p := NewProvider(feed)
	p.GetEurUsdRate(context.Background(), testDay)

	feed.rate = decimal.RequireFromString("0.95")
	old := p.LookupEurUsdRate(context.Background(), testDay.AddDate(-1, 0, 0))
	assert.True(t, decimal.RequireFromString("0.95").Equal(old.EurUsd))

	feed.err = errors.New("feed down")
	got := p.GetEurUsdRate(context.Background(), testDay.AddDate(0, 0, 1))
	assert.False(t, got.IsFresh)
	assert.True(t, decimal.RequireFromString("1.08").Equal(got.EurUsd))
}

func TestHTTPFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2024-03-16", r.URL.Path)
		assert.Equal(t, "EUR", r.URL.Query().Get("from"))
		assert.Equal(t, "USD", r.URL.Query().Get("to"))
		_, _ = w.Write([]byte(`{"amount":1.0,"base":"EUR","date":"2024-03-15","rates":{"USD":1.0889}}`))
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL, time.Second)
	value, publishedAt, err := feed.FetchEurUsd(context.Background(), time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1.0889").Equal(value))
	assert.Equal(t, "2024-03-15", publishedAt.Format(dateLayout))
}

func TestHTTPFeedErrors(t *testing.T) {
	body := `{"rates":{}}`
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()
	feed := NewHTTPFeed(server.URL, time.Second)

	_, _, err := feed.FetchEurUsd(context.Background(), testDay)
	assert.ErrorContains(t, err, "no usable USD rate")

	status = http.StatusInternalServerError
	_, _, err = feed.FetchEurUsd(context.Background(), testDay)
	assert.ErrorContains(t, err, "500")
}
