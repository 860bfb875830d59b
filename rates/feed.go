package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Feed fetches the EUR/USD quote (USD per EUR) published for a date.
type Feed interface {
	FetchEurUsd(ctx context.Context, asOf time.Time) (decimal.Decimal, time.Time, error)
}

// HTTPFeed talks to a frankfurter compatible endpoint:
// GET {url}/{yyyy-mm-dd}?from=EUR&to=USD -> {"date": "...", "rates": {"USD": 1.08}}
type HTTPFeed struct {
	url        string
	httpClient *http.Client
}

type feedResponse struct {
	Base  string                     `json:"base"`
	Date  string                     `json:"date"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

func NewHTTPFeed(url string, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFeed) FetchEurUsd(ctx context.Context, asOf time.Time) (decimal.Decimal, time.Time, error) {
	endpoint := fmt.Sprintf("%s/%s?from=EUR&to=USD", f.url, asOf.Format(dateLayout))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, time.Time{}, fmt.Errorf("rate feed status code was %d", resp.StatusCode)
	}

	body := feedResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("invalid rate feed response: %w", err)
	}
	rate, ok := body.Rates["USD"]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, time.Time{}, fmt.Errorf("rate feed returned no usable USD rate")
	}
	// the feed answers with the closest published business day
	publishedAt, err := time.Parse(dateLayout, body.Date)
	if err != nil {
		publishedAt = asOf
	}
	return rate, publishedAt, nil
}
