package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/innopay/innopay-hub/common"
	"github.com/shopspring/decimal"
)

// GatewayOptions are the options for the connection to the signing gateway.
// The gateway owns key derivation and broadcasting; we only describe transfers.
type GatewayOptions struct {
	Url        string
	Token      string
	HTTPClient *http.Client
}

type GatewayClient struct {
	url        string
	token      string
	httpClient *http.Client
}

type transferRequest struct {
	Asset  string `json:"asset"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
}

type transferResponse struct {
	TxID  string `json:"tx_id"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func NewGatewayClient(options GatewayOptions) *GatewayClient {
	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GatewayClient{
		url:        strings.TrimSuffix(options.Url, "/"),
		token:      options.Token,
		httpClient: httpClient,
	}
}

func (c *GatewayClient) TransferStableEuroToken(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	return c.transfer(ctx, common.AssetEuroToken, common.EuroTokenPrecision, from, to, amount, memo)
}

func (c *GatewayClient) TransferStableUsdAsset(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	return c.transfer(ctx, common.AssetUsdStable, common.UsdAssetPrecision, from, to, amount, memo)
}

func (c *GatewayClient) transfer(ctx context.Context, asset string, precision int32, from, to string, amount decimal.Decimal, memo string) (string, error) {
	fail := func(cause error) (string, error) {
		return "", &LedgerError{Asset: asset, From: from, To: to, Amount: amount, Cause: cause}
	}
	rounded := amount.Round(precision)
	if !rounded.IsPositive() {
		return fail(fmt.Errorf("%w: amount must be positive at %d decimals", ErrRejected, precision))
	}
	if !rounded.Equal(amount) {
		return fail(fmt.Errorf("%w: amount %s has more than %d decimals", ErrRejected, amount, precision))
	}

	payload := new(bytes.Buffer)
	err := json.NewEncoder(payload).Encode(&transferRequest{
		Asset:  asset,
		From:   from,
		To:     to,
		Amount: rounded.StringFixed(precision),
		Memo:   memo,
	})
	if err != nil {
		return fail(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/transfers", payload)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fail(err)
	}
	result := transferResponse{}
	// error bodies are not always json, keep the raw text in that case
	if jsonErr := json.Unmarshal(body, &result); jsonErr != nil && resp.StatusCode == http.StatusOK {
		return fail(fmt.Errorf("invalid gateway response: %w", jsonErr))
	}

	switch {
	case resp.StatusCode == http.StatusOK && result.TxID != "":
		return result.TxID, nil
	case resp.StatusCode == http.StatusOK:
		return fail(fmt.Errorf("gateway returned no transaction id"))
	case resp.StatusCode == http.StatusPaymentRequired || result.Code == "insufficient_balance":
		return fail(fmt.Errorf("%w: %s", ErrInsufficientBalance, gatewayMessage(result, body)))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fail(fmt.Errorf("%w: %s", ErrRejected, gatewayMessage(result, body)))
	default:
		return fail(fmt.Errorf("gateway status code was %d, body: %s", resp.StatusCode, gatewayMessage(result, body)))
	}
}

func gatewayMessage(result transferResponse, body []byte) string {
	if result.Error != "" {
		return result.Error
	}
	return strings.TrimSpace(string(body))
}
