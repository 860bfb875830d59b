package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/innopay/innopay-hub/common"
	"github.com/innopay/innopay-hub/ledger"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/innopay/innopay-hub/lib/service/servicetest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	customer   = "alice"
	restaurant = "cafe"
	hub        = servicetest.HubAccount
)

func orderRequest() service.PaymentRequest {
	return service.PaymentRequest{
		CustomerAccount:      customer,
		RestaurantAccount:    restaurant,
		OrderAmountEuro:      decimal.NewFromInt(20),
		OrderMemo:            "table=4;order=123",
		TransferFromCustomer: true,
	}
}

type fixture struct {
	ledger *servicetest.Ledger
	rates  *servicetest.Rates
	debts  *servicetest.DebtStore
	svc    *service.InnopayService
}

func newFixture(eurUsd ...string) *fixture {
	f := &fixture{
		ledger: servicetest.NewLedger(),
		rates:  servicetest.NewRates(eurUsd...),
		debts:  servicetest.NewDebtStore(),
	}
	f.svc = servicetest.NewService(f.ledger, f.rates, f.debts)
	return f
}

func TestSettleAllLegsSucceed(t *testing.T) {
	f := newFixture("1.08")

	result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, result.CustomerEuroTxID)
	assert.NotEmpty(t, result.CustomerUsdAssetTxID)
	assert.NotEmpty(t, result.RestaurantUsdAssetTxID)
	assert.Empty(t, result.RestaurantEuroTxID)
	assert.True(t, result.EurUsdRate.Equal(decimal.RequireFromString("1.08")))
	assert.True(t, result.UsdAssetAmount.Equal(decimal.RequireFromString("21.6")))
	assert.True(t, result.RateIsFresh)
	assert.False(t, result.Degraded)
	assert.Empty(t, f.debts.All())

	calls := f.ledger.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, servicetest.Transfer{Asset: common.AssetEuroToken, From: customer, To: hub, Amount: decimal.NewFromInt(20), Memo: common.MemoCustomerToHub}, calls[0])
	assert.Equal(t, common.AssetUsdStable, calls[1].Asset)
	assert.Equal(t, restaurant, calls[1].To)
	assert.Equal(t, "table=4;order=123", calls[1].Memo)
	assert.Equal(t, common.AssetUsdStable, calls[2].Asset)
	assert.Equal(t, customer, calls[2].From)
}

func TestSettleFallsBackToEuroToken(t *testing.T) {
	f := newFixture("1.08")
	f.ledger.Fail(common.AssetUsdStable, hub, restaurant, ledger.ErrInsufficientBalance)

	result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RestaurantEuroTxID)
	assert.Empty(t, result.RestaurantUsdAssetTxID)

	debts := f.debts.All()
	require.Len(t, debts, 1)
	debt := debts[0]
	assert.Equal(t, restaurant, debt.Creditor)
	assert.Empty(t, debt.Debtor)
	assert.True(t, debt.AmountUsdAsset.Equal(decimal.RequireFromString("21.6")))
	assert.True(t, debt.AmountEuro.IsZero())
	assert.True(t, debt.EurUsdRateAtCreation.Valid)
	assert.True(t, debt.EurUsdRateAtCreation.Decimal.Equal(decimal.RequireFromString("1.08")))
	assert.Equal(t, common.DebtReasonOrderPayment, debt.Reason)
	assert.Equal(t, common.DebtStatusUnpaid, debt.Status)
	assert.Contains(t, debt.Notes, common.NotesShortage)
	assert.Contains(t, debt.Notes, result.Ref.String())
}

func TestSettleFailsWhenRestaurantCannotBePaid(t *testing.T) {
	f := newFixture("1.08")
	f.ledger.Fail(common.AssetUsdStable, hub, restaurant, ledger.ErrInsufficientBalance)
	f.ledger.Fail(common.AssetEuroToken, hub, restaurant, ledger.ErrInsufficientBalance)

	result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, service.ErrSettlementFailed))

	var settlementErr *service.SettlementFailedError
	require.True(t, errors.As(err, &settlementErr))
	assert.Equal(t, restaurant, settlementErr.Restaurant)
	assert.ErrorIs(t, settlementErr.UsdAssetErr, ledger.ErrInsufficientBalance)
	assert.ErrorIs(t, settlementErr.EuroTokenErr, ledger.ErrInsufficientBalance)

	// the committed customer transfer is still reported
	require.NotNil(t, settlementErr.Partial)
	assert.Equal(t, "tx-1", settlementErr.Partial.CustomerEuroTxID)
	assert.True(t, settlementErr.Partial.UsdAssetAmount.Equal(decimal.RequireFromString("21.6")))
	assert.True(t, settlementErr.Partial.EurUsdRate.Equal(decimal.RequireFromString("1.08")))

	debts := f.debts.All()
	require.Len(t, debts, 1)
	assert.Equal(t, restaurant, debts[0].Creditor)
	assert.Contains(t, debts[0].Notes, settlementErr.Partial.Ref.String())

	// no customer usd asset leg after the fatal failure
	for _, call := range f.ledger.Calls() {
		assert.False(t, call.Asset == common.AssetUsdStable && call.From == customer)
	}
}

func TestSettleRestaurantPaidInExactlyOneAsset(t *testing.T) {
	for _, usdFails := range []bool{false, true} {
		f := newFixture("1.1")
		if usdFails {
			f.ledger.Fail(common.AssetUsdStable, hub, restaurant, errors.New("node down"))
		}
		result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
		require.NoError(t, err)
		paidUsd := result.RestaurantUsdAssetTxID != ""
		paidEuro := result.RestaurantEuroTxID != ""
		assert.True(t, paidUsd != paidEuro)
		assert.Equal(t, !usdFails, paidUsd)
	}
}

func TestSettleFailsOnlyWhenBothRestaurantLegsFail(t *testing.T) {
	cases := []struct {
		usdFails, euroFails, customerFails bool
	}{
		{false, false, false},
		{false, true, true},
		{true, false, true},
		{true, true, false},
		{true, true, true},
	}
	for _, c := range cases {
		f := newFixture("1.08")
		if c.usdFails {
			f.ledger.Fail(common.AssetUsdStable, hub, restaurant, ledger.ErrRejected)
		}
		if c.euroFails {
			f.ledger.Fail(common.AssetEuroToken, hub, restaurant, ledger.ErrRejected)
		}
		if c.customerFails {
			f.ledger.Fail(common.AssetEuroToken, customer, hub, ledger.ErrInsufficientBalance)
			f.ledger.Fail(common.AssetUsdStable, customer, hub, ledger.ErrInsufficientBalance)
		}
		_, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
		assert.Equal(t, c.usdFails && c.euroFails, errors.Is(err, service.ErrSettlementFailed), "%+v", c)
	}
}

func TestSettleFetchesRateOnce(t *testing.T) {
	f := newFixture("1.08", "2.5")

	result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, f.rates.Calls())

	expected := decimal.RequireFromString("21.6")
	var usdAmounts []decimal.Decimal
	for _, call := range f.ledger.Calls() {
		if call.Asset == common.AssetUsdStable {
			usdAmounts = append(usdAmounts, call.Amount)
		}
	}
	require.Len(t, usdAmounts, 2)
	assert.True(t, usdAmounts[0].Equal(expected))
	assert.True(t, usdAmounts[1].Equal(expected))
	assert.True(t, result.EurUsdRate.Equal(decimal.RequireFromString("1.08")))
}

func TestSettleRoundsUsdAssetAmount(t *testing.T) {
	f := newFixture("1.08765")
	req := orderRequest()
	req.OrderAmountEuro = decimal.RequireFromString("12.34")

	result, err := f.svc.SettleOrderPayment(context.Background(), req)
	require.NoError(t, err)
	// 12.34 * 1.08765 = 13.421601
	assert.Equal(t, "13.422", result.UsdAssetAmount.StringFixed(common.UsdAssetPrecision))
}

func TestSettleCustomerEuroLegFailureIsNotFatal(t *testing.T) {
	f := newFixture("1.08")
	f.ledger.Fail(common.AssetEuroToken, customer, hub, ledger.ErrInsufficientBalance)

	result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.NoError(t, err)
	assert.Empty(t, result.CustomerEuroTxID)
	assert.NotEmpty(t, result.RestaurantUsdAssetTxID)
	assert.NotEmpty(t, result.CustomerUsdAssetTxID)

	debts := f.debts.All()
	require.Len(t, debts, 1)
	assert.Equal(t, hub, debts[0].Creditor)
	assert.Equal(t, customer, debts[0].Debtor)
	assert.True(t, debts[0].AmountEuro.Equal(decimal.NewFromInt(20)))
	// recorded before the rate was fetched
	assert.False(t, debts[0].EurUsdRateAtCreation.Valid)
}

func TestSettleCustomerUsdAssetLegFailureIsNotFatal(t *testing.T) {
	f := newFixture("1.08")
	f.ledger.Fail(common.AssetUsdStable, customer, hub, ledger.ErrInsufficientBalance)

	result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.NoError(t, err)
	assert.Empty(t, result.CustomerUsdAssetTxID)
	assert.NotEmpty(t, result.CustomerEuroTxID)

	debts := f.debts.All()
	require.Len(t, debts, 1)
	assert.Equal(t, hub, debts[0].Creditor)
	assert.Equal(t, customer, debts[0].Debtor)
	assert.True(t, debts[0].AmountUsdAsset.Equal(decimal.RequireFromString("21.6")))
	assert.True(t, debts[0].EurUsdRateAtCreation.Valid)
}

func TestSettleSurvivesDebtStoreOutage(t *testing.T) {
	f := newFixture("1.08")
	f.debts.RecordErr = servicetest.ErrStoreDown
	f.ledger.Fail(common.AssetEuroToken, customer, hub, ledger.ErrInsufficientBalance)
	f.ledger.Fail(common.AssetUsdStable, hub, restaurant, ledger.ErrInsufficientBalance)
	f.ledger.Fail(common.AssetUsdStable, customer, hub, ledger.ErrInsufficientBalance)

	result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.NotEmpty(t, result.RestaurantEuroTxID)
	assert.Empty(t, f.debts.All())
	// every leg still ran
	assert.Len(t, f.ledger.Calls(), 4)
}

func TestSettleWithoutCustomerLegs(t *testing.T) {
	f := newFixture("1.08")
	req := orderRequest()
	req.TransferFromCustomer = false
	req.CustomerAccount = ""
	req.Reason = "manual_payout"
	f.ledger.Fail(common.AssetUsdStable, hub, restaurant, ledger.ErrRejected)

	result, err := f.svc.SettleOrderPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, result.CustomerEuroTxID)
	assert.Empty(t, result.CustomerUsdAssetTxID)
	assert.Len(t, f.ledger.Calls(), 2)

	debts := f.debts.All()
	require.Len(t, debts, 1)
	assert.Equal(t, "manual_payout", debts[0].Reason)
}

func TestSettleValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*service.PaymentRequest)
		field  string
	}{
		"zero amount":     {func(r *service.PaymentRequest) { r.OrderAmountEuro = decimal.Zero }, "order_amount_euro"},
		"negative amount": {func(r *service.PaymentRequest) { r.OrderAmountEuro = decimal.NewFromInt(-5) }, "order_amount_euro"},
		"sub cent amount": {func(r *service.PaymentRequest) { r.OrderAmountEuro = decimal.RequireFromString("0.004") }, "order_amount_euro"},
		"three decimals":  {func(r *service.PaymentRequest) { r.OrderAmountEuro = decimal.RequireFromString("10.005") }, "order_amount_euro"},
		"empty memo":      {func(r *service.PaymentRequest) { r.OrderMemo = "" }, "order_memo"},
		"no restaurant":   {func(r *service.PaymentRequest) { r.RestaurantAccount = "" }, "restaurant_account"},
		"no customer":     {func(r *service.PaymentRequest) { r.CustomerAccount = "" }, "customer_account"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture("1.08")
			req := orderRequest()
			c.mutate(&req)

			_, err := f.svc.SettleOrderPayment(context.Background(), req)
			var validationErr *service.ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Equal(t, c.field, validationErr.Field)
			assert.Empty(t, f.ledger.Calls())
			assert.Equal(t, 0, f.rates.Calls())
		})
	}
}

func TestSettleAcceptsCentAmounts(t *testing.T) {
	req := orderRequest()
	req.OrderAmountEuro = decimal.RequireFromString("10.50")
	assert.NoError(t, req.Validate())
	req.OrderAmountEuro = decimal.RequireFromString("0.01")
	assert.NoError(t, req.Validate())
}

func TestSettleAllowsMissingCustomerWithoutCustomerLegs(t *testing.T) {
	req := orderRequest()
	req.CustomerAccount = ""
	req.TransferFromCustomer = false
	assert.NoError(t, req.Validate())
}

// cancellingLedger cancels the caller's context as soon as a usd asset transfer fails.
type cancellingLedger struct {
	*servicetest.Ledger
	cancel context.CancelFunc
}

func (l *cancellingLedger) TransferStableUsdAsset(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	txID, err := l.Ledger.TransferStableUsdAsset(ctx, from, to, amount, memo)
	if err != nil {
		l.cancel()
	}
	return txID, err
}

func TestSettleRecordsDebtAfterCallerGaveUp(t *testing.T) {
	f := newFixture("1.08")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.Ledger = &cancellingLedger{Ledger: f.ledger, cancel: cancel}
	f.ledger.Fail(common.AssetUsdStable, hub, restaurant, ledger.ErrInsufficientBalance)

	result, err := f.svc.SettleOrderPayment(ctx, orderRequest())
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.False(t, result.Degraded)

	debts := f.debts.All()
	require.Len(t, debts, 1)
	assert.Equal(t, restaurant, debts[0].Creditor)
	assert.True(t, debts[0].AmountUsdAsset.Equal(decimal.RequireFromString("21.6")))
}

func TestSettleDoesNotWaitOnBroker(t *testing.T) {
	f := newFixture("1.08")
	f.svc.Config.EventPublishTimeout = 1
	f.svc.RabbitMQClient = &servicetest.Publisher{Block: true}
	f.ledger.Fail(common.AssetUsdStable, hub, restaurant, ledger.ErrInsufficientBalance)

	started := time.Now()
	result, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.NotEmpty(t, result.RestaurantEuroTxID)
	assert.False(t, result.Degraded)
	assert.Len(t, f.debts.All(), 1)
}

func TestSettlePublishesRecordedDebts(t *testing.T) {
	f := newFixture("1.08")
	publisher := &servicetest.Publisher{}
	f.svc.RabbitMQClient = publisher
	f.ledger.Fail(common.AssetUsdStable, hub, restaurant, ledger.ErrInsufficientBalance)

	_, err := f.svc.SettleOrderPayment(context.Background(), orderRequest())
	require.NoError(t, err)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, common.DebtEventRecorded, events[0].Type)
	require.Len(t, events[0].Debts, 1)
	assert.Equal(t, restaurant, events[0].Debts[0].Creditor)
}
