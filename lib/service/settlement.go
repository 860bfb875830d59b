package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/innopay/innopay-hub/common"
	"github.com/innopay/innopay-hub/db/models"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"
)

const (
	legCustomerEuro       = "customer_euro"
	legRestaurantUsdAsset = "restaurant_usd_asset"
	legRestaurantEuro     = "restaurant_euro"
	legCustomerUsdAsset   = "customer_usd_asset"
)

var requestValidator = newRequestValidator()

// newRequestValidator reports fields by their json name.
func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

type PaymentRequest struct {
	CustomerAccount      string          `json:"customer_account" validate:"required_if=TransferFromCustomer true"`
	RestaurantAccount    string          `json:"restaurant_account" validate:"required"`
	OrderAmountEuro      decimal.Decimal `json:"order_amount_euro"`
	OrderMemo            string          `json:"order_memo" validate:"required"`
	TransferFromCustomer bool            `json:"transfer_from_customer"`
	Reason               string          `json:"reason"`
}

// Validate has no side effects and only returns *ValidationError.
func (req *PaymentRequest) Validate() error {
	if !req.OrderAmountEuro.IsPositive() {
		return &ValidationError{Field: "order_amount_euro", Reason: "must be greater than 0"}
	}
	if !req.OrderAmountEuro.Equal(req.OrderAmountEuro.Truncate(common.EuroTokenPrecision)) {
		return &ValidationError{Field: "order_amount_euro", Reason: fmt.Sprintf("must have at most %d decimals", common.EuroTokenPrecision)}
	}
	err := requestValidator.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		fe := fieldErrors[0]
		reason := "is invalid"
		switch fe.Tag() {
		case "required", "required_if":
			reason = "is required"
		}
		return &ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &ValidationError{Field: "request", Reason: err.Error()}
}

// SettlementResult carries empty tx ids for legs that did not run or failed.
type SettlementResult struct {
	Ref                    uuid.UUID       `json:"ref"`
	CustomerEuroTxID       string          `json:"customer_euro_tx_id,omitempty"`
	CustomerUsdAssetTxID   string          `json:"customer_usd_asset_tx_id,omitempty"`
	RestaurantUsdAssetTxID string          `json:"restaurant_usd_asset_tx_id,omitempty"`
	RestaurantEuroTxID     string          `json:"restaurant_euro_tx_id,omitempty"`
	EurUsdRate             decimal.Decimal `json:"eur_usd_rate"`
	RateIsFresh            bool            `json:"rate_is_fresh"`
	UsdAssetAmount         decimal.Decimal `json:"usd_asset_amount"`
	// Degraded is set when a debt could not be recorded.
	Degraded bool `json:"degraded"`
}

// SettleOrderPayment pays the restaurant in the USD asset, falling back to the euro token,
// and collects from the customer when asked to. Failed legs leave a debt behind.
// Only a restaurant that could not be paid in either asset fails the call.
// Calls are not idempotent, every call attempts fresh transfers.
func (svc *InnopayService) SettleOrderPayment(ctx context.Context, req PaymentRequest) (*SettlementResult, error) {
	if err := req.Validate(); err != nil {
		settlementsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	reason := req.Reason
	if reason == "" {
		reason = svc.defaultDebtReason()
	}
	hub := svc.hub()
	amountEuro := req.OrderAmountEuro
	result := &SettlementResult{Ref: uuid.New()}

	if req.TransferFromCustomer {
		txID, err := svc.transferEuro(ctx, legCustomerEuro, req.CustomerAccount, hub, amountEuro, common.MemoCustomerToHub)
		if err != nil {
			svc.recordDebt(ctx, result, &models.Debt{
				Creditor:   hub,
				Debtor:     req.CustomerAccount,
				AmountEuro: amountEuro,
				Reason:     reason,
				Notes:      debtNotes(result.Ref, "customer euro transfer failed", err),
			})
		} else {
			result.CustomerEuroTxID = txID
		}
	}

	rate := svc.Rates.GetEurUsdRate(ctx, svc.now())
	result.EurUsdRate = rate.EurUsd
	result.RateIsFresh = rate.IsFresh
	result.UsdAssetAmount = amountEuro.Mul(rate.EurUsd).Round(common.UsdAssetPrecision)
	rateAtCreation := decimal.NewNullDecimal(rate.EurUsd)

	txID, usdErr := svc.transferUsdAsset(ctx, legRestaurantUsdAsset, hub, req.RestaurantAccount, result.UsdAssetAmount, req.OrderMemo)
	if usdErr == nil {
		result.RestaurantUsdAssetTxID = txID
	} else {
		svc.recordDebt(ctx, result, &models.Debt{
			Creditor:             req.RestaurantAccount,
			AmountUsdAsset:       result.UsdAssetAmount,
			EurUsdRateAtCreation: rateAtCreation,
			Reason:               reason,
			Notes:                debtNotes(result.Ref, common.NotesShortage, usdErr),
		})
		txID, euroErr := svc.transferEuro(ctx, legRestaurantEuro, hub, req.RestaurantAccount, amountEuro, req.OrderMemo)
		if euroErr != nil {
			settlementErr := &SettlementFailedError{
				Restaurant:   req.RestaurantAccount,
				UsdAssetErr:  usdErr,
				EuroTokenErr: euroErr,
				Partial:      result,
			}
			svc.Logger.Errorj(log.JSON{
				"message":             "settlement failed",
				"ref":                 result.Ref.String(),
				"restaurant":          req.RestaurantAccount,
				"customer":            req.CustomerAccount,
				"amount_euro":         amountEuro.String(),
				"customer_euro_tx_id": result.CustomerEuroTxID,
				"eur_usd_rate":        result.EurUsdRate.String(),
				"usd_asset_amount":    result.UsdAssetAmount.String(),
				"usd_asset_err":       usdErr.Error(),
				"euro_token_err":      euroErr.Error(),
			})
			sentry.CaptureException(settlementErr)
			settlementsTotal.WithLabelValues("failed").Inc()
			return nil, settlementErr
		}
		result.RestaurantEuroTxID = txID
	}

	if req.TransferFromCustomer {
		txID, err := svc.transferUsdAsset(ctx, legCustomerUsdAsset, req.CustomerAccount, hub, result.UsdAssetAmount, common.MemoCustomerToHub)
		if err != nil {
			svc.recordDebt(ctx, result, &models.Debt{
				Creditor:             hub,
				Debtor:               req.CustomerAccount,
				AmountUsdAsset:       result.UsdAssetAmount,
				EurUsdRateAtCreation: rateAtCreation,
				Reason:               reason,
				Notes:                debtNotes(result.Ref, "customer usd asset transfer failed", err),
			})
		} else {
			result.CustomerUsdAssetTxID = txID
		}
	}

	if result.Degraded {
		settlementsTotal.WithLabelValues("degraded").Inc()
	} else {
		settlementsTotal.WithLabelValues("ok").Inc()
	}
	return result, nil
}

func (svc *InnopayService) transferEuro(ctx context.Context, leg, from, to string, amount decimal.Decimal, memo string) (string, error) {
	txID, err := svc.Ledger.TransferStableEuroToken(ctx, from, to, amount, memo)
	settlementLegsTotal.WithLabelValues(leg, common.AssetEuroToken, outcomeLabel(err)).Inc()
	if err != nil {
		svc.Logger.Errorf("Leg %s failed: %v", leg, err)
	}
	return txID, err
}

func (svc *InnopayService) transferUsdAsset(ctx context.Context, leg, from, to string, amount decimal.Decimal, memo string) (string, error) {
	txID, err := svc.Ledger.TransferStableUsdAsset(ctx, from, to, amount, memo)
	settlementLegsTotal.WithLabelValues(leg, common.AssetUsdStable, outcomeLabel(err)).Inc()
	if err != nil {
		svc.Logger.Errorf("Leg %s failed: %v", leg, err)
	}
	return txID, err
}

// recordDebt never fails the settlement. A lost debt record only marks the result as degraded.
// The write outlives the caller's context, a leg that failed must leave its debt behind.
func (svc *InnopayService) recordDebt(ctx context.Context, result *SettlementResult, debt *models.Debt) {
	writeCtx, cancel := svc.debtWriteContext(ctx)
	defer cancel()
	id, err := svc.Debts.RecordDebt(writeCtx, debt)
	if err != nil {
		result.Degraded = true
		debtWriteFailuresTotal.Inc()
		svc.Logger.Errorj(log.JSON{
			"message":          "failed to record debt",
			"ref":              result.Ref.String(),
			"creditor":         debt.Creditor,
			"debtor":           debt.Debtor,
			"amount_euro":      debt.AmountEuro.String(),
			"amount_usd_asset": debt.AmountUsdAsset.String(),
			"error":            err.Error(),
		})
		sentry.CaptureException(err)
		return
	}
	debt.ID = id
	debtsRecordedTotal.WithLabelValues(debt.Asset()).Inc()
	svc.publishDebtEvent(ctx, common.DebtEventRecorded, []models.Debt{*debt}, "")
}

func (svc *InnopayService) defaultDebtReason() string {
	if svc.Config.DefaultDebtReason != "" {
		return svc.Config.DefaultDebtReason
	}
	return common.DebtReasonOrderPayment
}

func debtNotes(ref uuid.UUID, detail string, cause error) string {
	return fmt.Sprintf("%s: %v (settlement %s)", detail, cause, ref)
}
