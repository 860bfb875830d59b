package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getsentry/sentry-go"
	"github.com/innopay/innopay-hub/common"
	"github.com/innopay/innopay-hub/db/models"
	"github.com/labstack/gommon/log"
)

const (
	recoveryWriteRetries  = 3
	recoveryWriteInterval = 200 * time.Millisecond
)

// Attempted is always Paid + StillPending.
// A debt whose transfer went through but whose status could not be written counts as Paid.
type ReconciliationResult struct {
	Attempted    int `json:"attempted"`
	Paid         int `json:"paid"`
	StillPending int `json:"still_pending"`
}

// RunReconciliationPass retries one transfer per eligible debt, oldest first.
// A debt whose transfer fails keeps its status and is picked up by the next pass.
// Only failing to list the eligible debts returns an error.
func (svc *InnopayService) RunReconciliationPass(ctx context.Context) (ReconciliationResult, error) {
	result := ReconciliationResult{}
	debts, err := svc.Debts.ListEligibleDebts(ctx)
	if err != nil {
		return result, fmt.Errorf("listing eligible debts: %w", err)
	}
	svc.Logger.Infof("Reconciliation pass started with %d eligible debts", len(debts))

	for i := range debts {
		debt := debts[i]
		result.Attempted++
		if err := ctx.Err(); err != nil {
			svc.reconciliationFailed(&result, &debt, err)
			continue
		}
		txRef, untracked := svc.untrackedRecovery(debt.ID)
		if !untracked {
			txRef, err = svc.retryDebt(ctx, &debt)
			if err != nil {
				svc.reconciliationFailed(&result, &debt, err)
				continue
			}
		}
		if err := svc.completeRecovery(ctx, debt.ID, txRef); err != nil {
			svc.untrackedRecoveries.Store(debt.ID, txRef)
			svc.Logger.Errorj(log.JSON{
				"message": "debt transfer succeeded but status could not be updated",
				"debt_id": debt.ID,
				"tx_ref":  txRef,
				"error":   err.Error(),
			})
			sentry.CaptureException(fmt.Errorf("debt %d paid by %s is not marked paid: %w", debt.ID, txRef, err))
			result.Paid++
			reconciliationDebtsTotal.WithLabelValues("paid_untracked").Inc()
			continue
		}
		svc.untrackedRecoveries.Delete(debt.ID)
		result.Paid++
		reconciliationDebtsTotal.WithLabelValues("paid").Inc()
		debt.Status = common.DebtStatusPaid
		debt.PaymentTxRef = txRef
		svc.publishDebtEvent(ctx, common.DebtEventPaid, []models.Debt{debt}, txRef)
	}

	svc.Logger.Infof("Reconciliation pass finished attempted:%d paid:%d still_pending:%d", result.Attempted, result.Paid, result.StillPending)
	return result, nil
}

// untrackedRecovery returns the tx ref of an earlier transfer for the debt whose status write failed.
// The next pass only retries the status write for such a debt.
func (svc *InnopayService) untrackedRecovery(id int64) (string, bool) {
	txRef, ok := svc.untrackedRecoveries.Load(id)
	if !ok {
		return "", false
	}
	return txRef.(string), true
}

// completeRecovery outlives the caller's context and retries transient store failures.
func (svc *InnopayService) completeRecovery(ctx context.Context, id int64, txRef string) error {
	writeCtx, cancel := svc.debtWriteContext(ctx)
	defer cancel()
	retries := backoff.WithMaxRetries(backoff.NewConstantBackOff(recoveryWriteInterval), recoveryWriteRetries)
	return backoff.Retry(func() error {
		err := svc.Debts.CompleteRecovery(writeCtx, id, txRef)
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrDebtNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(retries, writeCtx))
}

func (svc *InnopayService) reconciliationFailed(result *ReconciliationResult, debt *models.Debt, err error) {
	result.StillPending++
	reconciliationDebtsTotal.WithLabelValues("pending").Inc()
	svc.Logger.Errorf("Debt %d still pending: %v", debt.ID, err)
}

// retryDebt moves the debt's primary amount from the debtor, or the hub when there is none, to the creditor.
func (svc *InnopayService) retryDebt(ctx context.Context, debt *models.Debt) (string, error) {
	amount := debt.PrimaryAmount()
	if !amount.IsPositive() {
		return "", fmt.Errorf("debt %d has nothing to transfer", debt.ID)
	}
	from := debt.Debtor
	if from == "" {
		from = svc.hub()
	}
	memo := fmt.Sprintf("debt %d: %s", debt.ID, debt.Reason)
	if debt.Asset() == common.AssetUsdStable {
		return svc.Ledger.TransferStableUsdAsset(ctx, from, debt.Creditor, amount, memo)
	}
	return svc.Ledger.TransferStableEuroToken(ctx, from, debt.Creditor, amount, memo)
}

// UpdateDebtStatus is the operator path for moving debts along the status table.
func (svc *InnopayService) UpdateDebtStatus(ctx context.Context, ids []int64, status string) (int, error) {
	changed, err := svc.Debts.UpdateStatus(ctx, ids, status)
	if err != nil {
		return 0, err
	}
	svc.publishDebtEvent(ctx, common.DebtEventStatusChanged, statusOnly(changed, status), "")
	return len(changed), nil
}

// MarkDebtsPaid records an out of band payment of the given debts.
func (svc *InnopayService) MarkDebtsPaid(ctx context.Context, ids []int64, txRef string) (int, error) {
	changed, err := svc.Debts.MarkPaid(ctx, ids, txRef)
	if err != nil {
		return 0, err
	}
	// debts that were already paid are not announced again
	svc.publishDebtEvent(ctx, common.DebtEventPaid, statusOnly(changed, common.DebtStatusPaid), txRef)
	return len(changed), nil
}

func (svc *InnopayService) ListDebts(ctx context.Context, filter DebtFilter) ([]models.Debt, error) {
	return svc.Debts.ListDebts(ctx, filter)
}
