package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/innopay/innopay-hub/common"
	"github.com/innopay/innopay-hub/db/models"
	"github.com/uptrace/bun"
)

const defaultDebtListLimit = 100

// DebtStore is the persisted debt ledger.
// UpdateStatus, MarkPaid and CompleteRecovery are the only paths that change a debt's status.
// UpdateStatus and MarkPaid return the ids that actually changed.
type DebtStore interface {
	RecordDebt(ctx context.Context, debt *models.Debt) (int64, error)
	ListEligibleDebts(ctx context.Context) ([]models.Debt, error)
	UpdateStatus(ctx context.Context, ids []int64, status string) ([]int64, error)
	MarkPaid(ctx context.Context, ids []int64, txRef string) ([]int64, error)
	CompleteRecovery(ctx context.Context, id int64, txRef string) error
	ListDebts(ctx context.Context, filter DebtFilter) ([]models.Debt, error)
}

type DebtFilter struct {
	Status   string `query:"status"`
	Creditor string `query:"creditor"`
	Debtor   string `query:"debtor"`
	Limit    int    `query:"limit" validate:"gte=0,lte=1000"`
	Offset   int    `query:"offset" validate:"gte=0"`
}

type BunDebtStore struct {
	DB *bun.DB
}

func NewBunDebtStore(db *bun.DB) *BunDebtStore {
	return &BunDebtStore{DB: db}
}

func (s *BunDebtStore) RecordDebt(ctx context.Context, debt *models.Debt) (int64, error) {
	if _, err := s.DB.NewInsert().Model(debt).Returning("id, status, created_at").Exec(ctx); err != nil {
		return 0, &DebtStoreError{Op: "record", Err: err}
	}
	return debt.ID, nil
}

// ListEligibleDebts returns unpaid and recovery_ongoing debts, oldest first.
func (s *BunDebtStore) ListEligibleDebts(ctx context.Context) ([]models.Debt, error) {
	debts := []models.Debt{}
	err := s.DB.NewSelect().
		Model(&debts).
		Where("status IN (?)", bun.In(eligibleDebtStatuses)).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, &DebtStoreError{Op: "list eligible", Err: err}
	}
	return debts, nil
}

func (s *BunDebtStore) ListDebts(ctx context.Context, filter DebtFilter) ([]models.Debt, error) {
	debts := []models.Debt{}
	query := s.DB.NewSelect().Model(&debts)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Creditor != "" {
		query = query.Where("creditor = ?", filter.Creditor)
	}
	if filter.Debtor != "" {
		query = query.Where("debtor = ?", filter.Debtor)
	}
	limit := filter.Limit
	if limit == 0 {
		limit = defaultDebtListLimit
	}
	err := query.OrderExpr("created_at ASC, id ASC").Limit(limit).Offset(filter.Offset).Scan(ctx)
	if err != nil {
		return nil, &DebtStoreError{Op: "list", Err: err}
	}
	return debts, nil
}

// UpdateStatus moves every id to status or none of them.
func (s *BunDebtStore) UpdateStatus(ctx context.Context, ids []int64, status string) ([]int64, error) {
	return s.transition(ctx, "update status", ids, status, false, "")
}

// MarkPaid is idempotent: debts that are already paid are left untouched and not returned.
func (s *BunDebtStore) MarkPaid(ctx context.Context, ids []int64, txRef string) ([]int64, error) {
	return s.transition(ctx, "mark paid", ids, common.DebtStatusPaid, true, txRef)
}

// CompleteRecovery settles a debt after its transfer went through,
// passing through recovery_ongoing when it was still unpaid.
func (s *BunDebtStore) CompleteRecovery(ctx context.Context, id int64, txRef string) error {
	return s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		debts, err := lockDebts(ctx, tx, []int64{id})
		if err != nil {
			return err
		}
		steps, err := RecoverySteps(debts[0].Status)
		if err != nil {
			return err
		}
		for _, status := range steps {
			if err := applyStatus(ctx, tx, []int64{id}, status, txRef); err != nil {
				return &DebtStoreError{Op: "complete recovery", Err: err}
			}
		}
		return nil
	})
}

func (s *BunDebtStore) transition(ctx context.Context, op string, ids []int64, status string, idempotent bool, txRef string) ([]int64, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var changed []int64
	err := s.DB.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		debts, err := lockDebts(ctx, tx, ids)
		if err != nil {
			return err
		}
		changing, err := PlanTransition(debts, status, idempotent)
		if err != nil {
			return err
		}
		if len(changing) == 0 {
			return nil
		}
		if err := applyStatus(ctx, tx, changing, status, txRef); err != nil {
			return &DebtStoreError{Op: op, Err: err}
		}
		changed = changing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// lockDebts selects the rows FOR UPDATE and fails with ErrDebtNotFound when any id is missing.
func lockDebts(ctx context.Context, tx bun.Tx, ids []int64) ([]models.Debt, error) {
	debts := []models.Debt{}
	err := tx.NewSelect().
		Model(&debts).
		Where("id IN (?)", bun.In(ids)).
		OrderExpr("id ASC").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return nil, &DebtStoreError{Op: "lock", Err: err}
	}
	if err := checkAllFound(ids, debts); err != nil {
		return nil, err
	}
	return debts, nil
}

func applyStatus(ctx context.Context, tx bun.Tx, ids []int64, status string, txRef string) error {
	now := time.Now()
	query := tx.NewUpdate().
		TableExpr("debts").
		Set("status = ?", status).
		Set("updated_at = ?", now).
		Where("id IN (?)", bun.In(ids))
	if status == common.DebtStatusPaid {
		query = query.Set("paid_at = ?", now)
		if txRef != "" {
			query = query.Set("payment_tx_ref = ?", txRef)
		}
	}
	_, err := query.Exec(ctx)
	return err
}
