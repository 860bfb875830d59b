package service

import (
	"fmt"

	"github.com/innopay/innopay-hub/common"
	"github.com/innopay/innopay-hub/db/models"
)

// debtTransitions is the only place allowed debt status changes are defined.
// paid and settled_out_of_band are terminal.
var debtTransitions = map[string][]string{
	common.DebtStatusUnpaid: {
		common.DebtStatusWithdrawalPending,
		common.DebtStatusSettledOutOfBand,
		common.DebtStatusRecoveryOngoing,
	},
	common.DebtStatusRecoveryOngoing:   {common.DebtStatusPaid},
	common.DebtStatusWithdrawalPending: {common.DebtStatusPaid},
}

var eligibleDebtStatuses = []string{
	common.DebtStatusUnpaid,
	common.DebtStatusRecoveryOngoing,
}

func IsKnownDebtStatus(status string) bool {
	switch status {
	case common.DebtStatusUnpaid,
		common.DebtStatusWithdrawalPending,
		common.DebtStatusRecoveryOngoing,
		common.DebtStatusSettledOutOfBand,
		common.DebtStatusPaid:
		return true
	}
	return false
}

func CanTransition(from, to string) bool {
	for _, allowed := range debtTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PlanTransition checks a whole batch before anything is written and returns
// the ids that actually change. With idempotent set, debts already in the
// target status are skipped instead of rejected.
func PlanTransition(debts []models.Debt, to string, idempotent bool) ([]int64, error) {
	if !IsKnownDebtStatus(to) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	changing := make([]int64, 0, len(debts))
	var rejected []RejectedTransition
	for _, debt := range debts {
		if idempotent && debt.Status == to {
			continue
		}
		if !CanTransition(debt.Status, to) {
			rejected = append(rejected, RejectedTransition{DebtID: debt.ID, From: debt.Status})
			continue
		}
		changing = append(changing, debt.ID)
	}
	if len(rejected) > 0 {
		return nil, &InvalidTransitionError{To: to, Rejected: rejected}
	}
	return changing, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	result := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, id)
	}
	return result
}

// RecoverySteps lists the statuses a debt passes through once its retried transfer succeeded.
// An already paid debt needs no step.
func RecoverySteps(from string) ([]string, error) {
	switch from {
	case common.DebtStatusPaid:
		return nil, nil
	case common.DebtStatusUnpaid:
		return []string{common.DebtStatusRecoveryOngoing, common.DebtStatusPaid}, nil
	}
	if CanTransition(from, common.DebtStatusPaid) {
		return []string{common.DebtStatusPaid}, nil
	}
	return nil, fmt.Errorf("%w: %s cannot be recovered", ErrInvalidTransition, from)
}

func checkAllFound(ids []int64, debts []models.Debt) error {
	found := make(map[int64]struct{}, len(debts))
	for _, debt := range debts {
		found[debt.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return fmt.Errorf("%w: %d", ErrDebtNotFound, id)
		}
	}
	return nil
}
