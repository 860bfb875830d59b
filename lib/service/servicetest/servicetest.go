// Package servicetest holds in-memory collaborators for exercising the settlement
// engine and the reconciliation worker without a ledger gateway or postgres.
package servicetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/innopay/innopay-hub/common"
	"github.com/innopay/innopay-hub/db/models"
	"github.com/innopay/innopay-hub/ledger"
	"github.com/innopay/innopay-hub/lib/service"
	"github.com/innopay/innopay-hub/rabbitmq"
	"github.com/innopay/innopay-hub/rates"
	"github.com/labstack/gommon/log"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"
)

const HubAccount = "innopay"

var ErrStoreDown = errors.New("debt store unavailable")

type Transfer struct {
	Asset  string
	From   string
	To     string
	Amount decimal.Decimal
	Memo   string
}

// Ledger succeeds every transfer unless a failure was registered for its asset and route.
type Ledger struct {
	mu        sync.Mutex
	failures  map[string]error
	Transfers []Transfer
	seq       int
}

func NewLedger() *Ledger {
	return &Ledger{failures: map[string]error{}}
}

func routeKey(asset, from, to string) string {
	return fmt.Sprintf("%s:%s->%s", asset, from, to)
}

// Fail makes every transfer of asset from -> to fail with cause wrapped in a *ledger.LedgerError.
func (l *Ledger) Fail(asset, from, to string, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[routeKey(asset, from, to)] = cause
}

func (l *Ledger) Heal(asset, from, to string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, routeKey(asset, from, to))
}

func (l *Ledger) TransferStableEuroToken(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	return l.transfer(common.AssetEuroToken, from, to, amount, memo)
}

func (l *Ledger) TransferStableUsdAsset(ctx context.Context, from, to string, amount decimal.Decimal, memo string) (string, error) {
	return l.transfer(common.AssetUsdStable, from, to, amount, memo)
}

func (l *Ledger) transfer(asset, from, to string, amount decimal.Decimal, memo string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Transfers = append(l.Transfers, Transfer{Asset: asset, From: from, To: to, Amount: amount, Memo: memo})
	if cause, ok := l.failures[routeKey(asset, from, to)]; ok {
		return "", &ledger.LedgerError{Asset: asset, From: from, To: to, Amount: amount, Cause: cause}
	}
	l.seq++
	return fmt.Sprintf("tx-%d", l.seq), nil
}

func (l *Ledger) Calls() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transfer(nil), l.Transfers...)
}

// Rates hands out Sequence in order and repeats the last entry once exhausted.
// Lookups return the current entry without advancing the sequence.
type Rates struct {
	mu       sync.Mutex
	Sequence []rates.ExchangeRate
	calls    int
	lookups  int
}

func NewRates(eurUsd ...string) *Rates {
	r := &Rates{}
	for _, value := range eurUsd {
		r.Sequence = append(r.Sequence, rates.ExchangeRate{
			EurUsd:  decimal.RequireFromString(value),
			IsFresh: true,
			Source:  rates.SourceFeed,
		})
	}
	return r
}

func (r *Rates) GetEurUsdRate(ctx context.Context, asOf time.Time) rates.ExchangeRate {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.calls
	if idx >= len(r.Sequence) {
		idx = len(r.Sequence) - 1
	}
	r.calls++
	if idx < 0 {
		return rates.ExchangeRate{AsOf: asOf, EurUsd: decimal.NewFromInt(1), Source: rates.SourceFallback}
	}
	rate := r.Sequence[idx]
	rate.AsOf = asOf
	return rate
}

func (r *Rates) LookupEurUsdRate(ctx context.Context, asOf time.Time) rates.ExchangeRate {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	idx := r.calls
	if idx >= len(r.Sequence) {
		idx = len(r.Sequence) - 1
	}
	if idx < 0 {
		return rates.ExchangeRate{AsOf: asOf, EurUsd: decimal.NewFromInt(1), Source: rates.SourceFallback}
	}
	rate := r.Sequence[idx]
	rate.AsOf = asOf
	return rate
}

func (r *Rates) Lookups() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

func (r *Rates) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// DebtStore keeps debts in memory and applies the same transition rules as the postgres store.
// RecordErr, ListErr and CompleteErr make the matching calls fail while set.
// Like the postgres store it refuses writes on a cancelled context.
type DebtStore struct {
	mu          sync.Mutex
	debts       map[int64]*models.Debt
	nextID      int64
	RecordErr   error
	ListErr     error
	CompleteErr error
	now         func() time.Time
}

func NewDebtStore() *DebtStore {
	return &DebtStore{debts: map[int64]*models.Debt{}, now: time.Now}
}

func (s *DebtStore) RecordDebt(ctx context.Context, debt *models.Debt) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecordErr != nil {
		return 0, &service.DebtStoreError{Op: "record", Err: s.RecordErr}
	}
	if err := ctx.Err(); err != nil {
		return 0, &service.DebtStoreError{Op: "record", Err: err}
	}
	s.nextID++
	stored := *debt
	stored.ID = s.nextID
	if stored.Status == "" {
		stored.Status = common.DebtStatusUnpaid
	}
	// keeps oldest-first ordering stable within the same clock tick
	stored.CreatedAt = s.now().Add(time.Duration(s.nextID) * time.Microsecond)
	s.debts[stored.ID] = &stored
	return stored.ID, nil
}

// Seed stores debts as given, used to set up reconciliation scenarios.
func (s *DebtStore) Seed(debts ...models.Debt) []int64 {
	ids := make([]int64, 0, len(debts))
	for i := range debts {
		id, _ := s.RecordDebt(context.Background(), &debts[i])
		ids = append(ids, id)
	}
	return ids
}

func (s *DebtStore) ListEligibleDebts(ctx context.Context) ([]models.Debt, error) {
	if s.ListErr != nil {
		return nil, &service.DebtStoreError{Op: "list eligible", Err: s.ListErr}
	}
	result := []models.Debt{}
	for _, debt := range s.All() {
		if debt.Status == common.DebtStatusUnpaid || debt.Status == common.DebtStatusRecoveryOngoing {
			result = append(result, debt)
		}
	}
	return result, nil
}

func (s *DebtStore) ListDebts(ctx context.Context, filter service.DebtFilter) ([]models.Debt, error) {
	if s.ListErr != nil {
		return nil, &service.DebtStoreError{Op: "list", Err: s.ListErr}
	}
	result := []models.Debt{}
	for _, debt := range s.All() {
		if filter.Status != "" && debt.Status != filter.Status {
			continue
		}
		if filter.Creditor != "" && debt.Creditor != filter.Creditor {
			continue
		}
		if filter.Debtor != "" && debt.Debtor != filter.Debtor {
			continue
		}
		result = append(result, debt)
	}
	return result, nil
}

func (s *DebtStore) UpdateStatus(ctx context.Context, ids []int64, status string) ([]int64, error) {
	return s.transition(ids, status, false, "")
}

func (s *DebtStore) MarkPaid(ctx context.Context, ids []int64, txRef string) ([]int64, error) {
	return s.transition(ids, common.DebtStatusPaid, true, txRef)
}

func (s *DebtStore) CompleteRecovery(ctx context.Context, id int64, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CompleteErr != nil {
		return &service.DebtStoreError{Op: "complete recovery", Err: s.CompleteErr}
	}
	if err := ctx.Err(); err != nil {
		return &service.DebtStoreError{Op: "complete recovery", Err: err}
	}
	debt, ok := s.debts[id]
	if !ok {
		return fmt.Errorf("%w: %d", service.ErrDebtNotFound, id)
	}
	steps, err := service.RecoverySteps(debt.Status)
	if err != nil {
		return err
	}
	for _, status := range steps {
		s.apply(debt, status, txRef)
	}
	return nil
}

func (s *DebtStore) transition(ids []int64, status string, idempotent bool, txRef string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locked := make([]models.Debt, 0, len(ids))
	for _, id := range ids {
		debt, ok := s.debts[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", service.ErrDebtNotFound, id)
		}
		locked = append(locked, *debt)
	}
	changing, err := service.PlanTransition(locked, status, idempotent)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	var changed []int64
	for _, id := range changing {
		if seen[id] {
			continue
		}
		seen[id] = true
		s.apply(s.debts[id], status, txRef)
		changed = append(changed, id)
	}
	return changed, nil
}

func (s *DebtStore) apply(debt *models.Debt, status string, txRef string) {
	now := s.now()
	debt.Status = status
	debt.UpdatedAt = bun.NullTime{Time: now}
	if status == common.DebtStatusPaid {
		debt.PaidAt = bun.NullTime{Time: now}
		if txRef != "" {
			debt.PaymentTxRef = txRef
		}
	}
}

func (s *DebtStore) Get(id int64) (models.Debt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	debt, ok := s.debts[id]
	if !ok {
		return models.Debt{}, false
	}
	return *debt, true
}

// All returns a snapshot ordered oldest first.
func (s *DebtStore) All() []models.Debt {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]models.Debt, 0, len(s.debts))
	for _, debt := range s.debts {
		result = append(result, *debt)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Publisher records debt events. With Block set every publish waits for its context to end.
type Publisher struct {
	mu     sync.Mutex
	events []rabbitmq.DebtEvent
	Block  bool
}

func (p *Publisher) PublishDebtEvent(ctx context.Context, event rabbitmq.DebtEvent) error {
	if p.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *Publisher) Close() error {
	return nil
}

func (p *Publisher) Events() []rabbitmq.DebtEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]rabbitmq.DebtEvent(nil), p.events...)
}

func Logger() *lecho.Logger {
	return lecho.New(io.Discard, lecho.WithLevel(log.DEBUG))
}

// NewService wires the in-memory collaborators into a service using HubAccount as treasury.
func NewService(l ledger.Client, r service.RateProvider, debts service.DebtStore) *service.InnopayService {
	return &service.InnopayService{
		Config: &service.Config{
			HubAccount:        HubAccount,
			DefaultDebtReason: common.DebtReasonOrderPayment,
		},
		Ledger: l,
		Rates:  r,
		Debts:  debts,
		Logger: Logger(),
	}
}
