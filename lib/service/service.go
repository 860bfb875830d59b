package service

import (
	"context"
	"sync"
	"time"

	"github.com/innopay/innopay-hub/ledger"
	"github.com/innopay/innopay-hub/rabbitmq"
	"github.com/innopay/innopay-hub/rates"
	"github.com/ziflex/lecho/v3"
)

// RateProvider never fails, a stale or parity rate is flagged through IsFresh.
// LookupEurUsdRate serves public queries and must not affect the rates settlements get.
type RateProvider interface {
	GetEurUsdRate(ctx context.Context, asOf time.Time) rates.ExchangeRate
	LookupEurUsdRate(ctx context.Context, asOf time.Time) rates.ExchangeRate
}

type InnopayService struct {
	Config         *Config
	Ledger         ledger.Client
	Rates          RateProvider
	Debts          DebtStore
	Logger         *lecho.Logger
	RabbitMQClient rabbitmq.Client
	// defaults to time.Now
	Now func() time.Time

	// debt id -> tx ref of a reconciliation transfer whose status write failed
	untrackedRecoveries sync.Map
}

func (svc *InnopayService) now() time.Time {
	if svc.Now != nil {
		return svc.Now()
	}
	return time.Now()
}

const (
	defaultDebtWriteTimeout    = 10 * time.Second
	defaultEventPublishTimeout = 2 * time.Second
)

// debtWriteContext is not cancelled with ctx, only by its own timeout.
func (svc *InnopayService) debtWriteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), seconds(svc.Config.DebtWriteTimeout, defaultDebtWriteTimeout))
}

func (svc *InnopayService) eventPublishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), seconds(svc.Config.EventPublishTimeout, defaultEventPublishTimeout))
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

func (svc *InnopayService) hub() string {
	return svc.Config.HubAccount
}
