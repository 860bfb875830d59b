package service

import (
	"context"

	"github.com/innopay/innopay-hub/db/models"
	"github.com/innopay/innopay-hub/rabbitmq"
)

// publishDebtEvent is best effort, a broker outage never changes the outcome of the caller.
// A reconnecting broker holds the caller up for at most EventPublishTimeout.
func (svc *InnopayService) publishDebtEvent(ctx context.Context, eventType string, debts []models.Debt, txRef string) {
	if svc.RabbitMQClient == nil || len(debts) == 0 {
		return
	}
	publishCtx, cancel := svc.eventPublishContext(ctx)
	defer cancel()
	event := rabbitmq.NewDebtEvent(eventType, debts, txRef)
	if err := svc.RabbitMQClient.PublishDebtEvent(publishCtx, event); err != nil {
		svc.Logger.Errorf("Failed to publish %s event %s: %v", eventType, event.ID, err)
	}
}

// statusOnly builds the minimal debt payload for status change events.
func statusOnly(ids []int64, status string) []models.Debt {
	debts := make([]models.Debt, 0, len(ids))
	for _, id := range ids {
		debts = append(debts, models.Debt{ID: id, Status: status})
	}
	return debts
}
