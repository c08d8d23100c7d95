package worker

import (
	"context"

	"fulfillment-service/internal/broker"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"
	"fulfillment-service/internal/util"

	"go.uber.org/zap"
)

// ClaimWorker consumes events from the claims collaborator and applies
// filed claims to orders. Consumption is at-least-once; MarkOrderClaimed
// is idempotent, so redelivery is harmless.
type ClaimWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewClaimWorker creates a new claim worker
func NewClaimWorker(consumer *broker.Consumer, fulfillment *service.FulfillmentService) *ClaimWorker {
	eventHandler := broker.NewEventHandler()
	logger := util.NamedLogger("claim-worker")

	eventHandler.OnClaimFiled(func(ctx context.Context, event *models.ClaimFiledEvent) error {
		logger.Info("Claim filed against order",
			zap.Int64("claim_id", event.ClaimID),
			zap.Int64("order_id", event.OrderID))
		return fulfillment.MarkOrderClaimed(ctx, event.OrderID)
	})

	return &ClaimWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the worker
func (w *ClaimWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting claim worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ClaimWorker) Stop() error {
	w.logger.Info("Stopping claim worker")
	return w.consumer.Close()
}
