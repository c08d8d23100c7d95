package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing fulfillment domain events. Events are
// published after the owning transaction commits; a publish failure is
// logged by the caller, never rolled back into the database.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderApproved publishes OrderApproved event
func (ep *EventPublisher) PublishOrderApproved(ctx context.Context, event *models.OrderApprovedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishOrderRejected publishes OrderRejected event
func (ep *EventPublisher) PublishOrderRejected(ctx context.Context, event *models.OrderRejectedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("order-%d", event.OrderID), event)
}

// PublishShipmentDispatched publishes ShipmentDispatched event
func (ep *EventPublisher) PublishShipmentDispatched(ctx context.Context, event *models.ShipmentDispatchedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("shipment-%d", event.ShipmentID), event)
}

// PublishBatchReplaced publishes BatchReplaced event
func (ep *EventPublisher) PublishBatchReplaced(ctx context.Context, event *models.BatchReplacedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("shipment-%d", event.ShipmentID), event)
}

// PublishShipmentReceived publishes ShipmentReceived event
func (ep *EventPublisher) PublishShipmentReceived(ctx context.Context, event *models.ShipmentReceivedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("shipment-%d", event.ShipmentID), event)
}

// PublishDiscrepancyFound publishes a DiscrepancyFound event for the claims
// collaborator to persist.
func (ep *EventPublisher) PublishDiscrepancyFound(ctx context.Context, event *models.DiscrepancyFoundEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("shipment-%d", event.ShipmentID), event)
}

// EventHandler routes incoming claim-side events.
type EventHandler struct {
	logger       *zap.Logger
	onClaimFiled func(context.Context, *models.ClaimFiledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnClaimFiled registers a handler for ClaimFiled events
func (eh *EventHandler) OnClaimFiled(handler func(context.Context, *models.ClaimFiledEvent) error) {
	eh.onClaimFiled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeClaimFiled:
		if eh.onClaimFiled != nil {
			var event models.ClaimFiledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ClaimFiled event: %w", err)
			}
			return eh.onClaimFiled(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
