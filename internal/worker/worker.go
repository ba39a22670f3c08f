package worker

import (
	"context"

	"marketplace-service/internal/broker"
	"marketplace-service/internal/models"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"

	"go.uber.org/zap"
)

// CartAuditWorker re-verifies cart totals in the background. Every cart
// mutation publishes a CartUpdated event; this worker replays each one
// through the total re-check so drift is repaired shortly after it appears.
type CartAuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewCartAuditWorker creates a new cart audit worker
func NewCartAuditWorker(consumer *broker.Consumer, carts *service.CartService) *CartAuditWorker {
	eventHandler := broker.NewEventHandler()

	logger := util.GetLogger()
	eventHandler.OnCartUpdated(func(ctx context.Context, event *models.CartUpdatedEvent) error {
		total, err := carts.CheckCartTotal(ctx, event.UserID, event.CartID)
		if err != nil {
			// The cart may already be deleted or checked out; nothing to audit.
			logger.Debug("Cart audit skipped",
				zap.Int64("cart_id", event.CartID),
				zap.Error(err))
			return nil
		}
		logger.Debug("Cart total verified",
			zap.Int64("cart_id", event.CartID),
			zap.String("total", total.String()))
		return nil
	})

	return &CartAuditWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *CartAuditWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting cart audit worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CartAuditWorker) Stop() error {
	util.GetLogger().Info("Stopping cart audit worker")
	return w.consumer.Close()
}

// FulfillmentWorker reacts to events from the external payment system: a
// successful payment marks the order paid and confirms it, a failed payment
// is recorded for operators.
type FulfillmentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(consumer *broker.Consumer, orders *service.OrderService) *FulfillmentWorker {
	eventHandler := broker.NewEventHandler()
	logger := util.GetLogger()

	eventHandler.OnPaymentSucceeded(func(ctx context.Context, event *models.PaymentSucceededEvent) error {
		if err := orders.MarkAsPaid(ctx, event.OrderID); err != nil {
			logger.Error("Failed to mark order paid",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
			return err
		}
		if err := orders.UpdateOrderStatus(ctx, event.OrderID, models.OrderStatusConfirmed); err != nil {
			// Already past PENDING (or cancelled); the paid flag still landed.
			logger.Warn("Order not confirmable after payment",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
		}
		return nil
	})

	eventHandler.OnPaymentFailed(func(ctx context.Context, event *models.PaymentFailedEvent) error {
		util.OrdersFailedTotal.WithLabelValues("payment_failed").Inc()
		logger.Warn("Payment failed for order",
			zap.Int64("order_id", event.OrderID),
			zap.String("reason", event.Reason))
		return nil
	})

	return &FulfillmentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	util.GetLogger().Info("Starting fulfillment worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *FulfillmentWorker) Stop() error {
	util.GetLogger().Info("Stopping fulfillment worker")
	return w.consumer.Close()
}
