package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/models"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService converts carts into immutable purchase records and manages
// the post-purchase lifecycle.
type OrderService struct {
	orders OrderStore
	carts  CartStore
	redis  *redisclient.Client
	events EventSink
	limits config.BusinessConfig
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(orders OrderStore, carts CartStore, redis *redisclient.Client, events EventSink, limits config.BusinessConfig) *OrderService {
	return &OrderService{
		orders: orders,
		carts:  carts,
		redis:  redis,
		events: events,
		limits: limits,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest describes one checkout attempt.
type CreateOrderRequest struct {
	UserID         int64
	CartID         int64
	Address        string
	Message        string
	IdempotencyKey string
}

// CreateOrder checks a cart out into an immutable order. The order total is
// recomputed from the snapshot's line totals rather than copied from the
// cart's stored total, so drift in the denormalized value cannot propagate
// into the order. Inserting the order and clearing the cart share one
// transaction.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	if existing, err := s.lookupDuplicate(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		s.logger.Info("Duplicate checkout detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Int64("order_id", existing.ID))
		return existing, nil
	}

	if _, err := s.carts.GetCart(ctx, req.CartID, req.UserID); err != nil {
		util.OrdersFailedTotal.WithLabelValues("cart_missing").Inc()
		return nil, err
	}

	details, err := s.carts.GetCartDetails(ctx, req.CartID, store.Page{Limit: s.limits.CartItemsLimit})
	if err != nil {
		return nil, err
	}
	if len(details) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, fmt.Errorf("cart %d: %w", req.CartID, models.ErrCartIsEmpty)
	}

	snapshot := buildSnapshot(details)

	order := &models.Order{
		UserID:         req.UserID,
		Items:          snapshot,
		Total:          snapshot.Sum(),
		Message:        req.Message,
		Paid:           false,
		Delivery:       false,
		Status:         models.OrderStatusPending,
		Address:        req.Address,
		IdempotencyKey: req.IdempotencyKey,
	}

	if err := s.orders.CreateOrderTx(ctx, order, req.CartID); err != nil {
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.SetIdempotencyKey(ctx, req.IdempotencyKey, order.ID, s.limits.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.Error(err))
		}
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.Total.String()))

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID: order.ID,
		UserID:  order.UserID,
		CartID:  req.CartID,
		Total:   order.Total,
		Items:   order.Items,
	}
	if err := s.events.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// lookupDuplicate resolves an idempotency key to a previously created order.
// Redis answers the common no-duplicate case; a cache hit or a cache failure
// falls through to the database, which stays authoritative via the unique
// index on idempotency_key.
func (s *OrderService) lookupDuplicate(ctx context.Context, key string) (*models.Order, error) {
	if s.redis != nil {
		if seen, err := s.redis.CheckIdempotencyKey(ctx, key); err != nil {
			s.logger.Warn("Idempotency cache check failed", zap.Error(err))
		} else if seen {
			s.logger.Info("Idempotency key seen in cache", zap.String("key", key))
		}
	}
	existing, err := s.orders.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	return existing, nil
}

func buildSnapshot(details []models.CartItemDetail) models.OrderSnapshot {
	snapshot := make(models.OrderSnapshot, 0, len(details))
	for i := range details {
		d := &details[i]
		snapshot = append(snapshot, models.OrderItemSnapshot{
			ProductID: d.ProductID,
			Name:      d.Name,
			Price:     d.Price,
			Discount:  d.Discount,
			Quantity:  d.Quantity,
			Thumbnail: d.Thumbnail,
			Total:     d.LineTotal(),
		})
	}
	return snapshot
}

// GetOrder retrieves an order owned by the given user.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d not owned by user %d: %w", orderID, userID, models.ErrValidation)
	}
	return order, nil
}

// GetUserOrders returns a page of the user's orders.
func (s *OrderService) GetUserOrders(ctx context.Context, userID int64, p store.Page) ([]models.Order, error) {
	return s.orders.GetUserOrders(ctx, userID, p)
}

// GetUserOrdersCount returns how many orders the user has placed.
func (s *OrderService) GetUserOrdersCount(ctx context.Context, userID int64) (int, error) {
	return s.orders.CountUserOrders(ctx, userID)
}

// UpdateOrderStatus advances the order lifecycle. Transitions are validated
// against the closed table in models: fulfillment moves strictly forward and
// terminal states accept nothing.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	if !models.ValidStatus(status) {
		return fmt.Errorf("unknown status %q: %w", status, models.ErrValidation)
	}

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if !models.CanTransition(order.Status, status) {
		util.OrderStatusRejectedTotal.Inc()
		return fmt.Errorf("order %d: %s -> %s: %w", orderID, order.Status, status, models.ErrInvalidStatusTransition)
	}

	if status == models.OrderStatusDelivered {
		err = s.orders.SetOrderDelivered(ctx, orderID)
	} else {
		err = s.orders.UpdateOrderStatus(ctx, orderID, status)
	}
	if err != nil {
		return err
	}

	util.OrderStatusUpdatesTotal.WithLabelValues(status).Inc()
	s.publishStatusChanged(ctx, orderID, order.Status, status)
	return nil
}

// CancelOrder cancels an order on behalf of its owner. Shipped and delivered
// orders can no longer be cancelled; cancelling twice fails.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder")
	defer span.End()

	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return fmt.Errorf("order %d not owned by user %d: %w", orderID, userID, models.ErrValidation)
	}

	switch order.Status {
	case models.OrderStatusCancelled:
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderAlreadyCancelled)
	case models.OrderStatusShipped, models.OrderStatusDelivered:
		return fmt.Errorf("order %d is %s: %w", orderID, order.Status, models.ErrOrderCannotBeCancelled)
	}

	if err := s.orders.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
		return err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", userID))

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCancelled,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		UserID:  userID,
		Reason:  "user_cancelled",
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
	return nil
}

// MarkAsPaid sets the paid flag. No precondition beyond existence.
func (s *OrderService) MarkAsPaid(ctx context.Context, orderID int64) error {
	if err := s.orders.SetOrderPaid(ctx, orderID); err != nil {
		return err
	}
	util.OrdersPaidTotal.Inc()
	return nil
}

// MarkAsDelivered sets the delivery flag together with the DELIVERED status.
func (s *OrderService) MarkAsDelivered(ctx context.Context, orderID int64) error {
	return s.orders.SetOrderDelivered(ctx, orderID)
}

func (s *OrderService) publishStatusChanged(ctx context.Context, orderID int64, from, to string) {
	event := &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderStatusChanged,
			Timestamp: time.Now(),
		},
		OrderID: orderID,
		From:    from,
		To:      to,
	}
	if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}
}
