package service

import (
	"context"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/shopspring/decimal"
)

// ProductSource supplies products that are known to exist, be listed and be
// in stock. The default implementation is ProductClient.
type ProductSource interface {
	GetCheckedProduct(ctx context.Context, productID int64) (*models.Product, error)
}

// CartStore is the persistence surface the cart engine depends on,
// implemented by *store.Store.
type CartStore interface {
	CreateCartTx(ctx context.Context, cart *models.Cart, item *models.CartItem) error
	GetCart(ctx context.Context, cartID, userID int64) (*models.Cart, error)
	GetCarts(ctx context.Context, userID int64, p store.Page) ([]models.Cart, error)
	CountCarts(ctx context.Context, userID int64) (int, error)
	GetCartItemDetail(ctx context.Context, cartID, productID int64) (*models.CartItemDetail, error)
	GetCartDetails(ctx context.Context, cartID int64, p store.Page) ([]models.CartItemDetail, error)
	CountCartItems(ctx context.Context, cartID int64) (int, error)
	AddItemTx(ctx context.Context, cartID, productID int64, quantity int, delta decimal.Decimal) error
	RemoveItemTx(ctx context.Context, cartID, productID int64, delta decimal.Decimal) error
	SetItemQuantityTx(ctx context.Context, cartID, productID int64, quantity int, delta decimal.Decimal) error
	SetCartTotal(ctx context.Context, cartID int64, total decimal.Decimal) error
	DeleteCart(ctx context.Context, cartID int64) error
}

// OrderStore is the persistence surface the order engine depends on,
// implemented by *store.Store.
type OrderStore interface {
	CreateOrderTx(ctx context.Context, order *models.Order, cartID int64) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetUserOrders(ctx context.Context, userID int64, p store.Page) ([]models.Order, error)
	CountUserOrders(ctx context.Context, userID int64) (int, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) error
	SetOrderPaid(ctx context.Context, orderID int64) error
	SetOrderDelivered(ctx context.Context, orderID int64) error
}

// EventSink publishes domain events, implemented by *broker.EventPublisher.
type EventSink interface {
	PublishCartUpdated(ctx context.Context, event *models.CartUpdatedEvent) error
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
}
