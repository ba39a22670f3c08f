package service

import (
	"context"
	"testing"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderFixture(t *testing.T) (*OrderService, *CartService, *fakeProducts, *fakeCartStore, *fakeEvents) {
	t.Helper()
	products := newFakeProducts()
	carts := newFakeCartStore(products)
	orders := newFakeOrderStore(carts)
	events := &fakeEvents{}
	cartSvc := NewCartService(carts, products, events, testLimits())
	orderSvc := NewOrderService(orders, carts, nil, events, testLimits())
	return orderSvc, cartSvc, products, carts, events
}

func checkoutCart(t *testing.T, cartSvc *CartService, products *fakeProducts, userID int64) *models.Cart {
	t.Helper()
	ctx := context.Background()
	products.add(listedProduct(1, "100", 20, 10)) // effective 80
	products.add(listedProduct(2, "40", 0, 10))

	cart, err := cartSvc.AddToNewCart(ctx, userID, 1, 2)
	require.NoError(t, err)
	require.NoError(t, cartSvc.AddToCart(ctx, userID, cart.ID, 2, 1))
	return cart
}

func TestCreateOrderSnapshotsAndClearsCart(t *testing.T) {
	orderSvc, cartSvc, products, carts, events := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)

	order, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{
		UserID:  7,
		CartID:  cart.ID,
		Address: "1 Main St",
		Message: "leave at the door",
	})
	require.NoError(t, err)

	// 2*80 + 1*40 = 200
	assert.True(t, order.Total.Equal(decimal.RequireFromString("200")),
		"expected 200, got %s", order.Total)
	assert.True(t, order.Total.Equal(order.Items.Sum()),
		"order total must equal the sum of snapshot line totals")
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.False(t, order.Paid)
	assert.False(t, order.Delivery)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(1), order.Items[0].ProductID)
	assert.True(t, order.Items[0].Total.Equal(decimal.RequireFromString("160")))

	// The source cart is cleared, not deleted.
	stored, err := carts.GetCart(ctx, cart.ID, 7)
	require.NoError(t, err)
	assert.True(t, stored.Total.IsZero(), "cart total must reset to 0 after checkout")
	count, _ := carts.CountCartItems(ctx, cart.ID)
	assert.Equal(t, 0, count)

	require.Len(t, events.created, 1)
	assert.Equal(t, order.ID, events.created[0].OrderID)
}

func TestCreateOrderSnapshotIgnoresLaterProductEdits(t *testing.T) {
	orderSvc, cartSvc, products, _, _ := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)
	order, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	require.NoError(t, err)

	products.setPrice(1, decimal.RequireFromString("999"))

	assert.True(t, order.Items[0].Price.Equal(decimal.RequireFromString("100")),
		"snapshot must keep the price at purchase time")
}

func TestCreateOrderUsesRecomputedTotalNotStoredTotal(t *testing.T) {
	orderSvc, cartSvc, products, carts, _ := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)

	// Force drift into the stored total; checkout must not trust it.
	require.NoError(t, carts.SetCartTotal(ctx, cart.ID, decimal.RequireFromString("1")))

	order, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	require.NoError(t, err)
	assert.True(t, order.Total.Equal(decimal.RequireFromString("200")),
		"order total must come from current line items, got %s", order.Total)
}

func TestCreateOrderGuards(t *testing.T) {
	orderSvc, cartSvc, products, _, _ := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)

	_, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID + 100, Address: "a"})
	assert.ErrorIs(t, err, models.ErrCartDoesNotExist)

	_, err = orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 8, CartID: cart.ID, Address: "a"})
	assert.ErrorIs(t, err, models.ErrCartDoesNotExist)

	// Checking out empties the cart; a second checkout of the same cart is
	// an empty-cart failure.
	_, err = orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	require.NoError(t, err)
	_, err = orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	assert.ErrorIs(t, err, models.ErrCartIsEmpty)
}

func TestCreateOrderIdempotency(t *testing.T) {
	orderSvc, cartSvc, products, _, _ := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)

	first, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{
		UserID: 7, CartID: cart.ID, Address: "a", IdempotencyKey: "retry-1",
	})
	require.NoError(t, err)

	second, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{
		UserID: 7, CartID: cart.ID, Address: "a", IdempotencyKey: "retry-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "a retried checkout must return the original order")

	count, _ := orderSvc.GetUserOrdersCount(ctx, 7)
	assert.Equal(t, 1, count)
}

func TestGetOrderOwnership(t *testing.T) {
	orderSvc, cartSvc, products, _, _ := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)
	order, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	require.NoError(t, err)

	_, err = orderSvc.GetOrder(ctx, 8, order.ID)
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := orderSvc.GetOrder(ctx, 7, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

func TestCancelOrderStateMachine(t *testing.T) {
	orderSvc, cartSvc, products, _, events := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)
	order, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	require.NoError(t, err)

	// Non-owner cancellation is rejected.
	assert.ErrorIs(t, orderSvc.CancelOrder(ctx, order.ID, 8), models.ErrValidation)

	// Missing order.
	assert.ErrorIs(t, orderSvc.CancelOrder(ctx, order.ID+100, 7), models.ErrOrderDoesNotExist)

	// A pending order cancels cleanly.
	require.NoError(t, orderSvc.CancelOrder(ctx, order.ID, 7))
	got, _ := orderSvc.GetOrder(ctx, 7, order.ID)
	assert.Equal(t, models.OrderStatusCancelled, got.Status)
	require.Len(t, events.cancelled, 1)

	// Cancelling twice fails.
	assert.ErrorIs(t, orderSvc.CancelOrder(ctx, order.ID, 7), models.ErrOrderAlreadyCancelled)
}

func TestCancelOrderAfterShipment(t *testing.T) {
	orderSvc, cartSvc, products, _, _ := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)
	order, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	require.NoError(t, err)

	require.NoError(t, orderSvc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusConfirmed))
	require.NoError(t, orderSvc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusProcessing))
	require.NoError(t, orderSvc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped))

	err = orderSvc.CancelOrder(ctx, order.ID, 7)
	assert.ErrorIs(t, err, models.ErrOrderCannotBeCancelled)
	got, _ := orderSvc.GetOrder(ctx, 7, order.ID)
	assert.Equal(t, models.OrderStatusShipped, got.Status, "a failed cancel must not change the status")

	require.NoError(t, orderSvc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusDelivered))
	assert.ErrorIs(t, orderSvc.CancelOrder(ctx, order.ID, 7), models.ErrOrderCannotBeCancelled)
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	orderSvc, cartSvc, products, _, events := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)
	order, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	require.NoError(t, err)

	// Skipping ahead is rejected.
	err = orderSvc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)

	// Unknown statuses never reach the table.
	err = orderSvc.UpdateOrderStatus(ctx, order.ID, "MISPLACED")
	assert.ErrorIs(t, err, models.ErrValidation)

	for _, status := range []string{
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
		models.OrderStatusDelivered,
	} {
		require.NoError(t, orderSvc.UpdateOrderStatus(ctx, order.ID, status))
	}

	got, _ := orderSvc.GetOrder(ctx, 7, order.ID)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)
	assert.True(t, got.Delivery, "reaching DELIVERED must set the delivery flag")
	assert.Len(t, events.status, 4)

	// Terminal states accept nothing.
	err = orderSvc.UpdateOrderStatus(ctx, order.ID, models.OrderStatusConfirmed)
	assert.ErrorIs(t, err, models.ErrInvalidStatusTransition)
}

func TestMarkAsPaidAndDelivered(t *testing.T) {
	orderSvc, cartSvc, products, _, _ := newOrderFixture(t)
	ctx := context.Background()

	cart := checkoutCart(t, cartSvc, products, 7)
	order, err := orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
	require.NoError(t, err)

	require.NoError(t, orderSvc.MarkAsPaid(ctx, order.ID))
	got, _ := orderSvc.GetOrder(ctx, 7, order.ID)
	assert.True(t, got.Paid)

	require.NoError(t, orderSvc.MarkAsDelivered(ctx, order.ID))
	got, _ = orderSvc.GetOrder(ctx, 7, order.ID)
	assert.True(t, got.Delivery)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)

	assert.ErrorIs(t, orderSvc.MarkAsPaid(ctx, order.ID+100), models.ErrOrderDoesNotExist)
}

func TestGetUserOrdersPagination(t *testing.T) {
	orderSvc, cartSvc, products, _, _ := newOrderFixture(t)
	ctx := context.Background()

	products.add(listedProduct(1, "10", 0, 100))
	for i := 0; i < 3; i++ {
		cart, err := cartSvc.AddToNewCart(ctx, 7, 1, 1)
		require.NoError(t, err)
		_, err = orderSvc.CreateOrder(ctx, &CreateOrderRequest{UserID: 7, CartID: cart.ID, Address: "a"})
		require.NoError(t, err)
		require.NoError(t, cartSvc.DeleteCart(ctx, 7, cart.ID))
	}

	orders, err := orderSvc.GetUserOrders(ctx, 7, store.Page{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	rest, err := orderSvc.GetUserOrders(ctx, 7, store.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
