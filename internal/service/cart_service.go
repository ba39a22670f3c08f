package service

import (
	"context"
	"fmt"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/models"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService maintains per-user shopping carts and keeps each cart's
// denormalized total in sync with its line items. Totals are always derived
// from the product's current price and discount, not frozen at add time.
type CartService struct {
	store    CartStore
	products ProductSource
	events   EventSink
	limits   config.BusinessConfig
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore, products ProductSource, events EventSink, limits config.BusinessConfig) *CartService {
	return &CartService{
		store:    store,
		products: products,
		events:   events,
		limits:   limits,
		logger:   util.GetLogger(),
	}
}

// AddToCart adds quantity units of a product to an existing cart. The cart
// total and the line item move together in one transaction; an already
// present product has its quantity incremented instead of gaining a second
// row.
func (s *CartService) AddToCart(ctx context.Context, userID, cartID, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart")
	defer span.End()

	if quantity < 1 {
		return fmt.Errorf("quantity must be positive: %w", models.ErrValidation)
	}

	product, err := s.products.GetCheckedProduct(ctx, productID)
	if err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("product_check").Inc()
		return err
	}

	if _, err := s.store.GetCart(ctx, cartID, userID); err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("cart_missing").Inc()
		return err
	}

	delta := product.EffectivePrice().Mul(decimal.NewFromInt(int64(quantity)))
	if err := s.store.AddItemTx(ctx, cartID, productID, quantity, delta); err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("db_error").Inc()
		return err
	}

	util.CartItemsAddedTotal.Inc()
	s.publishCartUpdated(ctx, cartID, userID, productID, models.CartActionAdd)
	return nil
}

// AddToNewCart creates a fresh cart holding the given product. Fails with
// CART_LIMIT_REACHED once the user owns the configured maximum of carts.
func (s *CartService) AddToNewCart(ctx context.Context, userID, productID int64, quantity int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToNewCart")
	defer span.End()

	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be positive: %w", models.ErrValidation)
	}

	product, err := s.products.GetCheckedProduct(ctx, productID)
	if err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("product_check").Inc()
		return nil, err
	}

	count, err := s.store.CountCarts(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= s.limits.CartLimit {
		util.CartMutationsFailedTotal.WithLabelValues("cart_limit").Inc()
		return nil, fmt.Errorf("user %d owns %d carts: %w", userID, count, models.ErrCartLimitReached)
	}

	// No existing cart to read: the initial total is the first line's
	// contribution, computed directly.
	total := product.EffectivePrice().Mul(decimal.NewFromInt(int64(quantity)))

	cart := &models.Cart{UserID: userID, Total: total}
	item := &models.CartItem{ProductID: productID, Quantity: quantity}
	if err := s.store.CreateCartTx(ctx, cart, item); err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, err
	}

	util.CartsCreatedTotal.Inc()
	util.CartItemsAddedTotal.Inc()
	s.logger.Info("Cart created",
		zap.Int64("cart_id", cart.ID),
		zap.Int64("user_id", userID))
	s.publishCartUpdated(ctx, cart.ID, userID, productID, models.CartActionAdd)
	return cart, nil
}

// RemoveCartItem deletes a line item and subtracts its full contribution
// from the cart total.
func (s *CartService) RemoveCartItem(ctx context.Context, userID, cartID, productID int64) error {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveCartItem")
	defer span.End()

	if _, err := s.store.GetCart(ctx, cartID, userID); err != nil {
		return err
	}

	detail, err := s.store.GetCartItemDetail(ctx, cartID, productID)
	if err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("item_missing").Inc()
		return err
	}

	delta := detail.LineTotal().Neg()
	if err := s.store.RemoveItemTx(ctx, cartID, productID, delta); err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("db_error").Inc()
		return err
	}

	s.publishCartUpdated(ctx, cartID, userID, productID, models.CartActionRemove)
	return nil
}

// UpdateCartItemQuantity sets a line item's quantity directly and adjusts
// the cart total by the effective price times the quantity delta.
func (s *CartService) UpdateCartItemQuantity(ctx context.Context, userID, cartID, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateCartItemQuantity")
	defer span.End()

	if quantity < 1 {
		return fmt.Errorf("quantity must be positive: %w", models.ErrValidation)
	}

	if _, err := s.store.GetCart(ctx, cartID, userID); err != nil {
		return err
	}

	detail, err := s.store.GetCartItemDetail(ctx, cartID, productID)
	if err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("item_missing").Inc()
		return err
	}

	unit := models.EffectiveUnitPrice(detail.Price, detail.Discount)
	delta := unit.Mul(decimal.NewFromInt(int64(quantity - detail.Quantity)))
	if err := s.store.SetItemQuantityTx(ctx, cartID, productID, quantity, delta); err != nil {
		util.CartMutationsFailedTotal.WithLabelValues("db_error").Inc()
		return err
	}

	s.publishCartUpdated(ctx, cartID, userID, productID, models.CartActionUpdate)
	return nil
}

// CheckCartTotal recomputes the cart total from its line items at current
// product price/discount and persists a correction when the stored value has
// drifted. Reads at most CartItemsLimit distinct items; carts beyond that
// ceiling are only partially verified.
func (s *CartService) CheckCartTotal(ctx context.Context, userID, cartID int64) (decimal.Decimal, error) {
	ctx, span := util.StartSpan(ctx, "CartService.CheckCartTotal")
	defer span.End()

	cart, err := s.store.GetCart(ctx, cartID, userID)
	if err != nil {
		return decimal.Zero, err
	}

	details, err := s.store.GetCartDetails(ctx, cartID, store.Page{Limit: s.limits.CartItemsLimit})
	if err != nil {
		return decimal.Zero, err
	}

	computed := decimal.Zero
	for i := range details {
		computed = computed.Add(details[i].LineTotal())
	}

	if !computed.Equal(cart.Total) {
		s.logger.Warn("Cart total drift detected, correcting",
			zap.Int64("cart_id", cartID),
			zap.String("stored", cart.Total.String()),
			zap.String("computed", computed.String()))
		if err := s.store.SetCartTotal(ctx, cartID, computed); err != nil {
			return decimal.Zero, err
		}
		util.CartTotalCorrectionsTotal.Inc()
	}

	return computed, nil
}

// GetCartDetails returns a page of the cart's line items joined with their
// current product attributes.
func (s *CartService) GetCartDetails(ctx context.Context, userID, cartID int64, p store.Page) ([]models.CartItemDetail, error) {
	if _, err := s.store.GetCart(ctx, cartID, userID); err != nil {
		return nil, err
	}
	return s.store.GetCartDetails(ctx, cartID, p)
}

// GetCarts returns a page of the user's carts.
func (s *CartService) GetCarts(ctx context.Context, userID int64, p store.Page) ([]models.Cart, error) {
	return s.store.GetCarts(ctx, userID, p)
}

// GetCartItemsCount returns the number of distinct line items in a cart.
func (s *CartService) GetCartItemsCount(ctx context.Context, userID, cartID int64) (int, error) {
	if _, err := s.store.GetCart(ctx, cartID, userID); err != nil {
		return 0, err
	}
	return s.store.CountCartItems(ctx, cartID)
}

// GetCartsCount returns how many carts the user currently owns.
func (s *CartService) GetCartsCount(ctx context.Context, userID int64) (int, error) {
	return s.store.CountCarts(ctx, userID)
}

// DeleteCart removes a cart and its line items entirely.
func (s *CartService) DeleteCart(ctx context.Context, userID, cartID int64) error {
	if _, err := s.store.GetCart(ctx, cartID, userID); err != nil {
		return err
	}
	return s.store.DeleteCart(ctx, cartID)
}

func (s *CartService) publishCartUpdated(ctx context.Context, cartID, userID, productID int64, action string) {
	event := &models.CartUpdatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCartUpdated,
			Timestamp: time.Now(),
		},
		CartID:    cartID,
		UserID:    userID,
		ProductID: productID,
		Action:    action,
	}
	if err := s.events.PublishCartUpdated(ctx, event); err != nil {
		s.logger.Error("Failed to publish CartUpdated event",
			zap.Int64("cart_id", cartID),
			zap.Error(err))
	}
}
