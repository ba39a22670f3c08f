package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"marketplace-service/internal/models"
	"marketplace-service/internal/store"

	"github.com/shopspring/decimal"
)

// In-memory fakes for the store and collaborator interfaces. Each mutating
// method validates before it mutates, mirroring the all-or-nothing behavior
// of the real transactional store methods.

type fakeProducts struct {
	mu       sync.Mutex
	products map[int64]*models.Product
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{products: make(map[int64]*models.Product)}
}

func (f *fakeProducts) add(p *models.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.products[p.ID] = &cp
}

func (f *fakeProducts) setPrice(id int64, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[id].Price = price
}

func (f *fakeProducts) GetCheckedProduct(_ context.Context, productID int64) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok || !p.Listed {
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrProductDoesNotExist)
	}
	if p.Stock <= 0 {
		return nil, fmt.Errorf("product %d: %w", productID, models.ErrProductOutOfStock)
	}
	cp := *p
	return &cp, nil
}

type fakeCartStore struct {
	mu            sync.Mutex
	products      *fakeProducts
	carts         map[int64]*models.Cart
	items         map[int64]map[int64]*models.CartItem
	nextID        int64
	totalRewrites int
}

func newFakeCartStore(products *fakeProducts) *fakeCartStore {
	return &fakeCartStore{
		products: products,
		carts:    make(map[int64]*models.Cart),
		items:    make(map[int64]map[int64]*models.CartItem),
	}
}

func (f *fakeCartStore) CreateCartTx(_ context.Context, cart *models.Cart, item *models.CartItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	cart.ID = f.nextID
	cp := *cart
	f.carts[cart.ID] = &cp
	item.CartID = cart.ID
	f.items[cart.ID] = map[int64]*models.CartItem{item.ProductID: {
		CartID:    cart.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	}}
	return nil
}

func (f *fakeCartStore) GetCart(_ context.Context, cartID, userID int64) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok || cart.UserID != userID {
		return nil, fmt.Errorf("cart %d: %w", cartID, models.ErrCartDoesNotExist)
	}
	cp := *cart
	return &cp, nil
}

func (f *fakeCartStore) GetCarts(_ context.Context, userID int64, p store.Page) ([]models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var carts []models.Cart
	for _, c := range f.carts {
		if c.UserID == userID {
			carts = append(carts, *c)
		}
	}
	sort.Slice(carts, func(i, j int) bool { return carts[i].ID < carts[j].ID })
	return paginate(carts, p), nil
}

func (f *fakeCartStore) CountCarts(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, c := range f.carts {
		if c.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeCartStore) GetCartItemDetail(_ context.Context, cartID, productID int64) (*models.CartItemDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[cartID][productID]
	if !ok {
		return nil, fmt.Errorf("product %d in cart %d: %w", productID, cartID, models.ErrProductIsNotInCart)
	}
	return f.detailLocked(item), nil
}

func (f *fakeCartStore) detailLocked(item *models.CartItem) *models.CartItemDetail {
	f.products.mu.Lock()
	defer f.products.mu.Unlock()
	p := f.products.products[item.ProductID]
	return &models.CartItemDetail{
		ProductID: item.ProductID,
		Name:      p.Name,
		Price:     p.Price,
		Discount:  p.Discount,
		Quantity:  item.Quantity,
		Thumbnail: p.Thumbnail,
	}
}

func (f *fakeCartStore) GetCartDetails(_ context.Context, cartID int64, p store.Page) ([]models.CartItemDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id := range f.items[cartID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var details []models.CartItemDetail
	for _, id := range ids {
		details = append(details, *f.detailLocked(f.items[cartID][id]))
	}
	return paginate(details, p), nil
}

func (f *fakeCartStore) CountCartItems(_ context.Context, cartID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[cartID]), nil
}

func (f *fakeCartStore) AddItemTx(_ context.Context, cartID, productID int64, quantity int, delta decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, models.ErrCartDoesNotExist)
	}
	cart.Total = cart.Total.Add(delta)
	if item, ok := f.items[cartID][productID]; ok {
		item.Quantity += quantity
	} else {
		if f.items[cartID] == nil {
			f.items[cartID] = make(map[int64]*models.CartItem)
		}
		f.items[cartID][productID] = &models.CartItem{CartID: cartID, ProductID: productID, Quantity: quantity}
	}
	return nil
}

func (f *fakeCartStore) RemoveItemTx(_ context.Context, cartID, productID int64, delta decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, models.ErrCartDoesNotExist)
	}
	if _, ok := f.items[cartID][productID]; !ok {
		return fmt.Errorf("product %d in cart %d: %w", productID, cartID, models.ErrProductIsNotInCart)
	}
	cart.Total = cart.Total.Add(delta)
	delete(f.items[cartID], productID)
	return nil
}

func (f *fakeCartStore) SetItemQuantityTx(_ context.Context, cartID, productID int64, quantity int, delta decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, models.ErrCartDoesNotExist)
	}
	item, ok := f.items[cartID][productID]
	if !ok {
		return fmt.Errorf("product %d in cart %d: %w", productID, cartID, models.ErrProductIsNotInCart)
	}
	cart.Total = cart.Total.Add(delta)
	item.Quantity = quantity
	return nil
}

func (f *fakeCartStore) SetCartTotal(_ context.Context, cartID int64, total decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart, ok := f.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %d: %w", cartID, models.ErrCartDoesNotExist)
	}
	cart.Total = total
	f.totalRewrites++
	return nil
}

func (f *fakeCartStore) DeleteCart(_ context.Context, cartID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, cartID)
	delete(f.items, cartID)
	return nil
}

func paginate[T any](rows []T, p store.Page) []T {
	if p.Offset >= len(rows) {
		return nil
	}
	rows = rows[p.Offset:]
	if p.Limit > 0 && p.Limit < len(rows) {
		rows = rows[:p.Limit]
	}
	return rows
}

type fakeOrderStore struct {
	mu     sync.Mutex
	carts  *fakeCartStore
	orders map[int64]*models.Order
	byKey  map[string]int64
	nextID int64
}

func newFakeOrderStore(carts *fakeCartStore) *fakeOrderStore {
	return &fakeOrderStore{
		carts:  carts,
		orders: make(map[int64]*models.Order),
		byKey:  make(map[string]int64),
	}
}

func (f *fakeOrderStore) CreateOrderTx(_ context.Context, order *models.Order, cartID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order.IdempotencyKey != "" {
		if _, dup := f.byKey[order.IdempotencyKey]; dup {
			return fmt.Errorf("duplicate idempotency key %q", order.IdempotencyKey)
		}
	}
	f.nextID++
	order.ID = f.nextID
	cp := *order
	f.orders[order.ID] = &cp
	if order.IdempotencyKey != "" {
		f.byKey[order.IdempotencyKey] = order.ID
	}

	f.carts.mu.Lock()
	defer f.carts.mu.Unlock()
	delete(f.carts.items, cartID)
	if cart, ok := f.carts.carts[cartID]; ok {
		cart.Total = decimal.Zero
	}
	return nil
}

func (f *fakeOrderStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrOrderDoesNotExist)
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrderStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byKey[key]
	if !ok {
		return nil, nil
	}
	cp := *f.orders[id]
	return &cp, nil
}

func (f *fakeOrderStore) GetUserOrders(_ context.Context, userID int64, p store.Page) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orders []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return paginate(orders, p), nil
}

func (f *fakeOrderStore) CountUserOrders(_ context.Context, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, o := range f.orders {
		if o.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeOrderStore) UpdateOrderStatus(_ context.Context, orderID int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderDoesNotExist)
	}
	order.Status = status
	return nil
}

func (f *fakeOrderStore) SetOrderPaid(_ context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderDoesNotExist)
	}
	order.Paid = true
	return nil
}

func (f *fakeOrderStore) SetOrderDelivered(_ context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderDoesNotExist)
	}
	order.Delivery = true
	order.Status = models.OrderStatusDelivered
	return nil
}

type fakeEvents struct {
	mu        sync.Mutex
	cart      []*models.CartUpdatedEvent
	created   []*models.OrderCreatedEvent
	status    []*models.OrderStatusChangedEvent
	cancelled []*models.OrderCancelledEvent
}

func (f *fakeEvents) PublishCartUpdated(_ context.Context, e *models.CartUpdatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart = append(f.cart, e)
	return nil
}

func (f *fakeEvents) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, e)
	return nil
}

func (f *fakeEvents) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = append(f.status, e)
	return nil
}

func (f *fakeEvents) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, e)
	return nil
}
