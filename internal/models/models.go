package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a catalog listing. This service only reads products;
// merchant edits happen elsewhere.
type Product struct {
	ID         int64           `db:"id" json:"id"`
	MerchantID int64           `db:"merchant_id" json:"merchant_id"`
	Name       string          `db:"name" json:"name"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Discount   int             `db:"discount" json:"discount"`
	Stock      int             `db:"stock" json:"stock"`
	Listed     bool            `db:"listed" json:"listed"`
	Thumbnail  string          `db:"thumbnail" json:"thumbnail"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// EffectivePrice returns the unit price after discount.
func (p *Product) EffectivePrice() decimal.Decimal {
	return EffectiveUnitPrice(p.Price, p.Discount)
}

// EffectiveUnitPrice computes price * (1 - discount/100) for an integer
// percent discount.
func EffectiveUnitPrice(price decimal.Decimal, discount int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(100 - discount))).Div(decimal.NewFromInt(100))
}

// Cart carries a denormalized total kept in sync with its line items.
type Cart struct {
	ID        int64           `db:"id" json:"id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Total     decimal.Decimal `db:"total" json:"total"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// CartItem is unique per (cart, product); quantity is always >= 1.
type CartItem struct {
	CartID    int64     `db:"cart_id" json:"cart_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartItemDetail is the read-model row for cart listings: a line item joined
// with its current product attributes.
type CartItemDetail struct {
	ProductID int64           `db:"product_id" json:"product_id"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Discount  int             `db:"discount" json:"discount"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Thumbnail string          `db:"thumbnail" json:"thumbnail"`
}

// LineTotal is the line's contribution at current product price/discount.
func (d *CartItemDetail) LineTotal() decimal.Decimal {
	return EffectiveUnitPrice(d.Price, d.Discount).Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// OrderItemSnapshot freezes a purchased line item at checkout time so later
// product edits do not alter historical orders.
type OrderItemSnapshot struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Discount  int             `json:"discount"`
	Quantity  int             `json:"quantity"`
	Thumbnail string          `json:"thumbnail"`
	Total     decimal.Decimal `json:"total"`
}

// OrderSnapshot is stored as a JSONB column on orders.
type OrderSnapshot []OrderItemSnapshot

// Sum returns the sum of the snapshot's line totals.
func (s OrderSnapshot) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s {
		total = total.Add(item.Total)
	}
	return total
}

func (s OrderSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *OrderSnapshot) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	case nil:
		*s = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into OrderSnapshot", src)
	}
}

// Order is immutable after creation except for status, paid and delivery.
type Order struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	Items          OrderSnapshot   `db:"items" json:"items"`
	Total          decimal.Decimal `db:"total" json:"total"`
	Message        string          `db:"message" json:"message,omitempty"`
	Paid           bool            `db:"paid" json:"paid"`
	Delivery       bool            `db:"delivery" json:"delivery"`
	Status         string          `db:"status" json:"status"`
	Address        string          `db:"address" json:"address"`
	IdempotencyKey string          `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusPending    = "PENDING"
	OrderStatusConfirmed  = "CONFIRMED"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusShipped    = "SHIPPED"
	OrderStatusDelivered  = "DELIVERED"
	OrderStatusCancelled  = "CANCELLED"
)

// statusTransitions is the closed transition table for the order lifecycle.
// Fulfillment moves strictly forward; CANCELLED is reachable from any state
// except SHIPPED, DELIVERED and CANCELLED itself.
var statusTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
