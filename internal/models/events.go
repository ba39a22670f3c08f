package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeCartUpdated        = "CART_UPDATED"
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypePaymentSucceeded   = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed      = "PAYMENT_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CartUpdatedEvent published after every successful cart mutation. The audit
// worker re-verifies the cart total on receipt.
type CartUpdatedEvent struct {
	BaseEvent
	CartID    int64  `json:"cart_id"`
	UserID    int64  `json:"user_id"`
	ProductID int64  `json:"product_id"`
	Action    string `json:"action"`
}

// Cart mutation actions carried by CartUpdatedEvent
const (
	CartActionAdd    = "ADD"
	CartActionRemove = "REMOVE"
	CartActionUpdate = "UPDATE"
)

// OrderCreatedEvent published when a cart is checked out
type OrderCreatedEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	CartID  int64           `json:"cart_id"`
	Total   decimal.Decimal `json:"total"`
	Items   OrderSnapshot   `json:"items"`
}

// OrderStatusChangedEvent published on every accepted status transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// OrderCancelledEvent published when the owning user cancels an order
type OrderCancelledEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	UserID  int64  `json:"user_id"`
	Reason  string `json:"reason"`
}

// PaymentSucceededEvent consumed from the external payment system
type PaymentSucceededEvent struct {
	BaseEvent
	OrderID int64           `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	TxID    string          `json:"tx_id"`
}

// PaymentFailedEvent consumed from the external payment system
type PaymentFailedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Reason  string `json:"reason"`
}
