package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-service/internal/models"
)

// CreateOrderTx inserts the order and clears the source cart (line items
// deleted, total zeroed) in a single transaction, so a failure partway cannot
// leave a checked-out cart half-cleared.
func (s *Store) CreateOrderTx(ctx context.Context, order *models.Order, cartID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO orders (user_id, items, total, message, paid, delivery, status, address, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.UserID, order.Items, order.Total, order.Message,
		order.Paid, order.Delivery, order.Status, order.Address, order.IdempotencyKey).
		Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID); err != nil {
		return fmt.Errorf("failed to clear cart items: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE carts SET total = 0, updated_at = NOW() WHERE id = $1", cartID); err != nil {
		return fmt.Errorf("failed to reset cart total: %w", err)
	}

	return tx.Commit()
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrOrderDoesNotExist)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key, nil when
// no such order exists.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetUserOrders retrieves a page of the user's orders.
func (s *Store) GetUserOrders(ctx context.Context, userID int64, p Page) ([]models.Order, error) {
	allowed := map[string]bool{"id": true, "total": true, "status": true, "created_at": true, "updated_at": true}
	query := fmt.Sprintf(
		"SELECT * FROM orders WHERE user_id = $1 %s LIMIT $2 OFFSET $3",
		orderClause(p, allowed, "created_at"))

	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders, query, userID, p.Limit, p.Offset)
	return orders, err
}

// CountUserOrders returns the number of orders the user has placed.
func (s *Store) CountUserOrders(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM orders WHERE user_id = $1", userID)
	return count, err
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderDoesNotExist)
	}
	return nil
}

// SetOrderPaid sets the paid flag
func (s *Store) SetOrderPaid(ctx context.Context, orderID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET paid = TRUE, updated_at = NOW() WHERE id = $1", orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderDoesNotExist)
	}
	return nil
}

// SetOrderDelivered sets the delivery flag and the DELIVERED status together
func (s *Store) SetOrderDelivered(ctx context.Context, orderID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET delivery = TRUE, status = $1, updated_at = NOW() WHERE id = $2",
		models.OrderStatusDelivered, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", orderID, models.ErrOrderDoesNotExist)
	}
	return nil
}
