package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-service/internal/models"

	"github.com/shopspring/decimal"
)

// CreateCartTx inserts a new cart and its first line item in one transaction.
func (s *Store) CreateCartTx(ctx context.Context, cart *models.Cart, item *models.CartItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO carts (user_id, total)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, cart, query, cart.UserID, cart.Total); err != nil {
		return fmt.Errorf("failed to create cart: %w", err)
	}

	item.CartID = cart.ID
	_, err = tx.ExecContext(ctx,
		"INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1, $2, $3)",
		item.CartID, item.ProductID, item.Quantity)
	if err != nil {
		return fmt.Errorf("failed to insert cart item: %w", err)
	}

	return tx.Commit()
}

// GetCart retrieves a cart owned by the given user.
func (s *Store) GetCart(ctx context.Context, cartID, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := s.db.GetContext(ctx, &cart,
		"SELECT * FROM carts WHERE id = $1 AND user_id = $2", cartID, userID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cart %d: %w", cartID, models.ErrCartDoesNotExist)
	}
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetCarts retrieves a page of the user's carts.
func (s *Store) GetCarts(ctx context.Context, userID int64, p Page) ([]models.Cart, error) {
	allowed := map[string]bool{"id": true, "total": true, "created_at": true, "updated_at": true}
	query := fmt.Sprintf(
		"SELECT * FROM carts WHERE user_id = $1 %s LIMIT $2 OFFSET $3",
		orderClause(p, allowed, "created_at"))

	var carts []models.Cart
	err := s.db.SelectContext(ctx, &carts, query, userID, p.Limit, p.Offset)
	return carts, err
}

// CountCarts returns the number of carts the user currently owns.
func (s *Store) CountCarts(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM carts WHERE user_id = $1", userID)
	return count, err
}

// GetCartItem retrieves a single line item.
func (s *Store) GetCartItem(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d in cart %d: %w", productID, cartID, models.ErrProductIsNotInCart)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CountCartItems returns the number of distinct line items in a cart.
func (s *Store) CountCartItems(ctx context.Context, cartID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM cart_items WHERE cart_id = $1", cartID)
	return count, err
}

// GetCartDetails retrieves a page of line items joined with their current
// product attributes.
func (s *Store) GetCartDetails(ctx context.Context, cartID int64, p Page) ([]models.CartItemDetail, error) {
	allowed := map[string]bool{"product_id": true, "name": true, "price": true, "quantity": true}
	query := fmt.Sprintf(`
		SELECT ci.product_id, p.name, p.price, p.discount, ci.quantity, p.thumbnail
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		%s LIMIT $2 OFFSET $3`,
		orderClause(p, allowed, "product_id"))

	var details []models.CartItemDetail
	err := s.db.SelectContext(ctx, &details, query, cartID, p.Limit, p.Offset)
	return details, err
}

// GetCartItemDetail retrieves one line item joined with its product. Unlike
// product lookups on the add path, this does not filter on the listed flag:
// an already-carted product stays removable after delisting.
func (s *Store) GetCartItemDetail(ctx context.Context, cartID, productID int64) (*models.CartItemDetail, error) {
	var detail models.CartItemDetail
	err := s.db.GetContext(ctx, &detail, `
		SELECT ci.product_id, p.name, p.price, p.discount, ci.quantity, p.thumbnail
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1 AND ci.product_id = $2`,
		cartID, productID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d in cart %d: %w", productID, cartID, models.ErrProductIsNotInCart)
	}
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// AddItemTx applies one add-to-cart mutation atomically: increments the
// cart's denormalized total by delta and upserts the line item. The total is
// adjusted with a database-side increment, never read-modify-write.
func (s *Store) AddItemTx(ctx context.Context, cartID, productID int64, quantity int, delta decimal.Decimal) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyTotalDelta(ctx, tx, cartID, delta); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity, updated_at = NOW()`,
		cartID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to upsert cart item: %w", err)
	}

	return tx.Commit()
}

// RemoveItemTx removes a line item and subtracts its contribution from the
// cart total in one transaction. delta is negative.
func (s *Store) RemoveItemTx(ctx context.Context, cartID, productID int64, delta decimal.Decimal) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyTotalDelta(ctx, tx, cartID, delta); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d in cart %d: %w", productID, cartID, models.ErrProductIsNotInCart)
	}

	return tx.Commit()
}

// SetItemQuantityTx sets a line item's quantity directly and adjusts the cart
// total by the caller-computed delta, in one transaction.
func (s *Store) SetItemQuantityTx(ctx context.Context, cartID, productID int64, quantity int, delta decimal.Decimal) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := applyTotalDelta(ctx, tx, cartID, delta); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		"UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE cart_id = $2 AND product_id = $3",
		quantity, cartID, productID)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d in cart %d: %w", productID, cartID, models.ErrProductIsNotInCart)
	}

	return tx.Commit()
}

// SetCartTotal overwrites the stored total. Used by the total re-check when a
// correction is needed.
func (s *Store) SetCartTotal(ctx context.Context, cartID int64, total decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE carts SET total = $1, updated_at = NOW() WHERE id = $2", total, cartID)
	return err
}

// DeleteCart removes a cart and its line items.
func (s *Store) DeleteCart(ctx context.Context, cartID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", cartID); err != nil {
		return err
	}

	return tx.Commit()
}

func applyTotalDelta(ctx context.Context, tx execer, cartID int64, delta decimal.Decimal) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE carts SET total = total + $1, updated_at = NOW() WHERE id = $2", delta, cartID)
	if err != nil {
		return fmt.Errorf("failed to update cart total: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("cart %d: %w", cartID, models.ErrCartDoesNotExist)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}
