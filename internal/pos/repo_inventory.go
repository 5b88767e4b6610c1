package pos

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InventoryRepo struct{ DB *pgxpool.Pool }

func (r *InventoryRepo) FindByProductID(ctx context.Context, productID int64) (Inventory, error) {
	var inv Inventory
	err := r.DB.QueryRow(ctx,
		`SELECT product_id, quantity, updated_at FROM inventory WHERE product_id=$1`,
		productID).Scan(&inv.ProductID, &inv.Quantity, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Inventory{}, NotFoundf("inventory for product %d not found", productID)
	}
	if err != nil {
		return Inventory{}, err
	}
	return inv, nil
}

func (r *InventoryRepo) List(ctx context.Context) ([]Inventory, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT product_id, quantity, updated_at FROM inventory ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Inventory
	for rows.Next() {
		var inv Inventory
		if err := rows.Scan(&inv.ProductID, &inv.Quantity, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// CheckStock is the read-only validation-phase probe. The commit phase
// re-checks under a row lock, so this never mutates anything.
func (r *InventoryRepo) CheckStock(ctx context.Context, productID int64, qty int) error {
	var available int
	err := r.DB.QueryRow(ctx, `SELECT quantity FROM inventory WHERE product_id=$1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFoundf("inventory for product %d not found", productID)
	}
	if err != nil {
		return err
	}
	if available < qty {
		return InsufficientStockf("insufficient quantity for product %d: need %d, have %d", productID, qty, available)
	}
	return nil
}

// Reserve decrements stock atomically in its own transaction.
func (r *InventoryRepo) Reserve(ctx context.Context, productID int64, qty int) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := reserveLocked(ctx, tx, productID, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// reserveLocked locks the inventory row, validates, then decrements. The
// validate-before-mutate order is what keeps quantity from ever going
// negative in a committed row.
func reserveLocked(ctx context.Context, q querier, productID int64, qty int) error {
	var available int
	err := q.QueryRow(ctx, `SELECT quantity FROM inventory WHERE product_id=$1 FOR UPDATE`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFoundf("inventory for product %d not found", productID)
	}
	if err != nil {
		return err
	}
	if available < qty {
		return OutOfStockf("out of stock for product %d: need %d, have %d", productID, qty, available)
	}
	_, err = q.Exec(ctx, `UPDATE inventory SET quantity = quantity - $2, updated_at = now() WHERE product_id=$1`, productID, qty)
	return err
}

// Restock increments stock; used on cancellation. No upper bound.
func (r *InventoryRepo) Restock(ctx context.Context, productID int64, qty int) error {
	return restock(ctx, r.DB, productID, qty)
}

func restock(ctx context.Context, q querier, productID int64, qty int) error {
	ct, err := q.Exec(ctx, `UPDATE inventory SET quantity = quantity + $2, updated_at = now() WHERE product_id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return NotFoundf("inventory for product %d not found", productID)
	}
	return nil
}

// SetQuantity is the supervisor-facing absolute update.
func (r *InventoryRepo) SetQuantity(ctx context.Context, productID int64, qty int) (Inventory, error) {
	if qty < 0 {
		return Inventory{}, Validationf("quantity cannot be negative")
	}
	var inv Inventory
	err := r.DB.QueryRow(ctx, `
		UPDATE inventory SET quantity = $2, updated_at = now()
		WHERE product_id=$1
		RETURNING product_id, quantity, updated_at`,
		productID, qty).Scan(&inv.ProductID, &inv.Quantity, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Inventory{}, NotFoundf("inventory for product %d not found", productID)
	}
	if err != nil {
		return Inventory{}, err
	}
	return inv, nil
}
