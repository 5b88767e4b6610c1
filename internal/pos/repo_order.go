package pos

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrderRepo struct{ DB *pgxpool.Pool }

// CreateOrder persists the order, its items, and the stock decrements in one
// transaction. Items are processed in caller-supplied order; a failure on any
// item rolls back everything, including reservations already made for earlier
// items.
func (r *OrderRepo) CreateOrder(ctx context.Context, items []OrderItem) (Order, []OrderItem, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var order Order
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(status, total_cents)
		VALUES ($1, 0)
		RETURNING id, status, total_cents, created_at, updated_at`,
		StatusCreated,
	).Scan(&order.ID, &order.Status, &order.TotalCents, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return Order{}, nil, err
	}

	var total int64
	out := make([]OrderItem, 0, len(items))
	for _, it := range items {
		if err := reserveLocked(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return Order{}, nil, err
		}
		it.OrderID = order.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, selling_price_cents)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			it.OrderID, it.ProductID, it.Quantity, it.SellingPriceCents,
		).Scan(&it.ID)
		if err != nil {
			return Order{}, nil, err
		}
		total += int64(it.Quantity) * it.SellingPriceCents
		out = append(out, it)
	}

	err = tx.QueryRow(ctx, `
		UPDATE orders SET total_cents=$2, updated_at=now()
		WHERE id=$1
		RETURNING total_cents, updated_at`,
		order.ID, total,
	).Scan(&order.TotalCents, &order.UpdatedAt)
	if err != nil {
		return Order{}, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, nil, err
	}
	return order, out, nil
}

func (r *OrderRepo) GetOrder(ctx context.Context, id int64) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx,
		`SELECT id, status, total_cents, created_at, updated_at FROM orders WHERE id=$1`,
		id).Scan(&o.ID, &o.Status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, NotFoundf("order %d not found", id)
	}
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders returns newest first; status empty means all.
func (r *OrderRepo) ListOrders(ctx context.Context, status Status, limit int) ([]Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = r.DB.Query(ctx, `
			SELECT id, status, total_cents, created_at, updated_at
			FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.DB.Query(ctx, `
			SELECT id, status, total_cents, created_at, updated_at
			FROM orders WHERE status=$1 ORDER BY created_at DESC LIMIT $2`, status, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Status, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OrderRepo) ListItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return listItems(ctx, r.DB, orderID)
}

func listItems(ctx context.Context, q querier, orderID int64) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, selling_price_cents
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.SellingPriceCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *OrderRepo) GetItem(ctx context.Context, orderID, itemID int64) (OrderItem, error) {
	var it OrderItem
	err := r.DB.QueryRow(ctx, `
		SELECT id, order_id, product_id, quantity, selling_price_cents
		FROM order_items WHERE id=$1 AND order_id=$2`,
		itemID, orderID).Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.SellingPriceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderItem{}, NotFoundf("order item %d not found in order %d", itemID, orderID)
	}
	if err != nil {
		return OrderItem{}, err
	}
	return it, nil
}

// SetStatus flips status conditionally on the expected current value, so a
// concurrent finalize/cancel on the same order can win at most once.
func (r *OrderRepo) SetStatus(ctx context.Context, id int64, from, to Status) error {
	ct, err := r.DB.Exec(ctx,
		`UPDATE orders SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`,
		id, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	// lost the race or bad id; report which
	cur, err := r.GetOrder(ctx, id)
	if err != nil {
		return err
	}
	return InvalidTransitionf("order %d is %s, cannot transition to %s", id, cur.Status, to)
}

// CancelOrder restocks every item and flips the status in one transaction.
// The caller has already checked the state machine; the row lock here makes
// the check race-proof.
func (r *OrderRepo) CancelOrder(ctx context.Context, id int64) ([]OrderItem, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, NotFoundf("order %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	if !CanTransition(status, StatusCancelled) {
		return nil, InvalidTransitionf("order %d is %s, cannot transition to %s", id, status, StatusCancelled)
	}

	items, err := listItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if err := restock(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`,
		id, StatusCancelled); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateItem rewrites quantity/selling price of one item while the parent
// order is still CREATED, adjusting the reservation by the quantity delta and
// the order total by the subtotal delta, all in one transaction.
func (r *OrderRepo) UpdateItem(ctx context.Context, orderID, itemID int64, qty int, priceCents int64) (OrderItem, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return OrderItem{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderItem{}, NotFoundf("order %d not found", orderID)
	}
	if err != nil {
		return OrderItem{}, err
	}
	if status != StatusCreated {
		return OrderItem{}, InvalidTransitionf("order %d is %s, items are immutable", orderID, status)
	}

	var it OrderItem
	err = tx.QueryRow(ctx, `
		SELECT id, order_id, product_id, quantity, selling_price_cents
		FROM order_items WHERE id=$1 AND order_id=$2 FOR UPDATE`,
		itemID, orderID).Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.SellingPriceCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return OrderItem{}, NotFoundf("order item %d not found in order %d", itemID, orderID)
	}
	if err != nil {
		return OrderItem{}, err
	}

	delta := qty - it.Quantity
	if delta > 0 {
		if err := reserveLocked(ctx, tx, it.ProductID, delta); err != nil {
			return OrderItem{}, err
		}
	} else if delta < 0 {
		if err := restock(ctx, tx, it.ProductID, -delta); err != nil {
			return OrderItem{}, err
		}
	}

	subtotalDelta := int64(qty)*priceCents - int64(it.Quantity)*it.SellingPriceCents
	if _, err := tx.Exec(ctx,
		`UPDATE order_items SET quantity=$2, selling_price_cents=$3 WHERE id=$1`,
		itemID, qty, priceCents); err != nil {
		return OrderItem{}, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE orders SET total_cents = total_cents + $2, updated_at=now() WHERE id=$1`,
		orderID, subtotalDelta); err != nil {
		return OrderItem{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return OrderItem{}, err
	}
	it.Quantity = qty
	it.SellingPriceCents = priceCents
	return it, nil
}
