package pos

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the locked
// inventory arithmetic can run standalone or inside a larger transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CatalogRepo is the read-mostly product gateway.
type CatalogRepo struct{ DB *pgxpool.Pool }

const productCols = `id, barcode, name, mrp_cents, COALESCE(img_url,''), created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Barcode, &p.Name, &p.MrpCents, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *CatalogRepo) FindByID(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, NotFoundf("product %d not found", id)
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *CatalogRepo) FindByBarcode(ctx context.Context, barcode string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE barcode=$1`, barcode))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, NotFoundf("product with barcode %s not found", barcode)
	}
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

func (r *CatalogRepo) List(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY barcode`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Barcode, &p.Name, &p.MrpCents, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts the product and its zero-quantity inventory row in one tx.
func (r *CatalogRepo) Create(ctx context.Context, p Product) (Product, error) {
	if p.Barcode == "" || p.Name == "" {
		return Product{}, Validationf("barcode and name are required")
	}
	if p.MrpCents < 0 {
		return Product{}, Validationf("mrp cannot be negative")
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Product{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO products(barcode, name, mrp_cents, img_url)
		VALUES ($1, $2, $3, NULLIF($4,''))
		RETURNING `+productCols,
		p.Barcode, p.Name, p.MrpCents, p.ImageURL,
	).Scan(&p.ID, &p.Barcode, &p.Name, &p.MrpCents, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return Product{}, Validationf("product with same barcode or name already exists")
	}
	if err != nil {
		return Product{}, err
	}

	if _, err := tx.Exec(ctx, `INSERT INTO inventory(product_id, quantity) VALUES ($1, 0)`, p.ID); err != nil {
		return Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Product{}, err
	}
	return p, nil
}
