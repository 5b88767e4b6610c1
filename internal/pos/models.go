package pos

import "time"

type Product struct {
	ID        int64     `json:"id"`
	Barcode   string    `json:"barcode"`
	Name      string    `json:"name"`
	MrpCents  int64     `json:"mrp_cents"`
	ImageURL  string    `json:"img_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Inventory is one row per product (1:1).
type Inventory struct {
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Order struct {
	ID         int64     `json:"id"`
	Status     Status    `json:"status"` // lihat status.go
	TotalCents int64     `json:"total_cents"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type OrderItem struct {
	ID                int64 `json:"id"`
	OrderID           int64 `json:"order_id"`
	ProductID         int64 `json:"product_id"`
	Quantity          int   `json:"quantity"`
	SellingPriceCents int64 `json:"selling_price_cents"`
}
