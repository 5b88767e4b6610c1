package order

import (
	"context"

	"go.uber.org/zap"

	"github.com/prasetyo/pos-orders/internal/invoice"
	"github.com/prasetyo/pos-orders/internal/pos"
)

// CreateItem is one requested line: product, quantity, agreed selling price.
type CreateItem struct {
	ProductID         int64 `json:"product_id"`
	Quantity          int   `json:"quantity"`
	SellingPriceCents int64 `json:"selling_price_cents"`
}

// BarcodeItem is the cashier-facing variant; the barcode is resolved to a
// product id before the order is created.
type BarcodeItem struct {
	Barcode           string `json:"barcode"`
	Quantity          int    `json:"quantity"`
	SellingPriceCents int64  `json:"selling_price_cents"`
}

type ProductGateway interface {
	FindByID(ctx context.Context, id int64) (pos.Product, error)
	FindByBarcode(ctx context.Context, barcode string) (pos.Product, error)
}

type InventoryLedger interface {
	CheckStock(ctx context.Context, productID int64, qty int) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, items []pos.OrderItem) (pos.Order, []pos.OrderItem, error)
	GetOrder(ctx context.Context, id int64) (pos.Order, error)
	ListOrders(ctx context.Context, status pos.Status, limit int) ([]pos.Order, error)
	ListItems(ctx context.Context, orderID int64) ([]pos.OrderItem, error)
	GetItem(ctx context.Context, orderID, itemID int64) (pos.OrderItem, error)
	UpdateItem(ctx context.Context, orderID, itemID int64, qty int, priceCents int64) (pos.OrderItem, error)
	SetStatus(ctx context.Context, id int64, from, to pos.Status) error
	CancelOrder(ctx context.Context, id int64) ([]pos.OrderItem, error)
}

type InvoiceRenderer interface {
	Render(ctx context.Context, req invoice.Request) (invoice.Document, error)
}

type Service struct {
	Catalog  ProductGateway
	Ledger   InventoryLedger
	Store    OrderStore
	Invoicer InvoiceRenderer
	Log      *zap.Logger
}

// Create runs the two-phase order creation. Phase one validates every line in
// input order against the catalog and the ledger without mutating anything;
// phase two delegates to the store, which reserves stock and persists the
// order atomically.
func (s *Service) Create(ctx context.Context, lines []CreateItem) (pos.Order, []pos.OrderItem, error) {
	if len(lines) == 0 {
		return pos.Order{}, nil, pos.Validationf("order must have at least one item")
	}

	items := make([]pos.OrderItem, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return pos.Order{}, nil, pos.Validationf("quantity must be positive for product %d", line.ProductID)
		}
		if line.SellingPriceCents < 0 {
			return pos.Order{}, nil, pos.Validationf("selling price cannot be negative for product %d", line.ProductID)
		}
		p, err := s.Catalog.FindByID(ctx, line.ProductID)
		if err != nil {
			return pos.Order{}, nil, err
		}
		// equal to MRP is allowed, only above is rejected
		if line.SellingPriceCents > p.MrpCents {
			return pos.Order{}, nil, pos.Validationf("selling price cannot be greater than MRP for product %s", p.Name)
		}
		if err := s.Ledger.CheckStock(ctx, line.ProductID, line.Quantity); err != nil {
			return pos.Order{}, nil, err
		}
		items = append(items, pos.OrderItem{
			ProductID:         line.ProductID,
			Quantity:          line.Quantity,
			SellingPriceCents: line.SellingPriceCents,
		})
	}

	o, created, err := s.Store.CreateOrder(ctx, items)
	if err != nil {
		return pos.Order{}, nil, err
	}
	s.Log.Info("order created",
		zap.Int64("order_id", o.ID),
		zap.Int("items", len(created)),
		zap.Int64("total_cents", o.TotalCents))
	return o, created, nil
}

// ResolveBarcodes maps cashier-scanned lines to product ids.
func (s *Service) ResolveBarcodes(ctx context.Context, lines []BarcodeItem) ([]CreateItem, error) {
	out := make([]CreateItem, 0, len(lines))
	for _, line := range lines {
		p, err := s.Catalog.FindByBarcode(ctx, line.Barcode)
		if err != nil {
			return nil, err
		}
		out = append(out, CreateItem{
			ProductID:         p.ID,
			Quantity:          line.Quantity,
			SellingPriceCents: line.SellingPriceCents,
		})
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (pos.Order, []pos.OrderItem, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return pos.Order{}, nil, err
	}
	items, err := s.Store.ListItems(ctx, id)
	if err != nil {
		return pos.Order{}, nil, err
	}
	return o, items, nil
}

func (s *Service) List(ctx context.Context, status string, limit int) ([]pos.Order, error) {
	st := pos.Status(status)
	if status != "" && !pos.ValidStatus(st) {
		return nil, pos.Validationf("unknown order status %q", status)
	}
	return s.Store.ListOrders(ctx, st, limit)
}

// Finalize renders the invoice for a CREATED order and, only after the
// renderer confirms success, flips the order to INVOICED. A failed render
// leaves the order CREATED so the call is safe to retry.
func (s *Service) Finalize(ctx context.Context, id int64) (invoice.Document, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return invoice.Document{}, err
	}
	if !pos.CanTransition(o.Status, pos.StatusInvoiced) {
		return invoice.Document{}, pos.InvalidTransitionf("order %d is %s, cannot be invoiced", id, o.Status)
	}

	items, err := s.Store.ListItems(ctx, id)
	if err != nil {
		return invoice.Document{}, err
	}

	req := invoice.Request{
		Order: invoice.OrderSummary{ID: o.ID, CreatedAt: o.CreatedAt},
		Items: make([]invoice.ItemLine, 0, len(items)),
	}
	for _, it := range items {
		req.Items = append(req.Items, invoice.ItemLine{
			ProductID:         it.ProductID,
			Quantity:          it.Quantity,
			SellingPriceCents: it.SellingPriceCents,
		})
		p, err := s.Catalog.FindByID(ctx, it.ProductID)
		if err != nil {
			return invoice.Document{}, err
		}
		req.ProductNames = append(req.ProductNames, p.Name)
	}

	doc, err := s.Invoicer.Render(ctx, req)
	if err != nil {
		// no status change: the order stays CREATED and finalize can be retried
		s.Log.Warn("invoice render failed", zap.Int64("order_id", id), zap.Error(err))
		return invoice.Document{}, err
	}

	if err := s.Store.SetStatus(ctx, id, pos.StatusCreated, pos.StatusInvoiced); err != nil {
		return invoice.Document{}, err
	}
	s.Log.Info("order invoiced", zap.Int64("order_id", id))
	return doc, nil
}

// Cancel restocks every item and flips the order to CANCELLED. Terminal
// orders are rejected before any stock moves.
func (s *Service) Cancel(ctx context.Context, id int64) ([]pos.OrderItem, error) {
	o, err := s.Store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !pos.CanTransition(o.Status, pos.StatusCancelled) {
		return nil, pos.InvalidTransitionf("order %d is %s, cannot be cancelled", id, o.Status)
	}

	items, err := s.Store.CancelOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Log.Info("order cancelled", zap.Int64("order_id", id), zap.Int("items_restocked", len(items)))
	return items, nil
}

// UpdateItem edits one line of a still-CREATED order, re-validating the
// selling price against the product MRP.
func (s *Service) UpdateItem(ctx context.Context, orderID, itemID int64, qty int, priceCents int64) (pos.OrderItem, error) {
	if qty <= 0 {
		return pos.OrderItem{}, pos.Validationf("quantity must be positive")
	}
	if priceCents < 0 {
		return pos.OrderItem{}, pos.Validationf("selling price cannot be negative")
	}

	o, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return pos.OrderItem{}, err
	}
	if o.Status != pos.StatusCreated {
		return pos.OrderItem{}, pos.InvalidTransitionf("order %d is %s, items are immutable", orderID, o.Status)
	}

	it, err := s.Store.GetItem(ctx, orderID, itemID)
	if err != nil {
		return pos.OrderItem{}, err
	}
	p, err := s.Catalog.FindByID(ctx, it.ProductID)
	if err != nil {
		return pos.OrderItem{}, err
	}
	if priceCents > p.MrpCents {
		return pos.OrderItem{}, pos.Validationf("selling price cannot be greater than MRP for product %s", p.Name)
	}

	return s.Store.UpdateItem(ctx, orderID, itemID, qty, priceCents)
}
