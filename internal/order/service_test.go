package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prasetyo/pos-orders/internal/invoice"
	"github.com/prasetyo/pos-orders/internal/order"
	"github.com/prasetyo/pos-orders/internal/pos"
)

// ---- fakes ----

type fakeCatalog struct{ byID map[int64]pos.Product }

func (f *fakeCatalog) FindByID(_ context.Context, id int64) (pos.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return pos.Product{}, pos.NotFoundf("product %d not found", id)
	}
	return p, nil
}

func (f *fakeCatalog) FindByBarcode(_ context.Context, barcode string) (pos.Product, error) {
	for _, p := range f.byID {
		if p.Barcode == barcode {
			return p, nil
		}
	}
	return pos.Product{}, pos.NotFoundf("product with barcode %s not found", barcode)
}

type fakeLedger struct{ stock map[int64]int }

func (f *fakeLedger) CheckStock(_ context.Context, productID int64, qty int) error {
	available, ok := f.stock[productID]
	if !ok {
		return pos.NotFoundf("inventory for product %d not found", productID)
	}
	if available < qty {
		return pos.InsufficientStockf("insufficient quantity for product %d: need %d, have %d", productID, qty, available)
	}
	return nil
}

// fakeStore mirrors the all-or-nothing contract of the pg order repo: a
// commit either lands fully (order, items, decrements) or not at all.
type fakeStore struct {
	stock       map[int64]int
	orders      map[int64]pos.Order
	items       map[int64][]pos.OrderItem
	nextOrderID int64
	nextItemID  int64
	transitions int // successful SetStatus calls
}

func newFakeStore(stock map[int64]int) *fakeStore {
	return &fakeStore{
		stock:  stock,
		orders: map[int64]pos.Order{},
		items:  map[int64][]pos.OrderItem{},
	}
}

func (f *fakeStore) CreateOrder(_ context.Context, items []pos.OrderItem) (pos.Order, []pos.OrderItem, error) {
	trial := make(map[int64]int, len(f.stock))
	for k, v := range f.stock {
		trial[k] = v
	}
	for _, it := range items {
		available, ok := trial[it.ProductID]
		if !ok {
			return pos.Order{}, nil, pos.NotFoundf("inventory for product %d not found", it.ProductID)
		}
		if available < it.Quantity {
			return pos.Order{}, nil, pos.OutOfStockf("out of stock for product %d: need %d, have %d", it.ProductID, it.Quantity, available)
		}
		trial[it.ProductID] = available - it.Quantity
	}
	f.stock = trial

	f.nextOrderID++
	o := pos.Order{ID: f.nextOrderID, Status: pos.StatusCreated, CreatedAt: time.Now().UTC()}
	out := make([]pos.OrderItem, 0, len(items))
	var total int64
	for _, it := range items {
		f.nextItemID++
		it.ID = f.nextItemID
		it.OrderID = o.ID
		total += int64(it.Quantity) * it.SellingPriceCents
		out = append(out, it)
	}
	o.TotalCents = total
	f.orders[o.ID] = o
	f.items[o.ID] = out
	return o, out, nil
}

func (f *fakeStore) GetOrder(_ context.Context, id int64) (pos.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return pos.Order{}, pos.NotFoundf("order %d not found", id)
	}
	return o, nil
}

func (f *fakeStore) ListOrders(_ context.Context, status pos.Status, _ int) ([]pos.Order, error) {
	var out []pos.Order
	for _, o := range f.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) ListItems(_ context.Context, orderID int64) ([]pos.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeStore) GetItem(_ context.Context, orderID, itemID int64) (pos.OrderItem, error) {
	for _, it := range f.items[orderID] {
		if it.ID == itemID {
			return it, nil
		}
	}
	return pos.OrderItem{}, pos.NotFoundf("order item %d not found in order %d", itemID, orderID)
}

func (f *fakeStore) UpdateItem(_ context.Context, orderID, itemID int64, qty int, priceCents int64) (pos.OrderItem, error) {
	items := f.items[orderID]
	for i, it := range items {
		if it.ID != itemID {
			continue
		}
		delta := qty - it.Quantity
		if delta > 0 {
			if f.stock[it.ProductID] < delta {
				return pos.OrderItem{}, pos.OutOfStockf("out of stock for product %d", it.ProductID)
			}
			f.stock[it.ProductID] -= delta
		} else {
			f.stock[it.ProductID] += -delta
		}
		o := f.orders[orderID]
		o.TotalCents += int64(qty)*priceCents - int64(it.Quantity)*it.SellingPriceCents
		f.orders[orderID] = o
		it.Quantity = qty
		it.SellingPriceCents = priceCents
		items[i] = it
		return it, nil
	}
	return pos.OrderItem{}, pos.NotFoundf("order item %d not found in order %d", itemID, orderID)
}

func (f *fakeStore) SetStatus(_ context.Context, id int64, from, to pos.Status) error {
	o, ok := f.orders[id]
	if !ok {
		return pos.NotFoundf("order %d not found", id)
	}
	if o.Status != from {
		return pos.InvalidTransitionf("order %d is %s, cannot transition to %s", id, o.Status, to)
	}
	o.Status = to
	f.orders[id] = o
	f.transitions++
	return nil
}

func (f *fakeStore) CancelOrder(_ context.Context, id int64) ([]pos.OrderItem, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, pos.NotFoundf("order %d not found", id)
	}
	if !pos.CanTransition(o.Status, pos.StatusCancelled) {
		return nil, pos.InvalidTransitionf("order %d is %s", id, o.Status)
	}
	items := f.items[id]
	for _, it := range items {
		f.stock[it.ProductID] += it.Quantity
	}
	o.Status = pos.StatusCancelled
	f.orders[id] = o
	f.transitions++
	return items, nil
}

type fakeRenderer struct {
	calls   int
	lastReq invoice.Request
	doc     invoice.Document
	err     error
}

func (f *fakeRenderer) Render(_ context.Context, req invoice.Request) (invoice.Document, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return invoice.Document{}, f.err
	}
	return f.doc, nil
}

// ---- helpers ----

type fixture struct {
	svc      *order.Service
	catalog  *fakeCatalog
	ledger   *fakeLedger
	store    *fakeStore
	renderer *fakeRenderer
}

// newFixture shares one stock map between ledger and store so the
// validation-phase view matches the commit-phase view.
func newFixture(products map[int64]pos.Product, stock map[int64]int) *fixture {
	catalog := &fakeCatalog{byID: products}
	ledger := &fakeLedger{stock: stock}
	store := newFakeStore(stock)
	renderer := &fakeRenderer{doc: invoice.Document{OrderID: 1, Base64PDF: "JVBERi0xLjQ="}}
	return &fixture{
		svc: &order.Service{
			Catalog:  catalog,
			Ledger:   ledger,
			Store:    store,
			Invoicer: renderer,
			Log:      zap.NewNop(),
		},
		catalog:  catalog,
		ledger:   ledger,
		store:    store,
		renderer: renderer,
	}
}

func oneProduct(mrpCents int64) map[int64]pos.Product {
	return map[int64]pos.Product{
		1: {ID: 1, Barcode: "8901234567890", Name: "Almond Biscotti", MrpCents: mrpCents},
	}
}

// ---- create ----

func TestCreate_ReservesStockAndComputesTotal(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})

	o, items, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 1, Quantity: 2, SellingPriceCents: 90},
	})

	require.NoError(t, err)
	assert.Equal(t, pos.StatusCreated, o.Status)
	assert.Equal(t, int64(180), o.TotalCents)
	require.Len(t, items, 1)
	assert.Equal(t, o.ID, items[0].OrderID)
	assert.Equal(t, 8, fx.store.stock[1])
}

func TestCreate_MultiItemProcessedInInputOrder(t *testing.T) {
	products := map[int64]pos.Product{
		1: {ID: 1, Barcode: "b1", Name: "P1", MrpCents: 100},
		2: {ID: 2, Barcode: "b2", Name: "P2", MrpCents: 200},
	}
	fx := newFixture(products, map[int64]int{1: 5, 2: 5})

	o, items, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 2, Quantity: 1, SellingPriceCents: 200},
		{ProductID: 1, Quantity: 3, SellingPriceCents: 50},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(350), o.TotalCents)
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].ProductID)
	assert.Equal(t, int64(1), items[1].ProductID)
	assert.Equal(t, 2, fx.store.stock[1])
	assert.Equal(t, 4, fx.store.stock[2])
}

func TestCreate_PriceAboveMrpRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})

	_, _, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 1, Quantity: 1, SellingPriceCents: 150},
	})

	require.Error(t, err)
	assert.Equal(t, pos.KindValidation, pos.KindOf(err))
	assert.Equal(t, 10, fx.store.stock[1])
	assert.Empty(t, fx.store.orders)
}

func TestCreate_PriceEqualToMrpAllowed(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})

	o, _, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 1, Quantity: 1, SellingPriceCents: 100},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(100), o.TotalCents)
}

func TestCreate_InsufficientStockRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 5})

	_, _, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 1, Quantity: 20, SellingPriceCents: 90},
	})

	require.Error(t, err)
	assert.Equal(t, pos.KindInsufficientStock, pos.KindOf(err))
	assert.Contains(t, err.Error(), "product 1")
	assert.Equal(t, 5, fx.store.stock[1])
	assert.Empty(t, fx.store.orders)
}

func TestCreate_ValidationFailureOnLaterItemIsNoOp(t *testing.T) {
	products := map[int64]pos.Product{
		1: {ID: 1, Name: "P1", MrpCents: 100},
		2: {ID: 2, Name: "P2", MrpCents: 100},
	}
	fx := newFixture(products, map[int64]int{1: 10, 2: 0})

	_, _, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 1, Quantity: 2, SellingPriceCents: 90},
		{ProductID: 2, Quantity: 1, SellingPriceCents: 90}, // out of stock
	})

	require.Error(t, err)
	assert.Equal(t, pos.KindInsufficientStock, pos.KindOf(err))
	// nothing committed for item 1 either
	assert.Equal(t, 10, fx.store.stock[1])
	assert.Empty(t, fx.store.orders)
	assert.Empty(t, fx.store.items)
}

func TestCreate_CommitRaceRollsBackWholeOrder(t *testing.T) {
	products := map[int64]pos.Product{
		1: {ID: 1, Name: "P1", MrpCents: 100},
		2: {ID: 2, Name: "P2", MrpCents: 100},
	}
	// ledger sees plenty, store sees a concurrent buyer drained product 2
	fx := newFixture(products, map[int64]int{1: 10, 2: 10})
	fx.ledger.stock = map[int64]int{1: 10, 2: 10}
	fx.store.stock = map[int64]int{1: 10, 2: 0}

	_, _, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 1, Quantity: 2, SellingPriceCents: 90},
		{ProductID: 2, Quantity: 1, SellingPriceCents: 90},
	})

	require.Error(t, err)
	assert.Equal(t, pos.KindOutOfStock, pos.KindOf(err))
	// item 1's reservation must not survive the failed commit
	assert.Equal(t, 10, fx.store.stock[1])
	assert.Empty(t, fx.store.orders)
}

func TestCreate_EmptyOrderRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	_, _, err := fx.svc.Create(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, pos.KindValidation, pos.KindOf(err))
}

func TestCreate_NonPositiveQuantityRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	_, _, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 1, Quantity: 0, SellingPriceCents: 90},
	})
	require.Error(t, err)
	assert.Equal(t, pos.KindValidation, pos.KindOf(err))
}

func TestCreate_UnknownProductRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	_, _, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 99, Quantity: 1, SellingPriceCents: 90},
	})
	require.Error(t, err)
	assert.Equal(t, pos.KindNotFound, pos.KindOf(err))
}

func TestResolveBarcodes(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})

	lines, err := fx.svc.ResolveBarcodes(context.Background(), []order.BarcodeItem{
		{Barcode: "8901234567890", Quantity: 2, SellingPriceCents: 90},
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].ProductID)

	_, err = fx.svc.ResolveBarcodes(context.Background(), []order.BarcodeItem{
		{Barcode: "0000000000000", Quantity: 1, SellingPriceCents: 10},
	})
	require.Error(t, err)
	assert.Equal(t, pos.KindNotFound, pos.KindOf(err))
}

// ---- finalize ----

func createdOrder(t *testing.T, fx *fixture, qty int, priceCents int64) pos.Order {
	t.Helper()
	o, _, err := fx.svc.Create(context.Background(), []order.CreateItem{
		{ProductID: 1, Quantity: qty, SellingPriceCents: priceCents},
	})
	require.NoError(t, err)
	return o
}

func TestFinalize_RendersInvoiceAndFlipsStatus(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 2, 90)
	fx.renderer.doc = invoice.Document{OrderID: o.ID, Base64PDF: "JVBERi0xLjQ="}

	doc, err := fx.svc.Finalize(context.Background(), o.ID)

	require.NoError(t, err)
	assert.Equal(t, o.ID, doc.OrderID)
	assert.NotEmpty(t, doc.Base64PDF)

	got, _ := fx.store.GetOrder(context.Background(), o.ID)
	assert.Equal(t, pos.StatusInvoiced, got.Status)

	// request payload carries the order summary and each line
	assert.Equal(t, o.ID, fx.renderer.lastReq.Order.ID)
	require.Len(t, fx.renderer.lastReq.Items, 1)
	assert.Equal(t, int64(1), fx.renderer.lastReq.Items[0].ProductID)
	assert.Equal(t, 2, fx.renderer.lastReq.Items[0].Quantity)
	assert.Equal(t, []string{"Almond Biscotti"}, fx.renderer.lastReq.ProductNames)
}

func TestFinalize_RemoteFailureLeavesOrderCreated(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 1, 90)
	fx.renderer.err = pos.InvoiceFailedf("invoice generation failed on service: render crashed")

	_, err := fx.svc.Finalize(context.Background(), o.ID)

	require.Error(t, err)
	assert.Equal(t, pos.KindInvoiceFailed, pos.KindOf(err))
	assert.Contains(t, err.Error(), "render crashed")

	got, _ := fx.store.GetOrder(context.Background(), o.ID)
	assert.Equal(t, pos.StatusCreated, got.Status)
	assert.Zero(t, fx.store.transitions)
}

func TestFinalize_RetryAfterFailureSucceedsOnce(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 1, 90)

	fx.renderer.err = pos.InvoiceFailedf("invoice generation failed on service: 500")
	_, err := fx.svc.Finalize(context.Background(), o.ID)
	require.Error(t, err)

	fx.renderer.err = nil
	fx.renderer.doc = invoice.Document{OrderID: o.ID, Base64PDF: "JVBERi0xLjQ="}
	doc, err := fx.svc.Finalize(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, doc.OrderID)

	got, _ := fx.store.GetOrder(context.Background(), o.ID)
	assert.Equal(t, pos.StatusInvoiced, got.Status)
	assert.Equal(t, 1, fx.store.transitions)
	assert.Equal(t, 2, fx.renderer.calls)
}

func TestFinalize_AlreadyInvoicedRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 1, 90)

	_, err := fx.svc.Finalize(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = fx.svc.Finalize(context.Background(), o.ID)
	require.Error(t, err)
	assert.Equal(t, pos.KindInvalidTransition, pos.KindOf(err))
	// no second render attempt for a terminal order
	assert.Equal(t, 1, fx.renderer.calls)
}

func TestFinalize_CancelledOrderRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 1, 90)

	_, err := fx.svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = fx.svc.Finalize(context.Background(), o.ID)
	require.Error(t, err)
	assert.Equal(t, pos.KindInvalidTransition, pos.KindOf(err))
	assert.Zero(t, fx.renderer.calls)
}

func TestFinalize_UnknownOrder(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	_, err := fx.svc.Finalize(context.Background(), 404)
	require.Error(t, err)
	assert.Equal(t, pos.KindNotFound, pos.KindOf(err))
}

// ---- cancel ----

func TestCancel_RestocksAndFlipsStatus(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 5, 90)
	require.Equal(t, 5, fx.store.stock[1])

	items, err := fx.svc.Cancel(context.Background(), o.ID)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 15, fx.store.stock[1])

	got, _ := fx.store.GetOrder(context.Background(), o.ID)
	assert.Equal(t, pos.StatusCancelled, got.Status)
}

func TestCancel_TwiceRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 5, 90)

	_, err := fx.svc.Cancel(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, 15, fx.store.stock[1])

	_, err = fx.svc.Cancel(context.Background(), o.ID)
	require.Error(t, err)
	assert.Equal(t, pos.KindInvalidTransition, pos.KindOf(err))
	// double cancel must not double restock
	assert.Equal(t, 15, fx.store.stock[1])
}

func TestCancel_InvoicedOrderRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 2, 90)

	_, err := fx.svc.Finalize(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = fx.svc.Cancel(context.Background(), o.ID)
	require.Error(t, err)
	assert.Equal(t, pos.KindInvalidTransition, pos.KindOf(err))
	assert.Equal(t, 8, fx.store.stock[1])
}

// ---- item update ----

func TestUpdateItem_AdjustsReservationAndTotal(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 2, 90)
	items, _ := fx.store.ListItems(context.Background(), o.ID)

	it, err := fx.svc.UpdateItem(context.Background(), o.ID, items[0].ID, 4, 80)

	require.NoError(t, err)
	assert.Equal(t, 4, it.Quantity)
	assert.Equal(t, int64(80), it.SellingPriceCents)
	assert.Equal(t, 6, fx.store.stock[1])

	got, _ := fx.store.GetOrder(context.Background(), o.ID)
	assert.Equal(t, int64(320), got.TotalCents)
}

func TestUpdateItem_PriceAboveMrpRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 2, 90)
	items, _ := fx.store.ListItems(context.Background(), o.ID)

	_, err := fx.svc.UpdateItem(context.Background(), o.ID, items[0].ID, 2, 120)
	require.Error(t, err)
	assert.Equal(t, pos.KindValidation, pos.KindOf(err))
	assert.Equal(t, 8, fx.store.stock[1])
}

func TestUpdateItem_RejectedOnceOrderLeftCreated(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o := createdOrder(t, fx, 2, 90)
	items, _ := fx.store.ListItems(context.Background(), o.ID)

	_, err := fx.svc.Finalize(context.Background(), o.ID)
	require.NoError(t, err)

	_, err = fx.svc.UpdateItem(context.Background(), o.ID, items[0].ID, 3, 90)
	require.Error(t, err)
	assert.Equal(t, pos.KindInvalidTransition, pos.KindOf(err))
}

// ---- list ----

func TestList_FiltersByStatus(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	o1 := createdOrder(t, fx, 1, 90)
	createdOrder(t, fx, 1, 90)
	_, err := fx.svc.Cancel(context.Background(), o1.ID)
	require.NoError(t, err)

	created, err := fx.svc.List(context.Background(), "CREATED", 10)
	require.NoError(t, err)
	assert.Len(t, created, 1)

	cancelled, err := fx.svc.List(context.Background(), "CANCELLED", 10)
	require.NoError(t, err)
	assert.Len(t, cancelled, 1)

	all, err := fx.svc.List(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestList_UnknownStatusRejected(t *testing.T) {
	fx := newFixture(oneProduct(100), map[int64]int{1: 10})
	_, err := fx.svc.List(context.Background(), "SHIPPED", 10)
	require.Error(t, err)
	assert.Equal(t, pos.KindValidation, pos.KindOf(err))
}
