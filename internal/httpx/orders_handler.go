package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/prasetyo/pos-orders/internal/kafka"
	"github.com/prasetyo/pos-orders/internal/order"
	"github.com/prasetyo/pos-orders/internal/pos"
	"github.com/prasetyo/pos-orders/internal/redisx"
)

type OrdersHandler struct {
	Svc      *order.Service
	Producer *kafkax.Producer
	Redis    *redis.Client
	Log      *zap.Logger
	Service  string
}

type CreateOrderReq struct {
	Items []order.CreateItem `json:"items"`
}

type CreateOrderByBarcodeReq struct {
	Items []order.BarcodeItem `json:"items"`
}

type OrderResp struct {
	Order pos.Order       `json:"order"`
	Items []pos.OrderItem `json:"items"`
}

type UpdateItemReq struct {
	Quantity          int   `json:"quantity"`
	SellingPriceCents int64 `json:"selling_price_cents"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/barcode", h.createOrderByBarcode)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/invoice", h.finalizeOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Put("/orders/{id}/items/{itemID}", h.updateItem)
}

func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, pos.Validationf("invalid order id")
	}
	return id, nil
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, items, err := h.Svc.Create(ctx, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, o.ID, o.Status)
	h.publishCreated(o, items, r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusCreated, OrderResp{Order: o, Items: items})
}

func (h *OrdersHandler) createOrderByBarcode(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderByBarcodeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	lines, err := h.Svc.ResolveBarcodes(ctx, req.Items)
	if err != nil {
		writeErr(w, err)
		return
	}
	o, items, err := h.Svc.Create(ctx, lines)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, o.ID, o.Status)
	h.publishCreated(o, items, r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusCreated, OrderResp{Order: o, Items: items})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.Svc.List(ctx, r.URL.Query().Get("status"), limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, items, err := h.Svc.Get(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OrderResp{Order: o, Items: items})
}

// getOrderStatus serves from the Redis cache first, DB on miss.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, _, err := h.Svc.Get(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.cacheStatus(ctx, o.ID, o.Status)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status})
}

func (h *OrdersHandler) finalizeOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	doc, err := h.Svc.Finalize(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, id, pos.StatusInvoiced)
	h.publish(pos.TopicOrderInvoiced, pos.EventOrderInvoiced, id,
		pos.OrderInvoicedPayload{OrderID: id}, r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusOK, doc)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.Svc.Cancel(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}

	h.cacheStatus(ctx, id, pos.StatusCancelled)
	h.publish(pos.TopicOrderCancelled, pos.EventOrderCancelled, id,
		pos.OrderCancelledPayload{OrderID: id, Restocked: toItemLines(items)}, r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": pos.StatusCancelled})
}

func (h *OrdersHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		writeErr(w, pos.Validationf("invalid item id"))
		return
	}

	var req UpdateItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	it, err := h.Svc.UpdateItem(ctx, id, itemID, req.Quantity, req.SellingPriceCents)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, id int64, status pos.Status) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	body, _ := json.Marshal(map[string]any{"status": status})
	_ = h.Redis.Set(ctx, key, body, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publishCreated(o pos.Order, items []pos.OrderItem, trace string) {
	h.publish(pos.TopicOrderCreated, pos.EventOrderCreated, o.ID, pos.OrderCreatedPayload{
		OrderID:    o.ID,
		Items:      toItemLines(items),
		TotalCents: o.TotalCents,
	}, trace)
}

func (h *OrdersHandler) publish(topic, eventType string, orderID int64, payload any, trace string) {
	ev := pos.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       kafkax.MustMarshal(payload),
	}
	h.Producer.Publish(topic, pos.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func toItemLines(items []pos.OrderItem) []pos.ItemLine {
	out := make([]pos.ItemLine, 0, len(items))
	for _, it := range items {
		out = append(out, pos.ItemLine{
			ProductID:         it.ProductID,
			Quantity:          it.Quantity,
			SellingPriceCents: it.SellingPriceCents,
		})
	}
	return out
}
