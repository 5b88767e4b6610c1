package pos

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderInvoiced  = "OrderInvoiced"
	EventOrderCancelled = "OrderCancelled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "pos-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type ItemLine struct {
	ProductID         int64 `json:"product_id"`
	Quantity          int   `json:"quantity"`
	SellingPriceCents int64 `json:"selling_price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    int64      `json:"order_id"`
	Items      []ItemLine `json:"items"`
	TotalCents int64      `json:"total_cents"`
}

type OrderInvoicedPayload struct {
	OrderID int64 `json:"order_id"`
}

type OrderCancelledPayload struct {
	OrderID   int64      `json:"order_id"`
	Restocked []ItemLine `json:"restocked,omitempty"`
}
