package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prasetyo/pos-orders/internal/pos"
)

// Request is the wire payload for the external invoice renderer.
type Request struct {
	Order        OrderSummary `json:"order"`
	Items        []ItemLine   `json:"items"`
	ProductNames []string     `json:"productNames,omitempty"`
}

type OrderSummary struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

type ItemLine struct {
	ProductID         int64 `json:"productId"`
	Quantity          int   `json:"quantity"`
	SellingPriceCents int64 `json:"sellingPrice"`
}

// Document is the rendered result: the PDF comes back base64-encoded.
type Document struct {
	OrderID   int64  `json:"orderId"`
	Base64PDF string `json:"base64Pdf"`
}

// Client posts render requests to the invoice service. The timeout bounds the
// whole call; a timeout is reported the same way as any transport failure.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

func (c *Client) Render(ctx context.Context, req Request) (Document, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Document{}, pos.InvoiceFailed("failed to serialize invoice request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Document{}, pos.InvoiceFailed("failed to build invoice request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Document{}, pos.InvoiceFailed("failed to connect to invoice service", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Document{}, pos.InvoiceFailed("failed to read invoice response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// surface the remote error text so the caller can decide on retry
		return Document{}, pos.InvoiceFailedf("invoice generation failed on service: %s", strings.TrimSpace(string(respBody)))
	}

	var doc Document
	if err := json.Unmarshal(respBody, &doc); err != nil {
		return Document{}, pos.InvoiceFailed("failed to decode invoice response", err)
	}
	return doc, nil
}
