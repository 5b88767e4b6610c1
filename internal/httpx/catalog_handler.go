package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/prasetyo/pos-orders/internal/pos"
)

// CatalogHandler serves the product catalog and the inventory endpoints the
// order workflows depend on.
type CatalogHandler struct {
	Products  *pos.CatalogRepo
	Inventory *pos.InventoryRepo
	Log       *zap.Logger
}

type CreateProductReq struct {
	Barcode  string `json:"barcode"`
	Name     string `json:"name"`
	MrpCents int64  `json:"mrp_cents"`
	ImageURL string `json:"img_url"`
}

type SetInventoryReq struct {
	Quantity int `json:"quantity"`
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Post("/products", h.createProduct)
	r.Get("/products/barcode/{barcode}", h.getByBarcode)
	r.Get("/inventory", h.listInventory)
	r.Get("/inventory/{productID}", h.getInventory)
	r.Put("/inventory/{productID}", h.setInventory)
}

func productID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		return 0, pos.Validationf("invalid product id")
	}
	return id, nil
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.List(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Products.Create(ctx, pos.Product{
		Barcode:  req.Barcode,
		Name:     req.Name,
		MrpCents: req.MrpCents,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	h.Log.Info("product created", zap.Int64("product_id", p.ID), zap.String("barcode", p.Barcode))
	writeJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) getByBarcode(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Products.FindByBarcode(ctx, chi.URLParam(r, "barcode"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) listInventory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Inventory.List(ctx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *CatalogHandler) getInventory(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	inv, err := h.Inventory.FindByProductID(ctx, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *CatalogHandler) setInventory(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req SetInventoryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	inv, err := h.Inventory.SetQuantity(ctx, id, req.Quantity)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
