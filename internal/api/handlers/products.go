package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/receipt-tracker/internal/api/middleware"
	"github.com/dvloznov/receipt-tracker/internal/normalize"
)

// AliasWriter pins alias keys to products in the catalog.
type AliasWriter interface {
	CreateAlias(ctx context.Context, rawKey, productID string) error
	Exists(ctx context.Context, productID string) (bool, error)
}

// ProductsHandler handles product-related endpoints.
type ProductsHandler struct {
	aliases AliasWriter
	log     zerolog.Logger
}

// NewProductsHandler creates a new products handler.
func NewProductsHandler(aliases AliasWriter, log zerolog.Logger) *ProductsHandler {
	return &ProductsHandler{
		aliases: aliases,
		log:     log,
	}
}

// CreateAlias handles POST /api/products/{id}/alias. The raw text is reduced
// to its canonical key before being pinned, so any spelling that normalizes
// to the same key will resolve to this product from now on.
func (h *ProductsHandler) CreateAlias(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()

	var req struct {
		RawText string `json:"raw_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	key := normalize.ProductKey(req.RawText)
	if key == "" {
		middleware.WriteError(w, http.StatusBadRequest, "raw_text is required")
		return
	}

	exists, err := h.aliases.Exists(ctx, productID)
	if err != nil {
		h.log.Error().Err(err).Str("product_id", productID).Msg("Failed to check product")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check product")
		return
	}
	if !exists {
		middleware.WriteError(w, http.StatusNotFound, "Product not found")
		return
	}

	if err := h.aliases.CreateAlias(ctx, key, productID); err != nil {
		h.log.Error().Err(err).Str("product_id", productID).Str("alias_key", key).Msg("Failed to create alias")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create alias")
		return
	}

	h.log.Info().Str("product_id", productID).Str("alias_key", key).Msg("Alias created")

	middleware.WriteJSON(w, http.StatusCreated, map[string]string{
		"product_id": productID,
		"alias_key":  key,
	})
}
