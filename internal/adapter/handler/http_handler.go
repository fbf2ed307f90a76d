package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/cart-store/internal/core/domain"
	"github.com/rl1809/cart-store/internal/core/service"
	"github.com/rl1809/cart-store/internal/port"
)

// IdentityHeader carries the caller's identity, set by the authentication
// layer in front of this service. Requests without it are anonymous.
const IdentityHeader = "X-User-ID"

// CartCountHeader reports the cart's item count after the request.
const CartCountHeader = "X-Cart-Count"

type HTTPHandler struct {
	catalog   *service.CatalogView
	checkout  *service.CheckoutService
	slots     port.SlotRepository
	storeOpts []service.CartOption
	logger    *zap.Logger
}

func NewHTTPHandler(catalog *service.CatalogView, checkout *service.CheckoutService, slots port.SlotRepository, logger *zap.Logger, storeOpts ...service.CartOption) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		catalog:   catalog,
		checkout:  checkout,
		slots:     slots,
		storeOpts: append(slices.Clip(storeOpts), service.WithLogger(logger)),
		logger:    logger,
	}
}

// Routes registers every endpoint on a new mux.
func (h *HTTPHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)
	mux.HandleFunc("GET /api/categories", h.ListCategories)
	mux.HandleFunc("GET /api/cart", h.GetCart)
	mux.HandleFunc("POST /api/cart/items", h.AddItem)
	mux.HandleFunc("PUT /api/cart/items/{id}", h.UpdateQuantity)
	mux.HandleFunc("DELETE /api/cart/items/{id}", h.RemoveItem)
	mux.HandleFunc("DELETE /api/cart", h.ClearCart)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	return mux
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ProductResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Category    string `json:"category"`
	Image       string `json:"image"`
	Description string `json:"description"`
}

type LineItemResponse struct {
	ProductResponse
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

type CartResponse struct {
	Identity  string             `json:"identity,omitempty"`
	Items     []LineItemResponse `json:"items"`
	ItemCount int                `json:"item_count"`
	Subtotal  string             `json:"subtotal"`
	Tax       string             `json:"tax"`
	Total     string             `json:"total"`
}

type ReceiptResponse struct {
	ID        string             `json:"id"`
	Items     []LineItemResponse `json:"items"`
	ItemCount int                `json:"item_count"`
	Subtotal  string             `json:"subtotal"`
	Tax       string             `json:"tax"`
	Total     string             `json:"total"`
	Status    string             `json:"status"`
}

type AddItemHTTPRequest struct {
	ProductID int64 `json:"product_id"`
}

type UpdateQuantityHTTPRequest struct {
	Quantity *json.Number `json:"quantity"`
}

type CheckoutHTTPRequest struct {
	RequestID string `json:"request_id"`
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products := h.catalog.Apply(service.Query{
		Category: q.Get("category"),
		Text:     q.Get("q"),
		Sort:     service.SortKey(q.Get("sort")),
	})

	out := make([]ProductResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	p, found := h.catalog.Find(id)
	if !found {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *HTTPHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := append([]string{service.CategoryAll}, h.catalog.Categories()...)
	writeJSON(w, http.StatusOK, categories)
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store := h.openStore(w, r)
	writeJSON(w, http.StatusOK, toCartResponse(store))
}

func (h *HTTPHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store := h.openStore(w, r)
	p, err := h.catalog.AddToCart(r.Context(), store, req.ProductID)
	switch {
	case errors.Is(err, service.ErrLoginRequired):
		writeError(w, http.StatusUnauthorized, "please login to add items to your cart")
		return
	case errors.Is(err, service.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product not found")
		return
	case err != nil:
		h.logger.Error("add to cart failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}

	h.logger.Info("item added to cart", zap.String("identity", store.Identity()), zap.Int64("product_id", p.ID))
	h.respondCart(w, store)
}

func (h *HTTPHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	quantity, err := strconv.Atoi(req.Quantity.String())
	if err != nil || quantity < 0 {
		writeError(w, http.StatusBadRequest, "quantity must be a non-negative integer")
		return
	}

	store := h.openStore(w, r)
	store.UpdateQuantity(r.Context(), id, quantity)
	h.respondCart(w, store)
}

func (h *HTTPHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	store := h.openStore(w, r)
	store.RemoveItem(r.Context(), id)
	h.respondCart(w, store)
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store := h.openStore(w, r)
	store.ClearCart(r.Context())
	h.respondCart(w, store)
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	store := h.openStore(w, r)
	receipt, err := h.checkout.Checkout(r.Context(), req.RequestID, store)
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal error"

		switch {
		case errors.Is(err, service.ErrLoginRequired):
			status = http.StatusUnauthorized
			message = "please login to checkout"
		case errors.Is(err, service.ErrEmptyCart):
			status = http.StatusBadRequest
			message = "your cart is empty"
		case errors.Is(err, service.ErrDuplicateRequest):
			status = http.StatusConflict
			message = "duplicate request"
		case errors.Is(err, service.ErrCartNotCleared):
			status = http.StatusServiceUnavailable
			message = "cart could not be saved, retry with a new request id"
			h.logger.Error("checkout aborted", zap.String("identity", store.Identity()), zap.Error(err))
		default:
			h.logger.Error("checkout failed", zap.String("identity", store.Identity()), zap.Error(err))
		}

		writeError(w, status, message)
		return
	}

	h.logger.Info("checkout accepted",
		zap.String("identity", receipt.Identity),
		zap.String("receipt_id", receipt.ID),
		zap.String("total", domain.FormatCurrency(receipt.Total)),
	)
	writeJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

// openStore builds the request's CartStore. Its listener keeps the
// X-Cart-Count header in step with every mutation.
func (h *HTTPHandler) openStore(w http.ResponseWriter, r *http.Request) *service.CartStore {
	store := service.NewCartStore(r.Context(), h.slots, r.Header.Get(IdentityHeader), h.storeOpts...)
	setCount := func() {
		w.Header().Set(CartCountHeader, strconv.Itoa(store.TotalItemCount()))
	}
	store.Subscribe(setCount)
	setCount()
	return store
}

func (h *HTTPHandler) respondCart(w http.ResponseWriter, store *service.CartStore) {
	if err := store.Err(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "cart could not be saved")
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(store))
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return 0, false
	}
	return id, true
}

func toProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       domain.FormatCurrency(p.Price),
		Category:    p.Category,
		Image:       p.Image,
		Description: p.Description,
	}
}

func toLineItemResponses(items []domain.LineItem) []LineItemResponse {
	out := make([]LineItemResponse, len(items))
	for i, item := range items {
		out[i] = LineItemResponse{
			ProductResponse: toProductResponse(item.Product),
			Quantity:        item.Quantity,
			LineTotal:       domain.FormatCurrency(item.LineTotal()),
		}
	}
	return out
}

func toCartResponse(store *service.CartStore) CartResponse {
	return CartResponse{
		Identity:  store.Identity(),
		Items:     toLineItemResponses(store.Items()),
		ItemCount: store.TotalItemCount(),
		Subtotal:  domain.FormatCurrency(store.Subtotal()),
		Tax:       domain.FormatCurrency(store.Tax()),
		Total:     domain.FormatCurrency(store.Total()),
	}
}

func toReceiptResponse(r domain.Receipt) ReceiptResponse {
	return ReceiptResponse{
		ID:        r.ID,
		Items:     toLineItemResponses(r.Items),
		ItemCount: r.ItemCount(),
		Subtotal:  domain.FormatCurrency(r.Subtotal),
		Tax:       domain.FormatCurrency(r.Tax),
		Total:     domain.FormatCurrency(r.Total),
		Status:    string(r.Status),
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
