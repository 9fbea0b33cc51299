package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/store"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	store     store.Store
	verifier  PaymentVerifier
	publisher events.Publisher
	health    HealthChecker
	log       logger.Logger
	metrics   metrics.Recorder
	baseURL   string
	decimals  int32
}

func newHandlers(deps Dependencies) *handlers {
	h := &handlers{
		store:     deps.Store,
		verifier:  deps.Verifier,
		publisher: deps.Publisher,
		health:    deps.Health,
		log:       deps.Logger,
		metrics:   deps.Metrics,
		baseURL:   strings.TrimRight(deps.PublicBaseURL, "/"),
		decimals:  types.UmiDevnet.NativeCurrency.Decimals,
	}
	if h.log == nil {
		h.log = logger.NoopLogger{}
	}
	if h.metrics == nil {
		h.metrics = metrics.NoopRecorder{}
	}
	if h.publisher == nil {
		h.publisher = events.NoopPublisher{}
	}
	return h
}

// decode strictly decodes and validates the request body into v.
func decode(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return utils.DecodeJSON(data, v)
}

// decodeOrReject writes a 400 for malformed bodies and reports whether the
// handler may continue.
func (h *handlers) decodeOrReject(w http.ResponseWriter, r *http.Request, v any) bool {
	err := decode(r, v)
	if err == nil {
		return true
	}
	var fields utils.FieldErrors
	if errors.As(err, &fields) {
		h.fail(w, r, err)
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return false
}

func sellerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(SellerHeader))
}

func requireSeller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := sellerID(r)
	if id == "" {
		writeError(w, http.StatusUnauthorized, SellerHeader+" header is required")
		return "", false
	}
	return id, true
}

type productRequest struct {
	Name          string          `json:"name" validate:"required"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Images        []string        `json:"images" validate:"omitempty,dive,url"`
	Features      []string        `json:"features"`
	WalletAddress string          `json:"walletAddress" validate:"required,evmaddress"`
}

func (req productRequest) check(decimals int32) error {
	if !req.Price.IsPositive() {
		return utils.FieldErrors{"price": "must be greater than 0"}
	}
	if _, err := utils.ToBaseUnits(req.Price, decimals); err != nil {
		return utils.FieldErrors{"price": fmt.Sprintf("must have at most %d decimal places", decimals)}
	}
	return nil
}

func (req productRequest) product(id, seller string) *types.Product {
	return &types.Product{
		ID:            id,
		SellerID:      seller,
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Price:         req.Price,
		Images:        req.Images,
		Features:      req.Features,
		WalletAddress: req.WalletAddress,
	}
}

type productView struct {
	*types.Product
	ShareURL string `json:"shareUrl"`
}

func (h *handlers) view(p *types.Product) productView {
	p.Images = p.Gallery()
	if p.Features == nil {
		p.Features = []string{}
	}
	return productView{Product: p, ShareURL: h.baseURL + "/" + p.UniqueCode}
}

func (h *handlers) createProduct(w http.ResponseWriter, r *http.Request) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !h.decodeOrReject(w, r, &req) {
		return
	}
	if err := req.check(h.decimals); err != nil {
		h.fail(w, r, err)
		return
	}

	p := req.product("", seller)
	if err := h.store.CreateProduct(r.Context(), p); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("product created", map[string]any{"product_id": p.ID, "seller_id": seller, "code": p.UniqueCode})
	respondJSON(w, http.StatusCreated, h.view(p))
}

func (h *handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.ProductByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(p))
}

func (h *handlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return
	}
	var req productRequest
	if !h.decodeOrReject(w, r, &req) {
		return
	}
	if err := req.check(h.decimals); err != nil {
		h.fail(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.store.UpdateProduct(r.Context(), req.product(id, seller)); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.store.ProductByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.view(p))
}

func (h *handlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteProduct(r.Context(), seller, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("product deleted", map[string]any{"product_id": id, "seller_id": seller})
	w.WriteHeader(http.StatusNoContent)
}

type productPageResponse struct {
	Product productView       `json:"product"`
	Reviews []types.Review    `json:"reviews"`
	Stats   types.ReviewStats `json:"stats"`
}

// productPage serves everything the public /p/{code} page renders.
func (h *handlers) productPage(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.ProductByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	reviews, err := h.store.ReviewsByProduct(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, productPageResponse{
		Product: h.view(p),
		Reviews: reviews,
		Stats:   types.NewReviewStats(reviews),
	})
}

type reviewsResponse struct {
	Reviews []types.Review    `json:"reviews"`
	Stats   types.ReviewStats `json:"stats"`
}

func (h *handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.ProductByID(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	reviews, err := h.store.ReviewsByProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, reviewsResponse{Reviews: reviews, Stats: types.NewReviewStats(reviews)})
}

type reviewRequest struct {
	CustomerName  string `json:"customerName" validate:"required"`
	CustomerEmail string `json:"customerEmail" validate:"required,basicemail"`
	Rating        int    `json:"rating" validate:"min=1,max=5"`
	Comment       string `json:"comment"`
}

func (h *handlers) createReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if !h.decodeOrReject(w, r, &req) {
		return
	}
	review := &types.Review{
		ProductID:     chi.URLParam(r, "id"),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		Rating:        req.Rating,
		Comment:       req.Comment,
	}
	if err := h.store.CreateReview(r.Context(), review); err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, review)
}

type wishlistRequest struct {
	Email string `json:"email" validate:"required,basicemail"`
}

func (h *handlers) addToWishlist(w http.ResponseWriter, r *http.Request) {
	var req wishlistRequest
	if !h.decodeOrReject(w, r, &req) {
		return
	}
	entry, err := h.store.AddToWishlist(r.Context(), chi.URLParam(r, "id"), req.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *handlers) sellerProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ProductsBySeller(r.Context(), chi.URLParam(r, "sellerID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views := make([]productView, 0, len(list))
	for i := range list {
		views = append(views, h.view(&list[i]))
	}
	respondJSON(w, http.StatusOK, views)
}

// ownSeller enforces that private seller listings are only read by that
// seller.
func ownSeller(w http.ResponseWriter, r *http.Request) (string, bool) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return "", false
	}
	if seller != chi.URLParam(r, "sellerID") {
		writeError(w, http.StatusForbidden, "seller mismatch")
		return "", false
	}
	return seller, true
}

func (h *handlers) sellerOrders(w http.ResponseWriter, r *http.Request) {
	seller, ok := ownSeller(w, r)
	if !ok {
		return
	}
	list, err := h.store.OrdersBySeller(r.Context(), seller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

type wishlistsResponse struct {
	Wishlists []types.Wishlist    `json:"wishlists"`
	Stats     types.WishlistStats `json:"stats"`
}

func (h *handlers) sellerWishlists(w http.ResponseWriter, r *http.Request) {
	seller, ok := ownSeller(w, r)
	if !ok {
		return
	}
	list, err := h.store.WishlistsBySeller(r.Context(), seller)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wishlistsResponse{
		Wishlists: list,
		Stats:     types.NewWishlistStats(list, r.URL.Query().Get("productId")),
	})
}

func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.store.OrderByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

type statusRequest struct {
	Status        types.OrderStatus   `json:"status" validate:"required"`
	PaymentStatus types.PaymentStatus `json:"paymentStatus"`
}

func (h *handlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decodeOrReject(w, r, &req) {
		return
	}

	ctx := r.Context()
	id := chi.URLParam(r, "id")
	order, err := h.store.OrderByID(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// Orders of other sellers look missing.
	p, err := h.store.ProductByID(ctx, order.ProductID)
	if err != nil || p.SellerID != seller {
		if err == nil || errors.Is(err, store.ErrNotFound) {
			err = store.ErrNotFound
		}
		h.fail(w, r, err)
		return
	}

	if err := h.store.UpdateOrderStatus(ctx, id, req.Status, req.PaymentStatus); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.store.OrderByID(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("order status updated", map[string]any{
		"order_id": id,
		"status":   string(updated.Status),
		"payment":  string(updated.PaymentStatus),
	})
	respondJSON(w, http.StatusOK, updated)
}
