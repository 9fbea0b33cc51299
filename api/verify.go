package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/storefront/events"
	"github.com/vitwit/storefront/metrics"
	"github.com/vitwit/storefront/store"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

// PaymentVerifier re-reads a submitted transaction from the chain and checks
// it against the payment intent. verification.VerificationService satisfies
// it.
type PaymentVerifier interface {
	Verify(ctx context.Context, intent types.PaymentIntent, payer common.Address, hash common.Hash) (*types.VerificationResult, error)
}

type verifyOrderRequest struct {
	ProductID       string                `json:"productId" validate:"required"`
	TxHash          string                `json:"txHash" validate:"required,txhash"`
	PayerAddress    string                `json:"payerAddress" validate:"required,evmaddress"`
	CustomerName    string                `json:"customerName" validate:"required"`
	CustomerEmail   string                `json:"customerEmail" validate:"required,basicemail"`
	CustomerPhone   string                `json:"customerPhone"`
	ShippingAddress types.ShippingAddress `json:"shippingAddress"`
	Notes           string                `json:"notes"`
}

type verifyOrderResponse struct {
	Order        *types.Order              `json:"order"`
	Created      bool                      `json:"created"`
	Verification *types.VerificationResult `json:"verification,omitempty"`
}

// verifyOrder checks a buyer-submitted transaction against the product it
// claims to pay for and records the order. Resubmitting a known hash returns
// the existing order only to the same buyer of the same product; anyone else
// gets a conflict without the order.
func (h *handlers) verifyOrder(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "payment verification is not configured")
		return
	}
	var req verifyOrderRequest
	if !h.decodeOrReject(w, r, &req) {
		return
	}

	ctx := r.Context()
	p, err := h.store.ProductByID(ctx, req.ProductID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if existing, err := h.store.OrderByTxHash(ctx, req.TxHash); err == nil {
		h.resubmitted(w, r, existing, p.ID, req, nil)
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		h.fail(w, r, err)
		return
	}

	recipient, err := utils.ParseAddress(p.WalletAddress)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	payer := common.HexToAddress(req.PayerAddress)
	intent := types.PaymentIntent{
		ProductID:      p.ID,
		Recipient:      recipient,
		AmountRequired: p.Price,
		Payer:          &payer,
	}

	verified, err := h.verifier.Verify(ctx, intent, payer, common.HexToHash(req.TxHash))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	order, err := h.store.CreateOrder(ctx, types.OrderRequest{
		ProductID:       p.ID,
		ProductName:     p.Name,
		ProductPrice:    p.Price,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		ShippingAddress: req.ShippingAddress,
		Status:          types.OrderPaid,
		PaymentStatus:   types.PaymentCompleted,
		WalletAddress:   p.WalletAddress,
		PayerAddress:    payer.Hex(),
		Notes:           req.Notes,
		TxHash:          req.TxHash,
	})
	if errors.Is(err, store.ErrDuplicateOrder) {
		// A concurrent request won the insert.
		if existing, lookupErr := h.store.OrderByTxHash(ctx, req.TxHash); lookupErr == nil {
			h.resubmitted(w, r, existing, p.ID, req, verified)
			return
		}
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.metrics.IncCounter(metrics.OrderCreated, map[string]string{"state": "api"})
	h.log.Info("order created from verified payment", map[string]any{
		"order_id":   order.ID,
		"product_id": p.ID,
		"tx_hash":    req.TxHash,
	})

	paid := events.OrderPaidEvent{
		OrderID:       order.ID,
		ProductID:     p.ID,
		SellerID:      p.SellerID,
		TxHash:        req.TxHash,
		Amount:        verified.AmountConfirmed,
		PayerAddress:  order.PayerAddress,
		WalletAddress: order.WalletAddress,
		CustomerEmail: order.CustomerEmail,
		PaidAt:        verified.VerifiedAt,
	}
	if err := events.Emit(context.WithoutCancel(ctx), h.publisher, events.TypeOrderPaid, paid); err != nil {
		h.log.Warn("failed to publish order event", map[string]any{"order_id": order.ID, "err": err})
	}

	respondJSON(w, http.StatusCreated, verifyOrderResponse{Order: order, Created: true, Verification: verified})
}

// resubmitted answers a request whose hash already has an order. Tx hashes
// and addresses are public on chain, so the order is only returned when the
// product, payer and customer email all match it.
func (h *handlers) resubmitted(w http.ResponseWriter, r *http.Request, existing *types.Order, productID string, req verifyOrderRequest, verified *types.VerificationResult) {
	if existing.ProductID != productID ||
		!strings.EqualFold(existing.PayerAddress, req.PayerAddress) ||
		!strings.EqualFold(existing.CustomerEmail, strings.TrimSpace(req.CustomerEmail)) {
		h.log.Warn("transaction already settles another order", map[string]any{
			"tx_hash":    req.TxHash,
			"product_id": productID,
		})
		h.fail(w, r, store.ErrDuplicateOrder)
		return
	}
	respondJSON(w, http.StatusOK, verifyOrderResponse{Order: existing, Verification: verified})
}
