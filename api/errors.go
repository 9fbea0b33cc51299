package api

import (
	"errors"
	"net/http"

	"github.com/vitwit/storefront/store"
	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Kind   types.ErrorKind   `json:"kind,omitempty"`
	TxHash string            `json:"txHash,omitempty"`
	Fields utils.FieldErrors `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// statusOf maps store, validation and payment errors to an HTTP status.
// Zero means the error is unexpected.
func statusOf(err error) int {
	var fields utils.FieldErrors
	switch {
	case errors.As(err, &fields):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateWishlist), errors.Is(err, store.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidRating), errors.Is(err, store.ErrInvalidStatus):
		return http.StatusBadRequest
	}

	switch types.KindOf(err) {
	case types.ErrProviderError:
		return http.StatusBadGateway
	case types.ErrConfirmationTimeout:
		return http.StatusTooEarly
	case types.ErrStatusMismatch, types.ErrTransactionFailed, types.ErrSenderMismatch,
		types.ErrReceiverMismatch, types.ErrAmountInsufficient:
		return http.StatusUnprocessableEntity
	}
	return 0
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == 0 {
		h.log.Error("request failed", map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"err":    err,
		})
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := errorResponse{Error: err.Error()}
	var fields utils.FieldErrors
	if errors.As(err, &fields) {
		resp.Error = "validation failed"
		resp.Fields = fields
	}
	var pe *types.PaymentError
	if errors.As(err, &pe) {
		resp.Error = pe.Message
		resp.Kind = pe.Kind
		resp.TxHash = pe.TxHash
	}
	respondJSON(w, status, resp)
}
