package httpx

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/logging"
	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

func StatusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidIdentifier),
		errors.Is(err, market.ErrInvalidQuantity),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, market.ErrItemNotFound),
		errors.Is(err, market.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrInsufficientQuantity),
		errors.Is(err, market.ErrAuctionNotPurchasable),
		errors.Is(err, market.ErrNotAnAuction),
		errors.Is(err, market.ErrAuctionClosed),
		errors.Is(err, market.ErrBidTooLow),
		errors.Is(err, market.ErrRequestInFlight),
		errors.Is(err, market.ErrDuplicateOrder):
		return http.StatusConflict
	case errors.Is(err, market.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error     string  `json:"error"`
	ItemID    string  `json:"item_id,omitempty"`
	Requested int     `json:"requested,omitempty"`
	Available *int    `json:"available,omitempty"`
	Floor     *string `json:"floor,omitempty"`
}

// WriteError maps err to a status and writes it. Server faults are logged
// and their message is replaced by the status text.
func WriteError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error(r.Context(), log, "request failed", zap.String("path", r.URL.Path), zap.Error(err))
		JSONError(w, status, http.StatusText(status))
		return
	}

	body := errorBody{Error: err.Error()}
	if d, ok := market.Details(err); ok {
		body.Error = d.Kind.Error()
		if d.ItemID != uuid.Nil {
			body.ItemID = d.ItemID.String()
		}
		if errors.Is(d.Kind, market.ErrInsufficientQuantity) {
			body.Requested = d.Requested
			available := d.Available
			body.Available = &available
		}
		if d.Floor != nil {
			floor := d.Floor.StringFixed(2)
			body.Floor = &floor
		}
	}
	JSON(w, status, body)
}
