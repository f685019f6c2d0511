package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

type placeBidReq struct {
	Amount decimal.Decimal `json:"amount"`
}

type placeBidResp struct {
	Message    string          `json:"message"`
	BidAmount  decimal.Decimal `json:"bid_amount"`
	CurrentBid decimal.Decimal `json:"current_bid"`
	BidCount   int             `json:"bid_count"`
}

type bidResp struct {
	BidderName string          `json:"bidder_name"`
	Amount     decimal.Decimal `json:"amount"`
	PlacedAt   time.Time       `json:"placed_at"`
}

var errBadAmount = errors.New("bid amount must be a decimal number")

// bidAmount reads ?bid_amount= first, then a JSON body.
func bidAmount(r *http.Request) (decimal.Decimal, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("bid_amount")); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, errBadAmount
		}
		return d, nil
	}
	var req placeBidReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return decimal.Zero, errBadAmount
	}
	return req.Amount, nil
}

func (a *API) placeBid(w http.ResponseWriter, r *http.Request) {
	amount, err := bidAmount(r)
	if err != nil {
		JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.Auctions.PlaceBid(r.Context(), chi.URLParam(r, "id"), caller(r), amount)
	if err != nil {
		WriteError(w, r, a.Log, err)
		return
	}
	JSON(w, http.StatusOK, placeBidResp{
		Message:    "Bid placed successfully",
		BidAmount:  res.Accepted,
		CurrentBid: res.CurrentBid,
		BidCount:   res.BidCount,
	})
}

func (a *API) bidHistory(w http.ResponseWriter, r *http.Request) {
	bids, err := a.Auctions.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, a.Log, err)
		return
	}
	out := make([]bidResp, 0, len(bids))
	for _, b := range bids {
		out = append(out, bidResp{BidderName: b.BidderName, Amount: b.Amount, PlacedAt: b.PlacedAt})
	}
	JSON(w, http.StatusOK, out)
}

func (a *API) itemActivity(w http.ResponseWriter, r *http.Request) {
	id, err := market.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, a.Log, err)
		return
	}
	if a.Activity == nil {
		JSONError(w, http.StatusServiceUnavailable, "activity projection disabled")
		return
	}
	act, err := a.Activity.Get(r.Context(), id)
	if err != nil {
		WriteError(w, r, a.Log, market.Unavailable("activity", err))
		return
	}
	JSON(w, http.StatusOK, act)
}
