package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

type catalogSummary struct {
	Items        int       `json:"items"`
	Purchasable  int       `json:"purchasable"`
	OpenAuctions int       `json:"open_auctions"`
	At           time.Time `json:"at"`
}

func (a *API) catalogSummary(w http.ResponseWriter, r *http.Request) {
	now := a.Now().UTC()
	yes, no := true, false

	var s catalogSummary
	s.At = now
	for _, q := range []struct {
		dst *int
		f   market.ItemFilter
	}{
		{&s.Items, market.ItemFilter{ActiveOnly: true}},
		{&s.Purchasable, market.ItemFilter{ActiveOnly: true, Auction: &no, InStockOnly: true}},
		{&s.OpenAuctions, market.ItemFilter{ActiveOnly: true, Auction: &yes, OpenAt: &now}},
	} {
		n, err := a.Catalog.CountItems(r.Context(), q.f)
		if err != nil {
			WriteError(w, r, a.Log, err)
			return
		}
		*q.dst = n
	}
	JSON(w, http.StatusOK, s)
}
