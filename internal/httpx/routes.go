package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/auction"
	"github.com/ariefcatur/go-marketplace-core/internal/auth"
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/store"
)

// ActivityReader serves the projected per-item activity.
type ActivityReader interface {
	Get(ctx context.Context, item uuid.UUID) (*redisx.Activity, error)
}

type API struct {
	Orders   *orders.Service
	Auctions *auction.Engine
	Catalog  store.Catalog
	// Activity is optional; without it the activity route answers 503.
	Activity ActivityReader
	Identity auth.Resolver
	Health   HealthChecks
	Log      *zap.Logger
	// MutationsPerMinute limits order and bid submissions per client IP.
	// Zero disables the limit.
	MutationsPerMinute int
	Now                func() time.Time
}

func (a *API) Register(r chi.Router) {
	if a.Now == nil {
		a.Now = time.Now
	}
	if a.Identity == nil {
		a.Identity = auth.HeaderResolver{}
	}
	r.Get("/healthz", HealthHandler(a.Health))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog/summary", a.catalogSummary)
		r.Get("/items/{id}/bids", a.bidHistory)
		r.Get("/items/{id}/activity", a.itemActivity)

		r.Group(func(r chi.Router) {
			r.Use(auth.Require(a.Identity, func(w http.ResponseWriter, r *http.Request, err error) {
				WriteError(w, r, a.Log, err)
			}))
			r.Get("/orders", a.listOrders)
			r.Get("/orders/{id}", a.getOrder)

			r.Group(func(r chi.Router) {
				if a.MutationsPerMinute > 0 {
					r.Use(httprate.LimitByIP(a.MutationsPerMinute, time.Minute))
				}
				r.Post("/orders", a.createOrder)
				r.Post("/items/{id}/bids", a.placeBid)
			})
		})
	})
}

func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
