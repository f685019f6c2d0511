package httpx

import (
	"context"
	"net/http"
	"time"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthChecks probes each configured dependency. Nil entries are reported
// as "disabled".
type HealthChecks struct {
	Store    HealthChecker
	Redis    HealthChecker
	EventBus HealthChecker
}

type healthResponse struct {
	Status   string `json:"status"`
	Store    string `json:"store"`
	Redis    string `json:"redis"`
	EventBus string `json:"event_bus"`
}

func probe(ctx context.Context, c HealthChecker, degraded *bool) string {
	if c == nil {
		return "disabled"
	}
	if err := c.Ping(ctx); err != nil {
		*degraded = true
		return "unreachable"
	}
	return "ok"
}

func HealthHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		var degraded bool
		resp := healthResponse{
			Store:    probe(ctx, checks.Store, &degraded),
			Redis:    probe(ctx, checks.Redis, &degraded),
			EventBus: probe(ctx, checks.EventBus, &degraded),
		}
		status := http.StatusOK
		resp.Status = "ok"
		if degraded {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, resp)
	}
}
