// Package auth consumes the caller identity resolved by the upstream
// credential gateway. It does not issue or verify credentials itself.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

type Identity struct {
	ID   uuid.UUID
	Name string
}

func (i Identity) Valid() bool { return i.ID != uuid.Nil }

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.Valid()
}

// Resolver turns an inbound request into a caller identity.
type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// HeaderResolver trusts the identity headers stamped by the gateway.
type HeaderResolver struct{}

func (HeaderResolver) Resolve(r *http.Request) (Identity, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if raw == "" {
		return Identity{}, fmt.Errorf("%w: missing %s", market.ErrUnauthorized, HeaderUserID)
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return Identity{}, fmt.Errorf("%w: malformed %s", market.ErrUnauthorized, HeaderUserID)
	}
	name := strings.TrimSpace(r.Header.Get(HeaderUserName))
	if name == "" {
		name = "Anonymous"
	}
	return Identity{ID: id, Name: name}, nil
}

// Require rejects requests without a resolvable identity. onError writes the
// rejection so the transport keeps one error format.
func Require(res Resolver, onError func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := res.Resolve(r)
			if err != nil {
				onError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
