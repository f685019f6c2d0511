package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-marketplace-core/internal/market"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"duplicate idempotency key", &pgconn.PgError{Code: "23505", ConstraintName: idempotencyConstraint}, market.ErrDuplicateOrder},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, market.ErrStoreUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, market.ErrStoreUnavailable},
		{"network", errors.New("dial tcp: connection refused"), market.ErrStoreUnavailable},
		{"cancelled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("op", tt.err), tt.want)
		})
	}

	other := classify("op", &pgconn.PgError{Code: "23514"})
	assert.NotErrorIs(t, other, market.ErrStoreUnavailable)
	assert.NotErrorIs(t, other, market.ErrDuplicateOrder)
}
