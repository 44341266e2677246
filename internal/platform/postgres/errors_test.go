package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapErrorClassifiesPgErrors(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "no rows", err: pgx.ErrNoRows, notFound: true},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, conflict: true},
		{name: "check", err: &pgconn.PgError{Code: "23514"}, conflict: true},
		{name: "deadlock", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), conflict: true},
		{name: "connection", err: &pgconn.PgError{Code: "08006"}, unavailable: true},
		{name: "shutdown", err: &pgconn.PgError{Code: "57P01"}, unavailable: true},
		{name: "other", err: &pgconn.PgError{Code: "42601"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("op", tc.err)
			var repoErr *Error
			require.ErrorAs(t, err, &repoErr)
			assert.Equal(t, tc.notFound, repoErr.IsNotFound())
			assert.Equal(t, tc.conflict, repoErr.IsConflict())
			assert.Equal(t, tc.unavailable, repoErr.IsUnavailable())
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestWrapErrorPassesThroughContextErrors(t *testing.T) {
	assert.Same(t, context.Canceled, WrapError("op", context.Canceled))
	assert.NoError(t, WrapError("op", nil))
}

func TestWrapErrorKeepsExistingOp(t *testing.T) {
	inner := WrapError("orders.find", pgx.ErrNoRows)
	outer := WrapError("orders.load", inner)
	assert.Equal(t, "orders.find: no rows in result set", outer.Error())
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "orders_invoice_code_key"})
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "orders_invoice_code_key"))
	assert.False(t, IsUniqueViolation(err, "carts_account_id_key"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(WrapError("tx", &pgconn.PgError{Code: "40001"})))
	assert.False(t, retryable(WrapError("tx", &pgconn.PgError{Code: "23505"})))
}
