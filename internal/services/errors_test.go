package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hanko-field/commerce/internal/repositories"
)

type fakeRepoError struct {
	notFound, conflict, unavailable bool
}

func (e fakeRepoError) Error() string       { return "repo failure" }
func (e fakeRepoError) IsNotFound() bool    { return e.notFound }
func (e fakeRepoError) IsConflict() bool    { return e.conflict }
func (e fakeRepoError) IsUnavailable() bool { return e.unavailable }

func TestMapRepositoryError(t *testing.T) {
	plain := errors.New("boom")
	cases := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil", in: nil, want: nil},
		{name: "not found", in: fakeRepoError{notFound: true}, want: ErrNotFound},
		{name: "conflict", in: fakeRepoError{conflict: true}, want: ErrConflict},
		{name: "unavailable", in: fakeRepoError{unavailable: true}, want: ErrUnavailable},
		{name: "wrapped not found", in: fmt.Errorf("load: %w", fakeRepoError{notFound: true}), want: ErrNotFound},
		{name: "insufficient stock", in: repositories.NewInsufficientStockError("u1", 3, 1), want: ErrInsufficientStock},
		{name: "unit missing", in: repositories.NewUnitNotFoundError("inventory.reserve", "u1"), want: ErrNotFound},
		{name: "invalid quantity", in: repositories.NewInvalidQuantityError("inventory.reserve", "u1", -1), want: ErrValidation},
		{name: "counter exhausted", in: repositories.NewCounterExhaustedError("invoice:VN-20250101", 9999), want: ErrConflict},
		{name: "unclassified", in: plain, want: plain},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapRepositoryError(tc.in, "order")
			if tc.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tc.want)
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{
		Fields: map[string]string{"b": "second", "a": "first"},
		Lines:  []LineError{{}, {Code: LineErrorUnitNotFound}},
	}
	assert.Equal(t, "validation failed: a: first; b: second; 1 line(s) rejected", err.Error())
	assert.True(t, err.HasLineErrors())
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, (&ValidationError{Lines: []LineError{{}}}).HasLineErrors())
}

func TestInsufficientStockErrorMatchesBothSentinels(t *testing.T) {
	err := fmt.Errorf("reserve: %w", &InsufficientStockError{UnitID: "u1", Requested: 2, Available: 1})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrConflict)
}
