package services

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/repositories"
)

var (
	// ErrValidation marks input that was rejected before any state changed.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock marks a reservation larger than the unit's stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition marks an order status change not allowed by the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict marks writes rejected because they collide with existing state.
	ErrConflict = errors.New("conflict")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a backing store that could not be reached.
	ErrUnavailable = errors.New("unavailable")
)

// Line error codes reported per order line.
const (
	LineErrorInvalidQuantity   = "invalid_quantity"
	LineErrorUnitNotFound      = "unit_not_found"
	LineErrorInsufficientStock = "insufficient_stock"
)

// LineError describes why one requested order line was rejected. The zero value means the line was accepted.
type LineError struct {
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	UnitID    string `json:"unit_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available int    `json:"available,omitempty"`
}

// Failed reports whether the line was rejected.
func (e LineError) Failed() bool {
	return e.Code != ""
}

// ValidationError collects field level and line level failures. Lines, when
// present, is index-aligned with the request lines.
type ValidationError struct {
	Fields map[string]string
	Lines  []LineError
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	parts := make([]string, 0, len(e.Fields)+1)
	for _, key := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, key+": "+e.Fields[key])
	}
	failed := 0
	for _, line := range e.Lines {
		if line.Failed() {
			failed++
		}
	}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d line(s) rejected", failed))
	}
	if len(parts) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// HasLineErrors reports whether any line was rejected.
func (e *ValidationError) HasLineErrors() bool {
	if e == nil {
		return false
	}
	return slices.ContainsFunc(e.Lines, LineError.Failed)
}

func fieldError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: map[string]string(f)}
}

// InsufficientStockError reports a reservation that the stock guard rejected.
type InsufficientStockError struct {
	UnitID    string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: unit %s has %d, %d requested", ErrInsufficientStock, e.UnitID, e.Available, e.Requested)
}

// Is matches both ErrInsufficientStock and ErrValidation.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock || target == ErrValidation
}

func (e *InsufficientStockError) lineError() LineError {
	return LineError{
		Code:      LineErrorInsufficientStock,
		Message:   "not enough stock",
		UnitID:    e.UnitID,
		Requested: e.Requested,
		Available: e.Available,
	}
}

// InvalidTransitionError reports a status change absent from the transition table.
type InvalidTransitionError struct {
	From domain.OrderStatus
	To   domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

// Is matches ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ConflictError reports a write that collides with existing state.
type ConflictError struct {
	Resource      string
	ConflictingID string
	Message       string
}

func (e *ConflictError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "already exists"
	}
	if e.ConflictingID != "" {
		return fmt.Sprintf("%s: %s %s (conflicts with %s)", ErrConflict, e.Resource, msg, e.ConflictingID)
	}
	return fmt.Sprintf("%s: %s %s", ErrConflict, e.Resource, msg)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// mapRepositoryError translates persistence failures into the service taxonomy.
// Errors that carry no classification are returned unchanged.
func mapRepositoryError(err error, resource string) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &InsufficientStockError{UnitID: invErr.UnitID, Requested: invErr.Requested, Available: invErr.Available}
		case repositories.InventoryErrorUnitNotFound:
			return fmt.Errorf("%w: unit %s", ErrNotFound, invErr.UnitID)
		case repositories.InventoryErrorInvalidQuantity:
			return fieldError("quantity", invErr.Message)
		}
		return err
	}

	var counterErr *repositories.CounterError
	if errors.As(err, &counterErr) {
		switch counterErr.Code {
		case repositories.CounterErrorExhausted:
			return &ConflictError{Resource: resource, Message: counterErr.Message}
		case repositories.CounterErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrValidation, counterErr.Message)
		}
		return err
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s: %v", ErrNotFound, resource, err)
		case repoErr.IsConflict():
			return &ConflictError{Resource: resource, Message: repoErr.Error()}
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, resource, err)
		}
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
