package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for ledger operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates the conditional decrement affected no rows.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorUnitNotFound indicates the sellable unit does not exist.
	InventoryErrorUnitNotFound InventoryErrorCode = "inventory_unit_not_found"
	// InventoryErrorInvalidQuantity indicates a negative quantity was supplied.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps ledger failures with machine readable codes. For
// insufficient stock, Requested and Available describe the rejected write.
type InventoryError struct {
	Op        string
	Code      InventoryErrorCode
	Message   string
	UnitID    string
	Requested int
	Available int
	Err       error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInsufficientStockError reports that unitID had only available units when requested were asked for.
func NewInsufficientStockError(unitID string, requested, available int) *InventoryError {
	return &InventoryError{
		Op:        "inventory.reserve",
		Code:      InventoryErrorInsufficientStock,
		Message:   fmt.Sprintf("unit %s has %d in stock, %d requested", unitID, available, requested),
		UnitID:    unitID,
		Requested: requested,
		Available: available,
	}
}

// NewInvalidQuantityError reports a non-positive quantity passed to a ledger operation.
func NewInvalidQuantityError(op, unitID string, quantity int) *InventoryError {
	return &InventoryError{
		Op:        op,
		Code:      InventoryErrorInvalidQuantity,
		Message:   fmt.Sprintf("quantity must be positive, got %d", quantity),
		UnitID:    unitID,
		Requested: quantity,
	}
}

// NewUnitNotFoundError reports a ledger operation against a unit that does not exist.
func NewUnitNotFoundError(op, unitID string) *InventoryError {
	return &InventoryError{
		Op:      op,
		Code:    InventoryErrorUnitNotFound,
		Message: fmt.Sprintf("unit %s not found", unitID),
		UnitID:  unitID,
	}
}
