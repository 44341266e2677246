package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hanko-field/commerce/internal/repositories"
)

const defaultLowStockLimit = 50

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	// Events is optional; without it low stock events are not emitted.
	Events *EventWriter
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
	Meter  metric.Meter
}

type inventoryService struct {
	repo    repositories.InventoryRepository
	events  *EventWriter
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
	metrics *serviceMetrics
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		repo:   deps.Inventory,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:  logger,
		metrics: newServiceMetrics(deps.Meter),
	}, nil
}

// Reserve removes quantity from the unit's stock when enough is available.
// It joins the transaction carried by ctx, if any.
func (s *inventoryService) Reserve(ctx context.Context, unitID string, quantity int) (err error) {
	unitID = strings.TrimSpace(unitID)
	if err := validateLedgerInput(unitID, quantity); err != nil {
		return err
	}
	if quantity == 0 {
		return nil
	}

	ctx, span := startSpan(ctx, "inventory.reserve",
		attribute.String("unit_id", unitID), attribute.Int("quantity", quantity))
	defer func() { endSpan(span, err) }()

	remaining, err := s.repo.Reserve(ctx, unitID, quantity)
	if err != nil {
		mapped := mapRepositoryError(err, "inventory")
		if errors.Is(mapped, ErrInsufficientStock) {
			s.metrics.reservationsDenied.Add(ctx, 1)
		}
		return mapped
	}

	return s.checkLowStock(ctx, unitID, remaining)
}

// Release returns quantity to the unit's stock. There is no upper bound.
func (s *inventoryService) Release(ctx context.Context, unitID string, quantity int) (err error) {
	unitID = strings.TrimSpace(unitID)
	if err := validateLedgerInput(unitID, quantity); err != nil {
		return err
	}
	if quantity == 0 {
		return nil
	}

	ctx, span := startSpan(ctx, "inventory.release",
		attribute.String("unit_id", unitID), attribute.Int("quantity", quantity))
	defer func() { endSpan(span, err) }()

	if _, err := s.repo.Release(ctx, unitID, quantity); err != nil {
		return mapRepositoryError(err, "inventory")
	}
	return nil
}

func (s *inventoryService) ConfigureSafetyStock(ctx context.Context, cmd ConfigureSafetyStockCommand) (StockSetting, error) {
	cmd.UnitID = strings.TrimSpace(cmd.UnitID)
	errs := fieldErrors{}
	if cmd.UnitID == "" {
		errs.add("unit_id", "unit id is required")
	}
	if cmd.SafetyThreshold < 0 {
		errs.add("safety_threshold", "safety threshold must not be negative")
	}
	if err := errs.err(); err != nil {
		return StockSetting{}, err
	}

	setting, err := s.repo.ConfigureSafetyStock(ctx, StockSetting{
		UnitID:          cmd.UnitID,
		SafetyThreshold: cmd.SafetyThreshold,
		ReminderEnabled: cmd.ReminderEnabled,
		UpdatedAt:       s.clock(),
	})
	if err != nil {
		return StockSetting{}, mapRepositoryError(err, "stock_setting")
	}
	return setting, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, limit int) ([]LowStockItem, error) {
	if limit <= 0 {
		limit = defaultLowStockLimit
	}
	items, err := s.repo.ListLowStock(ctx, limit)
	if err != nil {
		return nil, mapRepositoryError(err, "inventory")
	}
	return items, nil
}

// checkLowStock stages an inventory.low_stock event when the reservation left
// the unit at or below its reminder threshold.
func (s *inventoryService) checkLowStock(ctx context.Context, unitID string, remaining int) error {
	if s.events == nil {
		return nil
	}
	setting, err := s.repo.FindStockSetting(ctx, unitID)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		s.logger(ctx, "inventory.low_stock.lookup_failed", map[string]any{
			"unitID": unitID,
			"error":  err.Error(),
		})
		return nil
	}
	if !setting.ReminderEnabled || remaining > setting.SafetyThreshold {
		return nil
	}

	now := s.clock()
	if err := s.events.Enqueue(ctx, EventInventoryLowStock, unitID, lowStockPayload{
		UnitID:          unitID,
		Stock:           remaining,
		SafetyThreshold: setting.SafetyThreshold,
		DetectedAt:      now.Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	s.logger(ctx, "inventory.low_stock", map[string]any{
		"unitID":    unitID,
		"stock":     remaining,
		"threshold": setting.SafetyThreshold,
	})
	return nil
}

func validateLedgerInput(unitID string, quantity int) error {
	if unitID == "" {
		return fieldError("unit_id", "unit id is required")
	}
	if quantity < 0 {
		return fieldError("quantity", fmt.Sprintf("quantity must not be negative, got %d", quantity))
	}
	return nil
}
