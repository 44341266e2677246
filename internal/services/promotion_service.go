package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/hanko-field/commerce/internal/domain"
	"github.com/hanko-field/commerce/internal/platform/textutil"
	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	promotionWindowIDPrefix = "pwin_"
	promotionRuleIDPrefix   = "prule_"
	maxWindowNameLength     = 255
)

// PromotionServiceDeps bundles collaborators required to construct the promotion service.
type PromotionServiceDeps struct {
	Promotions  repositories.PromotionRepository
	Catalog     repositories.CatalogRepository
	UnitOfWork  repositories.UnitOfWork
	Pricing     PricingEngine
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type promotionService struct {
	promotions repositories.PromotionRepository
	catalog    repositories.CatalogRepository
	uow        repositories.UnitOfWork
	pricing    PricingEngine
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewPromotionService constructs the write path for promotion windows and rules.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: promotion repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("promotion service: catalog repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("promotion service: unit of work is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &promotionService{
		promotions: deps.Promotions,
		catalog:    deps.Catalog,
		uow:        deps.UnitOfWork,
		pricing:    deps.Pricing,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *promotionService) CreateWindow(ctx context.Context, cmd UpsertWindowCommand) (PromotionWindow, error) {
	window, err := normalizeWindow(cmd)
	if err != nil {
		return PromotionWindow{}, err
	}
	now := s.clock()
	window.ID = promotionWindowIDPrefix + s.newID()
	window.CreatedAt = now
	window.UpdatedAt = now

	if err := s.promotions.InsertWindow(ctx, window); err != nil {
		return PromotionWindow{}, mapRepositoryError(err, "promotion_window")
	}
	return window, nil
}

// UpdateWindow renames or moves a window. Moving the bounds re-checks every
// rule bound to the window against the other rules of its unit.
func (s *promotionService) UpdateWindow(ctx context.Context, cmd UpsertWindowCommand) (window PromotionWindow, err error) {
	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return PromotionWindow{}, fieldError("id", "window id is required")
	}
	updated, err := normalizeWindow(cmd)
	if err != nil {
		return PromotionWindow{}, err
	}

	ctx, span := startSpan(ctx, "promotions.update_window", attribute.String("window_id", id))
	defer func() { endSpan(span, err) }()

	var affected []string
	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.promotions.FindWindow(txCtx, id)
		if err != nil {
			return mapRepositoryError(err, "promotion_window")
		}
		updated.ID = current.ID
		updated.CreatedAt = current.CreatedAt
		updated.UpdatedAt = s.clock()

		bound, err := s.promotions.ListRulesByWindow(txCtx, id)
		if err != nil {
			return mapRepositoryError(err, "promotion_rule")
		}
		for _, unitID := range uniqueUnitIDs(bound) {
			if err := s.checkOverlap(txCtx, unitID, updated, func(rule PromotionRule) bool {
				return rule.WindowID == id
			}); err != nil {
				return err
			}
			affected = append(affected, unitID)
		}

		if err := s.promotions.UpdateWindow(txCtx, updated); err != nil {
			return mapRepositoryError(err, "promotion_window")
		}
		window = updated
		return nil
	})
	if err != nil {
		return PromotionWindow{}, err
	}
	s.invalidate(ctx, affected...)
	return window, nil
}

func (s *promotionService) CreateRule(ctx context.Context, cmd UpsertRuleCommand) (rule PromotionRule, err error) {
	if err := validateRuleCommand(cmd, false); err != nil {
		return PromotionRule{}, err
	}

	ctx, span := startSpan(ctx, "promotions.create_rule",
		attribute.String("unit_id", cmd.UnitID), attribute.String("window_id", cmd.WindowID))
	defer func() { endSpan(span, err) }()

	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		candidate, err := s.prepareRule(txCtx, cmd)
		if err != nil {
			return err
		}
		now := s.clock()
		candidate.ID = promotionRuleIDPrefix + s.newID()
		candidate.CreatedAt = now
		candidate.UpdatedAt = now

		if err := s.checkOverlap(txCtx, candidate.UnitID, candidate.Window, nil); err != nil {
			return err
		}
		if err := s.promotions.InsertRule(txCtx, candidate); err != nil {
			return mapRepositoryError(err, "promotion_rule")
		}
		rule = candidate
		return nil
	})
	if err != nil {
		return PromotionRule{}, err
	}
	s.invalidate(ctx, rule.UnitID)
	return rule, nil
}

func (s *promotionService) UpdateRule(ctx context.Context, cmd UpsertRuleCommand) (rule PromotionRule, err error) {
	if err := validateRuleCommand(cmd, true); err != nil {
		return PromotionRule{}, err
	}
	id := strings.TrimSpace(cmd.ID)

	ctx, span := startSpan(ctx, "promotions.update_rule", attribute.String("rule_id", id))
	defer func() { endSpan(span, err) }()

	var previousUnit string
	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.promotions.FindRule(txCtx, id)
		if err != nil {
			return mapRepositoryError(err, "promotion_rule")
		}
		previousUnit = current.UnitID

		candidate, err := s.prepareRule(txCtx, cmd)
		if err != nil {
			return err
		}
		candidate.ID = current.ID
		candidate.CreatedAt = current.CreatedAt
		candidate.UpdatedAt = s.clock()

		if err := s.checkOverlap(txCtx, candidate.UnitID, candidate.Window, func(other PromotionRule) bool {
			return other.ID == candidate.ID
		}); err != nil {
			return err
		}
		if err := s.promotions.UpdateRule(txCtx, candidate); err != nil {
			return mapRepositoryError(err, "promotion_rule")
		}
		rule = candidate
		return nil
	})
	if err != nil {
		return PromotionRule{}, err
	}
	s.invalidate(ctx, uniqueStrings(previousUnit, rule.UnitID)...)
	return rule, nil
}

func (s *promotionService) DeleteRule(ctx context.Context, ruleID string) error {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return fieldError("id", "rule id is required")
	}
	var unitID string
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		rule, err := s.promotions.FindRule(txCtx, ruleID)
		if err != nil {
			return mapRepositoryError(err, "promotion_rule")
		}
		unitID = rule.UnitID
		if err := s.promotions.DeleteRule(txCtx, ruleID); err != nil {
			return mapRepositoryError(err, "promotion_rule")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, unitID)
	return nil
}

func (s *promotionService) ListRules(ctx context.Context, unitID string) ([]PromotionRule, error) {
	unitID = strings.TrimSpace(unitID)
	if unitID == "" {
		return nil, fieldError("unit_id", "unit id is required")
	}
	rules, err := s.promotions.ListRulesByUnit(ctx, unitID)
	if err != nil {
		return nil, mapRepositoryError(err, "promotion_rule")
	}
	return rules, nil
}

// prepareRule resolves the unit under a row lock and the window, then checks
// the discount value against the unit price.
func (s *promotionService) prepareRule(ctx context.Context, cmd UpsertRuleCommand) (PromotionRule, error) {
	unitID := strings.TrimSpace(cmd.UnitID)
	windowID := strings.TrimSpace(cmd.WindowID)

	unit, err := s.catalog.LockUnit(ctx, unitID)
	if err != nil {
		if isNotFound(err) {
			return PromotionRule{}, fieldError("unit_id", fmt.Sprintf("unit %s does not exist", unitID))
		}
		return PromotionRule{}, mapRepositoryError(err, "unit")
	}
	window, err := s.promotions.FindWindow(ctx, windowID)
	if err != nil {
		if isNotFound(err) {
			return PromotionRule{}, fieldError("window_id", fmt.Sprintf("window %s does not exist", windowID))
		}
		return PromotionRule{}, mapRepositoryError(err, "promotion_window")
	}
	if err := domain.ValidateDiscount(cmd.Type, unit.Price, cmd.Value); err != nil {
		return PromotionRule{}, fieldError("value", err.Error())
	}

	return PromotionRule{
		WindowID:  window.ID,
		UnitID:    unit.ID,
		ProductID: unit.ProductID,
		Type:      cmd.Type,
		Value:     cmd.Value,
		Window:    window,
	}, nil
}

// checkOverlap locks the unit and rejects window when it overlaps any rule of
// the unit not matched by skip.
func (s *promotionService) checkOverlap(ctx context.Context, unitID string, window PromotionWindow, skip func(PromotionRule) bool) error {
	if _, err := s.catalog.LockUnit(ctx, unitID); err != nil {
		return mapRepositoryError(err, "unit")
	}
	existing, err := s.promotions.ListRulesByUnit(ctx, unitID)
	if err != nil {
		return mapRepositoryError(err, "promotion_rule")
	}
	for _, other := range existing {
		if skip != nil && skip(other) {
			continue
		}
		if other.Window.Overlaps(window) {
			return &ConflictError{
				Resource:      "promotion_rule",
				ConflictingID: other.ID,
				Message:       fmt.Sprintf("window overlaps an existing rule for unit %s", unitID),
			}
		}
	}
	return nil
}

func (s *promotionService) invalidate(ctx context.Context, unitIDs ...string) {
	if s.pricing == nil || len(unitIDs) == 0 {
		return
	}
	if err := s.pricing.InvalidateUnits(ctx, unitIDs...); err != nil {
		s.logger(ctx, "promotions.cache_invalidate_failed", map[string]any{
			"unitIDs": unitIDs,
			"error":   err.Error(),
		})
	}
}

func normalizeWindow(cmd UpsertWindowCommand) (PromotionWindow, error) {
	name := textutil.Truncate(textutil.Clean(cmd.Name), maxWindowNameLength)
	errs := fieldErrors{}
	if name == "" {
		errs.add("name", "name is required")
	}
	if cmd.StartsAt.IsZero() {
		errs.add("starts_at", "start is required")
	}
	if cmd.EndsAt.IsZero() {
		errs.add("ends_at", "end is required")
	} else if !cmd.EndsAt.After(cmd.StartsAt) {
		errs.add("ends_at", "end must be after start")
	}
	if err := errs.err(); err != nil {
		return PromotionWindow{}, err
	}
	return PromotionWindow{
		Name:     name,
		StartsAt: cmd.StartsAt.UTC(),
		EndsAt:   cmd.EndsAt.UTC(),
	}, nil
}

func validateRuleCommand(cmd UpsertRuleCommand, update bool) error {
	errs := fieldErrors{}
	if update && strings.TrimSpace(cmd.ID) == "" {
		errs.add("id", "rule id is required")
	}
	if strings.TrimSpace(cmd.UnitID) == "" {
		errs.add("unit_id", "unit id is required")
	}
	if strings.TrimSpace(cmd.WindowID) == "" {
		errs.add("window_id", "window id is required")
	}
	if !cmd.Type.Valid() {
		errs.add("type", fmt.Sprintf("unsupported discount type %q", cmd.Type))
	}
	return errs.err()
}

func uniqueUnitIDs(rules []PromotionRule) []string {
	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.UnitID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func uniqueStrings(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
