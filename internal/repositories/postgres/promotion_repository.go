package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/hanko-field/commerce/internal/domain"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
)

const selectRuleSQL = `
SELECT r.id, r.window_id, r.unit_id, r.product_id, r.discount_type, r.value, r.created_at, r.updated_at,
       w.id, w.name, w.starts_at, w.ends_at, w.created_at, w.updated_at
FROM promotion_rules r
JOIN promotion_windows w ON w.id = r.window_id`

// PromotionRepository persists promotion windows and rules.
type PromotionRepository struct {
	db *ppostgres.Provider
}

// NewPromotionRepository constructs a PromotionRepository.
func NewPromotionRepository(db *ppostgres.Provider) *PromotionRepository {
	return &PromotionRepository{db: db}
}

func (r *PromotionRepository) InsertWindow(ctx context.Context, window domain.PromotionWindow) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO promotion_windows (id, name, starts_at, ends_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		window.ID, window.Name, window.StartsAt, window.EndsAt, window.CreatedAt, window.UpdatedAt)
	return ppostgres.WrapError("promotions.insert_window", err)
}

func (r *PromotionRepository) UpdateWindow(ctx context.Context, window domain.PromotionWindow) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE promotion_windows SET name = $2, starts_at = $3, ends_at = $4, updated_at = $5 WHERE id = $1`,
		window.ID, window.Name, window.StartsAt, window.EndsAt, window.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("promotions.update_window", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("promotions.update_window", fmt.Errorf("window %s not found", window.ID))
	}
	return nil
}

func (r *PromotionRepository) FindWindow(ctx context.Context, windowID string) (domain.PromotionWindow, error) {
	var w domain.PromotionWindow
	err := r.db.Conn(ctx).QueryRow(ctx,
		`SELECT id, name, starts_at, ends_at, created_at, updated_at FROM promotion_windows WHERE id = $1`,
		windowID).Scan(&w.ID, &w.Name, &w.StartsAt, &w.EndsAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return domain.PromotionWindow{}, ppostgres.WrapError("promotions.find_window", err)
	}
	return w, nil
}

func (r *PromotionRepository) InsertRule(ctx context.Context, rule domain.PromotionRule) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO promotion_rules (id, window_id, unit_id, product_id, discount_type, value, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rule.ID, rule.WindowID, rule.UnitID, rule.ProductID, string(rule.Type), rule.Value, rule.CreatedAt, rule.UpdatedAt)
	return ppostgres.WrapError("promotions.insert_rule", err)
}

func (r *PromotionRepository) UpdateRule(ctx context.Context, rule domain.PromotionRule) error {
	tag, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE promotion_rules SET window_id = $2, unit_id = $3, product_id = $4, discount_type = $5, value = $6, updated_at = $7
		 WHERE id = $1`,
		rule.ID, rule.WindowID, rule.UnitID, rule.ProductID, string(rule.Type), rule.Value, rule.UpdatedAt)
	if err != nil {
		return ppostgres.WrapError("promotions.update_rule", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("promotions.update_rule", fmt.Errorf("rule %s not found", rule.ID))
	}
	return nil
}

func (r *PromotionRepository) DeleteRule(ctx context.Context, ruleID string) error {
	tag, err := r.db.Conn(ctx).Exec(ctx, `DELETE FROM promotion_rules WHERE id = $1`, ruleID)
	if err != nil {
		return ppostgres.WrapError("promotions.delete_rule", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFound("promotions.delete_rule", fmt.Errorf("rule %s not found", ruleID))
	}
	return nil
}

func (r *PromotionRepository) FindRule(ctx context.Context, ruleID string) (domain.PromotionRule, error) {
	rule, err := scanRule(r.db.Conn(ctx).QueryRow(ctx, selectRuleSQL+` WHERE r.id = $1`, ruleID))
	if err != nil {
		return domain.PromotionRule{}, ppostgres.WrapError("promotions.find_rule", err)
	}
	return rule, nil
}

func (r *PromotionRepository) ListRulesByUnit(ctx context.Context, unitID string) ([]domain.PromotionRule, error) {
	return r.listRules(ctx, "promotions.list_rules_by_unit", selectRuleSQL+` WHERE r.unit_id = $1 ORDER BY w.starts_at, r.id`, unitID)
}

func (r *PromotionRepository) ListRulesByWindow(ctx context.Context, windowID string) ([]domain.PromotionRule, error) {
	return r.listRules(ctx, "promotions.list_rules_by_window", selectRuleSQL+` WHERE r.window_id = $1 ORDER BY r.unit_id, r.id`, windowID)
}

func (r *PromotionRepository) listRules(ctx context.Context, op, query string, arg string) ([]domain.PromotionRule, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, ppostgres.WrapError(op, err)
	}
	rules, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PromotionRule, error) {
		return scanRule(row)
	})
	if err != nil {
		return nil, ppostgres.WrapError(op, err)
	}
	return rules, nil
}

func scanRule(row pgx.Row) (domain.PromotionRule, error) {
	var (
		rule         domain.PromotionRule
		discountType string
	)
	err := row.Scan(&rule.ID, &rule.WindowID, &rule.UnitID, &rule.ProductID, &discountType, &rule.Value,
		&rule.CreatedAt, &rule.UpdatedAt,
		&rule.Window.ID, &rule.Window.Name, &rule.Window.StartsAt, &rule.Window.EndsAt,
		&rule.Window.CreatedAt, &rule.Window.UpdatedAt)
	rule.Type = domain.DiscountType(discountType)
	return rule, err
}
