package memory

import (
	"cmp"
	"context"
	"slices"

	domain "github.com/hanko-field/commerce/internal/domain"
)

type promotionRepository struct{ r *Registry }

func (p promotionRepository) InsertWindow(ctx context.Context, window domain.PromotionWindow) error {
	return p.r.with(ctx, func(s *state) error {
		if _, ok := s.windows[window.ID]; ok {
			return conflict("promotions.insert_window", "window %s already exists", window.ID)
		}
		s.windows[window.ID] = window
		return nil
	})
}

func (p promotionRepository) UpdateWindow(ctx context.Context, window domain.PromotionWindow) error {
	return p.r.with(ctx, func(s *state) error {
		existing, ok := s.windows[window.ID]
		if !ok {
			return notFound("promotions.update_window", "window %s not found", window.ID)
		}
		window.CreatedAt = existing.CreatedAt
		s.windows[window.ID] = window
		return nil
	})
}

func (p promotionRepository) FindWindow(ctx context.Context, windowID string) (domain.PromotionWindow, error) {
	var window domain.PromotionWindow
	err := p.r.with(ctx, func(s *state) error {
		found, ok := s.windows[windowID]
		if !ok {
			return notFound("promotions.find_window", "window %s not found", windowID)
		}
		window = found
		return nil
	})
	return window, err
}

func (p promotionRepository) InsertRule(ctx context.Context, rule domain.PromotionRule) error {
	return p.r.with(ctx, func(s *state) error {
		if _, ok := s.rules[rule.ID]; ok {
			return conflict("promotions.insert_rule", "rule %s already exists", rule.ID)
		}
		if _, ok := s.windows[rule.WindowID]; !ok {
			return conflict("promotions.insert_rule", "window %s does not exist", rule.WindowID)
		}
		rule.Window = domain.PromotionWindow{}
		s.rules[rule.ID] = rule
		return nil
	})
}

func (p promotionRepository) UpdateRule(ctx context.Context, rule domain.PromotionRule) error {
	return p.r.with(ctx, func(s *state) error {
		existing, ok := s.rules[rule.ID]
		if !ok {
			return notFound("promotions.update_rule", "rule %s not found", rule.ID)
		}
		existing.WindowID = rule.WindowID
		existing.UnitID = rule.UnitID
		existing.ProductID = rule.ProductID
		existing.Type = rule.Type
		existing.Value = rule.Value
		existing.UpdatedAt = rule.UpdatedAt
		s.rules[rule.ID] = existing
		return nil
	})
}

func (p promotionRepository) DeleteRule(ctx context.Context, ruleID string) error {
	return p.r.with(ctx, func(s *state) error {
		if _, ok := s.rules[ruleID]; !ok {
			return notFound("promotions.delete_rule", "rule %s not found", ruleID)
		}
		delete(s.rules, ruleID)
		return nil
	})
}

func (p promotionRepository) FindRule(ctx context.Context, ruleID string) (domain.PromotionRule, error) {
	var rule domain.PromotionRule
	err := p.r.with(ctx, func(s *state) error {
		found, ok := s.rules[ruleID]
		if !ok {
			return notFound("promotions.find_rule", "rule %s not found", ruleID)
		}
		found.Window = s.windows[found.WindowID]
		rule = found
		return nil
	})
	return rule, err
}

func (p promotionRepository) ListRulesByUnit(ctx context.Context, unitID string) ([]domain.PromotionRule, error) {
	rules := p.list(ctx, func(rule domain.PromotionRule) bool { return rule.UnitID == unitID })
	slices.SortFunc(rules, func(a, b domain.PromotionRule) int {
		return cmp.Or(a.Window.StartsAt.Compare(b.Window.StartsAt), cmp.Compare(a.ID, b.ID))
	})
	return rules, nil
}

func (p promotionRepository) ListRulesByWindow(ctx context.Context, windowID string) ([]domain.PromotionRule, error) {
	rules := p.list(ctx, func(rule domain.PromotionRule) bool { return rule.WindowID == windowID })
	slices.SortFunc(rules, func(a, b domain.PromotionRule) int {
		return cmp.Or(cmp.Compare(a.UnitID, b.UnitID), cmp.Compare(a.ID, b.ID))
	})
	return rules, nil
}

func (p promotionRepository) list(ctx context.Context, match func(domain.PromotionRule) bool) []domain.PromotionRule {
	var rules []domain.PromotionRule
	_ = p.r.with(ctx, func(s *state) error {
		for _, rule := range s.rules {
			if match(rule) {
				rule.Window = s.windows[rule.WindowID]
				rules = append(rules, rule)
			}
		}
		return nil
	})
	return rules
}
