package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hanko-field/commerce/internal/repositories"
)

type counter struct {
	value    int64
	step     int64
	maxValue *int64
}

// CounterRepository keeps counters outside the transactional snapshot, so a
// rolled back transaction leaves a gap, matching database sequences.
type CounterRepository struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// NewCounterRepository constructs an empty counter store.
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{counters: make(map[string]*counter)}
}

func (r *CounterRepository) Next(_ context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[id]
	if !ok {
		c = &counter{step: max(step, 1)}
		r.counters[id] = c
	}
	increment := step
	if increment <= 0 {
		increment = max(c.step, 1)
	}
	next := c.value + increment
	if c.maxValue != nil && next > *c.maxValue {
		return 0, repositories.NewCounterExhaustedError(id, *c.maxValue)
	}
	c.value = next
	c.step = increment
	return next, nil
}

func (r *CounterRepository) Configure(_ context.Context, counterID string, cfg repositories.CounterConfig) error {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[id]
	if !ok {
		c = &counter{step: 1}
		r.counters[id] = c
	}
	if cfg.Step > 0 {
		c.step = cfg.Step
	}
	if cfg.MaxValue != nil {
		maxValue := *cfg.MaxValue
		c.maxValue = &maxValue
	}
	if cfg.InitialValue != nil {
		c.value = *cfg.InitialValue
	}
	return nil
}
