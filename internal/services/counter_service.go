package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	invoiceCounterScope       = "invoice"
	defaultInvoicePrefix      = "VN-"
	defaultMaxInvoiceAttempts = 5
	maxDailyInvoiceSequence   = int64(9999)
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// InvoiceLookup reports whether an invoice code is already taken.
type InvoiceLookup interface {
	InvoiceExists(ctx context.Context, invoiceCode string) (bool, error)
}

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Invoices   InvoiceLookup
	Clock      func() time.Time
	// Location is the calendar used for the invoice date. Defaults to UTC.
	Location           *time.Location
	InvoicePrefix      string
	MaxInvoiceAttempts int
	Logger             func(ctx context.Context, event string, fields map[string]any)
}

type counterService struct {
	repo        repositories.CounterRepository
	invoices    InvoiceLookup
	clock       func() time.Time
	location    *time.Location
	prefix      string
	maxAttempts int
	logger      func(context.Context, string, map[string]any)

	configMu   sync.Mutex
	configured map[string]counterConfigSignature
}

type counterConfigSignature struct {
	stepSet  bool
	step     int64
	maxSet   bool
	maxValue int64
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	if deps.Invoices == nil {
		return nil, errors.New("counter service: invoice lookup is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	location := deps.Location
	if location == nil {
		location = time.UTC
	}
	prefix := strings.TrimSpace(deps.InvoicePrefix)
	if prefix == "" {
		prefix = defaultInvoicePrefix
	}
	attempts := deps.MaxInvoiceAttempts
	if attempts <= 0 {
		attempts = defaultMaxInvoiceAttempts
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &counterService{
		repo:     deps.Repository,
		invoices: deps.Invoices,
		clock: func() time.Time {
			return clock().UTC()
		},
		location:    location,
		prefix:      prefix,
		maxAttempts: attempts,
		logger:      logger,
		configured:  make(map[string]counterConfigSignature),
	}, nil
}

func (s *counterService) Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error) {
	scope = strings.TrimSpace(scope)
	name = strings.TrimSpace(name)
	if scope == "" {
		return CounterValue{}, fmt.Errorf("%w: scope is required", ErrCounterInvalidInput)
	}
	if name == "" {
		return CounterValue{}, fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}

	counterID := scope + ":" + name

	if err := s.ensureConfiguration(ctx, counterID, opts); err != nil {
		return CounterValue{}, err
	}

	value, err := s.repo.Next(ctx, counterID, opts.Step)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			switch counterErr.Code {
			case repositories.CounterErrorInvalidInput:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
			case repositories.CounterErrorExhausted:
				return CounterValue{}, fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
			}
		}
		return CounterValue{}, err
	}

	now := s.clock()
	return CounterValue{Value: value, Formatted: formatCounterValue(now, value, opts)}, nil
}

// NextInvoiceCode issues PREFIX + YYYYMMDD + a four digit daily sequence.
// Codes already present on an order are skipped; after the configured number
// of attempts the call fails with a ConflictError.
func (s *counterService) NextInvoiceCode(ctx context.Context) (string, error) {
	maxValue := maxDailyInvoiceSequence
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		day := s.clock().In(s.location).Format("20060102")
		stem := s.prefix + day
		result, err := s.Next(ctx, invoiceCounterScope, stem, CounterGenerationOptions{
			Step:      1,
			MaxValue:  &maxValue,
			Prefix:    stem,
			PadLength: 4,
		})
		if err != nil {
			if errors.Is(err, ErrCounterExhausted) {
				return "", &ConflictError{Resource: "invoice", Message: fmt.Sprintf("daily invoice sequence for %s is exhausted", day)}
			}
			return "", err
		}

		exists, err := s.invoices.InvoiceExists(ctx, result.Formatted)
		if err != nil {
			return "", mapRepositoryError(err, "invoice")
		}
		if !exists {
			return result.Formatted, nil
		}
		s.logger(ctx, "invoice.code_taken", map[string]any{
			"invoiceCode": result.Formatted,
			"attempt":     attempt,
		})
	}
	return "", &ConflictError{
		Resource: "invoice",
		Message:  fmt.Sprintf("no free invoice code after %d attempts", s.maxAttempts),
	}
}

// ensureConfiguration pushes step and max bounds to the repository once per
// counter. The initial value is never reconfigured so a restart cannot rewind
// a sequence.
func (s *counterService) ensureConfiguration(ctx context.Context, counterID string, opts CounterGenerationOptions) error {
	signature := counterConfigSignature{}
	if opts.Step > 0 {
		signature.stepSet = true
		signature.step = opts.Step
	}
	if opts.MaxValue != nil {
		signature.maxSet = true
		signature.maxValue = *opts.MaxValue
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	if existing, ok := s.configured[counterID]; ok && existing == signature {
		return nil
	}

	cfg := repositories.CounterConfig{}
	if signature.stepSet {
		cfg.Step = signature.step
	}
	if signature.maxSet {
		cfg.MaxValue = &signature.maxValue
	}

	if signature.stepSet || signature.maxSet {
		if err := s.repo.Configure(ctx, counterID, cfg); err != nil {
			return err
		}
	}
	s.configured[counterID] = signature
	return nil
}

func formatCounterValue(now time.Time, value int64, opts CounterGenerationOptions) string {
	if opts.Formatter != nil {
		return opts.Formatter(now, value)
	}

	formatted := strconv.FormatInt(value, 10)
	if opts.PadLength > 0 {
		formatted = fmt.Sprintf("%0*d", opts.PadLength, value)
	}
	return opts.Prefix + formatted
}
