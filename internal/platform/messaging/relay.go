package messaging

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/commerce/internal/repositories"
)

const (
	defaultRelayInterval    = 2 * time.Second
	defaultRelayBatch       = 100
	defaultRelayMaxAttempts = 10
	defaultRelayBackoff     = 5 * time.Second
	defaultRelayMaxBackoff  = 10 * time.Minute
	defaultRelayLease       = time.Minute
)

// RelayDeps bundles the collaborators of a Relay.
type RelayDeps struct {
	Outbox     repositories.OutboxRepository
	UnitOfWork repositories.UnitOfWork
	Publisher  Publisher
	Interval   time.Duration
	BatchSize  int
	// MaxAttempts is the number of failed deliveries after which a message is dead-lettered.
	MaxAttempts int
	// Backoff is the delay after the first failure. It doubles per attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	// Lease hides claimed rows from other passes while they are being published.
	Lease  time.Duration
	Logger *zap.Logger
	Clock  func() time.Time
	// Observe is called once per delivery attempt.
	Observe func(eventType string, err error)
}

// Relay moves committed outbox rows to the broker. Delivery is at least once.
type Relay struct {
	outbox    repositories.OutboxRepository
	uow       repositories.UnitOfWork
	publisher Publisher
	interval  time.Duration
	batch     int
	attempts  int
	backoff   time.Duration
	maxDelay  time.Duration
	lease     time.Duration
	logger    *zap.Logger
	clock     func() time.Time
	observe   func(string, error)
}

// NewRelay validates deps and builds a Relay.
func NewRelay(deps RelayDeps) (*Relay, error) {
	if deps.Outbox == nil {
		return nil, errors.New("outbox relay: outbox repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("outbox relay: unit of work is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("outbox relay: publisher is required")
	}
	r := &Relay{
		outbox:    deps.Outbox,
		uow:       deps.UnitOfWork,
		publisher: deps.Publisher,
		interval:  deps.Interval,
		batch:     deps.BatchSize,
		attempts:  deps.MaxAttempts,
		backoff:   deps.Backoff,
		maxDelay:  deps.MaxBackoff,
		lease:     deps.Lease,
		logger:    deps.Logger,
		clock:     deps.Clock,
		observe:   deps.Observe,
	}
	if r.interval <= 0 {
		r.interval = defaultRelayInterval
	}
	if r.batch <= 0 {
		r.batch = defaultRelayBatch
	}
	if r.attempts <= 0 {
		r.attempts = defaultRelayMaxAttempts
	}
	if r.backoff <= 0 {
		r.backoff = defaultRelayBackoff
	}
	if r.maxDelay < r.backoff {
		r.maxDelay = max(defaultRelayMaxBackoff, r.backoff)
	}
	if r.lease <= 0 {
		r.lease = defaultRelayLease
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.observe == nil {
		r.observe = func(string, error) {}
	}
	return r, nil
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for {
			sent, err := r.RelayOnce(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.Warn("outbox relay pass failed", zap.Error(err))
			}
			if err != nil || sent < r.batch {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes up to one batch of due messages and returns how many were delivered.
// Rows are claimed in a short transaction and published outside it. A failed delivery
// is retried with exponential backoff until MaxAttempts, then dead-lettered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	now := r.clock().UTC()
	var claimed []repositories.OutboxMessage
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = r.outbox.ClaimDue(ctx, now, now.Add(r.lease), r.batch)
		return err
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, msg := range claimed {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		pubErr := r.publisher.Publish(ctx, Message{
			ID:        msg.ID,
			Topic:     msg.Topic,
			Key:       msg.Key,
			EventType: msg.EventType,
			Payload:   msg.Payload,
			CreatedAt: msg.CreatedAt,
		})
		r.observe(msg.EventType, pubErr)
		if pubErr == nil {
			if err := r.outbox.MarkSent(ctx, msg.ID, r.clock().UTC()); err != nil {
				errs = append(errs, err)
				continue
			}
			sent++
			continue
		}
		if err := r.recordFailure(ctx, msg, pubErr); err != nil {
			errs = append(errs, err)
		}
	}
	return sent, errors.Join(errs...)
}

func (r *Relay) recordFailure(ctx context.Context, msg repositories.OutboxMessage, pubErr error) error {
	attempt := msg.Attempts + 1
	failedAt := r.clock().UTC()
	fields := []zap.Field{
		zap.String("eventId", msg.ID),
		zap.String("eventType", msg.EventType),
		zap.Int("attempts", attempt),
		zap.Error(pubErr),
	}
	if attempt >= r.attempts {
		r.logger.Error("outbox message dead-lettered", fields...)
		return r.outbox.MarkDead(ctx, msg.ID, pubErr.Error(), failedAt)
	}
	retryAt := failedAt.Add(r.retryDelay(attempt))
	r.logger.Warn("outbox publish failed", append(fields, zap.Time("retryAt", retryAt))...)
	return r.outbox.MarkFailed(ctx, msg.ID, pubErr.Error(), retryAt)
}

// retryDelay is Backoff doubled per earlier failure and capped at MaxBackoff.
func (r *Relay) retryDelay(attempt int) time.Duration {
	delay := r.backoff
	for i := 1; i < attempt; i++ {
		if delay >= r.maxDelay/2 {
			return r.maxDelay
		}
		delay *= 2
	}
	return min(delay, r.maxDelay)
}
