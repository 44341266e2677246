package memory

import (
	"context"
	"time"

	"github.com/hanko-field/commerce/internal/repositories"
)

type outboxRepository struct{ r *Registry }

func (o outboxRepository) Enqueue(ctx context.Context, msg repositories.OutboxMessage) error {
	return o.r.with(ctx, func(s *state) error {
		s.outbox = append(s.outbox, msg)
		return nil
	})
}

func (o outboxRepository) ClaimDue(ctx context.Context, asOf, leaseUntil time.Time, limit int) ([]repositories.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []repositories.OutboxMessage
	err := o.r.with(ctx, func(s *state) error {
		for i := range s.outbox {
			msg := &s.outbox[i]
			if msg.SentAt != nil || msg.DeadAt != nil || msg.NextAttemptAt.After(asOf) {
				continue
			}
			msg.NextAttemptAt = leaseUntil
			out = append(out, *msg)
			if len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (o outboxRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return o.mark(ctx, "outbox.mark_sent", id, func(msg *repositories.OutboxMessage) {
		msg.SentAt = &sentAt
		msg.LastError = ""
		msg.Attempts++
	})
}

func (o outboxRepository) MarkFailed(ctx context.Context, id string, reason string, retryAt time.Time) error {
	return o.mark(ctx, "outbox.mark_failed", id, func(msg *repositories.OutboxMessage) {
		msg.LastError = reason
		msg.NextAttemptAt = retryAt
		msg.Attempts++
	})
}

func (o outboxRepository) MarkDead(ctx context.Context, id string, reason string, deadAt time.Time) error {
	return o.mark(ctx, "outbox.mark_dead", id, func(msg *repositories.OutboxMessage) {
		msg.LastError = reason
		msg.DeadAt = &deadAt
		msg.Attempts++
	})
}

func (o outboxRepository) mark(ctx context.Context, op, id string, mutate func(*repositories.OutboxMessage)) error {
	return o.r.with(ctx, func(s *state) error {
		for i := range s.outbox {
			if s.outbox[i].ID == id {
				mutate(&s.outbox[i])
				return nil
			}
		}
		return notFound(op, "outbox message %s not found", id)
	})
}
