package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
	"github.com/hanko-field/commerce/internal/repositories"
)

// OutboxRepository stores events alongside the writes that produced them.
type OutboxRepository struct {
	db *ppostgres.Provider
}

// NewOutboxRepository constructs an OutboxRepository.
func NewOutboxRepository(db *ppostgres.Provider) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg repositories.OutboxMessage) error {
	due := msg.NextAttemptAt
	if due.IsZero() {
		due = msg.CreatedAt
	}
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO outbox (id, topic, key, event_type, payload, created_at, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.Topic, msg.Key, msg.EventType, msg.Payload, msg.CreatedAt, due)
	return ppostgres.WrapError("outbox.enqueue", err)
}

// ClaimDue leases due rows in one statement. Rows locked by a concurrent claim are skipped.
func (r *OutboxRepository) ClaimDue(ctx context.Context, asOf, leaseUntil time.Time, limit int) ([]repositories.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Conn(ctx).Query(ctx,
		`WITH due AS (
		     SELECT id FROM outbox
		     WHERE sent_at IS NULL AND dead_at IS NULL AND next_attempt_at <= $1
		     ORDER BY seq LIMIT $3 FOR UPDATE SKIP LOCKED
		 ), claimed AS (
		     UPDATE outbox o SET next_attempt_at = $2 FROM due WHERE o.id = due.id
		     RETURNING o.seq, o.id, o.topic, o.key, o.event_type, o.payload, o.attempts, o.last_error,
		               o.created_at, o.next_attempt_at, o.sent_at, o.dead_at
		 )
		 SELECT id, topic, key, event_type, payload, attempts, last_error, created_at, next_attempt_at, sent_at, dead_at
		 FROM claimed ORDER BY seq`, asOf, leaseUntil, limit)
	if err != nil {
		return nil, ppostgres.WrapError("outbox.claim_due", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repositories.OutboxMessage, error) {
		var msg repositories.OutboxMessage
		err := row.Scan(&msg.ID, &msg.Topic, &msg.Key, &msg.EventType, &msg.Payload, &msg.Attempts,
			&msg.LastError, &msg.CreatedAt, &msg.NextAttemptAt, &msg.SentAt, &msg.DeadAt)
		return msg, err
	})
	if err != nil {
		return nil, ppostgres.WrapError("outbox.claim_due", err)
	}
	return msgs, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE outbox SET sent_at = $2, attempts = attempts + 1, last_error = '' WHERE id = $1`, id, sentAt)
	return ppostgres.WrapError("outbox.mark_sent", err)
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id string, reason string, retryAt time.Time) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3 WHERE id = $1`, id, reason, retryAt)
	return ppostgres.WrapError("outbox.mark_failed", err)
}

func (r *OutboxRepository) MarkDead(ctx context.Context, id string, reason string, deadAt time.Time) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`UPDATE outbox SET attempts = attempts + 1, last_error = $2, dead_at = $3 WHERE id = $1`, id, reason, deadAt)
	return ppostgres.WrapError("outbox.mark_dead", err)
}
