package postgres

import (
	"context"

	domain "github.com/hanko-field/commerce/internal/domain"
	ppostgres "github.com/hanko-field/commerce/internal/platform/postgres"
)

// NotificationRepository records user-facing notifications.
type NotificationRepository struct {
	db *ppostgres.Provider
}

// NewNotificationRepository constructs a NotificationRepository.
func NewNotificationRepository(db *ppostgres.Provider) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Insert(ctx context.Context, n domain.Notification) error {
	_, err := r.db.Conn(ctx).Exec(ctx,
		`INSERT INTO notifications (id, account_id, kind, title, body, reference, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.AccountID, n.Kind, n.Title, n.Body, n.Reference, n.CreatedAt)
	return ppostgres.WrapError("notifications.insert", err)
}
