package engine

import (
	"context"
	"fmt"

	"taskping/internal/model"
)

// ListUnread returns a user's unread notifications, newest first.
func (e *Engine) ListUnread(ctx context.Context, userID string) ([]model.Notification, error) {
	ns, err := e.store.GetUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing unread: %w", err)
	}
	return ns, nil
}

// MarkRead flags notifications as read. Unknown ids are ignored, so
// the call is idempotent.
func (e *Engine) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := e.store.MarkNotificationsRead(ctx, ids); err != nil {
		return fmt.Errorf("marking read: %w", err)
	}
	return nil
}
