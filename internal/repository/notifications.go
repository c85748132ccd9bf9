package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mpetrova/library-system/internal/model"
)

// CreateNotification сохраняет внутрисистемное уведомление пользователя.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (user_id, title, content, type, important, read, created_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		n.UserID, n.Title, n.Content, string(n.Type), n.Important, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotificationsByUser возвращает уведомления пользователя, новые первыми.
func (r *PostgresRepository) ListNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, title, content, type, important, read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var n model.Notification
		var nType string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &nType, &n.Important, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = model.NotificationType(nType)
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountUnreadNotifications возвращает число непрочитанных уведомлений пользователя.
func (r *PostgresRepository) CountUnreadNotifications(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead помечает уведомление пользователя прочитанным.
// Чужие и несуществующие уведомления неразличимы для вызывающего.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, notificationID, userID int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`,
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllNotificationsRead помечает все уведомления пользователя прочитанными.
func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// EnqueueEmail ставит письмо в очередь отправки через почтовый шлюз.
func (r *PostgresRepository) EnqueueEmail(ctx context.Context, e *model.OutboxEmail) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO email_outbox (user_id, email, subject, content, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.UserID, e.Email, e.Subject, e.Content, string(model.OutboxPending), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// ListPendingEmails возвращает письма, ожидающие отправки, старые первыми.
func (r *PostgresRepository) ListPendingEmails(ctx context.Context, limit int) ([]model.OutboxEmail, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, email, subject, content, status, created_at, sent_at, last_error
		 FROM email_outbox
		 WHERE status = $1
		 ORDER BY created_at
		 LIMIT $2`,
		string(model.OutboxPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending emails: %w", err)
	}
	defer rows.Close()

	var res []model.OutboxEmail
	for rows.Next() {
		var e model.OutboxEmail
		var status string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Email, &e.Subject, &e.Content, &status, &e.CreatedAt, &e.SentAt, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox email: %w", err)
		}
		e.Status = model.OutboxStatus(status)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkEmailSent помечает письмо отправленным.
func (r *PostgresRepository) MarkEmailSent(ctx context.Context, emailID int64, sentAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE email_outbox SET status = $2, sent_at = $3, last_error = '' WHERE id = $1`,
		emailID, string(model.OutboxSent), sentAt,
	)
	if err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}

// MarkEmailFailed помечает письмо неотправленным с текстом ошибки.
func (r *PostgresRepository) MarkEmailFailed(ctx context.Context, emailID int64, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE email_outbox SET status = $2, last_error = $3 WHERE id = $1`,
		emailID, string(model.OutboxFailed), reason,
	)
	if err != nil {
		return fmt.Errorf("mark email failed: %w", err)
	}
	return nil
}
