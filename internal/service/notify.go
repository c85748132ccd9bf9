package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/model"
)

// notify сохраняет внутрисистемное уведомление и ставит письмо в очередь
// отправки. Уведомления доставляются по принципу fire-and-forget: любой
// сбой логируется и не влияет на вызвавшую операцию.
func (s *Service) notify(ctx context.Context, userID int64, nType model.NotificationType, title, content string) {
	now := s.now()

	err := s.repo.CreateNotification(ctx, &model.Notification{
		UserID:    userID,
		Title:     title,
		Content:   content,
		Type:      nType,
		Important: nType == model.NotificationOverdueReminder,
		CreatedAt: now,
	})
	if err != nil {
		s.logger.Error("create notification", zap.Error(err), zap.Int64("userID", userID))
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		s.logger.Error("notify: get user", zap.Error(err), zap.Int64("userID", userID))
		return
	}
	if user.Email == "" {
		return
	}

	err = s.repo.EnqueueEmail(ctx, &model.OutboxEmail{
		UserID:    userID,
		Email:     user.Email,
		Subject:   title,
		Content:   content,
		CreatedAt: now,
	})
	if err != nil {
		s.logger.Error("enqueue email", zap.Error(err), zap.Int64("userID", userID))
	}
}

// MyNotifications возвращает уведомления пользователя, новые первыми.
func (s *Service) MyNotifications(ctx context.Context, actorID int64) ([]model.Notification, error) {
	return s.repo.ListNotificationsByUser(ctx, actorID)
}

// UnreadNotificationCount возвращает число непрочитанных уведомлений пользователя.
func (s *Service) UnreadNotificationCount(ctx context.Context, actorID int64) (int64, error) {
	return s.repo.CountUnreadNotifications(ctx, actorID)
}

// MarkNotificationRead помечает уведомление пользователя прочитанным.
func (s *Service) MarkNotificationRead(ctx context.Context, actorID, notificationID int64) error {
	return s.repo.MarkNotificationRead(ctx, notificationID, actorID)
}

// MarkAllNotificationsRead помечает все уведомления пользователя прочитанными.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, actorID int64) error {
	return s.repo.MarkAllNotificationsRead(ctx, actorID)
}
