package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/model"
)

// Дни просрочки, в которые отправляется напоминание: вторая, шестая и
// десятая неделя после срока возврата.
var reminderDayMarks = map[int]int{14: 1, 42: 2, 70: 3}

// SweepOverdue помечает просроченные выдачи статусом OVERDUE и обновляет
// число дней просрочки. Операция идемпотентна: повторный запуск только
// освежает overdue_days.
func (s *Service) SweepOverdue(ctx context.Context) error {
	updated, err := s.repo.MarkOverdue(ctx, s.now())
	if err != nil {
		return fmt.Errorf("sweep overdue: %w", err)
	}

	if updated > 0 {
		s.logger.Info("overdue sweep finished", zap.Int64("updated", updated))
	}
	return nil
}

// SweepExpiredReservations отменяет PENDING-брони с истёкшим сроком,
// уведомляет их владельцев и продвигает очередь каждой затронутой книги.
// Сбои по отдельным броням логируются, обработка остальных продолжается.
func (s *Service) SweepExpiredReservations(ctx context.Context) error {
	expired, err := s.repo.ExpireReservations(ctx, s.now())
	if err != nil {
		return fmt.Errorf("expire reservations: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}

	books := make(map[int64]struct{})
	for i := range expired {
		res := &expired[i]
		books[res.BookID] = struct{}{}
		s.notifyReservationExpired(ctx, res)
	}

	for bookID := range books {
		if err := s.promoteBook(ctx, bookID); err != nil {
			s.logger.Error("promote after expiry", zap.Error(err), zap.Int64("bookID", bookID))
		}
	}

	s.logger.Info("reservation expiry sweep finished", zap.Int("cancelled", len(expired)))
	return nil
}

// SendOverdueReminders рассылает напоминания по просроченным выдачам ровно
// на 14-й, 42-й и 70-й день просрочки. В счётчике хранится номер последнего
// отправленного напоминания: запуски чаще раза в день и пропущенные отметки
// не приводят к повторной отправке в один день.
func (s *Service) SendOverdueReminders(ctx context.Context) error {
	records, err := s.repo.ListOpenOverdue(ctx)
	if err != nil {
		return fmt.Errorf("list overdue: %w", err)
	}

	now := s.now()
	sent := 0
	for i := range records {
		rec := &records[i]

		elapsedDays := int(now.Sub(rec.DueTime).Hours() / 24)
		ordinal, hit := reminderDayMarks[elapsedDays]
		if !hit || rec.ReminderCount >= ordinal {
			continue
		}

		s.sendOverdueReminder(ctx, rec, elapsedDays)

		if err := s.repo.SetReminderCount(ctx, rec.ID, ordinal); err != nil {
			s.logger.Error("set reminder count", zap.Error(err), zap.Int64("borrowID", rec.ID))
			continue
		}
		sent++
	}

	if sent > 0 {
		s.logger.Info("overdue reminders sent", zap.Int("count", sent))
	}
	return nil
}

// FlushPendingNotifications отправляет накопившиеся письма через почтовый
// шлюз. Сбой отправки помечает письмо и не останавливает остальные.
func (s *Service) FlushPendingNotifications(ctx context.Context) error {
	if s.mailer == nil {
		return nil
	}

	pending, err := s.repo.ListPendingEmails(ctx, 100)
	if err != nil {
		return fmt.Errorf("list pending emails: %w", err)
	}

	for i := range pending {
		e := &pending[i]

		if err := s.mailer.Send(ctx, e.Email, e.Subject, e.Content); err != nil {
			s.logger.Error("send email", zap.Error(err), zap.Int64("emailID", e.ID))
			if markErr := s.repo.MarkEmailFailed(ctx, e.ID, err.Error()); markErr != nil {
				s.logger.Error("mark email failed", zap.Error(markErr), zap.Int64("emailID", e.ID))
			}
			continue
		}

		if err := s.repo.MarkEmailSent(ctx, e.ID, s.now()); err != nil {
			s.logger.Error("mark email sent", zap.Error(err), zap.Int64("emailID", e.ID))
		}
	}

	return nil
}

func (s *Service) sendOverdueReminder(ctx context.Context, rec *model.BorrowRecord, elapsedDays int) {
	book, err := s.repo.GetBook(ctx, rec.BookID)
	if err != nil {
		s.logger.Error("overdue reminder: get book", zap.Error(err), zap.Int64("borrowID", rec.ID))
		return
	}

	// Показываемая сумма не включает первые 30 дней просрочки,
	// штраф при возврате считается без вычета.
	displayedFine := float64(elapsedDays-reminderGraceDays) * float64(fineCentsPerOverdueDay) / 100
	if displayedFine < 0 {
		displayedFine = 0
	}

	weeks := elapsedDays / 7
	title := fmt.Sprintf("Напоминание о просрочке (неделя %d) — %s", weeks, book.Name)
	content := fmt.Sprintf(
		"Книга «%s» (%s, ISBN %s) просрочена на %d дн.\n"+
			"Срок возврата: %s.\n"+
			"Текущий штраф: %.2f руб.\n"+
			"Пожалуйста, верните книгу как можно скорее.",
		book.Name, book.Author, book.ISBN, elapsedDays,
		rec.DueTime.Format("2006-01-02"), displayedFine,
	)
	s.notify(ctx, rec.UserID, model.NotificationOverdueReminder, title, content)
}

func (s *Service) notifyReservationExpired(ctx context.Context, res *model.Reservation) {
	book, err := s.repo.GetBook(ctx, res.BookID)
	if err != nil {
		s.logger.Error("expiry notice: get book", zap.Error(err), zap.Int64("reservationID", res.ID))
		return
	}

	title := fmt.Sprintf("Бронь отменена по истечении срока — %s", book.Name)
	content := fmt.Sprintf(
		"Срок вашей брони на книгу «%s» (%s, ISBN %s) истёк %s, бронь отменена.\n"+
			"Вы можете забронировать книгу заново.",
		book.Name, book.Author, book.ISBN, res.ExpiryTime.Format("2006-01-02 15:04"),
	)
	s.notify(ctx, res.UserID, model.NotificationReservationExpiry, title, content)
}
