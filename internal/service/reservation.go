package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/model"
	"github.com/mpetrova/library-system/internal/repository"
)

// ReserveBook ставит читателя в очередь на книгу без доступных экземпляров.
// Бронь действует семь дней. Текущие держатели книги получают уведомление
// о том, что книгу ожидают; сбой уведомления не отменяет бронь.
func (s *Service) ReserveBook(ctx context.Context, actorID, bookID, branchID int64) (*model.Reservation, error) {
	user, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	reserveTime := s.now()
	expiryTime := reserveTime.AddDate(0, 0, reservationHoldDays)

	res, err := s.repo.CreateReservation(ctx, actorID, bookID, branchID, reserveTime, expiryTime)
	if err != nil {
		return nil, err
	}

	s.notifyCurrentBorrowers(ctx, bookID, user)

	return res, nil
}

// CancelReservation отменяет бронь. Отменить может владелец брони либо
// администратор филиала. После отмены очередь книги продвигается повторно,
// даже если число экземпляров не изменилось.
func (s *Service) CancelReservation(ctx context.Context, actorID, reservationID int64) error {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return err
	}

	res, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.UserID != actorID && !canAdminister(actor, res.BranchID) {
		return ErrForbidden
	}

	if _, err := s.repo.CancelReservation(ctx, reservationID); err != nil {
		return err
	}

	if err := s.promoteBook(ctx, res.BookID); err != nil {
		s.logger.Error("promote after cancel", zap.Error(err), zap.Int64("bookID", res.BookID))
	}

	return nil
}

// CompleteReservation продвигает бронь на следующий шаг: PENDING становится
// READY (ручной перевод), READY становится COMPLETED (читатель забрал книгу).
func (s *Service) CompleteReservation(ctx context.Context, actorID, reservationID int64) (*model.Reservation, error) {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	res, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.UserID != actorID && !canAdminister(actor, res.BranchID) {
		return nil, ErrForbidden
	}

	wasPending := res.Status == model.ReservationStatusPending

	updated, err := s.repo.CompleteReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if wasPending && updated.Status == model.ReservationStatusReady {
		s.notifyReservationReady(ctx, updated)
	}

	return updated, nil
}

// BookReservationQueue возвращает очередь броней книги по времени брони.
// Перед выдачей очереди отменяются просроченные брони, чтобы представление
// было согласовано с фактическим состоянием.
func (s *Service) BookReservationQueue(ctx context.Context, bookID int64) ([]repository.ReservationQueueEntry, error) {
	if err := s.SweepExpiredReservations(ctx); err != nil {
		s.logger.Error("sweep before queue view", zap.Error(err), zap.Int64("bookID", bookID))
	}

	return s.repo.ListBookQueue(ctx, bookID)
}

// MyReservations возвращает брони читателя.
func (s *Service) MyReservations(ctx context.Context, actorID int64) ([]model.Reservation, error) {
	return s.repo.ListReservationsByUser(ctx, actorID)
}

// AllReservations возвращает брони по фильтрам филиала и статуса (административная операция).
func (s *Service) AllReservations(ctx context.Context, branchID *int64, status *model.ReservationStatus) ([]model.Reservation, error) {
	return s.repo.ListReservations(ctx, branchID, status)
}

// promoteBook продвигает самые ранние PENDING-брони книги в READY и
// уведомляет их владельцев о готовности книги к выдаче.
func (s *Service) promoteBook(ctx context.Context, bookID int64) error {
	promoted, err := s.repo.PromoteReservations(ctx, bookID)
	if err != nil {
		return err
	}

	for i := range promoted {
		s.notifyReservationReady(ctx, &promoted[i])
	}
	return nil
}

func (s *Service) notifyReservationReady(ctx context.Context, res *model.Reservation) {
	book, err := s.repo.GetBook(ctx, res.BookID)
	if err != nil {
		s.logger.Error("notify reservation ready: get book", zap.Error(err), zap.Int64("reservationID", res.ID))
		return
	}

	title := fmt.Sprintf("Книга доступна для выдачи — %s", book.Name)
	content := fmt.Sprintf(
		"Забронированная вами книга «%s» (%s, ISBN %s) готова к выдаче в филиале %d.\n"+
			"Номер брони: %d. Пожалуйста, заберите книгу в ближайшее время.",
		book.Name, book.Author, book.ISBN, res.BranchID, res.ID,
	)
	s.notify(ctx, res.UserID, model.NotificationReservationAvailable, title, content)
}

func (s *Service) notifyCurrentBorrowers(ctx context.Context, bookID int64, reserver *model.User) {
	holders, err := s.repo.ListActiveBorrowsByBook(ctx, bookID)
	if err != nil {
		s.logger.Error("notify borrowers: list holders", zap.Error(err), zap.Int64("bookID", bookID))
		return
	}
	if len(holders) == 0 {
		return
	}

	book, err := s.repo.GetBook(ctx, bookID)
	if err != nil {
		s.logger.Error("notify borrowers: get book", zap.Error(err), zap.Int64("bookID", bookID))
		return
	}

	title := fmt.Sprintf("Книгу ожидает другой читатель — %s", book.Name)
	for _, h := range holders {
		content := fmt.Sprintf(
			"Книга «%s» (%s, ISBN %s), которую вы взяли, забронирована читателем %s.\n"+
				"Срок вашего возврата: %s. Пожалуйста, верните книгу вовремя.",
			book.Name, book.Author, book.ISBN, reserver.RealName,
			h.DueTime.Format("2006-01-02 15:04"),
		)
		s.notify(ctx, h.UserID, model.NotificationReservationReminder, title, content)
	}
}
