package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/model"
)

// BorrowBook выдаёт книгу читателю. Срок возврата зависит от категории
// пользователя, для студентов действует лимит одновременных выдач.
// Все проверки допуска (штрафы, остаток, филиал, лимит) выполняются
// в одной транзакции репозитория.
func (s *Service) BorrowBook(ctx context.Context, actorID, bookID, branchID int64) (*model.BorrowRecord, error) {
	user, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	borrowTime := s.now()
	dueTime := borrowTime.AddDate(0, 0, loanDays(user.Type))

	loanLimit := 0
	if user.Type == model.UserTypeStudent {
		loanLimit = studentLoanLimit
	}

	return s.repo.CreateBorrow(ctx, actorID, bookID, branchID, borrowTime, dueTime, loanLimit)
}

// ReturnBook закрывает выдачу. Вернуть книгу может сам читатель либо
// администратор соответствующего филиала. После возврата продвигается
// очередь броней на эту книгу.
func (s *Service) ReturnBook(ctx context.Context, actorID, borrowID int64) (*model.BorrowRecord, error) {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.GetBorrowRecord(ctx, borrowID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != actorID && !canAdminister(actor, rec.BranchID) {
		return nil, ErrForbidden
	}

	updated, err := s.repo.CompleteReturn(ctx, borrowID, s.now(), fineCentsPerOverdueDay)
	if err != nil {
		return nil, err
	}

	// Возврат уже зафиксирован: сбой продвижения очереди не отменяет его,
	// следующий возврат или плановая проверка продвинут очередь повторно.
	if err := s.promoteBook(ctx, rec.BookID); err != nil {
		s.logger.Error("promote after return", zap.Error(err), zap.Int64("bookID", rec.BookID))
	}

	return updated, nil
}

// RenewBook продлевает срок возврата активной выдачи. Продление невозможно,
// если на книгу есть ожидающие брони или выдача уже просрочена.
func (s *Service) RenewBook(ctx context.Context, actorID, bookID int64) (time.Time, error) {
	rec, err := s.repo.GetActiveBorrow(ctx, actorID, bookID)
	if err != nil {
		return time.Time{}, err
	}

	hasPending, err := s.repo.HasPendingReservations(ctx, bookID)
	if err != nil {
		return time.Time{}, err
	}
	if hasPending {
		return time.Time{}, ErrHasReservation
	}

	if rec.Status == model.BorrowStatusOverdue || rec.OverdueDays > 0 {
		return time.Time{}, ErrOverdue
	}

	user, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return time.Time{}, err
	}

	newDue := rec.DueTime.AddDate(0, 0, loanDays(user.Type))
	if err := s.repo.UpdateDueTime(ctx, rec.ID, newDue); err != nil {
		return time.Time{}, err
	}

	return newDue, nil
}

// MyBorrows возвращает активные выдачи читателя.
func (s *Service) MyBorrows(ctx context.Context, actorID int64) ([]model.BorrowRecord, error) {
	return s.repo.ListBorrowsByUser(ctx, actorID, []model.BorrowStatus{model.BorrowStatusBorrowed})
}

// MyBorrowHistory возвращает завершённые и просроченные выдачи читателя.
func (s *Service) MyBorrowHistory(ctx context.Context, actorID int64) ([]model.BorrowRecord, error) {
	return s.repo.ListBorrowsByUser(ctx, actorID,
		[]model.BorrowStatus{model.BorrowStatusReturned, model.BorrowStatusOverdue})
}

// AllBorrows возвращает выдачи по фильтрам филиала и статуса (административная операция).
func (s *Service) AllBorrows(ctx context.Context, branchID *int64, status *model.BorrowStatus) ([]model.BorrowRecord, error) {
	return s.repo.ListBorrows(ctx, branchID, status)
}
