package service

import (
	"context"

	"github.com/mpetrova/library-system/internal/model"
)

// MyFines возвращает штрафы читателя.
func (s *Service) MyFines(ctx context.Context, actorID int64) ([]model.Fine, error) {
	return s.repo.ListFinesByUser(ctx, actorID)
}

// FineDetail возвращает штраф, если он принадлежит читателю либо актор
// является администратором соответствующего филиала.
func (s *Service) FineDetail(ctx context.Context, actorID, fineID int64) (*model.Fine, error) {
	fine, _, err := s.fineForActor(ctx, actorID, fineID)
	return fine, err
}

// PayFine помечает штраф оплаченным. Платить может должник или администратор.
func (s *Service) PayFine(ctx context.Context, actorID, fineID int64) error {
	fine, _, err := s.fineForActor(ctx, actorID, fineID)
	if err != nil {
		return err
	}
	return s.repo.PayFines(ctx, []int64{fine.ID}, s.now())
}

// BatchPayFines помечает несколько штрафов оплаченными одной операцией.
// Если хотя бы один штраф чужой или уже оплачен, отклоняется весь набор.
func (s *Service) BatchPayFines(ctx context.Context, actorID int64, fineIDs []int64) error {
	for _, id := range fineIDs {
		if _, _, err := s.fineForActor(ctx, actorID, id); err != nil {
			return err
		}
	}
	return s.repo.PayFines(ctx, fineIDs, s.now())
}

// TotalUnpaidFine возвращает сумму неоплаченных штрафов читателя.
func (s *Service) TotalUnpaidFine(ctx context.Context, userID int64) (float64, error) {
	cents, err := s.repo.GetTotalUnpaidFine(ctx, userID)
	if err != nil {
		return 0, err
	}
	return float64(cents) / 100, nil
}

// AllFines возвращает штрафы по фильтрам филиала и статуса оплаты (административная операция).
func (s *Service) AllFines(ctx context.Context, branchID *int64, payStatus *model.FinePayStatus) ([]model.Fine, error) {
	return s.repo.ListFines(ctx, branchID, payStatus)
}

// SetFineStatus выставляет статус оплаты штрафа (административная операция).
func (s *Service) SetFineStatus(ctx context.Context, actorID, fineID int64, status model.FinePayStatus) error {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return err
	}

	fine, err := s.repo.GetFine(ctx, fineID)
	if err != nil {
		return err
	}

	rec, err := s.repo.GetBorrowRecord(ctx, fine.RecordID)
	if err != nil {
		return err
	}
	if !canAdminister(actor, rec.BranchID) {
		return ErrForbidden
	}

	return s.repo.SetFinePayStatus(ctx, fineID, status, s.now())
}

// fineForActor возвращает штраф вместе со связанной записью о выдаче,
// проверяя права актора: должник либо администратор филиала записи.
func (s *Service) fineForActor(ctx context.Context, actorID, fineID int64) (*model.Fine, *model.BorrowRecord, error) {
	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}

	fine, err := s.repo.GetFine(ctx, fineID)
	if err != nil {
		return nil, nil, err
	}

	rec, err := s.repo.GetBorrowRecord(ctx, fine.RecordID)
	if err != nil {
		return nil, nil, err
	}
	if rec.UserID != actorID && !canAdminister(actor, rec.BranchID) {
		return nil, nil, ErrForbidden
	}

	return fine, rec, nil
}
