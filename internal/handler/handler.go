// Package handler содержит HTTP-обработчики API библиотечной системы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/middleware"
	"github.com/mpetrova/library-system/internal/model"
	"github.com/mpetrova/library-system/internal/repository"
	"github.com/mpetrova/library-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password, realName, email string, userType model.UserType) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (*model.User, error)
	GetUser(ctx context.Context, userID int64) (*model.User, error)

	BorrowBook(ctx context.Context, actorID, bookID, branchID int64) (*model.BorrowRecord, error)
	ReturnBook(ctx context.Context, actorID, borrowID int64) (*model.BorrowRecord, error)
	RenewBook(ctx context.Context, actorID, bookID int64) (time.Time, error)
	MyBorrows(ctx context.Context, actorID int64) ([]model.BorrowRecord, error)
	MyBorrowHistory(ctx context.Context, actorID int64) ([]model.BorrowRecord, error)
	AllBorrows(ctx context.Context, branchID *int64, status *model.BorrowStatus) ([]model.BorrowRecord, error)

	ReserveBook(ctx context.Context, actorID, bookID, branchID int64) (*model.Reservation, error)
	CancelReservation(ctx context.Context, actorID, reservationID int64) error
	CompleteReservation(ctx context.Context, actorID, reservationID int64) (*model.Reservation, error)
	BookReservationQueue(ctx context.Context, bookID int64) ([]repository.ReservationQueueEntry, error)
	MyReservations(ctx context.Context, actorID int64) ([]model.Reservation, error)
	AllReservations(ctx context.Context, branchID *int64, status *model.ReservationStatus) ([]model.Reservation, error)

	MyFines(ctx context.Context, actorID int64) ([]model.Fine, error)
	FineDetail(ctx context.Context, actorID, fineID int64) (*model.Fine, error)
	PayFine(ctx context.Context, actorID, fineID int64) error
	BatchPayFines(ctx context.Context, actorID int64, fineIDs []int64) error
	AllFines(ctx context.Context, branchID *int64, payStatus *model.FinePayStatus) ([]model.Fine, error)
	SetFineStatus(ctx context.Context, actorID, fineID int64, status model.FinePayStatus) error

	MyNotifications(ctx context.Context, actorID int64) ([]model.Notification, error)
	UnreadNotificationCount(ctx context.Context, actorID int64) (int64, error)
	MarkNotificationRead(ctx context.Context, actorID, notificationID int64) error
	MarkAllNotificationsRead(ctx context.Context, actorID int64) error
}

// Handler реализует HTTP-обработчики API библиотечной системы.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// envelope описывает единый формат ответа API.
type envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, httpStatus int, e envelope) {
	e.Timestamp = time.Now().Unix()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(e)
}

func writeSuccess(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: http.StatusOK, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, httpStatus int, message string) {
	writeJSON(w, httpStatus, envelope{Code: httpStatus, Message: message})
}

// errorStatus сопоставляет доменные ошибки коду HTTP и сообщению пользователю.
// Нарушения предусловий и конфликты состояний отдаются как 400,
// отсутствие сущностей как 404, нехватка прав как 403.
func errorStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, repository.ErrUnpaidFines):
		return http.StatusBadRequest, "существуют неоплаченные штрафы, выдача невозможна", true
	case errors.Is(err, repository.ErrWrongBranch):
		return http.StatusBadRequest, "книга не принадлежит этому филиалу", true
	case errors.Is(err, repository.ErrNoStock):
		return http.StatusBadRequest, "нет доступных экземпляров, попробуйте бронь", true
	case errors.Is(err, repository.ErrLoanLimit):
		return http.StatusBadRequest, "студент может держать не более 16 книг", true
	case errors.Is(err, repository.ErrAlreadyBorrowed):
		return http.StatusBadRequest, "эта книга уже у вас на руках", true
	case errors.Is(err, repository.ErrAlreadyReturned):
		return http.StatusBadRequest, "книга уже возвращена", true
	case errors.Is(err, repository.ErrBookAvailable):
		return http.StatusBadRequest, "книга доступна, возьмите её без брони", true
	case errors.Is(err, repository.ErrDuplicateReservation):
		return http.StatusBadRequest, "у вас уже есть активная бронь этой книги", true
	case errors.Is(err, repository.ErrReservationClosed):
		return http.StatusBadRequest, "бронь уже отменена или завершена", true
	case errors.Is(err, repository.ErrFinePaid):
		return http.StatusBadRequest, "штраф уже оплачен", true
	case errors.Is(err, service.ErrHasReservation):
		return http.StatusBadRequest, "на книгу есть брони, продление невозможно", true
	case errors.Is(err, service.ErrOverdue):
		return http.StatusBadRequest, "выдача просрочена, продление невозможно", true
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "недостаточно прав для этой операции", true
	case errors.Is(err, repository.ErrBookNotFound):
		return http.StatusNotFound, "книга не найдена", true
	case errors.Is(err, repository.ErrBorrowNotFound):
		return http.StatusNotFound, "запись о выдаче не найдена", true
	case errors.Is(err, repository.ErrReservationNotFound):
		return http.StatusNotFound, "бронь не найдена", true
	case errors.Is(err, repository.ErrFineNotFound):
		return http.StatusNotFound, "штраф не найден", true
	case errors.Is(err, repository.ErrNotificationNotFound):
		return http.StatusNotFound, "уведомление не найдено", true
	case errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, "пользователь не найден", true
	}
	return 0, "", false
}

// respondError пишет доменную ошибку в ответ; неизвестные ошибки логируются и отдаются как 500.
func (h *Handler) respondError(w http.ResponseWriter, err error, op string, fields ...zap.Field) {
	if status, msg, ok := errorStatus(err); ok {
		writeError(w, status, msg)
		return
	}

	h.logger.Error(op, append([]zap.Field{zap.Error(err)}, fields...)...)
	writeError(w, http.StatusInternalServerError, "внутренняя ошибка сервера")
}

// actorID извлекает идентификатор пользователя, установленный auth middleware.
func actorID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "требуется вход в систему")
		return 0, false
	}
	return id, true
}

// requireAdmin возвращает актора, если тот обладает административными правами.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, ok := actorID(w, r)
	if !ok {
		return nil, false
	}

	actor, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, err, "resolve actor", zap.Int64("userID", id))
		return nil, false
	}

	if !actor.Type.IsAdmin() {
		writeError(w, http.StatusForbidden, "требуются права администратора")
		return nil, false
	}

	return actor, true
}
