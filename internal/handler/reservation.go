package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/model"
)

type reserveRequest struct {
	BookID   int64 `json:"bookId"`
	BranchID int64 `json:"branchId"`
}

// Reserve ставит текущего пользователя в очередь брони на книгу.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "неверный формат запроса")
		return
	}
	if req.BookID <= 0 || req.BranchID <= 0 {
		writeError(w, http.StatusBadRequest, "bookId и branchId обязательны")
		return
	}

	res, err := h.service.ReserveBook(r.Context(), userID, req.BookID, req.BranchID)
	if err != nil {
		h.respondError(w, err, "reserve book",
			zap.Int64("userID", userID), zap.Int64("bookID", req.BookID))
		return
	}

	writeSuccess(w, "бронь оформлена", res)
}

// CancelReservation отменяет бронь текущего пользователя.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	reservationID, err := strconv.ParseInt(chi.URLParam(r, "reservationId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор брони")
		return
	}

	if err := h.service.CancelReservation(r.Context(), userID, reservationID); err != nil {
		h.respondError(w, err, "cancel reservation",
			zap.Int64("userID", userID), zap.Int64("reservationID", reservationID))
		return
	}

	writeSuccess(w, "бронь отменена", nil)
}

// CompleteReservation переводит бронь на следующий шаг жизненного цикла:
// ожидающую делает готовой к выдаче, готовую закрывает.
func (h *Handler) CompleteReservation(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	reservationID, err := strconv.ParseInt(chi.URLParam(r, "reservationId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор брони")
		return
	}

	res, err := h.service.CompleteReservation(r.Context(), userID, reservationID)
	if err != nil {
		h.respondError(w, err, "complete reservation",
			zap.Int64("userID", userID), zap.Int64("reservationID", reservationID))
		return
	}

	writeSuccess(w, "статус брони обновлён", res)
}

// BookQueue возвращает очередь ожидающих броней на книгу в порядке оформления.
func (h *Handler) BookQueue(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorID(w, r); !ok {
		return
	}

	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор книги")
		return
	}

	queue, err := h.service.BookReservationQueue(r.Context(), bookID)
	if err != nil {
		h.respondError(w, err, "book queue", zap.Int64("bookID", bookID))
		return
	}

	writeSuccess(w, "ok", queue)
}

// MyReservations возвращает брони текущего пользователя.
func (h *Handler) MyReservations(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	reservations, err := h.service.MyReservations(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "list reservations", zap.Int64("userID", userID))
		return
	}

	writeSuccess(w, "ok", reservations)
}

// AllReservations возвращает брони по всем пользователям с фильтрами для администратора.
func (h *Handler) AllReservations(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	branchID, err := branchFilter(r, actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор филиала")
		return
	}

	var status *model.ReservationStatus
	if s := r.URL.Query().Get("status"); s != "" {
		rs := model.ReservationStatus(s)
		status = &rs
	}

	reservations, err := h.service.AllReservations(r.Context(), branchID, status)
	if err != nil {
		h.respondError(w, err, "list all reservations", zap.Int64("actorID", actor.ID))
		return
	}

	writeSuccess(w, "ok", reservations)
}
