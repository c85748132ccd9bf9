package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/model"
)

type borrowRequest struct {
	BookID   int64 `json:"bookId"`
	BranchID int64 `json:"branchId"`
}

// Borrow оформляет выдачу книги текущему пользователю.
func (h *Handler) Borrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "неверный формат запроса")
		return
	}
	if req.BookID <= 0 || req.BranchID <= 0 {
		writeError(w, http.StatusBadRequest, "bookId и branchId обязательны")
		return
	}

	record, err := h.service.BorrowBook(r.Context(), userID, req.BookID, req.BranchID)
	if err != nil {
		h.respondError(w, err, "borrow book",
			zap.Int64("userID", userID), zap.Int64("bookID", req.BookID))
		return
	}

	writeSuccess(w, "книга выдана", record)
}

// Return оформляет возврат книги по идентификатору записи о выдаче.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	borrowID, err := strconv.ParseInt(chi.URLParam(r, "borrowId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор выдачи")
		return
	}

	record, err := h.service.ReturnBook(r.Context(), userID, borrowID)
	if err != nil {
		h.respondError(w, err, "return book",
			zap.Int64("userID", userID), zap.Int64("borrowID", borrowID))
		return
	}

	msg := "книга возвращена"
	if record.OverdueDays > 0 {
		msg = "книга возвращена с просрочкой, начислен штраф"
	}
	writeSuccess(w, msg, record)
}

// Renew продлевает срок возврата книги на один стандартный срок.
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор книги")
		return
	}

	newDue, err := h.service.RenewBook(r.Context(), userID, bookID)
	if err != nil {
		h.respondError(w, err, "renew book",
			zap.Int64("userID", userID), zap.Int64("bookID", bookID))
		return
	}

	writeSuccess(w, "срок возврата продлён", map[string]any{"dueTime": newDue})
}

// MyBorrows возвращает активные выдачи текущего пользователя.
func (h *Handler) MyBorrows(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	records, err := h.service.MyBorrows(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "list borrows", zap.Int64("userID", userID))
		return
	}

	writeSuccess(w, "ok", records)
}

// MyBorrowHistory возвращает полную историю выдач текущего пользователя.
func (h *Handler) MyBorrowHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	records, err := h.service.MyBorrowHistory(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "list borrow history", zap.Int64("userID", userID))
		return
	}

	writeSuccess(w, "ok", records)
}

// AllBorrows возвращает выдачи по всем пользователям с фильтрами для администратора.
func (h *Handler) AllBorrows(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	branchID, err := branchFilter(r, actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор филиала")
		return
	}

	var status *model.BorrowStatus
	if s := r.URL.Query().Get("status"); s != "" {
		bs := model.BorrowStatus(s)
		status = &bs
	}

	records, err := h.service.AllBorrows(r.Context(), branchID, status)
	if err != nil {
		h.respondError(w, err, "list all borrows", zap.Int64("actorID", actor.ID))
		return
	}

	writeSuccess(w, "ok", records)
}

// branchFilter читает фильтр ?branchId из запроса. Администратор филиала
// всегда ограничен своим филиалом независимо от переданного значения.
func branchFilter(r *http.Request, actor *model.User) (*int64, error) {
	if actor.Type == model.UserTypeBranchAdmin {
		return actor.BranchID, nil
	}

	raw := r.URL.Query().Get("branchId")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
