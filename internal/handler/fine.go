package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/model"
)

// MyFines возвращает штрафы текущего пользователя.
func (h *Handler) MyFines(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	fines, err := h.service.MyFines(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "list fines", zap.Int64("userID", userID))
		return
	}

	writeSuccess(w, "ok", fines)
}

// FineDetail возвращает один штраф, доступный владельцу или администратору.
func (h *Handler) FineDetail(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	fineID, err := strconv.ParseInt(chi.URLParam(r, "fineId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор штрафа")
		return
	}

	fine, err := h.service.FineDetail(r.Context(), userID, fineID)
	if err != nil {
		h.respondError(w, err, "fine detail",
			zap.Int64("userID", userID), zap.Int64("fineID", fineID))
		return
	}

	writeSuccess(w, "ok", fine)
}

// PayFine отмечает один штраф оплаченным.
func (h *Handler) PayFine(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	fineID, err := strconv.ParseInt(chi.URLParam(r, "fineId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор штрафа")
		return
	}

	if err := h.service.PayFine(r.Context(), userID, fineID); err != nil {
		h.respondError(w, err, "pay fine",
			zap.Int64("userID", userID), zap.Int64("fineID", fineID))
		return
	}

	writeSuccess(w, "штраф оплачен", nil)
}

type batchPayRequest struct {
	FineIDs []int64 `json:"fineIds"`
}

// BatchPayFines отмечает оплаченными несколько штрафов за одну операцию.
func (h *Handler) BatchPayFines(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	var req batchPayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "неверный формат запроса")
		return
	}
	if len(req.FineIDs) == 0 {
		writeError(w, http.StatusBadRequest, "список штрафов пуст")
		return
	}

	if err := h.service.BatchPayFines(r.Context(), userID, req.FineIDs); err != nil {
		h.respondError(w, err, "batch pay fines", zap.Int64("userID", userID))
		return
	}

	writeSuccess(w, "штрафы оплачены", nil)
}

type fineStatusRequest struct {
	PayStatus string `json:"payStatus"`
}

// SetFineStatus выставляет статус оплаты штрафа (административная операция).
func (h *Handler) SetFineStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	fineID, err := strconv.ParseInt(chi.URLParam(r, "fineId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор штрафа")
		return
	}

	var req fineStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "неверный формат запроса")
		return
	}

	status := model.FinePayStatus(req.PayStatus)
	if status != model.FinePaid && status != model.FineUnpaid {
		writeError(w, http.StatusBadRequest, "недопустимый статус оплаты")
		return
	}

	if err := h.service.SetFineStatus(r.Context(), userID, fineID, status); err != nil {
		h.respondError(w, err, "set fine status",
			zap.Int64("userID", userID), zap.Int64("fineID", fineID))
		return
	}

	writeSuccess(w, "статус штрафа обновлён", nil)
}

// AllFines возвращает штрафы по всем пользователям с фильтрами для администратора.
func (h *Handler) AllFines(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	branchID, err := branchFilter(r, actor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор филиала")
		return
	}

	var payStatus *model.FinePayStatus
	if s := r.URL.Query().Get("payStatus"); s != "" {
		ps := model.FinePayStatus(s)
		payStatus = &ps
	}

	fines, err := h.service.AllFines(r.Context(), branchID, payStatus)
	if err != nil {
		h.respondError(w, err, "list all fines", zap.Int64("actorID", actor.ID))
		return
	}

	writeSuccess(w, "ok", fines)
}
