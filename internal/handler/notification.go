package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MyNotifications возвращает уведомления текущего пользователя, новые первыми.
func (h *Handler) MyNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	notifications, err := h.service.MyNotifications(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "list notifications", zap.Int64("userID", userID))
		return
	}

	writeSuccess(w, "ok", notifications)
}

// UnreadCount возвращает число непрочитанных уведомлений.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	count, err := h.service.UnreadNotificationCount(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "count unread", zap.Int64("userID", userID))
		return
	}

	writeSuccess(w, "ok", map[string]int64{"unread": count})
}

// MarkRead помечает одно уведомление прочитанным.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	notificationID, err := strconv.ParseInt(chi.URLParam(r, "notificationId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "некорректный идентификатор уведомления")
		return
	}

	if err := h.service.MarkNotificationRead(r.Context(), userID, notificationID); err != nil {
		h.respondError(w, err, "mark read",
			zap.Int64("userID", userID), zap.Int64("notificationID", notificationID))
		return
	}

	writeSuccess(w, "уведомление прочитано", nil)
}

// MarkAllRead помечает все уведомления пользователя прочитанными.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := actorID(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkAllNotificationsRead(r.Context(), userID); err != nil {
		h.respondError(w, err, "mark all read", zap.Int64("userID", userID))
		return
	}

	writeSuccess(w, "все уведомления прочитаны", nil)
}
