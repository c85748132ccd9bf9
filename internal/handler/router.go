package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mpetrova/library-system/internal/middleware"
)

// SetupRouter собирает маршруты API и цепочку middleware.
func (h *Handler) SetupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.GzipMiddleware)
	r.Use(middleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/borrow", func(r chi.Router) {
				r.Post("/", h.Borrow)
				r.Post("/return/{borrowId}", h.Return)
				r.Post("/renew/{bookId}", h.Renew)
				r.Get("/my-borrow", h.MyBorrows)
				r.Get("/my-history", h.MyBorrowHistory)
				r.Get("/all", h.AllBorrows)
			})

			r.Route("/reservation", func(r chi.Router) {
				r.Post("/reserve", h.Reserve)
				r.Delete("/cancel/{reservationId}", h.CancelReservation)
				r.Post("/{reservationId}/complete", h.CompleteReservation)
				r.Get("/book/{bookId}/queue", h.BookQueue)
				r.Get("/my-reservation", h.MyReservations)
				r.Get("/all", h.AllReservations)
			})

			r.Route("/fines", func(r chi.Router) {
				r.Get("/my-fines", h.MyFines)
				r.Post("/pay/{fineId}", h.PayFine)
				r.Post("/batch-pay", h.BatchPayFines)
				r.Post("/{fineId}/status", h.SetFineStatus)
				r.Get("/all", h.AllFines)
				r.Get("/{fineId}", h.FineDetail)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.MyNotifications)
				r.Get("/unread-count", h.UnreadCount)
				r.Post("/{notificationId}/read", h.MarkRead)
				r.Post("/read-all", h.MarkAllRead)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "маршрут не найден")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "метод не поддерживается")
	})

	return r
}
