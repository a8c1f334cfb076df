package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/classcredit-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бронирования занятий.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Metrics)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Method(http.MethodGet, "/metrics", custommiddleware.MetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.RequesterID)

			r.Post("/slots", h.CreateSlot)
			r.Patch("/slots/{slotID}", h.EditSlot)
			r.Delete("/slots/{slotID}", h.DeleteSlot)

			r.Post("/slots/{slotID}/book", h.BookSlot)
			r.Post("/slots/{slotID}/finish", h.FinishSlot)
			r.Post("/slots/{slotID}/cancel", h.CancelBooking)

			r.Get("/balance", h.GetBalance)
			r.Post("/balance/topup", h.TopUp)

			r.Get("/transactions", h.GetHistory)
			r.Get("/transactions/summary", h.GetMonthlySummary)
		})

		r.Get("/slots", h.ListSlotsByDate)
		r.Get("/coaches/{coachID}/slots", h.ListSlotsByCoach)
		r.Get("/coaches/{coachID}/dashboard", h.GetDashboard)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
