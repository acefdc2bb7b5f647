package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/clubhub/internal/middleware"
	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/respond"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipRequest)
	r.Use(chimiddleware.Compress(5))
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/health", h.Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
	})

	r.Route("/api/membership", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/apply", h.Apply)
		r.Get("/my-status", h.MyStatus)
		r.Get("/id-card", h.IDCard)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.RequireRole(model.RoleAdmin, model.RoleExecutive))

			r.Get("/applications", h.ListApplications)
			r.Get("/applications/{id}", h.GetApplication)
			r.Put("/applications/{id}/approve", h.ApproveApplication)
			r.Put("/applications/{id}/reject", h.RejectApplication)
			r.Get("/stats", h.Stats)
			r.Post("/direct-approve", h.DirectApprove)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusNotFound, "Not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
