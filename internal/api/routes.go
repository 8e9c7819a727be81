package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/intermernet/clubportal/internal/auth"
)

// RegisterRoutes sets up all the API endpoints and middleware.
func (s *Server) RegisterRoutes(r *chi.Mux) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000", s.config.FrontendURL},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		// Public site
		r.Post("/members/login", s.handleLogin)
		r.Get("/auth/google/login", s.handleGoogleLogin)
		r.Get("/auth/google/callback", s.handleGoogleCallback)
		r.Get("/calendar", s.handleGetCalendar)
		r.Get("/calendar.ics", s.handleGetCalendarICS)
		r.Get("/pages/{slug}", s.handleGetPage)

		// Member portal
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.require(auth.ViewRoster))

			r.Get("/notifications/stream", s.handleSSE)

			r.Get("/members/me", s.handleGetMe)
			r.Put("/members/me/password", s.handleChangePassword)
			r.Get("/members", s.handleListMembers)
			r.Get("/members/{memberID}", s.handleGetMember)

			r.Get("/events/{eventID}", s.handleGetEvent)
			r.Get("/events/{eventID}/attendance", s.handleGetAttendance)
			r.Put("/events/{eventID}/attendance/{memberID}", s.handlePutAttendance)
			r.Delete("/events/{eventID}/attendance/{memberID}", s.handleDeleteAttendance)
			r.Get("/events/{eventID}/results", s.handleGetMatchResults)
			r.Get("/stats", s.handleGetStats)

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.ManageEvents))
				r.Post("/events", s.handleCreateEvent)
				r.Put("/events/{eventID}", s.handleUpdateEvent)
				r.Delete("/events/{eventID}", s.handleDeleteEvent)
				r.Post("/events/{eventID}/exceptions", s.handleAddException)
				r.Delete("/events/{eventID}/exceptions/{date}", s.handleRemoveException)
				r.Post("/events/{eventID}/results", s.handleCreateMatchResult)
				r.Delete("/results/{resultID}", s.handleDeleteMatchResult)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.ManageMembers))
				r.Post("/members", s.handleCreateMember)
				r.Patch("/members/{memberID}", s.handleUpdateMember)
				r.Delete("/members/{memberID}", s.handleDeleteMember)
				r.Post("/members/{memberID}/invite", s.handleInviteMember)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.require(auth.RunImports))
				r.Get("/imports", s.handleListImports)
				r.Post("/imports/attendance", s.handleImportAttendance)
				r.Post("/imports/roster", s.handleImportRoster)
			})
		})
	})
}
