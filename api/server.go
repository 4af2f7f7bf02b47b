/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in request logs
  2. Logger:     zerolog line per request (method, path, status, bytes, duration)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the entry-form frontend

ROUTE GROUPS:
  /api/proposals/*    Estimate import and lookup
  /api/projects/*     Tracking projects, rollups, entries, history, export
  /api/entries/*      Single-entry deletion
  /api/scenarios/*    Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured. origins are
// the allowed CORS origins.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/proposals", func(r chi.Router) {
			r.Get("/", h.ListProposals)
			r.Post("/", h.ImportProposal)
			r.Get("/{id}", h.GetProposal)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetProject)
				r.Patch("/", h.UpdateProject)
				r.Delete("/", h.DeleteProject)
				r.Get("/wbs/{wbsID}", h.GetWBSRollup)
				r.Get("/phases/{phaseID}", h.GetPhaseRollup)
				r.Get("/history", h.GetHistory)
				r.Get("/export.xlsx", h.ExportWorkbook)

				r.Get("/entry-form", h.GetEntryForm)
				r.Get("/entries", h.GetEntriesForDate)
				r.Post("/entries", h.SaveEntries)
				r.Post("/entries/validate", h.ValidateEntries)
			})
		})

		r.Route("/entries", func(r chi.Router) {
			r.Delete("/{id}", h.DeleteEntry)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requestLogger logs one line per request after it completes.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := logger.Info()
				if status >= http.StatusInternalServerError {
					ev = logger.Error()
				}
				ev.Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
