/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Honors X-Forwarded-For behind a reverse proxy
  3. Logger:     Structured request logging (zap)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for a local frontend
  6. Auth:       X-API-Key check, /api subtree only

ROUTE GROUPS:
  /health               Liveness, unauthenticated
  /api/items/*          Work items and tracking
  /api/roll*            Daily planning
  /api/points/*         Scores and projections
  /api/goals/*          Long-horizon rewards
  /api/rest-days/*      Penalty exemptions
  /api/backups/*        Snapshots
  /api/scheduler/*      Background job control
  /api/scenarios/*      Demo data (dev only)
  /api/settings         The knob row

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: API key middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a router with all routes configured. An empty
// apiKey disables authentication.
func NewRouter(h *Handler, apiKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		if apiKey != "" {
			r.Use(apiKeyAuth(apiKey, h.Log))
		} else {
			h.Log.Warn("api key not configured, authentication disabled")
		}

		r.Route("/items", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.CreateItem)
			r.Get("/pending", h.PendingItems)
			r.Get("/today", h.TodayItems)
			r.Get("/habits", h.HabitItems)
			r.Get("/today-habits", h.TodayHabits)
			r.Get("/active", h.ActiveItem)
			r.Post("/start", h.StartItem)
			r.Post("/stop", h.StopItem)
			r.Post("/complete", h.CompleteItem)
			r.Get("/{id}", h.GetItem)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
		})

		r.Route("/roll", func(r chi.Router) {
			r.Get("/can", h.CanRoll)
			r.Post("/", h.Roll)
		})

		r.Route("/points", func(r chi.Router) {
			r.Get("/current", h.CurrentPoints)
			r.Get("/history", h.PointsHistory)
			r.Get("/projection", h.PointsProjection)
		})

		r.Get("/stats", h.Stats)

		r.Route("/goals", func(r chi.Router) {
			r.Get("/", h.ListGoals)
			r.Post("/", h.CreateGoal)
			r.Get("/{id}", h.GetGoal)
			r.Put("/{id}", h.UpdateGoal)
			r.Delete("/{id}", h.DeleteGoal)
			r.Post("/{id}/claim", h.ClaimGoal)
		})

		r.Route("/rest-days", func(r chi.Router) {
			r.Get("/", h.ListRestDays)
			r.Post("/", h.CreateRestDay)
			r.Delete("/{id}", h.DeleteRestDay)
		})

		r.Route("/backups", func(r chi.Router) {
			r.Get("/", h.ListBackups)
			r.Post("/", h.CreateBackup)
			r.Delete("/{id}", h.DeleteBackup)
			r.Get("/{id}/download", h.DownloadBackup)
			r.Post("/{id}/uploaded", h.MarkBackupUploaded)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/status", h.SchedulerStatus)
			r.Post("/jobs/{name}/run", h.RunSchedulerJob)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.CurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
