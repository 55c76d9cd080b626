package app

import (
	"database/sql"
	"net/http"
	"time"

	"cbtexam/internal/app/observability"
	"cbtexam/internal/auth"
	internaldb "cbtexam/internal/db"
	"cbtexam/internal/exam"
	"cbtexam/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func NewRouter(cfg Config, db *sql.DB, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db, logger)
	r.Use(collector.Middleware)

	authSvc := auth.NewService(db)
	authHandler := auth.NewHandler(authSvc)

	examSvc := exam.NewService(exam.NewPostgresStore(db), exam.ServiceConfig{
		AllowRetake: cfg.ExamAllowRetake,
		Logger:      logger.With().Str("component", "exam").Logger(),
		Events:      collector,
	})
	examHandler := exam.NewHandler(examSvc)

	reportSvc := report.NewService(report.NewPostgresStore(db), cfg.Timezone, logger.With().Str("component", "report").Logger())
	reportHandler := report.NewHandler(reportSvc)

	attemptLimiter := NewKeyedRateLimiter(cfg.AttemptRateLimitPerMin)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := internaldb.Ping(r.Context(), db, 2*time.Second); err != nil {
				logger.Warn().Err(err).Msg("health check failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"ok":false}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/exams", examHandler.List)
			secure.Get("/exams/results/history", examHandler.Results)
			secure.Get("/exams/results/{attemptID}", examHandler.ResultDetail)
			secure.Get("/exams/{id}", examHandler.Show)
			secure.With(RateLimitMiddleware(attemptLimiter)).Post("/exams/{id}/start", examHandler.Start)
			secure.With(RateLimitMiddleware(attemptLimiter)).Post("/exams/{id}/submit", examHandler.Submit)

			secure.Get("/dashboard/leaderboard/{id}", reportHandler.Leaderboard)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireRoles(auth.RoleAdmin, auth.RoleTeacher))
				admin.Get("/admin/exams/{id}/summary", reportHandler.Summary)
				admin.Get("/admin/exams/{id}/leaderboard.xlsx", reportHandler.ExportLeaderboard)
			})
		})
	})

	return r
}
