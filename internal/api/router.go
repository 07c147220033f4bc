package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/udtms/txmonitor/internal/ingestion"
	"github.com/udtms/txmonitor/internal/metrics"
	"github.com/udtms/txmonitor/internal/monitor"
	"github.com/udtms/txmonitor/internal/reconciliation"
	"github.com/udtms/txmonitor/internal/repository"
	"github.com/udtms/txmonitor/internal/risk"
)

// Services is everything the HTTP layer talks to.
type Services struct {
	Transactions   *repository.TransactionRepo
	Assessments    *repository.AssessmentRepo
	Runs           *repository.ReconciliationRepo
	Ingestion      *ingestion.Service
	Pipeline       *monitor.Pipeline
	Alerts         *monitor.AlertService
	Investigations *monitor.InvestigationService
	Reconciler     *reconciliation.Service
	Integrations   *monitor.IntegrationService
	Scorer         *risk.Scorer
	Metrics        *metrics.Metrics
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(s Services) http.Handler {
	h := &Handlers{svc: s}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Transactions.
		r.Post("/transactions", h.IngestTransactions)
		r.Post("/transactions/upload", h.UploadTransactions)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/transactions/export", h.ExportTransactions)
		r.Get("/transactions/{id}/assessment", h.GetAssessment)

		// Scoring.
		r.Post("/score", h.ScorePreview)
		r.Get("/rules", h.GetRules)

		// Alerts.
		r.Get("/alerts", h.ListAlerts)
		r.Get("/alerts/stats", h.GetAlertStats)
		r.Post("/alerts/{id}/{action}", h.UpdateAlert)

		// Reconciliation.
		r.Post("/reconciliation/runs", h.CreateRun)
		r.Post("/reconciliation/runs/upload", h.UploadRun)
		r.Get("/reconciliation/runs", h.ListRuns)
		r.Get("/reconciliation/runs/{id}", h.GetRun)

		// Investigations.
		r.Get("/investigations", h.ListInvestigations)
		r.Post("/investigations/{id}/{action}", h.UpdateInvestigation)

		// Integrations.
		r.Get("/integrations", h.ListIntegrations)
		r.Post("/integrations", h.CreateIntegration)
		r.Post("/integrations/check", h.CheckAllIntegrations)
		r.Get("/integrations/calls", h.ListAPICalls)
		r.Get("/integrations/{id}", h.GetIntegration)
		r.Delete("/integrations/{id}", h.DeleteIntegration)
		r.Post("/integrations/{id}/check", h.CheckIntegration)
		r.Get("/integrations/{id}/calls", h.ListAPICalls)

		// Webhooks.
		r.Get("/webhooks", h.ListWebhooks)
		r.Post("/webhooks", h.CreateWebhook)
		r.Delete("/webhooks/{id}", h.DeleteWebhook)
		r.Post("/webhooks/{id}/test", h.TestWebhook)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
