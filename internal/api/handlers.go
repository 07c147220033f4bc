package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	svc Services
}

// maxUpload bounds multipart bodies.
const maxUpload = 32 << 20

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("[api] encode error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors onto status codes. Anything unknown is
// logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransaction), errors.Is(err, domain.ErrInvalidLedgerEntry),
		errors.Is(err, domain.ErrInvalidIntegration):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("[api] request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeParseError is writeServiceError for request bodies: anything that is
// not a domain validation failure is the client's malformed input.
func writeParseError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrInvalidTransaction) || errors.Is(err, domain.ErrInvalidLedgerEntry) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func pageFrom(r *http.Request) repository.Page {
	q := r.URL.Query()
	return repository.Page{
		Page:  parseIntDefault(q.Get("page"), 1),
		Limit: parseIntDefault(q.Get("limit"), 50),
	}
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- GetRules ---

func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	cfg := h.svc.Scorer.Config()
	tz := "UTC"
	if cfg.Location != nil {
		tz = cfg.Location.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":    cfg,
		"timezone": tz,
	})
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.svc.Transactions.GetDashboardStats(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	alertStats, err := h.svc.Alerts.Stats(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	openInvestigations, err := h.svc.Investigations.CountOpen(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var latest *domain.ReconciliationRun
	run, err := h.svc.Runs.LatestRun(ctx)
	switch {
	case err == nil:
		latest = run
	case !errors.Is(err, domain.ErrNotFound):
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions":        stats,
		"alerts":              alertStats,
		"open_investigations": openInvestigations,
		"latest_run":          latest,
	})
}
