package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/repository"
)

// --- ListAlerts ---

func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AlertFilter{
		Status:     q.Get("status"),
		Severity:   q.Get("severity"),
		CustomerID: q.Get("customer_id"),
		Page:       pageFrom(r),
	}

	alerts, total, err := h.svc.Alerts.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []domain.FraudAlert{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"total":  total,
		"page":   filter.Page.Page,
		"limit":  filter.Page.Limit,
	})
}

// --- GetAlertStats ---

func (h *Handlers) GetAlertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Alerts.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- UpdateAlert ---

// UpdateAlert applies an analyst action: investigate, block or dismiss.
func (h *Handlers) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		alert *domain.FraudAlert
		err   error
	)
	switch chi.URLParam(r, "action") {
	case "investigate":
		alert, err = h.svc.Alerts.Investigate(r.Context(), id)
	case "block":
		alert, err = h.svc.Alerts.Block(r.Context(), id)
	case "dismiss":
		alert, err = h.svc.Alerts.Dismiss(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "action must be one of: investigate, block, dismiss")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// --- ListInvestigations ---

func (h *Handlers) ListInvestigations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.InvestigationFilter{
		RunID:     q.Get("run_id"),
		Status:    q.Get("status"),
		IssueType: q.Get("issue_type"),
		Priority:  q.Get("priority"),
		Page:      pageFrom(r),
	}
	if p := q.Get("platform"); p != "" {
		platform, err := domain.ParsePlatform(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Platform = string(platform)
	}

	invs, total, err := h.svc.Investigations.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if invs == nil {
		invs = []domain.Investigation{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"investigations": invs,
		"total":          total,
		"page":           filter.Page.Page,
		"limit":          filter.Page.Limit,
	})
}

// --- UpdateInvestigation ---

func (h *Handlers) UpdateInvestigation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		inv *domain.Investigation
		err error
	)
	switch chi.URLParam(r, "action") {
	case "resolve":
		inv, err = h.svc.Investigations.Resolve(r.Context(), id)
	case "ignore":
		inv, err = h.svc.Investigations.Ignore(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "action must be one of: resolve, ignore")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}
