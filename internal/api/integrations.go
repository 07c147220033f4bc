package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/udtms/txmonitor/internal/domain"
)

type integrationView struct {
	domain.Integration
	SuccessRate float64 `json:"success_rate"`
}

func viewIntegration(i domain.Integration) integrationView {
	return integrationView{Integration: i, SuccessRate: i.SuccessRate()}
}

// --- ListIntegrations ---

func (h *Handlers) ListIntegrations(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Integrations.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	views := make([]integrationView, 0, len(list))
	online := 0
	for _, i := range list {
		views = append(views, viewIntegration(i))
		if i.Status == domain.EndpointOnline {
			online++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"integrations": views,
		"total":        len(views),
		"online":       online,
	})
}

// --- CreateIntegration ---

type createIntegrationRequest struct {
	Name string                 `json:"name"`
	Kind domain.IntegrationKind `json:"kind"`
	URL  string                 `json:"url"`
}

func (h *Handlers) CreateIntegration(w http.ResponseWriter, r *http.Request) {
	var req createIntegrationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	i, err := h.svc.Integrations.Register(r.Context(), req.Name, req.Kind, req.URL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewIntegration(*i))
}

// --- GetIntegration ---

func (h *Handlers) GetIntegration(w http.ResponseWriter, r *http.Request) {
	i, err := h.svc.Integrations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewIntegration(*i))
}

func (h *Handlers) DeleteIntegration(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Integrations.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- CheckIntegration ---

// CheckIntegration runs a health check now and returns the updated card.
func (h *Handlers) CheckIntegration(w http.ResponseWriter, r *http.Request) {
	i, err := h.svc.Integrations.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewIntegration(*i))
}

func (h *Handlers) CheckAllIntegrations(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Integrations.CheckAll(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	h.ListIntegrations(w, r)
}

// --- ListAPICalls ---

// ListAPICalls serves the request log, for one integration when the route
// carries an id and across all of them otherwise.
func (h *Handlers) ListAPICalls(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
	calls, err := h.svc.Integrations.Calls(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if calls == nil {
		calls = []domain.APICall{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

// --- Webhooks ---

func (h *Handlers) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	hooks, err := h.svc.Integrations.Webhooks(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if hooks == nil {
		hooks = []domain.Webhook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": hooks})
}

type createWebhookRequest struct {
	URL   string              `json:"url"`
	Event domain.WebhookEvent `json:"event"`
}

func (h *Handlers) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	hook, err := h.svc.Integrations.RegisterWebhook(r.Context(), req.URL, req.Event)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, hook)
}

func (h *Handlers) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Integrations.RemoveWebhook(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) TestWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := h.svc.Integrations.TestWebhook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hook)
}
