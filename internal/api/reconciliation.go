package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/udtms/txmonitor/internal/currency"
	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/ingestion"
	"github.com/udtms/txmonitor/internal/reconciliation"
)

// --- CreateRun ---

// CreateRun reconciles two ledgers posted as JSON.
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req reconciliation.RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpload)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := normalizeEntries(req.SourceA); err != nil {
		writeServiceError(w, errors.Wrap(err, "source_a"))
		return
	}
	if err := normalizeEntries(req.SourceB); err != nil {
		writeServiceError(w, errors.Wrap(err, "source_b"))
		return
	}
	h.runReconciliation(w, r, req)
}

// normalizeEntries brings hand-posted entries to the shape the file parsers
// produce: canonical platform names and amounts in the base currency.
func normalizeEntries(entries []domain.LedgerEntry) error {
	for i := range entries {
		e := &entries[i]
		if e.Platform != "" {
			p, err := domain.ParsePlatform(string(e.Platform))
			if err != nil {
				return errors.Wrapf(domain.ErrInvalidLedgerEntry, "entry %d: %v", i, err)
			}
			e.Platform = p
		}
		amount, err := currency.ToBase(e.Amount, e.Currency)
		if err != nil {
			return errors.Wrapf(domain.ErrInvalidLedgerEntry, "entry %d: %v", i, err)
		}
		e.Amount = amount
		e.Currency = currency.Base
	}
	return nil
}

// --- UploadRun ---

// UploadRun reconciles two uploaded ledger files. Each side takes a file
// field (file_a, file_b) and an optional format (format_a, format_b).
func (h *Handlers) UploadRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	req := reconciliation.RunRequest{Strategy: r.FormValue("strategy")}
	for _, side := range []struct {
		suffix  string
		entries *[]domain.LedgerEntry
	}{
		{"a", &req.SourceA},
		{"b", &req.SourceB},
	} {
		file, header, err := r.FormFile("file_" + side.suffix)
		if err != nil {
			writeError(w, http.StatusBadRequest, "file_"+side.suffix+" is required")
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read file_"+side.suffix)
			return
		}

		source := r.FormValue("source_" + side.suffix)
		if source == "" {
			source = header.Filename
		}
		entries, err := ingestion.ParseLedger(data, r.FormValue("format_"+side.suffix), source)
		if err != nil {
			writeParseError(w, errors.Wrap(err, "file_"+side.suffix))
			return
		}
		*side.entries = entries
	}

	h.runReconciliation(w, r, req)
}

func (h *Handlers) runReconciliation(w http.ResponseWriter, r *http.Request, req reconciliation.RunRequest) {
	if req.Strategy != "" {
		if _, err := reconciliation.StrategyByName(req.Strategy, 0); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	report, err := h.svc.Reconciler.Run(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// --- ListRuns ---

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	page := pageFrom(r)
	runs, total, err := h.svc.Runs.ListRuns(r.Context(), page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []domain.ReconciliationRun{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

// --- GetRun ---

// GetRun returns a run with its records, optionally filtered by ?status=.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.svc.Runs.GetRun(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	records, err := h.svc.Runs.ListRecords(r.Context(), id, domain.MatchStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []domain.ReconciliationRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":     run,
		"records": records,
	})
}
