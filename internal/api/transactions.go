package api

import (
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/ingestion"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/repository"
)

// --- IngestTransactions ---

// IngestTransactions accepts a JSON array of transactions, stores the new
// ones and scores them.
func (h *Handlers) IngestTransactions(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	txns, err := ingestion.ParseTransactionJSON(data)
	if err != nil {
		writeParseError(w, err)
		return
	}

	result, err := h.svc.Ingestion.Ingest(r.Context(), txns)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- UploadTransactions ---

func (h *Handlers) UploadTransactions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	result, err := h.svc.Ingestion.IngestFeed(r.Context(), data, header.Filename, r.FormValue("format"))
	if err != nil {
		writeParseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- ListTransactions ---

func transactionFilterFrom(r *http.Request) (repository.TransactionFilter, error) {
	q := r.URL.Query()
	f := repository.TransactionFilter{
		Status:   q.Get("status"),
		Severity: q.Get("risk_level"),
		From:     parseTime(q.Get("from")),
		To:       parseTime(q.Get("to")),
		Page:     pageFrom(r),
	}
	if p := q.Get("platform"); p != "" {
		platform, err := domain.ParsePlatform(p)
		if err != nil {
			return f, err
		}
		f.Platform = string(platform)
	}
	return f, nil
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := transactionFilterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txns, total, err := h.svc.Transactions.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if txns == nil {
		txns = []repository.ScoredTransaction{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txns,
		"total":        total,
		"page":         filter.Page.Page,
		"limit":        filter.Page.Limit,
	})
}

// --- ExportTransactions ---

const exportPageSize = 1000

// ExportTransactions streams every transaction matching the filter as CSV,
// with its risk score and level when it has been scored.
func (h *Handlers) ExportTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := transactionFilterFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Page = repository.Page{Page: 1, Limit: exportPageSize}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)

	cw := csv.NewWriter(w)
	_ = cw.Write([]string{
		"id", "timestamp", "customer_id", "platform", "amount", "currency",
		"status", "location", "device_id", "risk_score", "risk_level",
	})
	for {
		txns, _, err := h.svc.Transactions.List(r.Context(), filter)
		if err != nil {
			logger.Error("[api] export failed", "error", err)
			break
		}
		for _, t := range txns {
			score := ""
			if t.Score != nil {
				score = strconv.Itoa(*t.Score)
			}
			_ = cw.Write([]string{
				t.ID, t.Timestamp.UTC().Format(time.RFC3339), t.CustomerID,
				string(t.Platform), t.Amount.StringFixed(2), t.Currency, string(t.Status),
				t.Location, t.DeviceID, score, string(t.Severity),
			})
		}
		if len(txns) < exportPageSize {
			break
		}
		filter.Page.Page++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.Error("[api] export write failed", "error", err)
	}
}

// --- GetAssessment ---

func (h *Handlers) GetAssessment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "transaction id is required")
		return
	}

	txn, err := h.svc.Transactions.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	assessment, err := h.svc.Assessments.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": txn,
		"assessment":  assessment,
	})
}

// --- ScorePreview ---

// ScorePreview scores one transaction against the customer's current
// profile without storing anything.
func (h *Handlers) ScorePreview(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	txn, err := ingestion.ParseTransaction(data)
	if err != nil {
		writeParseError(w, err)
		return
	}

	assessment, err := h.svc.Pipeline.Preview(r.Context(), txn)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessment)
}
