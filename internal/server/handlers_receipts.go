package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ocreceipt/ocreceipt/internal/repository"
)

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := s.receipts.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list receipts", "error", err)
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid receipt id")
		return
	}
	rec, err := s.receipts.GetByID(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// patchReceiptRequest carries manual corrections. Omitted fields keep their
// stored values; supplying any correction clears needs_review unless the
// request pins the flag explicitly.
type patchReceiptRequest struct {
	Merchant       *string `json:"merchant"`
	PurchaseDate   *string `json:"purchase_date"`
	TotalAmount    *string `json:"total_amount"`
	SalesTaxAmount *string `json:"sales_tax_amount"`
	NeedsReview    *bool   `json:"needs_review"`
}

func (s *Server) handlePatchReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid receipt id")
		return
	}
	var req patchReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	rec, err := s.receipts.GetByID(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}

	corrected := false
	if req.Merchant != nil {
		rec.Merchant = req.Merchant
		corrected = true
	}
	if req.PurchaseDate != nil {
		t, err := time.Parse("2006-01-02", *req.PurchaseDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "purchase_date must be YYYY-MM-DD")
			return
		}
		rec.PurchaseDate = &t
		corrected = true
	}
	if req.TotalAmount != nil {
		d, err := decimal.NewFromString(*req.TotalAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "total_amount must be a decimal string")
			return
		}
		rec.TotalAmount = &d
		corrected = true
	}
	if req.SalesTaxAmount != nil {
		d, err := decimal.NewFromString(*req.SalesTaxAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "sales_tax_amount must be a decimal string")
			return
		}
		rec.SalesTaxAmount = &d
		corrected = true
	}

	// A human touched the record: it no longer needs review.
	if corrected {
		rec.NeedsReview = false
	}
	if req.NeedsReview != nil {
		rec.NeedsReview = *req.NeedsReview
	}

	if err := s.receipts.Update(r.Context(), rec); err != nil {
		writeRepoError(w, err)
		return
	}
	if req.Merchant != nil && *req.Merchant != "" {
		if err := s.merchants.Upsert(r.Context(), *req.Merchant); err != nil {
			s.logger.Warn("failed to record corrected merchant", "merchant", *req.Merchant, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, rec)
}

type reviewRequest struct {
	NeedsReview bool `json:"needs_review"`
}

func (s *Server) handleReviewFlag(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid receipt id")
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.receipts.SetNeedsReview(r.Context(), id, req.NeedsReview); err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"needs_review": req.NeedsReview})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := s.exporter.ExportXLSX(r.Context(), filter)
	if err != nil {
		s.logger.Error("export failed", "error", err)
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseListFilter(r *http.Request) (repository.ListFilter, error) {
	var f repository.ListFilter
	q := r.URL.Query()

	if v := q.Get("needs_review"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errInvalidQuery("needs_review")
		}
		f.NeedsReview = &b
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, errInvalidQuery("from")
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return f, errInvalidQuery("to")
		}
		f.To = &t
	}
	f.Merchant = q.Get("merchant")
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errInvalidQuery("limit")
		}
		f.Limit = n
	}
	return f, nil
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string { return "invalid query parameter: " + string(e) }
