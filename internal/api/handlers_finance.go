package api

import (
	"encoding/json"
	"net/http"

	"github.com/ozenc/takvim/internal/finance"
)

// analyzeReceiptRequest is the receipt analysis endpoint body.
type analyzeReceiptRequest struct {
	ImageBase64   string             `json:"imageBase64"`
	ImageMimeType string             `json:"imageMimeType"`
	Categories    []finance.Category `json:"categories"`
}

func (s *Server) handleAnalyzeReceipt(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		s.writeError(w, http.StatusInternalServerError, "server misconfigured: receipt analysis is not configured")
		return
	}

	var req analyzeReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ImageBase64 == "" || req.ImageMimeType == "" {
		s.writeError(w, http.StatusBadRequest, "imageBase64 and imageMimeType are required")
		return
	}

	analysis, err := s.analyzer.Analyze(r.Context(), finance.ReceiptInput{
		ImageBase64:   req.ImageBase64,
		ImageMimeType: req.ImageMimeType,
		Categories:    req.Categories,
	})
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, analysis)
}

// handleExchangeRates serves TRY-per-unit quotes. The response is also
// cacheable client-side for the same five minutes the server caches it.
func (s *Server) handleExchangeRates(w http.ResponseWriter, r *http.Request) {
	if s.rates == nil {
		s.writeError(w, http.StatusInternalServerError, "server misconfigured: exchange rates are not configured")
		return
	}

	rates, err := s.rates.Latest(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	w.Header().Set("Cache-Control", "max-age=300")
	s.writeJSON(w, http.StatusOK, struct {
		Date  string `json:"date"`
		Rates struct {
			USD string `json:"USD"`
			EUR string `json:"EUR"`
		} `json:"rates"`
	}{
		Date: rates.Date,
		Rates: struct {
			USD string `json:"USD"`
			EUR string `json:"EUR"`
		}{
			USD: rates.USD.String(),
			EUR: rates.EUR.String(),
		},
	})
}
