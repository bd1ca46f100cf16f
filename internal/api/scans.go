package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/collector/textsearch"
	"github.com/JakeFAU/leadscout/internal/places"
	"github.com/JakeFAU/leadscout/internal/scan"
)

type scanRequest struct {
	Query             string `json:"query"`
	ContinuationToken string `json:"continuation_token"`
	DeepScan          bool   `json:"deep_scan"`
}

type scanErrorResponse struct {
	Error      string       `json:"error"`
	StatusCode int          `json:"status_code,omitempty"`
	Partial    scan.Summary `json:"partial"`
}

func (s *Server) runScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scanner not configured")
		return
	}
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	summary, err := s.deps.Scanner.Run(r.Context(), scan.Request{
		Query:             req.Query,
		ContinuationToken: req.ContinuationToken,
		DeepScan:          req.DeepScan,
	})
	if err != nil {
		if errors.Is(err, textsearch.ErrEmptyQuery) {
			s.writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		resp := scanErrorResponse{Error: err.Error(), Partial: summary}
		var apiErr *places.APIError
		if errors.As(err, &apiErr) {
			resp.StatusCode = apiErr.StatusCode
		}
		s.logger.Warn("scan failed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("query", req.Query),
			zap.Int("completed_pages", summary.Pages),
			zap.Error(err),
		)
		s.writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}
