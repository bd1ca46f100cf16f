package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/leadscout/internal/lead"
)

const dateLayout = "2006-01-02"

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.deps.Leads.Find(r.Context(), f)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to search leads")
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

type countryEntry struct {
	Country string `json:"country"`
}

func (s *Server) listCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.deps.Leads.DistinctCountries(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list countries")
		return
	}
	out := make([]countryEntry, 0, len(countries))
	for _, c := range countries {
		out = append(out, countryEntry{Country: c})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type leadPatchRequest struct {
	Status     *string `json:"status"`
	AdminNotes *string `json:"admin_notes"`
	Phone      *string `json:"phone"`
}

func (s *Server) updateLead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid lead id")
		return
	}
	var req leadPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	patch := lead.Patch{AdminNotes: req.AdminNotes, Phone: req.Phone}
	if req.Status != nil {
		status, ok := lead.ParseWorkflowStatus(*req.Status)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", *req.Status))
			return
		}
		patch.Status = &status
	}

	switch err := s.deps.Leads.Update(r.Context(), id, patch); {
	case errors.Is(err, lead.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "lead not found")
	case errors.Is(err, lead.ErrInvalidStatus):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "failed to update lead")
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "updated": true})
	}
}

// parseFilter reads the lead search query string. date_to given as a bare
// date covers that whole day.
func parseFilter(q url.Values) (lead.Filter, error) {
	f := lead.Filter{
		Query:   strings.TrimSpace(q.Get("q")),
		Country: strings.TrimSpace(q.Get("country")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		if strings.EqualFold(raw, string(lead.StatusAll)) {
			f.Status = lead.StatusAll
		} else {
			status, ok := lead.ParseWorkflowStatus(raw)
			if !ok {
				return lead.Filter{}, fmt.Errorf("invalid status %q", raw)
			}
			f.Status = status
		}
	}
	var err error
	if f.MinReviews, err = intParam(q, "min_reviews"); err != nil {
		return lead.Filter{}, err
	}
	if f.Page, err = intParam(q, "page"); err != nil {
		return lead.Filter{}, err
	}
	if f.PageSize, err = intParam(q, "page_size"); err != nil {
		return lead.Filter{}, err
	}
	if f.From, err = timeParam(q, "date_from", false); err != nil {
		return lead.Filter{}, err
	}
	if f.To, err = timeParam(q, "date_to", true); err != nil {
		return lead.Filter{}, err
	}
	return f.Normalize(), nil
}

func intParam(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func timeParam(q url.Values, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be YYYY-MM-DD or RFC3339", key)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
