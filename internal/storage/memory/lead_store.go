package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// LeadStore is an in-memory lead.Store for development and tests. It applies
// the same upsert rules as the Postgres store.
type LeadStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	nextID     int64
	leads      map[int64]lead.Lead
	byExternal map[string]int64
	nextBatch  int64
	batches    map[int64]lead.Batch
}

// NewLeadStore constructs an empty LeadStore.
func NewLeadStore() *LeadStore {
	return &LeadStore{
		now:        func() time.Time { return time.Now().UTC() },
		leads:      make(map[int64]lead.Lead),
		byExternal: make(map[string]int64),
		batches:    make(map[int64]lead.Batch),
	}
}

// Upsert inserts l or refreshes the descriptive fields of the existing row.
func (s *LeadStore) Upsert(_ context.Context, l lead.Lead) (lead.UpsertOutcome, error) {
	if strings.TrimSpace(l.ExternalID) == "" {
		return "", errors.New("external id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.byExternal[l.ExternalID]; ok {
		existing := s.leads[id]
		if l.Name != "" {
			existing.Name = l.Name
		}
		existing.Address = coalesce(l.Address, existing.Address)
		existing.Phone = coalesce(l.Phone, existing.Phone)
		if l.Rating != nil {
			existing.Rating = l.Rating
		}
		existing.ReviewCount = l.ReviewCount
		existing.UpdatedAt = now
		s.leads[id] = existing
		return lead.Updated, nil
	}

	s.nextID++
	l.ID = s.nextID
	l.Country = ""
	if l.Status == "" {
		l.Status = lead.StatusNew
	}
	if l.OperatingStatus == "" {
		l.OperatingStatus = lead.OperatingStatusUnknown
	}
	l.DiscoveredAt = now
	l.UpdatedAt = now
	s.leads[l.ID] = l
	s.byExternal[l.ExternalID] = l.ID
	return lead.Inserted, nil
}

// Find returns one page of leads matching f, newest first.
func (s *LeadStore) Find(_ context.Context, f lead.Filter) (lead.Page, error) {
	f = f.Normalize()
	s.mu.RLock()
	matched := make([]lead.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		if matches(l, f) {
			matched = append(matched, l)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].DiscoveredAt.Equal(matched[j].DiscoveredAt) {
			return matched[i].DiscoveredAt.After(matched[j].DiscoveredAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.PageSize, total)
	rows := make([]lead.Lead, 0, end-start)
	for _, l := range matched[start:end] {
		l.Country = lead.ClassifyCountry(deref(l.Phone))
		rows = append(rows, l)
	}
	return lead.NewPage(rows, total, f), nil
}

// DistinctCountries lists the classified countries present, excluding CountryOther.
func (s *LeadStore) DistinctCountries(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, l := range s.leads {
		if l.Phone == nil {
			continue
		}
		if country := lead.ClassifyCountry(*l.Phone); country != lead.CountryOther {
			set[country] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// Update applies an admin patch to the lead with the given id.
func (s *LeadStore) Update(_ context.Context, id int64, p lead.Patch) error {
	if p.Status != nil {
		if _, ok := lead.ParseWorkflowStatus(string(*p.Status)); !ok {
			return fmt.Errorf("%w: %q", lead.ErrInvalidStatus, *p.Status)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return lead.ErrNotFound
	}
	if p.Status != nil {
		status, _ := lead.ParseWorkflowStatus(string(*p.Status))
		l.Status = status
	}
	if p.AdminNotes != nil {
		notes := *p.AdminNotes
		l.AdminNotes = &notes
	}
	if p.Phone != nil {
		phone := *p.Phone
		l.Phone = &phone
	}
	l.UpdatedAt = s.now()
	s.leads[id] = l
	return nil
}

// Get returns the lead stored under externalID.
func (s *LeadStore) Get(_ context.Context, externalID string) (lead.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExternal[externalID]
	if !ok {
		return lead.Lead{}, lead.ErrNotFound
	}
	return s.leads[id], nil
}

// Len returns the number of stored leads.
func (s *LeadStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.leads)
}

// CreateBatch opens a batch for queryText.
func (s *LeadStore) CreateBatch(_ context.Context, queryText string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBatch++
	s.batches[s.nextBatch] = lead.Batch{
		ID:        s.nextBatch,
		QueryText: queryText,
		CreatedAt: s.now(),
	}
	return s.nextBatch, nil
}

// CompleteBatch records the final result count of a batch.
func (s *LeadStore) CompleteBatch(_ context.Context, id int64, resultCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return lead.ErrNotFound
	}
	b.ResultCount = resultCount
	s.batches[id] = b
	return nil
}

// Batch returns a stored batch.
func (s *LeadStore) Batch(id int64) (lead.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	return b, ok
}

func matches(l lead.Lead, f lead.Filter) bool {
	switch f.Status {
	case "":
		if l.Status == lead.StatusRejected {
			return false
		}
	case lead.StatusAll:
	default:
		if l.Status != f.Status {
			return false
		}
	}
	if l.ReviewCount < f.MinReviews {
		return false
	}
	if f.From != nil && l.DiscoveredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && l.DiscoveredAt.After(*f.To) {
		return false
	}
	if f.Country != "" && !strings.EqualFold(lead.ClassifyCountry(deref(l.Phone)), f.Country) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		fields := []string{l.Name, deref(l.Address), deref(l.Phone), l.SourceQuery, deref(l.AdminNotes)}
		found := false
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func coalesce(next, prev *string) *string {
	if next != nil {
		return next
	}
	return prev
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
