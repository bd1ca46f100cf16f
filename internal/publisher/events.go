// Package publisher emits domain events for persisted leads.
package publisher

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// EventLeadDiscovered is published once per newly inserted lead.
const EventLeadDiscovered = "lead.discovered"

// LeadEvents decorates a lead.Store so that first-time inserts publish an
// event. Publish failures are logged and never fail the write.
type LeadEvents struct {
	lead.Store
	publisher lead.Publisher
	topic     string
	logger    *zap.Logger
}

// NewLeadEvents wraps store. An empty topic or nil publisher disables events.
func NewLeadEvents(store lead.Store, pub lead.Publisher, topic string, logger *zap.Logger) *LeadEvents {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadEvents{Store: store, publisher: pub, topic: topic, logger: logger}
}

// Upsert writes l and publishes lead.discovered when the row is new.
func (s *LeadEvents) Upsert(ctx context.Context, l lead.Lead) (lead.UpsertOutcome, error) {
	outcome, err := s.Store.Upsert(ctx, l)
	if err != nil || outcome != lead.Inserted || s.publisher == nil || s.topic == "" {
		return outcome, err
	}
	payload := map[string]any{
		"type":         EventLeadDiscovered,
		"external_id":  l.ExternalID,
		"name":         l.Name,
		"source":       string(l.Source),
		"source_query": l.SourceQuery,
		"review_count": l.ReviewCount,
		"country":      lead.ClassifyCountry(deref(l.Phone)),
	}
	if l.BatchID != nil {
		payload["batch_id"] = *l.BatchID
	}
	if _, perr := s.publisher.Publish(ctx, s.topic, payload); perr != nil {
		s.logger.Warn("publish lead event failed", zap.String("external_id", l.ExternalID), zap.Error(perr))
	}
	return outcome, nil
}

// Ping forwards to the wrapped store when it supports health checks.
func (s *LeadEvents) Ping(ctx context.Context) error {
	if p, ok := s.Store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
