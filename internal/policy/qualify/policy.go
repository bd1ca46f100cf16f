// Package qualify decides whether a candidate business is worth storing as a lead.
package qualify

import (
	"strings"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// DefaultMinReviews is the review threshold used when none is configured.
const DefaultMinReviews = 5

// Policy qualifies operating businesses without a website and with enough reviews.
// It holds no state beyond its threshold and is safe for concurrent use.
type Policy struct {
	minReviews int
}

// New creates a Policy. A negative threshold falls back to DefaultMinReviews;
// zero accepts any review count.
func New(minReviews int) Policy {
	if minReviews < 0 {
		minReviews = DefaultMinReviews
	}
	return Policy{minReviews: minReviews}
}

// MinReviews returns the configured review threshold.
func (p Policy) MinReviews() int {
	return p.minReviews
}

// Qualifies reports whether c passes every rule.
func (p Policy) Qualifies(c lead.Candidate) bool {
	return p.RejectionReason(c) == lead.RejectionNone
}

// RejectionReason returns the first failing rule, in order: operating
// status, website presence, review count.
func (p Policy) RejectionReason(c lead.Candidate) lead.RejectionReason {
	if c.OperatingStatus != lead.OperatingStatusOperating {
		return lead.RejectionNotOperating
	}
	if HasWebsite(c.Website) {
		return lead.RejectionHasWebsite
	}
	if c.ReviewCount < p.minReviews {
		return lead.RejectionLowReviewCount
	}
	return lead.RejectionNone
}

// HasWebsite reports whether website holds anything besides whitespace.
// The browser collector calls it before reading the remaining fields.
func HasWebsite(website string) bool {
	return strings.TrimSpace(website) != ""
}
