package places

import (
	"strings"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// Place is a place record as returned by the API. Every field may be absent.
type Place struct {
	ID                       string         `json:"id"`
	DisplayName              *LocalizedText `json:"displayName,omitempty"`
	BusinessStatus           string         `json:"businessStatus,omitempty"`
	FormattedAddress         string         `json:"formattedAddress,omitempty"`
	NationalPhoneNumber      string         `json:"nationalPhoneNumber,omitempty"`
	InternationalPhoneNumber string         `json:"internationalPhoneNumber,omitempty"`
	WebsiteURI               string         `json:"websiteUri,omitempty"`
	UserRatingCount          *int           `json:"userRatingCount,omitempty"`
	Rating                   *float64       `json:"rating,omitempty"`
	PrimaryType              string         `json:"primaryType,omitempty"`
	GoogleMapsURI            string         `json:"googleMapsUri,omitempty"`
}

// LocalizedText holds the place's display name.
type LocalizedText struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode,omitempty"`
}

// Business status values reported by the API.
const (
	BusinessStatusOperational       = "OPERATIONAL"
	BusinessStatusClosedTemporarily = "CLOSED_TEMPORARILY"
	BusinessStatusClosedPermanently = "CLOSED_PERMANENTLY"
	BusinessStatusUnspecified       = "BUSINESS_STATUS_UNSPECIFIED"
)

// Candidate converts the loose provider record into a normalized candidate.
// The international phone number is preferred because it carries the
// country code used for classification.
func (p Place) Candidate() lead.Candidate {
	c := lead.Candidate{
		ExternalID:      strings.TrimSpace(p.ID),
		Address:         strings.TrimSpace(p.FormattedAddress),
		Phone:           firstNonEmpty(p.InternationalPhoneNumber, p.NationalPhoneNumber),
		Website:         strings.TrimSpace(p.WebsiteURI),
		Rating:          p.Rating,
		OperatingStatus: operatingStatus(p.BusinessStatus),
		MapsURL:         strings.TrimSpace(p.GoogleMapsURI),
		BusinessType:    strings.TrimSpace(p.PrimaryType),
	}
	if p.DisplayName != nil {
		c.Name = strings.TrimSpace(p.DisplayName.Text)
	}
	if p.UserRatingCount != nil && *p.UserRatingCount > 0 {
		c.ReviewCount = *p.UserRatingCount
	}
	return c
}

func operatingStatus(status string) lead.OperatingStatus {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case BusinessStatusOperational:
		return lead.OperatingStatusOperating
	case BusinessStatusClosedTemporarily, BusinessStatusClosedPermanently:
		return lead.OperatingStatusClosed
	default:
		return lead.OperatingStatusUnknown
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
