// Package classify holds the per-event decisions the reports are built on:
// whether an event is invalid, which paid channel it came from, what kind of
// client sent it and when it happened.
package classify

import "github.com/radiusdt/ivt-audit/internal/models"

// IsInvalid reports whether the vendor flagged the event with a threat group.
// No other field takes part in the decision.
func IsInvalid(ev models.Event) bool {
	return ev.ThreatGroup != ""
}

// Source is the paid-traffic channel an event is attributed to.
type Source string

const (
	SourceGoogleAds Source = "Google Ads"
	SourceBingAds   Source = "Bing Ads"
	SourceOrganic   Source = "Organic / Direct"
)

// Sources lists every channel in attribution priority order.
var Sources = []Source{SourceGoogleAds, SourceBingAds, SourceOrganic}

// InferSource attributes an event to exactly one channel. A Google click id
// wins over a Microsoft click id; events with neither are organic.
func InferSource(ev models.Event) Source {
	switch {
	case ev.GCLID != "":
		return SourceGoogleAds
	case ev.MSCLKID != "":
		return SourceBingAds
	default:
		return SourceOrganic
	}
}

// IsPaid reports whether the channel is billed per click.
func (s Source) IsPaid() bool {
	return s == SourceGoogleAds || s == SourceBingAds
}
