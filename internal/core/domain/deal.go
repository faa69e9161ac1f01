package domain

import "time"

// Deal statuses. Anything else coming from the backend is carried as-is.
const (
	StatusPending   = "pending"
	StatusEvaluated = "evaluated"
)

// Deal is a discovered property lead. Deals are immutable snapshots: the
// client of this service never mutates a field, it replaces the whole
// record on refetch.
type Deal struct {
	ID                     string    `json:"id"`
	Status                 string    `json:"status"`
	Address                string    `json:"address,omitempty"`
	Location               GeoPoint  `json:"location"`
	Score                  *float64  `json:"score,omitempty"` // absent means not yet evaluated
	Business               string    `json:"business,omitempty"`
	ContactName            string    `json:"contact_name,omitempty"`
	ContactEmail           string    `json:"contact_email,omitempty"`
	ContactPhone           string    `json:"contact_phone,omitempty"`
	PavedAreaSqft          *float64  `json:"paved_area_sqft,omitempty"`
	RegridOwner            string    `json:"regrid_owner,omitempty"`
	PropertyBoundarySource string    `json:"property_boundary_source,omitempty"`
	DiscoverySource        string    `json:"discovery_source,omitempty"`
	CreatedAt              time.Time `json:"created_at"`
}

// ScoreBracket is a fixed numeric range over a lead score used for
// client-side filtering.
type ScoreBracket string

const (
	BracketAll      ScoreBracket = "all"
	BracketLead     ScoreBracket = "lead"     // score < 50
	BracketCritical ScoreBracket = "critical" // score <= 30
	BracketPoor     ScoreBracket = "poor"     // 30 < score <= 50
	BracketFair     ScoreBracket = "fair"     // 50 < score <= 70
	BracketGood     ScoreBracket = "good"     // score > 70
)

// Known reports whether b is one of the defined brackets.
func (b ScoreBracket) Known() bool {
	switch b {
	case BracketAll, BracketLead, BracketCritical, BracketPoor, BracketFair, BracketGood:
		return true
	}
	return false
}

// Matches reports whether a deal's score falls in the bracket. A deal with
// an absent score matches no bracket except "all", regardless of status.
func (b ScoreBracket) Matches(d Deal) bool {
	if b == BracketAll || b == "" {
		return true
	}
	if d.Score == nil {
		return false
	}
	s := *d.Score
	switch b {
	case BracketLead:
		return s < 50
	case BracketCritical:
		return s <= 30
	case BracketPoor:
		return s > 30 && s <= 50
	case BracketFair:
		return s > 50 && s <= 70
	case BracketGood:
		return s > 70
	}
	return false
}

// DealCounts holds per-status chip totals. Counts are always computed from
// the score-unfiltered collection so chips show totals, not the visible
// subset.
type DealCounts struct {
	All      int            `json:"all"`
	ByStatus map[string]int `json:"by_status"`
}
