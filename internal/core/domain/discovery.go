package domain

import "time"

// Discovery submission modes. Streaming jobs report incremental progress
// over a push channel; sync jobs report only start/success/failure. The two
// are mutually exclusive for a given submission.
const (
	DiscoveryModeStreaming = "streaming"
	DiscoveryModeSync      = "sync"
)

// DiscoveryRequest describes a bulk "discover this area" job.
type DiscoveryRequest struct {
	AreaType           string   `json:"area_type"` // "city", "county", "zip", "bounds"
	Value              string   `json:"value"`
	State              string   `json:"state,omitempty"`
	City               string   `json:"city,omitempty"`
	MaxResults         int      `json:"max_results"`
	Mode               string   `json:"mode"`
	BusinessTypeIDs    []string `json:"business_type_ids,omitempty"`
	ScoringPrompt      string   `json:"scoring_prompt,omitempty"`
	JobTitles          []string `json:"job_titles,omitempty"`
	Industries         []string `json:"industries,omitempty"`
	PropertyCategories []string `json:"property_categories,omitempty"`
	MinAcres           *float64 `json:"min_acres,omitempty"`
	MaxAcres           *float64 `json:"max_acres,omitempty"`
}

// Discovery event kinds, in the order a well-behaved job emits them.
const (
	DiscoveryEventProgress = "progress"
	DiscoveryEventComplete = "complete"
	DiscoveryEventError    = "error"
)

// DiscoveryEvent is one server-pushed progress message for a job. Events
// are strictly ordered; counters never decrease within a job.
type DiscoveryEvent struct {
	JobID          string    `json:"job_id"`
	Kind           string    `json:"kind"`
	Message        string    `json:"message"`
	Percent        float64   `json:"percent"`
	ParcelsScanned int       `json:"parcels_scanned"`
	LeadsFound     int       `json:"leads_found"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

// DiscoveryProgress is the accumulated, displayable view of a running job.
// The latest event is authoritative for message and percent; lead counts
// accumulate additively across the job.
type DiscoveryProgress struct {
	JobID          string    `json:"job_id"`
	Active         bool      `json:"active"`
	Stalled        bool      `json:"stalled,omitempty"`
	Message        string    `json:"message"`
	Percent        float64   `json:"percent"`
	ParcelsScanned int       `json:"parcels_scanned"`
	LeadsFound     int       `json:"leads_found"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DiscoveryAck acknowledges a job submission.
type DiscoveryAck struct {
	JobID     string `json:"job_id"`
	Mode      string `json:"mode"`
	Streaming bool   `json:"streaming"`
}
