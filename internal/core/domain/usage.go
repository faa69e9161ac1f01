package domain

import "time"

// UsageSummary aggregates billable provider calls over a trailing window.
type UsageSummary struct {
	Days          int     `json:"days"`
	ParcelLookups int     `json:"parcel_lookups"`
	Captures      int     `json:"captures"`
	DiscoveryJobs int     `json:"discovery_jobs"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// UsageDay is one day's worth of provider usage.
type UsageDay struct {
	Date          time.Time `json:"date"`
	ParcelLookups int       `json:"parcel_lookups"`
	Captures      int       `json:"captures"`
	DiscoveryJobs int       `json:"discovery_jobs"`
}
