package regrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// Client implements ports.ParcelLookupService against the Regrid parcel API.
// Every call is billable; the client performs exactly one request per Lookup
// and never retries on its own.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Regrid API client.
func New(baseURL, apiKey string, timeoutSeconds int) *Client {
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

// parcelResponse mirrors the subset of the provider's point-lookup payload
// the dashboard consumes.
type parcelResponse struct {
	Parcels []struct {
		Properties struct {
			Fields struct {
				Address  string  `json:"address"`
				Owner    string  `json:"owner"`
				GISAcres float64 `json:"gisacre"`
				UseDesc  string  `json:"usedesc"`
			} `json:"fields"`
		} `json:"properties"`
		Geometry *domain.Polygon `json:"geometry"`
	} `json:"parcels"`
	Error string `json:"error"`
}

// Lookup fetches the parcel containing a point. A point outside any mapped
// parcel is a normal outcome, reported via HasParcel=false.
func (c *Client) Lookup(ctx context.Context, p domain.GeoPoint) (*domain.ParcelLookup, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", p.Lat))
	q.Set("lon", fmt.Sprintf("%.6f", p.Lng))
	q.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/parcels/point?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("regrid lookup: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providerError(resp.StatusCode, body)
	}

	var parsed parcelResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Parcels) == 0 {
		return &domain.ParcelLookup{HasParcel: false}, nil
	}

	first := parsed.Parcels[0]
	return &domain.ParcelLookup{
		HasParcel: true,
		Parcel: &domain.Parcel{
			Address:   first.Properties.Fields.Address,
			Owner:     first.Properties.Fields.Owner,
			AreaAcres: first.Properties.Fields.GISAcres,
			LandUse:   first.Properties.Fields.UseDesc,
			Boundary:  first.Geometry,
			Source:    "regrid",
		},
	}, nil
}

// providerError pulls the provider's message out of a non-200 body so the
// overlay can show it verbatim (rate limits in particular).
func providerError(status int, body []byte) error {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			msg = payload.Message
		} else {
			msg = payload.Error
		}
	}
	if msg == "" && status == http.StatusTooManyRequests {
		msg = "Rate limit exceeded"
	}
	return &domain.ProviderError{StatusCode: status, Message: msg}
}
