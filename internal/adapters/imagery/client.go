package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avelarde/leadmap/internal/core/domain"
)

// Client implements ports.ImageryService against the imagery capture
// backend, which renders a satellite snapshot of the property and measures
// its paved surface.
type Client struct {
	baseURL     string
	apiKey      string
	defaultZoom int
	http        *http.Client
}

// New creates an imagery capture client.
func New(baseURL, apiKey string, defaultZoom, timeoutSeconds int) *Client {
	if defaultZoom <= 0 {
		defaultZoom = 19
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 60
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		defaultZoom: defaultZoom,
		http:        &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

type captureRequest struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
	Zoom    int     `json:"zoom"`
}

type captureResponse struct {
	PropertyID  string         `json:"property_id"`
	ImageBase64 string         `json:"image_base64"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	AreaSqft    float64        `json:"area_sqft"`
	Regrid      map[string]any `json:"regrid,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Capture renders and measures the property at the request location. The
// backend call is long (image rendering plus measurement), so the context
// deadline governs.
func (c *Client) Capture(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error) {
	zoom := req.Zoom
	if zoom <= 0 {
		zoom = c.defaultZoom
	}
	payload, err := json.Marshal(captureRequest{
		Lat:     req.Location.Lat,
		Lng:     req.Location.Lng,
		Address: req.Address,
		Zoom:    zoom,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/capture", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("imagery capture: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed captureResponse
	if resp.StatusCode != http.StatusOK {
		msg := ""
		if json.Unmarshal(body, &parsed) == nil {
			msg = parsed.Error
		}
		return nil, &domain.ProviderError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.PropertyID == "" || parsed.ImageBase64 == "" {
		return nil, fmt.Errorf("incomplete capture response")
	}

	return &domain.CaptureResult{
		PropertyID:  parsed.PropertyID,
		ImageBase64: parsed.ImageBase64,
		ImageSize:   domain.ImageSize{Width: parsed.Width, Height: parsed.Height},
		AreaSqft:    parsed.AreaSqft,
		Regrid:      parsed.Regrid,
	}, nil
}
