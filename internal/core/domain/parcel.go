package domain

// Parcel is a cadastral land unit from the property-records provider.
type Parcel struct {
	Address   string   `json:"address"`
	Owner     string   `json:"owner,omitempty"`
	AreaAcres float64  `json:"area_acres"`
	LandUse   string   `json:"land_use,omitempty"`
	Boundary  *Polygon `json:"polygon_geojson,omitempty"`
	Source    string   `json:"source,omitempty"`
}

// ParcelLookup is the provider response for a point query. HasParcel false
// means no cadastral record at that location, which is not an error.
type ParcelLookup struct {
	HasParcel bool    `json:"has_parcel"`
	Parcel    *Parcel `json:"parcel,omitempty"`
}

// CaptureRequest asks for satellite imagery plus derived measurements at a
// point.
type CaptureRequest struct {
	Location GeoPoint `json:"location"`
	Address  string   `json:"address,omitempty"`
	Zoom     int      `json:"zoom"`
}

// ImageSize is the pixel dimensions of a captured image.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CaptureResult is the persisted outcome of an imagery capture.
type CaptureResult struct {
	PropertyID  string         `json:"property_id"`
	ImageBase64 string         `json:"image_base64,omitempty"`
	ImageSize   ImageSize      `json:"image_size"`
	AreaSqft    float64        `json:"area_sqft"`
	Regrid      map[string]any `json:"regrid,omitempty"`
}
