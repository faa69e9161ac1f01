package geospatial

import "math"

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// BoundingBox returns a box around a point with the given radius in meters.
func BoundingBox(lat, lng, radiusMeters float64) (minLat, minLng, maxLat, maxLng float64) {
	latDelta := radiusMeters / 111320.0
	lngDelta := radiusMeters / (111320.0 * math.Cos(toRad(lat)))

	return lat - latDelta, lng - lngDelta, lat + latDelta, lng + lngDelta
}

// RingAreaSqMeters computes the approximate planar area of a closed ring of
// [lng, lat] positions using the shoelace formula on an equirectangular
// projection. Good enough at parcel scale.
func RingAreaSqMeters(ring [][2]float64) float64 {
	if len(ring) < 3 {
		return 0
	}

	// Project around the ring's first vertex.
	refLat := ring[0][1]
	mPerDegLat := 111320.0
	mPerDegLng := 111320.0 * math.Cos(toRad(refLat))

	var sum float64
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		xi := ring[i][0] * mPerDegLng
		yi := ring[i][1] * mPerDegLat
		xj := ring[j][0] * mPerDegLng
		yj := ring[j][1] * mPerDegLat
		sum += xi*yj - xj*yi
	}
	return math.Abs(sum) / 2
}

// SqMetersToSqFeet converts square meters to square feet.
func SqMetersToSqFeet(m2 float64) float64 {
	return m2 * 10.7639
}

// SqMetersToAcres converts square meters to acres.
func SqMetersToAcres(m2 float64) float64 {
	return m2 / 4046.8564224
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
