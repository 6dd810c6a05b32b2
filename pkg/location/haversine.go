package location

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the Earth radius in kilometers for Haversine.
const EarthRadiusKm = 6371.0

// tileSize is the pixel width of one web map tile at zoom 0.
const tileSize = 256.0

// HaversineKm returns distance in km between two points (lat/lng in degrees).
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	φ1, φ2 := rad(lat1), rad(lat2)
	Δφ := rad(lat2 - lat1)
	Δλ := rad(lng2 - lng1)
	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Bounds returns the bounding box of points given as orb points (X = lon, Y = lat).
func Bounds(points []orb.Point) (orb.Bound, bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}
	return orb.MultiPoint(points).Bound(), true
}

// FitZoom returns the center and the largest zoom (capped at maxZoom) at which bound fits
// into a width x height pixel viewport on a web mercator map.
// Bounds smaller than minSpanKm across are treated as a single point and get maxZoom.
func FitZoom(bound orb.Bound, width, height, maxZoom int, minSpanKm float64) (orb.Point, int) {
	center := bound.Center()
	diag := HaversineKm(bound.Min.Lat(), bound.Min.Lon(), bound.Max.Lat(), bound.Max.Lon())
	if diag < minSpanKm || width <= 0 || height <= 0 {
		return center, maxZoom
	}

	lonSpan := (bound.Max.Lon() - bound.Min.Lon()) / 360
	latSpan := (mercatorY(bound.Max.Lat()) - mercatorY(bound.Min.Lat())) / (2 * math.Pi)

	zoom := float64(maxZoom)
	if lonSpan > 0 {
		zoom = math.Min(zoom, math.Log2(float64(width)/tileSize/lonSpan))
	}
	if latSpan > 0 {
		zoom = math.Min(zoom, math.Log2(float64(height)/tileSize/latSpan))
	}
	if zoom < 0 {
		zoom = 0
	}
	return center, int(math.Floor(zoom))
}

func mercatorY(lat float64) float64 {
	// clamp to the web mercator limit
	lat = math.Max(math.Min(lat, 85.05112878), -85.05112878)
	φ := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + φ/2))
}
