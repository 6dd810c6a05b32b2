package mapsurface

import "context"

// LatLon is a WGS84 coordinate in the order the map SDK expects.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Style is a CSS size override for a collapsed container.
type Style struct {
	Width     string `json:"width"`
	Height    string `json:"height"`
	MinHeight string `json:"min_height"`
}

// FallbackStyle is applied to a container that is present but has zero height.
var FallbackStyle = Style{Width: "100%", Height: "75vh", MinHeight: "450px"}

// Properties are the placemark texts shown on the map.
type Properties struct {
	BalloonContent string `json:"balloon_content"`
	HintContent    string `json:"hint_content"`
	IconCaption    string `json:"icon_caption"`
}

type MapOptions struct {
	Center LatLon `json:"center"`
	Zoom   int    `json:"zoom"`
}

// SDK is the mapping library. Loaded is process-wide: once true it stays true.
type SDK interface {
	Loaded() bool
	Load(ctx context.Context, apiKey string) error
	Container() Container
	NewMap(c Container, opts MapOptions) (Map, error)
}

// Container is the display element the map renders into.
type Container interface {
	Present() bool
	Size() Size
	ApplyStyle(s Style)
	// OnResize registers fn for display resize events. detach removes it.
	OnResize(fn func()) (detach func())
}

type Map interface {
	AddPlacemark(pos LatLon, props Properties, preset string) (Marker, error)
	FitToViewport()
	Destroy()
}

type Marker interface {
	SetCoordinates(pos LatLon)
	SetProperties(props Properties)
	Remove()
}

// KeyFetcher provides the map provider credential.
type KeyFetcher interface {
	TrackingKey(ctx context.Context) (string, error)
}
