// Package dto holds the JSON shapes exchanged between the server, the courier agent
// and the dispatch console.
package dto

// TimeLayout is the timestamp format used in every payload.
const TimeLayout = "2006-01-02 15:04:05"

// CourierLocation is one row of the manager map list. Nil coordinates mean the courier
// has no position to display.
type CourierLocation struct {
	CourierID      uint     `json:"courier_id"`
	Name           string   `json:"name"`
	Lat            *float64 `json:"lat"`
	Lon            *float64 `json:"lon"`
	LastUpdate     *string  `json:"last_update"`
	TrackingStatus string   `json:"tracking_status,omitempty"`
	GPSStatus      string   `json:"gps_status,omitempty"`
	LastHeartbeat  *string  `json:"last_heartbeat,omitempty"`
}

// Active reports whether both coordinates are present.
func (l CourierLocation) Active() bool {
	return l.Lat != nil && l.Lon != nil
}

type TrackingState struct {
	IsTracking    bool    `json:"is_tracking"`
	GPSStatus     string  `json:"gps_status"`
	LastUpdate    *string `json:"last_update"`
	LastHeartbeat *string `json:"last_heartbeat"`
}

type LocationUpdate struct {
	Latitude  float64  `json:"latitude" binding:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude" binding:"gte=-180,lte=180"`
	AccuracyM float64  `json:"accuracy_m" binding:"gte=0"`
	SpeedMps  *float64 `json:"speed_mps,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
}

type PingRequest struct {
	GPSStatus    string `json:"gps_status,omitempty"`
	ErrorCode    *int   `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type MapKeyResponse struct {
	Key string `json:"key"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type Point struct {
	Lat float64 `json:"lat" binding:"gte=-90,lte=90"`
	Lon float64 `json:"lon" binding:"gte=-180,lte=180"`
}

type RouteRequest struct {
	Start        Point   `json:"start"`
	Destinations []Point `json:"destinations" binding:"required,min=1,dive"`
}

type RouteResponse struct {
	URL string `json:"url"`
}
