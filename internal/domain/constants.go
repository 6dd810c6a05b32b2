package domain

import "time"

const (
	RoleCourier = "COURIER"
	RoleManager = "MANAGER"
)

// GPS condition reported by the courier device.
const (
	GPSStatusOK          = "ok"
	GPSStatusUnavailable = "unavailable"
	GPSStatusDenied      = "denied"
	GPSStatusUnknown     = "unknown"
)

// Derived courier tracking status shown to managers.
const (
	TrackingStatusTracking = "tracking"
	TrackingStatusGPSOff   = "gps_off"
	TrackingStatusOffline  = "offline"
	TrackingStatusStale    = "stale"
	TrackingStatusStopped  = "stopped"
)

const (
	// HeartbeatCutoff is how long a courier app may stay silent before it counts as offline.
	HeartbeatCutoff = 60 * time.Second
	// FixCutoff is how old the last position may be before the courier counts as stale.
	FixCutoff = 3 * time.Minute
	// MaxErrorMessageLen bounds diagnostic messages stored per courier.
	MaxErrorMessageLen = 512
)

// SettingMapAPIKey is the system setting holding the map provider key.
const SettingMapAPIKey = "map.api_key"

// ValidGPSStatus reports whether s is a status a device may report.
func ValidGPSStatus(s string) bool {
	switch s {
	case GPSStatusOK, GPSStatusUnavailable, GPSStatusDenied, GPSStatusUnknown:
		return true
	}
	return false
}
