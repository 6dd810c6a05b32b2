// Package geolocation delivers a continuous stream of device positions.
//
// A Source is watched through a Subscription. Each subscription emits a mix of
// PositionSample and *AcquisitionError events until it is closed; a closed subscription
// cannot be reused, but calling Watch again starts a fresh one.
package geolocation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnsupported is returned by Watch when the source has no location capability.
var ErrUnsupported = errors.New("geolocation not supported")

// Acquisition error codes, matching the codes reported to the backend.
const (
	PermissionDenied    = 1
	PositionUnavailable = 2
	Timeout             = 3
)

// Event is either a PositionSample or an *AcquisitionError.
type Event interface {
	isEvent()
}

// PositionSample is one fix. SpeedMps and Heading are nil when the receiver did not report them.
type PositionSample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_m"`
	SpeedMps       *float64  `json:"speed_mps,omitempty"`
	Heading        *float64  `json:"heading,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

func (PositionSample) isEvent() {}

type AcquisitionError struct {
	Code    int
	Message string
}

func (*AcquisitionError) isEvent() {}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("geolocation error %d: %s", e.Code, e.Message)
}

// Denied reports whether the error is a permission denial, which must not be retried.
func (e *AcquisitionError) Denied() bool {
	return e.Code == PermissionDenied
}

type Source interface {
	// Supported reports whether the device has a location capability at all.
	Supported() bool
	Watch(ctx context.Context) (Subscription, error)
}

type Subscription interface {
	// Events is closed after the subscription ends.
	Events() <-chan Event
	// Close stops the watch and waits for it to finish. It is safe to call more than once.
	Close() error
}
