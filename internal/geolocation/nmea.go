package geolocation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"go.uber.org/zap"
)

const (
	knotsToMps = 0.514444
	// uere is the user equivalent range error used to turn HDOP into meters.
	uere = 5.0
)

// NMEASource reads NMEA 0183 sentences from a GPS receiver device or a recorded log.
// RMC sentences with a valid fix become samples; GGA sentences refine accuracy.
type NMEASource struct {
	// Path is the serial device or log file. Empty means no receiver is attached.
	Path string
	// Open overrides opening Path.
	Open func() (io.ReadCloser, error)
	// Timeout is how long a watch may go without a fix before reporting Timeout.
	Timeout time.Duration
	// LineDelay paces replay of recorded logs. Zero reads as fast as possible.
	LineDelay time.Duration
	Logger    *zap.Logger
	Now       func() time.Time
}

func (s *NMEASource) Supported() bool {
	return s.Path != "" || s.Open != nil
}

func (s *NMEASource) Watch(ctx context.Context) (Subscription, error) {
	if !s.Supported() {
		return nil, ErrUnsupported
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &nmeaSubscription{
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.run(ctx, s)
	return sub, nil
}

func (s *NMEASource) open() (io.ReadCloser, error) {
	if s.Open != nil {
		return s.Open()
	}
	return os.Open(s.Path)
}

func (s *NMEASource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *NMEASource) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

type nmeaSubscription struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	reader io.Closer
	once   sync.Once
}

func (n *nmeaSubscription) Events() <-chan Event { return n.events }

func (n *nmeaSubscription) Close() error {
	var err error
	n.once.Do(func() {
		n.cancel()
		n.mu.Lock()
		if n.reader != nil {
			// unblocks a pending read on the device
			err = n.reader.Close()
		}
		n.mu.Unlock()
		<-n.done
	})
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}

func (n *nmeaSubscription) emit(ctx context.Context, ev Event) bool {
	select {
	case n.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (n *nmeaSubscription) run(ctx context.Context, src *NMEASource) {
	defer close(n.done)
	defer close(n.events)

	rc, err := src.open()
	if err != nil {
		code := PositionUnavailable
		if errors.Is(err, fs.ErrPermission) {
			code = PermissionDenied
		}
		n.emit(ctx, &AcquisitionError{Code: code, Message: err.Error()})
		return
	}
	n.mu.Lock()
	n.reader = rc
	n.mu.Unlock()
	defer rc.Close()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		readErr <- err
	}()

	var timeout <-chan time.Time
	var timer *time.Timer
	if src.Timeout > 0 {
		timer = time.NewTimer(src.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	log := src.logger()
	accuracy := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			msg := fmt.Sprintf("no fix within %s", src.Timeout)
			if !n.emit(ctx, &AcquisitionError{Code: Timeout, Message: msg}) {
				return
			}
			timer.Reset(src.Timeout)
		case err := <-readErr:
			if ctx.Err() != nil {
				return
			}
			msg := "position source closed"
			if !errors.Is(err, io.EOF) {
				msg = err.Error()
			}
			n.emit(ctx, &AcquisitionError{Code: PositionUnavailable, Message: msg})
			return
		case line := <-lines:
			sample, ok := parseLine(line, &accuracy, log)
			if !ok {
				continue
			}
			sample.CapturedAt = src.now()
			if !n.emit(ctx, sample) {
				return
			}
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(src.Timeout)
			}
			if src.LineDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(src.LineDelay):
				}
			}
		}
	}
}

// parseLine returns a sample for a valid RMC sentence. GGA sentences update accuracy.
func parseLine(line string, accuracy *float64, log *zap.Logger) (PositionSample, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return PositionSample{}, false
	}
	s, err := nmea.Parse(line)
	if err != nil {
		log.Debug("skip nmea sentence", zap.String("line", line), zap.Error(err))
		return PositionSample{}, false
	}
	switch m := s.(type) {
	case nmea.GGA:
		if m.FixQuality != nmea.Invalid && m.HDOP > 0 {
			*accuracy = m.HDOP * uere
		}
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return PositionSample{}, false
		}
		speed := m.Speed * knotsToMps
		sample := PositionSample{
			Latitude:       m.Latitude,
			Longitude:      m.Longitude,
			AccuracyMeters: *accuracy,
			SpeedMps:       &speed,
		}
		if speed > 0 {
			heading := m.Course
			sample.Heading = &heading
		}
		return sample, true
	}
	return PositionSample{}, false
}
