// Package tracker is the courier-side location reporting state machine.
//
// One Tracker owns at most one geolocation watch, a liveness ping ticker and a retry
// timer. All of that state lives on a single goroutine; public methods post commands to
// it and wait for them to run. Backend I/O happens on short-lived goroutines whose
// results are posted back to the loop.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"courierloc/internal/domain"
	"courierloc/internal/dto"
	"courierloc/internal/geolocation"

	"go.uber.org/zap"
)

type State string

const (
	Idle     State = "idle"
	Starting State = "starting"
	Watching State = "watching"
	Degraded State = "degraded"
	Stopped  State = "stopped"
)

// Degradation reasons.
const (
	ReasonUnsupported = "unsupported"
	ReasonInsecure    = "insecure-context"
	ReasonUnavailable = "unavailable"
	ReasonTimeout     = "timeout"
)

const (
	msgUnsupported = "Geolocation is not supported on this device."
	msgInsecure    = "Not a secure connection. Use HTTPS (localhost is OK for development)."
)

// Status is the snapshot delivered to subscribers. Running mirrors the persisted intent.
type Status struct {
	Running      bool                        `json:"running"`
	State        State                       `json:"state"`
	Reason       string                      `json:"reason,omitempty"`
	LastPosition *geolocation.PositionSample `json:"last_position,omitempty"`
	Error        string                      `json:"error,omitempty"`
}

// Backend is the part of the server API the tracker talks to.
type Backend interface {
	Secure() bool
	TrackingState(ctx context.Context) (*dto.TrackingState, error)
	StartTracking(ctx context.Context) error
	StopTracking(ctx context.Context) error
	UpdateLocation(ctx context.Context, upd dto.LocationUpdate) error
	Ping(ctx context.Context, req dto.PingRequest) error
}

type IntentStore interface {
	Load() bool
	Save(on bool)
}

type Options struct {
	PingInterval time.Duration
	RetryBackoff time.Duration
	CallTimeout  time.Duration
	Logger       *zap.Logger
	Metrics      *Metrics
}

func (o *Options) setDefaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(nil)
	}
}

type Tracker struct {
	source  geolocation.Source
	backend Backend
	intent  IntentStore
	opts    Options
	logger  *zap.Logger
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan func()
	done   chan struct{}
	calls  sync.WaitGroup

	// held across a state change and its announcement so the server
	// sees start and stop in the order they were applied
	announce sync.Mutex

	bootOnce  sync.Once
	closeOnce sync.Once

	// Owned by the loop goroutine.
	status    Status
	touched   bool
	sub       geolocation.Subscription
	events    <-chan geolocation.Event
	ping      *time.Ticker
	pingC     <-chan time.Time
	retry     *time.Timer
	retryC    <-chan time.Time
	listeners map[int]func(Status)
	nextID    int
}

// New creates a tracker in state Idle with Running set from the persisted intent.
// Call Close to release it.
func New(source geolocation.Source, backend Backend, intent IntentStore, opts Options) *Tracker {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		source:    source,
		backend:   backend,
		intent:    intent,
		opts:      opts,
		logger:    opts.Logger.Named("tracker"),
		metrics:   opts.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan func()),
		done:      make(chan struct{}),
		listeners: make(map[int]func(Status)),
	}
	t.status = Status{Running: intent.Load(), State: Idle}
	go t.loop()
	return t
}

func (t *Tracker) loop() {
	defer close(t.done)
	for {
		select {
		case <-t.ctx.Done():
			t.release()
			t.stopPing()
			t.cancelRetry()
			return
		case fn := <-t.cmds:
			fn()
		case ev, ok := <-t.events:
			if !ok {
				t.handleError(&geolocation.AcquisitionError{
					Code:    geolocation.PositionUnavailable,
					Message: "position stream ended",
				})
				continue
			}
			t.handleEvent(ev)
		case <-t.pingC:
			t.heartbeat()
		case <-t.retryC:
			t.retry, t.retryC = nil, nil
			if t.status.Running && t.sub == nil {
				t.metrics.retries.Inc()
				t.acquire()
			}
		}
	}
}

// exec runs fn on the loop and waits for it. It reports false after Close.
func (t *Tracker) exec(fn func()) bool {
	ran := make(chan struct{})
	select {
	case t.cmds <- func() { fn(); close(ran) }:
	case <-t.done:
		return false
	}
	<-ran
	return true
}

// post queues fn on the loop without waiting.
func (t *Tracker) post(fn func()) {
	select {
	case t.cmds <- fn:
	case <-t.done:
	}
}

// call runs a backend request off the loop; then, if set, runs on the loop with the result.
func (t *Tracker) call(op string, fn func(ctx context.Context) error, then func(err error)) {
	t.calls.Add(1)
	go func() {
		defer t.calls.Done()
		ctx, cancel := context.WithTimeout(t.ctx, t.opts.CallTimeout)
		defer cancel()
		err := fn(ctx)
		if err != nil {
			t.logger.Debug(op+" failed", zap.Error(err))
		}
		if then != nil {
			t.post(func() { then(err) })
		}
	}()
}

// Bootstrap adopts the server's tracking flag and resumes reporting when it is on.
// When the server is unreachable the persisted intent stands. Only the first call does
// any work; concurrent and later callers wait for it and return.
func (t *Tracker) Bootstrap(ctx context.Context) {
	t.bootOnce.Do(func() {
		callCtx, cancel := context.WithTimeout(ctx, t.opts.CallTimeout)
		remote, err := t.backend.TrackingState(callCtx)
		cancel()
		if err != nil {
			t.logger.Info("tracking state unavailable, keeping local intent", zap.Error(err))
		}
		t.exec(func() {
			// an explicit Start or Stop while the request was in flight wins
			if err == nil && !t.touched {
				t.setIntent(remote.IsTracking)
			}
			if t.status.Running {
				t.startPing()
				t.acquire()
			}
			t.notify()
		})
	})
}

// Start turns reporting on: intent is persisted, the ping starts, the server is told
// and a watch is acquired.
func (t *Tracker) Start(ctx context.Context) {
	t.announce.Lock()
	defer t.announce.Unlock()
	ok := t.exec(func() {
		t.touched = true
		t.setIntent(true)
		t.status.Error = ""
		if t.sub == nil {
			t.setState(Starting, "")
		}
		t.startPing()
		t.notify()
	})
	if !ok {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, t.opts.CallTimeout)
	if err := t.backend.StartTracking(callCtx); err != nil {
		// heartbeat and updates repair server state once the network returns
		t.logger.Info("start tracking not announced", zap.Error(err))
	}
	cancel()
	t.exec(func() {
		if t.status.Running {
			t.acquire()
		}
	})
}

// Stop releases the watch and every timer, persists intent off and, when notifyServer
// is set, tells the server. Nothing the tracker owns is left running when it returns.
func (t *Tracker) Stop(ctx context.Context, notifyServer bool) {
	t.announce.Lock()
	defer t.announce.Unlock()
	if !t.exec(func() {
		t.touched = true
		t.halt()
	}) {
		return
	}
	if notifyServer {
		callCtx, cancel := context.WithTimeout(ctx, t.opts.CallTimeout)
		if err := t.backend.StopTracking(callCtx); err != nil {
			t.logger.Info("stop tracking not announced", zap.Error(err))
		}
		cancel()
	}
}

// Resume re-acquires the watch right away when reporting is on but no watch is held,
// e.g. after the process was suspended.
func (t *Tracker) Resume() {
	t.exec(func() {
		if t.status.Running && t.sub == nil {
			t.acquire()
		}
	})
}

// Status returns the current snapshot.
func (t *Tracker) Status() Status {
	var s Status
	if !t.exec(func() { s = t.snapshot() }) {
		s = Status{State: Stopped}
	}
	return s
}

// Subscribe delivers the current snapshot to fn immediately and again after every change.
// fn runs on the tracker goroutine: it must not block or call back into the Tracker.
// The returned function detaches fn and may be called any number of times.
func (t *Tracker) Subscribe(fn func(Status)) (unsubscribe func()) {
	id := -1
	t.exec(func() {
		id = t.nextID
		t.nextID++
		t.listeners[id] = fn
		fn(t.snapshot())
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			t.exec(func() { delete(t.listeners, id) })
		})
	}
}

// Close stops the loop, releases the watch and timers and waits for in-flight requests.
// Persisted intent is left as is so the next process resumes where this one stopped.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		t.cancel()
		<-t.done
		t.calls.Wait()
	})
}

func (t *Tracker) snapshot() Status {
	s := t.status
	if s.LastPosition != nil {
		p := *s.LastPosition
		s.LastPosition = &p
	}
	return s
}

func (t *Tracker) notify() {
	s := t.snapshot()
	for _, fn := range t.listeners {
		fn(s)
	}
}

func (t *Tracker) setIntent(on bool) {
	t.status.Running = on
	t.intent.Save(on)
}

func (t *Tracker) setState(state State, reason string) {
	t.status.State = state
	t.status.Reason = reason
}

// acquire creates the watch unless one is already held.
func (t *Tracker) acquire() {
	if t.sub != nil {
		return
	}
	t.cancelRetry()
	if !t.source.Supported() {
		t.degrade(ReasonUnsupported, msgUnsupported)
		return
	}
	if !t.backend.Secure() {
		t.degrade(ReasonInsecure, msgInsecure)
		return
	}
	sub, err := t.source.Watch(t.ctx)
	if errors.Is(err, geolocation.ErrUnsupported) {
		t.degrade(ReasonUnsupported, msgUnsupported)
		return
	}
	if err != nil {
		t.handleError(&geolocation.AcquisitionError{Code: geolocation.PositionUnavailable, Message: err.Error()})
		return
	}
	t.sub = sub
	t.events = sub.Events()
	t.metrics.watchActive.Set(1)
	t.setState(Starting, "")
	t.notify()
}

func (t *Tracker) release() {
	if t.sub == nil {
		return
	}
	if err := t.sub.Close(); err != nil {
		t.logger.Debug("close watch", zap.Error(err))
	}
	t.sub, t.events = nil, nil
	t.metrics.watchActive.Set(0)
}

func (t *Tracker) degrade(reason, msg string) {
	t.setState(Degraded, reason)
	t.status.Error = msg
	t.notify()
}

// halt is the loop side of Stop.
func (t *Tracker) halt() {
	t.release()
	t.stopPing()
	t.cancelRetry()
	t.setIntent(false)
	t.setState(Stopped, "")
	t.notify()
}

func (t *Tracker) handleEvent(ev geolocation.Event) {
	switch e := ev.(type) {
	case geolocation.PositionSample:
		t.handlePosition(e)
	case *geolocation.AcquisitionError:
		t.handleError(e)
	}
}

func (t *Tracker) handlePosition(p geolocation.PositionSample) {
	t.metrics.positions.Inc()
	t.status.LastPosition = &p
	t.status.Error = ""
	t.setState(Watching, "")
	t.notify()

	upd := dto.LocationUpdate{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		AccuracyM: p.AccuracyMeters,
		SpeedMps:  p.SpeedMps,
		Heading:   p.Heading,
	}
	t.call("update location", func(ctx context.Context) error {
		return t.backend.UpdateLocation(ctx, upd)
	}, func(err error) {
		if err == nil || !t.status.Running {
			return
		}
		// the watch keeps running; the next accepted fix clears this
		t.metrics.forwardFailures.Inc()
		t.status.Error = fmt.Sprintf("Server update failed: %v", err)
		t.notify()
	})
}

func (t *Tracker) handleError(e *geolocation.AcquisitionError) {
	t.metrics.acquisitionError(e.Code)
	code := e.Code
	gpsStatus := domain.GPSStatusUnavailable
	if e.Denied() {
		gpsStatus = domain.GPSStatusDenied
	}
	diag := dto.PingRequest{GPSStatus: gpsStatus, ErrorCode: &code, ErrorMessage: e.Message}

	if e.Denied() {
		t.logger.Warn("location permission denied", zap.String("message", e.Message))
		// diagnostic first, then the stop announcement, in that order
		t.call("report denied", func(ctx context.Context) error {
			if err := t.backend.Ping(ctx, diag); err != nil {
				t.logger.Debug("diagnostic ping failed", zap.Error(err))
			}
			return t.backend.StopTracking(ctx)
		}, nil)
		t.halt()
		t.status.Error = "GPS permission denied: " + e.Message
		t.notify()
		return
	}

	t.call("report unavailable", func(ctx context.Context) error {
		return t.backend.Ping(ctx, diag)
	}, nil)
	t.release()
	reason := ReasonUnavailable
	if code == geolocation.Timeout {
		reason = ReasonTimeout
	}
	t.setState(Degraded, reason)
	t.status.Error = fmt.Sprintf("GPS unavailable (code %d): %s (will retry)", code, e.Message)
	t.notify()
	t.scheduleRetry()
}

func (t *Tracker) scheduleRetry() {
	t.cancelRetry()
	t.retry = time.NewTimer(t.opts.RetryBackoff)
	t.retryC = t.retry.C
}

func (t *Tracker) cancelRetry() {
	if t.retry != nil {
		t.retry.Stop()
	}
	t.retry, t.retryC = nil, nil
}

func (t *Tracker) startPing() {
	if t.ping != nil {
		return
	}
	t.ping = time.NewTicker(t.opts.PingInterval)
	t.pingC = t.ping.C
}

func (t *Tracker) stopPing() {
	if t.ping != nil {
		t.ping.Stop()
	}
	t.ping, t.pingC = nil, nil
}

func (t *Tracker) heartbeat() {
	t.call("ping", func(ctx context.Context) error {
		return t.backend.Ping(ctx, dto.PingRequest{})
	}, nil)
}
