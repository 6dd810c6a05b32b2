package tracker

import (
	"context"
	"sync"

	"courierloc/internal/dto"
	"courierloc/internal/geolocation"
)

type fakeSource struct {
	supported bool

	mu        sync.Mutex
	watches   int
	active    int
	maxActive int
	current   *fakeSub
}

func newFakeSource() *fakeSource { return &fakeSource{supported: true} }

func (s *fakeSource) Supported() bool { return s.supported }

func (s *fakeSource) Watch(ctx context.Context) (geolocation.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watches++
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.current = &fakeSub{src: s, ch: make(chan geolocation.Event, 8)}
	return s.current, nil
}

func (s *fakeSource) emit(ev geolocation.Event) {
	s.mu.Lock()
	sub := s.current
	s.mu.Unlock()
	sub.ch <- ev
}

// endStream closes the current subscription's channel as a dying receiver would.
func (s *fakeSource) endStream() {
	s.mu.Lock()
	sub := s.current
	s.mu.Unlock()
	close(sub.ch)
}

func (s *fakeSource) counts() (watches, active, maxActive int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watches, s.active, s.maxActive
}

func (s *fakeSource) watchCount() int {
	w, _, _ := s.counts()
	return w
}

func (s *fakeSource) activeCount() int {
	_, a, _ := s.counts()
	return a
}

type fakeSub struct {
	src  *fakeSource
	ch   chan geolocation.Event
	once sync.Once
}

func (f *fakeSub) Events() <-chan geolocation.Event { return f.ch }

func (f *fakeSub) Close() error {
	f.once.Do(func() {
		f.src.mu.Lock()
		f.src.active--
		f.src.mu.Unlock()
	})
	return nil
}

type fakeBackend struct {
	mu         sync.Mutex
	insecure   bool
	remote     dto.TrackingState
	remoteErr  error
	startErr   error
	startGate  chan struct{}
	updateErr  error
	stateCalls int
	updates    []dto.LocationUpdate
	pings      []dto.PingRequest
	log        []string
}

func (b *fakeBackend) Secure() bool { return !b.insecure }

func (b *fakeBackend) TrackingState(ctx context.Context) (*dto.TrackingState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stateCalls++
	if b.remoteErr != nil {
		return nil, b.remoteErr
	}
	st := b.remote
	return &st, nil
}

func (b *fakeBackend) StartTracking(ctx context.Context) error {
	if b.startGate != nil {
		select {
		case <-b.startGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, "start")
	return b.startErr
}

func (b *fakeBackend) StopTracking(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, "stop")
	return nil
}

func (b *fakeBackend) UpdateLocation(ctx context.Context, upd dto.LocationUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, "update")
	if b.updateErr != nil {
		return b.updateErr
	}
	b.updates = append(b.updates, upd)
	return nil
}

func (b *fakeBackend) Ping(ctx context.Context, req dto.PingRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log = append(b.log, "ping:"+req.GPSStatus)
	b.pings = append(b.pings, req)
	return nil
}

func (b *fakeBackend) setUpdateErr(err error) {
	b.mu.Lock()
	b.updateErr = err
	b.mu.Unlock()
}

func (b *fakeBackend) calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

func (b *fakeBackend) announcements() []string {
	var out []string
	for _, c := range b.calls() {
		if c == "start" || c == "stop" {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBackend) pingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pings)
}

func (b *fakeBackend) updateCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.updates)
}

func (b *fakeBackend) stateCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateCalls
}

type memIntent struct {
	mu sync.Mutex
	on bool
}

func (m *memIntent) Load() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

func (m *memIntent) Save(on bool) {
	m.mu.Lock()
	m.on = on
	m.mu.Unlock()
}

type recorder struct {
	mu   sync.Mutex
	seen []Status
}

func (r *recorder) record(s Status) {
	r.mu.Lock()
	r.seen = append(r.seen, s)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func (r *recorder) last() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[len(r.seen)-1]
}
