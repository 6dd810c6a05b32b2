package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"courierloc/internal/mapsurface"
	"courierloc/pkg/location"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

const (
	// fitMaxZoom caps the zoom chosen when fitting markers into the viewport.
	fitMaxZoom = 16
	// fitMinSpanKm treats marker sets smaller than this as a single point.
	fitMinSpanKm = 0.05
)

// Message types exchanged with map viewers.
const (
	TypeSnapshot        = "snapshot"
	TypeSDKLoad         = "sdk.load"
	TypeStyle           = "style"
	TypeMapCreate       = "map.create"
	TypeMapFit          = "map.fit"
	TypeMapDestroy      = "map.destroy"
	TypePlacemarkAdd    = "placemark.add"
	TypePlacemarkUpdate = "placemark.update"
	TypePlacemarkRemove = "placemark.remove"
	// TypeViewport is sent by viewers whenever their map element changes size.
	TypeViewport = "viewport"
)

type Placemark struct {
	ID         string                `json:"id"`
	Position   mapsurface.LatLon     `json:"position"`
	Properties mapsurface.Properties `json:"properties"`
	Preset     string                `json:"preset"`
}

// Message is the envelope of every display frame. Unused fields are omitted.
type Message struct {
	Type       string             `json:"type"`
	APIKey     string             `json:"api_key,omitempty"`
	Style      *mapsurface.Style  `json:"style,omitempty"`
	Center     *mapsurface.LatLon `json:"center,omitempty"`
	Zoom       *int               `json:"zoom,omitempty"`
	Placemark  *Placemark         `json:"placemark,omitempty"`
	ID         string             `json:"id,omitempty"`
	Placemarks []Placemark        `json:"placemarks,omitempty"`
	Width      int                `json:"width,omitempty"`
	Height     int                `json:"height,omitempty"`
}

var ErrEmptyAPIKey = errors.New("map api key is empty")

// Display renders the map on connected WebSocket viewers. It implements
// mapsurface.SDK and is its own mapsurface.Container: the container is present while
// at least one viewer is connected and its size is the largest reported viewport.
type Display struct {
	hub *Hub

	mu       sync.Mutex
	loaded   bool
	apiKey   string
	style    *mapsurface.Style
	viewers  map[*Client]mapsurface.Size
	resize   map[int]func()
	nextHook int
	current  *displayMap
}

func NewDisplay() *Display {
	d := &Display{
		hub:     NewHub(),
		viewers: make(map[*Client]mapsurface.Size),
		resize:  make(map[int]func()),
	}
	d.hub.onLeave = d.leave
	return d
}

// Join registers a viewer and queues the current map state as its first message.
func (d *Display) Join(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hub.Register(c)
	d.viewers[c] = mapsurface.Size{}
	snap := Message{Type: TypeSnapshot, APIKey: d.apiKey, Style: d.style}
	if m := d.current; m != nil {
		center, zoom := m.center, m.zoom
		snap.Center, snap.Zoom = &center, &zoom
		snap.Placemarks = m.list()
	}
	if data, err := json.Marshal(snap); err == nil {
		c.Deliver(data)
	}
}

func (d *Display) leave(c *Client) {
	d.mu.Lock()
	before := d.sizeLocked()
	delete(d.viewers, c)
	fns := d.resizeHooksIfChanged(before)
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Handle processes a frame received from viewer c.
func (d *Display) Handle(c *Client, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg.Type != TypeViewport {
		return nil
	}
	d.mu.Lock()
	if _, ok := d.viewers[c]; !ok {
		d.mu.Unlock()
		return nil
	}
	before := d.sizeLocked()
	d.viewers[c] = mapsurface.Size{Width: max(msg.Width, 0), Height: max(msg.Height, 0)}
	fns := d.resizeHooksIfChanged(before)
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

func (d *Display) resizeHooksIfChanged(before mapsurface.Size) []func() {
	if d.sizeLocked() == before {
		return nil
	}
	fns := make([]func(), 0, len(d.resize))
	for _, fn := range d.resize {
		fns = append(fns, fn)
	}
	return fns
}

func (d *Display) ViewerCount() int {
	return d.hub.ClientCount()
}

func (d *Display) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

// Load hands the provider key to the viewers so they can load the map library.
func (d *Display) Load(ctx context.Context, apiKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if apiKey == "" {
		return ErrEmptyAPIKey
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded = true
	d.apiKey = apiKey
	d.hub.BroadcastAll(Message{Type: TypeSDKLoad, APIKey: apiKey})
	return nil
}

func (d *Display) Container() mapsurface.Container {
	return d
}

func (d *Display) Present() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.viewers) > 0
}

func (d *Display) Size() mapsurface.Size {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sizeLocked()
}

func (d *Display) sizeLocked() mapsurface.Size {
	var s mapsurface.Size
	for _, v := range d.viewers {
		s.Width = max(s.Width, v.Width)
		s.Height = max(s.Height, v.Height)
	}
	return s
}

func (d *Display) ApplyStyle(s mapsurface.Style) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.style != nil && *d.style == s {
		return
	}
	d.style = &s
	d.hub.BroadcastAll(Message{Type: TypeStyle, Style: &s})
}

func (d *Display) OnResize(fn func()) (detach func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextHook
	d.nextHook++
	d.resize[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.resize, id)
			d.mu.Unlock()
		})
	}
}

func (d *Display) NewMap(c mapsurface.Container, opts mapsurface.MapOptions) (mapsurface.Map, error) {
	if c != mapsurface.Container(d) {
		return nil, errors.New("container does not belong to this display")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		d.current.destroyLocked()
	}
	m := &displayMap{
		d:          d,
		center:     opts.Center,
		zoom:       opts.Zoom,
		home:       opts,
		placemarks: make(map[string]*placemark),
	}
	d.current = m
	d.hub.BroadcastAll(Message{Type: TypeMapCreate, Center: &m.center, Zoom: &m.zoom})
	return m, nil
}

// displayMap is one map instance. All fields are guarded by d.mu.
type displayMap struct {
	d          *Display
	center     mapsurface.LatLon
	zoom       int
	home       mapsurface.MapOptions
	placemarks map[string]*placemark
	order      []string
	destroyed  bool
}

func (m *displayMap) list() []Placemark {
	out := make([]Placemark, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.placemarks[id].Placemark)
	}
	return out
}

func (m *displayMap) AddPlacemark(pos mapsurface.LatLon, props mapsurface.Properties, preset string) (mapsurface.Marker, error) {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if m.destroyed {
		return nil, mapsurface.ErrNotReady
	}
	p := &placemark{
		m:         m,
		Placemark: Placemark{ID: uuid.NewString(), Position: pos, Properties: props, Preset: preset},
	}
	m.placemarks[p.ID] = p
	m.order = append(m.order, p.ID)
	pm := p.Placemark
	m.d.hub.BroadcastAll(Message{Type: TypePlacemarkAdd, Placemark: &pm})
	return p, nil
}

// FitToViewport centers the map on its placemarks at the largest zoom that shows all
// of them in the current viewport. Without placemarks the initial view is restored.
func (m *displayMap) FitToViewport() {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	if m.destroyed {
		return
	}
	points := make([]orb.Point, 0, len(m.placemarks))
	for _, p := range m.placemarks {
		points = append(points, orb.Point{p.Position.Lon, p.Position.Lat})
	}
	if bound, ok := location.Bounds(points); ok {
		size := m.d.sizeLocked()
		center, zoom := location.FitZoom(bound, size.Width, size.Height, fitMaxZoom, fitMinSpanKm)
		m.center = mapsurface.LatLon{Lat: center.Lat(), Lon: center.Lon()}
		m.zoom = zoom
	} else {
		m.center, m.zoom = m.home.Center, m.home.Zoom
	}
	center, zoom := m.center, m.zoom
	m.d.hub.BroadcastAll(Message{Type: TypeMapFit, Center: &center, Zoom: &zoom})
}

func (m *displayMap) Destroy() {
	m.d.mu.Lock()
	defer m.d.mu.Unlock()
	m.destroyLocked()
}

func (m *displayMap) destroyLocked() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.placemarks = make(map[string]*placemark)
	m.order = nil
	if m.d.current == m {
		m.d.current = nil
	}
	m.d.hub.BroadcastAll(Message{Type: TypeMapDestroy})
}

type placemark struct {
	m *displayMap
	Placemark
}

func (p *placemark) live() bool {
	return !p.m.destroyed && p.m.placemarks[p.ID] == p
}

func (p *placemark) SetCoordinates(pos mapsurface.LatLon) {
	d := p.m.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if !p.live() || p.Position == pos {
		return
	}
	p.Position = pos
	pm := p.Placemark
	d.hub.BroadcastAll(Message{Type: TypePlacemarkUpdate, Placemark: &pm})
}

func (p *placemark) SetProperties(props mapsurface.Properties) {
	d := p.m.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if !p.live() || p.Properties == props {
		return
	}
	p.Properties = props
	pm := p.Placemark
	d.hub.BroadcastAll(Message{Type: TypePlacemarkUpdate, Placemark: &pm})
}

func (p *placemark) Remove() {
	d := p.m.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if !p.live() {
		return
	}
	delete(p.m.placemarks, p.ID)
	for i, id := range p.m.order {
		if id == p.ID {
			p.m.order = append(p.m.order[:i], p.m.order[i+1:]...)
			break
		}
	}
	d.hub.BroadcastAll(Message{Type: TypePlacemarkRemove, ID: p.ID})
}
