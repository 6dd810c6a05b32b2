package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"courierloc/internal/mapsurface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message")
		return Message{}
	}
}

func assertQuiet(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message %s", data)
	default:
	}
}

func viewport(t *testing.T, d *Display, c *Client, w, h int) {
	t.Helper()
	data, err := json.Marshal(Message{Type: TypeViewport, Width: w, Height: h})
	require.NoError(t, err)
	require.NoError(t, d.Handle(c, data))
}

func TestDisplay_Load(t *testing.T) {
	d := NewDisplay()
	c := NewClient(1, "MANAGER")
	d.Join(c)
	assert.Equal(t, TypeSnapshot, next(t, c).Type)

	assert.False(t, d.Loaded())
	assert.ErrorIs(t, d.Load(context.Background(), ""), ErrEmptyAPIKey)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Load(ctx, "key"), context.Canceled)
	assert.False(t, d.Loaded())

	require.NoError(t, d.Load(context.Background(), "key"))
	assert.True(t, d.Loaded())
	msg := next(t, c)
	assert.Equal(t, TypeSDKLoad, msg.Type)
	assert.Equal(t, "key", msg.APIKey)
}

func TestDisplay_ContainerSize(t *testing.T) {
	d := NewDisplay()
	assert.False(t, d.Present())

	var resized atomic.Int32
	detach := d.OnResize(func() { resized.Add(1) })

	a, b := NewClient(1, "MANAGER"), NewClient(2, "MANAGER")
	d.Join(a)
	assert.True(t, d.Present())
	assert.Equal(t, mapsurface.Size{}, d.Size())

	viewport(t, d, a, 800, 600)
	assert.Equal(t, mapsurface.Size{Width: 800, Height: 600}, d.Size())
	assert.EqualValues(t, 1, resized.Load())

	viewport(t, d, a, 800, 600)
	assert.EqualValues(t, 1, resized.Load(), "unchanged size fires no resize")

	d.Join(b)
	viewport(t, d, b, 1024, 300)
	assert.Equal(t, mapsurface.Size{Width: 1024, Height: 600}, d.Size())
	assert.EqualValues(t, 2, resized.Load())

	b.Close()
	assert.Equal(t, mapsurface.Size{Width: 800, Height: 600}, d.Size())
	assert.EqualValues(t, 3, resized.Load())

	detach()
	detach()
	a.Close()
	assert.False(t, d.Present())
	assert.EqualValues(t, 3, resized.Load())
	assert.Equal(t, 0, d.ViewerCount())
}

func TestDisplay_HandleIgnoresUnknown(t *testing.T) {
	d := NewDisplay()
	c := NewClient(1, "MANAGER")
	assert.Error(t, d.Handle(c, []byte("{not json")))
	assert.NoError(t, d.Handle(c, []byte(`{"type":"hello"}`)))

	viewport(t, d, c, 100, 100)
	assert.False(t, d.Present(), "frames from unknown clients are ignored")
}

func TestDisplay_ApplyStyleOnce(t *testing.T) {
	d := NewDisplay()
	c := NewClient(1, "MANAGER")
	d.Join(c)
	next(t, c)

	d.ApplyStyle(mapsurface.FallbackStyle)
	d.ApplyStyle(mapsurface.FallbackStyle)
	msg := next(t, c)
	assert.Equal(t, TypeStyle, msg.Type)
	require.NotNil(t, msg.Style)
	assert.Equal(t, "75vh", msg.Style.Height)
	assertQuiet(t, c)
}

func TestDisplay_MapAndPlacemarks(t *testing.T) {
	d := NewDisplay()
	c := NewClient(1, "MANAGER")
	d.Join(c)
	next(t, c)
	viewport(t, d, c, 800, 600)

	m, err := d.NewMap(d.Container(), mapsurface.MapOptions{Center: mapsurface.LatLon{Lat: 41.3, Lon: 69.2}, Zoom: 11})
	require.NoError(t, err)
	msg := next(t, c)
	assert.Equal(t, TypeMapCreate, msg.Type)
	require.NotNil(t, msg.Zoom)
	assert.Equal(t, 11, *msg.Zoom)

	m.FitToViewport()
	msg = next(t, c)
	assert.Equal(t, TypeMapFit, msg.Type)
	assert.Equal(t, mapsurface.LatLon{Lat: 41.3, Lon: 69.2}, *msg.Center, "empty map keeps its home view")

	props := mapsurface.Properties{BalloonContent: "A", HintContent: "A", IconCaption: "A"}
	mk, err := m.AddPlacemark(mapsurface.LatLon{Lat: 41.31, Lon: 69.28}, props, mapsurface.DefaultPreset)
	require.NoError(t, err)
	msg = next(t, c)
	assert.Equal(t, TypePlacemarkAdd, msg.Type)
	require.NotNil(t, msg.Placemark)
	id := msg.Placemark.ID
	assert.NotEmpty(t, id)
	assert.Equal(t, mapsurface.DefaultPreset, msg.Placemark.Preset)

	mk.SetCoordinates(mapsurface.LatLon{Lat: 41.31, Lon: 69.28})
	mk.SetProperties(props)
	assertQuiet(t, c)

	mk.SetCoordinates(mapsurface.LatLon{Lat: 41.32, Lon: 69.29})
	msg = next(t, c)
	assert.Equal(t, TypePlacemarkUpdate, msg.Type)
	assert.Equal(t, id, msg.Placemark.ID)
	assert.InDelta(t, 41.32, msg.Placemark.Position.Lat, 1e-9)

	mk.Remove()
	mk.Remove()
	msg = next(t, c)
	assert.Equal(t, TypePlacemarkRemove, msg.Type)
	assert.Equal(t, id, msg.ID)
	assertQuiet(t, c)

	m.Destroy()
	m.Destroy()
	assert.Equal(t, TypeMapDestroy, next(t, c).Type)
	assertQuiet(t, c)
	_, err = m.AddPlacemark(mapsurface.LatLon{}, props, "")
	assert.ErrorIs(t, err, mapsurface.ErrNotReady)
}

func TestDisplay_FitCentersOnPlacemarks(t *testing.T) {
	d := NewDisplay()
	c := NewClient(1, "MANAGER")
	d.Join(c)
	viewport(t, d, c, 800, 600)

	m, err := d.NewMap(d, mapsurface.MapOptions{Center: mapsurface.LatLon{Lat: 0, Lon: 0}, Zoom: 3})
	require.NoError(t, err)
	_, err = m.AddPlacemark(mapsurface.LatLon{Lat: 41.2, Lon: 69.1}, mapsurface.Properties{}, "")
	require.NoError(t, err)
	_, err = m.AddPlacemark(mapsurface.LatLon{Lat: 41.4, Lon: 69.3}, mapsurface.Properties{}, "")
	require.NoError(t, err)
	m.FitToViewport()

	var fit Message
	for fit.Type != TypeMapFit {
		fit = next(t, c)
	}
	assert.InDelta(t, 41.3, fit.Center.Lat, 1e-9)
	assert.InDelta(t, 69.2, fit.Center.Lon, 1e-9)
	assert.Greater(t, *fit.Zoom, 3)
	assert.LessOrEqual(t, *fit.Zoom, fitMaxZoom)
}

func TestDisplay_SnapshotForLateViewer(t *testing.T) {
	d := NewDisplay()
	require.NoError(t, d.Load(context.Background(), "key"))
	m, err := d.NewMap(d, mapsurface.MapOptions{Center: mapsurface.LatLon{Lat: 1, Lon: 2}, Zoom: 9})
	require.NoError(t, err)
	_, err = m.AddPlacemark(mapsurface.LatLon{Lat: 1, Lon: 2}, mapsurface.Properties{BalloonContent: "A"}, "")
	require.NoError(t, err)

	c := NewClient(1, "MANAGER")
	d.Join(c)
	snap := next(t, c)
	assert.Equal(t, TypeSnapshot, snap.Type)
	assert.Equal(t, "key", snap.APIKey)
	require.NotNil(t, snap.Zoom)
	assert.Equal(t, 9, *snap.Zoom)
	require.Len(t, snap.Placemarks, 1)
	assert.Equal(t, "A", snap.Placemarks[0].Properties.BalloonContent)
}

func TestDisplay_NewMapRejectsForeignContainer(t *testing.T) {
	d, other := NewDisplay(), NewDisplay()
	_, err := d.NewMap(other, mapsurface.MapOptions{})
	assert.Error(t, err)
}

func TestDisplay_DrivesSurface(t *testing.T) {
	d := NewDisplay()
	s := mapsurface.New(d, staticKey("key"), mapsurface.Options{
		FrameInterval: time.Millisecond,
		FrameBudget:   2000,
		InitAttempts:  1,
	})

	errc := make(chan error, 1)
	go func() { errc <- s.Init(context.Background()) }()

	c := NewClient(1, "MANAGER")
	d.Join(c)
	var styled bool
	for !styled {
		styled = next(t, c).Type == TypeStyle
	}
	viewport(t, d, c, 640, 480)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("surface did not initialize")
	}
	assert.True(t, s.Ready())

	_, err := s.AddMarker(mapsurface.LatLon{Lat: 41.3, Lon: 69.2}, mapsurface.Properties{BalloonContent: "A"})
	require.NoError(t, err)

	s.Teardown()
	assert.False(t, s.Ready())
	for {
		if next(t, c).Type == TypeMapDestroy {
			break
		}
	}
}

type staticKey string

func (k staticKey) TrackingKey(context.Context) (string, error) { return string(k), nil }
