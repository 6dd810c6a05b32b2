// Package route builds external navigation links for delivery batches.
package route

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultBaseURL = "https://yandex.uz/maps/"
	defaultZoom    = 12
)

var ErrNoDestinations = errors.New("no destinations")

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// YandexURL returns a Yandex Maps driving route from start through the destinations in
// order. Repeated destinations are visited once. The map is centered on start.
func YandexURL(baseURL string, start Point, destinations []Point) (string, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	waypoints := []string{coord(start)}
	seen := make(map[Point]struct{}, len(destinations))
	for _, d := range destinations {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		waypoints = append(waypoints, coord(d))
	}
	if len(waypoints) == 1 {
		return "", ErrNoDestinations
	}

	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("?mode=routes&rtext=")
	b.WriteString(url.QueryEscape(strings.Join(waypoints, "~")))
	b.WriteString("&rtt=auto&ll=")
	// ll is lon,lat while rtext is lat,lon
	b.WriteString(formatFloat(start.Lon) + "," + formatFloat(start.Lat))
	b.WriteString("&z=" + strconv.Itoa(defaultZoom))
	return b.String(), nil
}

func coord(p Point) string {
	return formatFloat(p.Lat) + "," + formatFloat(p.Lon)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
