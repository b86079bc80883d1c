package capture

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/photosync/journal/internal/models"
)

// Metadata is what a captured image says about itself
type Metadata struct {
	CameraMake  *string
	CameraModel *string
	Orientation int

	Coordinates *models.Coordinates
	DateTaken   *time.Time
}

// ExtractMetadata reads EXIF metadata. Images without EXIF data (or in a
// format goexif cannot read) yield empty metadata rather than an error.
func ExtractMetadata(data []byte) *Metadata {
	return extractFromReader(bytes.NewReader(data))
}

func extractFromReader(r io.Reader) *Metadata {
	result := &Metadata{Orientation: 1}

	x, err := exif.Decode(r)
	if err != nil && x == nil {
		return result
	}

	if tag, err := x.Get(exif.Make); err == nil {
		if val, err := tag.StringVal(); err == nil && val != "" {
			result.CameraMake = &val
		}
	}

	if tag, err := x.Get(exif.Model); err == nil {
		if val, err := tag.StringVal(); err == nil && val != "" {
			result.CameraModel = &val
		}
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if val, err := tag.Int(0); err == nil && val >= 1 && val <= 8 {
			result.Orientation = val
		}
	}

	if tm, err := x.DateTime(); err == nil {
		result.DateTaken = &tm
	}

	if lat, lng, err := x.LatLong(); err == nil && !math.IsNaN(lat) && !math.IsNaN(lng) {
		result.Coordinates = &models.Coordinates{Latitude: lat, Longitude: lng}
	}

	return result
}

// FormatCoordinates formats lat/lng as a readable string
func FormatCoordinates(c models.Coordinates) string {
	lat, lng := c.Latitude, c.Longitude
	latDir := "N"
	if lat < 0 {
		latDir = "S"
		lat = math.Abs(lat)
	}
	lngDir := "E"
	if lng < 0 {
		lngDir = "W"
		lng = math.Abs(lng)
	}
	return fmt.Sprintf("%.6f°%s, %.6f°%s", lat, latDir, lng, lngDir)
}

// MapsURL links to the position on OpenStreetMap
func MapsURL(c models.Coordinates) string {
	return fmt.Sprintf("https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f#map=16/%.6f/%.6f",
		c.Latitude, c.Longitude, c.Latitude, c.Longitude)
}

func init() {
	exif.RegisterParsers()
}
