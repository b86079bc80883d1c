package models

import (
	"math"
	"strings"
	"time"
)

// Photo is a captured photo as stored on-device (guest) or returned by the
// photo service (authenticated). The JSON shape is shared by both sources.
type Photo struct {
	ID               string    `json:"_id"`
	URI              string    `json:"uri,omitempty"`
	DownloadURL      string    `json:"downloadUrl,omitempty"`
	CapturedAt       time.Time `json:"capturedAt"`
	Latitude         *float64  `json:"latitude,omitempty"`
	Longitude        *float64  `json:"longitude,omitempty"`
	Address          string    `json:"address,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	UserID           string    `json:"userId,omitempty"`
	IsProfilePicture bool      `json:"isProfilePicture,omitempty"`
}

// Coordinates is a WGS84 position
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the fields every stored photo must carry
func (p *Photo) Validate() error {
	if err := ValidatePhotoID(p.ID); err != nil {
		return err
	}
	if p.CapturedAt.IsZero() {
		return ErrMissingCapturedAt
	}
	return nil
}

// Coordinates returns the photo position. The second value is false unless
// both latitude and longitude are present and finite.
func (p *Photo) Coordinates() (Coordinates, bool) {
	if p.Latitude == nil || p.Longitude == nil {
		return Coordinates{}, false
	}
	lat, lng := *p.Latitude, *p.Longitude
	if !isFinite(lat) || !isFinite(lng) {
		return Coordinates{}, false
	}
	return Coordinates{Latitude: lat, Longitude: lng}, true
}

// SetCoordinates stores a position on the photo
func (p *Photo) SetCoordinates(c Coordinates) {
	lat, lng := c.Latitude, c.Longitude
	p.Latitude = &lat
	p.Longitude = &lng
}

// Clone returns a deep copy; the coordinate pointers are not shared.
func (p Photo) Clone() Photo {
	if p.Latitude != nil {
		lat := *p.Latitude
		p.Latitude = &lat
	}
	if p.Longitude != nil {
		lng := *p.Longitude
		p.Longitude = &lng
	}
	return p
}

// ValidatePhotoID rejects ids that are empty or could escape the store directory
func ValidatePhotoID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyPhotoID
	}
	if strings.ContainsAny(id, `/\:`) || strings.Contains(id, "..") {
		return ErrInvalidPhotoID
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// CalendarDate returns the YYYY-MM-DD date of t in loc
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}

// DateLayout is the wire and grouping format for calendar dates
const DateLayout = "2006-01-02"

// ValidateDate checks a calendar date filter. Empty means no filter.
func ValidateDate(date string) error {
	if date == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return ErrInvalidDate
	}
	return nil
}
