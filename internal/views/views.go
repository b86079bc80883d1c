// Package views derives the gallery, map and calendar projections from the
// visible photo collection. Every function is pure; inputs are never modified.
package views

import (
	"sort"
	"time"

	"github.com/photosync/journal/internal/models"
)

const (
	// GroupLabelLayout formats the heading of a gallery date group
	GroupLabelLayout = "Monday, January 2 2006"

	defaultDelta = 0.05
)

// DefaultRegion is shown when no photo has a position (Paris)
var DefaultRegion = Region{
	Latitude:       48.8566,
	Longitude:      2.3522,
	LatitudeDelta:  defaultDelta,
	LongitudeDelta: defaultDelta,
}

// DateGroup is one gallery section
type DateGroup struct {
	Date   string
	Label  string
	Photos []models.Photo
}

// GroupByDate groups photos by the calendar date of CapturedAt in loc.
// Groups are ordered most recent date first; photos keep their input order
// inside a group.
func GroupByDate(photos []models.Photo, loc *time.Location) []DateGroup {
	if loc == nil {
		loc = time.Local
	}
	index := make(map[string]int)
	var groups []DateGroup
	for _, p := range photos {
		date := models.CalendarDate(p.CapturedAt, loc)
		i, ok := index[date]
		if !ok {
			i = len(groups)
			index[date] = i
			groups = append(groups, DateGroup{
				Date:  date,
				Label: p.CapturedAt.In(loc).Format(GroupLabelLayout),
			})
		}
		groups[i].Photos = append(groups[i].Photos, p)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Date > groups[j].Date
	})
	return groups
}

// FilterByDate keeps the photos captured on date (YYYY-MM-DD) in loc. An
// empty date keeps everything.
func FilterByDate(photos []models.Photo, date string, loc *time.Location) []models.Photo {
	out := make([]models.Photo, 0, len(photos))
	for _, p := range photos {
		if date == "" || models.CalendarDate(p.CapturedAt, loc) == date {
			out = append(out, p)
		}
	}
	return out
}

// MapPoint is a photo that can be placed on the map
type MapPoint struct {
	PhotoID     string
	Coordinates models.Coordinates
	CapturedAt  time.Time
	Address     string
	Notes       string
	Locator     models.Locator
}

// MapPoints returns the photos that have finite coordinates; the rest are skipped
func MapPoints(photos []models.Photo, baseURL string) []MapPoint {
	points := make([]MapPoint, 0, len(photos))
	for i := range photos {
		p := &photos[i]
		c, ok := p.Coordinates()
		if !ok {
			continue
		}
		points = append(points, MapPoint{
			PhotoID:     p.ID,
			Coordinates: c,
			CapturedAt:  p.CapturedAt,
			Address:     p.Address,
			Notes:       p.Notes,
			Locator:     p.Locator(baseURL),
		})
	}
	return points
}

// Region is the visible map area
type Region struct {
	Latitude       float64
	Longitude      float64
	LatitudeDelta  float64
	LongitudeDelta float64
}

// Zoom scales the region span; factors below 1 zoom in
func (r Region) Zoom(factor float64) Region {
	if factor <= 0 {
		return r
	}
	r.LatitudeDelta *= factor
	r.LongitudeDelta *= factor
	return r
}

// InitialRegion centres the map on the most recently captured point
func InitialRegion(points []MapPoint) Region {
	if len(points) == 0 {
		return DefaultRegion
	}
	latest := points[0]
	for _, p := range points[1:] {
		if p.CapturedAt.After(latest.CapturedAt) {
			latest = p
		}
	}
	return Region{
		Latitude:       latest.Coordinates.Latitude,
		Longitude:      latest.Coordinates.Longitude,
		LatitudeDelta:  defaultDelta,
		LongitudeDelta: defaultDelta,
	}
}

// DaysWithPhotos counts photos per calendar day in loc, most recent day first
func DaysWithPhotos(photos []models.Photo, loc *time.Location) []models.DayCount {
	counts := make(map[string]int)
	for _, p := range photos {
		counts[models.CalendarDate(p.CapturedAt, loc)]++
	}
	days := make([]models.DayCount, 0, len(counts))
	for date, n := range counts {
		days = append(days, models.DayCount{Date: date, Count: n})
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date > days[j].Date
	})
	return days
}
