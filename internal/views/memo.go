package views

import (
	"sync"
	"time"

	"github.com/photosync/journal/internal/models"
)

// Memo caches the projections of one collection version. Recomputation
// happens only when a newer version is passed in.
type Memo struct {
	mu      sync.Mutex
	loc     *time.Location
	baseURL string

	version uint64
	valid   bool
	groups  []DateGroup
	points  []MapPoint
	region  Region
	days    []models.DayCount
}

// NewMemo creates a Memo for one location and API base URL
func NewMemo(loc *time.Location, baseURL string) *Memo {
	if loc == nil {
		loc = time.Local
	}
	return &Memo{loc: loc, baseURL: baseURL}
}

func (m *Memo) refresh(version uint64, photos []models.Photo) {
	if m.valid && m.version == version {
		return
	}
	m.groups = GroupByDate(photos, m.loc)
	m.points = MapPoints(photos, m.baseURL)
	m.region = InitialRegion(m.points)
	m.days = DaysWithPhotos(photos, m.loc)
	m.version = version
	m.valid = true
}

// Groups returns the gallery sections for version
func (m *Memo) Groups(version uint64, photos []models.Photo) []DateGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh(version, photos)
	return m.groups
}

// Points returns the map points for version
func (m *Memo) Points(version uint64, photos []models.Photo) []MapPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh(version, photos)
	return m.points
}

// Region returns the initial map region for version
func (m *Memo) Region(version uint64, photos []models.Photo) Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh(version, photos)
	return m.region
}

// Days returns the calendar markers for version
func (m *Memo) Days(version uint64, photos []models.Photo) []models.DayCount {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh(version, photos)
	return m.days
}
