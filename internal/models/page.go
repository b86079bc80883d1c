package models

import (
	"io"
	"time"
)

// DefaultPageSize is the gallery page size used when a query sets no limit
const DefaultPageSize = 15

// PhotoQuery selects the photos of the visible collection
type PhotoQuery struct {
	// Date restricts results to one calendar day (YYYY-MM-DD). Empty means all.
	Date  string
	Limit int
}

// WithDefaults fills in the page size
func (q PhotoQuery) WithDefaults(pageSize int) PhotoQuery {
	if q.Limit <= 0 {
		q.Limit = pageSize
	}
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	return q
}

// ListQuery is a single page request against the photo service
type ListQuery struct {
	Page  int
	Limit int
	Date  string
}

// PhotoPage is one page of the photo service list endpoint
type PhotoPage struct {
	Items []Photo `json:"items"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
	Total int     `json:"total"`
	Pages int     `json:"pages"`
}

// PageState is the pagination cursor for the active query
type PageState struct {
	CurrentPage int  `json:"currentPage"`
	PageSize    int  `json:"pageSize"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	HasMore     bool `json:"hasMore"`
}

// PageStateFrom copies the server's pagination arithmetic
func PageStateFrom(p *PhotoPage) PageState {
	return PageState{
		CurrentPage: p.Page,
		PageSize:    p.Limit,
		TotalPages:  p.Pages,
		TotalCount:  p.Total,
		HasMore:     p.Page < p.Pages,
	}
}

// LocalPageState describes an on-device snapshot, which is never paged
func LocalPageState(count int) PageState {
	return PageState{
		CurrentPage: 1,
		PageSize:    count,
		TotalPages:  1,
		TotalCount:  count,
		HasMore:     false,
	}
}

// DayCount is the number of photos captured on one calendar day
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// PhotoForm is the multipart payload used to create a photo remotely
type PhotoForm struct {
	Image       io.Reader
	Filename    string
	CapturedAt  time.Time
	Coordinates *Coordinates
	Address     string
	Notes       string
}

// Validate checks the form before it is sent
func (f *PhotoForm) Validate() error {
	if f.Image == nil {
		return ErrMissingImage
	}
	if f.CapturedAt.IsZero() {
		return ErrMissingCapturedAt
	}
	return nil
}

// User is the profile of an authenticated account
type User struct {
	ID        string `json:"id,omitempty"`
	FullName  string `json:"fullName"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}
