// Package capture turns a freshly taken image into either a guest photo
// stored on the device or an upload form for the photo service.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/photosync/journal/internal/localstore"
	"github.com/photosync/journal/internal/models"
)

// Request describes one capture. Zero CapturedAt and nil Coordinates are
// filled from the image EXIF data when available.
type Request struct {
	Image       io.Reader
	Filename    string
	CapturedAt  time.Time
	Coordinates *models.Coordinates
	Address     string
	Notes       string
}

// Service builds photos from captures
type Service struct {
	media *localstore.MediaStore
	now   func() time.Time
	newID func() string
}

// NewService creates a Service. media may be nil when only remote forms are built.
func NewService(media *localstore.MediaStore) *Service {
	return &Service{
		media: media,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

type prepared struct {
	data       []byte
	filename   string
	capturedAt time.Time
	coords     *models.Coordinates
}

func (s *Service) prepare(req Request) (*prepared, error) {
	if req.Image == nil {
		return nil, models.ErrMissingImage
	}
	data, err := io.ReadAll(req.Image)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, models.ErrMissingImage
	}

	meta := ExtractMetadata(data)

	p := &prepared{
		data:       data,
		filename:   req.Filename,
		capturedAt: req.CapturedAt,
		coords:     req.Coordinates,
	}
	if p.filename == "" {
		p.filename = "photo.jpg"
	}
	if p.capturedAt.IsZero() && meta.DateTaken != nil {
		p.capturedAt = *meta.DateTaken
	}
	if p.capturedAt.IsZero() {
		p.capturedAt = s.now()
	}
	if p.coords == nil && meta.Coordinates != nil {
		c := *meta.Coordinates
		p.coords = &c
	}
	return p, nil
}

// GuestPhoto copies the image into the guest media folder and returns the
// photo document that points at it. The photo is not saved to the store.
func (s *Service) GuestPhoto(req Request) (*models.Photo, error) {
	if s.media == nil {
		return nil, fmt.Errorf("%w: no media folder configured", models.ErrStorageUnavailable)
	}
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	stored, err := s.media.Store(bytes.NewReader(p.data), p.filename, p.capturedAt)
	if err != nil {
		return nil, err
	}
	full, err := s.media.FullPath(stored)
	if err != nil {
		return nil, err
	}

	photo := &models.Photo{
		ID:         s.newID(),
		URI:        (&url.URL{Scheme: "file", Path: filepath.ToSlash(full)}).String(),
		CapturedAt: p.capturedAt,
		Address:    req.Address,
		Notes:      req.Notes,
	}
	if p.coords != nil {
		photo.SetCoordinates(*p.coords)
	}
	return photo, nil
}

// RemoteForm builds the multipart upload for the photo service
func (s *Service) RemoteForm(req Request) (*models.PhotoForm, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	return &models.PhotoForm{
		Image:       bytes.NewReader(p.data),
		Filename:    filepath.Base(p.filename),
		CapturedAt:  p.capturedAt,
		Coordinates: p.coords,
		Address:     req.Address,
		Notes:       req.Notes,
	}, nil
}

// DiscardMedia removes the image copy of a deleted guest photo. Photos whose
// image lives outside the media folder are left alone.
func (s *Service) DiscardMedia(photo *models.Photo) error {
	if s.media == nil || !strings.HasPrefix(photo.URI, "file:") {
		return nil
	}
	u, err := url.Parse(photo.URI)
	if err != nil {
		return nil
	}
	rel, err := filepath.Rel(s.media.BasePath(), filepath.FromSlash(u.Path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	return s.media.Delete(filepath.ToSlash(rel))
}
