// Package localstore persists guest-mode data on the device: one JSON
// document per photo and a copy of each captured image.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
)

const (
	docExt        = ".json"
	readWorkers   = 8
	dirPerm       = 0o755
	documentPerm  = 0o644
	tempDocPrefix = ".tmp-"
)

// Store keeps one document per photo under a single directory. It is driven
// by one in-process owner and does no locking of its own.
type Store struct {
	dir    string
	logger *observability.Logger
}

// New creates a Store rooted at dir. The directory is created lazily.
func New(dir string, logger *observability.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("guest photos directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.Component("localstore")
	}
	return &Store{dir: abs, logger: logger}, nil
}

// Dir returns the absolute store directory
func (s *Store) Dir() string {
	return s.dir
}

// DirExists reports whether the store directory has been created
func (s *Store) DirExists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// ensureDir runs before every read and write, not only the first one, so a
// directory removed behind our back is recreated.
func (s *Store) ensureDir() error {
	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return fmt.Errorf("create %s: %w: %w", s.dir, models.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) path(id string) (string, error) {
	if err := models.ValidatePhotoID(id); err != nil {
		return "", err
	}
	p := filepath.Join(s.dir, id+docExt)
	if filepath.Dir(p) != s.dir {
		return "", models.ErrPathTraversal
	}
	return p, nil
}

// Save writes the photo document, replacing any existing one with the same id
func (s *Store) Save(ctx context.Context, photo *models.Photo) error {
	_, span := observability.StartServiceSpan(ctx, "localstore", "Save")
	defer span.End()

	if err := photo.Validate(); err != nil {
		observability.RecordError(span, err)
		return err
	}
	target, err := s.path(photo.ID)
	if err != nil {
		return err
	}
	if err := s.ensureDir(); err != nil {
		observability.RecordError(span, err)
		return err
	}

	data, err := json.Marshal(photo)
	if err != nil {
		return fmt.Errorf("encode photo %s: %w", photo.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, tempDocPrefix+"*")
	if err != nil {
		err = fmt.Errorf("save photo %s: %w: %w", photo.ID, models.ErrStorageUnavailable, err)
		observability.RecordError(span, err)
		return err
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, documentPerm)
	}
	if werr == nil {
		werr = os.Rename(tmpName, target)
	}
	if werr != nil {
		os.Remove(tmpName)
		err = fmt.Errorf("save photo %s: %w: %w", photo.ID, models.ErrStorageUnavailable, werr)
		observability.RecordError(span, err)
		return err
	}

	s.logger.WithField("photo_id", photo.ID).Debug("Guest photo saved")
	observability.SetSuccess(span)
	return nil
}

// List returns every persisted photo in no particular order. Documents that
// cannot be decoded are skipped and logged.
func (s *Store) List(ctx context.Context) ([]models.Photo, error) {
	ctx, span := observability.StartServiceSpan(ctx, "localstore", "List")
	defer span.End()

	if err := s.ensureDir(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		err = fmt.Errorf("read %s: %w: %w", s.dir, models.ErrStorageUnavailable, err)
		observability.RecordError(span, err)
		return nil, err
	}

	var (
		mu     sync.Mutex
		photos = make([]models.Photo, 0, len(entries))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readWorkers)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, docExt) || strings.HasPrefix(name, tempDocPrefix) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			photo, err := s.readDocument(filepath.Join(s.dir, name))
			if err != nil {
				if errors.Is(err, models.ErrStorageUnavailable) {
					return err
				}
				s.logger.WithField("file", name).WithError(err).Warn("Skipping unreadable guest photo document")
				return nil
			}
			mu.Lock()
			photos = append(photos, *photo)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, err
	}

	observability.SetSuccess(span)
	return photos, nil
}

func (s *Store) readDocument(path string) (*models.Photo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// deleted between ReadDir and ReadFile
			return nil, err
		}
		return nil, fmt.Errorf("read %s: %w: %w", path, models.ErrStorageUnavailable, err)
	}

	var photo models.Photo
	if err := json.Unmarshal(data, &photo); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if photo.ID == "" {
		photo.ID = strings.TrimSuffix(filepath.Base(path), docExt)
	}
	return &photo, nil
}

// Delete removes the photo document. Deleting a missing id succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, span := observability.StartServiceSpan(ctx, "localstore", "Delete")
	defer span.End()

	target, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("delete photo %s: %w: %w", id, models.ErrStorageUnavailable, err)
		observability.RecordError(span, err)
		return err
	}

	observability.SetSuccess(span)
	return nil
}
