package localstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/photosync/journal/internal/models"
)

// MediaStore keeps image files in a Year/Month layout
type MediaStore struct {
	basePath          string
	allowedExtensions map[string]bool
	maxFileSizeBytes  int64
}

// NewMediaStore creates a MediaStore rooted at basePath
func NewMediaStore(basePath string, allowedExtensions []string, maxFileSizeMB int64) (*MediaStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("media path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	extSet := make(map[string]bool)
	if len(allowedExtensions) == 0 {
		allowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic", ".heif"}
	}
	for _, ext := range allowedExtensions {
		extSet[strings.ToLower(ext)] = true
	}

	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 50
	}

	return &MediaStore{
		basePath:          absPath,
		allowedExtensions: extSet,
		maxFileSizeBytes:  maxFileSizeMB * 1024 * 1024,
	}, nil
}

// BasePath returns the absolute media root
func (s *MediaStore) BasePath() string {
	return s.basePath
}

// Store copies r into <YYYY>/<MM>/<name> and returns the slash-separated
// relative path. Existing files are never overwritten.
func (s *MediaStore) Store(r io.Reader, originalFilename string, capturedAt time.Time) (string, error) {
	name := sanitizeFilename(originalFilename)
	ext := strings.ToLower(filepath.Ext(name))
	if !s.allowedExtensions[ext] {
		return "", models.ErrInvalidExtension
	}

	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	relFolder := filepath.Join(capturedAt.Format("2006"), capturedAt.Format("01"))
	absFolder := filepath.Join(s.basePath, relFolder)
	if err := os.MkdirAll(absFolder, dirPerm); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}

	unique := uniqueFilename(name, absFolder)
	relPath := filepath.Join(relFolder, unique)
	absPath := filepath.Join(s.basePath, relPath)
	if !strings.HasPrefix(absPath, s.basePath+string(os.PathSeparator)) {
		return "", models.ErrPathTraversal
	}

	file, err := os.OpenFile(absPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, documentPerm)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}

	// one byte past the limit tells us the source was too large
	n, err := io.Copy(file, io.LimitReader(r, s.maxFileSizeBytes+1))
	cerr := file.Close()
	if err == nil {
		err = cerr
	}
	if err == nil && n > s.maxFileSizeBytes {
		err = models.ErrFileTooLarge
	}
	if err != nil {
		os.Remove(absPath)
		if err == models.ErrFileTooLarge {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}

	return filepath.ToSlash(relPath), nil
}

// Delete removes a stored file. Missing files are not an error.
func (s *MediaStore) Delete(storedPath string) error {
	full, err := s.FullPath(storedPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %w", models.ErrStorageUnavailable, err)
	}
	return nil
}

// FullPath returns the absolute path for a stored path
func (s *MediaStore) FullPath(storedPath string) (string, error) {
	if strings.TrimSpace(storedPath) == "" {
		return "", fmt.Errorf("stored path cannot be empty")
	}

	full := filepath.Join(s.basePath, filepath.FromSlash(storedPath))
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(abs, s.basePath+string(os.PathSeparator)) {
		return "", models.ErrPathTraversal
	}
	return abs, nil
}

// Exists checks if a file exists at the given stored path
func (s *MediaStore) Exists(storedPath string) bool {
	full, err := s.FullPath(storedPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// sanitizeFilename strips path components and characters unsafe on common filesystems
func sanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))

	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(name)

	const maxLength = 200
	if len(name) > maxLength {
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		if len(base) > maxLength-len(ext) {
			base = base[:maxLength-len(ext)]
		}
		name = base + ext
	}
	return name
}

func uniqueFilename(filename, folder string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	candidate := filename

	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(folder, candidate)); os.IsNotExist(err) {
			return candidate
		}
		if counter > 9999 {
			return fmt.Sprintf("%s_%d%s", base, time.Now().UnixNano(), ext)
		}
		candidate = fmt.Sprintf("%s_%03d%s", base, counter, ext)
	}
}
