package repository

import (
	"context"
	"database/sql"

	"github.com/photosync/journal/internal/models"
)

// PhotoRecord is a stored photo together with the location of its image
type PhotoRecord struct {
	models.Photo
	StoredPath string
}

// PhotoRepository handles photo persistence
type PhotoRepository struct {
	db *sql.DB
}

// NewPhotoRepository creates a new PhotoRepository
func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

const photoColumns = `id, user_id, stored_path, captured_at, latitude, longitude, address, notes, is_profile_picture`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPhoto(row rowScanner) (*PhotoRecord, error) {
	var rec PhotoRecord
	var lat, lng sql.NullFloat64
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.StoredPath,
		&rec.CapturedAt,
		&lat,
		&lng,
		&rec.Address,
		&rec.Notes,
		&rec.IsProfilePicture,
	); err != nil {
		return nil, err
	}
	if lat.Valid {
		rec.Latitude = &lat.Float64
	}
	if lng.Valid {
		rec.Longitude = &lng.Float64
	}
	rec.CapturedAt = rec.CapturedAt.UTC()
	return &rec, nil
}

// GetByID retrieves a photo by its ID
func (r *PhotoRepository) GetByID(ctx context.Context, id string) (*PhotoRecord, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = ?`

	rec, err := scanPhoto(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns one page of a user's photos, newest capture first.
// A non-empty day restricts the result to that UTC calendar day.
func (r *PhotoRepository) List(ctx context.Context, userID, day string, skip, take int) ([]*PhotoRecord, error) {
	query := `SELECT ` + photoColumns + ` FROM photos
		WHERE user_id = ? AND (? = '' OR captured_day = ?)
		ORDER BY captured_at DESC, id ASC
		LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, userID, day, day, take, skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []*PhotoRecord
	for rows.Next() {
		rec, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, rec)
	}

	if photos == nil {
		photos = []*PhotoRecord{}
	}

	return photos, rows.Err()
}

// Count returns the number of photos List would page over
func (r *PhotoRepository) Count(ctx context.Context, userID, day string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM photos WHERE user_id = ? AND (? = '' OR captured_day = ?)",
		userID, day, day,
	).Scan(&count)
	return count, err
}

// Add inserts a new photo
func (r *PhotoRepository) Add(ctx context.Context, rec *PhotoRecord) error {
	query := `
		INSERT INTO photos (` + photoColumns + `, captured_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var lat, lng sql.NullFloat64
	if c, ok := rec.Coordinates(); ok {
		lat = sql.NullFloat64{Float64: c.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: c.Longitude, Valid: true}
	}

	capturedAt := rec.CapturedAt.UTC()
	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.StoredPath,
		capturedAt,
		lat,
		lng,
		rec.Address,
		rec.Notes,
		rec.IsProfilePicture,
		capturedAt.Format(models.DateLayout),
	)

	return err
}

// Delete removes a photo owned by userID
func (r *PhotoRepository) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM photos WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// DaysWithPhotos counts a user's photos per UTC capture day, latest day first
func (r *PhotoRepository) DaysWithPhotos(ctx context.Context, userID string) ([]models.DayCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT captured_day, COUNT(*) FROM photos
		WHERE user_id = ?
		GROUP BY captured_day
		ORDER BY captured_day DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := []models.DayCount{}
	for rows.Next() {
		var d models.DayCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
