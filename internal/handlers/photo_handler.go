package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/photosync/journal/internal/localstore"
	"github.com/photosync/journal/internal/middleware"
	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/repository"
)

const (
	// UploadsPrefix is the URL path stored images are served under
	UploadsPrefix = "/uploads/"

	maxPageLimit  = 100
	maxPageNumber = 1_000_000
	maxUploadSize = 50 << 20
)

// PhotoHandler handles photo-related endpoints
type PhotoHandler struct {
	repo   repository.PhotoRepo
	media  *localstore.MediaStore
	logger *observability.Logger
	now    func() time.Time
}

// NewPhotoHandler creates a new PhotoHandler
func NewPhotoHandler(repo repository.PhotoRepo, media *localstore.MediaStore, logger *observability.Logger) *PhotoHandler {
	if logger == nil {
		logger = observability.Component("photos")
	}
	return &PhotoHandler{
		repo:   repo,
		media:  media,
		logger: logger,
		now:    time.Now,
	}
}

func toResponse(rec *repository.PhotoRecord) models.Photo {
	p := rec.Photo.Clone()
	p.DownloadURL = UploadsPrefix + rec.StoredPath
	return p
}

// List returns one page of the caller's photos, newest first
// GET /api/photos?page=&limit=&date=
func (h *PhotoHandler) List(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetUserFromContext(r.Context())
	q := r.URL.Query()

	page := 1
	if s := q.Get("page"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 1 {
			page = min(v, maxPageNumber)
		}
	}

	limit := models.DefaultPageSize
	if s := q.Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 1 {
			limit = min(v, maxPageLimit)
		}
	}

	date := q.Get("date")
	if err := models.ValidateDate(date); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.repo.List(r.Context(), account.ID, date, (page-1)*limit, limit)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Error getting photos")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	total, err := h.repo.Count(r.Context(), account.ID, date)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Error getting count")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}

	items := make([]models.Photo, len(records))
	for i, rec := range records {
		items[i] = toResponse(rec)
	}

	pages := int(math.Ceil(float64(total) / float64(limit)))
	if pages < 1 {
		pages = 1
	}

	respondJSON(w, http.StatusOK, models.PhotoPage{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	})
}

// GetByID returns a single photo owned by the caller
// GET /api/photos/{id}
func (h *PhotoHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.ownedPhoto(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toResponse(rec))
}

// Create stores an uploaded image and its metadata
// POST /api/photos (multipart: image, capturedAt, latitude, longitude, address, notes)
func (h *PhotoHandler) Create(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetUserFromContext(r.Context())
	log := h.logger.WithContext(r.Context()).WithField("user_id", account.ID)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "Request must be multipart/form-data.")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No image provided.")
		return
	}
	defer file.Close()

	capturedAt := h.now().UTC()
	if s := r.FormValue("capturedAt"); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "capturedAt must be an RFC3339 timestamp.")
			return
		}
		capturedAt = parsed.UTC()
	}

	rec := &repository.PhotoRecord{
		Photo: models.Photo{
			ID:         uuid.New().String(),
			UserID:     account.ID,
			CapturedAt: capturedAt,
			Address:    strings.TrimSpace(r.FormValue("address")),
			Notes:      strings.TrimSpace(r.FormValue("notes")),
		},
	}

	coords, err := parseCoordinates(r.FormValue("latitude"), r.FormValue("longitude"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if coords != nil {
		rec.SetCoordinates(*coords)
	}

	storedPath, err := h.media.Store(file, header.Filename, capturedAt)
	if err != nil {
		log.WithError(err).Warn("Error storing file")
		switch {
		case errors.Is(err, models.ErrFileTooLarge), errors.Is(err, models.ErrInvalidExtension):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "Failed to store file.")
		}
		return
	}
	rec.StoredPath = storedPath

	if err := h.repo.Add(r.Context(), rec); err != nil {
		h.media.Delete(storedPath) // Clean up
		log.WithError(err).Error("Error saving photo record")
		respondError(w, http.StatusInternalServerError, "Failed to save photo record.")
		return
	}

	log.WithField("photo_id", rec.ID).Info("Photo uploaded")
	respondJSON(w, http.StatusCreated, toResponse(rec))
}

// Delete removes a photo owned by the caller
// DELETE /api/photos/{id}
func (h *PhotoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.ownedPhoto(w, r)
	if !ok {
		return
	}

	deleted, err := h.repo.Delete(r.Context(), rec.ID, rec.UserID)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Error deleting photo")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Photo not found.")
		return
	}

	if err := h.media.Delete(rec.StoredPath); err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Warnf("Failed to delete file %s", rec.StoredPath)
	}

	w.WriteHeader(http.StatusNoContent)
}

// DaysWithPhotos returns the capture days of the caller's photos
// GET /api/calendar/days-with-photos
func (h *PhotoHandler) DaysWithPhotos(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetUserFromContext(r.Context())

	days, err := h.repo.DaysWithPhotos(r.Context(), account.ID)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Error getting calendar days")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return
	}
	respondJSON(w, http.StatusOK, days)
}

// ownedPhoto loads the {id} photo. Photos of other users are reported as missing.
func (h *PhotoHandler) ownedPhoto(w http.ResponseWriter, r *http.Request) (*repository.PhotoRecord, bool) {
	account := middleware.GetUserFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "Photo ID is required.")
		return nil, false
	}

	rec, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Error getting photo")
		respondError(w, http.StatusInternalServerError, "Database error.")
		return nil, false
	}
	if rec == nil || rec.UserID != account.ID {
		respondError(w, http.StatusNotFound, "Photo not found.")
		return nil, false
	}
	return rec, true
}

func parseCoordinates(latStr, lngStr string) (*models.Coordinates, error) {
	if latStr == "" && lngStr == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, errors.New("latitude must be a number between -90 and 90")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, errors.New("longitude must be a number between -180 and 180")
	}
	return &models.Coordinates{Latitude: lat, Longitude: lng}, nil
}
