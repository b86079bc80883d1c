package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/photosync/journal/internal/localstore"
	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/repository"
	"github.com/photosync/journal/internal/services"
)

type testServer struct {
	*httptest.Server
	tokens *services.TokenService
	media  *localstore.MediaStore
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	media, err := localstore.NewMediaStore(t.TempDir(), nil, 1)
	require.NoError(t, err)

	logger := observability.NewNopLogger()
	tokens := services.NewTokenService("test-secret-test-secret-test-secret")
	auth := services.NewAuthService(repository.NewUserRepository(db), tokens, bcrypt.MinCost, logger)

	srv := httptest.NewServer(NewRouter(RouterConfig{
		Photos:  repository.NewPhotoRepository(db),
		Auth:    auth,
		Media:   media,
		Logger:  logger,
		Version: "1.2.3",
	}))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, tokens: tokens, media: media}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) postJSON(t *testing.T, path string, payload interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return s.do(t, http.MethodPost, path, "", bytes.NewReader(data), "application/json")
}

func (s *testServer) register(t *testing.T, email string) string {
	t.Helper()
	resp := s.postJSON(t, "/api/auth/register", map[string]string{
		"fullName": "Ada Lovelace",
		"email":    email,
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out tokenResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func (s *testServer) upload(t *testing.T, token, filename string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		part.Write([]byte("image bytes of " + filename))
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return s.do(t, http.MethodPost, "/api/photos", token, &body, mw.FormDataContentType())
}

func (s *testServer) mustUpload(t *testing.T, token, filename, capturedAt string) models.Photo {
	t.Helper()
	resp := s.upload(t, token, filename, map[string]string{"capturedAt": capturedAt})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var photo models.Photo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&photo))
	return photo
}

func decodePage(t *testing.T, resp *http.Response) models.PhotoPage {
	t.Helper()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page models.PhotoPage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	return page
}

func ids(photos []models.Photo) []string {
	out := make([]string, len(photos))
	for i, p := range photos {
		out[i] = p.ID
	}
	return out
}

func TestRouter_Auth(t *testing.T) {
	srv := setupTestServer(t)
	token := srv.register(t, "Ada@Example.com")

	t.Run("rejects a duplicate email", func(t *testing.T) {
		resp := srv.postJSON(t, "/api/auth/register", map[string]string{
			"fullName": "Other", "email": "ada@example.com", "password": "another pass",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("rejects short passwords", func(t *testing.T) {
		resp := srv.postJSON(t, "/api/auth/register", map[string]string{
			"fullName": "Bob", "email": "bob@example.com", "password": "123",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("logs in with normalized email", func(t *testing.T) {
		resp := srv.postJSON(t, "/api/auth/login", map[string]string{
			"email": " ADA@example.com", "password": "correct horse",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out tokenResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.NotEmpty(t, out.Token)
	})

	t.Run("refuses a wrong password", func(t *testing.T) {
		resp := srv.postJSON(t, "/api/auth/login", map[string]string{
			"email": "ada@example.com", "password": "wrong horse",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("returns the profile for a valid token", func(t *testing.T) {
		resp := srv.do(t, http.MethodGet, "/api/profile", token, nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var user models.User
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
		assert.Equal(t, "Ada Lovelace", user.FullName)
		assert.Equal(t, "ada@example.com", user.Email)
	})

	t.Run("requires a valid bearer token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/profile", "", nil, "").StatusCode)
		assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/photos", "not-a-jwt", nil, "").StatusCode)

		other := services.NewTokenService("another-secret-another-secret-1234")
		forged, err := other.Sign("someone")
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/photos", forged, nil, "").StatusCode)
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		expiredIssuer := services.NewTokenService("test-secret-test-secret-test-secret")
		expired, err := expiredIssuer.SignAt("anyone", time.Now().Add(-services.TokenTTL-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/api/photos", expired, nil, "").StatusCode)
	})

	t.Run("health is public", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/health", "", nil, "").StatusCode)
	})

	t.Run("version is public", func(t *testing.T) {
		resp := srv.do(t, http.MethodGet, "/api/version", "", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out VersionResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, VersionResponse{Version: "1.2.3", API: APIVersion}, out)
	})
}

func TestRouter_Photos(t *testing.T) {
	srv := setupTestServer(t)
	token := srv.register(t, "ada@example.com")

	older := srv.mustUpload(t, token, "older.jpg", "2024-05-01T08:00:00Z")
	newest := srv.mustUpload(t, token, "newest.jpg", "2024-05-02T09:00:00Z")
	middle := srv.mustUpload(t, token, "middle.jpg", "2024-05-01T20:00:00Z")

	t.Run("lists newest first with pagination", func(t *testing.T) {
		page := decodePage(t, srv.do(t, http.MethodGet, "/api/photos?page=1&limit=2", token, nil, ""))

		assert.Equal(t, []string{newest.ID, middle.ID}, ids(page.Items))
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 2, page.Limit)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.Pages)

		page = decodePage(t, srv.do(t, http.MethodGet, "/api/photos?page=2&limit=2", token, nil, ""))
		assert.Equal(t, []string{older.ID}, ids(page.Items))
	})

	t.Run("applies defaults and clamps the limit", func(t *testing.T) {
		page := decodePage(t, srv.do(t, http.MethodGet, "/api/photos?page=0", token, nil, ""))
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, models.DefaultPageSize, page.Limit)

		page = decodePage(t, srv.do(t, http.MethodGet, "/api/photos?limit=500", token, nil, ""))
		assert.Equal(t, 100, page.Limit)

		page = decodePage(t, srv.do(t, http.MethodGet, "/api/photos?page=9223372036854775807&limit=100", token, nil, ""))
		assert.Equal(t, maxPageNumber, page.Page)
		assert.Empty(t, page.Items)
		assert.Equal(t, 3, page.Total)
	})

	t.Run("filters by capture day", func(t *testing.T) {
		page := decodePage(t, srv.do(t, http.MethodGet, "/api/photos?date=2024-05-01", token, nil, ""))
		assert.Equal(t, []string{middle.ID, older.ID}, ids(page.Items))
		assert.Equal(t, 2, page.Total)

		resp := srv.do(t, http.MethodGet, "/api/photos?date=05/01/2024", token, nil, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("returns download urls that serve the image", func(t *testing.T) {
		require.True(t, strings.HasPrefix(newest.DownloadURL, UploadsPrefix+"2024/05/"))

		resp := srv.do(t, http.MethodGet, newest.DownloadURL, "", nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "image bytes of newest.jpg", string(data))
	})

	t.Run("gets a single photo", func(t *testing.T) {
		resp := srv.do(t, http.MethodGet, "/api/photos/"+older.ID, token, nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got models.Photo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, older.ID, got.ID)
		assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), got.CapturedAt)

		assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/photos/missing", token, nil, "").StatusCode)
	})

	t.Run("counts photos per day", func(t *testing.T) {
		resp := srv.do(t, http.MethodGet, "/api/calendar/days-with-photos", token, nil, "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var days []models.DayCount
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&days))
		assert.Equal(t, []models.DayCount{
			{Date: "2024-05-02", Count: 1},
			{Date: "2024-05-01", Count: 2},
		}, days)
	})

	t.Run("hides photos of other users", func(t *testing.T) {
		other := srv.register(t, "grace@example.com")

		page := decodePage(t, srv.do(t, http.MethodGet, "/api/photos", other, nil, ""))
		assert.Empty(t, page.Items)
		assert.NotNil(t, page.Items)
		assert.Equal(t, 1, page.Pages)

		assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/photos/"+older.ID, other, nil, "").StatusCode)
		assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodDelete, "/api/photos/"+older.ID, other, nil, "").StatusCode)
	})

	t.Run("deletes a photo and its image", func(t *testing.T) {
		stored := strings.TrimPrefix(middle.DownloadURL, UploadsPrefix)
		require.True(t, srv.media.Exists(stored))

		resp := srv.do(t, http.MethodDelete, "/api/photos/"+middle.ID, token, nil, "")
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.False(t, srv.media.Exists(stored))

		resp = srv.do(t, http.MethodDelete, "/api/photos/"+middle.ID, token, nil, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRouter_Upload(t *testing.T) {
	srv := setupTestServer(t)
	token := srv.register(t, "ada@example.com")

	t.Run("stores metadata fields", func(t *testing.T) {
		resp := srv.upload(t, token, "IMG_1.jpg", map[string]string{
			"capturedAt": "2024-06-01T12:30:00+02:00",
			"latitude":   "48.8566",
			"longitude":  "2.3522",
			"address":    "Paris",
			"notes":      " picnic ",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var photo models.Photo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&photo))

		assert.NotEmpty(t, photo.ID)
		assert.Equal(t, time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), photo.CapturedAt)
		assert.Equal(t, "Paris", photo.Address)
		assert.Equal(t, "picnic", photo.Notes)
		c, ok := photo.Coordinates()
		require.True(t, ok)
		assert.Equal(t, models.Coordinates{Latitude: 48.8566, Longitude: 2.3522}, c)
	})

	t.Run("defaults the capture time to now", func(t *testing.T) {
		before := time.Now().UTC().Add(-time.Minute)
		resp := srv.upload(t, token, "IMG_2.png", nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var photo models.Photo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&photo))
		assert.True(t, photo.CapturedAt.After(before))
		_, ok := photo.Coordinates()
		assert.False(t, ok)
	})

	t.Run("rejects invalid uploads", func(t *testing.T) {
		cases := []struct {
			name     string
			filename string
			fields   map[string]string
		}{
			{name: "missing image", filename: "", fields: map[string]string{"notes": "x"}},
			{name: "bad extension", filename: "notes.txt"},
			{name: "bad capture time", filename: "a.jpg", fields: map[string]string{"capturedAt": "yesterday"}},
			{name: "half coordinates", filename: "a.jpg", fields: map[string]string{"latitude": "10"}},
			{name: "latitude out of range", filename: "a.jpg", fields: map[string]string{"latitude": "91", "longitude": "0"}},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				resp := srv.upload(t, token, tc.filename, tc.fields)
				assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			})
		}
	})

	t.Run("requires multipart", func(t *testing.T) {
		resp := srv.do(t, http.MethodPost, "/api/photos", token, strings.NewReader("{}"), "application/json")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
