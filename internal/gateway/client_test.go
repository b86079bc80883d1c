package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
)

const testBaseURL = "http://photos.test/api"

// setupHTTPMock activates httpmock for the duration of the test
func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newTestClient(token string) *Client {
	var src oauth2.TokenSource
	if token != "" {
		src = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}
	return New(testBaseURL, 5*time.Second, src, observability.NewNopLogger())
}

func TestClient_List(t *testing.T) {
	setupHTTPMock(t)
	ctx := context.Background()

	t.Run("sends the query and bearer token and decodes the page", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("GET", testBaseURL+"/photos",
			func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "Bearer secret", req.Header.Get("Authorization"))
				assert.Equal(t, "2", req.URL.Query().Get("page"))
				assert.Equal(t, "15", req.URL.Query().Get("limit"))
				assert.Equal(t, "2024-05-01", req.URL.Query().Get("date"))
				return httpmock.NewStringResponse(http.StatusOK, `{
					"items": [{"_id": "p1", "downloadUrl": "/uploads/p1.jpg", "capturedAt": "2024-05-01T10:00:00Z"}],
					"page": 2, "limit": 15, "total": 16, "pages": 2
				}`), nil
			})

		page, err := newTestClient("secret").List(ctx, models.ListQuery{Page: 2, Limit: 15, Date: "2024-05-01"})

		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "p1", page.Items[0].ID)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 2, page.Pages)
		assert.Equal(t, 16, page.Total)
	})

	t.Run("empty items decode to an empty slice", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("GET", testBaseURL+"/photos",
			httpmock.NewStringResponder(http.StatusOK, `{"items": null, "page": 1, "limit": 15, "total": 0, "pages": 1}`))

		page, err := newTestClient("secret").List(ctx, models.ListQuery{Page: 1})

		require.NoError(t, err)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
	})

	t.Run("missing token fails without a request", func(t *testing.T) {
		httpmock.Reset()

		_, err := newTestClient("").List(ctx, models.ListQuery{Page: 1})

		assert.ErrorIs(t, err, models.ErrUnauthorized)
		assert.Equal(t, 0, httpmock.GetTotalCallCount())
	})
}

func TestClient_ErrorMapping(t *testing.T) {
	setupHTTPMock(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		status  int
		body    string
		want    error
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message": "Invalid token"}`, models.ErrUnauthorized, "Invalid token"},
		{"forbidden", http.StatusForbidden, `{"error": "forbidden"}`, models.ErrUnauthorized, "forbidden"},
		{"not_found", http.StatusNotFound, `{"message": "Photo not found"}`, models.ErrNotFound, "Photo not found"},
		{"server_error", http.StatusInternalServerError, `{"message": "boom"}`, models.ErrServerError, "boom"},
		{"bad_request", http.StatusBadRequest, `plain text`, models.ErrServerError, "plain text"},
		{"bad_gateway_empty_body", http.StatusBadGateway, ``, models.ErrServerError, "Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			httpmock.Reset()
			httpmock.RegisterResponder("GET", testBaseURL+"/photos/p1",
				httpmock.NewStringResponder(tt.status, tt.body))

			_, err := newTestClient("secret").Get(ctx, "p1")

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	t.Run("transport failure is network unavailable", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("GET", testBaseURL+"/photos/p1",
			httpmock.NewErrorResponder(errors.New("connection refused")))

		_, err := newTestClient("secret").Get(ctx, "p1")

		assert.ErrorIs(t, err, models.ErrNetworkUnavailable)
	})

	t.Run("malformed body is a server error", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("GET", testBaseURL+"/photos/p1",
			httpmock.NewStringResponder(http.StatusOK, `{"_id":`))

		_, err := newTestClient("secret").Get(ctx, "p1")

		assert.ErrorIs(t, err, models.ErrServerError)
	})
}

func TestClient_Create(t *testing.T) {
	setupHTTPMock(t)
	ctx := context.Background()

	t.Run("posts a multipart form", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", testBaseURL+"/photos",
			func(req *http.Request) (*http.Response, error) {
				require.NoError(t, req.ParseMultipartForm(1<<20))
				assert.Equal(t, "48.8566", req.FormValue("latitude"))
				assert.Equal(t, "2.3522", req.FormValue("longitude"))
				assert.Equal(t, "2024-05-01T10:00:00Z", req.FormValue("capturedAt"))
				assert.Equal(t, "Paris", req.FormValue("address"))
				assert.Equal(t, "", req.FormValue("notes"))

				file, header, err := req.FormFile("image")
				require.NoError(t, err)
				defer file.Close()
				assert.Equal(t, "shot.jpg", header.Filename)
				assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))

				return httpmock.NewStringResponse(http.StatusCreated,
					`{"_id": "new", "downloadUrl": "/uploads/new.jpg", "capturedAt": "2024-05-01T10:00:00Z"}`), nil
			})

		photo, err := newTestClient("secret").Create(ctx, &models.PhotoForm{
			Image:       strings.NewReader("jpeg bytes"),
			Filename:    "shot.jpg",
			CapturedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
			Coordinates: &models.Coordinates{Latitude: 48.8566, Longitude: 2.3522},
			Address:     "Paris",
		})

		require.NoError(t, err)
		assert.Equal(t, "new", photo.ID)
	})

	t.Run("rejects a form without image", func(t *testing.T) {
		httpmock.Reset()

		_, err := newTestClient("secret").Create(ctx, &models.PhotoForm{CapturedAt: time.Now()})

		assert.ErrorIs(t, err, models.ErrMissingImage)
		assert.Equal(t, 0, httpmock.GetTotalCallCount())
	})
}

func TestClient_Delete(t *testing.T) {
	setupHTTPMock(t)
	ctx := context.Background()

	t.Run("already deleted counts as success", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("DELETE", testBaseURL+"/photos/gone",
			httpmock.NewStringResponder(http.StatusNotFound, `{"message": "Photo not found"}`))

		assert.NoError(t, newTestClient("secret").Delete(ctx, "gone"))
	})

	t.Run("server failures are reported", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("DELETE", testBaseURL+"/photos/p1",
			httpmock.NewStringResponder(http.StatusInternalServerError, `{"message": "db down"}`))

		assert.ErrorIs(t, newTestClient("secret").Delete(ctx, "p1"), models.ErrServerError)
	})
}

func TestClient_DaysWithPhotos(t *testing.T) {
	setupHTTPMock(t)
	ctx := context.Background()

	httpmock.RegisterResponder("GET", testBaseURL+"/calendar/days-with-photos",
		httpmock.NewStringResponder(http.StatusOK, `[{"date": "2024-05-01", "count": 3}]`))
	httpmock.RegisterResponder("DELETE", testBaseURL+"/photos/p1",
		httpmock.NewStringResponder(http.StatusNoContent, ``))

	client := newTestClient("secret")

	days, err := client.DaysWithPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.DayCount{{Date: "2024-05-01", Count: 3}}, days)

	_, err = client.DaysWithPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount(), "second call served from cache")

	client.Reset()
	_, err = client.DaysWithPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())

	require.NoError(t, client.Delete(ctx, "p1"))
	_, err = client.DaysWithPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, httpmock.GetTotalCallCount(), "delete invalidates the cache")
}

func TestAuthClient(t *testing.T) {
	setupHTTPMock(t)
	ctx := context.Background()
	auth := NewAuthClient(testBaseURL, 5*time.Second, observability.NewNopLogger())

	t.Run("login returns the token", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", testBaseURL+"/auth/login",
			func(req *http.Request) (*http.Response, error) {
				assert.Empty(t, req.Header.Get("Authorization"))
				return httpmock.NewJsonResponse(http.StatusOK, map[string]string{"token": "jwt"})
			})

		token, err := auth.Login(ctx, "ada@example.com", "pw")

		require.NoError(t, err)
		assert.Equal(t, "jwt", token)
	})

	t.Run("bad credentials are unauthorized", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", testBaseURL+"/auth/login",
			httpmock.NewStringResponder(http.StatusUnauthorized, `{"message": "Invalid credentials"}`))

		_, err := auth.Login(ctx, "ada@example.com", "nope")

		assert.ErrorIs(t, err, models.ErrUnauthorized)
	})

	t.Run("register without token in the response is a server error", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("POST", testBaseURL+"/auth/register",
			httpmock.NewStringResponder(http.StatusCreated, `{}`))

		_, err := auth.Register(ctx, "Ada", "ada@example.com", "pw")

		assert.ErrorIs(t, err, models.ErrServerError)
	})

	t.Run("profile sends the given token", func(t *testing.T) {
		httpmock.Reset()
		httpmock.RegisterResponder("GET", testBaseURL+"/profile",
			func(req *http.Request) (*http.Response, error) {
				assert.Equal(t, "Bearer jwt", req.Header.Get("Authorization"))
				return httpmock.NewStringResponse(http.StatusOK, `{"id": "u1", "fullName": "Ada", "email": "ada@example.com"}`), nil
			})

		user, err := auth.Profile(ctx, "jwt")

		require.NoError(t, err)
		assert.Equal(t, "Ada", user.FullName)
	})
}
