package handlers_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/photosync/journal/internal/collection"
	"github.com/photosync/journal/internal/gateway"
	"github.com/photosync/journal/internal/handlers"
	"github.com/photosync/journal/internal/localstore"
	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/repository"
	"github.com/photosync/journal/internal/services"
	"github.com/photosync/journal/internal/session"
)

type journey struct {
	server  *httptest.Server
	local   *localstore.Store
	store   *session.MemoryStore
	session *session.State
	client  *gateway.Client
}

func newJourney(t *testing.T) *journey {
	t.Helper()
	logger := observability.NewNopLogger()

	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	media, err := localstore.NewMediaStore(t.TempDir(), nil, 1)
	require.NoError(t, err)

	auth := services.NewAuthService(repository.NewUserRepository(db),
		services.NewTokenService("journey-secret-journey-secret-0001"), bcrypt.MinCost, logger)
	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterConfig{
		Photos: repository.NewPhotoRepository(db),
		Auth:   auth,
		Media:  media,
		Logger: logger,
	}))
	t.Cleanup(srv.Close)

	local, err := localstore.New(filepath.Join(t.TempDir(), "guest_photos"), logger)
	require.NoError(t, err)

	baseURL := srv.URL + "/api"
	store := session.NewMemoryStore()
	sess := session.New(store, gateway.NewAuthClient(baseURL, 5*time.Second, logger), logger)

	return &journey{
		server:  srv,
		local:   local,
		store:   store,
		session: sess,
		client:  gateway.New(baseURL, 5*time.Second, sess, logger),
	}
}

func (j *journey) manager(t *testing.T) *collection.Manager {
	t.Helper()
	m := collection.New(j.local, j.client, j.session, collection.Options{
		PageSize: 2,
		Location: time.UTC,
		Logger:   observability.NewNopLogger(),
	})
	t.Cleanup(m.Close)
	return m
}

func form(name string, capturedAt time.Time) *models.PhotoForm {
	return &models.PhotoForm{
		Image:       bytes.NewReader([]byte("pixels of " + name)),
		Filename:    name,
		CapturedAt:  capturedAt,
		Coordinates: &models.Coordinates{Latitude: 45.764, Longitude: 4.8357},
		Notes:       name,
	}
}

func TestJourney_GuestToAccountAndBack(t *testing.T) {
	ctx := context.Background()
	j := newJourney(t)
	m := j.manager(t)

	guestPhoto := models.Photo{ID: "guest-1", URI: "file:///photos/guest-1.jpg", CapturedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, j.local.Save(ctx, &guestPhoto))
	require.NoError(t, m.Load(ctx, models.PhotoQuery{}))
	assert.Equal(t, []string{"guest-1"}, photoIDs(m.Snapshot().Photos))

	require.NoError(t, j.session.Register(ctx, "Ada Lovelace", "ada@example.com", "correct horse"))
	m.Wait()

	snap := m.Snapshot()
	require.Equal(t, session.StatusAuthenticated, snap.Status)
	assert.Empty(t, snap.Photos)
	assert.False(t, snap.Page.HasMore)
	identity, ok := j.session.Identity()
	require.True(t, ok)
	assert.Equal(t, "Ada Lovelace", identity.User.FullName)

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"first.jpg", "second.jpg", "third.jpg"} {
		created, err := m.CreateRemote(ctx, form(name, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, created.ID, m.Snapshot().Photos[0].ID)
	}

	snap = m.Snapshot()
	require.Len(t, snap.Photos, 2)
	assert.Equal(t, "third.jpg", snap.Photos[0].Notes)
	assert.Equal(t, 3, snap.Page.TotalCount)
	assert.True(t, snap.Page.HasMore)

	t.Run("the download locator serves the uploaded image", func(t *testing.T) {
		loc := snap.Photos[0].Locator(j.client.BaseURL())
		require.Equal(t, models.LocatorRemote, loc.Kind)

		resp, err := http.Get(loc.Value)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "pixels of third.jpg", string(data))
	})

	require.NoError(t, m.LoadMore(ctx))
	snap = m.Snapshot()
	assert.Len(t, snap.Photos, 3)
	assert.Equal(t, 2, snap.Page.CurrentPage)
	assert.False(t, snap.Page.HasMore)

	days, err := m.DaysWithPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.DayCount{{Date: "2024-05-01", Count: 3}}, days)

	require.NoError(t, m.Delete(ctx, snap.Photos[0].ID))
	snap = m.Snapshot()
	assert.Len(t, snap.Photos, 2)
	assert.Equal(t, 2, snap.Page.TotalCount)

	days, err = m.DaysWithPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.DayCount{{Date: "2024-05-01", Count: 2}}, days)

	require.NoError(t, j.session.Logout(ctx))
	m.Wait()

	snap = m.Snapshot()
	assert.Equal(t, session.StatusGuest, snap.Status)
	assert.Equal(t, []string{"guest-1"}, photoIDs(snap.Photos))
}

func TestJourney_RejectedTokenForcesGuestMode(t *testing.T) {
	ctx := context.Background()
	j := newJourney(t)

	require.NoError(t, j.store.Set(session.KeyToken, "stale-token"))
	require.NoError(t, j.session.Hydrate(ctx))
	require.Equal(t, session.StatusAuthenticated, j.session.Status())

	m := j.manager(t)
	err := m.Load(ctx, models.PhotoQuery{})
	require.ErrorIs(t, err, models.ErrUnauthorized)
	m.Wait()

	assert.Equal(t, session.StatusGuest, j.session.Status())
	assert.Equal(t, session.StatusGuest, m.Snapshot().Status)
	_, ok, storeErr := j.store.Get(session.KeyToken)
	require.NoError(t, storeErr)
	assert.False(t, ok)
}

func photoIDs(photos []models.Photo) []string {
	out := make([]string, len(photos))
	for i, p := range photos {
		out[i] = p.ID
	}
	return out
}
