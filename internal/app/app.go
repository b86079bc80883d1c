// Package app assembles the photo data layer from configuration: the guest
// store, the session, the photo service client and the collection manager.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/photosync/journal/internal/capture"
	"github.com/photosync/journal/internal/collection"
	"github.com/photosync/journal/internal/config"
	"github.com/photosync/journal/internal/gateway"
	"github.com/photosync/journal/internal/localstore"
	"github.com/photosync/journal/internal/models"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/session"
	"github.com/photosync/journal/internal/views"
)

// App is one running instance of the data layer
type App struct {
	Config   *config.Config
	Session  *session.State
	Client   *gateway.Client
	Manager  *collection.Manager
	Capture  *capture.Service
	Location *time.Location

	memo   *views.Memo
	logger *observability.Logger
}

// Options tune Open. Zero values are usable.
type Options struct {
	Location *time.Location
	Logger   *observability.Logger
	// SessionStore overrides the file-backed credential store
	SessionStore session.SecureStore
}

// Open wires every component and restores the persisted session
func Open(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = observability.Component("app")
	}
	if opts.SessionStore == nil {
		opts.SessionStore = session.NewFileStore(cfg.SessionFile())
	}
	logger := opts.Logger

	local, err := localstore.New(cfg.GuestPhotosDir(), logger.WithField("component", "localstore"))
	if err != nil {
		return nil, err
	}
	media, err := localstore.NewMediaStore(cfg.GuestMediaDir(), cfg.Media.AllowedExtensions, cfg.Media.MaxFileSizeMB)
	if err != nil {
		return nil, err
	}

	auth := gateway.NewAuthClient(cfg.APIBaseURL, cfg.RequestTimeout(), logger.WithField("component", "auth"))
	sess := session.New(opts.SessionStore, auth, logger.WithField("component", "session"))
	if err := sess.Hydrate(ctx); err != nil {
		return nil, err
	}

	client := gateway.New(cfg.APIBaseURL, cfg.RequestTimeout(), sess, logger.WithField("component", "gateway"))

	metrics, err := observability.NewCollectionMetrics()
	if err != nil {
		logger.WithError(err).Warn("Collection metrics disabled")
	}

	manager := collection.New(local, client, sess, collection.Options{
		PageSize: cfg.PageSize,
		Location: opts.Location,
		Logger:   logger.WithField("component", "collection"),
		Metrics:  metrics,
	})

	return &App{
		Config:   cfg,
		Session:  sess,
		Client:   client,
		Manager:  manager,
		Capture:  capture.NewService(media),
		Location: opts.Location,
		memo:     views.NewMemo(opts.Location, client.BaseURL()),
		logger:   logger,
	}, nil
}

// Close stops background work
func (a *App) Close() {
	a.Manager.Close()
}

// Login signs in and waits for the collection to switch sources
func (a *App) Login(ctx context.Context, email, password string) error {
	if err := a.Session.Login(ctx, email, password); err != nil {
		return err
	}
	a.Manager.Wait()
	return nil
}

// Register creates an account, signs in and waits for the reload
func (a *App) Register(ctx context.Context, fullName, email, password string) error {
	if err := a.Session.Register(ctx, fullName, email, password); err != nil {
		return err
	}
	a.Manager.Wait()
	return nil
}

// Logout returns to guest mode and waits for the reload
func (a *App) Logout(ctx context.Context) error {
	err := a.Session.Logout(ctx)
	a.Manager.Wait()
	a.Client.Reset()
	return err
}

// LoadPages loads the collection for date and follows up to pages pages.
// A rejected token leaves the app in guest mode with the guest collection
// loaded.
func (a *App) LoadPages(ctx context.Context, date string, pages int) error {
	err := a.Manager.Load(ctx, models.PhotoQuery{Date: date})
	a.Manager.Wait()
	if err != nil {
		return err
	}
	for i := 1; i < pages && a.Manager.Snapshot().Page.HasMore; i++ {
		if err := a.Manager.LoadMore(ctx); err != nil {
			return err
		}
	}
	return nil
}

// CapturePhoto stores a new photo in the active source
func (a *App) CapturePhoto(ctx context.Context, req capture.Request) (*models.Photo, error) {
	if a.Session.Status() == session.StatusAuthenticated {
		form, err := a.Capture.RemoteForm(req)
		if err != nil {
			return nil, err
		}
		return a.Manager.CreateRemote(ctx, form)
	}

	photo, err := a.Capture.GuestPhoto(req)
	if err != nil {
		return nil, err
	}
	if err := a.Manager.CreateLocal(ctx, photo); err != nil {
		if derr := a.Capture.DiscardMedia(photo); derr != nil {
			a.logger.WithError(derr).Warn("Failed to remove orphaned image copy")
		}
		return nil, err
	}
	return photo, nil
}

// DeletePhoto removes a photo. Guest photos also lose their image copy.
func (a *App) DeletePhoto(ctx context.Context, id string) error {
	var guest *models.Photo
	if a.Session.Status() == session.StatusGuest {
		for _, p := range a.Manager.Snapshot().Photos {
			if p.ID == id {
				guest = &p
				break
			}
		}
	}

	if err := a.Manager.Delete(ctx, id); err != nil {
		return err
	}
	if guest != nil {
		if err := a.Capture.DiscardMedia(guest); err != nil {
			a.logger.WithError(err).Warnf("Failed to remove image of %s", id)
		}
	}
	return nil
}

// Photo looks up one photo in the active source. A rejected token ends the
// session like any other photo service call.
func (a *App) Photo(ctx context.Context, id string) (*models.Photo, error) {
	if err := models.ValidatePhotoID(id); err != nil {
		return nil, err
	}
	if a.Session.Status() == session.StatusAuthenticated {
		photo, err := a.Client.Get(ctx, id)
		if errors.Is(err, models.ErrUnauthorized) {
			a.Session.Expire(ctx)
			a.Manager.Wait()
		}
		return photo, err
	}

	if err := a.LoadPages(ctx, "", 1); err != nil {
		return nil, err
	}
	for _, p := range a.Manager.Snapshot().Photos {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, models.ErrNotFound
}

// Groups returns the visible collection grouped by day
func (a *App) Groups() []views.DateGroup {
	snap := a.Manager.Snapshot()
	return a.memo.Groups(snap.Version, snap.Photos)
}

// MapView returns the located photos and the region that frames them,
// scaled by zoom when it is positive
func (a *App) MapView(zoom float64) ([]views.MapPoint, views.Region) {
	snap := a.Manager.Snapshot()
	return a.memo.Points(snap.Version, snap.Photos), a.memo.Region(snap.Version, snap.Photos).Zoom(zoom)
}

// Describe renders the failure kind of err for people
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrUnauthorized):
		return "your session has expired, you are now browsing as a guest"
	case errors.Is(err, models.ErrNetworkUnavailable):
		return "the photo service cannot be reached, try again later"
	case errors.Is(err, models.ErrNotFound):
		return "the photo no longer exists"
	case errors.Is(err, models.ErrServerError):
		return fmt.Sprintf("the photo service failed: %v", err)
	case errors.Is(err, models.ErrStorageUnavailable):
		return fmt.Sprintf("on-device storage failed: %v", err)
	case errors.Is(err, models.ErrSessionMismatch):
		return "that action is not available in the current mode"
	default:
		return err.Error()
	}
}
