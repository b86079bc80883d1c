package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/photosync/journal/internal/localstore"
	custommw "github.com/photosync/journal/internal/middleware"
	"github.com/photosync/journal/internal/observability"
	"github.com/photosync/journal/internal/repository"
	"github.com/photosync/journal/internal/services"
)

// RouterConfig wires the reference photo service
type RouterConfig struct {
	Photos  repository.PhotoRepo
	Auth    *services.AuthService
	Media   *localstore.MediaStore
	Metrics *observability.HTTPMetrics
	Logger  *observability.Logger
	Version string
}

// NewRouter builds the HTTP routes of the photo service
func NewRouter(cfg RouterConfig) http.Handler {
	photoHandler := NewPhotoHandler(cfg.Photos, cfg.Media, cfg.Logger)
	userHandler := NewUserHandler(cfg.Auth, cfg.Logger)
	healthHandler := NewHealthHandler()

	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.TracingMiddleware())
	if cfg.Metrics != nil {
		r.Use(observability.MetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", healthHandler.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/version", VersionHandler(cfg.Version))
		r.Post("/auth/register", userHandler.Register)
		r.Post("/auth/login", userHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(custommw.BearerAuth(cfg.Auth, cfg.Logger))

			r.Get("/profile", userHandler.GetProfile)
			r.Get("/calendar/days-with-photos", photoHandler.DaysWithPhotos)

			r.Route("/photos", func(r chi.Router) {
				r.Get("/", photoHandler.List)
				r.Post("/", photoHandler.Create)
				r.Get("/{id}", photoHandler.GetByID)
				r.Delete("/{id}", photoHandler.Delete)
			})
		})
	})

	uploads := http.StripPrefix(UploadsPrefix, http.FileServer(http.Dir(cfg.Media.BasePath())))
	r.Handle(UploadsPrefix+"*", uploads)

	return r
}
