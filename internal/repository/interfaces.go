package repository

import (
	"context"

	"github.com/photosync/journal/internal/models"
)

// PhotoRepo defines the interface for photo persistence operations
type PhotoRepo interface {
	GetByID(ctx context.Context, id string) (*PhotoRecord, error)
	List(ctx context.Context, userID, day string, skip, take int) ([]*PhotoRecord, error)
	Count(ctx context.Context, userID, day string) (int, error)
	Add(ctx context.Context, rec *PhotoRecord) error
	Delete(ctx context.Context, id, userID string) (bool, error)
	DaysWithPhotos(ctx context.Context, userID string) ([]models.DayCount, error)
}

// UserRepo defines the interface for account persistence operations
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Add(ctx context.Context, account *models.Account) error
}
