package service

import (
	"context"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
)

// RefreshStore persists the single refresh record kept per user.
type RefreshStore interface {
	GetRefresh(ctx context.Context, userID uint) (*models.RefreshRecord, error)
	PutRefresh(ctx context.Context, rec *models.RefreshRecord) error
	DeleteRefreshByUserID(ctx context.Context, userID uint) error
	SwapAccessToken(ctx context.Context, userID uint, presented, next string) error
}

type UserRepo interface {
	FindUserByLogin(ctx context.Context, login string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id uint) (*models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	CreateUser(ctx context.Context, user *models.User) error
	SaveUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context, offset, limit int) (int64, []models.User, error)
	DeleteUser(ctx context.Context, id uint) error
}

// Publisher emits domain events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}
