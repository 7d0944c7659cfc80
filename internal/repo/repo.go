package repo

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrRefreshNotFound     = errors.New("refresh record not found")
	ErrAccessTokenMismatch = errors.New("stored access token does not match")
	ErrNotFound            = errors.New("record not found")
	ErrDuplicate           = errors.New("record already exists")
	ErrInsufficientStock   = errors.New("product count is lower than requested")
)

type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
