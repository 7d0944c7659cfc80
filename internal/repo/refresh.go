package repo

import (
	"context"
	"fmt"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *GormRepo) GetRefresh(ctx context.Context, userID uint) (*models.RefreshRecord, error) {
	var rec models.RefreshRecord
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&rec).Error; err != nil {
		return nil, notFound(err, ErrRefreshNotFound)
	}
	return &rec, nil
}

// PutRefresh creates the user's record or overwrites its access token.
func (r *GormRepo) PutRefresh(ctx context.Context, rec *models.RefreshRecord) error {
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "updated_at"}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("put refresh record: %w", err)
	}
	return nil
}

func (r *GormRepo) DeleteRefreshByUserID(ctx context.Context, userID uint) error {
	return r.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshRecord{}).Error
}

// SwapAccessToken replaces the stored access token with next only when the
// stored value still equals presented. The conditional update is the whole
// compare-and-swap, so two racing callers cannot both win.
func (r *GormRepo) SwapAccessToken(ctx context.Context, userID uint, presented, next string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RefreshRecord{}).
			Where("user_id = ? AND access_token = ?", userID, presented).
			Update("access_token", next)
		if res.Error != nil {
			return fmt.Errorf("swap access token: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}

		var count int64
		if err := tx.Model(&models.RefreshRecord{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return fmt.Errorf("swap access token: %w", err)
		}
		if count == 0 {
			return ErrRefreshNotFound
		}
		return ErrAccessTokenMismatch
	})
}
