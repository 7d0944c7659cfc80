package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"gorm.io/gorm"
)

// TradeFilter narrows a trade listing. Zero fields do not filter.
type TradeFilter struct {
	UserID    uint
	Kind      string
	ProductID uint
	From      time.Time
	To        time.Time
}

func (f TradeFilter) apply(q *gorm.DB) *gorm.DB {
	q = q.Where("user_id = ?", f.UserID)
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.ProductID != 0 {
		q = q.Where("product_id = ?", f.ProductID)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("created_at < ?", f.To.UTC())
	}
	return q
}

// adjustStock moves the product count by delta. A decrease never takes the
// count below zero.
func adjustStock(tx *gorm.DB, userID, productID uint, delta int64) error {
	q := tx.Model(&models.Product{}).Where("id = ? AND user_id = ?", productID, userID)
	if delta < 0 {
		q = q.Where(`"count" >= ?`, -delta)
	}
	res := q.Update("count", gorm.Expr(`"count" + ?`, delta))
	if res.Error != nil {
		return fmt.Errorf("adjust stock: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := tx.Model(&models.Product{}).Where("id = ? AND user_id = ?", productID, userID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

// CreateTrade stores the trade and applies it to the product count in one
// transaction.
func (r *GormRepo) CreateTrade(ctx context.Context, t *models.Trade) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := adjustStock(tx, t.UserID, t.ProductID, t.StockDelta()); err != nil {
			return err
		}
		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create trade: %w", err)
		}
		return nil
	})
}

func (r *GormRepo) GetTrade(ctx context.Context, userID uint, kind string, id uint) (*models.Trade, error) {
	var t models.Trade
	err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ? AND kind = ?", id, userID, kind).First(&t).Error
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return &t, nil
}

// DeleteTrade removes the trade and reverts its effect on the product count.
func (r *GormRepo) DeleteTrade(ctx context.Context, userID uint, kind string, id uint) (*models.Trade, error) {
	var t models.Trade
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ? AND kind = ?", id, userID, kind).First(&t).Error; err != nil {
			return notFound(err, ErrNotFound)
		}
		if err := adjustStock(tx, userID, t.ProductID, -t.StockDelta()); err != nil {
			return err
		}
		return tx.Delete(&t).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GormRepo) ListTrades(ctx context.Context, f TradeFilter, offset, limit int) (int64, []models.Trade, error) {
	q := f.apply(r.DB.WithContext(ctx).Model(&models.Trade{})).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Trade
	if err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// AllTrades returns every trade matching f, oldest first.
func (r *GormRepo) AllTrades(ctx context.Context, f TradeFilter) ([]models.Trade, error) {
	var items []models.Trade
	if err := f.apply(r.DB.WithContext(ctx).Model(&models.Trade{})).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
