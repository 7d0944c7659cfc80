package repo

import (
	"context"
	"fmt"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"gorm.io/gorm"
)

// Every catalog query is scoped by the owning user.

func (r *GormRepo) CreateCategory(ctx context.Context, cat *models.Category) error {
	if err := r.DB.WithContext(ctx).Create(cat).Error; err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *GormRepo) GetCategory(ctx context.Context, userID, id uint) (*models.Category, error) {
	var cat models.Category
	if err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&cat).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return &cat, nil
}

func (r *GormRepo) ListCategories(ctx context.Context, userID uint) ([]models.Category, error) {
	var items []models.Category
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) ListSubCategories(ctx context.Context, userID, parentID uint) ([]models.Category, error) {
	var items []models.Category
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND parent_id = ?", userID, parentID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DeleteCategory detaches the category's products and sub categories
// before removing it; neither is deleted with it.
func (r *GormRepo) DeleteCategory(ctx context.Context, userID, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Category{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		err := tx.Model(&models.Product{}).
			Where("category_id = ? AND user_id = ?", id, userID).
			Update("category_id", nil).Error
		if err != nil {
			return fmt.Errorf("detach products: %w", err)
		}
		err = tx.Model(&models.Category{}).
			Where("parent_id = ? AND user_id = ?", id, userID).
			Update("parent_id", nil).Error
		if err != nil {
			return fmt.Errorf("detach sub categories: %w", err)
		}
		return nil
	})
}

func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) error {
	if err := r.DB.WithContext(ctx).Create(prod).Error; err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *GormRepo) GetProduct(ctx context.Context, userID, id uint) (*models.Product, error) {
	var prod models.Product
	if err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&prod).Error; err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return &prod, nil
}

func (r *GormRepo) GetProductsByIDs(ctx context.Context, userID uint, ids []uint) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.Product
	if err := r.DB.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) ListProducts(ctx context.Context, userID uint, offset, limit int) (int64, []models.Product, error) {
	q := r.DB.WithContext(ctx).Model(&models.Product{}).Where("user_id = ?", userID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Product
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) SaveProduct(ctx context.Context, prod *models.Product) error {
	return r.DB.WithContext(ctx).Save(prod).Error
}

// DeleteProduct removes the product and its trade history.
func (r *GormRepo) DeleteProduct(ctx context.Context, userID, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Product{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("product_id = ? AND user_id = ?", id, userID).Delete(&models.Trade{}).Error
	})
}

// SearchProducts is the plain SQL fallback used when no search index is
// configured.
func (r *GormRepo) SearchProducts(ctx context.Context, userID uint, query string, offset, limit int) (int64, []models.Product, error) {
	like := "%" + query + "%"
	q := r.DB.WithContext(ctx).Model(&models.Product{}).
		Where("user_id = ?", userID).
		Where("LOWER(name) LIKE LOWER(?) OR LOWER(description) LIKE LOWER(?)", like, like).
		Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Product
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}
