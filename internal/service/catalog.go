package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/transport"
)

const ProductEventsTopic = "product_events"

type CatalogRepo interface {
	CreateCategory(ctx context.Context, cat *models.Category) error
	GetCategory(ctx context.Context, userID, id uint) (*models.Category, error)
	ListCategories(ctx context.Context, userID uint) ([]models.Category, error)
	ListSubCategories(ctx context.Context, userID, parentID uint) ([]models.Category, error)
	DeleteCategory(ctx context.Context, userID, id uint) error
	CreateProduct(ctx context.Context, prod *models.Product) error
	GetProduct(ctx context.Context, userID, id uint) (*models.Product, error)
	GetProductsByIDs(ctx context.Context, userID uint, ids []uint) ([]models.Product, error)
	ListProducts(ctx context.Context, userID uint, offset, limit int) (int64, []models.Product, error)
	SaveProduct(ctx context.Context, prod *models.Product) error
	DeleteProduct(ctx context.Context, userID, id uint) error
	SearchProducts(ctx context.Context, userID uint, query string, offset, limit int) (int64, []models.Product, error)
}

// ProductIndex is a full text index over products. Search returns matching
// ids in relevance order.
type ProductIndex interface {
	IndexProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id uint) error
	DeleteUserProducts(ctx context.Context, userID uint) error
	Search(ctx context.Context, userID uint, query string, from, size int) (int64, []uint, error)
}

// CatalogService manages the inventory of the calling user. Index and
// Events are optional.
type CatalogService struct {
	Repo   CatalogRepo
	Index  ProductIndex
	Events Publisher
}

// CreateCategory stores a top level category, or a sub category when
// parentID names one of the caller's categories.
func (s *CatalogService) CreateCategory(ctx context.Context, userID uint, name string, parentID *uint) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrValidation)
	}
	if err := s.checkCategory(ctx, userID, parentID); err != nil {
		return nil, err
	}
	cat := &models.Category{Name: name, ParentID: parentID, UserID: userID}
	if err := s.Repo.CreateCategory(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (s *CatalogService) GetCategory(ctx context.Context, userID, id uint) (*models.Category, error) {
	cat, err := s.Repo.GetCategory(ctx, userID, id)
	return cat, mapNotFound(err)
}

func (s *CatalogService) ListCategories(ctx context.Context, userID uint) ([]models.Category, error) {
	return s.Repo.ListCategories(ctx, userID)
}

func (s *CatalogService) ListSubCategories(ctx context.Context, userID, parentID uint) ([]models.Category, error) {
	if _, err := s.Repo.GetCategory(ctx, userID, parentID); err != nil {
		return nil, mapNotFound(err)
	}
	return s.Repo.ListSubCategories(ctx, userID, parentID)
}

func (s *CatalogService) DeleteCategory(ctx context.Context, userID, id uint) error {
	return mapNotFound(s.Repo.DeleteCategory(ctx, userID, id))
}

func (s *CatalogService) CreateProduct(ctx context.Context, userID uint, req transport.CreateProductRequest) (*models.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if req.Price < 0 {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	if err := s.checkCategory(ctx, userID, req.CategoryID); err != nil {
		return nil, err
	}

	prod := &models.Product{
		Name:        name,
		Description: req.Description,
		Price:       req.Price,
		Count:       req.Count,
		CategoryID:  req.CategoryID,
		UserID:      userID,
	}
	if err := s.Repo.CreateProduct(ctx, prod); err != nil {
		return nil, err
	}

	s.index(ctx, prod)
	s.publish(ctx, "product_created", prod)
	return prod, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, userID, id uint) (*models.Product, error) {
	prod, err := s.Repo.GetProduct(ctx, userID, id)
	return prod, mapNotFound(err)
}

func (s *CatalogService) ListProducts(ctx context.Context, userID uint, offset, limit int) (int64, []models.Product, error) {
	return s.Repo.ListProducts(ctx, userID, offset, limit)
}

func (s *CatalogService) PatchProduct(ctx context.Context, userID, id uint, req transport.PatchProductRequest) (*models.Product, error) {
	prod, err := s.Repo.GetProduct(ctx, userID, id)
	if err != nil {
		return nil, mapNotFound(err)
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: product name is required", ErrValidation)
		}
		prod.Name = name
	}
	if req.Description != nil {
		prod.Description = *req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return nil, fmt.Errorf("%w: price cannot be negative", ErrValidation)
		}
		prod.Price = *req.Price
	}
	if req.Count != nil {
		prod.Count = *req.Count
	}
	if req.CategoryID != nil {
		if err := s.checkCategory(ctx, userID, req.CategoryID); err != nil {
			return nil, err
		}
		prod.CategoryID = req.CategoryID
	}

	if err := s.Repo.SaveProduct(ctx, prod); err != nil {
		return nil, err
	}

	s.index(ctx, prod)
	s.publish(ctx, "product_updated", prod)
	return prod, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, userID, id uint) error {
	if err := s.Repo.DeleteProduct(ctx, userID, id); err != nil {
		return mapNotFound(err)
	}

	if s.Index != nil {
		if err := s.Index.DeleteProduct(ctx, id); err != nil {
			logging.FromContext(ctx).Error("index_delete_failed", "product_id", id, "error", err)
		}
	}
	s.publish(ctx, "product_deleted", &models.Product{ID: id, UserID: userID})
	return nil
}

// SearchProducts asks the index when one is configured and falls back to
// the database when it is not or when the index is unavailable.
func (s *CatalogService) SearchProducts(ctx context.Context, userID uint, query string, offset, limit int) (int64, []models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return 0, nil, fmt.Errorf("%w: query is required", ErrValidation)
	}

	if s.Index != nil {
		total, ids, err := s.Index.Search(ctx, userID, query, offset, limit)
		if err == nil {
			items, err := s.loadInOrder(ctx, userID, ids)
			if err != nil {
				return 0, nil, err
			}
			return total, items, nil
		}
		logging.FromContext(ctx).Warn("index_search_failed", "reason", "falling back to database", "error", err)
	}

	return s.Repo.SearchProducts(ctx, userID, query, offset, limit)
}

func (s *CatalogService) loadInOrder(ctx context.Context, userID uint, ids []uint) ([]models.Product, error) {
	found, err := s.Repo.GetProductsByIDs(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	items := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			items = append(items, p)
		}
	}
	return items, nil
}

func (s *CatalogService) checkCategory(ctx context.Context, userID uint, categoryID *uint) error {
	if categoryID == nil {
		return nil
	}
	if _, err := s.Repo.GetCategory(ctx, userID, *categoryID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: unknown category", ErrValidation)
		}
		return err
	}
	return nil
}

func (s *CatalogService) index(ctx context.Context, p *models.Product) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexProduct(ctx, p); err != nil {
		logging.FromContext(ctx).Error("index_product_failed", "product_id", p.ID, "error", err)
	}
}

func (s *CatalogService) publish(ctx context.Context, kind string, p *models.Product) {
	if s.Events == nil {
		return
	}
	event := map[string]any{
		"type":      kind,
		"productID": p.ID,
		"userID":    p.UserID,
	}
	if p.Name != "" {
		event["name"] = p.Name
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(ctx, ProductEventsTopic, fmt.Sprint(p.UserID), event); err != nil {
		logging.FromContext(ctx).Error("publish_failed", "topic", ProductEventsTopic, "type", kind, "error", err)
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
