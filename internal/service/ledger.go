package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/transport"
)

type LedgerRepo interface {
	CreateTrade(ctx context.Context, t *models.Trade) error
	GetTrade(ctx context.Context, userID uint, kind string, id uint) (*models.Trade, error)
	DeleteTrade(ctx context.Context, userID uint, kind string, id uint) (*models.Trade, error)
	ListTrades(ctx context.Context, f repo.TradeFilter, offset, limit int) (int64, []models.Trade, error)
	AllTrades(ctx context.Context, f repo.TradeFilter) ([]models.Trade, error)
}

// LedgerService records buys and sells of the caller's products. Every
// trade moves the product count in the same transaction that stores it.
type LedgerService struct {
	Repo   LedgerRepo
	Events Publisher
}

// FinancialSummary totals the trades of one user over a period. Costs
// include the tax paid on buys, incomes exclude the tax on sells.
type FinancialSummary struct {
	From    *time.Time `json:"from,omitempty"`
	To      *time.Time `json:"to,omitempty"`
	Buys    int        `json:"buys"`
	Sells   int        `json:"sells"`
	Costs   float64    `json:"costs"`
	Incomes float64    `json:"incomes"`
	Profit  float64    `json:"profit"`
}

func validKind(kind string) error {
	if kind != models.TradeBuy && kind != models.TradeSell {
		return fmt.Errorf("%w: unknown trade kind %q", ErrValidation, kind)
	}
	return nil
}

func (s *LedgerService) Record(ctx context.Context, userID uint, kind string, req transport.CreateTradeRequest) (*models.Trade, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	if req.ProductID == 0 {
		return nil, fmt.Errorf("%w: product_id is required", ErrValidation)
	}
	if req.Count == 0 {
		return nil, fmt.Errorf("%w: count must be positive", ErrValidation)
	}
	if req.Price < 0 {
		return nil, fmt.Errorf("%w: price cannot be negative", ErrValidation)
	}
	tax := models.DefaultTax
	if req.Tax != nil {
		tax = *req.Tax
	}
	if tax < 0 || tax > 100 {
		return nil, fmt.Errorf("%w: tax must be between 0 and 100", ErrValidation)
	}

	t := &models.Trade{
		Kind:      kind,
		ProductID: req.ProductID,
		UserID:    userID,
		Count:     req.Count,
		Price:     req.Price,
		Tax:       tax,
	}
	if err := s.Repo.CreateTrade(ctx, t); err != nil {
		return nil, mapLedgerError(err)
	}

	s.publish(ctx, kind+"_recorded", t)
	return t, nil
}

func (s *LedgerService) Get(ctx context.Context, userID uint, kind string, id uint) (*models.Trade, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	t, err := s.Repo.GetTrade(ctx, userID, kind, id)
	return t, mapNotFound(err)
}

func (s *LedgerService) List(ctx context.Context, f repo.TradeFilter, offset, limit int) (int64, []models.Trade, error) {
	if err := validKind(f.Kind); err != nil {
		return 0, nil, err
	}
	if err := checkPeriod(f.From, f.To); err != nil {
		return 0, nil, err
	}
	return s.Repo.ListTrades(ctx, f, offset, limit)
}

// Delete removes the trade and undoes its stock change. Removing a buy whose
// items were already sold fails with ErrInsufficientStock.
func (s *LedgerService) Delete(ctx context.Context, userID uint, kind string, id uint) error {
	if err := validKind(kind); err != nil {
		return err
	}
	t, err := s.Repo.DeleteTrade(ctx, userID, kind, id)
	if err != nil {
		return mapLedgerError(err)
	}
	s.publish(ctx, kind+"_deleted", t)
	return nil
}

func (s *LedgerService) Summary(ctx context.Context, userID uint, from, to time.Time) (*FinancialSummary, error) {
	if err := checkPeriod(from, to); err != nil {
		return nil, err
	}
	trades, err := s.Repo.AllTrades(ctx, repo.TradeFilter{UserID: userID, From: from, To: to})
	if err != nil {
		return nil, err
	}

	sum := &FinancialSummary{}
	if !from.IsZero() {
		sum.From = &from
	}
	if !to.IsZero() {
		sum.To = &to
	}
	for i := range trades {
		t := &trades[i]
		if t.Kind == models.TradeSell {
			sum.Sells++
			sum.Incomes += t.Amount()
		} else {
			sum.Buys++
			sum.Costs += t.Amount()
		}
	}
	sum.Profit = sum.Incomes - sum.Costs
	return sum, nil
}

func checkPeriod(from, to time.Time) error {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return fmt.Errorf("%w: from must be before to", ErrValidation)
	}
	return nil
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrInsufficientStock):
		return ErrInsufficientStock
	default:
		return err
	}
}

func (s *LedgerService) publish(ctx context.Context, kind string, t *models.Trade) {
	if s.Events == nil {
		return
	}
	event := map[string]any{
		"type":      kind,
		"tradeID":   t.ID,
		"productID": t.ProductID,
		"userID":    t.UserID,
		"count":     t.Count,
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(ctx, ProductEventsTopic, fmt.Sprint(t.UserID), event); err != nil {
		logging.FromContext(ctx).Error("publish_failed", "topic", ProductEventsTopic, "type", kind, "error", err)
	}
}
