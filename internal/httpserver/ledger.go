package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/service"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/transport"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/util"
)

// LedgerHTTP serves buys, sells and the financial summary. One handler set
// is mounted per trade kind.
type LedgerHTTP struct {
	Svc *service.LedgerService
}

func ledgerError(err error) error {
	switch {
	case errors.Is(err, service.ErrInsufficientStock):
		return echo.NewHTTPError(http.StatusConflict, "product count is too low")
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *LedgerHTTP) logFailure(c echo.Context, event string, err error) {
	l := logging.FromContext(c.Request().Context())
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrInsufficientStock):
		l.Warn(event, "reason", err.Error())
	default:
		l.Error(event, "status", 500, "error", err)
	}
}

// queryTime accepts RFC 3339 or a plain date. Empty means no bound.
func queryTime(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+" is not a date")
}

func queryPeriod(c echo.Context) (from, to time.Time, err error) {
	if from, err = queryTime(c, "from"); err != nil {
		return
	}
	to, err = queryTime(c, "to")
	return
}

func (h *LedgerHTTP) Create(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req transport.CreateTradeRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
		}
		t, err := h.Svc.Record(c.Request().Context(), owner(c), kind, req)
		if err != nil {
			h.logFailure(c, "create_"+kind+"_failed", err)
			return ledgerError(err)
		}
		return c.JSON(http.StatusCreated, t)
	}
}

func (h *LedgerHTTP) Get(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		t, err := h.Svc.Get(c.Request().Context(), owner(c), kind, id)
		if err != nil {
			h.logFailure(c, "get_"+kind+"_failed", err)
			return ledgerError(err)
		}
		return c.JSON(http.StatusOK, t)
	}
}

func (h *LedgerHTTP) List(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		from, to, err := queryPeriod(c)
		if err != nil {
			return err
		}
		f := repo.TradeFilter{UserID: owner(c), Kind: kind, From: from, To: to}
		if v := c.QueryParam("product_id"); v != "" {
			id, ok := util.ParseID(v)
			if !ok {
				return echo.NewHTTPError(http.StatusBadRequest, "product_id is not a positive integer")
			}
			f.ProductID = id
		}

		page := util.ParseIntDefault(c.QueryParam("page"), 1)
		size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
		offset, limit := util.Calculate(page, size)

		total, items, err := h.Svc.List(c.Request().Context(), f, offset, limit)
		if err != nil {
			h.logFailure(c, "list_"+kind+"_failed", err)
			return ledgerError(err)
		}
		return c.JSON(http.StatusOK, transport.NewPage(items, page, offset, limit, total))
	}
}

func (h *LedgerHTTP) Delete(kind string) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		if err := h.Svc.Delete(c.Request().Context(), owner(c), kind, id); err != nil {
			h.logFailure(c, "delete_"+kind+"_failed", err)
			return ledgerError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func (h *LedgerHTTP) Summary(c echo.Context) error {
	from, to, err := queryPeriod(c)
	if err != nil {
		return err
	}
	sum, err := h.Svc.Summary(c.Request().Context(), owner(c), from, to)
	if err != nil {
		h.logFailure(c, "financial_summary_failed", err)
		return ledgerError(err)
	}
	return c.JSON(http.StatusOK, sum)
}
