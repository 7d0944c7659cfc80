package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	authmw "github.com/DarkDeveloper-Plant/Anbarinoo/internal/middleware/auth"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/service"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/transport"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/util"
)

// CatalogHTTP serves the caller's own categories and products. Routes are
// mounted behind RequireLogin.
type CatalogHTTP struct {
	Svc *service.CatalogService
}

func owner(c echo.Context) uint {
	p, _ := authmw.Principal(c)
	return p.UserID
}

func pathID(c echo.Context) (uint, error) {
	id, ok := util.ParseID(c.Param("id"))
	if !ok {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id is not a positive integer")
	}
	return id, nil
}

// catalogError maps service errors; the caller has already logged 5xx causes.
func catalogError(err error, what string) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, what+" not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (h *CatalogHTTP) logFailure(c echo.Context, event string, err error) {
	if errors.Is(err, service.ErrValidation) || errors.Is(err, service.ErrNotFound) {
		logging.FromContext(c.Request().Context()).Warn(event, "reason", err.Error())
		return
	}
	logging.FromContext(c.Request().Context()).Error(event, "status", 500, "error", err)
}

func (h *CatalogHTTP) ListCategories(c echo.Context) error {
	items, err := h.Svc.ListCategories(c.Request().Context(), owner(c))
	if err != nil {
		h.logFailure(c, "list_categories_failed", err)
		return catalogError(err, "category")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CatalogHTTP) CreateCategory(c echo.Context) error {
	var req transport.CreateCategoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	cat, err := h.Svc.CreateCategory(c.Request().Context(), owner(c), req.Name, req.ParentID)
	if err != nil {
		h.logFailure(c, "create_category_failed", err)
		return catalogError(err, "category")
	}
	return c.JSON(http.StatusCreated, cat)
}

func (h *CatalogHTTP) GetCategory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cat, err := h.Svc.GetCategory(c.Request().Context(), owner(c), id)
	if err != nil {
		h.logFailure(c, "get_category_failed", err)
		return catalogError(err, "category")
	}
	return c.JSON(http.StatusOK, cat)
}

func (h *CatalogHTTP) ListSubCategories(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	items, err := h.Svc.ListSubCategories(c.Request().Context(), owner(c), id)
	if err != nil {
		h.logFailure(c, "list_sub_categories_failed", err)
		return catalogError(err, "category")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *CatalogHTTP) DeleteCategory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteCategory(c.Request().Context(), owner(c), id); err != nil {
		h.logFailure(c, "delete_category_failed", err)
		return catalogError(err, "category")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CatalogHTTP) ListProducts(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.ListProducts(c.Request().Context(), owner(c), offset, limit)
	if err != nil {
		h.logFailure(c, "list_products_failed", err)
		return catalogError(err, "product")
	}
	return c.JSON(http.StatusOK, transport.NewPage(items, page, offset, limit, total))
}

func (h *CatalogHTTP) SearchProducts(c echo.Context) error {
	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, items, err := h.Svc.SearchProducts(c.Request().Context(), owner(c), c.QueryParam("q"), offset, limit)
	if err != nil {
		h.logFailure(c, "search_products_failed", err)
		return catalogError(err, "product")
	}
	return c.JSON(http.StatusOK, transport.NewPage(items, page, offset, limit, total))
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	var req transport.CreateProductRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	prod, err := h.Svc.CreateProduct(c.Request().Context(), owner(c), req)
	if err != nil {
		h.logFailure(c, "create_product_failed", err)
		return catalogError(err, "product")
	}
	return c.JSON(http.StatusCreated, prod)
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	prod, err := h.Svc.GetProduct(c.Request().Context(), owner(c), id)
	if err != nil {
		h.logFailure(c, "get_product_failed", err)
		return catalogError(err, "product")
	}
	return c.JSON(http.StatusOK, prod)
}

func (h *CatalogHTTP) PatchProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req transport.PatchProductRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	prod, err := h.Svc.PatchProduct(c.Request().Context(), owner(c), id, req)
	if err != nil {
		h.logFailure(c, "patch_product_failed", err)
		return catalogError(err, "product")
	}
	return c.JSON(http.StatusOK, prod)
}

func (h *CatalogHTTP) DeleteProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.DeleteProduct(c.Request().Context(), owner(c), id); err != nil {
		h.logFailure(c, "delete_product_failed", err)
		return catalogError(err, "product")
	}
	return c.NoContent(http.StatusNoContent)
}
