package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	authmw "github.com/DarkDeveloper-Plant/Anbarinoo/internal/middleware/auth"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
)

type Deps struct {
	Auth    *AuthHTTP
	OAuth   *OAuthHTTP
	Catalog *CatalogHTTP
	Ledger  *LedgerHTTP
	Authn   authmw.Authenticator
	Ready   func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	if d.OAuth != nil {
		e.GET("/oauth2/authorize", d.OAuth.Start)
		e.GET("/login/callback", d.OAuth.Callback)
	}

	api := e.Group("/api", authmw.Authenticate(d.Authn))

	user := api.Group("/user")
	user.POST("/signup", d.Auth.Signup)
	user.POST("/login", d.Auth.Login)

	me := user.Group("", authmw.RequireLogin)
	me.POST("/logout", d.Auth.Logout)
	me.GET("", d.Auth.Me)
	me.DELETE("", d.Auth.DeleteAccount)

	admin := api.Group("/admin", authmw.RequireAdmin)
	admin.GET("/users", d.Auth.ListUsers)

	category := api.Group("/category", authmw.RequireLogin)
	category.GET("", d.Catalog.ListCategories)
	category.POST("", d.Catalog.CreateCategory)
	category.GET("/:id", d.Catalog.GetCategory)
	category.GET("/:id/sub", d.Catalog.ListSubCategories)
	category.DELETE("/:id", d.Catalog.DeleteCategory)

	product := api.Group("/product", authmw.RequireLogin)
	product.GET("", d.Catalog.ListProducts)
	product.POST("", d.Catalog.CreateProduct)
	product.GET("/search", d.Catalog.SearchProducts)
	product.GET("/:id", d.Catalog.GetProduct)
	product.PATCH("/:id", d.Catalog.PatchProduct)
	product.DELETE("/:id", d.Catalog.DeleteProduct)

	if d.Ledger != nil {
		for _, kind := range []string{models.TradeBuy, models.TradeSell} {
			trades := api.Group("/"+kind, authmw.RequireLogin)
			trades.POST("", d.Ledger.Create(kind))
			trades.GET("", d.Ledger.List(kind))
			trades.GET("/:id", d.Ledger.Get(kind))
			trades.DELETE("/:id", d.Ledger.Delete(kind))
		}
		api.GET("/financial", d.Ledger.Summary, authmw.RequireLogin)
	}
}
