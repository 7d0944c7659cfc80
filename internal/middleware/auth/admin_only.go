package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok := Principal(c)
		if !ok || !p.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return next(c)
	}
}
