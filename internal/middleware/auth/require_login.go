package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func RequireLogin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := Principal(c); !ok {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return next(c)
	}
}
