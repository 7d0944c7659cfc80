package auth

import (
	"context"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/service"
	"github.com/labstack/echo/v4"
)

type Authenticator interface {
	Authenticate(ctx context.Context, refreshToken, accessToken string) service.Result
}

// Authenticate resolves the token headers into a principal. It never fails
// the request itself; protected routes add RequireLogin or RequireAdmin.
func Authenticate(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := a.Authenticate(req.Context(), req.Header.Get(HeaderRefreshToken), req.Header.Get(HeaderAccessToken))

			if res.State == service.StateRenewed {
				SetAccessHeaders(c.Response().Header(), res.AccessToken, res.AccessExp)
			}
			if res.Authenticated() {
				setUserContext(c, res.Principal)
			} else {
				clearUserContext(c)
			}
			return next(c)
		}
	}
}
