package auth

import (
	"net/http"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/principal"
	"github.com/labstack/echo/v4"
)

const (
	HeaderRefreshToken      = "refresh_token"
	HeaderAccessToken       = "access_token"
	HeaderRefreshExpiration = "refresh_expiration"
	HeaderAccessExpiration  = "access_expiration"
)

// ExpiryLayout is understood by the JavaScript Date constructor.
const ExpiryLayout = "Mon Jan 02 2006 15:04:05"

// ExposedHeaders must be listed in the CORS config so browsers can read them.
var ExposedHeaders = []string{
	HeaderRefreshToken,
	HeaderAccessToken,
	HeaderRefreshExpiration,
	HeaderAccessExpiration,
}

func FormatExpiry(t time.Time) string {
	return t.Local().Format(ExpiryLayout)
}

func SetAccessHeaders(h http.Header, token string, exp time.Time) {
	h.Set(HeaderAccessToken, token)
	h.Set(HeaderAccessExpiration, FormatExpiry(exp))
}

func SetSessionHeaders(h http.Header, refresh string, refreshExp time.Time, access string, accessExp time.Time) {
	h.Set(HeaderRefreshToken, refresh)
	h.Set(HeaderRefreshExpiration, FormatExpiry(refreshExp))
	SetAccessHeaders(h, access, accessExp)
}

func setUserContext(c echo.Context, p principal.Principal) {
	c.Set("user_id", p.UserID)
	c.Set("role", p.Role)
	c.SetRequest(c.Request().WithContext(principal.IntoContext(c.Request().Context(), p)))
}

func clearUserContext(c echo.Context) {
	c.Set("user_id", nil)
	c.Set("role", nil)
	c.SetRequest(c.Request().WithContext(principal.Clear(c.Request().Context())))
}

// Principal returns the caller attached by Authenticate.
func Principal(c echo.Context) (principal.Principal, bool) {
	return principal.FromContext(c.Request().Context())
}
