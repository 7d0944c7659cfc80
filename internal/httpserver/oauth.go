package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/service"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/tokens"
)

const (
	AuthRequestCookie = "oauth2_auth_request"
	authRequestTTL    = 10 * time.Minute
)

// OAuthHTTP runs the authorization code flow. The state and the requested
// redirect uri travel in a short lived token signed by the codec, so no
// server side storage is needed between the two legs.
type OAuthHTTP struct {
	Bridge          *service.OAuthBridge
	Provider        Provider
	Codec           *tokens.Codec
	DefaultRedirect string
	SecureCookie    bool
}

func (h *OAuthHTTP) authRequestCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     AuthRequestCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *OAuthHTTP) Start(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "oauth.start")

	state := uuid.NewString()
	signed, err := h.Codec.Mint("oauth2", tokens.Claims{
		Type: tokens.KindOAuthState,
		Extra: map[string]string{
			"state":        state,
			"redirect_uri": c.QueryParam("redirect_uri"),
		},
	}, authRequestTTL)
	if err != nil {
		l.Error("oauth_start_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot start login")
	}

	c.SetCookie(h.authRequestCookie(signed, int(authRequestTTL.Seconds())))
	return c.Redirect(http.StatusFound, h.Provider.AuthCodeURL(state))
}

func (h *OAuthHTTP) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "oauth.callback")

	if e := c.QueryParam("error"); e != "" {
		l.Warn("oauth_callback_failed", "status", 401, "reason", "provider error", "error", e)
		return echo.NewHTTPError(http.StatusUnauthorized, "login was not completed")
	}

	ck, err := c.Cookie(AuthRequestCookie)
	if err != nil || ck.Value == "" {
		l.Warn("oauth_callback_failed", "status", 400, "reason", "missing auth request cookie")
		return echo.NewHTTPError(http.StatusBadRequest, "missing authorization request")
	}
	claims, err := h.Codec.VerifyKind(ck.Value, tokens.KindOAuthState)
	if err != nil {
		l.Warn("oauth_callback_failed", "status", 400, "reason", tokens.Reason(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid authorization request")
	}
	if state := c.QueryParam("state"); state == "" || state != claims.Extra["state"] {
		l.Warn("oauth_callback_failed", "status", 400, "reason", "state mismatch")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid authorization request")
	}
	code := c.QueryParam("code")
	if code == "" {
		l.Warn("oauth_callback_failed", "status", 400, "reason", "missing code")
		return echo.NewHTTPError(http.StatusBadRequest, "missing authorization code")
	}

	pu, err := h.Provider.UserInfo(ctx, code)
	if err != nil {
		l.Error("oauth_callback_failed", "status", 502, "reason", "provider exchange failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, "cannot complete login with provider")
	}

	redirectURI := claims.Extra["redirect_uri"]
	sess, err := h.Bridge.Complete(ctx, pu, redirectURI)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBadRedirect):
			return echo.NewHTTPError(http.StatusBadRequest, "unauthorized redirect uri")
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrAccountDisabled):
			return echo.NewHTTPError(http.StatusForbidden, "account is not verified")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot complete login")
		}
	}

	writeSession(c, sess)
	c.SetCookie(h.authRequestCookie("", -1))

	if c.Response().Committed {
		l.Debug("response_already_committed")
		return nil
	}

	target := redirectURI
	if target == "" {
		target = h.DefaultRedirect
	}
	return c.Redirect(http.StatusFound, target)
}
