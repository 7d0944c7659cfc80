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

type AuthHTTP struct {
	Svc *service.AuthService
}

func writeSession(c echo.Context, sess *service.Session) {
	authmw.SetSessionHeaders(c.Response().Header(), sess.RefreshToken, sess.RefreshExp, sess.AccessToken, sess.AccessExp)
}

func (h *AuthHTTP) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.signup")

	if _, ok := authmw.Principal(c); ok {
		l.Warn("signup_failed", "status", 403, "reason", "already logged in")
		return echo.NewHTTPError(http.StatusForbidden, "you are not allowed to signup a user")
	}

	var req service.SignupRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("signup_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	sess, err := h.Svc.Signup(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrReservedUsername):
			return echo.NewHTTPError(http.StatusForbidden, "username is reserved")
		case errors.Is(err, service.ErrUserExists):
			return echo.NewHTTPError(http.StatusConflict, "user already exists")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot create user")
		}
	}

	writeSession(c, sess)
	return c.JSON(http.StatusCreated, sess.User)
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_failed", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	sess, err := h.Svc.Login(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot login")
	}

	writeSession(c, sess)
	return c.JSON(http.StatusOK, sess.User)
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	p, _ := authmw.Principal(c)

	if err := h.Svc.Logout(ctx, p.UserID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot logout")
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.me")
	p, _ := authmw.Principal(c)

	user, err := h.Svc.Me(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		l.Error("get_user_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get user")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHTTP) DeleteAccount(c echo.Context) error {
	ctx := c.Request().Context()
	p, _ := authmw.Principal(c)

	if err := h.Svc.DeleteAccount(ctx, p.UserID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot delete user")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHTTP) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.list_users")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	total, users, err := h.Svc.ListUsers(ctx, offset, limit)
	if err != nil {
		l.Error("list_users_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list users")
	}
	return c.JSON(http.StatusOK, transport.NewPage(users, page, offset, limit, total))
}
