package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/db/dbtest"
	authmw "github.com/DarkDeveloper-Plant/Anbarinoo/internal/middleware/auth"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/service"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/tokens"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeProvider struct {
	user service.ProviderUser
	err  error
	code string
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) UserInfo(_ context.Context, code string) (service.ProviderUser, error) {
	f.code = code
	return f.user, f.err
}

type testEnv struct {
	E        *echo.Echo
	Repo     *repo.GormRepo
	Codec    *tokens.Codec
	Clock    *testClock
	Auth     *service.AuthService
	OAuth    *OAuthHTTP
	Provider *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	r := repo.New(dbtest.New(t))
	clock := &testClock{now: time.Now().Truncate(time.Second)}
	codec, err := tokens.NewCodec(tokens.Config{
		Key:    []byte("http-test-key"),
		Now:    clock.Now,
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	require.NoError(t, err)

	auth := &service.AuthService{Users: r, Store: r, Codec: codec, AdminUsername: "admin"}
	provider := &fakeProvider{}

	oauth := &OAuthHTTP{
		Bridge: &service.OAuthBridge{
			Auth:             auth,
			Users:            r,
			AllowedRedirects: []string{"https://app.example:443", "http://localhost:3000"},
		},
		Provider:        provider,
		Codec:           codec,
		DefaultRedirect: "https://app.example:443/home",
	}

	e := echo.New()
	Register(e, &Deps{
		Auth:    &AuthHTTP{Svc: auth},
		OAuth:   oauth,
		Catalog: &CatalogHTTP{Svc: &service.CatalogService{Repo: r}},
		Ledger:  &LedgerHTTP{Svc: &service.LedgerService{Repo: r}},
		Authn:   &service.Authenticator{Users: r, Store: r, Codec: codec},
	})

	return &testEnv{E: e, Repo: r, Codec: codec, Clock: clock, Auth: auth, OAuth: oauth, Provider: provider}
}

type tokenPair struct {
	Refresh string
	Access  string
}

func (p tokenPair) apply(req *http.Request) {
	if p.Refresh != "" {
		req.Header.Set(authmw.HeaderRefreshToken, p.Refresh)
	}
	if p.Access != "" {
		req.Header.Set(authmw.HeaderAccessToken, p.Access)
	}
}

func (e *testEnv) do(method, target string, body any, tp tokenPair, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	tp.apply(req)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.E.ServeHTTP(rec, req)
	return rec
}

func tokensFrom(t *testing.T, rec *httptest.ResponseRecorder) tokenPair {
	t.Helper()
	tp := tokenPair{
		Refresh: rec.Header().Get(authmw.HeaderRefreshToken),
		Access:  rec.Header().Get(authmw.HeaderAccessToken),
	}
	require.NotEmpty(t, tp.Refresh, "refresh_token header")
	require.NotEmpty(t, tp.Access, "access_token header")
	return tp
}

func (e *testEnv) signup(t *testing.T, username string) tokenPair {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/user/signup", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password1",
	}, tokenPair{})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return tokensFrom(t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func cookieFrom(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if strings.EqualFold(ck.Name, name) {
			return ck
		}
	}
	return nil
}
