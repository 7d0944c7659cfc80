package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/service"
)

// Provider is the identity provider side of the login flow.
type Provider interface {
	AuthCodeURL(state string) string
	UserInfo(ctx context.Context, code string) (service.ProviderUser, error)
}

// OAuth2Provider talks to any OpenID style provider exposing a userinfo
// endpoint with email, email_verified and picture.
type OAuth2Provider struct {
	Config      *oauth2.Config
	UserInfoURL string
}

func NewOAuth2Provider(clientID, clientSecret, authURL, tokenURL, userInfoURL, redirectURL string, scopes []string) *OAuth2Provider {
	return &OAuth2Provider{
		Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  authURL,
				TokenURL: tokenURL,
			},
			RedirectURL: redirectURL,
			Scopes:      scopes,
		},
		UserInfoURL: userInfoURL,
	}
}

func (p *OAuth2Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *OAuth2Provider) UserInfo(ctx context.Context, code string) (service.ProviderUser, error) {
	tok, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return service.ProviderUser{}, fmt.Errorf("oauth2: exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return service.ProviderUser{}, err
	}
	res, err := p.Config.Client(ctx, tok).Do(req)
	if err != nil {
		return service.ProviderUser{}, fmt.Errorf("oauth2: userinfo: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return service.ProviderUser{}, fmt.Errorf("oauth2: userinfo: %s: %s", res.Status, body)
	}

	var pu service.ProviderUser
	if err := json.NewDecoder(res.Body).Decode(&pu); err != nil {
		return service.ProviderUser{}, fmt.Errorf("oauth2: decode userinfo: %w", err)
	}
	return pu, nil
}
