package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
)

// ProviderUser holds the attributes read from the identity provider.
type ProviderUser struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Picture       string `json:"picture"`
}

// OAuthBridge turns a completed provider login into a regular session.
type OAuthBridge struct {
	Auth             *AuthService
	Users            UserRepo
	AllowedRedirects []string
}

// Complete loads or creates the user by email, checks the redirect target
// and issues the same token pair a password login would.
func (b *OAuthBridge) Complete(ctx context.Context, pu ProviderUser, redirectURI string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "oauth.complete")

	user, err := b.upsertUser(ctx, pu)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			l.Warn("oauth_login_failed", "status", 400, "reason", err.Error())
		} else {
			l.Error("oauth_login_failed", "status", 500, "reason", "cannot save user", "error", err)
		}
		return nil, err
	}

	if !user.Enabled {
		l.Warn("oauth_login_failed", "status", 403, "reason", "account disabled", "user_id", user.ID)
		return nil, ErrAccountDisabled
	}

	if err := ValidateRedirect(redirectURI, b.AllowedRedirects); err != nil {
		l.Warn("oauth_login_failed", "status", 400, "reason", "unauthorized redirect uri", "redirect_uri", redirectURI)
		return nil, err
	}

	sess, err := b.Auth.IssueSession(ctx, user)
	if err != nil {
		l.Error("oauth_login_failed", "status", 500, "reason", "cannot issue session", "error", err)
		return nil, err
	}
	l.Info("oauth_login_success", "user_id", user.ID)
	return sess, nil
}

func (b *OAuthBridge) upsertUser(ctx context.Context, pu ProviderUser) (*models.User, error) {
	email := strings.TrimSpace(pu.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: provider returned no email", ErrValidation)
	}

	user, err := b.Users.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		// a provider claim may enable an account but never disables one
		changed := false
		if pu.EmailVerified && !user.Enabled {
			user.Enabled = true
			changed = true
		}
		if pu.Picture != "" && pu.Picture != user.AvatarURL {
			user.AvatarURL = pu.Picture
			changed = true
		}
		if changed {
			if err := b.Users.SaveUser(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	user = &models.User{
		Email:     email,
		Role:      models.RoleUser,
		Enabled:   pu.EmailVerified,
		AvatarURL: pu.Picture,
	}
	if err := b.Users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	b.Auth.publish(ctx, "user_created", user)
	return user, nil
}

// ValidateRedirect accepts an empty uri (the caller falls back to its
// default) or one whose host and port match an allowed entry. Host
// comparison ignores case, the port must match exactly and the path is
// not considered.
func ValidateRedirect(redirectURI string, allowed []string) error {
	if redirectURI == "" {
		return nil
	}
	client, err := url.Parse(redirectURI)
	if err != nil || client.Hostname() == "" {
		return ErrBadRedirect
	}

	for _, a := range allowed {
		au, err := url.Parse(strings.TrimSpace(a))
		if err != nil || au.Hostname() == "" {
			continue
		}
		if strings.EqualFold(au.Hostname(), client.Hostname()) && au.Port() == client.Port() {
			return nil
		}
	}
	return ErrBadRedirect
}
