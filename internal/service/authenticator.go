package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/principal"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/tokens"
)

type State int

const (
	// StateAnonymous: no usable refresh token, the request continues unauthenticated.
	StateAnonymous State = iota
	// StateAuthenticated: access token still valid, nothing was persisted.
	StateAuthenticated
	// StateRenewed: access token had expired and a new one was stored and issued.
	StateRenewed
	// StateRejected: the access token was not the one on record, or renewal failed.
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRenewed:
		return "renewed"
	case StateRejected:
		return "rejected"
	default:
		return "anonymous"
	}
}

type Result struct {
	State     State
	Principal principal.Principal

	// Set only when State is StateRenewed.
	AccessToken string
	AccessExp   time.Time
}

func (r Result) Authenticated() bool {
	return r.State == StateAuthenticated || r.State == StateRenewed
}

// Authenticator decides, per request, whether the presented token pair
// identifies a user and silently renews an expired access token.
type Authenticator struct {
	Users UserRepo
	Store RefreshStore
	Codec *tokens.Codec
}

func (a *Authenticator) Authenticate(ctx context.Context, refreshToken, accessToken string) Result {
	l := logging.FromContext(ctx).With("svc", "auth.authenticate")

	if refreshToken == "" || accessToken == "" {
		return Result{State: StateAnonymous}
	}

	claims, err := a.Codec.VerifyKind(refreshToken, tokens.KindRefresh)
	if err != nil {
		l.Warn("refresh_token_not_valid", "reason", tokens.Reason(err))
		return Result{State: StateAnonymous}
	}
	if claims.UserID == 0 || claims.Subject == "" {
		l.Warn("refresh_token_not_valid", "reason", "missing user")
		return Result{State: StateAnonymous}
	}

	p, ok := a.principalFor(ctx, claims)
	if !ok {
		return Result{State: StateAnonymous}
	}

	if !a.Codec.IsExpired(accessToken) {
		return Result{State: StateAuthenticated, Principal: p}
	}

	next, exp, err := a.renew(ctx, claims.UserID, p.Subject, accessToken)
	if err != nil {
		if errors.Is(err, ErrStaleAccessToken) {
			l.Warn("access_token_rejected", "user_id", claims.UserID, "reason", err.Error())
		} else {
			l.Error("access_token_renewal_failed", "user_id", claims.UserID, "error", err)
		}
		return Result{State: StateRejected}
	}

	l.Debug("access_token_renewed", "user_id", claims.UserID)
	return Result{State: StateRenewed, Principal: p, AccessToken: next, AccessExp: exp}
}

func (a *Authenticator) principalFor(ctx context.Context, claims *tokens.Claims) (principal.Principal, bool) {
	if p, ok := principal.FromContext(ctx); ok && p.UserID == claims.UserID {
		return p, true
	}

	l := logging.FromContext(ctx)
	user, err := a.Users.FindUserByLogin(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			l.Error("principal_lookup_failed", "error", err)
		}
		return principal.Principal{}, false
	}
	if user.ID != claims.UserID || !user.Enabled {
		l.Warn("principal_lookup_failed", "reason", "subject does not match an active user", "user_id", claims.UserID)
		return principal.Principal{}, false
	}
	return principal.FromUser(user), true
}

func (a *Authenticator) renew(ctx context.Context, userID uint, subject, presented string) (string, time.Time, error) {
	next, err := a.Codec.MintAccess(subject)
	if err != nil {
		return "", time.Time{}, err
	}

	if err := a.Store.SwapAccessToken(ctx, userID, presented, next); err != nil {
		if errors.Is(err, repo.ErrAccessTokenMismatch) || errors.Is(err, repo.ErrRefreshNotFound) {
			return "", time.Time{}, fmt.Errorf("%w: %v", ErrStaleAccessToken, err)
		}
		return "", time.Time{}, err
	}

	exp, err := a.Codec.ExpirationTime(next)
	if err != nil {
		return "", time.Time{}, err
	}
	return next, exp, nil
}
