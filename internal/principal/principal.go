// Package principal carries the authenticated caller through a request context.
package principal

import (
	"context"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
)

type Principal struct {
	UserID  uint
	Subject string
	Role    string
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

func FromUser(u *models.User) Principal {
	return Principal{UserID: u.ID, Subject: u.Subject(), Role: u.Role}
}

type ctxKey struct{}

func IntoContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Clear hides any principal set further up the context chain.
func Clear(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, Principal{})
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.UserID != 0
}
