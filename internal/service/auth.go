package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/hash"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/logging"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/tokens"
)

const UserEventsTopic = "user_events"

const minPasswordLen = 6

type AuthService struct {
	Users  UserRepo
	Store  RefreshStore
	Codec  *tokens.Codec
	Events Publisher
	// Index, when set, is cleared of the user's products on account deletion.
	Index ProductIndex

	// AdminUsername can only be taken by EnsureAdmin.
	AdminUsername string
}

// Session is the outcome of a successful login. The tokens are handed to
// the client in response headers only.
type Session struct {
	User         *models.User
	RefreshToken string
	AccessToken  string
	RefreshExp   time.Time
	AccessExp    time.Time
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r SignupRequest) validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if strings.ContainsAny(r.Username, " @\t\n") {
		return fmt.Errorf("%w: username must not contain spaces or @", ErrValidation)
	}
	addr, err := mail.ParseAddress(r.Email)
	if err != nil || addr.Address != r.Email {
		return fmt.Errorf("%w: email is not valid", ErrValidation)
	}
	if len(r.Password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLen)
	}
	return nil
}

func (s *AuthService) Login(ctx context.Context, login, password string) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	user, err := s.Users.FindUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "user not found")
			return nil, ErrInvalidCredentials
		}
		l.Error("login_failed", "status", 500, "reason", "cannot load user", "error", err)
		return nil, err
	}
	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if !user.Enabled {
		l.Warn("login_failed", "status", 401, "reason", "account disabled", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	sess, err := s.IssueSession(ctx, user)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot issue session", "error", err)
		return nil, err
	}
	l.Info("login_success", "user_id", user.ID)
	return sess, nil
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "auth.signup")

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := req.validate(); err != nil {
		l.Warn("signup_failed", "status", 400, "reason", err.Error())
		return nil, err
	}
	if s.AdminUsername != "" && strings.EqualFold(req.Username, s.AdminUsername) {
		l.Warn("signup_failed", "status", 403, "reason", "reserved username")
		return nil, ErrReservedUsername
	}

	exists, err := s.Users.UserExists(ctx, req.Username, req.Email)
	if err != nil {
		l.Error("signup_failed", "status", 500, "reason", "cannot check user", "error", err)
		return nil, err
	}
	if exists {
		l.Warn("signup_failed", "status", 409, "reason", "user already exists")
		return nil, ErrUserExists
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("signup_failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	username := req.Username
	user := &models.User{
		Username:     &username,
		Email:        req.Email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
		Enabled:      true,
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Warn("signup_failed", "status", 409, "reason", "user already exists")
			return nil, ErrUserExists
		}
		l.Error("signup_failed", "status", 500, "reason", "cannot create user", "error", err)
		return nil, err
	}

	s.publish(ctx, "user_created", user)

	sess, err := s.IssueSession(ctx, user)
	if err != nil {
		l.Error("signup_failed", "status", 500, "reason", "cannot issue session", "error", err)
		return nil, err
	}
	l.Info("signup_success", "user_id", user.ID)
	return sess, nil
}

// IssueSession mints a refresh and an access token for user and stores the
// access token as the one the next renewal must present.
func (s *AuthService) IssueSession(ctx context.Context, user *models.User) (*Session, error) {
	subject := user.Subject()

	refresh, err := s.Codec.MintRefresh(subject, user.ID)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}
	access, err := s.Codec.MintAccess(subject)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	if err := s.Store.PutRefresh(ctx, &models.RefreshRecord{UserID: user.ID, AccessToken: access}); err != nil {
		return nil, err
	}

	refreshExp, err := s.Codec.ExpirationTime(refresh)
	if err != nil {
		return nil, err
	}
	accessExp, err := s.Codec.ExpirationTime(access)
	if err != nil {
		return nil, err
	}

	return &Session{
		User:         user,
		RefreshToken: refresh,
		AccessToken:  access,
		RefreshExp:   refreshExp,
		AccessExp:    accessExp,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout")
	if err := s.Store.DeleteRefreshByUserID(ctx, userID); err != nil {
		l.Error("logout_failed", "status", 500, "user_id", userID, "error", err)
		return err
	}
	l.Info("logout_success", "user_id", userID)
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.Users.GetUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

func (s *AuthService) ListUsers(ctx context.Context, offset, limit int) (int64, []models.User, error) {
	return s.Users.ListUsers(ctx, offset, limit)
}

// DeleteAccount drops the refresh record first so the account cannot renew
// while the rest of its data is being removed.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uint) error {
	l := logging.FromContext(ctx).With("svc", "auth.delete_account")

	if err := s.Store.DeleteRefreshByUserID(ctx, userID); err != nil {
		l.Error("delete_account_failed", "status", 500, "reason", "cannot delete refresh record", "error", err)
		return err
	}
	if err := s.Users.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		l.Error("delete_account_failed", "status", 500, "reason", "cannot delete user", "error", err)
		return err
	}

	if s.Index != nil {
		if err := s.Index.DeleteUserProducts(ctx, userID); err != nil {
			l.Error("index_delete_failed", "user_id", userID, "error", err)
		}
	}

	s.publish(ctx, "user_deleted", &models.User{ID: userID})
	l.Info("delete_account_success", "user_id", userID)
	return nil
}

// EnsureAdmin creates the admin account on first start and promotes an
// existing account with the same name. Empty credentials skip seeding.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	l := logging.FromContext(ctx).With("svc", "auth.ensure_admin")
	if username == "" || password == "" {
		l.Info("admin_seed_skipped")
		return nil
	}
	if email == "" {
		email = username + "@localhost"
	}

	user, err := s.Users.FindUserByLogin(ctx, username)
	switch {
	case err == nil:
		if user.Role == models.RoleAdmin && user.Enabled {
			return nil
		}
		user.Role = models.RoleAdmin
		user.Enabled = true
		if err := s.Users.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("promote admin: %w", err)
		}
		l.Info("admin_promoted", "user_id", user.ID)
		return nil
	case !errors.Is(err, repo.ErrNotFound):
		return fmt.Errorf("load admin: %w", err)
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	name := username
	admin := &models.User{
		Username:     &name,
		Email:        email,
		PasswordHash: pwHash,
		Role:         models.RoleAdmin,
		Enabled:      true,
	}
	if err := s.Users.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	l.Info("admin_created", "user_id", admin.ID)
	return nil
}

func (s *AuthService) publish(ctx context.Context, kind string, user *models.User) {
	if s.Events == nil {
		return
	}
	event := map[string]any{
		"type":   kind,
		"userID": user.ID,
	}
	if user.Email != "" {
		event["email"] = user.Email
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(ctx, UserEventsTopic, fmt.Sprint(user.ID), event); err != nil {
		logging.FromContext(ctx).Error("publish_failed", "topic", UserEventsTopic, "type", kind, "error", err)
	}
}
