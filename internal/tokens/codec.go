package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Kind string

const (
	KindAccess     Kind = "access"
	KindRefresh    Kind = "refresh"
	KindOAuthState Kind = "oauth_state"
)

const (
	DefaultAccessTTL  = 60 * time.Second
	DefaultRefreshTTL = 21 * 24 * time.Hour
)

// Claims is the payload of every token minted by the codec.
// UserID is only set on refresh tokens.
type Claims struct {
	Type   Kind              `json:"typ"`
	UserID uint              `json:"user_id,omitempty"`
	Extra  map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

type Config struct {
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// Codec signs and verifies HS256 tokens with a single process-wide key.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	log        *slog.Logger
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Key) == 0 {
		return nil, errors.New("tokens: signing key is empty")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("tokens: negative ttl")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	key := make([]byte, len(cfg.Key))
	copy(key, cfg.Key)

	return &Codec{
		key:        key,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
		log:        cfg.Logger.With("component", "tokens"),
	}, nil
}

// DeriveSigningKey turns the configured raw secret into the signing key.
// bcrypt salts the hash, so every process start yields a different key and
// tokens issued before a restart stop verifying.
func DeriveSigningKey(raw string) ([]byte, error) {
	if raw == "" {
		return nil, errors.New("tokens: raw secret is empty")
	}
	// bcrypt only looks at the first 72 bytes
	sum := sha256.Sum256([]byte(raw))
	key, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(sum[:])), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("tokens: derive key: %w", err)
	}
	return key, nil
}

// RefreshTTL also bounds how long a stored refresh record is worth keeping.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// Mint signs a token for subject that expires ttl from now. The expiry is
// rounded up to whole seconds, the resolution of the exp claim.
func (c *Codec) Mint(subject string, claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("tokens: ttl must be positive, got %s", ttl)
	}
	now := c.now()
	exp := now.Add(ttl)
	if t := exp.Truncate(time.Second); !t.Equal(exp) {
		exp = t.Add(time.Second)
	}

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("tokens: sign: %w", err)
	}
	return signed, nil
}

func (c *Codec) MintAccess(subject string) (string, error) {
	return c.Mint(subject, Claims{Type: KindAccess}, c.accessTTL)
}

func (c *Codec) MintRefresh(subject string, userID uint) (string, error) {
	return c.Mint(subject, Claims{Type: KindRefresh, UserID: userID}, c.refreshTTL)
}

// Verify checks signature and expiry. Errors wrap one of ErrExpired,
// ErrMalformed, ErrBadSignature or ErrUnsupported.
func (c *Codec) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.key, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

// VerifyKind is Verify plus a check of the typ claim.
func (c *Codec) VerifyKind(token string, kind Kind) (*Claims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != kind {
		return nil, fmt.Errorf("%w: expected %s token, got %q", ErrUnsupported, kind, claims.Type)
	}
	return claims, nil
}

// IsExpired reports true for any token that does not verify.
func (c *Codec) IsExpired(token string) bool {
	_, err := c.Verify(token)
	if err == nil {
		return false
	}
	// expiry is the normal renewal path, everything else is worth a warning
	if errors.Is(err, ErrExpired) {
		c.log.Debug("token_not_valid", "reason", Reason(err))
	} else {
		c.log.Warn("token_not_valid", "reason", Reason(err), "error", err)
	}
	return true
}

// ExpirationTime must only be called on a token already known to verify.
func (c *Codec) ExpirationTime(token string) (time.Time, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}
