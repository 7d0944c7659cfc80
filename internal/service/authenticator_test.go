package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/db/dbtest"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/principal"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/tokens"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_Anonymous(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sess := env.signup(t, "alice")
	ctx := context.Background()

	accessAsRefresh, err := env.Codec.MintAccess("alice")
	require.NoError(t, err)
	orphan, err := env.Codec.MintRefresh("ghost", 999)
	require.NoError(t, err)
	wrongUser, err := env.Codec.MintRefresh("alice", sess.User.ID+1)
	require.NoError(t, err)

	tests := []struct {
		name    string
		refresh string
		access  string
	}{
		{name: "no headers"},
		{name: "no access token", refresh: sess.RefreshToken},
		{name: "no refresh token", access: sess.AccessToken},
		{name: "garbage refresh", refresh: "garbage", access: sess.AccessToken},
		{name: "access token as refresh", refresh: accessAsRefresh, access: sess.AccessToken},
		{name: "unknown user", refresh: orphan, access: sess.AccessToken},
		{name: "subject and id disagree", refresh: wrongUser, access: sess.AccessToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.Authn.Authenticate(ctx, tt.refresh, tt.access)
			assert.Equal(t, StateAnonymous, res.State)
			assert.False(t, res.Authenticated())
			assert.Zero(t, res.Principal)
		})
	}
}

func TestAuthenticator_ValidAccessIsNoOp(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sess := env.signup(t, "bob")
	ctx := context.Background()

	before, err := env.Store.GetRefresh(ctx, sess.User.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res := env.Authn.Authenticate(ctx, sess.RefreshToken, sess.AccessToken)
		require.Equal(t, StateAuthenticated, res.State)
		assert.Equal(t, principal.Principal{UserID: sess.User.ID, Subject: "bob", Role: "user"}, res.Principal)
		assert.Empty(t, res.AccessToken)
	}

	after, err := env.Store.GetRefresh(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, before.AccessToken, after.AccessToken)
}

func TestAuthenticator_RenewsExpiredAccess(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sess := env.signup(t, "carol")
	ctx := context.Background()

	env.Clock.Advance(tokens.DefaultAccessTTL + time.Second)
	require.True(t, env.Codec.IsExpired(sess.AccessToken))

	res := env.Authn.Authenticate(ctx, sess.RefreshToken, sess.AccessToken)
	require.Equal(t, StateRenewed, res.State)
	assert.Equal(t, sess.User.ID, res.Principal.UserID)
	require.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, sess.AccessToken, res.AccessToken)
	assert.True(t, res.AccessExp.Equal(env.Clock.Now().Add(tokens.DefaultAccessTTL)))

	claims, err := env.Codec.VerifyKind(res.AccessToken, tokens.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "carol", claims.Subject)

	rec, err := env.Store.GetRefresh(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, res.AccessToken, rec.AccessToken)

	// the renewed token is accepted as is
	again := env.Authn.Authenticate(ctx, sess.RefreshToken, res.AccessToken)
	assert.Equal(t, StateAuthenticated, again.State)
}

// failingSwapStore behaves like the wrapped store except that renewal fails.
type failingSwapStore struct {
	RefreshStore
	err error
}

func (s failingSwapStore) SwapAccessToken(context.Context, uint, string, string) error {
	return s.err
}

func TestAuthenticator_RenewalStoreFailureIsRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{name: "io error", err: io.ErrUnexpectedEOF},
		{name: "deadline", err: context.DeadlineExceeded},
		{name: "wrapped driver error", err: fmt.Errorf("update refresh record: %w", errors.New("connection reset by peer"))},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			sess := env.signup(t, "uma")
			ctx := context.Background()
			authn := &Authenticator{Users: env.Repo, Store: failingSwapStore{RefreshStore: env.Store, err: tt.err}, Codec: env.Codec}

			env.Clock.Advance(tokens.DefaultAccessTTL + time.Second)

			var res Result
			require.NotPanics(t, func() { res = authn.Authenticate(ctx, sess.RefreshToken, sess.AccessToken) })
			assert.Equal(t, StateRejected, res.State)
			assert.False(t, res.Authenticated())
			assert.Zero(t, res.Principal)
			assert.Empty(t, res.AccessToken)
			assert.True(t, res.AccessExp.IsZero())

			rec, err := env.Store.GetRefresh(ctx, sess.User.ID)
			require.NoError(t, err)
			assert.Equal(t, sess.AccessToken, rec.AccessToken)
		})
	}
}

func TestAuthenticator_ReplayIsRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sess := env.signup(t, "dave")
	ctx := context.Background()

	env.Clock.Advance(2 * tokens.DefaultAccessTTL)
	first := env.Authn.Authenticate(ctx, sess.RefreshToken, sess.AccessToken)
	require.Equal(t, StateRenewed, first.State)

	replay := env.Authn.Authenticate(ctx, sess.RefreshToken, sess.AccessToken)
	assert.Equal(t, StateRejected, replay.State)
	assert.Zero(t, replay.Principal)
	assert.Empty(t, replay.AccessToken)

	rec, err := env.Store.GetRefresh(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, first.AccessToken, rec.AccessToken, "replay must not touch the stored token")
}

func TestAuthenticator_ForgedAccessIsRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sess := env.signup(t, "erin")

	res := env.Authn.Authenticate(context.Background(), sess.RefreshToken, "forged.access.token")
	assert.Equal(t, StateRejected, res.State)
}

func TestAuthenticator_AfterLogoutIsRejected(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sess := env.signup(t, "frank")
	ctx := context.Background()

	require.NoError(t, env.Auth.Logout(ctx, sess.User.ID))
	env.Clock.Advance(2 * tokens.DefaultAccessTTL)

	res := env.Authn.Authenticate(ctx, sess.RefreshToken, sess.AccessToken)
	assert.Equal(t, StateRejected, res.State)
}

func TestAuthenticator_ExpiredRefreshIsAnonymous(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sess := env.signup(t, "gina")

	env.Clock.Advance(tokens.DefaultRefreshTTL + time.Second)
	res := env.Authn.Authenticate(context.Background(), sess.RefreshToken, sess.AccessToken)
	assert.Equal(t, StateAnonymous, res.State)
}

func TestAuthenticator_UsesPrincipalFromContext(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	sess := env.signup(t, "hank")
	ctx := context.Background()

	// remove the user row but keep the principal in context; no lookup happens
	require.NoError(t, env.Repo.DB.Exec("DELETE FROM users WHERE id = ?", sess.User.ID).Error)

	pre := principal.Principal{UserID: sess.User.ID, Subject: "hank", Role: "user"}
	res := env.Authn.Authenticate(principal.IntoContext(ctx, pre), sess.RefreshToken, sess.AccessToken)
	assert.Equal(t, StateAuthenticated, res.State)
	assert.Equal(t, pre, res.Principal)

	res = env.Authn.Authenticate(ctx, sess.RefreshToken, sess.AccessToken)
	assert.Equal(t, StateAnonymous, res.State)
}

func testConcurrentRenewal(t *testing.T, env *testEnv) {
	t.Helper()

	sess := env.signup(t, "racer")
	ctx := context.Background()
	env.Clock.Advance(2 * tokens.DefaultAccessTTL)

	const workers = 12
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]Result, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = env.Authn.Authenticate(ctx, sess.RefreshToken, sess.AccessToken)
		}(i)
	}
	close(start)
	wg.Wait()

	var winner *Result
	for i := range results {
		switch results[i].State {
		case StateRenewed:
			require.Nil(t, winner, "more than one renewal succeeded")
			winner = &results[i]
		case StateRejected:
		default:
			t.Fatalf("unexpected state %s", results[i].State)
		}
	}
	require.NotNil(t, winner)

	rec, err := env.Store.GetRefresh(ctx, sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, winner.AccessToken, rec.AccessToken)
}

func TestAuthenticator_ConcurrentRenewal_Gorm(t *testing.T) {
	t.Parallel()
	testConcurrentRenewal(t, newTestEnv(t))
}

func TestAuthenticator_ConcurrentRenewal_Redis(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	r := repo.New(dbtest.New(t))
	store := repo.NewRedisRefreshStore(rdb, "refresh", tokens.DefaultRefreshTTL)
	testConcurrentRenewal(t, newTestEnvWithStore(t, r, store))
}
