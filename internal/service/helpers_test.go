package service

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/db/dbtest"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/repo"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/tokens"
	"github.com/stretchr/testify/require"
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

type publishedEvent struct {
	Topic string
	Key   string
	Event map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, _ := event.(map[string]any)
	p.events = append(p.events, publishedEvent{Topic: topic, Key: key, Event: m})
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event["type"].(string))
	}
	return out
}

type testEnv struct {
	Repo   *repo.GormRepo
	Store  RefreshStore
	Codec  *tokens.Codec
	Clock  *testClock
	Events *recordingPublisher
	Auth   *AuthService
	Authn  *Authenticator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	r := repo.New(dbtest.New(t))
	return newTestEnvWithStore(t, r, r)
}

func newTestEnvWithStore(t *testing.T, r *repo.GormRepo, store RefreshStore) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	codec, err := tokens.NewCodec(tokens.Config{
		Key:    []byte("service-test-key"),
		Now:    clock.Now,
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	require.NoError(t, err)

	events := &recordingPublisher{}
	auth := &AuthService{
		Users:         r,
		Store:         store,
		Codec:         codec,
		Events:        events,
		AdminUsername: "admin",
	}
	return &testEnv{
		Repo:   r,
		Store:  store,
		Codec:  codec,
		Clock:  clock,
		Events: events,
		Auth:   auth,
		Authn:  &Authenticator{Users: r, Store: store, Codec: codec},
	}
}

func (e *testEnv) signup(t *testing.T, username string) *Session {
	t.Helper()
	sess, err := e.Auth.Signup(context.Background(), SignupRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password1",
	})
	require.NoError(t, err)
	return sess
}
