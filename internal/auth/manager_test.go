package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/2beens/gymsheets/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type testConsumer struct {
	mu           sync.Mutex
	signedIn     bool
	cacheCleared bool
}

func (c *testConsumer) SetSignedIn(signedIn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signedIn = signedIn
}

func (c *testConsumer) ClearCache(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheCleared = true
}

func newTestManager(t *testing.T) (*Manager, *TokenStore, *testConsumer) {
	t.Helper()
	tokens := NewTokenStore(store.NewMemoryStore())
	consumer := &testConsumer{signedIn: true}
	m := NewManager(tokens, consumer, &oauth2.Config{}, nil, nil)
	return m, tokens, consumer
}

func TestManager_IsAuthenticated(t *testing.T) {
	ctx := context.Background()
	m, tokens, _ := newTestManager(t)

	now := time.Now()
	m.NowFunc = func() time.Time { return now }

	// no token stored
	assert.False(t, m.IsAuthenticated(ctx))

	// valid token
	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      now.Add(10 * time.Minute),
	}))
	assert.True(t, m.IsAuthenticated(ctx))

	// boundary: now == expiry means NOT authenticated
	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      now,
	}))
	assert.False(t, m.IsAuthenticated(ctx))

	// expired token
	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      now.Add(-time.Second),
	}))
	assert.False(t, m.IsAuthenticated(ctx))

	// token without expiry
	require.NoError(t, tokens.Set(ctx, Token{AccessToken: "token-1"}))
	assert.False(t, m.IsAuthenticated(ctx))
}

func TestManager_State(t *testing.T) {
	ctx := context.Background()
	m, tokens, _ := newTestManager(t)

	now := time.Now()
	m.NowFunc = func() time.Time { return now }

	assert.Equal(t, StateNoToken, m.State(ctx))

	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      now.Add(time.Hour),
	}))
	assert.Equal(t, StateValid, m.State(ctx))

	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      now.Add(4 * time.Minute),
	}))
	assert.Equal(t, StateNearExpiry, m.State(ctx))

	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      now.Add(-time.Minute),
	}))
	assert.Equal(t, StateExpired, m.State(ctx))
}

func TestManager_CheckAndRefreshToken_NoToken(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	refreshCalls := 0
	m.RefreshFunc = func(_ context.Context, _ Token) (*Token, error) {
		refreshCalls++
		return nil, errors.New("should not be called")
	}

	refreshed, err := m.CheckAndRefreshToken(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Zero(t, refreshCalls)
}

func TestManager_CheckAndRefreshToken_FreshToken(t *testing.T) {
	ctx := context.Background()
	m, tokens, _ := newTestManager(t)

	now := time.Now()
	m.NowFunc = func() time.Time { return now }

	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      now.Add(time.Hour),
	}))

	refreshCalls := 0
	m.RefreshFunc = func(_ context.Context, _ Token) (*Token, error) {
		refreshCalls++
		return nil, errors.New("should not be called")
	}

	refreshed, err := m.CheckAndRefreshToken(ctx)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Zero(t, refreshCalls)
}

func TestManager_CheckAndRefreshToken_NearExpiry(t *testing.T) {
	ctx := context.Background()
	m, tokens, _ := newTestManager(t)

	now := time.Now()
	m.NowFunc = func() time.Time { return now }

	// 4 minutes until expiry -> within the refresh window
	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken:  "token-1",
		RefreshToken: "refresh-1",
		Expiry:       now.Add(4 * time.Minute),
	}))

	refreshCalls := 0
	m.RefreshFunc = func(_ context.Context, current Token) (*Token, error) {
		refreshCalls++
		assert.Equal(t, "token-1", current.AccessToken)
		return &Token{
			AccessToken: "token-2",
			Expiry:      now.Add(time.Hour),
		}, nil
	}

	refreshed, err := m.CheckAndRefreshToken(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 1, refreshCalls)

	stored, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-2", stored.AccessToken)
	// refresh token carried over from the previous token
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	// stored expiry = declared expiry minus the safety margin
	assert.Equal(t, now.Add(time.Hour).Add(-2*time.Minute).Unix(), stored.Expiry.Unix())
}

func TestManager_RefreshToken_SingleFlight(t *testing.T) {
	ctx := context.Background()
	m, tokens, _ := newTestManager(t)

	now := time.Now()
	m.NowFunc = func() time.Time { return now }

	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken:  "token-1",
		RefreshToken: "refresh-1",
		Expiry:       now.Add(time.Minute),
	}))

	var mu sync.Mutex
	refreshCalls := 0
	refreshStarted := make(chan struct{})
	releaseRefresh := make(chan struct{})
	m.RefreshFunc = func(_ context.Context, _ Token) (*Token, error) {
		mu.Lock()
		refreshCalls++
		mu.Unlock()
		close(refreshStarted)
		<-releaseRefresh
		return &Token{
			AccessToken: "token-2",
			Expiry:      now.Add(time.Hour),
		}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, m.RefreshToken(ctx))
	}()

	<-refreshStarted
	assert.Equal(t, StateRefreshInFlight, m.State(ctx))

	// late callers attach to the in-flight refresh instead of starting another
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, m.RefreshToken(ctx))
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(releaseRefresh)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, refreshCalls)
}

func TestManager_RefreshToken_FailureKeepsToken(t *testing.T) {
	ctx := context.Background()
	m, tokens, consumer := newTestManager(t)

	now := time.Now()
	m.NowFunc = func() time.Time { return now }

	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken:  "token-1",
		RefreshToken: "refresh-1",
		Expiry:       now.Add(time.Minute),
	}))

	m.RefreshFunc = func(_ context.Context, _ Token) (*Token, error) {
		return nil, errors.New("provider unreachable")
	}

	require.Error(t, m.RefreshToken(ctx))

	// a mere refresh failure does not clear the stored token
	stored, err := tokens.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-1", stored.AccessToken)
	assert.True(t, consumer.signedIn)
}

func TestManager_HandleAuthError(t *testing.T) {
	ctx := context.Background()
	m, tokens, consumer := newTestManager(t)

	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      time.Now().Add(time.Hour),
	}))

	m.HandleAuthError(ctx)

	_, err := tokens.Get(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, consumer.signedIn)
}

func TestManager_SignOut(t *testing.T) {
	ctx := context.Background()
	m, tokens, consumer := newTestManager(t)

	revokeCalled := false
	revokeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		revokeCalled = true
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "token-1", r.Form.Get("token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer revokeServer.Close()
	m.revokeURL = revokeServer.URL

	require.NoError(t, tokens.Set(ctx, Token{
		AccessToken: "token-1",
		Expiry:      time.Now().Add(time.Hour),
	}))

	require.NoError(t, m.SignOut(ctx))

	assert.True(t, revokeCalled)
	_, err := tokens.Get(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
	assert.False(t, consumer.signedIn)
	assert.True(t, consumer.cacheCleared)
}
