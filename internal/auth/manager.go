package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/2beens/gymsheets/internal/telemetry/metrics"
	"github.com/2beens/gymsheets/internal/telemetry/tracing"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// a token this close to expiry gets refreshed by the liveness check
	refreshAheadWindow = 5 * time.Minute
	// stored expiry = provider-declared expiry minus this margin
	expirySafetyMargin = 2 * time.Minute
	// liveness check cadence
	CheckInterval = time.Minute

	defaultRevokeURL = "https://oauth2.googleapis.com/revoke"
)

type State string

const (
	StateNoToken         State = "no-token"
	StateValid           State = "valid"
	StateNearExpiry      State = "near-expiry"
	StateExpired         State = "expired"
	StateRefreshInFlight State = "refresh-in-flight"
)

// Consumer is the orchestrator-facing side of the manager: sign-in state and
// cache invalidation live with the tracker, not here.
type Consumer interface {
	SetSignedIn(signedIn bool)
	ClearCache(ctx context.Context)
}

// Manager owns the OAuth token lifecycle: periodic liveness checks, silent
// refresh (single-flight), explicit auth-error handling and sign-out.
type Manager struct {
	tokens         *TokenStore
	consumer       Consumer
	oauthCfg       *oauth2.Config
	httpClient     *http.Client
	metricsManager *metrics.Manager
	revokeURL      string

	// concurrent refresh requests collapse into one in-flight attempt
	refreshGroup     singleflight.Group
	refreshsInFlight atomic.Int32

	// injectable for unit and dev testing
	NowFunc     func() time.Time
	RefreshFunc func(ctx context.Context, current Token) (*Token, error)
}

func NewManager(
	tokens *TokenStore,
	consumer Consumer,
	oauthCfg *oauth2.Config,
	httpClient *http.Client,
	metricsManager *metrics.Manager,
) *Manager {
	m := &Manager{
		tokens:         tokens,
		consumer:       consumer,
		oauthCfg:       oauthCfg,
		httpClient:     httpClient,
		metricsManager: metricsManager,
		revokeURL:      defaultRevokeURL,
		NowFunc:        time.Now,
	}
	m.RefreshFunc = m.oauthRefresh
	return m
}

// SetConsumer breaks the construction cycle with the tracker, which needs
// this manager's token source before it can exist itself.
func (m *Manager) SetConsumer(consumer Consumer) {
	m.consumer = consumer
}

// IsAuthenticated is a pure function of the stored token and expiry vs now:
// true iff a token is stored AND now is strictly before its expiry.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	token, err := m.tokens.Get(ctx)
	if err != nil {
		return false
	}
	if token.Expiry.IsZero() {
		return false
	}
	return m.NowFunc().Before(token.Expiry)
}

// GetTimeUntilExpiry returns the remaining token lifetime, negative when the
// token already expired, ErrNoToken when nothing is stored.
func (m *Manager) GetTimeUntilExpiry(ctx context.Context) (time.Duration, error) {
	token, err := m.tokens.Get(ctx)
	if err != nil {
		return 0, err
	}
	return token.Expiry.Sub(m.NowFunc()), nil
}

func (m *Manager) State(ctx context.Context) State {
	if m.refreshsInFlight.Load() > 0 {
		return StateRefreshInFlight
	}

	ttl, err := m.GetTimeUntilExpiry(ctx)
	switch {
	case errors.Is(err, ErrNoToken):
		return StateNoToken
	case err != nil:
		log.Errorf("auth manager, get state: %s", err)
		return StateNoToken
	case ttl <= 0:
		return StateExpired
	case ttl <= refreshAheadWindow:
		return StateNearExpiry
	default:
		return StateValid
	}
}

// CheckAndRefreshToken is the liveness check: idempotent, safe to call
// frequently, a no-op when no token is stored or the token is still fresh.
// Returns whether a refresh was performed.
func (m *Manager) CheckAndRefreshToken(ctx context.Context) (_ bool, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.manager.checkAndRefresh")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	token, err := m.tokens.Get(ctx)
	if errors.Is(err, ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if token.Expiry.Sub(m.NowFunc()) > refreshAheadWindow {
		return false, nil
	}

	if err := m.RefreshToken(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RefreshToken performs a silent token refresh. Concurrent callers share the
// single in-flight attempt and its result. A failed refresh does NOT clear
// the stored token - the next liveness check will retry; explicit
// provider-reported invalidation goes through HandleAuthError instead.
func (m *Manager) RefreshToken(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.manager.refreshToken")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	_, err, _ = m.refreshGroup.Do("token-refresh", func() (interface{}, error) {
		m.refreshsInFlight.Add(1)
		defer m.refreshsInFlight.Add(-1)

		current, err := m.tokens.Get(ctx)
		if err != nil {
			return nil, err
		}

		newToken, err := m.RefreshFunc(ctx, *current)
		if err != nil {
			m.countRefresh("failure")
			log.Errorf("auth manager, token refresh: %s", err)
			return nil, fmt.Errorf("token refresh: %w", err)
		}

		// expiry = issue time + (declared lifetime - safety margin)
		newToken.Expiry = newToken.Expiry.Add(-expirySafetyMargin)
		if newToken.RefreshToken == "" {
			newToken.RefreshToken = current.RefreshToken
		}

		if err := m.tokens.Set(ctx, *newToken); err != nil {
			m.countRefresh("failure")
			return nil, fmt.Errorf("store refreshed token: %w", err)
		}

		m.countRefresh("success")
		log.Debugf("auth manager, token refreshed, new expiry: %s", newToken.Expiry)
		return newToken, nil
	})

	return err
}

// HandleAuthError handles an explicit provider-reported token invalidation:
// unlike a transient refresh failure, this clears the stored token and resets
// the consumer's signed-in flag.
func (m *Manager) HandleAuthError(ctx context.Context) {
	log.Warnln("auth manager, handling explicit auth error, clearing token")
	if err := m.tokens.Clear(ctx); err != nil {
		log.Errorf("auth manager, clear token: %s", err)
	}
	m.consumer.SetSignedIn(false)
}

// SignOut revokes the remote token (best effort), clears the persisted token
// and all cache entries, and resets the consumer's signed-in flag.
func (m *Manager) SignOut(ctx context.Context) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.manager.signOut")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	token, err := m.tokens.Get(ctx)
	if err == nil {
		if revokeErr := m.revoke(ctx, token.AccessToken); revokeErr != nil {
			log.Warnf("auth manager, revoke token: %s", revokeErr)
		}
	}

	if err := m.tokens.Clear(ctx); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}

	m.consumer.ClearCache(ctx)
	m.consumer.SetSignedIn(false)

	return nil
}

// AuthCodeURL returns the interactive consent URL for the first sign-in.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauthCfg.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades the authorization code for a token, persists it and flips
// the consumer to signed-in.
func (m *Manager) Exchange(ctx context.Context, code string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.manager.exchange")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	oauthToken, err := m.oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange auth code: %w", err)
	}

	token := Token{
		AccessToken:  oauthToken.AccessToken,
		RefreshToken: oauthToken.RefreshToken,
		Expiry:       oauthToken.Expiry.Add(-expirySafetyMargin),
	}
	if err := m.tokens.Set(ctx, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	m.consumer.SetSignedIn(true)
	return nil
}

// StartLivenessLoop polls the token state every CheckInterval until the
// context is cancelled. Refresh errors are logged and retried on the next
// tick, they never kill the loop.
func (m *Manager) StartLivenessLoop(ctx context.Context) {
	ticker := time.NewTicker(CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debugln("auth manager, liveness loop stopped")
			return
		case <-ticker.C:
			if _, err := m.CheckAndRefreshToken(ctx); err != nil {
				log.Errorf("auth manager, liveness check: %s", err)
			}
		}
	}
}

// Resume runs an immediate liveness check, the tab-visibility-regain analog:
// called when connectivity comes back or a client explicitly pings.
func (m *Manager) Resume(ctx context.Context) {
	if _, err := m.CheckAndRefreshToken(ctx); err != nil {
		log.Errorf("auth manager, resume check: %s", err)
	}
}

// oauthRefresh is the default RefreshFunc: a refresh-token grant against the
// configured provider.
func (m *Manager) oauthRefresh(ctx context.Context, current Token) (*Token, error) {
	if current.RefreshToken == "" {
		return nil, errors.New("no refresh token available")
	}

	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	tokenSource := m.oauthCfg.TokenSource(ctx, &oauth2.Token{
		RefreshToken: current.RefreshToken,
	})
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, err
	}

	return &Token{
		AccessToken:  newToken.AccessToken,
		RefreshToken: newToken.RefreshToken,
		Expiry:       newToken.Expiry,
	}, nil
}

func (m *Manager) revoke(ctx context.Context, accessToken string) error {
	body := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		m.revokeURL,
		strings.NewReader(body.Encode()),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := m.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke endpoint returned: %s", resp.Status)
	}
	return nil
}

func (m *Manager) countRefresh(result string) {
	if m.metricsManager == nil {
		return
	}
	m.metricsManager.CounterTokenRefresh.With(prometheus.Labels{"result": result}).Inc()
}
