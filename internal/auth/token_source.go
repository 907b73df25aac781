package auth

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// TokenSource adapts the manager to oauth2.TokenSource so API clients pick
// up the stored token, refreshed on demand when close to expiry.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managedTokenSource{ctx: ctx, manager: m}
}

type managedTokenSource struct {
	ctx     context.Context
	manager *Manager
}

func (ts *managedTokenSource) Token() (*oauth2.Token, error) {
	if _, err := ts.manager.CheckAndRefreshToken(ts.ctx); err != nil {
		// keep serving the stored token, the liveness loop will retry
		log.Warnf("auth token source, refresh check: %s", err)
	}

	token, err := ts.manager.tokens.Get(ts.ctx)
	if err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}
