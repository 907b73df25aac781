package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/gymsheets/internal/store"
)

const tokenStoreKey = "gymsheets-auth||token"

var ErrNoToken = errors.New("no token stored")

// Token is the single active access token of the browser profile analog:
// one token per service instance, no rotation history kept.
type Token struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// TokenStore persists the token in the local store. No logic beyond
// read / write / clear.
type TokenStore struct {
	kv store.KVStore
}

func NewTokenStore(kv store.KVStore) *TokenStore {
	return &TokenStore{
		kv: kv,
	}
}

func (ts *TokenStore) Get(ctx context.Context) (*Token, error) {
	raw, err := ts.kv.Get(ctx, tokenStoreKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	var token Token
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return nil, fmt.Errorf("unmarshal token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, ErrNoToken
	}

	return &token, nil
}

func (ts *TokenStore) Set(ctx context.Context, token Token) error {
	tokenJson, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := ts.kv.Set(ctx, tokenStoreKey, string(tokenJson)); err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}

func (ts *TokenStore) Clear(ctx context.Context) error {
	return ts.kv.Delete(ctx, tokenStoreKey)
}
