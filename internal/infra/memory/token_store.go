package memory

import (
	"context"
	"sync"
	"time"

	"medquiz-service/internal/domain"
)

// TokenStore is an in-memory implementation of app.TokenStore. Expired tokens read as missing.
type TokenStore struct {
	clock func() time.Time

	mu     sync.Mutex
	tokens map[string]domain.Handshake
}

func NewTokenStore() *TokenStore {
	return NewTokenStoreWithClock(time.Now)
}

func NewTokenStoreWithClock(clock func() time.Time) *TokenStore {
	return &TokenStore{clock: clock, tokens: make(map[string]domain.Handshake)}
}

func (s *TokenStore) Save(_ context.Context, h domain.Handshake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.tokens[h.Token] = h
	return nil
}

func (s *TokenStore) Get(_ context.Context, token string) (domain.Handshake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(token)
}

func (s *TokenStore) Claim(_ context.Context, token string, externalID int64) (domain.Handshake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.liveLocked(token)
	if err != nil {
		return domain.Handshake{}, err
	}
	if h.Claimed() && h.ExternalID != externalID {
		return domain.Handshake{}, domain.ErrHandshakeClaimed
	}
	h.ExternalID = externalID
	s.tokens[token] = h
	return h, nil
}

func (s *TokenStore) Consume(_ context.Context, token string) (domain.Handshake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.liveLocked(token)
	delete(s.tokens, token)
	return h, err
}

func (s *TokenStore) liveLocked(token string) (domain.Handshake, error) {
	h, ok := s.tokens[token]
	if !ok {
		return domain.Handshake{}, domain.ErrHandshakeNotFound
	}
	if !h.ExpiresAt.IsZero() && !s.clock().Before(h.ExpiresAt) {
		delete(s.tokens, token)
		return domain.Handshake{}, domain.ErrHandshakeNotFound
	}
	return h, nil
}

func (s *TokenStore) purgeLocked() {
	now := s.clock()
	for token, h := range s.tokens {
		if !h.ExpiresAt.IsZero() && !now.Before(h.ExpiresAt) {
			delete(s.tokens, token)
		}
	}
}
