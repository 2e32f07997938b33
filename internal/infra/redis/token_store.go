package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medquiz-service/internal/domain"
)

const maxClaimAttempts = 5

// TokenStore keeps handshake tokens as JSON values with a Redis TTL.
// Consume uses GETDEL so a token can be redeemed once across instances.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
	clock  func() time.Time
}

func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl, clock: time.Now}
}

func (s *TokenStore) Save(ctx context.Context, h domain.Handshake) error {
	ttl := s.ttl
	if !h.ExpiresAt.IsZero() {
		ttl = h.ExpiresAt.Sub(s.clock())
	}
	if ttl <= 0 {
		return fmt.Errorf("save handshake: token already expired")
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encode handshake: %w", err)
	}
	return s.client.Set(ctx, s.key(h.Token), raw, ttl).Err()
}

func (s *TokenStore) Get(ctx context.Context, token string) (domain.Handshake, error) {
	raw, err := s.client.Get(ctx, s.key(token)).Bytes()
	return decode(raw, err)
}

// Claim is a WATCH/MULTI compare-and-set, retried when another writer touches the key first.
func (s *TokenStore) Claim(ctx context.Context, token string, externalID int64) (domain.Handshake, error) {
	key := s.key(token)
	var claimed domain.Handshake
	claim := func(tx *redis.Tx) error {
		h, err := decode(tx.Get(ctx, key).Bytes())
		if err != nil {
			return err
		}
		if h.Claimed() && h.ExternalID != externalID {
			return domain.ErrHandshakeClaimed
		}
		h.ExternalID = externalID
		raw, err := json.Marshal(h)
		if err != nil {
			return fmt.Errorf("encode handshake: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			// XX: never resurrect a token that expired or was consumed meanwhile
			p.SetArgs(ctx, key, raw, redis.SetArgs{Mode: "XX", KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		claimed = h
		return nil
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		err := s.client.Watch(ctx, claim, key)
		switch {
		case err == nil:
			return claimed, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil):
			return domain.Handshake{}, domain.ErrHandshakeNotFound
		default:
			return domain.Handshake{}, err
		}
	}
	return domain.Handshake{}, fmt.Errorf("claim handshake: %w", redis.TxFailedErr)
}

func (s *TokenStore) Consume(ctx context.Context, token string) (domain.Handshake, error) {
	raw, err := s.client.GetDel(ctx, s.key(token)).Bytes()
	return decode(raw, err)
}

func (s *TokenStore) key(token string) string {
	return "quiz:handshake:" + token
}

func decode(raw []byte, err error) (domain.Handshake, error) {
	if errors.Is(err, redis.Nil) {
		return domain.Handshake{}, domain.ErrHandshakeNotFound
	}
	if err != nil {
		return domain.Handshake{}, err
	}
	var h domain.Handshake
	if err := json.Unmarshal(raw, &h); err != nil {
		return domain.Handshake{}, fmt.Errorf("decode handshake: %w", err)
	}
	return h, nil
}
