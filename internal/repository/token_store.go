package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/h1bconnect/account-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// TokenStore holds verification and password-reset tokens with their
// payloads. Take is an atomic fetch-and-delete: two concurrent redemptions of
// the same token see exactly one payload. Get reads without consuming, for
// flows that keep the token alive on failure.
type TokenStore interface {
	Put(ctx context.Context, token string, payload domain.TokenPayload, ttl time.Duration) error
	Get(ctx context.Context, token string) (*domain.TokenPayload, error)
	Take(ctx context.Context, token string) (*domain.TokenPayload, error)
	Delete(ctx context.Context, token string) error
}

const tokenKeyPrefix = "auth:token:"

// Records are retained past their logical expiry so an expired token can be
// reported as TOKEN_EXPIRED once before it disappears entirely.
const tokenRetentionGrace = 24 * time.Hour

type redisTokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) TokenStore {
	return &redisTokenStore{client: client}
}

func (s *redisTokenStore) Put(ctx context.Context, token string, payload domain.TokenPayload, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal token payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.client.Set(ctx, tokenKeyPrefix+token, data, ttl+tokenRetentionGrace).Err()
}

func (s *redisTokenStore) Get(ctx context.Context, token string) (*domain.TokenPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	data, err := s.client.Get(ctx, tokenKeyPrefix+token).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalPayload(data)
}

func (s *redisTokenStore) Take(ctx context.Context, token string) (*domain.TokenPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	data, err := s.client.GetDel(ctx, tokenKeyPrefix+token).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalPayload(data)
}

func unmarshalPayload(data string) (*domain.TokenPayload, error) {
	var payload domain.TokenPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token payload: %w", err)
	}
	return &payload, nil
}

func (s *redisTokenStore) Delete(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return s.client.Del(ctx, tokenKeyPrefix+token).Err()
}
