package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records, per subject, the instant before which all issued
// credentials are considered revoked.
type RevocationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRevocationStore returns a store backed by client. Entries live for ttl,
// after which every credential they could affect has expired anyway.
func NewRevocationStore(client *redis.Client, ttl time.Duration) *RevocationStore {
	return &RevocationStore{client: client, ttl: ttl}
}

func revocationKey(uid string) string {
	return "revoked:" + uid
}

// Revoke invalidates every credential of uid issued at or before at.
func (s *RevocationStore) Revoke(ctx context.Context, uid string, at time.Time) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Set(ctx, revocationKey(uid), at.UnixMilli(), s.ttl).Err(); err != nil {
		return fmt.Errorf("identity: revoke: %w", err)
	}
	return nil
}

// RevokedAt returns the revocation instant for uid, or the zero time.
func (s *RevocationStore) RevokedAt(ctx context.Context, uid string) (time.Time, error) {
	if s == nil || s.client == nil {
		return time.Time{}, nil
	}
	raw, err := s.client.Get(ctx, revocationKey(uid)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("identity: load revocation: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("identity: parse revocation: %w", err)
	}
	return time.UnixMilli(ms), nil
}
