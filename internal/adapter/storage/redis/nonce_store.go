package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// feedNonceKeyspace holds one key per nonce a signed feed request has used,
// namespaced by the feed access key: feed_nonce:<access key>:<nonce>.
const feedNonceKeyspace = "feed_nonce:"

// NonceStore remembers feed request nonces for as long as a signed request
// stays inside the accepted timestamp window.
type NonceStore struct {
	client *goredis.Client
}

// NewNonceStore returns a NonceStore backed by client.
func NewNonceStore(client *goredis.Client) *NonceStore {
	return &NonceStore{client: client}
}

// CheckAndSet claims nonce for accessKey with SET NX. It reports false when
// the nonce was already claimed and has not expired yet.
func (s *NonceStore) CheckAndSet(ctx context.Context, accessKey string, nonce string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("feed nonce ttl must be positive, got %s", ttl)
	}
	ok, err := s.client.SetArgs(ctx, feedNonceKey(accessKey, nonce), 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("claim feed nonce: %w", err)
	}
	return ok == "OK", nil
}

func feedNonceKey(accessKey, nonce string) string {
	return feedNonceKeyspace + accessKey + ":" + nonce
}
