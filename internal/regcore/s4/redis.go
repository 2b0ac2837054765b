package s4

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/patch"
)

// Redis key prefix for AoR documents, mirroring the teacher's
// revokedTokenKeyPrefix convention for namespacing keys by concern.
const aorKeyPrefix = "s4:aor:"

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	// URL is a redis:// connection string, parsed with redis.ParseURL.
	URL string
}

// DefaultRedisStoreConfig returns the conventional local-dev Redis address.
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{URL: "redis://localhost:6379/0"}
}

// redisDoc is the JSON envelope stored per AoR key; Version is carried
// inside the value so a WATCH/MULTI transaction can assert on it without a
// second round trip.
type redisDoc struct {
	AoR     *aor.AoR `json:"aor"`
	Version int      `json:"version"`
}

// RedisStore is a Redis-backed Store using optimistic locking via
// WATCH/MULTI/EXEC, grounded in abramin-Credo's redis.Client wrapper
// (construction, Ping health check) and its revocation store's key-prefix
// and pipelining conventions.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore parses cfg.URL and pings the resulting client before
// returning, the same fail-fast construction shape as abramin-Credo's
// redis.New.
func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("s4: parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("s4: redis ping failed: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(aorID string) string {
	return aorKeyPrefix + aorID
}

func (s *RedisStore) Get(ctx context.Context, aorID string) (*aor.AoR, string, error) {
	raw, err := s.client.Get(ctx, s.key(aorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var doc redisDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("%w: decode aor: %v", ErrUnavailable, err)
	}
	return doc.AoR, strconv.Itoa(doc.Version), nil
}

func (s *RedisStore) Put(ctx context.Context, aorID string, a *aor.AoR) (string, error) {
	doc := redisDoc{AoR: a, Version: 1}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("%w: encode aor: %v", ErrUnavailable, err)
	}
	if err := s.client.Set(ctx, s.key(aorID), raw, 0).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return strconv.Itoa(doc.Version), nil
}

func (s *RedisStore) Patch(ctx context.Context, aorID string, p *patch.Patch, version string) (*aor.AoR, string, error) {
	key := s.key(aorID)
	var result *aor.AoR
	var newVersion string

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		var doc redisDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: decode aor: %v", ErrUnavailable, err)
		}
		if strconv.Itoa(doc.Version) != version {
			return ErrVersionConflict
		}

		applyPatch(doc.AoR, p)
		doc.Version++
		result = doc.AoR
		newVersion = strconv.Itoa(doc.Version)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if doc.AoR.Empty() {
				pipe.Del(ctx, key)
				return nil
			}
			encoded, err := json.Marshal(doc)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict):
		return nil, "", err
	case errors.Is(err, redis.TxFailedErr):
		return nil, "", ErrVersionConflict
	case err != nil:
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, newVersion, nil
}

func (s *RedisStore) Delete(ctx context.Context, aorID string, version string) error {
	key := s.key(aorID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		var doc redisDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: decode aor: %v", ErrUnavailable, err)
		}
		if strconv.Itoa(doc.Version) != version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return ErrVersionConflict
	case err != nil:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
