package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const (
	defaultRedisTTL     = 24 * time.Hour
	maxUpdateAttempts   = 50
	defaultRedisKeyBase = "crm:enrich:job"
)

// RedisStore keeps job snapshots as JSON in Redis so several API processes
// can serve progress for the same owner. Update uses WATCH/MULTI optimistic
// transactions. Keys expire after a TTL so an abandoned run cannot block an
// owner forever.
type RedisStore struct {
	rc  redis.UniversalClient
	ttl time.Duration
	ns  string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the key expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithNamespace sets the key prefix.
func WithNamespace(ns string) RedisOption {
	return func(s *RedisStore) { s.ns = ns }
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(rc redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rc: rc, ttl: defaultRedisTTL, ns: defaultRedisKeyBase}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) key(ownerID string) string {
	return fmt.Sprintf("%s:%s", s.ns, ownerID)
}

func (s *RedisStore) Get(ctx context.Context, ownerID string) (*Job, error) {
	return s.read(ctx, s.rc, ownerID)
}

func (s *RedisStore) Set(ctx context.Context, job *Job) error {
	if job == nil || job.OwnerID == "" {
		return eris.New("jobs: set requires a job with an owner")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "jobs: marshal job")
	}
	return eris.Wrapf(s.rc.Set(ctx, s.key(job.OwnerID), data, s.ttl).Err(), "jobs: redis set %s", job.OwnerID)
}

func (s *RedisStore) Delete(ctx context.Context, ownerID string) error {
	return eris.Wrapf(s.rc.Del(ctx, s.key(ownerID)).Err(), "jobs: redis delete %s", ownerID)
}

func (s *RedisStore) Update(ctx context.Context, ownerID string, fn UpdateFunc) (*Job, error) {
	key := s.key(ownerID)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var result *Job
		err := s.rc.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := s.read(ctx, tx, ownerID)
			if err != nil {
				return err
			}
			next, err := fn(cur)
			if err != nil {
				return err
			}

			var data []byte
			if next != nil {
				next.OwnerID = ownerID
				if data, err = json.Marshal(next); err != nil {
					return eris.Wrap(err, "jobs: marshal job")
				}
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				if next == nil {
					p.Del(ctx, key)
				} else {
					p.Set(ctx, key, data, s.ttl)
				}
				return nil
			})
			if err != nil {
				return err
			}
			result = next
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, eris.Wrapf(ErrConflict, "owner %s", ownerID)
}

func (s *RedisStore) read(ctx context.Context, c redis.Cmdable, ownerID string) (*Job, error) {
	data, err := c.Get(ctx, s.key(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: redis get %s", ownerID)
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, eris.Wrapf(err, "jobs: unmarshal job %s", ownerID)
	}
	return &j, nil
}
