// Package cache keeps rendered trip itineraries in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ItineraryCache stores the serialized stop list of a trip. A nil
// *ItineraryCache is valid and behaves as an always-empty cache.
type ItineraryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewItineraryCache(client *redis.Client, ttl time.Duration) *ItineraryCache {
	return &ItineraryCache{client: client, ttl: ttl}
}

// Connect dials addr and checks the server answers.
func Connect(ctx context.Context, addr, password string, db int, ttl time.Duration) (*ItineraryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping %s: %w", addr, err)
	}
	return NewItineraryCache(client, ttl), nil
}

func Key(tripID uint) string {
	return fmt.Sprintf("trip:%d:itinerary", tripID)
}

// GenKey holds the trip's invalidation counter.
func GenKey(tripID uint) string {
	return fmt.Sprintf("trip:%d:gen", tripID)
}

var errStale = errors.New("cache: generation moved")

// Get returns the cached bytes and whether there was a hit.
func (c *ItineraryCache) Get(ctx context.Context, tripID uint) ([]byte, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	data, err := c.client.Get(ctx, Key(tripID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Generation returns the trip's invalidation counter, 0 before the first
// Invalidate. Read it before loading the data passed to Set.
func (c *ItineraryCache) Generation(ctx context.Context, tripID uint) (int64, error) {
	if c == nil {
		return 0, nil
	}
	return generation(ctx, c.client, tripID)
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, cmd getter, tripID uint) (int64, error) {
	gen, err := cmd.Get(ctx, GenKey(tripID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores data only while the trip is still at generation gen, so a
// reader never writes back a list older than the last Invalidate. It
// reports whether the entry was written.
func (c *ItineraryCache) Set(ctx context.Context, tripID uint, gen int64, data []byte) (bool, error) {
	if c == nil {
		return false, nil
	}
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx, tripID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, Key(tripID), data, c.ttl)
			return nil
		})
		return err
	}, GenKey(tripID))
	if errors.Is(err, errStale) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Invalidate bumps the trip's generation and drops its entry; called after
// every stop mutation.
func (c *ItineraryCache) Invalidate(ctx context.Context, tripID uint) error {
	if c == nil {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, GenKey(tripID))
		pipe.Del(ctx, Key(tripID))
		return nil
	})
	return err
}

func (c *ItineraryCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
