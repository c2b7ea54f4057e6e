// Package cache holds the Redis-backed read cache for teacher records.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Clark-Hu/teacher-ratings/internal/domain"
)

const keyPrefix = "teacher:"

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// TeacherCache stores teacher records in Redis as JSON with a fixed TTL.
type TeacherCache struct {
	client *redis.Client
	ttl    time.Duration
}

type entry struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AvgRating   float64   `json:"avgRating"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, opts Options) (*TeacherCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, opts.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *TeacherCache {
	return &TeacherCache{client: client, ttl: ttl}
}

// Get returns the cached teacher. A miss yields ok == false and no error.
func (c *TeacherCache) Get(ctx context.Context, id uuid.UUID) (domain.Teacher, bool, error) {
	raw, err := c.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Teacher{}, false, nil
		}
		return domain.Teacher{}, false, err
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return domain.Teacher{}, false, fmt.Errorf("decode cached teacher: %w", err)
	}
	return domain.Teacher{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		AvgRating:   e.AvgRating,
		UpdatedAt:   e.UpdatedAt,
	}, true, nil
}

// Set stores the teacher under its id.
func (c *TeacherCache) Set(ctx context.Context, teacher domain.Teacher) error {
	data, err := json.Marshal(entry{
		ID:          teacher.ID,
		Name:        teacher.Name,
		Description: teacher.Description,
		AvgRating:   teacher.AvgRating,
		UpdatedAt:   teacher.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(teacher.ID), data, c.ttl).Err()
}

// Invalidate drops the cached teacher, if any.
func (c *TeacherCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, key(id)).Err()
}

// HealthCheck pings Redis.
func (c *TeacherCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *TeacherCache) Close() error {
	return c.client.Close()
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}
