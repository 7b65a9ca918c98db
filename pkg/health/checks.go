package health

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DatabaseCheck verifies the postgres connection.
type DatabaseCheck struct {
	db *sqlx.DB
}

// NewDatabaseCheck creates a postgres health check.
func NewDatabaseCheck(db *sqlx.DB) *DatabaseCheck {
	return &DatabaseCheck{db: db}
}

// Name implements HealthCheck.
func (c *DatabaseCheck) Name() string { return "database" }

// Check implements HealthCheck.
func (c *DatabaseCheck) Check(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "database ping failed")
	}
	return nil
}

// RedisCheck verifies the redis connection backing the result cache.
type RedisCheck struct {
	client *redis.Client
}

// NewRedisCheck creates a redis health check.
func NewRedisCheck(client *redis.Client) *RedisCheck {
	return &RedisCheck{client: client}
}

// Name implements HealthCheck.
func (c *RedisCheck) Name() string { return "redis" }

// Check implements HealthCheck.
func (c *RedisCheck) Check(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis ping failed")
	}
	return nil
}

// Prober is anything exposing a Healthy probe; the inference service
// gateway satisfies it.
type Prober interface {
	Healthy(ctx context.Context) error
}

// InferenceServiceCheck verifies the external inference service. The search
// path survives without it (lower tiers take over), so an unhealthy result
// here means degraded accuracy, not an outage.
type InferenceServiceCheck struct {
	prober Prober
}

// NewInferenceServiceCheck creates an inference service health check.
func NewInferenceServiceCheck(prober Prober) *InferenceServiceCheck {
	return &InferenceServiceCheck{prober: prober}
}

// Name implements HealthCheck.
func (c *InferenceServiceCheck) Name() string { return "inference_service" }

// Check implements HealthCheck.
func (c *InferenceServiceCheck) Check(ctx context.Context) error {
	if err := c.prober.Healthy(ctx); err != nil {
		return errors.Wrap(err, "inference service probe failed")
	}
	return nil
}
