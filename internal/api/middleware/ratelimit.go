package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterRedis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/cpp-cyber/ldapauth/internal/tools"
)

// RateLimitStoreType defines where request counters live
type RateLimitStoreType string

const (
	// RateLimitStoreMemory keeps counters in process (single instance only)
	RateLimitStoreMemory RateLimitStoreType = "memory"
	// RateLimitStoreRedis shares counters between instances
	RateLimitStoreRedis RateLimitStoreType = "redis"
)

type RateLimitConfig struct {
	RequestsPerMinute int                `envconfig:"RATE_LIMIT_PER_MINUTE" default:"10"`
	StoreType         RateLimitStoreType `envconfig:"RATE_LIMIT_STORE" default:"memory"`
	RedisAddr         string             `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword     string             `envconfig:"REDIS_PASSWORD"`
	RedisDB           int                `envconfig:"REDIS_DB" default:"0"`
}

func (c RateLimitConfig) Validate() error {
	switch {
	case c.RequestsPerMinute <= 0:
		return &tools.ConfigError{Field: "RATE_LIMIT_PER_MINUTE", Reason: "must be positive"}
	case c.StoreType == RateLimitStoreRedis && c.RedisAddr == "":
		return &tools.ConfigError{Field: "REDIS_ADDR", Reason: "is required for the redis store"}
	}
	return nil
}

// NewRateLimiter limits requests per client IP. The returned close func
// releases the Redis client when one was opened.
func NewRateLimiter(config RateLimitConfig) (gin.HandlerFunc, func() error, error) {
	rate := limiter.Rate{
		Period: time.Minute,
		Limit:  int64(config.RequestsPerMinute),
	}

	closeFn := func() error { return nil }

	var store limiter.Store
	switch config.StoreType {
	case RateLimitStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.RedisAddr, err)
		}

		var err error
		store, err = limiterRedis.NewStoreWithOptions(client, limiter.StoreOptions{
			Prefix:          "ldapauth_ratelimit",
			CleanUpInterval: 5 * time.Minute,
		})
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to create Redis store: %w", err)
		}
		closeFn = client.Close

	case RateLimitStoreMemory, "":
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          "ldapauth_ratelimit",
			CleanUpInterval: 5 * time.Minute,
		})

	default:
		return nil, nil, fmt.Errorf("unknown rate limit store %q", config.StoreType)
	}

	instance := limiter.New(store, rate)

	handler := mgin.NewMiddleware(instance, mgin.WithLimitReachedHandler(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"status":  "error",
			"message": "Too many requests. Please try again later.",
		})
	}))

	return handler, closeFn, nil
}
