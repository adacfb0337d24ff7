package rest

import (
	"github.com/xompass/storefront-rest/http_errors"
)

const rateLimitKeyPrefix = "ratelimit:"

// checkRateLimit counts the request in a fixed window stored in Redis. The key
// defaults to the endpoint name and client IP.
func checkRateLimit(e *EndpointContext) error {
	if e.Endpoint.RateLimiter == nil || !e.App.options.EnableRateLimiter || e.App.redisClient == nil {
		return nil
	}

	rateLimit := e.Endpoint.RateLimiter(e)
	if rateLimit.Max <= 0 || rateLimit.Window <= 0 {
		return nil
	}

	key := e.Endpoint.Name + "_" + e.IpAddress
	if rateLimit.Key != "" {
		key = rateLimit.Key
	}
	key = rateLimitKeyPrefix + key

	ctx := e.Context()
	pipe := e.App.redisClient.TxPipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, rateLimit.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		e.App.Errorf("Rate limiter unavailable for %s: %v", e.Endpoint.Name, err)
		return http_errors.InternalServerErrorWithCode("RATE_LIMITER_UNAVAILABLE", "Rate limiter unavailable")
	}

	count, err := incrCmd.Result()
	if err != nil {
		return http_errors.InternalServerErrorWithCode("RATE_LIMITER_UNAVAILABLE", "Rate limiter unavailable")
	}

	if count > int64(rateLimit.Max) {
		e.App.Warnf("Rate limit exceeded for %s: %d requests", key, count)
		return http_errors.TooManyRequestsErrorWithCode("RATE_LIMITED", "Too many requests, try again later")
	}

	return nil
}
