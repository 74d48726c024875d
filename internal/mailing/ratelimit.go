package mailing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// ErrDailyLimit is reported when the provider's daily quota is spent.
var ErrDailyLimit = errors.New("daily send limit reached")

// RateLimit caps sends per window. A zero field means no cap for that window.
type RateLimit struct {
	PerSecond int
	PerMinute int
	PerDay    int
}

// Enabled reports whether any window is capped.
func (l RateLimit) Enabled() bool {
	return l.PerSecond > 0 || l.PerMinute > 0 || l.PerDay > 0
}

// Checks every window and increments only if all pass, so a denied send
// never consumes quota.
var multiLimitScript = redis.NewScript(`
local inc = tonumber(ARGV[1])
for i = 1, 3 do
	local limit = tonumber(ARGV[i + 1])
	if limit > 0 then
		local cur = tonumber(redis.call("GET", KEYS[i]) or "0")
		if cur + inc > limit then
			return {0, i}
		end
	end
end
for i = 1, 3 do
	if tonumber(ARGV[i + 1]) > 0 then
		local v = redis.call("INCRBY", KEYS[i], inc)
		if v == inc then
			redis.call("EXPIRE", KEYS[i], tonumber(ARGV[i + 4]))
		end
	end
end
return {1, 0}
`)

// RateLimiter shares provider quotas across every process through Redis.
type RateLimiter struct {
	client   *redis.Client
	provider string
	limits   RateLimit
	now      func() time.Time
}

func NewRateLimiter(client *redis.Client, provider string, limits RateLimit) *RateLimiter {
	return &RateLimiter{client: client, provider: provider, limits: limits, now: time.Now}
}

// Reserve takes one send from every window. When denied it returns how
// long to wait; a spent daily quota returns ErrDailyLimit.
func (r *RateLimiter) Reserve(ctx context.Context) (bool, time.Duration, error) {
	now := r.now().UTC()
	keys := []string{
		fmt.Sprintf("ratelimit:%s:sec:%d", r.provider, now.Unix()),
		fmt.Sprintf("ratelimit:%s:min:%d", r.provider, now.Unix()/60),
		fmt.Sprintf("ratelimit:%s:day:%s", r.provider, now.Format("2006-01-02")),
	}
	res, err := multiLimitScript.Run(ctx, r.client, keys,
		1, r.limits.PerSecond, r.limits.PerMinute, r.limits.PerDay,
		2, 120, 90000,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	switch res[1] {
	case 1:
		return false, time.Second - time.Duration(now.Nanosecond()), nil
	case 2:
		return false, time.Duration(60-now.Second()) * time.Second, nil
	}
	return false, 0, ErrDailyLimit
}

// ThrottledGateway waits for quota before delegating. If the wait would
// outlive ctx the send is reported as a failure and the step policy
// decides what happens next.
type ThrottledGateway struct {
	next    Gateway
	limiter *RateLimiter
}

func NewThrottledGateway(next Gateway, limiter *RateLimiter) *ThrottledGateway {
	return &ThrottledGateway{next: next, limiter: limiter}
}

func (g *ThrottledGateway) Mode() domain.DeliveryMode { return ModeOf(g.next) }

func (g *ThrottledGateway) Deliver(ctx context.Context, recipient, subject, body string) domain.DeliveryResult {
	for {
		ok, wait, err := g.limiter.Reserve(ctx)
		if err != nil {
			if errors.Is(err, ErrDailyLimit) {
				return liveError(err)
			}
			// Redis trouble should not stop mail.
			logger.Warn("rate limiter unavailable, sending unthrottled", "error", err)
			return g.next.Deliver(ctx, recipient, subject, body)
		}
		if ok {
			return g.next.Deliver(ctx, recipient, subject, body)
		}
		if deadline, has := ctx.Deadline(); has && time.Until(deadline) < wait {
			return liveError(fmt.Errorf("rate limited: next slot in %s", wait))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return liveError(ctx.Err())
		case <-timer.C:
		}
	}
}
