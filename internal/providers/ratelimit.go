package providers

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket shared by every call to one backend.
type RateLimiter struct {
	limiter *rate.Limiter

	// Statistics
	totalConsumed atomic.Int64
	totalWaited   atomic.Int64 // nanoseconds
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RequestsPerSecond float64       `json:"requests_per_second"`
	Burst             int           `json:"burst"`
	TotalConsumed     int64         `json:"total_consumed"`
	TotalWaited       time.Duration `json:"total_waited"`
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst. A burst below one is raised to one.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	r.totalConsumed.Add(1)
	r.totalWaited.Add(int64(time.Since(start)))
	return nil
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	return RateLimiterStatus{
		RequestsPerSecond: float64(r.limiter.Limit()),
		Burst:             r.limiter.Burst(),
		TotalConsumed:     r.totalConsumed.Load(),
		TotalWaited:       time.Duration(r.totalWaited.Load()),
	}
}

// rateLimitedVision throttles a VisionBackend.
type rateLimitedVision struct {
	VisionBackend
	limiter *RateLimiter
}

func (r *rateLimitedVision) Extract(ctx context.Context, req *VisionRequest) (*VisionResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.VisionBackend.Extract(ctx, req)
}

// rateLimitedAdjudicator throttles an Adjudicator.
type rateLimitedAdjudicator struct {
	Adjudicator
	limiter *RateLimiter
}

func (r *rateLimitedAdjudicator) Select(ctx context.Context, req *AdjudicationRequest) (*AdjudicationResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Adjudicator.Select(ctx, req)
}

// WithVisionRateLimit wraps b so that calls respect rps. A non-positive
// rps returns b unchanged.
func WithVisionRateLimit(b VisionBackend, rps float64) VisionBackend {
	if rps <= 0 {
		return b
	}
	return &rateLimitedVision{VisionBackend: b, limiter: NewRateLimiter(rps, burstFor(rps))}
}

// WithAdjudicatorRateLimit wraps a so that calls respect rps. A
// non-positive rps returns a unchanged.
func WithAdjudicatorRateLimit(a Adjudicator, rps float64) Adjudicator {
	if rps <= 0 {
		return a
	}
	return &rateLimitedAdjudicator{Adjudicator: a, limiter: NewRateLimiter(rps, burstFor(rps))}
}

func burstFor(rps float64) int {
	if rps < 1 {
		return 1
	}
	return int(rps)
}
