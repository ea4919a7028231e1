package internal

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const Int64Max = 1<<63 - 1

// GetBackoffTime returns a random truncated exponential backoff: n * slotTime with n in [0, 2^retries), capped at maximum.
func GetBackoffTime(retries int64, slotTime time.Duration, maximum time.Duration) (backoff time.Duration) {

	defer func() {
		if r := recover(); r != nil {
			backoff = maximum
		}
	}()

	if slotTime <= 0 || retries <= 0 {
		return time.Duration(0)
	}
	// -1 is omitted, rand.Int63n is [0, max)
	umax := uint64(1) << retries
	if umax > Int64Max || umax == 0 {
		return maximum
	}
	max := int64(umax)
	n := rand.Int63n(max)

	//Prevents overflow
	u64Time := uint64(slotTime.Nanoseconds()) * uint64(n)
	if u64Time > Int64Max {
		return maximum
	}

	backoff = time.Duration(n) * slotTime
	if backoff > maximum {
		backoff = maximum
	}
	return backoff
}

// CallPolicy bounds a single backend call: every attempt gets Timeout, and failed attempts are
// repeated up to Retries times when Retryable accepts the error.
// The zero value runs the call once with the caller's context.
type CallPolicy struct {
	Retryable  func(error) bool
	Timeout    time.Duration
	SlotTime   time.Duration
	MaxBackoff time.Duration
	Retries    int64
}

// DefaultCallPolicy is one attempt bounded by one minute
func DefaultCallPolicy() CallPolicy {
	return CallPolicy{
		Timeout:    OneMinute,
		SlotTime:   100 * time.Millisecond,
		MaxBackoff: FiveSeconds,
	}
}

// WithoutRetries returns a copy of p that never retries
func (p CallPolicy) WithoutRetries() CallPolicy {
	p.Retries = 0
	return p
}

// Do runs fn under the policy. The last error is returned unchanged.
func (p CallPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var attempt int64
	for {
		err := p.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt >= p.Retries || p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		attempt++
		backoff := GetBackoffTime(attempt, p.SlotTime, p.MaxBackoff)
		zap.S().Warnf("%s failed (attempt %d of %d), retrying in %s: %s", op, attempt, p.Retries+1, backoff, err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (p CallPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(callCtx)
}
