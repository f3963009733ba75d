// ABOUTME: This file implements per-host request pacing for upstream fetches
// ABOUTME: Each host gets an independent minimum interval with a small jitter
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HostLimiter spaces requests to the same host by at least a minimum
// interval. Hosts are tracked independently so one slow upstream never
// throttles the others.
type HostLimiter struct {
	interval time.Duration
	jitter   time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	mu       sync.Mutex
	nextSlot time.Time
}

func NewHostLimiter(interval, jitter time.Duration) *HostLimiter {
	return &HostLimiter{
		interval: interval,
		jitter:   jitter,
		hosts:    make(map[string]*hostState),
	}
}

// Wait blocks until the host may be contacted again, or the context ends.
// The wait is the configured interval plus a random jitter slice.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	state := l.state(host)

	state.mu.Lock()
	now := time.Now()
	wait := state.nextSlot.Sub(now)
	if wait < 0 {
		wait = 0
	}
	pause := l.interval
	if l.jitter > 0 {
		pause += time.Duration(rand.Int63n(int64(l.jitter)))
	}
	state.nextSlot = now.Add(wait + pause)
	state.mu.Unlock()

	if wait == 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait cancelled for host %s: %w", host, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// WaitURL extracts the host from a locator and waits on it.
func (l *HostLimiter) WaitURL(ctx context.Context, raw string) error {
	return l.Wait(ctx, HostOf(raw))
}

func (l *HostLimiter) state(host string) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.hosts[host]
	if !ok {
		state = &hostState{}
		l.hosts[host] = state
	}
	return state
}

// HostOf returns the lowercase hostname of a locator, or "unknown" when it
// cannot be parsed. Unparsable locators share one pacing bucket on purpose.
func HostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "unknown"
	}
	host := parsed.Hostname()
	if host == "" {
		return "unknown"
	}
	return strings.ToLower(host)
}
