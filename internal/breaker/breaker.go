// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pudim Contributors

// Package breaker implements the circuit breaker guarding each external
// dependency. A breaker is closed until Open is called; it then rejects
// the dependency for a cooldown period, after which the next call is
// attempted normally. Any success closes it immediately.
package breaker

import (
	"sync"
	"time"

	pudimerr "github.com/pudim-dev/pudim/pkg/errors"
	"github.com/pudim-dev/pudim/pkg/health"
)

// DefaultCooldown is how long a breaker stays open after a failure.
const DefaultCooldown = 5 * time.Minute

// Breaker tracks a single open-until timestamp for one guarded
// dependency. There is no distinct half-open state: the first call after
// the cooldown elapses is a normal attempt whose outcome drives the next
// transition.
type Breaker struct {
	mu           sync.Mutex
	openUntil    time.Time
	cooldown     time.Duration
	failureCount int64
	lastFailure  time.Time
	nowFunc      func() time.Time // for testing
}

// New creates a closed Breaker. Returns an error if cooldown is zero or
// negative.
func New(cooldown time.Duration) (*Breaker, error) {
	if cooldown <= 0 {
		return nil, pudimerr.Errorf(pudimerr.CodeConfigValidateInvalidValue,
			"breaker cooldown must be positive, got %s", cooldown)
	}
	return &Breaker{
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// IsOpen reports whether the breaker is open. An elapsed cooldown clears
// the open-until timestamp as a side effect, so a breaker left alone
// heals itself on the next check.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.openUntil.IsZero() {
		return false
	}
	if b.nowFunc().Before(b.openUntil) {
		return true
	}
	b.openUntil = time.Time{}
	return false
}

// Open marks the dependency as failed, rejecting calls until now + cooldown.
func (b *Breaker) Open() {
	b.mu.Lock()
	now := b.nowFunc()
	b.openUntil = now.Add(b.cooldown)
	b.lastFailure = now
	b.failureCount++
	b.mu.Unlock()
}

// Close clears the open-until timestamp immediately. Called on any
// successful operation so that success heals the breaker without waiting
// for the cooldown.
func (b *Breaker) Close() {
	b.mu.Lock()
	b.openUntil = time.Time{}
	b.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (b *Breaker) SetNowFunc(fn func() time.Time) {
	b.mu.Lock()
	b.nowFunc = fn
	b.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of the breaker state.
func (b *Breaker) Metrics() health.Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := health.Metrics{
		FailureCount: b.failureCount,
	}

	if b.failureCount > 0 {
		t := b.lastFailure
		m.LastFailureAt = &t
	}

	open := !b.openUntil.IsZero() && b.nowFunc().Before(b.openUntil)
	m.Available = !open
	if open {
		t := b.openUntil
		m.OpenUntil = &t
	}
	return m
}
