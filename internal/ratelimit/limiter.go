// Package ratelimit tracks failed login attempts per identity, per
// source address, and per identity+source pair, and locks a key out
// once failures inside the rolling window reach the configured
// threshold. State lives in memory; restarting the process clears it.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Settings configures the failure window and lockout behavior.
type Settings struct {
	MaxAttempts     int           // Failures inside the window that trigger a lockout.
	AttemptWindow   time.Duration // Rolling window over which failures accumulate.
	LockoutDuration time.Duration // How long a locked key stays locked.
}

// DefaultSettings returns the built-in limits.
func DefaultSettings() Settings {
	return Settings{
		MaxAttempts:     5,
		AttemptWindow:   5 * time.Minute,
		LockoutDuration: 15 * time.Minute,
	}
}

// Status reports the lockout state of a login identity/source pair.
type Status struct {
	Allowed     bool          // False while any relevant key is locked.
	RetryAfter  time.Duration // Time until the lock expires; zero when allowed.
	NewlyLocked bool          // True when this failure created the lock.
}

// Limiter is the failed-attempt tracker consumed by the login flow.
type Limiter interface {
	// Check reports whether a login attempt may proceed.
	Check(identity, source string) Status
	// RecordFailure registers a failed attempt and returns the
	// resulting status, so callers can distinguish a fresh lockout
	// from an attempt against an already-locked key.
	RecordFailure(identity, source string) Status
	// RecordSuccess clears failure state after a successful login.
	RecordSuccess(identity, source string)
}

// entry tracks failures for one key.
type entry struct {
	count       int       // Failures inside the current window.
	windowStart time.Time // Start of the current window.
	lockedUntil time.Time // Zero when not locked.
}

// MemoryLimiter is a mutex-guarded in-memory Limiter.
type MemoryLimiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	settings Settings
	nowFn    func() time.Time

	lastGC time.Time
}

// gcInterval bounds how often expired entries are swept.
const gcInterval = time.Minute

// NewMemoryLimiter builds a MemoryLimiter. A nil nowFn uses time.Now;
// non-positive settings fields fall back to defaults.
func NewMemoryLimiter(settings Settings, nowFn func() time.Time) *MemoryLimiter {
	defaults := DefaultSettings()
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = defaults.MaxAttempts
	}
	if settings.AttemptWindow <= 0 {
		settings.AttemptWindow = defaults.AttemptWindow
	}
	if settings.LockoutDuration <= 0 {
		settings.LockoutDuration = defaults.LockoutDuration
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemoryLimiter{
		entries:  make(map[string]*entry),
		settings: settings,
		nowFn:    nowFn,
	}
}

// identityKey, sourceKey, and pairKey namespace the tracked dimensions
// so an identity string can never collide with a source address.
func identityKey(identity string) string {
	return "u:" + strings.ToLower(strings.TrimSpace(identity))
}

func sourceKey(source string) string {
	return "a:" + strings.TrimSpace(source)
}

func pairKey(identity, source string) string {
	return "ua:" + strings.ToLower(strings.TrimSpace(identity)) + "@" + strings.TrimSpace(source)
}

func keysFor(identity, source string) [3]string {
	return [3]string{identityKey(identity), sourceKey(source), pairKey(identity, source)}
}

// Check reports whether an attempt for the identity/source pair may
// proceed. A lock on any of the three tracked keys blocks the attempt.
func (m *MemoryLimiter) Check(identity, source string) Status {
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeGC(now)

	var retry time.Duration
	for _, key := range keysFor(identity, source) {
		if remaining := m.lockRemaining(key, now); remaining > retry {
			retry = remaining
		}
	}
	if retry > 0 {
		return Status{Allowed: false, RetryAfter: retry}
	}
	return Status{Allowed: true}
}

// RecordFailure registers one failed attempt on all three keys and
// returns the post-failure status.
func (m *MemoryLimiter) RecordFailure(identity, source string) Status {
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeGC(now)

	var retry time.Duration
	newlyLocked := false
	for _, key := range keysFor(identity, source) {
		remaining, fresh := m.recordFailureKey(key, now)
		if remaining > retry {
			retry = remaining
		}
		if fresh {
			newlyLocked = true
		}
	}
	if retry > 0 {
		return Status{Allowed: false, RetryAfter: retry, NewlyLocked: newlyLocked}
	}
	return Status{Allowed: true}
}

// recordFailureKey bumps the failure count for one key, locking it when
// the count reaches the threshold. It reports the remaining lock time
// and whether this call created the lock.
func (m *MemoryLimiter) recordFailureKey(key string, now time.Time) (time.Duration, bool) {
	item := m.entries[key]
	if item == nil {
		item = &entry{}
		m.entries[key] = item
	}

	if !item.lockedUntil.IsZero() {
		if now.Before(item.lockedUntil) {
			// Failures during a lockout do not extend it.
			return item.lockedUntil.Sub(now), false
		}
		// Lock expired; start a fresh window.
		*item = entry{}
	}

	if item.count == 0 || now.Sub(item.windowStart) > m.settings.AttemptWindow {
		item.count = 0
		item.windowStart = now
	}
	item.count++

	if item.count >= m.settings.MaxAttempts {
		item.lockedUntil = now.Add(m.settings.LockoutDuration)
		return m.settings.LockoutDuration, true
	}
	return 0, false
}

// RecordSuccess clears tracked failures after a successful login. The
// identity and pair keys always reset; the source key resets only when
// it is not locked, so one valid login from a noisy address does not
// unlock it for other identities.
func (m *MemoryLimiter) RecordSuccess(identity, source string) {
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.maybeGC(now)

	delete(m.entries, identityKey(identity))
	delete(m.entries, pairKey(identity, source))

	srcKey := sourceKey(source)
	if m.lockRemaining(srcKey, now) == 0 {
		delete(m.entries, srcKey)
	}
}

// lockRemaining returns how long the key stays locked, clearing state
// that expired.
func (m *MemoryLimiter) lockRemaining(key string, now time.Time) time.Duration {
	item := m.entries[key]
	if item == nil {
		return 0
	}
	if !item.lockedUntil.IsZero() {
		if now.Before(item.lockedUntil) {
			return item.lockedUntil.Sub(now)
		}
		delete(m.entries, key)
		return 0
	}
	if now.Sub(item.windowStart) > m.settings.AttemptWindow {
		delete(m.entries, key)
	}
	return 0
}

// maybeGC sweeps entries whose window and lockout both expired. Called
// with the mutex held.
func (m *MemoryLimiter) maybeGC(now time.Time) {
	if now.Sub(m.lastGC) < gcInterval {
		return
	}
	m.lastGC = now
	for key, item := range m.entries {
		if !item.lockedUntil.IsZero() {
			if !now.Before(item.lockedUntil) {
				delete(m.entries, key)
			}
			continue
		}
		if now.Sub(item.windowStart) > m.settings.AttemptWindow {
			delete(m.entries, key)
		}
	}
}
