// Package idempotency derives the keys sent to processors for one logical
// charge and its single permitted fallback.
package idempotency

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const fallbackSuffix = "-fallback"

// Base returns supplied unchanged, or a fresh "{prefix}-{uuid}" when it is
// empty. prefix is normally the payment method.
func Base(prefix, supplied string) string {
	if supplied != "" {
		return supplied
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

// Derived returns the key for the fallback attempt of base.
func Derived(base string) string {
	return base + fallbackSuffix
}

// Step returns the key for one step of a multi-call operation so that each
// processor resource gets its own deduplication slot.
func Step(key, step string) string {
	return key + "-" + step
}

// Key tracks one logical operation: the base key and whether its derived key
// has been handed out. It lives for a single call/retry pair.
type Key struct {
	mu      sync.Mutex
	base    string
	attempt int
}

func New(prefix, supplied string) *Key {
	return &Key{base: Base(prefix, supplied)}
}

func (k *Key) Base() string {
	return k.base
}

// Attempt is 0 for the original call and 1 once the fallback key was issued.
func (k *Key) Attempt() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.attempt
}

// Fallback hands out the derived key. It succeeds at most once per Key.
func (k *Key) Fallback() (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.attempt > 0 {
		return "", false
	}
	k.attempt++
	return Derived(k.base), true
}
