package kv

import (
	"context"
	"sync"
)

// Fallback reads and writes through primary while mirroring every value it
// sees into memory. The first primary failure flips it to the mirror for the
// rest of its lifetime, and no error is surfaced to callers after that.
type Fallback struct {
	mu        sync.Mutex
	primary   Store
	mirror    *MemoryStore
	degraded  bool
	onDegrade func(op string, err error)
}

// NewFallback wraps primary. onDegrade, when set, is called once with the
// failing operation.
func NewFallback(primary Store, onDegrade func(op string, err error)) *Fallback {
	return &Fallback{
		primary:   primary,
		mirror:    NewMemoryStore(),
		onDegrade: onDegrade,
	}
}

// Degraded reports whether the store is serving from memory.
func (f *Fallback) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

func (f *Fallback) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.degraded {
		val, ok, err := f.primary.Get(ctx, key)
		if err == nil {
			if ok {
				_ = f.mirror.Set(ctx, key, val)
			} else {
				_ = f.mirror.Remove(ctx, key)
			}
			return val, ok, nil
		}
		f.degrade("get", err)
	}
	return f.mirror.Get(ctx, key)
}

func (f *Fallback) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.degraded {
		if err := f.primary.Set(ctx, key, value); err != nil {
			f.degrade("set", err)
		}
	}
	return f.mirror.Set(ctx, key, value)
}

func (f *Fallback) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.degraded {
		if err := f.primary.Remove(ctx, key); err != nil {
			f.degrade("remove", err)
		}
	}
	return f.mirror.Remove(ctx, key)
}

func (f *Fallback) degrade(op string, err error) {
	f.degraded = true
	if f.onDegrade != nil {
		f.onDegrade(op, err)
	}
}
