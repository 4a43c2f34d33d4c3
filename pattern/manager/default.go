package manager

import (
	"os"
	"sync"
	"sync/atomic"
)

// defaultManager holds the process-wide instance. The mutex guards
// construction only; steady-state access is a single atomic load.
var (
	defaultMu      sync.Mutex
	defaultManager atomic.Pointer[Manager]
)

// DefaultOptions returns the options Default constructs with: the
// database named by SPACO_DATABASE_URL (falling back to spaco.db in
// the working directory) and the stock cache/monitor settings.
func DefaultOptions() Options {
	opts := Options{}
	if url := os.Getenv("SPACO_DATABASE_URL"); url != "" {
		opts.DatabaseURL = url
	}
	return opts
}

// Default returns the process-wide manager, constructing it on first
// access. The fast path is an unguarded pointer load; construction is
// double-checked under the mutex so concurrent first accesses build at
// most one instance.
func Default() (*Manager, error) {
	if m := defaultManager.Load(); m != nil {
		return m, nil
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()

	if m := defaultManager.Load(); m != nil {
		return m, nil
	}

	m, err := New(DefaultOptions())
	if err != nil {
		return nil, err
	}
	defaultManager.Store(m)
	return m, nil
}

// SetDefault installs m as the process-wide instance, closing any
// previous one. Passing nil clears the instance. Intended for embedders
// that construct their own manager and for tests.
func SetDefault(m *Manager) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if prev := defaultManager.Load(); prev != nil && prev != m {
		prev.Close()
	}
	defaultManager.Store(m)
}
