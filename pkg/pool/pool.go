// Package pool provides object pooling to reduce allocations on hot paths.
//
// Object pooling reuses allocated objects instead of creating new ones,
// reducing GC pressure when the same short-lived scratch structures are
// built over and over.
//
// Pooled objects:
// - Byte buffers (subgraph stringification)
// - Idea id sets (transitive closure walks)
//
// Usage:
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
//	buf.WriteString("...")
package pool

import (
	"bytes"
	"sync"

	"github.com/orneryd/ideagraph/pkg/storage"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits the size of objects kept in each pool; larger ones
	// are left to the GC
	MaxSize int
}

var (
	configMu     sync.RWMutex
	globalConfig = PoolConfig{
		Enabled: true,
		MaxSize: 64 * 1024,
	}
)

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config PoolConfig) {
	configMu.Lock()
	globalConfig = config
	configMu.Unlock()
}

func current() PoolConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return current().Enabled
}

// =============================================================================
// Byte Buffer Pool
// =============================================================================

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// GetBuffer returns an empty buffer. Call PutBuffer when done.
func GetBuffer() *bytes.Buffer {
	if !IsEnabled() {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	}
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool. The buffer must not be used
// afterwards.
func PutBuffer(buf *bytes.Buffer) {
	cfg := current()
	if !cfg.Enabled || buf == nil {
		return
	}
	// Don't pool very large buffers (memory leak prevention)
	if buf.Cap() > cfg.MaxSize {
		return
	}
	bufferPool.Put(buf)
}

// =============================================================================
// Idea ID Set Pool
// =============================================================================

var idSetPool = sync.Pool{
	New: func() any {
		return make(map[storage.IdeaID]struct{}, 32)
	},
}

// GetIDSet returns an empty set of idea ids. Call PutIDSet when done.
func GetIDSet() map[storage.IdeaID]struct{} {
	if !IsEnabled() {
		return make(map[storage.IdeaID]struct{}, 32)
	}
	return idSetPool.Get().(map[storage.IdeaID]struct{})
}

// PutIDSet clears a set and returns it to the pool.
func PutIDSet(set map[storage.IdeaID]struct{}) {
	cfg := current()
	if !cfg.Enabled || set == nil {
		return
	}
	if len(set) > cfg.MaxSize {
		return
	}
	clear(set)
	idSetPool.Put(set)
}
