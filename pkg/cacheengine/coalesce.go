package cacheengine

import (
	"sync"

	"github.com/hurrycache/hurrycache/pkg/hashkey"
)

// coalescer guarantees at-most-one-concurrent-save-per-unit-key: a
// concurrent request for a unit key already being saved shares the
// in-flight handle rather than starting a second capture+upload.
type coalescer struct {
	mu       sync.Mutex
	inflight map[hashkey.Key]*UploadHandle
}

func newCoalescer() *coalescer {
	return &coalescer{inflight: make(map[hashkey.Key]*UploadHandle)}
}

// claim returns (handle, true) if key is already in flight, in which case
// the caller must not re-save it. Otherwise it registers a new pending
// handle and returns (handle, false); the caller is responsible for
// eventually calling release.
func (c *coalescer) claim(key hashkey.Key, handle *UploadHandle) (*UploadHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.inflight[key]; ok {
		return existing, true
	}
	c.inflight[key] = handle
	return handle, false
}

// release removes key from the in-flight map. Called by the task that
// completes the save, successfully or not.
func (c *coalescer) release(key hashkey.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}
