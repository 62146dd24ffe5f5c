package cacheengine

import (
	"context"
	"sync"
	"time"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/cas"
	"github.com/hurrycache/hurrycache/pkg/cas/localcache"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/marshal"
	"github.com/hurrycache/hurrycache/pkg/metadataclient"
	"github.com/hurrycache/hurrycache/pkg/metrics"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

// Config configures an Engine.
type Config struct {
	CAS       *cas.Client
	Metadata  *metadataclient.Client
	// LocalCache is optional; when set, restored and saved blob bytes are
	// checked against and written through it before/after the CAS.
	LocalCache *localcache.Cache
	// MaxConcurrentUnits bounds fan-out across unit marshallings
	// (default 64, per spec.md §5).
	MaxConcurrentUnits int
	// TargetDir is the workspace's target/ directory, the root all
	// Qualified Paths resolve against.
	TargetDir string
	// Metrics is optional; when set, Restore and Save report per-unit
	// outcomes, CAS transfer sizes, cache hit ratio, and in-flight save
	// count through it.
	Metrics metrics.EngineMetrics
}

func (c *Config) applyDefaults() {
	if c.MaxConcurrentUnits <= 0 {
		c.MaxConcurrentUnits = 64
	}
}

// Engine implements spec.md §4.6's restore(units)/save(units, restored).
type Engine struct {
	cfg           Config
	coalescer     *coalescer
	unitSem       chan struct{}
	inflightSaves int64
}

// New constructs an Engine.
func New(cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:       cfg,
		coalescer: newCoalescer(),
		unitSem:   make(chan struct{}, cfg.MaxConcurrentUnits),
	}
}

// Restored is the outcome of a Restore call: the set of unit keys whose
// restore fully succeeded, and a set of (key, reason) for units that
// matched server-side but failed locally.
type Restored struct {
	Successful map[hashkey.Key]bool
	Failed     map[hashkey.Key]string
}

// IsRestored reports whether key is in the successful set.
func (r *Restored) IsRestored(key hashkey.Key) bool {
	return r != nil && r.Successful[key]
}

// Restore computes unit keys for units via the planner's own Key() method,
// fetches matching Saved Units from the metadata service in batches,
// fetches their referenced blobs from the CAS, and invokes the per-unit
// marshaller to write files back, bounded to cfg.MaxConcurrentUnits
// concurrent marshallings. The overall call fails only on unauthenticated
// access or a total transport failure; individual unit restore failures
// are reported in the returned Restored.Failed set, never as an error.
func (e *Engine) Restore(ctx context.Context, units []unit.Unit) (*Restored, error) {
	keys := make([]hashkey.Key, len(units))
	byKey := make(map[hashkey.Key]unit.Unit, len(units))
	for i, u := range units {
		k := u.Key()
		keys[i] = k
		byKey[k] = u
	}

	hits, err := e.cfg.Metadata.Restore(ctx, keys)
	if err != nil {
		if cacheerr.IsKind(err, cacheerr.KindAuthorization) {
			return nil, err
		}
		// Any other transport/validation failure degrades the whole
		// batch to "nothing restored"; §7 never lets restore fail the
		// caller's build.
		return &Restored{Successful: map[hashkey.Key]bool{}, Failed: map[hashkey.Key]string{}}, nil
	}

	contentKeys := uniqueContentKeys(hits)
	blobs, err := e.fetchBlobs(ctx, contentKeys)
	if err != nil {
		if cacheerr.IsKind(err, cacheerr.KindAuthorization) {
			return nil, err
		}
	}
	src := marshal.NewBlobSource(blobs)

	result := &Restored{Successful: map[hashkey.Key]bool{}, Failed: map[hashkey.Key]string{}}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for key, su := range hits {
		key, su := key, su
		u, known := byKey[key]
		if !known {
			continue
		}

		e.unitSem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-e.unitSem }()
			start := time.Now()

			m, err := marshal.New(u.Kind)
			if err != nil {
				mu.Lock()
				result.Failed[key] = err.Error()
				mu.Unlock()
				metrics.ObserveRestore(e.cfg.Metrics, false, time.Since(start))
				return
			}

			suCopy := su
			if restoreErr := m.Restore(ctx, e.cfg.TargetDir, &suCopy, src); restoreErr != nil {
				mu.Lock()
				result.Failed[key] = restoreErr.Error()
				mu.Unlock()
				metrics.ObserveRestore(e.cfg.Metrics, false, time.Since(start))
				return
			}

			mu.Lock()
			result.Successful[key] = true
			mu.Unlock()
			metrics.ObserveRestore(e.cfg.Metrics, true, time.Since(start))
		}()
	}
	wg.Wait()

	// Units the metadata service never reported as hits are pure cache
	// misses; no local marshalling was attempted, so duration is zero.
	for key := range byKey {
		if _, hit := hits[key]; !hit {
			metrics.ObserveRestore(e.cfg.Metrics, false, 0)
		}
	}

	if len(units) > 0 {
		metrics.RecordCacheHitRatio(e.cfg.Metrics, float64(len(result.Successful))/float64(len(units)))
	}

	return result, nil
}

func (e *Engine) fetchBlobs(ctx context.Context, keys []hashkey.Key) (map[hashkey.Key][]byte, error) {
	blobs := make(map[hashkey.Key][]byte, len(keys))
	var missing []hashkey.Key

	if e.cfg.LocalCache != nil {
		for _, k := range keys {
			if body, found, err := e.cfg.LocalCache.Get(k); err == nil && found {
				blobs[k] = body
				continue
			}
			missing = append(missing, k)
		}
	} else {
		missing = keys
	}

	if len(missing) == 0 {
		return blobs, nil
	}

	start := time.Now()
	results, err := e.cfg.CAS.BulkRead(ctx, missing)
	if err != nil {
		return blobs, err
	}

	var bytes int64
	for _, r := range results {
		if !r.Found {
			continue
		}
		blobs[r.Key] = r.Body
		bytes += int64(len(r.Body))
		if e.cfg.LocalCache != nil {
			_ = e.cfg.LocalCache.Put(r.Key, r.Body)
		}
	}
	metrics.ObserveCASTransfer(e.cfg.Metrics, "download", bytes, time.Since(start))
	return blobs, nil
}

func uniqueContentKeys(hits map[hashkey.Key]savedunit.SavedUnit) []hashkey.Key {
	seen := make(map[hashkey.Key]bool)
	var keys []hashkey.Key
	for _, su := range hits {
		for _, f := range su.Files {
			if !seen[f.ContentKey] {
				seen[f.ContentKey] = true
				keys = append(keys, f.ContentKey)
			}
		}
		for _, ck := range sidecarContentKeys(su) {
			if !seen[ck] {
				seen[ck] = true
				keys = append(keys, ck)
			}
		}
	}
	return keys
}

// sidecarContentKeys returns an empty slice: sidecar payloads (fingerprint
// JSON, encoded dep-info, stdout/stderr) are carried inline in the Saved
// Unit, not referenced by Content Key, so they need no CAS fetch. Kept as
// a named hook so a future sidecar-as-blob redesign has one call site to
// change.
func sidecarContentKeys(savedunit.SavedUnit) []hashkey.Key { return nil }
