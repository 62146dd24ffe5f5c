package cacheengine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hurrycache/hurrycache/pkg/cas"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/marshal"
	"github.com/hurrycache/hurrycache/pkg/metrics"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

// Save determines units \ restored.Successful, captures their files,
// deduplicates and uploads blob bytes, and posts the resulting save plan
// to the metadata service. It returns a handle for async progress
// inspection; callers that want to wait call handle.Wait(). Save errors
// are never returned as an error from this call — per spec.md §7 a failed
// cache upload must never fail the user's build — they surface only as a
// StatusFailed handle.
func (e *Engine) Save(ctx context.Context, units []unit.Unit, restored *Restored) *UploadHandle {
	var toSave []unit.Unit
	for _, u := range units {
		if !restored.IsRestored(u.Key()) {
			toSave = append(toSave, u)
		}
	}

	unitKeys := make([]string, len(toSave))
	for i, u := range toSave {
		unitKeys[i] = u.Key().String()
	}
	handle := newHandle(unitKeys)

	if len(toSave) == 0 {
		handle.succeed()
		return handle
	}

	go e.runSave(ctx, toSave, handle)
	return handle
}

func (e *Engine) runSave(ctx context.Context, units []unit.Unit, handle *UploadHandle) {
	metrics.RecordInFlightSaves(e.cfg.Metrics, int(atomic.AddInt64(&e.inflightSaves, 1)))
	defer func() {
		metrics.RecordInFlightSaves(e.cfg.Metrics, int(atomic.AddInt64(&e.inflightSaves, -1)))
	}()

	// Coalesce against any other in-flight save for the same unit key:
	// if every unit in this batch is already being saved elsewhere, this
	// call simply waits on those handles instead of re-capturing.
	var toCapture []unit.Unit
	var borrowed []*UploadHandle
	for _, u := range units {
		if existing, inflight := e.coalescer.claim(u.Key(), handle); inflight {
			borrowed = append(borrowed, existing)
			continue
		}
		toCapture = append(toCapture, u)
	}
	defer func() {
		for _, u := range toCapture {
			e.coalescer.release(u.Key())
		}
	}()

	plan := make(map[hashkey.Key]savedunit.SavedUnit)
	blobs := make(map[hashkey.Key][]byte)
	var mu sync.Mutex
	var wg sync.WaitGroup
	failed := false
	var failureReason string

	for _, u := range toCapture {
		u := u
		e.unitSem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-e.unitSem }()
			start := time.Now()

			m, err := marshal.New(u.Kind)
			if err != nil {
				mu.Lock()
				failed, failureReason = true, err.Error()
				mu.Unlock()
				metrics.ObserveSave(e.cfg.Metrics, false, time.Since(start))
				return
			}

			su, unitBlobs, err := m.Capture(ctx, e.cfg.TargetDir, u)
			if err != nil {
				mu.Lock()
				failed, failureReason = true, err.Error()
				mu.Unlock()
				metrics.ObserveSave(e.cfg.Metrics, false, time.Since(start))
				return
			}

			mu.Lock()
			plan[su.Key] = *su
			for k, v := range unitBlobs {
				blobs[k] = v
			}
			mu.Unlock()
			metrics.ObserveSave(e.cfg.Metrics, true, time.Since(start))
		}()
	}
	wg.Wait()

	if failed {
		handle.fail(failureReason)
		return
	}

	if err := e.uploadBlobs(ctx, blobs); err != nil {
		handle.fail(err.Error())
		return
	}

	if len(plan) > 0 {
		if err := e.cfg.Metadata.Save(ctx, plan); err != nil {
			handle.fail(err.Error())
			return
		}
	}

	for _, b := range borrowed {
		b.Wait()
	}
	handle.succeed()
}

// uploadBlobs deduplicates content keys across units, filters out keys the
// CAS already has, then streams the remainder via bulk write. If any blob
// fails to upload, the first per-blob error is returned and runSave fails
// the whole save without posting the plan: units are not failed
// individually, so units whose blobs all uploaded are not saved either.
func (e *Engine) uploadBlobs(ctx context.Context, blobs map[hashkey.Key][]byte) error {
	if len(blobs) == 0 {
		return nil
	}

	keys := make([]hashkey.Key, 0, len(blobs))
	for k := range blobs {
		keys = append(keys, k)
	}

	present, err := e.cfg.CAS.BulkCheck(ctx, keys)
	if err != nil {
		return err
	}

	var items []cas.BulkWriteItem
	for k, body := range blobs {
		if present[k] {
			continue
		}
		items = append(items, cas.BulkWriteItem{Key: k, Body: body})
	}
	if len(items) == 0 {
		return nil
	}

	var uploadBytes int64
	for _, item := range items {
		uploadBytes += int64(len(item.Body))
	}

	start := time.Now()
	result, err := e.cfg.CAS.BulkWrite(ctx, items)
	metrics.ObserveCASTransfer(e.cfg.Metrics, "upload", uploadBytes, time.Since(start))
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return result.Errors[0]
	}

	if e.cfg.LocalCache != nil {
		for _, item := range items {
			_ = e.cfg.LocalCache.Put(item.Key, item.Body)
		}
	}
	return nil
}
