// Package memstore implements refserver.Store entirely in process memory.
// It is the default backend for tests and for local development: no
// external database is required. Durability across restarts is not a
// goal (pgstore exists for that).
package memstore

import (
	"context"
	"sync"

	"github.com/hurrycache/hurrycache/internal/refserver"
	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
)

var _ refserver.Store = (*Store)(nil)

// Store is an in-memory refserver.Store.
type Store struct {
	mu sync.RWMutex

	// objects holds blob bytes once per content key, shared across
	// organizations, matching spec.md §4.3: "cross-org duplicates the
	// caller independently wrote" are transparently included in a
	// reader's own visibility rather than re-stored.
	objects map[hashkey.Key][]byte

	// visibility[orgID] is the set of content keys that organization has
	// ever written.
	visibility map[string]map[hashkey.Key]bool

	// units[orgID][unitKey] is that organization's saved units.
	units map[string]map[hashkey.Key]savedunit.SavedUnit
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		objects:    make(map[hashkey.Key][]byte),
		visibility: make(map[string]map[hashkey.Key]bool),
		units:      make(map[string]map[hashkey.Key]savedunit.SavedUnit),
	}
}

func (s *Store) ObjectExists(_ context.Context, orgID string, key hashkey.Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibility[orgID][key], nil
}

func (s *Store) GetObject(_ context.Context, orgID string, key hashkey.Key) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.visibility[orgID][key] {
		return nil, false, nil
	}
	body, ok := s.objects[key]
	return body, ok, nil
}

func (s *Store) PutObject(_ context.Context, orgID string, key hashkey.Key, body []byte) error {
	if hashkey.FromBuffer(body) != key {
		return cacheerr.New(cacheerr.KindValidation, "memstore.put_object", "hash mismatch").WithKey(key.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = body
	if s.visibility[orgID] == nil {
		s.visibility[orgID] = make(map[hashkey.Key]bool)
	}
	s.visibility[orgID][key] = true
	return nil
}

func (s *Store) BulkCheckObjects(_ context.Context, orgID string, keys []hashkey.Key) (map[hashkey.Key]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	present := make(map[hashkey.Key]bool, len(keys))
	orgVis := s.visibility[orgID]
	for _, k := range keys {
		present[k] = orgVis[k]
	}
	return present, nil
}

func (s *Store) SaveUnits(_ context.Context, orgID string, plan map[hashkey.Key]savedunit.SavedUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.units[orgID] == nil {
		s.units[orgID] = make(map[hashkey.Key]savedunit.SavedUnit)
	}
	for k, su := range plan {
		s.units[orgID][k] = su
	}
	return nil
}

func (s *Store) RestoreUnits(_ context.Context, orgID string, keys []hashkey.Key) (map[hashkey.Key]savedunit.SavedUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make(map[hashkey.Key]savedunit.SavedUnit, len(keys))
	orgUnits := s.units[orgID]
	for _, k := range keys {
		if su, ok := orgUnits[k]; ok {
			hits[k] = su
		}
	}
	return hits, nil
}

func (s *Store) ResetOrg(_ context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.units, orgID)
	delete(s.visibility, orgID)
	return nil
}

func (s *Store) OrgStats(_ context.Context, orgID string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units[orgID]), len(s.visibility[orgID]), nil
}
