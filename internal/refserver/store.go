// Package refserver is a reference implementation of spec.md §6's
// metadata-service wire protocol: the CAS plane and cache plane that the
// production metadata service exposes. It exists to give the client
// packages (pkg/cas, pkg/metadataclient) and the cache engine something
// real to round-trip against in tests, and to double as a small
// standalone server for local development. It is not part of the core
// three engines; §1 explicitly scopes "the HTTP framing of the metadata
// service" out of the core.
package refserver

import (
	"context"

	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
)

// Store is the persistence boundary the HTTP handlers drive. Two
// implementations exist: memstore (in-process, used by default and by
// fast tests) and pgstore (gorm+postgres, used where durability across
// restarts matters and exercised by the testcontainers-backed integration
// tests).
//
// Every method is scoped to an orgID, matching spec.md §4.3's
// authorization model: a blob is visible to an organization only if some
// writer in that organization has written it, even though the underlying
// bytes are stored once and shared across organizations that happen to
// write identical content.
type Store interface {
	// ObjectExists reports whether key is present and visible to orgID.
	ObjectExists(ctx context.Context, orgID string, key hashkey.Key) (bool, error)

	// GetObject returns the bytes for key if present and visible to orgID.
	GetObject(ctx context.Context, orgID string, key hashkey.Key) (body []byte, found bool, err error)

	// PutObject stores body under key and adds key to orgID's visibility
	// set. Returns a cacheerr.KindValidation error if body does not hash
	// to key, mirroring spec.md §6's 409 HashMismatch response.
	PutObject(ctx context.Context, orgID string, key hashkey.Key, body []byte) error

	// BulkCheckObjects reports, for each of keys, whether it is visible to
	// orgID.
	BulkCheckObjects(ctx context.Context, orgID string, keys []hashkey.Key) (map[hashkey.Key]bool, error)

	// SaveUnits upserts plan into orgID's saved-unit set. A later save for
	// the same unit key replaces prior content.
	SaveUnits(ctx context.Context, orgID string, plan map[hashkey.Key]savedunit.SavedUnit) error

	// RestoreUnits returns the Saved Units among keys that orgID has
	// previously saved.
	RestoreUnits(ctx context.Context, orgID string, keys []hashkey.Key) (map[hashkey.Key]savedunit.SavedUnit, error)

	// ResetOrg deletes all saved units and visibility entries for orgID.
	// Irreversible. Underlying object bodies are left in place since other
	// organizations' visibility sets may still reference them.
	ResetOrg(ctx context.Context, orgID string) error

	// OrgStats reports the number of saved units and distinct visible
	// content keys for orgID, for the reset-preview diagnostic endpoint.
	OrgStats(ctx context.Context, orgID string) (unitCount, contentCount int, err error)
}
