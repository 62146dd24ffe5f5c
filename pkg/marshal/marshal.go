// Package marshal implements per-unit file marshalling (spec.md §4.5):
// each compilation unit kind knows exactly which files, at which Qualified
// Paths, it owns. The marshaller captures them on save and recreates them
// on restore, consulting the File Metadata model, the CAS, and Qualified
// Paths.
package marshal

import (
	"context"
	"fmt"
	"os"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/fsmeta"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/qualpath"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

// BlobSource supplies previously-fetched CAS object bytes during restore.
// The cache engine is responsible for populating it (via cas.BulkRead)
// before invoking a Marshaller's Restore; the marshaller itself never
// talks to the network.
type BlobSource interface {
	Get(key hashkey.Key) ([]byte, bool)
}

// mapBlobSource is the trivial in-memory BlobSource implementation used by
// the cache engine and by tests.
type mapBlobSource map[hashkey.Key][]byte

func (m mapBlobSource) Get(key hashkey.Key) ([]byte, bool) {
	b, ok := m[key]
	return b, ok
}

// NewBlobSource builds a BlobSource from an already-fetched key→bytes map.
func NewBlobSource(blobs map[hashkey.Key][]byte) BlobSource {
	return mapBlobSource(blobs)
}

// Marshaller captures a unit's files into a Saved Unit and restores a
// Saved Unit's files back onto disk. The three unit kinds share this
// abstract capability as a tagged variant (spec.md §9): there is no
// pluggable unit kind in the core, so New dispatches on unit.Kind rather
// than exposing an open registry.
type Marshaller interface {
	// Capture reads the unit's files from targetDir (the workspace's
	// target/ directory) and returns the Saved Unit, including computed
	// Content Keys and Metadata. It does not upload blob bytes; the
	// returned Content Key→bytes map carries the bytes for the caller (the
	// cache engine) to deduplicate and upload via the CAS client.
	Capture(ctx context.Context, targetDir string, u unit.Unit) (*savedunit.SavedUnit, map[hashkey.Key][]byte, error)

	// Restore recreates the unit's files under targetDir from su, pulling
	// blob bytes from blobs. It is idempotent: restoring the same Saved
	// Unit twice produces the same result as restoring once.
	Restore(ctx context.Context, targetDir string, su *savedunit.SavedUnit, blobs BlobSource) error
}

// New returns the Marshaller for the given unit kind.
func New(kind unit.Kind) (Marshaller, error) {
	switch kind {
	case unit.KindLibrary:
		return libraryMarshaller{}, nil
	case unit.KindBuildScriptCompilation:
		return buildScriptCompilationMarshaller{}, nil
	case unit.KindBuildScriptExecution:
		return buildScriptExecutionMarshaller{}, nil
	default:
		return nil, fmt.Errorf("marshal: unknown unit kind %v", kind)
	}
}

// captureFile reads path, hashes its bytes, and returns a SavedFile plus
// the raw bytes (for the caller to stage for upload). Empty files are
// legal and still receive a Content Key (Blake3 of the empty string).
func captureFile(qp qualpath.Path, absPath string) (savedunit.SavedFile, []byte, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return savedunit.SavedFile{}, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.capture_file", err).WithKey(absPath)
	}
	meta, err := fsmeta.FromFile(absPath)
	if err != nil {
		return savedunit.SavedFile{}, nil, err
	}
	key := hashkey.FromBuffer(data)
	return savedunit.SavedFile{
		Path:         qp,
		ContentKey:   key,
		ModTimeNanos: meta.ModTimeNanos(),
		Executable:   meta.Executable,
	}, data, nil
}

// restoreFile writes a SavedFile's bytes (from blobs) to its resolved
// location under targetDir and applies its metadata. If a file already
// exists with a matching Content Key, the write is skipped but metadata is
// still applied, per spec.md §4.5's tie-break rule.
func restoreFile(targetDir string, sf savedunit.SavedFile, blobs BlobSource) error {
	absPath := sf.Path.Resolve(targetDir)

	if existing, err := os.ReadFile(absPath); err == nil {
		if hashkey.FromBuffer(existing) == sf.ContentKey {
			return fsmeta.Apply(absPath, fsmeta.FromNanos(sf.ModTimeNanos, sf.Executable))
		}
	}

	data, ok := blobs.Get(sf.ContentKey)
	if !ok {
		return cacheerr.New(cacheerr.KindNotFound, "marshal.restore_file", "missing CAS blob").WithKey(sf.ContentKey.String())
	}

	if err := os.MkdirAll(dirOf(absPath), 0o755); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.restore_file.mkdir", err).WithKey(absPath)
	}
	if err := writeFileAtomic(absPath, data); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.restore_file.write", err).WithKey(absPath)
	}
	return fsmeta.Apply(absPath, fsmeta.FromNanos(sf.ModTimeNanos, sf.Executable))
}

// writeVerbatim writes raw bytes (not a Saved File, no Content Key) to a
// Qualified Path, used for the encoded dep-info and fingerprint sidecars
// which are re-emitted directly rather than round-tripped through the CAS.
func writeVerbatim(targetDir string, qp qualpath.Path, data []byte) error {
	abs := qp.Resolve(targetDir)
	if err := os.MkdirAll(dirOf(abs), 0o755); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.write_verbatim.mkdir", err).WithKey(abs)
	}
	if err := writeFileAtomic(abs, data); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.write_verbatim.write", err).WithKey(abs)
	}
	return nil
}

// restoreFingerprint re-emits a captured fingerprint JSON and its sibling
// hash file verbatim at the given location. The hash file is never
// recomputed from the JSON at restore (spec.md §9 Open Question 2); it is
// captured and replayed byte-for-byte.
func restoreFingerprint(targetDir string, loc savedunit.FingerprintLocation, rec savedunit.FingerprintRecord) error {
	if err := writeVerbatim(targetDir, loc.JSONPath, rec.JSON); err != nil {
		return err
	}
	return writeVerbatim(targetDir, loc.HashFilePath, rec.HashFile)
}
