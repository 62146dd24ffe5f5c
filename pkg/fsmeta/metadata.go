// Package fsmeta captures and reapplies the slice of filesystem state the
// external build driver inspects to decide whether a compilation unit is
// fresh: modification time and the executable bit. It deliberately does not
// model ownership, extended attributes, or any other metadata.
package fsmeta

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
)

// execBits is the minimal executable mode applied to a file when
// Metadata.Executable is true. Directories created along the way always
// get 0755 regardless of this value; this mirrors the build driver's own
// convention of executable outputs carrying the owner+group+other execute
// bits together.
const execBits = 0o755
const nonExecBits = 0o644

// Metadata is the tuple (modification time, executable bit) captured
// alongside a file's Content Key. Multiple Saved Files may share a Content
// Key (e.g. all empty files); Metadata is therefore never folded into the
// CAS object and always travels as a sidecar.
type Metadata struct {
	// ModTime is stored with full nanosecond precision; on restore it is
	// applied via os.Chtimes, which on most platforms truncates to the
	// filesystem's actual timestamp resolution.
	ModTime    time.Time
	Executable bool
}

// ModTimeNanos returns the modification time as nanoseconds since the Unix
// epoch, the 128-bit-capable representation used on the wire (int64 here;
// Go's time.Time cannot itself exceed int64 nanosecond range, which safely
// covers dates until the year 2262).
func (m Metadata) ModTimeNanos() int64 {
	return m.ModTime.UnixNano()
}

// FromNanos constructs a Metadata from a wire-format nanosecond timestamp
// and executable flag.
func FromNanos(nanos int64, executable bool) Metadata {
	return Metadata{ModTime: time.Unix(0, nanos), Executable: executable}
}

// FromFile reads the modification time and executable bit of the file at
// absPath. It fails with a cacheerr of KindLocalIO if the path is missing
// or unreadable.
func FromFile(absPath string) (Metadata, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return Metadata{}, cacheerr.Wrap(cacheerr.KindLocalIO, "fsmeta.from_file", err).WithKey(absPath)
	}
	return Metadata{
		ModTime:    info.ModTime(),
		Executable: info.Mode()&0o111 != 0,
	}, nil
}

// Apply sets the modification time and executable bit on the file at
// absPath, creating parent directories (mode 0755) as necessary. It is
// idempotent: applying the same Metadata twice leaves the file in the same
// state as applying it once.
func Apply(absPath string, m Metadata) error {
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "fsmeta.apply.mkdir", err).WithKey(absPath)
	}

	mode := os.FileMode(nonExecBits)
	if m.Executable {
		mode = os.FileMode(execBits)
	}
	if err := os.Chmod(absPath, mode); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "fsmeta.apply.chmod", err).WithKey(absPath)
	}

	if err := os.Chtimes(absPath, m.ModTime, m.ModTime); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "fsmeta.apply.chtimes", err).WithKey(absPath)
	}
	return nil
}

// Before returns a Metadata with a modification time strictly earlier than
// m's by one tick of the given resolution (used for the invoked-timestamp
// file, which must sort strictly before every output file's mtime; see
// the cache engine's ordering guarantees).
func (m Metadata) Before(tick time.Duration) Metadata {
	if tick <= 0 {
		tick = time.Nanosecond
	}
	return Metadata{ModTime: m.ModTime.Add(-tick), Executable: m.Executable}
}
