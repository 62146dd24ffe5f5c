// Package savedunit implements the persistable record of one Compilation
// Unit: its unit key, its ordered Saved Files, and kind-specific sidecar
// data. This is the shape that crosses the wire to and from the metadata
// service (spec.md §3, §4.5, §6).
package savedunit

import (
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/qualpath"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

// SavedFile is one captured file belonging to a Saved Unit.
type SavedFile struct {
	Path       qualpath.Path `json:"path"`
	ContentKey hashkey.Key   `json:"object_key"`
	ModTimeNanos int64       `json:"mtime_nanos"`
	Executable bool          `json:"executable"`
}

// Directive is one parsed `cargo:` line from a build script's captured
// stdout. For a recognized keyword (rerun-if-changed,
// rerun-if-env-changed, rustc-link-lib, rustc-link-search, rustc-cfg,
// rustc-env) Kind is that keyword and Value is everything after the first
// '='. Any other "cargo:" key is captured with Kind set to
// DirectiveMetadata and Value holding "key=value" verbatim. Lines without a
// "cargo:" prefix are warnings and are captured with Kind set to
// DirectiveWarning and Value holding the raw line.
type Directive struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Directive kinds recognized by the build-script stdout parser.
const (
	DirectiveRerunIfChanged    = "rerun-if-changed"
	DirectiveRerunIfEnvChanged = "rerun-if-env-changed"
	DirectiveRustcLinkLib      = "rustc-link-lib"
	DirectiveRustcLinkSearch   = "rustc-link-search"
	DirectiveRustcCfg          = "rustc-cfg"
	DirectiveRustcEnv          = "rustc-env"
	DirectiveMetadata          = "metadata"
	DirectiveWarning           = "warning"
)

// FingerprintRecord is the captured structured form of a unit's
// .fingerprint/<pkg>-<unit-hash>/<pkg>.json file, plus the verbatim bytes
// of its sibling hash file. The hash file is captured verbatim rather than
// recomputed at restore time per spec.md §9 Open Question 2.
type FingerprintRecord struct {
	JSON     []byte `json:"json"`
	HashFile []byte `json:"hash_file"`
}

// FingerprintLocation pins down where a captured FingerprintRecord and its
// sibling hash file live, so restore can re-emit them without having to
// re-derive the unit's package/hash naming convention from fields the
// Saved Unit doesn't otherwise carry.
type FingerprintLocation struct {
	JSONPath     qualpath.Path `json:"json_path"`
	HashFilePath qualpath.Path `json:"hash_file_path"`
}

// LibrarySidecar is the kind-specific payload for a library crate unit.
type LibrarySidecar struct {
	// EncodedDepInfo is the profile-dir/.fingerprint/.../dep-lib-<crate>
	// blob: workspace-or-package-relative paths only, safe to relocate.
	EncodedDepInfo     []byte              `json:"encoded_dep_info"`
	EncodedDepInfoPath qualpath.Path       `json:"encoded_dep_info_path"`
	Fingerprint        FingerprintRecord   `json:"fingerprint"`
	FingerprintAt      FingerprintLocation `json:"fingerprint_at"`
	// InvokedTimestampPath is the sibling empty file whose mtime marks
	// "last build time"; restored with an mtime strictly earlier than
	// every output's mtime in this unit.
	InvokedTimestampPath qualpath.Path `json:"invoked_timestamp_path"`
}

// BuildScriptCompilationSidecar is the kind-specific payload for a
// build-script compilation unit.
type BuildScriptCompilationSidecar struct {
	EncodedDepInfo     []byte              `json:"encoded_dep_info"`
	EncodedDepInfoPath qualpath.Path       `json:"encoded_dep_info_path"`
	Fingerprint        FingerprintRecord   `json:"fingerprint"`
	FingerprintAt      FingerprintLocation `json:"fingerprint_at"`
	// TaggedPath and PlainPath are the two hard-linked locations the
	// compiled build-script program is restored to: the tagged file is
	// what the fingerprint tracks, the plain name is what the build plan
	// executes (spec.md §4.5).
	TaggedPath qualpath.Path `json:"tagged_path"`
	PlainPath  qualpath.Path `json:"plain_path"`
}

// BuildScriptExecutionSidecar is the kind-specific payload for a
// build-script execution unit.
type BuildScriptExecutionSidecar struct {
	// RawStdout is the build script's captured stdout, byte-for-byte.
	// Directives is parsed from it at capture time for inspection, but
	// restore re-emits RawStdout verbatim rather than re-serializing
	// Directives, per spec.md §4.5 ("restore replays bytes without
	// reparsing").
	RawStdout  []byte        `json:"raw_stdout"`
	StdoutPath qualpath.Path `json:"stdout_path"`
	Directives []Directive   `json:"directives"`

	Stderr     []byte        `json:"stderr"`
	StderrPath qualpath.Path `json:"stderr_path"`

	Fingerprint   FingerprintRecord   `json:"fingerprint"`
	FingerprintAt FingerprintLocation `json:"fingerprint_at"`
}

// SavedUnit is the persistable record of one Compilation Unit.
type SavedUnit struct {
	Key   hashkey.Key `json:"key"`
	Files []SavedFile `json:"files"`
	Kind  unit.Kind   `json:"-"`

	// Exactly one of the following three is populated, selected by Kind.
	// They are surfaced together under the wire field "sidecar" by
	// MarshalJSON/UnmarshalJSON in wire.go.
	Library                *LibrarySidecar                `json:"-"`
	BuildScriptCompilation *BuildScriptCompilationSidecar  `json:"-"`
	BuildScriptExecution   *BuildScriptExecutionSidecar    `json:"-"`
}
