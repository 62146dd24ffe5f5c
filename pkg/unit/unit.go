// Package unit models a Compilation Unit — a single piece of work the
// external compiler would perform — and derives its unit key, the
// Blake3-based fingerprint that identifies the unit's cached instance
// across hosts.
package unit

import (
	"sort"

	"github.com/hurrycache/hurrycache/pkg/hashkey"
)

// Kind distinguishes the three compilation unit variants.
type Kind uint8

const (
	// KindLibrary compiles a crate's library target.
	KindLibrary Kind = iota
	// KindBuildScriptCompilation compiles a package's build-script program.
	KindBuildScriptCompilation
	// KindBuildScriptExecution runs a compiled build script to produce
	// generated sources and compiler directives.
	KindBuildScriptExecution
)

func (k Kind) String() string {
	switch k {
	case KindLibrary:
		return "library"
	case KindBuildScriptCompilation:
		return "build_script_compilation"
	case KindBuildScriptExecution:
		return "build_script_execution"
	default:
		return "unknown"
	}
}

// Unit identifies a single compilation unit. Its (Kind, PackageName,
// PackageVersion, SourceChecksum, TargetTriple, Profile, Features,
// Toolchain, HostABI, DependencyUnitKeys) tuple fully determines its Key.
type Unit struct {
	Kind           Kind
	PackageName    string
	PackageVersion string
	SourceChecksum string
	TargetTriple   string
	Profile        string
	// Features is stored pre-sorted by the caller is not required; Key()
	// sorts a copy before hashing.
	Features []string
	// Toolchain is the compiler version+commit identifier.
	Toolchain string
	// HostABI is populated only when TargetTriple depends on the host C
	// library (e.g. a "-gnu" target); empty otherwise.
	HostABI string
	// DependencyUnitKeys are the unit keys of this unit's direct
	// dependencies, as already-computed hashkey.Key values. Sorted by Key()
	// before hashing, making the overall unit key Merkle-structured:
	// changing any transitive dependency's identity changes this key.
	DependencyUnitKeys []hashkey.Key
	// UnitHash is the 64-bit hash the external compiler itself would
	// assign this unit. Carried for use by the marshaller (file names
	// embed it) but is not part of the unit key derivation — the unit key
	// is this module's own content-addressed identifier, independent of
	// the compiler's internal numbering.
	UnitHash uint64
}

// Key derives the unit's key: Blake3 over the canonical, length-prefixed
// encoding of (kind-tag, package-name, package-version, source-checksum,
// target-triple, profile-name, sorted-feature-list, toolchain-identifier,
// host-abi-identifier-or-empty, sorted-dependency-unit-keys), per spec §4.4.
// Two units with identical identifier tuples always produce identical keys,
// regardless of host.
func (u Unit) Key() hashkey.Key {
	features := append([]string(nil), u.Features...)
	sort.Strings(features)

	deps := append([]hashkey.Key(nil), u.DependencyUnitKeys...)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Compare(deps[j]) < 0 })

	fields := [][]byte{
		hashkey.LengthPrefixed([]byte{byte(u.Kind)}),
		hashkey.LengthPrefixed([]byte(u.PackageName)),
		hashkey.LengthPrefixed([]byte(u.PackageVersion)),
		hashkey.LengthPrefixed([]byte(u.SourceChecksum)),
		hashkey.LengthPrefixed([]byte(u.TargetTriple)),
		hashkey.LengthPrefixed([]byte(u.Profile)),
	}
	for _, f := range features {
		fields = append(fields, hashkey.LengthPrefixed([]byte(f)))
	}
	fields = append(fields,
		hashkey.LengthPrefixed([]byte(u.Toolchain)),
		hashkey.LengthPrefixed([]byte(u.HostABI)),
	)
	for _, d := range deps {
		fields = append(fields, hashkey.LengthPrefixed(d[:]))
	}

	return hashkey.FromFields(fields...)
}
