// Package qualpath implements the Qualified Path: a structured,
// workspace-relative location that can be captured on one host and
// resolved on another with a different absolute prefix. It is carried
// internally as a struct and serialized at the wire boundary as a stable
// JSON string, per spec.md §9's design note.
package qualpath

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// RootKind names the workspace-relative root a Path is anchored to.
type RootKind string

const (
	// RootProfileDir anchors beneath target/<target-triple>/<profile>/ (or
	// target/<profile>/ for the host target).
	RootProfileDir RootKind = "profile_dir"
	// RootDepsDir anchors beneath the profile dir's deps/ subdirectory.
	RootDepsDir RootKind = "deps_dir"
	// RootFingerprintDir anchors beneath the profile dir's .fingerprint/
	// subdirectory; the <pkg>-<unit-hash>/ component is part of SubPath.
	RootFingerprintDir RootKind = "fingerprint_dir"
	// RootBuildDir anchors beneath the profile dir's build/ subdirectory;
	// the <pkg>-<unit-hash>/ component is part of SubPath.
	RootBuildDir RootKind = "build_dir"
	// RootOutDir also anchors beneath the profile dir's build/
	// subdirectory; SubPath carries <pkg>-<unit-hash>/out/ and the file
	// below it.
	RootOutDir RootKind = "out_dir"
)

// Path is a workspace-relative, relocatable file location: (root kind,
// target triple, profile name, sub-path).
type Path struct {
	Root        RootKind `json:"root"`
	TargetTriple string  `json:"target_triple"`
	Profile     string   `json:"profile"`
	SubPath     string   `json:"sub_path"`
}

// New constructs a Path, normalizing SubPath to forward slashes so the
// JSON encoding is stable across host operating systems.
func New(root RootKind, targetTriple, profile, subPath string) Path {
	return Path{
		Root:         root,
		TargetTriple: targetTriple,
		Profile:      profile,
		SubPath:      filepath.ToSlash(subPath),
	}
}

// Encode serializes the path to its stable JSON string form, as stored in
// a SavedFile's path field on the wire.
func (p Path) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("qualpath: encode: %w", err)
	}
	return string(b), nil
}

// Decode parses a JSON-encoded Path string. Unknown fields are ignored for
// forward compatibility.
func Decode(s string) (Path, error) {
	var p Path
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Path{}, fmt.Errorf("qualpath: decode: %w", err)
	}
	return p, nil
}

// Resolve produces the absolute filesystem path for p given the
// workspace's target directory (e.g. "<workspace>/target"). This is the
// only place host-specific absolute prefixes enter the picture; the Path
// itself never stores one.
func (p Path) Resolve(targetDir string) string {
	base := targetDir
	if p.TargetTriple != "" {
		base = filepath.Join(base, p.TargetTriple)
	}
	if p.Profile != "" {
		base = filepath.Join(base, p.Profile)
	}
	switch p.Root {
	case RootDepsDir:
		base = filepath.Join(base, "deps")
	case RootFingerprintDir:
		base = filepath.Join(base, ".fingerprint")
	case RootBuildDir:
		base = filepath.Join(base, "build")
	case RootOutDir:
		base = filepath.Join(base, "build")
	}
	return filepath.Join(base, filepath.FromSlash(p.SubPath))
}
