package unit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
)

// WorkspaceDescription is the external build driver's own description of
// a workspace: the package list, resolved dependency graph, profile,
// feature set, target triple, and toolchain identity. The planner never
// invokes the build driver itself — the caller is responsible for running
// its metadata command and decoding the result into this shape.
type WorkspaceDescription struct {
	// ManifestPath is the workspace's manifest file, used only to validate
	// that the workspace is readable; the planner does not parse it.
	ManifestPath string
	Packages     []PackageDescription
	TargetTriple string
	Profile      string
	Toolchain    string
	// HostGLibCVersion is set only when resolving a unit that depends on
	// the host C library; otherwise left empty.
	HostGLibCVersion string
}

// PackageDescription is one resolved package node in the workspace's
// dependency graph.
type PackageDescription struct {
	Name           string
	Version        string
	SourceChecksum string
	Features       []string
	// DependencyNames are the direct dependency package names; the
	// planner resolves these into unit keys via a second pass over the
	// already-planned set, since a package's unit key depends on its
	// dependencies' unit keys.
	DependencyNames []string
	// HasBuildScript indicates the package owns a build.rs-equivalent
	// build script, producing build-script compilation and execution
	// units in addition to its library unit.
	HasBuildScript bool
}

// Plan is the planner's output: every Compilation Unit the workspace would
// produce, each already carrying its derived Key.
type Plan struct {
	Units []Unit
}

// Planner enumerates the Compilation Units a workspace would produce and
// computes their unit keys. It never modifies the workspace.
type Planner struct{}

// NewPlanner constructs a Planner. There is no configuration today; the
// constructor exists so call sites read the same way regardless of future
// options, matching this module's other component constructors.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan derives the full set of Compilation Units for desc. Failure modes:
// WorkspaceInvalid (no manifest, unreadable), UnsupportedTarget
// (cross-compile configuration not representable), ToolchainUnresolvable.
func (p *Planner) Plan(ctx context.Context, desc WorkspaceDescription) (*Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.validateWorkspace(desc); err != nil {
		return nil, err
	}

	byName := make(map[string]PackageDescription, len(desc.Packages))
	for _, pkg := range desc.Packages {
		byName[pkg.Name] = pkg
	}

	hostABI := ""
	if requiresHostABI(desc.TargetTriple) {
		if desc.HostGLibCVersion == "" {
			return nil, cacheerr.New(cacheerr.KindValidation, "planner.plan",
				fmt.Sprintf("target %q depends on the host C library but no host ABI identifier was supplied", desc.TargetTriple))
		}
		hostABI = desc.HostGLibCVersion
	}

	// Units must be derived in dependency order (dependencies before
	// dependents) so each dependent's DependencyUnitKeys are already known.
	order, err := topoSort(desc.Packages)
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.KindValidation, "planner.plan", err)
	}

	libKeys := make(map[string]Unit, len(order))
	var units []Unit

	for _, name := range order {
		pkg := byName[name]

		depUnitKeys := make([]hashkey.Key, 0, len(pkg.DependencyNames))
		for _, dep := range pkg.DependencyNames {
			du, ok := libKeys[dep]
			if !ok {
				return nil, cacheerr.New(cacheerr.KindValidation, "planner.plan",
					fmt.Sprintf("package %q depends on unresolved package %q", name, dep))
			}
			depUnitKeys = append(depUnitKeys, du.Key())
		}

		libUnit := Unit{
			Kind:               KindLibrary,
			PackageName:        pkg.Name,
			PackageVersion:     pkg.Version,
			SourceChecksum:     pkg.SourceChecksum,
			TargetTriple:       desc.TargetTriple,
			Profile:            desc.Profile,
			Features:           pkg.Features,
			Toolchain:          desc.Toolchain,
			HostABI:            hostABI,
			DependencyUnitKeys: depUnitKeys,
		}
		libKeys[name] = libUnit
		units = append(units, libUnit)

		if pkg.HasBuildScript {
			buildScriptCompile := Unit{
				Kind:               KindBuildScriptCompilation,
				PackageName:        pkg.Name,
				PackageVersion:     pkg.Version,
				SourceChecksum:     pkg.SourceChecksum,
				TargetTriple:       desc.TargetTriple,
				Profile:            desc.Profile,
				Toolchain:          desc.Toolchain,
				HostABI:            hostABI,
				DependencyUnitKeys: depUnitKeys,
			}
			units = append(units, buildScriptCompile)

			buildScriptExec := Unit{
				Kind:               KindBuildScriptExecution,
				PackageName:        pkg.Name,
				PackageVersion:     pkg.Version,
				SourceChecksum:     pkg.SourceChecksum,
				TargetTriple:       desc.TargetTriple,
				Profile:            desc.Profile,
				Features:           pkg.Features,
				Toolchain:          desc.Toolchain,
				HostABI:            hostABI,
				DependencyUnitKeys: []hashkey.Key{buildScriptCompile.Key()},
			}
			units = append(units, buildScriptExec)
		}
	}

	return &Plan{Units: units}, nil
}

func (p *Planner) validateWorkspace(desc WorkspaceDescription) error {
	if desc.ManifestPath == "" {
		return cacheerr.New(cacheerr.KindValidation, "planner.plan", "WorkspaceInvalid: no manifest path supplied")
	}
	if _, err := os.Stat(desc.ManifestPath); err != nil {
		return cacheerr.Wrap(cacheerr.KindValidation, "planner.plan", fmt.Errorf("WorkspaceInvalid: %w", err)).WithKey(desc.ManifestPath)
	}
	if desc.TargetTriple == "" {
		return cacheerr.New(cacheerr.KindValidation, "planner.plan", "UnsupportedTarget: empty target triple")
	}
	if desc.Toolchain == "" {
		return cacheerr.New(cacheerr.KindValidation, "planner.plan", "ToolchainUnresolvable: empty toolchain identifier")
	}
	if len(desc.Packages) == 0 {
		return cacheerr.New(cacheerr.KindValidation, "planner.plan", "WorkspaceInvalid: no packages resolved")
	}
	return nil
}

// requiresHostABI reports whether triple is a target whose artifacts
// depend on the host's C library identity (glibc-linked "gnu" targets).
func requiresHostABI(triple string) bool {
	return filepath.Ext(triple) == "" && len(triple) > 4 && triple[len(triple)-4:] == "-gnu"
}
