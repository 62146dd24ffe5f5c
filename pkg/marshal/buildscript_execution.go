package marshal

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/qualpath"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

type buildScriptExecutionMarshaller struct{}

func (buildScriptExecutionMarshaller) Capture(ctx context.Context, targetDir string, u unit.Unit) (*savedunit.SavedUnit, map[hashkey.Key][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	blobs := make(map[hashkey.Key][]byte)
	buildSub := fmt.Sprintf("%s-%x", u.PackageName, u.UnitHash)
	outDirQP := qualpath.New(qualpath.RootOutDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/out", buildSub))
	outDirAbs := outDirQP.Resolve(targetDir)

	var files []savedunit.SavedFile
	err := filepath.Walk(outDirAbs, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outDirAbs, path)
		if err != nil {
			return err
		}
		qp := qualpath.New(qualpath.RootOutDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/out/%s", buildSub, filepath.ToSlash(rel)))
		sf, data, err := captureFile(qp, path)
		if err != nil {
			return err
		}
		files = append(files, sf)
		blobs[sf.ContentKey] = data
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			// An empty out_dir is legal: no directives wrote anything there.
		} else {
			return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_execution.capture", err).WithKey(outDirAbs)
		}
	}

	stdoutQP := qualpath.New(qualpath.RootBuildDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/output", buildSub))
	stdout, err := os.ReadFile(stdoutQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_execution.capture", err).WithKey(stdoutQP.Resolve(targetDir))
	}
	directives, err := ParseDirectives(stdout)
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindValidation, "marshal.build_script_execution.capture", err).WithKey(stdoutQP.Resolve(targetDir))
	}

	stderrQP := qualpath.New(qualpath.RootBuildDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/stderr", buildSub))
	stderr, err := os.ReadFile(stderrQP.Resolve(targetDir))
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_execution.capture", err).WithKey(stderrQP.Resolve(targetDir))
	}

	fpJSONQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/run-build-script-build-script-build.json", buildSub))
	fpJSON, err := os.ReadFile(fpJSONQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_execution.capture", err).WithKey(fpJSONQP.Resolve(targetDir))
	}
	fpHashQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/run-build-script-build-script-build.json.hash", buildSub))
	fpHash, err := os.ReadFile(fpHashQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_execution.capture", err).WithKey(fpHashQP.Resolve(targetDir))
	}

	su := &savedunit.SavedUnit{
		Key:   u.Key(),
		Files: files,
		Kind:  unit.KindBuildScriptExecution,
		BuildScriptExecution: &savedunit.BuildScriptExecutionSidecar{
			RawStdout:     stdout,
			StdoutPath:    stdoutQP,
			Directives:    directives,
			Stderr:        stderr,
			StderrPath:    stderrQP,
			Fingerprint:   savedunit.FingerprintRecord{JSON: fpJSON, HashFile: fpHash},
			FingerprintAt: savedunit.FingerprintLocation{JSONPath: fpJSONQP, HashFilePath: fpHashQP},
		},
	}
	return su, blobs, nil
}

func (buildScriptExecutionMarshaller) Restore(ctx context.Context, targetDir string, su *savedunit.SavedUnit, blobs BlobSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sc := su.BuildScriptExecution
	if sc == nil {
		return cacheerr.New(cacheerr.KindValidation, "marshal.build_script_execution.restore", "missing sidecar").WithKey(su.Key.String())
	}

	for _, sf := range su.Files {
		if err := restoreFile(targetDir, sf, blobs); err != nil {
			return err
		}
	}

	// Captured stdout is re-emitted verbatim, never reparsed from
	// Directives, per spec.md §4.5. Stderr is raw bytes, restored the
	// same way.
	if err := writeVerbatim(targetDir, sc.StdoutPath, sc.RawStdout); err != nil {
		return err
	}
	if err := writeVerbatim(targetDir, sc.StderrPath, sc.Stderr); err != nil {
		return err
	}

	// root-output is not saved; it is reconstructible from the workspace
	// and unit plan and is therefore never written here (spec.md §4.5).

	return restoreFingerprint(targetDir, sc.FingerprintAt, sc.Fingerprint)
}

// ParseDirectives parses a build script's captured stdout into structured
// directives. Lines matching "cargo:<key>=<value>" or bare "cargo:<key>"
// become a Directive of the corresponding Kind (an unrecognized
// "cargo:"-prefixed key is kept with Kind=DirectiveMetadata and Value
// holding "key=value" verbatim); lines without the "cargo:" prefix are
// captured as DirectiveWarning with the raw line as Value. Parsing
// failures are fatal to the unit's save; restore replays bytes without
// reparsing.
func ParseDirectives(stdout []byte) ([]savedunit.Directive, error) {
	var directives []savedunit.Directive
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cargo:") {
			directives = append(directives, savedunit.Directive{Kind: savedunit.DirectiveWarning, Value: line})
			continue
		}
		rest := strings.TrimPrefix(line, "cargo:")
		kind, value, _ := strings.Cut(rest, "=")

		switch kind {
		case savedunit.DirectiveRerunIfChanged,
			savedunit.DirectiveRerunIfEnvChanged,
			savedunit.DirectiveRustcLinkLib,
			savedunit.DirectiveRustcLinkSearch,
			savedunit.DirectiveRustcCfg,
			savedunit.DirectiveRustcEnv:
			directives = append(directives, savedunit.Directive{Kind: kind, Value: value})
		default:
			directives = append(directives, savedunit.Directive{Kind: savedunit.DirectiveMetadata, Value: rest})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("marshal: parse build-script stdout: %w", err)
	}
	return directives, nil
}
