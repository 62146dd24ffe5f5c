package marshal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

func writeBuildScriptExecutionFixture(t *testing.T, targetDir, pkgName string, unitHash uint64, stdout string) {
	t.Helper()
	buildSub := fmt.Sprintf("%s-%x", pkgName, unitHash)
	buildDir := filepath.Join(targetDir, testTriple, testProfile, "build", buildSub)
	outDir := filepath.Join(buildDir, "out")
	fpDir := filepath.Join(targetDir, testTriple, testProfile, ".fingerprint", buildSub)

	for _, d := range []string{outDir, fpDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite := func(path string, data []byte) {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	mustWrite(filepath.Join(outDir, "generated.rs"), []byte("pub const X: u32 = 1;\n"))
	if err := os.MkdirAll(filepath.Join(outDir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(filepath.Join(outDir, "nested", "more.rs"), []byte("pub const Y: u32 = 2;\n"))
	mustWrite(filepath.Join(buildDir, "output"), []byte(stdout))
	mustWrite(filepath.Join(buildDir, "stderr"), []byte("warning: unused variable\n"))
	mustWrite(filepath.Join(fpDir, "run-build-script-build-script-build.json"), []byte(`{"deps":[]}`))
	mustWrite(filepath.Join(fpDir, "run-build-script-build-script-build.json.hash"), []byte("f00dface"))
}

func buildScriptExecutionTestUnit(pkgName string, unitHash uint64) unit.Unit {
	return unit.Unit{
		Kind:           unit.KindBuildScriptExecution,
		PackageName:    pkgName,
		PackageVersion: "0.1.0",
		TargetTriple:   testTriple,
		Profile:        testProfile,
		Toolchain:      "1.75.0",
		UnitHash:       unitHash,
	}
}

func TestBuildScriptExecutionCaptureRestoreRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	stdout := "cargo:rerun-if-changed=build.rs\ncargo:rustc-link-lib=z\nnot a directive line\n"
	u := buildScriptExecutionTestUnit("tiny", 0x01020304)
	writeBuildScriptExecutionFixture(t, srcDir, u.PackageName, u.UnitHash, stdout)

	m, err := New(unit.KindBuildScriptExecution)
	if err != nil {
		t.Fatal(err)
	}

	su, blobs, err := m.Capture(context.Background(), srcDir, u)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(su.Files) != 2 {
		t.Fatalf("expected 2 out_dir files (including nested), got %d", len(su.Files))
	}
	if su.BuildScriptExecution == nil {
		t.Fatalf("expected build-script-execution sidecar")
	}
	if len(su.BuildScriptExecution.Directives) != 3 {
		t.Fatalf("expected 3 parsed directives, got %d: %+v", len(su.BuildScriptExecution.Directives), su.BuildScriptExecution.Directives)
	}
	if su.BuildScriptExecution.Directives[0].Kind != savedunit.DirectiveRerunIfChanged {
		t.Fatalf("expected first directive to be rerun-if-changed, got %+v", su.BuildScriptExecution.Directives[0])
	}
	if su.BuildScriptExecution.Directives[2].Kind != savedunit.DirectiveWarning {
		t.Fatalf("expected non-cargo line to be a warning directive, got %+v", su.BuildScriptExecution.Directives[2])
	}

	if err := m.Restore(context.Background(), dstDir, su, NewBlobSource(blobs)); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	for _, sf := range su.Files {
		abs := sf.Path.Resolve(dstDir)
		if _, err := os.Stat(abs); err != nil {
			t.Fatalf("restored out_dir file missing: %v", err)
		}
	}

	buildSub := fmt.Sprintf("%s-%x", u.PackageName, u.UnitHash)
	buildDir := filepath.Join(dstDir, testTriple, testProfile, "build", buildSub)

	restoredStdout, err := os.ReadFile(filepath.Join(buildDir, "output"))
	if err != nil {
		t.Fatalf("captured stdout should be restored verbatim: %v", err)
	}
	if string(restoredStdout) != stdout {
		t.Fatalf("restored stdout = %q, want %q", restoredStdout, stdout)
	}

	restoredStderr, err := os.ReadFile(filepath.Join(buildDir, "stderr"))
	if err != nil {
		t.Fatalf("captured stderr should be restored: %v", err)
	}
	if string(restoredStderr) != "warning: unused variable\n" {
		t.Fatalf("restored stderr = %q", restoredStderr)
	}

	// root-output lives under .fingerprint/<pkg>-<hash>/root-output, distinct
	// from the captured stdout above; it is never captured or restored,
	// per spec — it is reconstructible from the workspace and unit plan.
	rootOutput := filepath.Join(dstDir, testTriple, testProfile, ".fingerprint", buildSub, "root-output")
	if _, err := os.Stat(rootOutput); err == nil {
		t.Fatalf("root-output should not be restored")
	}
}

func TestBuildScriptExecutionCaptureToleratesEmptyOutDir(t *testing.T) {
	srcDir := t.TempDir()
	u := buildScriptExecutionTestUnit("tiny", 0x5)
	buildSub := fmt.Sprintf("%s-%x", u.PackageName, u.UnitHash)
	buildDir := filepath.Join(srcDir, testTriple, testProfile, "build", buildSub)
	fpDir := filepath.Join(srcDir, testTriple, testProfile, ".fingerprint", buildSub)
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(fpDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Deliberately no out/ directory at all.
	if err := os.WriteFile(filepath.Join(buildDir, "output"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fpDir, "run-build-script-build-script-build.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fpDir, "run-build-script-build-script-build.json.hash"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	m, _ := New(unit.KindBuildScriptExecution)
	su, _, err := m.Capture(context.Background(), srcDir, u)
	if err != nil {
		t.Fatalf("expected a missing out_dir to be tolerated, got error: %v", err)
	}
	if len(su.Files) != 0 {
		t.Fatalf("expected no files for an empty out_dir, got %d", len(su.Files))
	}
}

func TestParseDirectivesUnknownCargoKey(t *testing.T) {
	directives, err := ParseDirectives([]byte("cargo:some-custom-key=42\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(directives) != 1 || directives[0].Kind != savedunit.DirectiveMetadata {
		t.Fatalf("expected unrecognized cargo: key to be captured as metadata, got %+v", directives)
	}
}
