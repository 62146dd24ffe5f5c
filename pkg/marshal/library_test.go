package marshal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hurrycache/hurrycache/pkg/unit"
)

const testTriple = "x86_64-unknown-linux-gnu"
const testProfile = "debug"

func writeLibraryFixture(t *testing.T, targetDir, pkgName string, unitHash uint64) {
	t.Helper()
	depsDir := filepath.Join(targetDir, testTriple, testProfile, "deps")
	fpDir := filepath.Join(targetDir, testTriple, testProfile, ".fingerprint", fmt.Sprintf("%s-%x", pkgName, unitHash))
	if err := os.MkdirAll(depsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(fpDir, 0o755); err != nil {
		t.Fatal(err)
	}

	mustWrite := func(path string, data []byte) {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	mustWrite(filepath.Join(depsDir, fmt.Sprintf("lib%s-%x.rlib", pkgName, unitHash)), []byte("rlib bytes"))
	mustWrite(filepath.Join(depsDir, fmt.Sprintf("%s-%x.d", pkgName, unitHash)), []byte(pkgName+": src/lib.rs\n"))
	mustWrite(filepath.Join(fpDir, fmt.Sprintf("dep-lib-%s", pkgName)), []byte("encoded dep info"))
	mustWrite(filepath.Join(fpDir, pkgName+".json"), []byte(`{"rustc":123}`))
	mustWrite(filepath.Join(fpDir, pkgName+".json.hash"), []byte("deadbeefcafef00d"))
}

func libraryTestUnit(pkgName string, unitHash uint64) unit.Unit {
	return unit.Unit{
		Kind:           unit.KindLibrary,
		PackageName:    pkgName,
		PackageVersion: "0.1.0",
		SourceChecksum: "aaa",
		TargetTriple:   testTriple,
		Profile:        testProfile,
		Toolchain:      "1.75.0",
		HostABI:        "gnu-2.35",
		UnitHash:       unitHash,
	}
}

func TestLibraryMarshallerCaptureRestoreRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	u := libraryTestUnit("tiny", 0xdeadbeef)
	writeLibraryFixture(t, srcDir, u.PackageName, u.UnitHash)

	m, err := New(unit.KindLibrary)
	if err != nil {
		t.Fatal(err)
	}

	su, blobs, err := m.Capture(context.Background(), srcDir, u)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(su.Files) != 2 {
		t.Fatalf("expected rlib + dep-info files, got %d: %+v", len(su.Files), su.Files)
	}
	if su.Library == nil {
		t.Fatalf("expected library sidecar")
	}

	if err := m.Restore(context.Background(), dstDir, su, NewBlobSource(blobs)); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	for _, sf := range su.Files {
		srcAbs := sf.Path.Resolve(srcDir)
		dstAbs := sf.Path.Resolve(dstDir)
		srcBytes, err := os.ReadFile(srcAbs)
		if err != nil {
			t.Fatal(err)
		}
		dstBytes, err := os.ReadFile(dstAbs)
		if err != nil {
			t.Fatalf("restored file missing at %s: %v", dstAbs, err)
		}
		if string(srcBytes) != string(dstBytes) {
			t.Fatalf("restored bytes differ for %s", dstAbs)
		}
	}

	encodedAbs := su.Library.EncodedDepInfoPath.Resolve(dstDir)
	if got, _ := os.ReadFile(encodedAbs); string(got) != "encoded dep info" {
		t.Fatalf("encoded dep-info not restored verbatim, got %q", got)
	}
	hashAbs := su.Library.FingerprintAt.HashFilePath.Resolve(dstDir)
	if got, _ := os.ReadFile(hashAbs); string(got) != "deadbeefcafef00d" {
		t.Fatalf("fingerprint hash file not restored verbatim, got %q", got)
	}

	invokedAbs := su.Library.InvokedTimestampPath.Resolve(dstDir)
	invokedInfo, err := os.Stat(invokedAbs)
	if err != nil {
		t.Fatalf("invoked timestamp not created: %v", err)
	}
	for _, sf := range su.Files {
		outInfo, err := os.Stat(sf.Path.Resolve(dstDir))
		if err != nil {
			t.Fatal(err)
		}
		if !invokedInfo.ModTime().Before(outInfo.ModTime()) {
			t.Fatalf("invoked timestamp %v is not strictly earlier than output mtime %v", invokedInfo.ModTime(), outInfo.ModTime())
		}
	}
}

func TestLibraryMarshallerRestoreIdempotent(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	u := libraryTestUnit("tiny", 0xdeadbeef)
	writeLibraryFixture(t, srcDir, u.PackageName, u.UnitHash)

	m, _ := New(unit.KindLibrary)
	su, blobs, err := m.Capture(context.Background(), srcDir, u)
	if err != nil {
		t.Fatal(err)
	}
	blobSource := NewBlobSource(blobs)

	if err := m.Restore(context.Background(), dstDir, su, blobSource); err != nil {
		t.Fatalf("first restore: %v", err)
	}
	first := map[string][]byte{}
	for _, sf := range su.Files {
		b, _ := os.ReadFile(sf.Path.Resolve(dstDir))
		first[sf.Path.SubPath] = b
	}

	if err := m.Restore(context.Background(), dstDir, su, blobSource); err != nil {
		t.Fatalf("second restore: %v", err)
	}
	for _, sf := range su.Files {
		b, _ := os.ReadFile(sf.Path.Resolve(dstDir))
		if string(b) != string(first[sf.Path.SubPath]) {
			t.Fatalf("restoring twice changed file content for %s", sf.Path.SubPath)
		}
	}
}

func TestLibraryMarshallerSkipsRewriteOnMatchingContentKey(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	u := libraryTestUnit("tiny", 0xdeadbeef)
	writeLibraryFixture(t, srcDir, u.PackageName, u.UnitHash)

	m, _ := New(unit.KindLibrary)
	su, blobs, err := m.Capture(context.Background(), srcDir, u)
	if err != nil {
		t.Fatal(err)
	}

	// Pre-seed the destination with byte-identical content at the rlib's
	// resolved path so restoreFile's tie-break (skip write, still apply
	// metadata) is exercised.
	rlibSF := su.Files[0]
	abs := rlibSF.Path.Resolve(dstDir)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	srcBytes, _ := os.ReadFile(rlibSF.Path.Resolve(srcDir))
	if err := os.WriteFile(abs, srcBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := m.Restore(context.Background(), dstDir, su, NewBlobSource(blobs)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := os.ReadFile(abs)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(srcBytes) {
		t.Fatalf("content changed despite matching content key")
	}
}

func TestLibraryMarshallerCaptureEmptyFileGetsContentKey(t *testing.T) {
	srcDir := t.TempDir()
	u := libraryTestUnit("tiny", 0x1)
	depsDir := filepath.Join(srcDir, testTriple, testProfile, "deps")
	fpDir := filepath.Join(srcDir, testTriple, testProfile, ".fingerprint", fmt.Sprintf("tiny-%x", u.UnitHash))
	if err := os.MkdirAll(depsDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(fpDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(depsDir, fmt.Sprintf("libtiny-%x.rlib", u.UnitHash)), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(depsDir, fmt.Sprintf("tiny-%x.d", u.UnitHash)), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fpDir, "dep-lib-tiny"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fpDir, "tiny.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fpDir, "tiny.json.hash"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	m, _ := New(unit.KindLibrary)
	su, blobs, err := m.Capture(context.Background(), srcDir, u)
	if err != nil {
		t.Fatal(err)
	}
	for _, sf := range su.Files {
		if _, ok := blobs[sf.ContentKey]; !ok {
			t.Fatalf("empty file %s missing its Content Key entry", sf.Path.SubPath)
		}
	}
}
