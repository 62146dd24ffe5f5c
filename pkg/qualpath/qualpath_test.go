package qualpath

import (
	"path/filepath"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := New(RootFingerprintDir, "x86_64-unknown-linux-gnu", "debug", "tiny-abc123/tiny.json")

	encoded, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != p {
		t.Fatalf("round trip mismatch: got %+v want %+v", decoded, p)
	}
}

func TestEncodeIsStableJSONString(t *testing.T) {
	p := New(RootDepsDir, "x86_64-unknown-linux-gnu", "release", "libtiny-deadbeef.rlib")
	encoded, err := p.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if encoded[0] != '{' {
		t.Fatalf("expected a JSON object string, got %q", encoded)
	}
}

func TestNewNormalizesSubPathSeparators(t *testing.T) {
	p := New(RootOutDir, "x86_64-unknown-linux-gnu", "debug", filepath.Join("a", "b", "c"))
	if p.SubPath != "a/b/c" {
		t.Fatalf("expected forward-slash sub path, got %q", p.SubPath)
	}
}

func TestResolveProducesDistinctPathsPerRoot(t *testing.T) {
	base := "/workspace/target"
	triple := "x86_64-unknown-linux-gnu"
	profile := "debug"

	deps := New(RootDepsDir, triple, profile, "libtiny-deadbeef.rlib").Resolve(base)
	fp := New(RootFingerprintDir, triple, profile, "tiny-deadbeef/tiny.json").Resolve(base)
	build := New(RootBuildDir, triple, profile, "tiny-deadbeef/build-script-build").Resolve(base)

	want := map[string]string{
		"deps":  filepath.Join(base, triple, profile, "deps", "libtiny-deadbeef.rlib"),
		"fp":    filepath.Join(base, triple, profile, ".fingerprint", "tiny-deadbeef", "tiny.json"),
		"build": filepath.Join(base, triple, profile, "build", "tiny-deadbeef", "build-script-build"),
	}
	got := map[string]string{"deps": deps, "fp": fp, "build": build}

	for k := range want {
		if got[k] != want[k] {
			t.Fatalf("%s: got %q want %q", k, got[k], want[k])
		}
	}
}

func TestResolveOmitsEmptyTriple(t *testing.T) {
	base := "/workspace/target"
	p := New(RootProfileDir, "", "debug", "deps/libtiny.rlib")
	got := p.Resolve(base)
	want := filepath.Join(base, "debug", "deps/libtiny.rlib")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode("not json"); err == nil {
		t.Fatalf("expected decode error for malformed input")
	}
}
