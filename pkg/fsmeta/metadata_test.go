package fsmeta

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromFileApplyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.rlib")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	want := time.Unix(1_700_000_000, 123_456_000)
	if err := os.Chtimes(path, want, want); err != nil {
		t.Fatal(err)
	}

	meta, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if meta.Executable {
		t.Fatalf("expected non-executable file")
	}

	other := filepath.Join(dir, "restored.rlib")
	if err := os.WriteFile(other, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Apply(other, meta); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	info, err := os.Stat(other)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(meta.ModTime) {
		t.Fatalf("mtime not applied: got %v want %v", info.ModTime(), meta.ModTime)
	}
}

func TestApplyExecutableBit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build-script-build")
	if err := os.WriteFile(path, []byte("#!/bin/true"), 0o644); err != nil {
		t.Fatal(err)
	}

	meta := Metadata{ModTime: time.Now(), Executable: true}
	if err := Apply(path, meta); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&0o111 == 0 {
		t.Fatalf("expected executable bit set, got mode %v", info.Mode())
	}
}

func TestApplyOnFileInNestedDirs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deps", "nested", "lib.rlib")

	if err := os.WriteFile(path, nil, 0); err == nil {
		t.Fatalf("expected write to missing parent to fail before Apply")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Apply(path, Metadata{ModTime: time.Now()}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestApplyIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.rlib")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	meta := Metadata{ModTime: time.Unix(1_600_000_000, 0), Executable: true}
	if err := Apply(path, meta); err != nil {
		t.Fatal(err)
	}
	first, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := Apply(path, meta); err != nil {
		t.Fatal(err)
	}
	second, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}

	if !first.ModTime().Equal(second.ModTime()) || first.Mode() != second.Mode() {
		t.Fatalf("Apply is not idempotent: %v/%v vs %v/%v", first.ModTime(), first.Mode(), second.ModTime(), second.Mode())
	}
}

func TestFromFileMissing(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestMetadataBeforeIsStrictlyEarlier(t *testing.T) {
	m := Metadata{ModTime: time.Unix(1_700_000_000, 0)}
	before := m.Before(time.Nanosecond)
	if !before.ModTime.Before(m.ModTime) {
		t.Fatalf("expected Before() to produce a strictly earlier time")
	}
	if m.ModTime.Sub(before.ModTime) != time.Nanosecond {
		t.Fatalf("expected exactly one nanosecond tick earlier, got delta %v", m.ModTime.Sub(before.ModTime))
	}
}

func TestModTimeNanosRoundTrip(t *testing.T) {
	want := int64(1_700_000_000_123_456_789)
	m := FromNanos(want, true)
	if m.ModTimeNanos() != want {
		t.Fatalf("ModTimeNanos round trip: got %d want %d", m.ModTimeNanos(), want)
	}
}
