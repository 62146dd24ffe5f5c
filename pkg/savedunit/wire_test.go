package savedunit

import (
	"encoding/json"
	"testing"

	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/qualpath"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

func sampleFile() SavedFile {
	return SavedFile{
		Path:         qualpath.New(qualpath.RootDepsDir, "x86_64-unknown-linux-gnu", "debug", "libtiny-deadbeef.rlib"),
		ContentKey:   hashkey.FromBuffer([]byte("rlib bytes")),
		ModTimeNanos: 1_700_000_000_000_000_000,
		Executable:   false,
	}
}

func TestSavedUnitLibraryRoundTrip(t *testing.T) {
	su := SavedUnit{
		Key:   hashkey.FromBuffer([]byte("unit key")),
		Files: []SavedFile{sampleFile()},
		Kind:  unit.KindLibrary,
		Library: &LibrarySidecar{
			EncodedDepInfo:       []byte("dep info bytes"),
			EncodedDepInfoPath:   qualpath.New(qualpath.RootFingerprintDir, "x86_64-unknown-linux-gnu", "debug", "tiny-deadbeef/dep-lib-tiny"),
			Fingerprint:          FingerprintRecord{JSON: []byte(`{"rustc":1}`), HashFile: []byte("abc123")},
			FingerprintAt:        FingerprintLocation{JSONPath: qualpath.New(qualpath.RootFingerprintDir, "x86_64-unknown-linux-gnu", "debug", "tiny-deadbeef/tiny.json")},
			InvokedTimestampPath: qualpath.New(qualpath.RootFingerprintDir, "x86_64-unknown-linux-gnu", "debug", "tiny-deadbeef/invoked.timestamp"),
		},
	}

	data, err := json.Marshal(su)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got SavedUnit
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Key != su.Key || got.Kind != unit.KindLibrary {
		t.Fatalf("round trip lost key/kind: %+v", got)
	}
	if len(got.Files) != 1 || got.Files[0].ContentKey != su.Files[0].ContentKey {
		t.Fatalf("round trip lost files: %+v", got.Files)
	}
	if got.Library == nil || string(got.Library.EncodedDepInfo) != "dep info bytes" {
		t.Fatalf("round trip lost library sidecar: %+v", got.Library)
	}
	if got.BuildScriptCompilation != nil || got.BuildScriptExecution != nil {
		t.Fatalf("unrelated sidecars should remain nil")
	}
}

func TestSavedUnitBuildScriptExecutionRoundTrip(t *testing.T) {
	su := SavedUnit{
		Key:   hashkey.FromBuffer([]byte("exec unit key")),
		Files: nil,
		Kind:  unit.KindBuildScriptExecution,
		BuildScriptExecution: &BuildScriptExecutionSidecar{
			Directives: []Directive{
				{Kind: DirectiveRerunIfChanged, Value: "build.rs"},
				{Kind: DirectiveWarning, Value: "a plain warning line"},
			},
			Stderr:      []byte("warning: unused import"),
			Fingerprint: FingerprintRecord{JSON: []byte(`{}`), HashFile: []byte("xyz")},
		},
	}

	data, err := json.Marshal(su)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got SavedUnit
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.BuildScriptExecution == nil || len(got.BuildScriptExecution.Directives) != 2 {
		t.Fatalf("round trip lost directives: %+v", got.BuildScriptExecution)
	}
	if got.BuildScriptExecution.Directives[0].Kind != DirectiveRerunIfChanged {
		t.Fatalf("round trip changed directive kind: %+v", got.BuildScriptExecution.Directives[0])
	}
}

func TestSavedUnitWireShapeMatchesSpec(t *testing.T) {
	su := SavedUnit{
		Key:  hashkey.FromBuffer([]byte("shape check")),
		Kind: unit.KindBuildScriptCompilation,
		BuildScriptCompilation: &BuildScriptCompilationSidecar{
			Fingerprint: FingerprintRecord{JSON: []byte(`{}`)},
		},
	}
	data, err := json.Marshal(su)
	if err != nil {
		t.Fatal(err)
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"key", "files", "kind", "sidecar"} {
		if _, ok := generic[field]; !ok {
			t.Fatalf("wire shape missing field %q: %s", field, data)
		}
	}

	var kind string
	if err := json.Unmarshal(generic["kind"], &kind); err != nil {
		t.Fatal(err)
	}
	if kind != "build_script_compilation" {
		t.Fatalf("expected kind %q, got %q", "build_script_compilation", kind)
	}
}

func TestSavedUnitUnmarshalUnknownFieldsIgnored(t *testing.T) {
	raw := `{"key":"` + hashkey.FromBuffer([]byte("x")).String() + `","files":[],"kind":"library","sidecar":{},"future_field":"ignored"}`
	var su SavedUnit
	if err := json.Unmarshal([]byte(raw), &su); err != nil {
		t.Fatalf("expected forward-compatible decode, got error: %v", err)
	}
}

func TestSavedUnitUnmarshalUnknownKindErrors(t *testing.T) {
	raw := `{"key":"` + hashkey.FromBuffer([]byte("x")).String() + `","files":[],"kind":"mystery","sidecar":{}}`
	var su SavedUnit
	if err := json.Unmarshal([]byte(raw), &su); err == nil {
		t.Fatalf("expected an error for an unrecognized kind")
	}
}
