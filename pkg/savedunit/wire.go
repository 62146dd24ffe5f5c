package savedunit

import (
	"encoding/json"
	"fmt"

	"github.com/hurrycache/hurrycache/pkg/unit"
)

// wireSavedUnit mirrors spec.md §6's literal shape:
//
//	SavedUnit := { key, files, kind, sidecar }
type wireSavedUnit struct {
	Key     interface{}     `json:"key"`
	Files   []SavedFile     `json:"files"`
	Kind    string          `json:"kind"`
	Sidecar json.RawMessage `json:"sidecar"`
}

// MarshalJSON encodes the SavedUnit into the wire shape of spec.md §6,
// selecting the sidecar payload by Kind.
func (s SavedUnit) MarshalJSON() ([]byte, error) {
	var sidecar interface{}
	var kindStr string
	switch s.Kind {
	case unit.KindLibrary:
		kindStr = "library"
		sidecar = s.Library
	case unit.KindBuildScriptCompilation:
		kindStr = "build_script_compilation"
		sidecar = s.BuildScriptCompilation
	case unit.KindBuildScriptExecution:
		kindStr = "build_script_execution"
		sidecar = s.BuildScriptExecution
	default:
		return nil, fmt.Errorf("savedunit: marshal: unknown kind %v", s.Kind)
	}

	rawSidecar, err := json.Marshal(sidecar)
	if err != nil {
		return nil, fmt.Errorf("savedunit: marshal sidecar: %w", err)
	}

	return json.Marshal(wireSavedUnit{
		Key:     s.Key,
		Files:   s.Files,
		Kind:    kindStr,
		Sidecar: rawSidecar,
	})
}

// UnmarshalJSON decodes the wire shape of spec.md §6. Unknown top-level
// fields are ignored for forward compatibility, as json.Unmarshal already
// does by default for fields with no matching struct tag.
func (s *SavedUnit) UnmarshalJSON(data []byte) error {
	var w wireSavedUnit
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("savedunit: unmarshal: %w", err)
	}

	keyBytes, err := json.Marshal(w.Key)
	if err != nil {
		return fmt.Errorf("savedunit: unmarshal key: %w", err)
	}
	if err := json.Unmarshal(keyBytes, &s.Key); err != nil {
		return fmt.Errorf("savedunit: unmarshal key: %w", err)
	}

	s.Files = w.Files

	switch w.Kind {
	case "library":
		s.Kind = unit.KindLibrary
		s.Library = &LibrarySidecar{}
		if len(w.Sidecar) > 0 {
			if err := json.Unmarshal(w.Sidecar, s.Library); err != nil {
				return fmt.Errorf("savedunit: unmarshal library sidecar: %w", err)
			}
		}
	case "build_script_compilation":
		s.Kind = unit.KindBuildScriptCompilation
		s.BuildScriptCompilation = &BuildScriptCompilationSidecar{}
		if len(w.Sidecar) > 0 {
			if err := json.Unmarshal(w.Sidecar, s.BuildScriptCompilation); err != nil {
				return fmt.Errorf("savedunit: unmarshal build-script-compilation sidecar: %w", err)
			}
		}
	case "build_script_execution":
		s.Kind = unit.KindBuildScriptExecution
		s.BuildScriptExecution = &BuildScriptExecutionSidecar{}
		if len(w.Sidecar) > 0 {
			if err := json.Unmarshal(w.Sidecar, s.BuildScriptExecution); err != nil {
				return fmt.Errorf("savedunit: unmarshal build-script-execution sidecar: %w", err)
			}
		}
	default:
		return fmt.Errorf("savedunit: unmarshal: unknown kind %q", w.Kind)
	}

	return nil
}
