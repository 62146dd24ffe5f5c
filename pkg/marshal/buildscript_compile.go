package marshal

import (
	"context"
	"fmt"
	"os"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/qualpath"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

type buildScriptCompilationMarshaller struct{}

func (buildScriptCompilationMarshaller) Capture(ctx context.Context, targetDir string, u unit.Unit) (*savedunit.SavedUnit, map[hashkey.Key][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	blobs := make(map[hashkey.Key][]byte)
	buildSub := fmt.Sprintf("%s-%x", u.PackageName, u.UnitHash)

	// Only the content-hash-tagged file is captured as a Saved File; the
	// plain-named entry is reconstructed at restore by hard-linking to
	// it, since the two are guaranteed byte-identical on the host that
	// produced them.
	taggedQP := qualpath.New(qualpath.RootBuildDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/build_script_build-%x", buildSub, u.UnitHash))
	plainQP := qualpath.New(qualpath.RootBuildDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/build-script-build", buildSub))

	taggedSF, taggedData, err := captureFile(taggedQP, taggedQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, err
	}
	blobs[taggedSF.ContentKey] = taggedData

	depInfoQP := qualpath.New(qualpath.RootDepsDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s-%x.d", u.PackageName, u.UnitHash))
	depInfoSF, depInfoData, err := captureFile(depInfoQP, depInfoQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, err
	}
	blobs[depInfoSF.ContentKey] = depInfoData

	encodedDepInfoQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/dep-build-script-build-script-build", buildSub))
	encodedDepInfo, err := os.ReadFile(encodedDepInfoQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_compile.capture", err).WithKey(encodedDepInfoQP.Resolve(targetDir))
	}

	fpJSONQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/build-script-build.json", buildSub))
	fpJSON, err := os.ReadFile(fpJSONQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_compile.capture", err).WithKey(fpJSONQP.Resolve(targetDir))
	}
	fpHashQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/build-script-build.json.hash", buildSub))
	fpHash, err := os.ReadFile(fpHashQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_compile.capture", err).WithKey(fpHashQP.Resolve(targetDir))
	}

	su := &savedunit.SavedUnit{
		Key:   u.Key(),
		Files: []savedunit.SavedFile{taggedSF, depInfoSF},
		Kind:  unit.KindBuildScriptCompilation,
		BuildScriptCompilation: &savedunit.BuildScriptCompilationSidecar{
			EncodedDepInfo:     encodedDepInfo,
			EncodedDepInfoPath: encodedDepInfoQP,
			Fingerprint:        savedunit.FingerprintRecord{JSON: fpJSON, HashFile: fpHash},
			FingerprintAt:      savedunit.FingerprintLocation{JSONPath: fpJSONQP, HashFilePath: fpHashQP},
			TaggedPath:         taggedQP,
			PlainPath:          plainQP,
		},
	}
	return su, blobs, nil
}

func (buildScriptCompilationMarshaller) Restore(ctx context.Context, targetDir string, su *savedunit.SavedUnit, blobs BlobSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sc := su.BuildScriptCompilation
	if sc == nil {
		return cacheerr.New(cacheerr.KindValidation, "marshal.build_script_compile.restore", "missing sidecar").WithKey(su.Key.String())
	}

	for _, sf := range su.Files {
		if err := restoreFile(targetDir, sf, blobs); err != nil {
			return err
		}
	}

	taggedAbs := sc.TaggedPath.Resolve(targetDir)
	plainAbs := sc.PlainPath.Resolve(targetDir)
	if err := os.MkdirAll(dirOf(plainAbs), 0o755); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_compile.restore.mkdir", err).WithKey(plainAbs)
	}
	os.Remove(plainAbs)
	if err := os.Link(taggedAbs, plainAbs); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.build_script_compile.restore.link", err).WithKey(plainAbs)
	}

	if err := writeVerbatim(targetDir, sc.EncodedDepInfoPath, sc.EncodedDepInfo); err != nil {
		return err
	}
	return restoreFingerprint(targetDir, sc.FingerprintAt, sc.Fingerprint)
}
