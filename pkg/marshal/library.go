package marshal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hurrycache/hurrycache/pkg/cacheerr"
	"github.com/hurrycache/hurrycache/pkg/fsmeta"
	"github.com/hurrycache/hurrycache/pkg/hashkey"
	"github.com/hurrycache/hurrycache/pkg/qualpath"
	"github.com/hurrycache/hurrycache/pkg/savedunit"
	"github.com/hurrycache/hurrycache/pkg/unit"
)

// libraryOutputExts are the candidate extensions for a library crate
// unit's primary output; a unit owns "one or more" of these per spec.md
// §4.5, so capture probes each and skips extensions the compiler didn't
// produce for this particular crate type.
var libraryOutputExts = []string{"rmeta", "rlib", "so", "dylib", "dll"}

type libraryMarshaller struct{}

func (libraryMarshaller) Capture(ctx context.Context, targetDir string, u unit.Unit) (*savedunit.SavedUnit, map[hashkey.Key][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	blobs := make(map[hashkey.Key][]byte)
	var files []savedunit.SavedFile

	fpSub := fmt.Sprintf("%s-%x", u.PackageName, u.UnitHash)

	for _, ext := range libraryOutputExts {
		subPath := fmt.Sprintf("lib%s-%x.%s", u.PackageName, u.UnitHash, ext)
		qp := qualpath.New(qualpath.RootDepsDir, u.TargetTriple, u.Profile, subPath)
		abs := qp.Resolve(targetDir)
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		sf, data, err := captureFile(qp, abs)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, sf)
		blobs[sf.ContentKey] = data
	}

	depInfoQP := qualpath.New(qualpath.RootDepsDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s-%x.d", u.PackageName, u.UnitHash))
	depInfoSF, depInfoData, err := captureFile(depInfoQP, depInfoQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, err
	}
	files = append(files, depInfoSF)
	blobs[depInfoSF.ContentKey] = depInfoData

	encodedDepInfoQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/dep-lib-%s", fpSub, u.PackageName))
	encodedDepInfo, err := os.ReadFile(encodedDepInfoQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.library.capture", err).WithKey(encodedDepInfoQP.Resolve(targetDir))
	}

	fpJSONQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/%s.json", fpSub, u.PackageName))
	fpJSON, err := os.ReadFile(fpJSONQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.library.capture", err).WithKey(fpJSONQP.Resolve(targetDir))
	}
	fpHashQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/%s.json.hash", fpSub, u.PackageName))
	fpHash, err := os.ReadFile(fpHashQP.Resolve(targetDir))
	if err != nil {
		return nil, nil, cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.library.capture", err).WithKey(fpHashQP.Resolve(targetDir))
	}

	invokedQP := qualpath.New(qualpath.RootFingerprintDir, u.TargetTriple, u.Profile, fmt.Sprintf("%s/invoked.timestamp", fpSub))

	su := &savedunit.SavedUnit{
		Key:   u.Key(),
		Files: files,
		Kind:  unit.KindLibrary,
		Library: &savedunit.LibrarySidecar{
			EncodedDepInfo:     encodedDepInfo,
			EncodedDepInfoPath: encodedDepInfoQP,
			Fingerprint:        savedunit.FingerprintRecord{JSON: fpJSON, HashFile: fpHash},
			FingerprintAt:      savedunit.FingerprintLocation{JSONPath: fpJSONQP, HashFilePath: fpHashQP},
			InvokedTimestampPath: invokedQP,
		},
	}
	return su, blobs, nil
}

func (libraryMarshaller) Restore(ctx context.Context, targetDir string, su *savedunit.SavedUnit, blobs BlobSource) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if su.Library == nil {
		return cacheerr.New(cacheerr.KindValidation, "marshal.library.restore", "missing library sidecar").WithKey(su.Key.String())
	}

	var earliestOutput time.Time
	for _, sf := range su.Files {
		if err := restoreFile(targetDir, sf, blobs); err != nil {
			return err
		}
		m := fsmeta.FromNanos(sf.ModTimeNanos, sf.Executable)
		if earliestOutput.IsZero() || m.ModTime.Before(earliestOutput) {
			earliestOutput = m.ModTime
		}
	}

	if err := writeVerbatim(targetDir, su.Library.EncodedDepInfoPath, su.Library.EncodedDepInfo); err != nil {
		return err
	}
	if err := restoreFingerprint(targetDir, su.Library.FingerprintAt, su.Library.Fingerprint); err != nil {
		return err
	}

	invokedAbs := su.Library.InvokedTimestampPath.Resolve(targetDir)
	if err := writeFileAtomic(invokedAbs, nil); err != nil {
		return cacheerr.Wrap(cacheerr.KindLocalIO, "marshal.library.restore", err).WithKey(invokedAbs)
	}
	invokedMeta := fsmeta.Metadata{ModTime: earliestOutput}.Before(time.Nanosecond)
	return fsmeta.Apply(invokedAbs, invokedMeta)
}
