package marshal

import (
	"os"
	"path/filepath"
)

func dirOf(absPath string) string {
	return filepath.Dir(absPath)
}

// writeFileAtomic writes data to absPath via a temp-file-plus-rename
// discipline, so a cancelled or crashed write never leaves a partial file
// at the destination (spec.md §5's cancellation guarantee).
func writeFileAtomic(absPath string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".hurrycache-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, absPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
