package rpadata

import (
	"os"
	"path/filepath"

	"github.com/Dynamicaaa/rpx/rpaerr"
)

// AtomicWriteFile calls write with a temporary file created alongside
// path, then syncs, closes, and renames it into place. The rename is
// the only commit point: if write, sync, or the rename itself fails,
// path is left untouched and the temp file is removed. See
// SPEC_FULL.md section 4.6 step 6.
func AtomicWriteFile(path string, write func(f *os.File) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rpx-tmp-*")
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "creating temp file")
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err = write(tmp); err != nil {
		if _, ok := rpaerr.KindOf(err); !ok {
			err = rpaerr.Wrap(err, rpaerr.IOError, "writing temp file")
		}
		return err
	}
	if err = tmp.Sync(); err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "syncing temp file")
	}
	if err = tmp.Close(); err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "closing temp file")
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "renaming into place")
	}
	return nil
}
