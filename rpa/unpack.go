package rpa

import (
	"context"
	"fmt"
	"os"
	gopath "path"
	"path/filepath"
	"strings"

	"github.com/luci/luci-go/common/logging"

	"github.com/Dynamicaaa/rpx/rpa/rpadata"
	"github.com/Dynamicaaa/rpx/rpaerr"
	"github.com/Dynamicaaa/rpx/rpyc"
)

// ExtractOne writes a single member to destFile, creating parent
// directories as needed. It reports whether the member was found and
// written; a missing path returns false with a NotFound error.
func (r *Reader) ExtractOne(entryPath, destFile string) (bool, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return false, err
	}
	segs, ok := idx.Get(entryPath)
	if !ok || len(segs) == 0 {
		return false, rpaerr.ForKey(rpaerr.NotFound, entryPath, "no such archive member")
	}
	if err := os.MkdirAll(filepath.Dir(destFile), 0777); err != nil {
		return false, rpaerr.Wrap(err, rpaerr.IOError, "making parent directory")
	}
	if err := r.writeSegment(destFile, segs[0]); err != nil {
		return false, err
	}
	return true, nil
}

// writeSegment writes one segment's prefix (if any) followed by its
// payload range to destFile. The reader consumes only the first segment
// of a multi-segment entry, per this format's single-segment convention.
func (r *Reader) writeSegment(destFile string, seg rpadata.Segment) error {
	end := seg.Offset + seg.Length
	if end < seg.Offset || end > uint64(len(r.data)) {
		return rpaerr.New(rpaerr.BadIndex, "segment range [%d, %d) exceeds archive size %d", seg.Offset, end, len(r.data))
	}

	f, err := os.Create(destFile)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, fmt.Sprintf("creating %q", destFile))
	}
	defer f.Close()

	if len(seg.Prefix) > 0 {
		if _, err := f.Write(seg.Prefix); err != nil {
			return rpaerr.Wrap(err, rpaerr.IOError, "writing segment prefix")
		}
	}
	if _, err := f.Write(r.data[seg.Offset:end]); err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "writing segment payload")
	}
	return nil
}

// ExtractAll extracts every member into destDir, reporting progress
// through onProgress (which may be nil). It fails fast on the first
// IOError; per-member DecompileErrors from an optional Decompiler are
// counted and reported in the stage-complete message rather than
// aborting the run.
func (r *Reader) ExtractAll(destDir string, onProgress ProgressFunc) error {
	idx, err := r.ReadIndex()
	if err != nil {
		return err
	}

	destDirAbs, err := filepath.Abs(destDir)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "resolving destination directory")
	}
	if err := os.MkdirAll(destDirAbs, 0777); err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "making destination directory")
	}

	ctx := context.Background()
	paths := idx.Paths()
	total := len(paths)
	decompileErrs := 0
	var pendingPaths, pendingDests []string

	for i, entryPath := range paths {
		rel, sanitizeErr := sanitizeMemberPath(entryPath)
		if sanitizeErr != nil {
			logging.Errorf(ctx, "refused %q: %s", entryPath, sanitizeErr)
			onProgress.report(Progress{
				Stage: StageExtract, Current: i + 1, Total: total,
				Message: fmt.Sprintf("refused %q: %v", entryPath, sanitizeErr),
			})
			continue
		}

		segs, _ := idx.Get(entryPath)
		if len(segs) == 0 {
			continue
		}
		dest := filepath.Join(destDirAbs, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0777); err != nil {
			return rpaerr.Wrap(err, rpaerr.IOError, fmt.Sprintf("making parent directory for %q", entryPath))
		}
		if err := r.writeSegment(dest, segs[0]); err != nil {
			return err
		}
		onProgress.report(Progress{Stage: StageExtract, Current: i + 1, Total: total, Message: entryPath})

		if r.opts.decompiler != nil && rpyc.LooksLikeCompiledScript(entryPath) {
			pendingPaths = append(pendingPaths, entryPath)
			pendingDests = append(pendingDests, dest)
		}
	}

	for j, entryPath := range pendingPaths {
		if derr := r.runDecompiler(entryPath, pendingDests[j]); derr != nil {
			decompileErrs++
			logging.Errorf(ctx, "decompiling %q: %s", entryPath, derr)
			onProgress.report(Progress{Stage: StageDecompile, Current: j + 1, Total: len(pendingPaths), Message: fmt.Sprintf("%s: %v", entryPath, derr)})
		}
	}

	onProgress.report(Progress{
		Stage: StageComplete, Current: total, Total: total,
		Message: fmt.Sprintf("%d member(s), %d decompile error(s)", total, decompileErrs),
	})
	return nil
}

func (r *Reader) runDecompiler(entryPath, dest string) error {
	data, err := os.ReadFile(dest)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "reading extracted member for decompile")
	}
	out, err := r.opts.decompiler(entryPath, data)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.DecompileError, "decompiling "+entryPath)
	}
	if err := os.WriteFile(dest, out, 0666); err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "writing decompiled member")
	}
	return nil
}

// sanitizeMemberPath rejects logical paths that could escape the
// extraction root (absolute paths, ".." segments) and returns an
// OS-native relative path otherwise.
func sanitizeMemberPath(entryPath string) (string, error) {
	if entryPath == "" {
		return "", rpaerr.ForKey(rpaerr.NotFound, entryPath, "empty member path")
	}
	slash := strings.ReplaceAll(entryPath, "\\", "/")
	clean := gopath.Clean(slash)
	if gopath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", rpaerr.ForKey(rpaerr.NotFound, entryPath, "path escapes destination directory")
	}
	return filepath.FromSlash(clean), nil
}
