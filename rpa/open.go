// Package rpa implements the archive reader and writer: the composition
// of the header, index, zlib, and pickle codecs in rpadata into a
// random-access member reader and a one-shot archive writer.
package rpa

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Dynamicaaa/rpx/rpa/rpadata"
	"github.com/Dynamicaaa/rpx/rpaerr"
)

// Decompiler turns the raw bytes of an extracted compiled-script member
// into decompiled source. It's an external collaborator this package
// never implements; supplying one via WithDecompiler is how a caller
// opts into the optional decompile stage of ExtractAll.
type Decompiler func(path string, data []byte) ([]byte, error)

type openOptions struct {
	decompiler Decompiler
}

// OpenOption configures Open.
type OpenOption func(*openOptions)

// WithDecompiler supplies the decompile collaborator ExtractAll invokes
// on every member whose path looks like a compiled script (see
// rpyc.LooksLikeCompiledScript). Without one, ExtractAll only performs
// the extract stage.
func WithDecompiler(d Decompiler) OpenOption {
	return func(o *openOptions) { o.decompiler = d }
}

// Reader is an opened archive. Construct one with Open. A Reader's
// header and index are parsed lazily and memoised; after first parse
// they never change and are safe to read from multiple goroutines.
type Reader struct {
	path string
	data []byte
	opts openOptions

	headerOnce sync.Once
	header     *rpadata.Header
	headerErr  error

	indexOnce sync.Once
	index     *rpadata.Index
	indexErr  error
}

// Open reads the archive at path into memory and returns a Reader.
// Header and index parsing happen lazily on first ReadHeader/ReadIndex
// call (or any operation that needs them), not in Open itself.
func Open(path string, opts ...OpenOption) (*Reader, error) {
	var o openOptions
	for _, apply := range opts {
		apply(&o)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rpaerr.Wrap(err, rpaerr.IOError, fmt.Sprintf("reading archive %q", path))
	}
	return &Reader{path: path, data: data, opts: o}, nil
}

// ReadHeader parses and memoises the archive's header line.
func (r *Reader) ReadHeader() (*rpadata.Header, error) {
	r.headerOnce.Do(func() {
		r.header, r.headerErr = rpadata.ParseHeader(bytes.NewReader(r.data))
	})
	return r.header, r.headerErr
}

// ReadIndex parses and memoises the archive's index, resolving the
// sidecar file for family-1 archives.
func (r *Reader) ReadIndex() (*rpadata.Index, error) {
	r.indexOnce.Do(func() {
		hdr, err := r.ReadHeader()
		if err != nil {
			r.indexErr = err
			return
		}

		var raw []byte
		if hdr.Family.HasSidecarIndex() {
			raw, err = os.ReadFile(sidecarPath(r.path))
			if err != nil {
				r.indexErr = rpaerr.Wrap(err, rpaerr.IOError, "reading sidecar index")
				return
			}
		} else {
			if hdr.Offset > uint64(len(r.data)) {
				r.indexErr = rpaerr.AtOffset(rpaerr.BadIndex, int64(hdr.Offset), "index offset is beyond end of archive")
				return
			}
			raw = r.data[hdr.Offset:]
		}

		r.index, err = rpadata.ReadIndex(raw, hdr.Family, hdr.Key)
		r.indexErr = err
	})
	return r.index, r.indexErr
}

// ListPaths returns every member path, in pickle insertion order.
func (r *Reader) ListPaths() ([]string, error) {
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, err
	}
	return idx.Paths(), nil
}

// sidecarPath derives a family-1 archive's sibling index path: replace
// a ".rpa" suffix (case-insensitively) with ".rpi", or append ".rpi" if
// the archive path doesn't end in a recognised suffix.
func sidecarPath(archivePath string) string {
	ext := filepath.Ext(archivePath)
	if strings.EqualFold(ext, ".rpa") {
		return archivePath[:len(archivePath)-len(ext)] + ".rpi"
	}
	return archivePath + ".rpi"
}
