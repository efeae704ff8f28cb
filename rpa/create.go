package rpa

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Dynamicaaa/rpx/rpa/rpadata"
	"github.com/Dynamicaaa/rpx/rpaerr"
)

// markerLiteral is the padding inserted before each payload when marker
// padding is enabled; see SPEC_FULL.md section 6.
const markerLiteral = "Made with Ren'Py."

// Entry describes one file to package into an archive. Open is called
// exactly once, in writer order, and the returned ReadCloser is closed
// before the next Entry's Open is called.
type Entry struct {
	Path string
	Open func() (io.ReadCloser, error)
	Size int64
}

type createOptions struct {
	family         rpadata.Family
	key            *uint32
	pickleProtocol int
	marker         bool
	includeHidden  bool
	force          bool
	excludes       []string
	compressLevel  int
}

// CreateOption configures WriteArchive and CollectDir.
type CreateOption func(*createOptions)

// WithFamily selects the header family to write. Defaults to Family3.
func WithFamily(f rpadata.Family) CreateOption {
	return func(o *createOptions) { o.family = f }
}

// WithKey overrides the family's default XOR key. Refused for families
// that don't use one.
func WithKey(key uint32) CreateOption {
	return func(o *createOptions) { o.key = &key }
}

// WithPickleProtocol overrides the family's default pickle protocol.
func WithPickleProtocol(protocol int) CreateOption {
	return func(o *createOptions) { o.pickleProtocol = protocol }
}

// WithMarker toggles marker padding. Refused for families that don't
// allow it.
func WithMarker(enabled bool) CreateOption {
	return func(o *createOptions) { o.marker = enabled }
}

// WithIncludeHidden controls whether CollectDir includes dotfile
// entries. Defaults to false.
func WithIncludeHidden(include bool) CreateOption {
	return func(o *createOptions) { o.includeHidden = include }
}

// WithForce allows WriteArchive to overwrite an existing output file.
func WithForce(force bool) CreateOption {
	return func(o *createOptions) { o.force = force }
}

// WithExcludes adds doublestar glob patterns; any CollectDir candidate
// whose input-relative logical path matches one is dropped entirely.
func WithExcludes(patterns ...string) CreateOption {
	return func(o *createOptions) { o.excludes = append(o.excludes, patterns...) }
}

// WithCompressionLevel overrides the zlib level used for the index
// block. Defaults to 9.
func WithCompressionLevel(level int) CreateOption {
	return func(o *createOptions) { o.compressLevel = level }
}

func resolveCreateOptions(opts []CreateOption) (createOptions, error) {
	o := createOptions{
		family:         rpadata.Family3,
		pickleProtocol: -1,
		marker:         true,
		compressLevel:  9,
	}
	for _, apply := range opts {
		apply(&o)
	}
	if o.pickleProtocol < 0 {
		o.pickleProtocol = o.family.DefaultPickleProtocol()
	}
	if o.marker && !o.family.AllowsMarker() {
		return o, rpaerr.New(rpaerr.Unsupported, "family %v does not allow marker padding", o.family)
	}
	if o.key != nil && !o.family.HasKey() {
		return o, rpaerr.New(rpaerr.Unsupported, "family %v does not use an XOR key", o.family)
	}
	return o, nil
}

func (o createOptions) resolvedKey() uint32 {
	if o.key != nil {
		return *o.key
	}
	return o.family.DefaultKey()
}

// CollectDir recursively walks root in path-sorted order and returns an
// Entry per regular file, skipping dotfiles unless WithIncludeHidden is
// set and dropping any path matched by a WithExcludes glob.
func CollectDir(root string, opts ...CreateOption) ([]Entry, error) {
	o, err := resolveCreateOptions(opts)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		rel  string
		abs  string
		size int64
	}
	var candidates []candidate

	err = filepath.Walk(root, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == root {
			return nil
		}
		if info.IsDir() {
			if !o.includeHidden && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !o.includeHidden && strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		candidates = append(candidates, candidate{
			rel:  filepath.ToSlash(rel),
			abs:  p,
			size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, rpaerr.Wrap(err, rpaerr.IOError, "walking input directory")
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].rel < candidates[j].rel })

	entries := make([]Entry, 0, len(candidates))
	for _, c := range candidates {
		excluded := false
		for _, pattern := range o.excludes {
			if ok, _ := doublestar.Match(pattern, c.rel); ok {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		abs := c.abs
		entries = append(entries, Entry{
			Path: c.rel,
			Open: func() (io.ReadCloser, error) { return os.Open(abs) },
			Size: c.size,
		})
	}
	return entries, nil
}

type placedEntry struct {
	entry         Entry
	payloadOffset uint64
}

// WriteArchive computes the on-disk layout for entries and writes a new
// archive to outPath, following the layout algorithm in SPEC_FULL.md
// section 4.6: header placeholder, then per-entry [marker?, payload],
// then the compressed index, then a patch-in-place of the header and an
// atomic rename. Family-1 writes payloads to outPath and the index to a
// sibling sidecar file instead.
func WriteArchive(outPath string, entries []Entry, opts ...CreateOption) error {
	o, err := resolveCreateOptions(opts)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return rpaerr.New(rpaerr.EmptyInput, "no files to package")
	}
	if !o.force {
		if _, statErr := os.Stat(outPath); statErr == nil {
			return rpaerr.New(rpaerr.IOError, "output %q already exists (use WithForce to overwrite)", outPath)
		}
	}
	if err := checkPathCollisions(entries); err != nil {
		return err
	}

	headerWidth := uint64(0)
	if o.family.HasOffset() {
		headerWidth = uint64(o.family.LineWidth())
	}

	placed := make([]placedEntry, len(entries))
	cursor := headerWidth
	for i, e := range entries {
		if o.marker && o.family.AllowsMarker() {
			cursor += uint64(len(markerLiteral))
		}
		placed[i].entry = e
		placed[i].payloadOffset = cursor
		if e.Size < 0 {
			return rpaerr.New(rpaerr.LayoutMismatch, "entry %q has a negative size", e.Path)
		}
		newCursor := cursor + uint64(e.Size)
		if newCursor > 0xFFFFFFFF && o.family.HasKey() {
			return rpaerr.New(rpaerr.LayoutMismatch, "entry %q ends at offset %d, which exceeds the 32-bit range this family's XOR key can mask", e.Path, newCursor)
		}
		cursor = newCursor
	}
	indexOffset := cursor

	index := rpadata.NewIndex()
	key := o.resolvedKey()
	for _, pe := range placed {
		index.Put(pe.entry.Path, []rpadata.Segment{{Offset: pe.payloadOffset, Length: uint64(pe.entry.Size)}})
	}

	if o.family.HasSidecarIndex() {
		return writeFamily1(outPath, placed, o, index)
	}
	return writeEmbeddedIndex(outPath, placed, o, index, key, headerWidth, indexOffset)
}

func checkPathCollisions(entries []Entry) error {
	seen := map[string]string{}
	for _, e := range entries {
		lower := strings.ToLower(e.Path)
		if prior, ok := seen[lower]; ok && prior != e.Path {
			return rpaerr.New(rpaerr.LayoutMismatch, "paths %q and %q collide on case-insensitive filesystems", prior, e.Path)
		}
		seen[lower] = e.Path
	}
	return nil
}

func writeEmbeddedIndex(outPath string, placed []placedEntry, o createOptions, index *rpadata.Index, key uint32, headerWidth, indexOffset uint64) error {
	return rpadata.AtomicWriteFile(outPath, func(f *os.File) error {
		placeholder := make([]byte, headerWidth)
		if _, err := f.Write(placeholder); err != nil {
			return err
		}

		writeMarker := o.marker && o.family.AllowsMarker()
		for _, pe := range placed {
			if writeMarker {
				if _, err := io.WriteString(f, markerLiteral); err != nil {
					return err
				}
			}
			if err := copyEntry(f, pe.entry); err != nil {
				return err
			}
		}

		if err := rpadata.WriteIndex(f, index, o.family, key, o.pickleProtocol, o.compressLevel); err != nil {
			return err
		}

		hdr := &rpadata.Header{Family: o.family, Offset: indexOffset, Key: key}
		var line bytes.Buffer
		if err := hdr.WriteLine(&line); err != nil {
			return err
		}
		if uint64(line.Len()) != headerWidth {
			return rpaerr.New(rpaerr.LayoutMismatch, "patched header is %d bytes, reserved placeholder was %d", line.Len(), headerWidth)
		}
		if _, err := f.WriteAt(line.Bytes(), 0); err != nil {
			return err
		}
		return nil
	})
}

func writeFamily1(outPath string, placed []placedEntry, o createOptions, index *rpadata.Index) error {
	err := rpadata.AtomicWriteFile(outPath, func(f *os.File) error {
		for _, pe := range placed {
			if err := copyEntry(f, pe.entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return rpadata.AtomicWriteFile(sidecarPath(outPath), func(f *os.File) error {
		return rpadata.WriteIndex(f, index, o.family, 0, o.pickleProtocol, o.compressLevel)
	})
}

func copyEntry(w io.Writer, e Entry) error {
	rc, err := e.Open()
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, fmt.Sprintf("opening %q", e.Path))
	}
	defer rc.Close()
	if _, err := io.CopyN(w, rc, e.Size); err != nil && err != io.EOF {
		return rpaerr.Wrap(err, rpaerr.IOError, fmt.Sprintf("copying %q", e.Path))
	}
	return nil
}
