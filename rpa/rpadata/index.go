package rpadata

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/Dynamicaaa/rpx/rpa/rpadata/pickle"
	"github.com/Dynamicaaa/rpx/rpaerr"
)

// Segment is one contiguous byte range of a file's payload inside an
// archive. A path with more than one Segment is a "split" entry; see
// SPEC_FULL.md section 9 for why this implementation only ever writes
// single-segment entries while still reading multi-segment ones.
type Segment struct {
	Offset uint64
	Length uint64
	Prefix []byte // optional inline bytes carried alongside the segment
}

// Index maps an archive-relative path to its ordered list of segments.
// Paths iterate in the order they appeared in the pickle stream, which
// the on-disk format treats as significant (it usually reflects the
// order files were added to the archive).
type Index struct {
	order []string
	byKey map[string][]Segment
}

// NewIndex returns an empty, ready-to-use Index.
func NewIndex() *Index {
	return &Index{byKey: map[string][]Segment{}}
}

// Put sets (or replaces) the segment list for path, appending path to
// iteration order the first time it's seen.
func (ix *Index) Put(path string, segs []Segment) {
	if ix.byKey == nil {
		ix.byKey = map[string][]Segment{}
	}
	if _, ok := ix.byKey[path]; !ok {
		ix.order = append(ix.order, path)
	}
	ix.byKey[path] = segs
}

// Get returns the segment list for path and whether it was present.
func (ix *Index) Get(path string) ([]Segment, bool) {
	segs, ok := ix.byKey[path]
	return segs, ok
}

// Paths returns every path in iteration order.
func (ix *Index) Paths() []string {
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// SortedPaths returns every path sorted lexically, for callers (like a
// directory listing) that want a deterministic rather than
// insertion-order view.
func (ix *Index) SortedPaths() []string {
	out := ix.Paths()
	sort.Strings(out)
	return out
}

// Len returns the number of paths in the index.
func (ix *Index) Len() int { return len(ix.order) }

// ReadIndex decompresses and unpickles raw (the bytes of the on-disk
// index block), applies the family's XOR masking to segment
// offsets/lengths if applicable, and returns the decoded Index.
func ReadIndex(raw []byte, fam Family, key uint32) (*Index, error) {
	inflated, err := inflateIndexBlock(raw)
	if err != nil {
		return nil, err
	}
	val, err := pickle.Decode(bytes.NewReader(inflated))
	if err != nil {
		return nil, rpaerr.Wrap(err, rpaerr.BadPickle, "decoding index pickle")
	}
	top, ok := val.(*pickle.Dict)
	if !ok {
		return nil, rpaerr.New(rpaerr.BadIndex, "index pickle root is %T, want a dict", val)
	}

	ix := NewIndex()
	for _, path := range top.Keys {
		v, _ := top.Get(path)
		segs, err := decodeSegmentList(v, fam, key)
		if err != nil {
			return nil, rpaerr.Wrap(err, rpaerr.BadIndex, fmt.Sprintf("entry %q", path))
		}
		ix.Put(path, segs)
	}
	return ix, nil
}

func decodeSegmentList(v pickle.Value, fam Family, key uint32) ([]Segment, error) {
	list, ok := v.(pickle.List)
	if !ok {
		if tup, ok := v.(pickle.Tuple); ok {
			list = pickle.List(tup)
		} else {
			return nil, rpaerr.New(rpaerr.BadIndex, "entry value is %T, want a list of tuples", v)
		}
	}
	if len(list) == 0 {
		return nil, rpaerr.New(rpaerr.BadIndex, "entry value is an empty sequence, want at least one segment")
	}
	segs := make([]Segment, 0, len(list))
	for _, item := range list {
		tup, ok := item.(pickle.Tuple)
		if !ok || len(tup) < 2 {
			return nil, rpaerr.New(rpaerr.BadIndex, "segment entry is %T, want a 2- or 3-tuple", item)
		}
		offset, err := toUint64(tup[0])
		if err != nil {
			return nil, rpaerr.Wrap(err, rpaerr.BadIndex, "segment offset")
		}
		length, err := toUint64(tup[1])
		if err != nil {
			return nil, rpaerr.Wrap(err, rpaerr.BadIndex, "segment length")
		}
		if fam.HasKey() {
			offset = unmaskValue(offset, key)
			length = unmaskValue(length, key)
		}
		seg := Segment{Offset: offset, Length: length}
		if len(tup) >= 3 {
			switch p := tup[2].(type) {
			case []byte:
				seg.Prefix = p
			case string:
				seg.Prefix = []byte(p)
			}
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func toUint64(v pickle.Value) (uint64, error) {
	switch x := v.(type) {
	case int64:
		if x < 0 {
			return 0, rpaerr.New(rpaerr.BadIndex, "negative offset/length %d", x)
		}
		return uint64(x), nil
	case float64:
		return uint64(x), nil
	default:
		return 0, rpaerr.New(rpaerr.BadIndex, "expected an integer, got %T", v)
	}
}

// WriteIndex pickles ix (protocol determined by the caller) and zlib
// compresses it, applying the family's XOR masking before pickling.
// Each segment of an entry is written as an (offset, length) 2-tuple;
// segment prefixes are not written, even though ReadIndex understands
// them. WriteArchive passes exactly one segment per entry; see
// SPEC_FULL.md section 9.
func WriteIndex(w io.Writer, ix *Index, fam Family, key uint32, protocol int, level int) error {
	top := pickle.NewDict()
	for _, path := range ix.Paths() {
		segs, _ := ix.Get(path)
		list := make(pickle.List, 0, len(segs))
		for _, seg := range segs {
			offset, length := seg.Offset, seg.Length
			if fam.HasKey() {
				offset = maskValue(offset, key)
				length = maskValue(length, key)
			}
			list = append(list, pickle.Tuple{int64(offset), int64(length)})
		}
		top.Set(path, list)
	}

	var raw bytes.Buffer
	if err := pickle.Encode(&raw, protocol, top); err != nil {
		return rpaerr.Wrap(err, rpaerr.BadPickle, "encoding index pickle")
	}
	compressed, err := deflateIndexBlock(raw.Bytes(), level)
	if err != nil {
		return err
	}
	if _, err := w.Write(compressed); err != nil {
		return rpaerr.Wrap(err, rpaerr.IOError, "writing index block")
	}
	return nil
}
