package rpa

import (
	"os"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Dynamicaaa/rpx/rpaerr"
)

// Pool memoises opened Readers across repeated lookups of the same
// archive path, for callers (a launcher scanning a mod directory, a
// batch re-packer) that tend to reopen the same archives many times.
// It holds no open file handles between calls; each cached Reader keeps
// the archive's bytes in memory together with its already-memoised,
// read-only Header and Index, so the pool adds no invariant beyond what
// a single Reader already guarantees (see SPEC_FULL.md section 4.5.1).
type Pool struct {
	cache *lru.Cache[uint64, *poolEntry]
}

type poolEntry struct {
	fingerprint uint64
	reader      *Reader
}

// NewPool returns a Pool holding at most capacity entries, evicting the
// least-recently-used archive once full.
func NewPool(capacity int) (*Pool, error) {
	cache, err := lru.New[uint64, *poolEntry](capacity)
	if err != nil {
		return nil, rpaerr.Wrap(err, rpaerr.IOError, "creating reader pool")
	}
	return &Pool{cache: cache}, nil
}

// Get returns a memoised Reader for path, opening and parsing it (header
// and index both) on a cache miss or when the file's size/modtime has
// changed since it was cached.
func (p *Pool) Get(path string, opts ...OpenOption) (*Reader, error) {
	fp, err := fingerprint(path)
	if err != nil {
		return nil, err
	}

	key := pathKey(path)
	if entry, ok := p.cache.Get(key); ok && entry.fingerprint == fp {
		return entry.reader, nil
	}

	r, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadIndex(); err != nil {
		return nil, err
	}
	p.cache.Add(key, &poolEntry{fingerprint: fp, reader: r})
	return r, nil
}

// Invalidate drops path's cached entry, if any.
func (p *Pool) Invalidate(path string) {
	p.cache.Remove(pathKey(path))
}

// pathKey and fingerprint are deliberately separate: the cache is keyed
// by path alone so a stale entry can be looked up and compared against
// the file's current fingerprint, rather than requiring a stat before
// every cache lookup could even find the right bucket.
func pathKey(path string) uint64 {
	return xxhash.Sum64String(path)
}

func fingerprint(path string) (uint64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, rpaerr.Wrap(err, rpaerr.IOError, "statting archive for pool fingerprint")
	}
	h := xxhash.New()
	h.WriteString(path)
	var sizeAndTime [16]byte
	putUint64(sizeAndTime[0:8], uint64(st.Size()))
	putUint64(sizeAndTime[8:16], uint64(st.ModTime().UnixNano()))
	h.Write(sizeAndTime[:])
	return h.Sum64(), nil
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
