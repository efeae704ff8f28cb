package rpadata

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"

	"github.com/Dynamicaaa/rpx/rpaerr"
)

// maxJunkScan bounds how many leading bytes of an index block we'll
// scan looking for a valid zlib/deflate start before giving up. Some
// tools pad the index block with an explanatory comment or a stray
// newline; RPA readers are expected to skip past it rather than fail.
const maxJunkScan = 64

// inflateIndexBlock decompresses raw, the bytes of an on-disk index
// block, tolerating a short junk prefix before the real stream starts.
// It tries zlib framing first (the common case) and falls back to raw
// deflate, since some writers omit the zlib wrapper entirely.
func inflateIndexBlock(raw []byte) ([]byte, error) {
	limit := maxJunkScan
	if limit > len(raw) {
		limit = len(raw)
	}
	var lastErr error
	for start := 0; start <= limit; start++ {
		out, err := tryInflateZlib(raw[start:])
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	for start := 0; start <= limit; start++ {
		out, err := tryInflateDeflate(raw[start:])
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, rpaerr.Wrap(lastErr, rpaerr.BadIndex, fmt.Sprintf("index block is neither valid zlib nor raw deflate within %d bytes", limit))
}

func tryInflateZlib(b []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func tryInflateDeflate(b []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(b))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// deflateIndexBlock compresses raw with zlib framing at the given
// level for writing a fresh index block.
func deflateIndexBlock(raw []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, rpaerr.Wrap(err, rpaerr.IOError, "creating zlib writer")
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, rpaerr.Wrap(err, rpaerr.IOError, "compressing index block")
	}
	if err := zw.Close(); err != nil {
		return nil, rpaerr.Wrap(err, rpaerr.IOError, "closing zlib writer")
	}
	return buf.Bytes(), nil
}
