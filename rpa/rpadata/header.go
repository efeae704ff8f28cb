package rpadata

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/Dynamicaaa/rpx/rpaerr"
)

// Family identifies which RPA header convention an archive uses.
type Family int

// Recognised header families. See SPEC_FULL.md section 4.1.
const (
	// Family1 has no header line at all; the index lives in a sidecar
	// ".rpi" file and payload offsets are absolute from byte 0.
	Family1 Family = iota + 1
	Family2
	Family3
	Family32
	Family4
)

func (f Family) String() string {
	switch f {
	case Family1:
		return "RPA-1.0"
	case Family2:
		return "RPA-2.0"
	case Family3:
		return "RPA-3.0"
	case Family32:
		return "RPA-3.2"
	case Family4:
		return "RPA-4.0"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// HasOffset reports whether this family carries an index offset in its
// header line.
func (f Family) HasOffset() bool { return f != Family1 }

// HasKey reports whether this family XOR-masks index segment
// offsets/lengths with a 32-bit key.
func (f Family) HasKey() bool { return f == Family3 || f == Family32 || f == Family4 }

// HasSidecarIndex reports whether the index lives in a sibling ".rpi"
// file rather than being embedded in the archive.
func (f Family) HasSidecarIndex() bool { return f == Family1 }

// DefaultPickleProtocol is the protocol a fresh writer should target for
// this family absent an explicit override.
func (f Family) DefaultPickleProtocol() int {
	if f == Family4 {
		return 4
	}
	return 2
}

// DefaultKey is the XOR key a fresh writer should use for this family
// absent an explicit override. Zero for families that don't use XOR.
func (f Family) DefaultKey() uint32 {
	switch f {
	case Family3, Family32:
		return 0xDABEEFED
	case Family4:
		return 0xDEADBEEF
	default:
		return 0
	}
}

// AllowsMarker reports whether this family permits the "Made with
// Ren'Py." marker padding before each payload.
func (f Family) AllowsMarker() bool { return f != Family1 }

// Header is the parsed first line of an archive.
type Header struct {
	Family  Family
	Offset  uint64
	Key     uint32
	RawLine string // the exact bytes parsed, sans trailing newline
}

const headerProbeSize = 50

// ParseHeader reads at most headerProbeSize bytes from r (or up to the
// first newline, whichever is shorter) and parses the RPA header line.
//
// A missing or non-"RPA-"-prefixed first token falls back to Family1 with
// a zero offset, per SPEC_FULL.md section 4.1 -- sidecar resolution is
// cheaper than failing outright for archives that omit the header.
func ParseHeader(r io.Reader) (*Header, error) {
	probe := make([]byte, headerProbeSize)
	n, err := io.ReadFull(r, probe)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, rpaerr.Wrap(err, rpaerr.IOError, "reading header")
	}
	probe = probe[:n]

	line := probe
	if idx := bytes.IndexByte(probe, '\n'); idx >= 0 {
		line = probe[:idx]
	}
	fields := bytes.Fields(line)
	if len(fields) == 0 || !bytes.HasPrefix(fields[0], []byte("RPA-")) {
		return &Header{Family: Family1, RawLine: ""}, nil
	}

	tag := string(fields[0])
	family, err := familyFromTag(tag)
	if err != nil {
		return nil, err
	}

	h := &Header{Family: family}
	pos := 1
	if family.HasOffset() {
		if pos >= len(fields) {
			return nil, rpaerr.New(rpaerr.BadHeader, "missing index offset in header %q", string(line))
		}
		off, err := parseHex64(fields[pos])
		if err != nil {
			return nil, rpaerr.Wrap(err, rpaerr.BadHeader, "bad index offset")
		}
		h.Offset = off
		pos++
	}
	if family.HasKey() {
		if pos >= len(fields) {
			return nil, rpaerr.New(rpaerr.BadHeader, "missing XOR key in header %q", string(line))
		}
		key, err := parseHex32(fields[pos])
		if err != nil {
			return nil, rpaerr.Wrap(err, rpaerr.BadHeader, "bad XOR key")
		}
		h.Key = key
		pos++
	}
	h.RawLine = string(line)
	return h, nil
}

func familyFromTag(tag string) (Family, error) {
	switch tag {
	case "RPA-1", "RPA-1.0":
		return Family1, nil
	case "RPA-2.0":
		return Family2, nil
	case "RPA-3.0":
		return Family3, nil
	case "RPA-3.2":
		return Family32, nil
	case "RPA-4.0":
		return Family4, nil
	default:
		return 0, rpaerr.New(rpaerr.BadHeader, "unrecognised header tag %q", tag)
	}
}

func parseHex64(b []byte) (uint64, error) {
	buf := make([]byte, hex.DecodedLen(len(b)))
	n, err := hex.Decode(buf, b)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, by := range buf[:n] {
		v = v<<8 | uint64(by)
	}
	return v, nil
}

func parseHex32(b []byte) (uint32, error) {
	v, err := parseHex64(b)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

// WriteLine renders the header's on-disk line (including trailing
// newline). Family1 renders the conventional "RPA-1.0\n" even though
// FAMILY1 archives may legally omit the header entirely -- callers that
// want a header-less family-1 archive simply don't call this.
func (h *Header) WriteLine(w io.Writer) error {
	var line string
	switch h.Family {
	case Family1:
		line = "RPA-1.0\n"
	case Family2:
		line = fmt.Sprintf("RPA-2.0 %016X\n", h.Offset)
	case Family3:
		line = fmt.Sprintf("RPA-3.0 %016X %08X\n", h.Offset, h.Key)
	case Family32:
		line = fmt.Sprintf("RPA-3.2 %016X %08X\n", h.Offset, h.Key)
	case Family4:
		line = fmt.Sprintf("RPA-4.0 %016X %08X\n", h.Offset, h.Key)
	default:
		return rpaerr.New(rpaerr.BadHeader, "unknown family %v", h.Family)
	}
	_, err := io.WriteString(w, line)
	return err
}

// LineWidth is the exact byte width WriteLine will produce for this
// header's family, independent of the header's current Offset/Key
// values. The writer uses this to reserve a placeholder of the right
// size before the final offset is known.
func (f Family) LineWidth() int {
	switch f {
	case Family1:
		return len("RPA-1.0\n")
	case Family2:
		return len("RPA-2.0 0000000000000000\n")
	case Family3:
		return len("RPA-3.0 0000000000000000 00000000\n")
	case Family32:
		return len("RPA-3.2 0000000000000000 00000000\n")
	case Family4:
		return len("RPA-4.0 0000000000000000 00000000\n")
	default:
		return 0
	}
}
