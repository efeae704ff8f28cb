package rpyc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zlib"
)

// Format is a recognised compiled-script container byte format.
type Format int

// Recognised formats. FormatUnknown is the zero value, returned when
// neither probe in Classify succeeds.
const (
	FormatUnknown Format = iota
	FormatRPC1
	FormatRPC2
)

func (f Format) String() string {
	switch f {
	case FormatRPC1:
		return "RPC1"
	case FormatRPC2:
		return "RPC2"
	default:
		return "UNKNOWN"
	}
}

// Confidence reports how much to trust a classification.
type Confidence int

const (
	// ConfidenceLow applies to the RPC1 whole-file probe and to any RPC2
	// classification whose slot table or decompression step failed.
	ConfidenceLow Confidence = iota
	// ConfidenceMedium applies when the RPC2 slot table resolved and its
	// payload decompressed cleanly.
	ConfidenceMedium
)

func (c Confidence) String() string {
	if c == ConfidenceMedium {
		return "medium"
	}
	return "low"
}

// Result is the outcome of classifying one compiled-script file.
type Result struct {
	Format         Format
	PythonMajor    int
	RenpyMajor     int
	PickleProtocol int
	Confidence     Confidence
	ScriptVersion  *int64
	HasInitOffset  bool
	Notes          []string
	Label          string
}

// rpc2Signature is the 11-byte magic at the start of an RPC2 container:
// 10 ASCII bytes plus a trailing newline. The slot table starts right
// after it.
var rpc2Signature = []byte("RENPY RPC2\n")

const slotRecordSize = 12

// Classify inspects the first bytes of data (an extracted compiled
// script) and reports its container format and an estimated interpreter
// generation. It is used only to annotate summaries -- callers must
// never branch core archive behaviour on its result.
func Classify(data []byte) Result {
	if bytes.HasPrefix(data, rpc2Signature) {
		return classifyRPC2(data)
	}
	if isWholeFileZlib(data) {
		return Result{
			Format:      FormatRPC1,
			PythonMajor: 2,
			RenpyMajor:  6,
			Confidence:  ConfidenceLow,
			Label:       "≤ 6.17 legacy",
			Notes:       []string{"classified by whole-file zlib probe, no slot table present"},
		}
	}
	return Result{Format: FormatUnknown, Label: "unknown"}
}

func classifyRPC2(data []byte) Result {
	table := data[len(rpc2Signature):]

	var slotOffset, slotLength uint32
	found := false
	for pos := 0; pos+slotRecordSize <= len(table); pos += slotRecordSize {
		rec := table[pos : pos+slotRecordSize]
		slot := binary.LittleEndian.Uint32(rec[0:4])
		if slot == 0 {
			break
		}
		if slot == 1 {
			slotOffset = binary.LittleEndian.Uint32(rec[4:8])
			slotLength = binary.LittleEndian.Uint32(rec[8:12])
			found = true
			break
		}
	}

	res := Result{Format: FormatRPC2, Confidence: ConfidenceLow, Label: "6.x/7.x"}
	if !found {
		res.Notes = append(res.Notes, "slot 1 not present in RPC2 slot table")
		return res
	}

	end := uint64(slotOffset) + uint64(slotLength)
	if end > uint64(len(data)) {
		res.Notes = append(res.Notes, fmt.Sprintf("slot 1 range [%d, %d) exceeds file size", slotOffset, end))
		return res
	}

	zr, err := zlib.NewReader(bytes.NewReader(data[slotOffset:end]))
	if err != nil {
		res.Notes = append(res.Notes, "slot 1 payload is not valid zlib: "+err.Error())
		return res
	}
	defer zr.Close()
	payload, err := io.ReadAll(io.LimitReader(zr, 2))
	if err != nil || len(payload) < 2 {
		res.Notes = append(res.Notes, "slot 1 payload decompression failed")
		return res
	}

	res.Confidence = ConfidenceMedium
	if payload[0] == 0x80 {
		protocol := int(payload[1])
		res.PickleProtocol = protocol
		if protocol >= 3 {
			res.PythonMajor = 3
			res.RenpyMajor = 8
			res.Label = "8.x"
		} else {
			res.PythonMajor = 2
			res.RenpyMajor = 7
			res.Label = refineLegacyLabel(res.ScriptVersion)
		}
	} else {
		res.Notes = append(res.Notes, "slot 1 payload does not start with a pickle PROTO opcode")
	}
	return res
}

// refineLegacyLabel applies the script-version-based label refinement
// for RPC2/Python-2 archives: a caller who separately determined the
// originating script_version (not derivable from the slot payload
// alone) may set Result.ScriptVersion before presenting the label.
func refineLegacyLabel(scriptVersion *int64) string {
	if scriptVersion == nil {
		return "6.x/7.x"
	}
	switch v := *scriptVersion; {
	case v >= 7_000_000:
		return "7.x"
	case v >= 6_000_000:
		return "6.99.x"
	case v >= 5_000_000:
		return "6.18-6.98"
	default:
		return "6.x/7.x"
	}
}

func isWholeFileZlib(data []byte) bool {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return false
	}
	defer zr.Close()
	_, err = io.Copy(io.Discard, zr)
	return err == nil
}

// LooksLikeCompiledScript reports whether path's extension suggests an
// extracted member is a compiled script worth classifying (and, when a
// Decompiler is configured, worth decompiling).
func LooksLikeCompiledScript(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rpyc", ".rpymc":
		return true
	default:
		return false
	}
}
