package pickle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/Dynamicaaa/rpx/rpaerr"
)

// Encode pickles v to w at the given protocol (2 or 4; anything else is
// rejected). It emits only the opcode subset needed for the value lattice
// this package's decoder understands, targeting a native writer rather
// than delegating to an external interpreter -- see SPEC_FULL.md section
// 4.3 and 9 for why. At protocol 4 the body (everything after PROTO) is
// wrapped in a single FRAME, matching the reference serializer.
func Encode(w io.Writer, protocol int, v Value) error {
	if protocol != 2 && protocol != 4 {
		return rpaerr.New(rpaerr.Unsupported, "pickle write protocol %d not supported", protocol)
	}

	var body bytes.Buffer
	e := &encoder{w: bufio.NewWriter(&body), protocol: protocol}
	if err := e.encodeValue(v); err != nil {
		return err
	}
	if err := e.writeOp(opStop); err != nil {
		return err
	}
	if err := e.w.Flush(); err != nil {
		return err
	}

	out := bufio.NewWriter(w)
	if _, err := out.Write([]byte{byte(opProto), byte(protocol)}); err != nil {
		return err
	}
	if protocol >= 4 {
		if err := out.WriteByte(byte(opFrame)); err != nil {
			return err
		}
		var frameLen [8]byte
		binary.LittleEndian.PutUint64(frameLen[:], uint64(body.Len()))
		if _, err := out.Write(frameLen[:]); err != nil {
			return err
		}
	}
	if _, err := out.Write(body.Bytes()); err != nil {
		return err
	}
	return out.Flush()
}

type encoder struct {
	w        *bufio.Writer
	protocol int
}

func (e *encoder) writeOp(op opcode) error {
	return e.w.WriteByte(byte(op))
}

func (e *encoder) writeUint32(n uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], n)
	_, err := e.w.Write(buf[:])
	return err
}

func (e *encoder) writeUint64(n uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	_, err := e.w.Write(buf[:])
	return err
}

func (e *encoder) encodeValue(v Value) error {
	switch x := v.(type) {
	case nil:
		return e.writeOp(opNone)
	case bool:
		if x {
			return e.writeOp(opNewTrue)
		}
		return e.writeOp(opNewFalse)
	case int:
		return e.encodeInt(int64(x))
	case int64:
		return e.encodeInt(x)
	case uint64:
		return e.encodeInt(int64(x))
	case float64:
		return e.encodeFloat(x)
	case string:
		return e.encodeUnicode(x)
	case []byte:
		return e.encodeBytes(x)
	case Tuple:
		return e.encodeTuple(x)
	case List:
		return e.encodeList(x)
	case *Dict:
		return e.encodeDict(x)
	case Set:
		return e.encodeSet(x)
	default:
		return rpaerr.New(rpaerr.Unsupported, "cannot pickle value of type %T", v)
	}
}

func (e *encoder) encodeInt(n int64) error {
	switch {
	case n >= 0 && n < 256:
		if err := e.writeOp(opBinInt1); err != nil {
			return err
		}
		return e.w.WriteByte(byte(n))
	case n >= 0 && n < 65536:
		if err := e.writeOp(opBinInt2); err != nil {
			return err
		}
		return e.writeUint32Truncated16(uint32(n))
	case n >= math.MinInt32 && n <= math.MaxInt32:
		if err := e.writeOp(opBinInt); err != nil {
			return err
		}
		return e.writeUint32(uint32(int32(n)))
	default:
		if err := e.writeOp(opLong1); err != nil {
			return err
		}
		if err := e.w.WriteByte(8); err != nil {
			return err
		}
		return e.writeUint64(uint64(n))
	}
}

func (e *encoder) writeUint32Truncated16(n uint32) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(n))
	_, err := e.w.Write(buf[:])
	return err
}

func (e *encoder) encodeFloat(f float64) error {
	if err := e.writeOp(opBinFloat); err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(f))
	_, err := e.w.Write(buf[:])
	return err
}

func (e *encoder) encodeUnicode(s string) error {
	n := len(s)
	if e.protocol >= 4 && n < 256 {
		if err := e.writeOp(opShortBinUnicode); err != nil {
			return err
		}
		if err := e.w.WriteByte(byte(n)); err != nil {
			return err
		}
		_, err := e.w.WriteString(s)
		return err
	}
	if err := e.writeOp(opBinUnicode); err != nil {
		return err
	}
	if err := e.writeUint32(uint32(n)); err != nil {
		return err
	}
	_, err := e.w.WriteString(s)
	return err
}

func (e *encoder) encodeBytes(b []byte) error {
	n := len(b)
	if e.protocol >= 3 {
		if n < 256 {
			if err := e.writeOp(opShortBinBytes); err != nil {
				return err
			}
			if err := e.w.WriteByte(byte(n)); err != nil {
				return err
			}
			_, err := e.w.Write(b)
			return err
		}
		if err := e.writeOp(opBinBytes); err != nil {
			return err
		}
		if err := e.writeUint32(uint32(n)); err != nil {
			return err
		}
		_, err := e.w.Write(b)
		return err
	}
	// Protocol < 3 has no bytes type; store as the legacy 8-bit string.
	if n < 256 {
		if err := e.writeOp(opShortBinString); err != nil {
			return err
		}
		if err := e.w.WriteByte(byte(n)); err != nil {
			return err
		}
		_, err := e.w.Write(b)
		return err
	}
	if err := e.writeOp(opBinString); err != nil {
		return err
	}
	if err := e.writeUint32(uint32(n)); err != nil {
		return err
	}
	_, err := e.w.Write(b)
	return err
}

func (e *encoder) encodeTuple(t Tuple) error {
	switch len(t) {
	case 0:
		return e.writeOp(opEmptyTuple)
	case 1:
		if err := e.encodeValue(t[0]); err != nil {
			return err
		}
		return e.writeOp(opTuple1)
	case 2:
		if err := e.encodeValue(t[0]); err != nil {
			return err
		}
		if err := e.encodeValue(t[1]); err != nil {
			return err
		}
		return e.writeOp(opTuple2)
	case 3:
		for _, item := range t {
			if err := e.encodeValue(item); err != nil {
				return err
			}
		}
		return e.writeOp(opTuple3)
	default:
		if err := e.writeOp(opMark); err != nil {
			return err
		}
		for _, item := range t {
			if err := e.encodeValue(item); err != nil {
				return err
			}
		}
		return e.writeOp(opTuple)
	}
}

func (e *encoder) encodeList(l List) error {
	if err := e.writeOp(opMark); err != nil {
		return err
	}
	for _, item := range l {
		if err := e.encodeValue(item); err != nil {
			return err
		}
	}
	return e.writeOp(opList)
}

func (e *encoder) encodeDict(d *Dict) error {
	if err := e.writeOp(opEmptyDict); err != nil {
		return err
	}
	switch len(d.Keys) {
	case 0:
		return nil
	case 1:
		k := d.Keys[0]
		v, _ := d.Get(k)
		if err := e.encodeValue(k); err != nil {
			return err
		}
		if err := e.encodeValue(v); err != nil {
			return err
		}
		return e.writeOp(opSetItem)
	default:
		if err := e.writeOp(opMark); err != nil {
			return err
		}
		for _, k := range d.Keys {
			v, _ := d.Get(k)
			if err := e.encodeValue(k); err != nil {
				return err
			}
			if err := e.encodeValue(v); err != nil {
				return err
			}
		}
		return e.writeOp(opSetItems)
	}
}

func (e *encoder) encodeSet(s Set) error {
	if e.protocol < 4 {
		return rpaerr.New(rpaerr.Unsupported, "pickling a set requires protocol >= 4")
	}
	if err := e.writeOp(opEmptySet); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	if err := e.writeOp(opMark); err != nil {
		return err
	}
	for _, item := range s {
		if err := e.encodeValue(item); err != nil {
			return err
		}
	}
	return e.writeOp(opAddItems)
}
