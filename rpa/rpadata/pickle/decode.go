package pickle

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/Dynamicaaa/rpx/rpaerr"
)

// Decode reads one pickled value from r and returns it. Decoding stops at
// the first STOP opcode and ignores anything after it; because r is read
// through a buffer, bytes after STOP may already have been consumed from
// r. A truncated
// stream, an unrecognised opcode, or a stack underflow fails with
// rpaerr.BadPickle. Persistent ids and the extension registry fail with
// rpaerr.Unsupported -- this application's pickles never use either.
func Decode(r io.Reader) (Value, error) {
	d := &decoder{r: bufio.NewReader(r), memo: map[int]Value{}}
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return nil, rpaerr.Wrap(err, rpaerr.BadPickle, "reading opcode")
		}
		op := opcode(b)
		if op == opStop {
			return d.pop()
		}
		h, ok := dispatch[op]
		if !ok || h == nil {
			return nil, rpaerr.New(rpaerr.BadPickle, "unknown opcode 0x%02x", b)
		}
		if err := h(d); err != nil {
			return nil, err
		}
	}
}

type decoder struct {
	r        *bufio.Reader
	stack    []Value
	marks    []int
	memo     map[int]Value
	protocol int
}

func (d *decoder) push(v Value) { d.stack = append(d.stack, v) }

func (d *decoder) peek() (Value, error) {
	if len(d.stack) == 0 {
		return nil, rpaerr.New(rpaerr.BadPickle, "stack underflow")
	}
	return d.stack[len(d.stack)-1], nil
}

func (d *decoder) pop() (Value, error) {
	v, err := d.peek()
	if err != nil {
		return nil, err
	}
	d.stack = d.stack[:len(d.stack)-1]
	return v, nil
}

func (d *decoder) popMarkItems() ([]Value, error) {
	if len(d.marks) == 0 {
		return nil, rpaerr.New(rpaerr.BadPickle, "MARK stack underflow")
	}
	idx := d.marks[len(d.marks)-1]
	d.marks = d.marks[:len(d.marks)-1]
	if idx > len(d.stack) {
		return nil, rpaerr.New(rpaerr.BadPickle, "stack underflow below mark")
	}
	items := append([]Value(nil), d.stack[idx:]...)
	d.stack = d.stack[:idx]
	return items, nil
}

// containerAtMark returns the stack index of the container sitting just
// below the current mark (used by APPENDS/SETITEMS/ADDITEMS, which extend a
// container that was pushed before the corresponding MARK).
func (d *decoder) containerAtMark() (int, error) {
	if len(d.stack) == 0 {
		return 0, rpaerr.New(rpaerr.BadPickle, "stack underflow")
	}
	return len(d.stack) - 1, nil
}

func (d *decoder) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, rpaerr.Wrap(err, rpaerr.BadPickle, "truncated operand")
	}
	return buf, nil
}

func (d *decoder) readLine() (string, error) {
	line, err := d.r.ReadString('\n')
	if err != nil {
		return "", rpaerr.Wrap(err, rpaerr.BadPickle, "truncated text operand")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (d *decoder) readUint8() (uint8, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, rpaerr.Wrap(err, rpaerr.BadPickle, "truncated operand")
	}
	return b, nil
}

func (d *decoder) readUint16() (uint16, error) {
	buf, err := d.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (d *decoder) readUint32() (uint32, error) {
	buf, err := d.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (d *decoder) readUint64() (uint64, error) {
	buf, err := d.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// --- stack bookkeeping ---

func (d *decoder) doMark() error {
	d.marks = append(d.marks, len(d.stack))
	return nil
}

func (d *decoder) doPop() error {
	_, err := d.pop()
	return err
}

func (d *decoder) doPopMark() error {
	_, err := d.popMarkItems()
	return err
}

func (d *decoder) doDup() error {
	v, err := d.peek()
	if err != nil {
		return err
	}
	d.push(v)
	return nil
}

// --- scalars ---

func (d *decoder) doNone() error  { d.push(nil); return nil }
func (d *decoder) doTrue() error  { d.push(true); return nil }
func (d *decoder) doFalse() error { d.push(false); return nil }

func (d *decoder) doInt() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	switch line {
	case "00":
		d.push(false)
		return nil
	case "01":
		d.push(true)
		return nil
	}
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.BadPickle, "bad INT operand")
	}
	d.push(n)
	return nil
}

func (d *decoder) doBinInt() error {
	buf, err := d.readN(4)
	if err != nil {
		return err
	}
	d.push(int64(int32(binary.LittleEndian.Uint32(buf))))
	return nil
}

func (d *decoder) doBinInt1() error {
	b, err := d.readUint8()
	if err != nil {
		return err
	}
	d.push(int64(b))
	return nil
}

func (d *decoder) doBinInt2() error {
	n, err := d.readUint16()
	if err != nil {
		return err
	}
	d.push(int64(n))
	return nil
}

func (d *decoder) doLong() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	line = strings.TrimSuffix(line, "L")
	n, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.BadPickle, "bad LONG operand")
	}
	d.push(n)
	return nil
}

func decodeLongBytes(buf []byte) int64 {
	if len(buf) == 0 {
		return 0
	}
	var n uint64
	for i := len(buf) - 1; i >= 0; i-- {
		n = n<<8 | uint64(buf[i])
	}
	// sign-extend from the top byte of the little-endian encoding
	if buf[len(buf)-1]&0x80 != 0 && len(buf) < 8 {
		for i := len(buf); i < 8; i++ {
			n |= 0xff << (8 * uint(i))
		}
	}
	return int64(n)
}

func (d *decoder) doLong1() error {
	n, err := d.readUint8()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(n))
	if err != nil {
		return err
	}
	d.push(decodeLongBytes(buf))
	return nil
}

func (d *decoder) doLong4() error {
	n, err := d.readUint32()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(int32(n)))
	if err != nil {
		return err
	}
	d.push(decodeLongBytes(buf))
	return nil
}

func (d *decoder) doFloat() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	f, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.BadPickle, "bad FLOAT operand")
	}
	d.push(f)
	return nil
}

func (d *decoder) doBinFloat() error {
	buf, err := d.readN(8)
	if err != nil {
		return err
	}
	d.push(math.Float64frombits(binary.BigEndian.Uint64(buf)))
	return nil
}

// --- strings ---

func unquotePickleString(raw string) []byte {
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		raw = raw[1 : len(raw)-1]
	}
	return []byte(raw)
}

func (d *decoder) doString() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	d.push(unquotePickleString(line))
	return nil
}

func (d *decoder) doBinString() error {
	n, err := d.readUint32()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(int32(n)))
	if err != nil {
		return err
	}
	d.push(buf)
	return nil
}

func (d *decoder) doShortBinString() error {
	n, err := d.readUint8()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(n))
	if err != nil {
		return err
	}
	d.push(buf)
	return nil
}

func (d *decoder) doUnicode() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	d.push(unescapeRawUnicode(line))
	return nil
}

func (d *decoder) doBinUnicode() error {
	n, err := d.readUint32()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(n))
	if err != nil {
		return err
	}
	d.push(string(buf))
	return nil
}

func (d *decoder) doShortBinUnicode() error {
	n, err := d.readUint8()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(n))
	if err != nil {
		return err
	}
	d.push(string(buf))
	return nil
}

func (d *decoder) doBinUnicode8() error {
	n, err := d.readUint64()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(n))
	if err != nil {
		return err
	}
	d.push(string(buf))
	return nil
}

func (d *decoder) doBinBytes() error {
	n, err := d.readUint32()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(n))
	if err != nil {
		return err
	}
	d.push(buf)
	return nil
}

func (d *decoder) doShortBinBytes() error {
	n, err := d.readUint8()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(n))
	if err != nil {
		return err
	}
	d.push(buf)
	return nil
}

func (d *decoder) doBinBytes8() error {
	n, err := d.readUint64()
	if err != nil {
		return err
	}
	buf, err := d.readN(int(n))
	if err != nil {
		return err
	}
	d.push(buf)
	return nil
}

// unescapeRawUnicode decodes the small subset of raw-unicode-escape
// sequences (\uXXXX, \UXXXXXXXX) that a protocol-0 UNICODE opcode can
// contain. Anything else passes through verbatim.
func unescapeRawUnicode(s string) string {
	if !strings.Contains(s, `\u`) && !strings.Contains(s, `\U`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == 'u' || s[i+1] == 'U') {
			width := 4
			if s[i+1] == 'U' {
				width = 8
			}
			if i+2+width <= len(s) {
				if n, err := strconv.ParseUint(s[i+2:i+2+width], 16, 32); err == nil {
					b.WriteRune(rune(n))
					i += 1 + width
					continue
				}
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// --- containers ---

func (d *decoder) doEmptyTuple() error { d.push(Tuple{}); return nil }

func (d *decoder) doTuple() error {
	items, err := d.popMarkItems()
	if err != nil {
		return err
	}
	d.push(Tuple(items))
	return nil
}

func (d *decoder) doTuple1() error {
	v, err := d.pop()
	if err != nil {
		return err
	}
	d.push(Tuple{v})
	return nil
}

func (d *decoder) doTuple2() error {
	v2, err := d.pop()
	if err != nil {
		return err
	}
	v1, err := d.pop()
	if err != nil {
		return err
	}
	d.push(Tuple{v1, v2})
	return nil
}

func (d *decoder) doTuple3() error {
	v3, err := d.pop()
	if err != nil {
		return err
	}
	v2, err := d.pop()
	if err != nil {
		return err
	}
	v1, err := d.pop()
	if err != nil {
		return err
	}
	d.push(Tuple{v1, v2, v3})
	return nil
}

func (d *decoder) doEmptyList() error { d.push(List{}); return nil }

func (d *decoder) doList() error {
	items, err := d.popMarkItems()
	if err != nil {
		return err
	}
	d.push(List(items))
	return nil
}

func (d *decoder) doAppend() error {
	v, err := d.pop()
	if err != nil {
		return err
	}
	idx, err := d.containerAtMark()
	if err != nil {
		return err
	}
	l, ok := d.stack[idx].(List)
	if !ok {
		return rpaerr.New(rpaerr.BadPickle, "APPEND onto non-list")
	}
	d.stack[idx] = append(l, v)
	return nil
}

func (d *decoder) doAppends() error {
	items, err := d.popMarkItems()
	if err != nil {
		return err
	}
	idx, err := d.containerAtMark()
	if err != nil {
		return err
	}
	l, ok := d.stack[idx].(List)
	if !ok {
		return rpaerr.New(rpaerr.BadPickle, "APPENDS onto non-list")
	}
	d.stack[idx] = append(l, items...)
	return nil
}

func (d *decoder) doEmptyDict() error { d.push(NewDict()); return nil }

func valueAsKey(v Value) (string, error) {
	switch k := v.(type) {
	case string:
		return k, nil
	case []byte:
		return string(k), nil
	default:
		return "", rpaerr.New(rpaerr.BadPickle, "non-string dict key")
	}
}

func (d *decoder) doDict() error {
	items, err := d.popMarkItems()
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return rpaerr.New(rpaerr.BadPickle, "DICT with odd item count")
	}
	dict := NewDict()
	for i := 0; i < len(items); i += 2 {
		key, err := valueAsKey(items[i])
		if err != nil {
			return err
		}
		dict.Set(key, items[i+1])
	}
	d.push(dict)
	return nil
}

func (d *decoder) doSetItem() error {
	value, err := d.pop()
	if err != nil {
		return err
	}
	key, err := d.pop()
	if err != nil {
		return err
	}
	idx, err := d.containerAtMark()
	if err != nil {
		return err
	}
	dict, ok := d.stack[idx].(*Dict)
	if !ok {
		return rpaerr.New(rpaerr.BadPickle, "SETITEM onto non-dict")
	}
	k, err := valueAsKey(key)
	if err != nil {
		return err
	}
	dict.Set(k, value)
	return nil
}

func (d *decoder) doSetItems() error {
	items, err := d.popMarkItems()
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return rpaerr.New(rpaerr.BadPickle, "SETITEMS with odd item count")
	}
	idx, err := d.containerAtMark()
	if err != nil {
		return err
	}
	dict, ok := d.stack[idx].(*Dict)
	if !ok {
		return rpaerr.New(rpaerr.BadPickle, "SETITEMS onto non-dict")
	}
	for i := 0; i < len(items); i += 2 {
		k, err := valueAsKey(items[i])
		if err != nil {
			return err
		}
		dict.Set(k, items[i+1])
	}
	return nil
}

func (d *decoder) doEmptySet() error { d.push(Set{}); return nil }

func (d *decoder) doFrozenSet() error {
	items, err := d.popMarkItems()
	if err != nil {
		return err
	}
	d.push(Set(items))
	return nil
}

func (d *decoder) doAddItems() error {
	items, err := d.popMarkItems()
	if err != nil {
		return err
	}
	idx, err := d.containerAtMark()
	if err != nil {
		return err
	}
	s, ok := d.stack[idx].(Set)
	if !ok {
		return rpaerr.New(rpaerr.BadPickle, "ADDITEMS onto non-set")
	}
	d.stack[idx] = append(s, items...)
	return nil
}

// --- memoization ---

func (d *decoder) doGet() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.BadPickle, "bad GET operand")
	}
	v, ok := d.memo[n]
	if !ok {
		return rpaerr.New(rpaerr.BadPickle, "GET of unknown memo %d", n)
	}
	d.push(v)
	return nil
}

func (d *decoder) doBinGet() error {
	b, err := d.readUint8()
	if err != nil {
		return err
	}
	v, ok := d.memo[int(b)]
	if !ok {
		return rpaerr.New(rpaerr.BadPickle, "BINGET of unknown memo %d", b)
	}
	d.push(v)
	return nil
}

func (d *decoder) doLongBinGet() error {
	n, err := d.readUint32()
	if err != nil {
		return err
	}
	v, ok := d.memo[int(n)]
	if !ok {
		return rpaerr.New(rpaerr.BadPickle, "LONG_BINGET of unknown memo %d", n)
	}
	d.push(v)
	return nil
}

func (d *decoder) doPut() error {
	line, err := d.readLine()
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return rpaerr.Wrap(err, rpaerr.BadPickle, "bad PUT operand")
	}
	v, err := d.peek()
	if err != nil {
		return err
	}
	d.memo[n] = v
	return nil
}

func (d *decoder) doBinPut() error {
	b, err := d.readUint8()
	if err != nil {
		return err
	}
	v, err := d.peek()
	if err != nil {
		return err
	}
	d.memo[int(b)] = v
	return nil
}

func (d *decoder) doMemoize() error {
	v, err := d.peek()
	if err != nil {
		return err
	}
	d.memo[len(d.memo)] = v
	return nil
}

// --- framing / protocol marker ---

func (d *decoder) doProto() error {
	v, err := d.readUint8()
	if err != nil {
		return err
	}
	d.protocol = int(v)
	return nil
}

func (d *decoder) doFrame() error {
	_, err := d.readUint64() // frame length; boundaries aren't enforced
	return err
}

// --- globals / reduce (opaque, with an OrderedDict special case) ---

func (d *decoder) doGlobal() error {
	module, err := d.readLine()
	if err != nil {
		return err
	}
	name, err := d.readLine()
	if err != nil {
		return err
	}
	d.push(Global{Module: module, Name: name})
	return nil
}

func (d *decoder) doStackGlobal() error {
	name, err := d.pop()
	if err != nil {
		return err
	}
	module, err := d.pop()
	if err != nil {
		return err
	}
	nameStr, ok1 := name.(string)
	moduleStr, ok2 := module.(string)
	if !ok1 || !ok2 {
		return rpaerr.New(rpaerr.BadPickle, "STACK_GLOBAL with non-string operands")
	}
	d.push(Global{Module: moduleStr, Name: nameStr})
	return nil
}

func isDictLikeCtor(g Global) bool {
	switch {
	case g.Module == "collections" && g.Name == "OrderedDict":
		return true
	case (g.Module == "__builtin__" || g.Module == "builtins") && g.Name == "dict":
		return true
	default:
		return false
	}
}

func buildDictFromCtorArgs(args Value) (*Dict, error) {
	dict := NewDict()
	tup, ok := args.(Tuple)
	if !ok {
		return nil, rpaerr.New(rpaerr.BadPickle, "dict constructor with non-tuple args")
	}
	if len(tup) == 0 {
		return dict, nil
	}
	if len(tup) != 1 {
		return nil, rpaerr.New(rpaerr.BadPickle, "dict constructor with unexpected arity")
	}
	var pairs []Value
	switch seq := tup[0].(type) {
	case List:
		pairs = seq
	case Tuple:
		pairs = seq
	default:
		return nil, rpaerr.New(rpaerr.BadPickle, "dict constructor with non-sequence argument")
	}
	for _, item := range pairs {
		pair, ok := item.(Tuple)
		if !ok || len(pair) != 2 {
			return nil, rpaerr.New(rpaerr.BadPickle, "dict constructor item is not a 2-tuple")
		}
		key, err := valueAsKey(pair[0])
		if err != nil {
			return nil, err
		}
		dict.Set(key, pair[1])
	}
	return dict, nil
}

func (d *decoder) doReduce() error {
	args, err := d.pop()
	if err != nil {
		return err
	}
	callable, err := d.pop()
	if err != nil {
		return err
	}
	if g, ok := callable.(Global); ok && isDictLikeCtor(g) {
		dict, err := buildDictFromCtorArgs(args)
		if err != nil {
			return err
		}
		d.push(dict)
		return nil
	}
	d.push(Reduced{Callable: callable, Args: args})
	return nil
}

func (d *decoder) doBuild() error {
	state, err := d.pop()
	if err != nil {
		return err
	}
	obj, err := d.pop()
	if err != nil {
		return err
	}
	if r, ok := obj.(Reduced); ok {
		r.State = state
		d.push(r)
		return nil
	}
	d.push(obj)
	return nil
}

func (d *decoder) doNewObj() error {
	args, err := d.pop()
	if err != nil {
		return err
	}
	cls, err := d.pop()
	if err != nil {
		return err
	}
	if g, ok := cls.(Global); ok && isDictLikeCtor(g) {
		dict, err := buildDictFromCtorArgs(args)
		if err != nil {
			return err
		}
		d.push(dict)
		return nil
	}
	d.push(Reduced{Callable: cls, Args: args})
	return nil
}

func (d *decoder) doNewObjEx() error {
	kwargs, err := d.pop()
	if err != nil {
		return err
	}
	args, err := d.pop()
	if err != nil {
		return err
	}
	cls, err := d.pop()
	if err != nil {
		return err
	}
	d.push(Reduced{Callable: cls, Args: Tuple{args, kwargs}})
	return nil
}

func (d *decoder) doUnsupported() error {
	return rpaerr.New(rpaerr.Unsupported, "unsupported opcode")
}
