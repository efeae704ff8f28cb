package pickle

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	Convey("Decode", t, func() {
		Convey("scalars", func() {
			v, err := Decode(bytes.NewReader([]byte{byte(opNone), byte(opStop)}))
			So(err, ShouldBeNil)
			So(v, ShouldBeNil)

			v, err = Decode(bytes.NewReader([]byte{byte(opNewTrue), byte(opStop)}))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, true)

			v, err = Decode(bytes.NewReader([]byte{byte(opBinInt1), 42, byte(opStop)}))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, int64(42))
		})

		Convey("BINFLOAT is big-endian", func() {
			// 1.5 as an IEEE-754 double, big-endian.
			buf := []byte{byte(opBinFloat), 0x3f, 0xf8, 0, 0, 0, 0, 0, 0, byte(opStop)}
			v, err := Decode(bytes.NewReader(buf))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 1.5)
		})

		Convey("unicode is UTF-8, legacy strings are Latin-1 byte strings", func() {
			buf := []byte{byte(opShortBinUnicode), 5, 'h', 'e', 'l', 'l', 'o', byte(opStop)}
			v, err := Decode(bytes.NewReader(buf))
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "hello")

			buf = []byte{byte(opShortBinString), 3, 0xff, 0x80, 0x01, byte(opStop)}
			v, err = Decode(bytes.NewReader(buf))
			So(err, ShouldBeNil)
			So(v, ShouldResemble, []byte{0xff, 0x80, 0x01})
		})

		Convey("a dict of path to a list of one 2-tuple decodes structurally", func() {
			var buf bytes.Buffer
			buf.WriteByte(byte(opMark))
			buf.WriteByte(byte(opShortBinUnicode))
			buf.WriteByte(4)
			buf.WriteString("a.rp")
			buf.WriteByte(byte(opMark))
			buf.WriteByte(byte(opBinInt1))
			buf.WriteByte(10)
			buf.WriteByte(byte(opBinInt1))
			buf.WriteByte(20)
			buf.WriteByte(byte(opTuple2))
			buf.WriteByte(byte(opList))
			buf.WriteByte(byte(opDict))
			buf.WriteByte(byte(opStop))

			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			d, ok := v.(*Dict)
			So(ok, ShouldBeTrue)
			So(d.Len(), ShouldEqual, 1)
			entry, ok := d.Get("a.rp")
			So(ok, ShouldBeTrue)
			list, ok := entry.(List)
			So(ok, ShouldBeTrue)
			So(list, ShouldHaveLength, 1)
			tup, ok := list[0].(Tuple)
			So(ok, ShouldBeTrue)
			So(tup, ShouldResemble, Tuple{int64(10), int64(20)})
		})

		Convey("an OrderedDict REDUCE unwraps to a plain ordered Dict", func() {
			var buf bytes.Buffer
			buf.WriteByte(byte(opGlobal))
			buf.WriteString("collections\n")
			buf.WriteString("OrderedDict\n")
			buf.WriteByte(byte(opEmptyTuple))
			buf.WriteByte(byte(opReduce))
			buf.WriteByte(byte(opStop))

			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			d, ok := v.(*Dict)
			So(ok, ShouldBeTrue)
			So(d.Len(), ShouldEqual, 0)
		})

		Convey("memoization: BINPUT then BINGET returns the same value", func() {
			var buf bytes.Buffer
			buf.WriteByte(byte(opShortBinUnicode))
			buf.WriteByte(3)
			buf.WriteString("foo")
			buf.WriteByte(byte(opBinPut))
			buf.WriteByte(0)
			buf.WriteByte(byte(opPop))
			buf.WriteByte(byte(opBinGet))
			buf.WriteByte(0)
			buf.WriteByte(byte(opStop))

			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "foo")
		})

		Convey("a truncated stream fails BadPickle", func() {
			_, err := Decode(bytes.NewReader([]byte{byte(opBinUnicode), 10, 0, 0, 0, 'h', 'i'}))
			So(err, ShouldNotBeNil)
		})

		Convey("an unknown opcode fails BadPickle", func() {
			_, err := Decode(bytes.NewReader([]byte{0xfe, byte(opStop)}))
			So(err, ShouldNotBeNil)
		})

		Convey("stack underflow fails BadPickle", func() {
			_, err := Decode(bytes.NewReader([]byte{byte(opPop), byte(opStop)}))
			So(err, ShouldNotBeNil)
		})

		Convey("a persistent id opcode fails Unsupported", func() {
			var buf bytes.Buffer
			buf.WriteByte(byte(opPersid))
			buf.WriteString("1\n")
			buf.WriteByte(byte(opStop))
			_, err := Decode(&buf)
			So(err, ShouldNotBeNil)
		})
	})
}
