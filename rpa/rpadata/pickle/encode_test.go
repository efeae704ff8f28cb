package pickle

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestEncode(t *testing.T) {
	t.Parallel()

	Convey("Encode", t, func() {
		Convey("rejects an unsupported protocol", func() {
			var buf bytes.Buffer
			err := Encode(&buf, 3, nil)
			So(err, ShouldNotBeNil)
		})

		Convey("round trips a dict of path to a list of 2-tuples, protocol 2", func() {
			top := NewDict()
			top.Set("a.rpy", List{Tuple{int64(0), int64(5)}})
			top.Set("b/c.bin", List{Tuple{int64(5), int64(3)}})

			var buf bytes.Buffer
			So(Encode(&buf, 2, top), ShouldBeNil)

			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			d, ok := v.(*Dict)
			So(ok, ShouldBeTrue)
			So(d.Keys, ShouldResemble, []string{"a.rpy", "b/c.bin"})

			entry, _ := d.Get("a.rpy")
			So(entry, ShouldResemble, List{Tuple{int64(0), int64(5)}})

			So(buf.Bytes(), ShouldContain, byte(opEmptyDict))
			So(buf.Bytes(), ShouldContain, byte(opSetItems))
			So(buf.Bytes(), ShouldNotContain, byte(opDict))
		})

		Convey("a single-entry dict uses EMPTY_DICT + SETITEM, not MARK + DICT", func() {
			top := NewDict()
			top.Set("only.txt", List{Tuple{int64(0), int64(1)}})

			var buf bytes.Buffer
			So(Encode(&buf, 2, top), ShouldBeNil)
			So(buf.Bytes(), ShouldContain, byte(opEmptyDict))
			So(buf.Bytes(), ShouldContain, byte(opSetItem))
			So(buf.Bytes(), ShouldNotContain, byte(opDict))

			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			d, ok := v.(*Dict)
			So(ok, ShouldBeTrue)
			entry, _ := d.Get("only.txt")
			So(entry, ShouldResemble, List{Tuple{int64(0), int64(1)}})
		})

		Convey("protocol 4 frames the body after PROTO", func() {
			top := NewDict()
			top.Set("a.rpy", List{Tuple{int64(0), int64(5)}})

			var buf bytes.Buffer
			So(Encode(&buf, 4, top), ShouldBeNil)
			So(buf.Bytes()[0], ShouldEqual, byte(opProto))
			So(buf.Bytes()[1], ShouldEqual, byte(4))
			So(buf.Bytes()[2], ShouldEqual, byte(opFrame))

			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			d, ok := v.(*Dict)
			So(ok, ShouldBeTrue)
			entry, _ := d.Get("a.rpy")
			So(entry, ShouldResemble, List{Tuple{int64(0), int64(5)}})
		})

		Convey("round trips protocol 4 with SHORT_BINUNICODE", func() {
			var buf bytes.Buffer
			So(Encode(&buf, 4, "hello"), ShouldBeNil)
			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "hello")
		})

		Convey("round trips a float as big-endian IEEE-754", func() {
			var buf bytes.Buffer
			So(Encode(&buf, 2, 1.5), ShouldBeNil)
			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 1.5)
		})

		Convey("round trips a byte string", func() {
			var buf bytes.Buffer
			So(Encode(&buf, 2, []byte{0x00, 0xff, 0x10}), ShouldBeNil)
			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			So(v, ShouldResemble, []byte{0x00, 0xff, 0x10})
		})

		Convey("round trips a large integer via LONG1", func() {
			var buf bytes.Buffer
			big := int64(1) << 40
			So(Encode(&buf, 2, big), ShouldBeNil)
			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, big)
		})

		Convey("a set requires protocol 4", func() {
			var buf bytes.Buffer
			err := Encode(&buf, 2, Set{int64(1)})
			So(err, ShouldNotBeNil)

			buf.Reset()
			So(Encode(&buf, 4, Set{int64(1), int64(2)}), ShouldBeNil)
			v, err := Decode(&buf)
			So(err, ShouldBeNil)
			So(v, ShouldResemble, Set{int64(1), int64(2)})
		})
	})
}
