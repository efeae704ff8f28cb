package rpadata

import (
	"bytes"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseHeader(t *testing.T) {
	t.Parallel()

	Convey("ParseHeader", t, func() {
		Convey("family 3 with offset and key", func() {
			h, err := ParseHeader(strings.NewReader("RPA-3.0 0000000000001234 DEADBEEF\n"))
			So(err, ShouldBeNil)
			So(h.Family, ShouldEqual, Family3)
			So(h.Offset, ShouldEqual, uint64(0x1234))
			So(h.Key, ShouldEqual, uint32(0xDEADBEEF))
		})

		Convey("family 2 has no key", func() {
			h, err := ParseHeader(strings.NewReader("RPA-2.0 0000000000000010\n"))
			So(err, ShouldBeNil)
			So(h.Family, ShouldEqual, Family2)
			So(h.Offset, ShouldEqual, uint64(0x10))
			So(h.Key, ShouldEqual, uint32(0))
		})

		Convey("both RPA-1 and RPA-1.0 spellings are accepted", func() {
			h, err := ParseHeader(strings.NewReader("RPA-1\n"))
			So(err, ShouldBeNil)
			So(h.Family, ShouldEqual, Family1)

			h, err = ParseHeader(strings.NewReader("RPA-1.0\n"))
			So(err, ShouldBeNil)
			So(h.Family, ShouldEqual, Family1)
		})

		Convey("a missing or non-RPA first token falls back to family 1", func() {
			h, err := ParseHeader(strings.NewReader("just some payload bytes"))
			So(err, ShouldBeNil)
			So(h.Family, ShouldEqual, Family1)
			So(h.Offset, ShouldEqual, uint64(0))

			h, err = ParseHeader(strings.NewReader(""))
			So(err, ShouldBeNil)
			So(h.Family, ShouldEqual, Family1)
		})

		Convey("whitespace runs (not just single spaces) separate tokens", func() {
			h, err := ParseHeader(strings.NewReader("RPA-3.0\t\t0000000000000100   CAFEBABE\n"))
			So(err, ShouldBeNil)
			So(h.Offset, ShouldEqual, uint64(0x100))
			So(h.Key, ShouldEqual, uint32(0xCAFEBABE))
		})

		Convey("a non-hex parameter fails BadHeader", func() {
			_, err := ParseHeader(strings.NewReader("RPA-3.0 not-hex-at-all ZZZZZZZZ\n"))
			So(err, ShouldNotBeNil)
		})

		Convey("a missing offset token fails BadHeader", func() {
			_, err := ParseHeader(strings.NewReader("RPA-2.0\n"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestHeaderWriteLine(t *testing.T) {
	t.Parallel()

	Convey("WriteLine", t, func() {
		Convey("family 3 emits tag, 16-hex offset, 8-hex key", func() {
			h := &Header{Family: Family3, Offset: 0x1234, Key: 0xDEADBEEF}
			var buf bytes.Buffer
			So(h.WriteLine(&buf), ShouldBeNil)
			So(buf.String(), ShouldEqual, "RPA-3.0 0000000000001234 DEADBEEF\n")
		})

		Convey("placeholder width equals the patched line width for every family", func() {
			cases := []*Header{
				{Family: Family2, Offset: 5},
				{Family: Family3, Offset: 0xFFFFFFFF, Key: 0xFFFFFFFF},
				{Family: Family32, Offset: 1, Key: 1},
				{Family: Family4, Offset: 0, Key: 0},
			}
			for _, h := range cases {
				var buf bytes.Buffer
				So(h.WriteLine(&buf), ShouldBeNil)
				So(buf.Len(), ShouldEqual, h.Family.LineWidth())
			}
		})

		Convey("family 1 emits the conventional RPA-1.0 line", func() {
			h := &Header{Family: Family1}
			var buf bytes.Buffer
			So(h.WriteLine(&buf), ShouldBeNil)
			So(buf.String(), ShouldEqual, "RPA-1.0\n")
		})
	})
}
