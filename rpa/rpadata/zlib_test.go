package rpadata

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInflateIndexBlock(t *testing.T) {
	t.Parallel()

	Convey("inflateIndexBlock", t, func() {
		payload := []byte("the quick brown fox jumps over the lazy dog, repeated for compressibility, repeated again")

		Convey("accepts a zlib-wrapped stream", func() {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			zw.Write(payload)
			zw.Close()

			out, err := inflateIndexBlock(buf.Bytes())
			So(err, ShouldBeNil)
			So(out, ShouldResemble, payload)
		})

		Convey("falls back to raw deflate", func() {
			var buf bytes.Buffer
			fw, _ := flate.NewWriter(&buf, flate.DefaultCompression)
			fw.Write(payload)
			fw.Close()

			out, err := inflateIndexBlock(buf.Bytes())
			So(err, ShouldBeNil)
			So(out, ShouldResemble, payload)
		})

		Convey("tolerates a short junk prefix before the zlib stream", func() {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			zw.Write(payload)
			zw.Close()

			junked := append(bytes.Repeat([]byte{0x01}, 17), buf.Bytes()...)
			out, err := inflateIndexBlock(junked)
			So(err, ShouldBeNil)
			So(out, ShouldResemble, payload)
		})

		Convey("gives up past the junk-prefix budget", func() {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			zw.Write(payload)
			zw.Close()

			junked := append(bytes.Repeat([]byte{0x01}, maxJunkScan+100), buf.Bytes()...)
			_, err := inflateIndexBlock(junked)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestDeflateIndexBlock(t *testing.T) {
	t.Parallel()

	Convey("deflateIndexBlock round trips through inflateIndexBlock", t, func() {
		payload := []byte("round trip me please")
		compressed, err := deflateIndexBlock(payload, 9)
		So(err, ShouldBeNil)

		out, err := inflateIndexBlock(compressed)
		So(err, ShouldBeNil)
		So(out, ShouldResemble, payload)
	})
}
