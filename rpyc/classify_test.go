package rpyc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	. "github.com/smartystreets/goconvey/convey"
)

func buildRPC2(t *testing.T, slot1Payload []byte) []byte {
	t.Helper()

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(slot1Payload); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	buf.Write(rpc2Signature)

	slotTableStart := buf.Len()
	payloadStart := uint32(slotTableStart + 2*slotRecordSize)

	rec1 := make([]byte, slotRecordSize)
	binary.LittleEndian.PutUint32(rec1[0:4], 1)
	binary.LittleEndian.PutUint32(rec1[4:8], payloadStart)
	binary.LittleEndian.PutUint32(rec1[8:12], uint32(compressed.Len()))
	buf.Write(rec1)

	terminator := make([]byte, slotRecordSize)
	buf.Write(terminator)

	buf.Write(compressed.Bytes())
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	t.Parallel()

	Convey("Classify", t, func() {
		Convey("RPC2 with a python-3 pickle protocol", func() {
			data := buildRPC2(t, []byte{0x80, 0x04, 'N', '.'})
			res := Classify(data)
			So(res.Format, ShouldEqual, FormatRPC2)
			So(res.PythonMajor, ShouldEqual, 3)
			So(res.RenpyMajor, ShouldEqual, 8)
			So(res.PickleProtocol, ShouldEqual, 4)
			So(res.Confidence, ShouldEqual, ConfidenceMedium)
			So(res.Label, ShouldEqual, "8.x")
		})

		Convey("RPC2 with a python-2 pickle protocol", func() {
			data := buildRPC2(t, []byte{0x80, 0x02, 'N', '.'})
			res := Classify(data)
			So(res.PythonMajor, ShouldEqual, 2)
			So(res.PickleProtocol, ShouldEqual, 2)
			So(res.Label, ShouldEqual, "6.x/7.x")
		})

		Convey("RPC2 missing slot 1", func() {
			var buf bytes.Buffer
			buf.Write(rpc2Signature)
			buf.Write(make([]byte, slotRecordSize)) // immediate terminator
			res := Classify(buf.Bytes())
			So(res.Format, ShouldEqual, FormatRPC2)
			So(res.Confidence, ShouldEqual, ConfidenceLow)
			So(res.Notes, ShouldNotBeEmpty)
		})

		Convey("RPC1 whole-file zlib", func() {
			var compressed bytes.Buffer
			zw := zlib.NewWriter(&compressed)
			zw.Write([]byte("a legacy pickled script"))
			zw.Close()

			res := Classify(compressed.Bytes())
			So(res.Format, ShouldEqual, FormatRPC1)
			So(res.Label, ShouldEqual, "≤ 6.17 legacy")
			So(res.Confidence, ShouldEqual, ConfidenceLow)
		})

		Convey("neither RPC2 nor zlib", func() {
			res := Classify([]byte("not a script at all"))
			So(res.Format, ShouldEqual, FormatUnknown)
		})
	})

	Convey("LooksLikeCompiledScript", t, func() {
		So(LooksLikeCompiledScript("script.rpyc"), ShouldBeTrue)
		So(LooksLikeCompiledScript("SCRIPT.RPYC"), ShouldBeTrue)
		So(LooksLikeCompiledScript("script.rpy"), ShouldBeFalse)
		So(LooksLikeCompiledScript("image.png"), ShouldBeFalse)
	})
}
