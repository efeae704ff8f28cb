package rpa

import (
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Dynamicaaa/rpx/rpa/rpadata"
)

func TestReaderMemoization(t *testing.T) {
	t.Parallel()

	Convey("ReadHeader and ReadIndex each parse at most once", t, func() {
		dir := t.TempDir()
		out := filepath.Join(dir, "memo.rpa")
		entries := []Entry{memEntry("x.txt", []byte("contents"))}
		So(WriteArchive(out, entries, WithFamily(rpadata.Family3)), ShouldBeNil)

		r, err := Open(out)
		So(err, ShouldBeNil)

		h1, err := r.ReadHeader()
		So(err, ShouldBeNil)
		h2, err := r.ReadHeader()
		So(err, ShouldBeNil)
		So(h2, ShouldEqual, h1)

		ix1, err := r.ReadIndex()
		So(err, ShouldBeNil)
		ix2, err := r.ReadIndex()
		So(err, ShouldBeNil)
		So(ix2, ShouldEqual, ix1)
	})
}

func TestSidecarPath(t *testing.T) {
	t.Parallel()

	Convey("sidecarPath", t, func() {
		Convey("replaces a .rpa suffix case-insensitively", func() {
			So(sidecarPath("/a/b/archive.RPA"), ShouldEqual, "/a/b/archive.rpi")
			So(sidecarPath("/a/b/archive.rpa"), ShouldEqual, "/a/b/archive.rpi")
		})

		Convey("appends .rpi when there is no recognised suffix", func() {
			So(sidecarPath("/a/b/archive"), ShouldEqual, "/a/b/archive.rpi")
		})
	})
}
