package rpa

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCollectDir(t *testing.T) {
	t.Parallel()

	Convey("CollectDir", t, func() {
		dir := t.TempDir()
		mustWrite := func(rel string, data string) {
			p := filepath.Join(dir, rel)
			So(os.MkdirAll(filepath.Dir(p), 0777), ShouldBeNil)
			So(os.WriteFile(p, []byte(data), 0644), ShouldBeNil)
		}
		mustWrite("a.rpy", "one")
		mustWrite("b.rpyc", "two")
		mustWrite("sub/c.txt", "three")
		mustWrite(".git/config", "hidden")

		Convey("hidden files and directories are skipped by default", func() {
			entries, err := CollectDir(dir)
			So(err, ShouldBeNil)
			var paths []string
			for _, e := range entries {
				paths = append(paths, e.Path)
			}
			So(paths, ShouldResemble, []string{"a.rpy", "b.rpyc", "sub/c.txt"})
		})

		Convey("an exclude pattern matching everything yields an empty set that fails EmptyInput downstream", func() {
			entries, err := CollectDir(dir, WithExcludes("**"))
			So(err, ShouldBeNil)
			So(entries, ShouldBeEmpty)

			err = WriteArchive(filepath.Join(t.TempDir(), "out.rpa"), entries)
			So(err, ShouldNotBeNil)
		})

		Convey("an exclude pattern matching a subset yields the complement", func() {
			entries, err := CollectDir(dir, WithExcludes("*.rpyc"))
			So(err, ShouldBeNil)
			var paths []string
			for _, e := range entries {
				paths = append(paths, e.Path)
			}
			So(paths, ShouldResemble, []string{"a.rpy", "sub/c.txt"})
		})
	})
}
