package gofat32

import (
	"bytes"
	"testing"

	"github.com/aligator/gofat32/blockdev"
	"github.com/aligator/gofat32/mkfs"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// pattern returns size bytes which differ from cluster to cluster, so a
// wrong cluster order is visible in the read data.
func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i/7 + i%251)
	}
	return data
}

// buildImage builds an image with the given tree.
func buildImage(t *testing.T, config mkfs.Config, fill func(root *mkfs.Node)) (*mkfs.Image, *mkfs.Builder) {
	t.Helper()

	builder := mkfs.New(config)
	if fill != nil {
		fill(builder.Root())
	}

	img, err := builder.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return img, builder
}

// memoryDevice returns a device working on the bytes of img.
func memoryDevice(t *testing.T, img *mkfs.Image, sectorSize uint64) *blockdev.Memory {
	t.Helper()

	device, err := blockdev.NewMemory(img.Bytes(), blockdev.WithPhysicalSectorSize(sectorSize))
	if err != nil {
		t.Fatalf("NewMemory() error = %v", err)
	}
	return device
}

// nullLogger discards everything but remembers the entries for assertions.
func nullLogger() (*logrus.Logger, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log, hook
}

// mountImage mounts img from memory.
func mountImage(t *testing.T, img *mkfs.Image, opts ...Option) *FileSystem {
	t.Helper()

	log, _ := nullLogger()
	fsys, err := Mount(memoryDevice(t, img, 512), append([]Option{WithLogger(log)}, opts...)...)
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	t.Cleanup(func() {
		_ = fsys.Close()
	})
	return fsys
}

// standardTree is used by most tests:
//  /A.TXT                   3 clusters
//  /readme.md               short name with lower case flags
//  /A long file name.txt    long name
//  /EMPTY
//  /docs/                   directory
//  /docs/nested/deep.bin
//  deleted record of OLD.TXT
func standardTree(clusterSize int) func(root *mkfs.Node) {
	return func(root *mkfs.Node) {
		root.AddFile("A.TXT", pattern(3*clusterSize))
		root.AddDeleted("OLD.TXT")
		root.AddFile("readme.md", []byte("# readme\n"))
		root.AddFile("A long file name.txt", []byte("long"))
		root.AddFile("EMPTY", nil)
		docs := root.AddDir("docs")
		nested := docs.AddDir("nested")
		nested.AddFile("deep.bin", pattern(clusterSize+10))
		hidden := root.AddFile("HIDDEN", []byte("h"))
		hidden.Attributes |= mkfs.AttrHidden
	}
}

func assertBytes(t *testing.T, name string, got, want []byte) {
	t.Helper()
	if !bytes.Equal(got, want) {
		t.Errorf("%s = %d bytes, want %d bytes, equal prefix: %v", name, len(got), len(want), bytes.HasPrefix(got, want[:len(want)/2]))
	}
}
