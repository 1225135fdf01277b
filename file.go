package gofat32

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/spf13/afero"
)

// cursor remembers the last cluster visited by a File, so sequential reads do
// not walk the chain from its start again.
type cursor struct {
	index   uint32
	cluster Cluster
	valid   bool
}

// File is a regular file of a mounted volume. It is not safe for concurrent use.
type File struct {
	handle Handle
	entry  *Entry

	offset int64
	cursor cursor
	closed bool
}

// Name returns the name of the file.
func (f *File) Name() string {
	return f.entry.Name()
}

// Entry returns the entry describing the file.
func (f *File) Entry() *Entry {
	return f.entry
}

// Size returns the size of the file in bytes.
func (f *File) Size() int64 {
	return f.entry.Size()
}

func (f *File) Stat() (os.FileInfo, error) {
	return f.entry.FileInfo(), nil
}

func (f *File) Close() error {
	f.closed = true
	f.cursor = cursor{}
	f.offset = 0
	return nil
}

func (f *File) Read(p []byte) (n int, err error) {
	if f.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	// Reading a file if the size has been already reached, makes no sense.
	if f.Size() <= f.offset {
		return 0, io.EOF
	}

	n, err = f.readAt(p, f.offset)
	f.offset += int64(n)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	return n, nil
}

// ReadAt reads len(p) bytes beginning at off. It does not change the offset used by Read.
// Like io.ReaderAt it returns io.EOF if less than len(p) bytes are left in the file.
func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if f.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, checkpoint.Wrap(ErrReadFile, fmt.Errorf("%w, offset: %v", syscall.EINVAL, off))
	}

	// Reading over the end makes no sense.
	if f.Size() <= off {
		return 0, io.EOF
	}

	n, err = f.readAt(p, off)
	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// readAt reads at most until the end of the file.
func (f *File) readAt(p []byte, off int64) (int, error) {
	if left := f.Size() - off; int64(len(p)) > left {
		p = p[:left]
	}

	read := 0
	err := f.handle.Lock(func(v *VFat) error {
		clusterSize := int64(v.ClusterSize())
		for read < len(p) {
			pos := off + int64(read)
			c, err := f.seekCluster(v, uint32(pos/clusterSize))
			if err != nil {
				return err
			}

			n, err := v.ReadCluster(c, uint32(pos%clusterSize), p[read:])
			read += n
			if err != nil {
				return err
			}
		}
		return nil
	})
	return read, err
}

// seekCluster returns the cluster with the given index in the chain of the file.
// It continues from the cursor if that is not beyond the target.
func (f *File) seekCluster(v *VFat, index uint32) (Cluster, error) {
	if f.entry.Cluster() == 0 {
		return 0, checkpoint.Wrap(ErrCorruptChain, fmt.Errorf("file %q has a size of %d but no cluster", f.Name(), f.Size()))
	}

	start, steps := f.entry.Cluster(), index
	if f.cursor.valid && f.cursor.index <= index {
		start, steps = f.cursor.cluster, index-f.cursor.index
	}

	c, err := v.walk(start, steps)
	if err != nil {
		return 0, err
	}

	f.cursor = cursor{index: index, cluster: c, valid: true}
	return c, nil
}

// Seek jumps to a specific offset in the file. This affects all Read operation except ReadAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.Size() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > f.Size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}
