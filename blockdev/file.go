// Package blockdev contains block devices for the driver: disk images in any
// afero.Fs and plain memory.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/spf13/afero"
)

// DefaultSectorSize is the physical sector size of almost every disk.
const DefaultSectorSize = 512

var (
	ErrReadOnly          = errors.New("device is read-only")
	ErrInvalidSectorSize = errors.New("invalid sector size")
)

type options struct {
	sectorSize uint64
	readOnly   bool
}

// Option configures a device.
type Option func(o *options)

// WithPhysicalSectorSize sets the sector size of the device. The default is DefaultSectorSize.
func WithPhysicalSectorSize(size uint64) Option {
	return func(o *options) {
		o.sectorSize = size
	}
}

// ReadOnly rejects all writes to the device.
func ReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

func newOptions(opts []Option) (options, error) {
	o := options{sectorSize: DefaultSectorSize}
	for _, opt := range opts {
		opt(&o)
	}

	if o.sectorSize == 0 {
		return o, checkpoint.Wrap(ErrInvalidSectorSize, fmt.Errorf("sector size %d", o.sectorSize))
	}
	return o, nil
}

// File is a disk image accessed through an afero.File.
type File struct {
	file       afero.File
	sectorSize uint64
	readOnly   bool
}

// Open opens the image name of fs.
func Open(fs afero.Fs, name string, opts ...Option) (*File, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	flag := os.O_RDWR
	if o.readOnly {
		flag = os.O_RDONLY
	}

	file, err := fs.OpenFile(name, flag, 0)
	if err != nil {
		return nil, checkpoint.From(err)
	}

	return &File{
		file:       file,
		sectorSize: o.sectorSize,
		readOnly:   o.readOnly,
	}, nil
}

// NewFile uses an already opened file as device.
func NewFile(file afero.File, opts ...Option) (*File, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	return &File{
		file:       file,
		sectorSize: o.sectorSize,
		readOnly:   o.readOnly,
	}, nil
}

func (f *File) SectorSize() uint64 {
	return f.sectorSize
}

// ReadSector reads the sector into buf.
// Reading a sector which is only partially contained in the image returns the
// number of bytes available without error.
func (f *File) ReadSector(sector uint64, buf []byte) (int, error) {
	if uint64(len(buf)) > f.sectorSize {
		buf = buf[:f.sectorSize]
	}

	n, err := f.file.ReadAt(buf, int64(sector*f.sectorSize))
	if err == io.EOF && n > 0 {
		err = nil
	}
	if err != nil {
		return n, checkpoint.From(err)
	}
	return n, nil
}

func (f *File) WriteSector(sector uint64, buf []byte) (int, error) {
	if f.readOnly {
		return 0, checkpoint.Wrap(ErrReadOnly, fmt.Errorf("write to sector %d", sector))
	}
	if uint64(len(buf)) > f.sectorSize {
		buf = buf[:f.sectorSize]
	}

	n, err := f.file.WriteAt(buf, int64(sector*f.sectorSize))
	if err != nil {
		return n, checkpoint.From(err)
	}
	return n, nil
}

// Close syncs and closes the underlying file.
func (f *File) Close() error {
	if !f.readOnly {
		if err := f.file.Sync(); err != nil {
			_ = f.file.Close()
			return checkpoint.From(err)
		}
	}
	return checkpoint.From(f.file.Close())
}
