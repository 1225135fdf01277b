package gofat32

import (
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/sirupsen/logrus"
)

// FileSystem is a mounted FAT32 volume with path based access.
// It is safe for concurrent use. Dir and File values obtained from it are not.
type FileSystem struct {
	handle Handle
	device BlockDevice
	log    logrus.FieldLogger

	root  Cluster
	label string

	mu     sync.Mutex
	closed bool
}

// Mount opens the first FAT32 partition of device.
// The volume is shared through a MutexHandle, or a TaskHandle if WithTaskHandle is given.
func Mount(device BlockDevice, opts ...Option) (*FileSystem, error) {
	o := newOptions(opts)

	v, err := Open(device, opts...)
	if err != nil {
		return nil, err
	}

	var handle Handle
	if o.taskHandle {
		handle = NewTaskHandle(v)
	} else {
		handle = NewMutexHandle(v)
	}

	return &FileSystem{
		handle: handle,
		device: device,
		log:    o.log,
		root:   v.RootCluster(),
		label:  v.Label(),
	}, nil
}

// Handle returns the handle which guards the volume.
func (fsys *FileSystem) Handle() Handle {
	return fsys.handle
}

// Label returns the volume label.
func (fsys *FileSystem) Label() string {
	return fsys.label
}

func (fsys *FileSystem) checkOpen() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fsys.closed {
		return ErrClosed
	}
	return nil
}

// Root returns the root directory.
func (fsys *FileSystem) Root() *Dir {
	return &Dir{handle: fsys.handle, entry: rootEntry(fsys.handle, fsys.root)}
}

// Open returns the entry at the given '/' separated path. The path is always
// interpreted relative to the root directory and names are matched case insensitive.
//
// It returns ErrNotFound if a component does not exist and ErrNotADirectory if
// a component other than the last one is a file.
func (fsys *FileSystem) Open(name string) (*Entry, error) {
	if err := fsys.checkOpen(); err != nil {
		return nil, err
	}

	entry := fsys.Root().Entry()
	clean := path.Clean("/" + name)
	if clean == "/" {
		return entry, nil
	}

	for _, part := range strings.Split(clean[1:], "/") {
		dir, err := entry.Dir()
		if err != nil {
			return nil, err
		}

		entry, err = dir.Find(part)
		if err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// Sync writes all modified sectors back to the device.
func (fsys *FileSystem) Sync() error {
	if err := fsys.checkOpen(); err != nil {
		return err
	}

	return fsys.handle.Lock(func(v *VFat) error {
		return v.Flush()
	})
}

// Close flushes the cache and releases the volume. If the device implements
// io.Closer, it is closed as well.
// Entries, directories and files of the volume must not be used afterwards.
func (fsys *FileSystem) Close() error {
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fsys.closed {
		return nil
	}

	err := fsys.handle.Lock(func(v *VFat) error {
		return v.Flush()
	})
	if err != nil {
		return checkpoint.From(err)
	}
	fsys.closed = true

	if closer, ok := fsys.handle.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return checkpoint.From(err)
		}
	}
	if closer, ok := fsys.device.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return checkpoint.From(err)
		}
	}

	fsys.log.Debug("unmounted FAT32 volume")
	return nil
}

// Stats describes the usage of a volume.
type Stats struct {
	Geometry
	ClusterSize  uint32
	FreeClusters uint32
	BadClusters  uint32
}

// TotalBytes returns the size of the data region.
func (s Stats) TotalBytes() uint64 {
	return uint64(s.ClusterCount) * uint64(s.ClusterSize)
}

// FreeBytes returns the size of all free clusters.
func (s Stats) FreeBytes() uint64 {
	return uint64(s.FreeClusters) * uint64(s.ClusterSize)
}

// Stats scans the allocation table.
func (fsys *FileSystem) Stats() (Stats, error) {
	if err := fsys.checkOpen(); err != nil {
		return Stats{}, err
	}

	var stats Stats
	err := fsys.handle.Lock(func(v *VFat) error {
		stats.Geometry = v.Geometry()
		stats.ClusterSize = v.ClusterSize()

		last := firstDataCluster + Cluster(v.ClusterCount())
		for c := firstDataCluster; c < last; c++ {
			entry, err := v.FatEntry(c)
			if err != nil {
				return checkpoint.Wrap(err, fmt.Errorf("scanning the FAT at cluster %d", c))
			}

			switch entry.Status() {
			case StatusFree:
				stats.FreeClusters++
			case StatusBad:
				stats.BadClusters++
			}
		}
		return nil
	})
	return stats, err
}
