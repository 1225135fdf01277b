package gofat32

import (
	"fmt"
	"io"
	"sort"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/sirupsen/logrus"
)

// Partition describes the window of a device a CachedPartition works on.
type Partition struct {
	// Start is the physical sector where the partition begins.
	Start uint64
	// NumSectors is the number of logical sectors.
	NumSectors uint64
	// SectorSize is the size of a logical sector in bytes.
	SectorSize uint64
}

type cacheEntry struct {
	data  []byte
	dirty bool
}

// CachedPartition transparently caches the sectors of a device and maps
// logical sectors of a partition to physical sectors of the device.
// All reads and writes are performed on the in-memory cache; only Flush
// writes to the device.
//
// A logical sector spans SectorSize / device.SectorSize() physical sectors.
// Logical sector 0 is physical sector Partition.Start.
//
// The cache is never evicted. It is not safe for concurrent use, VFat only
// accesses it through a Handle.
type CachedPartition struct {
	device    BlockDevice
	partition Partition
	cache     map[uint64]*cacheEntry
	log       logrus.FieldLogger

	// deviceReads counts physical sector reads, mostly for diagnostics.
	deviceReads uint64
}

// NewCachedPartition creates a cache over device for the given partition.
// It returns ErrInvalidGeometry if the logical sector size is not a positive
// multiple of the sector size of the device.
func NewCachedPartition(device BlockDevice, partition Partition, opts ...Option) (*CachedPartition, error) {
	o := newOptions(opts)

	physical := device.SectorSize()
	if physical == 0 || partition.SectorSize < physical || partition.SectorSize%physical != 0 {
		return nil, checkpoint.Wrap(ErrInvalidGeometry, fmt.Errorf("logical sector size %d does not fit physical sector size %d", partition.SectorSize, physical))
	}

	return &CachedPartition{
		device:    device,
		partition: partition,
		cache:     make(map[uint64]*cacheEntry),
		log:       o.log,
	}, nil
}

// factor is the number of physical sectors which make up one logical sector.
func (c *CachedPartition) factor() uint64 {
	return c.partition.SectorSize / c.device.SectorSize()
}

// virtualToPhysical maps the logical sector virt to the first physical sector backing it.
func (c *CachedPartition) virtualToPhysical(virt uint64) (uint64, error) {
	if virt >= c.partition.NumSectors {
		return 0, checkpoint.Wrap(ErrOutOfRange, fmt.Errorf("sector %d, partition has %d sectors", virt, c.partition.NumSectors))
	}

	return c.partition.Start + virt*c.factor(), nil
}

// load returns the cache entry for the logical sector, reading it from the
// device if necessary.
func (c *CachedPartition) load(virt uint64) (*cacheEntry, error) {
	physical, err := c.virtualToPhysical(virt)
	if err != nil {
		return nil, err
	}

	if entry, ok := c.cache[physical]; ok {
		return entry, nil
	}

	size := c.device.SectorSize()
	data := make([]byte, c.partition.SectorSize)
	for i := uint64(0); i < c.factor(); i++ {
		n, err := c.device.ReadSector(physical+i, data[i*size:(i+1)*size])
		c.deviceReads++
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			// The partition reaches beyond the end of the device.
			return nil, checkpoint.Wrap(ErrOutOfRange, fmt.Errorf("physical sector %d is beyond the end of the device: %w", physical+i, io.ErrUnexpectedEOF))
		}
		if err != nil {
			return nil, checkpoint.From(err)
		}
		if uint64(n) < size {
			return nil, checkpoint.Wrap(ErrOutOfRange, fmt.Errorf("short read of physical sector %d, %d bytes: %w", physical+i, n, io.ErrUnexpectedEOF))
		}
	}

	entry := &cacheEntry{data: data}
	c.cache[physical] = entry
	return entry, nil
}

// Get returns a copy of the logical sector. If the sector is not cached yet,
// it is read from the device first.
func (c *CachedPartition) Get(sector uint64) ([]byte, error) {
	entry, err := c.load(sector)
	if err != nil {
		return nil, err
	}

	data := make([]byte, len(entry.data))
	copy(data, entry.data)
	return data, nil
}

// GetMut returns the cached bytes of the logical sector for modification.
// The sector is marked dirty as it is presumed that it will be written to.
// If this is not intended, use Get instead.
//
// The returned slice stays valid for the lifetime of the cache, modifications
// reach the device on the next Flush.
func (c *CachedPartition) GetMut(sector uint64) ([]byte, error) {
	entry, err := c.load(sector)
	if err != nil {
		return nil, err
	}

	entry.dirty = true
	return entry.data, nil
}

// peek returns the cached bytes without copying. Callers must not modify them.
func (c *CachedPartition) peek(sector uint64) ([]byte, error) {
	entry, err := c.load(sector)
	if err != nil {
		return nil, err
	}
	return entry.data, nil
}

// Flush writes all dirty sectors back to the device.
// If writing a sector fails, the error is returned and that sector and all
// sectors not visited yet stay dirty, so Flush can be retried.
func (c *CachedPartition) Flush() error {
	dirty := make([]uint64, 0)
	for physical, entry := range c.cache {
		if entry.dirty {
			dirty = append(dirty, physical)
		}
	}
	sort.Slice(dirty, func(i, j int) bool { return dirty[i] < dirty[j] })

	size := c.device.SectorSize()
	for _, physical := range dirty {
		entry := c.cache[physical]
		for i := uint64(0); i < c.factor(); i++ {
			n, err := c.device.WriteSector(physical+i, entry.data[i*size:(i+1)*size])
			if err != nil {
				return checkpoint.From(err)
			}
			if uint64(n) < size {
				return checkpoint.Wrap(io.ErrShortWrite, fmt.Errorf("short write of physical sector %d: %d bytes", physical+i, n))
			}
		}
		entry.dirty = false
	}

	if len(dirty) > 0 {
		c.log.WithField("sectors", len(dirty)).Debug("flushed sector cache")
	}
	return nil
}

// Dirty returns the number of sectors modified since the last Flush.
func (c *CachedPartition) Dirty() int {
	count := 0
	for _, entry := range c.cache {
		if entry.dirty {
			count++
		}
	}
	return count
}

// Len returns the number of cached sectors.
func (c *CachedPartition) Len() int {
	return len(c.cache)
}

// DeviceReads returns how many physical sectors were read from the device.
func (c *CachedPartition) DeviceReads() uint64 {
	return c.deviceReads
}

// Partition returns the window the cache works on.
func (c *CachedPartition) Partition() Partition {
	return c.partition
}

// SectorSize returns the logical sector size.
func (c *CachedPartition) SectorSize() uint64 {
	return c.partition.SectorSize
}

// ReadSector copies the cached logical sector into buf.
func (c *CachedPartition) ReadSector(sector uint64, buf []byte) (int, error) {
	data, err := c.peek(sector)
	if err != nil {
		return 0, err
	}
	return copy(buf, data), nil
}

// WriteSector copies buf into the cached logical sector and marks it dirty.
// Nothing is written to the device before Flush.
func (c *CachedPartition) WriteSector(sector uint64, buf []byte) (int, error) {
	data, err := c.GetMut(sector)
	if err != nil {
		return 0, err
	}
	return copy(data, buf), nil
}
