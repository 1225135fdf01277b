package gofat32

import (
	"encoding/binary"
	"fmt"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/sirupsen/logrus"
)

// Cluster is the index of a cluster in the data region.
// Clusters 0 and 1 are reserved, the first data cluster is 2.
type Cluster uint32

// firstDataCluster is the cluster which starts at the first sector of the data region.
const firstDataCluster Cluster = 2

// fatEntrySize is the size of one FAT32 table entry in bytes.
const fatEntrySize = 4

// Status is the meaning of a FAT entry.
type Status int

// The possible states of a FAT entry.
const (
	StatusFree Status = iota
	StatusReserved
	StatusData
	StatusBad
	StatusEoc
)

func (s Status) String() string {
	switch s {
	case StatusFree:
		return "free"
	case StatusReserved:
		return "reserved"
	case StatusData:
		return "data"
	case StatusBad:
		return "bad"
	case StatusEoc:
		return "end of chain"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// FatEntry is a raw 32 bit entry of the allocation table.
// Only the low 28 bits are significant.
type FatEntry uint32

// Value returns the significant 28 bits of the entry.
func (e FatEntry) Value() uint32 {
	return uint32(e) & 0x0FFFFFFF
}

// Status classifies the entry:
//  0x00000000             free
//  0x00000001             reserved
//  0x0FFFFFF0..0x0FFFFFF6 reserved
//  0x0FFFFFF7             bad cluster
//  0x0FFFFFF8..0x0FFFFFFF end of chain
//  anything else          data, the value is the next cluster
func (e FatEntry) Status() Status {
	v := e.Value()
	switch {
	case v == 0:
		return StatusFree
	case v == 1:
		return StatusReserved
	case v >= 0x0FFFFFF8:
		return StatusEoc
	case v == 0x0FFFFFF7:
		return StatusBad
	case v >= 0x0FFFFFF0:
		return StatusReserved
	}
	return StatusData
}

// Next returns the next cluster of the chain. It is only meaningful if the Status is StatusData.
func (e FatEntry) Next() Cluster {
	return Cluster(e.Value())
}

func (e FatEntry) String() string {
	if e.Status() == StatusData {
		return fmt.Sprintf("data(%d)", e.Value())
	}
	return e.Status().String()
}

// validCluster reports if c is inside of the data region.
func (v *VFat) validCluster(c Cluster) bool {
	return c >= firstDataCluster && uint64(c) < uint64(v.clusterCount)+uint64(firstDataCluster)
}

// clusterSector returns the first logical sector of the cluster.
func (v *VFat) clusterSector(c Cluster) uint64 {
	return v.dataStartSector + uint64(c-firstDataCluster)*uint64(v.sectorsPerCluster)
}

// FatEntry reads the allocation table entry of the cluster through the cache.
// It returns ErrOutOfRange for clusters beyond the table.
func (v *VFat) FatEntry(cluster Cluster) (FatEntry, error) {
	offset := uint64(cluster) * fatEntrySize
	if offset+fatEntrySize > uint64(v.sectorsPerFAT)*uint64(v.bytesPerSector) {
		return 0, checkpoint.Wrap(ErrOutOfRange, fmt.Errorf("cluster %d is outside of the FAT", cluster))
	}

	sector := v.fatStartSector + offset/uint64(v.bytesPerSector)
	data, err := v.device.peek(sector)
	if err != nil {
		return 0, err
	}

	inSector := offset % uint64(v.bytesPerSector)
	return FatEntry(binary.LittleEndian.Uint32(data[inSector:inSector+fatEntrySize]) & 0x0FFFFFFF), nil
}

// next returns the cluster following c in its chain. ok is false if c is the last cluster.
// Every entry other than a pointer into the data region or an end of chain marker is
// reported as ErrCorruptChain.
func (v *VFat) next(c Cluster) (next Cluster, ok bool, err error) {
	entry, err := v.FatEntry(c)
	if err != nil {
		return 0, false, err
	}

	switch entry.Status() {
	case StatusEoc:
		return 0, false, nil
	case StatusData:
		if !v.validCluster(entry.Next()) {
			v.corrupt(c, entry, "next cluster outside of the data region")
			return 0, false, checkpoint.Wrap(ErrCorruptChain, fmt.Errorf("cluster %d points to %d outside of the data region", c, entry.Next()))
		}
		return entry.Next(), true, nil
	}

	v.corrupt(c, entry, "unexpected FAT entry in a chain")
	return 0, false, checkpoint.Wrap(ErrCorruptChain, fmt.Errorf("cluster %d is marked %v inside of a chain", c, entry))
}

func (v *VFat) corrupt(c Cluster, entry FatEntry, msg string) {
	v.log.WithFields(logrus.Fields{
		"cluster": c,
		"entry":   entry.String(),
	}).Warn(msg)
}

// forEachCluster calls fn for every cluster of the chain beginning at start.
// A chain can never be longer than the number of clusters of the volume, so
// visiting more clusters than that means the chain contains a cycle.
func (v *VFat) forEachCluster(start Cluster, fn func(c Cluster) error) error {
	if !v.validCluster(start) {
		return checkpoint.Wrap(ErrOutOfRange, fmt.Errorf("chain start %d is outside of the data region", start))
	}

	c := start
	for visited := uint32(1); ; visited++ {
		if visited > v.clusterCount {
			v.log.WithField("start", start).Warn("cluster chain contains a cycle")
			return checkpoint.Wrap(ErrCorruptChain, fmt.Errorf("chain starting at %d is longer than the %d clusters of the volume", start, v.clusterCount))
		}

		if err := fn(c); err != nil {
			return err
		}

		next, ok, err := v.next(c)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c = next
	}
}

// walk follows the chain steps times from start and returns the cluster reached.
func (v *VFat) walk(start Cluster, steps uint32) (Cluster, error) {
	if steps >= v.clusterCount {
		return 0, checkpoint.Wrap(ErrCorruptChain, fmt.Errorf("%d steps exceed the %d clusters of the volume", steps, v.clusterCount))
	}
	if !v.validCluster(start) {
		return 0, checkpoint.Wrap(ErrOutOfRange, fmt.Errorf("chain start %d is outside of the data region", start))
	}

	c := start
	for i := uint32(0); i < steps; i++ {
		next, ok, err := v.next(c)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, checkpoint.Wrap(ErrCorruptChain, fmt.Errorf("chain ends after %d of %d clusters", i+1, steps+1))
		}
		c = next
	}
	return c, nil
}

// Chain returns all clusters of the chain beginning at start.
func (v *VFat) Chain(start Cluster) ([]Cluster, error) {
	var chain []Cluster
	err := v.forEachCluster(start, func(c Cluster) error {
		chain = append(chain, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

// ReadCluster reads the cluster beginning at offset into buf.
// It returns the number of bytes read which is less than len(buf) if the end of the cluster is reached.
func (v *VFat) ReadCluster(cluster Cluster, offset uint32, buf []byte) (int, error) {
	if !v.validCluster(cluster) {
		return 0, checkpoint.Wrap(ErrOutOfRange, fmt.Errorf("cluster %d is outside of the data region", cluster))
	}
	if offset >= v.ClusterSize() {
		return 0, nil
	}

	bps := uint32(v.bytesPerSector)
	first := v.clusterSector(cluster)
	read := 0
	for read < len(buf) && offset < v.ClusterSize() {
		data, err := v.device.peek(first + uint64(offset/bps))
		if err != nil {
			return read, err
		}

		n := copy(buf[read:], data[offset%bps:])
		read += n
		offset += uint32(n)
	}
	return read, nil
}

// ReadChain reads all clusters of the chain beginning at start and returns
// their content in chain order.
// It returns ErrCorruptChain if the chain contains a bad or free cluster or a cycle.
func (v *VFat) ReadChain(start Cluster) ([]byte, error) {
	var data []byte
	err := v.forEachCluster(start, func(c Cluster) error {
		first := v.clusterSector(c)
		for i := uint64(0); i < uint64(v.sectorsPerCluster); i++ {
			sector, err := v.device.peek(first + i)
			if err != nil {
				return err
			}
			data = append(data, sector...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
