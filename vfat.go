package gofat32

import (
	"fmt"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/aligator/gofat32/ebpb"
	"github.com/aligator/gofat32/mbr"
	"github.com/sirupsen/logrus"
)

// VFat is a mounted FAT32 volume. It owns the sector cache and is not safe
// for concurrent use: share it through a Handle.
type VFat struct {
	device *CachedPartition
	log    logrus.FieldLogger

	bytesPerSector    uint16
	sectorsPerCluster uint8
	sectorsPerFAT     uint32
	numFATs           uint8
	fatStartSector    uint64
	dataStartSector   uint64
	rootCluster       Cluster
	clusterCount      uint32
	label             string
}

// Open reads the partition table of device, locates the first FAT32 partition and
// assembles the volume. No state is returned if any step fails.
func Open(device BlockDevice, opts ...Option) (*VFat, error) {
	o := newOptions(opts)

	table, err := mbr.Read(device)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrMount)
	}

	index, entry, err := table.FirstFat32()
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrMount)
	}

	bpb, err := ebpb.Read(device, uint64(entry.RelativeSector))
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrMount)
	}

	if !o.skipChecks {
		if err := bpb.Validate(); err != nil {
			return nil, checkpoint.Wrap(err, ErrMount)
		}
	} else if bpb.BytesPerSector == 0 || bpb.SectorsPerCluster == 0 {
		// Even without checks these would lead to divisions by zero.
		err := checkpoint.Wrap(ErrInvalidGeometry, fmt.Errorf("bytes per sector %d, sectors per cluster %d", bpb.BytesPerSector, bpb.SectorsPerCluster))
		return nil, checkpoint.Wrap(err, ErrMount)
	}

	physical := device.SectorSize()
	partition := Partition{
		Start:      uint64(entry.RelativeSector),
		NumSectors: uint64(entry.TotalSectors) * physical / uint64(bpb.BytesPerSector),
		SectorSize: uint64(bpb.BytesPerSector),
	}

	cache, err := NewCachedPartition(device, partition, opts...)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrMount)
	}

	v := &VFat{
		device:            cache,
		log:               o.log,
		bytesPerSector:    bpb.BytesPerSector,
		sectorsPerCluster: bpb.SectorsPerCluster,
		sectorsPerFAT:     bpb.SectorsPerFAT,
		numFATs:           bpb.NumFATs,
		fatStartSector:    uint64(bpb.ReservedSectors),
		dataStartSector:   uint64(bpb.ReservedSectors) + uint64(bpb.SectorsPerFAT)*uint64(bpb.NumFATs),
		rootCluster:       Cluster(bpb.RootCluster),
		label:             bpb.Label(),
	}
	v.clusterCount = v.countClusters(bpb)

	if !v.validCluster(v.rootCluster) {
		err := checkpoint.Wrap(ErrOutOfRange, fmt.Errorf("root cluster %d, volume has %d clusters", v.rootCluster, v.clusterCount))
		return nil, checkpoint.Wrap(err, ErrMount)
	}

	o.log.WithFields(logrus.Fields{
		"partition":         index,
		"start":             partition.Start,
		"sectors":           partition.NumSectors,
		"bytesPerSector":    v.bytesPerSector,
		"sectorsPerCluster": v.sectorsPerCluster,
		"fatStart":          v.fatStartSector,
		"dataStart":         v.dataStartSector,
		"rootCluster":       v.rootCluster,
		"clusters":          v.clusterCount,
	}).Debug("mounted FAT32 volume")

	return v, nil
}

// countClusters returns the number of data clusters. It is limited by the
// sectors of the partition as well as by the entries the FAT can hold.
func (v *VFat) countClusters(bpb *ebpb.BiosParameterBlock) uint32 {
	sectors := v.device.Partition().NumSectors
	if total := uint64(bpb.TotalSectors()); total != 0 && total < sectors {
		sectors = total
	}
	if sectors <= v.dataStartSector {
		return 0
	}

	clusters := (sectors - v.dataStartSector) / uint64(v.sectorsPerCluster)
	fatEntries := uint64(v.sectorsPerFAT) * uint64(v.bytesPerSector) / fatEntrySize
	if fatEntries < uint64(firstDataCluster) {
		return 0
	}
	if limit := fatEntries - uint64(firstDataCluster); clusters > limit {
		clusters = limit
	}
	return uint32(clusters)
}

// Flush writes all modified sectors back to the device.
func (v *VFat) Flush() error {
	return v.device.Flush()
}

// Device returns the sector cache of the volume.
func (v *VFat) Device() *CachedPartition {
	return v.device
}

// RootCluster returns the first cluster of the root directory.
func (v *VFat) RootCluster() Cluster {
	return v.rootCluster
}

// ClusterSize returns the size of a cluster in bytes.
func (v *VFat) ClusterSize() uint32 {
	return uint32(v.bytesPerSector) * uint32(v.sectorsPerCluster)
}

// ClusterCount returns the number of clusters in the data region.
func (v *VFat) ClusterCount() uint32 {
	return v.clusterCount
}

// Label returns the volume label stored in the EBPB.
func (v *VFat) Label() string {
	return v.label
}

// Geometry describes the layout of a mounted volume.
type Geometry struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	SectorsPerFAT     uint32
	NumFATs           uint8
	FATStartSector    uint64
	DataStartSector   uint64
	RootCluster       Cluster
	ClusterCount      uint32
}

// Geometry returns the layout of the volume.
func (v *VFat) Geometry() Geometry {
	return Geometry{
		BytesPerSector:    v.bytesPerSector,
		SectorsPerCluster: v.sectorsPerCluster,
		SectorsPerFAT:     v.sectorsPerFAT,
		NumFATs:           v.numFATs,
		FATStartSector:    v.fatStartSector,
		DataStartSector:   v.dataStartSector,
		RootCluster:       v.rootCluster,
		ClusterCount:      v.clusterCount,
	}
}
