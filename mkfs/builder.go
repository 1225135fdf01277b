// Package mkfs builds FAT32 disk images in memory: an MBR with a single FAT32
// partition containing a given tree of directories and files.
//
// The images are used by the tests of the driver and by cmd/mkimage.
package mkfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/aligator/gofat32/ebpb"
	"github.com/aligator/gofat32/mbr"
)

// These errors may occur while building an image.
var (
	ErrInvalidConfig = errors.New("invalid image configuration")
	ErrFull          = errors.New("not enough clusters")
	ErrInvalidName   = errors.New("invalid name")
)

// FAT values written by the builder.
const (
	fatEOC    uint32 = 0x0FFFFFFF
	fatMedia  uint32 = 0x0FFFFFF8
	fatEntry  = 4
	rootFirst = 2

	// mediaFixed is the media descriptor of the BPB; FAT[0] repeats it in its low byte.
	mediaFixed byte = 0xF8
)

// Config describes the geometry of an image. Zero values are replaced by defaults.
type Config struct {
	// PhysicalSectorSize is the sector size of the device, 512 by default.
	PhysicalSectorSize uint64
	// BytesPerSector is the logical sector size of the volume, 512 by default.
	BytesPerSector uint16
	// SectorsPerCluster is 1 by default.
	SectorsPerCluster uint8
	// ReservedSectors is 32 by default.
	ReservedSectors uint16
	// NumFATs is 2 by default.
	NumFATs uint8
	// Clusters is the number of data clusters, 256 by default.
	Clusters uint32

	// PartitionStart is the first physical sector of the partition, 8 by default.
	PartitionStart uint32
	// PartitionIndex is the slot of the FAT32 partition in the MBR. Slots in
	// front of it are filled with linux partitions.
	PartitionIndex int
	// PartitionType defaults to mbr.TypeFat32LBA.
	PartitionType mbr.PartitionType

	// Label is written into the EBPB and as volume label record into the root directory.
	Label string
	// Time is used for all timestamps of entries without ModTime.
	Time time.Time
	// Scatter leaves a free cluster behind every allocated cluster, so no
	// chain is contiguous.
	Scatter bool
}

func (c *Config) setDefaults() {
	if c.PhysicalSectorSize == 0 {
		c.PhysicalSectorSize = 512
	}
	if c.BytesPerSector == 0 {
		c.BytesPerSector = 512
	}
	if c.SectorsPerCluster == 0 {
		c.SectorsPerCluster = 1
	}
	if c.ReservedSectors == 0 {
		c.ReservedSectors = 32
	}
	if c.NumFATs == 0 {
		c.NumFATs = 2
	}
	if c.Clusters == 0 {
		c.Clusters = 256
	}
	if c.PartitionStart == 0 {
		c.PartitionStart = 8
	}
	if c.PartitionType == 0 {
		c.PartitionType = mbr.TypeFat32LBA
	}
	if c.Time.IsZero() {
		c.Time = time.Date(2021, 1, 2, 3, 4, 6, 0, time.UTC)
	}
}

func (c *Config) validate() error {
	switch {
	case uint64(c.BytesPerSector)%c.PhysicalSectorSize != 0:
		return checkpoint.Wrap(ErrInvalidConfig, fmt.Errorf("bytes per sector %d is no multiple of the physical sector size %d", c.BytesPerSector, c.PhysicalSectorSize))
	case c.PartitionIndex < 0 || c.PartitionIndex > 3:
		return checkpoint.Wrap(ErrInvalidConfig, fmt.Errorf("partition index %d", c.PartitionIndex))
	case c.ReservedSectors < 2:
		return checkpoint.Wrap(ErrInvalidConfig, fmt.Errorf("%d reserved sectors, need at least 2", c.ReservedSectors))
	case len(c.Label) > 11:
		return checkpoint.Wrap(ErrInvalidConfig, fmt.Errorf("label %q is longer than 11 bytes", c.Label))
	}
	return nil
}

// Builder collects a directory tree and writes it as image.
type Builder struct {
	config Config
	root   *Node
}

// New creates a builder with an empty root directory.
func New(config Config) *Builder {
	config.setDefaults()
	return &Builder{
		config: config,
		root:   &Node{Attributes: AttrDirectory, root: true},
	}
}

// Root returns the root directory.
func (b *Builder) Root() *Node {
	return b.root
}

// Node is a file or directory of the image.
type Node struct {
	Name       string
	Attributes byte
	Data       []byte
	// ModTime is used for all timestamps if set.
	ModTime time.Time

	root     bool
	deleted  bool
	children []*Node
	parent   *Node

	clusters []uint32
	short    [11]byte
	ntFlags  byte
	long     bool
}

// IsDir reports if the node is a directory.
func (n *Node) IsDir() bool {
	return n.Attributes&AttrDirectory != 0
}

// Children returns the nodes added to the directory.
func (n *Node) Children() []*Node {
	return n.children
}

// AddFile adds a file with the given content.
func (n *Node) AddFile(name string, data []byte) *Node {
	child := &Node{Name: name, Attributes: AttrArchive, Data: data, parent: n}
	n.children = append(n.children, child)
	return child
}

// AddDir adds an empty directory.
func (n *Node) AddDir(name string) *Node {
	child := &Node{Name: name, Attributes: AttrDirectory, parent: n}
	n.children = append(n.children, child)
	return child
}

// AddDeleted adds the records of a deleted file. It has no clusters.
func (n *Node) AddDeleted(name string) *Node {
	child := &Node{Name: name, Attributes: AttrArchive, deleted: true, parent: n}
	n.children = append(n.children, child)
	return child
}

// Clusters returns the chain of the node. It is only available after Build.
func (n *Node) Clusters() []uint32 {
	return n.clusters
}

// FirstCluster returns the first cluster of the node or 0 if it has none.
func (n *Node) FirstCluster() uint32 {
	if len(n.clusters) == 0 {
		return 0
	}
	return n.clusters[0]
}

// layout is the computed geometry of the volume.
type layout struct {
	sectorsPerFAT   uint32
	logicalSectors  uint32
	physicalSectors uint32
	clusterSize     uint32
}

func (b *Builder) layout() layout {
	c := b.config
	fatBytes := (uint64(c.Clusters) + rootFirst) * fatEntry
	sectorsPerFAT := uint32((fatBytes + uint64(c.BytesPerSector) - 1) / uint64(c.BytesPerSector))
	logical := uint32(c.ReservedSectors) + sectorsPerFAT*uint32(c.NumFATs) + c.Clusters*uint32(c.SectorsPerCluster)

	return layout{
		sectorsPerFAT:   sectorsPerFAT,
		logicalSectors:  logical,
		physicalSectors: uint32(uint64(logical) * uint64(c.BytesPerSector) / c.PhysicalSectorSize),
		clusterSize:     uint32(c.BytesPerSector) * uint32(c.SectorsPerCluster),
	}
}

// allocator hands out clusters in ascending order.
type allocator struct {
	next    uint32
	last    uint32
	scatter bool
	fat     []uint32
}

func (a *allocator) chain(count uint32) ([]uint32, error) {
	chain := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		if a.next > a.last {
			return nil, checkpoint.Wrap(ErrFull, fmt.Errorf("%d clusters available", a.last-rootFirst+1))
		}
		chain = append(chain, a.next)
		a.next++
		if a.scatter {
			a.next++
		}
	}

	for i, c := range chain {
		if i+1 < len(chain) {
			a.fat[c] = chain[i+1]
		} else {
			a.fat[c] = fatEOC
		}
	}
	return chain, nil
}

// Build writes the image.
func (b *Builder) Build() (*Image, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return nil, err
	}
	l := b.layout()

	alloc := &allocator{
		next:    rootFirst,
		last:    rootFirst + c.Clusters - 1,
		scatter: c.Scatter,
		fat:     make([]uint32, c.Clusters+rootFirst),
	}
	alloc.fat[0] = fatMedia
	alloc.fat[1] = fatEOC

	if err := b.allocate(b.root, alloc, l.clusterSize); err != nil {
		return nil, err
	}

	img := &Image{
		data:           make([]byte, (uint64(c.PartitionStart)+uint64(l.physicalSectors))*c.PhysicalSectorSize),
		partitionStart: uint64(c.PartitionStart) * c.PhysicalSectorSize,
		bytesPerSector: uint64(c.BytesPerSector),
		fatStart:       uint64(c.ReservedSectors),
		sectorsPerFAT:  uint64(l.sectorsPerFAT),
		numFATs:        uint64(c.NumFATs),
		clusterSize:    uint64(l.clusterSize),
		dataStart:      uint64(c.ReservedSectors) + uint64(l.sectorsPerFAT)*uint64(c.NumFATs),
	}

	copy(img.data, b.mbr(l).Bytes())

	bpb := b.bpb(l)
	copy(img.sector(0), bpb.Bytes())
	copy(img.sector(1), b.fsInfo(alloc))
	if bpb.BackupBootSector != 0 {
		copy(img.sector(uint64(bpb.BackupBootSector)), bpb.Bytes())
	}

	for cluster, value := range alloc.fat {
		img.SetFAT(uint32(cluster), value)
	}

	if err := b.write(b.root, img); err != nil {
		return nil, err
	}
	return img, nil
}

// allocate assigns clusters to the directory, its files and its subdirectories.
func (b *Builder) allocate(dir *Node, alloc *allocator, clusterSize uint32) error {
	used := make(map[[11]byte]bool)
	records := 0
	if !dir.root {
		// "." and ".."
		records += 2
	} else if b.config.Label != "" {
		records++
	}

	for _, child := range dir.children {
		if child.Name == "" || len(child.Name) > MaxNameLength || child.Name == "." || child.Name == ".." {
			return checkpoint.Wrap(ErrInvalidName, fmt.Errorf("%q", child.Name))
		}

		if raw, flags, ok := fitsShort(child.Name); ok && !used[raw] {
			child.short, child.ntFlags = raw, flags
		} else {
			raw, err := generateShort(child.Name, used)
			if err != nil {
				return checkpoint.Wrap(ErrInvalidName, err)
			}
			child.short, child.long = raw, true
		}
		used[child.short] = true

		records++
		if child.long {
			records += (len(utf16Units(child.Name)) + lfnChars - 1) / lfnChars
		}
	}

	size := uint32(records * direntSize)
	count := (size + clusterSize - 1) / clusterSize
	if count == 0 {
		count = 1
	}
	chain, err := alloc.chain(count)
	if err != nil {
		return err
	}
	dir.clusters = chain

	for _, child := range dir.children {
		switch {
		case child.deleted:
		case child.IsDir():
			if err := b.allocate(child, alloc, clusterSize); err != nil {
				return err
			}
		case len(child.Data) > 0:
			chain, err := alloc.chain((uint32(len(child.Data)) + clusterSize - 1) / clusterSize)
			if err != nil {
				return err
			}
			child.clusters = chain
		}
	}
	return nil
}

func (b *Builder) timestamp(n *Node) time.Time {
	if !n.ModTime.IsZero() {
		return n.ModTime
	}
	return b.config.Time
}

// write encodes the directory records and the file contents.
func (b *Builder) write(dir *Node, img *Image) error {
	var records []byte
	appendShort := func(r shortRecord) []byte {
		rec := make([]byte, direntSize)
		r.encode(rec)
		records = append(records, rec...)
		return rec
	}

	t := b.timestamp(dir)
	if dir.root {
		if b.config.Label != "" {
			appendShort(shortRecord{name: padShort(b.config.Label, ""), attributes: AttrVolumeID, created: t, modified: t, accessed: t})
		}
	} else {
		var parent uint32
		if !dir.parent.root {
			parent = dir.parent.FirstCluster()
		}
		appendShort(shortRecord{name: padShort(".", ""), attributes: AttrDirectory, cluster: dir.FirstCluster(), created: t, modified: t, accessed: t})
		appendShort(shortRecord{name: padShort("..", ""), attributes: AttrDirectory, cluster: parent, created: t, modified: t, accessed: t})
	}

	for _, child := range dir.children {
		start := len(records)
		if child.long {
			records = append(records, longRecords(child.Name, checksum(child.short))...)
		}

		t := b.timestamp(child)
		var size uint32
		if !child.IsDir() {
			size = uint32(len(child.Data))
		}
		appendShort(shortRecord{
			name:       child.short,
			attributes: child.Attributes,
			ntFlags:    child.ntFlags,
			cluster:    child.FirstCluster(),
			size:       size,
			created:    t,
			modified:   t,
			accessed:   t,
		})

		if child.deleted {
			for off := start; off < len(records); off += direntSize {
				records[off] = 0xE5
			}
		}
	}

	img.writeChain(dir.clusters, records)

	for _, child := range dir.children {
		switch {
		case child.deleted:
		case child.IsDir():
			if err := b.write(child, img); err != nil {
				return err
			}
		default:
			img.writeChain(child.clusters, child.Data)
		}
	}
	return nil
}

func (b *Builder) mbr(l layout) *mbr.MasterBootRecord {
	c := b.config
	table := &mbr.MasterBootRecord{Signature: [2]byte{0x55, 0xAA}}
	copy(table.DiskID[:], "gofat32\x00\x00\x00")

	// Unknown CHS values are stored as the maximum.
	lba := mbr.CHS{Head: 0xFE, Sector: 0x3F, Cylinder: 0x3FF}
	for i := 0; i < c.PartitionIndex; i++ {
		table.Partitions[i] = mbr.PartitionEntry{
			BootIndicator: mbr.Inactive,
			Type:          mbr.TypeLinux,
			Start:         lba,
			End:           lba,
		}
	}
	table.Partitions[c.PartitionIndex] = mbr.PartitionEntry{
		BootIndicator:  mbr.Active,
		Start:          lba,
		Type:           c.PartitionType,
		End:            lba,
		RelativeSector: c.PartitionStart,
		TotalSectors:   l.physicalSectors,
	}
	return table
}

func (b *Builder) bpb(l layout) *ebpb.BiosParameterBlock {
	c := b.config
	bpb := &ebpb.BiosParameterBlock{
		JumpBoot:          [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:    c.BytesPerSector,
		SectorsPerCluster: c.SectorsPerCluster,
		ReservedSectors:   c.ReservedSectors,
		NumFATs:           c.NumFATs,
		Media:             mediaFixed,
		SectorsPerTrack:   63,
		NumHeads:          255,
		HiddenSectors:     c.PartitionStart,
		TotalSectors32:    l.logicalSectors,
		SectorsPerFAT:     l.sectorsPerFAT,
		RootCluster:       rootFirst,
		FSInfoSector:      1,
		DriveNumber:       0x80,
		ExtSignature:      0x29,
		VolumeID:          uint32(c.Time.Unix()),
		BootSignature:     ebpb.Signature,
	}
	if c.ReservedSectors > 6 {
		bpb.BackupBootSector = 6
	}

	copy(bpb.OEMName[:], "GOFAT32 ")
	label := c.Label
	if label == "" {
		label = "NO NAME"
	}
	copy(bpb.VolumeLabel[:], fmt.Sprintf("%-11s", label))
	copy(bpb.SystemID[:], "FAT32   ")
	return bpb
}

// fsInfo encodes the FSInfo sector with the free cluster count.
func (b *Builder) fsInfo(alloc *allocator) []byte {
	le := binary.LittleEndian
	sector := make([]byte, b.config.BytesPerSector)

	var free uint32
	for _, v := range alloc.fat[rootFirst:] {
		if v == 0 {
			free++
		}
	}

	le.PutUint32(sector[0:4], 0x41615252)
	le.PutUint32(sector[484:488], 0x61417272)
	le.PutUint32(sector[488:492], free)
	le.PutUint32(sector[492:496], alloc.next)
	le.PutUint32(sector[508:512], 0xAA550000)
	return sector
}

// Image is a built disk image.
type Image struct {
	data []byte

	partitionStart uint64
	bytesPerSector uint64
	fatStart       uint64
	sectorsPerFAT  uint64
	numFATs        uint64
	clusterSize    uint64
	dataStart      uint64
}

// Bytes returns the whole image including the MBR.
func (img *Image) Bytes() []byte {
	return img.data
}

// sector returns the logical sector of the partition.
func (img *Image) sector(n uint64) []byte {
	start := img.partitionStart + n*img.bytesPerSector
	return img.data[start : start+img.bytesPerSector]
}

// ClusterOffset returns the byte offset of the cluster in the image.
func (img *Image) ClusterOffset(cluster uint32) uint64 {
	return img.partitionStart + (img.dataStart+uint64(cluster-rootFirst)*(img.clusterSize/img.bytesPerSector))*img.bytesPerSector
}

// SetFAT sets the entry of cluster in all FATs. It can be used to corrupt an image on purpose.
func (img *Image) SetFAT(cluster uint32, value uint32) {
	offset := uint64(cluster) * fatEntry
	for i := uint64(0); i < img.numFATs; i++ {
		start := img.partitionStart + (img.fatStart+i*img.sectorsPerFAT)*img.bytesPerSector + offset
		binary.LittleEndian.PutUint32(img.data[start:start+fatEntry], value)
	}
}

func (img *Image) writeChain(chain []uint32, data []byte) {
	for _, c := range chain {
		start := img.ClusterOffset(c)
		n := copy(img.data[start:start+img.clusterSize], data)
		data = data[n:]
	}
}
