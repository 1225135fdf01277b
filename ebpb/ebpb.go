// Package ebpb decodes the FAT32 Extended BIOS Parameter Block which is stored
// in the first sector of a FAT32 partition and describes its geometry.
package ebpb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/aligator/gofat32/checkpoint"
	"github.com/aligator/gofat32/mbr"
)

// Size of the EBPB sector in bytes.
const Size = 512

// Signature expected at offset 510.
const Signature uint16 = 0xAA55

// These errors may occur while reading the EBPB.
var (
	// ErrBadSignature is the same error as returned for an invalid MBR.
	ErrBadSignature    = mbr.ErrBadSignature
	ErrShortSector     = mbr.ErrShortSector
	ErrInvalidGeometry = errors.New("invalid volume geometry")
)

// BiosParameterBlock contains all fields of a FAT32 boot sector.
// All multi-byte fields are stored little endian on disk.
type BiosParameterBlock struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	MaxRootEntries    uint16
	TotalSectors16    uint16
	Media             byte
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32

	// FAT32 specific part.
	SectorsPerFAT    uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	Reserved         [12]byte
	DriveNumber      uint8
	NTFlags          uint8
	ExtSignature     uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	SystemID         [8]byte
	BootCode         [420]byte
	BootSignature    uint16
}

// Parse decodes the first 512 bytes of sector.
// It returns ErrBadSignature if the value at offset 510 is not 0xAA55.
func Parse(sector []byte) (*BiosParameterBlock, error) {
	if len(sector) < Size {
		return nil, checkpoint.Wrap(ErrShortSector, fmt.Errorf("got %d bytes, need %d", len(sector), Size))
	}

	le := binary.LittleEndian
	b := &BiosParameterBlock{
		BytesPerSector:    le.Uint16(sector[11:13]),
		SectorsPerCluster: sector[13],
		ReservedSectors:   le.Uint16(sector[14:16]),
		NumFATs:           sector[16],
		MaxRootEntries:    le.Uint16(sector[17:19]),
		TotalSectors16:    le.Uint16(sector[19:21]),
		Media:             sector[21],
		SectorsPerFAT16:   le.Uint16(sector[22:24]),
		SectorsPerTrack:   le.Uint16(sector[24:26]),
		NumHeads:          le.Uint16(sector[26:28]),
		HiddenSectors:     le.Uint32(sector[28:32]),
		TotalSectors32:    le.Uint32(sector[32:36]),
		SectorsPerFAT:     le.Uint32(sector[36:40]),
		ExtFlags:          le.Uint16(sector[40:42]),
		FSVersion:         le.Uint16(sector[42:44]),
		RootCluster:       le.Uint32(sector[44:48]),
		FSInfoSector:      le.Uint16(sector[48:50]),
		BackupBootSector:  le.Uint16(sector[50:52]),
		DriveNumber:       sector[64],
		NTFlags:           sector[65],
		ExtSignature:      sector[66],
		VolumeID:          le.Uint32(sector[67:71]),
		BootSignature:     le.Uint16(sector[510:512]),
	}
	copy(b.JumpBoot[:], sector[0:3])
	copy(b.OEMName[:], sector[3:11])
	copy(b.Reserved[:], sector[52:64])
	copy(b.VolumeLabel[:], sector[71:82])
	copy(b.SystemID[:], sector[82:90])
	copy(b.BootCode[:], sector[90:510])

	if b.BootSignature != Signature {
		return nil, checkpoint.Wrap(ErrBadSignature, fmt.Errorf("EBPB signature 0x%04x", b.BootSignature))
	}

	return b, nil
}

// Read reads the given physical sector of device and parses it.
func Read(device mbr.SectorReader, sector uint64) (*BiosParameterBlock, error) {
	buf := make([]byte, Size)
	n, err := device.ReadSector(sector, buf)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	if n < Size {
		return nil, checkpoint.Wrap(ErrShortSector, fmt.Errorf("read %d bytes of the EBPB", n))
	}

	return Parse(buf)
}

// Bytes encodes the EBPB into a new 512 byte slice.
func (b *BiosParameterBlock) Bytes() []byte {
	le := binary.LittleEndian
	sector := make([]byte, Size)

	copy(sector[0:3], b.JumpBoot[:])
	copy(sector[3:11], b.OEMName[:])
	le.PutUint16(sector[11:13], b.BytesPerSector)
	sector[13] = b.SectorsPerCluster
	le.PutUint16(sector[14:16], b.ReservedSectors)
	sector[16] = b.NumFATs
	le.PutUint16(sector[17:19], b.MaxRootEntries)
	le.PutUint16(sector[19:21], b.TotalSectors16)
	sector[21] = b.Media
	le.PutUint16(sector[22:24], b.SectorsPerFAT16)
	le.PutUint16(sector[24:26], b.SectorsPerTrack)
	le.PutUint16(sector[26:28], b.NumHeads)
	le.PutUint32(sector[28:32], b.HiddenSectors)
	le.PutUint32(sector[32:36], b.TotalSectors32)
	le.PutUint32(sector[36:40], b.SectorsPerFAT)
	le.PutUint16(sector[40:42], b.ExtFlags)
	le.PutUint16(sector[42:44], b.FSVersion)
	le.PutUint32(sector[44:48], b.RootCluster)
	le.PutUint16(sector[48:50], b.FSInfoSector)
	le.PutUint16(sector[50:52], b.BackupBootSector)
	copy(sector[52:64], b.Reserved[:])
	sector[64] = b.DriveNumber
	sector[65] = b.NTFlags
	sector[66] = b.ExtSignature
	le.PutUint32(sector[67:71], b.VolumeID)
	copy(sector[71:82], b.VolumeLabel[:])
	copy(sector[82:90], b.SystemID[:])
	copy(sector[90:510], b.BootCode[:])
	le.PutUint16(sector[510:512], b.BootSignature)

	return sector
}

// Validate checks the geometry fields the driver relies on.
// Some FAT implementations write slightly off values, so mounting can skip this.
func (b *BiosParameterBlock) Validate() error {
	switch b.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return checkpoint.Wrap(ErrInvalidGeometry, fmt.Errorf("bytes per sector: %d", b.BytesPerSector))
	}

	// Sectors per cluster has to be a power of two and greater than 0.
	// Also the whole cluster size should not be more than 32K.
	if b.SectorsPerCluster == 0 || b.SectorsPerCluster&(b.SectorsPerCluster-1) != 0 {
		return checkpoint.Wrap(ErrInvalidGeometry, fmt.Errorf("sectors per cluster: %d", b.SectorsPerCluster))
	}
	if b.ClusterSize() > 32*1024 {
		return checkpoint.Wrap(ErrInvalidGeometry, fmt.Errorf("cluster size: %d", b.ClusterSize()))
	}

	if b.ReservedSectors == 0 {
		return checkpoint.Wrap(ErrInvalidGeometry, errors.New("reserved sector count is 0"))
	}
	if b.NumFATs == 0 {
		return checkpoint.Wrap(ErrInvalidGeometry, errors.New("FAT count is 0"))
	}
	if b.SectorsPerFAT == 0 {
		return checkpoint.Wrap(ErrInvalidGeometry, errors.New("sectors per FAT is 0, not a FAT32 volume"))
	}
	if b.RootCluster < 2 {
		return checkpoint.Wrap(ErrInvalidGeometry, fmt.Errorf("root cluster: %d", b.RootCluster))
	}

	return nil
}

// ClusterSize is the size of a cluster in bytes.
func (b *BiosParameterBlock) ClusterSize() uint32 {
	return uint32(b.BytesPerSector) * uint32(b.SectorsPerCluster)
}

// TotalSectors returns the sector count of the volume, whichever of the two fields is set.
func (b *BiosParameterBlock) TotalSectors() uint32 {
	if b.TotalSectors16 != 0 {
		return uint32(b.TotalSectors16)
	}
	return b.TotalSectors32
}

// Label returns the volume label without padding.
// It is only present if the extended signature is 0x29.
func (b *BiosParameterBlock) Label() string {
	if b.ExtSignature != 0x29 {
		return ""
	}
	return strings.TrimRight(string(b.VolumeLabel[:]), " \x00")
}
