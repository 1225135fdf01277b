// Package mbr decodes and encodes the Master Boot Record found in the first
// sector of a partitioned block device.
package mbr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aligator/gofat32/checkpoint"
)

const (
	// Size of the MBR in bytes.
	Size = 512

	bootstrapSize         = 436
	diskIDOffset          = bootstrapSize
	diskIDSize            = 10
	partitionEntriesStart = diskIDOffset + diskIDSize
	partitionEntrySize    = 16
	partitionEntriesCount = 4
	signatureStart        = 510
)

// Boot indicators allowed in a partition entry.
const (
	Inactive byte = 0x00
	Active   byte = 0x80
)

// These errors may occur while reading the MBR.
var (
	ErrBadSignature         = errors.New("bad signature")
	ErrUnknownBootIndicator = errors.New("unknown boot indicator")
	ErrNotFound             = errors.New("not found")
	ErrShortSector          = errors.New("sector too short")
)

// UnknownBootIndicatorError is returned if partition Index (0-indexed) contains
// a boot indicator which is neither 0x00 nor 0x80.
type UnknownBootIndicatorError struct {
	Index     int
	Indicator byte
}

func (e *UnknownBootIndicatorError) Error() string {
	return fmt.Sprintf("partition %d: unknown boot indicator 0x%02x", e.Index, e.Indicator)
}

// Is makes errors.Is(err, ErrUnknownBootIndicator) work for every index.
func (e *UnknownBootIndicatorError) Is(target error) bool {
	return target == ErrUnknownBootIndicator
}

// SectorReader is the part of a block device needed to read the MBR.
type SectorReader interface {
	ReadSector(sector uint64, buf []byte) (int, error)
}

// PartitionType is the system id byte of a partition entry.
type PartitionType byte

// Some well known partition types.
const (
	TypeEmpty    PartitionType = 0x00
	TypeFat12    PartitionType = 0x01
	TypeFat16    PartitionType = 0x04
	TypeExtended PartitionType = 0x05
	TypeFat32CHS PartitionType = 0x0B
	TypeFat32LBA PartitionType = 0x0C
	TypeLinux    PartitionType = 0x83
	TypeGPT      PartitionType = 0xEE
)

// IsFat32 reports if the type denotes a FAT32 partition (CHS or LBA addressed).
func (t PartitionType) IsFat32() bool {
	return t == TypeFat32CHS || t == TypeFat32LBA
}

func (t PartitionType) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeFat12:
		return "FAT12"
	case TypeFat16:
		return "FAT16"
	case TypeExtended:
		return "extended"
	case TypeFat32CHS:
		return "FAT32 (CHS)"
	case TypeFat32LBA:
		return "FAT32 (LBA)"
	case TypeLinux:
		return "linux"
	case TypeGPT:
		return "GPT protective"
	}
	return fmt.Sprintf("0x%02x", byte(t))
}

// PartitionEntry is one of the four 16 byte entries of the partition table.
type PartitionEntry struct {
	BootIndicator byte
	Start         CHS
	Type          PartitionType
	End           CHS
	// RelativeSector is the LBA of the first sector of the partition.
	RelativeSector uint32
	// TotalSectors is the number of sectors in the partition.
	TotalSectors uint32
}

// Bootable reports if the partition is marked active.
func (p PartitionEntry) Bootable() bool {
	return p.BootIndicator == Active
}

func decodePartitionEntry(b []byte) PartitionEntry {
	return PartitionEntry{
		BootIndicator:  b[0],
		Start:          decodeCHS(b[1:4]),
		Type:           PartitionType(b[4]),
		End:            decodeCHS(b[5:8]),
		RelativeSector: binary.LittleEndian.Uint32(b[8:12]),
		TotalSectors:   binary.LittleEndian.Uint32(b[12:16]),
	}
}

func (p PartitionEntry) encode(b []byte) {
	b[0] = p.BootIndicator
	p.Start.encode(b[1:4])
	b[4] = byte(p.Type)
	p.End.encode(b[5:8])
	binary.LittleEndian.PutUint32(b[8:12], p.RelativeSector)
	binary.LittleEndian.PutUint32(b[12:16], p.TotalSectors)
}

// MasterBootRecord is the decoded first sector of a disk.
type MasterBootRecord struct {
	Bootstrap  [bootstrapSize]byte
	DiskID     [diskIDSize]byte
	Partitions [partitionEntriesCount]PartitionEntry
	Signature  [2]byte
}

// Parse decodes the MBR from the first 512 bytes of sector.
//
// It returns ErrBadSignature if bytes 510 and 511 are not 0x55, 0xAA and an
// *UnknownBootIndicatorError if any partition has a boot indicator other than
// 0x00 or 0x80.
func Parse(sector []byte) (*MasterBootRecord, error) {
	if len(sector) < Size {
		return nil, checkpoint.Wrap(ErrShortSector, fmt.Errorf("got %d bytes, need %d", len(sector), Size))
	}

	mbr := &MasterBootRecord{}
	copy(mbr.Signature[:], sector[signatureStart:Size])
	if mbr.Signature != [2]byte{0x55, 0xAA} {
		return nil, checkpoint.Wrap(ErrBadSignature, fmt.Errorf("MBR signature % x", mbr.Signature))
	}

	copy(mbr.Bootstrap[:], sector[:bootstrapSize])
	copy(mbr.DiskID[:], sector[diskIDOffset:diskIDOffset+diskIDSize])

	for i := range mbr.Partitions {
		start := partitionEntriesStart + i*partitionEntrySize
		entry := decodePartitionEntry(sector[start : start+partitionEntrySize])
		if entry.BootIndicator != Inactive && entry.BootIndicator != Active {
			return nil, checkpoint.From(&UnknownBootIndicatorError{Index: i, Indicator: entry.BootIndicator})
		}
		mbr.Partitions[i] = entry
	}

	return mbr, nil
}

// Read reads sector 0 of the device and parses it as MBR.
// Errors of the device are returned as they are, only decorated by a checkpoint.
func Read(device SectorReader) (*MasterBootRecord, error) {
	buf := make([]byte, Size)
	n, err := device.ReadSector(0, buf)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	if n < Size {
		return nil, checkpoint.Wrap(ErrShortSector, fmt.Errorf("read %d bytes of the MBR", n))
	}

	return Parse(buf)
}

// Bytes encodes the MBR into a new 512 byte slice.
func (m *MasterBootRecord) Bytes() []byte {
	b := make([]byte, Size)
	copy(b[:bootstrapSize], m.Bootstrap[:])
	copy(b[diskIDOffset:diskIDOffset+diskIDSize], m.DiskID[:])
	for i, p := range m.Partitions {
		start := partitionEntriesStart + i*partitionEntrySize
		p.encode(b[start : start+partitionEntrySize])
	}
	copy(b[signatureStart:Size], m.Signature[:])
	return b
}

// FirstFat32 returns the first partition whose type denotes FAT32 together with its index.
// It returns ErrNotFound if there is none.
func (m *MasterBootRecord) FirstFat32() (int, PartitionEntry, error) {
	for i, p := range m.Partitions {
		if p.Type.IsFat32() {
			return i, p, nil
		}
	}
	return -1, PartitionEntry{}, checkpoint.Wrap(ErrNotFound, errors.New("no FAT32 partition in the MBR"))
}
