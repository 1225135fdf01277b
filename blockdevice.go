package gofat32

//go:generate mockgen -source=blockdevice.go -destination=blockdevice_mock.go -package gofat32

// BlockDevice is a sector addressed device. Reads and writes are blocking.
//
// ReadSector and WriteSector transfer min(len(buf), SectorSize()) bytes of
// the given sector and return how many bytes were transferred.
type BlockDevice interface {
	SectorSize() uint64
	ReadSector(sector uint64, buf []byte) (int, error)
	WriteSector(sector uint64, buf []byte) (int, error)
}
