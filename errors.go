package gofat32

import (
	"errors"

	"github.com/aligator/gofat32/ebpb"
	"github.com/aligator/gofat32/mbr"
)

// These errors may occur while mounting or using a volume.
// Errors of the block device are passed on unchanged (only decorated by a
// checkpoint), so errors.Is works with them as well.
var (
	// ErrBadSignature is returned for an MBR or EBPB with an invalid magic signature.
	ErrBadSignature = mbr.ErrBadSignature
	// ErrUnknownBootIndicator is returned if a partition entry has a boot
	// indicator other than 0x00 or 0x80. Use errors.As with
	// *mbr.UnknownBootIndicatorError to get the partition index.
	ErrUnknownBootIndicator = mbr.ErrUnknownBootIndicator
	// ErrNotFound is returned if there is no FAT32 partition or a path component does not exist.
	ErrNotFound = mbr.ErrNotFound
	// ErrInvalidGeometry is returned for sector sizes or volume parameters the driver cannot use.
	ErrInvalidGeometry = ebpb.ErrInvalidGeometry

	ErrOutOfRange    = errors.New("index out of range")
	ErrCorruptChain  = errors.New("corrupt cluster chain")
	ErrNotADirectory = errors.New("not a directory")
	ErrIsADirectory  = errors.New("is a directory")
	ErrReadOnly      = errors.New("read-only filesystem")
	ErrClosed        = errors.New("filesystem closed")

	ErrReadFile = errors.New("could not read file completely")
	ErrSeekFile = errors.New("could not seek inside of the file")
	ErrReadDir  = errors.New("could not read the directory")
	ErrMount    = errors.New("could not mount the volume")
)
