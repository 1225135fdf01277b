package gofat32

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/aligator/gofat32/checkpoint"
)

// direntSize is the size of a single directory record.
const direntSize = 32

// Markers in the first byte of a directory record.
const (
	direntEnd     = 0x00
	direntDeleted = 0xE5
	// direntKanji replaces a real 0xE5 as first character of a name.
	direntKanji = 0x05
)

// Attributes of a directory entry.
type Attributes uint8

const (
	AttrReadOnly  Attributes = 0x01
	AttrHidden    Attributes = 0x02
	AttrSystem    Attributes = 0x04
	AttrVolumeID  Attributes = 0x08
	AttrDirectory Attributes = 0x10
	AttrArchive   Attributes = 0x20
	AttrLongName             = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

// Has reports if all bits of flag are set.
func (a Attributes) Has(flag Attributes) bool {
	return a&flag == flag
}

// IsLongName reports if the record is a long file name fragment.
func (a Attributes) IsLongName() bool {
	return a&0x3F == AttrLongName
}

func (a Attributes) String() string {
	flags := []byte("------")
	for i, f := range []struct {
		attr Attributes
		c    byte
	}{
		{AttrDirectory, 'd'},
		{AttrReadOnly, 'r'},
		{AttrHidden, 'h'},
		{AttrSystem, 's'},
		{AttrVolumeID, 'v'},
		{AttrArchive, 'a'},
	} {
		if a.Has(f.attr) {
			flags[i] = f.c
		}
	}
	return string(flags)
}

// Metadata contains the timestamps of an entry.
// Timestamps which are not set on disk are time.Time{}.
type Metadata struct {
	Created  time.Time
	Modified time.Time
	Accessed time.Time
}

// shortEntry is a decoded 8.3 directory record.
type shortEntry struct {
	name         [11]byte
	attributes   Attributes
	ntFlags      byte
	createTenths uint8
	createTime   uint16
	createDate   uint16
	accessDate   uint16
	clusterHigh  uint16
	writeTime    uint16
	writeDate    uint16
	clusterLow   uint16
	size         uint32
}

// NT flags marking the lower case parts of an 8.3 name.
const (
	ntLowerBase = 0x08
	ntLowerExt  = 0x10
)

func decodeShortEntry(b []byte) shortEntry {
	le := binary.LittleEndian
	e := shortEntry{
		attributes:   Attributes(b[11]),
		ntFlags:      b[12],
		createTenths: b[13],
		createTime:   le.Uint16(b[14:16]),
		createDate:   le.Uint16(b[16:18]),
		accessDate:   le.Uint16(b[18:20]),
		clusterHigh:  le.Uint16(b[20:22]),
		writeTime:    le.Uint16(b[22:24]),
		writeDate:    le.Uint16(b[24:26]),
		clusterLow:   le.Uint16(b[26:28]),
		size:         le.Uint32(b[28:32]),
	}
	copy(e.name[:], b[0:11])
	return e
}

func (e shortEntry) cluster() Cluster {
	return Cluster(uint32(e.clusterHigh)<<16 | uint32(e.clusterLow))
}

// isDot reports the "." and ".." entries of a subdirectory.
func (e shortEntry) isDot() bool {
	return e.name == [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '} ||
		e.name == [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
}

// displayName formats the 8.3 name as NAME.EXT.
func (e shortEntry) displayName() string {
	raw := e.name
	if raw[0] == direntKanji {
		raw[0] = direntDeleted
	}

	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if e.ntFlags&ntLowerBase != 0 {
		base = strings.ToLower(base)
	}
	if e.ntFlags&ntLowerExt != 0 {
		ext = strings.ToLower(ext)
	}

	if ext != "" {
		return base + "." + ext
	}
	return base
}

// checksum is the value stored in every long name fragment belonging to this entry.
func (e shortEntry) checksum() byte {
	return shortNameChecksum(e.name)
}

func shortNameChecksum(name [11]byte) byte {
	var sum byte
	for _, c := range name {
		sum = (sum>>1 | sum<<7) + c
	}
	return sum
}

func (e shortEntry) metadata() Metadata {
	return Metadata{
		Created:  parseTimestamp(e.createDate, e.createTime, e.createTenths),
		Modified: parseTimestamp(e.writeDate, e.writeTime, 0),
		Accessed: ParseDate(e.accessDate),
	}
}

// Entry is a file or a directory of a mounted volume.
type Entry struct {
	handle Handle

	name       string
	shortName  string
	attributes Attributes
	cluster    Cluster
	size       uint32
	metadata   Metadata
}

func newEntry(handle Handle, short shortEntry, longName string) *Entry {
	name := longName
	if name == "" {
		name = short.displayName()
	}

	return &Entry{
		handle:     handle,
		name:       name,
		shortName:  short.displayName(),
		attributes: short.attributes,
		cluster:    short.cluster(),
		size:       short.size,
		metadata:   short.metadata(),
	}
}

// rootEntry describes the root directory which has no record of its own.
func rootEntry(handle Handle, cluster Cluster) *Entry {
	return &Entry{
		handle:     handle,
		name:       "/",
		shortName:  "/",
		attributes: AttrDirectory,
		cluster:    cluster,
	}
}

// Name returns the long name if there is one and the 8.3 name otherwise.
func (e *Entry) Name() string {
	return e.name
}

// ShortName returns the 8.3 name.
func (e *Entry) ShortName() string {
	return e.shortName
}

// Size returns the file size in bytes. It is 0 for directories.
func (e *Entry) Size() int64 {
	return int64(e.size)
}

func (e *Entry) IsDir() bool {
	return e.attributes.Has(AttrDirectory)
}

func (e *Entry) Attributes() Attributes {
	return e.attributes
}

// Cluster returns the first cluster of the entry. Empty files have cluster 0.
func (e *Entry) Cluster() Cluster {
	return e.cluster
}

func (e *Entry) Metadata() Metadata {
	return e.metadata
}

// Dir returns the directory view of the entry.
// It returns ErrNotADirectory for files.
func (e *Entry) Dir() (*Dir, error) {
	if !e.IsDir() {
		return nil, checkpoint.Wrapf(ErrNotADirectory, "entry %q", e.name)
	}
	return &Dir{handle: e.handle, entry: e}, nil
}

// File returns the file view of the entry.
// It returns ErrIsADirectory for directories.
func (e *Entry) File() (*File, error) {
	if e.IsDir() {
		return nil, checkpoint.Wrapf(ErrIsADirectory, "entry %q", e.name)
	}
	return &File{handle: e.handle, entry: e}, nil
}
