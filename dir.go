package gofat32

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/aligator/gofat32/checkpoint"
)

// Long file name fragments.
const (
	lfnLast      = 0x40
	lfnSeqMask   = 0x1F
	lfnChars     = 13
	lfnMaxChunks = 20
)

// longEntry is a decoded long file name fragment.
type longEntry struct {
	sequence byte
	checksum byte
	chars    [lfnChars]uint16
}

func decodeLongEntry(b []byte) longEntry {
	e := longEntry{
		sequence: b[0],
		checksum: b[13],
	}

	i := 0
	for _, r := range [][2]int{{1, 11}, {14, 26}, {28, 32}} {
		for off := r[0]; off < r[1]; off += 2 {
			e.chars[i] = binary.LittleEndian.Uint16(b[off : off+2])
			i++
		}
	}
	return e
}

// longName collects the fragments of one long file name. They are stored on
// disk in reverse order directly in front of the 8.3 record they belong to.
type longName struct {
	units    []uint16
	checksum byte
	// next is the sequence number expected next. 0 means the name is complete.
	next  int
	valid bool
}

func (l *longName) reset() {
	*l = longName{}
}

func (l *longName) add(e longEntry) {
	seq := int(e.sequence & lfnSeqMask)
	if e.sequence&lfnLast != 0 {
		if seq == 0 || seq > lfnMaxChunks {
			l.reset()
			return
		}
		l.units = make([]uint16, seq*lfnChars)
		l.checksum = e.checksum
		l.next = seq
		l.valid = true
	}

	if !l.valid || seq != l.next || e.checksum != l.checksum {
		l.reset()
		return
	}

	copy(l.units[(seq-1)*lfnChars:], e.chars[:])
	l.next--
}

// take returns the collected name if it is complete and belongs to the 8.3
// record with the given checksum. The collected fragments are dropped in any case.
func (l *longName) take(checksum byte) string {
	defer l.reset()
	if !l.valid || l.next != 0 || l.checksum != checksum {
		return ""
	}

	units := l.units
	for i, u := range units {
		if u == 0x0000 {
			units = units[:i]
			break
		}
	}
	for len(units) > 0 && units[len(units)-1] == 0xFFFF {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}

// Dir is a directory of a mounted volume.
type Dir struct {
	handle Handle
	entry  *Entry
}

// Name of the directory.
func (d *Dir) Name() string {
	return d.entry.Name()
}

// Entry returns the entry describing the directory itself.
func (d *Dir) Entry() *Entry {
	return d.entry
}

// Entries returns an iterator over the content of the directory.
// Each call starts from the beginning again.
func (d *Dir) Entries() *DirIterator {
	return &DirIterator{
		handle:  d.handle,
		cluster: d.entry.Cluster(),
	}
}

// ReadAll returns all entries of the directory.
func (d *Dir) ReadAll() ([]*Entry, error) {
	var entries []*Entry
	it := d.Entries()
	for {
		entry, err := it.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
}

// Find returns the entry with the given name. Both the long and the 8.3 name
// are compared case insensitive.
// It returns ErrNotFound if there is no such entry.
func (d *Dir) Find(name string) (*Entry, error) {
	it := d.Entries()
	for {
		entry, err := it.Next()
		if err == io.EOF {
			return nil, checkpoint.Wrap(ErrNotFound, fmt.Errorf("%q in directory %q", name, d.Name()))
		}
		if err != nil {
			return nil, err
		}

		if strings.EqualFold(entry.Name(), name) || strings.EqualFold(entry.ShortName(), name) {
			return entry, nil
		}
	}
}

// DirIterator walks the records of a directory lazily, loading one cluster at a time.
type DirIterator struct {
	handle Handle

	cluster Cluster
	steps   uint32
	started bool
	done    bool

	buf []byte
	pos int
	lfn longName
}

// Next returns the next entry of the directory.
// It returns io.EOF after the last entry.
func (it *DirIterator) Next() (*Entry, error) {
	for !it.done {
		if it.pos >= len(it.buf) {
			if err := it.load(); err != nil {
				it.done = true
				return nil, checkpoint.Wrap(err, ErrReadDir)
			}
			continue
		}

		record := it.buf[it.pos : it.pos+direntSize]
		it.pos += direntSize
		if entry := it.decode(record); entry != nil {
			return entry, nil
		}
	}
	return nil, io.EOF
}

// load reads the next cluster of the directory into the buffer.
func (it *DirIterator) load() error {
	return it.handle.Lock(func(v *VFat) error {
		if it.started {
			next, ok, err := v.next(it.cluster)
			if err != nil {
				return err
			}
			if !ok {
				it.done = true
				return nil
			}

			it.steps++
			if it.steps >= v.ClusterCount() {
				return checkpoint.Wrap(ErrCorruptChain, fmt.Errorf("directory at cluster %d is longer than the volume", it.cluster))
			}
			it.cluster = next
		}
		it.started = true

		if it.buf == nil {
			it.buf = make([]byte, v.ClusterSize())
		}
		n, err := v.ReadCluster(it.cluster, 0, it.buf[:cap(it.buf)])
		if err != nil {
			return err
		}
		it.buf = it.buf[:n-n%direntSize]
		it.pos = 0
		return nil
	})
}

// decode interprets one record. It returns nil for records which are no entries.
func (it *DirIterator) decode(record []byte) *Entry {
	switch record[0] {
	case direntEnd:
		it.done = true
		return nil
	case direntDeleted:
		it.lfn.reset()
		return nil
	}

	if Attributes(record[11]).IsLongName() {
		it.lfn.add(decodeLongEntry(record))
		return nil
	}

	short := decodeShortEntry(record)
	name := it.lfn.take(short.checksum())
	if short.attributes.Has(AttrVolumeID) || short.isDot() {
		return nil
	}

	return newEntry(it.handle, short, name)
}
