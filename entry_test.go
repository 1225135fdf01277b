package gofat32

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// shortRecord builds a raw 8.3 directory record.
func shortRecord(name string, attributes Attributes, ntFlags byte, cluster uint32, size uint32) []byte {
	b := make([]byte, direntSize)
	copy(b[0:11], name)
	b[11] = byte(attributes)
	b[12] = ntFlags
	binary.LittleEndian.PutUint16(b[20:22], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(b[26:28], uint16(cluster))
	binary.LittleEndian.PutUint32(b[28:32], size)
	return b
}

func TestShortNameChecksum(t *testing.T) {
	tests := []struct {
		name string
		want byte
	}{
		{"FOO     BAR", 0x53},
		{"ALONGF~1TXT", 0x02},
		{"README  MD ", 0xF3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw [11]byte
			copy(raw[:], tt.name)
			if got := shortNameChecksum(raw); got != tt.want {
				t.Errorf("shortNameChecksum() = 0x%02x, want 0x%02x", got, tt.want)
			}
		})
	}
}

func Test_shortEntry_displayName(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		ntFlags byte
		want    string
	}{
		{name: "name and extension", raw: "HELLO   TXT", want: "HELLO.TXT"},
		{name: "no extension", raw: "MAKEFILE   ", want: "MAKEFILE"},
		{name: "full length", raw: "ABCDEFGHIJK", want: "ABCDEFGH.IJK"},
		{name: "lower case base", raw: "README  MD ", ntFlags: ntLowerBase, want: "readme.MD"},
		{name: "lower case extension", raw: "README  MD ", ntFlags: ntLowerExt, want: "README.md"},
		{name: "all lower case", raw: "README  MD ", ntFlags: ntLowerBase | ntLowerExt, want: "readme.md"},
		{name: "escaped 0xE5", raw: "\x05ABC    TXT", want: "\xe5ABC.TXT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := decodeShortEntry(shortRecord(tt.raw, AttrArchive, tt.ntFlags, 0, 0))
			if got := e.displayName(); got != tt.want {
				t.Errorf("displayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func Test_decodeShortEntry(t *testing.T) {
	record := shortRecord("HELLO   TXT", AttrArchive|AttrReadOnly, 0, 0x00123456, 1234)
	// 2021-01-02 03:04:06.50 created, 2020-12-31 23:59:58 modified, 2021-01-03 accessed.
	record[13] = 150
	binary.LittleEndian.PutUint16(record[14:16], 3<<11|4<<5|3)
	binary.LittleEndian.PutUint16(record[16:18], 41<<9|1<<5|2)
	binary.LittleEndian.PutUint16(record[18:20], 41<<9|1<<5|3)
	binary.LittleEndian.PutUint16(record[22:24], 23<<11|59<<5|29)
	binary.LittleEndian.PutUint16(record[24:26], 40<<9|12<<5|31)

	e := decodeShortEntry(record)
	if e.cluster() != 0x00123456 {
		t.Errorf("cluster() = 0x%x, want 0x%x", e.cluster(), 0x00123456)
	}
	if e.size != 1234 {
		t.Errorf("size = %v, want %v", e.size, 1234)
	}

	want := Metadata{
		Created:  time.Date(2021, 1, 2, 3, 4, 7, 500*int(time.Millisecond), time.UTC),
		Modified: time.Date(2020, 12, 31, 23, 59, 58, 0, time.UTC),
		Accessed: time.Date(2021, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	if got := e.metadata(); got != want {
		t.Errorf("metadata() = %+v, want %+v", got, want)
	}

	entry := newEntry(nil, e, "")
	if entry.Name() != "HELLO.TXT" || entry.ShortName() != "HELLO.TXT" {
		t.Errorf("Name(), ShortName() = %q, %q, want %q", entry.Name(), entry.ShortName(), "HELLO.TXT")
	}
	if !entry.Attributes().Has(AttrReadOnly) || entry.IsDir() {
		t.Errorf("Attributes() = %v", entry.Attributes())
	}
}

func TestAttributes(t *testing.T) {
	tests := []struct {
		attributes Attributes
		longName   bool
		want       string
	}{
		{attributes: AttrArchive, want: "-----a"},
		{attributes: AttrDirectory | AttrHidden, want: "d-h---"},
		{attributes: AttrLongName, longName: true, want: "-rhsv-"},
		{attributes: AttrLongName | AttrArchive, want: "-rhsva"},
		{attributes: AttrLongName | 0xC0, longName: true, want: "-rhsv-"},
		{attributes: AttrVolumeID, want: "----v-"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.attributes.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
			if got := tt.attributes.IsLongName(); got != tt.longName {
				t.Errorf("IsLongName() = %v, want %v", got, tt.longName)
			}
		})
	}
}

func TestEntry_Dir_File(t *testing.T) {
	file := newEntry(nil, decodeShortEntry(shortRecord("FILE    TXT", AttrArchive, 0, 5, 10)), "")
	dir := newEntry(nil, decodeShortEntry(shortRecord("DIR        ", AttrDirectory, 0, 6, 0)), "")

	if _, err := file.Dir(); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("Dir() of a file error = %v, wantErr %v", err, ErrNotADirectory)
	}
	if _, err := dir.File(); !errors.Is(err, ErrIsADirectory) {
		t.Errorf("File() of a directory error = %v, wantErr %v", err, ErrIsADirectory)
	}

	if f, err := file.File(); err != nil || f.Size() != 10 {
		t.Errorf("File() = %v, %v", f, err)
	}
	if d, err := dir.Dir(); err != nil || d.Name() != "DIR" {
		t.Errorf("Dir() = %v, %v", d, err)
	}
}
