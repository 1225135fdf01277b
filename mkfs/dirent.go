package mkfs

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
)

const direntSize = 32

// Attributes of directory records.
const (
	AttrReadOnly  byte = 0x01
	AttrHidden    byte = 0x02
	AttrSystem    byte = 0x04
	AttrVolumeID  byte = 0x08
	AttrDirectory byte = 0x10
	AttrArchive   byte = 0x20
	attrLongName       = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

const (
	ntLowerBase = 0x08
	ntLowerExt  = 0x10

	lfnLast  = 0x40
	lfnChars = 13

	// MaxNameLength is the longest name a long file name can hold.
	MaxNameLength = 255
)

// shortChars are the characters besides letters and digits allowed in 8.3 names.
const shortChars = "!#$%&'()-@^_`{}~"

func validShortChar(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || strings.ContainsRune(shortChars, r)
}

// sameCase reports the case of all letters in s. mixed is true if both cases are used.
func sameCase(s string) (lower, mixed bool) {
	hasLower := strings.ToUpper(s) != s
	hasUpper := strings.ToLower(s) != s
	return hasLower && !hasUpper, hasLower && hasUpper
}

// splitName splits at the last dot. A leading dot is part of the base.
func splitName(name string) (base, ext string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func padShort(base, ext string) [11]byte {
	var raw [11]byte
	copy(raw[:], fmt.Sprintf("%-8s%-3s", base, ext))
	return raw
}

// fitsShort returns the 8.3 record name if name can be stored without a long
// name. Lower case parts are expressed by NT flags like Windows does.
func fitsShort(name string) (raw [11]byte, ntFlags byte, ok bool) {
	base, ext := splitName(name)
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 || (ext == "" && strings.HasSuffix(name, ".")) {
		return raw, 0, false
	}
	for _, r := range base + ext {
		if !validShortChar(r) {
			return raw, 0, false
		}
	}

	lowerBase, mixedBase := sameCase(base)
	lowerExt, mixedExt := sameCase(ext)
	if mixedBase || mixedExt {
		return raw, 0, false
	}
	if lowerBase {
		ntFlags |= ntLowerBase
	}
	if lowerExt {
		ntFlags |= ntLowerExt
	}

	return padShort(strings.ToUpper(base), strings.ToUpper(ext)), ntFlags, true
}

// cleanShort upper cases s and replaces every character not allowed in 8.3 names.
func cleanShort(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch {
		case r == ' ' || r == '.':
			continue
		case validShortChar(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// generateShort creates a numeric tail alias like LONGNA~1.TXT which is not used yet.
func generateShort(name string, used map[[11]byte]bool) ([11]byte, error) {
	base, ext := splitName(strings.TrimLeft(name, "."))
	base, ext = cleanShort(base), cleanShort(ext)
	if len(ext) > 3 {
		ext = ext[:3]
	}
	if base == "" {
		base = "_"
	}

	for i := 1; i < 1000000; i++ {
		tail := fmt.Sprintf("~%d", i)
		prefix := base
		if len(prefix) > 8-len(tail) {
			prefix = prefix[:8-len(tail)]
		}

		raw := padShort(prefix+tail, ext)
		if !used[raw] {
			return raw, nil
		}
	}
	return [11]byte{}, fmt.Errorf("no short name left for %q", name)
}

func checksum(raw [11]byte) byte {
	var sum byte
	for _, c := range raw {
		sum = (sum>>1 | sum<<7) + c
	}
	return sum
}

// dosDate encodes the date part of t. Dates before 1980 are stored as 1980-01-01.
func dosDate(t time.Time) uint16 {
	if t.Year() < 1980 {
		return 1<<5 | 1
	}
	return uint16(t.Year()-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

func dosTime(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// dosTenths returns the 10 ms units beyond the 2 second granularity of dosTime.
func dosTenths(t time.Time) uint8 {
	return uint8(t.Second()%2*100 + t.Nanosecond()/int(10*time.Millisecond))
}

// shortRecord is the content of an 8.3 record.
type shortRecord struct {
	name       [11]byte
	attributes byte
	ntFlags    byte
	cluster    uint32
	size       uint32
	created    time.Time
	modified   time.Time
	accessed   time.Time
}

func (r shortRecord) encode(b []byte) {
	le := binary.LittleEndian
	copy(b[0:11], r.name[:])
	if b[0] == 0xE5 {
		b[0] = 0x05
	}
	b[11] = r.attributes
	b[12] = r.ntFlags
	b[13] = dosTenths(r.created)
	le.PutUint16(b[14:16], dosTime(r.created))
	le.PutUint16(b[16:18], dosDate(r.created))
	le.PutUint16(b[18:20], dosDate(r.accessed))
	le.PutUint16(b[20:22], uint16(r.cluster>>16))
	le.PutUint16(b[22:24], dosTime(r.modified))
	le.PutUint16(b[24:26], dosDate(r.modified))
	le.PutUint16(b[26:28], uint16(r.cluster))
	le.PutUint32(b[28:32], r.size)
}

func utf16Units(name string) []uint16 {
	return utf16.Encode([]rune(name))
}

// longRecords encodes name as long file name fragments in on-disk order,
// the fragment with the highest sequence number first.
func longRecords(name string, sum byte) []byte {
	units := utf16Units(name)
	count := (len(units) + lfnChars - 1) / lfnChars
	if len(units)%lfnChars != 0 {
		units = append(units, 0x0000)
	}
	for len(units) < count*lfnChars {
		units = append(units, 0xFFFF)
	}

	records := make([]byte, count*direntSize)
	for i := 0; i < count; i++ {
		seq := count - i
		b := records[i*direntSize : (i+1)*direntSize]

		b[0] = byte(seq)
		if i == 0 {
			b[0] |= lfnLast
		}
		b[11] = attrLongName
		b[13] = sum

		chars := units[(seq-1)*lfnChars : seq*lfnChars]
		j := 0
		for _, r := range [][2]int{{1, 11}, {14, 26}, {28, 32}} {
			for off := r[0]; off < r[1]; off += 2 {
				binary.LittleEndian.PutUint16(b[off:off+2], chars[j])
				j++
			}
		}
	}
	return records
}
