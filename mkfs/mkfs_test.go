package mkfs

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aligator/gofat32/ebpb"
	"github.com/aligator/gofat32/mbr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(s string) [11]byte {
	var r [11]byte
	copy(r[:], s)
	return r
}

func TestFitsShort(t *testing.T) {
	tests := []struct {
		name      string
		want      string
		wantFlags byte
		wantOk    bool
	}{
		{name: "A.TXT", want: "A       TXT", wantOk: true},
		{name: "README", want: "README     ", wantOk: true},
		{name: "readme.md", want: "README  MD ", wantFlags: ntLowerBase | ntLowerExt, wantOk: true},
		{name: "docs", want: "DOCS       ", wantFlags: ntLowerBase, wantOk: true},
		{name: "FILE.txt", want: "FILE    TXT", wantFlags: ntLowerExt, wantOk: true},
		{name: "12345678.123", want: "12345678123", wantOk: true},
		{name: "Mixed.TXT"},
		{name: "123456789.TXT"},
		{name: "A.TEXT"},
		{name: "two.dots.txt"},
		{name: "with space"},
		{name: ".hidden"},
		{name: "trailing."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flags, ok := fitsShort(tt.name)
			if ok != tt.wantOk {
				t.Fatalf("fitsShort() ok = %v, want %v", ok, tt.wantOk)
			}
			if !ok {
				return
			}
			if got != raw(tt.want) {
				t.Errorf("fitsShort() = %q, want %q", got, tt.want)
			}
			if flags != tt.wantFlags {
				t.Errorf("fitsShort() flags = 0x%02x, want 0x%02x", flags, tt.wantFlags)
			}
		})
	}
}

func TestGenerateShort(t *testing.T) {
	used := map[[11]byte]bool{
		raw("LONGNA~1TXT"): true,
	}

	tests := []struct {
		name string
		want string
	}{
		{name: "A long file name.txt", want: "ALONGF~1TXT"},
		{name: "Long name.txt", want: "LONGNA~2TXT"},
		{name: ".bashrc", want: "BASHRC~1   "},
		{name: "archive.tar.gz", want: "ARCHIV~1GZ "},
		{name: "Grüße.jpeg", want: "GR__E~1 JPE"},
		{name: "...", want: "_~1        "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := generateShort(tt.name, used)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got[:]))
		})
	}
}

func TestGenerateShort_numericTail(t *testing.T) {
	used := map[[11]byte]bool{}
	for i := 1; i <= 9; i++ {
		got, err := generateShort("Long name.txt", used)
		require.NoError(t, err)
		used[got] = true
	}

	got, err := generateShort("Long name.txt", used)
	require.NoError(t, err)
	assert.Equal(t, "LONGN~10TXT", string(got[:]))
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, byte(0x53), checksum(raw("FOO     BAR")))
	assert.Equal(t, byte(0x02), checksum(raw("ALONGF~1TXT")))
	assert.Equal(t, byte(0xF3), checksum(raw("README  MD ")))
}

func TestLongRecords(t *testing.T) {
	tests := []struct {
		name      string
		wantCount int
	}{
		{name: "short", wantCount: 1},
		{name: "ABCDEFGHIJKLM", wantCount: 1},
		{name: "ABCDEFGHIJKLMN", wantCount: 2},
		{name: strings.Repeat("x", MaxNameLength), wantCount: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name[:5], func(t *testing.T) {
			records := longRecords(tt.name, 0xAB)
			require.Len(t, records, tt.wantCount*direntSize)

			var units []uint16
			for i := tt.wantCount - 1; i >= 0; i-- {
				r := records[i*direntSize : (i+1)*direntSize]

				wantSeq := byte(tt.wantCount - i)
				if i == 0 {
					wantSeq |= lfnLast
				}
				assert.Equal(t, wantSeq, r[0])
				assert.Equal(t, attrLongName, r[11])
				assert.Equal(t, byte(0xAB), r[13])

				for _, rng := range [][2]int{{1, 11}, {14, 26}, {28, 32}} {
					for off := rng[0]; off < rng[1]; off += 2 {
						units = append(units, binary.LittleEndian.Uint16(r[off:off+2]))
					}
				}
			}

			name := utf16Units(tt.name)
			assert.Equal(t, name, units[:len(name)])
			if len(name) < len(units) {
				assert.Equal(t, uint16(0), units[len(name)])
				for _, u := range units[len(name)+1:] {
					assert.Equal(t, uint16(0xFFFF), u)
				}
			}
		})
	}
}

func TestDosTime(t *testing.T) {
	tm := time.Date(2021, 1, 2, 3, 4, 7, 550*int(time.Millisecond), time.UTC)
	assert.Equal(t, uint16(41<<9|1<<5|2), dosDate(tm))
	assert.Equal(t, uint16(3<<11|4<<5|3), dosTime(tm))
	assert.Equal(t, uint8(155), dosTenths(tm))
	assert.Equal(t, uint16(1<<5|1), dosDate(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBuild(t *testing.T) {
	b := New(Config{Label: "TESTVOL"})
	b.Root().AddFile("A.TXT", make([]byte, 1000))
	docs := b.Root().AddDir("docs")
	docs.AddFile("B.TXT", []byte("b"))

	img, err := b.Build()
	require.NoError(t, err)

	data := img.Bytes()
	assert.Equal(t, (8+294)*512, len(data))

	table, err := mbr.Parse(data[:512])
	require.NoError(t, err)
	index, entry, err := table.FirstFat32()
	require.NoError(t, err)
	assert.Equal(t, 0, index)
	assert.Equal(t, uint32(8), entry.RelativeSector)
	assert.Equal(t, uint32(294), entry.TotalSectors)

	bpb, err := ebpb.Parse(data[8*512 : 9*512])
	require.NoError(t, err)
	require.NoError(t, bpb.Validate())
	assert.Equal(t, uint32(3), bpb.SectorsPerFAT)
	assert.Equal(t, "TESTVOL", bpb.Label())
	backup := data[(8+6)*512 : (8+7)*512]
	assert.Equal(t, data[8*512:9*512], backup)

	assert.Equal(t, []uint32{2}, b.Root().Clusters())
	assert.Equal(t, []uint32{3, 4}, b.Root().Children()[0].Clusters())
	assert.Equal(t, []uint32{5}, docs.Clusters())
	assert.Equal(t, []uint32{6}, docs.Children()[0].Clusters())

	fat := func(copyIndex, cluster int) uint32 {
		off := (8+32+copyIndex*3)*512 + cluster*4
		return binary.LittleEndian.Uint32(data[off : off+4])
	}
	for i := 0; i < 2; i++ {
		assert.Equal(t, fatMedia, fat(i, 0))
		assert.Equal(t, fatEOC, fat(i, 2))
		assert.Equal(t, uint32(4), fat(i, 3))
		assert.Equal(t, fatEOC, fat(i, 4))
		assert.Equal(t, uint32(0), fat(i, 7))
	}

	// The dot entries of docs point to itself and to the root as cluster 0.
	dir := data[img.ClusterOffset(5):]
	assert.Equal(t, ".          ", string(dir[0:11]))
	assert.Equal(t, uint16(5), binary.LittleEndian.Uint16(dir[26:28]))
	assert.Equal(t, "..         ", string(dir[32:43]))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(dir[32+26:32+28]))
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		fill    func(root *Node)
		wantErr error
	}{
		{
			name:    "too many clusters needed",
			config:  Config{Clusters: 4},
			fill:    func(root *Node) { root.AddFile("A.TXT", make([]byte, 4*512)) },
			wantErr: ErrFull,
		},
		{name: "empty name", fill: func(root *Node) { root.AddFile("", nil) }, wantErr: ErrInvalidName},
		{name: "dot name", fill: func(root *Node) { root.AddDir("..") }, wantErr: ErrInvalidName},
		{name: "name too long", fill: func(root *Node) { root.AddFile(strings.Repeat("a", 256), nil) }, wantErr: ErrInvalidName},
		{name: "label too long", config: Config{Label: "ABCDEFGHIJKL"}, wantErr: ErrInvalidConfig},
		{name: "invalid partition index", config: Config{PartitionIndex: 4}, wantErr: ErrInvalidConfig},
		{name: "logical smaller than physical sectors", config: Config{PhysicalSectorSize: 4096, BytesPerSector: 512}, wantErr: ErrInvalidConfig},
		{name: "too few reserved sectors", config: Config{ReservedSectors: 1}, wantErr: ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.config)
			if tt.fill != nil {
				tt.fill(b.Root())
			}
			_, err := b.Build()
			assert.True(t, errors.Is(err, tt.wantErr), "Build() error = %v, wantErr %v", err, tt.wantErr)
		})
	}
}

func TestAddTree(t *testing.T) {
	modTime := time.Date(2020, 5, 6, 7, 8, 10, 0, time.UTC)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a.txt", []byte("a"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/src/sub/b.txt", []byte("bb"), 0644))
	require.NoError(t, fs.Chtimes("/src/a.txt", modTime, modTime))

	b := New(Config{})
	require.NoError(t, AddTree(fs, "/src", b.Root()))

	children := b.Root().Children()
	require.Len(t, children, 2)
	assert.Equal(t, "a.txt", children[0].Name)
	assert.Equal(t, []byte("a"), children[0].Data)
	assert.True(t, children[0].ModTime.Equal(modTime))

	assert.Equal(t, "sub", children[1].Name)
	assert.True(t, children[1].IsDir())
	require.Len(t, children[1].Children(), 1)
	assert.Equal(t, []byte("bb"), children[1].Children()[0].Data)

	_, err := b.Build()
	require.NoError(t, err)

	assert.Error(t, AddTree(fs, "/missing", New(Config{}).Root()))
}

func TestWithClusters(t *testing.T) {
	b := New(Config{Clusters: 2})
	b.Root().AddFile("A.TXT", make([]byte, 2*512))

	_, err := b.Build()
	require.True(t, errors.Is(err, ErrFull))

	bigger := b.WithClusters(8)
	assert.Equal(t, uint32(8), bigger.Config().Clusters)
	_, err = bigger.Build()
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 4}, bigger.Root().Children()[0].Clusters())
}
