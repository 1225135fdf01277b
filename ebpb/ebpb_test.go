package ebpb

import (
	"errors"
	"reflect"
	"testing"
)

func testBPB() *BiosParameterBlock {
	b := &BiosParameterBlock{
		JumpBoot:          [3]byte{0xEB, 0x58, 0x90},
		OEMName:           [8]byte{'m', 'k', 'f', 's', '.', 'f', 'a', 't'},
		BytesPerSector:    512,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		NumFATs:           2,
		Media:             0xF8,
		SectorsPerTrack:   63,
		NumHeads:          255,
		HiddenSectors:     2048,
		TotalSectors32:    0x00123456,
		SectorsPerFAT:     0x0000ABCD,
		RootCluster:       2,
		FSInfoSector:      1,
		BackupBootSector:  6,
		DriveNumber:       0x80,
		ExtSignature:      0x29,
		VolumeID:          0xDEADBEEF,
		VolumeLabel:       [11]byte{'T', 'E', 'S', 'T', 'V', 'O', 'L', ' ', ' ', ' ', ' '},
		SystemID:          [8]byte{'F', 'A', 'T', '3', '2', ' ', ' ', ' '},
		BootSignature:     Signature,
	}
	b.BootCode[0] = 0x0E
	b.BootCode[419] = 0x1F
	return b
}

func TestParse_KnownOffsets(t *testing.T) {
	sector := make([]byte, Size)
	// 11: bytes per sector 0x0200, 13: sectors per cluster, 14: reserved 0x0020,
	// 16: FAT count, 36: sectors per FAT, 44: root cluster, 510: signature.
	sector[11], sector[12] = 0x00, 0x02
	sector[13] = 0x04
	sector[14], sector[15] = 0x20, 0x00
	sector[16] = 0x02
	sector[36], sector[37], sector[38], sector[39] = 0x78, 0x56, 0x34, 0x12
	sector[44], sector[45], sector[46], sector[47] = 0x05, 0x00, 0x00, 0x00
	sector[510], sector[511] = 0x55, 0xAA

	got, err := Parse(sector)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"BytesPerSector", got.BytesPerSector, uint16(512)},
		{"SectorsPerCluster", got.SectorsPerCluster, uint8(4)},
		{"ReservedSectors", got.ReservedSectors, uint16(32)},
		{"NumFATs", got.NumFATs, uint8(2)},
		{"SectorsPerFAT", got.SectorsPerFAT, uint32(0x12345678)},
		{"RootCluster", got.RootCluster, uint32(5)},
		{"BootSignature", got.BootSignature, Signature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("Parse() %s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParse_RoundTrip(t *testing.T) {
	want := testBPB()
	got, err := Parse(want.Bytes())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Parse() = %+v, want %+v", got, want)
	}
	if got.Label() != "TESTVOL" {
		t.Errorf("BiosParameterBlock.Label() = %q, want %q", got.Label(), "TESTVOL")
	}
}

func TestParse_BadSignature(t *testing.T) {
	tests := []struct {
		name      string
		signature [2]byte
	}{
		{"zero", [2]byte{0, 0}},
		{"big endian", [2]byte{0xAA, 0x55}},
		{"one bit off", [2]byte{0x55, 0xAB}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sector := testBPB().Bytes()
			sector[510], sector[511] = tt.signature[0], tt.signature[1]
			if _, err := Parse(sector); !errors.Is(err, ErrBadSignature) {
				t.Errorf("Parse() error = %v, wantErr %v", err, ErrBadSignature)
			}
		})
	}
}

func TestBiosParameterBlock_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(b *BiosParameterBlock)
		wantErr bool
	}{
		{"valid", func(b *BiosParameterBlock) {}, false},
		{"sector size 4096", func(b *BiosParameterBlock) { b.BytesPerSector = 4096; b.SectorsPerCluster = 8 }, false},
		{"sector size 513", func(b *BiosParameterBlock) { b.BytesPerSector = 513 }, true},
		{"zero sectors per cluster", func(b *BiosParameterBlock) { b.SectorsPerCluster = 0 }, true},
		{"sectors per cluster not a power of two", func(b *BiosParameterBlock) { b.SectorsPerCluster = 3 }, true},
		{"cluster too big", func(b *BiosParameterBlock) { b.BytesPerSector = 4096; b.SectorsPerCluster = 16 }, true},
		{"no reserved sectors", func(b *BiosParameterBlock) { b.ReservedSectors = 0 }, true},
		{"no FATs", func(b *BiosParameterBlock) { b.NumFATs = 0 }, true},
		{"FAT16 volume", func(b *BiosParameterBlock) { b.SectorsPerFAT = 0 }, true},
		{"root in reserved cluster", func(b *BiosParameterBlock) { b.RootCluster = 1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBPB()
			tt.modify(b)
			err := b.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("BiosParameterBlock.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("BiosParameterBlock.Validate() error = %v, want %v", err, ErrInvalidGeometry)
			}
		})
	}
}

func TestBiosParameterBlock_TotalSectors(t *testing.T) {
	b := testBPB()
	if got := b.TotalSectors(); got != 0x00123456 {
		t.Errorf("BiosParameterBlock.TotalSectors() = %v, want %v", got, 0x00123456)
	}
	b.TotalSectors16 = 100
	if got := b.TotalSectors(); got != 100 {
		t.Errorf("BiosParameterBlock.TotalSectors() = %v, want %v", got, 100)
	}
}
