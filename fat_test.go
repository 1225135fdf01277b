package gofat32

import (
	"errors"
	"reflect"
	"testing"

	"github.com/aligator/gofat32/mkfs"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func openVFat(t *testing.T, img *mkfs.Image) (*VFat, *test.Hook) {
	t.Helper()

	log, hook := nullLogger()
	v, err := Open(memoryDevice(t, img, 512), WithLogger(log))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return v, hook
}

func toClusters(chain []uint32) []Cluster {
	result := make([]Cluster, len(chain))
	for i, c := range chain {
		result[i] = Cluster(c)
	}
	return result
}

func TestFatEntry_Status(t *testing.T) {
	tests := []struct {
		entry FatEntry
		want  Status
	}{
		{0x00000000, StatusFree},
		{0x00000001, StatusReserved},
		{0x00000002, StatusData},
		{0x0FFFFFEF, StatusData},
		{0x0FFFFFF0, StatusReserved},
		{0x0FFFFFF6, StatusReserved},
		{0x0FFFFFF7, StatusBad},
		{0x0FFFFFF8, StatusEoc},
		{0x0FFFFFFF, StatusEoc},
		// The upper 4 bits are ignored.
		{0xF0000000, StatusFree},
		{0xFFFFFFF7, StatusBad},
		{0x10000005, StatusData},
	}
	for _, tt := range tests {
		t.Run(tt.entry.String(), func(t *testing.T) {
			if got := tt.entry.Status(); got != tt.want {
				t.Errorf("Status() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFatEntry_Next(t *testing.T) {
	if got := FatEntry(0xA0000123).Next(); got != 0x123 {
		t.Errorf("Next() = %v, want %v", got, 0x123)
	}
}

func TestVFat_FatEntry(t *testing.T) {
	img, builder := buildImage(t, mkfs.Config{}, func(root *mkfs.Node) {
		root.AddFile("A.TXT", pattern(3*512))
	})
	v, _ := openVFat(t, img)
	chain := builder.Root().Children()[0].Clusters()

	tests := []struct {
		name    string
		cluster Cluster
		want    FatEntry
		wantErr error
	}{
		{name: "media descriptor", cluster: 0, want: 0x0FFFFFF8},
		{name: "root directory", cluster: 2, want: 0x0FFFFFFF},
		{name: "first cluster of the file", cluster: Cluster(chain[0]), want: FatEntry(chain[1])},
		{name: "second cluster of the file", cluster: Cluster(chain[1]), want: FatEntry(chain[2])},
		{name: "last cluster of the file", cluster: Cluster(chain[2]), want: 0x0FFFFFFF},
		{name: "free cluster", cluster: Cluster(chain[2] + 1), want: 0},
		{name: "outside of the FAT", cluster: 0x00FFFFFF, wantErr: ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.FatEntry(tt.cluster)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FatEntry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("FatEntry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVFat_ReadChain(t *testing.T) {
	tests := []struct {
		name   string
		config mkfs.Config
	}{
		{name: "contiguous", config: mkfs.Config{}},
		{name: "scattered", config: mkfs.Config{Scatter: true}},
		{name: "two sectors per cluster", config: mkfs.Config{SectorsPerCluster: 2}},
		{name: "1024 byte sectors", config: mkfs.Config{BytesPerSector: 1024}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data []byte
			img, builder := buildImage(t, tt.config, func(root *mkfs.Node) {
				root.AddFile("FIRST", []byte("first"))
				cfg := mkfs.New(tt.config).Config()
				data = pattern(3 * int(cfg.BytesPerSector) * int(cfg.SectorsPerCluster))
				root.AddFile("A.TXT", data)
			})
			v, _ := openVFat(t, img)
			node := builder.Root().Children()[1]

			got, err := v.ReadChain(Cluster(node.FirstCluster()))
			if err != nil {
				t.Fatalf("ReadChain() error = %v", err)
			}
			assertBytes(t, "ReadChain()", got, data)

			chain, err := v.Chain(Cluster(node.FirstCluster()))
			if err != nil {
				t.Fatalf("Chain() error = %v", err)
			}
			if want := toClusters(node.Clusters()); !reflect.DeepEqual(chain, want) {
				t.Errorf("Chain() = %v, want %v", chain, want)
			}
		})
	}
}

func TestVFat_ReadChain_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(img *mkfs.Image, chain []uint32)
		wantErr error
	}{
		{
			name: "cycle",
			corrupt: func(img *mkfs.Image, chain []uint32) {
				img.SetFAT(chain[1], chain[0])
			},
			wantErr: ErrCorruptChain,
		},
		{
			name: "cluster points to itself",
			corrupt: func(img *mkfs.Image, chain []uint32) {
				img.SetFAT(chain[0], chain[0])
			},
			wantErr: ErrCorruptChain,
		},
		{
			name: "bad cluster",
			corrupt: func(img *mkfs.Image, chain []uint32) {
				img.SetFAT(chain[0], 0x0FFFFFF7)
			},
			wantErr: ErrCorruptChain,
		},
		{
			name: "free cluster",
			corrupt: func(img *mkfs.Image, chain []uint32) {
				img.SetFAT(chain[0], 0)
			},
			wantErr: ErrCorruptChain,
		},
		{
			name: "reserved value",
			corrupt: func(img *mkfs.Image, chain []uint32) {
				img.SetFAT(chain[0], 0x0FFFFFF0)
			},
			wantErr: ErrCorruptChain,
		},
		{
			name: "next cluster outside of the data region",
			corrupt: func(img *mkfs.Image, chain []uint32) {
				img.SetFAT(chain[0], 0x00100000)
			},
			wantErr: ErrCorruptChain,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, builder := buildImage(t, mkfs.Config{}, func(root *mkfs.Node) {
				root.AddFile("A.TXT", pattern(2*512))
			})
			chain := builder.Root().Children()[0].Clusters()
			tt.corrupt(img, chain)

			v, hook := openVFat(t, img)
			if _, err := v.ReadChain(Cluster(chain[0])); !errors.Is(err, tt.wantErr) {
				t.Errorf("ReadChain() error = %v, wantErr %v", err, tt.wantErr)
			}

			warned := false
			for _, entry := range hook.AllEntries() {
				warned = warned || entry.Level == logrus.WarnLevel
			}
			if !warned {
				t.Errorf("ReadChain() did not log a warning about the corrupt chain")
			}
		})
	}
}

func TestVFat_ReadCluster(t *testing.T) {
	data := pattern(512)
	img, builder := buildImage(t, mkfs.Config{}, func(root *mkfs.Node) {
		root.AddFile("A.TXT", data)
	})
	v, _ := openVFat(t, img)
	cluster := Cluster(builder.Root().Children()[0].FirstCluster())

	tests := []struct {
		name    string
		cluster Cluster
		offset  uint32
		size    int
		want    []byte
		wantErr error
	}{
		{name: "whole cluster", cluster: cluster, size: 512, want: data},
		{name: "with offset", cluster: cluster, offset: 500, size: 4, want: data[500:504]},
		{name: "buffer larger than the rest", cluster: cluster, offset: 510, size: 10, want: data[510:]},
		{name: "offset beyond the cluster", cluster: cluster, offset: 512, size: 10, want: []byte{}},
		{name: "reserved cluster", cluster: 1, size: 10, wantErr: ErrOutOfRange},
		{name: "cluster beyond the volume", cluster: 2 + 256, size: 10, wantErr: ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			n, err := v.ReadCluster(tt.cluster, tt.offset, buf)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadCluster() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				assertBytes(t, "ReadCluster()", buf[:n], tt.want)
			}
		})
	}
}

func TestVFat_walk(t *testing.T) {
	img, builder := buildImage(t, mkfs.Config{Scatter: true}, func(root *mkfs.Node) {
		root.AddFile("A.TXT", pattern(4*512))
	})
	v, _ := openVFat(t, img)
	chain := builder.Root().Children()[0].Clusters()

	for i, want := range chain {
		got, err := v.walk(Cluster(chain[0]), uint32(i))
		if err != nil {
			t.Fatalf("walk(%d) error = %v", i, err)
		}
		if got != Cluster(want) {
			t.Errorf("walk(%d) = %v, want %v", i, got, want)
		}
	}

	if _, err := v.walk(Cluster(chain[0]), uint32(len(chain))); !errors.Is(err, ErrCorruptChain) {
		t.Errorf("walk() beyond the chain error = %v, wantErr %v", err, ErrCorruptChain)
	}
	if _, err := v.walk(Cluster(chain[0]), v.ClusterCount()); !errors.Is(err, ErrCorruptChain) {
		t.Errorf("walk() more steps than clusters error = %v, wantErr %v", err, ErrCorruptChain)
	}
}
