package blockdev

import (
	"fmt"
	"io"

	"github.com/aligator/gofat32/checkpoint"
)

// Memory is a device backed by a byte slice.
// A sector beyond the end of the slice reads as io.EOF and cannot be written.
type Memory struct {
	data       []byte
	sectorSize uint64
	readOnly   bool
}

// NewMemory uses data as device content. data is not copied.
func NewMemory(data []byte, opts ...Option) (*Memory, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Memory{
		data:       data,
		sectorSize: o.sectorSize,
		readOnly:   o.readOnly,
	}, nil
}

// Bytes returns the content of the device.
func (m *Memory) Bytes() []byte {
	return m.data
}

func (m *Memory) SectorSize() uint64 {
	return m.sectorSize
}

func (m *Memory) sector(sector uint64) ([]byte, error) {
	start := sector * m.sectorSize
	if start >= uint64(len(m.data)) {
		return nil, io.EOF
	}

	end := start + m.sectorSize
	if end > uint64(len(m.data)) {
		end = uint64(len(m.data))
	}
	return m.data[start:end], nil
}

func (m *Memory) ReadSector(sector uint64, buf []byte) (int, error) {
	data, err := m.sector(sector)
	if err != nil {
		return 0, err
	}
	return copy(buf, data), nil
}

func (m *Memory) WriteSector(sector uint64, buf []byte) (int, error) {
	if m.readOnly {
		return 0, checkpoint.Wrap(ErrReadOnly, fmt.Errorf("write to sector %d", sector))
	}

	data, err := m.sector(sector)
	if err != nil {
		return 0, checkpoint.Wrap(io.ErrShortWrite, fmt.Errorf("sector %d is beyond the device", sector))
	}
	return copy(data, buf), nil
}
