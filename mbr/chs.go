package mbr

import "fmt"

// CHS is a cylinder-head-sector address as stored in a partition entry.
// Modern systems use the LBA fields instead, but the triplets are decoded
// so a table round-trips unchanged.
type CHS struct {
	Head uint8
	// Sector is 6 bits wide.
	Sector uint8
	// Cylinder is 10 bits wide.
	Cylinder uint16
}

// decodeCHS reads the packed 3 byte representation:
//  byte 0: head
//  byte 1: bits 0-5 sector, bits 6-7 cylinder bits 8-9
//  byte 2: cylinder bits 0-7
func decodeCHS(b []byte) CHS {
	return CHS{
		Head:     b[0],
		Sector:   b[1] & 0x3F,
		Cylinder: uint16(b[2]) | uint16(b[1]&0xC0)<<2,
	}
}

func (c CHS) encode(b []byte) {
	b[0] = c.Head
	b[1] = c.Sector&0x3F | byte(c.Cylinder>>2)&0xC0
	b[2] = byte(c.Cylinder)
}

func (c CHS) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Cylinder, c.Head, c.Sector)
}
