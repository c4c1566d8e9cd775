package efs2

import "math/bits"

// actualVersion strips the vendor/variant flag byte from a superblock
// version field, leaving the generation number.
func actualVersion(v uint16) int {
	return int(v & 0xff)
}

// ilog2 returns the integer base-2 logarithm of x, which must be a
// power of two (nodes_per_page, block_size and similar geometry
// fields are always powers of two on EFS2 volumes).
func ilog2(x int) int {
	if x <= 0 {
		return 0
	}
	return bits.Len(uint(x)) - 1
}

// le32 decodes a little-endian uint32 from the first four bytes of b.
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// le16 decodes a little-endian uint16 from the first two bytes of b.
func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
