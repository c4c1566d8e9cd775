package efs2

import (
	"bytes"
	"fmt"
	"io"
)

var partitionTableMagic = []byte{0xAA, 0x73, 0xEE, 0x55, 0xDB, 0xBD, 0x5E, 0xE3}

// Partition is one entry of a flash partition table.
type Partition struct {
	FlashID byte
	Name    string
	Start   int64
	End     int64 // -1 means "extends to end of device"
	Length  int64 // -1 means "extends to end of device"
	Attr    uint32
}

// PartitionTable is the block-device-level partition index that
// precedes an EFS2/EFS2APPS (or other) partition on many Qualcomm
// basebands.
type PartitionTable struct {
	Version    uint32
	Partitions []Partition
}

// ParsePartitionTable decodes a partition table whose magic starts at
// data[0]. blockSize scales each entry's block_start/block_length
// fields into byte offsets.
func ParsePartitionTable(data []byte, blockSize int64) (*PartitionTable, error) {
	if len(data) < 16 || !bytes.Equal(data[:8], partitionTableMagic) {
		return nil, ErrCorruptStructure
	}

	version := le32(data[8:12])
	count := le32(data[12:16])

	pt := &PartitionTable{Version: version}

	off := 16
	for i := uint32(0); i < count; i++ {
		if off+24 > len(data) {
			return nil, ErrCorruptStructure
		}

		flashID := data[off]
		nameRaw := data[off+2 : off+16]
		name := string(bytes.TrimRight(nameRaw, "\x00"))
		blockStart := le32(data[off+16 : off+20])
		blockLength := le32(data[off+20 : off+24])
		attr := le32(data[off+24 : off+28])

		p := Partition{
			FlashID: flashID,
			Name:    name,
			Start:   int64(blockStart) * blockSize,
			Attr:    attr,
		}
		if blockLength == 0xffffffff {
			p.End = -1
			p.Length = -1
		} else {
			p.Length = int64(blockLength) * blockSize
			p.End = p.Start + p.Length
		}

		pt.Partitions = append(pt.Partitions, p)
		off += 28
	}

	return pt, nil
}

// LookupPartitionTable scans r at the three offsets Qualcomm
// bootloaders are known to place a partition table (0x200, 0x800,
// 0x1000 within each blockSize-aligned block), reading one block at a
// time until one is found.
func LookupPartitionTable(r io.Reader, blockSize int64) (*PartitionTable, error) {
	candidates := []int{0x200, 0x800, 0x1000}

	for {
		block := make([]byte, blockSize)
		n, err := io.ReadFull(r, block)
		if n > 0 {
			for _, off := range candidates {
				if off+8 > n {
					continue
				}
				if bytes.Equal(block[off:off+8], partitionTableMagic) {
					return ParsePartitionTable(block[off:n], blockSize)
				}
			}
		}
		if err != nil {
			break
		}
	}

	return nil, fmt.Errorf("efs2: could not find partition table")
}

// Lookup returns the start/end byte offsets of the named partition.
func (pt *PartitionTable) Lookup(name string) (start, end int64, err error) {
	for _, p := range pt.Partitions {
		if p.Name == name {
			return p.Start, p.End, nil
		}
	}
	return 0, 0, fmt.Errorf("efs2: no partition named %q", name)
}
