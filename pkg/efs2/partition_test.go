package efs2

import (
	"bytes"
	"testing"
)

func buildPartitionTable(entries []Partition, blockSize int64) []byte {
	buf := new(bytes.Buffer)
	buf.Write(partitionTableMagic)
	writeLE32(buf, 1) // version
	writeLE32(buf, uint32(len(entries)))

	for _, p := range entries {
		buf.WriteByte(p.FlashID)
		buf.WriteByte(0) // pad
		name := make([]byte, 14)
		copy(name, p.Name)
		buf.Write(name)

		blockStart := uint32(p.Start / blockSize)
		writeLE32(buf, blockStart)

		if p.Length < 0 {
			writeLE32(buf, 0xffffffff)
		} else {
			writeLE32(buf, uint32(p.Length/blockSize))
		}
		writeLE32(buf, p.Attr)
	}

	return buf.Bytes()
}

func writeLE32(buf *bytes.Buffer, v uint32) {
	buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
}

func TestParsePartitionTable(t *testing.T) {
	const blockSize = 0x20000

	entries := []Partition{
		{FlashID: 1, Name: "BOOT", Start: 0, Length: 4 * blockSize},
		{FlashID: 2, Name: "EFS2", Start: 4 * blockSize, Length: -1},
	}
	data := buildPartitionTable(entries, blockSize)

	pt, err := ParsePartitionTable(data, blockSize)
	if err != nil {
		t.Fatalf("ParsePartitionTable returned an error: %v", err)
	}
	if len(pt.Partitions) != 2 {
		t.Fatalf("got %d partitions, want 2", len(pt.Partitions))
	}

	boot := pt.Partitions[0]
	if boot.Name != "BOOT" || boot.Start != 0 || boot.Length != 4*blockSize {
		t.Errorf("BOOT partition decoded incorrectly: %+v", boot)
	}

	efs := pt.Partitions[1]
	if efs.Name != "EFS2" || efs.Length != -1 || efs.End != -1 {
		t.Errorf("EFS2 partition with unbounded length decoded incorrectly: %+v", efs)
	}
	if efs.Start != 4*blockSize {
		t.Errorf("EFS2 partition start = %d, want %d", efs.Start, 4*blockSize)
	}
}

func TestParsePartitionTableBadMagic(t *testing.T) {
	data := make([]byte, 32)
	if _, err := ParsePartitionTable(data, 0x1000); err != ErrCorruptStructure {
		t.Errorf("ParsePartitionTable with bad magic returned %v, want ErrCorruptStructure", err)
	}
}

func TestLookupPartitionTableScansCandidateOffsets(t *testing.T) {
	const blockSize = 0x20000

	entries := []Partition{{FlashID: 1, Name: "EFS2APPS", Start: 0, Length: blockSize}}
	table := buildPartitionTable(entries, blockSize)

	block := make([]byte, blockSize)
	copy(block[0x800:], table)

	pt, err := LookupPartitionTable(bytes.NewReader(block), blockSize)
	if err != nil {
		t.Fatalf("LookupPartitionTable returned an error: %v", err)
	}

	start, end, err := pt.Lookup("EFS2APPS")
	if err != nil {
		t.Fatalf("Lookup(\"EFS2APPS\") returned an error: %v", err)
	}
	if start != 0 || end != blockSize {
		t.Errorf("Lookup(\"EFS2APPS\") = (%d, %d), want (0, %d)", start, end, blockSize)
	}
}

func TestLookupPartitionTableNotFound(t *testing.T) {
	_, err := LookupPartitionTable(bytes.NewReader(make([]byte, 0x20000)), 0x20000)
	if err == nil {
		t.Errorf("LookupPartitionTable over a blank device should return an error")
	}
}

func TestPartitionTableLookupMissingName(t *testing.T) {
	pt := &PartitionTable{Partitions: []Partition{{Name: "BOOT"}}}
	if _, _, err := pt.Lookup("MODEM"); err == nil {
		t.Errorf("Lookup of a missing partition name should return an error")
	}
}
