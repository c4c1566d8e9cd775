package efs2

import "testing"

func TestParseUpperLevel(t *testing.T) {
	data := make([]byte, 0, 32)
	put32 := func(v uint32) { data = append(data, byte(v), byte(v>>8), byte(v>>16), byte(v>>24)) }

	put32(10) // upperCluster

	// one "d" record: size=2 (1 type byte + 1 data byte; the size byte and the 4-byte cluster are not counted), data byte 0xAA
	data = append(data, 2, 'd', 0xAA)
	put32(20) // nextCluster

	clusters, err := parseUpperLevel(data)
	if err != nil {
		t.Fatalf("parseUpperLevel returned an error: %v", err)
	}
	want := []uint32{10, 20}
	if len(clusters) != len(want) {
		t.Fatalf("got %d clusters, want %d", len(clusters), len(want))
	}
	for i := range want {
		if clusters[i] != want[i] {
			t.Errorf("clusters[%d] = %d, want %d", i, clusters[i], want[i])
		}
	}
}

func TestParseUpperLevelTooShort(t *testing.T) {
	if _, err := parseUpperLevel([]byte{1, 2, 3}); err != ErrCorruptStructure {
		t.Errorf("parseUpperLevel of a 3-byte buffer returned %v, want ErrCorruptStructure", err)
	}
}

func buildLowerLevelInodeRecord(name string, parentInode uint32, inode uint32) []byte {
	dataSize := len(name) + 5
	rec := []byte{byte(dataSize), 4, 'd'}
	rec = append(rec, byte(parentInode), byte(parentInode>>8), byte(parentInode>>16), byte(parentInode>>24))
	rec = append(rec, []byte(name)...)
	rec = append(rec, 'i')
	rec = append(rec, byte(inode), byte(inode>>8), byte(inode>>16), byte(inode>>24))
	return rec
}

func TestParseLowerLevelInodeEntry(t *testing.T) {
	data := buildLowerLevelInodeRecord("modem.bin", 7, 42)

	items, err := parseLowerLevel(data)
	if err != nil {
		t.Fatalf("parseLowerLevel returned an error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}

	it := items[0]
	if string(it.Name) != "modem.bin" {
		t.Errorf("Name = %q, want %q", it.Name, "modem.bin")
	}
	if it.ParentInode != 7 {
		t.Errorf("ParentInode = %d, want 7", it.ParentInode)
	}
	if !it.HasInode || it.Inode != 42 {
		t.Errorf("Inode = %d (HasInode=%v), want 42 (true)", it.Inode, it.HasInode)
	}
}

func TestParseLowerLevelSymlinkEntry(t *testing.T) {
	target := "../data/link_target"
	dataSize := len("lnk") + 5
	inodeSize := len(target) + 1

	rec := []byte{byte(dataSize), byte(inodeSize), 'd'}
	rec = append(rec, 3, 0, 0, 0) // parent inode = 3
	rec = append(rec, []byte("lnk")...)
	rec = append(rec, 's')
	rec = append(rec, []byte(target)...)

	items, err := parseLowerLevel(rec)
	if err != nil {
		t.Fatalf("parseLowerLevel returned an error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if string(items[0].SymlinkPath) != target {
		t.Errorf("SymlinkPath = %q, want %q", items[0].SymlinkPath, target)
	}
}

func TestParseLowerLevelMultipleEntries(t *testing.T) {
	var data []byte
	data = append(data, buildLowerLevelInodeRecord("a", 1, 11)...)
	data = append(data, buildLowerLevelInodeRecord("bb", 1, 22)...)

	items, err := parseLowerLevel(data)
	if err != nil {
		t.Fatalf("parseLowerLevel returned an error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if string(items[0].Name) != "a" || string(items[1].Name) != "bb" {
		t.Errorf("names decoded out of order: %q, %q", items[0].Name, items[1].Name)
	}
}

func TestDatabaseLookupDotAndDotDot(t *testing.T) {
	d := &Database{
		encoding: latin1,
		nodes: map[uint32][]*DatabaseItem{
			5: {
				{Name: []byte{}, HasInode: true, Inode: 5},
				{Name: []byte{0}, HasInode: true, Inode: 1},
				{Name: []byte("file.bin"), HasInode: true, Inode: 9},
			},
		},
	}

	if got := d.Lookup(5, "."); got == nil || got.Inode != 5 {
		t.Errorf("Lookup(5, \".\") did not resolve the synthetic self entry")
	}
	if got := d.Lookup(5, ".."); got == nil || got.Inode != 1 {
		t.Errorf("Lookup(5, \"..\") did not resolve the synthetic parent entry")
	}
	if got := d.Lookup(5, "file.bin"); got == nil || got.Inode != 9 {
		t.Errorf("Lookup(5, \"file.bin\") did not resolve the named entry")
	}
	if got := d.Lookup(5, "missing"); got != nil {
		t.Errorf("Lookup(5, \"missing\") = %v, want nil", got)
	}
}

func TestDatabaseList(t *testing.T) {
	item := &DatabaseItem{Name: []byte("x")}
	d := &Database{nodes: map[uint32][]*DatabaseItem{3: {item}}}

	if got := d.List(3); len(got) != 1 || got[0] != item {
		t.Errorf("List(3) did not return the expected single item")
	}
	if got := d.List(99); got != nil {
		t.Errorf("List(99) = %v, want nil for an absent parent inode", got)
	}
}
