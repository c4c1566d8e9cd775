package efs2

import "testing"

func buildCEFSHeader(v1 bool, factVersion, version uint16, blockSize, pageSize, blockCount, cefsPageCount uint32, upperData []uint32) []byte {
	var buf []byte
	if v1 {
		buf = append(buf, 0, 0, 0, 0) // leading page_header word, ignored by the parser
	}

	buf = append(buf, cefsMagic...)

	put16 := func(v uint16) { buf = append(buf, byte(v), byte(v>>8)) }
	put32 := func(v uint32) { buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24)) }

	put16(factVersion)
	put16(version)
	put32(blockSize)
	put32(pageSize)
	put32(blockCount)
	put32(cefsPageCount)

	for _, v := range upperData {
		put32(v)
	}

	return buf
}

func TestParseCEFSFactoryV2(t *testing.T) {
	upper := make([]uint32, 7)
	upper[UpperDataFSInfo] = 11
	upper[UpperDataDBRoot] = 22

	data := buildCEFSHeader(false, 3, 0x10, 0x800, 0x200, 16, 4096, upper)

	sb, err := parseCEFSFactory(data)
	if err != nil {
		t.Fatalf("parseCEFSFactory returned an error: %v", err)
	}
	if sb.FactoryVersion != 3 {
		t.Errorf("FactoryVersion = %d, want 3", sb.FactoryVersion)
	}
	if sb.CefsPageCount != 4096 {
		t.Errorf("CefsPageCount = %d, want 4096", sb.CefsPageCount)
	}
	if sb.BlockLength != 0x800*0x200 {
		t.Errorf("BlockLength = %#x, want %#x", sb.BlockLength, 0x800*0x200)
	}
	if sb.PageTotal != 0x800*16 {
		t.Errorf("PageTotal = %#x, want %#x", sb.PageTotal, 0x800*16)
	}
	if len(sb.UpperData) != 7 || sb.UpperData[UpperDataFSInfo] != 11 || sb.UpperData[UpperDataDBRoot] != 22 {
		t.Errorf("UpperData decoded incorrectly: %+v", sb.UpperData)
	}
}

func TestParseCEFSFactoryV1LeadingWord(t *testing.T) {
	upper := make([]uint32, 7)
	data := buildCEFSHeader(true, 2, 0x05, 0x800, 0x200, 4, 512, upper)

	sb, err := parseCEFSFactory(data)
	if err != nil {
		t.Fatalf("parseCEFSFactory (v1) returned an error: %v", err)
	}
	if sb.FactoryVersion != 2 {
		t.Errorf("FactoryVersion = %d, want 2", sb.FactoryVersion)
	}
}

func TestParseCEFSFactoryWideUpperData(t *testing.T) {
	upper := make([]uint32, 32)
	upper[20] = 0xdead

	data := buildCEFSHeader(false, 4, 0x24, 0x800, 0x200, 4, 128, upper)

	sb, err := parseCEFSFactory(data)
	if err != nil {
		t.Fatalf("parseCEFSFactory returned an error: %v", err)
	}
	if len(sb.UpperData) != 32 {
		t.Fatalf("got %d upper_data entries, want 32 for generation 0x24", len(sb.UpperData))
	}
	if sb.UpperData[20] != 0xdead {
		t.Errorf("UpperData[20] = %#x, want 0xdead", sb.UpperData[20])
	}
}

func TestParseCEFSFactoryBadMagic(t *testing.T) {
	data := make([]byte, 32)
	if _, err := parseCEFSFactory(data); err != ErrCorruptStructure {
		t.Errorf("parseCEFSFactory with bad magic returned %v, want ErrCorruptStructure", err)
	}
}

func TestCheckFcacheFreeVersion3(t *testing.T) {
	p := &CEFSPM{pmBase: pmBase{Super: &Superblock{FactoryVersion: 3}}, fcache: []byte{0x01}}

	if !p.checkFcacheFree(0) {
		t.Errorf("cluster 0 (bit0 set) should be free under the v3+ LSB-first/1=free scheme")
	}
	if p.checkFcacheFree(1) {
		t.Errorf("cluster 1 (bit1 clear) should not be free")
	}
}

func TestCheckFcacheFreeLegacy(t *testing.T) {
	p := &CEFSPM{pmBase: pmBase{Super: &Superblock{FactoryVersion: 1}}, fcache: []byte{0x7f}}

	if !p.checkFcacheFree(0) {
		t.Errorf("cluster 0 (MSB clear) should be free under the legacy MSB-first/0=free scheme")
	}
	if p.checkFcacheFree(1) {
		t.Errorf("cluster 1 (next-from-MSB bit set) should not be free")
	}
}

func TestCEFSPMComputePtables(t *testing.T) {
	p := &CEFSPM{
		pmBase: pmBase{Super: &Superblock{FactoryVersion: 3, PageSize: 0x200, CefsPageCount: 4}},
		fcache: []byte{0x09}, // bits: 0=free,1=occupied,2=occupied,3=free (LSB-first)
	}
	p.ptables = make([]uint32, 4)
	p.rtables = make([]uint32, 4)
	for i := range p.ptables {
		p.ptables[i] = 0xffffffff
		p.rtables[i] = 0xffffffff
	}

	if err := p.ComputePtables(); err != nil {
		t.Fatalf("ComputePtables returned an error: %v", err)
	}

	if p.ptables[0] != 0xffffffff || p.ptables[3] != 0xffffffff {
		t.Errorf("free clusters should keep the sentinel: ptables = %v", p.ptables)
	}
	if p.ptables[1] != 0 || p.ptables[2] != 1 {
		t.Errorf("occupied clusters should be assigned sequential pages: ptables = %v", p.ptables)
	}
	if p.rtables[0] != 1 || p.rtables[1] != 2 {
		t.Errorf("reverse table should mirror the assignment: rtables = %v", p.rtables)
	}
}

func TestCEFSPMGetForwardReverseOutOfRange(t *testing.T) {
	p := &CEFSPM{ptables: []uint32{5}, rtables: []uint32{9}}

	if _, err := p.GetForward(1); err != ErrCorruptStructure {
		t.Errorf("GetForward out of range returned %v, want ErrCorruptStructure", err)
	}
	if _, err := p.GetReverse(1); err != ErrCorruptStructure {
		t.Errorf("GetReverse out of range returned %v, want ErrCorruptStructure", err)
	}

	page, err := p.GetForward(0)
	if err != nil || page != 5 {
		t.Errorf("GetForward(0) = (%d, %v), want (5, nil)", page, err)
	}
}
