package efs2

import (
	"io"
)

var cefsMagic = []byte{0x87, 0x67, 0x85, 0x34, 0x59, 0x77, 0x34, 0x92}

// parseCEFSFactory decodes a CEFS ("gang image", a factory-programmed
// read-only bundle of several EFS2 filesystems) superblock. Unlike a
// real EFS2 superblock this carries no page_header/age/checksum in the
// v2 layout, and an extra leading page_header word in v1.
func parseCEFSFactory(data []byte) (*Superblock, error) {
	off := 0
	v1 := len(data) < 8 || !equalBytes(data[:8], cefsMagic)
	if v1 {
		if len(data) < 4 {
			return nil, ErrCorruptStructure
		}
		off = 4
	}

	if off+8 > len(data) || !equalBytes(data[off:off+8], cefsMagic) {
		return nil, ErrCorruptStructure
	}
	off += 8

	if off+20 > len(data) {
		return nil, ErrCorruptStructure
	}

	factVersion := le16(data[off : off+2])
	version := le16(data[off+2 : off+4])
	blockSize := le32(data[off+4 : off+8])
	pageSize := le32(data[off+8 : off+12])
	blockCount := le32(data[off+12 : off+16])
	cefsPageCount := le32(data[off+16 : off+20])
	off += 20

	upperCount := 7
	if actualVersion(version) >= 0x24 {
		upperCount = 32
	}
	if off+upperCount*4 > len(data) {
		return nil, ErrCorruptStructure
	}

	upperData := make([]uint32, upperCount)
	for i := range upperData {
		upperData[i] = le32(data[off : off+4])
		off += 4
	}

	s := &Superblock{
		Version:        version,
		Age:            0,
		BlockSize:      blockSize,
		PageSize:       pageSize,
		BlockCount:     blockCount,
		BlockLength:    blockSize * pageSize,
		PageTotal:      blockSize * blockCount,
		UpperData:      upperData,
		FactoryVersion: int(factVersion),
		CefsPageCount:  cefsPageCount,
	}
	return s, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CEFSPM is the page manager for a CEFS gang image: a fixed free-page
// bitmap ("fcache") followed by sequential physical pages, assigned to
// clusters in bitmap-scan order rather than addressed via a log or a
// multi-level page table.
type CEFSPM struct {
	pmBase

	fcache  []byte
	ptables []uint32
	rtables []uint32
}

// NewCEFSPM reads the fcache bitmap immediately following sb's header
// page and prepares (but does not yet fill) the forward/reverse tables.
func NewCEFSPM(sb *Superblock, file io.ReadSeeker, baseOffset int64) (*CEFSPM, error) {
	if _, err := file.Seek(baseOffset+int64(sb.PageSize), io.SeekStart); err != nil {
		return nil, err
	}
	fcache := make([]byte, 0x100000)
	if _, err := io.ReadFull(file, fcache); err != nil {
		return nil, err
	}

	p := &CEFSPM{
		pmBase:  pmBase{Super: sb, File: file, BaseOffset: baseOffset},
		fcache:  fcache,
		ptables: make([]uint32, sb.CefsPageCount),
		rtables: make([]uint32, sb.CefsPageCount),
	}
	for i := range p.ptables {
		p.ptables[i] = 0xffffffff
		p.rtables[i] = 0xffffffff
	}
	return p, nil
}

// checkFcacheFree reports whether cluster's bit in the fcache bitmap
// marks it free. Bit sense and bit-within-byte numbering both flip
// between factory format versions: version 3+ numbers bits LSB-first
// and uses 1 for free, while the older format numbers bits MSB-first
// and uses 0 for free.
func (p *CEFSPM) checkFcacheFree(cluster uint32) bool {
	fcOffset := cluster >> 3
	fcBit := cluster & 7

	if p.Super.FactoryVersion >= 3 {
		return p.fcache[fcOffset]&(1<<fcBit) != 0
	}
	return p.fcache[fcOffset]&(1<<(7-fcBit)) == 0
}

// ComputePtables walks the fcache bitmap once, assigning each
// allocated (non-free) cluster the next sequential physical page
// following the fcache region.
func (p *CEFSPM) ComputePtables() error {
	cluster := uint32(0)
	page := p.BaseOffset / int64(p.Super.PageSize)

	fsPageStart := int64((int64(p.Super.PageSize)<<3+int64(p.Super.CefsPageCount)-1)/(int64(p.Super.PageSize)<<3)) + 1

	for cluster < p.Super.CefsPageCount {
		for cluster < p.Super.CefsPageCount && p.checkFcacheFree(cluster) {
			cluster++
		}
		if cluster >= p.Super.CefsPageCount {
			break
		}

		assigned := page
		if p.Super.FactoryVersion < 3 {
			assigned = page + fsPageStart
		}
		p.ptables[cluster] = uint32(assigned)
		p.rtables[assigned] = cluster

		cluster++
		page++
	}

	return nil
}

func (p *CEFSPM) GetForward(cluster uint32) (uint32, error) {
	if int(cluster) >= len(p.ptables) {
		return 0, ErrCorruptStructure
	}
	return p.ptables[cluster], nil
}

func (p *CEFSPM) GetReverse(page uint32) (uint32, error) {
	if int(page) >= len(p.rtables) {
		return 0, ErrCorruptStructure
	}
	return p.rtables[page], nil
}

func (p *CEFSPM) ForwardToOffset(cluster uint32) (int64, error) {
	page, err := p.GetForward(cluster)
	if err != nil {
		return 0, err
	}
	return int64(page) * int64(p.Super.PageSize), nil
}

func (p *CEFSPM) ForwardSeek(cluster uint32, offsetFromCluster int) error {
	off, err := p.ForwardToOffset(cluster)
	if err != nil {
		return err
	}
	_, err = p.File.Seek(p.BaseOffset+off+int64(offsetFromCluster%int(p.Super.PageSize)), io.SeekStart)
	return err
}

// OpenCEFS mounts a CEFS gang image. Unlike EFS2 proper there is no
// journal to replay and no superblock candidate scan: the factory
// header at base_offset is authoritative.
func OpenCEFS(image io.ReadSeeker, closer io.Closer, baseOffset int64, encoding func([]byte) string) (*FS, error) {
	if encoding == nil {
		encoding = latin1
	}

	if _, err := image.Seek(baseOffset, io.SeekStart); err != nil {
		return nil, err
	}
	header := make([]byte, 0x80000)
	n, err := io.ReadFull(image, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}

	sb, err := parseCEFSFactory(header[:n])
	if err != nil {
		return nil, err
	}

	pm, err := NewCEFSPM(sb, image, baseOffset)
	if err != nil {
		return nil, err
	}
	if err := pm.ComputePtables(); err != nil {
		return nil, err
	}

	info, err := readEFSInfo(sb.UpperData[UpperDataFSInfo], pm)
	if err != nil {
		return nil, err
	}

	db, err := NewDatabase(sb.UpperData[UpperDataDBRoot], pm, encoding)
	if err != nil {
		return nil, err
	}

	return &FS{
		image:      image,
		closer:     closer,
		encoding:   encoding,
		super:      sb,
		pm:         pm,
		EFSSize:    int64(sb.PageTotal) * int64(sb.PageSize),
		BaseOffset: baseOffset,
		info:       info,
		db:         db,
		curDir:     info.RootInode,
		pwd:        "/",
	}, nil
}
