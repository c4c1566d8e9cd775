package efs2

import (
	"fmt"
	"io"
	"time"
)

// Seek whence values, aliasing io's standard ones under package-level
// names so INodeReader's contract reads clearly at call sites.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)

const (
	modeFmt  = 0170000
	modeFreg = 0100000
)

func isRegularFile(mode uint32) bool {
	return mode&modeFmt == modeFreg
}

// INode is the decoded metadata for a regular directory entry backed
// by a real on-disk inode record (as opposed to an inline one).
type INode struct {
	Name string

	Mode       uint32
	FileSize   uint32
	Generation uint32
	Blocks     uint32

	ModifiedTime time.Time
	CreatedTime  time.Time
	AccessedTime time.Time

	UserID  uint16
	GroupID uint16

	ID uint32

	DirectClusters   [13]uint32
	IndirectClusters [3]uint32

	pm         PageManager
	tableCount int
}

// sanyoKatana32Bit and sanyoA5522SALegacy decode the vendor flag byte
// (the high byte of the superblock version) for generations 0x0e/0x0f,
// which override the otherwise version-driven inode layout choice.
func sanyoKatana32Bit(version uint16) bool  { return version>>8&4 != 0 }
func sanyoA5522SALegacy(version uint16) bool { return version>>8&0x10 != 0 }

func isSanyoGeneration(av int) bool { return av == 0x0e || av == 0x0f }

// inodeLayout describes the field offsets of one of the inode wire
// formats this package understands.
type inodeLayout struct {
	size       int
	modeWidth  int // 2 or 4 bytes
	hasUIDGID  bool
	direct     int // direct cluster count
}

func resolveInodeLayout(version uint16) inodeLayout {
	av := actualVersion(version)
	modern := av >= 0x24 || isSanyoGeneration(av)

	size := 0x3c
	if modern {
		size = 0x80
	}

	layout := inodeLayout{size: size, modeWidth: 2, hasUIDGID: modern, direct: 13}
	if !modern {
		layout.direct = 6
	}

	if isSanyoGeneration(av) {
		if sanyoKatana32Bit(version) {
			layout.size += 4
			layout.modeWidth = 4
		} else if sanyoA5522SALegacy(version) {
			layout.size = 0x3c
			layout.hasUIDGID = false
			layout.direct = 6
		}
	}

	return layout
}

// NewINode decodes the on-disk inode referenced by item, which must
// carry a real inode number (item.HasInode).
func NewINode(item *DatabaseItem, pm PageManager, decodeName func([]byte) string) (*INode, error) {
	if !item.HasInode {
		return nil, fmt.Errorf("efs2: database item is not a real inode")
	}

	sb := superblockOf(pm)
	layout := resolveInodeLayout(sb.Version)

	inodeBits := ilog2(int(sb.PageSize) / layout.size)
	inodeMask := uint32(1)<<uint(inodeBits) - 1

	inodePage := item.Inode >> uint(inodeBits)
	inodeIndex := item.Inode & inodeMask

	if err := pm.ForwardSeek(inodePage, int(inodeIndex)*layout.size); err != nil {
		return nil, err
	}

	r := rawPMReader{pm}
	buf := make([]byte, layout.size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	n := &INode{pm: pm, tableCount: int(sb.PageSize) / 4, ID: item.Inode}

	off := 0
	readU := func(width int) uint32 {
		var v uint32
		if width == 2 {
			v = uint32(le16(buf[off : off+2]))
		} else {
			v = le32(buf[off : off+4])
		}
		off += width
		return v
	}

	n.Mode = readU(layout.modeWidth)
	_ = readU(layout.modeWidth) // nlink, not surfaced

	if layout.size == 0x80 || layout.size == 0x84 {
		_ = readU(4) // attr
	}

	n.FileSize = readU(4)

	if layout.hasUIDGID {
		n.UserID = uint16(readU(2))
		n.GroupID = uint16(readU(2))
	}

	n.Generation = readU(4)
	n.Blocks = readU(4)
	mtime := readU(4)
	ctime := readU(4)
	n.ModifiedTime = time.Unix(int64(mtime), 0)
	n.CreatedTime = time.Unix(int64(ctime), 0)

	if layout.hasUIDGID {
		n.AccessedTime = time.Unix(int64(readU(4)), 0)
	} else {
		n.AccessedTime = time.Unix(0, 0)
	}

	if layout.size == 0x80 || layout.size == 0x84 {
		for i := 0; i < 7; i++ {
			readU(4) // reserved
		}
	}

	for i := 0; i < layout.direct && i < len(n.DirectClusters); i++ {
		n.DirectClusters[i] = readU(4)
	}
	for i := 0; i < 3; i++ {
		n.IndirectClusters[i] = readU(4)
	}

	switch {
	case len(item.Name) == 0:
		n.Name = "."
	case len(item.Name) == 1 && item.Name[0] == 0:
		n.Name = ".."
	default:
		n.Name = decodeName(item.Name)
	}

	return n, nil
}

// InlineINode wraps data stored directly in the directory database
// rather than addressed through an on-disk inode.
type InlineINode struct {
	Name         string
	Mode         uint32
	GroupID      uint16
	CreatedTime  time.Time
	ModifiedTime time.Time
	FileSize     int
	Blocks       uint32
	Generation   uint32
	Data         []byte
}

// NewInlineINode builds an InlineINode from a classified InlineData
// record and its entry name.
func NewInlineINode(name string, mode uint32, gid uint16, ctime time.Time, data []byte) *InlineINode {
	return &InlineINode{
		Name:         name,
		Mode:         mode,
		GroupID:      gid,
		CreatedTime:  ctime,
		ModifiedTime: ctime,
		FileSize:     len(data),
		Blocks:       1,
		Generation:   1,
		Data:         data,
	}
}

// INodeReader streams a regular file's contents through the page
// manager, resolving its direct and up-to-three-level indirect cluster
// chains once up front.
type INodeReader struct {
	inode  *INode
	tables []uint32
	offset int64
	closed bool
}

// NewINodeReader flattens inode's direct and indirect cluster chains
// into a single page list and returns a reader over them. inode.Mode
// must designate a regular file.
func NewINodeReader(inode *INode) (*INodeReader, error) {
	if !isRegularFile(inode.Mode) {
		return nil, fmt.Errorf("efs2: not a file")
	}

	tables := append([]uint32{}, inode.DirectClusters[:]...)

	for depth, cluster := range inode.IndirectClusters {
		if cluster == 0xffffffff {
			break
		}
		nodes, err := recurseIndirect(inode, depth, cluster)
		if err != nil {
			return nil, err
		}
		tables = append(tables, nodes...)
	}

	return &INodeReader{inode: inode, tables: tables}, nil
}

func recurseIndirect(inode *INode, depth int, cluster uint32) ([]uint32, error) {
	if err := inode.pm.ForwardSeek(cluster, 0); err != nil {
		return nil, err
	}

	table := make([]uint32, inode.tableCount)
	buf := make([]byte, 4)
	r := rawPMReader{inode.pm}
	for i := range table {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		table[i] = le32(buf)
	}

	if depth <= 0 {
		return table, nil
	}

	var out []uint32
	for _, c := range table {
		if c == 0xffffffff {
			break
		}
		sub, err := recurseIndirect(inode, depth-1, c)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// Read implements io.Reader.
func (r *INodeReader) Read(p []byte) (int, error) {
	if r.closed || r.offset >= int64(r.inode.FileSize) || len(p) == 0 {
		return 0, io.EOF
	}

	readCount := len(p)
	if remain := int64(r.inode.FileSize) - r.offset; int64(readCount) > remain {
		readCount = int(remain)
	}

	n := 0
	pageSize := int64(superblockOf(r.inode.pm).PageSize)

	for n < readCount {
		tableIdx := r.offset / pageSize
		if int(tableIdx) >= len(r.tables) {
			break
		}

		offsetInPage := r.offset % pageSize
		if err := r.inode.pm.ForwardSeek(r.tables[tableIdx], int(offsetInPage)); err != nil {
			return n, err
		}

		want := readCount - n
		if avail := pageSize - offsetInPage; int64(want) > avail {
			want = int(avail)
		}

		rd := rawPMReader{r.inode.pm}
		got, err := io.ReadFull(rd, p[n:n+want])
		n += got
		r.offset += int64(got)
		if err != nil {
			return n, err
		}
	}

	return n, nil
}

// Tell returns the current logical read offset.
func (r *INodeReader) Tell() int64 { return r.offset }

// Seek repositions the logical read offset. Unlike the reference
// implementation -- whose SEEK_SET is a no-op and whose SEEK_CUR
// doubles the offset instead of advancing it -- SeekSet and SeekCur
// set and advance the offset as io.Seeker does. SeekEnd takes offset
// as a distance back from the end of the file (FileSize - offset) and
// rejects an offset of 0 or less.
func (r *INodeReader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case SeekSet:
		r.offset = offset
	case SeekCur:
		r.offset += offset
	case SeekEnd:
		if offset <= 0 {
			return 0, fmt.Errorf("efs2: offset in SEEK_END must not be 0")
		}
		r.offset = int64(r.inode.FileSize) - offset
	default:
		return 0, fmt.Errorf("efs2: unknown whence %d", whence)
	}
	return r.offset, nil
}

// Close releases the reader. The underlying page manager and flash
// image are left open -- they are shared with the rest of the mount.
func (r *INodeReader) Close() error {
	r.closed = true
	return nil
}
