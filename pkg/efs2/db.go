package efs2

import (
	"io"
	"time"
)

// InlineData is an inode's contents stored directly in the directory
// database record instead of in an indirect-addressed set of pages.
type InlineData struct {
	IsLong      bool
	Mode        uint16
	GroupID     uint16
	CreatedTime time.Time
	Data        []byte
}

// DatabaseItem is one directory entry: a name, its parent's inode
// number, and exactly one of Inode / Inline / SymlinkPath / LongName
// describing what it names.
type DatabaseItem struct {
	Name         []byte
	ParentInode  uint32
	InodeType    byte
	Inode        uint32
	HasInode     bool
	Inline       *InlineData
	SymlinkPath  []byte
	LongName     []byte
}

// Database is the flattened B-tree directory index: every leaf record
// keyed by its parent inode number, built once at mount time.
type Database struct {
	pm        PageManager
	sbVersion int
	encoding  func([]byte) string
	nodes     map[uint32][]*DatabaseItem
}

// NewDatabase walks the B-tree rooted at cluster and flattens it into
// a map keyed by parent inode. A fresh map is allocated per call: the
// reference implementation default-initializes its accumulator
// argument once at function-definition time and reuses it across every
// recursive call *and* across every Database constructed in the same
// process, so a second mounted filesystem inherits the first one's
// entries. That is a latent bug, not a quirk to preserve, so each
// mount here gets its own map.
func NewDatabase(cluster uint32, pm PageManager, encoding func([]byte) string) (*Database, error) {
	d := &Database{
		pm:        pm,
		sbVersion: actualVersion(superblockOf(pm).Version),
		encoding:  encoding,
	}

	nodes, err := d.recurseDB(cluster, map[uint32][]*DatabaseItem{})
	if err != nil {
		return nil, err
	}
	d.nodes = nodes
	return d, nil
}

// superblockOf recovers the Superblock a PageManager was built over.
// PageManager implementations embed pmBase, which keeps a pointer to
// it; this avoids widening the PageManager interface just for this one
// accessor.
func superblockOf(pm PageManager) *Superblock {
	switch t := pm.(type) {
	case *NANDPM:
		return t.Super
	case *NORPM:
		return t.Super
	case *CEFSPM:
		return t.Super
	}
	return nil
}

func (d *Database) recurseDB(cluster uint32, dbMap map[uint32][]*DatabaseItem) (map[uint32][]*DatabaseItem, error) {
	if err := d.pm.ForwardSeek(cluster, 0); err != nil {
		return nil, err
	}

	r := io.Reader(rawPMReader{d.pm})

	header := make([]byte, 18)
	headerLen := 18
	if d.sbVersion < 0x24 {
		headerLen = 12
	}
	if _, err := io.ReadFull(r, header[:headerLen]); err != nil {
		return nil, err
	}

	var used uint16
	var level byte
	if d.sbVersion >= 0x24 {
		used = le16(header[8:10])
		level = header[17]
	} else {
		used = le16(header[8:10])
		level = header[11]
	}

	data := make([]byte, used)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	if level > 0 {
		clusters, err := parseUpperLevel(data)
		if err != nil {
			return nil, err
		}
		for _, c := range clusters {
			dbMap, err = d.recurseDB(c, dbMap)
			if err != nil {
				return nil, err
			}
		}
		return dbMap, nil
	}

	items, err := parseLowerLevel(data)
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		dbMap[it.ParentInode] = append(dbMap[it.ParentInode], it)
	}

	return dbMap, nil
}

// rawPMReader adapts a PageManager's underlying File (already
// positioned by ForwardSeek) into an io.Reader for node decoding.
type rawPMReader struct {
	pm PageManager
}

func (r rawPMReader) Read(p []byte) (int, error) {
	switch t := r.pm.(type) {
	case *NANDPM:
		return t.File.Read(p)
	case *NORPM:
		return t.File.Read(p)
	case *CEFSPM:
		return t.File.Read(p)
	}
	return 0, ErrCorruptStructure
}

func parseUpperLevel(data []byte) ([]uint32, error) {
	if len(data) < 4 {
		return nil, ErrCorruptStructure
	}
	upperCluster := le32(data[:4])
	clusters := []uint32{upperCluster}

	off := 4
	for off < len(data) {
		if off+2 > len(data) {
			break
		}
		size := int(data[off])
		if data[off+1] != 'd' {
			break
		}
		recDataLen := size - 1
		if off+2+recDataLen+4 > len(data) {
			break
		}
		nextCluster := le32(data[off+2+recDataLen : off+2+recDataLen+4])
		clusters = append(clusters, nextCluster)
		off += 2 + recDataLen + 4
	}

	return clusters, nil
}

func parseLowerLevel(data []byte) ([]*DatabaseItem, error) {
	var items []*DatabaseItem

	off := 0
	for off < len(data) {
		if off+7 > len(data) {
			break
		}
		dataSize := int(data[off])
		inodeSize := int(data[off+1])
		if data[off+2] != 'd' {
			break
		}
		parentInode := le32(data[off+3 : off+7])

		nameLen := dataSize - 5
		if nameLen < 0 || off+7+nameLen+1 > len(data) {
			break
		}
		name := append([]byte{}, data[off+7:off+7+nameLen]...)
		off += 7 + nameLen

		inodeType := data[off]
		off++

		item := &DatabaseItem{
			Name:        name,
			ParentInode: parentInode,
			InodeType:   inodeType,
		}

		switch inodeType {
		case 'i':
			if off+4 > len(data) {
				return nil, ErrCorruptStructure
			}
			item.Inode = le32(data[off : off+4])
			item.HasInode = true
			off += 4

		case 'n':
			if off+2 > len(data) || inodeSize < 3 {
				return nil, ErrCorruptStructure
			}
			mode := le16(data[off : off+2])
			dlen := inodeSize - 3
			if off+2+dlen > len(data) {
				return nil, ErrCorruptStructure
			}
			item.Inline = &InlineData{
				Mode: mode,
				Data: append([]byte{}, data[off+2:off+2+dlen]...),
			}
			off += 2 + dlen

		case 'N':
			if off+8 > len(data) || inodeSize < 9 {
				return nil, ErrCorruptStructure
			}
			mode := le16(data[off : off+2])
			gid := le16(data[off+2 : off+4])
			ctime := le32(data[off+4 : off+8])
			dlen := inodeSize - 9
			if off+8+dlen > len(data) {
				return nil, ErrCorruptStructure
			}
			item.Inline = &InlineData{
				IsLong:      true,
				Mode:        mode,
				GroupID:     gid,
				CreatedTime: time.Unix(int64(ctime), 0),
				Data:        append([]byte{}, data[off+8:off+8+dlen]...),
			}
			off += 8 + dlen

		case 's':
			dlen := inodeSize - 1
			if dlen < 0 || off+dlen > len(data) {
				return nil, ErrCorruptStructure
			}
			item.SymlinkPath = append([]byte{}, data[off:off+dlen]...)
			off += dlen

		case 'L':
			dlen := inodeSize - 1
			if dlen < 0 || off+dlen > len(data) {
				return nil, ErrCorruptStructure
			}
			item.LongName = append([]byte{}, data[off:off+dlen]...)
			off += dlen
		}

		items = append(items, item)
	}

	return items, nil
}

// Lookup finds name within dir (a parent inode number), honoring the
// synthetic "." (empty stored name) and ".." (stored as a single NUL
// byte) conventions.
func (d *Database) Lookup(dir uint32, name string) *DatabaseItem {
	for _, n := range d.nodes[dir] {
		switch {
		case name == "." && len(n.Name) == 0:
			return n
		case name == ".." && len(n.Name) == 1 && n.Name[0] == 0:
			return n
		case name == d.encoding(n.Name):
			return n
		}
	}
	return nil
}

// List returns every entry under dir (a parent inode number).
func (d *Database) List(dir uint32) []*DatabaseItem {
	return d.nodes[dir]
}
