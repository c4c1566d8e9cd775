package efs2

import (
	"bytes"
	"fmt"
	"io"
)

// nandLog replays a NAND flash image's circular journal into four
// overlay tables (ptable_index, rtable_index, ptable_node,
// rtable_node) plus an upper_data override array.
type nandLog struct {
	overrideUpperData  []uint32
	overridePtableIdx  map[uint32]uint32
	overrideRtableIdx  map[uint32]uint32
	overridePtableNode map[int]map[uint32]uint32
	overrideRtableNode map[int]map[uint32]uint32
}

// NewNANDLog scans for the end of the log (first erased page, or the
// wraparound point), replays every verified entry in order, and
// returns the resulting overlay.
//
// The reference firmware has a quirk when the scan ends on page index
// 1 of a block other than the superblock's own block: the log end is
// backed off by one page. This is retained unmodified, not
// "fixed", since it reflects how the real device's log-scan behaves
// and later readers must agree with it.
func NewNANDLog(sb *Superblock, file io.ReadSeeker, baseOffset int64, sbStartPage uint32) (PageLog, error) {
	l := &nandLog{
		overrideUpperData:  append([]uint32{}, sb.UpperData...),
		overridePtableIdx:  map[uint32]uint32{},
		overrideRtableIdx:  map[uint32]uint32{},
		overridePtableNode: map[int]map[uint32]uint32{},
		overrideRtableNode: map[int]map[uint32]uint32{},
	}

	logUppermost := sb.Regions[RegionSuperLogStart] * sb.BlockSize
	logLowermost := sb.Regions[RegionSuperLogEnd] * sb.BlockSize

	logStart := sb.LogHead
	logEnd := logStart

	if _, err := file.Seek(baseOffset+int64(logStart)*int64(sb.PageSize), io.SeekStart); err != nil {
		return nil, err
	}

	blank := bytes.Repeat([]byte{0xff}, int(sb.PageSize))

	for {
		page := make([]byte, sb.PageSize)
		if _, err := io.ReadFull(file, page); err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		if bytes.Equal(page, blank) {
			break
		}

		logEnd++

		if logEnd >= logLowermost {
			if _, err := file.Seek(baseOffset+int64(logUppermost)*int64(sb.PageSize), io.SeekStart); err != nil {
				return nil, err
			}
			logEnd = logUppermost
		} else if logEnd == sb.LogHead {
			return nil, fmt.Errorf("efs2: cannot find free log space")
		}
	}

	blockShift := ilog2(int(sb.BlockSize))
	blockMask := uint32(1)<<uint(blockShift) - 1

	logEndBlock := logEnd >> uint(blockShift)
	logEndPage := logEnd & blockMask

	if logEndBlock != sbStartPage>>uint(blockShift) && logEndPage == 1 {
		logEnd--
	}

	logIndex := logStart
	var prevLogSeq *uint32

	for logIndex != logEnd {
		if logIndex&blockMask != 0 {
			if _, err := file.Seek(baseOffset+int64(logIndex)*int64(sb.PageSize), io.SeekStart); err != nil {
				return nil, err
			}

			buf := make([]byte, sb.PageSize)
			if _, err := io.ReadFull(file, buf); err != nil && err != io.ErrUnexpectedEOF {
				return nil, err
			}

			logSeq := le32(buf[:4])
			if logSeq != 0xffffffff {
				if prevLogSeq != nil && logSeq != 1 && logSeq-1 != *prevLogSeq {
					return nil, ErrLogSequenceBroken
				}
				prevLogSeq = &logSeq

				for _, ev := range DoParseLog(buf, sb, int(logIndex)) {
					switch ev.Type {
					case UpdateTablePtableIndex:
						l.overridePtableIdx[ev.Index] = ev.Value
					case UpdateTableRtableIndex:
						l.overrideRtableIdx[ev.Index] = ev.Value
					case UpdateTablePtableMeta:
						if l.overridePtableNode[ev.Level] == nil {
							l.overridePtableNode[ev.Level] = map[uint32]uint32{}
						}
						l.overridePtableNode[ev.Level][ev.Index] = ev.Value
					case UpdateTableRtableMeta:
						if l.overrideRtableNode[ev.Level] == nil {
							l.overrideRtableNode[ev.Level] = map[uint32]uint32{}
						}
						l.overrideRtableNode[ev.Level][ev.Index] = ev.Value
					case UpdateTableUpperData:
						if int(ev.Index) < len(l.overrideUpperData) {
							l.overrideUpperData[ev.Index] = ev.Value
						}
					}
				}
			}
		}

		logIndex++
		if logIndex >= logLowermost {
			logIndex = logUppermost
		}
	}

	return l, nil
}

func (l *nandLog) UpperData() []uint32 { return l.overrideUpperData }

func (l *nandLog) PtableIndex(index uint32, fallback int64) int64 {
	if v, ok := l.overridePtableIdx[index]; ok {
		return int64(v)
	}
	return fallback
}

func (l *nandLog) RtableIndex(index uint32, fallback int64) int64 {
	if v, ok := l.overrideRtableIdx[index]; ok {
		return int64(v)
	}
	return fallback
}

func (l *nandLog) PtableNode(level int, index uint32, fallback int64) int64 {
	if m, ok := l.overridePtableNode[level]; ok {
		if v, ok := m[index]; ok {
			return int64(v)
		}
	}
	return fallback
}

func (l *nandLog) RtableNode(level int, index uint32, fallback int64) int64 {
	if m, ok := l.overrideRtableNode[level]; ok {
		if v, ok := m[index]; ok {
			return int64(v)
		}
	}
	return fallback
}

// NANDPM is the NAND page manager: a multi-level indirect page table
// rooted at Superblock.Ptables/Rtables, overridden by the log overlay.
type NANDPM struct {
	pmBase
}

// NewNANDPM constructs a NAND page manager. The log overlay is
// attached separately via SetLog once NewNANDLog has replayed it.
func NewNANDPM(sb *Superblock, file io.ReadSeeker, baseOffset int64) *NANDPM {
	return &NANDPM{pmBase{Super: sb, File: file, BaseOffset: baseOffset}}
}

func (p *NANDPM) ComputePtables() error { return nil }

func (p *NANDPM) recurseNodes(curNode uint32, depth int, nodenum uint32, tableType int) (uint32, error) {
	masks := p.Super.DepthMasks()
	shifts := p.Super.DepthShifts()
	nodeOffset := (nodenum & masks[depth]) >> uint(shifts[depth])

	if _, err := p.File.Seek(p.BaseOffset+int64(p.Super.PageSize)*int64(curNode)+4*int64(nodeOffset), io.SeekStart); err != nil {
		return 0, err
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(p.File, buf); err != nil {
		return 0, err
	}
	node := le32(buf)

	if p.log != nil {
		levelIndex := nodenum >> uint(shifts[depth])
		if tableType == 0 {
			node = uint32(p.log.PtableNode(depth, levelIndex, int64(node)))
		} else {
			node = uint32(p.log.RtableNode(depth, levelIndex, int64(node)))
		}
	}

	if depth > 0 {
		if node >= p.Super.PageTotal {
			return node, nil
		}
		return p.recurseNodes(node, depth-1, nodenum, tableType)
	}

	return node, nil
}

func (p *NANDPM) GetForward(cluster uint32) (uint32, error) {
	if p.log != nil {
		if v := p.log.PtableIndex(cluster, -1); v != -1 {
			return uint32(v), nil
		}
	}

	depth := int(p.Super.PageDepth)

	if depth == 1 {
		failover := p.Super.Ptables[cluster]
		if p.log != nil {
			return uint32(p.log.PtableNode(0, cluster, int64(failover))), nil
		}
		return failover, nil
	}

	shifts := p.Super.DepthShifts()
	ptStart := cluster >> uint(shifts[depth-1])
	failover := p.Super.Ptables[ptStart]

	start := failover
	if p.log != nil {
		start = uint32(p.log.PtableNode(depth-1, ptStart, int64(failover)))
	}

	return p.recurseNodes(start, depth-2, cluster, 0)
}

func (p *NANDPM) GetReverse(page uint32) (uint32, error) {
	var temp uint32

	if p.log != nil {
		if v := p.log.RtableIndex(page, -1); v != -1 {
			temp = uint32(v)
			if temp>>31 == 0 {
				temp &= 0xffffff
			}
			return temp, nil
		}
	}

	depth := int(p.Super.PageDepth)

	if depth == 1 {
		failover := p.Super.Rtables[page]
		if p.log != nil {
			temp = uint32(p.log.RtableNode(0, page, int64(failover)))
		} else {
			temp = failover
		}
	} else {
		shifts := p.Super.DepthShifts()
		ptStart := page >> uint(shifts[depth-1])
		failover := p.Super.Rtables[ptStart]

		start := failover
		if p.log != nil {
			start = uint32(p.log.RtableNode(depth-1, ptStart, int64(failover)))
		}

		v, err := p.recurseNodes(start, depth-2, page, 1)
		if err != nil {
			return 0, err
		}
		temp = v
	}

	if temp>>31 == 0 {
		temp &= 0xffffff
	}
	return temp, nil
}

func (p *NANDPM) ForwardToOffset(cluster uint32) (int64, error) {
	page, err := p.GetForward(cluster)
	if err != nil {
		return 0, err
	}
	return int64(page) * int64(p.Super.PageSize), nil
}

func (p *NANDPM) ForwardSeek(cluster uint32, offsetFromCluster int) error {
	off, err := p.ForwardToOffset(cluster)
	if err != nil {
		return err
	}
	_, err = p.File.Seek(p.BaseOffset+off+int64(offsetFromCluster%int(p.Super.PageSize)), io.SeekStart)
	return err
}
