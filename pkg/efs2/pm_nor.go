package efs2

import (
	"bytes"
	"fmt"
	"io"
)

const (
	rvErased     = 0xfffffff1
	rvFreed      = 0xfffffff4
	rvLogAllocd  = 0xfffffff8
	rvReservedAr = 0xfffffff9
)

// norLog scans a NOR flash image's reverse-pointer log tail and
// replays it into an rtable_index overlay. Unlike NAND, NOR has no
// forward page table at all -- reverse lookups are primary.
type norLog struct {
	sb         *Superblock
	fio        io.ReadSeeker
	baseOffset int64
	pm         *NORPM

	overrideRtableIdx map[uint32]uint32
	overrideUpperData []uint32
}

// NewNORLog builds a norLog and runs an initial scan. Callers should
// call DoScan again whenever it signals reload (a log-alloc record
// pointed at a page this pass hadn't yet classified).
func NewNORLog(sb *Superblock, fio io.ReadSeeker, baseOffset int64, pm *NORPM) (*norLog, bool, error) {
	l := &norLog{
		sb:                sb,
		fio:               fio,
		baseOffset:        baseOffset,
		pm:                pm,
		overrideRtableIdx: map[uint32]uint32{},
		overrideUpperData: append([]uint32{}, sb.UpperData...),
	}
	reload, err := l.DoScan()
	return l, reload, err
}

func (l *norLog) readPage(page uint32) ([]byte, error) {
	if _, err := l.fio.Seek(l.baseOffset+int64(page)*int64(l.sb.PageSize), io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, l.sb.PageSize)
	if _, err := io.ReadFull(l.fio, buf); err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf, nil
}

func (l *norLog) reverseOrOverride(page uint32) (uint32, error) {
	if v, ok := l.overrideRtableIdx[page]; ok {
		return v, nil
	}
	return l.pm.GetReverse(page)
}

// DoScan performs one pass of the two-phase NOR log scan: first
// locating candidate log pages by their reverse-table state, then
// replaying the sequence-ordered chain starting at the superblock's
// log_head. Returns true if a LOG_ALLOC record pointed at a page that
// needed reclassifying, signalling the caller should rescan.
func (l *norLog) DoScan() (bool, error) {
	reload := false
	var logPages []uint32

	headBuf, err := l.readPage(l.sb.LogHead)
	if err != nil {
		return false, err
	}

	var start, end uint32
	noLog := false
	if DoVerifyLog(headBuf, int(l.sb.LogHead)) {
		start = le32(headBuf[:4])
		end = start
	} else {
		noLog = true
		start = 0
		end = 0
	}

	blank := bytes.Repeat([]byte{0xff}, int(l.sb.PageSize))

	for page := uint32(0); page < l.sb.PageTotal; page++ {
		state, err := l.reverseOrOverride(page)
		if err != nil {
			return false, err
		}
		if state != rvLogAllocd {
			continue
		}

		buf, err := l.readPage(page)
		if err != nil {
			return false, err
		}

		valid := DoVerifyLog(buf, int(page))
		logToUse := false

		if bytes.Equal(buf, blank) {
			logToUse = true
		} else if !noLog && le32(buf[:4]) >= start && valid {
			logToUse = true
		}

		if logToUse {
			logPages = append(logPages, page)
		}

		if valid && le32(buf[:4]) != 0xffffffff && le32(buf[:4]) >= end {
			end = le32(buf[:4])
		}
	}

	var headIdx uint32
	foundLog := false
	for i, p := range logPages {
		if p == l.sb.LogHead {
			headIdx = uint32(i)
			foundLog = true
			break
		}
	}

	if !foundLog {
		return false, fmt.Errorf("efs2: log head page not found in candidate log pages")
	}

	cur := headIdx
	endIdx := headIdx
	var prevLogSeq *uint32

	for {
		buf, err := l.readPage(logPages[cur])
		if err != nil {
			return false, err
		}

		logSeq := le32(buf[:4])

		if logSeq != 0xffffffff {
			if prevLogSeq != nil && logSeq != 1 && logSeq-1 != *prevLogSeq {
				return false, ErrLogSequenceBroken
			}
			prevLogSeq = &logSeq

			if DoVerifyLog(buf, int(logPages[cur])) {
				checkHeader := le32(buf[4:8])

				for _, f := range DoParseLog(buf, l.sb, int(logPages[cur])) {
					switch f.Type {
					case UpdateTableRtableIndex:
						if checkHeader == 0xffffffff {
							l.overrideRtableIdx[f.Index] = f.Value
						}

					case UpdateTableUpperData:
						if int(f.Index) < len(l.overrideUpperData) {
							l.overrideUpperData[f.Index] = f.Value
						}

					case UpdateTableLogAlloc:
						state, err := l.reverseOrOverride(f.Index)
						if err != nil {
							return false, err
						}

						if state != rvLogAllocd && state != rvFreed {
							foundAmongLogs := false
							for _, p := range logPages {
								if p == f.Index {
									foundAmongLogs = true
									break
								}
							}

							if foundAmongLogs {
								reload = true
								l.overrideRtableIdx[f.Index] = rvLogAllocd
							} else {
								pbuf, err := l.readPage(f.Index)
								if err != nil {
									return false, err
								}
								if bytes.Equal(pbuf, blank) {
									l.overrideRtableIdx[f.Index] = rvLogAllocd
								} else {
									l.overrideRtableIdx[f.Index] = rvFreed
								}
							}
						}
					}
				}
			}
		}

		cur++
		if cur == uint32(len(logPages)) {
			cur = 0
		}
		if cur == endIdx {
			break
		}
	}

	return reload, nil
}

func (l *norLog) UpperData() []uint32 { return l.overrideUpperData }

func (l *norLog) PtableIndex(index uint32, fallback int64) int64 { return fallback }

func (l *norLog) RtableIndex(index uint32, fallback int64) int64 {
	if v, ok := l.overrideRtableIdx[index]; ok {
		return int64(v)
	}
	return fallback
}

func (l *norLog) PtableNode(level int, index uint32, fallback int64) int64 { return fallback }
func (l *norLog) RtableNode(level int, index uint32, fallback int64) int64 { return fallback }

// NORPM is the NOR page manager. NOR volumes keep no on-flash forward
// table: get_forward is served entirely from a computed in-memory
// ptables array built by ComputePtables, and get_reverse re-derives
// each page's owning cluster from the per-block reserved tail region.
type NORPM struct {
	pmBase

	writeStyle      uint16
	minorMask       uint32
	majorShift      uint32
	reservedOffset  uint32
	ptables         []uint32
}

// NewNORPM constructs a NOR page manager, precomputing the per-block
// reserved-region geometry from the superblock's writing style.
func NewNORPM(sb *Superblock, file io.ReadSeeker, baseOffset int64) *NORPM {
	p := &NORPM{
		pmBase:     pmBase{Super: sb, File: file, BaseOffset: baseOffset},
		writeStyle: sb.NorWritingStyle,
	}

	fieldShift := uint32(2)
	if p.writeStyle != 0 {
		fieldShift = 3
	}
	fieldSize := sb.PageSize >> fieldShift

	p.minorMask = fieldSize - 1

	temp := p.minorMask
	p.majorShift = 0
	for temp != 0 {
		temp >>= 1
		p.majorShift++
	}

	p.reservedOffset = sb.BlockSize - ((sb.BlockSize + p.minorMask) >> p.majorShift)

	p.ptables = make([]uint32, sb.PageTotal)
	for i := range p.ptables {
		p.ptables[i] = 0xffffffff
	}

	return p
}

func getPairedBits(paired uint32) uint32 {
	paired = ((paired & 0x44444444) >> 1) | (paired & 0x11111111)
	paired = ((paired & 0x30303030) >> 2) | (paired & 0x03030303)
	paired = ((paired & 0x0f000f00) >> 4) | (paired & 0x000f000f)
	paired = ((paired & 0x00ff0000) >> 8) | (paired & 0x000000ff)
	return paired
}

// ComputePtables derives the forward table by inverting every page's
// reverse pointer. Two distinct pages reverse-mapping to the same
// cluster indicates flash corruption or a scan bug, not a condition
// to paper over -- it is reported as ErrDuplicatePage.
func (p *NORPM) ComputePtables() error {
	for page := uint32(0); page < p.Super.PageTotal; page++ {
		cluster, err := p.GetReverse(page)
		if err != nil {
			return err
		}
		if cluster>>31 == 0 {
			if p.ptables[cluster] != 0xffffffff {
				return ErrDuplicatePage
			}
			p.ptables[cluster] = page
		}
	}
	return nil
}

func (p *NORPM) GetForward(cluster uint32) (uint32, error) {
	return p.ptables[cluster], nil
}

func (p *NORPM) GetReverse(page uint32) (uint32, error) {
	if p.log != nil {
		if v := p.log.RtableIndex(page, -1); v != -1 {
			temp := uint32(v)
			switch temp {
			case 0:
				return rvFreed, nil
			case 0xffffffff:
				return rvErased, nil
			default:
				if temp>>31 == 0 {
					temp &= 0xffffff
				}
				return temp, nil
			}
		}
	}

	blockMask := p.Super.BlockMask()
	currentBlock := page & blockMask
	currentOffset := page & ^blockMask
	lastOffset := p.Super.BlockSize - 1

	if currentOffset >= p.reservedOffset {
		return rvReservedAr, nil
	}

	currentMajor := p.reservedOffset + (currentOffset >> p.majorShift)
	currentMinor := currentOffset & p.minorMask

	lastMajor := p.reservedOffset + (lastOffset >> p.majorShift)
	lastMinor := lastOffset & p.minorMask

	var temp uint32

	if p.writeStyle == 0 {
		headerCheckOffset := int64(currentBlock+lastMajor)*int64(p.Super.PageSize) + int64(lastMinor)*4
		curRtableOffset := int64(currentBlock+currentMajor)*int64(p.Super.PageSize) + int64(currentMinor)*4

		if _, err := p.File.Seek(p.BaseOffset+headerCheckOffset, io.SeekStart); err != nil {
			return 0, err
		}
		hdr := make([]byte, 4)
		if _, err := io.ReadFull(p.File, hdr); err != nil {
			return 0, err
		}
		if !bytes.Equal(hdr, []byte{0xe1, 0xe1, 0xf0, 0xf0}) {
			return rvFreed, nil
		}

		if _, err := p.File.Seek(p.BaseOffset+curRtableOffset, io.SeekStart); err != nil {
			return 0, err
		}
		v := make([]byte, 4)
		if _, err := io.ReadFull(p.File, v); err != nil {
			return 0, err
		}
		temp = le32(v)

	} else {
		headerCheckOffset := int64(currentBlock+lastMajor)*int64(p.Super.PageSize) + int64(2*lastMinor)*4
		curRtableOffset := int64(currentBlock+currentMajor)*int64(p.Super.PageSize) + int64(2*currentMinor)*4

		if _, err := p.File.Seek(p.BaseOffset+headerCheckOffset, io.SeekStart); err != nil {
			return 0, err
		}
		hdr := make([]byte, 8)
		if _, err := io.ReadFull(p.File, hdr); err != nil {
			return 0, err
		}
		if !bytes.Equal(hdr, []byte{0x03, 0xfc, 0x03, 0xfc, 0x00, 0xff, 0x00, 0xff}) {
			return rvFreed, nil
		}

		if _, err := p.File.Seek(p.BaseOffset+curRtableOffset, io.SeekStart); err != nil {
			return 0, err
		}
		v1 := make([]byte, 4)
		if _, err := io.ReadFull(p.File, v1); err != nil {
			return 0, err
		}
		v2 := make([]byte, 4)
		if _, err := io.ReadFull(p.File, v2); err != nil {
			return 0, err
		}
		t1 := getPairedBits(le32(v1))
		t2 := getPairedBits(le32(v2))
		temp = t2<<16 | t1
	}

	switch temp {
	case 0:
		return rvFreed, nil
	case 0xffffffff:
		return rvErased, nil
	default:
		if temp>>31 == 0 {
			temp &= 0xffffff
		}
		return temp, nil
	}
}

func (p *NORPM) ForwardToOffset(cluster uint32) (int64, error) {
	page, err := p.GetForward(cluster)
	if err != nil {
		return 0, err
	}
	return int64(page) * int64(p.Super.PageSize), nil
}

func (p *NORPM) ForwardSeek(cluster uint32, offsetFromCluster int) error {
	off, err := p.ForwardToOffset(cluster)
	if err != nil {
		return err
	}
	_, err = p.File.Seek(p.BaseOffset+off+int64(offsetFromCluster%int(p.Super.PageSize)), io.SeekStart)
	return err
}
