package efs2

import "fmt"

// UpdateTableType identifies which in-memory overlay table a
// TableUpdateEvent applies to.
type UpdateTableType int

const (
	UpdateTablePtableIndex UpdateTableType = iota
	UpdateTableRtableIndex
	UpdateTablePtableMeta
	UpdateTableRtableMeta
	UpdateTableUpperData
	UpdateTableLogAlloc
)

func (t UpdateTableType) String() string {
	switch t {
	case UpdateTablePtableIndex:
		return "PTABLE_INDEX"
	case UpdateTableRtableIndex:
		return "RTABLE_INDEX"
	case UpdateTablePtableMeta:
		return "PTABLE_META"
	case UpdateTableRtableMeta:
		return "RTABLE_META"
	case UpdateTableUpperData:
		return "UPPER_DATA"
	case UpdateTableLogAlloc:
		return "LOG_ALLOC"
	}
	return "UNKNOWN"
}

// TableUpdateEvent is one page-table mutation replayed from a NAND log
// record.
type TableUpdateEvent struct {
	Type  UpdateTableType
	Level int
	Index uint32
	Value uint32
}

func (e TableUpdateEvent) String() string {
	if e.Type == UpdateTableLogAlloc {
		return fmt.Sprintf("<update_event type=%s page=0x%08x>", e.Type, e.Index)
	}
	if e.Type&2 != 0 {
		return fmt.Sprintf("<update_event type=%s level=%d index=0x%08x value=0x%08x>", e.Type, e.Level, e.Index, e.Value)
	}
	return fmt.Sprintf("<update_event type=%s index=0x%08x value=0x%08x>", e.Type, e.Index, e.Value)
}

// DoVerifyLog checks whether buf holds a well-formed, CRC-verified log
// page. A page of all 0xFF bytes is a never-written (erased) page, not
// a corrupt one, and is rejected silently.
func DoVerifyLog(buf []byte, logIndex int) bool {
	allFF := true
	for _, b := range buf {
		if b != 0xff {
			allFF = false
			break
		}
	}
	if allFF {
		return false
	}

	logOffs := 8

	for logOffs < len(buf) {
		switch buf[logOffs] {
		case 0xfe:
			if logOffs+2 < len(buf) {
				crc := le16(buf[logOffs+1 : logOffs+3])
				if crc == CRC16(buf[8:logOffs+1]) {
					return true
				}
			}
			return false

		case 0xfd:
			if logOffs+3 < len(buf) {
				passNull := true
				for i := logOffs + 3; i < len(buf); i++ {
					if buf[i] != 0x00 {
						passNull = false
						break
					}
				}
				if passNull {
					crc := le16(buf[logOffs+1 : logOffs+3])
					body := append(append([]byte{}, buf[:4]...), buf[8:logOffs+1]...)
					if crc == CRC16(body) {
						return true
					}
				}
			}
			return false
		}

		nargs := int(buf[logOffs] >> 6)
		logOffs += 1 + 4*nargs
	}

	return false
}

// DoParseLog replays the opcode stream of a verified log page into a
// list of page-table update events. Ops 4/5/11 mask their PTABLE_INDEX
// index argument with 0xffffff; op 13 deliberately does not (the
// reference firmware's GC-deallocation record stores a raw cluster
// index there, not a reverse-pointer-style value) -- preserved here.
func DoParseLog(buf []byte, sb *Superblock, logIndex int) []TableUpdateEvent {
	var events []TableUpdateEvent

	if !DoVerifyLog(buf, logIndex) {
		return events
	}

	logOffs := 8

	for logOffs < len(buf) {
		if buf[logOffs] == 0xfd || buf[logOffs] == 0xfe {
			break
		}

		nargs := int(buf[logOffs] >> 6)
		op := buf[logOffs] & 0x3f
		argsOffset := logOffs + 1

		args := make([]uint32, nargs)
		for x := 0; x < nargs; x++ {
			args[x] = le32(buf[argsOffset+x*4 : argsOffset+x*4+4])
		}

		switch op {
		case 4, 11: // page move / GC move
			events = append(events,
				TableUpdateEvent{UpdateTableRtableIndex, 0, args[1], 0xfffffff4},
				TableUpdateEvent{UpdateTableRtableIndex, 0, args[2], args[0]},
				TableUpdateEvent{UpdateTablePtableIndex, 0, args[0] & 0xffffff, args[2]},
			)

		case 5: // new data
			events = append(events,
				TableUpdateEvent{UpdateTableRtableIndex, 0, args[1], args[0]},
				TableUpdateEvent{UpdateTablePtableIndex, 0, args[0] & 0xffffff, args[1]},
			)

		case 6: // page table move
			events = append(events,
				TableUpdateEvent{UpdateTableRtableIndex, 0, args[1], 0xfffffff4},
				TableUpdateEvent{UpdateTableRtableIndex, 0, args[2], args[0]},
			)

			isReverse := (args[0]>>29)&1 != 0
			level := int(sb.PageDepth) - int((args[0]>>26)&7)
			shifts := sb.DepthShifts()
			var shiftForLevel int
			if level >= 0 && level < len(shifts) {
				shiftForLevel = shifts[level]
			}
			index := (args[0] & 0x3ffffff) << 6 >> uint(shiftForLevel)

			kind := UpdateTablePtableMeta
			if isReverse {
				kind = UpdateTableRtableMeta
			}
			events = append(events, TableUpdateEvent{kind, level, index, args[2]})

		case 7: // update upper data
			events = append(events, TableUpdateEvent{UpdateTableUpperData, 0, args[0], args[1]})

		case 13: // GC dealloc -- args[0] is NOT masked with 0xffffff, unlike ops 4/5/11.
			events = append(events,
				TableUpdateEvent{UpdateTableRtableIndex, 0, args[1], 0xfffffff4},
				TableUpdateEvent{UpdateTablePtableIndex, 0, args[0], 0xffffffff},
			)

		case 14: // garbage
			events = append(events, TableUpdateEvent{UpdateTableRtableIndex, 0, args[0], 0xfffffff4})

		case 17: // log alloc
			events = append(events, TableUpdateEvent{UpdateTableLogAlloc, 0, args[0], 0})
		}

		logOffs += 1 + 4*nargs
	}

	return events
}
