package efs2

import "io"

// PageLog abstracts the in-memory overlay built by replaying a flash
// image's journal (NAND) or scanning its reverse-pointer tail (NOR).
// A fallback of -1 means "no override recorded"; callers fall back to
// the superblock's static page tables.
type PageLog interface {
	UpperData() []uint32
	PtableIndex(index uint32, fallback int64) int64
	RtableIndex(index uint32, fallback int64) int64
	PtableNode(level int, index uint32, fallback int64) int64
	RtableNode(level int, index uint32, fallback int64) int64
}

// PageManager translates between logical clusters and physical flash
// pages, reading through the log overlay where present.
type PageManager interface {
	ComputePtables() error
	GetForward(cluster uint32) (uint32, error)
	GetReverse(page uint32) (uint32, error)
	ForwardToOffset(cluster uint32) (int64, error)
	ForwardSeek(cluster uint32, offsetFromCluster int) error
	SetLog(log PageLog)
}

// pmBase holds the fields shared by the NAND and NOR page managers.
type pmBase struct {
	Super      *Superblock
	File       io.ReadSeeker
	BaseOffset int64
	log        PageLog
}

func (p *pmBase) SetLog(log PageLog) { p.log = log }
