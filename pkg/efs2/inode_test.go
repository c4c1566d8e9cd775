package efs2

import (
	"bytes"
	"testing"
)

// buildNORImageWithThreeClusters lays out a minimal NOR flash image
// (writing style 0) with three one-page clusters, each owning its own
// block's reserved rtable page. Cluster N (1-indexed, 0 is reserved as
// the "freed" sentinel by the reverse-lookup encoding) lives at
// physical page 2*N-2, with its reverse pointer recorded in page
// 2*N-1.
func buildNORImageWithThreeClusters(pages [3][]byte) ([]byte, *Superblock) {
	const pageSize = 64

	sb := &Superblock{
		BlockSize:  2,
		PageSize:   pageSize,
		BlockCount: 3,
		PageTotal:  6,
		IsNAND:     false,
	}

	buf := make([]byte, 6*pageSize)
	for i, data := range pages {
		dataPage := 2 * i
		reservedPage := 2*i + 1

		copy(buf[dataPage*pageSize:], data)

		reserved := buf[reservedPage*pageSize : (reservedPage+1)*pageSize]
		cluster := uint32(i + 1)
		reserved[0] = byte(cluster)
		reserved[1] = byte(cluster >> 8)
		reserved[2] = byte(cluster >> 16)
		reserved[3] = byte(cluster >> 24)
		copy(reserved[4:8], []byte{0xe1, 0xe1, 0xf0, 0xf0})
	}

	return buf, sb
}

func newTestNORPM(t *testing.T) (*NORPM, *Superblock) {
	t.Helper()

	pageA := bytes.Repeat([]byte("A"), 64)
	pageB := bytes.Repeat([]byte("B"), 64)
	pageC := bytes.Repeat([]byte("C"), 64)

	image, sb := buildNORImageWithThreeClusters([3][]byte{pageA, pageB, pageC})

	file := newByteReadSeeker(image)
	pm := NewNORPM(sb, file, 0)
	if err := pm.ComputePtables(); err != nil {
		t.Fatalf("ComputePtables returned an error: %v", err)
	}
	return pm, sb
}

func TestNORPMForwardReverseRoundTrip(t *testing.T) {
	pm, _ := newTestNORPM(t)

	for cluster, wantPage := range map[uint32]uint32{1: 0, 2: 2, 3: 4} {
		page, err := pm.GetForward(cluster)
		if err != nil {
			t.Fatalf("GetForward(%d) returned an error: %v", cluster, err)
		}
		if page != wantPage {
			t.Errorf("GetForward(%d) = %d, want %d", cluster, page, wantPage)
		}

		back, err := pm.GetReverse(wantPage)
		if err != nil {
			t.Fatalf("GetReverse(%d) returned an error: %v", wantPage, err)
		}
		if back != cluster {
			t.Errorf("GetReverse(%d) = %d, want %d", wantPage, back, cluster)
		}
	}
}

func newTestINode(pm PageManager, fileSize uint32) *INode {
	n := &INode{
		Mode:       modeFreg,
		FileSize:   fileSize,
		pm:         pm,
		tableCount: 64 / 4,
	}
	n.DirectClusters[0] = 1
	n.DirectClusters[1] = 2
	n.DirectClusters[2] = 3
	for i := range n.IndirectClusters {
		n.IndirectClusters[i] = 0xffffffff
	}
	return n
}

func TestINodeReaderReadsAcrossPageBoundary(t *testing.T) {
	pm, _ := newTestNORPM(t)
	inode := newTestINode(pm, 100)

	r, err := NewINodeReader(inode)
	if err != nil {
		t.Fatalf("NewINodeReader returned an error: %v", err)
	}

	got := make([]byte, 100)
	n, err := r.Read(got)
	if err != nil {
		t.Fatalf("Read returned an error: %v", err)
	}
	if n != 100 {
		t.Fatalf("Read returned %d bytes, want 100", n)
	}

	want := append(bytes.Repeat([]byte("A"), 64), bytes.Repeat([]byte("B"), 36)...)
	if !bytes.Equal(got, want) {
		t.Errorf("Read crossed the page boundary incorrectly")
	}
}

func TestINodeReaderSeekSet(t *testing.T) {
	pm, _ := newTestNORPM(t)
	inode := newTestINode(pm, 192)

	r, err := NewINodeReader(inode)
	if err != nil {
		t.Fatalf("NewINodeReader returned an error: %v", err)
	}

	if _, err := r.Seek(70, SeekSet); err != nil {
		t.Fatalf("Seek returned an error: %v", err)
	}

	got := make([]byte, 5)
	n, err := r.Read(got)
	if err != nil {
		t.Fatalf("Read after Seek returned an error: %v", err)
	}
	if n != 5 || !bytes.Equal(got, []byte("BBBBB")) {
		t.Errorf("Read after Seek(70) = %q, want %q", got[:n], "BBBBB")
	}
}

func TestINodeReaderSeekCurAndEnd(t *testing.T) {
	pm, _ := newTestNORPM(t)
	inode := newTestINode(pm, 192)

	r, err := NewINodeReader(inode)
	if err != nil {
		t.Fatalf("NewINodeReader returned an error: %v", err)
	}

	if _, err := r.Seek(10, SeekSet); err != nil {
		t.Fatalf("Seek(SeekSet) returned an error: %v", err)
	}
	if pos, err := r.Seek(5, SeekCur); err != nil || pos != 15 {
		t.Errorf("Seek(5, SeekCur) = (%d, %v), want (15, nil)", pos, err)
	}

	if pos, err := r.Seek(4, SeekEnd); err != nil || pos != 188 {
		t.Errorf("Seek(4, SeekEnd) = (%d, %v), want (188, nil)", pos, err)
	}

	if _, err := r.Seek(0, SeekEnd); err == nil {
		t.Errorf("Seek(0, SeekEnd) should be rejected")
	}
}

func TestINodeReaderCloseEndsReads(t *testing.T) {
	pm, _ := newTestNORPM(t)
	inode := newTestINode(pm, 64)

	r, err := NewINodeReader(inode)
	if err != nil {
		t.Fatalf("NewINodeReader returned an error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close returned an error: %v", err)
	}

	buf := make([]byte, 10)
	if n, err := r.Read(buf); n != 0 || err == nil {
		t.Errorf("Read after Close = (%d, %v), want (0, an error)", n, err)
	}
}

func TestNewINodeReaderRejectsNonRegularFile(t *testing.T) {
	inode := &INode{Mode: modeFmt /* directory-ish bits, not modeFreg */}
	if _, err := NewINodeReader(inode); err == nil {
		t.Errorf("NewINodeReader should reject a non-regular-file mode")
	}
}
