package efs2

import "testing"

func TestIsDirAndIsSymlink(t *testing.T) {
	if !isDir(modeDir | 0755) {
		t.Errorf("isDir should recognize the directory mode bits")
	}
	if isDir(modeLnk | 0777) {
		t.Errorf("isDir should not match a symlink mode")
	}
	if !isSymlink(modeLnk | 0777) {
		t.Errorf("isSymlink should recognize the symlink mode bits")
	}
	if isSymlink(modeDir | 0755) {
		t.Errorf("isSymlink should not match a directory mode")
	}
}

func TestLatin1EncodesByteForByte(t *testing.T) {
	got := latin1([]byte{0x41, 0xe9, 0x00})
	want := string([]rune{0x41, 0xe9, 0x00})
	if got != want {
		t.Errorf("latin1(...) = %q, want %q", got, want)
	}
}

func TestFormatNameAppendsSlashForDirectories(t *testing.T) {
	f := &FileInfo{Name: "etc", Mode: modeDir}
	if got := formatName(f); got != "etc/" {
		t.Errorf("formatName(dir) = %q, want %q", got, "etc/")
	}
}

func TestFormatNameSkipsDotEntries(t *testing.T) {
	for _, name := range []string{".", ".."} {
		f := &FileInfo{Name: name, Mode: modeDir}
		if got := formatName(f); got != name {
			t.Errorf("formatName(%q) = %q, want %q unmodified", name, got, name)
		}
	}
}

func TestFormatNameLeavesRegularFilesAlone(t *testing.T) {
	f := &FileInfo{Name: "modem.bin", Mode: modeFreg}
	if got := formatName(f); got != "modem.bin" {
		t.Errorf("formatName(file) = %q, want %q", got, "modem.bin")
	}
}

func TestComputeEFS2SizePicksHighestAge(t *testing.T) {
	data := make([]byte, 0x8000)
	copy(data, buildNORSuperblockPage(0x0001, 1, 0x800, 0x200, 4))
	copy(data[0x4000:], buildNORSuperblockPage(0x0001, 5, 0x800, 0x200, 8))

	size, err := ComputeEFS2Size(data)
	if err != nil {
		t.Fatalf("ComputeEFS2Size returned an error: %v", err)
	}

	want := int64(0x800*8) * int64(0x200)
	if size != want {
		t.Errorf("ComputeEFS2Size = %#x, want %#x (the higher-age candidate)", size, want)
	}
}

func TestComputeEFS2SizeNoCandidates(t *testing.T) {
	if _, err := ComputeEFS2Size(make([]byte, 0x1000)); err != ErrNoSuperblock {
		t.Errorf("ComputeEFS2Size over a blank buffer returned %v, want ErrNoSuperblock", err)
	}
}

func TestFileInfoID(t *testing.T) {
	f := &FileInfo{id: 42}
	if f.ID() != 42 {
		t.Errorf("ID() = %d, want 42", f.ID())
	}
}
