package efs2

import "testing"

func TestLE32(t *testing.T) {
	got := le32([]byte{0x78, 0x56, 0x34, 0x12})
	if got != 0x12345678 {
		t.Errorf("le32 = %#x, want 0x12345678", got)
	}
}

func TestLE16(t *testing.T) {
	got := le16([]byte{0xcd, 0xab})
	if got != 0xabcd {
		t.Errorf("le16 = %#x, want 0xabcd", got)
	}
}

func TestIlog2(t *testing.T) {
	cases := map[int]int{
		1:    0,
		2:    1,
		4:    2,
		1024: 10,
		2048: 11,
	}
	for in, want := range cases {
		if got := ilog2(in); got != want {
			t.Errorf("ilog2(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestActualVersion(t *testing.T) {
	if got := actualVersion(0x0a23); got != 0x23 {
		t.Errorf("actualVersion(0x0a23) = %#x, want 0x23", got)
	}
}
