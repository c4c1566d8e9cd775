package efs2

import (
	"bytes"
	"testing"
)

func page128(seed byte) []byte {
	data := make([]byte, 128)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return data
}

func TestHamming20RoundTrip(t *testing.T) {
	data := page128(0x11)
	h := NewEccHamming20()

	ecc := h.Encode(data)
	if len(ecc) != 3 {
		t.Fatalf("Encode produced %d ECC bytes, want 3 for one 128-byte block", len(ecc))
	}

	fixed, err := h.Decode(data, ecc)
	if err != nil {
		t.Fatalf("Decode of an unmodified block returned an error: %v", err)
	}
	if !bytes.Equal(fixed, data) {
		t.Errorf("Decode changed data that had no corruption")
	}
}

func TestHamming20CorrectsSingleBitError(t *testing.T) {
	data := page128(0x42)
	h := NewEccHamming20()
	ecc := h.Encode(data)

	corrupt := make([]byte, len(data))
	copy(corrupt, data)
	corrupt[10] ^= 0x04 // flip one bit

	fixed, err := h.Decode(corrupt, ecc)
	if err != nil {
		t.Fatalf("Decode failed to correct a single-bit error: %v", err)
	}
	if !bytes.Equal(fixed, data) {
		t.Errorf("Decode did not recover the original block after a single-bit flip")
	}
}

func TestHamming20BitpackRoundTrip(t *testing.T) {
	data := page128(0x05)
	h := NewEccHamming20Bitpack()

	ecc := h.Encode(data)
	if len(ecc) != 10 {
		t.Fatalf("bitpacked Encode produced %d bytes, want 10", len(ecc))
	}

	fixed, err := h.Decode(data, ecc)
	if err != nil {
		t.Fatalf("Decode of an unmodified bitpacked block returned an error: %v", err)
	}
	if !bytes.Equal(fixed, data) {
		t.Errorf("bitpacked Decode changed data that had no corruption")
	}
}

func TestBitpackECCRoundTrip(t *testing.T) {
	ecc := []byte{0x3f, 0xaa, 0x15, 0x00, 0xff, 0x2a, 0x10, 0x80, 0x01, 0x3f, 0x55, 0x2a}
	packed := bitpackECC(ecc)
	if len(packed) != 10 {
		t.Fatalf("bitpackECC produced %d bytes, want 10", len(packed))
	}
	unpacked := bitunpackECC(packed)
	if !bytes.Equal(unpacked, ecc) {
		t.Errorf("bitunpackECC(bitpackECC(ecc)) = %v, want %v", unpacked, ecc)
	}
}

func TestEccRSRoundTrip(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i * 7)
	}

	rs := NewEccRS()
	ecc := rs.Encode(data)
	if len(ecc) != rs.Size() {
		t.Fatalf("Encode produced %d ECC bytes, want %d", len(ecc), rs.Size())
	}

	fixed, err := rs.Decode(data, ecc)
	if err != nil {
		t.Fatalf("Decode of an unmodified buffer returned an error: %v", err)
	}
	if !bytes.Equal(fixed, data) {
		t.Errorf("Decode changed data that had no corruption")
	}
}

func TestEccRSCorrectsByteError(t *testing.T) {
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i*3 + 1)
	}

	rs := NewEccRS()
	ecc := rs.Encode(data)

	corrupt := make([]byte, len(data))
	copy(corrupt, data)
	corrupt[100] ^= 0xff

	fixed, err := rs.Decode(corrupt, ecc)
	if err != nil {
		t.Fatalf("Decode failed to correct a single corrupted byte: %v", err)
	}
	if !bytes.Equal(fixed, data) {
		t.Errorf("Decode did not recover the original buffer after one byte was corrupted")
	}
}

func TestGFArithmeticIdentities(t *testing.T) {
	for x := 1; x < 20; x++ {
		if got := gfMul(x, 1); got != x {
			t.Errorf("gfMul(%d, 1) = %d, want %d", x, got, x)
		}
		if got := gfDiv(x, x); got != 1 {
			t.Errorf("gfDiv(%d, %d) = %d, want 1", x, x, got)
		}
		inv := gfInverse(x)
		if got := gfMul(x, inv); got != 1 {
			t.Errorf("gfMul(%d, gfInverse(%d)) = %d, want 1", x, x, got)
		}
	}
}

func TestRS10BitPackRoundTrip(t *testing.T) {
	symbols := make([]int, 8)
	for i := range symbols {
		symbols[i] = (i * 97) % 1024
	}
	bytesOut := rs10BitToBytes(symbols)
	if len(bytesOut) != 10 {
		t.Fatalf("rs10BitToBytes produced %d bytes, want 10", len(bytesOut))
	}
	back := rsBytesTo10Bit(bytesOut)
	if len(back) != len(symbols) {
		t.Fatalf("rsBytesTo10Bit returned %d symbols, want %d", len(back), len(symbols))
	}
	for i := range symbols {
		if back[i] != symbols[i] {
			t.Errorf("symbol %d round-tripped to %d, want %d", i, back[i], symbols[i])
		}
	}
}
