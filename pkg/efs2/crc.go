package efs2

// CRC30 and CRC16 are both bespoke checksum variants used by EFS2: a
// 30-bit CRC for the superblock and a reflected CRC-16 (poly 0x1021,
// init 0, final XOR 0xffff) for log records. Neither matches a stdlib
// or ecosystem checksum, so both are table-driven by hand here; see
// DESIGN.md for why no third-party CRC package could serve.

// crc30Table is the literal lookup table used by Qualcomm's boot ROM
// CRC-30 routine.
var crc30Table = [256]uint32{
	0x00000000, 0x2030b9c7, 0x2051ca49, 0x0061738e,
	0x20932d55, 0x00a39492, 0x00c2e71c, 0x20f25edb,
	0x2116e36d, 0x01265aaa, 0x01472924, 0x217790e3,
	0x0185ce38, 0x21b577ff, 0x21d40471, 0x01e4bdb6,
	0x221d7f1d, 0x022dc6da, 0x024cb554, 0x227c0c93,
	0x028e5248, 0x22beeb8f, 0x22df9801, 0x02ef21c6,
	0x030b9c70, 0x233b25b7, 0x235a5639, 0x036aeffe,
	0x2398b125, 0x03a808e2, 0x03c97b6c, 0x23f9c2ab,
	0x240a47fd, 0x043afe3a, 0x045b8db4, 0x246b3473,
	0x04996aa8, 0x24a9d36f, 0x24c8a0e1, 0x04f81926,
	0x051ca490, 0x252c1d57, 0x254d6ed9, 0x057dd71e,
	0x258f89c5, 0x05bf3002, 0x05de438c, 0x25eefa4b,
	0x061738e0, 0x26278127, 0x2646f2a9, 0x06764b6e,
	0x268415b5, 0x06b4ac72, 0x06d5dffc, 0x26e5663b,
	0x2701db8d, 0x0731624a, 0x075011c4, 0x2760a803,
	0x0792f6d8, 0x27a24f1f, 0x27c33c91, 0x07f38556,
	0x2824363d, 0x08148ffa, 0x0875fc74, 0x284545b3,
	0x08b71b68, 0x2887a2af, 0x28e6d121, 0x08d668e6,
	0x0932d550, 0x29026c97, 0x29631f19, 0x0953a6de,
	0x29a1f805, 0x099141c2, 0x09f0324c, 0x29c08b8b,
	0x0a394920, 0x2a09f0e7, 0x2a688369, 0x0a583aae,
	0x2aaa6475, 0x0a9addb2, 0x0afbae3c, 0x2acb17fb,
	0x2b2faa4d, 0x0b1f138a, 0x0b7e6004, 0x2b4ed9c3,
	0x0bbc8718, 0x2b8c3edf, 0x2bed4d51, 0x0bddf496,
	0x0c2e71c0, 0x2c1ec807, 0x2c7fbb89, 0x0c4f024e,
	0x2cbd5c95, 0x0c8de552, 0x0cec96dc, 0x2cdc2f1b,
	0x2d3892ad, 0x0d082b6a, 0x0d6958e4, 0x2d59e123,
	0x0dabbff8, 0x2d9b063f, 0x2dfa75b1, 0x0dcacc76,
	0x2e330edd, 0x0e03b71a, 0x0e62c494, 0x2e527d53,
	0x0ea02388, 0x2e909a4f, 0x2ef1e9c1, 0x0ec15006,
	0x0f25edb0, 0x2f155477, 0x2f7427f9, 0x0f449e3e,
	0x2fb6c0e5, 0x0f867922, 0x0fe70aac, 0x2fd7b36b,
	0x3078d5bd, 0x10486c7a, 0x10291ff4, 0x3019a633,
	0x10ebf8e8, 0x30db412f, 0x30ba32a1, 0x108a8b66,
	0x116e36d0, 0x315e8f17, 0x313ffc99, 0x110f455e,
	0x31fd1b85, 0x11cda242, 0x11acd1cc, 0x319c680b,
	0x1265aaa0, 0x32551367, 0x323460e9, 0x1204d92e,
	0x32f687f5, 0x12c63e32, 0x12a74dbc, 0x3297f47b,
	0x337349cd, 0x1343f00a, 0x13228384, 0x33123a43,
	0x13e06498, 0x33d0dd5f, 0x33b1aed1, 0x13811716,
	0x14729240, 0x34422b87, 0x34235809, 0x1413e1ce,
	0x34e1bf15, 0x14d106d2, 0x14b0755c, 0x3480cc9b,
	0x3564712d, 0x1554c8ea, 0x1535bb64, 0x350502a3,
	0x15f75c78, 0x35c7e5bf, 0x35a69631, 0x15962ff6,
	0x366fed5d, 0x165f549a, 0x163e2714, 0x360e9ed3,
	0x16fcc008, 0x36cc79cf, 0x36ad0a41, 0x169db386,
	0x17790e30, 0x3749b7f7, 0x3728c479, 0x17187dbe,
	0x37ea2365, 0x17da9aa2, 0x17bbe92c, 0x378b50eb,
	0x185ce380, 0x386c5a47, 0x380d29c9, 0x183d900e,
	0x38cfced5, 0x18ff7712, 0x189e049c, 0x38aebd5b,
	0x394a00ed, 0x197ab92a, 0x191bcaa4, 0x392b7363,
	0x19d92db8, 0x39e9947f, 0x3988e7f1, 0x19b85e36,
	0x3a419c9d, 0x1a71255a, 0x1a1056d4, 0x3a20ef13,
	0x1ad2b1c8, 0x3ae2080f, 0x3a837b81, 0x1ab3c246,
	0x1b577ff0, 0x3b67c637, 0x3b06b5b9, 0x1b360c7e,
	0x3bc452a5, 0x1bf4eb62, 0x1b9598ec, 0x3ba5212b,
	0x3c56a47d, 0x1c661dba, 0x1c076e34, 0x3c37d7f3,
	0x1cc58928, 0x3cf530ef, 0x3c944361, 0x1ca4faa6,
	0x1d404710, 0x3d70fed7, 0x3d118d59, 0x1d21349e,
	0x3dd36a45, 0x1de3d382, 0x1d82a00c, 0x3db219cb,
	0x1e4bdb60, 0x3e7b62a7, 0x3e1a1129, 0x1e2aa8ee,
	0x3ed8f635, 0x1ee84ff2, 0x1e893c7c, 0x3eb985bb,
	0x3f5d380d, 0x1f6d81ca, 0x1f0cf244, 0x3f3c4b83,
	0x1fce1558, 0x3ffeac9f, 0x3f9fdf11, 0x1faf66d6,
}

// ComputeCRC30 implements the superblock checksum, folding every byte
// of buf into a 30-bit running register. The source routine's loop
// steps its length counter by 8 per byte consumed, which looks like a
// byte/bit mismatch in isolation; traced against its actual caller
// (which hands it an 8x-oversized slice) the two cancel out and it
// processes exactly len(buf)/8 real bytes once each, same as here. The
// superblock checksum covers exactly PageSize-4 bytes, so callers must
// pass that slice, not a larger read buffer.
func ComputeCRC30(buf []byte) uint32 {
	crc30 := uint32(0x3FFFFFFF)
	for _, b := range buf {
		crc30 = crc30Table[(crc30>>22^uint32(b))&0xff] ^ (crc30 << 8)
	}
	return (^crc30) & 0x3FFFFFFF
}

// crc16Table is generated once from the reflected CRC-16 algorithm
// (poly 0x1021) that the log checksum is built from.
var crc16Table = genCRC16Table(0x1021)

func genCRC16Table(poly uint16) [256]uint16 {
	var table [256]uint16
	// Reflect the polynomial once; crcmod's rev=True variant processes
	// both input bytes and the final register bit-reversed, which is
	// equivalent to running the algorithm against the bit-reversed
	// polynomial without ever reversing the data itself.
	rpoly := reverseBits16(poly)
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for b := 0; b < 8; b++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ rpoly
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	return table
}

func reverseBits16(v uint16) uint16 {
	var r uint16
	for i := 0; i < 16; i++ {
		r = (r << 1) | (v & 1)
		v >>= 1
	}
	return r
}

// CRC16 is EFS_CRC from the reference implementation: a reflected
// CRC-16 over poly 0x1021 with a zero initial register and a final
// XOR of 0xffff. It checksums log record bodies.
func CRC16(buf []byte) uint16 {
	crc := uint16(0)
	for _, b := range buf {
		crc = (crc >> 8) ^ crc16Table[byte(crc)^b]
	}
	return crc ^ 0xffff
}
