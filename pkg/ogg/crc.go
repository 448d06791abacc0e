package ogg

import "hash/crc32"

// Checksum computes a page checksum over the serialized page with its
// CRC field zeroed.
type Checksum func(page []byte) uint32

// ChecksumIEEE is the reflected CRC-32 (polynomial 0xEDB88320, LSB first)
// with the usual pre and post inversion.
func ChecksumIEEE(page []byte) uint32 {
	return crc32.ChecksumIEEE(page)
}

var oggTable = func() (t [256]uint32) {
	for i := range t {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

// ChecksumRFC3533 is the checksum libogg verifies: polynomial 0x04C11DB7,
// MSB first, zero initial value, no final inversion.
func ChecksumRFC3533(page []byte) uint32 {
	var crc uint32
	for _, b := range page {
		crc = crc<<8 ^ oggTable[byte(crc>>24)^b]
	}
	return crc
}
