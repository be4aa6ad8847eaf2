// Package enc carries the small, stateless helpers the stream layer's
// callers tend to need when decoding binary file formats: byte-order
// conversion between the host and a fixed endianness, and transcoding
// between UTF-8 and the legacy encodings found in old archive formats.
package enc

import (
	"encoding/binary"
	"math/bits"
	"unicode/utf16"
	"unicode/utf8"
)

var hostLittleEndian = func() bool {
	var probe [2]byte
	binary.NativeEndian.PutUint16(probe[:], 1)
	return probe[0] == 1
}()

// SwapLE16 converts between host byte order and little-endian. On a
// little-endian host it is the identity; the conversion is its own
// inverse either way.
func SwapLE16(v uint16) uint16 {
	if hostLittleEndian {
		return v
	}
	return bits.ReverseBytes16(v)
}

func SwapLE32(v uint32) uint32 {
	if hostLittleEndian {
		return v
	}
	return bits.ReverseBytes32(v)
}

func SwapLE64(v uint64) uint64 {
	if hostLittleEndian {
		return v
	}
	return bits.ReverseBytes64(v)
}

// SwapBE16 converts between host byte order and big-endian.
func SwapBE16(v uint16) uint16 {
	if hostLittleEndian {
		return bits.ReverseBytes16(v)
	}
	return v
}

func SwapBE32(v uint32) uint32 {
	if hostLittleEndian {
		return bits.ReverseBytes32(v)
	}
	return v
}

func SwapBE64(v uint64) uint64 {
	if hostLittleEndian {
		return bits.ReverseBytes64(v)
	}
	return v
}

// UTF8FromLatin1 decodes an ISO 8859-1 byte string into UTF-8.
func UTF8FromLatin1(src []byte) string {
	buf := make([]byte, 0, len(src))
	for _, b := range src {
		buf = utf8.AppendRune(buf, rune(b))
	}
	return string(buf)
}

// UTF8FromUCS2 decodes a UTF-16/UCS-2 code unit sequence into UTF-8.
func UTF8FromUCS2(src []uint16) string {
	return string(utf16.Decode(src))
}

// UTF8ToUCS2 encodes a UTF-8 string as UTF-16/UCS-2 code units.
// Characters outside the BMP become surrogate pairs.
func UTF8ToUCS2(src string) []uint16 {
	return utf16.Encode([]rune(src))
}

// UTF8FromUCS4 decodes a sequence of Unicode code points into UTF-8.
func UTF8FromUCS4(src []uint32) string {
	runes := make([]rune, len(src))
	for i, c := range src {
		runes[i] = rune(c)
	}
	return string(runes)
}

// UTF8ToUCS4 expands a UTF-8 string into Unicode code points.
func UTF8ToUCS4(src string) []uint32 {
	runes := []rune(src)
	out := make([]uint32, len(runes))
	for i, r := range runes {
		out[i] = uint32(r)
	}
	return out
}
