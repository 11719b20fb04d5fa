package mpath

import (
	"strings"
	"unicode/utf8"
)

// surrogateLow is the first codepoint in the lone-low-surrogate range used to
// tunnel a single raw byte >= 0x80 that could not be decoded as part of a
// valid UTF-8 sequence. Mirrors Python's errors='surrogateescape' handler:
// byte b maps to U+DC80 + (b - 0x80).
const surrogateLow = 0xDC80

// replacementPlaceholder is substituted for a tunneled byte when producing a
// display string. Never use display() output for filesystem access.
const replacementPlaceholder = utf8.RuneError

// encodeSurrogate manually emits the 3-byte form a valid UTF-8 encoder would
// use for a code point in 0x800..0xFFFF. utf8.EncodeRune refuses surrogates
// (correctly, for real text), so lone surrogates used as tunnels are written
// by hand here.
func encodeSurrogate(dst []byte, r rune) int {
	dst[0] = 0xE0 | byte(r>>12)
	dst[1] = 0x80 | byte((r>>6)&0x3F)
	dst[2] = 0x80 | byte(r&0x3F)
	return 3
}

// decodeSurrogate reports whether the 3 bytes starting at s form a tunneled
// lone low surrogate, and if so returns the raw byte it encodes.
func decodeSurrogate(s string) (b byte, ok bool) {
	if len(s) < 3 {
		return 0, false
	}
	if s[0] != 0xED {
		return 0, false
	}
	b1, b2 := s[1], s[2]
	if b1 < 0x80 || b1 > 0xBF || b2 < 0x80 || b2 > 0xBF {
		return 0, false
	}
	r := rune(s[0]&0x0F)<<12 | rune(b1&0x3F)<<6 | rune(b2&0x3F)
	if r < surrogateLow || r > 0xDCFF {
		return 0, false
	}
	return byte(r - surrogateLow + 0x80), true
}

// BytesToString converts raw filesystem bytes to a Go string, tunneling any
// byte that is not part of a valid UTF-8 sequence through a lone low
// surrogate (U+DC80..U+DCFF) so the original bytes survive a round trip.
// This is the Go analogue of os.fsdecode(..., errors='surrogateescape').
func BytesToString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	var sb strings.Builder
	sb.Grow(len(b) + len(b)/2)
	buf := make([]byte, 3)
	i := 0
	for i < len(b) {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			n := encodeSurrogate(buf, surrogateLow+rune(b[i])-0x80)
			sb.Write(buf[:n])
			i++
			continue
		}
		sb.Write(b[i : i+size])
		i += size
	}
	return sb.String()
}

// StringToBytes converts a string produced by BytesToString (or any plain
// UTF-8 string) back to the exact original raw bytes, re-emitting tunneled
// surrogates as the byte they represent.
func StringToBytes(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if b, ok := decodeSurrogate(s[i:]); ok {
			out = append(out, b)
			i += 3
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size <= 1 {
			out = append(out, s[i])
			i++
			continue
		}
		out = append(out, s[i:i+size]...)
		i += size
	}
	return out
}

// Display returns a lossy, safe-for-logs rendering of s: every tunneled
// surrogate is replaced with U+FFFD. Never use the result for filesystem
// access — information is destroyed, not reversed.
func Display(s string) string {
	var sb strings.Builder
	hasSurrogate := false
	for i := 0; i < len(s); {
		if _, ok := decodeSurrogate(s[i:]); ok {
			hasSurrogate = true
			sb.WriteRune(replacementPlaceholder)
			i += 3
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		sb.WriteRune(r)
		i += size
	}
	if !hasSurrogate {
		return s
	}
	return sb.String()
}
