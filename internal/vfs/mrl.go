package vfs

import (
	"fmt"
	"strings"
)

// MRL handling. Every MRL persisted to the database is percent-encoded with
// this one canonical encoder so that stored forms compare bit-for-bit.
// Only RFC 3986 unreserved characters and '/' pass through.

const upperhex = "0123456789ABCDEF"

func isUnreserved(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// EncodePath percent-encodes a raw (decoded) filesystem path for storage.
// Encoding is applied blindly: a literal '%' in a filename becomes %25, so
// a file named "Track%41.mp3" keeps its identity instead of being guessed
// at. Callers must not feed an already-encoded value back in; stored forms
// are read back through DecodePath, which makes encode(decode(mrl)) == mrl
// for everything in the database.
func EncodePath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if isUnreserved(c) || c == '/' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0xf])
	}
	return b.String()
}

// DecodePath reverses EncodePath. Malformed escapes are an error.
func DecodePath(path string) (string, error) {
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(path) {
			return "", fmt.Errorf("truncated percent escape in %q", path)
		}
		hi, ok1 := unhex(path[i+1])
		lo, ok2 := unhex(path[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("invalid percent escape %q in %q", path[i:i+3], path)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// ToMRL converts an absolute local path to a file:// MRL with the path
// portion encoded.
func ToMRL(absPath string) string {
	return "file://" + EncodePath(absPath)
}

// SplitMRL splits an MRL into scheme and encoded path.
func SplitMRL(mrl string) (scheme, path string, err error) {
	idx := strings.Index(mrl, "://")
	if idx < 0 {
		return "", "", fmt.Errorf("not an MRL: %q", mrl)
	}
	return mrl[:idx], mrl[idx+3:], nil
}

// FromMRL converts a file:// MRL back to a decoded local path.
func FromMRL(mrl string) (string, error) {
	scheme, enc, err := SplitMRL(mrl)
	if err != nil {
		return "", err
	}
	if scheme != "file" {
		return "", fmt.Errorf("unsupported scheme %q", scheme)
	}
	return DecodePath(enc)
}
