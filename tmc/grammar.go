package tmc

import "bytes"

// hasPrefix reports whether b starts with keyword.
func hasPrefix(b []byte, keyword string) bool {
	return len(b) >= len(keyword) && string(b[:len(keyword)]) == keyword
}

// skipThrough returns the offset just past the first c in b.
func skipThrough(b []byte, c byte) (int, bool) {
	i := bytes.IndexByte(b, c)
	if i < 0 {
		return 0, false
	}
	return i + 1, true
}

// scanUint parses leading decimal digits of b. It returns the number of
// digits consumed, or 0 if there are none or the value overflows.
func scanUint(b []byte) (uint32, int) {
	var v uint64
	n := 0
	for n < len(b) && b[n] >= '0' && b[n] <= '9' {
		v = v*10 + uint64(b[n]-'0')
		if v > 1<<32-1 {
			return 0, 0
		}
		n++
	}
	return uint32(v), n
}

// argValue parses "...#<n>". Anything after the digits is ignored.
func argValue(b []byte) (uint32, bool) {
	i, ok := skipThrough(b, '#')
	if !ok {
		return 0, false
	}
	v, n := scanUint(b[i:])
	return v, n > 0
}

// argBlock parses "...#<n>#<payload>". The payload is everything after the
// second '#'.
func argBlock(b []byte) (uint32, []byte, bool) {
	i, ok := skipThrough(b, '#')
	if !ok {
		return 0, nil, false
	}
	v, n := scanUint(b[i:])
	if n == 0 {
		return 0, nil, false
	}
	i += n
	if i >= len(b) || b[i] != '#' {
		return 0, nil, false
	}
	return v, b[i+1:], true
}
