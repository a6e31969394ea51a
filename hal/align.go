package hal

import "unsafe"

// addr returns the address of the first element of b's backing array.
func addr(b []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

// AlignPad returns the number of padding bytes (0 to PullAlign-1) needed
// after b[:off] so that the next byte starts on a PullAlign boundary.
func AlignPad(b []byte, off int) int {
	return int((PullAlign - (addr(b)+uintptr(off))%PullAlign) % PullAlign)
}

// Aligned reports whether b starts on a PullAlign boundary.
func Aligned(b []byte) bool {
	return addr(b)%PullAlign == 0
}
