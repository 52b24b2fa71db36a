// Package hash implements R_HashString, the case-insensitive string hash used
// throughout fast-file asset names and string-table cell lookups.
package hash

// String computes R_HashString(s, seed): h starts at seed, and each byte is
// folded in lower-cased (bit 0x20 forces ASCII letters to lower case; it is a
// no-op for digits and most punctuation).
//
// String("", 5381) == 5381 and String("hello", 0) == 0x07285842.
func String(s string, seed uint32) uint32 {
	h := seed
	for i := 0; i < len(s); i++ {
		h = 33*h ^ uint32(s[i]|0x20)
	}
	return h
}
