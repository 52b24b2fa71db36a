package hash

import "testing"

func TestString(t *testing.T) {
	for _, tt := range []struct {
		s    string
		seed uint32
		want uint32
	}{
		// Id 0 (empty script string) must hash back to its own seed: the
		// recurrence never executes its body for an empty input.
		{s: "", seed: 5381, want: 5381},
		{s: "", seed: 0, want: 0},
		{s: "hello", seed: 0, want: 0x07285842},
		// case-insensitivity: bit 0x20 is forced on every byte before folding.
		{s: "HELLO", seed: 0, want: 0x07285842},
	} {
		if got := String(tt.s, tt.seed); got != tt.want {
			t.Errorf("String(%q, %#x) = %#x, want %#x", tt.s, tt.seed, got, tt.want)
		}
	}
}
