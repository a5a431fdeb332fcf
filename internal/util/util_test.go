package util

import "testing"

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "(unset)"},
		{"ab", "..."},
		{"abc", "a...c"},
		{"abcde", "ab...de"},
		{"sk-0123456789", "sk-0...6789"},
	}
	for _, tc := range cases {
		if got := MaskSecret(tc.in); got != tc.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
