package phone

import (
	"errors"
	"testing"
)

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+49 30 901820", "+4930901820"},
		{"030 901820", "+4930901820"},
		{"  +1 650-253-0000 ", "+16502530000"},
	}
	for _, tc := range cases {
		got, err := NormalizeE164(tc.in, "")
		if err != nil {
			t.Fatalf("NormalizeE164(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeE164(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeE164_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "+49 1"} {
		if _, err := NormalizeE164(in, ""); !errors.Is(err, ErrInvalidNumber) {
			t.Fatalf("NormalizeE164(%q) expected ErrInvalidNumber, got %v", in, err)
		}
	}
}
