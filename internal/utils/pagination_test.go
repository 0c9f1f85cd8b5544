package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		// empty -> default
		{"", 10, 10},
		// valid ints
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		// invalid -> default (no trim)
		{"x", 5, 5},
		{" 42", 7, 7},
		// overflow -> default
		{"999999999999999999999999", -1, -1},
	}

	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestClampPageSize(t *testing.T) {
	cases := []struct {
		n, def, max int
		want        int
	}{
		{0, 20, 100, 20},   // non-positive -> default
		{-5, 20, 100, 20},  // negative -> default
		{50, 20, 100, 50},  // in range
		{500, 20, 100, 100}, // above max -> max
		{0, 0, 100, 1},     // degenerate default -> floor of 1
	}
	for _, tc := range cases {
		if got := ClampPageSize(tc.n, tc.def, tc.max); got != tc.want {
			t.Fatalf("ClampPageSize(%d, %d, %d) = %d; want %d", tc.n, tc.def, tc.max, got, tc.want)
		}
	}
}

func TestPageOffset(t *testing.T) {
	cases := []struct {
		page, size int
		want       int
	}{
		{1, 20, 0},
		{3, 20, 40},
		{0, 20, 0},  // below 1 -> first page
		{-2, 20, 0}, // below 1 -> first page
	}
	for _, tc := range cases {
		if got := PageOffset(tc.page, tc.size); got != tc.want {
			t.Fatalf("PageOffset(%d, %d) = %d; want %d", tc.page, tc.size, got, tc.want)
		}
	}
}
