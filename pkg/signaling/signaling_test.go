package signaling

import "testing"

func TestCalcLocalPathEnding(t *testing.T) {
	cases := []struct {
		data1 string
		want  string
	}{
		{"xxxxxxxxxx1A2B3C4D5E", "01234"},
		{"xxxxxxxxxxJAJAJAJAJA", "00000"},
		{"xxxxxxxxxxAJAJAJAJAJ", "99999"},
	}
	for _, tc := range cases {
		got := calcLocalPathEnding(tc.data1)
		if got != tc.want {
			t.Errorf("calcLocalPathEnding(%q) = %q, want %q", tc.data1, got, tc.want)
		}
	}
}
