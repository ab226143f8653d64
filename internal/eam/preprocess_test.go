package eam

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"skyking, skyking. do not answer!", "SKYKING SKYKING DO NOT ANSWER"},
		{"time one five", "TIME 1 5"},
		{"niner fife tree fower", "9 5 3 4"},
		{"  spaced   out  ", "SPACED OUT"},
		{"A1B2C 3D4E5", "A1B2C 3D4E5"},
		{"", ""},
		{"...", ""},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCollapseBody(t *testing.T) {
	if got := collapseBody("A1B2C  D3E4F\tG5H6I"); got != "A1B2C D3E4F G5H6I" {
		t.Errorf("collapseBody = %q", got)
	}
}

func TestGroupRegularity(t *testing.T) {
	tests := []struct {
		body string
		min  float64
		max  float64
	}{
		{"ABCDE FGHIJ KLMNO PQRST", 1.0, 1.0},
		{"ABCDE FGHIJ KL", 0.6, 0.7},
		{"", 0, 0},
		{"A BB CCC", 0.3, 0.35},
	}

	for _, tt := range tests {
		got := groupRegularity(tt.body)
		if got < tt.min || got > tt.max {
			t.Errorf("groupRegularity(%q) = %v, want in [%v, %v]", tt.body, got, tt.min, tt.max)
		}
	}
}
