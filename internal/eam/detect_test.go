package eam

import (
	"testing"

	"skysignal/internal/signal"
)

func TestSkykingDetector(t *testing.T) {
	d := skykingDetector{}

	text := Normalize("SKYKING SKYKING do not answer BLUEBALL time 25 authentication GX")
	if !d.QuickCheck(text) {
		t.Fatal("QuickCheck should pass")
	}
	det := d.Detect(text)
	if det == nil {
		t.Fatal("expected detection")
	}
	if det.Type != signal.EAMTypeSkyking {
		t.Errorf("Type = %v", det.Type)
	}
	if det.Codeword != "BLUEBALL" {
		t.Errorf("Codeword = %q", det.Codeword)
	}
	if det.TimeCode != "25" {
		t.Errorf("TimeCode = %q", det.TimeCode)
	}
	if det.Authentication != "GX" {
		t.Errorf("Authentication = %q", det.Authentication)
	}
	if !det.HeaderRepeated {
		t.Error("skyking broadcasts complete in one transmission")
	}
}

func TestSkykingDetectorRejectsPartial(t *testing.T) {
	d := skykingDetector{}

	for _, text := range []string{
		"SKYKING BLUEBALL TIME 25",          // no authentication
		"SKYKING BLUEBALL AUTHENTICATION GX", // no time
		"SOME OTHER TRAFFIC",
	} {
		norm := Normalize(text)
		if d.QuickCheck(norm) {
			if det := d.Detect(norm); det != nil {
				t.Errorf("Detect(%q) should be nil, got %+v", text, det)
			}
		}
	}
}

func TestEAMDetector(t *testing.T) {
	d := eamDetector{}

	text := Normalize("All stations this is F4K2M standby. F4K2M ABCDE FGHIJ KLMNO PQRST UVWXY F4K2M")
	if !d.QuickCheck(text) {
		t.Fatal("QuickCheck should pass")
	}
	det := d.Detect(text)
	if det == nil {
		t.Fatal("expected detection")
	}
	if det.Type != signal.EAMTypeEAM {
		t.Errorf("Type = %v", det.Type)
	}
	if det.Header != "F4K2M" {
		t.Errorf("Header = %q", det.Header)
	}
	if !det.HeaderRepeated {
		t.Error("header re-announced, should be terminated")
	}
	if det.HeaderScore != 40 {
		t.Errorf("HeaderScore = %v, want 40", det.HeaderScore)
	}
}

func TestEAMDetectorOpenEnded(t *testing.T) {
	d := eamDetector{}

	// Single announcement: the draft stays open for more segments.
	text := Normalize("Message follows G7Q1Z ABCDE FGHIJ")
	det := d.Detect(text)
	if det == nil {
		t.Fatal("expected detection")
	}
	if det.HeaderRepeated {
		t.Error("single announcement must not terminate")
	}
	if det.HeaderScore != 30 {
		t.Errorf("HeaderScore = %v, want 30", det.HeaderScore)
	}
}

func TestRegistryPriority(t *testing.T) {
	r := NewRegistry()

	// A SKYKING broadcast also containing EAM-ish words must resolve
	// as SKYKING (lower priority number runs first).
	text := Normalize("SKYKING SKYKING do not answer SNOWCAP time 07 authentication KL")
	det := r.Detect(text)
	if det == nil || det.Type != signal.EAMTypeSkyking {
		t.Fatalf("Detect = %+v, want SKYKING", det)
	}

	if r.Detect("NOTHING INTERESTING HERE") != nil {
		t.Error("unrelated traffic must not match")
	}
}
