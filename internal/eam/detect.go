package eam

import (
	"regexp"
	"sort"
	"strings"

	"skysignal/internal/signal"
)

// Detection is a positive envelope match on a normalized segment.
type Detection struct {
	Type   signal.EAMType
	Header string
	Body   string

	// HeaderRepeated is set when the segment itself carries the
	// terminating re-announcement of the header.
	HeaderRepeated bool

	// SKYKING fields.
	Codeword       string
	TimeCode       string
	Authentication string

	// HeaderScore is the 0..40 header-recognition contribution.
	HeaderScore float64
}

// Detector recognizes one message envelope format. Detectors run in
// Priority order after a cheap QuickCheck.
type Detector interface {
	Name() string
	// QuickCheck is a fast substring test; false means definitely skip.
	QuickCheck(text string) bool
	// Priority orders detectors; lower runs first.
	Priority() int
	// Detect parses a normalized segment; nil means no match.
	Detect(text string) *Detection
}

// Registry holds detectors sorted by priority.
type Registry struct {
	detectors []Detector
}

// NewRegistry builds a registry preloaded with the built-in detectors.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(&skykingDetector{})
	r.Register(&eamDetector{})
	return r
}

// Register adds a detector, keeping priority order.
func (r *Registry) Register(d Detector) {
	r.detectors = append(r.detectors, d)
	sort.SliceStable(r.detectors, func(i, j int) bool {
		return r.detectors[i].Priority() < r.detectors[j].Priority()
	})
}

// Detect runs the first matching detector against a normalized segment.
func (r *Registry) Detect(text string) *Detection {
	for _, d := range r.detectors {
		if !d.QuickCheck(text) {
			continue
		}
		if det := d.Detect(text); det != nil {
			return det
		}
	}
	return nil
}

// skykingDetector matches the SKYKING foxtrot broadcast shape:
// SKYKING <codeword> TIME <2 digits> AUTHENTICATION <2 chars>.
type skykingDetector struct{}

var skykingRe = regexp.MustCompile(
	`SKYKING(?: SKYKING)?(?: DO NOT ANSWER)? ([A-Z0-9]+) TIME (\d{2}) AUTHENTICATION ([A-Z0-9]{2})\b`)

func (skykingDetector) Name() string              { return "skyking" }
func (skykingDetector) Priority() int             { return 10 }
func (skykingDetector) QuickCheck(text string) bool { return strings.Contains(text, "SKYKING") }

func (skykingDetector) Detect(text string) *Detection {
	m := skykingRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &Detection{
		Type:           signal.EAMTypeSkyking,
		Header:         "SKYKING",
		Body:           m[0],
		HeaderRepeated: true, // single-transmission format
		Codeword:       m[1],
		TimeCode:       m[2],
		Authentication: m[3],
		HeaderScore:    40,
	}
}

// eamDetector matches the EAM shape: a known preamble, a header group,
// then a body of fixed-length character blocks, optionally terminated
// by a re-announcement of the header.
type eamDetector struct{}

// eamPreambles are the announcement phrases that open an EAM broadcast.
var eamPreambles = []string{
	"ALL STATIONS THIS IS",
	"ANY STATION THIS NET",
	"STAND BY MESSAGE FOLLOWS",
	"MESSAGE FOLLOWS",
	"THIS IS MAINSAIL",
}

var eamHeaderRe = regexp.MustCompile(`\b([A-Z0-9]{4,8})\b`)

func (eamDetector) Name() string  { return "eam" }
func (eamDetector) Priority() int { return 20 }

func (eamDetector) QuickCheck(text string) bool {
	for _, p := range eamPreambles {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func (eamDetector) Detect(text string) *Detection {
	idx, plen := -1, 0
	for _, p := range eamPreambles {
		if i := strings.Index(text, p); i >= 0 && (idx < 0 || i < idx) {
			idx, plen = i, len(p)
		}
	}
	if idx < 0 {
		return nil
	}

	rest := strings.TrimSpace(text[idx+plen:])
	m := eamHeaderRe.FindString(rest)
	if m == "" {
		return nil
	}

	header := m
	body := strings.TrimSpace(rest)
	repeated := strings.Count(rest, header) >= 2

	score := 30.0
	if repeated {
		score = 40
	}

	return &Detection{
		Type:           signal.EAMTypeEAM,
		Header:         header,
		Body:           body,
		HeaderRepeated: repeated,
		HeaderScore:    score,
	}
}

// groupRegularity measures how much of a body is made of uniform
// fixed-length blocks, 0..1. EAM bodies are read as five character
// groups; a clean transcription scores near 1.
func groupRegularity(body string) float64 {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return 0
	}

	counts := make(map[int]int)
	for _, f := range fields {
		counts[len(f)]++
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return float64(best) / float64(len(fields))
}
