// Package eam reconstructs Emergency Action Messages and SKYKING
// broadcasts from HF voice transcription segments: normalize, detect
// the envelope, aggregate multi-segment drafts, score, deduplicate.
package eam

import "strings"

// numberWords maps spoken digits (including radio pronunciations) to
// their numeric form.
var numberWords = map[string]string{
	"ZERO": "0", "ONE": "1", "TWO": "2", "THREE": "3", "FOUR": "4",
	"FIVE": "5", "SIX": "6", "SEVEN": "7", "EIGHT": "8", "NINE": "9",
	"NINER": "9", "FIFE": "5", "TREE": "3", "FOWER": "4",
}

// Normalize uppercases a transcription, strips everything but letters,
// digits, and spaces, collapses runs of whitespace, and rewrites spoken
// number words to digits.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToUpper(text) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}

	fields := strings.Fields(b.String())
	for i, f := range fields {
		if d, ok := numberWords[f]; ok {
			fields[i] = d
		}
	}
	return strings.Join(fields, " ")
}

// collapseBody reduces a body to single-space separation for equality
// comparison during deduplication.
func collapseBody(body string) string {
	return strings.Join(strings.Fields(body), " ")
}

// prowordPhrases are multi-word procedural announcements read around
// the message groups of a broadcast.
var prowordPhrases = []string{
	"MESSAGE FOLLOWS",
	"MORE TO FOLLOW",
	"I SAY AGAIN",
	"STAND BY",
}

// prowords are single procedural words dropped from stored bodies.
var prowords = map[string]struct{}{
	"STANDBY": {}, "BREAK": {}, "OUT": {}, "CORRECTION": {},
}

// stripProcedural removes the header announcements and procedural
// prowords from a normalized segment, leaving the message groups.
func stripProcedural(text, header string) string {
	for _, p := range prowordPhrases {
		text = strings.ReplaceAll(text, p, " ")
	}

	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if f == header {
			continue
		}
		if _, ok := prowords[f]; ok {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
