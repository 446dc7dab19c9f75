package diff

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/voithru/webnovel-prompt-lab-sub000/pkg/cerr"
)

// Mode selects the diff granularity.
type Mode string

const (
	ModeWord Mode = "word"
	ModeLine Mode = "line"
	ModeChar Mode = "char"
	// ModeInline diffs line by line and refines changed lines down to
	// words, for rendering both texts as one annotated flow.
	ModeInline Mode = "inline"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeWord, ModeLine, ModeChar, ModeInline:
		return Mode(s), nil
	case "":
		return ModeWord, nil
	}
	return "", cerr.NewError(cerr.InvalidArgument, "unknown diff mode", nil)
}

// Op classifies a segment relative to the before text.
type Op string

const (
	OpUnchanged Op = "unchanged"
	OpRemoved   Op = "removed"
	OpAdded     Op = "added"
)

// Segment is one run of text with a single classification. Replacements
// are expressed as a removed segment followed by an added segment.
type Segment struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Result is the full comparison of two texts.
type Result struct {
	Identical bool      `json:"identical"`
	Segments  []Segment `json:"segments"`
}

// A token boundary sticks trailing whitespace to the word before it, so
// "Hello world" tokenizes as ["Hello ", "world"] and joins back losslessly.
var wordPattern = regexp.MustCompile(`\S+\s*|\s+`)

// Compare diffs before and after at the given granularity.
func Compare(mode Mode, before, after string) *Result {
	if before == after {
		result := &Result{Identical: true}
		if before != "" {
			result.Segments = []Segment{{Op: OpUnchanged, Text: before}}
		}
		return result
	}
	switch mode {
	case ModeLine:
		return &Result{Segments: diffTokens(splitLines(before), splitLines(after))}
	case ModeChar:
		return &Result{Segments: diffTokens(splitChars(before), splitChars(after))}
	case ModeInline:
		return &Result{Segments: diffInline(before, after)}
	default:
		return &Result{Segments: diffTokens(splitWords(before), splitWords(after))}
	}
}

func splitWords(s string) []string {
	return wordPattern.FindAllString(s, -1)
}

// splitLines keeps the newline on each element so segments concatenate
// back to the original text. A trailing newline would otherwise leave an
// empty phantom element.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func splitChars(s string) []string {
	runes := []rune(s)
	tokens := make([]string, len(runes))
	for i, r := range runes {
		tokens[i] = string(r)
	}
	return tokens
}

// diffTokens folds matcher opcodes into segments, merging adjacent tokens
// of the same classification into one run.
func diffTokens(a, b []string) []Segment {
	matcher := difflib.NewMatcher(a, b)
	var segments []Segment
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			segments = appendSegment(segments, OpUnchanged, strings.Join(a[op.I1:op.I2], ""))
		case 'd':
			segments = appendSegment(segments, OpRemoved, strings.Join(a[op.I1:op.I2], ""))
		case 'i':
			segments = appendSegment(segments, OpAdded, strings.Join(b[op.J1:op.J2], ""))
		case 'r':
			segments = appendSegment(segments, OpRemoved, strings.Join(a[op.I1:op.I2], ""))
			segments = appendSegment(segments, OpAdded, strings.Join(b[op.J1:op.J2], ""))
		}
	}
	return segments
}

// diffInline diffs at line level first and refines replaced line runs with
// a word-level pass, so unchanged lines stay whole while edited lines show
// exactly which words moved.
func diffInline(before, after string) []Segment {
	a := splitLines(before)
	b := splitLines(after)
	matcher := difflib.NewMatcher(a, b)
	var segments []Segment
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			segments = appendSegment(segments, OpUnchanged, strings.Join(a[op.I1:op.I2], ""))
		case 'd':
			segments = appendSegment(segments, OpRemoved, strings.Join(a[op.I1:op.I2], ""))
		case 'i':
			segments = appendSegment(segments, OpAdded, strings.Join(b[op.J1:op.J2], ""))
		case 'r':
			deleted := strings.Join(a[op.I1:op.I2], "")
			inserted := strings.Join(b[op.J1:op.J2], "")
			for _, s := range diffTokens(splitWords(deleted), splitWords(inserted)) {
				segments = appendSegment(segments, s.Op, s.Text)
			}
		}
	}
	return segments
}

func appendSegment(segments []Segment, op Op, text string) []Segment {
	if text == "" {
		return segments
	}
	if n := len(segments); n > 0 && segments[n-1].Op == op {
		segments[n-1].Text += text
		return segments
	}
	return append(segments, Segment{Op: op, Text: text})
}
