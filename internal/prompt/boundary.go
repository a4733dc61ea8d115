package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// tailWindow bounds how far back from the end of the accumulated output a
// prompt is searched for. Prompts only ever appear at the tail; scanning the
// whole buffer on every chunk would grow quadratic with long-running output.
const tailWindow = 512

// Match describes a detected prompt boundary.
type Match struct {
	// Start is the byte offset in the examined text where the prompt begins.
	// Output before Start belongs to the command; the prompt itself does not.
	Start int
	// Sentinel is true when the injected sentinel matched rather than a
	// fallback pattern.
	Sentinel bool
}

// BoundaryDetector finds shell prompts at the end of accumulated output. The
// injected sentinel is checked first; fallback patterns cover nested shells
// and REPLs that install their own prompt.
type BoundaryDetector struct {
	sentinel  *regexp.Regexp
	fallbacks []*regexp.Regexp
	custom    []*regexp.Regexp
}

// NewBoundaryDetector builds a detector for the given sentinel token.
func NewBoundaryDetector(sentinel string) *BoundaryDetector {
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	return &BoundaryDetector{
		sentinel:  SentinelPattern(sentinel),
		fallbacks: fallbackPatterns(),
	}
}

// AddCustom registers an additional prompt pattern from configuration.
// Custom patterns are checked after the sentinel and before the built-in
// fallbacks.
func (d *BoundaryDetector) AddCustom(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compiling custom prompt pattern %q: %w", expr, err)
	}
	d.custom = append(d.custom, re)
	return nil
}

// Find reports whether the text ends at a prompt. Only the tail of the text
// is examined, and a match counts only when nothing but whitespace follows
// it: a prompt string scrolling by mid-output is not a boundary.
func (d *BoundaryDetector) Find(text string) (Match, bool) {
	offset := 0
	tail := text
	if len(tail) > tailWindow {
		offset = len(tail) - tailWindow
		tail = tail[offset:]
	}

	if loc := lastTerminalMatch(d.sentinel, tail); loc != nil {
		return Match{Start: offset + loc[0], Sentinel: true}, true
	}
	for _, re := range d.custom {
		if loc := lastTerminalMatch(re, tail); loc != nil {
			return Match{Start: offset + loc[0]}, true
		}
	}
	for _, re := range d.fallbacks {
		if loc := lastTerminalMatch(re, tail); loc != nil {
			return Match{Start: offset + loc[0]}, true
		}
	}
	return Match{}, false
}

// lastTerminalMatch returns the location of the last match of re in s, but
// only if the match runs to the end of s (modulo trailing whitespace).
func lastTerminalMatch(re *regexp.Regexp, s string) []int {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return nil
	}
	loc := locs[len(locs)-1]
	if strings.TrimSpace(s[loc[1]:]) != "" {
		return nil
	}
	return loc
}
