package prompt

import (
	"fmt"
	"regexp"
)

// PasswordDetector spots password and passphrase prompts in command output
// so the session can stop echoing keystrokes.
type PasswordDetector struct {
	patterns []*regexp.Regexp
}

// NewPasswordDetector builds a detector with the built-in prompt phrasings.
func NewPasswordDetector() *PasswordDetector {
	return &PasswordDetector{patterns: passwordPatterns()}
}

// AddCustom registers an additional password-prompt pattern.
func (d *PasswordDetector) AddCustom(expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compiling custom password pattern %q: %w", expr, err)
	}
	d.patterns = append(d.patterns, re)
	return nil
}

// Match reports whether the text contains a password prompt. Only the tail
// is examined: an old prompt scrolled off by later output is no longer
// waiting for input.
func (d *PasswordDetector) Match(text string) bool {
	if len(text) > tailWindow {
		text = text[len(text)-tailWindow:]
	}
	for _, re := range d.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
