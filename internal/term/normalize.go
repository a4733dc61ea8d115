// Package term normalizes raw terminal output into plain text.
package term

import (
	"strings"
)

const tabStop = 8

// Normalizer converts raw pty output into plain text: ANSI escape sequences
// are stripped, backspaces erase the preceding character, tabs expand to the
// next multiple-of-8 column, and CR/CRLF become LF.
//
// The only state carried between chunks is the column position of the current
// line (needed for tab expansion), the trailing bytes of an escape sequence
// that was split across a read boundary, and whether the previous chunk ended
// in a CR whose LF may arrive in the next one.
type Normalizer struct {
	col     int
	pending []byte // incomplete escape sequence from the previous chunk
	crlf    bool   // a lone CR was emitted as LF; swallow an immediately following LF
}

// NewNormalizer returns a Normalizer starting at column zero.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Reset clears all carried state.
func (n *Normalizer) Reset() {
	n.col = 0
	n.pending = nil
	n.crlf = false
}

// Normalize transforms one chunk of decoded terminal output.
func (n *Normalizer) Normalize(text string) string {
	data := text
	if len(n.pending) > 0 {
		data = string(n.pending) + text
		n.pending = nil
	}

	var out []rune
	runes := []rune(data)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch r {
		case 0x1b: // ESC
			consumed, complete := scanEscape(runes[i:])
			if !complete {
				// Sequence split across reads; keep the tail for next time.
				n.pending = []byte(string(runes[i:]))
				return string(out)
			}
			i += consumed - 1
			continue

		case '\b':
			n.crlf = false
			// Erase the preceding character instead of inserting a glyph.
			if len(out) > 0 && out[len(out)-1] != '\n' {
				out = out[:len(out)-1]
				if n.col > 0 {
					n.col--
				}
			}
			continue

		case '\t':
			n.crlf = false
			pad := tabStop - n.col%tabStop
			for j := 0; j < pad; j++ {
				out = append(out, ' ')
			}
			n.col += pad
			continue

		case '\r':
			// CRLF and bare CR both become LF. The LF half of a pair may
			// land in the next chunk; the crlf flag swallows it there.
			if i+1 < len(runes) && runes[i+1] == '\n' {
				// The LF half emits the newline itself.
				n.crlf = false
				continue
			}
			out = append(out, '\n')
			n.col = 0
			n.crlf = true
			continue

		case '\n':
			if n.crlf {
				// Already emitted for the CR this LF belongs to.
				n.crlf = false
				continue
			}
			out = append(out, '\n')
			n.col = 0
			continue

		case 0x07: // BEL
			continue
		}

		if r < 0x20 {
			// Remaining C0 controls carry no text.
			continue
		}

		n.crlf = false
		out = append(out, r)
		n.col++
	}

	return string(out)
}

// scanEscape determines the length of the escape sequence starting at
// runes[0] (which is ESC). Returns the number of runes consumed and whether
// the sequence terminator was found within the chunk. Sequences vary in
// terminator and length, so a single regex is not enough:
//
//	CSI:  ESC [ params letter
//	OSC:  ESC ] text (BEL | ESC \)
//	G0/G1 charset: ESC ( X  /  ESC ) X
//	two-char escapes: ESC letter
func scanEscape(runes []rune) (int, bool) {
	if len(runes) < 2 {
		return 0, false
	}

	switch runes[1] {
	case '[': // CSI: parameters 0x30-0x3F, intermediates 0x20-0x2F, final 0x40-0x7E
		for i := 2; i < len(runes); i++ {
			r := runes[i]
			if r >= 0x40 && r <= 0x7e {
				return i + 1, true
			}
			if r < 0x20 || r > 0x3f {
				// Malformed; drop what we have scanned so far.
				return i + 1, true
			}
		}
		return 0, false

	case ']': // OSC: terminated by BEL or ST (ESC \)
		for i := 2; i < len(runes); i++ {
			if runes[i] == 0x07 {
				return i + 1, true
			}
			if runes[i] == 0x1b {
				if i+1 < len(runes) {
					if runes[i+1] == '\\' {
						return i + 2, true
					}
					return i + 1, true
				}
				return 0, false
			}
		}
		return 0, false

	case '(', ')': // charset selection: one more byte
		if len(runes) >= 3 {
			return 3, true
		}
		return 0, false

	default: // two-character escape (ESC c, ESC 7, ...)
		return 2, true
	}
}

// IsClearScreen reports whether the raw chunk contains a screen-clear or
// terminal-reset sequence. Consumers use this to wipe their display rather
// than append.
func IsClearScreen(raw string) bool {
	for _, seq := range []string{"\x1b[2J", "\x1b[1J", "\x1b[0J", "\x1b[3J", "\x1bc", "\x1b[H"} {
		if strings.Contains(raw, seq) {
			return true
		}
	}
	return false
}
