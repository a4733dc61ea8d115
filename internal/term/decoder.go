package term

import (
	"log/slog"
	"unicode/utf8"
)

// maxPartial is the longest UTF-8 sequence we will hold back waiting for the
// rest of a rune to arrive.
const maxPartial = utf8.UTFMax - 1

// Decoder converts raw pty bytes to strings, buffering incomplete multi-byte
// sequences that were split across read boundaries. Genuinely malformed bytes
// are dropped with a warning; the surrounding text survives intact.
type Decoder struct {
	partial []byte
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset discards any buffered partial sequence.
func (d *Decoder) Reset() {
	d.partial = nil
}

// Decode returns the longest valid prefix of the accumulated bytes as a
// string. A trailing incomplete rune is carried over to the next call.
func (d *Decoder) Decode(chunk []byte) string {
	data := chunk
	if len(d.partial) > 0 {
		data = append(d.partial, chunk...)
		d.partial = nil
	}

	// Hold back a trailing incomplete sequence.
	cut := len(data)
	for back := 1; back <= maxPartial && back <= len(data); back++ {
		b := data[len(data)-back]
		if b < utf8.RuneSelf {
			break
		}
		if utf8.RuneStart(b) {
			if !utf8.FullRune(data[len(data)-back:]) {
				cut = len(data) - back
			}
			break
		}
	}

	if cut < len(data) {
		d.partial = append([]byte(nil), data[cut:]...)
		data = data[:cut]
	}

	if utf8.Valid(data) {
		return string(data)
	}

	// Malformed input: keep the decodable runes, drop the rest.
	slog.Warn("dropping malformed bytes in terminal output", slog.Int("len", len(data)))
	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r != utf8.RuneError || size > 1 {
			out = append(out, data[:size]...)
		}
		data = data[size:]
	}
	return string(out)
}
