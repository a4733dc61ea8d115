package session

// controlTokens maps the caller-facing key tokens to the bytes a terminal
// would produce for them. Tokens arrive spelled out so callers never have
// to embed raw control bytes in requests.
var controlTokens = map[string]string{
	"<Ctrl-C>":  "\x03",
	"<Ctrl-\\>": "\x1c",
	"<Ctrl-Z>":  "\x1a",
	"<Ctrl-D>":  "\x04",
	"<Up>":      "\x1b[A",
	"<Down>":    "\x1b[B",
	"<Right>":   "\x1b[C",
	"<Left>":    "\x1b[D",
	"<Enter>":   "\r",
	"<Tab>":     "\t",
	"<Esc>":     "\x1b",
}

// translateControl returns the byte sequence for a control token, or false
// when the input is not a recognized token and should be written literally.
func translateControl(input string) (string, bool) {
	seq, ok := controlTokens[input]
	return seq, ok
}
