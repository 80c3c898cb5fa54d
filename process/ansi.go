package process

// ansiParser is a minimal ANSI escape code parser. It tracks just enough
// state to answer one question: is the byte stream currently in the middle of
// an escape sequence? Writers that inject their own data into a stream (such
// as Timestamper) use it to avoid splitting a sequence in half.
//
// See https://en.wikipedia.org/wiki/ANSI_escape_code for the sequence
// grammar, including the common deviation of allowing BEL to terminate
// string sequences instead of ESC '\'.
type ansiParser struct {
	state *ansiState
}

// Write feeds more bytes through the parser.
func (p *ansiParser) Write(data []byte) (int, error) {
	for _, b := range data {
		if p.state != nil {
			p.state = p.state[b]
			continue
		}
		if b == 0x1b {
			p.state = escState
		}
	}
	return len(data), nil
}

// insideCode reports whether the stream is mid-sequence. Any non-nil state is
// inside a sequence; nil is normal text.
func (p *ansiParser) insideCode() bool { return p.state != nil }

// ansiState maps an incoming byte to the next parser state. A nil next-state
// means the byte ended the sequence.
type ansiState [256]*ansiState

var (
	// escState is entered after reading ESC. Most bytes after ESC end the
	// sequence immediately; these introducers need more processing.
	escState = &ansiState{
		'[': csiParamState,   // CSI
		']': stringTextState, // OSC
		'P': stringTextState, // DCS
		'X': stringTextState, // SOS
		'^': stringTextState, // PM
		'_': stringTextState, // APC
	}

	// csiParamState is entered after ESC '['.
	csiParamState = &ansiState{}

	// stringTextState covers the string sequences (OSC, DCS, SOS, PM, APC),
	// which run until BEL or the ST pair ESC '\'.
	stringTextState = &ansiState{}
)

// The looping states refer to themselves, so they can't be filled in as
// literals.
func init() {
	// A CSI sequence is ESC '[' followed by any number of parameter bytes
	// (0x30-0x3F), then any number of intermediate bytes (0x20-0x2F), then a
	// single final byte (anything else, nominally 0x40-0x7E) that ends it.
	csiIntermediateState := &ansiState{}
	for b := byte(0x30); b <= 0x3F; b++ {
		csiParamState[b] = csiParamState
	}
	for b := byte(0x20); b <= 0x2F; b++ {
		csiParamState[b] = csiIntermediateState
		csiIntermediateState[b] = csiIntermediateState
	}

	// A string sequence consumes arbitrary text until BEL or ESC '\'. An ESC
	// followed by anything other than '\' stays inside the text.
	stringEscState := &ansiState{}
	for b := range 256 {
		stringTextState[byte(b)] = stringTextState
		stringEscState[byte(b)] = stringTextState
	}
	stringTextState[0x07] = nil
	stringTextState[0x1b] = stringEscState
	stringEscState['\\'] = nil
}
