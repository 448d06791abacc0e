package sectioner

// Profile describes how one engine wants its input cut. All sizes are in
// characters (runes).
type Profile struct {
	// MaxSize is the hard limit the engine accepts per request
	MaxSize int
	// FirstSize is the target for section 0; smaller means faster start
	FirstSize int
	// StandardSize is the target for every later section
	StandardSize int
	// Tolerance lets the final section run past the target instead of
	// leaving a tiny tail
	Tolerance int
	// SymmetricWindow, when positive, searches for a sentence end within
	// this distance on both sides of the target and prefers one after it
	SymmetricWindow int
	// ForwardWindow, when positive, looks past the target for a sentence
	// end when nothing qualifies before it
	ForwardWindow int
}

func (p Profile) normalized() Profile {
	if p.MaxSize <= 0 {
		p.MaxSize = 4096
	}
	if p.StandardSize <= 0 || p.StandardSize > p.MaxSize {
		p.StandardSize = p.MaxSize
	}
	if p.FirstSize <= 0 || p.FirstSize > p.MaxSize {
		p.FirstSize = p.StandardSize
	}
	if p.Tolerance < 0 {
		p.Tolerance = 0
	}
	return p
}

// Target returns the target size for the section at index
func (p Profile) Target(index int) int {
	n := p.normalized()
	if index == 0 {
		return n.FirstSize
	}
	return n.StandardSize
}
