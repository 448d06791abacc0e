package sectioner

import (
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Section is one contiguous slice of the input
type Section struct {
	Index int
	Text  string
	// Start and End are byte offsets into the input
	Start int
	End   int
}

// Sectioner cuts text into sections lazily. Concatenating every section
// reproduces the input byte for byte.
type Sectioner struct {
	profile Profile
	text    string
	runes   []rune
	offs    []int // byte offset of each rune plus a trailing len(text)
	pos     int   // rune index of the next section start
	index   int
	logger  *zap.Logger
}

func New(profile Profile, logger *zap.Logger) *Sectioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sectioner{profile: profile.normalized(), logger: logger.Named("sectioner")}
}

func (s *Sectioner) Profile() Profile {
	return s.profile
}

// Initialize loads text and rewinds to the first section
func (s *Sectioner) Initialize(text string) {
	s.text = text
	s.runes = s.runes[:0]
	s.offs = s.offs[:0]
	for i := 0; i < len(text); {
		r, w := utf8.DecodeRuneInString(text[i:])
		s.runes = append(s.runes, r)
		s.offs = append(s.offs, i)
		i += w
	}
	s.offs = append(s.offs, len(text))
	s.pos = 0
	s.index = 0
}

// Reset clears all state
func (s *Sectioner) Reset() {
	s.text = ""
	s.runes = nil
	s.offs = nil
	s.pos = 0
	s.index = 0
}

func (s *Sectioner) HasMore() bool {
	return s.pos < len(s.runes)
}

// Next returns the next section, or false once the text is exhausted
func (s *Sectioner) Next() (Section, bool) {
	if !s.HasMore() {
		return Section{}, false
	}
	end := s.split()
	sec := Section{
		Index: s.index,
		Text:  s.text[s.offs[s.pos]:s.offs[end]],
		Start: s.offs[s.pos],
		End:   s.offs[end],
	}
	s.logger.Debug("section cut",
		zap.Int("index", s.index),
		zap.Int("chars", end-s.pos),
		zap.Int("remaining", len(s.runes)-end))
	s.pos = end
	s.index++
	return sec, true
}

// Skip advances past n sections without returning them
func (s *Sectioner) Skip(n int) int {
	skipped := 0
	for ; skipped < n; skipped++ {
		if _, ok := s.Next(); !ok {
			break
		}
	}
	return skipped
}

// split returns the exclusive rune index where the current section ends
func (s *Sectioner) split() int {
	p := s.profile
	n := len(s.runes)
	start := s.pos
	target := p.Target(s.index)
	remaining := n - start
	hardMax := start + p.MaxSize
	if hardMax > n {
		hardMax = n
	}

	if remaining <= target+p.Tolerance && remaining <= p.MaxSize {
		return n
	}

	limit := start + target
	half := start + target/2

	if end, ok := s.searchBack(half, limit, paragraphBreak, indentedBreak); ok {
		return end
	}
	if p.SymmetricWindow > 0 {
		if end, ok := s.searchAround(half, limit, hardMax, p.SymmetricWindow); ok {
			return end
		}
	}
	if end, ok := s.searchBack(half, limit, sentenceEnd, clauseEnd, lineBreak, whitespace); ok {
		return end
	}
	if p.ForwardWindow > 0 {
		if end, ok := s.searchForward(limit, minInt(limit+p.ForwardWindow, hardMax)); ok {
			return end
		}
	}

	s.logger.Debug("hard split", zap.Int("index", s.index), zap.Int("at", limit))
	if limit-1 > start && s.runes[limit-1] == '\r' && s.runes[limit] == '\n' {
		return limit - 1
	}
	return limit
}

// matcher reports the split point for a boundary starting at rune i
type matcher func(r []rune, i int) (int, bool)

// searchBack tries each matcher in priority order and returns the last
// split point in (half, limit].
func (s *Sectioner) searchBack(half, limit int, ms ...matcher) (int, bool) {
	for _, m := range ms {
		for i := limit - 1; i >= s.pos && i >= half-4; i-- {
			if end, ok := m(s.runes, i); ok && end <= limit && end > half {
				return end, true
			}
		}
	}
	return 0, false
}

// searchAround looks for sentence ends within window of limit, taking the
// first one at or after limit and otherwise the last one before it.
func (s *Sectioner) searchAround(half, limit, hardMax, window int) (int, bool) {
	lo := maxInt(half+1, limit-window)
	hi := minInt(hardMax, limit+window)
	before, after := -1, -1
	for i := maxInt(s.pos, lo-4); i < hi; i++ {
		end, ok := sentenceEnd(s.runes, i)
		if !ok || end < lo || end > hi {
			continue
		}
		if end >= limit {
			after = end
			break
		}
		before = end
	}
	if after > 0 {
		return after, true
	}
	if before > 0 {
		return before, true
	}
	return 0, false
}

func (s *Sectioner) searchForward(from, hi int) (int, bool) {
	for i := from; i < hi; i++ {
		if end, ok := sentenceEnd(s.runes, i); ok && end <= hi {
			return end, true
		}
	}
	return 0, false
}

func isBlank(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '　'
}

func paragraphBreak(r []rune, i int) (int, bool) {
	if r[i] != '\n' {
		return 0, false
	}
	j := i + 1
	for j < len(r) && isBlank(r[j]) {
		j++
	}
	if j < len(r) && r[j] == '\n' {
		return j + 1, true
	}
	return 0, false
}

func indentedBreak(r []rune, i int) (int, bool) {
	if r[i] == '\n' && i+1 < len(r) && (r[i+1] == ' ' || r[i+1] == '\t' || r[i+1] == '　') {
		return i + 1, true
	}
	return 0, false
}

func skipClosers(r []rune, j int) int {
	for j < len(r) {
		switch r[j] {
		case '"', '\'', ')', ']', '}', '”', '’', '»', '」', '』', '）', '》':
			j++
		default:
			return j
		}
	}
	return j
}

func sentenceEnd(r []rune, i int) (int, bool) {
	switch r[i] {
	case '.', '!', '?', '…':
		j := skipClosers(r, i+1)
		if j < len(r) && unicode.IsSpace(r[j]) {
			return j + 1, true
		}
	case '。', '！', '？':
		j := skipClosers(r, i+1)
		if j < len(r) && unicode.IsSpace(r[j]) {
			return j + 1, true
		}
		return j, true
	}
	return 0, false
}

func clauseEnd(r []rune, i int) (int, bool) {
	switch r[i] {
	case ':', ';', ',':
		if i+1 < len(r) && unicode.IsSpace(r[i+1]) {
			return i + 2, true
		}
	case '，', '；', '：', '、':
		if i+1 < len(r) && unicode.IsSpace(r[i+1]) {
			return i + 2, true
		}
		return i + 1, true
	}
	return 0, false
}

func lineBreak(r []rune, i int) (int, bool) {
	if r[i] == '\n' {
		return i + 1, true
	}
	return 0, false
}

func whitespace(r []rune, i int) (int, bool) {
	if unicode.IsSpace(r[i]) {
		return i + 1, true
	}
	return 0, false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
