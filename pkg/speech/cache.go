package speech

// SessionCache holds the audio of every section synthesized for one text
// with one voice and model, indexed by section ordinal.
type SessionCache struct {
	key      string
	text     string
	sections map[int][]byte
	complete bool
}

func newSessionCache(key, text string) *SessionCache {
	return &SessionCache{key: key, text: text, sections: make(map[int][]byte)}
}

// Key identifies text, voice and model
func (c *SessionCache) Key() string  { return c.key }
func (c *SessionCache) Text() string { return c.text }

// Put stores the audio of section i. Empty sections are stored as nil so
// the ordinal sequence has no holes.
func (c *SessionCache) Put(i int, audio []byte) {
	c.sections[i] = audio
}

func (c *SessionCache) Get(i int) ([]byte, bool) {
	audio, ok := c.sections[i]
	return audio, ok
}

// Len is the number of sections cached contiguously from ordinal 0
func (c *SessionCache) Len() int {
	n := 0
	for {
		if _, ok := c.sections[n]; !ok {
			return n
		}
		n++
	}
}

// Complete reports whether every section of the text is cached
func (c *SessionCache) Complete() bool { return c.complete }

func (c *SessionCache) markComplete() { c.complete = true }
