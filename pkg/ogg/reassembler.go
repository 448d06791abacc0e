package ogg

import (
	"bytes"
	"errors"

	"go.uber.org/zap"
)

const (
	DefaultMaxBuffer      = 1 << 20
	DefaultBytesPerSecond = 4000 // ~32 kbit/s Opus
	opusGranuleRate       = 48000
)

var (
	ErrHeadersMissing = errors.New("ogg: stream headers not parsed yet")
	ErrNoPackets      = errors.New("ogg: no audio packets")
)

type Option func(*Reassembler)

// WithMaxBuffer bounds the bytes held while waiting for complete pages
func WithMaxBuffer(n int) Option {
	return func(r *Reassembler) {
		if n > 0 {
			r.maxBuffer = n
		}
	}
}

// WithChecksum selects the checksum written into rebuilt pages
func WithChecksum(sum Checksum) Option {
	return func(r *Reassembler) {
		if sum != nil {
			r.checksum = sum
		}
	}
}

// WithBytesPerSecond tunes the granule position estimate
func WithBytesPerSecond(n int) Option {
	return func(r *Reassembler) {
		if n > 0 {
			r.bytesPerSecond = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Reassembler) {
		if l != nil {
			r.logger = l.Named("ogg")
		}
	}
}

// Reassembler turns an Ogg Opus byte stream arriving in arbitrary chunks
// into audio packets, and packs runs of packets into independently
// decodable segments that repeat the stream's header pages.
type Reassembler struct {
	buf     []byte
	headers [][]byte // raw OpusHead page followed by the OpusTags page(s)

	idSeen        bool
	headersParsed bool
	serial        uint32
	sequence      uint32
	granule       uint64
	partial       []byte // packet continued onto the next page

	maxBuffer      int
	bytesPerSecond int
	checksum       Checksum
	logger         *zap.Logger
}

func NewReassembler(opts ...Option) *Reassembler {
	r := &Reassembler{
		maxBuffer:      DefaultMaxBuffer,
		bytesPerSecond: DefaultBytesPerSecond,
		checksum:       ChecksumIEEE,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HeadersParsed reports whether both Opus header pages have been seen
func (r *Reassembler) HeadersParsed() bool {
	return r.headersParsed
}

// HeaderPages returns copies of the cached header pages
func (r *Reassembler) HeaderPages() [][]byte {
	out := make([][]byte, len(r.headers))
	for i, h := range r.headers {
		out[i] = append([]byte(nil), h...)
	}
	return out
}

// Buffered reports how many bytes wait for a complete page
func (r *Reassembler) Buffered() int {
	return len(r.buf)
}

// ProcessChunk appends chunk to the reassembly buffer and returns the audio
// packets it completed. It returns nil while headers or pages are still
// accumulating.
func (r *Reassembler) ProcessChunk(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}
	if len(r.buf)+len(chunk) > r.maxBuffer {
		r.logger.Warn("reassembly buffer overflow, restarting from newest chunk",
			zap.Int("buffered", len(r.buf)),
			zap.Int("chunk", len(chunk)),
			zap.Int("max", r.maxBuffer))
		r.buf = nil
		r.partial = nil
	}
	r.buf = append(r.buf, chunk...)

	var packets [][]byte
	for len(r.buf) > 0 {
		idx := bytes.Index(r.buf, CapturePattern)
		if idx < 0 {
			// keep a possible partial capture pattern
			keep := len(CapturePattern) - 1
			if len(r.buf) > keep {
				r.buf = r.buf[len(r.buf)-keep:]
			}
			break
		}
		if idx > 0 {
			r.logger.Debug("resync on capture pattern", zap.Int("skipped", idx))
			r.buf = r.buf[idx:]
		}

		page, n, err := ParsePage(r.buf)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			r.buf = r.buf[1:]
			continue
		}
		packets = append(packets, r.handlePage(page, r.buf[:n])...)
		r.buf = r.buf[n:]
	}
	r.buf = append([]byte(nil), r.buf...)
	return packets
}

func (r *Reassembler) handlePage(page *Page, raw []byte) [][]byte {
	if !r.headersParsed {
		r.handleHeaderPage(page, raw)
		return nil
	}
	if page.Serial != r.serial {
		r.logger.Debug("ignoring page from another logical stream", zap.Uint32("serial", page.Serial))
		return nil
	}
	return r.extract(page)
}

func (r *Reassembler) handleHeaderPage(page *Page, raw []byte) {
	if !r.idSeen {
		if !IsOpusHead(page.Payload) {
			r.logger.Debug("skipping page before identification header", zap.Uint32("sequence", page.Sequence))
			return
		}
		r.idSeen = true
		r.serial = page.Serial
		r.headers = append(r.headers, append([]byte(nil), raw...))
		r.sequence = page.Sequence + 1
		return
	}
	if page.Serial != r.serial {
		return
	}
	r.headers = append(r.headers, append([]byte(nil), raw...))
	r.sequence = page.Sequence + 1
	// the comment packet may span pages; it ends on a lacing value below 255
	if n := len(page.Segments); n > 0 && page.Segments[n-1] < 255 {
		r.headersParsed = true
		r.logger.Debug("opus headers parsed", zap.Int("pages", len(r.headers)))
	}
}

// extract splits a page payload into packets, joining packets continued
// across pages. A continuation whose start was lost is dropped.
func (r *Reassembler) extract(page *Page) [][]byte {
	continued := page.HeaderType&FlagContinued != 0
	cur := r.partial
	discard := continued && r.partial == nil
	if !continued && r.partial != nil {
		r.logger.Debug("dropping unterminated packet", zap.Int("bytes", len(r.partial)))
		cur = nil
	}
	r.partial = nil

	var out [][]byte
	off := 0
	for _, lv := range page.Segments {
		seg := page.Payload[off : off+int(lv)]
		off += int(lv)
		if !discard {
			cur = append(cur, seg...)
		}
		if lv < 255 {
			if !discard && len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			discard = false
		}
	}
	if n := len(page.Segments); n > 0 && page.Segments[n-1] == 255 && !discard {
		r.partial = cur
	}
	return out
}

// CreateSegment packs packets into new pages behind the cached header
// pages. Sequence numbers continue from the last page written and the
// granule position advances by an estimate derived from payload size.
func (r *Reassembler) CreateSegment(packets [][]byte) ([]byte, error) {
	if !r.headersParsed {
		return nil, ErrHeadersMissing
	}
	if len(packets) == 0 {
		return nil, ErrNoPackets
	}

	pages := r.pack(packets)
	var out bytes.Buffer
	for _, h := range r.headers {
		out.Write(h)
	}
	for _, p := range pages {
		raw, err := p.Marshal(r.checksum)
		if err != nil {
			return nil, err
		}
		out.Write(raw)
	}
	return out.Bytes(), nil
}

func (r *Reassembler) pack(packets [][]byte) []*Page {
	newPage := func(flags byte) *Page {
		return &Page{HeaderType: flags, Serial: r.serial}
	}
	var pages []*Page
	cur := newPage(0)
	completed := make(map[*Page]int)
	for _, pkt := range packets {
		pos := 0
		for i, lv := range Lacing(len(pkt)) {
			if len(cur.Segments) == MaxSegments {
				pages = append(pages, cur)
				var flags byte
				if i > 0 {
					flags = FlagContinued
				}
				cur = newPage(flags)
			}
			cur.Segments = append(cur.Segments, lv)
			cur.Payload = append(cur.Payload, pkt[pos:pos+int(lv)]...)
			pos += int(lv)
		}
		completed[cur] += len(pkt)
	}
	pages = append(pages, cur)

	for _, p := range pages {
		p.Sequence = r.sequence
		r.sequence++
		n, ok := completed[p]
		if !ok {
			p.Granule = GranuleNone
			continue
		}
		r.granule += uint64(n) * opusGranuleRate / uint64(r.bytesPerSecond)
		p.Granule = r.granule
	}
	return pages
}

// Reset forgets headers, buffered bytes and counters
func (r *Reassembler) Reset() {
	r.buf = nil
	r.headers = nil
	r.idSeen = false
	r.headersParsed = false
	r.serial = 0
	r.sequence = 0
	r.granule = 0
	r.partial = nil
}
