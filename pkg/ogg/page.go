package ogg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed part of a page header before the lacing table
	HeaderSize = 27
	// MaxSegments is the largest lacing table a page can carry
	MaxSegments = 255

	FlagContinued byte = 0x01
	FlagBOS       byte = 0x02
	FlagEOS       byte = 0x04

	// GranuleNone marks a page on which no packet completes
	GranuleNone = ^uint64(0)

	crcOffset = 22
)

var (
	CapturePattern = []byte("OggS")
	OpusHeadMagic  = []byte("OpusHead")
	OpusTagsMagic  = []byte("OpusTags")

	ErrIncomplete  = errors.New("ogg: incomplete page")
	ErrBadCapture  = errors.New("ogg: missing capture pattern")
	ErrBadVersion  = errors.New("ogg: unsupported stream structure version")
	ErrBadChecksum = errors.New("ogg: checksum mismatch")
)

// Page is one Ogg container page
type Page struct {
	Version    byte
	HeaderType byte
	Granule    uint64
	Serial     uint32
	Sequence   uint32
	Checksum   uint32
	Segments   []byte // lacing table
	Payload    []byte
}

// Size is the serialized length of the page
func (p *Page) Size() int {
	return HeaderSize + len(p.Segments) + len(p.Payload)
}

// ParsePage reads one page from the start of buf and returns it with the
// number of bytes it occupies. The returned page owns its slices.
func ParsePage(buf []byte) (*Page, int, error) {
	if len(buf) < len(CapturePattern) {
		if !bytes.HasPrefix(CapturePattern, buf) {
			return nil, 0, ErrBadCapture
		}
		return nil, 0, ErrIncomplete
	}
	if !bytes.Equal(buf[:4], CapturePattern) {
		return nil, 0, ErrBadCapture
	}
	if len(buf) < HeaderSize {
		return nil, 0, ErrIncomplete
	}
	if buf[4] != 0 {
		return nil, 0, ErrBadVersion
	}
	nseg := int(buf[26])
	if len(buf) < HeaderSize+nseg {
		return nil, 0, ErrIncomplete
	}
	segments := buf[HeaderSize : HeaderSize+nseg]
	payloadLen := 0
	for _, v := range segments {
		payloadLen += int(v)
	}
	total := HeaderSize + nseg + payloadLen
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}

	p := &Page{
		Version:    buf[4],
		HeaderType: buf[5],
		Granule:    binary.LittleEndian.Uint64(buf[6:14]),
		Serial:     binary.LittleEndian.Uint32(buf[14:18]),
		Sequence:   binary.LittleEndian.Uint32(buf[18:22]),
		Checksum:   binary.LittleEndian.Uint32(buf[22:26]),
		Segments:   append([]byte(nil), segments...),
		Payload:    append([]byte(nil), buf[HeaderSize+nseg:total]...),
	}
	return p, total, nil
}

// Marshal serializes the page, computing and storing its checksum
func (p *Page) Marshal(sum Checksum) ([]byte, error) {
	if len(p.Segments) > MaxSegments {
		return nil, fmt.Errorf("ogg: %d lacing values exceed %d", len(p.Segments), MaxSegments)
	}
	payloadLen := 0
	for _, v := range p.Segments {
		payloadLen += int(v)
	}
	if payloadLen != len(p.Payload) {
		return nil, fmt.Errorf("ogg: lacing describes %d bytes, payload has %d", payloadLen, len(p.Payload))
	}

	out := make([]byte, p.Size())
	copy(out, CapturePattern)
	out[4] = p.Version
	out[5] = p.HeaderType
	binary.LittleEndian.PutUint64(out[6:14], p.Granule)
	binary.LittleEndian.PutUint32(out[14:18], p.Serial)
	binary.LittleEndian.PutUint32(out[18:22], p.Sequence)
	out[26] = byte(len(p.Segments))
	copy(out[HeaderSize:], p.Segments)
	copy(out[HeaderSize+len(p.Segments):], p.Payload)

	if sum == nil {
		sum = ChecksumIEEE
	}
	p.Checksum = sum(out)
	binary.LittleEndian.PutUint32(out[crcOffset:crcOffset+4], p.Checksum)
	return out, nil
}

// Verify recomputes the checksum of a serialized page
func Verify(raw []byte, sum Checksum) error {
	if len(raw) < HeaderSize {
		return ErrIncomplete
	}
	if sum == nil {
		sum = ChecksumIEEE
	}
	stored := binary.LittleEndian.Uint32(raw[crcOffset : crcOffset+4])
	scratch := append([]byte(nil), raw...)
	binary.LittleEndian.PutUint32(scratch[crcOffset:crcOffset+4], 0)
	if sum(scratch) != stored {
		return ErrBadChecksum
	}
	return nil
}

// Lacing returns the lacing values for a packet of size bytes: runs of 255
// followed by the remainder. A size that is a multiple of 255 ends with a 0
// so the packet is terminated.
func Lacing(size int) []byte {
	out := make([]byte, 0, size/255+1)
	for size >= 255 {
		out = append(out, 255)
		size -= 255
	}
	return append(out, byte(size))
}

// IsOpusHead reports whether the payload is an Opus identification header
func IsOpusHead(payload []byte) bool {
	return bytes.HasPrefix(payload, OpusHeadMagic)
}

// IsOpusTags reports whether the payload starts an Opus comment header
func IsOpusTags(payload []byte) bool {
	return bytes.HasPrefix(payload, OpusTagsMagic)
}
