package synthesizer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Paths of the streaming protocol
const (
	PathSpeechConfig     = "speech.config"
	PathSynthesisContext = "synthesis.context"
	PathSSML             = "ssml"
	PathTurnStart        = "turn.start"
	PathTurnEnd          = "turn.end"
	PathAudio            = "audio"
	PathResponse         = "response"
)

const (
	headerTimestamp   = "X-Timestamp"
	headerRequestID   = "X-RequestId"
	headerPath        = "Path"
	headerContentType = "Content-Type"
	crlf              = "\r\n"
)

var (
	ErrShortFrame    = errors.New("synthesizer: binary frame shorter than its header")
	ErrMalformedHead = errors.New("synthesizer: malformed frame header")
)

// Header is one "Key: Value" line
type Header struct {
	Key, Value string
}

// Frame is a protocol message: header lines and a body
type Frame struct {
	Headers []Header
	Body    []byte
}

// Get returns a header value, matching the key case-insensitively
func (f Frame) Get(key string) string {
	for _, h := range f.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

func (f Frame) Path() string      { return f.Get(headerPath) }
func (f Frame) RequestID() string { return f.Get(headerRequestID) }

func timestamp(now time.Time) string {
	return now.UTC().Format("2006-01-02T15:04:05.000Z")
}

// NewTextFrame builds an outbound control frame
func NewTextFrame(path, requestID, contentType string, body []byte, now time.Time) Frame {
	headers := []Header{
		{headerTimestamp, timestamp(now)},
		{headerRequestID, requestID},
		{headerPath, path},
	}
	if contentType != "" {
		headers = append(headers, Header{headerContentType, contentType})
	}
	return Frame{Headers: headers, Body: body}
}

func writeHeaders(buf *bytes.Buffer, headers []Header) {
	for i, h := range headers {
		if i > 0 {
			buf.WriteString(crlf)
		}
		buf.WriteString(h.Key)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
	}
}

// EncodeText renders f as a text frame: headers, a blank line, the body
func EncodeText(f Frame) []byte {
	var buf bytes.Buffer
	writeHeaders(&buf, f.Headers)
	buf.WriteString(crlf + crlf)
	buf.Write(f.Body)
	return buf.Bytes()
}

// EncodeBinary renders f as a binary frame: a 2-byte big-endian header
// length, the header lines, then the payload
func EncodeBinary(f Frame) ([]byte, error) {
	var head bytes.Buffer
	writeHeaders(&head, f.Headers)
	if head.Len() > 0xFFFF {
		return nil, fmt.Errorf("synthesizer: frame header too long (%d bytes)", head.Len())
	}
	out := make([]byte, 2, 2+head.Len()+len(f.Body))
	binary.BigEndian.PutUint16(out, uint16(head.Len()))
	out = append(out, head.Bytes()...)
	return append(out, f.Body...), nil
}

func parseHeaders(block string) ([]Header, error) {
	var headers []Header
	for _, line := range strings.Split(block, crlf) {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformedHead, line)
		}
		headers = append(headers, Header{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)})
	}
	return headers, nil
}

// ParseText splits a text frame at the first blank line
func ParseText(data []byte) (Frame, error) {
	head, body, _ := strings.Cut(string(data), crlf+crlf)
	headers, err := parseHeaders(head)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Headers: headers, Body: []byte(body)}, nil
}

// ParseBinary decodes a binary frame. The body aliases data.
func ParseBinary(data []byte) (Frame, error) {
	if len(data) < 2 {
		return Frame{}, ErrShortFrame
	}
	n := int(binary.BigEndian.Uint16(data))
	if len(data) < 2+n {
		return Frame{}, ErrShortFrame
	}
	headers, err := parseHeaders(string(data[2 : 2+n]))
	if err != nil {
		return Frame{}, err
	}
	return Frame{Headers: headers, Body: data[2+n:]}, nil
}
