package synthesizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextFrameLayout(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 45, 123000000, time.UTC)
	f := NewTextFrame(PathSSML, "abc123", "application/ssml+xml", []byte("<speak/>"), now)
	raw := string(EncodeText(f))
	assert.Equal(t, "X-Timestamp: 2024-03-01T12:30:45.123Z\r\n"+
		"X-RequestId: abc123\r\n"+
		"Path: ssml\r\n"+
		"Content-Type: application/ssml+xml\r\n\r\n"+
		"<speak/>", raw)

	parsed, err := ParseText([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, PathSSML, parsed.Path())
	assert.Equal(t, "abc123", parsed.RequestID())
	assert.Equal(t, "abc123", parsed.Get("x-requestid"))
	assert.Equal(t, "<speak/>", string(parsed.Body))
}

func TestBinaryFrame(t *testing.T) {
	f := Frame{
		Headers: []Header{{"X-RequestId", "r1"}, {"Path", PathAudio}, {"Content-Type", "audio/ogg"}},
		Body:    []byte{0x4f, 0x67, 0x67, 0x53, 0x00},
	}
	raw, err := EncodeBinary(f)
	require.NoError(t, err)
	head := "X-RequestId: r1\r\nPath: audio\r\nContent-Type: audio/ogg"
	assert.Equal(t, []byte{0, byte(len(head))}, raw[:2])

	parsed, err := ParseBinary(raw)
	require.NoError(t, err)
	assert.Equal(t, PathAudio, parsed.Path())
	assert.Equal(t, "r1", parsed.RequestID())
	assert.Equal(t, f.Body, parsed.Body)
}

func TestBinaryFrameErrors(t *testing.T) {
	_, err := ParseBinary([]byte{0})
	assert.ErrorIs(t, err, ErrShortFrame)
	_, err = ParseBinary([]byte{0, 10, 'P'})
	assert.ErrorIs(t, err, ErrShortFrame)
	_, err = ParseBinary(append([]byte{0, 4}, "junk"...))
	assert.ErrorIs(t, err, ErrMalformedHead)
}
