package ogg

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testSerial = 0x1234abcd

func opusHead() []byte {
	b := append([]byte(nil), OpusHeadMagic...)
	b = append(b, 1, 1)                            // version, channels
	b = binary.LittleEndian.AppendUint16(b, 312)   // pre-skip
	b = binary.LittleEndian.AppendUint32(b, 24000) // input rate
	b = binary.LittleEndian.AppendUint16(b, 0)     // gain
	return append(b, 0)                            // mapping family
}

func opusTags() []byte {
	b := append([]byte(nil), OpusTagsMagic...)
	b = binary.LittleEndian.AppendUint32(b, 6)
	b = append(b, "vendor"...)
	return binary.LittleEndian.AppendUint32(b, 0)
}

func mustPage(t *testing.T, p *Page) []byte {
	t.Helper()
	raw, err := p.Marshal(ChecksumRFC3533)
	require.NoError(t, err)
	return raw
}

func packetPage(t *testing.T, seq uint32, flags byte, payload []byte) []byte {
	return mustPage(t, &Page{HeaderType: flags, Serial: testSerial, Sequence: seq, Segments: Lacing(len(payload)), Payload: payload})
}

func packet(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

// testStream returns a header+audio stream and the audio packets inside it
func testStream(t *testing.T) ([]byte, [][]byte) {
	t.Helper()
	var stream bytes.Buffer
	stream.Write(packetPage(t, 0, FlagBOS, opusHead()))
	stream.Write(packetPage(t, 1, 0, opusTags()))

	packets := [][]byte{packet(120, 1), packet(255, 2), packet(3, 3), packet(700, 4)}

	// page 2 carries three packets
	var p2 Page
	p2.Serial, p2.Sequence, p2.Granule = testSerial, 2, 960
	for _, pk := range packets[:3] {
		p2.Segments = append(p2.Segments, Lacing(len(pk))...)
		p2.Payload = append(p2.Payload, pk...)
	}
	stream.Write(mustPage(t, &p2))

	// the 700 byte packet is split over pages 3 and 4
	big := packets[3]
	stream.Write(mustPage(t, &Page{Serial: testSerial, Sequence: 3, Granule: GranuleNone, Segments: []byte{255, 255}, Payload: big[:510]}))
	stream.Write(mustPage(t, &Page{HeaderType: FlagContinued, Serial: testSerial, Sequence: 4, Granule: 1920, Segments: []byte{190}, Payload: big[510:]}))
	return stream.Bytes(), packets
}

func TestChecksumVectors(t *testing.T) {
	assert.Equal(t, uint32(0xCBF43926), ChecksumIEEE([]byte("123456789")))
	assert.Equal(t, uint32(0x89A1897F), ChecksumRFC3533([]byte("123456789")))
}

func TestLacing(t *testing.T) {
	assert.Equal(t, []byte{0}, Lacing(0))
	assert.Equal(t, []byte{10}, Lacing(10))
	assert.Equal(t, []byte{255, 0}, Lacing(255))
	assert.Equal(t, []byte{255, 255, 0}, Lacing(510))
	assert.Equal(t, []byte{255, 1}, Lacing(256))
}

func TestParsePageRoundTrip(t *testing.T) {
	raw := packetPage(t, 7, FlagBOS, []byte("payload"))
	p, n, err := ParsePage(append(raw, 0xEE))
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, uint32(7), p.Sequence)
	assert.Equal(t, uint32(testSerial), p.Serial)
	assert.Equal(t, FlagBOS, p.HeaderType)
	assert.Equal(t, []byte("payload"), p.Payload)
	assert.NoError(t, Verify(raw, ChecksumRFC3533))
	assert.ErrorIs(t, Verify(raw, ChecksumIEEE), ErrBadChecksum)
}

func TestParsePageErrors(t *testing.T) {
	raw := packetPage(t, 0, 0, []byte("abcdef"))
	for _, cut := range []int{0, 2, 10, HeaderSize, HeaderSize + 1, len(raw) - 1} {
		_, _, err := ParsePage(raw[:cut])
		assert.ErrorIs(t, err, ErrIncomplete, "cut at %d", cut)
	}
	_, _, err := ParsePage([]byte("NotOggAtAll"))
	assert.ErrorIs(t, err, ErrBadCapture)

	bad := append([]byte(nil), raw...)
	bad[4] = 1
	_, _, err = ParsePage(bad)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestHeaderSplitAcrossChunks(t *testing.T) {
	head := packetPage(t, 0, FlagBOS, opusHead())
	tags := packetPage(t, 1, 0, opusTags())

	r := NewReassembler()
	assert.Nil(t, r.ProcessChunk(head[:19]))
	assert.False(t, r.HeadersParsed())
	assert.Empty(t, r.HeaderPages())

	assert.Nil(t, r.ProcessChunk(append(append([]byte(nil), head[19:]...), tags...)))
	assert.True(t, r.HeadersParsed())
	pages := r.HeaderPages()
	require.Len(t, pages, 2)
	assert.Equal(t, head, pages[0])
	assert.Equal(t, tags, pages[1])
}

func TestChunkingDoesNotChangeOutput(t *testing.T) {
	stream, want := testStream(t)

	whole := NewReassembler()
	got := whole.ProcessChunk(stream)
	require.Equal(t, want, got)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		r := NewReassembler()
		var packets [][]byte
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(64)
			if n > len(rest) {
				n = len(rest)
			}
			packets = append(packets, r.ProcessChunk(rest[:n])...)
			rest = rest[n:]
		}
		require.Equal(t, want, packets, "round %d", round)
		assert.Equal(t, whole.HeaderPages(), r.HeaderPages())
	}
}

func TestResyncSkipsGarbage(t *testing.T) {
	stream, want := testStream(t)
	r := NewReassembler()
	got := r.ProcessChunk(append([]byte("garbage-before-stream"), stream...))
	assert.Equal(t, want, got)
}

func TestLostContinuationIsDropped(t *testing.T) {
	r := NewReassembler()
	r.ProcessChunk(packetPage(t, 0, FlagBOS, opusHead()))
	r.ProcessChunk(packetPage(t, 1, 0, opusTags()))

	orphan := mustPage(t, &Page{HeaderType: FlagContinued, Serial: testSerial, Sequence: 5, Segments: []byte{40, 8}, Payload: append(packet(40, 9), packet(8, 8)...)})
	assert.Equal(t, [][]byte{packet(8, 8)}, r.ProcessChunk(orphan))
}

func TestBufferOverflowRestartsFromNewestChunk(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewReassembler(WithMaxBuffer(64), WithLogger(zap.New(core)))

	// a header announcing 200 lacing values that never arrive
	pending := append([]byte("OggS"), packet(22, 0)...)
	pending = append(pending, 200)
	pending = append(pending, packet(24, 0)...)
	assert.Nil(t, r.ProcessChunk(pending))
	assert.Equal(t, 51, r.Buffered())

	head := packetPage(t, 0, FlagBOS, opusHead())
	require.Less(t, len(head), 64)
	r.ProcessChunk(head)
	assert.Equal(t, 1, logs.FilterMessageSnippet("overflow").Len())
	assert.Equal(t, 0, r.Buffered())
	require.Len(t, r.HeaderPages(), 1)
	assert.Equal(t, head, r.HeaderPages()[0])
}

func TestCreateSegmentRequiresHeaders(t *testing.T) {
	r := NewReassembler()
	_, err := r.CreateSegment([][]byte{packet(10, 1)})
	assert.ErrorIs(t, err, ErrHeadersMissing)

	stream, _ := testStream(t)
	r.ProcessChunk(stream)
	_, err = r.CreateSegment(nil)
	assert.ErrorIs(t, err, ErrNoPackets)
}

func parseAll(t *testing.T, data []byte, sum Checksum) []*Page {
	t.Helper()
	var pages []*Page
	for len(data) > 0 {
		p, n, err := ParsePage(data)
		require.NoError(t, err)
		require.NoError(t, Verify(data[:n], sum))
		pages = append(pages, p)
		data = data[n:]
	}
	return pages
}

func TestCreateSegment(t *testing.T) {
	stream, packets := testStream(t)
	r := NewReassembler()
	r.ProcessChunk(stream)

	seg, err := r.CreateSegment(packets)
	require.NoError(t, err)

	headers := r.HeaderPages()
	require.True(t, bytes.HasPrefix(seg, append(append([]byte(nil), headers[0]...), headers[1]...)))

	audio := parseAll(t, seg[len(headers[0])+len(headers[1]):], ChecksumIEEE)
	require.Len(t, audio, 1)
	p := audio[0]
	assert.Equal(t, uint32(2), p.Sequence)
	assert.Equal(t, uint32(testSerial), p.Serial)
	assert.Equal(t, byte(0), p.HeaderType)

	var want []byte
	var lacing []byte
	for _, pk := range packets {
		want = append(want, pk...)
		lacing = append(lacing, Lacing(len(pk))...)
	}
	assert.Equal(t, want, p.Payload)
	assert.Equal(t, lacing, p.Segments)
	assert.Equal(t, uint64(len(want))*48000/DefaultBytesPerSecond, p.Granule)

	// the next segment continues sequence and granule
	seg2, err := r.CreateSegment([][]byte{packet(100, 5)})
	require.NoError(t, err)
	next := parseAll(t, seg2[len(headers[0])+len(headers[1]):], ChecksumIEEE)
	require.Len(t, next, 1)
	assert.Equal(t, uint32(3), next[0].Sequence)
	assert.Greater(t, next[0].Granule, p.Granule)
}

func TestCreateSegmentSplitsLargePackets(t *testing.T) {
	stream, _ := testStream(t)
	r := NewReassembler(WithChecksum(ChecksumRFC3533))
	r.ProcessChunk(stream)

	big := packet(255*300, 7)
	seg, err := r.CreateSegment([][]byte{big, packet(10, 8)})
	require.NoError(t, err)

	headers := r.HeaderPages()
	pages := parseAll(t, seg[len(headers[0])+len(headers[1]):], ChecksumRFC3533)
	require.Len(t, pages, 2)
	assert.Len(t, pages[0].Segments, MaxSegments)
	assert.Equal(t, GranuleNone, pages[0].Granule)
	assert.Equal(t, FlagContinued, pages[1].HeaderType)
	// 45 more full runs, the terminating 0, then the small packet
	assert.Equal(t, 47, len(pages[1].Segments))
	assert.Equal(t, byte(0), pages[1].Segments[45])

	reparsed := NewReassembler()
	got := reparsed.ProcessChunk(seg)
	require.Len(t, got, 2)
	assert.Equal(t, big, got[0])
}

func TestReset(t *testing.T) {
	stream, _ := testStream(t)
	r := NewReassembler()
	r.ProcessChunk(stream)
	require.True(t, r.HeadersParsed())

	r.Reset()
	assert.False(t, r.HeadersParsed())
	assert.Empty(t, r.HeaderPages())
	assert.Zero(t, r.Buffered())
}

func TestResetThenReplayIsIdentical(t *testing.T) {
	stream, want := testStream(t)

	run := func(r *Reassembler) ([][]byte, [][]byte, []byte) {
		var packets [][]byte
		for rest := stream; len(rest) > 0; {
			n := 37
			if n > len(rest) {
				n = len(rest)
			}
			packets = append(packets, r.ProcessChunk(rest[:n])...)
			rest = rest[n:]
		}
		seg, err := r.CreateSegment(packets)
		require.NoError(t, err)
		return packets, r.HeaderPages(), seg
	}

	r := NewReassembler()
	packets1, headers1, seg1 := run(r)
	require.Equal(t, want, packets1)

	r.Reset()
	packets2, headers2, seg2 := run(r)
	assert.Equal(t, packets1, packets2)
	assert.Equal(t, headers1, headers2)
	assert.Equal(t, seg1, seg2)

	// a reset in the middle of a continued packet leaves nothing behind
	r.Reset()
	r.ProcessChunk(stream[:len(stream)-40])
	r.Reset()
	packets3, headers3, seg3 := run(r)
	assert.Equal(t, packets1, packets3)
	assert.Equal(t, headers1, headers3)
	assert.Equal(t, seg1, seg3)
}
