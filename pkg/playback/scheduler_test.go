package playback_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/code-100-precent/LingReader/pkg/playback"
	"github.com/code-100-precent/LingReader/pkg/playback/playbacktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t         *testing.T
	player    *playbacktest.Player
	blobs     *playback.BlobStore
	sched     *playback.Scheduler
	tasks     chan func()
	completed int
	dropped   int
}

func newHarness(t *testing.T, min, max int) *harness {
	h := &harness{
		t:      t,
		player: playbacktest.New(),
		blobs:  playback.NewBlobStore("", nil),
		tasks:  make(chan func(), 16),
	}
	build := func(packets [][]byte) ([]byte, error) {
		return bytes.Join(packets, nil), nil
	}
	h.sched = playback.NewScheduler(
		playback.SchedulerConfig{MinSegmentBytes: min, MaxQueueBytes: max, BytesPerSecond: 1000},
		h.player, h.blobs, build,
		func(fn func()) { h.tasks <- fn },
		nil,
	)
	h.sched.OnComplete(func() { h.completed++ })
	h.sched.OnDrop(func(int) { h.dropped++ })
	return h
}

// finish ends the playing segment and runs the completion on this goroutine
func (h *harness) finish() {
	h.t.Helper()
	h.player.Finish()
	select {
	case fn := <-h.tasks:
		fn()
	case <-time.After(time.Second):
		h.t.Fatal("segment completion was not dispatched")
	}
}

func (h *harness) segments() [][]byte {
	var out [][]byte
	for _, b := range h.player.Plays() {
		out = append(out, b.Data)
	}
	return out
}

func chunk(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n)
}

func TestWaitsForTwoSegmentsWhileStreaming(t *testing.T) {
	h := newHarness(t, 10, 1000)
	h.sched.Enqueue(chunk(6, 'a'))
	h.sched.Enqueue(chunk(6, 'b'))
	assert.Empty(t, h.player.Plays(), "12 bytes would leave a 2 byte remainder")

	h.sched.Enqueue(chunk(10, 'c'))
	require.Len(t, h.player.Plays(), 1)
	assert.Equal(t, append(chunk(6, 'a'), chunk(6, 'b')...), h.segments()[0])
	assert.Equal(t, 10, h.sched.Queued())
	assert.True(t, h.sched.Playing())
}

func TestCompleteFlushesShortRemainder(t *testing.T) {
	h := newHarness(t, 10, 1000)
	h.sched.Enqueue(chunk(4, 'a'))
	h.sched.MarkComplete()
	require.Len(t, h.player.Plays(), 1)
	assert.Equal(t, chunk(4, 'a'), h.segments()[0])

	h.finish()
	assert.Equal(t, 1, h.completed)
	assert.Equal(t, 0, h.blobs.Len())
}

func TestExactlyMinimumIsOneSegment(t *testing.T) {
	h := newHarness(t, 10, 1000)
	h.sched.Enqueue(chunk(5, 'a'))
	h.sched.Enqueue(chunk(5, 'b'))
	h.sched.MarkComplete()
	require.Len(t, h.player.Plays(), 1)
	h.finish()
	assert.Len(t, h.player.Plays(), 1)
	assert.Equal(t, 1, h.completed)
}

func TestCompleteMergesSmallTail(t *testing.T) {
	h := newHarness(t, 10, 1000)
	h.sched.Enqueue(chunk(10, 'a'))
	h.sched.Enqueue(chunk(3, 'b'))
	h.sched.MarkComplete()
	require.Len(t, h.player.Plays(), 1)
	assert.Len(t, h.segments()[0], 13)
}

func TestOneSegmentAtATime(t *testing.T) {
	h := newHarness(t, 10, 1000)
	for i := 0; i < 5; i++ {
		h.sched.Enqueue(chunk(10, byte('a'+i)))
	}
	require.Len(t, h.player.Plays(), 1)
	h.sched.MarkComplete()
	require.Len(t, h.player.Plays(), 1)

	for i := 0; i < 4; i++ {
		h.finish()
	}
	require.Len(t, h.player.Plays(), 5)
	for _, seg := range h.segments() {
		assert.Len(t, seg, 10)
	}
	assert.Equal(t, 0, h.completed)
	h.finish()
	assert.Equal(t, 1, h.completed)
}

func TestPausedBlocksNewSegments(t *testing.T) {
	h := newHarness(t, 10, 1000)
	require.NoError(t, h.sched.Pause())
	h.sched.Enqueue(chunk(30, 'a'))
	h.sched.MarkComplete()
	assert.Empty(t, h.player.Plays())

	require.NoError(t, h.sched.Resume())
	assert.Len(t, h.player.Plays(), 1)
}

func TestPauseResumeDelegates(t *testing.T) {
	h := newHarness(t, 10, 1000)
	h.sched.Enqueue(chunk(10, 'a'))
	h.sched.MarkComplete()
	require.NoError(t, h.sched.Pause())
	assert.True(t, h.player.Paused())
	require.NoError(t, h.sched.Resume())
	assert.False(t, h.player.Paused())
}

func TestQueueBoundDropsChunks(t *testing.T) {
	h := newHarness(t, 10, 25)
	assert.True(t, h.sched.Enqueue(chunk(10, 'a')))
	assert.True(t, h.sched.Enqueue(chunk(10, 'b')))
	// the first segment took 10 bytes, 10 remain queued
	assert.True(t, h.sched.Enqueue(chunk(10, 'c')))
	assert.False(t, h.sched.Enqueue(chunk(10, 'd')))
	assert.Equal(t, 1, h.dropped)
}

func TestResetRevokesAndIgnoresStaleCompletion(t *testing.T) {
	h := newHarness(t, 10, 1000)
	h.sched.Enqueue(chunk(10, 'a'))
	h.sched.MarkComplete()
	require.Equal(t, 1, h.blobs.Len())

	h.sched.Reset()
	assert.Equal(t, 0, h.blobs.Len())
	assert.Equal(t, 1, h.player.Stops())
	assert.False(t, h.sched.Playing())
	assert.Zero(t, h.sched.Queued())

	// the stopped segment's completion still arrives and must be ignored
	select {
	case fn := <-h.tasks:
		fn()
	case <-time.After(time.Second):
		t.Fatal("stop did not dispatch completion")
	}
	assert.Equal(t, 0, h.completed)
}

func TestBuildErrorSkipsSegment(t *testing.T) {
	player := playbacktest.New()
	blobs := playback.NewBlobStore("", nil)
	calls := 0
	sched := playback.NewScheduler(playback.SchedulerConfig{MinSegmentBytes: 4}, player, blobs,
		func([][]byte) ([]byte, error) { calls++; return nil, errors.New("no headers") },
		func(fn func()) { fn() }, nil)
	completed := false
	sched.OnComplete(func() { completed = true })

	sched.Enqueue(chunk(4, 'a'))
	sched.MarkComplete()
	assert.Equal(t, 1, calls)
	assert.Empty(t, player.Plays())
	assert.True(t, completed)
}
