package rtagent

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSize(t *testing.T) {
	// 24 kHz, 16-bit mono: 100 ms = 2400 frames = 4800 bytes.
	assert.Equal(t, 4800, chunkSize(24_000, 100*time.Millisecond, 1))
	assert.Equal(t, 1920, chunkSize(48_000, 20*time.Millisecond, 1))
}

func TestChunkReader(t *testing.T) {
	src := bytes.NewReader(make([]byte, 10_000))
	reader := newChunkReader(src, 24_000, 100*time.Millisecond)

	buf := make([]byte, 4800)
	n, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4800, n)

	n, err = reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 4800, n)

	// Trailing partial chunk.
	n, err = reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 400, n)

	_, err = reader.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestChunkReader_SmallBuffer(t *testing.T) {
	reader := newChunkReader(bytes.NewReader(make([]byte, 100)), 24_000, 100*time.Millisecond)
	_, err := reader.Read(make([]byte, 10))
	assert.Error(t, err)
}

func TestAudioIO_PlaybackRoundTrip(t *testing.T) {
	// Device at the transport rate: no resampling, bytes pass through.
	audioIO := NewAudioIO(24_000, 100*time.Millisecond)

	frame := bytes.Repeat([]byte{0x11, 0x22}, 2400)
	require.NoError(t, audioIO.WriteModelAudio(frame))

	buf := make([]byte, 4800)
	n, err := audioIO.Playback().Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4800, n)
	assert.Equal(t, frame, buf[:n])
}

func TestAudioIO_ClearDropsBufferedPlayback(t *testing.T) {
	audioIO := NewAudioIO(24_000, 100*time.Millisecond)

	stale := bytes.Repeat([]byte{0x11}, 4800)
	require.NoError(t, audioIO.WriteModelAudio(stale))

	// Barge-in: everything buffered before the interruption is gone.
	audioIO.Clear()

	fresh := bytes.Repeat([]byte{0x22}, 4800)
	require.NoError(t, audioIO.WriteModelAudio(fresh))

	buf := make([]byte, 4800)
	n, err := audioIO.Playback().Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4800, n)
	assert.Equal(t, fresh, buf[:n])
}

func TestAudioIO_MicrophoneToModelInput(t *testing.T) {
	audioIO := NewAudioIO(24_000, 100*time.Millisecond)

	captured := bytes.Repeat([]byte{0x33, 0x44}, 2400)
	n, err := audioIO.Microphone().Write(captured)
	require.NoError(t, err)
	require.Equal(t, len(captured), n)

	buf := make([]byte, 4800)
	n, err = audioIO.ModelInput().Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4800, n)
	assert.Equal(t, captured, buf[:n])
}

func TestResamplePCM(t *testing.T) {
	// One second of silence at 48 kHz downsamples to roughly one second at
	// 24 kHz; the resampler may emit a few frames more or less at the edges.
	in := make([]byte, 48_000*2)
	out, err := ResamplePCM(in, 48_000, 24_000)
	require.NoError(t, err)
	assert.InDelta(t, 24_000*2, len(out), 512)
}
