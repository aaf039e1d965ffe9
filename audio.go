package rtagent

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/faiface/beep"
	"github.com/smallnest/ringbuffer"
)

// chunkSize returns the byte length of one audio chunk of the given
// duration for 16-bit PCM.
func chunkSize(sampleRate int, duration time.Duration, channels int) int {
	frames := int(float64(sampleRate) * duration.Seconds())
	return frames * audioBytesPerSample * channels
}

// AudioIO bridges a playback/capture device running at an arbitrary sample
// rate to the transport's fixed 24 kHz PCM. Model audio frames go in via
// WriteModelAudio and come out resampled on Playback; device microphone
// bytes go in on Microphone and come out in transport-sized chunks on
// ModelInput. Clear drops buffered playback on interruption.
type AudioIO struct {
	playbackBuffer *ringbuffer.RingBuffer
	micBuffer      *ringbuffer.RingBuffer
	playback       io.Reader
	micWriter      io.Writer
	modelInput     io.Reader
	deviceRate     int
}

func NewAudioIO(deviceSampleRate int, latency time.Duration) *AudioIO {
	playbackBuffer := ringbuffer.New(chunkSize(24_000, 60*time.Second, 1) * 2).SetBlocking(true)
	micBuffer := ringbuffer.New(chunkSize(24_000, latency, 1) * 4).SetBlocking(true)

	return &AudioIO{
		playbackBuffer: playbackBuffer,
		micBuffer:      micBuffer,
		deviceRate:     deviceSampleRate,
		playback:       newChunkReader(playbackBuffer, deviceSampleRate, latency),
		micWriter: &resampleWriter{
			sink:     micBuffer,
			fromRate: deviceSampleRate,
			toRate:   24_000,
		},
		modelInput: newChunkReader(micBuffer, 24_000, latency),
	}
}

// WriteModelAudio buffers one 24 kHz PCM frame from the model, resampled to
// the device rate.
func (a *AudioIO) WriteModelAudio(frame []byte) error {
	w := &resampleWriter{sink: a.playbackBuffer, fromRate: 24_000, toRate: a.deviceRate}
	_, err := w.Write(frame)
	return err
}

// Playback reads device-rate PCM in fixed latency-sized chunks.
func (a *AudioIO) Playback() io.Reader { return a.playback }

// Microphone accepts device-rate PCM from the capture device.
func (a *AudioIO) Microphone() io.Writer { return a.micWriter }

// ModelInput reads 24 kHz PCM chunks sized for transport frames.
func (a *AudioIO) ModelInput() io.Reader { return a.modelInput }

// Clear drops any audio buffered for playback, for barge-in.
func (a *AudioIO) Clear() {
	a.playbackBuffer.Reset()
}

// PumpInput feeds microphone audio to the transport until the reader is
// exhausted or a send fails.
func (a *AudioIO) PumpInput(send func(audio []byte, commit bool) error, latency time.Duration) error {
	buf := make([]byte, chunkSize(24_000, latency, 1))
	for {
		n, err := a.modelInput.Read(buf)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := send(buf[:n], false); err != nil {
			return err
		}
	}
}

// resampleWriter converts 16-bit mono PCM between sample rates on the way
// into its sink.
type resampleWriter struct {
	sink     io.Writer
	fromRate int
	toRate   int
}

func (w *resampleWriter) Write(p []byte) (int, error) {
	if w.fromRate == w.toRate {
		return w.sink.Write(p)
	}
	out, err := ResamplePCM(p, w.fromRate, w.toRate)
	if err != nil {
		return 0, err
	}
	if _, err := w.sink.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// pcmStreamer adapts raw little-endian 16-bit mono PCM to a beep streamer.
type pcmStreamer struct {
	data []int16
	pos  int
}

func newPCMStreamer(b []byte) *pcmStreamer {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return &pcmStreamer{data: samples}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, false
		}
		val := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = val
		samples[i][1] = val
		s.pos++
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error { return nil }

// ResamplePCM converts 16-bit mono PCM between sample rates.
func ResamplePCM(pcm []byte, fromRate, toRate int) ([]byte, error) {
	resampler := beep.Resample(3, beep.SampleRate(fromRate), beep.SampleRate(toRate), newPCMStreamer(pcm))

	buf := new(bytes.Buffer)
	sample := make([][2]float64, 1024)
	for {
		n, ok := resampler.Stream(sample)
		for i := 0; i < n; i++ {
			mono := (sample[i][0] + sample[i][1]) / 2.0
			if err := binary.Write(buf, binary.LittleEndian, int16(mono*32767)); err != nil {
				return nil, err
			}
		}
		if !ok {
			break
		}
	}
	return buf.Bytes(), nil
}

// chunkReader returns fixed-size chunks from an underlying stream,
// buffering partial reads until a full chunk is available.
type chunkReader struct {
	r    io.Reader
	buf  []byte
	size int
	eof  bool
}

func newChunkReader(r io.Reader, sampleRate int, latency time.Duration) *chunkReader {
	size := chunkSize(sampleRate, latency, 1)
	return &chunkReader{r: r, size: size, buf: make([]byte, 0, size*2)}
}

func (f *chunkReader) Read(p []byte) (int, error) {
	if len(p) < f.size {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", f.size)
	}
	for len(f.buf) < f.size && !f.eof {
		tmp := make([]byte, f.size)
		n, err := f.r.Read(tmp)
		if n > 0 {
			f.buf = append(f.buf, tmp[:n]...)
		}
		if err == io.EOF {
			f.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(f.buf) == 0 && f.eof {
		return 0, io.EOF
	}

	n := f.size
	if len(f.buf) < f.size {
		n = len(f.buf)
	}
	copy(p, f.buf[:n])
	f.buf = f.buf[n:]
	return n, nil
}
