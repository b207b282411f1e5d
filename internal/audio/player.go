// Package audio schedules decoded PCM speech chunks for gapless playback
// and exposes a frequency-domain analysis tap for lip-sync.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// SampleRate is the fixed dialogue-service output format: 16-bit PCM,
	// mono, 16 kHz.
	SampleRate = 16000

	fftSize = 1024

	// SpectrumBins is the fixed snapshot size: positive frequencies only.
	SpectrumBins = fftSize/2 + 1

	// BinWidthHz is the frequency covered by one spectrum bin.
	BinWidthHz = float64(SampleRate) / fftSize
)

// ErrDisposed is returned by Enqueue once the player has been released.
var ErrDisposed = errors.New("audio: player disposed")

// Clock reports elapsed time on the playback timeline. Injected in tests;
// the default clock is monotonic wall time since the player was created.
type Clock func() time.Duration

type chunk struct {
	startAt time.Duration
	samples []float64
}

func (c chunk) duration() time.Duration {
	return time.Duration(len(c.samples)) * time.Second / SampleRate
}

func (c chunk) endAt() time.Duration { return c.startAt + c.duration() }

// Player accepts arbitrary-sized PCM chunks and schedules each to begin at
// max(now, end of the previously scheduled chunk), guaranteeing gapless,
// order-preserving playback even under bursty delivery. Chunks arriving
// slower than real time leave a silence gap; no underrun recovery is
// attempted.
type Player struct {
	mu       sync.Mutex
	clock    Clock
	cursor   time.Duration // next free slot on the playback timeline
	chunks   []chunk
	disposed bool
	log      *slog.Logger

	scheduled time.Duration // total audio ever scheduled, for metrics

	fft    *fourier.FFT
	window []float64
	frame  []float64 // scratch, fftSize
}

// NewPlayer builds a player. A nil clock selects monotonic wall time.
func NewPlayer(clock Clock, log *slog.Logger) *Player {
	if clock == nil {
		start := time.Now()
		clock = func() time.Duration { return time.Since(start) }
	}
	return &Player{
		clock:  clock,
		log:    log.With(slog.String("component", "audio-player")),
		fft:    fourier.NewFFT(fftSize),
		window: hannWindow(fftSize),
		frame:  make([]float64, fftSize),
	}
}

// DecodePCM16 converts little-endian 16-bit PCM into normalized samples.
// A trailing odd byte is dropped.
func DecodePCM16(b []byte) []float64 {
	n := len(b) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float64(v) / 32768
	}
	return out
}

// EnqueueBase64 decodes one base64 PCM chunk and schedules it. A decode
// failure affects only this chunk; playback of subsequent chunks continues.
func (p *Player) EnqueueBase64(data string) error {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return err
	}
	_, err = p.Enqueue(DecodePCM16(raw))
	return err
}

// Enqueue schedules decoded samples and returns their start time on the
// playback timeline.
func (p *Player) Enqueue(samples []float64) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return 0, ErrDisposed
	}
	if len(samples) == 0 {
		return p.cursor, nil
	}

	now := p.clock()
	start := p.cursor
	if now > start {
		start = now
	}
	c := chunk{startAt: start, samples: samples}
	p.chunks = append(p.chunks, c)
	p.cursor = c.endAt()
	p.scheduled += c.duration()
	p.pruneLocked(now)
	return start, nil
}

// pruneLocked drops chunks that finished before now.
func (p *Player) pruneLocked(now time.Duration) {
	keep := p.chunks[:0]
	for _, c := range p.chunks {
		if c.endAt() > now {
			keep = append(keep, c)
		}
	}
	p.chunks = keep
}

// Pending counts scheduled chunks that have not finished playing.
func (p *Player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	n := 0
	for _, c := range p.chunks {
		if c.endAt() > now {
			n++
		}
	}
	return n
}

// IsAudible reports whether any scheduled chunk covers the current instant.
func (p *Player) IsAudible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clock()
	for _, c := range p.chunks {
		if c.startAt <= now && now < c.endAt() {
			return true
		}
	}
	return false
}

// ScheduledTotal reports the total duration of audio ever scheduled.
func (p *Player) ScheduledTotal() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduled
}

// SpectrumSnapshot computes the magnitude spectrum of the fftSize samples
// ending at the playhead. Fixed-size; all zeros when nothing is audible.
func (p *Player) SpectrumSnapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]float64, SpectrumBins)
	if p.disposed {
		return out
	}
	now := p.clock()

	var cur *chunk
	for i := range p.chunks {
		c := &p.chunks[i]
		if c.startAt <= now && now < c.endAt() {
			cur = c
			break
		}
	}
	if cur == nil {
		return out
	}

	// Window ending at the playhead offset inside the current chunk,
	// zero-padded before the chunk start.
	pos := int((now - cur.startAt) * SampleRate / time.Second)
	if pos > len(cur.samples) {
		pos = len(cur.samples)
	}
	for i := range p.frame {
		idx := pos - fftSize + i
		if idx >= 0 && idx < len(cur.samples) {
			p.frame[i] = cur.samples[idx] * p.window[i]
		} else {
			p.frame[i] = 0
		}
	}

	coeffs := p.fft.Coefficients(nil, p.frame)
	for i := 0; i < SpectrumBins && i < len(coeffs); i++ {
		out[i] = math.Hypot(real(coeffs[i]), imag(coeffs[i]))
	}
	return out
}

// BinWidthHz reports the snapshot bin width.
func (p *Player) BinWidthHz() float64 { return BinWidthHz }

// RenderAt copies the samples scheduled over [from, from+len(dst)/rate)
// into dst, silence where nothing is scheduled. Used by the output device.
func (p *Player) RenderAt(from time.Duration, dst []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range dst {
		dst[i] = 0
	}
	if p.disposed {
		return
	}
	for _, c := range p.chunks {
		offset := int((from - c.startAt) * SampleRate / time.Second)
		for i := range dst {
			idx := offset + i
			if idx >= 0 && idx < len(c.samples) {
				dst[i] += float32(c.samples[idx])
			}
		}
	}
}

// Stop discards the queue and resets the scheduling cursor without tearing
// down the pipeline; playback can resume immediately.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = nil
	p.cursor = 0
}

// Dispose releases the player. Further enqueues fail with ErrDisposed.
func (p *Player) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.chunks = nil
	p.cursor = 0
	p.disposed = true
	p.log.Debug("audio player disposed")
}

func hannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return w
}
