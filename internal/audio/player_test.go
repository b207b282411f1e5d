package audio

import (
	"encoding/base64"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testPlayer() (*Player, *time.Duration) {
	now := new(time.Duration)
	p := NewPlayer(func() time.Duration { return *now }, newLogger())
	return p, now
}

func samplesFor(d time.Duration) []float64 {
	return make([]float64, int(d*SampleRate/time.Second))
}

func TestDecodePCM16(t *testing.T) {
	b := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x2a}
	out := DecodePCM16(b)
	if len(out) != 3 {
		t.Fatalf("expected trailing odd byte dropped, got %d samples", len(out))
	}
	if out[0] != 0 {
		t.Fatalf("expected 0, got %v", out[0])
	}
	if math.Abs(out[1]-32767.0/32768) > 1e-9 {
		t.Fatalf("expected max positive, got %v", out[1])
	}
	if out[2] != -1 {
		t.Fatalf("expected -1, got %v", out[2])
	}
}

func TestBurstArrivalSchedulesBackToBack(t *testing.T) {
	p, _ := testPlayer()

	d := 100 * time.Millisecond
	var starts []time.Duration
	for i := 0; i < 3; i++ {
		start, err := p.Enqueue(samplesFor(d))
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		starts = append(starts, start)
	}

	for i, want := range []time.Duration{0, d, 2 * d} {
		if starts[i] != want {
			t.Fatalf("chunk %d: expected start %v, got %v", i, want, starts[i])
		}
	}
	if got := p.ScheduledTotal(); got != 3*d {
		t.Fatalf("expected %v scheduled, got %v", 3*d, got)
	}
}

func TestJitteredArrivalStaysGapless(t *testing.T) {
	p, now := testPlayer()

	d := 100 * time.Millisecond
	if _, err := p.Enqueue(samplesFor(d)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Second chunk arrives while the first still plays; it must queue at the
	// first chunk's end, not at arrival time.
	*now = 40 * time.Millisecond
	start, err := p.Enqueue(samplesFor(d))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if start != d {
		t.Fatalf("expected gapless start %v, got %v", d, start)
	}

	for _, probe := range []time.Duration{10 * time.Millisecond, 99 * time.Millisecond, 150 * time.Millisecond} {
		*now = probe
		if !p.IsAudible() {
			t.Fatalf("expected audible at %v", probe)
		}
	}
	*now = 250 * time.Millisecond
	if p.IsAudible() {
		t.Fatal("expected silence after queue drained")
	}
}

func TestLateChunkStartsAtArrival(t *testing.T) {
	p, now := testPlayer()

	d := 100 * time.Millisecond
	if _, err := p.Enqueue(samplesFor(d)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	*now = 250 * time.Millisecond
	if p.IsAudible() {
		t.Fatal("expected gap before late chunk")
	}
	start, err := p.Enqueue(samplesFor(d))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if start != 250*time.Millisecond {
		t.Fatalf("expected late chunk to start at arrival, got %v", start)
	}
}

func TestEnqueueBase64BadDataFails(t *testing.T) {
	p, _ := testPlayer()
	if err := p.EnqueueBase64("not base64!!!"); err == nil {
		t.Fatal("expected decode error")
	}
	// The failure must not poison the queue.
	raw := make([]byte, 320)
	if err := p.EnqueueBase64(base64.StdEncoding.EncodeToString(raw)); err != nil {
		t.Fatalf("enqueue after failure: %v", err)
	}
	if p.Pending() != 1 {
		t.Fatalf("expected 1 pending chunk, got %d", p.Pending())
	}
}

func TestSpectrumSilenceIsZero(t *testing.T) {
	p, now := testPlayer()

	snap := p.SpectrumSnapshot()
	if len(snap) != SpectrumBins {
		t.Fatalf("expected %d bins, got %d", SpectrumBins, len(snap))
	}
	for i, v := range snap {
		if v != 0 {
			t.Fatalf("bin %d: expected 0 when idle, got %v", i, v)
		}
	}

	// Scheduled digital silence must also read as zero energy.
	if _, err := p.Enqueue(samplesFor(200 * time.Millisecond)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	*now = 100 * time.Millisecond
	for i, v := range p.SpectrumSnapshot() {
		if v != 0 {
			t.Fatalf("bin %d: expected 0 for silent chunk, got %v", i, v)
		}
	}
}

func TestSpectrumDetectsTone(t *testing.T) {
	p, now := testPlayer()

	// 500 Hz lands exactly on bin 32 at 16 kHz / 1024 points.
	freq := 500.0
	samples := make([]float64, SampleRate/4)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/SampleRate)
	}
	if _, err := p.Enqueue(samples); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	*now = 150 * time.Millisecond

	snap := p.SpectrumSnapshot()
	peak := 0
	for i, v := range snap {
		if v > snap[peak] {
			peak = i
		}
	}
	want := int(freq / BinWidthHz)
	if peak != want {
		t.Fatalf("expected spectral peak at bin %d, got %d", want, peak)
	}
	if snap[peak] == 0 {
		t.Fatal("expected non-zero energy at peak")
	}
}

func TestRenderAtCopiesScheduledSamples(t *testing.T) {
	p, _ := testPlayer()

	samples := []float64{0.1, 0.2, 0.3, 0.4}
	if _, err := p.Enqueue(samples); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	dst := make([]float32, 6)
	p.RenderAt(0, dst)
	for i, want := range samples {
		if math.Abs(float64(dst[i])-want) > 1e-6 {
			t.Fatalf("sample %d: expected %v, got %v", i, want, dst[i])
		}
	}
	if dst[4] != 0 || dst[5] != 0 {
		t.Fatal("expected silence past the scheduled chunk")
	}
}

func TestStopClearsQueueWithoutTeardown(t *testing.T) {
	p, now := testPlayer()

	if _, err := p.Enqueue(samplesFor(time.Second)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	*now = 100 * time.Millisecond
	p.Stop()

	if p.Pending() != 0 {
		t.Fatalf("expected empty queue after stop, got %d", p.Pending())
	}
	if p.IsAudible() {
		t.Fatal("expected silence after stop")
	}

	start, err := p.Enqueue(samplesFor(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("enqueue after stop: %v", err)
	}
	if start != *now {
		t.Fatalf("expected playback to resume at now, got %v", start)
	}
}

func TestDisposeRejectsFurtherEnqueues(t *testing.T) {
	p, _ := testPlayer()
	p.Dispose()
	if _, err := p.Enqueue(samplesFor(10 * time.Millisecond)); err != ErrDisposed {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
	p.Dispose()
}
