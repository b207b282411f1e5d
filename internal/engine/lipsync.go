package engine

import "github.com/mienlabs/mien-core/internal/rig"

const (
	// Voice band analyzed for mouth energy: fundamental plus formants,
	// excluding the DC bin.
	voiceBandLowHz  = 85.0
	voiceBandHighHz = 3000.0

	// Empirical magnitude ceiling for a Hann-windowed 1024-point spectrum
	// of normalized 16 kHz speech. Not configurable.
	lipSyncCeiling = 6.0

	lipSyncSmoothRate      = 12.0
	lipSyncActiveThreshold = 0.03

	visemeOpenGain    = 0.9
	visemeRoundedGain = 0.3
)

// SpectrumSource exposes the host audio analysis tap: a fixed-size magnitude
// spectrum refreshed on every call. A nil snapshot means the analysis node
// is not available, which is not an error.
type SpectrumSource interface {
	// SpectrumSnapshot returns energy per frequency bin, bin width
	// BinWidthHz, or nil when no analysis is possible.
	SpectrumSnapshot() []float64

	// BinWidthHz reports the frequency covered by one bin.
	BinWidthHz() float64
}

// LipSyncController converts live spectral energy into mouth-open intensity
// and the shared speaking flag, and drives the viseme channels while audio
// is active.
type LipSyncController struct {
	source SpectrumSource
	r      rig.Rig
	caps   rig.BlendshapeSet

	smoothed   float64
	active     bool
	wasWriting bool
}

func NewLipSyncController(r rig.Rig, source SpectrumSource) *LipSyncController {
	return &LipSyncController{source: source, r: r, caps: r.Blendshapes()}
}

// Update reads the current spectrum and advances the smoothed mouth value.
// Returns whether speech audio is considered active this frame.
func (l *LipSyncController) Update(dt float64) bool {
	raw := 0.0
	if l.source != nil {
		if snap := l.source.SpectrumSnapshot(); len(snap) > 0 {
			raw = bandAverage(snap, l.source.BinWidthHz())
		}
	}

	l.smoothed = approach(l.smoothed, raw, lipSyncSmoothRate, dt)
	l.active = l.smoothed > lipSyncActiveThreshold

	if l.active {
		l.setViseme(rig.Aa, visemeOpenGain*l.smoothed)
		l.setViseme(rig.Oh, visemeRoundedGain*l.smoothed)
		l.wasWriting = true
	} else if l.wasWriting {
		// One zeroing write on deactivation; ownership then returns to the
		// expression controller.
		l.setViseme(rig.Aa, 0)
		l.setViseme(rig.Oh, 0)
		l.wasWriting = false
	}
	return l.active
}

func (l *LipSyncController) setViseme(ch rig.Blendshape, w float64) {
	if l.caps.Has(ch) {
		l.r.SetBlendshape(ch, clamp01(w))
	}
}

// bandAverage averages spectrum magnitude over the voice band and clamps
// the ceiling-normalized result to [0,1].
func bandAverage(snap []float64, binWidth float64) float64 {
	if binWidth <= 0 {
		return 0
	}
	lo := int(voiceBandLowHz / binWidth)
	if lo < 1 {
		lo = 1 // never include DC
	}
	hi := int(voiceBandHighHz / binWidth)
	if hi >= len(snap) {
		hi = len(snap) - 1
	}
	if hi < lo {
		return 0
	}
	var sum float64
	for i := lo; i <= hi; i++ {
		sum += snap[i]
	}
	return clamp01(sum / float64(hi-lo+1) / lipSyncCeiling)
}

// Active reports the current speaking flag without advancing state.
func (l *LipSyncController) Active() bool { return l.active }

// Value reports the smoothed mouth-open intensity.
func (l *LipSyncController) Value() float64 { return l.smoothed }

// Dispose zeroes the viseme channels regardless of activity state.
func (l *LipSyncController) Dispose() {
	l.setViseme(rig.Aa, 0)
	l.setViseme(rig.Oh, 0)
	l.smoothed = 0
	l.active = false
	l.wasWriting = false
}
