package engine

import (
	"math"
	"math/rand"

	"github.com/mienlabs/mien-core/internal/rig"
)

const (
	// Intensity floor: emotions are never fully invisible.
	intensityFloor = 0.4
	intensitySpan  = 0.6

	// Onset snaps faster than offset, matching natural expression timing.
	expressionOnsetRate  = 9.0
	expressionOffsetRate = 3.0

	breathModAmp  = 0.06
	breathModFreq = 0.24
	breathModMin  = 0.05 // channels below this stay unmodulated

	idleVariationCooldown = 6.0
	idleVariationMin      = 4.0
	idleVariationMax      = 7.0
	nearNeutralAggregate  = 0.15
)

// emotionTemplates maps each emotion to its facial channel weights. Visemes
// stay at or near zero here; they belong to lip-sync whenever audio is live.
var emotionTemplates = [numEmotions]ExpressionTarget{
	EmotionNeutral: {},
	EmotionHappy: {
		rig.Happy:  0.85,
		rig.BrowUp: 0.25,
	},
	EmotionSad: {
		rig.Sad:      0.80,
		rig.BrowDown: 0.20,
		rig.Oh:       0.05,
	},
	EmotionAngry: {
		rig.Angry:     0.80,
		rig.BrowDown:  0.55,
		rig.EyeSquint: 0.30,
	},
	EmotionSurprised: {
		rig.Surprised: 0.90,
		rig.BrowUp:    0.60,
		rig.Aa:        0.10,
	},
	EmotionThinking: {
		rig.Relaxed:   0.30,
		rig.BrowDown:  0.25,
		rig.EyeSquint: 0.20,
	},
	EmotionAnxious: {
		rig.Sad:       0.30,
		rig.Surprised: 0.25,
		rig.BrowUp:    0.40,
		rig.EyeSquint: 0.15,
	},
	EmotionEmpathetic: {
		rig.Relaxed: 0.55,
		rig.Happy:   0.20,
		rig.BrowUp:  0.10,
	},
}

// idleVariations are the subtle micro-expressions cycled through during long
// silences, to keep the face from freezing.
var idleVariations = []ExpressionTarget{
	{rig.Relaxed: 0.12},
	{rig.Happy: 0.08, rig.Relaxed: 0.06},
	{rig.EyeSquint: 0.10},
	{rig.BrowUp: 0.08},
	{},
}

// ExpressionController composes the facial blendshape vector from the
// discrete emotion, its intensity, and idle micro-variation, and arbitrates
// viseme ownership with the lip-sync controller.
type ExpressionController struct {
	r    rig.Rig
	caps rig.BlendshapeSet
	rng  *rand.Rand

	current ExpressionTarget
	target  ExpressionTarget
	touched [rig.NumBlendshapes]bool

	lipSyncActive bool
	sinceEmotion  float64
	idleTimer     float64
}

func NewExpressionController(r rig.Rig, rng *rand.Rand) *ExpressionController {
	e := &ExpressionController{r: r, caps: r.Blendshapes(), rng: rng}
	e.sinceEmotion = idleVariationCooldown // idle variation may start immediately
	e.idleTimer = e.nextIdleVariation()
	return e
}

func (e *ExpressionController) nextIdleVariation() float64 {
	return idleVariationMin + e.rng.Float64()*(idleVariationMax-idleVariationMin)
}

// SetEmotion retargets the facial channels to template[emotion] scaled by
// the floored intensity, and resets the idle-variation cooldown.
func (e *ExpressionController) SetEmotion(em Emotion, intensity float64) {
	scale := intensityFloor + clamp01(intensity)*intensitySpan
	tmpl := emotionTemplates[em]
	for ch := range e.target {
		e.target[ch] = tmpl[ch] * scale
	}
	e.sinceEmotion = 0
	e.idleTimer = e.nextIdleVariation()
}

// SetLipSyncActive cedes the viseme channels to the lip-sync controller for
// as long as it reports live audio energy.
func (e *ExpressionController) SetLipSyncActive(on bool) { e.lipSyncActive = on }

func (e *ExpressionController) aggregate() float64 {
	var sum float64
	for _, w := range e.target {
		sum += w
	}
	return sum
}

// Update advances idle variation, per-channel smoothing, and breathing
// modulation, then writes every owned channel the model exposes.
func (e *ExpressionController) Update(dt, elapsed float64) {
	e.sinceEmotion += dt

	// During long silences near the neutral baseline, retarget to a subtle
	// idle variation on a randomized interval.
	if e.sinceEmotion >= idleVariationCooldown && e.aggregate() < nearNeutralAggregate {
		e.idleTimer -= dt
		if e.idleTimer <= 0 {
			e.target = idleVariations[e.rng.Intn(len(idleVariations))]
			e.idleTimer = e.nextIdleVariation()
		}
	}

	for ch := rig.Blendshape(0); ch < rig.NumBlendshapes; ch++ {
		if ch == rig.Blink {
			continue // blink has its own controller
		}

		// Asymmetric smoothing: onset uses the faster rate.
		rate := expressionOffsetRate
		if math.Abs(e.target[ch]) > math.Abs(e.current[ch]) {
			rate = expressionOnsetRate
		}
		e.current[ch] = approach(e.current[ch], e.target[ch], rate, dt)

		if e.lipSyncActive && isViseme(ch) {
			continue // ceded to lip-sync this frame
		}
		if !e.caps.Has(ch) {
			continue
		}

		w := e.current[ch]
		if w > breathModMin {
			// Multiplicative breathing keeps active channels from freezing.
			w *= 1 + breathModAmp*math.Sin(2*math.Pi*breathModFreq*elapsed+float64(ch)*0.9)
		}
		e.r.SetBlendshape(ch, clamp01(w))
		e.touched[ch] = true
	}
}

func isViseme(ch rig.Blendshape) bool {
	for _, v := range rig.VisemeBlendshapes {
		if ch == v {
			return true
		}
	}
	return false
}

// Current returns the smoothed weight of one channel.
func (e *ExpressionController) Current(ch rig.Blendshape) float64 { return e.current[ch] }

// Dispose zeroes every channel this controller ever touched.
func (e *ExpressionController) Dispose() {
	for ch := rig.Blendshape(0); ch < rig.NumBlendshapes; ch++ {
		if e.touched[ch] {
			e.r.SetBlendshape(ch, 0)
		}
	}
	e.current = ExpressionTarget{}
	e.target = ExpressionTarget{}
}
