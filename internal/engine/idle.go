package engine

import (
	"math"
	"math/rand"

	"github.com/mienlabs/mien-core/internal/rig"
)

const (
	weightShiftMin   = 8.0  // seconds between hip retargets
	weightShiftMax   = 15.0 //
	weightShiftAmp   = 0.02 // radians
	weightShiftOmega = 1.4  // critically-damped natural frequency, 1/s

	nodIntervalMin = 2.0
	nodIntervalMax = 4.0
	nodDuration    = 0.35
	nodAmplitude   = 0.07
)

// sine is one component of the layered micro-motion. Summing two or three
// incommensurate frequencies per axis keeps the motion from reading as
// periodic.
type sine struct {
	amp, freq, phase float64
}

func (s sine) at(t float64) float64 {
	return s.amp * math.Sin(2*math.Pi*s.freq*t+s.phase)
}

func sumSines(t float64, components ...sine) float64 {
	var v float64
	for _, c := range components {
		v += c.at(t)
	}
	return v
}

// IdleMotion produces continuous low-amplitude rotation offsets for the
// head, spine, chest, and hips: breathing, micro-restlessness, a slow hip
// weight shift, and optional listening nod pulses.
type IdleMotion struct {
	rng   *rand.Rand
	scale float64 // external amplitude damping, 1.0 at rest

	listening bool
	nodTimer  float64
	nodActive bool
	nodAge    float64

	shiftTimer  float64
	shiftTarget float64
	shiftPos    float64
	shiftVel    float64
}

func NewIdleMotion(rng *rand.Rand) *IdleMotion {
	m := &IdleMotion{rng: rng, scale: 1}
	m.shiftTimer = m.nextShift()
	m.nodTimer = m.nextNod()
	return m
}

func (m *IdleMotion) nextShift() float64 {
	return weightShiftMin + m.rng.Float64()*(weightShiftMax-weightShiftMin)
}

func (m *IdleMotion) nextNod() float64 {
	return nodIntervalMin + m.rng.Float64()*(nodIntervalMax-nodIntervalMin)
}

// SetListening toggles the periodic head-nod pulses. A pulse already in
// flight always completes.
func (m *IdleMotion) SetListening(on bool) {
	m.listening = on
}

// SetAmplitudeScale damps the continuous motion, e.g. while speech audio is
// active. Nod pulses are not damped; they carry meaning.
func (m *IdleMotion) SetAmplitudeScale(s float64) {
	m.scale = s
}

// Update advances the generator and returns this frame's pose delta.
func (m *IdleMotion) Update(dt, elapsed float64) PoseDelta {
	var p PoseDelta

	p[rig.Head] = Rotation{
		X: sumSines(elapsed, sine{0.012, 0.11, 0}, sine{0.008, 0.23, 1.3}),
		Y: sumSines(elapsed, sine{0.010, 0.07, 0.6}, sine{0.006, 0.17, 2.1}),
		Z: sumSines(elapsed, sine{0.008, 0.09, 3.7}, sine{0.005, 0.21, 0.9}),
	}
	p[rig.Spine] = Rotation{
		X: sumSines(elapsed, sine{0.010, 0.26, 0}, sine{0.004, 0.05, 1.1}),
		Z: sumSines(elapsed, sine{0.005, 0.06, 2.4}),
	}
	p[rig.Chest] = Rotation{
		X: sumSines(elapsed, sine{0.016, 0.26, 0.35}, sine{0.006, 0.13, 2.8}),
	}

	// Slow pseudo-random weight shift on the hips, critically damped toward
	// a target that retargets every 8-15 seconds.
	m.shiftTimer -= dt
	if m.shiftTimer <= 0 {
		m.shiftTarget = (m.rng.Float64()*2 - 1) * weightShiftAmp
		m.shiftTimer = m.nextShift()
	}
	acc := weightShiftOmega*weightShiftOmega*(m.shiftTarget-m.shiftPos) - 2*weightShiftOmega*m.shiftVel
	m.shiftVel += acc * dt
	m.shiftPos += m.shiftVel * dt
	p[rig.Hips] = Rotation{
		Z: m.shiftPos + sumSines(elapsed, sine{0.004, 0.08, 1.9}),
	}

	for _, bone := range rig.TorsoBones {
		p[bone] = p[bone].scale(m.scale)
	}

	// Listening nods layer additively on top of the damped motion and must
	// never restart mid-pulse.
	if m.nodActive {
		m.nodAge += dt
		if m.nodAge >= nodDuration {
			m.nodActive = false
			m.nodTimer = m.nextNod()
		} else {
			pulse := nodAmplitude * math.Sin(math.Pi*m.nodAge/nodDuration)
			p[rig.Head] = p[rig.Head].add(Rotation{X: pulse})
		}
	} else if m.listening {
		m.nodTimer -= dt
		if m.nodTimer <= 0 {
			m.nodActive = true
			m.nodAge = 0
		}
	}

	return p
}

// Dispose resets the generator's mutable state.
func (m *IdleMotion) Dispose() {
	m.nodActive = false
	m.shiftPos = 0
	m.shiftVel = 0
	m.shiftTarget = 0
}
