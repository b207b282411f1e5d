package engine

import "math/rand"

const (
	blinkCloseDuration = 0.06
	blinkOpenDuration  = 0.10
	blinkWaitMin       = 2.0
	blinkWaitMax       = 6.0
)

type blinkPhase int

const (
	blinkWaiting blinkPhase = iota
	blinkClosing
	blinkOpening
)

// BlinkController drives the eyelid closure channel on its own randomized
// schedule. Purely time-driven, no external inputs.
type BlinkController struct {
	rng      *rand.Rand
	phase    blinkPhase
	wait     float64 // seconds left in the current idle interval
	progress float64 // seconds into the current transition
	value    float64 // 0 open, 1 closed
}

func NewBlinkController(rng *rand.Rand) *BlinkController {
	b := &BlinkController{rng: rng}
	b.wait = b.nextWait()
	return b
}

func (b *BlinkController) nextWait() float64 {
	return blinkWaitMin + b.rng.Float64()*(blinkWaitMax-blinkWaitMin)
}

// Update advances the state machine and returns the current closure value.
func (b *BlinkController) Update(dt float64) float64 {
	switch b.phase {
	case blinkWaiting:
		b.wait -= dt
		if b.wait <= 0 {
			b.phase = blinkClosing
			b.progress = 0
		}
	case blinkClosing:
		b.progress += dt
		b.value = clamp01(b.progress / blinkCloseDuration)
		if b.progress >= blinkCloseDuration {
			b.phase = blinkOpening
			b.progress = 0
		}
	case blinkOpening:
		b.progress += dt
		b.value = clamp01(1 - b.progress/blinkOpenDuration)
		if b.progress >= blinkOpenDuration {
			b.phase = blinkWaiting
			b.wait = b.nextWait()
			b.value = 0
		}
	}
	return b.value
}

// Value returns the current closure without advancing time.
func (b *BlinkController) Value() float64 { return b.value }

// Dispose forces the eyelid open.
func (b *BlinkController) Dispose() {
	b.phase = blinkWaiting
	b.wait = b.nextWait()
	b.value = 0
}
