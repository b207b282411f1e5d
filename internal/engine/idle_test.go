package engine

import (
	"math"
	"math/rand"
	"testing"

	"github.com/mienlabs/mien-core/internal/rig"
)

func TestIdleMotionStaysSubtle(t *testing.T) {
	m := NewIdleMotion(rand.New(rand.NewSource(11)))

	const dt = 1.0 / 60
	var maxHips, maxHead float64
	for i := 0; i < 60*60; i++ { // one minute
		p := m.Update(dt, float64(i)*dt)
		if v := math.Abs(p[rig.Hips].Z); v > maxHips {
			maxHips = v
		}
		if v := math.Abs(p[rig.Head].X); v > maxHead {
			maxHead = v
		}
	}

	if maxHips == 0 {
		t.Fatal("expected hip weight shift to move at all")
	}
	if maxHips > 0.06 {
		t.Fatalf("hip shift too large: %v", maxHips)
	}
	if maxHead == 0 || maxHead > 0.05 {
		t.Fatalf("head micro-motion out of range: %v", maxHead)
	}
}

func TestAmplitudeScaleDampsContinuousMotion(t *testing.T) {
	m := NewIdleMotion(rand.New(rand.NewSource(5)))
	m.SetAmplitudeScale(0)

	const dt = 1.0 / 60
	for i := 0; i < 60*10; i++ {
		p := m.Update(dt, float64(i)*dt)
		for _, bone := range rig.TorsoBones {
			r := p[bone]
			if r.X != 0 || r.Y != 0 || r.Z != 0 {
				t.Fatalf("expected zero motion at scale 0, bone %v got %+v", bone, r)
			}
		}
	}
}

func TestListeningNodsAreNotDamped(t *testing.T) {
	m := NewIdleMotion(rand.New(rand.NewSource(9)))
	m.SetAmplitudeScale(0) // isolate the nod pulse
	m.SetListening(true)

	const dt = 1.0 / 60
	var peak float64
	for i := 0; i < 60*10; i++ {
		p := m.Update(dt, float64(i)*dt)
		if p[rig.Head].X > peak {
			peak = p[rig.Head].X
		}
	}

	if peak < nodAmplitude*0.8 {
		t.Fatalf("expected a nod pulse while listening, peak %v", peak)
	}
}

func TestNodPulseCompletesAfterListeningEnds(t *testing.T) {
	m := NewIdleMotion(rand.New(rand.NewSource(9)))
	m.SetAmplitudeScale(0)
	m.SetListening(true)

	const dt = 1.0 / 60
	elapsed := 0.0
	// Run until a pulse is in flight.
	for i := 0; i < 60*10; i++ {
		p := m.Update(dt, elapsed)
		elapsed += dt
		if p[rig.Head].X > 0.01 {
			break
		}
	}

	m.SetListening(false)

	// The pulse in flight finishes its half-sine, then no new pulse starts.
	sawMore := false
	for i := 0; i < 60*10; i++ {
		p := m.Update(dt, elapsed)
		elapsed += dt
		if p[rig.Head].X > 0.01 {
			sawMore = true
		}
		if elapsed > nodDuration && p[rig.Head].X == 0 {
			break
		}
	}
	if !sawMore {
		t.Fatal("expected the in-flight pulse to continue")
	}

	for i := 0; i < 60*10; i++ {
		p := m.Update(dt, elapsed)
		elapsed += dt
		if p[rig.Head].X > 0.01 {
			t.Fatal("expected no new pulses after listening ended")
		}
	}
}
