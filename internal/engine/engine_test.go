package engine

import (
	"io"
	"log/slog"
	"testing"

	"gonum.org/v1/gonum/num/quat"

	"github.com/mienlabs/mien-core/internal/rig"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newEngine(t *testing.T, m *rig.MockRig, src SpectrumSource) *Engine {
	t.Helper()
	e, err := New(m, src, Config{Seed: 42}, testLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func runFrames(e *Engine, n int) {
	const dt = 1.0 / 60
	for i := 0; i < n; i++ {
		e.Update(dt, float64(i)*dt)
	}
}

func TestNewRejectsNilRig(t *testing.T) {
	if _, err := New(nil, nil, Config{}, testLogger()); err == nil {
		t.Fatal("expected error for nil rig")
	}
}

func TestOneResolutionPassPerFrame(t *testing.T) {
	m := rig.NewMockRig()
	e := newEngine(t, m, nil)

	runFrames(e, 90)
	if m.ResolveCalls != 90 {
		t.Fatalf("expected 90 resolution passes, got %d", m.ResolveCalls)
	}

	// Zero and negative dt frames are skipped entirely.
	e.Update(0, 2.0)
	e.Update(-0.01, 2.0)
	if m.ResolveCalls != 90 {
		t.Fatalf("expected skipped frames not to resolve, got %d", m.ResolveCalls)
	}
}

func TestGestureSurvivesPhysicsPass(t *testing.T) {
	m := rig.NewMockRig()
	junk := Rotation{X: 2.9, Y: 1.1}.Quat()
	m.PhysicsHook = func(r *rig.MockRig, dt float64) {
		r.Orientations[rig.LeftUpperArm] = junk
	}
	e := newEngine(t, m, nil)

	runFrames(e, 30)

	got := m.Orientations[rig.LeftUpperArm]
	if got == junk {
		t.Fatal("expected corrective re-application after the physics pass")
	}
	// Both the pre-resolution write and the re-application must land.
	m.ResetWriteCounts()
	e.Update(1.0/60, 1.0)
	if m.BoneWrites[rig.LeftUpperArm] < 2 {
		t.Fatalf("expected write before and after resolution, got %d", m.BoneWrites[rig.LeftUpperArm])
	}
}

func TestAudioEnergyAssertsSpeaking(t *testing.T) {
	m := rig.NewMockRig()
	src := &flatSource{mag: 3.0}
	e := newEngine(t, m, src)
	e.SetConversationPhase(PhaseIdle)

	runFrames(e, 120)
	if !e.Speaking() {
		t.Fatal("expected speaking asserted by live audio despite idle phase")
	}
	if e.Phase() != PhaseIdle {
		t.Fatalf("expected reported phase untouched, got %v", e.Phase())
	}

	src.mag = 0
	runFrames(e, 600)
	if e.Speaking() {
		t.Fatal("expected speaking to clear on silence")
	}
}

func TestVisemeSingleWriterWhileSpeaking(t *testing.T) {
	m := rig.NewMockRig()
	src := &flatSource{mag: 3.0}
	e := newEngine(t, m, src)

	runFrames(e, 120) // reach steady speaking state

	const dt = 1.0 / 60
	for i := 0; i < 30; i++ {
		m.ResetWriteCounts()
		e.Update(dt, 2.0+float64(i)*dt)
		if !e.Speaking() {
			t.Fatal("expected sustained speaking")
		}
		if m.ShapeWrites[rig.Aa] != 1 {
			t.Fatalf("frame %d: expected exactly one Aa writer, got %d", i, m.ShapeWrites[rig.Aa])
		}
		if m.ShapeWrites[rig.Oh] != 1 {
			t.Fatalf("frame %d: expected exactly one Oh writer, got %d", i, m.ShapeWrites[rig.Oh])
		}
	}
}

func TestBlinkRespectsMissingChannel(t *testing.T) {
	m := rig.NewMockRig()
	m.Exposed = rig.NewBlendshapeSet(rig.Aa, rig.Oh, rig.Happy) // no blink
	e := newEngine(t, m, nil)

	runFrames(e, 60*10)
	if m.ShapeWrites[rig.Blink] != 0 {
		t.Fatalf("expected no blink writes without the channel, got %d", m.ShapeWrites[rig.Blink])
	}
}

func TestDisposeRestoresBaselineExactly(t *testing.T) {
	m := rig.NewMockRig()
	src := &flatSource{mag: 3.0}
	e := newEngine(t, m, src)

	e.SetEmotion(EmotionSad, 0.8)
	e.SetConversationPhase(PhaseListening)
	runFrames(e, 120)

	moved := false
	for _, bone := range rig.ArmBones {
		if m.Orientations[bone] != (quat.Number{Real: 1}) {
			moved = true
		}
	}
	if !moved {
		t.Fatal("expected the pose to leave the baseline before dispose")
	}

	e.Dispose()

	for bone := rig.Bone(0); bone < rig.NumBones; bone++ {
		if got := m.Orientations[bone]; got != (quat.Number{Real: 1}) {
			t.Fatalf("bone %v: expected exact baseline after dispose, got %+v", bone, got)
		}
	}
	for ch := rig.Blendshape(0); ch < rig.NumBlendshapes; ch++ {
		if m.Weights[ch] != 0 {
			t.Fatalf("channel %v: expected 0 after dispose, got %v", ch, m.Weights[ch])
		}
	}

	// Dispose is idempotent and later updates are no-ops.
	e.Dispose()
	m.ResetWriteCounts()
	e.Update(1.0/60, 3.0)
	if m.ResolveCalls != 120 {
		t.Fatalf("expected no resolution after dispose, got %d", m.ResolveCalls)
	}
}

func TestSadSpeakingWithSilentAudio(t *testing.T) {
	m := rig.NewMockRig()
	src := &flatSource{mag: 0} // scheduled but silent audio
	e := newEngine(t, m, src)

	e.SetEmotion(EmotionSad, 0.8)
	e.SetConversationPhase(PhaseSpeaking)

	var blinked bool
	const dt = 1.0 / 60
	for i := 0; i < 60*8; i++ {
		e.Update(dt, float64(i)*dt)
		if m.Weights[rig.Blink] > 0.5 {
			blinked = true
		}
	}

	if e.Speaking() {
		t.Fatal("expected no speaking flag on silent audio")
	}
	// The sad overlay must visibly droop the shoulders away from baseline.
	if m.Orientations[rig.LeftShoulder] == (quat.Number{Real: 1}) {
		t.Fatal("expected shoulder pose to leave the baseline")
	}
	if m.Weights[rig.Sad] < 0.3 {
		t.Fatalf("expected sad face channel driven, got %v", m.Weights[rig.Sad])
	}
	// Mouth channels stay near the template's residual, owned by expression.
	if m.Weights[rig.Aa] > 0.05 {
		t.Fatalf("expected mouth near 0 without live energy, got %v", m.Weights[rig.Aa])
	}
	if m.Weights[rig.Oh] > 0.1 {
		t.Fatalf("expected rounded mouth near template residual, got %v", m.Weights[rig.Oh])
	}
	if !blinked {
		t.Fatal("expected blinking to continue on its own schedule")
	}
}

func TestEmotionChangesArmPose(t *testing.T) {
	m1 := rig.NewMockRig()
	e1 := newEngine(t, m1, nil)
	runFrames(e1, 300)

	m2 := rig.NewMockRig()
	e2 := newEngine(t, m2, nil)
	e2.SetEmotion(EmotionSad, 1.0)
	runFrames(e2, 300)

	if m1.Orientations[rig.LeftShoulder] == m2.Orientations[rig.LeftShoulder] {
		t.Fatal("expected sad overlay to change the shoulder pose")
	}
}
