package engine

import (
	"math"

	"gonum.org/v1/gonum/num/quat"

	"github.com/mienlabs/mien-core/internal/rig"
)

// gestureSlerpRate is the fixed fast rate at which bone orientations chase
// the composed target, so arm motion feels responsive even when the
// underlying pose target itself moves slowly.
const gestureSlerpRate = 16.0

// motionProfiles carries the base arm pose and dynamics per phase. Base
// deltas stay within a few tenths of a radian: the goal is legible-but-
// subtle, not cartoonish gesturing.
var motionProfiles = [numPhases]MotionProfile{
	PhaseIdle: {
		Base:           armPose(0.02, 0.00, 0.03, 0.00, 0.06, 0.00),
		BreathAmp:      0.012,
		FidgetAmp:      0.008,
		TransitionRate: 2.0,
	},
	PhaseListening: {
		Base:           armPose(0.03, 0.02, 0.05, 0.02, 0.10, 0.02),
		BreathAmp:      0.012,
		FidgetAmp:      0.010,
		TransitionRate: 3.0,
	},
	PhaseThinking: {
		Base:           armPose(0.05, 0.03, 0.08, 0.04, 0.28, 0.00),
		BreathAmp:      0.010,
		FidgetAmp:      0.006,
		TransitionRate: 2.5,
	},
	PhaseSpeaking: {
		Base:           armPose(0.04, 0.04, 0.07, 0.05, 0.16, 0.03),
		BreathAmp:      0.016,
		FidgetAmp:      0.018,
		TransitionRate: 5.0,
	},
}

// armPose builds a symmetric six-bone delta: shoulder X/Z, upper-arm X/Z,
// lower-arm X, shoulder Y. Z components mirror across sides.
func armPose(shX, shZ, upX, upZ, loX, shY float64) PoseDelta {
	var p PoseDelta
	p[rig.LeftShoulder] = Rotation{X: shX, Y: shY, Z: shZ}
	p[rig.RightShoulder] = Rotation{X: shX, Y: -shY, Z: -shZ}
	p[rig.LeftUpperArm] = Rotation{X: upX, Z: upZ}
	p[rig.RightUpperArm] = Rotation{X: upX, Z: -upZ}
	p[rig.LeftLowerArm] = Rotation{X: loX}
	p[rig.RightLowerArm] = Rotation{X: loX}
	return p
}

// emotionOverlays blend into the phase pose by intensity. Differences
// between emotions are deliberately small: a few hundredths to a few tenths
// of a radian.
var emotionOverlays = [numEmotions]PoseDelta{
	EmotionNeutral:   {},
	EmotionHappy:     armPose(-0.03, -0.02, -0.02, 0.03, 0.04, -0.02),
	EmotionSad:       armPose(0.10, 0.06, 0.08, -0.04, 0.10, 0.05),
	EmotionAngry:     armPose(0.06, 0.04, 0.05, -0.06, 0.22, 0.00),
	EmotionSurprised: armPose(-0.06, -0.04, -0.05, 0.06, 0.12, -0.03),
	EmotionThinking: func() PoseDelta {
		// Asymmetric: the right forearm drifts up toward the chin.
		p := armPose(0.02, 0.01, 0.03, 0.01, 0.06, 0.01)
		p[rig.RightLowerArm] = Rotation{X: 0.55, Z: -0.10}
		p[rig.RightUpperArm] = Rotation{X: 0.18, Z: -0.05}
		return p
	}(),
	EmotionAnxious:    armPose(0.08, 0.07, 0.06, -0.07, 0.18, 0.04),
	EmotionEmpathetic: armPose(0.01, -0.01, 0.02, 0.04, 0.08, -0.02),
}

// GestureController composes the six-bone arm/shoulder pose for the current
// frame from the conversation phase, the emotion overlay, and procedural
// fidget, and smooths the rig toward it.
type GestureController struct {
	r        rig.Rig
	baseline *Baseline
	cfg      Config

	phase         Phase
	emotion       Emotion
	intensity     float64
	lipSyncActive bool

	current PoseDelta // smoothed pose target state

	applied      [rig.NumBones]quat.Number
	appliedValid [rig.NumBones]bool
}

func NewGestureController(r rig.Rig, baseline *Baseline, cfg Config) *GestureController {
	g := &GestureController{r: r, baseline: baseline, cfg: cfg}
	for _, bone := range rig.ArmBones {
		if baseline.Present(bone) {
			g.applied[bone] = baseline.Orientation(bone)
			g.appliedValid[bone] = true
		}
	}
	g.current = baseline.RestCorrection()
	return g
}

func (g *GestureController) SetEmotion(e Emotion, intensity float64) {
	g.emotion = e
	g.intensity = clamp01(intensity)
}

func (g *GestureController) SetPhase(p Phase) { g.phase = p }

// SetLipSyncActive forces the speaking profile while speech audio is
// audible, overriding the externally-reported phase.
func (g *GestureController) SetLipSyncActive(on bool) { g.lipSyncActive = on }

func (g *GestureController) activePhase() Phase {
	if g.lipSyncActive {
		return PhaseSpeaking
	}
	return g.phase
}

// Update advances the smoothed pose and writes this frame's orientations.
func (g *GestureController) Update(dt, elapsed float64) {
	profile := motionProfiles[g.activePhase()]

	target := g.baseline.RestCorrection().
		Add(profile.Base).
		Add(emotionOverlays[g.emotion].Scale(g.intensity))

	rate := profile.TransitionRate
	for _, bone := range rig.ArmBones {
		g.current[bone] = Rotation{
			X: approach(g.current[bone].X, target[bone].X, rate, dt),
			Y: approach(g.current[bone].Y, target[bone].Y, rate, dt),
			Z: approach(g.current[bone].Z, target[bone].Z, rate, dt),
		}
	}

	// Fidget and breathing layer on top of the smoothed pose unsmoothed so
	// the arms stay visibly alive even when the target is at rest.
	posed := g.current.Add(g.fidget(profile, elapsed))

	t := 1 - math.Exp(-gestureSlerpRate*dt)
	for _, bone := range rig.ArmBones {
		if !g.appliedValid[bone] {
			continue
		}
		goal := quat.Mul(g.baseline.Orientation(bone), posed[bone].Quat())
		g.applied[bone] = slerp(g.applied[bone], goal, t)
		g.r.SetBoneOrientation(bone, g.applied[bone])
	}
}

// fidget builds the per-frame procedural term: low-frequency sines, phase
// offset per side, amplitude scaled by the active profile.
func (g *GestureController) fidget(profile MotionProfile, elapsed float64) PoseDelta {
	breath := profile.BreathAmp * g.cfg.BreathScale
	fid := profile.FidgetAmp * g.cfg.FidgetScale

	var p PoseDelta
	for i, side := range []struct {
		shoulder, upper, lower rig.Bone
	}{
		{rig.LeftShoulder, rig.LeftUpperArm, rig.LeftLowerArm},
		{rig.RightShoulder, rig.RightUpperArm, rig.RightLowerArm},
	} {
		off := float64(i) * math.Pi // opposite-phase sides
		p[side.shoulder] = Rotation{
			X: breath * math.Sin(2*math.Pi*0.26*elapsed+off),
		}
		p[side.upper] = Rotation{
			X: fid * math.Sin(2*math.Pi*0.13*elapsed+off+0.7),
			Z: fid * 0.6 * math.Sin(2*math.Pi*0.08*elapsed+off+2.1),
		}
		p[side.lower] = Rotation{
			X: fid * 0.8 * math.Sin(2*math.Pi*0.19*elapsed+off+1.4),
		}
	}
	return p
}

// Reapply rewrites the scripted arm/shoulder orientations after the host
// physics pass. Spring bones anchored near the shoulders may overwrite
// deliberately posed bones during resolution; the gesture intent wins.
func (g *GestureController) Reapply() {
	for _, bone := range rig.ArmBones {
		if g.appliedValid[bone] {
			g.r.SetBoneOrientation(bone, g.applied[bone])
		}
	}
}

// Dispose restores every touched bone to its captured baseline exactly.
func (g *GestureController) Dispose() {
	g.baseline.Restore(g.r, rig.ArmBones)
	for _, bone := range rig.ArmBones {
		if g.appliedValid[bone] {
			g.applied[bone] = g.baseline.Orientation(bone)
		}
	}
	g.current = g.baseline.RestCorrection()
	g.emotion = EmotionNeutral
	g.intensity = 0
}
