// Package engine implements the real-time procedural animation engine: it
// turns an emotion label, a conversation phase, and live speech audio into a
// smooth skeletal pose and facial expression, frame after frame, without
// pre-authored animation clips.
package engine

import (
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/num/quat"

	"github.com/mienlabs/mien-core/internal/rig"
)

// Engine owns the per-signal controllers and runs them in the fixed frame
// order. Not safe for concurrent use: the host frame loop is the only
// caller, and external signals must be delivered from that same goroutine.
type Engine struct {
	r   rig.Rig
	log *slog.Logger
	cfg Config

	baseline   *Baseline
	blink      *BlinkController
	idle       *IdleMotion
	gesture    *GestureController
	expression *ExpressionController
	lipsync    *LipSyncController

	phase    Phase
	disposed bool
}

// New captures the rig's baseline and builds the controllers. The rig must
// be re-resolved per session; rigs are destroyed and recreated with the
// avatar, and a stale engine must never outlive its rig.
func New(r rig.Rig, source SpectrumSource, cfg Config, log *slog.Logger) (*Engine, error) {
	if r == nil {
		return nil, errors.New("engine: nil rig")
	}
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	baseline := CaptureBaseline(r)
	e := &Engine{
		r:          r,
		log:        log.With(slog.String("component", "engine")),
		cfg:        cfg,
		baseline:   baseline,
		blink:      NewBlinkController(rng),
		idle:       NewIdleMotion(rng),
		gesture:    NewGestureController(r, baseline, cfg),
		expression: NewExpressionController(r, rng),
		lipsync:    NewLipSyncController(r, source),
	}
	return e, nil
}

// SetEmotion updates the emotion overlay on both the gesture and expression
// controllers. Intensity is clamped to [0,1].
func (e *Engine) SetEmotion(em Emotion, intensity float64) {
	if e.disposed {
		return
	}
	e.gesture.SetEmotion(em, intensity)
	e.expression.SetEmotion(em, intensity)
}

// SetConversationPhase applies the externally-reported phase. Speaking still
// overrides it whenever live audio energy is present.
func (e *Engine) SetConversationPhase(p Phase) {
	if e.disposed {
		return
	}
	e.phase = p
	e.gesture.SetPhase(p)
	e.idle.SetListening(p == PhaseListening)
}

// Phase reports the externally-reported conversation phase.
func (e *Engine) Phase() Phase { return e.phase }

// Speaking reports whether lip-sync currently detects live audio energy.
func (e *Engine) Speaking() bool { return e.lipsync.Active() }

// Update runs one frame. dt is the frame's delta time, elapsed the total
// time since the engine started, both in seconds. The order is a contract:
// normalized-space controller writes, one host resolution pass, then the
// corrective re-application of the gesture output so deliberate arm posing
// survives the spring-bone pass.
func (e *Engine) Update(dt, elapsed float64) {
	if e.disposed || dt <= 0 {
		return
	}

	// Damp torso micro-motion while speech audio is active.
	if e.lipsync.Active() || e.phase == PhaseSpeaking {
		e.idle.SetAmplitudeScale(e.cfg.SpeakingDamp)
	} else {
		e.idle.SetAmplitudeScale(1)
	}

	// 1. Idle, gesture, and blink state advance in normalized space.
	idlePose := e.idle.Update(dt, elapsed)
	for _, bone := range rig.TorsoBones {
		if e.baseline.Present(bone) {
			q := quat.Mul(e.baseline.Orientation(bone), idlePose[bone].Quat())
			e.r.SetBoneOrientation(bone, q)
		}
	}
	e.gesture.Update(dt, elapsed)
	if closure := e.blink.Update(dt); e.r.Blendshapes().Has(rig.Blink) {
		e.r.SetBlendshape(rig.Blink, closure)
	}

	// 2. Lip-sync reads the latest spectral snapshot and updates the shared
	// speaking flag before the expression pass runs.
	active := e.lipsync.Update(dt)
	e.gesture.SetLipSyncActive(active)
	e.expression.SetLipSyncActive(active)

	// 3. Expression smoothing, respecting the viseme mutex.
	e.expression.Update(dt, elapsed)

	// 4. Exactly one host resolution pass per frame.
	e.r.ResolvePhysicsAndRig(dt)

	// 5. Re-apply scripted arm/shoulder orientations after physics. The
	// spring pass may rewrite bones the gesture controller deliberately
	// poses; the scripted intent must not be silently erased.
	e.gesture.Reapply()
}

// Dispose returns every owned bone and channel to its baseline or zero.
// Idempotent and safe after partial initialization.
func (e *Engine) Dispose() {
	if e.disposed {
		return
	}
	e.disposed = true

	e.gesture.Dispose()
	e.idle.Dispose()
	e.baseline.Restore(e.r, rig.TorsoBones)

	e.blink.Dispose()
	if e.r.Blendshapes().Has(rig.Blink) {
		e.r.SetBlendshape(rig.Blink, 0)
	}
	e.expression.Dispose()
	e.lipsync.Dispose()

	e.log.Debug("engine disposed")
}
