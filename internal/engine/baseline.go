package engine

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mienlabs/mien-core/internal/rig"
)

// armDownAngle is the rotation that brings a T-pose arm to hang at the side,
// leaving a slight natural gap from the torso.
const armDownAngle = 1.22 // ~70 degrees

// Baseline is the rig's resting state captured once after model load. All
// procedural motion is expressed as offsets from it, never as absolute
// overwrites, so models authored in T-pose and models authored arms-down
// animate the same way.
type Baseline struct {
	orientation [rig.NumBones]quat.Number
	present     [rig.NumBones]bool

	// rest is the per-model arms-down correction derived by the sign
	// disambiguation below. Zero for models that already rest arms-down.
	rest PoseDelta
}

// CaptureBaseline records every exposed bone's current orientation and
// derives the arm rest correction. Absent bones are skipped downstream.
func CaptureBaseline(r rig.Rig) *Baseline {
	b := &Baseline{}
	for bone := rig.Bone(0); bone < rig.NumBones; bone++ {
		if q, ok := r.BoneOrientation(bone); ok {
			b.orientation[bone] = q
			b.present[bone] = true
		}
	}
	b.deriveArmRest()
	return b
}

// Present reports whether the loaded model exposes the bone.
func (b *Baseline) Present(bone rig.Bone) bool { return b.present[bone] }

// Orientation returns the captured rest orientation for the bone.
func (b *Baseline) Orientation(bone rig.Bone) quat.Number { return b.orientation[bone] }

// RestCorrection returns the per-model arms-down pose delta.
func (b *Baseline) RestCorrection() PoseDelta { return b.rest }

// deriveArmRest decides, per arm, which Z-rotation sign (or none) lowers the
// arm. The candidate orientation is applied to the side's lateral forearm
// axis; the candidate whose rotated axis has the most negative vertical
// component wins. Pure geometry, independent of the authored rest pose.
func (b *Baseline) deriveArmRest() {
	sides := []struct {
		upper, lower rig.Bone
		lateral      r3.Vec
	}{
		{rig.LeftUpperArm, rig.LeftLowerArm, r3.Vec{X: 1}},
		{rig.RightUpperArm, rig.RightLowerArm, r3.Vec{X: -1}},
	}

	for _, side := range sides {
		if !b.present[side.upper] {
			continue
		}
		base := b.orientation[side.upper]

		bestAngle := 0.0
		bestY := rotateVec(base, side.lateral).Y
		for _, sign := range []float64{armDownAngle, -armDownAngle} {
			q := quat.Mul(base, Rotation{Z: sign}.Quat())
			if y := rotateVec(q, side.lateral).Y; y < bestY {
				bestY = y
				bestAngle = sign
			}
		}
		// Near-vertical already: the model rests arms-down and needs no
		// correction at all.
		if math.Abs(bestAngle) > 0 && rotateVec(base, side.lateral).Y < -0.9 {
			bestAngle = 0
		}

		b.rest[side.upper] = Rotation{Z: bestAngle}
		if b.present[side.lower] {
			// Slight elbow bend in the same direction keeps the forearm
			// from locking dead straight.
			b.rest[side.lower] = Rotation{Z: bestAngle * 0.12}
		}
	}
}

// Restore writes the captured rest orientation back for every present bone
// in the given list.
func (b *Baseline) Restore(r rig.Rig, bones []rig.Bone) {
	for _, bone := range bones {
		if b.present[bone] {
			r.SetBoneOrientation(bone, b.orientation[bone])
		}
	}
}
