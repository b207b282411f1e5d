package engine

import (
	"math"
	"testing"

	"github.com/mienlabs/mien-core/internal/rig"
)

func TestArmRestLowersTPoseArms(t *testing.T) {
	m := rig.NewMockRig() // identity rest, arms out to the sides

	b := CaptureBaseline(m)
	rest := b.RestCorrection()

	if rest[rig.LeftUpperArm].Z >= 0 {
		t.Fatalf("expected negative Z correction on left arm, got %v", rest[rig.LeftUpperArm].Z)
	}
	if rest[rig.RightUpperArm].Z <= 0 {
		t.Fatalf("expected positive Z correction on right arm, got %v", rest[rig.RightUpperArm].Z)
	}
	if math.Abs(rest[rig.LeftUpperArm].Z) != armDownAngle {
		t.Fatalf("expected magnitude %v, got %v", armDownAngle, rest[rig.LeftUpperArm].Z)
	}

	// The elbow follows the same sign at a fraction of the angle.
	if rest[rig.LeftLowerArm].Z >= 0 {
		t.Fatalf("expected left elbow to follow, got %v", rest[rig.LeftLowerArm].Z)
	}
	if got, want := rest[rig.LeftLowerArm].Z, rest[rig.LeftUpperArm].Z*0.12; math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected elbow fraction %v, got %v", want, got)
	}
}

func TestArmRestSkipsArmsDownModels(t *testing.T) {
	m := rig.NewMockRig()
	// Rest orientations that already point both lateral arm axes straight
	// down.
	m.Orientations[rig.LeftUpperArm] = Rotation{Z: -math.Pi / 2}.Quat()
	m.Orientations[rig.RightUpperArm] = Rotation{Z: math.Pi / 2}.Quat()

	b := CaptureBaseline(m)
	rest := b.RestCorrection()

	if rest[rig.LeftUpperArm].Z != 0 || rest[rig.RightUpperArm].Z != 0 {
		t.Fatalf("expected no correction for arms-down model, got %v / %v",
			rest[rig.LeftUpperArm].Z, rest[rig.RightUpperArm].Z)
	}
	if rest[rig.LeftLowerArm].Z != 0 || rest[rig.RightLowerArm].Z != 0 {
		t.Fatal("expected no elbow correction for arms-down model")
	}
}

func TestBaselineSkipsAbsentBones(t *testing.T) {
	m := rig.NewMockRig()
	m.Present[rig.LeftUpperArm] = false
	m.Present[rig.LeftLowerArm] = false

	b := CaptureBaseline(m)

	if b.Present(rig.LeftUpperArm) {
		t.Fatal("expected absent bone not captured")
	}
	if b.RestCorrection()[rig.LeftUpperArm].Z != 0 {
		t.Fatal("expected no correction for absent bone")
	}
	// The other side still gets its correction.
	if b.RestCorrection()[rig.RightUpperArm].Z == 0 {
		t.Fatal("expected right arm correction independent of left")
	}
}

func TestRestoreWritesCapturedOrientations(t *testing.T) {
	m := rig.NewMockRig()
	b := CaptureBaseline(m)

	m.Orientations[rig.Head] = Rotation{X: 0.5}.Quat()
	m.Orientations[rig.LeftUpperArm] = Rotation{Z: -1}.Quat()

	b.Restore(m, rig.TorsoBones)
	b.Restore(m, rig.ArmBones)

	for _, bone := range []rig.Bone{rig.Head, rig.LeftUpperArm} {
		got := m.Orientations[bone]
		if got.Real != 1 || got.Imag != 0 || got.Jmag != 0 || got.Kmag != 0 {
			t.Fatalf("bone %v: expected identity restored, got %+v", bone, got)
		}
	}
}
