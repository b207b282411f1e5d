package rig

import "gonum.org/v1/gonum/num/quat"

// Bone identifies a joint in the fixed humanoid vocabulary the engine drives.
// Rigs are free to expose any subset; absent bones are skipped everywhere.
type Bone int

const (
	LeftShoulder Bone = iota
	RightShoulder
	LeftUpperArm
	RightUpperArm
	LeftLowerArm
	RightLowerArm
	Head
	Spine
	Chest
	Hips

	NumBones
)

var boneNames = [NumBones]string{
	LeftShoulder:  "leftShoulder",
	RightShoulder: "rightShoulder",
	LeftUpperArm:  "leftUpperArm",
	RightUpperArm: "rightUpperArm",
	LeftLowerArm:  "leftLowerArm",
	RightLowerArm: "rightLowerArm",
	Head:          "head",
	Spine:         "spine",
	Chest:         "chest",
	Hips:          "hips",
}

func (b Bone) String() string {
	if b < 0 || b >= NumBones {
		return "unknown"
	}
	return boneNames[b]
}

// ParseBone resolves a humanoid bone name to its identity.
func ParseBone(name string) (Bone, bool) {
	for b, n := range boneNames {
		if n == name {
			return Bone(b), true
		}
	}
	return 0, false
}

// ArmBones lists the bones the gesture controller poses, shoulders included.
var ArmBones = []Bone{
	LeftShoulder, RightShoulder,
	LeftUpperArm, RightUpperArm,
	LeftLowerArm, RightLowerArm,
}

// TorsoBones lists the bones the idle motion generator drives.
var TorsoBones = []Bone{Head, Spine, Chest, Hips}

// Blendshape identifies a facial channel in the fixed vocabulary.
type Blendshape int

const (
	Blink Blendshape = iota
	Aa               // open-mouth viseme
	Oh               // rounded-mouth viseme
	Happy
	Angry
	Sad
	Surprised
	Relaxed
	BrowDown
	BrowUp
	EyeSquint

	NumBlendshapes
)

var blendshapeNames = [NumBlendshapes]string{
	Blink:     "blink",
	Aa:        "aa",
	Oh:        "oh",
	Happy:     "happy",
	Angry:     "angry",
	Sad:       "sad",
	Surprised: "surprised",
	Relaxed:   "relaxed",
	BrowDown:  "browDown",
	BrowUp:    "browUp",
	EyeSquint: "eyeSquint",
}

func (s Blendshape) String() string {
	if s < 0 || s >= NumBlendshapes {
		return "unknown"
	}
	return blendshapeNames[s]
}

// ParseBlendshape resolves a blendshape name to its identity.
func ParseBlendshape(name string) (Blendshape, bool) {
	for s, n := range blendshapeNames {
		if n == name {
			return Blendshape(s), true
		}
	}
	return 0, false
}

// VisemeBlendshapes are the audio-driven mouth channels, owned by exactly one
// controller per frame.
var VisemeBlendshapes = []Blendshape{Aa, Oh}

// BlendshapeSet is the capability set of channels a loaded model exposes.
type BlendshapeSet uint32

func NewBlendshapeSet(shapes ...Blendshape) BlendshapeSet {
	var s BlendshapeSet
	for _, b := range shapes {
		s |= 1 << uint(b)
	}
	return s
}

// AllBlendshapes returns the full capability set.
func AllBlendshapes() BlendshapeSet {
	return BlendshapeSet(1<<uint(NumBlendshapes)) - 1
}

func (s BlendshapeSet) Has(b Blendshape) bool {
	return s&(1<<uint(b)) != 0
}

// Rig is the narrow surface of the host rig runtime the engine drives.
// Bone orientations are normalized-space; ResolvePhysicsAndRig converts them
// into the raw skeleton, runs secondary physics (spring bones), and applies
// the accumulated blendshape weights. It must be called exactly once per
// frame, after all scripted writes.
type Rig interface {
	// BoneOrientation reports the bone's current orientation, or false when
	// the loaded model does not expose the bone.
	BoneOrientation(b Bone) (quat.Number, bool)

	// SetBoneOrientation writes a normalized-space orientation. Writes to
	// absent bones are no-ops.
	SetBoneOrientation(b Bone, q quat.Number)

	// SetBlendshape writes a facial channel weight in [0,1]. Writes to
	// channels outside Blendshapes() are no-ops.
	SetBlendshape(b Blendshape, weight float64)

	// Blendshapes reports the channels the loaded model exposes.
	Blendshapes() BlendshapeSet

	// ResolvePhysicsAndRig runs the host resolution pass for this frame.
	ResolvePhysicsAndRig(dt float64)
}
