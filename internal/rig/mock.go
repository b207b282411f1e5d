package rig

import "gonum.org/v1/gonum/num/quat"

// MockRig is an in-memory rig for tests and for running the engine without a
// connected renderer. The physics hook, when set, runs inside
// ResolvePhysicsAndRig to simulate a spring pass rewriting scripted bones.
type MockRig struct {
	Present      [NumBones]bool
	Orientations [NumBones]quat.Number
	Weights      [NumBlendshapes]float64
	Exposed      BlendshapeSet

	ResolveCalls int
	PhysicsHook  func(r *MockRig, dt float64)

	// boneWrites and shapeWrites count writes since the last resolution
	// pass, for single-writer assertions.
	BoneWrites  [NumBones]int
	ShapeWrites [NumBlendshapes]int
}

// NewMockRig returns a rig exposing every bone at identity rest orientation
// and every blendshape channel.
func NewMockRig() *MockRig {
	m := &MockRig{Exposed: AllBlendshapes()}
	for b := Bone(0); b < NumBones; b++ {
		m.Present[b] = true
		m.Orientations[b] = quat.Number{Real: 1}
	}
	return m
}

func (m *MockRig) BoneOrientation(b Bone) (quat.Number, bool) {
	if !m.Present[b] {
		return quat.Number{}, false
	}
	return m.Orientations[b], true
}

func (m *MockRig) SetBoneOrientation(b Bone, q quat.Number) {
	if !m.Present[b] {
		return
	}
	m.Orientations[b] = q
	m.BoneWrites[b]++
}

func (m *MockRig) SetBlendshape(b Blendshape, weight float64) {
	if !m.Exposed.Has(b) {
		return
	}
	m.Weights[b] = weight
	m.ShapeWrites[b]++
}

func (m *MockRig) Blendshapes() BlendshapeSet { return m.Exposed }

func (m *MockRig) ResolvePhysicsAndRig(dt float64) {
	m.ResolveCalls++
	if m.PhysicsHook != nil {
		m.PhysicsHook(m, dt)
	}
}

// ResetWriteCounts clears the per-frame write counters.
func (m *MockRig) ResetWriteCounts() {
	m.BoneWrites = [NumBones]int{}
	m.ShapeWrites = [NumBlendshapes]int{}
}
