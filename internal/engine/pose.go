package engine

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/mienlabs/mien-core/internal/rig"
)

// Rotation is a small-angle rotation triple in radians, intrinsic X-Y-Z order.
type Rotation struct {
	X, Y, Z float64
}

// Quat converts the triple to a unit quaternion, X then Y then Z in the
// rotating frame.
func (r Rotation) Quat() quat.Number {
	qx := quat.Number{Real: math.Cos(r.X / 2), Imag: math.Sin(r.X / 2)}
	qy := quat.Number{Real: math.Cos(r.Y / 2), Jmag: math.Sin(r.Y / 2)}
	qz := quat.Number{Real: math.Cos(r.Z / 2), Kmag: math.Sin(r.Z / 2)}
	return quat.Mul(quat.Mul(qx, qy), qz)
}

func (r Rotation) add(o Rotation) Rotation {
	return Rotation{X: r.X + o.X, Y: r.Y + o.Y, Z: r.Z + o.Z}
}

func (r Rotation) scale(f float64) Rotation {
	return Rotation{X: r.X * f, Y: r.Y * f, Z: r.Z * f}
}

// PoseDelta maps every bone to a rotation offset from its baseline. Deltas
// from independent signals layer by addition and fade by scalar blend.
type PoseDelta [rig.NumBones]Rotation

// Add layers two deltas elementwise.
func (p PoseDelta) Add(o PoseDelta) PoseDelta {
	var out PoseDelta
	for i := range p {
		out[i] = p[i].add(o[i])
	}
	return out
}

// Scale blends the delta by a scalar intensity.
func (p PoseDelta) Scale(f float64) PoseDelta {
	var out PoseDelta
	for i := range p {
		out[i] = p[i].scale(f)
	}
	return out
}

// ExpressionTarget maps every facial channel to a weight in [0,1].
type ExpressionTarget [rig.NumBlendshapes]float64

// rotateVec applies q to v.
func rotateVec(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	out := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: out.Imag, Y: out.Jmag, Z: out.Kmag}
}

func quatDot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

func quatScale(q quat.Number, f float64) quat.Number {
	return quat.Number{Real: q.Real * f, Imag: q.Imag * f, Jmag: q.Jmag * f, Kmag: q.Kmag * f}
}

func quatAdd(a, b quat.Number) quat.Number {
	return quat.Number{
		Real: a.Real + b.Real,
		Imag: a.Imag + b.Imag,
		Jmag: a.Jmag + b.Jmag,
		Kmag: a.Kmag + b.Kmag,
	}
}

func quatNormalize(q quat.Number) quat.Number {
	n := math.Sqrt(quatDot(q, q))
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quatScale(q, 1/n)
}

// slerp interpolates between two orientations along the shorter arc. Near
// parallel inputs fall back to normalized linear interpolation.
func slerp(a, b quat.Number, t float64) quat.Number {
	dot := quatDot(a, b)
	if dot < 0 {
		b = quatScale(b, -1)
		dot = -dot
	}
	if dot > 0.9995 {
		return quatNormalize(quatAdd(a, quatScale(quatAdd(b, quatScale(a, -1)), t)))
	}
	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return quatNormalize(quatAdd(quatScale(a, wa), quatScale(b, wb)))
}

// approach advances current toward target with frame-rate-independent
// exponential smoothing. rate is 1/seconds; higher is snappier.
func approach(current, target, rate, dt float64) float64 {
	if dt <= 0 {
		return current
	}
	return current + (target-current)*(1-math.Exp(-rate*dt))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
