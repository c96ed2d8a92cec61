// 指示: miu200521358
// Package transform はボーン編集に使う加算型トランスフォームの演算を提供する。
package transform

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultEpsilon は近似比較の既定許容誤差。
const DefaultEpsilon = 1e-5

// TransformComponents はトランスフォームの成分集合を表す。
type TransformComponents uint8

const (
	// ComponentPosition は位置成分を表す。
	ComponentPosition TransformComponents = 1 << iota
	// ComponentRotation は回転成分を表す。
	ComponentRotation
	// ComponentScale はスケール成分を表す。
	ComponentScale
)

const (
	// ComponentNone は成分なしを表す。
	ComponentNone TransformComponents = 0
	// ComponentAll は全成分を表す。
	ComponentAll = ComponentPosition | ComponentRotation | ComponentScale
)

// Has は成分 c がすべて含まれるか判定する。
func (m TransformComponents) Has(c TransformComponents) bool {
	return c != ComponentNone && m&c == c
}

// String は成分集合の表示名を返す。
func (m TransformComponents) String() string {
	if m == ComponentNone {
		return "None"
	}
	name := ""
	for _, part := range []struct {
		c    TransformComponents
		name string
	}{
		{ComponentPosition, "Position"},
		{ComponentRotation, "Rotation"},
		{ComponentScale, "Scale"},
	} {
		if !m.Has(part.c) {
			continue
		}
		if name != "" {
			name += "|"
		}
		name += part.name
	}
	return name
}

// Transform は位置・回転・スケールの編集量またはポーズ標本を表す。
// 編集量としてのスケールは加算型のため、単位スケールはゼロベクトルになる。
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Scale    mgl64.Vec3
}

// Identity は単位トランスフォームを返す。
func Identity() Transform {
	return Transform{Rotation: mgl64.QuatIdent()}
}

// Compose は a に b を加算合成する。位置とスケールは成分加算、回転は b を a の外側から掛けて正規化する。
// Diff(Compose(a, b), b) は回転の可換性によらず a に一致する。
func Compose(a, b Transform) Transform {
	return Transform{
		Position: a.Position.Add(b.Position),
		Rotation: b.Rotation.Mul(a.Rotation).Normalize(),
		Scale:    a.Scale.Add(b.Scale),
	}
}

// Diff は a から b を取り除いた差分を返す。
func Diff(a, b Transform) Transform {
	return Transform{
		Position: a.Position.Sub(b.Position),
		Rotation: b.Rotation.Conjugate().Mul(a.Rotation).Normalize(),
		Scale:    a.Scale.Sub(b.Scale),
	}
}

// Invert は位置とスケールを反転し、回転を共役にした逆編集を返す。
func Invert(a Transform) Transform {
	return Transform{
		Position: a.Position.Mul(-1),
		Rotation: a.Rotation.Conjugate(),
		Scale:    a.Scale.Mul(-1),
	}
}

// Filter は mask に含まれない成分を単位値に置き換える。
func Filter(t Transform, mask TransformComponents) Transform {
	filtered := t
	if !mask.Has(ComponentPosition) {
		filtered.Position = mgl64.Vec3{}
	}
	if !mask.Has(ComponentRotation) {
		filtered.Rotation = mgl64.QuatIdent()
	}
	if !mask.Has(ComponentScale) {
		filtered.Scale = mgl64.Vec3{}
	}
	return filtered
}

// Merge は mask に含まれる成分だけ src で dst を上書きする。
func Merge(dst, src Transform, mask TransformComponents) Transform {
	merged := dst
	if mask.Has(ComponentPosition) {
		merged.Position = src.Position
	}
	if mask.Has(ComponentRotation) {
		merged.Rotation = src.Rotation
	}
	if mask.Has(ComponentScale) {
		merged.Scale = src.Scale
	}
	return merged
}

// ApproxEqual は位置・スケールを距離、回転を内積で近似比較する。
func ApproxEqual(a, b Transform, epsilon float64) bool {
	if a.Position.Sub(b.Position).Len() > epsilon {
		return false
	}
	if a.Scale.Sub(b.Scale).Len() > epsilon {
		return false
	}
	return a.Rotation.Dot(b.Rotation) >= 1-epsilon
}

// IsIdentity は単位トランスフォームと近似一致するか判定する。
func IsIdentity(t Transform) bool {
	return ApproxEqual(t, Identity(), DefaultEpsilon)
}

// IsValid はNaN成分を含まないか判定する。
func IsValid(t Transform) bool {
	values := []float64{
		t.Position[0], t.Position[1], t.Position[2],
		t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2],
		t.Scale[0], t.Scale[1], t.Scale[2],
	}
	for _, v := range values {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}

// FromEulerDegrees はXYZ順のオイラー角(度)から回転のみのトランスフォームを生成する。
func FromEulerDegrees(x, y, z float64) Transform {
	t := Identity()
	t.Rotation = mgl64.AnglesToQuat(
		mgl64.DegToRad(x), mgl64.DegToRad(y), mgl64.DegToRad(z), mgl64.XYZ,
	).Normalize()
	return t
}
