// 指示: miu200521358
package hostsim

import (
	"errors"
	"fmt"
	"math"

	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/usecase/port/moutput"
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/spatial/r3"
)

const solverEpsilon = 1e-9

// ErrBrokenChain はIK連鎖が親子関係でつながっていないことを表す。
var ErrBrokenChain = errors.New("IK連鎖がつながっていません")

// SolveCCD はCCD法で終端ボーンを目標位置へ近づける。
func (h *Host) SolveCCD(id skeleton.SkeletonID, setup moutput.CCDSetup) error {
	h.CCDCalls++
	constraint := setup.Constraint
	if constraint.StartBone.Skeleton != id || constraint.EndBone.Skeleton != id {
		return fmt.Errorf("%w: スケルトンが一致しません (%d)", ErrBrokenChain, id)
	}
	joints, err := h.chainBetween(constraint.StartBone, constraint.EndBone)
	if err != nil {
		return err
	}

	iterations := setup.Iterations
	if iterations < 1 {
		iterations = 1
	}
	for iter := 0; iter < iterations; iter++ {
		for _, joint := range joints {
			end, err := h.bone(constraint.EndBone)
			if err != nil {
				return err
			}
			jointBone, err := h.bone(joint)
			if err != nil {
				return err
			}
			toEnd := end.model.Position.Sub(jointBone.model.Position)
			toTarget := constraint.Target.Sub(jointBone.model.Position)
			if toEnd.Len() < solverEpsilon || toTarget.Len() < solverEpsilon {
				continue
			}
			turn := mgl64.QuatBetweenVectors(toEnd.Normalize(), toTarget.Normalize())
			next := jointBone.model
			next.Rotation = turn.Mul(jointBone.model.Rotation).Normalize()
			if err := h.WriteModelTransform(joint, next, true); err != nil {
				return err
			}
		}
		end, _ := h.bone(constraint.EndBone)
		if end.model.Position.Sub(constraint.Target).Len() < 1e-6 {
			break
		}
	}
	return nil
}

// SolveTwoJoint は2関節の曲げ角を余弦定理で求め、根元の向きで終端を目標位置へ合わせる。
func (h *Host) SolveTwoJoint(id skeleton.SkeletonID, setup moutput.TwoJointSetup) error {
	h.TwoJointCalls++
	if !setup.EnforceEndPosition {
		return nil
	}
	if setup.FirstJoint.Skeleton != id || setup.SecondJoint.Skeleton != id || setup.EndBone.Skeleton != id {
		return fmt.Errorf("%w: スケルトンが一致しません (%d)", ErrBrokenChain, id)
	}
	if _, err := h.chainBetween(setup.FirstJoint, setup.SecondJoint); err != nil {
		return err
	}
	if _, err := h.chainBetween(setup.SecondJoint, setup.EndBone); err != nil {
		return err
	}

	first, _ := h.bone(setup.FirstJoint)
	second, _ := h.bone(setup.SecondJoint)
	end, _ := h.bone(setup.EndBone)
	pa := toR3(first.model.Position)
	pb := toR3(second.model.Position)
	pc := toR3(end.model.Position)
	target := toR3(setup.EndTarget)

	lab := r3.Norm(r3.Sub(pb, pa))
	lcb := r3.Norm(r3.Sub(pc, pb))
	if lab < solverEpsilon || lcb < solverEpsilon {
		return fmt.Errorf("%w: 関節間の長さが0です", ErrBrokenChain)
	}
	lat := clamp(r3.Norm(r3.Sub(target, pa)), math.Abs(lab-lcb)+solverEpsilon, lab+lcb-solverEpsilon)

	u := r3.Sub(pa, pb)
	v := r3.Sub(pc, pb)
	current := math.Acos(clamp(r3.Dot(r3.Unit(u), r3.Unit(v)), -1, 1))
	cosDesired := clamp((lab*lab+lcb*lcb-lat*lat)/(2*lab*lcb), -1, 1)
	if setup.CosineMaxHingeAngle < setup.CosineMinHingeAngle {
		cosDesired = clamp(cosDesired, setup.CosineMaxHingeAngle, setup.CosineMinHingeAngle)
	}
	desired := math.Acos(cosDesired)

	axis := r3.Cross(u, v)
	if r3.Norm(axis) < solverEpsilon {
		axis = toR3(setup.HingeAxis)
	}
	if r3.Norm(axis) < solverEpsilon {
		return fmt.Errorf("%w: 曲げ軸が決まりません", ErrBrokenChain)
	}
	bend := mgl64.QuatRotate((desired-current)*gainOrOne(setup.SecondJointGain), fromR3(r3.Unit(axis)))
	if err := h.turnJoint(setup.SecondJoint, bend); err != nil {
		return err
	}

	end, _ = h.bone(setup.EndBone)
	from := r3.Sub(toR3(end.model.Position), pa)
	to := r3.Sub(target, pa)
	if r3.Norm(from) < solverEpsilon || r3.Norm(to) < solverEpsilon {
		return nil
	}
	aim := mgl64.QuatBetweenVectors(fromR3(r3.Unit(from)), fromR3(r3.Unit(to)))
	aim = mgl64.QuatSlerp(mgl64.QuatIdent(), aim, gainOrOne(setup.FirstJointGain))
	return h.turnJoint(setup.FirstJoint, aim)
}

// turnJoint は関節をモデル空間で回し、子孫を追従させる。
func (h *Host) turnJoint(ref skeleton.BoneRef, turn mgl64.Quat) error {
	bone, err := h.bone(ref)
	if err != nil {
		return err
	}
	next := bone.model
	next.Rotation = turn.Mul(bone.model.Rotation).Normalize()
	return h.WriteModelTransform(ref, next, true)
}

// chainBetween は end の親から start までのボーン列を返す。
func (h *Host) chainBetween(start, end skeleton.BoneRef) ([]skeleton.BoneRef, error) {
	if _, err := h.bone(end); err != nil {
		return nil, err
	}
	joints := []skeleton.BoneRef{}
	current := end
	for current != start {
		parent, ok := h.parentRef(current)
		if !ok {
			return nil, fmt.Errorf("%w: %s から %s へ届きません", ErrBrokenChain, end, start)
		}
		joints = append(joints, parent)
		current = parent
	}
	if len(joints) == 0 {
		return nil, fmt.Errorf("%w: 開始と終端が同じです (%s)", ErrBrokenChain, end)
	}
	return joints, nil
}

func toR3(v mgl64.Vec3) r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

func fromR3(v r3.Vec) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func gainOrOne(gain float64) float64 {
	if gain <= 0 {
		return 1
	}
	return math.Min(gain, 1)
}
