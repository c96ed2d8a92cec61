// 指示: miu200521358
package minteractor

import (
	"log/slog"

	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/usecase/port/moutput"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	solverCCD      = "ccd"
	solverTwoJoint = "two_joint"
)

// IKSolverParams はIKソルバの選択と設定を表す。
// 実装は CCDParams と TwoJointParams に限る。
type IKSolverParams interface {
	solverName() string
}

// CCDParams はCCDソルバの設定を表す。
// Depth は対象ボーンから親方向へさかのぼる段数。
type CCDParams struct {
	Depth      int
	Iterations int
}

func (CCDParams) solverName() string { return solverCCD }

// TwoJointParams は2関節IKソルバの設定を表す。
// 各オフセットは対象ボーンから親方向へさかのぼる段数。
type TwoJointParams struct {
	FirstJointOffset  int
	SecondJointOffset int
	EndJointOffset    int
	HingeAxis         mgl64.Vec3
}

func (TwoJointParams) solverName() string { return solverTwoJoint }

// DefaultCCDParams はCCDソルバの既定設定を返す。
func DefaultCCDParams() CCDParams {
	return CCDParams{Depth: 2, Iterations: 8}
}

// DefaultTwoJointParams は2関節IKソルバの既定設定を返す。
func DefaultTwoJointParams() TwoJointParams {
	return TwoJointParams{
		FirstJointOffset:  2,
		SecondJointOffset: 1,
		EndJointOffset:    0,
		HingeAxis:         mgl64.Vec3{0, 0, 1},
	}
}

// SolveIK は対象ボーンを目標位置へ向けるIKをホストのソルバで解く。
// ソルバがない場合や連鎖が足りない場合は何もせず false を返す。
func (uc *PoseSyncUsecase) SolveIK(ref skeleton.BoneRef, target mgl64.Vec3, params IKSolverParams) bool {
	if params == nil {
		return false
	}
	if uc.solvers == nil {
		uc.logger.Debug(logIKSolverMissing, slog.String("solver", params.solverName()))
		return false
	}
	skel, ok := uc.cache.Get(ref.Skeleton)
	if !ok {
		uc.logger.Debug(logIKSkeletonMissing, slog.String("bone", ref.String()))
		return false
	}

	var err error
	switch p := params.(type) {
	case CCDParams:
		setup, ok := uc.ccdSetup(skel, ref, target, p)
		if !ok {
			return false
		}
		err = uc.solvers.SolveCCD(skel.ID, setup)
	case TwoJointParams:
		setup, ok := uc.twoJointSetup(skel, ref, target, p)
		if !ok {
			return false
		}
		err = uc.solvers.SolveTwoJoint(skel.ID, setup)
	default:
		return false
	}

	uc.metrics.ikSolves.WithLabelValues(params.solverName()).Inc()
	if err != nil {
		uc.metrics.failure(stageIK)
		uc.logger.Warn(logIKSolveFailed,
			slog.String("solver", params.solverName()),
			slog.String("bone", ref.String()),
			slog.Any("error", err))
		return false
	}
	return true
}

func (uc *PoseSyncUsecase) ccdSetup(
	skel *skeleton.Skeleton,
	ref skeleton.BoneRef,
	target mgl64.Vec3,
	params CCDParams,
) (moutput.CCDSetup, bool) {
	chain, ok := skel.Ancestors(ref, params.Depth)
	if !ok || len(chain) <= 1 {
		uc.logger.Debug(logIKChainTooShort,
			slog.String("solver", solverCCD),
			slog.String("bone", ref.String()),
			slog.Int("depth", params.Depth))
		return moutput.CCDSetup{}, false
	}
	iterations := params.Iterations
	if iterations < 1 {
		iterations = 1
	}
	return moutput.CCDSetup{
		Iterations: iterations,
		Constraint: moutput.CCDConstraint{
			StartBone: chain[len(chain)-1],
			EndBone:   ref,
			Target:    target,
		},
	}, true
}

func (uc *PoseSyncUsecase) twoJointSetup(
	skel *skeleton.Skeleton,
	ref skeleton.BoneRef,
	target mgl64.Vec3,
	params TwoJointParams,
) (moutput.TwoJointSetup, bool) {
	if params.EndJointOffset < 0 ||
		params.SecondJointOffset <= params.EndJointOffset ||
		params.FirstJointOffset <= params.SecondJointOffset {
		uc.logger.Debug(logIKChainTooShort,
			slog.String("solver", solverTwoJoint),
			slog.String("bone", ref.String()))
		return moutput.TwoJointSetup{}, false
	}
	chain, ok := skel.Ancestors(ref, params.FirstJointOffset)
	if !ok {
		uc.logger.Debug(logIKChainTooShort,
			slog.String("solver", solverTwoJoint),
			slog.String("bone", ref.String()),
			slog.Int("depth", params.FirstJointOffset))
		return moutput.TwoJointSetup{}, false
	}

	hinge := params.HingeAxis
	if hinge.Len() == 0 {
		hinge = mgl64.Vec3{0, 0, 1}
	}
	return moutput.TwoJointSetup{
		FirstJoint:          chain[params.FirstJointOffset],
		SecondJoint:         chain[params.SecondJointOffset],
		EndBone:             chain[params.EndJointOffset],
		HingeAxis:           hinge.Normalize(),
		CosineMaxHingeAngle: -1,
		CosineMinHingeAngle: 1,
		FirstJointGain:      1,
		SecondJointGain:     1,
		EndJointGain:        1,
		EndTarget:           target,
		EndTargetRotation:   mgl64.QuatIdent(),
		EnforceEndPosition:  true,
		EnforceEndRotation:  false,
	}, true
}
