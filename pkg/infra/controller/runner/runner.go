// 指示: miu200521358
// Package runner はシーン定義を模擬ホスト上でフレーム実行するコントローラを提供する。
package runner

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Etheirys/Brio-sub001/pkg/adapter/hostsim"
	"github.com/Etheirys/Brio-sub001/pkg/domain/bonefilter"
	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/usecase/minteractor"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrNoOwner は編集対象スケルトンに持ち主がないことを表す。
var ErrNoOwner = errors.New("編集対象スケルトンに持ち主がありません")

// Config はシーン実行の設定を表す。
type Config struct {
	Frames     int
	Filter     *bonefilter.BoneFilter
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Totals は全フレーム分の集計を表す。
type Totals struct {
	Frames          int
	SkippedFrames   int
	BonesApplied    int
	EntriesReplayed int
	Reparented      int
	Failures        int
	IKSolved        int
}

// BoneResult は1ボーン分の最終モデル空間姿勢を表す。
type BoneResult struct {
	Skeleton skeleton.SkeletonID
	Partial  int
	Name     string
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

// Result はシーン実行の結果を表す。
type Result struct {
	Totals Totals
	Bones  []BoneResult
}

// Run はシーンからホストを構築し、編集を適用して指定フレーム数だけ実行する。
func Run(scene *hostsim.Scene, config Config) (*Result, error) {
	if scene == nil {
		return nil, fmt.Errorf("%w: シーンが空です", hostsim.ErrInvalidScene)
	}
	frames := config.Frames
	if frames < 1 {
		frames = 1
	}
	host, err := scene.Build()
	if err != nil {
		return nil, err
	}

	uc := minteractor.NewPoseSyncUsecase(minteractor.PoseSyncUsecaseDeps{
		Host:       host,
		Capability: host,
		Filter:     config.Filter,
		Logger:     config.Logger,
		Registerer: config.Registerer,
	})
	owners, err := bindSkeletons(uc, scene)
	if err != nil {
		return nil, err
	}
	if err := applyEdits(uc, scene, owners); err != nil {
		return nil, err
	}

	result := &Result{}
	for frame := 0; frame < frames; frame++ {
		host.Animate()
		applied := uc.OnPostPhysics()
		solved, err := solveIK(uc, host, scene)
		if err != nil {
			return nil, err
		}
		finalized := uc.OnFrameFinalize()

		result.Totals.Frames++
		if applied.Skipped {
			result.Totals.SkippedFrames++
		}
		result.Totals.BonesApplied += applied.BonesApplied
		result.Totals.EntriesReplayed += applied.EntriesReplayed
		result.Totals.Reparented += applied.Reparented
		result.Totals.Failures += applied.Failures + finalized.Failures
		result.Totals.IKSolved += solved
	}
	result.Bones = collectBones(uc)
	return result, nil
}

// bindSkeletons はボーン表を構築し、持ち主を登録する。
func bindSkeletons(
	uc *minteractor.PoseSyncUsecase,
	scene *hostsim.Scene,
) (map[skeleton.SkeletonID]*minteractor.EntityPoseOwner, error) {
	owners := map[skeleton.SkeletonID]*minteractor.EntityPoseOwner{}
	for _, sceneSkeleton := range scene.Skeletons {
		id := skeleton.SkeletonID(sceneSkeleton.ID)
		if err := uc.OnSkeletonBindReady(id); err != nil {
			return nil, err
		}
		if !sceneSkeleton.HasOwner() {
			continue
		}
		model, err := sceneSkeleton.ModelTransform()
		if err != nil {
			return nil, err
		}
		owner := minteractor.NewEntityPoseOwner()
		owner.ApplySelection(minteractor.ModelTransformSelection{}, model, pose.ApplyOptions{})
		owners[id] = owner
		uc.RegisterPoseOwner(id, owner)
	}
	return owners, nil
}

// applyEdits はシーンのボーン編集を持ち主へ適用する。
func applyEdits(
	uc *minteractor.PoseSyncUsecase,
	scene *hostsim.Scene,
	owners map[skeleton.SkeletonID]*minteractor.EntityPoseOwner,
) error {
	for _, edit := range scene.Edits {
		id := skeleton.SkeletonID(edit.Skeleton)
		owner, ok := owners[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrNoOwner, edit.Skeleton)
		}
		skel, ok := uc.Skeleton(id)
		if !ok {
			return fmt.Errorf("%w: %d", skeleton.ErrSkeletonNotFound, edit.Skeleton)
		}
		delta, err := edit.Delta()
		if err != nil {
			return err
		}
		opts, err := edit.Options()
		if err != nil {
			return err
		}
		boneID := pose.NewBonePoseInfoId(edit.Bone, edit.Partial, skel.Slot)
		owner.ApplySelection(minteractor.BoneSelection{ID: boneID}, delta, opts)
	}
	return nil
}

// solveIK はシーンのIK要求を実行し、解いた件数を返す。
func solveIK(uc *minteractor.PoseSyncUsecase, host *hostsim.Host, scene *hostsim.Scene) (int, error) {
	solved := 0
	for _, request := range scene.IK {
		ref, ok := host.FindBone(skeleton.SkeletonID(request.Skeleton), request.Partial, request.Bone)
		if !ok {
			return solved, fmt.Errorf("%w: %s", skeleton.ErrBoneNotFound, request.Bone)
		}
		target, err := request.TargetVec()
		if err != nil {
			return solved, err
		}
		params, err := solverParams(request)
		if err != nil {
			return solved, err
		}
		if uc.SolveIK(ref, target, params) {
			solved++
		}
	}
	return solved, nil
}

// solverParams はIK要求からソルバ設定を組み立てる。
func solverParams(request hostsim.SceneIK) (minteractor.IKSolverParams, error) {
	switch strings.ToLower(strings.TrimSpace(request.Solver)) {
	case "", "ccd":
		ccd := minteractor.DefaultCCDParams()
		if request.Depth > 0 {
			ccd.Depth = request.Depth
		}
		if request.Iterations > 0 {
			ccd.Iterations = request.Iterations
		}
		return ccd, nil
	case "two_joint":
		return minteractor.DefaultTwoJointParams(), nil
	default:
		return nil, fmt.Errorf("%w: 未対応のIKソルバです (%s)", hostsim.ErrInvalidScene, request.Solver)
	}
}

// collectBones は全ボーンの最終モデル空間姿勢を集める。
func collectBones(uc *minteractor.PoseSyncUsecase) []BoneResult {
	bones := []BoneResult{}
	for _, id := range uc.SkeletonIDs() {
		skel, _ := uc.Skeleton(id)
		for _, partial := range skel.Partials {
			for _, bone := range partial.Bones {
				bones = append(bones, BoneResult{
					Skeleton: id,
					Partial:  partial.Index,
					Name:     bone.Name,
					Position: bone.LastModel.Position,
					Rotation: bone.LastModel.Rotation,
				})
			}
		}
	}
	return bones
}

// Find は名前でボーン結果を返す。
func (r *Result) Find(id skeleton.SkeletonID, partial int, name string) (BoneResult, bool) {
	for _, bone := range r.Bones {
		if bone.Skeleton == id && bone.Partial == partial && bone.Name == name {
			return bone, true
		}
	}
	return BoneResult{}, false
}

// WriteBones はボーン結果をタブ区切りで出力する。
func WriteBones(out io.Writer, bones []BoneResult) {
	for _, bone := range bones {
		p := bone.Position
		fmt.Fprintf(out, "%d\t%d\t%s\t%.4f\t%.4f\t%.4f\n", bone.Skeleton, bone.Partial, bone.Name, p[0], p[1], p[2])
	}
}
