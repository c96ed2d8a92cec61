// 指示: miu200521358
package minteractor

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Etheirys/Brio-sub001/pkg/domain/bonefilter"
	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/domain/transform"
	"github.com/Etheirys/Brio-sub001/pkg/usecase/port/moutput"
)

// errRecovered は処理中のパニックを回収したことを表す。
var errRecovered = errors.New("処理中にパニックが発生しました")

const (
	stageBegin          = "begin"
	stageApply          = "apply"
	stageFinalize       = "finalize"
	stageBone           = "bone"
	stageAttachment     = "attachment"
	stageHostAttachment = "host_attachment"
	stageModelTransform = "model_transform"
	stageResample       = "resample"
	stageIK             = "ik"
)

// replayComponents は再生時に成分ごとに書き込む順序。
var replayComponents = []transform.TransformComponents{
	transform.ComponentPosition,
	transform.ComponentRotation,
	transform.ComponentScale,
}

// OnPostPhysics はホストの物理計算後に呼ばれ、フレームを開始してポーズを適用する。
func (uc *PoseSyncUsecase) OnPostPhysics() FrameStats {
	uc.Begin()
	return uc.Apply()
}

// OnFrameFinalize はホストのフレーム確定後に呼ばれ、姿勢を再取得する。
func (uc *PoseSyncUsecase) OnFrameFinalize() FrameStats {
	return uc.Finalize()
}

// Begin はフレームを開始し、適用対象スケルトンと持ち主を確定する。
func (uc *PoseSyncUsecase) Begin() FrameStats {
	if uc.frame != nil {
		uc.logger.Warn(logFrameStaleFinalized)
		uc.Finalize()
	}
	stats := FrameStats{Phase: FramePhaseBegin}
	if !uc.isPosingCapable() {
		stats.Skipped = true
		return stats
	}

	frame := &frameState{owners: map[skeleton.SkeletonID]moutput.IPoseOwner{}}
	uc.guard(stageBegin, &stats, func() {
		for _, id := range uc.cache.IDs() {
			skel, _ := uc.cache.Get(id)
			skel.ClearAttachments()
			owner, registered := uc.owners[id]
			if !registered || !uc.host.IsSkeletonValid(id) {
				continue
			}
			frame.owners[id] = owner
		}
	})
	uc.frame = frame
	stats.Skeletons = len(frame.owners)
	uc.metrics.frames.Inc()
	return stats
}

// Apply はホストの接続処理の後、親スケルトンから順にポーズ編集を適用する。
func (uc *PoseSyncUsecase) Apply() FrameStats {
	stats := FrameStats{Phase: FramePhaseApply}
	if uc.frame == nil || uc.frame.applied {
		stats.Skipped = true
		return stats
	}
	frame := uc.frame
	frame.applied = true

	uc.guard(stageApply, &stats, func() {
		if err := uc.host.ResolveAttachments(); err != nil {
			stats.Failures++
			uc.metrics.failure(stageHostAttachment)
			uc.logger.Warn(logAttachmentResolveFail, slog.Any("error", err))
		}
		for _, id := range uc.attachmentOrder() {
			skel, ok := uc.cache.Get(id)
			if !ok || !uc.host.IsSkeletonValid(id) {
				continue
			}
			reparented := uc.reparentAttachmentSafely(skel, &stats)
			owner, hasOwner := frame.owners[id]
			if !hasOwner && !reparented {
				continue
			}
			frame.updated = append(frame.updated, id)
			if !hasOwner {
				continue
			}
			stats.Skeletons++
			uc.applySkeleton(skel, owner, &stats)
		}
	})
	uc.metrics.bonesApplied.Add(float64(stats.BonesApplied))
	return stats
}

// Finalize は更新したスケルトンの姿勢を再取得し、フレーム内状態を解放する。
func (uc *PoseSyncUsecase) Finalize() FrameStats {
	stats := FrameStats{Phase: FramePhaseFinalize}
	if uc.frame == nil {
		stats.Skipped = true
		return stats
	}
	frame := uc.frame
	uc.frame = nil

	uc.guard(stageFinalize, &stats, func() {
		for _, id := range frame.updated {
			skel, ok := uc.cache.Get(id)
			if !ok {
				continue
			}
			uc.resampleSkeleton(skel, &stats)
			stats.Resampled++
		}
	})
	stats.Skeletons = len(frame.updated)
	return stats
}

func (uc *PoseSyncUsecase) isPosingCapable() bool {
	if uc.host == nil {
		return false
	}
	return uc.capability == nil || uc.capability.IsPosingCapable()
}

// guard は段階全体の失敗を回収して記録する。
func (uc *PoseSyncUsecase) guard(stage string, stats *FrameStats, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			stats.Failures++
			uc.metrics.failure(stage)
			uc.logger.Error(logFrameFailed, slog.String("stage", stage), slog.Any("panic", r))
		}
	}()
	fn()
}

// attachmentOrder は接続の深さが浅い順にスケルトン識別子を並べる。
func (uc *PoseSyncUsecase) attachmentOrder() []skeleton.SkeletonID {
	ids := uc.cache.IDs()
	depths := make(map[skeleton.SkeletonID]int, len(ids))
	var depthOf func(id skeleton.SkeletonID, hops int) int
	depthOf = func(id skeleton.SkeletonID, hops int) int {
		if depth, ok := depths[id]; ok {
			return depth
		}
		depth := 0
		if hops <= len(ids) {
			if parent, ok := uc.host.AttachmentParent(id); ok && parent.Skeleton != id {
				if _, cached := uc.cache.Get(parent.Skeleton); cached {
					depth = depthOf(parent.Skeleton, hops+1) + 1
				}
			}
		}
		depths[id] = depth
		return depth
	}
	for _, id := range ids {
		depthOf(id, 0)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		return depths[ids[i]] < depths[ids[j]]
	})
	return ids
}

func (uc *PoseSyncUsecase) reparentAttachmentSafely(skel *skeleton.Skeleton, stats *FrameStats) bool {
	reparented, err := uc.reparentAttachment(skel)
	if err != nil {
		stats.Failures++
		uc.metrics.failure(stageAttachment)
		uc.logger.Warn(logAttachmentReparentFail,
			slog.Uint64("skeleton", uint64(skel.ID)),
			slog.Any("error", err))
		return false
	}
	if reparented {
		stats.Reparented++
	}
	return reparented
}

// reparentAttachment は接続子スケルトンの根を親ボーンの現在姿勢へ合わせる。
func (uc *PoseSyncUsecase) reparentAttachment(skel *skeleton.Skeleton) (reparented bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errRecovered, r)
		}
	}()

	parentRef, ok := uc.host.AttachmentParent(skel.ID)
	if !ok || parentRef.Skeleton == skel.ID {
		return false, nil
	}
	parentSkel, ok := uc.cache.Get(parentRef.Skeleton)
	if !ok {
		return false, nil
	}
	if _, err := parentSkel.Bone(parentRef); err != nil {
		return false, err
	}
	root, ok := skel.RootRef()
	if !ok {
		return false, nil
	}
	parentModel, err := uc.host.ReadModelTransform(parentRef, false)
	if err != nil {
		return false, fmt.Errorf("接続先ボーン姿勢の取得に失敗しました: %w", err)
	}
	if err := uc.host.WriteModelTransform(root, parentModel, true); err != nil {
		return false, fmt.Errorf("接続子スケルトン根の書き込みに失敗しました: %w", err)
	}
	parentSkel.AddAttachment(skel.ID)
	return true, nil
}

// applySkeleton はエンティティ全体の編集とボーンごとの編集を適用する。
func (uc *PoseSyncUsecase) applySkeleton(skel *skeleton.Skeleton, owner moutput.IPoseOwner, stats *FrameStats) {
	if err := uc.applyModelTransform(skel, owner); err != nil {
		stats.Failures++
		uc.metrics.failure(stageModelTransform)
		uc.logger.Warn(logModelTransformFailed,
			slog.Uint64("skeleton", uint64(skel.ID)),
			slog.Any("error", err))
	}

	for _, partial := range skel.Partials {
		for boneIndex := range partial.Bones {
			bone := &partial.Bones[boneIndex]
			replayed, err := uc.applyBone(skel, partial, bone, owner)
			if err != nil {
				stats.Failures++
				uc.metrics.failure(stageBone)
				uc.logger.Warn(logBoneApplyFailed,
					slog.Uint64("skeleton", uint64(skel.ID)),
					slog.String("bone", bone.Name),
					slog.Int("partial", partial.Index),
					slog.Any("error", err))
				continue
			}
			if replayed > 0 {
				stats.BonesApplied++
				stats.EntriesReplayed += replayed
			}
		}
	}
}

func (uc *PoseSyncUsecase) applyModelTransform(skel *skeleton.Skeleton, owner moutput.IPoseOwner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errRecovered, r)
		}
	}()

	model := owner.ModelTransform()
	if transform.IsIdentity(model) {
		return nil
	}
	root, ok := skel.RootRef()
	if !ok {
		return nil
	}
	return uc.replayEntry(root, pose.PoseStackEntry{Propagation: transform.ComponentAll, Delta: model})
}

// applyBone は1ボーン分の処理を行い、再生した編集件数を返す。
// 既存の編集を再生した後に派生ポーズ処理を実行し、その間に積まれた編集を続けて再生する。
func (uc *PoseSyncUsecase) applyBone(
	skel *skeleton.Skeleton,
	partial *skeleton.Partial,
	bone *skeleton.Bone,
	owner moutput.IPoseOwner,
) (replayed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errRecovered, r)
		}
	}()

	if partial.IsPartialRoot(bone.Ref.Bone) {
		if err := uc.reparentPartialRoot(skel, partial, bone); err != nil {
			return 0, err
		}
	}
	if uc.filter != nil && !uc.filter.IsBoneValid(bonefilter.BoneInfo{Name: bone.Name, Hidden: bone.Hidden}, skel.Slot, true) {
		return 0, nil
	}

	id := pose.NewBonePoseInfoId(bone.Name, partial.Index, skel.Slot)
	bonePose := owner.GetBonePose(id)
	if bonePose == nil {
		return 0, nil
	}

	existing := len(bonePose.Stack)
	for _, entry := range bonePose.Stack[:existing] {
		if err := uc.replayEntry(bone.Ref, entry); err != nil {
			return replayed, err
		}
		replayed++
	}

	model, err := uc.host.ReadModelTransform(bone.Ref, false)
	if err != nil {
		return replayed, fmt.Errorf("ボーン姿勢の取得に失敗しました: %w", err)
	}
	bone.LastModel = model
	owner.RunTransitiveActions(moutput.TransitiveContext{
		Skeleton:       skel,
		Bone:           bone,
		ID:             id,
		BonePose:       bonePose,
		ModelTransform: model,
	})

	if len(bonePose.Stack) > existing {
		for _, entry := range bonePose.Stack[existing:] {
			if err := uc.replayEntry(bone.Ref, entry); err != nil {
				return replayed, err
			}
			replayed++
		}
	}
	return replayed, nil
}

// reparentPartialRoot は部分スケルトンの根を本体側の接続先ボーンの姿勢へ合わせる。
func (uc *PoseSyncUsecase) reparentPartialRoot(skel *skeleton.Skeleton, partial *skeleton.Partial, bone *skeleton.Bone) error {
	parentRef := skeleton.BoneRef{Skeleton: skel.ID, Partial: 0, Bone: partial.ConnectedParentBone}
	if _, err := skel.Bone(parentRef); err != nil {
		return err
	}
	parentModel, err := uc.host.ReadModelTransform(parentRef, true)
	if err != nil {
		return fmt.Errorf("接続先ボーン姿勢の取得に失敗しました: %w", err)
	}
	if err := uc.host.WriteModelTransform(bone.Ref, parentModel, true); err != nil {
		return fmt.Errorf("部分スケルトン根の書き込みに失敗しました: %w", err)
	}
	return nil
}

// replayEntry は編集1件を成分ごとに、その成分の伝播設定でホストへ書き込む。
func (uc *PoseSyncUsecase) replayEntry(ref skeleton.BoneRef, entry pose.PoseStackEntry) error {
	for _, component := range replayComponents {
		part := transform.Filter(entry.Delta, component)
		if transform.IsIdentity(part) {
			continue
		}
		propagate := entry.Propagation.Has(component)
		current, err := uc.host.ReadModelTransform(ref, propagate)
		if err != nil {
			return fmt.Errorf("ボーン姿勢の取得に失敗しました(%s): %w", component, err)
		}
		if err := uc.host.WriteModelTransform(ref, transform.Compose(current, part), propagate); err != nil {
			return fmt.Errorf("ボーン姿勢の書き込みに失敗しました(%s): %w", component, err)
		}
	}
	return nil
}

// resampleSkeleton は全ボーンのモデル空間姿勢を記録し直す。
func (uc *PoseSyncUsecase) resampleSkeleton(skel *skeleton.Skeleton, stats *FrameStats) {
	for _, partial := range skel.Partials {
		for boneIndex := range partial.Bones {
			bone := &partial.Bones[boneIndex]
			model, err := uc.host.ReadModelTransform(bone.Ref, false)
			if err != nil {
				stats.Failures++
				uc.metrics.failure(stageResample)
				uc.logger.Warn(logSkeletonResampleFailed,
					slog.Uint64("skeleton", uint64(skel.ID)),
					slog.String("bone", bone.Name),
					slog.Any("error", err))
				continue
			}
			bone.LastModel = model
		}
	}
}
