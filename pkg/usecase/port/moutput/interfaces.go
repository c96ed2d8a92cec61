// 指示: miu200521358
package moutput

import (
	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/domain/transform"
	"github.com/go-gl/mathgl/mgl64"
)

// IPoseBuffer はホストのモデル空間ボーン姿勢の読み書き契約を表す。
type IPoseBuffer interface {
	// ReadModelTransform はモデル空間の姿勢を読む。
	ReadModelTransform(ref skeleton.BoneRef, propagate bool) (transform.Transform, error)
	// WriteModelTransform はモデル空間の姿勢を書く。propagate なら子孫へ伝播する。
	WriteModelTransform(ref skeleton.BoneRef, t transform.Transform, propagate bool) error
}

// ISkeletonSource はホストのスケルトン記述の取得契約を表す。
type ISkeletonSource interface {
	// DescribeSkeleton はスケルトンの階層記述を返す。
	DescribeSkeleton(id skeleton.SkeletonID) (skeleton.Description, error)
	// IsSkeletonValid はスケルトンが今フレームで有効か返す。
	IsSkeletonValid(id skeleton.SkeletonID) bool
}

// IAttachmentResolver はホストのスケルトン接続処理の契約を表す。
type IAttachmentResolver interface {
	// ResolveAttachments はホスト自身の接続処理を実行する。失敗しても残りの接続は処理する。
	ResolveAttachments() error
	// AttachmentParent は子スケルトンの接続先ボーンを返す。
	AttachmentParent(child skeleton.SkeletonID) (skeleton.BoneRef, bool)
}

// IHostBridge はホストのアニメーションエンジンとの境界全体を表す。
type IHostBridge interface {
	IPoseBuffer
	ISkeletonSource
	IAttachmentResolver
}

// CCDConstraint はCCDの拘束1件を表す。
type CCDConstraint struct {
	StartBone skeleton.BoneRef
	EndBone   skeleton.BoneRef
	Target    mgl64.Vec3
}

// CCDSetup はCCDソルバの入力を表す。
type CCDSetup struct {
	Iterations int
	Constraint CCDConstraint
}

// TwoJointSetup は2関節IKソルバの入力を表す。
type TwoJointSetup struct {
	FirstJoint          skeleton.BoneRef
	SecondJoint         skeleton.BoneRef
	EndBone             skeleton.BoneRef
	HingeAxis           mgl64.Vec3
	CosineMaxHingeAngle float64
	CosineMinHingeAngle float64
	FirstJointGain      float64
	SecondJointGain     float64
	EndJointGain        float64
	EndTarget           mgl64.Vec3
	EndTargetRotation   mgl64.Quat
	EnforceEndPosition  bool
	EnforceEndRotation  bool
}

// IIKSolvers はホストのIKソルバ入口の契約を表す。
type IIKSolvers interface {
	// SolveCCD はCCDソルバを呼び出す。
	SolveCCD(id skeleton.SkeletonID, setup CCDSetup) error
	// SolveTwoJoint は2関節IKソルバを呼び出す。
	SolveTwoJoint(id skeleton.SkeletonID, setup TwoJointSetup) error
}

// ICapabilityProvider はポーズ編集可能状態の提供契約を表す。
type ICapabilityProvider interface {
	// IsPosingCapable は今フレームでポーズ適用してよいか返す。
	IsPosingCapable() bool
}

// TransitiveContext は派生ポーズ処理へ渡すボーン情報を表す。
type TransitiveContext struct {
	Skeleton       *skeleton.Skeleton
	Bone           *skeleton.Bone
	ID             pose.BonePoseInfoId
	BonePose       *pose.BonePoseInfo
	ModelTransform transform.Transform
}

// TransitiveAction はApply中に呼ばれる派生ポーズ処理を表す。
type TransitiveAction func(ctx TransitiveContext)

// IPoseOwner はスケルトンに紐づくポーズ編集の持ち主を表す。
type IPoseOwner interface {
	// GetBonePose はボーン編集を返す。nil なら対象外とする。
	GetBonePose(id pose.BonePoseInfoId) *pose.BonePoseInfo
	// ModelTransform はエンティティ全体への編集量を返す。
	ModelTransform() transform.Transform
	// RunTransitiveActions は派生ポーズ処理を実行する。
	RunTransitiveActions(ctx TransitiveContext)
}
