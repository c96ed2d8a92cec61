// 指示: miu200521358
package minteractor

import (
	"github.com/Etheirys/Brio-sub001/pkg/domain/bonefilter"
	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/domain/transform"
	"github.com/Etheirys/Brio-sub001/pkg/usecase/port/moutput"
)

// Selection は編集対象の選択を表す。
// 実装は BoneSelection と ModelTransformSelection と NoSelection に限る。
type Selection interface {
	isSelection()
}

// BoneSelection は1ボーンの選択を表す。
type BoneSelection struct {
	ID pose.BonePoseInfoId
}

// ModelTransformSelection はエンティティ全体の選択を表す。
type ModelTransformSelection struct{}

// NoSelection は未選択を表す。
type NoSelection struct{}

func (BoneSelection) isSelection()           {}
func (ModelTransformSelection) isSelection() {}
func (NoSelection) isSelection()             {}

// IsSelectionEditable は選択が分類設定上編集可能か判定する。
func IsSelectionEditable(sel Selection, filter *bonefilter.BoneFilter, hidden bool) bool {
	switch s := sel.(type) {
	case BoneSelection:
		if filter == nil {
			return true
		}
		return filter.IsBoneValid(bonefilter.BoneInfo{Name: s.ID.BoneName, Hidden: hidden}, s.ID.Slot, false)
	case ModelTransformSelection:
		return true
	default:
		return false
	}
}

// EntityPoseOwner はポーズ可能なエンティティ1体分の編集を表す。
type EntityPoseOwner struct {
	Pose    *pose.PoseInfo
	Model   transform.Transform
	actions []moutput.TransitiveAction
}

// NewEntityPoseOwner は空の編集を持つエンティティを生成する。
func NewEntityPoseOwner() *EntityPoseOwner {
	return &EntityPoseOwner{
		Pose:  pose.NewPoseInfo(),
		Model: transform.Identity(),
	}
}

// GetBonePose はボーン編集を返す。
func (o *EntityPoseOwner) GetBonePose(id pose.BonePoseInfoId) *pose.BonePoseInfo {
	if o.Pose == nil {
		return nil
	}
	return o.Pose.GetBonePose(id)
}

// ModelTransform はエンティティ全体への編集量を返す。
func (o *EntityPoseOwner) ModelTransform() transform.Transform {
	return o.Model
}

// AddTransitiveAction は派生ポーズ処理を追加する。
func (o *EntityPoseOwner) AddTransitiveAction(action moutput.TransitiveAction) {
	if action == nil {
		return
	}
	o.actions = append(o.actions, action)
}

// ClearTransitiveActions は派生ポーズ処理を全て外す。
func (o *EntityPoseOwner) ClearTransitiveActions() {
	o.actions = nil
}

// RunTransitiveActions は登録順に派生ポーズ処理を実行する。
func (o *EntityPoseOwner) RunTransitiveActions(ctx moutput.TransitiveContext) {
	for _, action := range o.actions {
		action(ctx)
	}
}

// ApplySelection は選択に応じて編集をボーンかエンティティ全体へ振り分ける。
func (o *EntityPoseOwner) ApplySelection(sel Selection, t transform.Transform, opts pose.ApplyOptions) bool {
	switch s := sel.(type) {
	case BoneSelection:
		if o.Pose == nil {
			o.Pose = pose.NewPoseInfo()
		}
		return o.Pose.Apply(s.ID, t, opts)
	case ModelTransformSelection:
		return o.applyModel(t, opts)
	case NoSelection:
		return false
	default:
		return false
	}
}

// applyModel はエンティティ全体の編集量を更新する。
func (o *EntityPoseOwner) applyModel(t transform.Transform, opts pose.ApplyOptions) bool {
	applyTo := opts.ApplyTo
	if applyTo == transform.ComponentNone {
		applyTo = transform.ComponentAll
	}
	var next transform.Transform
	if opts.Original != nil {
		next = transform.Merge(o.Model, transform.Filter(transform.Diff(t, *opts.Original), applyTo), applyTo)
	} else {
		next = transform.Compose(o.Model, transform.Filter(t, applyTo))
	}
	if transform.ApproxEqual(next, o.Model, transform.DefaultEpsilon) {
		return false
	}
	o.Model = next
	return true
}

// ResetModel はエンティティ全体の編集を初期化する。
func (o *EntityPoseOwner) ResetModel() {
	o.Model = transform.Identity()
}
