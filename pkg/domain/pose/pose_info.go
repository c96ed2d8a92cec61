// 指示: miu200521358
// Package pose はボーンごとのポーズスタックを保持する編集モデルを提供する。
package pose

import (
	"fmt"
	"sort"

	"github.com/Etheirys/Brio-sub001/pkg/domain/transform"
	"github.com/tiendc/go-deepcopy"
)

// PoseInfo はポーズ可能な1エンティティ分の編集全体を表す。
type PoseInfo struct {
	Bones map[BonePoseInfoId]*BonePoseInfo
}

// NewPoseInfo は空の編集を生成する。
func NewPoseInfo() *PoseInfo {
	return &PoseInfo{Bones: map[BonePoseInfoId]*BonePoseInfo{}}
}

// GetBonePose はボーン編集を返す。未登録なら空の編集を生成して登録する。
func (p *PoseInfo) GetBonePose(id BonePoseInfoId) *BonePoseInfo {
	if p.Bones == nil {
		p.Bones = map[BonePoseInfoId]*BonePoseInfo{}
	}
	bone, exists := p.Bones[id]
	if !exists || bone == nil {
		bone = NewBonePoseInfo()
		p.Bones[id] = bone
	}
	return bone
}

// Has はボーン編集が登録済みか判定する。
func (p *PoseInfo) Has(id BonePoseInfoId) bool {
	_, exists := p.Bones[id]
	return exists
}

// Apply はボーンへ編集を適用し、必要なら左右対称ボーンへ反映する。
func (p *PoseInfo) Apply(id BonePoseInfoId, t transform.Transform, opts ApplyOptions) bool {
	bone := p.GetBonePose(id)
	mode := bone.MirrorMode
	if opts.MirrorMode != nil {
		mode = *opts.MirrorMode
	}

	delta, applied := bone.Apply(t, opts)
	if !applied {
		return false
	}

	if mode == MirrorModeNone {
		return true
	}
	mirrorID, ok := id.Mirror()
	if !ok {
		return true
	}

	mirrorDelta := delta
	if mode == MirrorModeMirror {
		mirrorDelta = transform.Invert(delta)
	}
	mirrorOpts := opts.WithMirrorMode(MirrorModeNone)
	mirrorOpts.Original = nil
	p.Apply(mirrorID, mirrorDelta, mirrorOpts)
	return true
}

// IsOverridden はいずれかのボーンに編集があるか判定する。
func (p *PoseInfo) IsOverridden() bool {
	for _, bone := range p.Bones {
		if bone != nil && bone.IsOverridden() {
			return true
		}
	}
	return false
}

// BoneIds は登録済みボーン識別子を名前順で返す。
func (p *PoseInfo) BoneIds() []BonePoseInfoId {
	ids := make([]BonePoseInfoId, 0, len(p.Bones))
	for id := range p.Bones {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Slot != ids[j].Slot {
			return ids[i].Slot < ids[j].Slot
		}
		if ids[i].PartialIndex != ids[j].PartialIndex {
			return ids[i].PartialIndex < ids[j].PartialIndex
		}
		return ids[i].BoneName < ids[j].BoneName
	})
	return ids
}

// Reset は全ボーンの編集を破棄する。
func (p *PoseInfo) Reset() {
	p.Bones = map[BonePoseInfoId]*BonePoseInfo{}
}

// ResetWhere は条件に一致するボーンの編集を破棄する。
func (p *PoseInfo) ResetWhere(match func(id BonePoseInfoId) bool) int {
	count := 0
	for id, bone := range p.Bones {
		if bone == nil || !match(id) {
			continue
		}
		if bone.IsOverridden() {
			count++
		}
		bone.Reset()
	}
	return count
}

// Clone は編集全体を深くコピーする。
func (p *PoseInfo) Clone() (*PoseInfo, error) {
	clone := &PoseInfo{}
	if err := deepcopy.Copy(clone, *p); err != nil {
		return nil, fmt.Errorf("ポーズ情報の複製に失敗しました: %w", err)
	}
	if clone.Bones == nil {
		clone.Bones = map[BonePoseInfoId]*BonePoseInfo{}
	}
	return clone, nil
}
