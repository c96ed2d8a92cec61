// 指示: miu200521358
// Package skeleton はホストのスケルトン階層を写したボーン表とそのキャッシュを提供する。
package skeleton

import (
	"errors"
	"fmt"

	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/domain/transform"
)

var (
	// ErrSkeletonNotFound はスケルトンがキャッシュにないことを表す。
	ErrSkeletonNotFound = errors.New("スケルトンが見つかりません")
	// ErrBoneNotFound はボーンが見つからないことを表す。
	ErrBoneNotFound = errors.New("ボーンが見つかりません")
	// ErrInvalidDescription はスケルトン記述が不正であることを表す。
	ErrInvalidDescription = errors.New("スケルトン記述が不正です")
)

// SkeletonID はホスト上のスケルトン識別子を表す。
type SkeletonID uint64

// BoneRef はボーン表内の位置を表す。
type BoneRef struct {
	Skeleton SkeletonID
	Partial  int
	Bone     int
}

// String はボーン位置の表示文字列を返す。
func (r BoneRef) String() string {
	return fmt.Sprintf("%d:%d:%d", r.Skeleton, r.Partial, r.Bone)
}

// BoneDescription はホストが報告するボーン1件を表す。
type BoneDescription struct {
	Name   string
	Parent int
	Hidden bool
}

// PartialDescription はホストが報告する部分スケルトンを表す。
// ConnectedParentBone は本体(部分0)側で接続先になるボーン番号。
type PartialDescription struct {
	Bones               []BoneDescription
	ConnectedBone       int
	ConnectedParentBone int
}

// Description はホストが報告するスケルトン全体を表す。
type Description struct {
	ID       SkeletonID
	Slot     pose.PoseInfoSlot
	Partials []PartialDescription
}

// Bone はボーン表の1件を表す。
type Bone struct {
	Ref         BoneRef
	Name        string
	ParentIndex int
	Hidden      bool
	LastModel   transform.Transform
}

// IsRoot は部分スケルトン内の根ボーンか判定する。
func (b *Bone) IsRoot() bool {
	return b.ParentIndex < 0
}

// Partial は部分スケルトンを表す。
type Partial struct {
	Index               int
	ConnectedBone       int
	ConnectedParentBone int
	Bones               []Bone
}

// IsPartialRoot は本体以外の部分スケルトンの接続ボーンか判定する。
func (p *Partial) IsPartialRoot(boneIndex int) bool {
	return p.Index > 0 && boneIndex == p.ConnectedBone
}

// Skeleton はボーン表を持つスケルトンを表す。
type Skeleton struct {
	ID          SkeletonID
	Slot        pose.PoseInfoSlot
	Partials    []*Partial
	Attachments []SkeletonID
}

// RootRef は本体の根ボーン位置を返す。
func (s *Skeleton) RootRef() (BoneRef, bool) {
	if len(s.Partials) == 0 || len(s.Partials[0].Bones) == 0 {
		return BoneRef{}, false
	}
	return BoneRef{Skeleton: s.ID, Partial: 0, Bone: 0}, true
}

// Bone はボーン位置からボーンを返す。
func (s *Skeleton) Bone(ref BoneRef) (*Bone, error) {
	if ref.Skeleton != s.ID {
		return nil, fmt.Errorf("%w: %s", ErrBoneNotFound, ref)
	}
	if ref.Partial < 0 || ref.Partial >= len(s.Partials) {
		return nil, fmt.Errorf("%w: %s", ErrBoneNotFound, ref)
	}
	partial := s.Partials[ref.Partial]
	if ref.Bone < 0 || ref.Bone >= len(partial.Bones) {
		return nil, fmt.Errorf("%w: %s", ErrBoneNotFound, ref)
	}
	return &partial.Bones[ref.Bone], nil
}

// FindBone は部分スケルトン内の名前一致ボーンを返す。
func (s *Skeleton) FindBone(partialIndex int, name string) (*Bone, bool) {
	if partialIndex < 0 || partialIndex >= len(s.Partials) {
		return nil, false
	}
	for i := range s.Partials[partialIndex].Bones {
		if s.Partials[partialIndex].Bones[i].Name == name {
			return &s.Partials[partialIndex].Bones[i], true
		}
	}
	return nil, false
}

// Parent は親ボーン位置を返す。部分スケルトンの根は本体側の接続先を親とする。
func (s *Skeleton) Parent(ref BoneRef) (BoneRef, bool) {
	bone, err := s.Bone(ref)
	if err != nil {
		return BoneRef{}, false
	}
	if !bone.IsRoot() {
		return BoneRef{Skeleton: s.ID, Partial: ref.Partial, Bone: bone.ParentIndex}, true
	}
	partial := s.Partials[ref.Partial]
	if partial.Index == 0 {
		return BoneRef{}, false
	}
	parent := BoneRef{Skeleton: s.ID, Partial: 0, Bone: partial.ConnectedParentBone}
	if _, err := s.Bone(parent); err != nil {
		return BoneRef{}, false
	}
	return parent, true
}

// Ancestors は ref から親方向へ depth 段たどったボーン列を返す。
// 先頭が ref、末尾が最上位。途中で根に達した場合は false を返す。
func (s *Skeleton) Ancestors(ref BoneRef, depth int) ([]BoneRef, bool) {
	if _, err := s.Bone(ref); err != nil || depth < 0 {
		return nil, false
	}
	chain := []BoneRef{ref}
	current := ref
	for i := 0; i < depth; i++ {
		parent, ok := s.Parent(current)
		if !ok {
			return chain, false
		}
		chain = append(chain, parent)
		current = parent
	}
	return chain, true
}

// BoneCount は全ボーン数を返す。
func (s *Skeleton) BoneCount() int {
	count := 0
	for _, partial := range s.Partials {
		count += len(partial.Bones)
	}
	return count
}

// ClearAttachments は接続子スケルトン一覧を空にする。
func (s *Skeleton) ClearAttachments() {
	s.Attachments = s.Attachments[:0]
}

// AddAttachment は接続子スケルトンを記録する。
func (s *Skeleton) AddAttachment(child SkeletonID) {
	for _, id := range s.Attachments {
		if id == child {
			return
		}
	}
	s.Attachments = append(s.Attachments, child)
}

// NewSkeleton は記述を検証してボーン表を構築する。
func NewSkeleton(desc Description) (*Skeleton, error) {
	if len(desc.Partials) == 0 {
		return nil, fmt.Errorf("%w: 部分スケルトンがありません (%d)", ErrInvalidDescription, desc.ID)
	}
	skel := &Skeleton{ID: desc.ID, Slot: desc.Slot}
	for partialIndex, partialDesc := range desc.Partials {
		partial := &Partial{
			Index:               partialIndex,
			ConnectedBone:       partialDesc.ConnectedBone,
			ConnectedParentBone: partialDesc.ConnectedParentBone,
			Bones:               make([]Bone, 0, len(partialDesc.Bones)),
		}
		for boneIndex, boneDesc := range partialDesc.Bones {
			if boneDesc.Name == "" {
				return nil, fmt.Errorf("%w: ボーン名が空です (%d:%d:%d)", ErrInvalidDescription, desc.ID, partialIndex, boneIndex)
			}
			if boneDesc.Parent >= boneIndex {
				return nil, fmt.Errorf("%w: 親ボーンが後方にあります (%s)", ErrInvalidDescription, boneDesc.Name)
			}
			parent := boneDesc.Parent
			if parent < 0 {
				parent = -1
			}
			partial.Bones = append(partial.Bones, Bone{
				Ref:         BoneRef{Skeleton: desc.ID, Partial: partialIndex, Bone: boneIndex},
				Name:        boneDesc.Name,
				ParentIndex: parent,
				Hidden:      boneDesc.Hidden,
				LastModel:   transform.Identity(),
			})
		}
		if partialIndex > 0 && len(partial.Bones) > 0 {
			if partial.ConnectedBone < 0 || partial.ConnectedBone >= len(partial.Bones) {
				return nil, fmt.Errorf("%w: 接続ボーンが範囲外です (部分%d)", ErrInvalidDescription, partialIndex)
			}
		}
		skel.Partials = append(skel.Partials, partial)
	}
	return skel, nil
}
