// 指示: miu200521358
// Package hostsim はアニメーションエンジンのスケルトン処理を模したホストを提供する。
package hostsim

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/domain/transform"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrInvalidBone はホスト上に存在しないボーンを指定したことを表す。
var ErrInvalidBone = errors.New("ホスト上にボーンがありません")

// BoneSpec はホストに登録するボーン1件を表す。
// Local の Scale は乗算スケールで、(1,1,1) が等倍。
type BoneSpec struct {
	Name   string
	Parent int
	Hidden bool
	Local  transform.Transform
}

// PartialSpec はホストに登録する部分スケルトンを表す。
type PartialSpec struct {
	Bones               []BoneSpec
	ConnectedBone       int
	ConnectedParentBone int
}

// SkeletonSpec はホストに登録するスケルトンを表す。
type SkeletonSpec struct {
	ID       skeleton.SkeletonID
	Slot     pose.PoseInfoSlot
	World    transform.Transform
	Partials []PartialSpec
}

type boneState struct {
	spec  BoneSpec
	model transform.Transform
}

type partialState struct {
	spec  PartialSpec
	bones []boneState
}

type skeletonState struct {
	spec         SkeletonSpec
	partials     []*partialState
	valid        bool
	attachParent *skeleton.BoneRef
	attachPose   transform.Transform
}

// Host はスケルトンのモデル空間姿勢を保持する模擬ホストを表す。
// モデル空間の Scale も乗算スケールで扱い、子の位置オフセットにはかけない。
type Host struct {
	skeletons   map[skeleton.SkeletonID]*skeletonState
	readErrors  map[skeleton.BoneRef]error
	writeErrors map[skeleton.BoneRef]error

	// Posing は IsPosingCapable の戻り値。
	Posing bool

	ResolveCalls  int
	CCDCalls      int
	TwoJointCalls int
}

// NewHost は空のホストを生成する。
func NewHost() *Host {
	return &Host{
		skeletons:   map[skeleton.SkeletonID]*skeletonState{},
		readErrors:  map[skeleton.BoneRef]error{},
		writeErrors: map[skeleton.BoneRef]error{},
		Posing:      true,
	}
}

// NewUnitScale は等倍スケールの単位トランスフォームを返す。
func NewUnitScale() transform.Transform {
	t := transform.Identity()
	t.Scale = mgl64.Vec3{1, 1, 1}
	return t
}

// AddSkeleton はスケルトンを登録し、静止姿勢を計算する。
func (h *Host) AddSkeleton(spec SkeletonSpec) error {
	if len(spec.Partials) == 0 {
		return fmt.Errorf("部分スケルトンがありません (%d)", spec.ID)
	}
	spec.World = withRestDefaults(spec.World)
	state := &skeletonState{spec: spec, valid: true}
	for _, partialSpec := range spec.Partials {
		partial := &partialState{spec: partialSpec, bones: make([]boneState, len(partialSpec.Bones))}
		partial.spec.Bones = append([]BoneSpec(nil), partialSpec.Bones...)
		for i, boneSpec := range partialSpec.Bones {
			if boneSpec.Parent >= i {
				return fmt.Errorf("親ボーンが後方にあります (%s)", boneSpec.Name)
			}
			boneSpec.Local = withRestDefaults(boneSpec.Local)
			partial.spec.Bones[i] = boneSpec
			partial.bones[i] = boneState{spec: boneSpec, model: NewUnitScale()}
		}
		state.partials = append(state.partials, partial)
	}
	h.skeletons[spec.ID] = state
	h.Animate()
	return nil
}

// RemoveSkeleton はスケルトンを削除する。
func (h *Host) RemoveSkeleton(id skeleton.SkeletonID) {
	delete(h.skeletons, id)
}

// SetValid はスケルトンの有効状態を設定する。
func (h *Host) SetValid(id skeleton.SkeletonID, valid bool) {
	if state, ok := h.skeletons[id]; ok {
		state.valid = valid
	}
}

// Attach は子スケルトンの根を親ボーンへ接続する。
func (h *Host) Attach(child skeleton.SkeletonID, parent skeleton.BoneRef) error {
	state, ok := h.skeletons[child]
	if !ok {
		return fmt.Errorf("%w: %d", skeleton.ErrSkeletonNotFound, child)
	}
	if _, err := h.bone(parent); err != nil {
		return err
	}
	ref := parent
	state.attachParent = &ref
	return nil
}

// Detach は子スケルトンの接続を外す。
func (h *Host) Detach(child skeleton.SkeletonID) {
	if state, ok := h.skeletons[child]; ok {
		state.attachParent = nil
	}
}

// InjectReadError は指定ボーンの読み込みを失敗させる。err が nil なら解除する。
func (h *Host) InjectReadError(ref skeleton.BoneRef, err error) {
	if err == nil {
		delete(h.readErrors, ref)
		return
	}
	h.readErrors[ref] = err
}

// InjectWriteError は指定ボーンへの書き込みを失敗させる。err が nil なら解除する。
func (h *Host) InjectWriteError(ref skeleton.BoneRef, err error) {
	if err == nil {
		delete(h.writeErrors, ref)
		return
	}
	h.writeErrors[ref] = err
}

// SkeletonIDs は登録済みスケルトンの識別子を昇順で返す。
func (h *Host) SkeletonIDs() []skeleton.SkeletonID {
	ids := make([]skeleton.SkeletonID, 0, len(h.skeletons))
	for id := range h.skeletons {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Animate はアニメーション結果として全ボーンの姿勢を静止姿勢から計算し直す。
// 接続子スケルトンの根はこの時点の親ボーン姿勢を使う。
func (h *Host) Animate() {
	done := map[skeleton.SkeletonID]bool{}
	var animate func(id skeleton.SkeletonID, hops int)
	animate = func(id skeleton.SkeletonID, hops int) {
		if done[id] {
			return
		}
		done[id] = true
		state := h.skeletons[id]
		rootPose := state.spec.World
		attached := false
		if state.attachParent != nil && hops <= len(h.skeletons) {
			if _, exists := h.skeletons[state.attachParent.Skeleton]; exists && state.attachParent.Skeleton != id {
				animate(state.attachParent.Skeleton, hops+1)
				if parent, err := h.bone(*state.attachParent); err == nil {
					rootPose = parent.model
					state.attachPose = parent.model
					attached = true
				}
			}
		}
		h.animateSkeleton(state, rootPose, attached)
	}
	for _, id := range h.SkeletonIDs() {
		animate(id, 0)
	}
}

// animateSkeleton は根から順に姿勢を求める。接続子スケルトンの根は親ボーン姿勢そのものとする。
func (h *Host) animateSkeleton(state *skeletonState, rootPose transform.Transform, attached bool) {
	for partialIndex, partial := range state.partials {
		for i := range partial.bones {
			bone := &partial.bones[i]
			switch {
			case partialIndex > 0 && i == partial.spec.ConnectedBone:
				main := state.partials[0]
				if partial.spec.ConnectedParentBone >= 0 && partial.spec.ConnectedParentBone < len(main.bones) {
					bone.model = main.bones[partial.spec.ConnectedParentBone].model
				} else {
					bone.model = deriveChild(rootPose, bone.spec.Local)
				}
			case attached && partialIndex == 0 && i == 0:
				bone.model = rootPose
			case bone.spec.Parent < 0:
				bone.model = deriveChild(rootPose, bone.spec.Local)
			default:
				bone.model = deriveChild(partial.bones[bone.spec.Parent].model, bone.spec.Local)
			}
		}
	}
}

// DescribeSkeleton はスケルトンの階層記述を返す。
func (h *Host) DescribeSkeleton(id skeleton.SkeletonID) (skeleton.Description, error) {
	state, ok := h.skeletons[id]
	if !ok {
		return skeleton.Description{}, fmt.Errorf("%w: %d", skeleton.ErrSkeletonNotFound, id)
	}
	desc := skeleton.Description{ID: id, Slot: state.spec.Slot}
	for _, partial := range state.partials {
		partialDesc := skeleton.PartialDescription{
			ConnectedBone:       partial.spec.ConnectedBone,
			ConnectedParentBone: partial.spec.ConnectedParentBone,
		}
		for _, bone := range partial.bones {
			partialDesc.Bones = append(partialDesc.Bones, skeleton.BoneDescription{
				Name:   bone.spec.Name,
				Parent: bone.spec.Parent,
				Hidden: bone.spec.Hidden,
			})
		}
		desc.Partials = append(desc.Partials, partialDesc)
	}
	return desc, nil
}

// IsSkeletonValid はスケルトンが有効か返す。
func (h *Host) IsSkeletonValid(id skeleton.SkeletonID) bool {
	state, ok := h.skeletons[id]
	return ok && state.valid
}

// IsPosingCapable はポーズ適用可能か返す。
func (h *Host) IsPosingCapable() bool {
	return h.Posing
}

// ResolveAttachments は接続子スケルトンの根をアニメーション時点の親ボーン姿勢へ合わせる。
func (h *Host) ResolveAttachments() error {
	h.ResolveCalls++
	var errs []error
	for _, id := range h.SkeletonIDs() {
		state := h.skeletons[id]
		if state.attachParent == nil || len(state.partials) == 0 || len(state.partials[0].bones) == 0 {
			continue
		}
		root := skeleton.BoneRef{Skeleton: id, Partial: 0, Bone: 0}
		if err := h.WriteModelTransform(root, state.attachPose, true); err != nil {
			errs = append(errs, fmt.Errorf("接続子スケルトン %d の接続に失敗しました: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// AttachmentParent は子スケルトンの接続先ボーンを返す。
func (h *Host) AttachmentParent(child skeleton.SkeletonID) (skeleton.BoneRef, bool) {
	state, ok := h.skeletons[child]
	if !ok || state.attachParent == nil {
		return skeleton.BoneRef{}, false
	}
	return *state.attachParent, true
}

// ReadModelTransform はモデル空間の姿勢を返す。
func (h *Host) ReadModelTransform(ref skeleton.BoneRef, _ bool) (transform.Transform, error) {
	if err, ok := h.readErrors[ref]; ok {
		return transform.Transform{}, err
	}
	bone, err := h.bone(ref)
	if err != nil {
		return transform.Transform{}, err
	}
	return bone.model, nil
}

// WriteModelTransform はモデル空間の姿勢を書き込む。propagate なら部分スケルトン内の子孫を追従させる。
func (h *Host) WriteModelTransform(ref skeleton.BoneRef, t transform.Transform, propagate bool) error {
	if err, ok := h.writeErrors[ref]; ok {
		return err
	}
	bone, err := h.bone(ref)
	if err != nil {
		return err
	}
	if !transform.IsValid(t) {
		return fmt.Errorf("不正なトランスフォームです (%s)", ref)
	}
	old := bone.model
	bone.model = t
	if !propagate {
		return nil
	}

	partial := h.skeletons[ref.Skeleton].partials[ref.Partial]
	descendant := make([]bool, len(partial.bones))
	descendant[ref.Bone] = true
	for i := ref.Bone + 1; i < len(partial.bones); i++ {
		parent := partial.bones[i].spec.Parent
		if parent < 0 || !descendant[parent] {
			continue
		}
		descendant[i] = true
		child := &partial.bones[i]
		child.model = deriveChild(t, relativeTo(old, child.model))
	}
	return nil
}

// BoneModel は名前でボーンのモデル空間姿勢を返す。
func (h *Host) BoneModel(id skeleton.SkeletonID, partialIndex int, name string) (transform.Transform, bool) {
	ref, ok := h.FindBone(id, partialIndex, name)
	if !ok {
		return transform.Transform{}, false
	}
	bone, _ := h.bone(ref)
	return bone.model, true
}

// FindBone は名前でボーン位置を返す。
func (h *Host) FindBone(id skeleton.SkeletonID, partialIndex int, name string) (skeleton.BoneRef, bool) {
	state, ok := h.skeletons[id]
	if !ok || partialIndex < 0 || partialIndex >= len(state.partials) {
		return skeleton.BoneRef{}, false
	}
	for i, bone := range state.partials[partialIndex].bones {
		if bone.spec.Name == name {
			return skeleton.BoneRef{Skeleton: id, Partial: partialIndex, Bone: i}, true
		}
	}
	return skeleton.BoneRef{}, false
}

func (h *Host) bone(ref skeleton.BoneRef) (*boneState, error) {
	state, ok := h.skeletons[ref.Skeleton]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBone, ref)
	}
	if ref.Partial < 0 || ref.Partial >= len(state.partials) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBone, ref)
	}
	partial := state.partials[ref.Partial]
	if ref.Bone < 0 || ref.Bone >= len(partial.bones) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBone, ref)
	}
	return &partial.bones[ref.Bone], nil
}

// parentRef はホスト上の親ボーン位置を返す。部分スケルトンの根は本体側の接続先を親とする。
func (h *Host) parentRef(ref skeleton.BoneRef) (skeleton.BoneRef, bool) {
	bone, err := h.bone(ref)
	if err != nil {
		return skeleton.BoneRef{}, false
	}
	partial := h.skeletons[ref.Skeleton].partials[ref.Partial]
	if ref.Partial > 0 && ref.Bone == partial.spec.ConnectedBone {
		return skeleton.BoneRef{Skeleton: ref.Skeleton, Partial: 0, Bone: partial.spec.ConnectedParentBone}, true
	}
	if bone.spec.Parent < 0 {
		return skeleton.BoneRef{}, false
	}
	return skeleton.BoneRef{Skeleton: ref.Skeleton, Partial: ref.Partial, Bone: bone.spec.Parent}, true
}

// deriveChild は親のモデル空間姿勢とローカル姿勢から子のモデル空間姿勢を求める。
func deriveChild(parent, local transform.Transform) transform.Transform {
	return transform.Transform{
		Position: parent.Position.Add(parent.Rotation.Rotate(local.Position)),
		Rotation: parent.Rotation.Mul(local.Rotation).Normalize(),
		Scale:    mulScale(parent.Scale, local.Scale),
	}
}

// relativeTo は parent から見た child のローカル姿勢を求める。
func relativeTo(parent, child transform.Transform) transform.Transform {
	inv := parent.Rotation.Conjugate()
	return transform.Transform{
		Position: inv.Rotate(child.Position.Sub(parent.Position)),
		Rotation: inv.Mul(child.Rotation).Normalize(),
		Scale:    divScale(child.Scale, parent.Scale),
	}
}

func mulScale(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func divScale(a, b mgl64.Vec3) mgl64.Vec3 {
	out := a
	for i := 0; i < 3; i++ {
		if b[i] != 0 {
			out[i] = a[i] / b[i]
		}
	}
	return out
}

// withRestDefaults はゼロ値の回転とスケールを単位回転と等倍へ置き換える。
func withRestDefaults(t transform.Transform) transform.Transform {
	if t.Rotation.W == 0 && t.Rotation.V == (mgl64.Vec3{}) {
		t.Rotation = mgl64.QuatIdent()
	}
	if t.Scale == (mgl64.Vec3{}) {
		t.Scale = mgl64.Vec3{1, 1, 1}
	}
	return t
}
