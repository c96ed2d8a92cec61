// 指示: miu200521358
package pose

import "github.com/Etheirys/Brio-sub001/pkg/domain/transform"

// PoseMirrorMode は左右対称ボーンへの反映方法を表す。
type PoseMirrorMode int

const (
	// MirrorModeNone は反映しないことを表す。
	MirrorModeNone PoseMirrorMode = iota
	// MirrorModeMirror は反転した編集量を反映することを表す。
	MirrorModeMirror
	// MirrorModeCopy は同じ編集量を反映することを表す。
	MirrorModeCopy
)

// String は反映方法の表示名を返す。
func (m PoseMirrorMode) String() string {
	switch m {
	case MirrorModeMirror:
		return "Mirror"
	case MirrorModeCopy:
		return "Copy"
	default:
		return "None"
	}
}

// PoseStackEntry はポーズスタックの1段を表す。
type PoseStackEntry struct {
	Propagation transform.TransformComponents
	Delta       transform.Transform
}

// ApplyOptions は編集適用時のオプションを表す。
// ApplyTo の ComponentNone は全成分として扱う。
type ApplyOptions struct {
	Original      *transform.Transform
	Propagation   *transform.TransformComponents
	ApplyTo       transform.TransformComponents
	MirrorMode    *PoseMirrorMode
	ForceNewStack bool
}

// WithOriginal は基準トランスフォームを設定したオプションを返す。
func (o ApplyOptions) WithOriginal(original transform.Transform) ApplyOptions {
	o.Original = &original
	return o
}

// WithPropagation は伝播成分を設定したオプションを返す。
func (o ApplyOptions) WithPropagation(propagation transform.TransformComponents) ApplyOptions {
	o.Propagation = &propagation
	return o
}

// WithApplyTo は適用成分を設定したオプションを返す。
func (o ApplyOptions) WithApplyTo(applyTo transform.TransformComponents) ApplyOptions {
	o.ApplyTo = applyTo
	return o
}

// WithMirrorMode は左右反映方法を設定したオプションを返す。
func (o ApplyOptions) WithMirrorMode(mode PoseMirrorMode) ApplyOptions {
	o.MirrorMode = &mode
	return o
}

// WithForceNewStack は新しいスタック段の強制有無を設定したオプションを返す。
func (o ApplyOptions) WithForceNewStack(force bool) ApplyOptions {
	o.ForceNewStack = force
	return o
}

func (o ApplyOptions) applyTo() transform.TransformComponents {
	if o.ApplyTo == transform.ComponentNone {
		return transform.ComponentAll
	}
	return o.ApplyTo
}

// BonePoseInfo は1ボーン分の累積編集を表す。
type BonePoseInfo struct {
	Stack              []PoseStackEntry
	DefaultPropagation transform.TransformComponents
	MirrorMode         PoseMirrorMode
}

// NewBonePoseInfo は空のボーン編集を生成する。
func NewBonePoseInfo() *BonePoseInfo {
	return &BonePoseInfo{
		DefaultPropagation: transform.ComponentAll,
		MirrorMode:         MirrorModeNone,
	}
}

// Len はスタック段数を返す。
func (b *BonePoseInfo) Len() int {
	return len(b.Stack)
}

// IsOverridden は編集が1段以上あるか判定する。
func (b *BonePoseInfo) IsOverridden() bool {
	return len(b.Stack) > 0
}

// Top は最上段を返す。
func (b *BonePoseInfo) Top() (PoseStackEntry, bool) {
	if len(b.Stack) == 0 {
		return PoseStackEntry{}, false
	}
	return b.Stack[len(b.Stack)-1], true
}

// Reset はスタックを空にする。
func (b *BonePoseInfo) Reset() {
	b.Stack = nil
}

// Apply は編集をスタックへ積む。左右反映は行わない。
// 実際に適用した増分と適用有無を返す。
func (b *BonePoseInfo) Apply(t transform.Transform, opts ApplyOptions) (transform.Transform, bool) {
	propagation := b.DefaultPropagation
	if opts.Propagation != nil {
		propagation = *opts.Propagation
	}
	applyTo := opts.applyTo()

	top, hasTop := b.Top()
	reuse := hasTop && top.Propagation == propagation && !opts.ForceNewStack

	base := transform.Identity()
	if reuse {
		base = top.Delta
	}

	var next, delta transform.Transform
	if opts.Original != nil {
		target := transform.Filter(transform.Diff(t, *opts.Original), applyTo)
		next = transform.Merge(base, target, applyTo)
		delta = transform.Filter(transform.Diff(next, base), applyTo)
	} else {
		delta = transform.Filter(t, applyTo)
		delta.Rotation = delta.Rotation.Normalize()
		next = transform.Compose(base, delta)
	}

	// 閾値未満の編集は積まない。
	if transform.IsIdentity(delta) {
		return transform.Identity(), false
	}

	if reuse {
		b.Stack[len(b.Stack)-1].Delta = next
	} else {
		b.Stack = append(b.Stack, PoseStackEntry{Propagation: propagation, Delta: next})
	}
	return delta, true
}
