// 指示: miu200521358
package pose

import (
	"fmt"
	"strings"
)

// PoseInfoSlot はボーンが属するスケルトン枠を表す。
type PoseInfoSlot int

const (
	// SlotUnknown は不明な枠を表す。
	SlotUnknown PoseInfoSlot = iota
	// SlotCharacter はキャラクター本体を表す。
	SlotCharacter
	// SlotMainHand は主武器を表す。
	SlotMainHand
	// SlotOffHand は副武器を表す。
	SlotOffHand
	// SlotProp は小道具を表す。
	SlotProp
	// SlotOrnament は装飾品を表す。
	SlotOrnament
)

// String は枠の表示名を返す。
func (s PoseInfoSlot) String() string {
	switch s {
	case SlotCharacter:
		return "Character"
	case SlotMainHand:
		return "MainHand"
	case SlotOffHand:
		return "OffHand"
	case SlotProp:
		return "Prop"
	case SlotOrnament:
		return "Ornament"
	default:
		return "Unknown"
	}
}

// IsWeapon は武器枠か判定する。
func (s PoseInfoSlot) IsWeapon() bool {
	return s == SlotMainHand || s == SlotOffHand
}

// ParsePoseInfoSlot は表示名から枠を解決する。大文字小文字は区別しない。
func ParsePoseInfoSlot(name string) (PoseInfoSlot, error) {
	for _, slot := range []PoseInfoSlot{SlotCharacter, SlotMainHand, SlotOffHand, SlotProp, SlotOrnament, SlotUnknown} {
		if strings.EqualFold(slot.String(), strings.TrimSpace(name)) {
			return slot, nil
		}
	}
	return SlotUnknown, fmt.Errorf("未対応の枠です: %s", name)
}

const (
	leftSuffix  = "_l"
	rightSuffix = "_r"
)

// BonePoseInfoId はボーン1枠の識別子を表す。全フィールド一致で同一とみなす。
type BonePoseInfoId struct {
	BoneName     string
	PartialIndex int
	Slot         PoseInfoSlot
}

// NewBonePoseInfoId は識別子を生成する。
func NewBonePoseInfoId(boneName string, partialIndex int, slot PoseInfoSlot) BonePoseInfoId {
	return BonePoseInfoId{BoneName: boneName, PartialIndex: partialIndex, Slot: slot}
}

// String は識別子の表示文字列を返す。
func (id BonePoseInfoId) String() string {
	return fmt.Sprintf("%s/%d/%s", id.BoneName, id.PartialIndex, id.Slot)
}

// Mirror は左右対称の相手識別子を返す。左右接尾辞がなければ false を返す。
func (id BonePoseInfoId) Mirror() (BonePoseInfoId, bool) {
	name, ok := MirrorBoneName(id.BoneName)
	if !ok {
		return BonePoseInfoId{}, false
	}
	return BonePoseInfoId{BoneName: name, PartialIndex: id.PartialIndex, Slot: id.Slot}, true
}

// MirrorBoneName は "_l" と "_r" の接尾辞を入れ替えたボーン名を返す。
func MirrorBoneName(name string) (string, bool) {
	switch {
	case strings.HasSuffix(name, leftSuffix):
		return strings.TrimSuffix(name, leftSuffix) + rightSuffix, true
	case strings.HasSuffix(name, rightSuffix):
		return strings.TrimSuffix(name, rightSuffix) + leftSuffix, true
	default:
		return "", false
	}
}
