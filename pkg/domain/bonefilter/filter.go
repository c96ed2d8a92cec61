// 指示: miu200521358
// Package bonefilter はボーンの編集・表示可否を判定する分類ポリシーを提供する。
package bonefilter

import (
	"sort"
	"strings"

	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
)

// BoneInfo は判定対象ボーンの名前と非表示状態を表す。
type BoneInfo struct {
	Name   string
	Hidden bool
}

type cacheKey struct {
	name           string
	slot           pose.PoseInfoSlot
	considerHidden bool
}

// BoneFilter はボーン分類の有効状態と判定キャッシュを保持する。
type BoneFilter struct {
	categories map[string]Category
	order      []string
	enabled    map[string]struct{}
	excluded   []string
	cache      map[cacheKey]bool
}

// NewBoneFilter は分類定義からフィルタを生成する。
// 定義の disabled に含まれない分類はすべて有効で開始する。
func NewBoneFilter(defs *Definitions) *BoneFilter {
	f := &BoneFilter{
		categories: map[string]Category{},
		enabled:    map[string]struct{}{},
		cache:      map[cacheKey]bool{},
	}
	if defs == nil {
		return f
	}
	for _, category := range defs.Categories {
		f.categories[category.ID] = category
		f.order = append(f.order, category.ID)
	}
	f.EnableAll()
	for _, id := range defs.Disabled {
		f.DisableCategory(id)
	}
	for _, prefix := range defs.ExcludedPrefixes {
		f.AddExcludedPrefix(prefix)
	}
	return f
}

// NewDefaultBoneFilter は組み込み定義のフィルタを生成する。
func NewDefaultBoneFilter() (*BoneFilter, error) {
	defs, err := DefaultDefinitions()
	if err != nil {
		return nil, err
	}
	return NewBoneFilter(defs), nil
}

// IsBoneValid はボーンが編集対象として有効か判定する。
func (f *BoneFilter) IsBoneValid(bone BoneInfo, slot pose.PoseInfoSlot, considerHidden bool) bool {
	if bone.Hidden && !considerHidden {
		return false
	}

	key := cacheKey{name: bone.Name, slot: slot, considerHidden: considerHidden}
	if valid, exists := f.cache[key]; exists {
		return valid
	}
	valid := f.evaluate(bone.Name, slot)
	f.cache[key] = valid
	return valid
}

// evaluate は除外接頭辞、枠、分類接頭辞の順に判定する。
func (f *BoneFilter) evaluate(name string, slot pose.PoseInfoSlot) bool {
	for _, prefix := range f.excluded {
		if strings.HasPrefix(name, prefix) {
			return false
		}
	}

	switch slot {
	case pose.SlotMainHand, pose.SlotOffHand:
		return f.isEnabled(CategoryWeapon)
	case pose.SlotOrnament:
		return f.isEnabled(CategoryOrnament)
	case pose.SlotProp:
		return f.isEnabled(CategoryProp)
	}

	matched := false
	valid := false
	for _, id := range f.order {
		category := f.categories[id]
		if category.Type != CategoryTypeFilter {
			continue
		}
		for _, prefix := range category.Prefixes {
			if strings.HasPrefix(name, prefix) {
				matched = true
				valid = valid || f.isEnabled(id)
				break
			}
		}
	}
	if !matched {
		return f.isEnabled(CategoryOther)
	}
	return valid
}

func (f *BoneFilter) isEnabled(id string) bool {
	_, exists := f.enabled[id]
	return exists
}

// filterIDs は分類IDに対応する単位分類ID一覧を返す。
func (f *BoneFilter) filterIDs(id string) []string {
	category, exists := f.categories[id]
	if !exists {
		return nil
	}
	if category.Type == CategoryTypeCategory {
		return category.Subcategories
	}
	return []string{id}
}

// IsCategoryEnabled は分類が有効か判定する。まとめ分類は全子分類が有効な場合に有効とする。
func (f *BoneFilter) IsCategoryEnabled(id string) bool {
	ids := f.filterIDs(id)
	if len(ids) == 0 {
		return false
	}
	for _, sub := range ids {
		if !f.isEnabled(sub) {
			return false
		}
	}
	return true
}

// EnableCategory は分類を有効にする。未定義IDなら false を返す。
func (f *BoneFilter) EnableCategory(id string) bool {
	ids := f.filterIDs(id)
	for _, sub := range ids {
		f.enabled[sub] = struct{}{}
	}
	f.invalidate()
	return len(ids) > 0
}

// DisableCategory は分類を無効にする。未定義IDなら false を返す。
func (f *BoneFilter) DisableCategory(id string) bool {
	ids := f.filterIDs(id)
	for _, sub := range ids {
		delete(f.enabled, sub)
	}
	f.invalidate()
	return len(ids) > 0
}

// EnableOnly は指定分類だけを有効にする。
func (f *BoneFilter) EnableOnly(id string) bool {
	f.enabled = map[string]struct{}{}
	return f.EnableCategory(id)
}

// EnableAll は全分類を有効にする。
func (f *BoneFilter) EnableAll() {
	for _, id := range f.order {
		if f.categories[id].Type == CategoryTypeFilter {
			f.enabled[id] = struct{}{}
		}
	}
	f.invalidate()
}

// DisableAll は全分類を無効にする。
func (f *BoneFilter) DisableAll() {
	f.enabled = map[string]struct{}{}
	f.invalidate()
}

// AddExcludedPrefix は除外接頭辞を追加する。
func (f *BoneFilter) AddExcludedPrefix(prefix string) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return
	}
	index := sort.SearchStrings(f.excluded, prefix)
	if index < len(f.excluded) && f.excluded[index] == prefix {
		return
	}
	f.excluded = append(f.excluded, "")
	copy(f.excluded[index+1:], f.excluded[index:])
	f.excluded[index] = prefix
	f.invalidate()
}

// RemoveExcludedPrefix は除外接頭辞を削除する。
func (f *BoneFilter) RemoveExcludedPrefix(prefix string) bool {
	index := sort.SearchStrings(f.excluded, prefix)
	if index >= len(f.excluded) || f.excluded[index] != prefix {
		return false
	}
	f.excluded = append(f.excluded[:index], f.excluded[index+1:]...)
	f.invalidate()
	return true
}

// ExcludedPrefixes は除外接頭辞の一覧を返す。
func (f *BoneFilter) ExcludedPrefixes() []string {
	return append([]string(nil), f.excluded...)
}

// Categories は定義順の分類一覧を返す。
func (f *BoneFilter) Categories() []Category {
	categories := make([]Category, 0, len(f.order))
	for _, id := range f.order {
		categories = append(categories, f.categories[id])
	}
	return categories
}

// CacheSize は判定キャッシュ件数を返す。
func (f *BoneFilter) CacheSize() int {
	return len(f.cache)
}

func (f *BoneFilter) invalidate() {
	if len(f.cache) == 0 {
		return
	}
	f.cache = map[cacheKey]bool{}
}
