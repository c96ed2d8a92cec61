// 指示: miu200521358
package bonefilter

import (
	"strings"
	"testing"

	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
)

func newDefaultFilter(t *testing.T) *BoneFilter {
	t.Helper()
	f, err := NewDefaultBoneFilter()
	if err != nil {
		t.Fatalf("default filter failed: %v", err)
	}
	return f
}

func TestDefaultDefinitionsLoad(t *testing.T) {
	defs, err := DefaultDefinitions()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	seen := map[string]struct{}{}
	for _, category := range defs.Categories {
		seen[category.ID] = struct{}{}
	}
	for _, id := range []string{CategoryWeapon, CategoryOrnament, CategoryProp, CategoryOther, "body", "hands"} {
		if _, exists := seen[id]; !exists {
			t.Fatalf("category should be defined: %s", id)
		}
	}
}

func TestLoadDefinitionsRejectsBrokenReferences(t *testing.T) {
	cases := map[string]string{
		"missing sub": "categories:\n  - id: body\n    type: category\n    subcategories: [arms]\n",
		"duplicate":   "categories:\n  - id: arms\n    type: filter\n  - id: arms\n    type: filter\n",
		"bad type":    "categories:\n  - id: arms\n    type: group\n",
		"unknown key": "categories:\n  - id: arms\n    type: filter\n    color: red\n",
	}
	for name, doc := range cases {
		if _, err := LoadDefinitions(strings.NewReader(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestEnableAllMakesEveryKnownPrefixValid(t *testing.T) {
	f := newDefaultFilter(t)
	f.EnableAll()

	for _, category := range f.Categories() {
		for _, prefix := range category.Prefixes {
			bone := BoneInfo{Name: prefix + "_test"}
			if !f.IsBoneValid(bone, pose.SlotCharacter, false) {
				t.Fatalf("bone should be valid after EnableAll: %s", bone.Name)
			}
		}
	}
	if !f.IsBoneValid(BoneInfo{Name: "j_unknown"}, pose.SlotCharacter, false) {
		t.Fatalf("unmatched bone should fall back to other")
	}
}

func TestMutationIsVisibleOnNextCall(t *testing.T) {
	f := newDefaultFilter(t)
	f.EnableAll()
	bone := BoneInfo{Name: "j_ude_a_l"}

	if !f.IsBoneValid(bone, pose.SlotCharacter, false) {
		t.Fatalf("arm should be valid")
	}
	if f.CacheSize() == 0 {
		t.Fatalf("result should be cached")
	}
	f.DisableCategory("arms")
	if f.IsBoneValid(bone, pose.SlotCharacter, false) {
		t.Fatalf("arm should be invalid right after disabling arms")
	}
	f.EnableCategory("body")
	if !f.IsBoneValid(bone, pose.SlotCharacter, false) {
		t.Fatalf("arm should be valid right after enabling body")
	}
	f.AddExcludedPrefix("j_ude")
	if f.IsBoneValid(bone, pose.SlotCharacter, false) {
		t.Fatalf("excluded prefix should apply immediately")
	}
	if !f.RemoveExcludedPrefix("j_ude") || !f.IsBoneValid(bone, pose.SlotCharacter, false) {
		t.Fatalf("removing excluded prefix should apply immediately")
	}
}

func TestHiddenBoneRequiresConsiderHidden(t *testing.T) {
	f := newDefaultFilter(t)
	hidden := BoneInfo{Name: "j_kao", Hidden: true}
	if f.IsBoneValid(hidden, pose.SlotCharacter, false) {
		t.Fatalf("hidden bone should be invalid without considerHidden")
	}
	if !f.IsBoneValid(hidden, pose.SlotCharacter, true) {
		t.Fatalf("hidden bone should be valid with considerHidden")
	}
	if !f.IsBoneValid(BoneInfo{Name: "j_kao"}, pose.SlotCharacter, false) {
		t.Fatalf("visible bone should be valid")
	}
}

func TestSlotCategories(t *testing.T) {
	f := newDefaultFilter(t)
	bone := BoneInfo{Name: "n_buki"}
	f.DisableCategory(CategoryWeapon)
	if f.IsBoneValid(bone, pose.SlotMainHand, false) || f.IsBoneValid(bone, pose.SlotOffHand, false) {
		t.Fatalf("weapon bones should follow weapon category")
	}
	if !f.IsBoneValid(bone, pose.SlotProp, false) {
		t.Fatalf("prop slot should follow prop category")
	}
	f.DisableCategory(CategoryProp)
	if f.IsBoneValid(bone, pose.SlotProp, false) {
		t.Fatalf("prop slot should be invalid")
	}
	if !f.IsBoneValid(bone, pose.SlotOrnament, false) {
		t.Fatalf("ornament slot should be valid")
	}
	f.DisableCategory(CategoryOrnament)
	if f.IsBoneValid(bone, pose.SlotOrnament, false) {
		t.Fatalf("ornament slot should follow ornament category")
	}
	f.EnableCategory(CategoryWeapon)
	if !f.IsBoneValid(bone, pose.SlotMainHand, false) {
		t.Fatalf("weapon slot should be valid again")
	}
}

func TestPrefixMatchesAreCombinedWithOr(t *testing.T) {
	defs, err := LoadDefinitions(strings.NewReader(`
categories:
  - id: a
    type: filter
    prefixes: [j_x]
  - id: b
    type: filter
    prefixes: [j_x_y]
  - id: other
    type: filter
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	f := NewBoneFilter(defs)
	f.DisableCategory("a")
	if !f.IsBoneValid(BoneInfo{Name: "j_x_y_1"}, pose.SlotCharacter, false) {
		t.Fatalf("bone matching an enabled filter should be valid")
	}
	if f.IsBoneValid(BoneInfo{Name: "j_x_z"}, pose.SlotCharacter, false) {
		t.Fatalf("bone matching only disabled filters should be invalid")
	}
	f.DisableCategory(CategoryOther)
	if f.IsBoneValid(BoneInfo{Name: "n_root"}, pose.SlotCharacter, false) {
		t.Fatalf("unmatched bone should follow other")
	}
}

func TestEnableOnlyAndCategoryState(t *testing.T) {
	f := newDefaultFilter(t)
	if !f.EnableOnly("head") {
		t.Fatalf("head should be a known category")
	}
	if !f.IsCategoryEnabled("head") || !f.IsCategoryEnabled("hair") {
		t.Fatalf("head and its filters should be enabled")
	}
	if f.IsCategoryEnabled("body") || f.IsCategoryEnabled("arms") {
		t.Fatalf("body should be disabled")
	}
	if f.IsBoneValid(BoneInfo{Name: "j_asi_a_l"}, pose.SlotCharacter, false) {
		t.Fatalf("leg should be invalid")
	}
	if !f.IsBoneValid(BoneInfo{Name: "j_kami_a"}, pose.SlotCharacter, false) {
		t.Fatalf("hair should be valid")
	}
	if f.EnableOnly("nope") {
		t.Fatalf("unknown category should report false")
	}
	f.DisableAll()
	if f.IsCategoryEnabled("hair") {
		t.Fatalf("disable all should disable hair")
	}
}

func TestDefaultDisabledAndExcluded(t *testing.T) {
	f := newDefaultFilter(t)
	if f.IsCategoryEnabled("cloth") {
		t.Fatalf("cloth should start disabled")
	}
	if f.IsCategoryEnabled("clothing") {
		t.Fatalf("clothing group should be disabled while cloth is disabled")
	}
	if f.IsBoneValid(BoneInfo{Name: "n_throw"}, pose.SlotCharacter, false) {
		t.Fatalf("n_throw should be excluded")
	}
	if got := f.ExcludedPrefixes(); len(got) != 1 || got[0] != "n_throw" {
		t.Fatalf("excluded prefixes mismatch: %v", got)
	}
}
