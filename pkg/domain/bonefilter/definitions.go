// 指示: miu200521358
package bonefilter

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed categories.yaml
var defaultCategoriesYAML []byte

// CategoryType は分類の種別を表す。
type CategoryType string

const (
	// CategoryTypeFilter はボーン名接頭辞を持つ単位分類を表す。
	CategoryTypeFilter CategoryType = "filter"
	// CategoryTypeCategory は単位分類をまとめて切り替える分類を表す。
	CategoryTypeCategory CategoryType = "category"
)

// 枠に対応する専用分類ID。
const (
	CategoryWeapon   = "weapon"
	CategoryOrnament = "ornament"
	CategoryProp     = "prop"
	CategoryOther    = "other"
)

// Category はボーン分類1件を表す。
type Category struct {
	ID            string       `yaml:"id"`
	Type          CategoryType `yaml:"type"`
	Prefixes      []string     `yaml:"prefixes,omitempty"`
	Subcategories []string     `yaml:"subcategories,omitempty"`
}

// Definitions はボーン分類定義全体を表す。
type Definitions struct {
	Categories       []Category `yaml:"categories"`
	ExcludedPrefixes []string   `yaml:"excluded_prefixes,omitempty"`
	Disabled         []string   `yaml:"disabled,omitempty"`
}

// DefaultDefinitions は組み込みの分類定義を読み込む。
func DefaultDefinitions() (*Definitions, error) {
	return LoadDefinitions(bytes.NewReader(defaultCategoriesYAML))
}

// LoadDefinitions はYAMLから分類定義を読み込み検証する。
func LoadDefinitions(r io.Reader) (*Definitions, error) {
	var defs Definitions
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&defs); err != nil {
		return nil, fmt.Errorf("ボーン分類定義の解析に失敗しました: %w", err)
	}
	if err := defs.validate(); err != nil {
		return nil, err
	}
	return &defs, nil
}

// validate は分類ID重複と参照切れを検出する。
func (d *Definitions) validate() error {
	types := map[string]CategoryType{}
	for _, category := range d.Categories {
		if category.ID == "" {
			return fmt.Errorf("分類IDが空です")
		}
		if _, exists := types[category.ID]; exists {
			return fmt.Errorf("分類IDが重複しています: %s", category.ID)
		}
		switch category.Type {
		case CategoryTypeFilter:
			if len(category.Subcategories) > 0 {
				return fmt.Errorf("filter 分類は子分類を持てません: %s", category.ID)
			}
		case CategoryTypeCategory:
			if len(category.Prefixes) > 0 {
				return fmt.Errorf("category 分類は接頭辞を持てません: %s", category.ID)
			}
		default:
			return fmt.Errorf("未対応の分類種別です: %s (%s)", category.Type, category.ID)
		}
		types[category.ID] = category.Type
	}
	for _, category := range d.Categories {
		for _, sub := range category.Subcategories {
			subType, exists := types[sub]
			if !exists {
				return fmt.Errorf("子分類が見つかりません: %s -> %s", category.ID, sub)
			}
			if subType != CategoryTypeFilter {
				return fmt.Errorf("子分類は filter である必要があります: %s -> %s", category.ID, sub)
			}
		}
	}
	for _, id := range d.Disabled {
		if _, exists := types[id]; !exists {
			return fmt.Errorf("無効化対象の分類が見つかりません: %s", id)
		}
	}
	return nil
}
