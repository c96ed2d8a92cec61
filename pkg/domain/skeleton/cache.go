// 指示: miu200521358
package skeleton

import (
	"fmt"
	"sort"
)

// Cache はスケルトン識別子ごとのボーン表を保持する。
type Cache struct {
	skeletons map[SkeletonID]*Skeleton
}

// NewCache は空のキャッシュを生成する。
func NewCache() *Cache {
	return &Cache{skeletons: map[SkeletonID]*Skeleton{}}
}

// Rebuild は記述からボーン表を作り直し、既存の表を丸ごと置き換える。
func (c *Cache) Rebuild(desc Description) (*Skeleton, error) {
	skel, err := NewSkeleton(desc)
	if err != nil {
		delete(c.skeletons, desc.ID)
		return nil, err
	}
	c.skeletons[desc.ID] = skel
	return skel, nil
}

// Evict はボーン表を破棄する。
func (c *Cache) Evict(id SkeletonID) bool {
	if _, exists := c.skeletons[id]; !exists {
		return false
	}
	delete(c.skeletons, id)
	return true
}

// Get はボーン表を返す。
func (c *Cache) Get(id SkeletonID) (*Skeleton, bool) {
	skel, exists := c.skeletons[id]
	return skel, exists
}

// Bone はボーン位置からボーンを返す。
func (c *Cache) Bone(ref BoneRef) (*Bone, error) {
	skel, exists := c.skeletons[ref.Skeleton]
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrSkeletonNotFound, ref.Skeleton)
	}
	return skel.Bone(ref)
}

// IDs は識別子を昇順で返す。
func (c *Cache) IDs() []SkeletonID {
	ids := make([]SkeletonID, 0, len(c.skeletons))
	for id := range c.skeletons {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len はキャッシュ件数を返す。
func (c *Cache) Len() int {
	return len(c.skeletons)
}
