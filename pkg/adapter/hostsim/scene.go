// 指示: miu200521358
package hostsim

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/domain/transform"
	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"
)

// ErrInvalidScene はシーン定義が不正であることを表す。
var ErrInvalidScene = errors.New("シーン定義が不正です")

// Scene はYAMLで記述した模擬ホストの初期状態と編集を表す。
type Scene struct {
	Skeletons []SceneSkeleton `yaml:"skeletons"`
	Edits     []SceneEdit     `yaml:"edits"`
	IK        []SceneIK       `yaml:"ik"`
}

// SceneTransform はYAML上のトランスフォームを表す。回転はXYZ順のオイラー角(度)。
type SceneTransform struct {
	Position []float64 `yaml:"position"`
	Rotation []float64 `yaml:"rotation"`
	Scale    []float64 `yaml:"scale"`
}

// SceneBone はYAML上のボーンを表す。
type SceneBone struct {
	Name   string         `yaml:"name"`
	Parent *int           `yaml:"parent"`
	Hidden bool           `yaml:"hidden"`
	Local  SceneTransform `yaml:",inline"`
}

// ScenePartial はYAML上の部分スケルトンを表す。
type ScenePartial struct {
	ConnectedBone       int         `yaml:"connected_bone"`
	ConnectedParentBone int         `yaml:"connected_parent_bone"`
	Bones               []SceneBone `yaml:"bones"`
}

// SceneAttach はYAML上の接続先ボーンを表す。
type SceneAttach struct {
	Skeleton uint64 `yaml:"skeleton"`
	Partial  int    `yaml:"partial"`
	Bone     string `yaml:"bone"`
}

// SceneSkeleton はYAML上のスケルトンを表す。
type SceneSkeleton struct {
	ID       uint64          `yaml:"id"`
	Slot     string          `yaml:"slot"`
	Valid    *bool           `yaml:"valid"`
	Owner    *bool           `yaml:"owner"`
	World    SceneTransform  `yaml:"world"`
	Model    *SceneTransform `yaml:"model"`
	AttachTo *SceneAttach    `yaml:"attach_to"`
	Partials []ScenePartial  `yaml:"partials"`
}

// SceneEdit はYAML上のボーン編集1件を表す。
type SceneEdit struct {
	Skeleton      uint64          `yaml:"skeleton"`
	Bone          string          `yaml:"bone"`
	Partial       int             `yaml:"partial"`
	Transform     SceneTransform  `yaml:",inline"`
	Original      *SceneTransform `yaml:"original"`
	Propagation   []string        `yaml:"propagation"`
	ApplyTo       []string        `yaml:"apply_to"`
	Mirror        string          `yaml:"mirror"`
	ForceNewStack bool            `yaml:"force_new_stack"`
}

// SceneIK はYAML上のIK要求1件を表す。
type SceneIK struct {
	Skeleton   uint64    `yaml:"skeleton"`
	Bone       string    `yaml:"bone"`
	Partial    int       `yaml:"partial"`
	Target     []float64 `yaml:"target"`
	Solver     string    `yaml:"solver"`
	Depth      int       `yaml:"depth"`
	Iterations int       `yaml:"iterations"`
}

// LoadScene はYAMLからシーン定義を読み込む。
func LoadScene(r io.Reader) (*Scene, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	scene := &Scene{}
	if err := decoder.Decode(scene); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
	}
	if len(scene.Skeletons) == 0 {
		return nil, fmt.Errorf("%w: スケルトンがありません", ErrInvalidScene)
	}
	return scene, nil
}

// Build はシーン定義からホストを構築する。
func (s *Scene) Build() (*Host, error) {
	host := NewHost()
	for _, sceneSkeleton := range s.Skeletons {
		spec, err := sceneSkeleton.spec()
		if err != nil {
			return nil, err
		}
		if err := host.AddSkeleton(spec); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
		}
		if sceneSkeleton.Valid != nil {
			host.SetValid(spec.ID, *sceneSkeleton.Valid)
		}
	}
	for _, sceneSkeleton := range s.Skeletons {
		if sceneSkeleton.AttachTo == nil {
			continue
		}
		attach := sceneSkeleton.AttachTo
		parent, ok := host.FindBone(skeleton.SkeletonID(attach.Skeleton), attach.Partial, attach.Bone)
		if !ok {
			return nil, fmt.Errorf("%w: 接続先ボーンがありません (%s)", ErrInvalidScene, attach.Bone)
		}
		if err := host.Attach(skeleton.SkeletonID(sceneSkeleton.ID), parent); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidScene, err)
		}
	}
	host.Animate()
	return host, nil
}

// HasOwner はスケルトンにポーズ編集の持ち主を付けるか返す。既定は付ける。
func (s SceneSkeleton) HasOwner() bool {
	return s.Owner == nil || *s.Owner
}

// ModelTransform はエンティティ全体への編集量を返す。
func (s SceneSkeleton) ModelTransform() (transform.Transform, error) {
	if s.Model == nil {
		return transform.Identity(), nil
	}
	return s.Model.delta()
}

func (s SceneSkeleton) spec() (SkeletonSpec, error) {
	slot := pose.SlotCharacter
	if s.Slot != "" {
		parsed, err := pose.ParsePoseInfoSlot(s.Slot)
		if err != nil {
			return SkeletonSpec{}, fmt.Errorf("%w: %w", ErrInvalidScene, err)
		}
		slot = parsed
	}
	world, err := s.World.local()
	if err != nil {
		return SkeletonSpec{}, err
	}
	spec := SkeletonSpec{ID: skeleton.SkeletonID(s.ID), Slot: slot, World: world}
	for _, scenePartial := range s.Partials {
		partial := PartialSpec{
			ConnectedBone:       scenePartial.ConnectedBone,
			ConnectedParentBone: scenePartial.ConnectedParentBone,
		}
		for i, sceneBone := range scenePartial.Bones {
			local, err := sceneBone.Local.local()
			if err != nil {
				return SkeletonSpec{}, fmt.Errorf("%s: %w", sceneBone.Name, err)
			}
			parent := i - 1
			if sceneBone.Parent != nil {
				parent = *sceneBone.Parent
			}
			partial.Bones = append(partial.Bones, BoneSpec{
				Name:   sceneBone.Name,
				Parent: parent,
				Hidden: sceneBone.Hidden,
				Local:  local,
			})
		}
		spec.Partials = append(spec.Partials, partial)
	}
	return spec, nil
}

// Delta はボーン編集のトランスフォームを返す。スケールは加算量として扱う。
func (e SceneEdit) Delta() (transform.Transform, error) {
	return e.Transform.delta()
}

// Options はボーン編集の適用オプションを返す。
func (e SceneEdit) Options() (pose.ApplyOptions, error) {
	opts := pose.ApplyOptions{ForceNewStack: e.ForceNewStack}
	if e.Original != nil {
		original, err := e.Original.delta()
		if err != nil {
			return pose.ApplyOptions{}, err
		}
		opts = opts.WithOriginal(original)
	}
	if len(e.Propagation) > 0 {
		propagation, err := ParseComponents(e.Propagation)
		if err != nil {
			return pose.ApplyOptions{}, err
		}
		opts = opts.WithPropagation(propagation)
	}
	if len(e.ApplyTo) > 0 {
		applyTo, err := ParseComponents(e.ApplyTo)
		if err != nil {
			return pose.ApplyOptions{}, err
		}
		opts = opts.WithApplyTo(applyTo)
	}
	if e.Mirror != "" {
		mode, err := parseMirrorMode(e.Mirror)
		if err != nil {
			return pose.ApplyOptions{}, err
		}
		opts = opts.WithMirrorMode(mode)
	}
	return opts, nil
}

// TargetVec はIK目標位置を返す。
func (k SceneIK) TargetVec() (mgl64.Vec3, error) {
	return vec3(k.Target, mgl64.Vec3{})
}

// ParseComponents は成分名の一覧を成分集合へ変換する。
func ParseComponents(names []string) (transform.TransformComponents, error) {
	components := transform.ComponentNone
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "position":
			components |= transform.ComponentPosition
		case "rotation":
			components |= transform.ComponentRotation
		case "scale":
			components |= transform.ComponentScale
		case "all":
			components |= transform.ComponentAll
		case "none":
		default:
			return transform.ComponentNone, fmt.Errorf("%w: 不明な成分です (%s)", ErrInvalidScene, name)
		}
	}
	return components, nil
}

func parseMirrorMode(name string) (pose.PoseMirrorMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return pose.MirrorModeNone, nil
	case "mirror":
		return pose.MirrorModeMirror, nil
	case "copy":
		return pose.MirrorModeCopy, nil
	default:
		return pose.MirrorModeNone, fmt.Errorf("%w: 不明な左右反映です (%s)", ErrInvalidScene, name)
	}
}

// local はホスト登録用のトランスフォームを返す。スケール省略時は等倍。
func (t SceneTransform) local() (transform.Transform, error) {
	out, err := t.rotationAndPosition()
	if err != nil {
		return transform.Transform{}, err
	}
	out.Scale, err = vec3(t.Scale, mgl64.Vec3{1, 1, 1})
	return out, err
}

// delta は編集量のトランスフォームを返す。スケール省略時は加算なし。
func (t SceneTransform) delta() (transform.Transform, error) {
	out, err := t.rotationAndPosition()
	if err != nil {
		return transform.Transform{}, err
	}
	out.Scale, err = vec3(t.Scale, mgl64.Vec3{})
	return out, err
}

func (t SceneTransform) rotationAndPosition() (transform.Transform, error) {
	out := transform.Identity()
	position, err := vec3(t.Position, mgl64.Vec3{})
	if err != nil {
		return transform.Transform{}, err
	}
	out.Position = position
	if len(t.Rotation) > 0 {
		euler, err := vec3(t.Rotation, mgl64.Vec3{})
		if err != nil {
			return transform.Transform{}, err
		}
		out.Rotation = transform.FromEulerDegrees(euler[0], euler[1], euler[2]).Rotation
	}
	return out, nil
}

func vec3(values []float64, fallback mgl64.Vec3) (mgl64.Vec3, error) {
	if len(values) == 0 {
		return fallback, nil
	}
	if len(values) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("%w: 3要素が必要です (%d要素)", ErrInvalidScene, len(values))
	}
	return mgl64.Vec3{values[0], values[1], values[2]}, nil
}
