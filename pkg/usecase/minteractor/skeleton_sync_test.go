// 指示: miu200521358
package minteractor

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/Etheirys/Brio-sub001/pkg/adapter/hostsim"
	"github.com/Etheirys/Brio-sub001/pkg/domain/bonefilter"
	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/domain/transform"
	"github.com/Etheirys/Brio-sub001/pkg/usecase/port/moutput"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	characterID skeleton.SkeletonID = 2
	weaponID    skeleton.SkeletonID = 1
)

// newArmSpec は根から x 方向へ1ずつ伸びる4ボーンのスケルトンを返す。
func newArmSpec(id skeleton.SkeletonID) hostsim.SkeletonSpec {
	step := hostsim.NewUnitScale()
	step.Position = mgl64.Vec3{1, 0, 0}
	return hostsim.SkeletonSpec{
		ID:   id,
		Slot: pose.SlotCharacter,
		Partials: []hostsim.PartialSpec{{
			Bones: []hostsim.BoneSpec{
				{Name: "n_root", Parent: -1, Local: hostsim.NewUnitScale()},
				{Name: "j_sebo_a", Parent: 0, Local: step},
				{Name: "j_ude_a_l", Parent: 1, Local: step},
				{Name: "j_ude_b_l", Parent: 2, Local: step},
			},
		}},
	}
}

func newWeaponSpec(id skeleton.SkeletonID) hostsim.SkeletonSpec {
	return hostsim.SkeletonSpec{
		ID:   id,
		Slot: pose.SlotMainHand,
		Partials: []hostsim.PartialSpec{{
			Bones: []hostsim.BoneSpec{
				{Name: "n_buki", Parent: -1, Local: hostsim.NewUnitScale()},
			},
		}},
	}
}

func newTestHost(t *testing.T, specs ...hostsim.SkeletonSpec) *hostsim.Host {
	t.Helper()
	host := hostsim.NewHost()
	for _, spec := range specs {
		if err := host.AddSkeleton(spec); err != nil {
			t.Fatalf("AddSkeleton failed: %v", err)
		}
	}
	return host
}

func newTestUsecase(t *testing.T, host *hostsim.Host, filter *bonefilter.BoneFilter) *PoseSyncUsecase {
	t.Helper()
	uc := NewPoseSyncUsecase(PoseSyncUsecaseDeps{
		Host:       host,
		Capability: host,
		Filter:     filter,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Registerer: prometheus.NewRegistry(),
	})
	for _, id := range host.SkeletonIDs() {
		if err := uc.OnSkeletonBindReady(id); err != nil {
			t.Fatalf("OnSkeletonBindReady failed: %v", err)
		}
	}
	return uc
}

func runFrame(uc *PoseSyncUsecase, host *hostsim.Host) (FrameStats, FrameStats) {
	host.Animate()
	applied := uc.OnPostPhysics()
	finalized := uc.OnFrameFinalize()
	return applied, finalized
}

func boneID(name string) pose.BonePoseInfoId {
	return pose.NewBonePoseInfoId(name, 0, pose.SlotCharacter)
}

func offset(x, y, z float64) transform.Transform {
	t := transform.Identity()
	t.Position = mgl64.Vec3{x, y, z}
	return t
}

func assertBonePosition(t *testing.T, host *hostsim.Host, id skeleton.SkeletonID, partial int, name string, want mgl64.Vec3) {
	t.Helper()
	model, ok := host.BoneModel(id, partial, name)
	if !ok {
		t.Fatalf("bone not found: %s", name)
	}
	if model.Position.Sub(want).Len() > 1e-6 {
		t.Fatalf("%s position mismatch: got=%v want=%v", name, model.Position, want)
	}
}

func TestApplyReplaysBoneStackWithPropagation(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	applied, finalized := runFrame(uc, host)

	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 1, 0})
	assertBonePosition(t, host, characterID, 0, "j_ude_b_l", mgl64.Vec3{3, 1, 0})
	if applied.BonesApplied != 1 || applied.EntriesReplayed != 1 {
		t.Fatalf("apply stats mismatch: %+v", applied)
	}
	if finalized.Resampled != 1 {
		t.Fatalf("finalize stats mismatch: %+v", finalized)
	}
	skel, _ := uc.Skeleton(characterID)
	bone, _ := skel.FindBone(0, "j_ude_b_l")
	if bone.LastModel.Position.Sub(mgl64.Vec3{3, 1, 0}).Len() > 1e-6 {
		t.Fatalf("LastModel mismatch: %v", bone.LastModel.Position)
	}
}

func TestApplyUsesPerComponentPropagation(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0),
		pose.ApplyOptions{}.WithPropagation(transform.ComponentRotation))
	uc.RegisterPoseOwner(characterID, owner)

	runFrame(uc, host)

	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 1, 0})
	assertBonePosition(t, host, characterID, 0, "j_ude_b_l", mgl64.Vec3{3, 0, 0})
}

func TestApplyIsIdempotentAcrossFrames(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	runFrame(uc, host)
	runFrame(uc, host)

	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 1, 0})
}

func TestApplyModelTransformMovesWholeSkeleton(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Model = offset(0, 0, 5)
	uc.RegisterPoseOwner(characterID, owner)

	runFrame(uc, host)

	assertBonePosition(t, host, characterID, 0, "n_root", mgl64.Vec3{0, 0, 5})
	assertBonePosition(t, host, characterID, 0, "j_ude_b_l", mgl64.Vec3{3, 0, 5})
}

func TestAttachedChildFollowsEditedParentBone(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID), newWeaponSpec(weaponID))
	hand, _ := host.FindBone(characterID, 0, "j_ude_b_l")
	if err := host.Attach(weaponID, hand); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	turn := transform.Identity()
	turn.Rotation = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1})
	owner.Pose.Apply(boneID("j_ude_a_l"), turn, pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	applied, _ := runFrame(uc, host)

	assertBonePosition(t, host, characterID, 0, "j_ude_b_l", mgl64.Vec3{2, 1, 0})
	assertBonePosition(t, host, weaponID, 0, "n_buki", mgl64.Vec3{2, 1, 0})
	if applied.Reparented != 1 {
		t.Fatalf("Reparented mismatch: %+v", applied)
	}
	character, _ := uc.Skeleton(characterID)
	if len(character.Attachments) != 1 || character.Attachments[0] != weaponID {
		t.Fatalf("attachments mismatch: %v", character.Attachments)
	}
	if host.ResolveCalls != 1 {
		t.Fatalf("ResolveCalls mismatch: %d", host.ResolveCalls)
	}
}

func TestHostAttachmentFailureIsCounted(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID), newWeaponSpec(weaponID))
	hand, _ := host.FindBone(characterID, 0, "j_ude_b_l")
	if err := host.Attach(weaponID, hand); err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	weaponRoot, _ := host.FindBone(weaponID, 0, "n_buki")
	host.InjectWriteError(weaponRoot, errors.New("locked"))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	applied, _ := runFrame(uc, host)

	if applied.Failures < 1 {
		t.Fatalf("Failures mismatch: %+v", applied)
	}
	if got := testutil.ToFloat64(uc.metrics.failures.WithLabelValues(stageHostAttachment)); got != 1 {
		t.Fatalf("host attachment failure metric mismatch: %v", got)
	}
	assertBonePosition(t, host, characterID, 0, "j_ude_b_l", mgl64.Vec3{3, 1, 0})
}

func TestReplayAppliesRotationInModelSpace(t *testing.T) {
	spec := newArmSpec(characterID)
	tilted := spec.Partials[0].Bones[2].Local
	tilted.Rotation = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{1, 0, 0})
	spec.Partials[0].Bones[2].Local = tilted
	host := newTestHost(t, spec)
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	turn := transform.Identity()
	turn.Rotation = mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})
	owner.Pose.Apply(boneID("j_ude_a_l"), turn, pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	runFrame(uc, host)

	// 休止回転の外側からY軸回りを掛けるので、子はX軸方向から-Z方向へ倒れる。
	assertBonePosition(t, host, characterID, 0, "j_ude_b_l", mgl64.Vec3{2, 0, -1})
	model, _ := host.BoneModel(characterID, 0, "j_ude_a_l")
	want := turn.Rotation.Mul(tilted.Rotation).Normalize()
	if !model.Rotation.ApproxEqualThreshold(want, 1e-9) && !model.Rotation.ApproxEqualThreshold(want.Scale(-1), 1e-9) {
		t.Fatalf("rotation mismatch: got=%v want=%v", model.Rotation, want)
	}
}

func TestPartialRootFollowsEditedConnectedParent(t *testing.T) {
	spec := newArmSpec(characterID)
	up := hostsim.NewUnitScale()
	up.Position = mgl64.Vec3{0, 1, 0}
	spec.Partials = append(spec.Partials, hostsim.PartialSpec{
		ConnectedBone:       0,
		ConnectedParentBone: 3,
		Bones: []hostsim.BoneSpec{
			{Name: "j_ude_b_l", Parent: -1, Local: hostsim.NewUnitScale()},
			{Name: "j_te_l", Parent: 0, Local: up},
		},
	})
	host := newTestHost(t, spec)
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 0, 1), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	runFrame(uc, host)

	assertBonePosition(t, host, characterID, 1, "j_ude_b_l", mgl64.Vec3{3, 0, 1})
	assertBonePosition(t, host, characterID, 1, "j_te_l", mgl64.Vec3{3, 1, 1})
}

func TestTransitiveActionEntriesReplayInSamePass(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})

	pushed := false
	var seen mgl64.Vec3
	owner.AddTransitiveAction(func(ctx moutput.TransitiveContext) {
		if ctx.ID.BoneName != "j_ude_a_l" || pushed {
			return
		}
		pushed = true
		seen = ctx.ModelTransform.Position
		ctx.BonePose.Apply(offset(0, 0, 2), pose.ApplyOptions{}.WithForceNewStack(true))
	})
	uc.RegisterPoseOwner(characterID, owner)

	applied, _ := runFrame(uc, host)

	if seen.Sub(mgl64.Vec3{2, 1, 0}).Len() > 1e-6 {
		t.Fatalf("transitive context mismatch: %v", seen)
	}
	if applied.EntriesReplayed != 2 {
		t.Fatalf("EntriesReplayed mismatch: %+v", applied)
	}
	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 1, 2})

	runFrame(uc, host)
	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 1, 2})
}

func TestBoneFailureIsSwallowed(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	owner.Pose.Apply(boneID("j_ude_b_l"), offset(0, 0, 1), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)
	failing, _ := host.FindBone(characterID, 0, "j_ude_a_l")
	host.InjectReadError(failing, errors.New("desync"))

	host.Animate()
	uc.Begin()
	applied := uc.Apply()
	uc.Finalize()

	if applied.Failures != 1 {
		t.Fatalf("Failures mismatch: %+v", applied)
	}
	assertBonePosition(t, host, characterID, 0, "j_ude_b_l", mgl64.Vec3{3, 0, 1})
	if got := testutil.ToFloat64(uc.metrics.failures.WithLabelValues(stageBone)); got != 1 {
		t.Fatalf("bone failure metric mismatch: %v", got)
	}
	if got := testutil.ToFloat64(uc.metrics.failures.WithLabelValues(stageResample)); got != 1 {
		t.Fatalf("resample failure metric mismatch: %v", got)
	}
}

func TestPanicInTransitiveActionIsRecovered(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_b_l"), offset(0, 0, 1), pose.ApplyOptions{})
	owner.AddTransitiveAction(func(ctx moutput.TransitiveContext) {
		if ctx.ID.BoneName == "j_sebo_a" {
			panic("broken action")
		}
	})
	uc.RegisterPoseOwner(characterID, owner)

	applied, _ := runFrame(uc, host)

	if applied.Failures != 1 {
		t.Fatalf("Failures mismatch: %+v", applied)
	}
	assertBonePosition(t, host, characterID, 0, "j_ude_b_l", mgl64.Vec3{3, 0, 1})
}

func TestApplyAndFinalizeWithoutBeginAreNoops(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	uc.RegisterPoseOwner(characterID, NewEntityPoseOwner())

	if stats := uc.Apply(); !stats.Skipped {
		t.Fatalf("Apply should be skipped: %+v", stats)
	}
	if stats := uc.Finalize(); !stats.Skipped {
		t.Fatalf("Finalize should be skipped: %+v", stats)
	}
	if host.ResolveCalls != 0 {
		t.Fatalf("ResolveCalls mismatch: %d", host.ResolveCalls)
	}
}

func TestBeginFinalizesStaleFrame(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	uc.Begin()
	uc.Apply()
	if stats := uc.Apply(); !stats.Skipped {
		t.Fatalf("second Apply should be skipped: %+v", stats)
	}

	begin := uc.Begin()
	if begin.Skipped || !uc.InFrame() {
		t.Fatalf("Begin should open a new frame: %+v", begin)
	}
	skel, _ := uc.Skeleton(characterID)
	bone, _ := skel.FindBone(0, "j_ude_a_l")
	if bone.LastModel.Position.Sub(mgl64.Vec3{2, 1, 0}).Len() > 1e-6 {
		t.Fatalf("stale frame was not finalized: %v", bone.LastModel.Position)
	}
	uc.Finalize()
	if uc.InFrame() {
		t.Fatalf("frame should be closed")
	}
}

func TestCapabilityGateSkipsFrame(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)
	host.Posing = false

	applied, finalized := runFrame(uc, host)

	if !applied.Skipped || !finalized.Skipped {
		t.Fatalf("frame should be skipped: %+v %+v", applied, finalized)
	}
	if host.ResolveCalls != 0 {
		t.Fatalf("ResolveCalls mismatch: %d", host.ResolveCalls)
	}
	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 0, 0})
}

func TestInvalidSkeletonIsSkipped(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)
	host.SetValid(characterID, false)

	applied, _ := runFrame(uc, host)

	if applied.Skeletons != 0 {
		t.Fatalf("Skeletons mismatch: %+v", applied)
	}
	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 0, 0})
}

func TestUnregisteredOwnerIsSkipped(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)
	uc.UnregisterPoseOwner(characterID)

	runFrame(uc, host)

	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 0, 0})
}

func TestTeardownEvictsSkeleton(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	uc.OnSkeletonTeardown(characterID)
	runFrame(uc, host)

	if _, ok := uc.Skeleton(characterID); ok {
		t.Fatalf("skeleton should be evicted")
	}
	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 0, 0})
}

func TestBindReadyUnknownSkeleton(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)

	err := uc.OnSkeletonBindReady(99)
	if !errors.Is(err, skeleton.ErrSkeletonNotFound) {
		t.Fatalf("expected ErrSkeletonNotFound: %v", err)
	}
	if len(uc.SkeletonIDs()) != 1 {
		t.Fatalf("cache mismatch: %v", uc.SkeletonIDs())
	}
}

func TestFilterGatesBoneApplication(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	filter, err := bonefilter.NewDefaultBoneFilter()
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	filter.DisableCategory("arms")
	uc := newTestUsecase(t, host, filter)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_sebo_a"), offset(0, 0, 1), pose.ApplyOptions{}.WithPropagation(transform.ComponentNone))
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	runFrame(uc, host)

	assertBonePosition(t, host, characterID, 0, "j_sebo_a", mgl64.Vec3{1, 0, 1})
	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 0, 0})
}

func TestFilterWritesHiddenBones(t *testing.T) {
	spec := newArmSpec(characterID)
	spec.Partials[0].Bones[2].Hidden = true
	host := newTestHost(t, spec)
	filter, err := bonefilter.NewDefaultBoneFilter()
	if err != nil {
		t.Fatalf("filter failed: %v", err)
	}
	uc := newTestUsecase(t, host, filter)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	runFrame(uc, host)

	assertBonePosition(t, host, characterID, 0, "j_ude_a_l", mgl64.Vec3{2, 1, 0})
	if IsSelectionEditable(BoneSelection{ID: boneID("j_ude_a_l")}, filter, true) {
		t.Fatalf("hidden bone should not be editable from a selection")
	}
}

func TestFrameMetrics(t *testing.T) {
	host := newTestHost(t, newArmSpec(characterID))
	uc := newTestUsecase(t, host, nil)
	owner := NewEntityPoseOwner()
	owner.Pose.Apply(boneID("j_ude_a_l"), offset(0, 1, 0), pose.ApplyOptions{})
	uc.RegisterPoseOwner(characterID, owner)

	runFrame(uc, host)
	runFrame(uc, host)

	if got := testutil.ToFloat64(uc.metrics.frames); got != 2 {
		t.Fatalf("frames metric mismatch: %v", got)
	}
	if got := testutil.ToFloat64(uc.metrics.bonesApplied); got != 2 {
		t.Fatalf("bones metric mismatch: %v", got)
	}
}
