// 指示: miu200521358
package minteractor

import (
	"fmt"
	"log/slog"

	"github.com/Etheirys/Brio-sub001/pkg/domain/bonefilter"
	"github.com/Etheirys/Brio-sub001/pkg/domain/skeleton"
	"github.com/Etheirys/Brio-sub001/pkg/usecase/port/moutput"
	"github.com/prometheus/client_golang/prometheus"
)

// PoseSyncUsecaseDeps はポーズ同期ユースケースの依存を表す。
type PoseSyncUsecaseDeps struct {
	Host       moutput.IHostBridge
	Capability moutput.ICapabilityProvider
	Solvers    moutput.IIKSolvers
	Filter     *bonefilter.BoneFilter
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// PoseSyncUsecase はポーズ編集をホストのスケルトンへ毎フレーム適用するユースケースを表す。
type PoseSyncUsecase struct {
	host       moutput.IHostBridge
	capability moutput.ICapabilityProvider
	solvers    moutput.IIKSolvers
	filter     *bonefilter.BoneFilter
	logger     *slog.Logger
	metrics    *poseSyncMetrics

	cache  *skeleton.Cache
	owners map[skeleton.SkeletonID]moutput.IPoseOwner
	frame  *frameState
}

// frameState は Begin から Finalize までのフレーム内状態を表す。
type frameState struct {
	owners  map[skeleton.SkeletonID]moutput.IPoseOwner
	updated []skeleton.SkeletonID
	applied bool
}

// NewPoseSyncUsecase はポーズ同期ユースケースを生成する。
// Solvers 未指定時はホストがIKソルバを提供していればそれを使う。
func NewPoseSyncUsecase(deps PoseSyncUsecaseDeps) *PoseSyncUsecase {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	solvers := deps.Solvers
	if solvers == nil {
		if hostSolvers, ok := deps.Host.(moutput.IIKSolvers); ok {
			solvers = hostSolvers
		}
	}
	return &PoseSyncUsecase{
		host:       deps.Host,
		capability: deps.Capability,
		solvers:    solvers,
		filter:     deps.Filter,
		logger:     logger,
		metrics:    newPoseSyncMetrics(deps.Registerer),
		cache:      skeleton.NewCache(),
		owners:     map[skeleton.SkeletonID]moutput.IPoseOwner{},
	}
}

// OnSkeletonBindReady はホストのスケルトン構築完了時にボーン表を作り直す。
func (uc *PoseSyncUsecase) OnSkeletonBindReady(id skeleton.SkeletonID) error {
	if uc.host == nil {
		return fmt.Errorf("%w: %d", skeleton.ErrSkeletonNotFound, id)
	}
	desc, err := uc.host.DescribeSkeleton(id)
	if err != nil {
		uc.cache.Evict(id)
		uc.logger.Warn(logSkeletonBindFailed, slog.Uint64("skeleton", uint64(id)), slog.Any("error", err))
		return fmt.Errorf("スケルトン記述の取得に失敗しました: %w", err)
	}
	desc.ID = id
	skel, err := uc.cache.Rebuild(desc)
	if err != nil {
		uc.logger.Warn(logSkeletonBindFailed, slog.Uint64("skeleton", uint64(id)), slog.Any("error", err))
		return err
	}
	uc.logger.Debug(logSkeletonBound,
		slog.Uint64("skeleton", uint64(id)),
		slog.String("slot", skel.Slot.String()),
		slog.Int("bones", skel.BoneCount()))
	return nil
}

// OnSkeletonTeardown はホストのスケルトン破棄時にボーン表と持ち主を破棄する。
func (uc *PoseSyncUsecase) OnSkeletonTeardown(id skeleton.SkeletonID) {
	uc.cache.Evict(id)
	delete(uc.owners, id)
	if uc.frame != nil {
		delete(uc.frame.owners, id)
	}
	uc.logger.Debug(logSkeletonEvicted, slog.Uint64("skeleton", uint64(id)))
}

// RegisterPoseOwner はスケルトンへポーズ編集の持ち主を紐づける。
func (uc *PoseSyncUsecase) RegisterPoseOwner(id skeleton.SkeletonID, owner moutput.IPoseOwner) {
	if owner == nil {
		uc.UnregisterPoseOwner(id)
		return
	}
	uc.owners[id] = owner
	uc.logger.Debug(logPoseOwnerRegistered, slog.Uint64("skeleton", uint64(id)))
}

// UnregisterPoseOwner はスケルトンの持ち主登録を外す。
func (uc *PoseSyncUsecase) UnregisterPoseOwner(id skeleton.SkeletonID) {
	delete(uc.owners, id)
}

// Skeleton はキャッシュ済みのボーン表を返す。
func (uc *PoseSyncUsecase) Skeleton(id skeleton.SkeletonID) (*skeleton.Skeleton, bool) {
	return uc.cache.Get(id)
}

// SkeletonIDs はキャッシュ済みスケルトンの識別子を昇順で返す。
func (uc *PoseSyncUsecase) SkeletonIDs() []skeleton.SkeletonID {
	return uc.cache.IDs()
}

// InFrame は Begin 済みで Finalize 前か返す。
func (uc *PoseSyncUsecase) InFrame() bool {
	return uc.frame != nil
}
