// 指示: miu200521358
package minteractor

// FramePhase はフレーム処理の段階を表す。
type FramePhase string

const (
	// FramePhaseBegin はフレーム開始段階を表す。
	FramePhaseBegin FramePhase = "begin"
	// FramePhaseApply はポーズ適用段階を表す。
	FramePhaseApply FramePhase = "apply"
	// FramePhaseFinalize はフレーム確定段階を表す。
	FramePhaseFinalize FramePhase = "finalize"
)

// FrameStats はフレーム処理1段階の結果を表す。
type FrameStats struct {
	Phase           FramePhase
	Skipped         bool
	Skeletons       int
	BonesApplied    int
	EntriesReplayed int
	Reparented      int
	Resampled       int
	Failures        int
}
