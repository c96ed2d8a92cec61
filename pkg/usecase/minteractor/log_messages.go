// 指示: miu200521358
package minteractor

// パイプラインのログメッセージ。
const (
	logFrameFailed            = "フレーム処理に失敗しました"
	logFrameStaleFinalized    = "前フレームが確定されていないため確定してから開始します"
	logBoneApplyFailed        = "ボーンへのポーズ適用に失敗しました"
	logAttachmentReparentFail = "接続スケルトンの再接続に失敗しました"
	logAttachmentResolveFail  = "ホストの接続処理に失敗しました"
	logModelTransformFailed   = "エンティティ全体の編集適用に失敗しました"
	logSkeletonResampleFailed = "スケルトン姿勢の再取得に失敗しました"
	logSkeletonBindFailed     = "スケルトンのボーン表構築に失敗しました"
	logSkeletonBound          = "スケルトンのボーン表を構築しました"
	logSkeletonEvicted        = "スケルトンのボーン表を破棄しました"
	logPoseOwnerRegistered    = "ポーズ編集の持ち主を登録しました"
	logIKSolverMissing        = "IKソルバが見つからないためIKを省略します"
	logIKSkeletonMissing      = "IK対象のスケルトンが見つからないためIKを省略します"
	logIKChainTooShort        = "IKのボーン連鎖が不足しているためIKを省略します"
	logIKSolveFailed          = "IKソルバの呼び出しに失敗しました"
)
