// 指示: miu200521358
// Package messages はログと画面表示に使うメッセージキーを提供する。
package messages

// CLI表示用メッセージ。
const (
	HelpUsageTitle = "使い方"
	HelpUsage      = "ポーズ上書きエンジンをシミュレーションホストで実行します"

	LabelScene      = "シーン定義YAML"
	LabelFrames     = "実行フレーム数"
	LabelVerbose    = "詳細ログを出力する"
	LabelCategories = "ボーン分類定義YAML"
	LabelSlot       = "ボーンの枠"
	LabelHidden     = "非表示ボーンとして判定する"

	MessageSceneRequired = "シーン定義YAMLを指定してください (--scene)"
	MessageFramesInvalid = "フレーム数は1以上を指定してください"
)

// CLIのログメッセージ。
const (
	LogSceneLoaded     = "シーン読み込み成功: %s"
	LogFramesCompleted = "%dフレームの実行が完了しました"
	LogFrameTotals     = "適用ボーン数: %d, IK解決数: %d, 失敗数: %d"
	LogBoneValid       = "%s (%s): 有効"
	LogBoneInvalid     = "%s (%s): 無効"
)
