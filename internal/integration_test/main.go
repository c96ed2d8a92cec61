// 指示: miu200521358
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/Etheirys/Brio-sub001/pkg/adapter/hostsim"
	"github.com/Etheirys/Brio-sub001/pkg/infra/controller/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	batchOutputDirMode = 0o755
	batchOutputName    = "bones.tsv"

	statusSucceeded      = "succeeded"
	statusFailed         = "failed"
	statusSkippedMissing = "skipped_missing"
	statusDryRun         = "dry_run"
)

// batchConfig はシーン一括実行の設定を表す。
type batchConfig struct {
	SceneDir   string
	OutputRoot string
	Frames     int
	DryRun     bool
	FailFast   bool
	Verbose    bool
}

// sceneEntry は1シーン分の実行入力情報を表す。
type sceneEntry struct {
	Index      int
	SourcePath string
	SceneName  string
	CaseDir    string
	OutputPath string
}

// sceneResult は1シーン分の実行結果を表す。
type sceneResult struct {
	Entry    sceneEntry
	Status   string
	Duration time.Duration
	Err      error
	Totals   runner.Totals
}

// main はシーン定義YAMLを一括でポーズ同期にかける。
func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run は実行設定を解決して一括実行し、終了コードを返す。
func run(args []string, out io.Writer, errOut io.Writer) int {
	config, err := parseBatchConfig(args)
	if err != nil {
		fmt.Fprintf(errOut, "設定解析に失敗しました: %v\n", err)
		return 2
	}
	entries, err := buildSceneEntries(config.OutputRoot, config.SceneDir)
	if err != nil {
		fmt.Fprintf(errOut, "シーン一覧の取得に失敗しました: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		fmt.Fprintln(errOut, "実行対象シーンがありません")
		return 2
	}

	results := executeBatch(config, entries, out, errOut)
	printBatchSummary(out, results)

	for _, result := range results {
		if result.Status == statusFailed {
			return 1
		}
	}
	return 0
}

// parseBatchConfig はコマンドライン引数から実行設定を構築する。
func parseBatchConfig(args []string) (batchConfig, error) {
	baseDir, err := resolveBaseDir()
	if err != nil {
		return batchConfig{}, err
	}
	config := batchConfig{}
	cmd := &cobra.Command{
		Use:           "integration_test",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          func(cmd *cobra.Command, args []string) error { return nil },
	}
	cmd.SetOut(io.Discard)
	cmd.Flags().StringVar(&config.SceneDir, "scene-dir", filepath.Join(baseDir, "scenes"), "シーン定義YAMLのディレクトリ")
	cmd.Flags().StringVar(&config.OutputRoot, "output-root", filepath.Join(baseDir, "output"), "実行結果の出力ルートディレクトリ")
	cmd.Flags().IntVar(&config.Frames, "frames", 1, "シーンごとの実行フレーム数")
	cmd.Flags().BoolVar(&config.DryRun, "dry-run", false, "実行せず、入力解決と出力先計画のみ表示する")
	cmd.Flags().BoolVar(&config.FailFast, "fail-fast", false, "失敗時に即時終了する")
	cmd.Flags().BoolVar(&config.Verbose, "verbose", false, "ポーズ同期の詳細ログを出力する")
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return batchConfig{}, err
	}

	config.SceneDir = strings.TrimSpace(config.SceneDir)
	config.OutputRoot = strings.TrimSpace(config.OutputRoot)
	if config.SceneDir == "" {
		return batchConfig{}, errors.New("scene-dir が空です")
	}
	if config.OutputRoot == "" {
		return batchConfig{}, errors.New("output-root が空です")
	}
	if config.Frames < 1 {
		return batchConfig{}, errors.New("frames は1以上を指定してください")
	}
	config.SceneDir = filepath.Clean(config.SceneDir)
	config.OutputRoot = filepath.Clean(config.OutputRoot)
	return config, nil
}

// resolveBaseDir はスクリプト配置ディレクトリを返す。
func resolveBaseDir() (string, error) {
	_, currentFilePath, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("実行ファイル位置を取得できません")
	}
	return filepath.Dir(currentFilePath), nil
}

// buildSceneEntries はシーンディレクトリ内のYAMLから実行対象エントリを生成する。
func buildSceneEntries(outputRoot string, sceneDir string) ([]sceneEntry, error) {
	paths, err := filepath.Glob(filepath.Join(sceneDir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	entries := make([]sceneEntry, 0, len(paths))
	for i, path := range paths {
		sceneName := resolveSceneName(path)
		safeName := sanitizePathComponent(sceneName)
		caseDir := filepath.Join(outputRoot, fmt.Sprintf("%03d_%s", i+1, safeName))
		entries = append(entries, sceneEntry{
			Index:      i + 1,
			SourcePath: path,
			SceneName:  sceneName,
			CaseDir:    caseDir,
			OutputPath: filepath.Join(caseDir, batchOutputName),
		})
	}
	return entries, nil
}

// executeBatch は全シーンを順次実行する。
func executeBatch(config batchConfig, entries []sceneEntry, out io.Writer, errOut io.Writer) []sceneResult {
	results := make([]sceneResult, 0, len(entries))
	level := slog.LevelWarn
	if config.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	total := len(entries)
	for _, entry := range entries {
		fmt.Fprintf(out, "[%d/%d] 実行開始: scene=%s\n", entry.Index, total, entry.SceneName)
		result := runSceneEntry(config, entry, logger)
		results = append(results, result)
		switch result.Status {
		case statusSucceeded:
			fmt.Fprintf(out, "[%d/%d] 実行成功: scene=%s output=%s elapsed=%s\n",
				entry.Index, total, entry.SceneName, entry.OutputPath, result.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "[%d/%d] 集計: %s\n", entry.Index, total, summarizeTotals(result.Totals))
		case statusDryRun:
			fmt.Fprintf(out, "[%d/%d] DRY-RUN: scene=%s input=%s output=%s\n",
				entry.Index, total, entry.SceneName, entry.SourcePath, entry.OutputPath)
		case statusSkippedMissing:
			fmt.Fprintf(out, "[%d/%d] 入力不足でスキップ: scene=%s input=%s reason=%v\n",
				entry.Index, total, entry.SceneName, entry.SourcePath, result.Err)
		default:
			fmt.Fprintf(out, "[%d/%d] 実行失敗: scene=%s reason=%v\n", entry.Index, total, entry.SceneName, result.Err)
			if config.FailFast {
				return results
			}
		}
	}
	return results
}

// runSceneEntry は1シーン分を実行し、ボーン結果を保存する。
func runSceneEntry(config batchConfig, entry sceneEntry, logger *slog.Logger) sceneResult {
	result := sceneResult{
		Entry:  entry,
		Status: statusFailed,
	}
	if _, err := os.Stat(entry.SourcePath); err != nil {
		result.Status = statusSkippedMissing
		result.Err = err
		return result
	}
	if config.DryRun {
		result.Status = statusDryRun
		return result
	}

	startedAt := time.Now()
	scene, err := loadScene(entry.SourcePath)
	if err != nil {
		result.Err = err
		return result
	}
	executed, err := runner.Run(scene, runner.Config{
		Frames:     config.Frames,
		Logger:     logger.With(slog.String("scene", entry.SceneName)),
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		result.Err = fmt.Errorf("シーン実行に失敗しました: %w", err)
		return result
	}
	if err := os.MkdirAll(entry.CaseDir, batchOutputDirMode); err != nil {
		result.Err = fmt.Errorf("出力ディレクトリ作成に失敗しました: %w", err)
		return result
	}
	if err := writeBonesFile(entry.OutputPath, executed.Bones); err != nil {
		result.Err = err
		return result
	}

	result.Status = statusSucceeded
	result.Duration = time.Since(startedAt)
	result.Totals = executed.Totals
	return result
}

// loadScene はシーン定義を読み込む。
func loadScene(path string) (*hostsim.Scene, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("シーン定義の読み込みに失敗しました: %w", err)
	}
	defer file.Close()
	return hostsim.LoadScene(file)
}

// writeBonesFile はボーン結果をファイルへ保存する。
func writeBonesFile(path string, bones []runner.BoneResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("結果ファイル作成に失敗しました: %w", err)
	}
	runner.WriteBones(file, bones)
	if err := file.Close(); err != nil {
		return fmt.Errorf("結果ファイル保存に失敗しました: %w", err)
	}
	return nil
}

// summarizeTotals は集計の要約文字列を返す。
func summarizeTotals(totals runner.Totals) string {
	return fmt.Sprintf(
		"frames=%d skipped=%d bones=%d entries=%d reparented=%d ik=%d failures=%d",
		totals.Frames,
		totals.SkippedFrames,
		totals.BonesApplied,
		totals.EntriesReplayed,
		totals.Reparented,
		totals.IKSolved,
		totals.Failures,
	)
}

// printBatchSummary は実行結果の集計を表示する。
func printBatchSummary(out io.Writer, results []sceneResult) {
	succeeded := 0
	failed := 0
	skipped := 0
	dryRun := 0
	for _, result := range results {
		switch result.Status {
		case statusSucceeded:
			succeeded++
		case statusDryRun:
			dryRun++
		case statusSkippedMissing:
			skipped++
		default:
			failed++
		}
	}
	fmt.Fprintf(out,
		"バッチ実行サマリ: total=%d succeeded=%d failed=%d skipped_missing=%d dry_run=%d\n",
		len(results),
		succeeded,
		failed,
		skipped,
		dryRun,
	)
}

// resolveSceneName は入力パスから拡張子を除いたシーン名を返す。
func resolveSceneName(path string) string {
	base := strings.TrimSpace(filepath.Base(path))
	name := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if name == "" {
		return "scene"
	}
	return name
}

// sanitizePathComponent は出力ディレクトリ名に使えない文字を置換する。
func sanitizePathComponent(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "scene"
	}
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return '_'
		default:
			if r < 0x20 {
				return '_'
			}
			return r
		}
	}, trimmed)
	replaced = strings.Trim(replaced, " .")
	if replaced == "" {
		return "scene"
	}
	return replaced
}
