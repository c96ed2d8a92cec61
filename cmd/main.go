// 指示: miu200521358
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Etheirys/Brio-sub001/pkg/adapter/hostsim"
	"github.com/Etheirys/Brio-sub001/pkg/adapter/mpresenter/messages"
	"github.com/Etheirys/Brio-sub001/pkg/domain/bonefilter"
	"github.com/Etheirys/Brio-sub001/pkg/domain/pose"
	"github.com/Etheirys/Brio-sub001/pkg/infra/controller/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// runOptions は run サブコマンドの引数を保持する。
type runOptions struct {
	scenePath      string
	frames         int
	verbose        bool
	categoriesPath string
}

// checkOptions は filter check サブコマンドの引数を保持する。
type checkOptions struct {
	slot           string
	hidden         bool
	categoriesPath string
}

// main はポーズ上書きエンジンのCLIを実行する。
func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run はCLI処理全体を実行する。
func run(args []string, out io.Writer, errOut io.Writer) error {
	root := newRootCommand(out, errOut)
	root.SetArgs(args)
	return root.Execute()
}

// newRootCommand はコマンド木を生成する。
func newRootCommand(out io.Writer, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "brio",
		Short:         messages.HelpUsage,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.AddCommand(newRunCommand(out, errOut), newFilterCommand(out))
	return root
}

func newRunCommand(out io.Writer, errOut io.Writer) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: messages.HelpUsage,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRunOptions(opts); err != nil {
				return err
			}
			return runScene(opts, out, errOut)
		},
	}
	cmd.Flags().StringVar(&opts.scenePath, "scene", "", messages.LabelScene)
	cmd.Flags().IntVar(&opts.frames, "frames", 1, messages.LabelFrames)
	cmd.Flags().BoolVar(&opts.verbose, "verbose", false, messages.LabelVerbose)
	cmd.Flags().StringVar(&opts.categoriesPath, "categories", "", messages.LabelCategories)
	return cmd
}

func newFilterCommand(out io.Writer) *cobra.Command {
	filterCmd := &cobra.Command{
		Use:   "filter",
		Short: messages.LabelCategories,
	}

	var listCategories string
	listCmd := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := loadBoneFilter(listCategories)
			if err != nil {
				return err
			}
			printCategories(out, filter)
			return nil
		},
	}
	listCmd.Flags().StringVar(&listCategories, "categories", "", messages.LabelCategories)

	check := checkOptions{}
	checkCmd := &cobra.Command{
		Use:  "check <bone>...",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkBones(args, check, out)
		},
	}
	checkCmd.Flags().StringVar(&check.slot, "slot", pose.SlotCharacter.String(), messages.LabelSlot)
	checkCmd.Flags().BoolVar(&check.hidden, "hidden", false, messages.LabelHidden)
	checkCmd.Flags().StringVar(&check.categoriesPath, "categories", "", messages.LabelCategories)

	filterCmd.AddCommand(listCmd, checkCmd)
	return filterCmd
}

// validateRunOptions は run サブコマンドの引数を検証する。
func validateRunOptions(opts runOptions) error {
	if strings.TrimSpace(opts.scenePath) == "" {
		return errors.New(messages.MessageSceneRequired)
	}
	if opts.frames < 1 {
		return errors.New(messages.MessageFramesInvalid)
	}
	return nil
}

// newLogger はCLI用のロガーを生成する。
func newLogger(errOut io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))
}

// loadBoneFilter は分類定義を読み込んでフィルタを生成する。path が空なら組み込み定義を使う。
func loadBoneFilter(path string) (*bonefilter.BoneFilter, error) {
	if strings.TrimSpace(path) == "" {
		return bonefilter.NewDefaultBoneFilter()
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("分類定義の読み込みに失敗しました: %w", err)
	}
	defer file.Close()
	defs, err := bonefilter.LoadDefinitions(file)
	if err != nil {
		return nil, err
	}
	return bonefilter.NewBoneFilter(defs), nil
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

// runScene はシーンを読み込み、指定フレーム数だけポーズ同期を実行して結果を出力する。
func runScene(opts runOptions, out io.Writer, errOut io.Writer) error {
	scene, err := loadScene(opts.scenePath)
	if err != nil {
		return err
	}
	filter, err := loadBoneFilter(opts.categoriesPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[brio] "+messages.LogSceneLoaded+"\n", opts.scenePath)

	result, err := runner.Run(scene, runner.Config{
		Frames:     opts.frames,
		Filter:     filter,
		Logger:     newLogger(errOut, opts.verbose),
		Registerer: prometheus.NewRegistry(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "[brio] "+messages.LogFramesCompleted+"\n", result.Totals.Frames)
	fmt.Fprintf(out, "[brio] "+messages.LogFrameTotals+"\n",
		result.Totals.BonesApplied, result.Totals.IKSolved, result.Totals.Failures)
	runner.WriteBones(out, result.Bones)
	return nil
}

// printCategories は分類一覧を出力する。
func printCategories(out io.Writer, filter *bonefilter.BoneFilter) {
	for _, category := range filter.Categories() {
		members := category.Prefixes
		if category.Type == bonefilter.CategoryTypeCategory {
			members = category.Subcategories
		}
		fmt.Fprintf(out, "%s\t%s\t%t\t%s\n",
			category.ID, category.Type, filter.IsCategoryEnabled(category.ID), strings.Join(members, ","))
	}
}

// checkBones はボーン名ごとの編集可否を出力する。
func checkBones(names []string, opts checkOptions, out io.Writer) error {
	slot, err := pose.ParsePoseInfoSlot(opts.slot)
	if err != nil {
		return err
	}
	filter, err := loadBoneFilter(opts.categoriesPath)
	if err != nil {
		return err
	}
	for _, name := range names {
		valid := filter.IsBoneValid(bonefilter.BoneInfo{Name: name, Hidden: opts.hidden}, slot, false)
		format := messages.LogBoneInvalid
		if valid {
			format = messages.LogBoneValid
		}
		fmt.Fprintf(out, format+"\n", name, slot)
	}
	return nil
}
