package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ai-image-editor/internal/cli"
	"github.com/fpang/ai-image-editor/internal/export"
	"github.com/fpang/ai-image-editor/internal/presets"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

// One-shot flags
var (
	jsonFlag   bool
	promptFlag string
	selectFlag string
	modeFlag   string
	styleFlag  string
	outFlag    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Describe an image and list suggested edits",
	Args:  cobra.ExactArgs(1),
	Run:   runAnalyze,
}

var generateCmd = &cobra.Command{
	Use:   "generate <image>",
	Short: "Apply edits to an image and save the result",
	Long: `Generate composes a prompt from the selected suggestions (--select, by
number from analyze), a style preset (--style) and your own instruction
(--prompt), then writes the edited image to the output directory.`,
	Args: cobra.ExactArgs(1),
	Run:  runGenerate,
}

var instructionsCmd = &cobra.Command{
	Use:   "instructions <image>",
	Short: "Print step-by-step manual instructions for an edit",
	Args:  cobra.ExactArgs(1),
	Run:   runInstructions,
}

func init() {
	analyzeCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print the analysis as JSON")

	for _, c := range []*cobra.Command{generateCmd, instructionsCmd} {
		c.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Edit instruction")
		c.Flags().StringVarP(&selectFlag, "select", "s", "", "Comma-separated suggestion numbers to apply (runs analysis)")
		c.Flags().StringVar(&styleFlag, "style", "", "Style preset id to apply")
	}
	generateCmd.Flags().StringVar(&modeFlag, "mode", "", "Preset mode for this run (Stable, Creative, High Fidelity)")
	generateCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Output directory (default from config)")
}

// loadWorkflow creates a workflow with the image at path already uploaded.
func loadWorkflow(ctx context.Context, a *app, path string) *workflow.Workflow {
	wf := workflow.New(a.client(ctx), workflow.WithConfig(a.modelConfig()))
	resolved, err := cli.ResolveImagePath(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid image path")
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		log.Fatal().Err(err).Str("path", resolved).Msg("Failed to read image")
	}
	img, err := wf.Upload(filepath.Base(resolved), "", data)
	if err != nil {
		a.out.Error(err)
		os.Exit(1)
	}
	a.out.Image(img)
	return wf
}

func runAnalyze(cmd *cobra.Command, args []string) {
	a := setup(cmd)
	ctx := context.Background()
	wf := loadWorkflow(ctx, a, args[0])
	defer wf.Reset()

	analysis, err := wf.Analyze(ctx)
	if err != nil {
		a.out.Error(err)
		os.Exit(1)
	}
	if jsonFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.Encode(analysis)
		return
	}
	a.out.Analysis(analysis, nil)
}

// prepare selects suggestions and sets the free text from the flags.
// Generation only starts from the suggestions phase, so analyze forces an
// analysis even without --select.
func prepare(ctx context.Context, a *app, wf *workflow.Workflow, analyze bool) {
	if analyze || selectFlag != "" {
		analysis, err := wf.Analyze(ctx)
		if err != nil {
			a.out.Error(err)
			os.Exit(1)
		}
		for _, f := range strings.Split(selectFlag, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil || n < 1 || n > len(analysis.Suggestions) {
				log.Fatal().Str("select", f).Int("suggestions", len(analysis.Suggestions)).Msg("Invalid suggestion number")
			}
			wf.Toggle(analysis.Suggestions[n-1].ID)
		}
	}


	var text []string
	if styleFlag != "" {
		style, ok := presets.Builtin().Style(styleFlag)
		if !ok {
			log.Fatal().Str("style", styleFlag).Msg("Unknown style preset")
		}
		text = append(text, style.Prompt)
	}
	if promptFlag != "" {
		text = append(text, promptFlag)
	}
	wf.SetFreeText(strings.Join(text, ". "))

	if wf.Prompt() == "" {
		log.Fatal().Msg("Nothing to apply: use --prompt, --select or --style")
	}
	a.out.Info("Prompt: %s", wf.Prompt())
}

func runGenerate(cmd *cobra.Command, args []string) {
	a := setup(cmd)
	ctx := context.Background()
	wf := loadWorkflow(ctx, a, args[0])
	defer wf.Reset()

	if modeFlag != "" {
		cfg, err := presets.Builtin().ApplyMode(wf.Config(), modeFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid mode")
		}
		if err := wf.SetConfig(cfg); err != nil {
			log.Fatal().Err(err).Msg("Invalid mode")
		}
	}
	prepare(ctx, a, wf, true)

	result, err := wf.Generate(ctx)
	if err != nil {
		a.out.Error(err)
		os.Exit(1)
	}
	dir := outFlag
	if dir == "" {
		dir = a.cfg.Output.Dir
	}
	path, err := export.Download(result, dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to save result")
	}
	a.out.Success("Saved %s", path)
}

func runInstructions(cmd *cobra.Command, args []string) {
	a := setup(cmd)
	ctx := context.Background()
	wf := loadWorkflow(ctx, a, args[0])
	defer wf.Reset()

	prepare(ctx, a, wf, false)
	plan, err := wf.EditPlan(ctx)
	if err != nil {
		a.out.Error(err)
		os.Exit(1)
	}
	fmt.Fprintln(cmd.OutOrStdout(), plan)
}
