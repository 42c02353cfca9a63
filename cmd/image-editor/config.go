package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/presets"
)

// config set flags
var (
	temperatureFlag float32
	topPFlag        float32
	topKFlag        int
	maxTokensFlag   int
	safetyFlag      string
	modelFlag       string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the stored model settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective model settings",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		a.out.Config(a.modelConfig())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change stored model settings",
	Long: `Set updates only the flags given, for example:
  image-editor config set --temperature 0.4 --safety strict`,
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		var patch chat.ConfigPatch
		flags := cmd.Flags()
		if flags.Changed("temperature") {
			patch.Temperature = &temperatureFlag
		}
		if flags.Changed("top-p") {
			patch.TopP = &topPFlag
		}
		if flags.Changed("top-k") {
			patch.TopK = &topKFlag
		}
		if flags.Changed("max-output-tokens") {
			patch.MaxOutputTokens = &maxTokensFlag
		}
		if flags.Changed("safety") {
			level := chat.SafetyLevel(safetyFlag)
			patch.SafetyLevel = &level
		}
		if flags.Changed("model") {
			patch.ModelVersion = &modelFlag
		}

		cfg, err := a.settings.UpdateConfig(patch)
		if err != nil {
			a.out.Error(err)
			os.Exit(1)
		}
		a.out.Success("Model settings saved")
		a.out.Config(cfg)
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the default model settings",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		cfg, err := a.settings.ResetConfig()
		if err != nil {
			a.out.Error(err)
			os.Exit(1)
		}
		a.out.Success("Model settings reset")
		a.out.Config(cfg)
	},
}

var configPresetCmd = &cobra.Command{
	Use:   "preset <mode>",
	Short: "Apply a preset mode (Stable, Creative, High Fidelity)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		cfg, err := a.settings.ApplyMode(args[0])
		if err != nil {
			a.out.Error(err)
			os.Exit(1)
		}
		a.out.Success("Applied %s mode", args[0])
		a.out.Config(cfg)
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List preset modes, quick actions and styles",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		a.out.Presets(presets.Builtin())
	},
}

func init() {
	f := configSetCmd.Flags()
	f.Float32Var(&temperatureFlag, "temperature", 0, "Sampling temperature (0-2)")
	f.Float32Var(&topPFlag, "top-p", 0, "Nucleus sampling probability (0-1)")
	f.IntVar(&topKFlag, "top-k", 0, "Top-k sampling (1-100)")
	f.IntVar(&maxTokensFlag, "max-output-tokens", 0, "Maximum tokens for text responses")
	f.StringVar(&safetyFlag, "safety", "", "Safety level: default, strict, none")
	f.StringVar(&modelFlag, "model", "", "Image model version")

	configCmd.AddCommand(configShowCmd, configSetCmd, configResetCmd, configPresetCmd)
}
