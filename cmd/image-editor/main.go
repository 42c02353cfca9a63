// Command image-editor is the terminal front end of the AI image editor:
// an interactive edit session plus one-shot analyze, generate and
// instructions commands and key/config management.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/cli"
	"github.com/fpang/ai-image-editor/internal/config"
	"github.com/fpang/ai-image-editor/internal/logging"
	"github.com/fpang/ai-image-editor/internal/settings"
)

// Global flags
var (
	configFlag string
	colorFlag  string
)

// Build-time version identity, injected via -ldflags.
var (
	commitHash = "dev"
	buildTime  = "unknown"
)

// app holds what every command needs after start-up.
type app struct {
	cfg      *config.Config
	settings *settings.Store
	out      *cli.Printer
}

var rootCmd = &cobra.Command{
	Use:   "image-editor",
	Short: "AI-assisted image editing with Gemini",
	Long: `Image Editor analyzes a photo with Gemini, suggests edits, and applies the
ones you pick (plus your own instructions) with the image generation model.

Examples:
  image-editor edit photo.jpg
  image-editor edit --browse
  image-editor analyze photo.jpg
  image-editor generate photo.jpg --prompt "remove the people in the background"
  image-editor key set
  image-editor config preset Creative`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "", "Color output: auto, always, never")

	rootCmd.AddCommand(editCmd, analyzeCmd, generateCmd, instructionsCmd, keyCmd, configCmd, presetsCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration, initializes logging and opens the settings
// store.
func setup(cmd *cobra.Command) *app {
	logging.Init()

	cfg, err := config.NewLoader().Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Configure(cfg.Log.Level, cfg.Log.Format)
	if colorFlag != "" {
		cfg.Output.ColorMode = colorFlag
	}

	var store *settings.Store
	if cfg.SettingsDir != "" {
		store = settings.NewStore(cfg.SettingsDir)
	} else if store, err = settings.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to locate settings directory")
	}

	return &app{
		cfg:      cfg,
		settings: store,
		out:      cli.NewPrinter(cmd.OutOrStdout(), cfg.Output.ColorMode),
	}
}

// modelConfig is the stored model configuration with the config file's
// model section applied on top.
func (a *app) modelConfig() chat.ModelConfig {
	cfg, err := a.settings.Config()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load stored model config, using defaults")
		cfg = chat.DefaultConfig()
	}
	if merged := cfg.Apply(a.cfg.Model); merged.Validate() == nil {
		return merged
	}
	log.Warn().Msg("Ignoring invalid model overrides from config")
	return cfg
}

// client returns a configured Gemini client or exits with guidance.
func (a *app) client(ctx context.Context) *chat.Client {
	client, _, err := cli.InitClient(ctx, a.cfg, a.settings, false)
	if err != nil {
		cli.HandleValidationError(err)
	}
	return client
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("image-editor %s (built %s)\n", commitHash, buildTime)
	},
}
