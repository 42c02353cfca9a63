// Command editor-mcp exposes one editing session as Model Context Protocol
// tools over stdio, so an assistant can open, analyze and edit images.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/cli"
	"github.com/fpang/ai-image-editor/internal/config"
	"github.com/fpang/ai-image-editor/internal/logging"
	"github.com/fpang/ai-image-editor/internal/settings"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

var (
	commitHash = "dev"
	configFlag string
)

var rootCmd = &cobra.Command{
	Use:   "editor-mcp",
	Short: "MCP server for AI image editing over stdio",
	Run:   runMain,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	// stdout carries the protocol; logs go to stderr as JSON.
	logging.Configure(os.Getenv("EDITOR_LOG_LEVEL"), "json")

	cfg, err := config.NewLoader().Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	var store *settings.Store
	if cfg.SettingsDir != "" {
		store = settings.NewStore(cfg.SettingsDir)
	} else if store, err = settings.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to locate settings directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, _, err := cli.InitClient(ctx, cfg, store, false)
	if err != nil {
		log.Warn().Err(err).Msg("No API key configured, remote tools will fail until one is set")
	}

	modelCfg, err := store.Config()
	if err != nil {
		modelCfg = chat.DefaultConfig()
	}
	if merged := modelCfg.Apply(cfg.Model); merged.Validate() == nil {
		modelCfg = merged
	}

	wf := workflow.New(client, workflow.WithConfig(modelCfg))
	defer wf.Reset()

	server := mcp.NewServer(&mcp.Implementation{Name: "ai-image-editor", Version: commitHash}, nil)
	newTools(wf, cfg.Output.Dir).register(server)

	log.Info().Str("version", commitHash).Msg("MCP server listening on stdio")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("MCP server failed")
	}
}
