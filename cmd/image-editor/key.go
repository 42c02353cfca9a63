package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/cli"
	"github.com/fpang/ai-image-editor/internal/logging"
	"github.com/fpang/ai-image-editor/internal/settings"
)

var noValidateFlag bool

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the stored Gemini API key",
}

var keySetCmd = &cobra.Command{
	Use:   "set [api-key]",
	Short: "Validate and store an API key (prompts when omitted)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		ctx := context.Background()

		key := ""
		if len(args) == 1 {
			key = args[0]
		} else {
			var err error
			key, err = cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).ReadLine("Gemini API key: ")
			if err != nil {
				a.out.Error(err)
				os.Exit(1)
			}
		}

		if !noValidateFlag {
			client := cli.NewClient(a.cfg)
			client.SetCredential(key)
			if err := auth.ValidateAPIKey(ctx, client); err != nil {
				cli.HandleValidationError(err)
			}
		}
		if err := a.settings.SetAPIKey(key); err != nil {
			a.out.Error(err)
			os.Exit(1)
		}
		a.out.Success("API key %s saved to %s", logging.MaskKey(key), a.settings.Path(settings.KeyAPIKey))
	},
}

var keyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		if err := a.settings.ClearAPIKey(); err != nil {
			a.out.Error(err)
			os.Exit(1)
		}
		a.out.Success("Stored API key removed")
	},
}

var keyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show which API key would be used",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		key, source, err := (&auth.Resolver{Store: a.settings}).GetAPIKey(context.Background())
		if err != nil {
			a.out.Warn("No API key configured")
			return
		}
		a.out.Info("%s (from %s)", logging.MaskKey(key), source)
	},
}

var keyValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configured API key against the Gemini API",
	Run: func(cmd *cobra.Command, args []string) {
		a := setup(cmd)
		if _, _, err := cli.InitClient(context.Background(), a.cfg, a.settings, true); err != nil {
			cli.HandleValidationError(err)
		}
		a.out.Success("API key is valid")
	},
}

func init() {
	keySetCmd.Flags().BoolVar(&noValidateFlag, "no-validate", false, "Store the key without checking it")
	keyCmd.AddCommand(keySetCmd, keyClearCmd, keyShowCmd, keyValidateCmd)
}
