package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/chat"
	"github.com/fpang/ai-image-editor/internal/cli"
	"github.com/fpang/ai-image-editor/internal/settings"
	"github.com/fpang/ai-image-editor/internal/workflow"
)

var browseFlag bool

var editCmd = &cobra.Command{
	Use:   "edit [image]",
	Short: "Start an interactive edit session",
	Long: `Edit opens an interactive session: analyze the image, toggle suggestions,
add your own instructions, generate, refine, undo and save.

With no image argument you are asked for a path; --browse opens the native
file dialog instead.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runEdit,
}

func init() {
	editCmd.Flags().BoolVar(&browseFlag, "browse", false, "Choose the image with a file dialog")
}

func runEdit(cmd *cobra.Command, args []string) {
	a := setup(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	prompter := cli.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

	client, _, err := cli.InitClient(ctx, a.cfg, a.settings, false)
	if err != nil {
		var valErr *auth.ValidationError
		if !errors.As(err, &valErr) || valErr.Type != auth.ErrTypeNoKey {
			cli.HandleValidationError(err)
		}
		a.out.Warn("No Gemini API key configured.")
		if err := promptForKey(ctx, a, client, prompter); err != nil {
			cli.HandleValidationError(err)
		}
	}

	wf := workflow.New(client, workflow.WithConfig(a.modelConfig()))
	session := cli.NewSession(wf, a.out, prompter, cli.WithOutputDir(a.cfg.Output.Dir))

	path := ""
	switch {
	case len(args) == 1:
		path = args[0]
	case browseFlag:
		path, err = cli.PickImage()
		if err != nil {
			log.Fatal().Err(err).Msg("No image selected")
		}
	default:
		path, err = prompter.Ask("Image path", "")
		if err != nil || path == "" {
			log.Fatal().Msg("An image path is required")
		}
	}
	if err := session.Open(path); err != nil {
		a.out.Error(err)
		os.Exit(1)
	}

	if err := session.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Session ended with an error")
	}
	wf.Reset()
}

// promptForKey asks for an API key, validates it against the API and saves
// it only when it is accepted.
func promptForKey(ctx context.Context, a *app, client *chat.Client, prompter *cli.Prompter) error {
	key, err := prompter.ReadLine("Gemini API key: ")
	if err != nil {
		return err
	}
	if key == "" {
		return &auth.ValidationError{Type: auth.ErrTypeNoKey, Message: auth.ErrNoKey.Error(), Err: auth.ErrNoKey}
	}
	client.SetCredential(key)
	if err := auth.ValidateAPIKey(ctx, client); err != nil {
		client.ClearCredential()
		return err
	}
	if err := a.settings.SetAPIKey(key); err != nil {
		return err
	}
	a.out.Success("API key saved to %s", a.settings.Path(settings.KeyAPIKey))
	return nil
}
