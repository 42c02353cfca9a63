// Command editor-web serves the editor API and a single-page UI on a local
// port.
package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/ai-image-editor/internal/api"
	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/cli"
	"github.com/fpang/ai-image-editor/internal/config"
	"github.com/fpang/ai-image-editor/internal/logging"
	"github.com/fpang/ai-image-editor/internal/settings"
)

//go:embed all:static
var staticFS embed.FS

// CLI flags
var (
	configFlag string
	addrFlag   string
	openFlag   bool
)

var rootCmd = &cobra.Command{
	Use:   "editor-web",
	Short: "Web UI for AI image editing",
	Long: `Editor Web starts a local web server with a browser interface for the
image editor: upload or browse for a photo, pick suggested edits, generate,
refine, undo and download.

Examples:
  editor-web
  editor-web --addr 127.0.0.1:9090 --open`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&configFlag, "config", "", "Path to a YAML config file")
	rootCmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	rootCmd.Flags().BoolVar(&openFlag, "open", false, "Open the UI in the default browser")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	cfg, err := config.NewLoader().Load(configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Configure(cfg.Log.Level, cfg.Log.Format)
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}

	var store *settings.Store
	if cfg.SettingsDir != "" {
		store = settings.NewStore(cfg.SettingsDir)
	} else if store, err = settings.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to locate settings directory")
	}

	// A missing key is not fatal: the UI asks for one.
	client := cli.NewClient(cfg)
	apiKey, source, err := (&auth.Resolver{Store: store}).GetAPIKey(context.Background())
	if err != nil {
		log.Warn().Err(err).Msg("No usable API key yet, the UI will ask for one")
	} else {
		client.SetCredential(apiKey)
	}

	server := api.New(api.Options{
		AI:            client,
		Settings:      store,
		ModelOverride: cfg.Model,
		APIKey:        apiKey,
		KeySource:     source,
		Picker:        pickImage,
	})

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to access embedded UI")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", server.Handler())
	mux.Handle("/", withSecurityHeaders(http.FileServer(http.FS(staticSub))))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	url := "http://" + displayAddr(cfg.Server.Addr)
	logging.NewStartupLogger("editor-web").
		Version(commitHash).
		Resource("settingsDir", store.Root()).
		Feature("credential", client.Configured()).
		Config("addr", cfg.Server.Addr).
		Config("buildTime", buildTime).
		Config("keySource", string(source)).
		InitDuration(time.Since(start)).
		Log()
	fmt.Printf("\n  Image Editor UI: %s\n\n", url)

	if openFlag || cfg.Server.OpenBrowser {
		if err := openBrowser(url); err != nil {
			log.Warn().Err(err).Msg("Failed to open browser")
		}
	}

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// pickImage adapts the native file dialog to api.Options.Picker.
func pickImage() (string, error) {
	path, err := cli.PickImage()
	if errors.Is(err, cli.ErrCanceled) {
		return "", nil
	}
	return path, err
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' blob: data:; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; connect-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// displayAddr turns a listen address into something a browser can open.
func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return strings.Replace(addr, "0.0.0.0", "localhost", 1)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
