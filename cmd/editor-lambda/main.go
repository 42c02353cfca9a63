// Package main provides the Lambda entry point for the editor API.
//
// It serves the same routes as editor-web behind API Gateway. Session
// summaries and history go to DynamoDB, generated results to S3 with
// presigned download links, and the Gemini key comes from SSM.
//
// Environment:
//
//	SESSION_TABLE_NAME    DynamoDB table (single-table PK/SK layout)
//	RESULT_BUCKET_NAME    S3 bucket for results
//	SSM_API_KEY_PARAM     SSM parameter holding the Gemini key
//	ORIGIN_VERIFY_SECRET  shared secret CloudFront injects as x-origin-verify
package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/api"
	"github.com/fpang/ai-image-editor/internal/cli"
	"github.com/fpang/ai-image-editor/internal/config"
	"github.com/fpang/ai-image-editor/internal/lambdaboot"
	"github.com/fpang/ai-image-editor/internal/logging"
)

var (
	handler            http.Handler
	originVerifySecret string
)

// setup runs once per cold start.
func setup() {
	start := time.Now()
	logging.Init()

	cfg, err := config.NewLoader().Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if err := checkStorage(cfg.AWS.SessionTable, cfg.AWS.ResultBucket); err != nil {
		log.Fatal().Err(err).Msg("Invalid storage configuration")
	}

	clients := lambdaboot.InitAWS()
	sessionStore := lambdaboot.InitStore(clients.Config, cfg.AWS.SessionTable)
	exporter := lambdaboot.InitExporter(clients.Config, cfg.AWS.ResultBucket)
	settingsStore := lambdaboot.InitSettings()

	client := cli.NewClient(cfg)
	apiKey, source := lambdaboot.LoadGeminiKey(context.Background(), clients.SSM, settingsStore, cfg.AWS.SSMParam)
	if apiKey != "" {
		client.SetCredential(apiKey)
	}

	originVerifySecret = os.Getenv("ORIGIN_VERIFY_SECRET")
	if originVerifySecret == "" {
		log.Warn().Msg("ORIGIN_VERIFY_SECRET not set, origin verification disabled")
	}

	opts := api.Options{
		AI:            client,
		Settings:      settingsStore,
		Store:         sessionStore,
		ModelOverride: cfg.Model,
		APIKey:        apiKey,
		KeySource:     source,
	}
	if exporter != nil {
		opts.Exporter = exporter
	}
	server := api.New(opts)
	handler = withOriginVerify(server.Handler())

	logging.NewStartupLogger("editor-lambda").
		Version(commitHash).
		Resource("sessionTable", cfg.AWS.SessionTable).
		Resource("resultBucket", cfg.AWS.ResultBucket).
		Resource("ssmParam", cfg.AWS.SSMParam).
		Feature("credential", apiKey != "").
		Feature("s3Export", exporter != nil).
		Feature("originVerify", originVerifySecret != "").
		Config("keySource", string(source)).
		Config("buildTime", buildTime).
		InitDuration(time.Since(start)).
		Log()
}

// checkStorage requires a result bucket whenever sessions go to DynamoDB:
// history items reference results by S3 key because an inline data URL
// overflows the 400 KB item limit.
func checkStorage(table, bucket string) error {
	if table != "" && bucket == "" {
		return errors.New("SESSION_TABLE_NAME requires RESULT_BUCKET_NAME")
	}
	return nil
}

// withOriginVerify rejects requests lacking the x-origin-verify header that
// CloudFront injects, so API Gateway cannot be called directly. The health
// check is always allowed.
func withOriginVerify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if originVerifySecret == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("x-origin-verify")
		if subtle.ConstantTimeCompare([]byte(got), []byte(originVerifySecret)) != 1 {
			log.Warn().Str("path", r.URL.Path).Msg("Blocked request: missing or invalid x-origin-verify header")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"forbidden"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	setup()
	adapter := httpadapter.NewV2(handler)
	lambda.Start(adapter.ProxyWithContext)
}
