// Package lambdaboot provides the Lambda cold-start bootstrap: AWS config,
// the DynamoDB session store, the S3 result exporter and the Gemini key
// lookup, so the Lambda's init() is a short composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/export"
	"github.com/fpang/ai-image-editor/internal/logging"
	"github.com/fpang/ai-image-editor/internal/settings"
	"github.com/fpang/ai-image-editor/internal/store"
)

// AWSClients holds the core AWS SDK clients.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitExporter creates the S3 result exporter. Returns nil (with a warning)
// when no bucket is configured; export is then unavailable.
func InitExporter(cfg aws.Config, bucket string) *export.S3Exporter {
	if bucket == "" {
		log.Warn().Msg("Result bucket not set, S3 export disabled")
		return nil
	}
	return export.NewS3Exporter(s3.NewFromConfig(cfg), bucket)
}

// InitStore creates the DynamoDB session store, falling back to an
// in-memory store when no table is configured.
func InitStore(cfg aws.Config, table string) store.SessionStore {
	if table == "" {
		log.Warn().Msg("Session table not set, sessions are kept in memory only")
		return store.NewMemoryStore()
	}
	return store.NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

// InitSettings opens a settings store under the function's writable temp
// directory. Settings written there last for the life of the container.
func InitSettings() *settings.Store {
	return settings.NewStore(filepath.Join(os.TempDir(), "ai-image-editor"))
}

// LoadGeminiKey resolves the Gemini API key from the environment, the
// settings store or SSM Parameter Store. A missing key is not fatal: the
// API answers 412 until one is supplied.
func LoadGeminiKey(ctx context.Context, ssmClient auth.ParameterGetter, keys auth.KeyStore, param string) (string, auth.Source) {
	start := time.Now()
	resolver := &auth.Resolver{Store: keys, SSM: ssmClient, SSMParam: param}
	key, source, err := resolver.GetAPIKey(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini API key unavailable, editing disabled until a key is set")
		return "", auth.SourceNone
	}
	log.Debug().
		Str("source", string(source)).
		Str("key", logging.MaskKey(key)).
		Dur("elapsed", time.Since(start)).
		Msg("Gemini API key loaded")
	return key, source
}
