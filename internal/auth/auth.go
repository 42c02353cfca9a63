// Package auth resolves the Gemini API key from the environment, the local
// settings store or SSM Parameter Store, and validates it against the API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"
)

// EnvAPIKey is the environment variable consulted first.
const EnvAPIKey = "GEMINI_API_KEY"

// EnvSSMParam names the SSM parameter holding the key; DefaultSSMParam is
// used when it is unset.
const (
	EnvSSMParam     = "SSM_API_KEY_PARAM"
	DefaultSSMParam = "/ai-image-editor/prod/gemini-api-key"
)

// Source identifies where a credential came from.
type Source string

const (
	SourceNone     Source = "none"
	SourceEnv      Source = "env"
	SourceSettings Source = "settings"
	SourceSSM      Source = "ssm"
)

// ErrNoKey is returned when no source yields a credential.
var ErrNoKey = errors.New("API key not found. Set GEMINI_API_KEY or run 'image-editor key set'")

// KeyStore is the persisted credential store (settings.Store).
type KeyStore interface {
	APIKey() (string, error)
}

// ParameterGetter is the subset of the SSM client used to read the key.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver looks up the API key. Nil sources are skipped.
type Resolver struct {
	Store    KeyStore
	SSM      ParameterGetter
	SSMParam string
}

// GetAPIKey retrieves the Gemini API key from available sources.
// Priority order:
//  1. GEMINI_API_KEY environment variable
//  2. the settings store (gemini-api-key)
//  3. SSM Parameter Store (SSM_API_KEY_PARAM), when an SSM client is set
func (r *Resolver) GetAPIKey(ctx context.Context) (string, Source, error) {
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		log.Debug().Msg("Using API key from environment variable")
		return key, SourceEnv, nil
	}

	if r.Store != nil {
		key, err := r.Store.APIKey()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read stored API key")
		} else if key != "" {
			log.Debug().Msg("Using API key from settings store")
			return key, SourceSettings, nil
		}
	}

	if r.SSM != nil {
		key, err := r.fromSSM(ctx)
		if err != nil {
			return "", SourceNone, &ValidationError{Type: ErrTypeNoKey, Message: ErrNoKey.Error(), Err: err}
		}
		if key != "" {
			return key, SourceSSM, nil
		}
	}

	return "", SourceNone, &ValidationError{Type: ErrTypeNoKey, Message: ErrNoKey.Error(), Err: ErrNoKey}
}

func (r *Resolver) fromSSM(ctx context.Context) (string, error) {
	param := r.SSMParam
	if param == "" {
		param = os.Getenv(EnvSSMParam)
	}
	if param == "" {
		param = DefaultSSMParam
	}

	start := time.Now()
	out, err := r.SSM.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to read API key from SSM %s: %w", param, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", nil
	}
	log.Debug().Str("param", param).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return strings.TrimSpace(*out.Parameter.Value), nil
}
