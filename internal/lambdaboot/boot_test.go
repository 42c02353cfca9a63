package lambdaboot

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/fpang/ai-image-editor/internal/auth"
	"github.com/fpang/ai-image-editor/internal/store"
)

type fakeSSM struct {
	value string
	err   error
	names []string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.names = append(f.names, aws.ToString(in.Name))
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(f.value)}}, nil
}

func TestLoadGeminiKeyFromSSM(t *testing.T) {
	t.Setenv(auth.EnvAPIKey, "")
	fake := &fakeSSM{value: "AIzaSsmKey00001111"}
	key, source := LoadGeminiKey(context.Background(), fake, nil, "/editor/test/key")
	if key != "AIzaSsmKey00001111" || source != auth.SourceSSM {
		t.Errorf("got %q from %s", key, source)
	}
	if len(fake.names) != 1 || fake.names[0] != "/editor/test/key" {
		t.Errorf("SSM names = %v", fake.names)
	}
}

func TestLoadGeminiKeyMissingIsNotFatal(t *testing.T) {
	t.Setenv(auth.EnvAPIKey, "")
	key, source := LoadGeminiKey(context.Background(), &fakeSSM{err: errors.New("ParameterNotFound")}, nil, "")
	if key != "" || source != auth.SourceNone {
		t.Errorf("got %q from %s, want no key", key, source)
	}
}

func TestInitStoreWithoutTable(t *testing.T) {
	if _, ok := InitStore(aws.Config{}, "").(*store.MemoryStore); !ok {
		t.Error("expected in-memory store when no table is configured")
	}
	if InitExporter(aws.Config{}, "") != nil {
		t.Error("expected nil exporter when no bucket is configured")
	}
}
