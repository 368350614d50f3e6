package creds

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/nfeflow/internal/config"
)

const key = `{"type":"service_account","client_email":"nfe@project.iam.gserviceaccount.com"}`

type mockSecrets struct {
	ids []string
	out *secretsmanager.GetSecretValueOutput
	err error
}

func (m *mockSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.ids = append(m.ids, aws.ToString(in.SecretId))
	return m.out, m.err
}

func TestLoad_Precedence(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(file, []byte(key), 0o600))
	b64 := base64.StdEncoding.EncodeToString([]byte(key))

	tests := []struct {
		name string
		cfg  config.Credentials
	}{
		{"inline", config.Credentials{JSON: key, Base64: "!!", Path: "/missing"}},
		{"base64", config.Credentials{Base64: b64, Path: "/missing"}},
		{"file", config.Credentials{Path: file}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(ctx, tt.cfg)
			require.NoError(t, err)
			assert.JSONEq(t, key, string(got))
		})
	}
}

func TestLoad_Secret(t *testing.T) {
	sm := &mockSecrets{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(key)}}

	got, err := Load(context.Background(), config.Credentials{
		Path:     filepath.Join(t.TempDir(), "absent.json"),
		SecretID: "nfeflow/google-sa",
	}, WithSecretsClient(sm))
	require.NoError(t, err)
	assert.JSONEq(t, key, string(got))
	assert.Equal(t, []string{"nfeflow/google-sa"}, sm.ids)
}

func TestLoad_SecretFailure(t *testing.T) {
	sm := &mockSecrets{err: errors.New("access denied")}
	_, err := Load(context.Background(), config.Credentials{SecretID: "x"}, WithSecretsClient(sm))
	assert.ErrorContains(t, err, "access denied")
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(context.Background(), config.Credentials{Path: filepath.Join(t.TempDir(), "absent.json")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]config.Credentials{
		"not json":   {JSON: "nope"},
		"no email":   {JSON: `{"type":"service_account"}`},
		"bad base64": {Base64: "%%%"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}

func TestClientOptions(t *testing.T) {
	assert.Len(t, ClientOptions([]byte(key), "scope-a", "scope-b"), 2)
}
