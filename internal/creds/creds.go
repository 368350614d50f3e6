// Package creds resolves the Google service-account key used by the Sheets,
// Drive, Cloud Storage and Firestore clients.
package creds

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"google.golang.org/api/option"

	"github.com/dwsmith1983/nfeflow/internal/config"
)

// ErrNotFound is returned when no credential source is configured.
var ErrNotFound = errors.New("service account credentials not found")

// SecretsAPI is the subset of the Secrets Manager client used by Load.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

type loader struct {
	secrets SecretsAPI
}

// Option configures Load.
type Option func(*loader)

// WithSecretsClient sets the Secrets Manager client (useful for testing).
func WithSecretsClient(c SecretsAPI) Option {
	return func(l *loader) { l.secrets = c }
}

// Load returns the service-account JSON key. Sources are tried in order:
// inline JSON, base64 JSON, a key file, then an AWS Secrets Manager secret.
func Load(ctx context.Context, cfg config.Credentials, opts ...Option) ([]byte, error) {
	l := &loader{}
	for _, o := range opts {
		o(l)
	}

	switch {
	case cfg.JSON != "":
		return check([]byte(cfg.JSON), "GOOGLE_SA_JSON")
	case cfg.Base64 != "":
		data, err := base64.StdEncoding.DecodeString(cfg.Base64)
		if err != nil {
			return nil, fmt.Errorf("decoding GOOGLE_SA_JSON_B64: %w", err)
		}
		return check(data, "GOOGLE_SA_JSON_B64")
	}

	if cfg.Path != "" {
		data, err := os.ReadFile(cfg.Path)
		if err == nil {
			return check(data, cfg.Path)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", cfg.Path, err)
		}
	}

	if cfg.SecretID != "" {
		return l.fromSecret(ctx, cfg.SecretID)
	}
	return nil, fmt.Errorf("%w: set GOOGLE_SA_JSON, GOOGLE_SA_JSON_B64 or mount the key at %s", ErrNotFound, cfg.Path)
}

func (l *loader) fromSecret(ctx context.Context, id string) ([]byte, error) {
	if l.secrets == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		l.secrets = secretsmanager.NewFromConfig(awsCfg)
	}
	out, err := l.secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		return nil, fmt.Errorf("fetching secret %s: %w", id, err)
	}
	if out.SecretString != nil {
		return check([]byte(aws.ToString(out.SecretString)), "secret "+id)
	}
	return check(out.SecretBinary, "secret "+id)
}

type serviceAccount struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
}

func check(data []byte, origin string) ([]byte, error) {
	var sa serviceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parsing credentials from %s: %w", origin, err)
	}
	if sa.ClientEmail == "" {
		return nil, fmt.Errorf("credentials from %s: client_email missing", origin)
	}
	return data, nil
}

// ClientOptions turns a key into Google API client options for the given
// scopes.
func ClientOptions(key []byte, scopes ...string) []option.ClientOption {
	return []option.ClientOption{
		option.WithCredentialsJSON(key),
		option.WithScopes(scopes...),
	}
}
