// Package config loads nfeflow settings from the environment and an optional
// nfeflow.yaml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dwsmith1983/nfeflow/internal/lock"
	"github.com/dwsmith1983/nfeflow/pkg/types"
)

// EnvPrefix prefixes every environment variable, e.g. NFEFLOW_LEDGER_BACKEND.
const EnvPrefix = "NFEFLOW"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	Remote      Remote
	Ledger      Ledger
	Source      Source
	Lock        Lock
	Credentials Credentials
	Log         Log
	CacheDir    string
	Retry       types.RetryPolicy
	Alerts      []types.AlertConfig
	ServiceName string
}

// Remote configures the Stage Actions driver.
type Remote struct {
	Driver   string // http | scripted
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	Scenario string
}

// Ledger selects the ledger store.
type Ledger struct {
	Backend       string // sheets | xlsx | memory
	SpreadsheetID string
	Sheet         string
	Path          string
}

// Source selects where new documents are fetched from.
type Source struct {
	Backend  string // drive | gcs | none
	FolderID string
	Bucket   string
	Prefix   string
}

// Lock selects the run lock backend.
type Lock struct {
	Backend    string // file | redis | firestore
	Path       string
	StaleAfter time.Duration
	RedisAddr  string
	Key        string
	Project    string
	Collection string
}

// Credentials locates the Google service account. The first non-empty of
// JSON, Base64, Path and SecretID is used.
type Credentials struct {
	JSON     string
	Base64   string
	Path     string
	SecretID string
}

// Log configures logging.
type Log struct {
	Dir    string
	Level  string
	Format string // text | json
}

// Legacy environment names still set by existing deployments.
var legacyEnv = map[string]string{
	"remote.username":      "SGI_USERNAME",
	"remote.password":      "SGI_PASSWORD",
	"ledger.spreadsheetid": "PLANILHA_ID",
	"ledger.sheet":         "ABA_CONTROLE",
	"source.folderid":      "ID_PASTA_GOOGLE_DRIVE",
	"log.dir":              "LOGS_DIR",
	"log.level":            "LOG_LEVEL",
	"log.format":           "LOG_FORMAT",
	"cachedir":             "DOWNLOAD_DIR",
	"lock.path":            "LOCK_PATH",
	"credentials.json":     "GOOGLE_SA_JSON",
	"credentials.base64":   "GOOGLE_SA_JSON_B64",
	"credentials.path":     "GOOGLE_SA_JSON_PATH",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.driver", "http")
	v.SetDefault("remote.url", "http://localhost:8090")
	v.SetDefault("remote.username", "")
	v.SetDefault("remote.password", "")
	v.SetDefault("remote.timeout", 2*time.Minute)
	v.SetDefault("remote.scenario", "")

	v.SetDefault("ledger.backend", "sheets")
	v.SetDefault("ledger.spreadsheetid", "")
	v.SetDefault("ledger.sheet", "PROCESSO ENTRADA")
	v.SetDefault("ledger.path", "")

	v.SetDefault("source.backend", "drive")
	v.SetDefault("source.folderid", "")
	v.SetDefault("source.bucket", "")
	v.SetDefault("source.prefix", "")

	v.SetDefault("lock.backend", "file")
	v.SetDefault("lock.path", filepath.Join(os.TempDir(), "nfeflow.lock"))
	v.SetDefault("lock.staleafter", lock.DefaultStaleAfter)
	v.SetDefault("lock.redisaddr", "")
	v.SetDefault("lock.key", "nfeflow:run-lock")
	v.SetDefault("lock.project", "")
	v.SetDefault("lock.collection", "locks")

	v.SetDefault("credentials.json", "")
	v.SetDefault("credentials.base64", "")
	v.SetDefault("credentials.path", "/app/creds/service-account.json")
	v.SetDefault("credentials.secretid", "")

	v.SetDefault("log.dir", "/app/logs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("cachedir", "/app/downloads")
	v.SetDefault("retry.maxattempts", 3)
	v.SetDefault("retry.backoff", 2*time.Second)
	v.SetDefault("retry.backoffmultiplier", 2.0)
	v.SetDefault("servicename", "nfeflow")
}

// Load reads configuration. When path is empty, nfeflow.yaml is looked up in
// the working directory and its absence is not an error. Environment
// variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("binding %s: %w", legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		v.SetConfigName("nfeflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	cfg := &Config{
		Remote: Remote{
			Driver:   strings.ToLower(v.GetString("remote.driver")),
			URL:      v.GetString("remote.url"),
			Username: v.GetString("remote.username"),
			Password: v.GetString("remote.password"),
			Timeout:  v.GetDuration("remote.timeout"),
			Scenario: v.GetString("remote.scenario"),
		},
		Ledger: Ledger{
			Backend:       strings.ToLower(v.GetString("ledger.backend")),
			SpreadsheetID: v.GetString("ledger.spreadsheetid"),
			Sheet:         v.GetString("ledger.sheet"),
			Path:          v.GetString("ledger.path"),
		},
		Source: Source{
			Backend:  strings.ToLower(v.GetString("source.backend")),
			FolderID: v.GetString("source.folderid"),
			Bucket:   v.GetString("source.bucket"),
			Prefix:   v.GetString("source.prefix"),
		},
		Lock: Lock{
			Backend:    strings.ToLower(v.GetString("lock.backend")),
			Path:       v.GetString("lock.path"),
			StaleAfter: v.GetDuration("lock.staleafter"),
			RedisAddr:  v.GetString("lock.redisaddr"),
			Key:        v.GetString("lock.key"),
			Project:    v.GetString("lock.project"),
			Collection: v.GetString("lock.collection"),
		},
		Credentials: Credentials{
			JSON:     v.GetString("credentials.json"),
			Base64:   v.GetString("credentials.base64"),
			Path:     v.GetString("credentials.path"),
			SecretID: v.GetString("credentials.secretid"),
		},
		Log: Log{
			Dir:    v.GetString("log.dir"),
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		CacheDir: v.GetString("cachedir"),
		Retry: types.RetryPolicy{
			MaxAttempts:       v.GetInt("retry.maxattempts"),
			Backoff:           v.GetDuration("retry.backoff"),
			BackoffMultiplier: v.GetFloat64("retry.backoffmultiplier"),
			RetryableFailures: []types.FailureCategory{types.FailureTransient, types.FailureTimeout},
		},
		ServiceName: v.GetString("servicename"),
	}

	if err := v.UnmarshalKey("alerts", &cfg.Alerts); err != nil {
		return nil, fmt.Errorf("parsing alerts: %w", err)
	}
	if len(cfg.Alerts) == 0 {
		cfg.Alerts = []types.AlertConfig{{Type: types.AlertConsole}}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every selected backend has the settings it needs.
func Validate(cfg *Config) error {
	switch cfg.Remote.Driver {
	case "http":
		if cfg.Remote.URL == "" {
			return invalid("remote.url is required for the http driver")
		}
		if cfg.Remote.Username == "" || cfg.Remote.Password == "" {
			return invalid("remote username and password are required (SGI_USERNAME, SGI_PASSWORD)")
		}
	case "scripted":
		if cfg.Remote.Scenario == "" {
			return invalid("remote.scenario is required for the scripted driver")
		}
	default:
		return invalid("unsupported remote driver %q", cfg.Remote.Driver)
	}

	switch cfg.Ledger.Backend {
	case "sheets":
		if cfg.Ledger.SpreadsheetID == "" {
			return invalid("ledger spreadsheet ID is required (PLANILHA_ID)")
		}
		if cfg.Ledger.Sheet == "" {
			return invalid("ledger sheet is required (ABA_CONTROLE)")
		}
	case "xlsx":
		if cfg.Ledger.Path == "" {
			return invalid("ledger.path is required for the xlsx backend")
		}
	case "memory":
	default:
		return invalid("unsupported ledger backend %q", cfg.Ledger.Backend)
	}

	switch cfg.Source.Backend {
	case "drive":
		if cfg.Source.FolderID == "" {
			return invalid("drive folder ID is required (ID_PASTA_GOOGLE_DRIVE)")
		}
	case "gcs":
		if cfg.Source.Bucket == "" {
			return invalid("source.bucket is required for the gcs backend")
		}
	case "none":
	default:
		return invalid("unsupported source backend %q", cfg.Source.Backend)
	}

	switch cfg.Lock.Backend {
	case "file":
		if cfg.Lock.Path == "" {
			return invalid("lock.path is required for the file lock")
		}
	case "redis":
		if cfg.Lock.RedisAddr == "" {
			return invalid("lock.redisAddr is required for the redis lock")
		}
	case "firestore":
		if cfg.Lock.Project == "" {
			return invalid("lock.project is required for the firestore lock")
		}
	default:
		return invalid("unsupported lock backend %q", cfg.Lock.Backend)
	}
	if cfg.Lock.StaleAfter <= 0 {
		return invalid("lock.staleAfter must be positive")
	}

	if cfg.CacheDir == "" {
		return invalid("cache directory is required (DOWNLOAD_DIR)")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return invalid("retry.maxAttempts must be at least 1")
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return invalid("unsupported log format %q", cfg.Log.Format)
	}
	for _, a := range cfg.Alerts {
		if a.Type == "" {
			return invalid("alert type is required")
		}
	}
	return nil
}

// NeedsGoogleCredentials reports whether a selected backend talks to a
// Google API.
func (c *Config) NeedsGoogleCredentials() bool {
	return c.Ledger.Backend == "sheets" || c.Source.Backend != "none" || c.Lock.Backend == "firestore"
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
