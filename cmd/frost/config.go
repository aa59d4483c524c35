package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/frost-warsaw/frost/internal/model"
)

const (
	defaultBaseURL         = "https://api.um.warszawa.pl/api/action/busestrams_get/"
	defaultResourceID      = "f2e5503e927d-4ad3-9500-4ab9e55deb59"
	defaultPollInterval    = model.DefaultPollInterval
	defaultRetryBackoff    = model.DefaultRetryBackoff
	defaultRequestTimeout  = model.DefaultRequestTimeout
	defaultErrorMarker     = model.DefaultErrorMarker
	defaultDBDriver        = model.DefaultDBDriver
	defaultDBPath          = model.DefaultDBPath
	defaultQueryTimeout    = 30 * time.Second
	defaultBindHost        = "127.0.0.1"
	defaultAPIPort         = 3000
	defaultBackupInterval  = 6 * time.Hour
	defaultBackupKeepLast  = 24
	defaultBackupLocalDir  = "data/backups"
	defaultShutdownTimeout = 20 * time.Second

	redacted = "<redacted>"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	APIKey         string        `mapstructure:"api-key" yaml:"api-key" validate:"required"`
	BaseURL        string        `mapstructure:"base-url" yaml:"base-url" validate:"required,url"`
	ResourceID     string        `mapstructure:"resource-id" yaml:"resource-id" validate:"required"`
	PollInterval   time.Duration `mapstructure:"poll-interval" yaml:"poll-interval" validate:"gt=0"`
	RetryBackoff   time.Duration `mapstructure:"retry-backoff" yaml:"retry-backoff" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request-timeout" yaml:"request-timeout" validate:"gt=0"`
	ErrorMarker    string        `mapstructure:"error-marker" yaml:"error-marker" validate:"required"`

	DBDriver     string        `mapstructure:"db-driver" yaml:"db-driver" validate:"oneof=sqlite duckdb"`
	DBPath       string        `mapstructure:"db-path" yaml:"db-path" validate:"required"`
	QueryTimeout time.Duration `mapstructure:"query-timeout" yaml:"query-timeout" validate:"gt=0"`

	APIEnabled bool   `mapstructure:"api-enabled" yaml:"api-enabled"`
	APIPort    int    `mapstructure:"api-port" yaml:"api-port" validate:"min=1,max=65535"`
	APIAddr    string `mapstructure:"api-addr" yaml:"api-addr"`

	BackupEnabled        bool          `mapstructure:"backup-enabled" yaml:"backup-enabled"`
	BackupInterval       time.Duration `mapstructure:"backup-interval" yaml:"backup-interval" validate:"gt=0"`
	BackupLocalDir       string        `mapstructure:"backup-local-dir" yaml:"backup-local-dir" validate:"required_if=BackupEnabled true"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last" yaml:"backup-keep-last" validate:"gte=0"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url" yaml:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint" yaml:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region" yaml:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key" yaml:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key" yaml:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token" yaml:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl" yaml:"backup-s3-use-ssl"`

	LogFile         string        `mapstructure:"log-file" yaml:"log-file"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout" yaml:"shutdown-timeout" validate:"gt=0"`

	ConfigPath string `mapstructure:"-" yaml:"-"` // not from config file
}

func loadConfig(configPath string, interval time.Duration) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("FROST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	// A bare API_KEY in the environment is accepted as well.
	if err := v.BindEnv("api-key", "FROST_API_KEY", "API_KEY"); err != nil {
		return cfg, err
	}

	v.SetDefault("api-key", "")
	v.SetDefault("base-url", defaultBaseURL)
	v.SetDefault("resource-id", defaultResourceID)
	v.SetDefault("poll-interval", defaultPollInterval)
	v.SetDefault("retry-backoff", defaultRetryBackoff)
	v.SetDefault("request-timeout", defaultRequestTimeout)
	v.SetDefault("error-marker", defaultErrorMarker)
	v.SetDefault("db-driver", defaultDBDriver)
	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-local-dir", defaultBackupLocalDir)
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-bucket-url", "")
	v.SetDefault("backup-s3-endpoint", "")
	v.SetDefault("backup-s3-region", "")
	v.SetDefault("backup-s3-access-key", "")
	v.SetDefault("backup-s3-secret-key", "")
	v.SetDefault("backup-s3-session-token", "")
	v.SetDefault("backup-s3-use-ssl", true)
	v.SetDefault("log-file", "")
	v.SetDefault("shutdown-timeout", defaultShutdownTimeout)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "frost", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		cfg.ConfigPath = ""
	}

	if interval > 0 {
		cfg.PollInterval = interval
	}

	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.BackupLocalDir = expandHome(cfg.BackupLocalDir, home)
	cfg.LogFile = expandHome(cfg.LogFile, home)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// validateConfig turns validator field errors into config key names.
func validateConfig(cfg appConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		return name
	})

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("invalid %s: %v (%s=%s)", fe.Field(), fe.Value(), fe.Tag(), fe.Param()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// printConfig writes the effective configuration as YAML with secrets hidden.
func printConfig(cfg appConfig) ([]byte, error) {
	if cfg.APIKey != "" {
		cfg.APIKey = redacted
	}
	if cfg.BackupS3SecretKey != "" {
		cfg.BackupS3SecretKey = redacted
	}
	if cfg.BackupS3SessionToken != "" {
		cfg.BackupS3SessionToken = redacted
	}
	return yaml.Marshal(cfg)
}

func expandHome(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
