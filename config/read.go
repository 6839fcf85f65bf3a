package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName   = "config"
	configFormat = "yaml"
	envPrefix    = "EHMS"
)

// legacyEnv maps config keys to the bare environment variables older
// deployments were started with.
var legacyEnv = map[string]string{
	"firestore.credentials_json": "FIREBASE_SERVICE_ACCOUNT",
	"recaptcha.secret_key":       "RECAPTCHA_SECRET_KEY",
	"server.port":                "PORT",
}

// envOnlyKeys have no sensible default but must be known to viper so that
// AutomaticEnv values survive Unmarshal.
var envOnlyKeys = []string{
	"database.host", "database.user", "database.password", "database.dbname",
	"redis.addr", "redis.username", "redis.password",
	"s3.endpoint", "s3.access_key_id", "s3.secret_access_key", "s3.bucket",
	"firestore.project_id",
	"nats.url",
	"logging.output.loki.endpoint", "logging.output.loki.username", "logging.output.loki.password",
}

func setDefaults(v *viper.Viper) {
	for _, key := range envOnlyKeys {
		v.SetDefault(key, "")
	}

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("server.environment", "production")
	v.SetDefault("server.body_limit_mb", 25)
	v.SetDefault("server.cors.enabled", true)
	v.SetDefault("server.cors.allow_origins", []string{
		"https://ehms-sail.web.app",
		"http://localhost:3000",
		"http://localhost:3001",
	})
	v.SetDefault("server.rate_limit.requests_per_window", 60)
	v.SetDefault("server.rate_limit.window_seconds", 60)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_path_style", true)

	v.SetDefault("reports.signed_url_ttl_hours", 180*24)
	v.SetDefault("reports.max_upload_mb", 20)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "1 0 * * *")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.concurrency", 8)
	v.SetDefault("scheduler.lock_ttl_seconds", 600)

	v.SetDefault("recaptcha.verify_url", "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault("recaptcha.timeout_seconds", 10)

	v.SetDefault("nats.subject_prefix", "ehms")

	v.SetDefault("observability.service_name", "ehms_backend")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func ReadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configFormat)
	v.AddConfigPath(configPath)

	// Allow env vars to override config values.
	// e.g. EHMS_DATABASE_HOST overrides database.host
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range legacyEnv {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	setDefaults(v)

	// The config file is optional; containers are configured from env only.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}
