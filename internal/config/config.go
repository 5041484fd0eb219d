package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds process settings. Every key is read from the environment with
// the MONEYSEED_ prefix, e.g. MONEYSEED_PORT.
type Config struct {
	Port      string `mapstructure:"PORT"`
	DBPath    string `mapstructure:"DB_PATH"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
	DevMode   bool   `mapstructure:"DEV_MODE"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	PendingWindowDays    int  `mapstructure:"PENDING_WINDOW_DAYS"`
	HighPriorityDays     int  `mapstructure:"HIGH_PRIORITY_DAYS"`
	AutoClaimStreakBonus bool `mapstructure:"AUTO_CLAIM_STREAK_BONUS"`

	VAPIDPublicKey  string        `mapstructure:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `mapstructure:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string        `mapstructure:"VAPID_SUBJECT"`
	PushInterval    time.Duration `mapstructure:"PUSH_INTERVAL"`

	S3Endpoint          string `mapstructure:"S3_ENDPOINT"`
	S3Bucket            string `mapstructure:"S3_BUCKET"`
	S3Region            string `mapstructure:"S3_REGION"`
	S3AccessKey         string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey         string `mapstructure:"S3_SECRET_KEY"`
	BackupPassphrase    string `mapstructure:"BACKUP_PASSPHRASE"`
	BackupHour          int    `mapstructure:"BACKUP_HOUR"`
	BackupRetentionDays int    `mapstructure:"BACKUP_RETENTION_DAYS"`
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"DB_PATH":                 "moneyseed.db",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "text",
	"DEV_MODE":                false,
	"JWT_SECRET":              "",
	"PENDING_WINDOW_DAYS":     30,
	"HIGH_PRIORITY_DAYS":      3,
	"AUTO_CLAIM_STREAK_BONUS": false,
	"VAPID_PUBLIC_KEY":        "",
	"VAPID_PRIVATE_KEY":       "",
	"VAPID_SUBJECT":           "mailto:admin@moneyseed.app",
	"PUSH_INTERVAL":           "1m",
	"S3_ENDPOINT":             "",
	"S3_BUCKET":               "",
	"S3_REGION":               "us-east-1",
	"S3_ACCESS_KEY":           "",
	"S3_SECRET_KEY":           "",
	"BACKUP_PASSPHRASE":       "",
	"BACKUP_HOUR":             3,
	"BACKUP_RETENTION_DAYS":   30,
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromViper(viper.New())
}

// FromViper decodes the configuration from v after applying defaults and
// environment bindings.
func FromViper(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("MONEYSEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" && !c.DevMode {
		return errors.New("MONEYSEED_JWT_SECRET is required unless MONEYSEED_DEV_MODE is set")
	}
	if c.PendingWindowDays < 0 {
		return fmt.Errorf("MONEYSEED_PENDING_WINDOW_DAYS must not be negative, got %d", c.PendingWindowDays)
	}
	if c.HighPriorityDays < 0 {
		return fmt.Errorf("MONEYSEED_HIGH_PRIORITY_DAYS must not be negative, got %d", c.HighPriorityDays)
	}
	if c.BackupHour < 0 || c.BackupHour > 23 {
		return fmt.Errorf("MONEYSEED_BACKUP_HOUR must be 0-23, got %d", c.BackupHour)
	}
	return nil
}

// PushEnabled reports whether both VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// BackupEnabled reports whether object storage and an encryption passphrase
// are configured.
func (c *Config) BackupEnabled() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != "" && c.BackupPassphrase != ""
}
