// Package config loads server settings from an optional YAML file and
// HAPPENINGS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/happenings/internal/civil"
)

type Config struct {
	Port     string `yaml:"port"`
	DBPath   string `yaml:"db_path"`
	LogLevel string `yaml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format"`

	// Timezone is the IANA zone every "today" and weekday is derived in.
	Timezone string `yaml:"timezone"`

	// UpcomingDays sizes the upcoming window [today, today+N].
	UpcomingDays int `yaml:"upcoming_days"`
	// PastDays sizes the past window [today-N, today-1].
	PastDays int `yaml:"past_days"`

	MaxPerEvent   int `yaml:"max_per_event"`
	MaxTotal      int `yaml:"max_total"`
	MaxUpcoming   int `yaml:"max_upcoming"`
	MaxWindowDays int `yaml:"max_window_days"`

	// RolloverCron fires the day rollover broadcast, in Timezone.
	RolloverCron string `yaml:"rollover_cron"`

	// AllowedOrigins are websocket origin patterns; empty means same origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// WriteRateLimit caps write requests per client IP per minute.
	WriteRateLimit int `yaml:"write_rate_limit"`

	Backup BackupConfig `yaml:"backup"`
	Push   PushConfig   `yaml:"push"`
}

// PushConfig configures web push for followed events. Push is off unless
// both VAPID keys are set.
type PushConfig struct {
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
	// ReminderCron fires the day-before reminders, in Timezone.
	ReminderCron string `yaml:"reminder_cron"`
}

func (p PushConfig) Enabled() bool {
	return p.VAPIDPublicKey != "" && p.VAPIDPrivateKey != ""
}

// BackupConfig configures encrypted snapshots to S3-compatible storage.
// Backups are off unless Bucket is set.
type BackupConfig struct {
	Cron          string `yaml:"cron"`
	Endpoint      string `yaml:"endpoint"`
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Passphrase    string `yaml:"passphrase"`
	Prefix        string `yaml:"prefix"`
	RetentionDays int    `yaml:"retention_days"`
}

func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

func Default() *Config {
	return &Config{
		Port:           "8080",
		DBPath:         "happenings.db",
		LogLevel:       "info",
		LogFormat:      "text",
		Timezone:       "America/Denver",
		UpcomingDays:   30,
		PastDays:       90,
		MaxPerEvent:    60,
		MaxTotal:       500,
		MaxUpcoming:    4,
		MaxWindowDays:  400,
		RolloverCron:   "0 0 * * *",
		WriteRateLimit: 30,
		Backup: BackupConfig{
			Cron:          "0 3 * * *",
			Region:        "us-east-1",
			Prefix:        "happenings",
			RetentionDays: 30,
		},
		Push: PushConfig{
			Subscriber:   "mailto:events@example.org",
			ReminderCron: "0 9 * * *",
		},
	}
}

// Load reads path (if non-empty and present), applies environment
// overrides, then normalizes and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HAPPENINGS_PORT":          &c.Port,
		"HAPPENINGS_DB_PATH":       &c.DBPath,
		"HAPPENINGS_LOG_LEVEL":     &c.LogLevel,
		"HAPPENINGS_LOG_FORMAT":    &c.LogFormat,
		"HAPPENINGS_TIMEZONE":      &c.Timezone,
		"HAPPENINGS_ROLLOVER_CRON": &c.RolloverCron,

		"HAPPENINGS_BACKUP_CRON":       &c.Backup.Cron,
		"HAPPENINGS_BACKUP_ENDPOINT":   &c.Backup.Endpoint,
		"HAPPENINGS_BACKUP_BUCKET":     &c.Backup.Bucket,
		"HAPPENINGS_BACKUP_REGION":     &c.Backup.Region,
		"HAPPENINGS_BACKUP_ACCESS_KEY": &c.Backup.AccessKey,
		"HAPPENINGS_BACKUP_SECRET_KEY": &c.Backup.SecretKey,
		"HAPPENINGS_BACKUP_PASSPHRASE": &c.Backup.Passphrase,
		"HAPPENINGS_BACKUP_PREFIX":     &c.Backup.Prefix,

		"HAPPENINGS_PUSH_VAPID_PUBLIC_KEY":  &c.Push.VAPIDPublicKey,
		"HAPPENINGS_PUSH_VAPID_PRIVATE_KEY": &c.Push.VAPIDPrivateKey,
		"HAPPENINGS_PUSH_SUBSCRIBER":        &c.Push.Subscriber,
		"HAPPENINGS_PUSH_REMINDER_CRON":     &c.Push.ReminderCron,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HAPPENINGS_UPCOMING_DAYS":    &c.UpcomingDays,
		"HAPPENINGS_PAST_DAYS":        &c.PastDays,
		"HAPPENINGS_MAX_PER_EVENT":    &c.MaxPerEvent,
		"HAPPENINGS_MAX_TOTAL":        &c.MaxTotal,
		"HAPPENINGS_MAX_UPCOMING":     &c.MaxUpcoming,
		"HAPPENINGS_MAX_WINDOW_DAYS":  &c.MaxWindowDays,
		"HAPPENINGS_WRITE_RATE_LIMIT": &c.WriteRateLimit,

		"HAPPENINGS_BACKUP_RETENTION_DAYS": &c.Backup.RetentionDays,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup("HAPPENINGS_ALLOWED_ORIGINS"); ok {
		c.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}
	return nil
}

// Normalize fills zero or negative values with defaults.
func (c *Config) Normalize() {
	d := Default()
	if c.Port == "" {
		c.Port = d.Port
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "json" {
		c.LogFormat = "text"
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	for _, f := range []struct{ v, def *int }{
		{&c.UpcomingDays, &d.UpcomingDays},
		{&c.PastDays, &d.PastDays},
		{&c.MaxPerEvent, &d.MaxPerEvent},
		{&c.MaxTotal, &d.MaxTotal},
		{&c.MaxUpcoming, &d.MaxUpcoming},
		{&c.MaxWindowDays, &d.MaxWindowDays},
		{&c.WriteRateLimit, &d.WriteRateLimit},
	} {
		if *f.v <= 0 {
			*f.v = *f.def
		}
	}
	if c.RolloverCron == "" {
		c.RolloverCron = d.RolloverCron
	}
	if c.Backup.Cron == "" {
		c.Backup.Cron = d.Backup.Cron
	}
	if c.Backup.Region == "" {
		c.Backup.Region = d.Backup.Region
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = d.Backup.RetentionDays
	}
	if c.Push.Subscriber == "" {
		c.Push.Subscriber = d.Push.Subscriber
	}
	if c.Push.ReminderCron == "" {
		c.Push.ReminderCron = d.Push.ReminderCron
	}
}

// Validate checks the settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Port != "" {
		if _, err := strconv.Atoi(c.Port); err != nil {
			return fmt.Errorf("port %q: %w", c.Port, err)
		}
	}
	if _, err := civil.NewCalendar(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	if _, err := cron.ParseStandard(c.RolloverCron); err != nil {
		return fmt.Errorf("rollover_cron %q: %w", c.RolloverCron, err)
	}
	if _, err := cron.ParseStandard(c.Backup.Cron); err != nil {
		return fmt.Errorf("backup.cron %q: %w", c.Backup.Cron, err)
	}
	if c.Backup.Enabled() {
		if c.Backup.AccessKey == "" || c.Backup.SecretKey == "" {
			return errors.New("backup: access_key and secret_key are required when bucket is set")
		}
		if len(c.Backup.Passphrase) < 12 {
			return errors.New("backup: passphrase of at least 12 characters is required when bucket is set")
		}
	}
	if _, err := cron.ParseStandard(c.Push.ReminderCron); err != nil {
		return fmt.Errorf("push.reminder_cron %q: %w", c.Push.ReminderCron, err)
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return errors.New("push: vapid_public_key and vapid_private_key must be set together")
	}
	if c.UpcomingDays > c.MaxWindowDays || c.PastDays > c.MaxWindowDays {
		return fmt.Errorf("upcoming_days and past_days must not exceed max_window_days (%d)", c.MaxWindowDays)
	}
	return nil
}
