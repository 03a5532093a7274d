package config

import "time"

type AppConfig struct {
	ListenAddr string        `yaml:"listen_addr" env:"STAFFDESK_LISTEN_ADDR" env-default:"127.0.0.1:8090"`
	AppEnv     string        `yaml:"app_env" env:"STAFFDESK_APP_ENV"`
	LogLevel   string        `yaml:"log_level" env:"STAFFDESK_LOG_LEVEL" env-default:"info"`
	Portal     PortalConfig  `yaml:"portal"`
	Sync       SyncConfig    `yaml:"sync"`
	Journal    JournalConfig `yaml:"journal"`
}

// PortalConfig points at the upstream portal REST API.
type PortalConfig struct {
	BaseURL        string        `yaml:"base_url" env:"STAFFDESK_PORTAL_BASE_URL" env-default:"http://localhost:5000/api"`
	Token          string        `yaml:"token" env:"STAFFDESK_PORTAL_TOKEN"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"STAFFDESK_PORTAL_REQUEST_TIMEOUT" env-default:"15s"`
}

type SyncConfig struct {
	Interval         time.Duration `yaml:"interval" env:"STAFFDESK_SYNC_INTERVAL" env-default:"30s"`
	MessagesInterval time.Duration `yaml:"messages_interval" env:"STAFFDESK_SYNC_MESSAGES_INTERVAL" env-default:"5s"`
	CalendarCron     string        `yaml:"calendar_cron" env:"STAFFDESK_SYNC_CALENDAR_CRON" env-default:"0 0 * * *"`
	Timezone         string        `yaml:"timezone" env:"STAFFDESK_SYNC_TIMEZONE" env-default:"UTC"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled" env:"STAFFDESK_JOURNAL_ENABLED" env-default:"true"`
	Driver  string `yaml:"driver" env:"STAFFDESK_JOURNAL_DRIVER" env-default:"sqlite"`
	URL     string `yaml:"url" env:"STAFFDESK_JOURNAL_URL" env-default:"data/staffdesk.db"`
}

const (
	defaultSyncInterval = 30 * time.Second
	minSyncInterval     = time.Second
)

// EffectiveSyncInterval clamps the configured cadence to something sane.
func (c *AppConfig) EffectiveSyncInterval() time.Duration {
	if c == nil || c.Sync.Interval <= 0 {
		return defaultSyncInterval
	}
	if c.Sync.Interval < minSyncInterval {
		return minSyncInterval
	}
	return c.Sync.Interval
}

func (c *AppConfig) EffectiveMessagesInterval() time.Duration {
	if c == nil || c.Sync.MessagesInterval <= 0 {
		return c.EffectiveSyncInterval()
	}
	if c.Sync.MessagesInterval < minSyncInterval {
		return minSyncInterval
	}
	return c.Sync.MessagesInterval
}

func (c *AppConfig) Location() *time.Location {
	if c == nil || c.Sync.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Sync.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *AppConfig) IsDev() bool {
	if c == nil {
		return false
	}
	return c.AppEnv == "dev" || c.AppEnv == "development"
}
