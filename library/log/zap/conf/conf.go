package conf

import (
	"os"
)

const (
	ModeDev  = "dev"
	ModeProd = "prod"

	WebhookURLKey = "LOG_ALERT_WEBHOOK"
)

// Log 日志配置
type Log struct {
	Logger  *Logger  `json:"logger"`
	Alerter *Alerter `json:"alerter"`
	Webhook *Webhook `json:"webhook"`
}

type Logger struct {
	Mode       string   `json:"mode"`
	AppName    string   `json:"app_name"`
	Level      string   `json:"level"`
	Directory  string   `json:"directory"`
	FormatJson bool     `json:"format_json"`
	ErrorFile  bool     `json:"error_file"`
	Sensitive  []string `json:"sensitive"`
	Rotate     *Rotate  `json:"rotate"`
}

// Rotate lumberjack 切割参数
type Rotate struct {
	MaxSizeMB  int  `json:"max_size_mb"`
	MaxBackups int  `json:"max_backups"`
	MaxAgeDays int  `json:"max_age_days"`
	Compress   bool `json:"compress"`
	LocalTime  bool `json:"local_time"`
}

// Alerter error 级别日志推送
type Alerter struct {
	Enabled bool   `json:"enabled"`
	Prefix  string `json:"prefix"`
	Format  string `json:"format"` // json/text
}

// Webhook 告警接收地址，一般是运营频道的 incoming webhook
type Webhook struct {
	URL string `json:"url"`
}

func DefaultConfig(opts ...Option) *Log {
	c := &Log{
		Logger: &Logger{
			Mode:      ModeDev,
			AppName:   "parlor",
			Level:     "debug",
			Directory: "./logs",
			Sensitive: []string{},
			Rotate: &Rotate{
				MaxSizeMB:  100,
				MaxBackups: 7,
				MaxAgeDays: 7,
				Compress:   true,
				LocalTime:  true,
			},
		},
		Alerter: &Alerter{
			Format: "text",
		},
		Webhook: &Webhook{
			URL: os.Getenv(WebhookURLKey),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(*Log)

func WithAppName(appName string) Option {
	return func(c *Log) {
		c.Logger.AppName = appName
		c.Alerter.Prefix = appName
	}
}

func WithProduction() Option {
	return func(c *Log) {
		c.Logger.Mode = ModeProd
		c.Logger.Level = "info"
	}
}

func WithLevel(level string) Option {
	return func(c *Log) { c.Logger.Level = level }
}

func WithDirectory(dir string) Option {
	return func(c *Log) { c.Logger.Directory = dir }
}

func WithSensitive(keys []string) Option {
	return func(c *Log) { c.Logger.Sensitive = keys }
}
