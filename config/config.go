// Package config loads and validates the service's configuration with
// spf13/viper, layering --config-file arguments (in the order given) over
// built-in defaults, then letting GSPRINT_-prefixed environment variables
// override everything.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved, immutable configuration for one run of the
// service. Nothing past startup mutates it.
type Config struct {
	HTTPAddress string
	FilesDir    string
	Readonly    bool
	Disposal    bool
	ServiceName string

	QueueCapacity       int
	QueueDequeueTimeout time.Duration

	// ConverterWorkers should stay at 1 unless the operator has confirmed
	// their Ghostscript build tolerates concurrent instances; the engine's
	// own documentation does not guarantee reentrancy.
	ConverterWorkers int
	SenderWorkers    int

	SenderConnectTimeout time.Duration
	SenderIOTimeout      time.Duration
	SenderSoftTimeout    time.Duration

	ShutdownGrace         time.Duration
	ShutdownDrainConvertQ bool
	ShutdownDrainSendQ    bool

	LogLevel  string
	LogFormat string

	AuditEnabled bool
	AuditDSN     string
}

// Load builds a Config from built-in defaults, the given config files
// (layered in order, later files win), and GSPRINT_-prefixed environment
// variables (highest precedence).
func Load(configFiles []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GSPRINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, path := range configFiles {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		HTTPAddress: v.GetString("http.server.address"),
		FilesDir:    v.GetString("filesdir"),
		Readonly:    v.GetBool("readonly"),
		Disposal:    v.GetBool("disposal"),
		ServiceName: v.GetString("service.name"),

		QueueCapacity:       v.GetInt("queue.capacity"),
		QueueDequeueTimeout: v.GetDuration("queue.dequeuetimeout"),

		ConverterWorkers: v.GetInt("converter.workers"),
		SenderWorkers:    v.GetInt("sender.workers"),

		SenderConnectTimeout: v.GetDuration("sender.connecttimeout"),
		SenderIOTimeout:      v.GetDuration("sender.iotimeout"),
		SenderSoftTimeout:    v.GetDuration("sender.softtimeout"),

		ShutdownGrace:         v.GetDuration("shutdown.grace"),
		ShutdownDrainConvertQ: v.GetBool("shutdown.drainconvertqueue"),
		ShutdownDrainSendQ:    v.GetBool("shutdown.drainsendqueue"),

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),

		AuditEnabled: v.GetBool("audit.enabled"),
		AuditDSN:     v.GetString("audit.dsn"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.server.address", "0.0.0.0:9980")
	v.SetDefault("readonly", true)
	v.SetDefault("disposal", false)
	v.SetDefault("service.name", "GS")

	v.SetDefault("queue.capacity", 1024)
	v.SetDefault("queue.dequeuetimeout", time.Second)

	v.SetDefault("converter.workers", 1)
	v.SetDefault("sender.workers", 2)

	v.SetDefault("sender.connecttimeout", 5*time.Second)
	v.SetDefault("sender.iotimeout", 30*time.Second)
	v.SetDefault("sender.softtimeout", 45*time.Second)

	v.SetDefault("shutdown.grace", 5*time.Second)
	v.SetDefault("shutdown.drainconvertqueue", true)
	v.SetDefault("shutdown.drainsendqueue", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.dsn", "")
}

func (c *Config) validate() error {
	if c.FilesDir == "" {
		return fmt.Errorf("filesDir is required")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive")
	}
	if c.ConverterWorkers <= 0 {
		return fmt.Errorf("converter.workers must be positive")
	}
	if c.SenderWorkers <= 0 {
		return fmt.Errorf("sender.workers must be positive")
	}
	if c.QueueDequeueTimeout <= 0 {
		return fmt.Errorf("queue.dequeueTimeout must be positive")
	}
	if c.SenderConnectTimeout <= 0 || c.SenderIOTimeout <= 0 {
		return fmt.Errorf("sender timeouts must be positive")
	}
	if c.AuditEnabled && c.AuditDSN == "" {
		return fmt.Errorf("audit.dsn is required when audit.enabled is true")
	}
	return nil
}
