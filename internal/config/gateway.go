package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// GatewaySettings are the per-gateway tunables that operations may change
// without a redeploy: minimum charge amounts, the polling grace window and
// sweep cadence.
type GatewaySettings struct {
	PollInterval   time.Duration             `mapstructure:"pollInterval"`
	PollBatchSize  int                       `mapstructure:"pollBatchSize"`
	SweepWorkers   int                       `mapstructure:"sweepWorkers"`
	GraceWindow    time.Duration             `mapstructure:"graceWindow"`
	RoyaltyPercent float64                   `mapstructure:"royaltyPercent"`
	Gateways       map[string]GatewayTunable `mapstructure:"gateways"`
}

// GatewayTunable holds the knobs that differ across providers.
type GatewayTunable struct {
	MinAmount      int64         `mapstructure:"minAmount"` // minor units
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
}

func DefaultGatewaySettings() GatewaySettings {
	return GatewaySettings{
		PollInterval:   time.Hour,
		PollBatchSize:  100,
		SweepWorkers:   10,
		GraceWindow:    30 * 24 * time.Hour,
		RoyaltyPercent: 5.0,
		Gateways: map[string]GatewayTunable{
			"bankslip": {MinAmount: 500, RequestTimeout: 10 * time.Second},
			"invoice":  {MinAmount: 100, RequestTimeout: 10 * time.Second},
			"altcard":  {MinAmount: 100, RequestTimeout: 10 * time.Second},
		},
	}
}

// MinAmountFor returns the configured minimum charge amount for a gateway,
// falling back to the bankslip default when the gateway is not listed.
func (s GatewaySettings) MinAmountFor(gateway string) int64 {
	if tunable, ok := s.Gateways[strings.ToLower(strings.TrimSpace(gateway))]; ok && tunable.MinAmount > 0 {
		return tunable.MinAmount
	}
	return 500
}

// TimeoutFor returns the per-call gateway request timeout.
func (s GatewaySettings) TimeoutFor(gateway string) time.Duration {
	if tunable, ok := s.Gateways[strings.ToLower(strings.TrimSpace(gateway))]; ok && tunable.RequestTimeout > 0 {
		return tunable.RequestTimeout
	}
	return 10 * time.Second
}

type GatewaySettingsHolder struct {
	current atomic.Value // holds GatewaySettings
}

func NewGatewaySettingsHolder(appCfg Config) (*GatewaySettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("gateways")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/royaltyd/config") // Volume-mounted config
	v.AddConfigPath("/etc/royaltyd")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("ROYALTYD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultGatewaySettings()
	if appCfg.DefaultRoyaltyPercent > 0 {
		defaults.RoyaltyPercent = appCfg.DefaultRoyaltyPercent
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("reconciler.pollInterval", defaults.PollInterval)
		v.SetDefault("reconciler.pollBatchSize", defaults.PollBatchSize)
		v.SetDefault("reconciler.sweepWorkers", defaults.SweepWorkers)
		v.SetDefault("reconciler.graceWindow", defaults.GraceWindow)
		v.SetDefault("reconciler.royaltyPercent", defaults.RoyaltyPercent)
		v.SetDefault("reconciler.gateways", defaults.Gateways)
	}

	var cfg GatewaySettings
	if err := v.UnmarshalKey("reconciler", &cfg); err != nil {
		return nil, err
	}
	if cfg.RoyaltyPercent <= 0 {
		cfg.RoyaltyPercent = defaults.RoyaltyPercent
	}
	cfg = withSettingsDefaults(cfg)
	if err := validateGatewaySettings(cfg); err != nil {
		return nil, err
	}

	holder := &GatewaySettingsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated GatewaySettings
		if err := v.UnmarshalKey("reconciler", &updated); err != nil {
			log.Printf("[gateway-config] reload failed: %v", err)
			return
		}
		updated = withSettingsDefaults(updated)
		if err := validateGatewaySettings(updated); err != nil {
			log.Printf("[gateway-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[gateway-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticGatewaySettingsHolder wraps fixed settings without file watching.
func NewStaticGatewaySettingsHolder(cfg GatewaySettings) *GatewaySettingsHolder {
	holder := &GatewaySettingsHolder{}
	holder.current.Store(withSettingsDefaults(cfg))
	return holder
}

func (h *GatewaySettingsHolder) Get() GatewaySettings {
	return h.current.Load().(GatewaySettings)
}

func withSettingsDefaults(cfg GatewaySettings) GatewaySettings {
	defaults := DefaultGatewaySettings()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if cfg.PollBatchSize <= 0 {
		cfg.PollBatchSize = defaults.PollBatchSize
	}
	if cfg.SweepWorkers <= 0 {
		cfg.SweepWorkers = defaults.SweepWorkers
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = defaults.GraceWindow
	}
	if cfg.RoyaltyPercent <= 0 {
		cfg.RoyaltyPercent = defaults.RoyaltyPercent
	}
	if len(cfg.Gateways) == 0 {
		cfg.Gateways = defaults.Gateways
	}
	return cfg
}

func validateGatewaySettings(cfg GatewaySettings) error {
	if cfg.RoyaltyPercent <= 0 || cfg.RoyaltyPercent > 100 {
		return errors.New("reconciler.royaltyPercent must be in (0, 100]")
	}
	for name, tunable := range cfg.Gateways {
		if tunable.MinAmount < 0 {
			return errors.New("reconciler.gateways." + name + ".minAmount cannot be negative")
		}
	}
	return nil
}
