package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// UpkeepDefaults are the server-wide defaults applied when a claim has no
// upkeep config row yet. Values are overridable per claim afterwards.
type UpkeepDefaults struct {
	// CostPerChunk is the upkeep charge per owned chunk, in minor units.
	CostPerChunk int64 `mapstructure:"costPerChunk"`
	// DiscountPercent reduces the computed upkeep cost, 0..100.
	DiscountPercent int `mapstructure:"discountPercent"`
	// IntervalHours is the billing interval between two upkeep charges.
	IntervalHours int `mapstructure:"intervalHours"`
	// MinIntervalHours is the dedup window: a claim charged more recently
	// than this is never charged again, whatever its schedule row says.
	MinIntervalHours int `mapstructure:"minIntervalHours"`
	// GraceDays is how long an insolvent claim keeps its chunks.
	GraceDays int `mapstructure:"graceDays"`
	// AutoUnclaim releases chunks when the grace period expires.
	AutoUnclaim bool `mapstructure:"autoUnclaim"`
	// MinimumBalanceWarning is the advisory low-balance threshold.
	MinimumBalanceWarning int64 `mapstructure:"minimumBalanceWarning"`
}

func DefaultUpkeepDefaults() UpkeepDefaults {
	return UpkeepDefaults{
		CostPerChunk:          25,
		DiscountPercent:       0,
		IntervalHours:         24,
		MinIntervalHours:      20,
		GraceDays:             7,
		AutoUnclaim:           true,
		MinimumBalanceWarning: 100,
	}
}

// UpkeepDefaultsHolder exposes the current upkeep defaults and hot-reloads
// them when the config file changes on disk.
type UpkeepDefaultsHolder struct {
	current atomic.Value // holds UpkeepDefaults
}

func NewUpkeepDefaultsHolder() (*UpkeepDefaultsHolder, error) {
	v := viper.New()

	v.SetConfigName("upkeep")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/claimward/config") // Volume-mounted config
	v.AddConfigPath("/etc/claimward")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("CLAIMWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// if config file not found, use defaults
		defaults := DefaultUpkeepDefaults()
		v.SetDefault("upkeep.costPerChunk", defaults.CostPerChunk)
		v.SetDefault("upkeep.discountPercent", defaults.DiscountPercent)
		v.SetDefault("upkeep.intervalHours", defaults.IntervalHours)
		v.SetDefault("upkeep.minIntervalHours", defaults.MinIntervalHours)
		v.SetDefault("upkeep.graceDays", defaults.GraceDays)
		v.SetDefault("upkeep.autoUnclaim", defaults.AutoUnclaim)
		v.SetDefault("upkeep.minimumBalanceWarning", defaults.MinimumBalanceWarning)
	}

	var cfg UpkeepDefaults
	if err := v.UnmarshalKey("upkeep", &cfg); err != nil {
		return nil, err
	}
	if err := validateUpkeepDefaults(cfg); err != nil {
		return nil, err
	}

	holder := &UpkeepDefaultsHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated UpkeepDefaults
		if err := v.UnmarshalKey("upkeep", &updated); err != nil {
			log.Printf("[upkeep-config] reload failed: %v", err)
			return
		}
		if err := validateUpkeepDefaults(updated); err != nil {
			log.Printf("[upkeep-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[upkeep-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *UpkeepDefaultsHolder) Get() UpkeepDefaults {
	return h.current.Load().(UpkeepDefaults)
}

// NewStaticUpkeepDefaultsHolder returns a holder pinned to the given values,
// bypassing file discovery. Used by tests and embedded setups.
func NewStaticUpkeepDefaultsHolder(defaults UpkeepDefaults) *UpkeepDefaultsHolder {
	holder := &UpkeepDefaultsHolder{}
	holder.current.Store(defaults)
	return holder
}

func validateUpkeepDefaults(cfg UpkeepDefaults) error {
	if cfg.CostPerChunk < 0 {
		return errors.New("upkeep.costPerChunk cannot be negative")
	}
	if cfg.DiscountPercent < 0 || cfg.DiscountPercent > 100 {
		return errors.New("upkeep.discountPercent must be within 0..100")
	}
	if cfg.IntervalHours <= 0 {
		return errors.New("upkeep.intervalHours must be positive")
	}
	if cfg.MinIntervalHours <= 0 || cfg.MinIntervalHours > cfg.IntervalHours {
		return errors.New("upkeep.minIntervalHours must be positive and not exceed intervalHours")
	}
	if cfg.GraceDays <= 0 {
		return errors.New("upkeep.graceDays must be positive")
	}
	return nil
}
