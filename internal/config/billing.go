package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds hot-reloadable billing policy.
type BillingConfig struct {
	AgingBuckets        []AgingBucket `mapstructure:"agingBuckets"`
	InvoicePrefix       string        `mapstructure:"invoicePrefix"`
	DefaultDueDays      int           `mapstructure:"defaultDueDays"`
	StalePendingMinutes int           `mapstructure:"stalePendingMinutes"`
}

// AgingBucket is an inclusive range of days overdue. A nil MaxDays is open-ended.
type AgingBucket struct {
	Label   string `mapstructure:"label"`
	MinDays int    `mapstructure:"minDays"`
	MaxDays *int   `mapstructure:"maxDays"`
}

func (b AgingBucket) Contains(days int) bool {
	if days < b.MinDays {
		return false
	}
	return b.MaxDays == nil || days <= *b.MaxDays
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		AgingBuckets: []AgingBucket{
			{Label: "current", MinDays: 0, MaxDays: intPtr(0)},
			{Label: "1-30", MinDays: 1, MaxDays: intPtr(30)},
			{Label: "31-60", MinDays: 31, MaxDays: intPtr(60)},
			{Label: "61-90", MinDays: 61, MaxDays: intPtr(90)},
			{Label: "90+", MinDays: 91, MaxDays: nil},
		},
		InvoicePrefix:       "INV",
		DefaultDueDays:      30,
		StalePendingMinutes: 60,
	}
}

func intPtr(v int) *int { return &v }

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// StaticBillingConfig returns a holder that never reloads.
func StaticBillingConfig(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/bursar/config")
	v.AddConfigPath("/etc/bursar")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BURSAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.invoicePrefix", defaults.InvoicePrefix)
	v.SetDefault("billing.defaultDueDays", defaults.DefaultDueDays)
	v.SetDefault("billing.stalePendingMinutes", defaults.StalePendingMinutes)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}

	holder := StaticBillingConfig(cfg)
	if !fileFound {
		log.Info("billing.yml not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Warn("billing config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	if len(cfg.AgingBuckets) == 0 {
		cfg.AgingBuckets = DefaultBillingConfig().AgingBuckets
	}
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func validateBillingConfig(cfg BillingConfig) error {
	if len(cfg.AgingBuckets) == 0 {
		return errors.New("billing.agingBuckets cannot be empty")
	}
	for i, bucket := range cfg.AgingBuckets {
		if strings.TrimSpace(bucket.Label) == "" {
			return errors.New("billing.agingBuckets label is required")
		}
		if bucket.MaxDays != nil && *bucket.MaxDays < bucket.MinDays {
			return errors.New("billing.agingBuckets maxDays must be >= minDays")
		}
		if i > 0 {
			prev := cfg.AgingBuckets[i-1]
			if prev.MaxDays == nil || *prev.MaxDays+1 != bucket.MinDays {
				return errors.New("billing.agingBuckets must be contiguous and ordered")
			}
		}
	}
	if cfg.AgingBuckets[0].MinDays != 0 {
		return errors.New("billing.agingBuckets must start at 0 days")
	}
	if cfg.DefaultDueDays < 0 {
		return errors.New("billing.defaultDueDays cannot be negative")
	}
	return nil
}
