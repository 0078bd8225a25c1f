package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ActionKindConfig is the file representation of a gated action kind.
type ActionKindConfig struct {
	Name               string `mapstructure:"name" yaml:"name"`
	FreeQuotaPerPeriod int    `mapstructure:"free_quota_per_period" yaml:"free_quota_per_period"`
	Period             string `mapstructure:"period" yaml:"period"`
	TokenCost          string `mapstructure:"token_cost" yaml:"token_cost"`
	AllowsSelfTarget   bool   `mapstructure:"allows_self_target" yaml:"allows_self_target"`
	NormalizeTarget    string `mapstructure:"normalize_target" yaml:"normalize_target,omitempty"`
}

type CatalogConfig struct {
	Actions []ActionKindConfig `mapstructure:"actions" yaml:"actions"`
}

// DefaultCatalogConfig mirrors the product rules: one free vote per UTC day,
// extra votes cost one token, clans cost ten tokens and have no free quota.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		Actions: []ActionKindConfig{
			{
				Name:               "vote",
				FreeQuotaPerPeriod: 1,
				Period:             "24h",
				TokenCost:          "1",
				AllowsSelfTarget:   false,
			},
			{
				Name:               "clan_create",
				FreeQuotaPerPeriod: 0,
				Period:             "24h",
				TokenCost:          "10",
				AllowsSelfTarget:   true,
				NormalizeTarget:    "slug",
			},
		},
	}
}

// LoadCatalogConfig reads the action catalog once at startup. The catalog is
// immutable for the lifetime of the process, so the file is never watched.
func LoadCatalogConfig(cfg Config) (CatalogConfig, error) {
	v := viper.New()

	if path := strings.TrimSpace(cfg.CatalogFile); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("catalog")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/mlgledger")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MLGLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfg.CatalogFile != "" {
			return CatalogConfig{}, fmt.Errorf("read catalog config: %w", err)
		}
		return DefaultCatalogConfig(), nil
	}

	var out CatalogConfig
	if err := v.Unmarshal(&out); err != nil {
		return CatalogConfig{}, fmt.Errorf("decode catalog config: %w", err)
	}
	if len(out.Actions) == 0 {
		return CatalogConfig{}, errors.New("catalog.actions cannot be empty")
	}
	return out, nil
}
