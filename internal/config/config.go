package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Env string `mapstructure:"ENV"`

	FHIRBaseURL string `mapstructure:"FHIR_BASE_URL"`
	FHIROrgID   string `mapstructure:"FHIR_ORG_ID"`

	SFInstanceURL     string `mapstructure:"SF_INSTANCE_URL"`
	SFLoginURL        string `mapstructure:"SF_LOGIN_URL"`
	SFClientID        string `mapstructure:"SF_CLIENT_ID"`
	SFUsername        string `mapstructure:"SF_USERNAME"`
	SFPrivateKeyFile  string `mapstructure:"SF_PRIVATE_KEY_FILE"`
	SFAPIVersion      string `mapstructure:"SF_API_VERSION"`
	OperatingHoursID  string `mapstructure:"SF_OPERATING_HOURS_ID"`
	ResourceAccountID string `mapstructure:"SF_RESOURCE_ACCOUNT_ID"`
	ProfileIDs        []string

	RateLimitRPS float64 `mapstructure:"RATE_LIMIT_RPS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("FHIR_BASE_URL", "https://hapi.fhir.org/baseR4")
	v.SetDefault("SF_LOGIN_URL", "https://login.salesforce.com")
	v.SetDefault("SF_API_VERSION", "61.0")
	v.SetDefault("RATE_LIMIT_RPS", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("FHIR_BASE_URL")
	v.BindEnv("FHIR_ORG_ID")
	v.BindEnv("SF_INSTANCE_URL")
	v.BindEnv("SF_LOGIN_URL")
	v.BindEnv("SF_CLIENT_ID")
	v.BindEnv("SF_USERNAME")
	v.BindEnv("SF_PRIVATE_KEY_FILE")
	v.BindEnv("SF_API_VERSION")
	v.BindEnv("SF_OPERATING_HOURS_ID")
	v.BindEnv("SF_RESOURCE_ACCOUNT_ID")
	v.BindEnv("SF_PROFILE_IDS")
	v.BindEnv("RATE_LIMIT_RPS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if profiles := v.GetString("SF_PROFILE_IDS"); profiles != "" {
		for _, id := range strings.Split(profiles, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.ProfileIDs = append(cfg.ProfileIDs, id)
			}
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that every field a full pipeline run needs is present.
// Org-specific Salesforce IDs (operating hours, resource account, user
// profiles) have no sensible defaults and must be configured per org.
func (c *Config) Validate() error {
	required := []struct {
		name, value string
	}{
		{"FHIR_ORG_ID", c.FHIROrgID},
		{"SF_INSTANCE_URL", c.SFInstanceURL},
		{"SF_CLIENT_ID", c.SFClientID},
		{"SF_USERNAME", c.SFUsername},
		{"SF_PRIVATE_KEY_FILE", c.SFPrivateKeyFile},
		{"SF_OPERATING_HOURS_ID", c.OperatingHoursID},
		{"SF_RESOURCE_ACCOUNT_ID", c.ResourceAccountID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	if len(c.ProfileIDs) == 0 {
		return fmt.Errorf("SF_PROFILE_IDS must list at least one profile id")
	}
	return nil
}
