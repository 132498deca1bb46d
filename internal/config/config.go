package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	AIURL          string        `mapstructure:"AI_URL"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	DedupSimilarity    float64       `mapstructure:"DEDUP_SIMILARITY"`
	DedupWindow        time.Duration `mapstructure:"DEDUP_WINDOW"`
	AutoApplyThreshold float64       `mapstructure:"AUTO_APPLY_THRESHOLD"`
	AutoApplyFields    string        `mapstructure:"AUTO_APPLY_FIELDS"`
	PreferenceTTL      time.Duration `mapstructure:"PREFERENCE_TTL"`
	RulesFile          string        `mapstructure:"RULES_FILE"`

	SlackBotToken          string        `mapstructure:"SLACK_BOT_TOKEN"`
	SlackDefaultChannel    string        `mapstructure:"SLACK_DEFAULT_CHANNEL"`
	SlackEscalationChannel string        `mapstructure:"SLACK_ESCALATION_CHANNEL"`
	ActionWebhookURL       string        `mapstructure:"ACTION_WEBHOOK_URL"`
	ActionTimeout          time.Duration `mapstructure:"ACTION_TIMEOUT"`
	ActionRetries          int           `mapstructure:"ACTION_RETRIES"`
	ActionRatePerSec       float64       `mapstructure:"ACTION_RATE_PER_SEC"`

	BusinessHoursStart int    `mapstructure:"BUSINESS_HOURS_START"`
	BusinessHoursEnd   int    `mapstructure:"BUSINESS_HOURS_END"`
	BusinessTimezone   string `mapstructure:"BUSINESS_TIMEZONE"`

	RetentionSchedule string `mapstructure:"RETENTION_SCHEDULE"`
	RollupSchedule    string `mapstructure:"ROLLUP_SCHEDULE"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("SQLITE_PATH", "autofill.db")

	v.SetDefault("DEDUP_SIMILARITY", 0.80)
	v.SetDefault("DEDUP_WINDOW", "2h")
	v.SetDefault("AUTO_APPLY_THRESHOLD", 0.90)
	v.SetDefault("AUTO_APPLY_FIELDS", "phone,job_title,website,city,country")
	v.SetDefault("PREFERENCE_TTL", "2160h")

	v.SetDefault("ACTION_TIMEOUT", "10s")
	v.SetDefault("ACTION_RETRIES", 2)
	v.SetDefault("ACTION_RATE_PER_SEC", 5.0)

	v.SetDefault("BUSINESS_HOURS_START", 9)
	v.SetDefault("BUSINESS_HOURS_END", 18)
	v.SetDefault("BUSINESS_TIMEZONE", "Europe/Paris")

	v.SetDefault("RETENTION_SCHEDULE", "0 3 * * *")
	v.SetDefault("ROLLUP_SCHEDULE", "15 0 * * *")

	// Unmarshal only sees keys viper knows about; bind the ones without defaults.
	for _, key := range []string{"DATABASE_URL", "ADMIN_KEY", "AI_URL", "RULES_FILE", "SLACK_BOT_TOKEN", "SLACK_DEFAULT_CHANNEL", "SLACK_ESCALATION_CHANNEL", "ACTION_WEBHOOK_URL"} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AutoApplyFieldList splits AUTO_APPLY_FIELDS into normalised field names.
func (c Config) AutoApplyFieldList() []string {
	var out []string
	for _, f := range strings.Split(c.AutoApplyFields, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// BusinessLocation falls back to UTC when the configured zone is unknown.
func (c Config) BusinessLocation() *time.Location {
	if c.BusinessTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
