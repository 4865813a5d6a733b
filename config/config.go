package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Email    EmailConfig    `mapstructure:"email"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Queue    QueueConfig    `mapstructure:"queue"`
	OSS      OSSConfig      `mapstructure:"oss"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	PayPal   PayPalConfig   `mapstructure:"paypal"`
	Plans    PlansConfig    `mapstructure:"plans"`
	Essay    EssayConfig    `mapstructure:"essay"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type QueueConfig struct {
	WebhookQueue string `mapstructure:"webhook_queue"`
	MaxWorkers   int    `mapstructure:"max_workers"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type StripeConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type PayPalConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	WebhookID    string `mapstructure:"webhook_id"`
	Sandbox      bool   `mapstructure:"sandbox"`
	ReturnURL    string `mapstructure:"return_url"`
	CancelURL    string `mapstructure:"cancel_url"`
}

type PlansConfig struct {
	Tiers map[string]PlanTier `mapstructure:"tiers"`
}

// PlanTier describes one subscription tier. EssayQuota -1 means unlimited.
type PlanTier struct {
	EssayQuota    int     `mapstructure:"essay_quota"`
	MonthlyPrice  float64 `mapstructure:"monthly_price"`
	AnnualPrice   float64 `mapstructure:"annual_price"`
	StripePriceID string  `mapstructure:"stripe_price_id"`
	PayPalPlanID  string  `mapstructure:"paypal_plan_id"`
}

type EssayConfig struct {
	MinWordCount int `mapstructure:"min_word_count"`
	MaxWordCount int `mapstructure:"max_word_count"`
}

func Load(configPath string) (*Config, error) {
	// Prefer config.local.yaml (holds real keys, never committed).
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Essay.MinWordCount == 0 {
		cfg.Essay.MinWordCount = 500
	}
	if cfg.Essay.MaxWordCount == 0 {
		cfg.Essay.MaxWordCount = 10000
	}
	if cfg.Queue.WebhookQueue == "" {
		cfg.Queue.WebhookQueue = "webhook_events"
	}
	if cfg.Queue.MaxWorkers == 0 {
		cfg.Queue.MaxWorkers = 4
	}
	if cfg.Plans.Tiers == nil {
		cfg.Plans.Tiers = map[string]PlanTier{
			"free":       {EssayQuota: 2},
			"essentials": {EssayQuota: 5, MonthlyPrice: 29.99, AnnualPrice: 299.99},
			"pro":        {EssayQuota: -1, MonthlyPrice: 49.99, AnnualPrice: 499.99},
		}
	}
}

// Validate checks that every enabled payment provider has the per-tier
// price/plan identifiers it needs. A paid tier without one would only fail
// at charge time, so the server refuses to start instead.
func (c *Config) Validate() error {
	for name, tier := range c.Plans.Tiers {
		if name == "free" {
			continue
		}
		if c.Stripe.Enabled && tier.StripePriceID == "" {
			return fmt.Errorf("stripe price id not configured for tier %q", name)
		}
		if c.PayPal.Enabled && tier.PayPalPlanID == "" {
			return fmt.Errorf("paypal plan id not configured for tier %q", name)
		}
	}
	if c.Stripe.Enabled && (c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "") {
		return fmt.Errorf("stripe enabled but secret_key/webhook_secret missing")
	}
	if c.PayPal.Enabled && (c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "") {
		return fmt.Errorf("paypal enabled but client credentials missing")
	}
	return nil
}

// FreeQuota returns the free tier essay ceiling.
func (c *Config) FreeQuota() int {
	return c.Plans.Tiers["free"].EssayQuota
}

// TierQuota returns the essay ceiling for a tier, falling back to free.
func (c *Config) TierQuota(tier string) int {
	t, ok := c.Plans.Tiers[tier]
	if !ok {
		return c.FreeQuota()
	}
	return t.EssayQuota
}
