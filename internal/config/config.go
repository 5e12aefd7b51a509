package config

import (
	"errors"
	"strings"
	"time"

	"github.com/nmkhang/authcore/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr     = ":3000"
	StorageBackendRedis   = "redis"
	StorageBackendMemory  = "memory"
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	ReplicaDsn      string `mapstructure:"replicaDsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

// PasswordPolicyConfig drives the pure password policy check; nothing about
// the policy is hard-coded elsewhere.
type PasswordPolicyConfig struct {
	MinLength        int  `mapstructure:"minLength"`
	MaxLength        int  `mapstructure:"maxLength"`
	RequireUppercase bool `mapstructure:"requireUppercase"`
	RequireLowercase bool `mapstructure:"requireLowercase"`
	RequireDigit     bool `mapstructure:"requireDigit"`
	RequireSymbol    bool `mapstructure:"requireSymbol"`
	HistorySize      int  `mapstructure:"historySize"`
	ValidityDays     int  `mapstructure:"validityDays"`
}

func (c PasswordPolicyConfig) Validity() time.Duration {
	return time.Duration(c.ValidityDays) * 24 * time.Hour
}

type LockoutConfig struct {
	Threshold     int           `mapstructure:"threshold"`
	IPThreshold   int           `mapstructure:"ipThreshold"`
	Duration      time.Duration `mapstructure:"duration"`
	FailureWindow time.Duration `mapstructure:"failureWindow"`
}

type RateLimitConfig struct {
	Window time.Duration `mapstructure:"window"`
	// Quotas maps action → tier → requests per window.
	Quotas       map[string]map[string]int `mapstructure:"quotas"`
	DefaultQuota int                       `mapstructure:"defaultQuota"`
}

type SessionConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	RememberMeTTL time.Duration `mapstructure:"rememberMeTTL"`
	MaxConcurrent int           `mapstructure:"maxConcurrent"`
}

type MFAConfig struct {
	Issuer string `mapstructure:"issuer"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
	CAFile   string `mapstructure:"caFile"`
}

type MailConfig struct {
	Backend string     `mapstructure:"backend"`
	From    string     `mapstructure:"from"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

type Config struct {
	Debug           bool                 `mapstructure:"debug"`
	SiteName        string               `mapstructure:"siteName"`
	MasterKey       string               `mapstructure:"masterKey"`
	ListenAddr      string               `mapstructure:"listenAddr"`
	HealthCheckAddr string               `mapstructure:"healthCheckAddr"`
	AllowOrigins    []string             `mapstructure:"allowOrigins"`
	AllowedIPNets   []string             `mapstructure:"allowedIPNets"`
	StorageBackend  string               `mapstructure:"storageBackend"`
	Redis           RedisConfig          `mapstructure:"redis"`
	MySQL           MySQLConfig          `mapstructure:"mysql"`
	PasswordPolicy  PasswordPolicyConfig `mapstructure:"passwordPolicy"`
	Lockout         LockoutConfig        `mapstructure:"lockout"`
	RateLimit       RateLimitConfig      `mapstructure:"rateLimit"`
	Session         SessionConfig        `mapstructure:"session"`
	MFA             MFAConfig            `mapstructure:"mfa"`
	Mail            MailConfig           `mapstructure:"mail"`
}

func (c *Config) Sanitize() error {
	if c.MasterKey == "" {
		return errors.New("masterKey is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.HealthCheckAddr == "" {
		c.HealthCheckAddr = params.HealthCheckServerAddr
	}
	if c.StorageBackend == "" {
		c.StorageBackend = StorageBackendRedis
	}
	if c.PasswordPolicy.MinLength == 0 {
		c.PasswordPolicy.MinLength = params.DefaultPasswordMinLength
	}
	if c.PasswordPolicy.MaxLength == 0 {
		c.PasswordPolicy.MaxLength = params.DefaultPasswordMaxLength
	}
	if c.PasswordPolicy.HistorySize == 0 {
		c.PasswordPolicy.HistorySize = params.DefaultPasswordHistorySize
	}
	if c.PasswordPolicy.ValidityDays == 0 {
		c.PasswordPolicy.ValidityDays = int(params.DefaultPasswordValidity / (24 * time.Hour))
	}
	if c.Lockout.Threshold == 0 {
		c.Lockout.Threshold = params.DefaultLockoutThreshold
	}
	if c.Lockout.IPThreshold == 0 {
		c.Lockout.IPThreshold = params.DefaultIPLockoutThreshold
	}
	if c.Lockout.Duration == 0 {
		c.Lockout.Duration = params.DefaultLockoutDuration
	}
	if c.Lockout.FailureWindow == 0 {
		c.Lockout.FailureWindow = params.DefaultFailureWindow
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = params.DefaultRateWindow
	}
	if c.RateLimit.DefaultQuota == 0 {
		c.RateLimit.DefaultQuota = params.DefaultRateLimitQuota
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = params.DefaultSessionTTL
	}
	if c.Session.RememberMeTTL == 0 {
		c.Session.RememberMeTTL = params.DefaultRememberMeTTL
	}
	if c.Session.MaxConcurrent == 0 {
		c.Session.MaxConcurrent = params.DefaultMaxConcurrent
	}
	if c.MFA.Issuer == "" {
		c.MFA.Issuer = c.SiteName
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
