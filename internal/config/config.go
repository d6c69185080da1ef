package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port         int           `env:"PORT" env-default:"3000"`
	MasterSecret string        `env:"MASTER_SECRET"`
	GinMode      string        `env:"GIN_MODE" env-default:"release"`
	TLSCertFile  string        `env:"TLS_CERT_FILE"`
	TLSKeyFile   string        `env:"TLS_KEY_FILE"`
	TokenIssuer  string        `env:"TOKEN_ISSUER" env-default:"push-device-service"`
	TokenExpiry  time.Duration `env:"TOKEN_EXPIRY" env-default:"1h"`

	Log Log

	StoreDriver    string `env:"STORE_DRIVER" env-default:"memory"`
	StoreStateFile string `env:"STORE_STATE_FILE"`
	BoltPath       string `env:"BOLT_PATH" env-default:"data/devices.db"`
	DatabaseDSN    string `env:"DATABASE_DSN"`

	UserStoreDriver string `env:"USERSTORE_DRIVER" env-default:"static"`
	UsersFile       string `env:"USERSTORE_USERS"`
	LDAP            LDAP

	PublicHost      string        `env:"PUBLIC_HOST" env-default:"https://localhost:9443"`
	BasePath        string        `env:"BASE_PATH" env-default:"/api/users/v1"`
	TenantDomain    string        `env:"TENANT_DOMAIN" env-default:"carbon.super"`
	ChallengeTTL    time.Duration `env:"CHALLENGE_TTL" env-default:"5m"`
	JanitorSchedule string        `env:"JANITOR_SCHEDULE" env-default:"@every 1m"`
	MobileRateLimit int           `env:"MOBILE_RATE_LIMIT" env-default:"30"`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES" env-separator:","`
}

type Log struct {
	Level string `env:"LOG_LEVEL" env-default:"info"`
	File  string `env:"LOG_FILE"`
	Dev   bool   `env:"LOG_DEV" env-default:"false"`
}

type LDAP struct {
	URL          string `env:"LDAP_URL"`
	BindDN       string `env:"LDAP_BIND_DN"`
	BindPassword string `env:"LDAP_BIND_PASSWORD"`
	BaseDN       string `env:"LDAP_BASE_DN"`
	UserFilter   string `env:"LDAP_USER_FILTER"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT")
	}
	if c.MasterSecret == "" {
		return fmt.Errorf("MASTER_SECRET is required")
	}
	if c.TokenExpiry <= 0 {
		return fmt.Errorf("invalid TOKEN_EXPIRY")
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("invalid CHALLENGE_TTL")
	}
	if c.MobileRateLimit <= 0 {
		return fmt.Errorf("invalid MOBILE_RATE_LIMIT")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	switch c.StoreDriver {
	case "memory", "bolt":
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for the postgres store")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.UserStoreDriver {
	case "static":
	case "ldap":
		if c.LDAP.URL == "" || c.LDAP.BaseDN == "" {
			return fmt.Errorf("LDAP_URL and LDAP_BASE_DN are required for the ldap user store")
		}
	default:
		return fmt.Errorf("invalid USERSTORE_DRIVER %q", c.UserStoreDriver)
	}

	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) != nil {
			continue
		}
		if _, _, err := net.ParseCIDR(proxy); err != nil {
			return fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
		}
	}

	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("BASE_PATH must start with /")
	}
	return nil
}
