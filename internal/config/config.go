// Package config loads server configuration from AVAMON_* environment variables,
// overridden by command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"

	"github.com/and161185/avamon/internal/limiter"
	"github.com/and161185/avamon/internal/schedule"
)

// Config is the server configuration.
type Config struct {
	GRPCAddr string `env:"AVAMON_GRPC_ADDR" envDefault:":8443"`
	HTTPAddr string `env:"AVAMON_HTTP_ADDR" envDefault:":8080"`
	// DSN selects PostgreSQL storage. Empty runs on the in-memory store.
	DSN     string `env:"AVAMON_DSN"`
	TLSCert string `env:"AVAMON_TLS_CERT"`
	TLSKey  string `env:"AVAMON_TLS_KEY"`

	JWTKey       string        `env:"AVAMON_JWT_KEY"`
	AccessTTL    time.Duration `env:"AVAMON_ACCESS_TTL" envDefault:"15m"`
	ChallengeTTL time.Duration `env:"AVAMON_CHALLENGE_TTL" envDefault:"5m"`
	Admins       []string      `env:"AVAMON_ADMINS" envSeparator:","`

	LoginWindow   time.Duration `env:"AVAMON_LOGIN_WINDOW" envDefault:"15m"`
	LoginMaxFails int           `env:"AVAMON_LOGIN_MAX_FAILS" envDefault:"5"`
	LoginBlock    time.Duration `env:"AVAMON_LOGIN_BLOCK" envDefault:"15m"`

	ResetTime string `env:"AVAMON_RESET_TIME" envDefault:"05:30"`
	ResetZone string `env:"AVAMON_RESET_ZONE" envDefault:"Asia/Kolkata"`
	SeedFile  string `env:"AVAMON_SEED_FILE"`

	RNGDelay      time.Duration `env:"AVAMON_RNG_DELAY" envDefault:"2s"`
	StaleAfter    time.Duration `env:"AVAMON_STALE_AFTER" envDefault:"10m"`
	ResubmitEvery time.Duration `env:"AVAMON_RESUBMIT_EVERY" envDefault:"1m"`

	IdempotencyCache int `env:"AVAMON_IDEMPOTENCY_CACHE" envDefault:"4096"`

	OTelEnabled  bool   `env:"AVAMON_OTEL_ENABLED" envDefault:"true"`
	OTelEndpoint string `env:"AVAMON_OTEL_ENDPOINT"`

	Dev bool `env:"AVAMON_DEV"`
}

// Load parses the environment and then args. A flag that is set wins over its variable.
func Load(args []string) (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("avamon-server", flag.ContinueOnError)
	fs.StringVar(&c.GRPCAddr, "addr", c.GRPCAddr, "gRPC listen address")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP listen address (empty disables)")
	fs.StringVar(&c.DSN, "dsn", c.DSN, "PostgreSQL DSN (empty uses in-memory storage)")
	fs.StringVar(&c.JWTKey, "jwt-key", c.JWTKey, "HS256 signing key (required)")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "access token TTL")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "TLS certificate (PEM)")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "TLS private key (PEM)")
	fs.StringVar(&c.SeedFile, "seed", c.SeedFile, "catalog seed TOML (empty uses the embedded seed)")
	admins := fs.String("admins", strings.Join(c.Admins, ","), "comma-separated admin wallet addresses")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "development logging")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	c.Admins = splitList(*admins)

	return c, c.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks required values and cross-field constraints.
func (c Config) Validate() error {
	var errList []error
	if c.JWTKey == "" {
		errList = append(errList, errors.New("missing jwt signing key (AVAMON_JWT_KEY or -jwt-key)"))
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		errList = append(errList, errors.New("tls cert and key must be set together"))
	}
	for _, a := range c.Admins {
		if !common.IsHexAddress(a) {
			errList = append(errList, fmt.Errorf("bad admin address %q", a))
		}
	}
	if _, err := c.Anchor(); err != nil {
		errList = append(errList, err)
	}
	if c.AccessTTL <= 0 || c.ChallengeTTL <= 0 {
		errList = append(errList, errors.New("token TTLs must be positive"))
	}
	if c.IdempotencyCache <= 0 {
		errList = append(errList, errors.New("idempotency cache size must be positive"))
	}
	return errors.Join(errList...)
}

// Anchor returns the daily reset anchor.
func (c Config) Anchor() (schedule.Anchor, error) {
	return schedule.ParseAnchor(c.ResetTime, c.ResetZone)
}

// AdminAddresses returns the parsed admin set.
func (c Config) AdminAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Admins))
	for _, a := range c.Admins {
		out = append(out, common.HexToAddress(a))
	}
	return out
}

// LoginPolicy returns the login limiter policy.
func (c Config) LoginPolicy() limiter.Policy {
	return limiter.Policy{Window: c.LoginWindow, MaxFails: c.LoginMaxFails, BlockFor: c.LoginBlock}
}

// TLS reports whether the gRPC listener serves TLS.
func (c Config) TLS() bool { return c.TLSCert != "" }
