package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "WAVELENGTH"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Bind           string
	Port           int
	Store          string
	PostgresURL    string
	Migrate        bool
	ListenNotify   bool
	AllowedOrigins []string
	JWTKey         string
	IdentityMaxAge time.Duration
	MaxPlayers     int
	ResyncInterval time.Duration
	RevealDuration time.Duration
	QueueTTL       time.Duration
	MatchTTL       time.Duration
	JanitorEvery   time.Duration
	RateLimit      float64
	RateBurst      int
	PublicURL      string
	Debug          bool
	PrettyLogs     bool
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	switch c.Store {
	case StoreMemory:
		if c.ListenNotify {
			return errors.New("--listen-notify needs --store=postgres")
		}
	case StorePostgres:
		if c.PostgresURL == "" {
			return errors.New("--postgres-url is required with --store=postgres")
		}
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreMemory, StorePostgres)
	}
	if c.JWTKey == "" {
		return errors.New("--jwt-key is required")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.New("--allowed-origins needs at least one origin")
	}
	if c.MaxPlayers < 2 {
		return fmt.Errorf("invalid max players (must be at least 2): %d", c.MaxPlayers)
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		return fmt.Errorf("invalid rate limit: %v/s burst %d", c.RateLimit, c.RateBurst)
	}
	for name, d := range map[string]time.Duration{
		"identity-max-age": c.IdentityMaxAge,
		"resync-interval":  c.ResyncInterval,
		"match-ttl":        c.MatchTTL,
		"janitor-interval": c.JanitorEvery,
	} {
		if d <= 0 {
			return fmt.Errorf("--%s must be positive, got %s", name, d)
		}
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid public url: %q", c.PublicURL)
		}
	}
	return nil
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// NewCommand builds the root command. Every flag can also be set through a
// WAVELENGTH_ prefixed environment variable; explicit flags win.
func NewCommand(cfg *Config, run func(ctx context.Context, cfg *Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "wavelength",
		Short: "Server for a Wavelength style party guessing game.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: WAVELENGTH_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 5000, "port to listen on (env: WAVELENGTH_PORT)")
	fs.StringVar(&cfg.Store, "store", StorePostgres, "room store, postgres or memory (env: WAVELENGTH_STORE)")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", "", "postgres connection string (env: WAVELENGTH_POSTGRES_URL)")
	fs.BoolVar(&cfg.Migrate, "migrate", true, "apply schema migrations on startup (env: WAVELENGTH_MIGRATE)")
	fs.BoolVar(&cfg.ListenNotify, "listen-notify", false, "fan out room events of other instances through postgres LISTEN/NOTIFY (env: WAVELENGTH_LISTEN_NOTIFY)")
	fs.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", nil, "comma separated browser origins allowed to call the API (env: WAVELENGTH_ALLOWED_ORIGINS)")
	fs.StringVar(&cfg.JWTKey, "jwt-key", "", "signing key of identity cookies (env: WAVELENGTH_JWT_KEY)")
	fs.DurationVar(&cfg.IdentityMaxAge, "identity-max-age", 7*24*time.Hour, "lifetime of an identity cookie (env: WAVELENGTH_IDENTITY_MAX_AGE)")
	fs.IntVar(&cfg.MaxPlayers, "max-players", 8, "capacity of party rooms (env: WAVELENGTH_MAX_PLAYERS)")
	fs.DurationVar(&cfg.ResyncInterval, "resync-interval", 3*time.Second, "how often room sockets get a full snapshot without any event (env: WAVELENGTH_RESYNC_INTERVAL)")
	fs.DurationVar(&cfg.RevealDuration, "reveal-duration", 0, "complete rounds left in reveal this long, 0 disables (env: WAVELENGTH_REVEAL_DURATION)")
	fs.DurationVar(&cfg.QueueTTL, "queue-ttl", 10*time.Minute, "expire unmatched matchmaking entries this old, 0 disables (env: WAVELENGTH_QUEUE_TTL)")
	fs.DurationVar(&cfg.MatchTTL, "match-ttl", 2*time.Minute, "how long a match result is handed back to a polling player (env: WAVELENGTH_MATCH_TTL)")
	fs.DurationVar(&cfg.JanitorEvery, "janitor-interval", 5*time.Second, "period of background chores (env: WAVELENGTH_JANITOR_INTERVAL)")
	fs.Float64Var(&cfg.RateLimit, "rate-limit", 5, "mutating requests per second per player (env: WAVELENGTH_RATE_LIMIT)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", 10, "burst of mutating requests per player (env: WAVELENGTH_RATE_BURST)")
	fs.StringVar(&cfg.PublicURL, "public-url", "http://localhost:3000", "base url of the web client, used in join links (env: WAVELENGTH_PUBLIC_URL)")
	fs.BoolVarP(&cfg.Debug, "debug", "d", false, "log debug output (env: WAVELENGTH_DEBUG)")
	fs.BoolVar(&cfg.PrettyLogs, "pretty-logs", false, "human readable logs instead of json (env: WAVELENGTH_PRETTY_LOGS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
