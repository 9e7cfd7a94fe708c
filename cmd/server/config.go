// cmd/server/config.go
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type config struct {
	bind          string
	port          int
	sweepInterval time.Duration
	redisAddr     string
	cacheTTL      time.Duration
	verbose       bool
}

func (c *config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.sweepInterval <= 0 {
		return fmt.Errorf("sweep-interval must be positive: %s", c.sweepInterval)
	}
	return nil
}

// newCmd builds the root command. Every flag can also be set through the
// environment with a GUESSR_ prefix (e.g. GUESSR_PORT).
func newCmd(cfg *config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("GUESSR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "guessr-server",
		Short:         "Session server for the guess-the-song party game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: GUESSR_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 3000, "port to listen on (env: GUESSR_PORT)")
	fs.DurationVar(&cfg.sweepInterval, "sweep-interval", time.Minute, "how often empty lobbies are reaped (env: GUESSR_SWEEP_INTERVAL)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for the playlist cache, empty disables caching (env: GUESSR_REDIS_ADDR)")
	fs.DurationVar(&cfg.cacheTTL, "cache-ttl", 10*time.Minute, "lifetime of cached playlist lookups (env: GUESSR_CACHE_TTL)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "enable debug logging (env: GUESSR_VERBOSE)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}
