/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	database       string
	minMatches     int
	port           int
	prefix         string
	profile        bool
	searchDelay    time.Duration
	server         string
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.database == "" {
		return errors.New("--database must not be empty")
	}
	if c.minMatches < 0 {
		return fmt.Errorf("invalid minimum matches (must be 0 or greater): %d", c.minMatches)
	}
	if c.searchDelay < 0 {
		return fmt.Errorf("invalid search delay (must not be negative): %s", c.searchDelay)
	}
	return nil
}

func (c *Config) validateClient() error {
	u, err := url.Parse(c.server)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server url %q: scheme must be http or https", c.server)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server url %q: missing host", c.server)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// bindFlags lets every flag in fs be set through a CNXNS_ environment
// variable, unless it was given on the command line.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("CNXNS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "cnxns",
		Short:         "A daily football trivia game: link two players through the teammates between them.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(v, cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.StringVarP(&cfg.database, "database", "d", "cnxns.db", "path to sqlite database (env: CNXNS_DATABASE)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: CNXNS_VERBOSE)")

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: CNXNS_BIND)")
	fs.IntVar(&cfg.minMatches, "min-matches", 100, "appearances a player needs before being picked for a daily challenge (env: CNXNS_MIN_MATCHES)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: CNXNS_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: CNXNS_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: CNXNS_PROFILE)")
	fs.DurationVar(&cfg.searchDelay, "search-delay", 300*time.Millisecond, "quiet period before a typed search is sent (env: CNXNS_SEARCH_DELAY)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle game sessions are ended (env: CNXNS_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: CNXNS_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: CNXNS_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: CNXNS_VERSION)")

	cmd.AddCommand(
		newImportCmd(cfg),
		newDailyCmd(cfg),
		newPlayCmd(cfg),
		newCareerCmd(cfg),
	)

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("cnxns v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
