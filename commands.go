/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/Seednode/cnxns/api"
	"github.com/Seednode/cnxns/store"
	"github.com/spf13/cobra"
)

const kindAll = "all"

func importKinds(kind string) ([]store.Kind, error) {
	if kind == kindAll {
		return store.Kinds, nil
	}

	if !slices.Contains(store.Kinds, store.Kind(kind)) {
		return nil, fmt.Errorf("%w: %q (want one of %v or %q)", store.ErrUnknownKind, kind, store.Kinds, kindAll)
	}

	return []store.Kind{store.Kind(kind)}, nil
}

// importPath returns where to read kind from. With "all", path is a
// directory holding one <kind>.csv per layout.
func importPath(kind string, k store.Kind, path string) string {
	if kind == kindAll {
		return filepath.Join(path, string(k)+".csv")
	}

	return path
}

func runImport(ctx context.Context, cfg *Config, repo store.Repository, kind, path string, out io.Writer) error {
	kinds, err := importKinds(kind)
	if err != nil {
		return err
	}

	for _, k := range kinds {
		startTime := time.Now()

		f, err := openImport(importPath(kind, k, path))
		if err != nil {
			return err
		}

		cr := &countingReader{r: f}
		n, err := store.Import(ctx, repo, k, cr)
		f.Close()
		if err != nil {
			return fmt.Errorf("import %s: %w", k, err)
		}

		fmt.Fprintf(out, "Imported %d %s (%s)\n", n, k, humanReadableSize(cr.n))

		logf(cfg, "IMPORT: %d %s in %s", n, k, time.Since(startTime).Round(time.Microsecond))
	}

	return nil
}

func newImportCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import <players|teams|matches|appearances|all> <file|dir|->",
		Short: "Load CSV data into the database.",
		Long: `Load CSV data into the database.

With "all", the path is a directory containing players.csv, teams.csv,
matches.csv and appearances.csv, which are imported in that order.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLite(cfg.database)
			if err != nil {
				return err
			}
			defer db.Close()

			return runImport(cmd.Context(), cfg, db, args[0], args[1], cmd.OutOrStdout())
		},
	}
}

func newDailyCmd(cfg *Config) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Show the challenge for a day, selecting one if needed.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now()
			if date != "" {
				var err error
				day, err = time.ParseInLocation(time.DateOnly, date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", date, err)
				}
			}

			db, err := store.NewSQLite(cfg.database)
			if err != nil {
				return err
			}
			defer db.Close()

			c, err := db.CreateChallenge(cmd.Context(), day, cfg.minMatches)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s) to %s (%s)\n",
				c.Date.Format(time.DateOnly),
				c.Player1.Name, c.Player1.ID,
				c.Player2.Name, c.Player2.ID,
			)

			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&date, "date", "", "day to select for, as YYYY-MM-DD (default today)")
	fs.IntVar(&cfg.minMatches, "min-matches", 100, "appearances a player needs before being picked (env: CNXNS_MIN_MATCHES)")

	return cmd
}

func printCareer(out io.Writer, career []api.CareerEntry) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TEAM\tSEASONS\tMATCHES")
	for _, e := range career {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Team, e.Seasons, e.Matches)
	}
	tw.Flush()
}

func addClientFlags(cfg *Config, cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&cfg.server, "server", "s", "http://localhost:8080", "server to play against (env: CNXNS_SERVER)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path prefix the server is mounted under (env: CNXNS_PREFIX)")
}

func newCareerCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "career <player-id>",
		Short: "Print the teams a player appeared for.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateClient(); err != nil {
				return err
			}

			career, err := api.NewClient(cfg.server, cfg.prefix).Career(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printCareer(cmd.OutOrStdout(), career)

			return nil
		},
	}

	addClientFlags(cfg, cmd)

	return cmd
}
