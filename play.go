/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Seednode/cnxns/api"
	"github.com/Seednode/cnxns/chain"
	"github.com/spf13/cobra"
)

const playHelp = `Commands:
  ? <name>   search for a player
  <number>   pick a player from the last search
  undo       remove the last player from the chain
  quit       give up
`

// termView renders a session as plain text.
type termView struct {
	mu  sync.Mutex
	out io.Writer
}

func (v *termView) Render(s chain.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fmt.Fprintf(v.out, "\n  %s\n", s.Seed.Label())
	for _, row := range s.Rows {
		if !row.Locked {
			continue
		}

		marker := " "
		if row.Removable {
			marker = "*"
		}
		fmt.Fprintf(v.out, "%s   %s\n", marker, row.Label())
	}
	if s.Status == chain.InProgress {
		fmt.Fprintf(v.out, "    ...\n")
	}
	fmt.Fprintf(v.out, "  %s\n\n", s.Target.Label())

	if s.Status == chain.Completed {
		fmt.Fprintf(v.out, "Chain complete in %d steps!\n", s.Score)
	}
}

func (v *termView) Suggest(_ int, s chain.Suggestions) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s.Len() == 0 {
		fmt.Fprintln(v.out, "No players found.")
		return
	}

	i := 1
	for p := range s.All() {
		fmt.Fprintf(v.out, "%3d. %s\n", i, p.Name)
		i++
	}
}

func (v *termView) Alert(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	fmt.Fprintf(v.out, "! %s\n", message)
}

func (v *termView) Reflow() {}

// playGame runs one session reading commands from in until the chain is
// complete, the input ends, or the player quits.
func playGame(ctx context.Context, cfg *Config, in io.Reader, out io.Writer, v chain.Validator, seed, target api.Player) (*chain.Session, error) {
	view := &termView{out: out}

	session, err := chain.New(seed, target, v, view, chain.Options{
		Logf: sessionLogf(cfg),
	})
	if err != nil {
		return nil, err
	}
	defer session.Close()

	fmt.Fprintf(out, "Link %s to %s.\n%s", seed.Name, target.Name, playHelp)

	session.Start()

	var last []api.Player

	scanner := bufio.NewScanner(in)
	for session.Status() == chain.InProgress {
		fmt.Fprint(out, "> ")

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue

		case line == "quit":
			return session, nil

		case line == "help":
			fmt.Fprint(out, playHelp)

		case line == "undo":
			err := session.RemoveLast(ctx)
			switch {
			case errors.Is(err, chain.ErrSeedOnly):
				view.Alert("Nothing to undo.")
			case err != nil:
				view.Alert(err.Error())
			}

		case strings.HasPrefix(line, "?"):
			suggestions, err := session.Search(ctx, strings.TrimPrefix(line, "?"))
			if err != nil {
				view.Alert(err.Error())
				continue
			}

			last = last[:0]
			for p := range suggestions.All() {
				last = append(last, p)
			}

			view.Suggest(session.OpenRow(), suggestions)

		default:
			n, err := strconv.Atoi(line)
			if err != nil || n < 1 || n > len(last) {
				view.Alert("Pick a number from the last search, or type ? followed by a name.")
				continue
			}

			err = session.Confirm(ctx, session.OpenRow(), last[n-1])
			if err != nil && !errors.Is(err, chain.ErrNoConnection) {
				logf(cfg, "PLAY: Selection of %s failed: %v", last[n-1].ID, err)
			}
			last = last[:0]
		}
	}

	return session, scanner.Err()
}

func newPlayCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play today's challenge in the terminal.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateClient(); err != nil {
				return err
			}

			client := api.NewClient(cfg.server, cfg.prefix)

			challenge, err := client.Challenge(cmd.Context())
			if err != nil {
				return err
			}

			_, err = playGame(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), client, challenge.Player1, challenge.Player2)

			return err
		},
	}

	addClientFlags(cfg, cmd)

	return cmd
}
