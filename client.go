/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Seednode/yardbox/internal/backend"
	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/identity"
	"github.com/Seednode/yardbox/internal/investigation"
	"github.com/Seednode/yardbox/internal/reconciler"
	"github.com/Seednode/yardbox/internal/store"
)

// gameBackend is what the client commands need from a server or a local
// database.
type gameBackend interface {
	reconciler.Backend
	CreateInvestigation(ctx context.Context) (investigation.Investigation, error)
}

// statusError carries the status line shown to the player along with the
// error that caused it.
type statusError struct {
	message string
	err     error
}

func (e *statusError) Error() string { return e.message }

func (e *statusError) Unwrap() error { return e.err }

// failure reports err the way the player saw it in the status banner.
func failure(r *reconciler.Reconciler, err error) error {
	if err == nil {
		return nil
	}
	if msg := r.Snapshot().Status.Message; msg != "" {
		return &statusError{message: msg, err: err}
	}
	return &statusError{message: investigation.StatusText(err), err: err}
}

func openBackend(cfg *Config) (gameBackend, func(), error) {
	logger := newLogger(cfg)

	if cfg.server == "" && cfg.localDB != "" {
		hub := feed.NewHub(feed.WithLogger(logger))
		s, err := store.Open(cfg.localDB, store.WithPublisher(hub), store.WithLogger(logger))
		if err != nil {
			hub.Close()
			return nil, nil, err
		}

		return backend.NewLocal(s, hub), func() {
			hub.Close()
			_ = s.Close()
		}, nil
	}

	c, err := backend.New(cfg.server, backend.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return c, func() {}, nil
}

func playerID(cfg *Config) (string, error) {
	path := cfg.playerFile
	if path == "" {
		path = identity.DefaultPath()
	}
	return identity.LoadOrCreate(path)
}

// clientSession is one bootstrapped reconciler plus the backend behind it.
type clientSession struct {
	backend gameBackend
	rec     *reconciler.Reconciler
	closer  func()
}

func (s *clientSession) Close() {
	if s.rec != nil {
		s.rec.Teardown()
	}
	s.closer()
}

func openSession(cfg *Config) (*clientSession, error) {
	b, closer, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	id, err := playerID(cfg)
	if err != nil {
		closer()
		return nil, err
	}

	rec, err := reconciler.New(b, id, reconciler.WithLogger(newLogger(cfg)))
	if err != nil {
		closer()
		return nil, err
	}

	return &clientSession{backend: b, rec: rec, closer: closer}, nil
}

// withInvestigation bootstraps the investigation named by code and hands the
// reconciler to fn.
func withInvestigation(cmd *cobra.Command, cfg *Config, code string, opts reconciler.Options, fn func(r *reconciler.Reconciler) error) error {
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.rec.Bootstrap(cmd.Context(), code, opts); err != nil {
		return failure(s.rec, err)
	}

	return fn(s.rec)
}

func printOverview(w io.Writer, snap reconciler.Snapshot) {
	pr := snap.Progress()

	fmt.Fprintf(w, "Investigation %s\n", snap.Code)
	fmt.Fprintf(w, "  Alias:     %s\n", orDash(pr.Alias))
	if snap.Self != nil {
		fmt.Fprintf(w, "  Identity:  %s\n", orDash(snap.Self.Identity))
	}
	fmt.Fprintf(w, "  Evidence:  %s\n", done(pr.EvidenceSubmitted))
	fmt.Fprintf(w, "  Case file: %s\n", done(pr.CaseFileLocked))

	aliases := snap.AliasOptions()
	fmt.Fprintf(w, "Detectives (%d joined, %d with aliases)\n", len(snap.Players), len(aliases))
	for _, alias := range aliases {
		fmt.Fprintf(w, "  %s\n", alias)
	}

	if len(snap.Accusations) > 0 {
		fmt.Fprintln(w, "Recent accusations")
		printBoard(w, snap.Accusations)
	}
}

func printBoard(w io.Writer, list []investigation.Accusation) {
	for _, a := range list {
		mark := "✗"
		if a.IsCorrect {
			mark = "✓"
		}
		if a.Kind == investigation.KindReveal {
			mark = "!"
		}
		fmt.Fprintf(w, "  %s %s  %s\n", mark, a.CreatedAt.Local().Format("15:04:05"), a.Message)
	}
}

func printNotebook(w io.Writer, entries []investigation.Entry) {
	var current investigation.EvidenceType
	for _, e := range entries {
		if e.Type != current {
			current = e.Type
			fmt.Fprintf(w, "%s\n", strings.ToUpper(string(current)))
		}

		box := "[ ]"
		if e.Checked {
			box = "[x]"
		}
		switch e.Decoration {
		case investigation.DecorationScratch:
			fmt.Fprintf(w, "  %s ~%s~\n", box, e.Label)
		case investigation.DecorationUnderline:
			fmt.Fprintf(w, "  %s _%s_\n", box, e.Label)
		default:
			fmt.Fprintf(w, "  %s %s\n", box, e.Label)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func done(ok bool) string {
	if ok {
		return "locked"
	}
	return "pending"
}

// parseEvidence reads items written as type=value.
func parseEvidence(args []string) ([]investigation.EvidenceItem, error) {
	items := make([]investigation.EvidenceItem, 0, len(args))
	for _, arg := range args {
		typ, value, ok := strings.Cut(arg, "=")
		t := investigation.EvidenceType(strings.ToLower(strings.TrimSpace(typ)))
		if !ok || !t.Valid() || strings.TrimSpace(value) == "" {
			return nil, investigation.Validation("Evidence must look like weapon=Rope, got %q.", arg)
		}
		value, _ = investigation.CanonicalCard(t, strings.TrimSpace(value))
		items = append(items, investigation.EvidenceItem{Type: t, Value: value})
	}
	return items, nil
}

func newCreateCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Start a new investigation and join it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			inv, err := s.backend.CreateInvestigation(cmd.Context())
			if err != nil {
				return &statusError{message: investigation.StatusText(err), err: err}
			}

			if err := s.rec.Bootstrap(cmd.Context(), inv.Code, reconciler.Options{Players: true}); err != nil {
				return failure(s.rec, err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Investigation %s created.\n", inv.Code)
			if cfg.server != "" {
				fmt.Fprintf(w, "Invite: %s/investigation/%s\n", strings.TrimRight(cfg.server, "/"), inv.Code)
			}
			return nil
		},
	}
}

func newJoinCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "join CODE",
		Short: "Join an investigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInvestigation(cmd, cfg, args[0], reconciler.AllTables(), func(r *reconciler.Reconciler) error {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Joined investigation %s.\n", r.Snapshot().Code)
				printOverview(w, r.Snapshot())
				return nil
			})
		},
	}
}

func newStatusCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status CODE",
		Short: "Show your progress and the recent accusations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInvestigation(cmd, cfg, args[0], reconciler.AllTables(), func(r *reconciler.Reconciler) error {
				printOverview(cmd.OutOrStdout(), r.Snapshot())
				return nil
			})
		},
	}
}

func newAliasCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "alias CODE [TITLE COLOR]",
		Short: "List the free alias colors, or lock your alias",
		Args:  cobra.MatchAll(cobra.RangeArgs(1, 3), func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				return fmt.Errorf("an alias needs both a title and a color")
			}
			return nil
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInvestigation(cmd, cfg, args[0], reconciler.Options{Players: true}, func(r *reconciler.Reconciler) error {
				w := cmd.OutOrStdout()

				if len(args) == 1 {
					fmt.Fprintf(w, "Titles: %s\n", strings.Join(investigation.AliasTitles, ", "))
					fmt.Fprintf(w, "Colors: %s\n", strings.Join(r.Snapshot().AvailableColors(), ", "))
					return nil
				}

				if err := r.LockAlias(cmd.Context(), args[1], args[2]); err != nil {
					return failure(r, err)
				}
				fmt.Fprintf(w, "Alias locked: %s\n", r.Snapshot().Self.Alias())
				return nil
			})
		},
	}
}

func newIdentityCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "identity CODE [IDENTITY]",
		Short: "List the identities, or lock yours",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInvestigation(cmd, cfg, args[0], reconciler.Options{Players: true}, func(r *reconciler.Reconciler) error {
				w := cmd.OutOrStdout()

				if len(args) == 1 {
					fmt.Fprintf(w, "Identities: %s\n", strings.Join(investigation.Identities, ", "))
					return nil
				}

				if err := r.LockIdentity(cmd.Context(), strings.Join(args[1:], " ")); err != nil {
					return failure(r, err)
				}
				fmt.Fprintf(w, "Identity locked: %s\n", r.Snapshot().Self.Identity)
				return nil
			})
		},
	}
}

func newEvidenceCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "evidence CODE TYPE=VALUE...",
		Short: "Lock your initial evidence cards",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := parseEvidence(args[1:])
			if err != nil {
				return err
			}

			opts := reconciler.Options{Players: true, CaseFile: true}
			return withInvestigation(cmd, cfg, args[0], opts, func(r *reconciler.Reconciler) error {
				if err := r.SubmitEvidence(cmd.Context(), items); err != nil {
					return failure(r, err)
				}

				w := cmd.OutOrStdout()
				fmt.Fprintln(w, "Evidence locked.")
				if r.Snapshot().Progress().CaseFileLocked {
					fmt.Fprintln(w, "The case file is locked.")
				}
				return nil
			})
		},
	}
}

func newNotebookCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notebook CODE",
		Short: "Show your notebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInvestigation(cmd, cfg, args[0], reconciler.Options{Players: true}, func(r *reconciler.Reconciler) error {
				printNotebook(cmd.OutOrStdout(), r.Snapshot().NotebookPage())
				return nil
			})
		},
	}

	mark := func(use, short string, check bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " CODE TYPE VALUE",
			Short: short,
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				t := investigation.EvidenceType(strings.ToLower(args[1]))
				if !t.Valid() {
					return investigation.Validation("Unknown evidence type %q.", args[1])
				}
				value := strings.Join(args[2:], " ")

				return withInvestigation(cmd, cfg, args[0], reconciler.Options{Players: true}, func(r *reconciler.Reconciler) error {
					var err error
					if check {
						err = r.CheckNotebookItem(cmd.Context(), t, value)
					} else {
						err = r.UncheckNotebookItem(cmd.Context(), t, value)
					}
					if err != nil {
						return failure(r, err)
					}

					printNotebook(cmd.OutOrStdout(), r.Snapshot().NotebookPage())
					return nil
				})
			},
		}
	}

	cmd.AddCommand(
		mark("check", "Check off a notebook entry", true),
		mark("uncheck", "Clear a notebook entry", false),
	)

	return cmd
}

func newAccuseCmd(cfg *Config) *cobra.Command {
	var input investigation.AccusationInput

	cmd := &cobra.Command{
		Use:   "accuse CODE",
		Short: "Make an accusation on the crime computer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := reconciler.Options{Players: true, CaseFile: true, Accusations: true, AccusationLimit: reconciler.DefaultAccusationLimit}
			return withInvestigation(cmd, cfg, args[0], opts, func(r *reconciler.Reconciler) error {
				v, err := r.Accuse(cmd.Context(), input)
				if err != nil {
					return failure(r, err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), v.Message)
				return nil
			})
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&input.Alias, "alias", "", "alias of the accused, e.g. \"Captain Gold\"")
	fs.StringVar(&input.Identity, "identity", "", "identity of the accused")
	fs.StringVar(&input.Weapon, "weapon", "", "weapon, when accusing the murderer")
	fs.StringVar(&input.Location, "location", "", "location, when accusing the murderer")
	fs.StringVar(&input.Motive, "motive", "", "motive, when accusing the murderer")

	return cmd
}

// watchOptions follows the board, or the whole log when all is set.
func watchOptions(all bool) reconciler.Options {
	opts := reconciler.Options{Players: true, Accusations: true, AccusationLimit: reconciler.DefaultAccusationLimit}
	if all {
		opts.AccusationLimit = 0
	}
	return opts
}

func newWatchCmd(cfg *Config) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "watch CODE",
		Short: "Follow the accusation board live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInvestigation(cmd, cfg, args[0], watchOptions(all), func(r *reconciler.Reconciler) error {
				if err := r.Subscribe(cmd.Context()); err != nil {
					return failure(r, err)
				}
				return watchBoard(cmd.Context(), cmd.OutOrStdout(), r)
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "show every accusation instead of the most recent board")

	return cmd
}

// watchBoard reprints the board whenever the newest accusation or the status
// line changes, until ctx is done.
func watchBoard(ctx context.Context, w io.Writer, r *reconciler.Reconciler) error {
	var newest, status string

	show := func() {
		snap := r.Snapshot()

		if snap.Status.Message != status {
			status = snap.Status.Message
			if status != "" {
				fmt.Fprintf(w, "%s: %s\n", snap.Status.Severity, status)
			}
		}

		head := ""
		if len(snap.Accusations) > 0 {
			head = snap.Accusations[0].ID
		}
		if head == newest {
			return
		}
		newest = head

		fmt.Fprintf(w, "Accusations in %s\n", snap.Code)
		printBoard(w, snap.Accusations)
	}

	fmt.Fprintf(w, "Watching %s, press Ctrl+C to stop.\n", r.Snapshot().Code)
	show()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.Changes():
			show()
		}
	}
}

func registerClientCommands(cfg *Config, cmd *cobra.Command) {
	cmd.AddCommand(
		newCreateCmd(cfg),
		newJoinCmd(cfg),
		newStatusCmd(cfg),
		newAliasCmd(cfg),
		newIdentityCmd(cfg),
		newEvidenceCmd(cfg),
		newNotebookCmd(cfg),
		newAccuseCmd(cfg),
		newWatchCmd(cfg),
	)
}
