/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package reconciler keeps a local, near-real-time view of one
// investigation. It merges the initial bulk load, pushed row changes and the
// results of the player's own writes into three projections: players, the
// case file and the accusation log.
package reconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
)

// DefaultAccusationLimit is the size of the accusation board.
const DefaultAccusationLimit = 6

var (
	ErrBusy = errors.New("another action is still in progress")

	// ErrStale is returned when the session was torn down or switched to
	// another code while a call was in flight. Its result was discarded.
	ErrStale = errors.New("investigation changed while loading")

	errNoCode  = investigation.Validation("Enter an investigation code.")
	errBadCode = investigation.Validation("Enter a valid investigation code.")
	errNoSelf  = investigation.Validation("Join the investigation first.")
)

// Options selects what a view needs. Players and the case file follow
// inserts and updates; accusations follow inserts only.
type Options struct {
	Players     bool
	CaseFile    bool
	Accusations bool

	// AccusationLimit caps the loaded and displayed log, newest first.
	// Zero or less keeps every record.
	AccusationLimit int
}

// AllTables loads and watches everything, with the board-sized log.
func AllTables() Options {
	return Options{Players: true, CaseFile: true, Accusations: true, AccusationLimit: DefaultAccusationLimit}
}

func (o Options) tables() []feed.Table {
	var tables []feed.Table
	if o.Players {
		tables = append(tables, feed.TablePlayers)
	}
	if o.CaseFile {
		tables = append(tables, feed.TableCaseFiles)
	}
	if o.Accusations {
		tables = append(tables, feed.TableAccusations)
	}
	return tables
}

type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Status is the single banner shown to the player.
type Status struct {
	Severity Severity
	Message  string
}

type Reconciler struct {
	backend  Backend
	playerID string
	logger   *slog.Logger

	mu          sync.Mutex
	code        string
	opts        Options
	gen         uint64
	loaded      bool
	players     []investigation.Player
	caseFile    *investigation.CaseFile
	accusations []investigation.Accusation
	status      Status
	busy        bool
	subs        map[feed.Table]Subscription

	wg      sync.WaitGroup
	changes chan struct{}
}

type Option func(*Reconciler)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// New returns a reconciler acting as playerID. A nil backend is a
// configuration error.
func New(backend Backend, playerID string, opts ...Option) (*Reconciler, error) {
	if backend == nil {
		return nil, investigation.ErrNotConfigured
	}
	if playerID == "" {
		return nil, investigation.Validation("Missing player id.")
	}

	r := &Reconciler{
		backend:  backend,
		playerID: playerID,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs:     make(map[feed.Table]Subscription),
		changes:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Reconciler) PlayerID() string {
	return r.playerID
}

// Changes signals after the state changed. Signals are coalesced: a reader
// should take a fresh Snapshot after each one.
func (r *Reconciler) Changes() <-chan struct{} {
	return r.changes
}

func (r *Reconciler) notifyLocked() {
	select {
	case r.changes <- struct{}{}:
	default:
	}
}

func (r *Reconciler) setStatusLocked(sev Severity, msg string) {
	r.status = Status{Severity: sev, Message: msg}
	r.notifyLocked()
}

func (r *Reconciler) failLocked(err error) {
	r.setStatusLocked(SeverityError, investigation.StatusText(err))
}

// Bootstrap loads the investigation identified by code and registers the
// player in it. Switching to a different code tears down the channels and
// state of the previous one first. Failures are not retried.
func (r *Reconciler) Bootstrap(ctx context.Context, code string, opts Options) error {
	code = investigation.NormalizeCode(code)

	r.mu.Lock()
	if code == "" {
		r.failLocked(errNoCode)
		r.mu.Unlock()
		return errNoCode
	}
	if !investigation.ValidJoinCode(code) {
		r.failLocked(errBadCode)
		r.mu.Unlock()
		return errBadCode
	}

	var stale []Subscription
	if code != r.code {
		stale = r.resetLocked(code)
	}
	r.opts = opts
	gen := r.gen
	r.mu.Unlock()

	r.closeAll(stale)

	err := r.load(ctx, code, opts, gen)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		return ErrStale
	}
	if err != nil {
		r.logger.Warn("bootstrap failed", "code", code, "error", err)
		r.failLocked(err)
		return err
	}
	r.loaded = true
	r.status = Status{}
	r.notifyLocked()
	return nil
}

func (r *Reconciler) load(ctx context.Context, code string, opts Options, gen uint64) error {
	if _, err := r.backend.FetchInvestigation(ctx, code); err != nil {
		if errors.Is(err, investigation.ErrNotFound) {
			return investigation.NotFound("Investigation not found.")
		}
		return investigation.Remote(err)
	}

	self, err := r.backend.UpsertPlayer(ctx, code, r.playerID)
	if err != nil {
		return investigation.Remote(err)
	}

	var (
		players     []investigation.Player
		caseFile    *investigation.CaseFile
		accusations []investigation.Accusation
	)

	g, gctx := errgroup.WithContext(ctx)
	if opts.Players {
		g.Go(func() error {
			var err error
			players, err = r.backend.FetchPlayers(gctx, code)
			return err
		})
	}
	if opts.CaseFile {
		g.Go(func() error {
			cf, err := r.backend.FetchCaseFile(gctx, code)
			if errors.Is(err, investigation.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			caseFile = &cf
			return nil
		})
	}
	if opts.Accusations {
		g.Go(func() error {
			var err error
			accusations, err = r.backend.FetchAccusations(gctx, code, opts.AccusationLimit)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return investigation.Remote(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		return nil
	}

	r.mergePlayerLocked(self)
	for _, p := range players {
		r.mergePlayerLocked(p)
	}
	if caseFile != nil {
		r.mergeCaseFileLocked(*caseFile)
	}
	r.mergeAccusationsLocked(accusations)
	r.notifyLocked()

	return nil
}

// resetLocked switches to code, dropping the previous state. The returned
// subscriptions must be closed by the caller once the lock is released.
func (r *Reconciler) resetLocked(code string) []Subscription {
	stale := r.detachLocked()
	r.code = code
	r.loaded = false
	r.players = nil
	r.caseFile = nil
	r.accusations = nil
	r.status = Status{}
	r.busy = false
	r.notifyLocked()
	return stale
}

// detachLocked invalidates in-flight work and hands back the open
// subscriptions.
func (r *Reconciler) detachLocked() []Subscription {
	r.gen++
	stale := make([]Subscription, 0, len(r.subs))
	for table, sub := range r.subs {
		stale = append(stale, sub)
		delete(r.subs, table)
	}
	return stale
}

func (r *Reconciler) closeAll(subs []Subscription) {
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			r.logger.Debug("closing subscription", "error", err)
		}
	}
}

// Subscribe opens one change channel per table selected at Bootstrap. Tables
// that already have an open channel for the current code are left alone.
func (r *Reconciler) Subscribe(ctx context.Context) error {
	r.mu.Lock()
	code, gen := r.code, r.gen
	if code == "" {
		r.failLocked(errNoCode)
		r.mu.Unlock()
		return errNoCode
	}
	var missing []feed.Table
	for _, table := range r.opts.tables() {
		if _, ok := r.subs[table]; !ok {
			missing = append(missing, table)
		}
	}
	r.mu.Unlock()

	opened := make(map[feed.Table]Subscription, len(missing))
	for _, table := range missing {
		sub, err := r.backend.Subscribe(ctx, code, table)
		if err != nil {
			r.closeAll(slices.Collect(maps.Values(opened)))

			r.mu.Lock()
			defer r.mu.Unlock()
			if gen != r.gen {
				return ErrStale
			}
			err = investigation.Remote(err)
			r.failLocked(err)
			return err
		}
		opened[table] = sub
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		r.closeAll(slices.Collect(maps.Values(opened)))
		return ErrStale
	}

	for table, sub := range opened {
		if _, ok := r.subs[table]; ok {
			// A concurrent Subscribe won the race for this table.
			_ = sub.Close()
			continue
		}
		r.subs[table] = sub
		r.wg.Add(1)
		go r.consume(gen, table, sub)
	}

	return nil
}

func (r *Reconciler) consume(gen uint64, table feed.Table, sub Subscription) {
	defer r.wg.Done()

	for ev := range sub.Events() {
		r.apply(gen, ev)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen == r.gen && r.subs[table] == sub {
		delete(r.subs, table)
		r.logger.Warn("change feed closed", "code", r.code, "table", table)
		r.setStatusLocked(SeverityError, "Live updates were interrupted.")
	}
}

// apply merges one pushed change. Changes for another code, or from a
// channel that was already torn down, are ignored.
func (r *Reconciler) apply(gen uint64, ev feed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen || ev.Code != r.code || !ev.Valid() {
		return
	}

	switch ev.Table {
	case feed.TablePlayers:
		if ev.Player.InvestigationCode != r.code {
			return
		}
		r.mergePlayerLocked(*ev.Player)
	case feed.TableCaseFiles:
		if ev.CaseFile.InvestigationCode != r.code {
			return
		}
		r.mergeCaseFileLocked(*ev.CaseFile)
	case feed.TableAccusations:
		if ev.Type != feed.Insert || ev.Accusation.InvestigationCode != r.code {
			return
		}
		r.insertAccusationLocked(*ev.Accusation)
	}
	r.notifyLocked()
}

// Teardown closes every channel of the current code and waits for their
// readers to exit. Calls that are still in flight have their results
// discarded. It is safe to call more than once.
func (r *Reconciler) Teardown() {
	r.mu.Lock()
	stale := r.detachLocked()
	r.busy = false
	r.mu.Unlock()

	r.closeAll(stale)
	r.wg.Wait()
}

// mergePlayerLocked replaces the row with the same id unless the held copy
// is newer. Rows with no version always win.
func (r *Reconciler) mergePlayerLocked(p investigation.Player) {
	p = p.Clone()
	for i, cur := range r.players {
		if cur.ID != p.ID {
			continue
		}
		if p.Version != 0 && cur.Version > p.Version {
			return
		}
		r.players[i] = p
		return
	}
	r.players = append(r.players, p)
}

func (r *Reconciler) mergeCaseFileLocked(cf investigation.CaseFile) {
	if r.caseFile != nil && cf.Version != 0 && r.caseFile.Version > cf.Version {
		return
	}
	r.caseFile = &cf
}

// insertAccusationLocked adds a pushed record by id, keeping the log newest
// first and within the display window.
func (r *Reconciler) insertAccusationLocked(a investigation.Accusation) {
	if slices.ContainsFunc(r.accusations, func(cur investigation.Accusation) bool { return cur.ID == a.ID }) {
		return
	}

	i := sort.Search(len(r.accusations), func(i int) bool {
		return !r.accusations[i].CreatedAt.After(a.CreatedAt)
	})
	r.accusations = slices.Insert(r.accusations, i, a)
	r.capAccusationsLocked()
}

// mergeAccusationsLocked folds a newest-first bulk load into the log.
func (r *Reconciler) mergeAccusationsLocked(loaded []investigation.Accusation) {
	merged := slices.Clone(loaded)
	for _, a := range r.accusations {
		if !slices.ContainsFunc(merged, func(cur investigation.Accusation) bool { return cur.ID == a.ID }) {
			merged = append(merged, a)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	r.accusations = merged
	r.capAccusationsLocked()
}

func (r *Reconciler) capAccusationsLocked() {
	if limit := r.opts.AccusationLimit; limit > 0 && len(r.accusations) > limit {
		r.accusations = r.accusations[:limit]
	}
}

func (r *Reconciler) selfLocked() *investigation.Player {
	for i := range r.players {
		if r.players[i].PlayerID == r.playerID {
			p := r.players[i].Clone()
			return &p
		}
	}
	return nil
}
