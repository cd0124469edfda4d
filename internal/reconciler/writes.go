/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconciler

import (
	"context"

	"github.com/Seednode/yardbox/internal/investigation"
)

// action is one local write in progress. It holds a copy of the state the
// write was validated against.
type action struct {
	gen      uint64
	code     string
	self     *investigation.Player
	players  []investigation.Player
	caseFile *investigation.CaseFile
}

// begin claims the busy flag. Only one local write may be in flight.
func (r *Reconciler) begin() (action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.busy {
		return action{}, ErrBusy
	}
	if r.code == "" || !r.loaded {
		r.failLocked(errNoCode)
		return action{}, errNoCode
	}

	r.busy = true
	r.status = Status{}
	r.notifyLocked()

	a := action{
		gen:     r.gen,
		code:    r.code,
		self:    r.selfLocked(),
		players: clonePlayers(r.players),
	}
	if r.caseFile != nil {
		cf := *r.caseFile
		a.caseFile = &cf
	}
	return a, nil
}

// finish releases the busy flag and reports err on the banner. Nothing is
// touched when the session moved on while the write was in flight.
func (r *Reconciler) finish(a action, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.gen != r.gen {
		if err == nil {
			err = ErrStale
		}
		return err
	}

	r.busy = false
	if err != nil {
		r.failLocked(err)
		return err
	}
	r.notifyLocked()
	return nil
}

// mergeWritten merges rows accepted by the backend, unless the session moved
// on in the meantime.
func (r *Reconciler) mergeWritten(a action, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a.gen != r.gen {
		return
	}
	fn()
	r.notifyLocked()
}

func (a action) requireSelf() (investigation.Player, error) {
	if a.self == nil {
		return investigation.Player{}, errNoSelf
	}
	return *a.self, nil
}

// LockAlias claims an alias title and color for the player.
func (r *Reconciler) LockAlias(ctx context.Context, title, color string) error {
	a, err := r.begin()
	if err != nil {
		return err
	}
	return r.finish(a, r.lockAlias(ctx, a, title, color))
}

func (r *Reconciler) lockAlias(ctx context.Context, a action, title, color string) error {
	self, err := a.requireSelf()
	if err != nil {
		return err
	}
	if title == "" || color == "" {
		return investigation.Validation("Select an alias title and color.")
	}
	if self.AliasLocked {
		return investigation.Validation("Your alias is already locked.")
	}

	p, err := r.backend.LockAlias(ctx, a.code, r.playerID, title, color)
	if err != nil {
		return investigation.Remote(err)
	}
	r.mergeWritten(a, func() { r.mergePlayerLocked(p) })
	return nil
}

// LockIdentity claims an identity for the player.
func (r *Reconciler) LockIdentity(ctx context.Context, identity string) error {
	a, err := r.begin()
	if err != nil {
		return err
	}
	return r.finish(a, r.lockIdentity(ctx, a, identity))
}

func (r *Reconciler) lockIdentity(ctx context.Context, a action, identity string) error {
	self, err := a.requireSelf()
	if err != nil {
		return err
	}
	if identity == "" {
		return investigation.Validation("Select an identity.")
	}
	if self.Identity != "" {
		return investigation.Validation("Your identity is already locked.")
	}

	p, err := r.backend.UpdateIdentity(ctx, a.code, r.playerID, identity)
	if err != nil {
		return investigation.Remote(err)
	}
	r.mergeWritten(a, func() { r.mergePlayerLocked(p) })
	return nil
}

// SubmitEvidence locks the player's initial evidence. The murderer's
// submission also writes the case file.
func (r *Reconciler) SubmitEvidence(ctx context.Context, selection []investigation.EvidenceItem) error {
	a, err := r.begin()
	if err != nil {
		return err
	}
	return r.finish(a, r.submitEvidence(ctx, a, selection))
}

func (r *Reconciler) submitEvidence(ctx context.Context, a action, selection []investigation.EvidenceItem) error {
	self, err := a.requireSelf()
	if err != nil {
		return err
	}

	used := investigation.UsedEvidence(a.players, r.playerID)
	evidence, err := investigation.CheckEvidence(self, selection, used)
	if err != nil {
		return err
	}

	p, err := r.backend.SubmitEvidence(ctx, a.code, r.playerID, evidence)
	if err != nil {
		return investigation.Remote(err)
	}
	r.mergeWritten(a, func() { r.mergePlayerLocked(p) })

	if self.Identity != investigation.Murderer {
		return nil
	}

	cf, ok := investigation.CaseFileFrom(a.code, evidence)
	if !ok {
		return investigation.Validation("Select a weapon, location, and motive.")
	}
	written, err := r.backend.UpsertCaseFile(ctx, cf, 0)
	if err != nil {
		return investigation.Remote(err)
	}
	r.mergeWritten(a, func() { r.mergeCaseFileLocked(written) })
	return nil
}

// SetNotebookChecks replaces the player's notebook marks.
func (r *Reconciler) SetNotebookChecks(ctx context.Context, checks []investigation.EvidenceItem) error {
	a, err := r.begin()
	if err != nil {
		return err
	}
	return r.finish(a, r.saveNotebook(ctx, a, func(investigation.Notebook) []investigation.EvidenceItem {
		return checks
	}))
}

// CheckNotebookItem marks value in category t of the player's notebook.
func (r *Reconciler) CheckNotebookItem(ctx context.Context, t investigation.EvidenceType, value string) error {
	a, err := r.begin()
	if err != nil {
		return err
	}
	return r.finish(a, r.saveNotebook(ctx, a, func(n investigation.Notebook) []investigation.EvidenceItem {
		return n.Check(t, value).Items()
	}))
}

// UncheckNotebookItem clears the mark on value in category t.
func (r *Reconciler) UncheckNotebookItem(ctx context.Context, t investigation.EvidenceType, value string) error {
	a, err := r.begin()
	if err != nil {
		return err
	}
	return r.finish(a, r.saveNotebook(ctx, a, func(n investigation.Notebook) []investigation.EvidenceItem {
		return n.Uncheck(t, value).Items()
	}))
}

func (r *Reconciler) saveNotebook(ctx context.Context, a action, next func(investigation.Notebook) []investigation.EvidenceItem) error {
	self, err := a.requireSelf()
	if err != nil {
		return err
	}

	checks := next(investigation.NotebookFor(self))
	for _, item := range checks {
		if !item.Type.Valid() || item.Value == "" {
			return investigation.Validation("Invalid notebook item.")
		}
	}

	p, err := r.backend.UpdateNotebookChecks(ctx, a.code, r.playerID, checks)
	if err != nil {
		return investigation.Remote(err)
	}
	r.mergeWritten(a, func() { r.mergePlayerLocked(p) })
	return nil
}

// Accuse evaluates input against the visible state, logs the accusation and,
// after a correct murderer accusation, the reveal of the case file.
func (r *Reconciler) Accuse(ctx context.Context, input investigation.AccusationInput) (investigation.Verdict, error) {
	a, err := r.begin()
	if err != nil {
		return investigation.Verdict{}, err
	}
	v, err := r.accuse(ctx, a, input)
	return v, r.finish(a, err)
}

func (r *Reconciler) accuse(ctx context.Context, a action, input investigation.AccusationInput) (investigation.Verdict, error) {
	if _, err := a.requireSelf(); err != nil {
		return investigation.Verdict{}, err
	}

	v, err := investigation.EvaluateAccusation(input, a.caseFile, a.players)
	if err != nil {
		return investigation.Verdict{}, err
	}

	logged, err := r.backend.CreateAccusation(ctx, investigation.NewAccusation(a.code, r.playerID, input, v))
	if err != nil {
		return investigation.Verdict{}, investigation.Remote(err)
	}
	r.mergeWritten(a, func() {
		r.insertAccusationLocked(logged)
		r.setStatusLocked(SeverityInfo, v.Message)
	})

	if v.Correct && input.Identity == investigation.Murderer && a.caseFile != nil {
		reveal, err := r.backend.CreateAccusation(ctx, investigation.RevealFor(a.code, r.playerID, *a.caseFile))
		if err != nil {
			return v, investigation.Remote(err)
		}
		r.mergeWritten(a, func() { r.insertAccusationLocked(reveal) })
	}

	return v, nil
}

// UpsertCaseFile writes the case file directly. See Backend.UpsertCaseFile
// for the meaning of ifVersion.
func (r *Reconciler) UpsertCaseFile(ctx context.Context, cf investigation.CaseFile, ifVersion int64) error {
	a, err := r.begin()
	if err != nil {
		return err
	}
	return r.finish(a, r.upsertCaseFile(ctx, a, cf, ifVersion))
}

func (r *Reconciler) upsertCaseFile(ctx context.Context, a action, cf investigation.CaseFile, ifVersion int64) error {
	cf.InvestigationCode = a.code
	if cf.MurdererAlias == "" || cf.Weapon == "" || cf.Location == "" || cf.Motive == "" {
		return investigation.Validation("Select an alias, weapon, location, and motive.")
	}

	written, err := r.backend.UpsertCaseFile(ctx, cf, ifVersion)
	if err != nil {
		return investigation.Remote(err)
	}
	r.mergeWritten(a, func() { r.mergeCaseFileLocked(written) })
	return nil
}

func clonePlayers(players []investigation.Player) []investigation.Player {
	out := make([]investigation.Player, len(players))
	for i, p := range players {
		out[i] = p.Clone()
	}
	return out
}
