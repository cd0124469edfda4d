/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconciler

import (
	"slices"

	"github.com/Seednode/yardbox/internal/investigation"
)

// Snapshot is a point-in-time copy of the reconciled state. It shares no
// memory with the reconciler.
type Snapshot struct {
	Code        string
	PlayerID    string
	Loaded      bool
	Players     []investigation.Player
	Self        *investigation.Player
	CaseFile    *investigation.CaseFile
	Accusations []investigation.Accusation
	Status      Status
	Busy        bool
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Code:        r.code,
		PlayerID:    r.playerID,
		Loaded:      r.loaded,
		Players:     clonePlayers(r.players),
		Self:        r.selfLocked(),
		Accusations: slices.Clone(r.accusations),
		Status:      r.status,
		Busy:        r.busy,
	}
	if r.caseFile != nil {
		cf := *r.caseFile
		s.CaseFile = &cf
	}
	return s
}

// AliasOptions lists the locked aliases in canonical color order.
func (s Snapshot) AliasOptions() []string {
	return investigation.AliasOptions(s.Players)
}

// AvailableColors lists the colors the player may still lock.
func (s Snapshot) AvailableColors() []string {
	own := ""
	if s.Self != nil {
		own = s.Self.AliasColor
	}
	return investigation.AvailableColors(s.Players, own)
}

// UsedEvidence is the set of evidence keys held by the other players.
func (s Snapshot) UsedEvidence() map[string]bool {
	return investigation.UsedEvidence(s.Players, s.PlayerID)
}

func (s Snapshot) Notebook() investigation.Notebook {
	if s.Self == nil {
		return investigation.Notebook{}
	}
	return investigation.NotebookFor(*s.Self)
}

// NotebookPage lays out the player's decorated notebook.
func (s Snapshot) NotebookPage() []investigation.Entry {
	if s.Self == nil {
		return nil
	}
	return investigation.NotebookPage(*s.Self, s.Players, s.Notebook())
}

func (s Snapshot) Progress() investigation.Progress {
	return investigation.ProgressOf(s.Self, s.CaseFile)
}

// Evaluate checks input the same way Accuse does, without logging it.
func (s Snapshot) Evaluate(input investigation.AccusationInput) (investigation.Verdict, error) {
	return investigation.EvaluateAccusation(input, s.CaseFile, s.Players)
}
