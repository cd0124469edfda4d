/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package backend

import (
	"context"
	"errors"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
	"github.com/Seednode/yardbox/internal/reconciler"
	"github.com/Seednode/yardbox/internal/store"
)

// Local serves a reconciler straight from a store and its hub, for play on
// a single device without a server.
type Local struct {
	store *store.Store
	hub   *feed.Hub
}

var _ reconciler.Backend = (*Local)(nil)

// NewLocal wires s and hub together. s must publish to hub.
func NewLocal(s *store.Store, hub *feed.Hub) *Local {
	return &Local{store: s, hub: hub}
}

func (l *Local) CreateInvestigation(ctx context.Context) (investigation.Investigation, error) {
	var (
		inv investigation.Investigation
		err error
	)
	for range investigation.MaxCreateAttempts {
		var code string
		code, err = investigation.GenerateCode(investigation.DefaultCodeLength)
		if err != nil {
			return investigation.Investigation{}, err
		}
		inv, err = l.store.CreateInvestigation(ctx, code)
		if err == nil || !errors.Is(err, investigation.ErrConflict) {
			return inv, err
		}
	}
	return investigation.Investigation{}, err
}

func (l *Local) FetchInvestigation(ctx context.Context, code string) (investigation.Investigation, error) {
	return l.store.GetInvestigation(ctx, code)
}

func (l *Local) UpsertPlayer(ctx context.Context, code, playerID string) (investigation.Player, error) {
	return l.store.UpsertPlayer(ctx, code, playerID)
}

func (l *Local) FetchPlayers(ctx context.Context, code string) ([]investigation.Player, error) {
	return l.store.ListPlayers(ctx, code)
}

func (l *Local) FetchCaseFile(ctx context.Context, code string) (investigation.CaseFile, error) {
	return l.store.GetCaseFile(ctx, code)
}

func (l *Local) FetchAccusations(ctx context.Context, code string, limit int) ([]investigation.Accusation, error) {
	return l.store.ListAccusations(ctx, code, limit)
}

func (l *Local) LockAlias(ctx context.Context, code, playerID, title, color string) (investigation.Player, error) {
	return l.store.LockAlias(ctx, code, playerID, title, color)
}

func (l *Local) UpdateIdentity(ctx context.Context, code, playerID, identity string) (investigation.Player, error) {
	return l.store.UpdateIdentity(ctx, code, playerID, identity)
}

func (l *Local) SubmitEvidence(ctx context.Context, code, playerID string, evidence []investigation.EvidenceItem) (investigation.Player, error) {
	return l.store.SubmitEvidence(ctx, code, playerID, evidence)
}

func (l *Local) UpdateNotebookChecks(ctx context.Context, code, playerID string, checks []investigation.EvidenceItem) (investigation.Player, error) {
	return l.store.UpdateNotebookChecks(ctx, code, playerID, checks)
}

func (l *Local) UpsertCaseFile(ctx context.Context, cf investigation.CaseFile, ifVersion int64) (investigation.CaseFile, error) {
	return l.store.UpsertCaseFile(ctx, cf, ifVersion)
}

func (l *Local) CreateAccusation(ctx context.Context, a investigation.Accusation) (investigation.Accusation, error) {
	return l.store.CreateAccusation(ctx, a)
}

func (l *Local) Subscribe(_ context.Context, code string, table feed.Table) (reconciler.Subscription, error) {
	sub, err := l.hub.Subscribe(code, table)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
