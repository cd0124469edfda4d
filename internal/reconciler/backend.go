/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconciler

import (
	"context"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
)

// Backend is the relational store with change notification that holds the
// shared state. Reads and writes return the row as the backend accepted it.
// FetchCaseFile reports investigation.ErrNotFound when no case file exists.
type Backend interface {
	FetchInvestigation(ctx context.Context, code string) (investigation.Investigation, error)
	UpsertPlayer(ctx context.Context, code, playerID string) (investigation.Player, error)
	FetchPlayers(ctx context.Context, code string) ([]investigation.Player, error)
	FetchCaseFile(ctx context.Context, code string) (investigation.CaseFile, error)
	FetchAccusations(ctx context.Context, code string, limit int) ([]investigation.Accusation, error)

	LockAlias(ctx context.Context, code, playerID, title, color string) (investigation.Player, error)
	UpdateIdentity(ctx context.Context, code, playerID, identity string) (investigation.Player, error)
	SubmitEvidence(ctx context.Context, code, playerID string, evidence []investigation.EvidenceItem) (investigation.Player, error)
	UpdateNotebookChecks(ctx context.Context, code, playerID string, checks []investigation.EvidenceItem) (investigation.Player, error)
	UpsertCaseFile(ctx context.Context, cf investigation.CaseFile, ifVersion int64) (investigation.CaseFile, error)
	CreateAccusation(ctx context.Context, a investigation.Accusation) (investigation.Accusation, error)

	// Subscribe opens a change channel for table, scoped to code.
	Subscribe(ctx context.Context, code string, table feed.Table) (Subscription, error)
}

// Subscription delivers row changes until it is closed. Events is closed
// once the subscription ends, for whatever reason.
type Subscription interface {
	Events() <-chan feed.Event
	Close() error
}
