/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package reconciler

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
)

// fakeBackend is an in-memory backend that publishes its writes to a hub.
type fakeBackend struct {
	hub *feed.Hub

	mu             sync.Mutex
	investigations map[string]bool
	players        map[string][]investigation.Player
	caseFiles      map[string]investigation.CaseFile
	accusations    map[string][]investigation.Accusation
	calls          map[string]int
	fail           map[string]error
	gates          map[string]chan struct{}
	clock          time.Time
	seq            int
}

func newFakeBackend(codes ...string) *fakeBackend {
	f := &fakeBackend{
		hub:            feed.NewHub(),
		investigations: make(map[string]bool),
		players:        make(map[string][]investigation.Player),
		caseFiles:      make(map[string]investigation.CaseFile),
		accusations:    make(map[string][]investigation.Accusation),
		calls:          make(map[string]int),
		fail:           make(map[string]error),
		gates:          make(map[string]chan struct{}),
		clock:          time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, code := range codes {
		f.investigations[code] = true
	}
	return f
}

// enter counts a call, waits on its gate and returns any injected failure.
func (f *fakeBackend) enter(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls[name]++
	gate := f.gates[name]
	err := f.fail[name]
	delete(f.fail, name)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeBackend) gate(name string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan struct{})
	f.gates[name] = ch
	return ch
}

func (f *fakeBackend) failNext(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) totalWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, name := range []string{"LockAlias", "UpdateIdentity", "SubmitEvidence", "UpdateNotebookChecks", "UpsertCaseFile", "CreateAccusation"} {
		n += f.calls[name]
	}
	return n
}

func (f *fakeBackend) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

// addPlayer seeds a row without publishing it.
func (f *fakeBackend) addPlayer(p investigation.Player) investigation.Player {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	if p.ID == "" {
		p.ID = fmt.Sprintf("row-%d", f.seq)
	}
	if p.Version == 0 {
		p.Version = 1
	}
	f.players[p.InvestigationCode] = append(f.players[p.InvestigationCode], p)
	return p
}

func (f *fakeBackend) FetchInvestigation(ctx context.Context, code string) (investigation.Investigation, error) {
	if err := f.enter(ctx, "FetchInvestigation"); err != nil {
		return investigation.Investigation{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.investigations[code] {
		return investigation.Investigation{}, investigation.NotFound("Investigation not found.")
	}
	return investigation.Investigation{Code: code}, nil
}

func (f *fakeBackend) UpsertPlayer(ctx context.Context, code, playerID string) (investigation.Player, error) {
	if err := f.enter(ctx, "UpsertPlayer"); err != nil {
		return investigation.Player{}, err
	}
	f.mu.Lock()

	for i, p := range f.players[code] {
		if p.PlayerID == playerID {
			p.Version++
			f.players[code][i] = p
			f.mu.Unlock()
			f.hub.Publish(feed.PlayerEvent(feed.Update, p))
			return p, nil
		}
	}
	f.mu.Unlock()

	p := f.addPlayer(investigation.Player{InvestigationCode: code, PlayerID: playerID})
	f.hub.Publish(feed.PlayerEvent(feed.Insert, p))
	return p, nil
}

func (f *fakeBackend) FetchPlayers(ctx context.Context, code string) ([]investigation.Player, error) {
	if err := f.enter(ctx, "FetchPlayers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	return clonePlayers(f.players[code]), nil
}

func (f *fakeBackend) FetchCaseFile(ctx context.Context, code string) (investigation.CaseFile, error) {
	if err := f.enter(ctx, "FetchCaseFile"); err != nil {
		return investigation.CaseFile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	cf, ok := f.caseFiles[code]
	if !ok {
		return investigation.CaseFile{}, investigation.NotFound("Case file not found.")
	}
	return cf, nil
}

func (f *fakeBackend) FetchAccusations(ctx context.Context, code string, limit int) ([]investigation.Accusation, error) {
	if err := f.enter(ctx, "FetchAccusations"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	list := slices.Clone(f.accusations[code])
	slices.Reverse(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (f *fakeBackend) updatePlayer(code, playerID string, mutate func(p *investigation.Player) error) (investigation.Player, error) {
	f.mu.Lock()
	var (
		out   investigation.Player
		found bool
	)
	for i, p := range f.players[code] {
		if p.PlayerID != playerID {
			continue
		}
		if err := mutate(&p); err != nil {
			f.mu.Unlock()
			return investigation.Player{}, err
		}
		p.Version++
		f.players[code][i] = p
		out, found = p.Clone(), true
		break
	}
	f.mu.Unlock()

	if !found {
		return investigation.Player{}, investigation.NotFound("Player not found.")
	}
	f.hub.Publish(feed.PlayerEvent(feed.Update, out))
	return out, nil
}

func (f *fakeBackend) LockAlias(ctx context.Context, code, playerID, title, color string) (investigation.Player, error) {
	if err := f.enter(ctx, "LockAlias"); err != nil {
		return investigation.Player{}, err
	}
	return f.updatePlayer(code, playerID, func(p *investigation.Player) error {
		p.AliasTitle, p.AliasColor, p.AliasLocked = title, color, true
		return nil
	})
}

func (f *fakeBackend) UpdateIdentity(ctx context.Context, code, playerID, identity string) (investigation.Player, error) {
	if err := f.enter(ctx, "UpdateIdentity"); err != nil {
		return investigation.Player{}, err
	}
	return f.updatePlayer(code, playerID, func(p *investigation.Player) error {
		p.Identity, p.IsMurderer = identity, identity == investigation.Murderer
		return nil
	})
}

func (f *fakeBackend) SubmitEvidence(ctx context.Context, code, playerID string, evidence []investigation.EvidenceItem) (investigation.Player, error) {
	if err := f.enter(ctx, "SubmitEvidence"); err != nil {
		return investigation.Player{}, err
	}
	return f.updatePlayer(code, playerID, func(p *investigation.Player) error {
		p.Evidence = slices.Clone(evidence)
		return nil
	})
}

func (f *fakeBackend) UpdateNotebookChecks(ctx context.Context, code, playerID string, checks []investigation.EvidenceItem) (investigation.Player, error) {
	if err := f.enter(ctx, "UpdateNotebookChecks"); err != nil {
		return investigation.Player{}, err
	}
	return f.updatePlayer(code, playerID, func(p *investigation.Player) error {
		p.NotebookChecks = append(make([]investigation.EvidenceItem, 0), checks...)
		return nil
	})
}

func (f *fakeBackend) UpsertCaseFile(ctx context.Context, cf investigation.CaseFile, ifVersion int64) (investigation.CaseFile, error) {
	if err := f.enter(ctx, "UpsertCaseFile"); err != nil {
		return investigation.CaseFile{}, err
	}
	f.mu.Lock()
	existing, ok := f.caseFiles[cf.InvestigationCode]
	typ := feed.Insert
	switch {
	case ok && ifVersion == 0:
		f.mu.Unlock()
		return investigation.CaseFile{}, investigation.Conflict("case_file", "The case file is already locked.")
	case ok:
		cf.Version = existing.Version + 1
		typ = feed.Update
	default:
		cf.Version = 1
	}
	f.caseFiles[cf.InvestigationCode] = cf
	f.mu.Unlock()

	f.hub.Publish(feed.CaseFileEvent(typ, cf))
	return cf, nil
}

func (f *fakeBackend) CreateAccusation(ctx context.Context, a investigation.Accusation) (investigation.Accusation, error) {
	if err := f.enter(ctx, "CreateAccusation"); err != nil {
		return investigation.Accusation{}, err
	}
	f.mu.Lock()
	f.seq++
	a.ID = fmt.Sprintf("acc-%d", f.seq)
	a.CreatedAt = f.tick()
	f.accusations[a.InvestigationCode] = append(f.accusations[a.InvestigationCode], a)
	f.mu.Unlock()

	f.hub.Publish(feed.AccusationEvent(a))
	return a, nil
}

func (f *fakeBackend) Subscribe(ctx context.Context, code string, table feed.Table) (Subscription, error) {
	if err := f.enter(ctx, "Subscribe"); err != nil {
		return nil, err
	}
	sub, err := f.hub.Subscribe(code, table)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
