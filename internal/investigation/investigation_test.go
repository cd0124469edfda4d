/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"ab-12!", "AB12"},
		{"  xk7pq ", "XK7PQ"},
		{"abcdefgh", "ABCDEF"},
		{"a.b.c.d.e.f.g", "ABCDEF"},
		{"", ""},
		{"!!!", ""},
		{"straße", "STRASS"},
		{"\ufb01xab", "FIXAB"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCode(tt.in))
		})
	}
}

func TestValidJoinCode(t *testing.T) {
	t.Parallel()

	assert.False(t, ValidJoinCode("ab-1"))
	assert.True(t, ValidJoinCode("ab-12"))
	assert.True(t, ValidJoinCode("XK7PQ2"))
}

func TestGenerateCodeUsesAlphabet(t *testing.T) {
	t.Parallel()

	assert.Len(t, CodeAlphabet, 32)
	for _, c := range "IO01" {
		assert.NotContains(t, CodeAlphabet, string(c))
	}

	for _, n := range []int{5, 6} {
		for range 200 {
			code, err := GenerateCode(n)
			require.NoError(t, err)
			require.Len(t, code, n)
			for _, r := range code {
				require.True(t, strings.ContainsRune(CodeAlphabet, r), "unexpected %q in %q", r, code)
			}
			assert.Equal(t, code, NormalizeCode(code))
		}
	}
}

func TestGenerateCodeDefaultsLength(t *testing.T) {
	t.Parallel()

	code, err := GenerateCode(0)
	require.NoError(t, err)
	assert.Len(t, code, DefaultCodeLength)
}

func TestFormatAlias(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Inspector Gold", FormatAlias("Inspector", "Gold"))
	assert.Equal(t, "", FormatAlias("Inspector", ""))
	assert.Equal(t, "", FormatAlias("", "Gold"))
}

func lockedPlayer(id, title, color, identity string) Player {
	return Player{
		ID:          "row-" + id,
		PlayerID:    id,
		AliasTitle:  title,
		AliasColor:  color,
		AliasLocked: true,
		Identity:    identity,
		IsMurderer:  identity == Murderer,
	}
}

func TestAliasOptionsCanonicalOrder(t *testing.T) {
	t.Parallel()

	players := []Player{
		lockedPlayer("p1", "Dame", "Violet", ""),
		lockedPlayer("p2", "Captain", "Onyx", ""),
		lockedPlayer("p3", "Inspector", "Gold", ""),
		{PlayerID: "p4", AliasTitle: "Mr.", AliasColor: "Rose"},
	}

	assert.Equal(t, []string{"Captain Onyx", "Inspector Gold", "Dame Violet"}, AliasOptions(players))
}

func TestAvailableColors(t *testing.T) {
	t.Parallel()

	players := []Player{
		lockedPlayer("p1", "Dame", "Violet", ""),
		lockedPlayer("p2", "Captain", "Onyx", ""),
		{PlayerID: "p3", AliasColor: "Gold"},
	}

	colors := AvailableColors(players, "Onyx")
	assert.Contains(t, colors, "Onyx")
	assert.Contains(t, colors, "Gold")
	assert.NotContains(t, colors, "Violet")
	assert.Len(t, colors, len(AliasColors)-1)
}

func TestEvaluateMurdererAccusation(t *testing.T) {
	t.Parallel()

	cf := &CaseFile{MurdererAlias: "Inspector Gold", Weapon: "Rope", Location: "Library", Motive: "Revenge"}
	exact := AccusationInput{Alias: "Inspector Gold", Identity: Murderer, Weapon: "Rope", Location: "Library", Motive: "Revenge"}

	v, err := EvaluateAccusation(exact, cf, nil)
	require.NoError(t, err)
	assert.True(t, v.Correct)
	assert.Equal(t, "Scotland Yard confirms the murderer: Inspector Gold. Case closed.", v.Message)

	variants := map[string]func(*AccusationInput){
		"alias":    func(in *AccusationInput) { in.Alias = "Dame Violet" },
		"weapon":   func(in *AccusationInput) { in.Weapon = "Wrench" },
		"location": func(in *AccusationInput) { in.Location = "Study" },
		"motive":   func(in *AccusationInput) { in.Motive = "Debt" },
	}
	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			in := exact
			mutate(&in)
			v, err := EvaluateAccusation(in, cf, nil)
			require.NoError(t, err)
			assert.False(t, v.Correct)
			assert.Equal(t, incorrectMessage, v.Message)
		})
	}
}

func TestEvaluateMurdererAccusationValidation(t *testing.T) {
	t.Parallel()

	_, err := EvaluateAccusation(AccusationInput{Alias: "Inspector Gold", Identity: Murderer, Weapon: "Rope", Location: "Library", Motive: "Revenge"}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, CategoryValidation, CategoryOf(err))
	assert.Equal(t, "The case file is not locked yet.", err.Error())

	cf := &CaseFile{MurdererAlias: "Inspector Gold", Weapon: "Rope", Location: "Library", Motive: "Revenge"}
	_, err = EvaluateAccusation(AccusationInput{Alias: "Inspector Gold", Identity: Murderer, Weapon: "Rope"}, cf, nil)
	require.Error(t, err)
	assert.Equal(t, "Select weapon, location, and motive.", err.Error())

	_, err = EvaluateAccusation(AccusationInput{Identity: "The Wizard"}, cf, nil)
	require.Error(t, err)
	assert.Equal(t, "Select an identity and an alias.", err.Error())
}

func TestEvaluateIdentityAccusation(t *testing.T) {
	t.Parallel()

	players := []Player{
		lockedPlayer("p1", "Dame", "Violet", "The Wizard"),
		lockedPlayer("p2", "Captain", "Onyx", "The Royal"),
		{PlayerID: "p3", AliasTitle: "Mr.", AliasColor: "Rose", Identity: "The Actor"},
	}

	v, err := EvaluateAccusation(AccusationInput{Alias: "Dame Violet", Identity: "The Wizard"}, nil, players)
	require.NoError(t, err)
	assert.True(t, v.Correct)
	assert.Equal(t, "Scotland Yard confirms Dame Violet has been EXPOSED as the The Wizard.", v.Message)

	v, err = EvaluateAccusation(AccusationInput{Alias: "Dame Violet", Identity: "The Royal"}, nil, players)
	require.NoError(t, err)
	assert.False(t, v.Correct, "matching alias with a different identity is incorrect")

	v, err = EvaluateAccusation(AccusationInput{Alias: "Mr. Rose", Identity: "The Actor"}, nil, players)
	require.NoError(t, err)
	assert.False(t, v.Correct, "unlocked aliases never match")
}

func TestRevealFor(t *testing.T) {
	t.Parallel()

	cf := CaseFile{MurdererAlias: "Inspector Gold", Weapon: "Rope", Location: "Library", Motive: "Revenge"}
	r := RevealFor("XK7PQ", "p1", cf)
	assert.Equal(t, KindReveal, r.Kind)
	assert.True(t, r.IsCorrect)
	assert.Equal(t, "Case file opened: Inspector Gold, with the Rope, in the Library, for Revenge.", r.Message)
}

func TestUsedEvidenceExcludesSelf(t *testing.T) {
	t.Parallel()

	players := []Player{
		{PlayerID: "me", Evidence: []EvidenceItem{{Type: EvidenceWeapon, Value: "Rope"}}},
		{PlayerID: "other", Evidence: []EvidenceItem{{Type: EvidenceWeapon, Value: "Wrench"}, {Type: EvidenceMotive, Value: "Debt"}}},
	}

	used := UsedEvidence(players, "me")
	assert.Equal(t, map[string]bool{"weapon:Wrench": true, "motive:Debt": true}, used)
}

func TestCheckEvidence(t *testing.T) {
	t.Parallel()

	detective := lockedPlayer("me", "Inspector", "Gold", "The Wizard")
	murderer := lockedPlayer("me", "Inspector", "Gold", Murderer)
	pick := []EvidenceItem{
		{Type: EvidenceWeapon, Value: "Rope"},
		{Type: EvidenceLocation, Value: "Library"},
		{Type: EvidenceMotive, Value: "Revenge"},
	}

	tests := []struct {
		name    string
		self    Player
		sel     []EvidenceItem
		used    map[string]bool
		want    int
		wantErr string
	}{
		{name: "detective", self: detective, sel: pick, want: 3},
		{name: "murderer adds alias", self: murderer, sel: pick, want: 4},
		{name: "already locked", self: func() Player { p := detective; p.Evidence = pick; return p }(), sel: pick, wantErr: "Initial evidence is already locked."},
		{name: "alias first", self: Player{PlayerID: "me", Identity: "The Wizard"}, sel: pick, wantErr: "Lock your alias first."},
		{name: "identity first", self: lockedPlayer("me", "Inspector", "Gold", ""), sel: pick, wantErr: "Lock your identity first."},
		{name: "murderer missing motive", self: murderer, sel: pick[:2], wantErr: "Select a weapon, location, and motive."},
		{name: "two weapons", self: detective, sel: []EvidenceItem{pick[0], {Type: EvidenceWeapon, Value: "Wrench"}, pick[2]}, wantErr: "Select one weapon, one location, and one motive."},
		{name: "too few", self: detective, sel: pick[:2], wantErr: "Select one weapon, one location, and one motive."},
		{name: "collision", self: detective, sel: pick, used: map[string]bool{"location:Library": true}, wantErr: "Double check your cards, it looks like there's been an error."},
		{name: "unknown weapon", self: detective, sel: []EvidenceItem{{Type: EvidenceWeapon, Value: "Banana"}, pick[1], pick[2]}, wantErr: `There is no weapon card called "Banana".`},
		{name: "murderer unknown motive", self: murderer, sel: []EvidenceItem{pick[0], pick[1], {Type: EvidenceMotive, Value: "Boredom"}}, wantErr: `There is no motive card called "Boredom".`},
		{name: "miscased location", self: detective, sel: []EvidenceItem{pick[0], {Type: EvidenceLocation, Value: "library"}, pick[2]}, wantErr: `There is no location card called "library".`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckEvidence(tt.self, tt.sel, tt.used)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				assert.Equal(t, CategoryValidation, CategoryOf(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestCheckCard(t *testing.T) {
	t.Parallel()

	for _, typ := range []EvidenceType{EvidenceWeapon, EvidenceLocation, EvidenceMotive} {
		for _, card := range CatalogFor(typ) {
			assert.NoError(t, CheckCard(EvidenceItem{Type: typ, Value: card}), card)
		}
	}

	assert.NoError(t, CheckCard(EvidenceItem{Type: EvidenceAlias, Value: "Anyone At All"}))
	assert.Error(t, CheckCard(EvidenceItem{Type: EvidenceLocation, Value: "Moon"}))
	assert.Error(t, CheckCard(EvidenceItem{Type: EvidenceWeapon, Value: "Study"}))
}

func TestCanonicalCard(t *testing.T) {
	t.Parallel()

	got, ok := CanonicalCard(EvidenceMotive, "silencing witness")
	assert.True(t, ok)
	assert.Equal(t, "Silencing Witness", got)

	got, ok = CanonicalCard(EvidenceWeapon, "Banana")
	assert.False(t, ok)
	assert.Equal(t, "Banana", got)
}

func TestCaseFileFrom(t *testing.T) {
	t.Parallel()

	cf, ok := CaseFileFrom("XK7PQ", []EvidenceItem{
		{Type: EvidenceAlias, Value: "Inspector Gold"},
		{Type: EvidenceWeapon, Value: "Rope"},
		{Type: EvidenceLocation, Value: "Library"},
		{Type: EvidenceMotive, Value: "Revenge"},
	})
	require.True(t, ok)
	assert.Equal(t, "Inspector Gold", cf.MurdererAlias)
	assert.Equal(t, "XK7PQ", cf.InvestigationCode)

	_, ok = CaseFileFrom("XK7PQ", []EvidenceItem{{Type: EvidenceWeapon, Value: "Rope"}})
	assert.False(t, ok)
}

func TestAutoUnderline(t *testing.T) {
	t.Parallel()

	items := make([]string, 10)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}

	got, ok := AutoUnderline(items, items[:9])
	require.True(t, ok)
	assert.Equal(t, "item-9", got)

	_, ok = AutoUnderline(items, items[:8])
	assert.False(t, ok, "8 of 10")

	_, ok = AutoUnderline(items, items)
	assert.False(t, ok, "10 of 10")

	_, ok = AutoUnderline(Weapons, Weapons[:8])
	assert.False(t, ok, "nine-item categories never fire")
}

func TestDecorate(t *testing.T) {
	t.Parallel()

	murderer := lockedPlayer("me", "Inspector", "Gold", Murderer)
	murderer.Evidence = []EvidenceItem{{Type: EvidenceWeapon, Value: "Rope"}}
	detective := lockedPlayer("me", "Dame", "Violet", "The Wizard")

	checked := []string{"Rope", "Wrench"}

	assert.Equal(t, DecorationUnderline, Decorate(murderer, EvidenceWeapon, "Rope", checked, ""))
	assert.Equal(t, DecorationScratch, Decorate(murderer, EvidenceWeapon, "Wrench", checked, ""))
	assert.Equal(t, DecorationNone, Decorate(murderer, EvidenceWeapon, "Scalpel", checked, "Scalpel"))
	assert.Equal(t, DecorationScratch, Decorate(detective, EvidenceWeapon, "Rope", checked, ""))
	assert.Equal(t, DecorationUnderline, Decorate(detective, EvidenceWeapon, "Scalpel", checked, "Scalpel"))
	assert.Equal(t, DecorationNone, Decorate(detective, EvidenceWeapon, "Revolver", checked, "Scalpel"))
}

func TestNotebookFallsBackToEvidence(t *testing.T) {
	t.Parallel()

	p := Player{Evidence: []EvidenceItem{{Type: EvidenceWeapon, Value: "Rope"}}}
	n := NotebookFor(p)
	assert.True(t, n.Checked(EvidenceWeapon, "Rope"))

	p.NotebookChecks = []EvidenceItem{}
	n = NotebookFor(p)
	assert.False(t, n.Checked(EvidenceWeapon, "Rope"), "saved empty notebook wins over evidence")
}

func TestNotebookCheckUncheck(t *testing.T) {
	t.Parallel()

	n := NotebookFor(Player{})
	n2 := n.Check(EvidenceMotive, "Debt").Check(EvidenceAlias, "Dame Violet").Check(EvidenceMotive, "Debt")
	assert.False(t, n.Checked(EvidenceMotive, "Debt"), "check does not mutate the receiver")
	assert.Equal(t, []EvidenceItem{
		{Type: EvidenceAlias, Value: "Dame Violet"},
		{Type: EvidenceMotive, Value: "Debt"},
	}, n2.Items())

	n3 := n2.Uncheck(EvidenceMotive, "Debt")
	assert.True(t, n2.Checked(EvidenceMotive, "Debt"))
	assert.False(t, n3.Checked(EvidenceMotive, "Debt"))
}

func TestNotebookPageAliasAutoUnderline(t *testing.T) {
	t.Parallel()

	var players []Player
	for i, color := range AliasColors {
		players = append(players, lockedPlayer(fmt.Sprintf("p%d", i), AliasTitles[i], color, ""))
	}
	aliases := AliasOptions(players)
	require.Len(t, aliases, 10)

	n := Notebook{}
	for _, a := range aliases[1:] {
		n = n.Check(EvidenceAlias, a)
	}

	self := lockedPlayer("me", "Dame", "Violet", "The Wizard")
	for _, e := range NotebookPage(self, players, n) {
		if e.Type != EvidenceAlias {
			continue
		}
		if e.Label == aliases[0] {
			assert.Equal(t, DecorationUnderline, e.Decoration)
			assert.False(t, e.Checked)
		} else {
			assert.Equal(t, DecorationScratch, e.Decoration)
		}
	}
}

func TestProgressOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Progress{}, ProgressOf(nil, nil))

	p := lockedPlayer("me", "Inspector", "Gold", "The Wizard")
	p.Evidence = []EvidenceItem{{Type: EvidenceWeapon, Value: "Rope"}}
	pr := ProgressOf(&p, &CaseFile{})
	assert.Equal(t, Progress{AliasLocked: true, Alias: "Inspector Gold", IdentitySet: true, EvidenceSubmitted: true, CaseFileLocked: true}, pr)
}

func TestErrorCategories(t *testing.T) {
	t.Parallel()

	err := fmtWrap(NotFound("Investigation not found."))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "Investigation not found.", StatusText(NotFound("Investigation not found.")))

	assert.Equal(t, "That color is already taken.", StatusText(Conflict("alias_color", "UNIQUE constraint failed")))
	assert.Equal(t, "That identity is already taken.", StatusText(Conflict("identity", "UNIQUE constraint failed")))
	assert.Equal(t, "boom", StatusText(Remote(errors.New("boom"))))
	assert.Equal(t, CategoryRemote, CategoryOf(errors.New("boom")))
	assert.Nil(t, Remote(nil))
}

func fmtWrap(err error) error {
	return fmt.Errorf("fetch investigation: %w", err)
}
