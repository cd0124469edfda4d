/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

import "slices"

// Decoration is how a notebook entry is marked.
type Decoration string

const (
	DecorationNone      Decoration = "none"
	DecorationScratch   Decoration = "scratch"
	DecorationUnderline Decoration = "underline"
)

// Notebook holds a player's checked-off items per category. It is personal
// and never authoritative.
type Notebook map[EvidenceType][]string

// NotebookFor restores the notebook of p. A player who never saved notebook
// checks starts with their own evidence checked off.
func NotebookFor(p Player) Notebook {
	src := p.NotebookChecks
	if src == nil {
		src = p.Evidence
	}

	n := make(Notebook, len(EvidenceTypes))
	for _, item := range src {
		if !slices.Contains(n[item.Type], item.Value) {
			n[item.Type] = append(n[item.Type], item.Value)
		}
	}
	return n
}

func (n Notebook) Checked(t EvidenceType, value string) bool {
	return slices.Contains(n[t], value)
}

// Check returns a copy of n with value checked under t.
func (n Notebook) Check(t EvidenceType, value string) Notebook {
	next := n.clone()
	if !slices.Contains(next[t], value) {
		next[t] = append(next[t], value)
	}
	return next
}

// Uncheck returns a copy of n without value under t.
func (n Notebook) Uncheck(t EvidenceType, value string) Notebook {
	next := n.clone()
	next[t] = slices.DeleteFunc(next[t], func(v string) bool { return v == value })
	return next
}

// Items flattens n into the stored form, aliases first.
func (n Notebook) Items() []EvidenceItem {
	items := make([]EvidenceItem, 0)
	for _, t := range EvidenceTypes {
		for _, v := range n[t] {
			items = append(items, EvidenceItem{Type: t, Value: v})
		}
	}
	return items
}

func (n Notebook) clone() Notebook {
	next := make(Notebook, len(n))
	for t, values := range n {
		next[t] = slices.Clone(values)
	}
	return next
}

// AutoUnderline returns the single item of a ten-item category that is not
// checked, when exactly nine are. Any other count yields false.
func AutoUnderline(items, checked []string) (string, bool) {
	if len(items) != 10 || len(checked) != 9 {
		return "", false
	}
	for _, item := range items {
		if !slices.Contains(checked, item) {
			return item, true
		}
	}
	return "", false
}

// Decorate picks the mark for label in category t of self's notebook.
//
// Checked items are scratched out, except that the murderer sees their own
// evidence underlined. Unchecked items are plain, except the auto-underline
// hint, which only non-murderers get.
func Decorate(self Player, t EvidenceType, label string, checked []string, auto string) Decoration {
	if slices.Contains(checked, label) {
		if self.IsMurderer && slices.Contains(self.Evidence, EvidenceItem{Type: t, Value: label}) {
			return DecorationUnderline
		}
		return DecorationScratch
	}
	if self.IsMurderer {
		return DecorationNone
	}
	if auto != "" && auto == label {
		return DecorationUnderline
	}
	return DecorationNone
}

// Entry is one decorated notebook line.
type Entry struct {
	Type       EvidenceType
	Label      string
	Checked    bool
	Decoration Decoration
}

// NotebookPage lays out every category of self's notebook. Alias entries come
// from the locked players; the others from the fixed catalog.
func NotebookPage(self Player, players []Player, n Notebook) []Entry {
	var entries []Entry
	for _, t := range EvidenceTypes {
		items := CatalogFor(t)
		if t == EvidenceAlias {
			items = AliasOptions(players)
		}

		checked := n[t]
		auto, _ := AutoUnderline(items, checked)
		for _, label := range items {
			entries = append(entries, Entry{
				Type:       t,
				Label:      label,
				Checked:    slices.Contains(checked, label),
				Decoration: Decorate(self, t, label, checked, auto),
			})
		}
	}
	return entries
}

// Progress summarizes a player's setup for the overview.
type Progress struct {
	AliasLocked       bool
	Alias             string
	IdentitySet       bool
	EvidenceSubmitted bool
	CaseFileLocked    bool
}

func ProgressOf(self *Player, caseFile *CaseFile) Progress {
	var pr Progress
	if self != nil {
		pr.AliasLocked = self.AliasLocked
		if self.AliasLocked {
			pr.Alias = self.Alias()
		}
		pr.IdentitySet = self.Identity != ""
		pr.EvidenceSubmitted = self.EvidenceLocked()
	}
	pr.CaseFileLocked = caseFile != nil
	return pr
}
