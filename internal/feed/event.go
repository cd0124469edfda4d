/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package feed

import (
	"fmt"

	"github.com/Seednode/yardbox/internal/investigation"
)

// Table names a watched table.
type Table string

const (
	TablePlayers     Table = "investigation_players"
	TableCaseFiles   Table = "investigation_case_files"
	TableAccusations Table = "investigation_accusations"
)

// Tables lists every table a client may subscribe to.
var Tables = []Table{TablePlayers, TableCaseFiles, TableAccusations}

func ParseTable(s string) (Table, error) {
	for _, t := range Tables {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown table %q", s)
}

// EventType is the kind of row change.
type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
)

// DefaultTypes returns the changes a reader of t is interested in.
// Accusations are append-only, so only inserts are delivered for them.
func DefaultTypes(t Table) []EventType {
	if t == TableAccusations {
		return []EventType{Insert}
	}
	return []EventType{Insert, Update}
}

// Event is one committed row change. Exactly one of Player, CaseFile and
// Accusation is set, matching Table.
type Event struct {
	Table   Table     `json:"table"`
	Type    EventType `json:"type"`
	Code    string    `json:"investigation_code"`
	Version int64     `json:"version,omitempty"`

	Player     *investigation.Player     `json:"player,omitempty"`
	CaseFile   *investigation.CaseFile   `json:"case_file,omitempty"`
	Accusation *investigation.Accusation `json:"accusation,omitempty"`
}

func PlayerEvent(typ EventType, p investigation.Player) Event {
	p = p.Clone()
	return Event{
		Table:   TablePlayers,
		Type:    typ,
		Code:    p.InvestigationCode,
		Version: p.Version,
		Player:  &p,
	}
}

func CaseFileEvent(typ EventType, cf investigation.CaseFile) Event {
	return Event{
		Table:    TableCaseFiles,
		Type:     typ,
		Code:     cf.InvestigationCode,
		Version:  cf.Version,
		CaseFile: &cf,
	}
}

func AccusationEvent(a investigation.Accusation) Event {
	return Event{
		Table:      TableAccusations,
		Type:       Insert,
		Code:       a.InvestigationCode,
		Accusation: &a,
	}
}

// Valid reports whether the payload matches the table.
func (e Event) Valid() bool {
	switch e.Table {
	case TablePlayers:
		return e.Player != nil
	case TableCaseFiles:
		return e.CaseFile != nil
	case TableAccusations:
		return e.Accusation != nil
	}
	return false
}
