/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

import (
	"slices"
	"time"
)

type EvidenceType string

const (
	EvidenceAlias    EvidenceType = "alias"
	EvidenceWeapon   EvidenceType = "weapon"
	EvidenceLocation EvidenceType = "location"
	EvidenceMotive   EvidenceType = "motive"
)

// EvidenceTypes lists every evidence category in notebook order.
var EvidenceTypes = []EvidenceType{EvidenceAlias, EvidenceWeapon, EvidenceLocation, EvidenceMotive}

func (t EvidenceType) Valid() bool {
	return slices.Contains(EvidenceTypes, t)
}

// EvidenceItem is one typed card, used both for submitted evidence and for
// notebook checks.
type EvidenceItem struct {
	Type  EvidenceType `json:"type"`
	Value string       `json:"value"`
}

// Key identifies an item across players: two items collide when their keys
// are equal.
func (e EvidenceItem) Key() string {
	return string(e.Type) + ":" + e.Value
}

type Investigation struct {
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Player is one row of investigation_players. Evidence and NotebookChecks
// are nil until the player first saves them.
type Player struct {
	ID                string         `json:"id"`
	InvestigationCode string         `json:"investigation_code"`
	PlayerID          string         `json:"player_id"`
	AliasTitle        string         `json:"alias_title,omitempty"`
	AliasColor        string         `json:"alias_color,omitempty"`
	AliasLocked       bool           `json:"alias_locked"`
	Identity          string         `json:"identity,omitempty"`
	IsMurderer        bool           `json:"is_murderer"`
	Evidence          []EvidenceItem `json:"evidence"`
	NotebookChecks    []EvidenceItem `json:"notebook_checks"`
	Version           int64          `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Alias returns the formatted alias, or "" when title or color is unset.
func (p Player) Alias() string {
	return FormatAlias(p.AliasTitle, p.AliasColor)
}

// EvidenceLocked reports whether the player's initial evidence is in.
func (p Player) EvidenceLocked() bool {
	return len(p.Evidence) > 0
}

// Clone returns a copy that shares no slices with p.
func (p Player) Clone() Player {
	p.Evidence = cloneItems(p.Evidence)
	p.NotebookChecks = cloneItems(p.NotebookChecks)
	return p
}

type CaseFile struct {
	InvestigationCode string    `json:"investigation_code"`
	MurdererAlias     string    `json:"murderer_alias"`
	Weapon            string    `json:"weapon"`
	Location          string    `json:"location"`
	Motive            string    `json:"motive"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
}

// SameSolution reports whether both case files name the same murder.
func (c CaseFile) SameSolution(o CaseFile) bool {
	return c.MurdererAlias == o.MurdererAlias &&
		c.Weapon == o.Weapon &&
		c.Location == o.Location &&
		c.Motive == o.Motive
}

type AccusationKind string

const (
	KindAccusation AccusationKind = "accusation"
	// KindReveal follows a correct murderer accusation and announces the
	// full case file.
	KindReveal AccusationKind = "reveal"
)

type Accusation struct {
	ID                string         `json:"id"`
	InvestigationCode string         `json:"investigation_code"`
	AccuserPlayerID   string         `json:"accuser_player_id"`
	AccusedAlias      string         `json:"accused_alias"`
	AccusedIdentity   string         `json:"accused_identity"`
	Weapon            string         `json:"weapon,omitempty"`
	Location          string         `json:"location,omitempty"`
	Motive            string         `json:"motive,omitempty"`
	IsCorrect         bool           `json:"is_correct"`
	Message           string         `json:"message"`
	Kind              AccusationKind `json:"kind"`
	CreatedAt         time.Time      `json:"created_at"`
}

func cloneItems(items []EvidenceItem) []EvidenceItem {
	if items == nil {
		return nil
	}
	return append(make([]EvidenceItem, 0, len(items)), items...)
}
