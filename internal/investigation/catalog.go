/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

import (
	"slices"
	"strings"
)

// Murderer is the identity whose holder writes the case file.
const Murderer = "The Murderer"

var AliasTitles = []string{
	"Constable",
	"Solicitor",
	"Inspector",
	"Detective",
	"Barrister",
	"Magistrate",
	"Captain",
	"Mr.",
	"Mrs.",
	"Dame",
}

// AliasColors is also the canonical display order for aliases.
var AliasColors = []string{
	"Onyx",
	"Umber",
	"Scarlet",
	"Amber",
	"Gold",
	"Emerald",
	"Azure",
	"Violet",
	"Rose",
	"Ivory",
}

var Identities = []string{
	Murderer,
	"The Great Detective",
	"The Mastermind",
	"The Time Traveler",
	"The Jewel Thief",
	"The Wizard",
	"The Master Spy",
	"The Actor",
	"The Royal",
	"The Bureaucrat",
}

var Weapons = []string{
	"Candlestick",
	"Letter Opener",
	"Poison Vial",
	"Revolver",
	"Rope",
	"Wrench",
	"Scalpel",
	"Fire Poker",
	"Paperweight",
}

var Locations = []string{
	"Study",
	"Ballroom",
	"Conservatory",
	"Library",
	"Gallery",
	"Courtyard",
	"Observatory",
	"Boathouse",
	"Servant Quarters",
}

var Motives = []string{
	"Blackmail",
	"Jealousy",
	"Revenge",
	"Inheritance",
	"Cover-up",
	"Obsession",
	"Debt",
	"Rivalry",
	"Silencing Witness",
}

// CatalogFor returns the fixed card list for an evidence type. Aliases are
// not fixed; they come from the locked players of an investigation.
func CatalogFor(t EvidenceType) []string {
	switch t {
	case EvidenceWeapon:
		return Weapons
	case EvidenceLocation:
		return Locations
	case EvidenceMotive:
		return Motives
	default:
		return nil
	}
}

// CheckCard rejects weapon, location and motive items that name no card in
// the catalog. Other types pass unchecked.
func CheckCard(item EvidenceItem) error {
	if !Exclusive(item.Type) || slices.Contains(CatalogFor(item.Type), item.Value) {
		return nil
	}
	return Validation("There is no %s card called %q.", item.Type, item.Value)
}

// CanonicalCard returns the catalog spelling of value, matched without
// regard to case.
func CanonicalCard(t EvidenceType, value string) (string, bool) {
	for _, card := range CatalogFor(t) {
		if strings.EqualFold(card, value) {
			return card, true
		}
	}
	return value, false
}

func IsAliasTitle(s string) bool { return slices.Contains(AliasTitles, s) }

func IsAliasColor(s string) bool { return slices.Contains(AliasColors, s) }

func IsIdentity(s string) bool { return slices.Contains(Identities, s) }

// colorRank orders colors by their position in AliasColors. Unknown colors
// sort after every known one.
func colorRank(color string) int {
	if i := slices.Index(AliasColors, color); i >= 0 {
		return i
	}
	return 99
}
