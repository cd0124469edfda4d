/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

// UsedEvidence collects the keys of every evidence item held by players other
// than playerID. The result is a snapshot: concurrent submissions by other
// players are not reflected until the next call.
func UsedEvidence(players []Player, playerID string) map[string]bool {
	used := make(map[string]bool)
	for _, p := range players {
		if p.PlayerID == playerID {
			continue
		}
		for _, item := range p.Evidence {
			used[item.Key()] = true
		}
	}
	return used
}

// Exclusive reports whether evidence of type t may be held by one player only.
func Exclusive(t EvidenceType) bool {
	return t == EvidenceWeapon || t == EvidenceLocation || t == EvidenceMotive
}

// CheckEvidence validates an initial evidence submission for self and returns
// the items to store.
//
// The murderer submits their alias plus one weapon, location and motive, which
// also become the case file. Everyone else submits exactly one weapon, one
// location and one motive. Every card must come from the catalog and none may
// already be held by another player.
func CheckEvidence(self Player, selection []EvidenceItem, used map[string]bool) ([]EvidenceItem, error) {
	if self.EvidenceLocked() {
		return nil, Validation("Initial evidence is already locked.")
	}
	alias := self.Alias()
	if !self.AliasLocked || alias == "" {
		return nil, Validation("Lock your alias first.")
	}
	if self.Identity == "" {
		return nil, Validation("Lock your identity first.")
	}

	var evidence []EvidenceItem
	if self.Identity == Murderer {
		picked := pickByType(selection)
		weapon, location, motive := picked[EvidenceWeapon], picked[EvidenceLocation], picked[EvidenceMotive]
		if weapon == "" || location == "" || motive == "" {
			return nil, Validation("Select a weapon, location, and motive.")
		}
		evidence = []EvidenceItem{
			{Type: EvidenceAlias, Value: alias},
			{Type: EvidenceWeapon, Value: weapon},
			{Type: EvidenceLocation, Value: location},
			{Type: EvidenceMotive, Value: motive},
		}
	} else {
		if len(selection) != 3 {
			return nil, Validation("Select one weapon, one location, and one motive.")
		}
		types := make(map[EvidenceType]bool, 3)
		for _, item := range selection {
			if Exclusive(item.Type) && item.Value != "" {
				types[item.Type] = true
			}
		}
		if len(types) != 3 {
			return nil, Validation("Select one weapon, one location, and one motive.")
		}
		evidence = cloneItems(selection)
	}

	for _, item := range evidence {
		if err := CheckCard(item); err != nil {
			return nil, err
		}
	}
	for _, item := range evidence {
		if used[item.Key()] {
			return nil, Validation("Double check your cards, it looks like there's been an error.")
		}
	}

	return evidence, nil
}

// CaseFileFrom derives the case file from the murderer's evidence.
func CaseFileFrom(code string, evidence []EvidenceItem) (CaseFile, bool) {
	picked := pickByType(evidence)
	cf := CaseFile{
		InvestigationCode: code,
		MurdererAlias:     picked[EvidenceAlias],
		Weapon:            picked[EvidenceWeapon],
		Location:          picked[EvidenceLocation],
		Motive:            picked[EvidenceMotive],
	}
	ok := cf.MurdererAlias != "" && cf.Weapon != "" && cf.Location != "" && cf.Motive != ""
	return cf, ok
}

// pickByType keeps the last value seen for each type.
func pickByType(items []EvidenceItem) map[EvidenceType]string {
	picked := make(map[EvidenceType]string, len(items))
	for _, item := range items {
		if item.Value != "" {
			picked[item.Type] = item.Value
		}
	}
	return picked
}
