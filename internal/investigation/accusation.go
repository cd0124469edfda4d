/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

import "fmt"

const incorrectMessage = "Scotland Yard reports the accusation is incorrect."

// AccusationInput is what a player picks on the crime computer. Weapon,
// Location and Motive are only required when accusing The Murderer.
type AccusationInput struct {
	Alias    string
	Identity string
	Weapon   string
	Location string
	Motive   string
}

// Verdict is the outcome of evaluating an accusation.
type Verdict struct {
	Correct bool
	Message string
}

// EvaluateAccusation checks input against what the accusing client can see.
//
// A murderer accusation is correct only when alias, weapon, location and
// motive all match the case file. Any other accusation is correct when some
// player with a locked alias equal to input.Alias has locked exactly
// input.Identity.
func EvaluateAccusation(input AccusationInput, caseFile *CaseFile, players []Player) (Verdict, error) {
	if input.Alias == "" || input.Identity == "" {
		return Verdict{}, Validation("Select an identity and an alias.")
	}

	if input.Identity == Murderer {
		if caseFile == nil {
			return Verdict{}, Validation("The case file is not locked yet.")
		}
		if input.Weapon == "" || input.Location == "" || input.Motive == "" {
			return Verdict{}, Validation("Select weapon, location, and motive.")
		}

		correct := caseFile.MurdererAlias == input.Alias &&
			caseFile.Weapon == input.Weapon &&
			caseFile.Location == input.Location &&
			caseFile.Motive == input.Motive
		if !correct {
			return Verdict{Message: incorrectMessage}, nil
		}
		return Verdict{
			Correct: true,
			Message: fmt.Sprintf("Scotland Yard confirms the murderer: %s. Case closed.", input.Alias),
		}, nil
	}

	for _, p := range players {
		if !p.AliasLocked || p.Alias() != input.Alias || p.Identity != input.Identity {
			continue
		}
		return Verdict{
			Correct: true,
			Message: fmt.Sprintf("Scotland Yard confirms %s has been EXPOSED as the %s.", input.Alias, input.Identity),
		}, nil
	}

	return Verdict{Message: incorrectMessage}, nil
}

// NewAccusation builds the record to log for input and its verdict.
func NewAccusation(code, accuser string, input AccusationInput, v Verdict) Accusation {
	return Accusation{
		InvestigationCode: code,
		AccuserPlayerID:   accuser,
		AccusedAlias:      input.Alias,
		AccusedIdentity:   input.Identity,
		Weapon:            input.Weapon,
		Location:          input.Location,
		Motive:            input.Motive,
		IsCorrect:         v.Correct,
		Message:           v.Message,
		Kind:              KindAccusation,
	}
}

// RevealFor builds the announcement that follows a correct murderer
// accusation.
func RevealFor(code, accuser string, cf CaseFile) Accusation {
	return Accusation{
		InvestigationCode: code,
		AccuserPlayerID:   accuser,
		AccusedAlias:      cf.MurdererAlias,
		AccusedIdentity:   Murderer,
		Weapon:            cf.Weapon,
		Location:          cf.Location,
		Motive:            cf.Motive,
		IsCorrect:         true,
		Message: fmt.Sprintf("Case file opened: %s, with the %s, in the %s, for %s.",
			cf.MurdererAlias, cf.Weapon, cf.Location, cf.Motive),
		Kind: KindReveal,
	}
}
