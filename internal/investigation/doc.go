/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package investigation holds the rules of the investigation game.
//
// Every player joins with a short code, locks an alias (title and color), a
// secret identity and three evidence cards. Whoever locks "The Murderer"
// submits their alias, weapon, location and motive, which become the case
// file. Players then track clues in a personal notebook and submit
// accusations, which are evaluated against the case file (for the murderer)
// or against the locked identities of the other players.
package investigation
