/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

import (
	"slices"
	"strings"
)

// FormatAlias joins title and color as "<title> <color>". It returns "" when
// either part is missing.
func FormatAlias(title, color string) string {
	if title == "" || color == "" {
		return ""
	}
	return strings.TrimSpace(title + " " + color)
}

// AliasOptions lists the aliases of every player who has locked one, in the
// canonical color order of AliasColors. Database order is irrelevant.
func AliasOptions(players []Player) []string {
	type option struct {
		label string
		rank  int
	}

	opts := make([]option, 0, len(players))
	for _, p := range players {
		if !p.AliasLocked || p.AliasTitle == "" || p.AliasColor == "" {
			continue
		}
		opts = append(opts, option{label: p.Alias(), rank: colorRank(p.AliasColor)})
	}

	slices.SortStableFunc(opts, func(a, b option) int {
		return a.rank - b.rank
	})

	labels := make([]string, len(opts))
	for i, o := range opts {
		labels[i] = o.label
	}
	return labels
}

// AvailableColors returns the colors nobody has locked yet. own is always
// included so a player keeps seeing their current choice.
func AvailableColors(players []Player, own string) []string {
	taken := make(map[string]bool, len(players))
	for _, p := range players {
		if p.AliasLocked && p.AliasColor != "" {
			taken[p.AliasColor] = true
		}
	}

	colors := make([]string, 0, len(AliasColors))
	for _, c := range AliasColors {
		if !taken[c] || c == own {
			colors = append(colors, c)
		}
	}
	return colors
}
