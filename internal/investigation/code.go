/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package investigation

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// CodeAlphabet leaves out I, O, 0 and 1, which are easy to misread.
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	DefaultCodeLength = 5
	MaxCodeLength     = 6
	MinJoinCodeLength = 4

	// MaxCreateAttempts bounds how many fresh codes are tried when a new
	// investigation collides with an existing one.
	MaxCreateAttempts = 5
)

// NormalizeCode uppercases s with full Unicode case mapping, drops everything
// outside A-Z and 0-9, and truncates the result to MaxCodeLength characters.
func NormalizeCode(s string) string {
	var b strings.Builder
	for _, r := range cases.Upper(language.Und).String(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == MaxCodeLength {
				break
			}
		}
	}
	return b.String()
}

// ValidJoinCode reports whether code, once normalized, is long enough to look
// up.
func ValidJoinCode(code string) bool {
	return len(NormalizeCode(code)) >= MinJoinCodeLength
}

// GenerateCode returns n characters drawn from CodeAlphabet.
func GenerateCode(n int) (string, error) {
	if n <= 0 {
		n = DefaultCodeLength
	}

	max := big.NewInt(int64(len(CodeAlphabet)))
	code := make([]byte, n)
	for i := range code {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate investigation code: %w", err)
		}
		code[i] = CodeAlphabet[idx.Int64()]
	}
	return string(code), nil
}
