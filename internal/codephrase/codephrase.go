// Package codephrase generates, validates, normalizes, and hashes the
// human-memorable pairing code shared out of band between a sender and a
// receiver.
package codephrase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// fallbackWords backs Generate if the installed word-list asset is
// unavailable (petname's tables are compiled in, but a future swap of that
// dependency could leave them empty).
var fallbackWords = []string{
	"swift-ocean", "quiet-ember", "brave-otter", "amber-summit",
	"lucky-harbor", "crisp-meadow", "bold-comet", "calm-willow",
}

var lowerCaser = cases.Lower(language.Und)

// WordSource produces a raw two-word phrase. It exists so Generate's
// word-list asset loading stays swappable, per the out-of-core "word-list
// asset loading" collaborator named in the specification.
type WordSource interface {
	Phrase() (string, error)
}

type petnameSource struct{}

func (petnameSource) Phrase() (string, error) {
	phrase := petname.Generate(2, "-")
	if phrase == "" {
		return "", fmt.Errorf("petname returned no phrase")
	}
	return phrase, nil
}

// DefaultWordSource is the production WordSource, backed by the installed
// petname word lists.
var DefaultWordSource WordSource = petnameSource{}

// Generate produces a canonical code phrase "<adjective>-<noun>" using src,
// falling back to a small embedded list if src fails or yields something
// that doesn't validate.
func Generate(src WordSource) (string, error) {
	if src == nil {
		src = DefaultWordSource
	}

	if phrase, err := src.Phrase(); err == nil {
		normalized := Normalize(phrase)
		if Validate(normalized) {
			return normalized, nil
		}
	}

	idx, err := secureIndex(len(fallbackWords))
	if err != nil {
		return "", fmt.Errorf("codephrase: no word list available: %w", err)
	}
	return Normalize(fallbackWords[idx]), nil
}

// Normalize trims outer whitespace and lower-cases s.
func Normalize(s string) string {
	return lowerCaser.String(strings.TrimSpace(s))
}

// Validate reports whether s normalizes to exactly two non-empty segments
// joined by a single hyphen.
func Validate(s string) bool {
	s = Normalize(s)
	if s == "" {
		return false
	}
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return false
	}
	return parts[0] != "" && parts[1] != ""
}

// Hash returns the lowercase-hex SHA-256 of the canonical form of s.
func Hash(s string) string {
	canonical := Normalize(s)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
