package validate

import (
	"strings"

	"github.com/loreforge/loreforge/internal/myth"
)

// wellKnownFigures is the deny-list of figures from existing mythologies.
// The product contract is an invented mythology, so a match here suggests
// the model copied instead of creating. Matching is reported, never
// blocking.
var wellKnownFigures = []string{
	"zeus", "hera", "poseidon", "hades", "athena", "apollo", "artemis",
	"ares", "aphrodite", "hermes", "dionysus", "cronos", "prometheus",
	"odin", "thor", "loki", "freya", "baldur", "heimdall", "fenrir",
	"ra", "osiris", "isis", "anubis", "horus", "set", "thoth",
	"shiva", "vishnu", "brahma", "kali", "ganesha", "indra",
	"amaterasu", "susanoo", "izanagi", "izanami",
	"quetzalcoatl", "tezcatlipoca", "gilgamesh", "enkidu", "marduk",
	"ishtar", "tiamat",
}

// CreativityReport flags content copied from existing mythologies.
type CreativityReport struct {
	Original bool
	// Matches lists the recognized figures found, lowercased.
	Matches []string
}

// Creativity scans entity names and story text for well-known figures.
func Creativity(doc *myth.PartialMythDocument) CreativityReport {
	if doc == nil {
		return CreativityReport{Original: true}
	}
	var haystack strings.Builder
	if doc.Story != nil {
		haystack.WriteString(doc.Story.Title)
		haystack.WriteByte(' ')
		haystack.WriteString(doc.Story.Text)
	}
	for _, e := range doc.Entities {
		haystack.WriteByte(' ')
		haystack.WriteString(e.Name)
	}
	lower := strings.ToLower(haystack.String())

	var matches []string
	for _, figure := range wellKnownFigures {
		if containsWord(lower, figure) {
			matches = append(matches, figure)
		}
	}
	return CreativityReport{Original: len(matches) == 0, Matches: matches}
}

// containsWord matches figure as a whole word so invented names that merely
// embed a deny-listed name ("Rathor") do not trip the check.
func containsWord(haystack, word string) bool {
	for at := 0; ; {
		i := strings.Index(haystack[at:], word)
		if i < 0 {
			return false
		}
		i += at
		before := i == 0 || !isLetter(haystack[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(haystack) || !isLetter(haystack[afterIdx])
		if before && after {
			return true
		}
		at = i + 1
	}
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
