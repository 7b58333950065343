package myth

import (
	"strings"
	"unicode"
)

// RelationshipResolver reconstructs a structured relation from the free-text
// strings models sometimes emit in place of relationship objects. Resolution
// is heuristic; implementations report ok=false for strings they cannot
// anchor to a known entity, and callers drop those silently.
type RelationshipResolver interface {
	Resolve(raw string, known []string) (Relation, bool)
}

// NameMatchResolver anchors free text to the first known entity name it
// contains, comparing case-insensitively on normalized words.
type NameMatchResolver struct{}

func (NameMatchResolver) Resolve(raw string, known []string) (Relation, bool) {
	text := normalizeWords(raw)
	if text == "" {
		return Relation{}, false
	}
	for _, name := range known {
		n := normalizeWords(name)
		if n == "" {
			continue
		}
		if strings.Contains(" "+text+" ", " "+n+" ") {
			return Relation{Target: name, Kind: relationKind(raw)}, true
		}
	}
	return Relation{}, false
}

var relationKinds = []string{
	"sibling", "parent", "child", "rival", "enemy", "ally",
	"consort", "creator", "creation", "servant", "mentor",
}

func relationKind(raw string) string {
	lower := strings.ToLower(raw)
	for _, k := range relationKinds {
		if strings.Contains(lower, k) {
			return k
		}
	}
	return "related"
}

// normalizeWords lowercases and collapses everything that is not a letter
// or digit into single spaces.
func normalizeWords(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// ResolveRelationships rewrites every entity's raw relationship strings into
// structured relations using the given resolver. Unresolvable strings are
// dropped. Already structured relations pass through unchanged.
func ResolveRelationships(entities []Entity, resolver RelationshipResolver) []Entity {
	if resolver == nil {
		resolver = NameMatchResolver{}
	}
	known := make([]string, 0, len(entities))
	for _, e := range entities {
		known = append(known, e.Name)
	}
	out := make([]Entity, len(entities))
	for i, e := range entities {
		resolved := make([]Relation, 0, len(e.Relationships))
		for _, rel := range e.Relationships {
			if rel.Raw == "" {
				resolved = append(resolved, rel)
				continue
			}
			if r, ok := resolver.Resolve(rel.Raw, known); ok {
				resolved = append(resolved, r)
			}
		}
		e.Relationships = resolved
		out[i] = e
	}
	return out
}
