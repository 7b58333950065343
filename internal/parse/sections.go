package parse

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/loreforge/loreforge/internal/myth"
)

// ExtractSections salvages individually well-formed top-level sections from
// text the full parser gave up on. For each requested section it locates
// the first occurrence of the key, isolates the value's balanced span with
// the same string-aware counter the parser uses, and parses that span in
// isolation. Sections that fail are omitted, never errors; the result may
// be empty. A nil sections argument means all known sections.
func ExtractSections(text string, sections []myth.Section) *myth.PartialMythDocument {
	if sections == nil {
		sections = myth.Sections()
	}
	doc := &myth.PartialMythDocument{}
	for _, s := range sections {
		span, ok := sectionSpan(text, string(s))
		if !ok {
			continue
		}
		if frag, ok := parseFragment(string(s), span); ok {
			doc.Merge(frag)
		} else if frag, ok := parseFragment(string(s), Repair(span)); ok {
			doc.Merge(frag)
		}
	}
	return doc
}

func parseFragment(key, span string) (*myth.PartialMythDocument, bool) {
	candidate := fmt.Sprintf("{%q:%s}", key, span)
	if !gjson.Valid(candidate) {
		return nil, false
	}
	var frag myth.PartialMythDocument
	if err := json.Unmarshal([]byte(candidate), &frag); err != nil {
		return nil, false
	}
	if !frag.Has(myth.Section(key)) {
		return nil, false
	}
	return &frag, true
}

// sectionSpan finds `"key"` followed by a colon and returns the balanced
// span of its value.
func sectionSpan(text, key string) (string, bool) {
	quoted := `"` + key + `"`
	at := strings.Index(text, quoted)
	if at < 0 {
		return "", false
	}
	i := nextNonSpace(text, at+len(quoted))
	if i >= len(text) || text[i] != ':' {
		return "", false
	}
	i = nextNonSpace(text, i+1)
	if i >= len(text) {
		return "", false
	}
	return valueSpan(text, i)
}

// valueSpan isolates a JSON value starting at position i: an object, an
// array or a plain string. Other scalar values never occur as top-level
// section values in this schema.
func valueSpan(text string, i int) (string, bool) {
	switch text[i] {
	case '{', '[':
		end, ok := matchSpan(text, i)
		if !ok {
			return "", false
		}
		return text[i : end+1], true
	case '"':
		end, ok := stringEnd(text, i)
		if !ok {
			return "", false
		}
		return text[i : end+1], true
	}
	return "", false
}

// matchSpan generalizes matchBrace to both object and array brackets.
func matchSpan(text string, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func stringEnd(text string, open int) (int, bool) {
	escaped := false
	for i := open + 1; i < len(text); i++ {
		switch {
		case escaped:
			escaped = false
		case text[i] == '\\':
			escaped = true
		case text[i] == '"':
			return i, true
		}
	}
	return 0, false
}
