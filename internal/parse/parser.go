// Package parse turns raw model output into a partial myth document. Model
// responses range from clean JSON through fenced, narrated or truncated
// text, so parsing runs a chain of increasingly forgiving strategies and
// falls back to per-section salvage when the whole object is beyond repair.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/loreforge/loreforge/internal/myth"
)

// Strategy identifies which parsing strategy produced a result.
type Strategy int

const (
	StrategyNone Strategy = iota
	// StrategyDirect parsed the trimmed text as-is.
	StrategyDirect
	// StrategyIsolate parsed the first balanced top-level object.
	StrategyIsolate
	// StrategyRepair parsed after common-malformation repairs.
	StrategyRepair
	// StrategyRepairIsolate isolated the object again after repair.
	StrategyRepairIsolate
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyIsolate:
		return "isolate"
	case StrategyRepair:
		return "repair"
	case StrategyRepairIsolate:
		return "repair+isolate"
	default:
		return "none"
	}
}

// ErrUnparseable is returned when every strategy failed. Callers must still
// attempt section-level salvage before treating the response as lost.
var ErrUnparseable = errors.New("response is not parseable as a single object")

// Document parses raw model output into a partial myth document. The
// returned Strategy records which step of the chain succeeded.
func Document(text string) (*myth.PartialMythDocument, Strategy, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, StrategyNone, fmt.Errorf("%w: empty response", ErrUnparseable)
	}

	if doc, ok := tryUnmarshal(trimmed); ok {
		return doc, StrategyDirect, nil
	}

	if span, ok := isolateObject(trimmed); ok {
		if doc, ok := tryUnmarshal(span); ok {
			return doc, StrategyIsolate, nil
		}
	}

	repaired := Repair(trimmed)
	if doc, ok := tryUnmarshal(repaired); ok {
		return doc, StrategyRepair, nil
	}

	if span, ok := isolateObject(repaired); ok {
		if doc, ok := tryUnmarshal(span); ok {
			return doc, StrategyRepairIsolate, nil
		}
	}

	return nil, StrategyNone, ErrUnparseable
}

func tryUnmarshal(candidate string) (*myth.PartialMythDocument, bool) {
	if !gjson.Valid(candidate) {
		return nil, false
	}
	var doc myth.PartialMythDocument
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		return nil, false
	}
	if doc.IsEmpty() {
		return nil, false
	}
	return &doc, true
}

// isolateObject finds the first '{' and its matching '}' with a
// string-aware depth counter, so braces inside quoted values never skew the
// balance, and returns the enclosed span.
func isolateObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end, ok := matchBrace(text, start)
	if !ok {
		return "", false
	}
	return text[start : end+1], true
}

// matchBrace returns the index of the brace closing the one at open. Quoted
// strings are skipped whole; escaped quotes inside them do not toggle
// string state.
func matchBrace(text string, open int) (int, bool) {
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
