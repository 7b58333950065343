// Package stream turns raw token fragments from a live provider call into
// readable progress snippets. The aggregator is a presentation aid: parsing
// always runs on the full accumulated text, never on emitted snippets.
package stream

import (
	"strings"
	"time"
	"unicode"
)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithFlushInterval sets how long the aggregator waits before emitting a
// snippet once a complete sentence is available.
func WithFlushInterval(d time.Duration) Option {
	return func(a *Aggregator) {
		a.interval = d
	}
}

// WithMaxBuffer sets the pending-buffer length that forces an emission.
func WithMaxBuffer(n int) Option {
	return func(a *Aggregator) {
		a.maxBuffer = n
	}
}

// WithClock overrides the time source. Tests use this to drive the
// interval trigger deterministically.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		a.now = now
	}
}

// Aggregator buffers streamed text and emits the last one or two completed
// sentences whenever a paragraph break arrives, the flush interval elapses
// with a terminated sentence pending, or the pending buffer grows too large.
//
// Not safe for concurrent use; provider callbacks for a single call arrive
// sequentially.
type Aggregator struct {
	full     strings.Builder
	pending  string
	lastEmit time.Time

	interval  time.Duration
	maxBuffer int
	now       func() time.Time
	emit      func(snippet string)
}

// NewAggregator returns an aggregator that invokes emit for each progress
// snippet. A nil emit disables emission; the full text is still accumulated.
func NewAggregator(emit func(snippet string), opts ...Option) *Aggregator {
	a := &Aggregator{
		interval:  2 * time.Second,
		maxBuffer: 1200,
		now:       time.Now,
		emit:      emit,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lastEmit = a.now()
	return a
}

// Append consumes one streamed fragment.
func (a *Aggregator) Append(fragment string) {
	if fragment == "" {
		return
	}
	a.full.WriteString(fragment)
	a.pending += fragment

	switch {
	case strings.Contains(a.pending, "\n\n"):
		a.flush()
	case len(a.pending) >= a.maxBuffer:
		a.flush()
	case a.now().Sub(a.lastEmit) >= a.interval && hasTerminatedSentence(a.pending):
		a.flush()
	}
}

// Text returns everything appended so far. This is the parser's input at
// call completion or timeout.
func (a *Aggregator) Text() string {
	return a.full.String()
}

// Reset clears both buffers, keeping options intact.
func (a *Aggregator) Reset() {
	a.full.Reset()
	a.pending = ""
	a.lastEmit = a.now()
}

// flush emits the last completed sentences from the pending buffer and
// retains any unterminated tail.
func (a *Aggregator) flush() {
	snippet, rest := splitSnippet(a.pending)
	a.pending = strings.TrimLeft(rest, " \t\r\n")
	a.lastEmit = a.now()
	if snippet != "" && a.emit != nil {
		a.emit(snippet)
	}
}

// splitSnippet returns the last one or two completed sentences of text,
// normalized for display, plus the unterminated remainder.
func splitSnippet(text string) (snippet, rest string) {
	end := lastSentenceEnd(text)
	if end < 0 {
		// Nothing terminated. Only a forced flush reaches here; emit the
		// whole buffer rather than hold it indefinitely.
		return normalizeSnippet(text), ""
	}
	terminated := text[:end+1]
	rest = text[end+1:]

	sentences := splitSentences(terminated)
	if n := len(sentences); n > 2 {
		sentences = sentences[n-2:]
	}
	return normalizeSnippet(strings.Join(sentences, " ")), rest
}

func hasTerminatedSentence(text string) bool {
	return lastSentenceEnd(text) >= 0
}

// lastSentenceEnd finds the index of the final sentence terminator, or -1.
func lastSentenceEnd(text string) int {
	return strings.LastIndexAny(text, ".!?")
}

// splitSentences cuts text at sentence terminators, keeping the terminator
// with its sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// normalizeSnippet collapses internal whitespace and strips stray leading
// punctuation left over from mid-sentence cuts.
func normalizeSnippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimLeftFunc(text, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
