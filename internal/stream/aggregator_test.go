package stream

import (
	"strings"
	"testing"
	"time"
)

func TestAggregatorAccumulatesFullText(t *testing.T) {
	agg := NewAggregator(nil)
	fragments := []string{"The mountain ", "ate the moon. ", "The court ", "of embers was born."}
	for _, f := range fragments {
		agg.Append(f)
	}
	want := strings.Join(fragments, "")
	if agg.Text() != want {
		t.Errorf("Text() = %q, want %q", agg.Text(), want)
	}
}

func TestAggregatorEmitsOnParagraphBreak(t *testing.T) {
	var got []string
	agg := NewAggregator(func(s string) { got = append(got, s) })

	agg.Append("The mountain ate the moon. The court of embers was born.")
	if len(got) != 0 {
		t.Fatalf("emitted before any trigger: %v", got)
	}
	agg.Append("\n\nA new paragraph begins")
	if len(got) != 1 {
		t.Fatalf("emissions = %v, want one after paragraph break", got)
	}
	if !strings.Contains(got[0], "court of embers") {
		t.Errorf("snippet = %q, want the last sentences", got[0])
	}
	if strings.Contains(got[0], "\n") {
		t.Errorf("snippet %q not whitespace-normalized", got[0])
	}
}

func TestAggregatorEmitsAfterInterval(t *testing.T) {
	now := time.Unix(0, 0)
	clock := func() time.Time { return now }

	var got []string
	agg := NewAggregator(func(s string) { got = append(got, s) },
		WithFlushInterval(2*time.Second),
		WithClock(clock),
	)

	agg.Append("The mountain ate the moon")
	if len(got) != 0 {
		t.Fatal("emitted before interval elapsed")
	}

	now = now.Add(3 * time.Second)
	// Interval elapsed, but no sentence terminator yet.
	agg.Append(" and stayed")
	if len(got) != 0 {
		t.Fatalf("emitted without a sentence terminator: %v", got)
	}
	agg.Append(" hungry.")
	if len(got) != 1 {
		t.Fatalf("emissions = %v, want one after interval + terminator", got)
	}
	if got[0] != "The mountain ate the moon and stayed hungry." {
		t.Errorf("snippet = %q", got[0])
	}
}

func TestAggregatorKeepsUnterminatedRemainder(t *testing.T) {
	now := time.Unix(0, 0)
	var got []string
	agg := NewAggregator(func(s string) { got = append(got, s) },
		WithFlushInterval(time.Second),
		WithClock(func() time.Time { return now }),
	)

	now = now.Add(2 * time.Second)
	agg.Append("First sentence. Second half begins but")
	if len(got) != 1 {
		t.Fatalf("emissions = %v", got)
	}
	if got[0] != "First sentence." {
		t.Errorf("snippet = %q", got[0])
	}

	// The retained remainder completes into the next emission.
	now = now.Add(2 * time.Second)
	agg.Append(" never stops. ")
	if len(got) != 2 {
		t.Fatalf("emissions = %v", got)
	}
	if got[1] != "Second half begins but never stops." {
		t.Errorf("snippet = %q", got[1])
	}
}

func TestAggregatorMaxBufferForcesFlush(t *testing.T) {
	var got []string
	agg := NewAggregator(func(s string) { got = append(got, s) },
		WithMaxBuffer(40),
	)

	agg.Append(strings.Repeat("word ", 10)) // 50 bytes, no terminator
	if len(got) != 1 {
		t.Fatalf("emissions = %d, want forced flush at max buffer", len(got))
	}
}

func TestAggregatorEmitsAtMostTwoSentences(t *testing.T) {
	var got []string
	agg := NewAggregator(func(s string) { got = append(got, s) })

	agg.Append("One. Two. Three. Four.\n\n")
	if len(got) != 1 {
		t.Fatalf("emissions = %v", got)
	}
	if got[0] != "Three. Four." {
		t.Errorf("snippet = %q, want the last two sentences", got[0])
	}
}

func TestAggregatorReset(t *testing.T) {
	agg := NewAggregator(nil)
	agg.Append("Some text.")
	agg.Reset()
	if agg.Text() != "" {
		t.Errorf("Text() after reset = %q", agg.Text())
	}
}
