package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/myth"
	"github.com/loreforge/loreforge/internal/provider"
)

func testRequest() myth.GenerationRequest {
	req := myth.GenerationRequest{Selections: map[myth.Category]string{}, Mood: "mythic"}
	for _, c := range myth.Categories() {
		req.Selections[c] = "any"
	}
	return req
}

// promptKind classifies which pipeline step a prompt belongs to, keyed on
// wording each template is known to carry.
func promptKind(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "completing a partially generated"):
		return "recovery"
	case strings.Contains(lower, "previous draft ignored"):
		return "retry"
	case strings.Contains(lower, "world map"):
		return "phase2"
	default:
		return "phase1"
	}
}

const testLanguageFragment = `{
  "ancientLanguage": {
    "languageName": "Velmorani",
    "vocabulary": [
      {"word": "sera"}, {"word": "kith"}, {"word": "ombre"}, {"word": "tharv"},
      {"word": "murm"}, {"word": "velor"}, {"word": "moran"}, {"word": "dawnil"}
    ]
  }
}`

const testPhase2Response = `{
  "story": {"title": "Echoed Title", "text": "An untrustworthy restatement."},
  "entities": [{"name": "Echo Entity"}],
  "worldMap": {"locations": [{"name": "Reach"}, {"name": "Spine"}, {"name": "Waste"}, {"name": "Shrines"}]},
  "analysis": {"timeline": [{"title": "E1"}, {"title": "E2"}, {"title": "E3"}, {"title": "E4"}]},
  "ancientLanguage": {
    "languageName": "Velmorani",
    "vocabulary": [
      {"word": "sera"}, {"word": "kith"}, {"word": "ombre"}, {"word": "tharv"},
      {"word": "murm"}, {"word": "velor"}, {"word": "moran"}, {"word": "dawnil"}
    ]
  }
}`

func phase1Response(storyText string) string {
	return fmt.Sprintf(`{
  "story": {"title": "The Shattering", "text": %q},
  "entities": [
    {"name": "Serakith", "relationships": ["rival of Ombrelle"]},
    {"name": "Ombrelle"}, {"name": "Tharvun"}, {"name": "Maral"}, {"name": "The Waste"}
  ]
}`, storyText)
}

func longStory() string {
	return strings.Repeat("The dawn broke and time spilled through the fracture like falling water. ", 14)
}

func TestGenerateHappyPath(t *testing.T) {
	mock := provider.NewMock()
	mock.SetHandler(func(_ context.Context, prompt string, _ provider.GenerateOptions) (string, error) {
		switch promptKind(prompt) {
		case "phase2":
			return testPhase2Response, nil
		default:
			return phase1Response(longStory()), nil
		}
	})

	var phases []Phase
	var mu sync.Mutex
	eng := New(mock, config.DefaultLimits(), config.DefaultThresholds(),
		WithCallbacks(Callbacks{OnStateChange: func(s State) {
			mu.Lock()
			phases = append(phases, s.Phase)
			mu.Unlock()
		}}),
	)

	res, err := eng.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	// Phase 2's echoed story and entities are never trusted.
	assert.Equal(t, "The Shattering", res.Document.Story.Title)
	require.Len(t, res.Document.Entities, 5)
	for _, e := range res.Document.Entities {
		assert.NotEqual(t, "Echo Entity", e.Name)
	}
	assert.Len(t, res.Document.WorldMap.Locations, 4)
	assert.Len(t, res.Document.AncientLanguage.Vocabulary, 8)
	assert.True(t, res.Recovery.Resolved)
	assert.True(t, res.Creativity.Original)

	// Free-text relationships are resolved against known entity names.
	rels := res.Document.Entities[0].Relationships
	require.Len(t, rels, 1)
	assert.Equal(t, "Ombrelle", rels[0].Target)
	assert.Equal(t, "rival", rels[0].Kind)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, PhaseComplete, phases[len(phases)-1])
	assert.Contains(t, phases, PhaseRequesting)
	assert.Contains(t, phases, PhaseParsing)
	assert.Contains(t, phases, PhaseValidating)
	assert.Equal(t, PhaseComplete, eng.State().Phase)
}

func TestGenerateSalvagesTruncatedPhase1AndRecovers(t *testing.T) {
	// Phase 1 cut off mid-vocabulary-array: the full parse must fail, the
	// extractor must still save story and entities, and recovery must
	// regenerate only the language section.
	truncated := phase1Response(longStory())
	truncated = strings.TrimSuffix(strings.TrimSpace(truncated), "}") +
		`, "ancientLanguage": {"languageName": "Velmorani", "vocabulary": [{"word": "sera"}, {"word": "ki`

	phase2 := `{
	  "worldMap": {"locations": [{"name": "Reach"}, {"name": "Spine"}, {"name": "Waste"}, {"name": "Shrines"}]},
	  "analysis": {"timeline": [{"title": "E1"}, {"title": "E2"}, {"title": "E3"}, {"title": "E4"}]}
	}`

	calls := map[string]int{}
	var mu sync.Mutex
	mock := provider.NewMock()
	mock.SetHandler(func(_ context.Context, prompt string, _ provider.GenerateOptions) (string, error) {
		kind := promptKind(prompt)
		mu.Lock()
		calls[kind]++
		mu.Unlock()
		switch kind {
		case "phase2":
			return phase2, nil
		case "recovery":
			return testLanguageFragment, nil
		default:
			return truncated, nil
		}
	})

	var recoveries []myth.RecoveryStatus
	eng := New(mock, config.DefaultLimits(), config.DefaultThresholds(),
		WithCallbacks(Callbacks{OnRecovery: func(s myth.RecoveryStatus) {
			recoveries = append(recoveries, s)
		}}),
	)

	res, err := eng.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	// Phase 1's entities survive unchanged.
	require.Len(t, res.Document.Entities, 5)
	assert.Equal(t, "Serakith", res.Document.Entities[0].Name)
	// The regenerated vocabulary meets the minimum threshold.
	assert.GreaterOrEqual(t, len(res.Document.AncientLanguage.Vocabulary), config.DefaultThresholds().MinVocabulary)

	assert.True(t, res.Recovery.Resolved)
	assert.Contains(t, res.Recovery.Recovered, myth.SectionLanguage)
	require.Len(t, recoveries, 1)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls["phase1"])
	assert.Equal(t, 1, calls["phase2"])
	assert.Equal(t, 1, calls["recovery"])
}

func TestCancelMidPhaseDiscardsLateResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	mock := provider.NewMock()
	mock.SetHandler(func(_ context.Context, _ string, _ provider.GenerateOptions) (string, error) {
		once.Do(func() { close(started) })
		<-release
		return phase1Response(longStory()), nil
	})

	eng := New(mock, config.DefaultLimits(), config.DefaultThresholds())

	errc := make(chan error, 1)
	go func() {
		_, err := eng.Generate(context.Background(), testRequest())
		errc <- err
	}()
	<-started

	// A second request while one is in flight is refused.
	_, err := eng.Generate(context.Background(), testRequest())
	assert.ErrorIs(t, err, ErrGenerationInFlight)

	eng.Cancel()
	assert.Equal(t, PhaseIdle, eng.State().Phase)

	// Let the in-flight call resolve after the cancel; its result must be
	// discarded, not applied.
	close(release)
	assert.ErrorIs(t, <-errc, ErrCancelled)

	state := eng.State()
	assert.Equal(t, PhaseIdle, state.Phase)
	assert.Nil(t, state.Document)
	assert.Empty(t, state.StreamText)
}

func TestPhaseTimeoutUsesPartialStreamedText(t *testing.T) {
	mock := provider.NewMock()
	mock.SetHandler(func(ctx context.Context, prompt string, opts provider.GenerateOptions) (string, error) {
		var full string
		if promptKind(prompt) == "phase2" {
			full = testPhase2Response
		} else {
			full = phase1Response(longStory())
		}
		// Stream the whole body, then hang until the call is abandoned.
		if opts.OnChunk != nil {
			opts.OnChunk(full)
		}
		<-ctx.Done()
		return "", ctx.Err()
	})

	limits := config.DefaultLimits()
	limits.PhaseTimeout = 50 * time.Millisecond
	eng := New(mock, limits, config.DefaultThresholds())

	res, err := eng.Generate(context.Background(), testRequest())
	require.NoError(t, err, "timed-out phases must fall back to buffered text")
	assert.Equal(t, "The Shattering", res.Document.Story.Title)
	assert.Len(t, res.Document.WorldMap.Locations, 4)
}

func TestPhaseTimeoutWhileProviderKeepsStreaming(t *testing.T) {
	// A provider that keeps emitting chunks after the phase timer fires must
	// not corrupt the salvage text: the engine reads its own guarded
	// snapshot, never the live buffer the streaming goroutine writes to.
	// Run with the race detector to guard the ownership rule.
	mock := provider.NewMock()
	mock.SetHandler(func(ctx context.Context, prompt string, opts provider.GenerateOptions) (string, error) {
		if promptKind(prompt) == "phase2" {
			return testPhase2Response, nil
		}
		if opts.OnChunk != nil {
			opts.OnChunk(phase1Response(longStory()))
		}
		for {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Millisecond):
				if opts.OnChunk != nil {
					opts.OnChunk(" The telling went on past its hour.")
				}
			}
		}
	})

	limits := config.DefaultLimits()
	limits.PhaseTimeout = 40 * time.Millisecond
	eng := New(mock, limits, config.DefaultThresholds())

	res, err := eng.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "The Shattering", res.Document.Story.Title)
	require.Len(t, res.Document.Entities, 5)
}

func TestContextOverflowStepsDownBudget(t *testing.T) {
	var budgets []int
	var mu sync.Mutex
	mock := provider.NewMock()
	mock.SetHandler(func(_ context.Context, prompt string, opts provider.GenerateOptions) (string, error) {
		mu.Lock()
		budgets = append(budgets, opts.MaxOutputTokens)
		mu.Unlock()
		if promptKind(prompt) == "phase2" {
			return testPhase2Response, nil
		}
		if opts.MaxOutputTokens > 4096 {
			return "", &provider.Error{Status: 400, Code: "context_length_exceeded",
				Message: "requested tokens exceed the context window"}
		}
		return phase1Response(longStory()), nil
	})

	eng := New(mock, config.DefaultLimits(), config.DefaultThresholds())
	res, err := eng.Generate(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "The Shattering", res.Document.Story.Title)

	// Phase 1 walks the descending sequence until the call fits; phase 2
	// starts over at the full budget.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{8192, 6144, 4096, 8192}, budgets)
}

func TestContextOverflowExhaustsRetryCeiling(t *testing.T) {
	var budgets []int
	var mu sync.Mutex
	mock := provider.NewMock()
	mock.SetHandler(func(_ context.Context, _ string, opts provider.GenerateOptions) (string, error) {
		mu.Lock()
		budgets = append(budgets, opts.MaxOutputTokens)
		mu.Unlock()
		return "", &provider.Error{Status: 400, Code: "context_length_exceeded",
			Message: "requested tokens exceed the context window"}
	})

	eng := New(mock, config.DefaultLimits(), config.DefaultThresholds())
	_, err := eng.Generate(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, IsProviderFailure(err))
	assert.Equal(t, PhaseFailed, eng.State().Phase)

	// MaxProviderRetries bounds the step-downs: the first call plus three
	// retries, never the tail of the budget sequence.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{8192, 6144, 4096, 3072}, budgets)
}

func TestFidelityRetryKeepsBetterCandidate(t *testing.T) {
	req := testRequest()
	req.Custom = map[myth.Category]string{
		myth.Category("pantheon"): "gods woven from glacier ice",
		myth.Category("magic"):    "songs that rust metal",
	}

	retryStory := "From the glacier the gods were woven, and their songs rust metal wherever they are sung. " +
		longStory()
	retryResponse := fmt.Sprintf(`{
	  "story": {"title": "The Glacier Choir", "text": %q},
	  "entities": [{"name": "Serakith"}, {"name": "Ombrelle"}, {"name": "Tharvun"}, {"name": "Maral"}, {"name": "The Waste"}]
	}`, retryStory)

	retries := 0
	mock := provider.NewMock()
	mock.SetHandler(func(_ context.Context, prompt string, _ provider.GenerateOptions) (string, error) {
		switch promptKind(prompt) {
		case "retry":
			retries++
			return retryResponse, nil
		case "phase2":
			return testPhase2Response, nil
		default:
			// No trace of the custom concepts.
			return phase1Response(longStory()), nil
		}
	})

	eng := New(mock, config.DefaultLimits(), config.DefaultThresholds())
	res, err := eng.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, retries, "exactly one enhanced retry")
	require.NotNil(t, res.Fidelity)
	assert.Equal(t, float64(100), res.Fidelity.Score)
	assert.True(t, res.Fidelity.IsValid)
	assert.Equal(t, "The Glacier Choir", res.Document.Story.Title)
}

func TestFidelityRetryTieKeepsOriginal(t *testing.T) {
	req := testRequest()
	req.Custom = map[myth.Category]string{
		myth.Category("pantheon"): "gods woven from glacier ice",
		myth.Category("magic"):    "songs that rust metal",
	}

	// Both drafts trace the glacier and neither traces the magic: the
	// scores tie at 50 and the original draft must stand.
	original := phase1Response("The glacier held the first dawn. " + longStory())
	retryResponse := fmt.Sprintf(`{
	  "story": {"title": "The Second Telling", "text": %q},
	  "entities": [{"name": "Serakith"}, {"name": "Ombrelle"}, {"name": "Tharvun"}, {"name": "Maral"}, {"name": "The Waste"}]
	}`, "Beneath the glacier the telling began anew. "+longStory())

	retries := 0
	mock := provider.NewMock()
	mock.SetHandler(func(_ context.Context, prompt string, _ provider.GenerateOptions) (string, error) {
		switch promptKind(prompt) {
		case "retry":
			retries++
			return retryResponse, nil
		case "phase2":
			return testPhase2Response, nil
		default:
			return original, nil
		}
	})

	eng := New(mock, config.DefaultLimits(), config.DefaultThresholds())
	res, err := eng.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, retries)
	require.NotNil(t, res.Fidelity)
	assert.Equal(t, float64(50), res.Fidelity.Score)
	assert.False(t, res.Fidelity.IsValid)
	assert.Equal(t, "The Shattering", res.Document.Story.Title, "tie must keep the original draft")
}

func TestGenerateProgressSnippets(t *testing.T) {
	mock := provider.NewMock() // default handler streams in small chunks

	var snippets []string
	var mu sync.Mutex
	limits := config.DefaultLimits()
	limits.StreamMaxBuffer = 200 // force emissions without waiting on the clock
	eng := New(mock, limits, config.DefaultThresholds(),
		WithCallbacks(Callbacks{OnProgress: func(s string) {
			mu.Lock()
			snippets = append(snippets, s)
			mu.Unlock()
		}}),
	)

	_, err := eng.Generate(context.Background(), testRequest())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, snippets)
}
