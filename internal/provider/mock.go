package provider

import (
	"context"
	"strings"
	"sync"
)

// Mock provides canned generation responses for tests and offline runs.
// The default handler inspects the prompt to decide which canned document
// to return; tests can install their own handler to script failures,
// truncation or delays.
type Mock struct {
	mu      sync.Mutex
	handler func(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	calls   []string
}

func NewMock() *Mock {
	m := &Mock{}
	m.handler = m.defaultHandler
	return m
}

// SetHandler replaces the response logic. Passing nil restores the default.
func (m *Mock) SetHandler(h func(ctx context.Context, prompt string, opts GenerateOptions) (string, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == nil {
		h = m.defaultHandler
	}
	m.handler = h
}

// Calls returns every prompt seen so far.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, prompt)
	handler := m.handler
	m.mu.Unlock()

	text, err := handler(ctx, prompt, opts)
	if err != nil {
		return "", err
	}
	if opts.OnChunk != nil {
		emitChunks(text, opts.OnChunk)
	}
	return text, nil
}

// emitChunks replays the canned text as small fragments so streaming
// consumers exercise their aggregation logic.
func emitChunks(text string, onChunk func(string)) {
	const size = 48
	for i := 0; i < len(text); i += size {
		end := i + size
		if end > len(text) {
			end = len(text)
		}
		onChunk(text[i:end])
	}
}

func (m *Mock) defaultHandler(_ context.Context, prompt string, _ GenerateOptions) (string, error) {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "world map") || strings.Contains(lower, "thematic analysis"):
		return mockWorldResponse, nil
	default:
		return mockStoryResponse, nil
	}
}

const mockStoryResponse = `{
  "story": {
    "title": "The Shattering of the First Dawn",
    "text": "Before the counting of seasons, the world of Velmoran lay sealed beneath a single unbroken dawn. The light never moved, and nothing beneath it could change, grow, or die. Serakith the Unwoven, first of the luminous ones, grew weary of the stillness and struck the dawn with a spear of cooled starlight. The sky cracked into day and night, and time spilled through the fracture like water through a broken dam. From the falling shards of dawnlight rose the first peoples of Velmoran, each carrying a splinter of the original light behind their eyes. The other luminous ones were divided by the act. Ombrelle of the Deep Hush called it a wound that would never close, and withdrew beneath the Sunken Reach to nurse the darkness left behind. Tharvun the Anvil-Hearted saw instead an invitation, and began hammering the loose hours into mountains so the new world would have bones. Where his hammer fell short, the Murmuring Waste crept in, a desert that remembers every word spoken above it. The first peoples learned to bargain with all three, offering woven prayers at the Fracture Shrines where the old dawn still bleeds through. It is said the dawn will one day be rewoven, and every splinter of light reclaimed, and those who hoard their splinter will be left behind in the long dark that follows.",
    "mood": "mythic"
  },
  "entities": [
    {"name": "Serakith the Unwoven", "type": "deity", "archetype": "creator-destroyer", "description": "First of the luminous ones, who broke the eternal dawn to let time into the world.", "powers": ["starlight shaping", "time release"], "relationships": ["rival of Ombrelle of the Deep Hush"]},
    {"name": "Ombrelle of the Deep Hush", "type": "deity", "archetype": "keeper of shadow", "description": "Guardian of the darkness left behind when the dawn broke, dwelling beneath the Sunken Reach.", "powers": ["silence weaving", "memory keeping"], "relationships": [{"target": "Serakith the Unwoven", "kind": "rival"}]},
    {"name": "Tharvun the Anvil-Hearted", "type": "deity", "archetype": "smith", "description": "Hammerer of loose hours into mountains, giver of bones to the new world.", "powers": ["hour forging", "stone shaping"], "relationships": ["ally of Serakith the Unwoven"]},
    {"name": "Maral of the Splintered Eye", "type": "hero", "archetype": "seeker", "description": "First mortal to carry two splinters of dawnlight, wanderer of the Murmuring Waste.", "powers": ["dawn sight"], "relationships": ["child of Tharvun the Anvil-Hearted"]},
    {"name": "The Murmuring Waste", "type": "spirit", "archetype": "devourer", "description": "A desert that remembers every word spoken above it and repeats them to travelers at night.", "powers": ["word hoarding", "mirage speech"], "relationships": []}
  ]
}`

const mockWorldResponse = `{
  "story": {"title": "ignored restatement", "text": "Phase two sometimes restates the story; it is never trusted."},
  "entities": [{"name": "Echo Entity", "type": "spurious"}],
  "worldMap": {
    "locations": [
      {"name": "The Sunken Reach", "terrain": "abyssal sea", "description": "Drowned basin where Ombrelle keeps the old darkness.", "significance": "holy site"},
      {"name": "The Hourspine Mountains", "terrain": "mountains", "description": "Ranges hammered from loose hours by Tharvun.", "significance": "world's bones"},
      {"name": "The Murmuring Waste", "terrain": "desert", "description": "A desert that hoards spoken words.", "significance": "trial ground"},
      {"name": "Fracture Shrines", "terrain": "highlands", "description": "Places where the old dawn still bleeds through.", "significance": "pilgrimage"}
    ],
    "mapDescription": "Velmoran spreads outward from the Fracture, ringed by hour-forged mountains and the word-hoarding waste.",
    "totalArea": "approximately 1.2 million square leagues"
  },
  "analysis": {
    "timeline": [
      {"title": "The Unbroken Dawn", "era": "before time", "description": "The world sealed beneath a single changeless light."},
      {"title": "The Shattering", "era": "first age", "description": "Serakith strikes the dawn; time enters the world."},
      {"title": "The Forging of Bones", "era": "first age", "description": "Tharvun hammers loose hours into mountains."},
      {"title": "The Long Bargain", "era": "second age", "description": "The first peoples learn to trade prayers at the Fracture Shrines."}
    ],
    "symbols": [
      {"name": "the splinter", "meaning": "a borrowed share of the first light"},
      {"name": "the crack", "meaning": "change purchased at a price"}
    ],
    "archetypeConflicts": [
      {"between": ["creator-destroyer", "keeper of shadow"], "nature": "whether the breaking was liberation or wound"}
    ],
    "thematicDensity": [
      {"theme": "time as debt", "weight": 0.9},
      {"theme": "hoarded light", "weight": 0.7}
    ],
    "socialCode": "Hoarding one's splinter of light is the gravest offense; all oaths are sworn against the rewoven dawn.",
    "characters": ["Serakith the Unwoven", "Ombrelle of the Deep Hush", "Maral of the Splintered Eye"],
    "relationships": ["Serakith and Ombrelle contest the meaning of the Shattering"]
  },
  "ancientLanguage": {
    "languageName": "Velmorani",
    "description": "Liturgical tongue spoken only at the Fracture Shrines.",
    "writingSystem": "radial glyphs carved around a central crack",
    "vocabulary": [
      {"word": "sera", "meaning": "first light", "pronunciation": "SEH-rah"},
      {"word": "kith", "meaning": "to unweave", "pronunciation": "KEETH"},
      {"word": "ombre", "meaning": "kept darkness", "pronunciation": "OM-breh"},
      {"word": "tharv", "meaning": "hammered hour", "pronunciation": "THARV"},
      {"word": "murm", "meaning": "hoarded word", "pronunciation": "MOORM"},
      {"word": "vel", "meaning": "world, womb", "pronunciation": "VEHL"},
      {"word": "moran", "meaning": "beneath the crack", "pronunciation": "moh-RAHN"},
      {"word": "dawnil", "meaning": "splinter-bearer", "pronunciation": "DAW-nil"}
    ]
  },
  "extras": {
    "rituals": ["The Reweaving Vigil, held each year at the Fracture Shrines"],
    "temples": ["The Halls of the Deep Hush"],
    "prophecies": ["When every splinter is returned, the dawn will close like a healed wound."],
    "artifacts": ["Serakith's spear of cooled starlight"]
  }
}`
