// Package myth defines the document schema produced by the generation
// pipeline and the request that drives it. All list fields are semantic
// sets keyed by a natural identity field; merge operations in this package
// preserve that property.
package myth

import (
	"encoding/json"
	"strings"
)

// Category identifies one of the required user selections.
type Category string

const (
	CategoryCulture   Category = "culture"
	CategoryEra       Category = "era"
	CategoryLandscape Category = "landscape"
	CategoryClimate   Category = "climate"
	CategoryPantheon  Category = "pantheon"
	CategoryConflict  Category = "conflict"
	CategoryMagic     Category = "magic"
)

// Categories returns every required selection category in canonical order.
func Categories() []Category {
	return []Category{
		CategoryCulture,
		CategoryEra,
		CategoryLandscape,
		CategoryClimate,
		CategoryPantheon,
		CategoryConflict,
		CategoryMagic,
	}
}

// GenerationRequest carries the user's selections into a generation run.
// It is immutable once a generation starts.
type GenerationRequest struct {
	// Selections maps every category to a chosen option. All seven
	// categories must be present.
	Selections map[Category]string `json:"selections"`

	// Custom holds optional free-text descriptions per category. Entries
	// here drive the fidelity check after generation.
	Custom map[Category]string `json:"custom,omitempty"`

	// Mood is a tone tag ("dark", "hopeful", ...) that influences
	// generation parameters.
	Mood string `json:"mood,omitempty"`
}

// Customized returns the categories that carry a non-empty custom
// description.
func (r GenerationRequest) Customized() []Category {
	var out []Category
	for _, c := range Categories() {
		if strings.TrimSpace(r.Custom[c]) != "" {
			out = append(out, c)
		}
	}
	return out
}

// Section names one top-level field of the document schema.
type Section string

const (
	SectionStory    Section = "story"
	SectionEntities Section = "entities"
	SectionWorldMap Section = "worldMap"
	SectionAnalysis Section = "analysis"
	SectionLanguage Section = "ancientLanguage"
	SectionExtras   Section = "extras"
)

// Sections returns every known top-level section in schema order.
func Sections() []Section {
	return []Section{
		SectionStory,
		SectionEntities,
		SectionWorldMap,
		SectionAnalysis,
		SectionLanguage,
		SectionExtras,
	}
}

// RequiredSections returns the sections a complete document must carry.
// Extras are decorative and never block completion.
func RequiredSections() []Section {
	return []Section{
		SectionStory,
		SectionEntities,
		SectionWorldMap,
		SectionAnalysis,
		SectionLanguage,
	}
}

// Story is the central narrative of the mythology.
type Story struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Mood  string `json:"mood,omitempty"`
}

// WordCount reports the number of whitespace-separated words in the story
// text.
func (s Story) WordCount() int {
	return len(strings.Fields(s.Text))
}

// Relation is a directed edge from one entity to another. Models sometimes
// return relationships as free text rather than structured objects; such
// values land in Raw and are resolved later against known entity names.
type Relation struct {
	Target string `json:"target,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Raw    string `json:"-"`
}

// UnmarshalJSON accepts either a structured relation object or a bare
// string.
func (r *Relation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = Relation{Raw: s}
		return nil
	}
	type relation Relation
	var obj relation
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = Relation(obj)
	return nil
}

// MarshalJSON emits the structured form; unresolved raw strings round-trip
// as strings.
func (r Relation) MarshalJSON() ([]byte, error) {
	if r.Target == "" && r.Raw != "" {
		return json.Marshal(r.Raw)
	}
	type relation Relation
	return json.Marshal(relation(r))
}

// Entity is a named actor of the mythology: deity, hero, beast, spirit.
type Entity struct {
	Name          string     `json:"name"`
	Type          string     `json:"type,omitempty"`
	Archetype     string     `json:"archetype,omitempty"`
	Description   string     `json:"description,omitempty"`
	Powers        []string   `json:"powers,omitempty"`
	Relationships []Relation `json:"relationships,omitempty"`
}

// Location is one named place on the world map.
type Location struct {
	Name         string `json:"name"`
	Terrain      string `json:"terrain,omitempty"`
	Description  string `json:"description,omitempty"`
	Significance string `json:"significance,omitempty"`
}

// WorldMap describes the mythology's geography.
type WorldMap struct {
	Locations      []Location `json:"locations"`
	MapDescription string     `json:"mapDescription,omitempty"`
	TotalArea      string     `json:"totalArea,omitempty"`
}

// TimelineEvent is one entry of the mythic chronology, keyed by title.
type TimelineEvent struct {
	Title       string `json:"title"`
	Era         string `json:"era,omitempty"`
	Description string `json:"description,omitempty"`
}

// Symbol pairs a recurring symbol with its meaning.
type Symbol struct {
	Name    string `json:"name"`
	Meaning string `json:"meaning,omitempty"`
}

// ArchetypeConflict records a structural tension between archetypes.
type ArchetypeConflict struct {
	Between []string `json:"between,omitempty"`
	Nature  string   `json:"nature,omitempty"`
}

// ThemeWeight scores how strongly a theme runs through the mythology.
type ThemeWeight struct {
	Theme  string  `json:"theme"`
	Weight float64 `json:"weight,omitempty"`
}

// Analysis is the thematic breakdown of the generated mythology.
type Analysis struct {
	Timeline           []TimelineEvent     `json:"timeline,omitempty"`
	Symbols            []Symbol            `json:"symbols,omitempty"`
	ArchetypeConflicts []ArchetypeConflict `json:"archetypeConflicts,omitempty"`
	ThematicDensity    []ThemeWeight       `json:"thematicDensity,omitempty"`
	SocialCode         string              `json:"socialCode,omitempty"`
	Characters         []string            `json:"characters,omitempty"`
	Relationships      []string            `json:"relationships,omitempty"`
}

// VocabularyEntry is one word of the constructed language, keyed by word.
type VocabularyEntry struct {
	Word          string `json:"word"`
	Meaning       string `json:"meaning,omitempty"`
	Pronunciation string `json:"pronunciation,omitempty"`
}

// AncientLanguage describes the mythology's constructed tongue.
type AncientLanguage struct {
	LanguageName  string            `json:"languageName"`
	Description   string            `json:"description,omitempty"`
	WritingSystem string            `json:"writingSystem,omitempty"`
	Vocabulary    []VocabularyEntry `json:"vocabulary"`
}

// Extras holds decorative world detail that enriches but never gates a
// document.
type Extras struct {
	Rituals    []string `json:"rituals,omitempty"`
	Temples    []string `json:"temples,omitempty"`
	Prophecies []string `json:"prophecies,omitempty"`
	Artifacts  []string `json:"artifacts,omitempty"`
}

// MythDocument is the fully assembled generation result.
type MythDocument struct {
	Story           Story           `json:"story"`
	Entities        []Entity        `json:"entities"`
	WorldMap        WorldMap        `json:"worldMap"`
	Analysis        Analysis        `json:"analysis"`
	AncientLanguage AncientLanguage `json:"ancientLanguage"`
	Extras          Extras          `json:"extras,omitempty"`
}

// PartialMythDocument mirrors MythDocument with every section optional. It
// is the working value while parsing, validating and recovering a response.
type PartialMythDocument struct {
	Story           *Story           `json:"story,omitempty"`
	Entities        []Entity         `json:"entities,omitempty"`
	WorldMap        *WorldMap        `json:"worldMap,omitempty"`
	Analysis        *Analysis        `json:"analysis,omitempty"`
	AncientLanguage *AncientLanguage `json:"ancientLanguage,omitempty"`
	Extras          *Extras          `json:"extras,omitempty"`
}

// Has reports whether the named section is present at all.
func (d *PartialMythDocument) Has(s Section) bool {
	if d == nil {
		return false
	}
	switch s {
	case SectionStory:
		return d.Story != nil
	case SectionEntities:
		return len(d.Entities) > 0
	case SectionWorldMap:
		return d.WorldMap != nil
	case SectionAnalysis:
		return d.Analysis != nil
	case SectionLanguage:
		return d.AncientLanguage != nil
	case SectionExtras:
		return d.Extras != nil
	}
	return false
}

// PresentSections lists the sections currently populated.
func (d *PartialMythDocument) PresentSections() []Section {
	var out []Section
	for _, s := range Sections() {
		if d.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// IsEmpty reports whether no section at all was recovered.
func (d *PartialMythDocument) IsEmpty() bool {
	return d == nil || len(d.PresentSections()) == 0
}

// RecoveryStatus summarizes a recovery pass for the presentation layer.
type RecoveryStatus struct {
	Recovered  []Section `json:"recovered,omitempty"`
	Missing    []Section `json:"missing,omitempty"`
	Incomplete []Section `json:"incomplete,omitempty"`
	Resolved   bool      `json:"resolved"`
}

// FidelityReport scores how well user-authored custom concepts surfaced in
// the generated content. It is derived per generation and never persisted.
type FidelityReport struct {
	Score           float64  `json:"score"`
	IsValid         bool     `json:"isValid"`
	MissingFeatures []string `json:"missingFeatures,omitempty"`
}
