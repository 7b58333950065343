// Package prompt builds the text sent to the provider for each generation
// phase. Templates are compiled once at init; builders only fill in data.
package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/loreforge/loreforge/internal/myth"
)

const storyExcerptLimit = 400

var (
	phase1Tmpl   = template.Must(template.New("phase1").Parse(phase1Template))
	phase2Tmpl   = template.Must(template.New("phase2").Parse(phase2Template))
	recoveryTmpl = template.Must(template.New("recovery").Parse(recoveryTemplate))
	retryTmpl    = template.Must(template.New("retry").Parse(retryTemplate))
)

type selectionLine struct {
	Category string
	Choice   string
	Custom   string
}

type phaseData struct {
	Selections []selectionLine
	Mood       string

	// Phase 2 / recovery context.
	StoryTitle    string
	StoryExcerpt  string
	EntityNames   []string
	LocationNames []string

	// Recovery.
	Sections []string

	// Enhanced retry.
	MissingFeatures []string
}

// Phase1 builds the story-and-entities prompt.
func Phase1(req myth.GenerationRequest) (string, error) {
	return execute(phase1Tmpl, dataFor(req))
}

// Phase2 builds the world-building prompt, carrying condensed phase 1
// output as context.
func Phase2(req myth.GenerationRequest, story myth.Story, entities []myth.Entity) (string, error) {
	d := dataFor(req)
	d.StoryTitle = story.Title
	d.StoryExcerpt = excerpt(story.Text, storyExcerptLimit)
	d.EntityNames = entityNames(entities)
	return execute(phase2Tmpl, d)
}

// Recovery builds a targeted request for only the named sections,
// with enough context that the model need not repeat finished work.
func Recovery(req myth.GenerationRequest, doc *myth.PartialMythDocument, sections []myth.Section) (string, error) {
	d := dataFor(req)
	for _, s := range sections {
		d.Sections = append(d.Sections, string(s))
	}
	if doc.Story != nil {
		d.StoryTitle = doc.Story.Title
		d.StoryExcerpt = excerpt(doc.Story.Text, storyExcerptLimit)
	}
	d.EntityNames = entityNames(doc.Entities)
	if doc.WorldMap != nil {
		for _, loc := range doc.WorldMap.Locations {
			d.LocationNames = append(d.LocationNames, loc.Name)
		}
	}
	return execute(recoveryTmpl, d)
}

// EnhancedRetry builds a phase 1 prompt that calls out customizations the
// previous attempt failed to honor.
func EnhancedRetry(req myth.GenerationRequest, missingFeatures []string) (string, error) {
	d := dataFor(req)
	d.MissingFeatures = missingFeatures
	return execute(retryTmpl, d)
}

// TemperatureForMood maps the request mood to a sampling temperature.
// Unknown moods get the default.
func TemperatureForMood(mood string) float64 {
	switch strings.ToLower(strings.TrimSpace(mood)) {
	case "solemn", "scholarly":
		return 0.7
	case "dark", "grim":
		return 0.85
	case "whimsical", "playful":
		return 1.0
	default:
		return 0.9
	}
}

func dataFor(req myth.GenerationRequest) phaseData {
	cats := make([]string, 0, len(req.Selections))
	for c := range req.Selections {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	d := phaseData{Mood: req.Mood}
	for _, c := range cats {
		cat := myth.Category(c)
		d.Selections = append(d.Selections, selectionLine{
			Category: c,
			Choice:   req.Selections[cat],
			Custom:   req.Custom[cat],
		})
	}
	return d
}

func execute(tmpl *template.Template, d phaseData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("executing prompt template %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func entityNames(entities []myth.Entity) []string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, e.Name)
	}
	return names
}

func excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	cut := text[:limit]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}

const phase1Template = `You are a mythology author inventing an entirely original mythos. Do not reuse figures, names, or plots from real-world mythology or fiction.

World parameters:
{{- range .Selections}}
- {{.Category}}: {{.Choice}}{{if .Custom}} — the creator insists: {{.Custom}}{{end}}
{{- end}}
Mood: {{.Mood}}

Write the founding myth and its cast. Respond with a single JSON object and nothing else, matching this shape:
{
  "story": {"title": string, "text": string, "mood": string},
  "entities": [{"name": string, "type": string, "archetype": string, "description": string, "powers": [string], "relationships": [{"target": string, "kind": string}]}]
}

The story text must be a substantial narrative, at least several paragraphs. Include at least five entities. Every custom instruction above must be visibly woven into the story or the entities.`

const phase2Template = `You are a mythology author expanding an existing mythos into its world map, thematic analysis, and ancient language.

World parameters:
{{- range .Selections}}
- {{.Category}}: {{.Choice}}{{if .Custom}} — the creator insists: {{.Custom}}{{end}}
{{- end}}
Mood: {{.Mood}}

The founding myth is "{{.StoryTitle}}": {{.StoryExcerpt}}
Known figures: {{range $i, $n := .EntityNames}}{{if $i}}, {{end}}{{$n}}{{end}}.

Respond with a single JSON object and nothing else, matching this shape:
{
  "worldMap": {"locations": [{"name": string, "terrain": string, "description": string, "significance": string}], "mapDescription": string, "totalArea": string},
  "analysis": {"timeline": [{"title": string, "era": string, "description": string}], "symbols": [{"name": string, "meaning": string}], "archetypeConflicts": [{"between": [string], "nature": string}], "thematicDensity": [{"theme": string, "weight": number}], "socialCode": string, "characters": [string], "relationships": [string]},
  "ancientLanguage": {"languageName": string, "description": string, "writingSystem": string, "vocabulary": [{"word": string, "meaning": string, "pronunciation": string}]},
  "extras": {"rituals": [string], "temples": [string], "prophecies": [string], "artifacts": [string]}
}

Include at least four locations, four timeline events, and eight vocabulary words. Stay consistent with the founding myth and its figures.`

const recoveryTemplate = `You are completing a partially generated mythology document. Produce ONLY the following sections: {{range $i, $s := .Sections}}{{if $i}}, {{end}}{{$s}}{{end}}.

World parameters:
{{- range .Selections}}
- {{.Category}}: {{.Choice}}{{if .Custom}} — the creator insists: {{.Custom}}{{end}}
{{- end}}
{{- if .StoryTitle}}
The founding myth is "{{.StoryTitle}}": {{.StoryExcerpt}}
{{- end}}
{{- if .EntityNames}}
Known figures: {{range $i, $n := .EntityNames}}{{if $i}}, {{end}}{{$n}}{{end}}.
{{- end}}
{{- if .LocationNames}}
Known places: {{range $i, $n := .LocationNames}}{{if $i}}, {{end}}{{$n}}{{end}}.
{{- end}}

Respond with a single JSON object containing exactly the requested sections as top-level keys, in the established document shape, and nothing else. Stay consistent with the names above; do not rename or contradict them.`

const retryTemplate = `You are a mythology author inventing an entirely original mythos. A previous draft ignored some of the creator's explicit instructions. This draft MUST incorporate every one of them.

Previously ignored instructions — weave each one into the story and entities where a reader can point to it:
{{- range .MissingFeatures}}
- {{.}}
{{- end}}

World parameters:
{{- range .Selections}}
- {{.Category}}: {{.Choice}}{{if .Custom}} — the creator insists: {{.Custom}}{{end}}
{{- end}}
Mood: {{.Mood}}

Respond with a single JSON object and nothing else:
{
  "story": {"title": string, "text": string, "mood": string},
  "entities": [{"name": string, "type": string, "archetype": string, "description": string, "powers": [string], "relationships": [{"target": string, "kind": string}]}]
}

The story text must be a substantial narrative, at least several paragraphs. Include at least five entities.`
