package parse

import (
	"testing"

	"github.com/loreforge/loreforge/internal/myth"
)

const truncatedDoc = `{
  "story": {"title": "The Ember Court", "text": "When the mountain ate the moon, the court of embers was born."},
  "entities": [
    {"name": "Ashrel", "type": "deity"},
    {"name": "Korvane", "type": "hero"}
  ],
  "ancientLanguage": {"languageName": "Emberspeech", "vocabulary": [{"word": "ash", "meaning": "beginning"}, {"word": "kor`

func TestExtractSectionsFromTruncatedResponse(t *testing.T) {
	// The full parser must refuse this text first; salvage only matters on
	// the failure path.
	if _, _, err := Document(truncatedDoc); err == nil {
		t.Fatal("Document() parsed a truncated response")
	}

	doc := ExtractSections(truncatedDoc, nil)
	got := doc.PresentSections()
	want := []myth.Section{myth.SectionStory, myth.SectionEntities}
	if len(got) != len(want) {
		t.Fatalf("PresentSections() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("PresentSections() = %v, want %v", got, want)
		}
	}

	if doc.Story.Title != "The Ember Court" {
		t.Errorf("story title = %q", doc.Story.Title)
	}
	if len(doc.Entities) != 2 || doc.Entities[1].Name != "Korvane" {
		t.Errorf("entities = %+v", doc.Entities)
	}
	if doc.AncientLanguage != nil {
		t.Error("truncated ancientLanguage section should be omitted")
	}
}

func TestExtractSectionsScoped(t *testing.T) {
	text := `{
	  "story": {"title": "All Sections", "text": "Complete."},
	  "worldMap": {"locations": [{"name": "The Glass Steppe"}]}
	}`

	doc := ExtractSections(text, []myth.Section{myth.SectionWorldMap})
	if doc.Story != nil {
		t.Error("unrequested story section was extracted")
	}
	if doc.WorldMap == nil || len(doc.WorldMap.Locations) != 1 {
		t.Fatalf("worldMap = %+v", doc.WorldMap)
	}
}

func TestExtractSectionsRepairsIndividualSpans(t *testing.T) {
	// The entities span carries a trailing comma; the section-level repair
	// pass should still recover it.
	text := `{"entities": [{"name": "Velune"},], "story": {"title": "T", "text": "Body."}}`

	doc := ExtractSections(text, nil)
	if len(doc.Entities) != 1 || doc.Entities[0].Name != "Velune" {
		t.Errorf("entities = %+v", doc.Entities)
	}
	if doc.Story == nil {
		t.Error("story not extracted")
	}
}

func TestExtractSectionsNothingUsable(t *testing.T) {
	doc := ExtractSections("no structured content at all", nil)
	if !doc.IsEmpty() {
		t.Errorf("expected empty document, got sections %v", doc.PresentSections())
	}
}
