package validate

import (
	"strings"
	"testing"

	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/myth"
)

func completeDocument(entities int) *myth.PartialMythDocument {
	doc := &myth.PartialMythDocument{
		Story: &myth.Story{
			Title: "The Long Bargain",
			Text:  strings.Repeat("The first peoples learned to bargain with the luminous ones at the shrines. ", 12),
		},
		WorldMap: &myth.WorldMap{Locations: []myth.Location{
			{Name: "The Sunken Reach"}, {Name: "The Hourspine"},
			{Name: "The Murmuring Waste"}, {Name: "Fracture Shrines"},
		}},
		Analysis: &myth.Analysis{Timeline: []myth.TimelineEvent{
			{Title: "Dawn"}, {Title: "Shattering"}, {Title: "Forging"}, {Title: "Bargain"},
		}},
		AncientLanguage: &myth.AncientLanguage{
			LanguageName: "Velmorani",
			Vocabulary: []myth.VocabularyEntry{
				{Word: "sera"}, {Word: "kith"}, {Word: "ombre"}, {Word: "tharv"},
				{Word: "murm"}, {Word: "vel"}, {Word: "moran"}, {Word: "dawnil"},
			},
		},
	}
	for i := 0; i < entities; i++ {
		doc.Entities = append(doc.Entities, myth.Entity{Name: string(rune('A' + i))})
	}
	return doc
}

func TestCompletenessAcceptsFullDocument(t *testing.T) {
	report := Completeness(completeDocument(5), config.DefaultThresholds())
	if !report.Complete {
		t.Fatalf("report = %+v, want complete", report)
	}
	if report.NeedsRecovery() {
		t.Error("complete document flagged for recovery")
	}
}

func TestCompletenessNearCompleteLeniency(t *testing.T) {
	th := config.DefaultThresholds()

	// One entity short of the minimum of five: near-complete, no recovery.
	report := Completeness(completeDocument(4), th)
	if report.Complete {
		t.Fatal("4 entities reported as complete")
	}
	if !report.NearComplete {
		t.Fatalf("report = %+v, want near-complete", report)
	}
	if report.NeedsRecovery() {
		t.Error("near-complete document flagged for recovery")
	}

	// Two short: a real gap, recovery required.
	report = Completeness(completeDocument(3), th)
	if report.NearComplete {
		t.Fatalf("report = %+v, 3 entities must not be near-complete", report)
	}
	if !report.NeedsRecovery() {
		t.Error("under-threshold document not flagged for recovery")
	}
}

func TestCompletenessMissingSections(t *testing.T) {
	doc := &myth.PartialMythDocument{
		Story:    &myth.Story{Title: "Alone", Text: "Short."},
		Entities: []myth.Entity{{Name: "Velune"}},
	}
	report := Completeness(doc, config.DefaultThresholds())
	if report.Complete || report.NearComplete {
		t.Fatalf("report = %+v", report)
	}
	for _, want := range []myth.Section{myth.SectionWorldMap, myth.SectionAnalysis, myth.SectionLanguage} {
		found := false
		for _, s := range report.Missing {
			if s == want {
				found = true
			}
		}
		if !found {
			t.Errorf("section %s not reported missing: %+v", want, report.Missing)
		}
	}
}

func TestFidelityHalfTraceable(t *testing.T) {
	req := myth.GenerationRequest{
		Selections: map[myth.Category]string{},
		Custom: map[myth.Category]string{
			myth.Category("pantheon"): "gods woven from glacier ice",
			myth.Category("magic"):    "songs that rust metal",
		},
	}
	doc := &myth.PartialMythDocument{
		Story: &myth.Story{
			Title: "The Glacier Choir",
			Text:  "From the glacier the first gods were woven, ice given will.",
		},
	}

	report := Fidelity(req, doc)
	if report.Score != 50 {
		t.Fatalf("score = %v, want exactly 50", report.Score)
	}
	if report.IsValid {
		t.Error("isValid = true with an untraceable category")
	}
	if len(report.MissingFeatures) != 1 || !strings.HasPrefix(report.MissingFeatures[0], "magic:") {
		t.Errorf("missing features = %v", report.MissingFeatures)
	}
}

func TestFidelityNoCustomizations(t *testing.T) {
	report := Fidelity(myth.GenerationRequest{}, &myth.PartialMythDocument{})
	if report.Score != 100 || !report.IsValid {
		t.Errorf("report = %+v, want trivially valid", report)
	}
}

func TestFidelityPluralNormalization(t *testing.T) {
	req := myth.GenerationRequest{
		Custom: map[myth.Category]string{
			myth.Category("climate"): "endless storms",
		},
	}
	doc := &myth.PartialMythDocument{
		Story: &myth.Story{Title: "T", Text: "A single storm has circled the world since the first day."},
	}
	report := Fidelity(req, doc)
	if !report.IsValid {
		t.Errorf("plural custom term did not match singular usage: %+v", report)
	}
}

func TestCreativity(t *testing.T) {
	tests := []struct {
		name     string
		doc      *myth.PartialMythDocument
		original bool
	}{
		{
			name: "invented names pass",
			doc: &myth.PartialMythDocument{
				Story:    &myth.Story{Title: "The First Tide", Text: "Velune raised the sea."},
				Entities: []myth.Entity{{Name: "Velune"}, {Name: "Rathor"}},
			},
			original: true,
		},
		{
			name: "borrowed deity in entities",
			doc: &myth.PartialMythDocument{
				Entities: []myth.Entity{{Name: "Odin the Wanderer"}},
			},
			original: false,
		},
		{
			name: "borrowed deity in story text",
			doc: &myth.PartialMythDocument{
				Story: &myth.Story{Title: "T", Text: "Much like Zeus, he ruled by thunder."},
			},
			original: false,
		},
		{
			name: "embedded name is not a match",
			doc: &myth.PartialMythDocument{
				Entities: []myth.Entity{{Name: "Setheranne"}, {Name: "Rathor"}},
			},
			original: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Creativity(tt.doc)
			if report.Original != tt.original {
				t.Errorf("Original = %v, want %v (matches %v)", report.Original, tt.original, report.Matches)
			}
		})
	}
}
