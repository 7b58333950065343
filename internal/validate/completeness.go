// Package validate scores parsed or salvaged documents: structural
// completeness against configured thresholds, an originality check against
// well-known mythological figures, and fidelity to user-authored custom
// concepts.
package validate

import (
	"github.com/loreforge/loreforge/internal/config"
	"github.com/loreforge/loreforge/internal/myth"
)

// CompletenessReport classifies a document's sections against thresholds.
type CompletenessReport struct {
	// Missing sections are absent entirely.
	Missing []myth.Section
	// Incomplete sections are present but under their threshold.
	Incomplete []myth.Section
	// Complete is true when no required section is missing or incomplete.
	Complete bool
	// NearComplete marks the leniency band: every count within one of its
	// minimum and story word count at least 80% of its minimum. Accepting
	// near-complete documents avoids a recovery round-trip for trivially
	// short results.
	NearComplete bool
}

// NeedsRecovery reports whether the document should go through section
// recovery rather than being accepted as-is.
func (r CompletenessReport) NeedsRecovery() bool {
	return !r.Complete && !r.NearComplete
}

// Completeness checks every required section of doc against th.
func Completeness(doc *myth.PartialMythDocument, th config.Thresholds) CompletenessReport {
	var report CompletenessReport

	counts := []struct {
		section myth.Section
		have    int
		min     int
	}{
		{myth.SectionEntities, len(docEntities(doc)), th.MinEntities},
		{myth.SectionWorldMap, len(docLocations(doc)), th.MinLocations},
		{myth.SectionAnalysis, len(docTimeline(doc)), th.MinTimelineEvents},
		{myth.SectionLanguage, len(docVocabulary(doc)), th.MinVocabulary},
	}

	withinOne := true
	for _, c := range counts {
		if !doc.Has(c.section) {
			report.Missing = append(report.Missing, c.section)
			withinOne = false
			continue
		}
		if c.have < c.min {
			report.Incomplete = append(report.Incomplete, c.section)
			if c.have < c.min-1 {
				withinOne = false
			}
		}
	}

	storyOK := false
	storyNear := false
	if doc == nil || doc.Story == nil {
		report.Missing = append([]myth.Section{myth.SectionStory}, report.Missing...)
	} else {
		storyOK = len(doc.Story.Text) >= th.MinStoryChars && doc.Story.WordCount() >= th.MinStoryWords
		if !storyOK {
			report.Incomplete = append([]myth.Section{myth.SectionStory}, report.Incomplete...)
		}
		storyNear = float64(doc.Story.WordCount()) >= 0.8*float64(th.MinStoryWords)
	}

	report.Complete = len(report.Missing) == 0 && len(report.Incomplete) == 0
	report.NearComplete = !report.Complete &&
		len(report.Missing) == 0 && withinOne && (storyOK || storyNear)
	return report
}

func docEntities(doc *myth.PartialMythDocument) []myth.Entity {
	if doc == nil {
		return nil
	}
	return doc.Entities
}

func docLocations(doc *myth.PartialMythDocument) []myth.Location {
	if doc == nil || doc.WorldMap == nil {
		return nil
	}
	return doc.WorldMap.Locations
}

func docTimeline(doc *myth.PartialMythDocument) []myth.TimelineEvent {
	if doc == nil || doc.Analysis == nil {
		return nil
	}
	return doc.Analysis.Timeline
}

func docVocabulary(doc *myth.PartialMythDocument) []myth.VocabularyEntry {
	if doc == nil || doc.AncientLanguage == nil {
		return nil
	}
	return doc.AncientLanguage.Vocabulary
}
