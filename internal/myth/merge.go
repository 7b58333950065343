package myth

import "strings"

// mergeKeyed merges two slices treated as sets keyed by key. Entries from
// newer win on key collision; older entries whose keys do not collide are
// preserved in their original order, followed by genuinely new entries in
// arrival order. Keys compare case-insensitively after trimming.
func mergeKeyed[T any](older, newer []T, key func(T) string) []T {
	norm := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

	replacement := make(map[string]T, len(newer))
	for _, n := range newer {
		k := norm(key(n))
		if k == "" {
			continue
		}
		replacement[k] = n
	}

	out := make([]T, 0, len(older)+len(newer))
	seen := make(map[string]bool, len(older)+len(newer))
	for _, o := range older {
		k := norm(key(o))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		if n, ok := replacement[k]; ok {
			out = append(out, n)
		} else {
			out = append(out, o)
		}
	}
	for _, n := range newer {
		k := norm(key(n))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		// replacement holds the last occurrence per key, so duplicates
		// within newer itself also resolve newest-wins.
		out = append(out, replacement[k])
	}
	return out
}

// MergeEntities merges entity lists by name.
func MergeEntities(older, newer []Entity) []Entity {
	return mergeKeyed(older, newer, func(e Entity) string { return e.Name })
}

// MergeLocations merges location lists by name.
func MergeLocations(older, newer []Location) []Location {
	return mergeKeyed(older, newer, func(l Location) string { return l.Name })
}

// MergeVocabulary merges vocabulary lists by word.
func MergeVocabulary(older, newer []VocabularyEntry) []VocabularyEntry {
	return mergeKeyed(older, newer, func(v VocabularyEntry) string { return v.Word })
}

// MergeTimeline merges timeline events by title.
func MergeTimeline(older, newer []TimelineEvent) []TimelineEvent {
	return mergeKeyed(older, newer, func(t TimelineEvent) string { return t.Title })
}

func mergeStrings(older, newer []string) []string {
	return mergeKeyed(older, newer, func(s string) string { return s })
}

// Merge folds src into dst section by section. Scalar sections are replaced
// when src carries them; list sections are merged by their identity keys so
// previously recovered data is never silently dropped.
func (d *PartialMythDocument) Merge(src *PartialMythDocument) {
	if src == nil {
		return
	}
	if src.Story != nil {
		d.Story = src.Story
	}
	if len(src.Entities) > 0 {
		d.Entities = MergeEntities(d.Entities, src.Entities)
	}
	if src.WorldMap != nil {
		if d.WorldMap == nil {
			d.WorldMap = src.WorldMap
		} else {
			d.WorldMap.Locations = MergeLocations(d.WorldMap.Locations, src.WorldMap.Locations)
			if src.WorldMap.MapDescription != "" {
				d.WorldMap.MapDescription = src.WorldMap.MapDescription
			}
			if src.WorldMap.TotalArea != "" {
				d.WorldMap.TotalArea = src.WorldMap.TotalArea
			}
		}
	}
	if src.Analysis != nil {
		if d.Analysis == nil {
			d.Analysis = src.Analysis
		} else {
			d.Analysis.Timeline = MergeTimeline(d.Analysis.Timeline, src.Analysis.Timeline)
			d.Analysis.Symbols = mergeKeyed(d.Analysis.Symbols, src.Analysis.Symbols,
				func(s Symbol) string { return s.Name })
			if len(src.Analysis.ArchetypeConflicts) > 0 {
				d.Analysis.ArchetypeConflicts = src.Analysis.ArchetypeConflicts
			}
			if len(src.Analysis.ThematicDensity) > 0 {
				d.Analysis.ThematicDensity = src.Analysis.ThematicDensity
			}
			if src.Analysis.SocialCode != "" {
				d.Analysis.SocialCode = src.Analysis.SocialCode
			}
			d.Analysis.Characters = mergeStrings(d.Analysis.Characters, src.Analysis.Characters)
			d.Analysis.Relationships = mergeStrings(d.Analysis.Relationships, src.Analysis.Relationships)
		}
	}
	if src.AncientLanguage != nil {
		if d.AncientLanguage == nil {
			d.AncientLanguage = src.AncientLanguage
		} else {
			if src.AncientLanguage.LanguageName != "" {
				d.AncientLanguage.LanguageName = src.AncientLanguage.LanguageName
			}
			if src.AncientLanguage.Description != "" {
				d.AncientLanguage.Description = src.AncientLanguage.Description
			}
			if src.AncientLanguage.WritingSystem != "" {
				d.AncientLanguage.WritingSystem = src.AncientLanguage.WritingSystem
			}
			d.AncientLanguage.Vocabulary = MergeVocabulary(
				d.AncientLanguage.Vocabulary, src.AncientLanguage.Vocabulary)
		}
	}
	if src.Extras != nil {
		if d.Extras == nil {
			d.Extras = src.Extras
		} else {
			d.Extras.Rituals = mergeStrings(d.Extras.Rituals, src.Extras.Rituals)
			d.Extras.Temples = mergeStrings(d.Extras.Temples, src.Extras.Temples)
			d.Extras.Prophecies = mergeStrings(d.Extras.Prophecies, src.Extras.Prophecies)
			d.Extras.Artifacts = mergeStrings(d.Extras.Artifacts, src.Extras.Artifacts)
		}
	}
}

// Assemble converts a partial document into a final MythDocument, with
// list sections deduplicated a final time by their identity keys.
func (d *PartialMythDocument) Assemble() MythDocument {
	out := MythDocument{}
	if d.Story != nil {
		out.Story = *d.Story
	}
	out.Entities = MergeEntities(nil, d.Entities)
	if d.WorldMap != nil {
		out.WorldMap = *d.WorldMap
		out.WorldMap.Locations = MergeLocations(nil, out.WorldMap.Locations)
	}
	if d.Analysis != nil {
		out.Analysis = *d.Analysis
		out.Analysis.Timeline = MergeTimeline(nil, out.Analysis.Timeline)
	}
	if d.AncientLanguage != nil {
		out.AncientLanguage = *d.AncientLanguage
		out.AncientLanguage.Vocabulary = MergeVocabulary(nil, out.AncientLanguage.Vocabulary)
	}
	if d.Extras != nil {
		out.Extras = *d.Extras
	}
	return out
}
