package myth

import "testing"

func TestNameMatchResolver(t *testing.T) {
	known := []string{"Velune", "Oskarn the Wave-Borne", "Tharn"}

	tests := []struct {
		raw        string
		wantTarget string
		wantKind   string
		wantOK     bool
	}{
		{"rival of Velune", "Velune", "rival", true},
		{"sworn enemy of oskarn the wave-borne", "Oskarn the Wave-Borne", "enemy", true},
		{"child of Tharn, raised in the deep", "Tharn", "child", true},
		{"bound to Tharn", "Tharn", "related", true},
		{"rival of the Moon Court", "", "", false},
		{"", "", "", false},
		// Substring of a word is not a name match.
		{"keeper of velunering", "", "", false},
	}
	for _, tt := range tests {
		rel, ok := NameMatchResolver{}.Resolve(tt.raw, known)
		if ok != tt.wantOK {
			t.Errorf("Resolve(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if rel.Target != tt.wantTarget || rel.Kind != tt.wantKind {
			t.Errorf("Resolve(%q) = %+v, want target %q kind %q", tt.raw, rel, tt.wantTarget, tt.wantKind)
		}
	}
}

func TestResolveRelationshipsDropsUnmatched(t *testing.T) {
	entities := []Entity{
		{Name: "Velune", Relationships: []Relation{
			{Raw: "rival of Tharn"},
			{Raw: "beloved of the Unnamed Tide"},
			{Target: "Oskarn", Kind: "ally"},
		}},
		{Name: "Tharn"},
		{Name: "Oskarn"},
	}

	got := ResolveRelationships(entities, nil)
	rels := got[0].Relationships
	if len(rels) != 2 {
		t.Fatalf("relationships = %+v, want unmatched raw string dropped", rels)
	}
	if rels[0].Target != "Tharn" || rels[0].Kind != "rival" {
		t.Errorf("resolved = %+v", rels[0])
	}
	if rels[1].Target != "Oskarn" {
		t.Errorf("structured relation altered: %+v", rels[1])
	}
}
