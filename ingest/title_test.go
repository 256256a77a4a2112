package ingest

import "testing"

func TestExtractTitleClassFile(t *testing.T) {
	te := NewTitleExtractor()
	got := te.Extract("vault/Classes/02. Thief.md")
	if got != "Thief Class" {
		t.Errorf("expected %q, got %q", "Thief Class", got)
	}
}

func TestExtractTitleBreadcrumb(t *testing.T) {
	te := NewTitleExtractor()
	got := te.Extract("vault/rules/Combat/Initiative.md")
	if got != "Combat > Initiative" {
		t.Errorf("expected %q, got %q", "Combat > Initiative", got)
	}
}

func TestExtractTitlePlaceholderSkipsClassSuffix(t *testing.T) {
	te := NewTitleExtractor()
	got := te.Extract("vault/Classes/Character Classes.md")
	if got == "Character Classes Class" {
		t.Fatal("placeholder file must not take the class suffix")
	}
	if got != "Classes > Character Classes" {
		t.Errorf("expected breadcrumb fallthrough, got %q", got)
	}
}

func TestExtractTitleOrderingPrefixes(t *testing.T) {
	te := NewTitleExtractor()
	cases := map[string]string{
		"vault/rules/05a- Grappling.md":    "Grappling",
		"vault/rules/10. Fireball.md":      "Fireball",
		"vault/2- Spellbook/3. Runes.md":   "Spellbook > Runes",
		"vault/rules/3rd Edition Notes.md": "3rd Edition Notes", // no separator, not an ordering prefix
	}
	for source, want := range cases {
		if got := te.Extract(source); got != want {
			t.Errorf("Extract(%q) = %q, want %q", source, got, want)
		}
	}
}

func TestExtractTitleRootMarkerAbsent(t *testing.T) {
	te := NewTitleExtractor()
	got := te.Extract("homebrew/Monsters/Basilisk.md")
	if got != "homebrew > Monsters > Basilisk" {
		t.Errorf("expected whole-path breadcrumb, got %q", got)
	}
}

func TestExtractTitleClassWithoutRootMarker(t *testing.T) {
	te := NewTitleExtractor()
	if got := te.Extract("Classes/02. Thief.md"); got != "Thief Class" {
		t.Errorf("expected %q, got %q", "Thief Class", got)
	}
}

func TestExtractTitleSingleSegment(t *testing.T) {
	te := NewTitleExtractor()
	// A lone "Classes" segment has no final file to suffix.
	if got := te.Extract("vault/Classes.md"); got != "Classes" {
		t.Errorf("expected %q, got %q", "Classes", got)
	}
}

func TestExtractTitleWindowsSeparators(t *testing.T) {
	te := NewTitleExtractor()
	if got := te.Extract(`vault\Classes\02. Thief.md`); got != "Thief Class" {
		t.Errorf("expected %q, got %q", "Thief Class", got)
	}
}

func TestExtractTitleDegenerateInputs(t *testing.T) {
	te := NewTitleExtractor()
	// Total function: junk in, best-effort (possibly empty) string out.
	for _, source := range []string{"", "/", "vault", "vault/"} {
		if got := te.Extract(source); got != "" {
			t.Errorf("Extract(%q) = %q, want empty", source, got)
		}
	}
}

func TestExtractTitleCustomRules(t *testing.T) {
	te := NewTitleExtractor(
		WithRootMarker("srd"),
		WithClassSegment("Monsters", "Monster"),
		WithPlaceholders("Monster Index"),
		WithNoiseSegments("reference"),
	)
	if got := te.Extract("srd/Monsters/07. Owlbear.md"); got != "Owlbear Monster" {
		t.Errorf("expected %q, got %q", "Owlbear Monster", got)
	}
	if got := te.Extract("srd/Monsters/Monster Index.md"); got != "Monsters > Monster Index" {
		t.Errorf("expected %q, got %q", "Monsters > Monster Index", got)
	}
	if got := te.Extract("srd/reference/Conditions.md"); got != "Conditions" {
		t.Errorf("expected %q, got %q", "Conditions", got)
	}
}
