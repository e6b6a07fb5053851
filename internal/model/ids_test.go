package model

import (
	"strings"
	"testing"
)

func TestChunkID_Deterministic(t *testing.T) {
	a := ChunkID(42, 3, "some chunk content")
	b := ChunkID(42, 3, "some chunk content")
	if a != b {
		t.Errorf("same inputs produced different ids: %q vs %q", a, b)
	}

	if !strings.HasPrefix(a, "doc42_chunk3_") {
		t.Errorf("unexpected chunk id shape: %q", a)
	}
	hash := strings.TrimPrefix(a, "doc42_chunk3_")
	if len(hash) != 8 {
		t.Errorf("expected 8-char content hash, got %q", hash)
	}
}

func TestChunkID_ContentSensitive(t *testing.T) {
	a := ChunkID(1, 0, "alpha")
	b := ChunkID(1, 0, "beta")
	if a == b {
		t.Errorf("different content produced the same chunk id %q", a)
	}
}

func TestEntityNodeID_CaseInsensitiveName(t *testing.T) {
	a := EntityNodeID("Apple Inc.", "organization")
	b := EntityNodeID("apple inc.", "organization")
	if a != b {
		t.Errorf("entity id should be case-insensitive on name: %q vs %q", a, b)
	}

	c := EntityNodeID("Apple Inc.", "product")
	if a == c {
		t.Errorf("same name with different type must produce a different id")
	}

	if !strings.HasPrefix(a, "entity_") {
		t.Errorf("unexpected entity id shape: %q", a)
	}
}

func TestEdgeID_DirectionAndTypeSensitive(t *testing.T) {
	ab := EdgeID("entity_a", "entity_b", "partners_with")
	ba := EdgeID("entity_b", "entity_a", "partners_with")
	if ab == ba {
		t.Errorf("edge ids must be direction-sensitive")
	}

	other := EdgeID("entity_a", "entity_b", "competes_with")
	if ab == other {
		t.Errorf("edge ids must be type-sensitive")
	}
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Apple Inc.", "apple inc"},
		{"  APPLE   INC  ", "apple inc"},
		{"O'Brien, Conan", "o brien conan"},
		{"苹果公司", "苹果公司"},
	}
	for _, tt := range tests {
		if got := CanonicalName(tt.in); got != tt.want {
			t.Errorf("CanonicalName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCommunityID(t *testing.T) {
	if got := CommunityID(0, 7); got != "0-7" {
		t.Errorf("CommunityID(0, 7) = %q, want %q", got, "0-7")
	}
	if got := CommunityID(2, 0); got != "2-0" {
		t.Errorf("CommunityID(2, 0) = %q, want %q", got, "2-0")
	}
}

func TestDocumentNodeID(t *testing.T) {
	if got := DocumentNodeID(15); got != "doc_15" {
		t.Errorf("DocumentNodeID(15) = %q, want %q", got, "doc_15")
	}
}
