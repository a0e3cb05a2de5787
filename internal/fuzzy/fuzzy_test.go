package fuzzy

import "testing"

func TestMatcher_Find_ExactMatch(t *testing.T) {
	m := New(DefaultThreshold)

	target := "the quick brown fox jumps over the lazy dog"
	query := "brown fox jumps"

	match, ok := m.Find(query, target)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.Score < DefaultThreshold {
		t.Errorf("expected score >= %v, got %v", DefaultThreshold, match.Score)
	}
}

func TestMatcher_Find_PunctuationInvariant(t *testing.T) {
	m := New(DefaultThreshold)

	target := "she opened the envelope slowly and read the letter"
	query := "she opened the envelope—slowly"

	match, ok := m.Find(query, target)
	if !ok {
		t.Fatal("expected a punctuation-insensitive match")
	}
	_ = match
}

func TestMatcher_Find_NoMatch(t *testing.T) {
	m := New(0.95)

	target := "a completely unrelated sentence about spacecraft"
	query := "the quick brown fox jumps over the lazy dog"

	if _, ok := m.Find(query, target); ok {
		t.Error("expected no match for unrelated text at a high threshold")
	}
}

func TestMatcher_Find_EmptyInputs(t *testing.T) {
	m := New(DefaultThreshold)

	if _, ok := m.Find("", "some target"); ok {
		t.Error("expected no match for empty query")
	}
	if _, ok := m.Find("query", ""); ok {
		t.Error("expected no match for empty target")
	}
}
