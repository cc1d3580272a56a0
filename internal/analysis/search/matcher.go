package search

import (
	"strings"

	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
)

// Matcher resolves free text to a response key by naive substring scanning.
// It keeps no state between calls and is safe for concurrent use.
type Matcher struct {
	keywords []knowledge.KeywordEntry
	synonyms []knowledge.SynonymGroup
}

// NewMatcher copies the tables; their order is the scan order.
func NewMatcher(keywords []knowledge.KeywordEntry, synonyms []knowledge.SynonymGroup) *Matcher {
	m := &Matcher{}
	for _, entry := range keywords {
		phrases := make([]string, 0, len(entry.Phrases))
		for _, p := range entry.Phrases {
			if p = strings.ToLower(p); p != "" {
				phrases = append(phrases, p)
			}
		}
		m.keywords = append(m.keywords, knowledge.KeywordEntry{Key: entry.Key, Phrases: phrases})
	}
	for _, group := range synonyms {
		variants := make([]string, 0, len(group.Variants))
		for _, v := range group.Variants {
			if v != "" {
				variants = append(variants, v)
			}
		}
		m.synonyms = append(m.synonyms, knowledge.SynonymGroup{Canonical: group.Canonical, Variants: variants})
	}
	return m
}

// FromKnowledge builds a matcher over the knowledge base's keyword and synonym tables.
func FromKnowledge(kb *knowledge.Base) *Matcher {
	return NewMatcher(kb.Keywords(), kb.Synonyms())
}

// Search returns the first response key whose keyword occurs in text.
// When no keyword occurs, a synonym of a canonical word selects the first key
// having a keyword that contains that canonical word.
func (m *Matcher) Search(text string) (string, bool) {
	query := strings.TrimSpace(strings.ToLower(text))
	if query == "" {
		return "", false
	}

	for _, entry := range m.keywords {
		for _, phrase := range entry.Phrases {
			if strings.Contains(query, phrase) {
				return entry.Key, true
			}
		}
	}

	for _, group := range m.synonyms {
		if group.Canonical == "" || !containsAny(query, group.Variants) {
			continue
		}
		for _, entry := range m.keywords {
			for _, phrase := range entry.Phrases {
				if strings.Contains(phrase, group.Canonical) {
					return entry.Key, true
				}
			}
		}
	}

	return "", false
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
