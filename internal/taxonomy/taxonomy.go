// Package taxonomy ships the fixed canonical skill-tag hierarchy (spec
// §4.1) as an embedded asset: a tag_type -> topic -> canonical-tags map
// plus an alias table for free-form labels observed historically.
//
// Reviewing this file is part of release: unknown raw tags seen in
// production should get a logged entry so new aliases can be added.
package taxonomy

import "strings"

// TagType mirrors models.SkillTagType without importing it, keeping this
// package dependency-free and embeddable anywhere.
type TagType string

const (
	Grammar       TagType = "grammar"
	Vocabulary    TagType = "vocabulary"
	Pronunciation TagType = "pronunciation"
	Conversation  TagType = "conversation"
)

// canonical is the fixed hierarchy: tag_type -> topic -> canonical tags.
var canonical = map[TagType]map[string][]string{
	Grammar: {
		"articles":      {"articles_definite", "articles_indefinite", "articles_zero"},
		"sentence":      {"word_order", "sentence_fragments", "run_on_sentences"},
		"tense":         {"present_simple", "present_continuous", "past_simple", "past_continuous", "present_perfect", "future_forms"},
		"conditionals":  {"conditional_zero", "conditional_first", "conditional_second", "conditional_third"},
		"modals":        {"modal_ability", "modal_obligation", "modal_permission"},
		"prepositions":  {"prepositions_time", "prepositions_place", "prepositions_movement"},
		"agreement":     {"subject_verb_agreement", "pronoun_agreement"},
	},
	Vocabulary: {
		"general":     {"everyday_vocabulary", "academic_vocabulary", "idioms"},
		"collocations": {"verb_noun_collocations", "adjective_noun_collocations"},
		"phrasal":     {"phrasal_verbs_separable", "phrasal_verbs_inseparable"},
	},
	Pronunciation: {
		"sounds":     {"minimal_pairs", "consonant_clusters", "vowel_length"},
		"prosody":    {"word_stress", "sentence_stress", "intonation_patterns"},
		"connected":  {"linking_sounds", "elision"},
	},
	Conversation: {
		"functions": {"requesting", "agreeing_disagreeing", "clarifying", "small_talk"},
		"discourse": {"turn_taking", "topic_management", "register_formality"},
	},
}

// alias maps free-form raw tags (as emitted by earlier prompt versions or
// teacher shorthand) to their canonical form. Coverage is exhaustive for
// observed historical labels; anything not listed here is returned
// unchanged by Normalize.
var alias = map[string]string{
	"grammar_articles_indefinite":       "articles_indefinite",
	"articles_a_an_usage":              "articles_indefinite",
	"grammar_articles_sentence_structure": "word_order",
	"articles_the_usage":                "articles_definite",
	"grammar_word_order":                "word_order",
	"sentence_structure":                "word_order",
	"past_tense_simple":                  "past_simple",
	"simple_past":                        "past_simple",
	"present_progressive":                "present_continuous",
	"vocab_general":                      "everyday_vocabulary",
	"vocab_idiom":                        "idioms",
	"phrasal_verb":                       "phrasal_verbs_separable",
	"pronunciation_stress":               "word_stress",
	"conversation_turn_taking":           "turn_taking",
	"small_talk_skills":                  "small_talk",
}

// CanonicalTagsFor returns the flat set of canonical tags for a tag type,
// used to constrain generator prompts.
func CanonicalTagsFor(t TagType) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tags := range canonical[t] {
		for _, tag := range tags {
			out[tag] = struct{}{}
		}
	}
	return out
}

// AllCanonicalTags returns every canonical tag across all tag types.
func AllCanonicalTags() map[string]struct{} {
	out := make(map[string]struct{})
	for t := range canonical {
		for tag := range CanonicalTagsFor(t) {
			out[tag] = struct{}{}
		}
	}
	return out
}

// Normalize applies the alias table to a raw tag, returning it unchanged
// when no alias matches. Pure and deterministic; idempotent by
// construction since canonical tags never appear as alias keys.
func Normalize(raw string) string {
	key := strings.TrimSpace(strings.ToLower(raw))
	if canonicalTag, ok := alias[key]; ok {
		return canonicalTag
	}
	return raw
}

// IsCanonical reports whether tag is a member of the fixed hierarchy.
func IsCanonical(tag string) bool {
	_, ok := AllCanonicalTags()[tag]
	return ok
}
