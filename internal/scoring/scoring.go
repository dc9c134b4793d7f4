// Package scoring implements the quiz scorer: answer normalization,
// per-question-type comparison rules, AI-graded fallback for open-ended
// answers, and canonical skill-tag normalization before persistence.
package scoring

import (
	"context"
	"fmt"
	"strings"

	"noble-language-orchestrator/internal/apperrors"
	"noble-language-orchestrator/internal/generator"
	"noble-language-orchestrator/internal/models"
	"noble-language-orchestrator/internal/taxonomy"
)

// contractions is the fixed expansion table applied during normalization.
var contractions = map[string]string{
	"don't":    "do not",
	"doesn't":  "does not",
	"didn't":   "did not",
	"isn't":    "is not",
	"aren't":   "are not",
	"wasn't":   "was not",
	"weren't":  "were not",
	"can't":    "cannot",
	"won't":    "will not",
	"i'm":      "i am",
	"it's":     "it is",
	"that's":   "that is",
	"there's":  "there is",
	"i've":     "i have",
	"we've":    "we have",
	"they've":  "they have",
	"you're":   "you are",
	"i'll":     "i will",
	"he's":     "he is",
	"she's":    "she is",
}

var trueTokens = map[string]bool{"yes": true, "y": true, "true": true, "t": true, "1": true}
var falseTokens = map[string]bool{"no": true, "n": true, "false": true, "f": true, "0": true}

var articles = map[string]bool{"a": true, "an": true, "the": true}

// Normalize applies the fixed normalization pipeline: trim, lowercase,
// collapse inner whitespace, strip terminal punctuation, expand
// contractions.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimRight(s, ".!?,;:")
	if expanded, ok := contractions[s]; ok {
		s = expanded
	} else {
		words := strings.Fields(s)
		for i, w := range words {
			if expanded, ok := contractions[w]; ok {
				words[i] = expanded
			}
		}
		s = strings.Join(words, " ")
	}
	return s
}

// stripLeadingArticle removes a single leading article token, returning the
// remainder and whether an article was present.
func stripLeadingArticle(s string) (string, bool) {
	words := strings.Fields(s)
	if len(words) < 2 {
		return s, false
	}
	if !articles[words[0]] {
		return s, false
	}
	return strings.Join(words[1:], " "), true
}

// Policy configures score-time options that are not pure functions of the
// question and answer alone.
type Policy struct {
	// ArticleForgivenessLevels lists the CEFR levels at which a fill_blank
	// answer matching only after stripping a leading article still counts
	// as correct.
	ArticleForgivenessLevels map[models.CEFRLevel]bool
}

// DefaultPolicy forgives leading-article mismatches through A2, matching
// the rationale that early learners are still internalizing article use.
func DefaultPolicy() Policy {
	return Policy{
		ArticleForgivenessLevels: map[models.CEFRLevel]bool{
			models.LevelA1: true,
			models.LevelA2: true,
		},
	}
}

// ItemResult is the per-question scoring outcome.
type ItemResult struct {
	QuestionID     string
	IsCorrect      bool
	SkillTag       string
	NeedsAIGrading bool
	Explanation    string
}

// DetectedInterference is an L1 interference pattern the AI grader flagged
// on a specific open-ended item.
type DetectedInterference struct {
	PatternCategory string
	PatternDetail   string
}

// Result is the overall scorer output.
type Result struct {
	Items        []ItemResult
	Score        float64 // 0..1
	AnyOpen      bool
	Interference []DetectedInterference
}

// Scorer evaluates quiz answers against questions.
type Scorer struct {
	policy    Policy
	generator *generator.Client
}

// NewScorer builds a Scorer with the given policy and generator client (used
// for translate/reorder questions that need AI grading).
func NewScorer(policy Policy, gen *generator.Client) *Scorer {
	return &Scorer{policy: policy, generator: gen}
}

// aiGradeResult is the schema returned by the generator client for the
// "ai_grading" use case.
type aiGradeResult struct {
	IsCorrect       bool    `json:"is_correct"`
	PartialCredit   float64 `json:"partial_credit"`
	Feedback        string  `json:"feedback"`
	L1PatternCategory string `json:"l1_pattern_category,omitempty"`
	L1PatternDetail   string `json:"l1_pattern_detail,omitempty"`
}

// Score evaluates every question against the matching student answer
// (by question ID), normalizing and canonicalizing skill tags before
// returning. Order of answers does not affect the result.
func (s *Scorer) Score(ctx context.Context, studentLevel models.CEFRLevel, questions []models.Question, answers map[string]string) (*Result, error) {
	res := &Result{Items: make([]ItemResult, 0, len(questions))}
	var correctCount float64
	var gradableCount float64

	for _, q := range questions {
		raw, hasAnswer := answers[q.ID]
		item := ItemResult{
			QuestionID: q.ID,
			SkillTag:   taxonomy.Normalize(q.SkillTag),
		}

		if !hasAnswer {
			item.IsCorrect = false
			res.Items = append(res.Items, item)
			gradableCount++
			continue
		}

		switch q.Type {
		case models.QuestionMultipleChoice:
			item.IsCorrect = Normalize(raw) == Normalize(q.CorrectAnswer)

		case models.QuestionTrueFalse:
			studentBool, studentOK := parseBool(Normalize(raw))
			expectedBool, expectedOK := parseBool(Normalize(q.CorrectAnswer))
			item.IsCorrect = studentOK && expectedOK && studentBool == expectedBool

		case models.QuestionFillBlank:
			normStudent := Normalize(raw)
			normExpected := Normalize(q.CorrectAnswer)
			if normStudent == normExpected {
				item.IsCorrect = true
			} else if s.policy.ArticleForgivenessLevels[studentLevel] {
				strippedStudent, studentHadArticle := stripLeadingArticle(normStudent)
				strippedExpected, expectedHadArticle := stripLeadingArticle(normExpected)
				coreStudent := strippedStudent
				if !studentHadArticle {
					coreStudent = normStudent
				}
				coreExpected := strippedExpected
				if !expectedHadArticle {
					coreExpected = normExpected
				}
				if len(coreStudent) > 2 && coreStudent == coreExpected {
					item.IsCorrect = true
				}
			}

		case models.QuestionTranslate, models.QuestionReorder:
			if Normalize(raw) == Normalize(q.CorrectAnswer) {
				item.IsCorrect = true
			} else {
				item.NeedsAIGrading = true
				res.AnyOpen = true
				graded, err := s.gradeWithAI(ctx, q, raw)
				if err != nil {
					// A single item's AI grading failure (e.g. the generator
					// exhausts its retry budget) must not fail the whole
					// attempt; leave it flagged for follow-up grading instead.
					item.IsCorrect = false
					res.Items = append(res.Items, item)
					gradableCount++
					continue
				}
				item.IsCorrect = graded.IsCorrect || graded.PartialCredit >= 0.6
				item.Explanation = graded.Feedback
				if !item.IsCorrect && graded.L1PatternCategory != "" {
					res.Interference = append(res.Interference, DetectedInterference{
						PatternCategory: graded.L1PatternCategory,
						PatternDetail:   graded.L1PatternDetail,
					})
				}
			}

		default:
			return nil, apperrors.Validation(fmt.Sprintf("unsupported question type %q", q.Type), nil)
		}

		if item.IsCorrect {
			correctCount++
		}
		gradableCount++
		res.Items = append(res.Items, item)
	}

	if gradableCount > 0 {
		res.Score = correctCount / gradableCount
	}
	return res, nil
}

func (s *Scorer) gradeWithAI(ctx context.Context, q models.Question, studentAnswer string) (*aiGradeResult, error) {
	prompt := fmt.Sprintf("Question: %s\nExpected answer: %s\nStudent answer: %s", q.Text, q.CorrectAnswer, studentAnswer)
	resp, err := s.generator.Generate(ctx, generator.Request{
		UseCase:      generator.UseCaseAIGrading,
		SystemPrompt: "You grade a single language-learning quiz answer for correctness, award partial credit where the intent is right but the form is flawed, " +
			"and when the mistake looks like a recurring native-language interference pattern rather than a one-off slip, name its category and detail.",
		UserPrompt:   prompt,
		Temperature:  0,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}
	var graded aiGradeResult
	if err := generator.DecodePayload(resp, &graded); err != nil {
		return nil, err
	}
	return &graded, nil
}

func parseBool(normalized string) (bool, bool) {
	if trueTokens[normalized] {
		return true, true
	}
	if falseTokens[normalized] {
		return false, true
	}
	return false, false
}
