// Package classify routes each chat query to the fast or full model.
//
// The Classifier contract is deliberately small — (user, message) in, model
// key and human-readable reason out — so the rule-based implementation can be
// swapped for an ML model without touching the inference engine. The mode
// switch in [New] selects the implementation.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/foyer-ai/foyer/internal/config"
)

// ModelKey selects one of the two configured chat models.
type ModelKey string

// The two model tiers.
const (
	ModelFast ModelKey = "fast"
	ModelFull ModelKey = "full"
)

// Result is the outcome of a classification.
type Result struct {
	// ModelKey is "fast" or "full".
	ModelKey ModelKey

	// Reason is a human-readable explanation of the decision; it is the sole
	// payload of the /classifier/explain debug endpoint.
	Reason string
}

// Classifier is the contract any implementation must satisfy. It must be a
// pure function of its inputs and configuration: calling it twice with the
// same arguments returns equal results.
type Classifier interface {
	Classify(userID, message string) Result
}

// New returns the classifier selected by cfg.Mode. Only "heuristic" is
// currently implemented.
func New(cfg config.ClassifierConfig, profiles map[string]config.UserProfile) (Classifier, error) {
	switch cfg.Mode {
	case "heuristic":
		return NewHeuristic(cfg, profiles)
	default:
		return nil, fmt.Errorf("classify: unknown mode %q (supported: heuristic)", cfg.Mode)
	}
}

// keywordPattern compiles a whole-word, case-insensitive, Unicode-aware
// pattern for a keyword or phrase. RE2's \b is ASCII-only, so the boundary is
// expressed explicitly as "not a letter, digit, or underscore" on both sides;
// this keeps "quoi" from matching inside "pourquoi" while still handling
// accented text.
func keywordPattern(keyword string) (*regexp.Regexp, error) {
	expr := `(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(keyword) + `(?:$|[^\p{L}\p{N}_])`
	return regexp.Compile(expr)
}

// keywordRule pairs a keyword with its compiled pattern so the reason string
// can name the keyword that fired.
type keywordRule struct {
	keyword string
	re      *regexp.Regexp
}

// Heuristic is the rule-based classifier. Decision priority (first match
// wins):
//
//  1. Profile has a forced model_preference → use it.
//  2. teen/child → fast (hard policy override).
//  3. Conversational keyword in message → fast.
//  4. Complexity keyword in message → full.
//  5. Word count below the fast threshold → fast.
//  6. Word count above the full threshold → full.
//  7. Default → fast.
//
// Heuristic is immutable after construction and safe for concurrent use.
type Heuristic struct {
	profiles       map[string]config.UserProfile
	conversational []keywordRule
	complexity     []keywordRule
	fastThreshold  int
	fullThreshold  int
}

// Ensure Heuristic implements Classifier at compile time.
var _ Classifier = (*Heuristic)(nil)

// NewHeuristic compiles the keyword lists and returns the rule-based
// classifier.
func NewHeuristic(cfg config.ClassifierConfig, profiles map[string]config.UserProfile) (*Heuristic, error) {
	h := &Heuristic{
		profiles:      profiles,
		fastThreshold: cfg.FastThresholdWords,
		fullThreshold: cfg.FullThresholdWords,
	}
	for _, kw := range cfg.ConversationalKeywords {
		re, err := keywordPattern(kw)
		if err != nil {
			return nil, fmt.Errorf("classify: conversational keyword %q: %w", kw, err)
		}
		h.conversational = append(h.conversational, keywordRule{keyword: kw, re: re})
	}
	for _, kw := range cfg.ComplexityKeywords {
		re, err := keywordPattern(kw)
		if err != nil {
			return nil, fmt.Errorf("classify: complexity keyword %q: %w", kw, err)
		}
		h.complexity = append(h.complexity, keywordRule{keyword: kw, re: re})
	}
	return h, nil
}

// Classify implements Classifier.
func (h *Heuristic) Classify(userID, message string) Result {
	profile, hasProfile := h.profiles[userID]
	wordCount := len(strings.Fields(message))

	// Rule 1: profile-level forced preference.
	if hasProfile && profile.ModelPreference != "" {
		return Result{
			ModelKey: ModelKey(profile.ModelPreference),
			Reason:   fmt.Sprintf("user_profile=%s forces model_preference=%s", userID, profile.ModelPreference),
		}
	}

	// Rule 2: teen/child always fast, regardless of message features.
	if userID == "teen" || userID == "child" {
		return Result{
			ModelKey: ModelFast,
			Reason:   fmt.Sprintf("user_profile=%s overrides all other rules → fast", userID),
		}
	}

	// Rule 3: conversational keyword → fast.
	for _, rule := range h.conversational {
		if rule.re.MatchString(message) {
			return Result{
				ModelKey: ModelFast,
				Reason:   fmt.Sprintf("conversational keyword %q detected → fast", rule.keyword),
			}
		}
	}

	// Rule 4: complexity keyword → full.
	for _, rule := range h.complexity {
		if rule.re.MatchString(message) {
			return Result{
				ModelKey: ModelFull,
				Reason:   fmt.Sprintf("complexity keyword %q detected → full", rule.keyword),
			}
		}
	}

	// Rule 5: short message → fast.
	if wordCount < h.fastThreshold {
		return Result{
			ModelKey: ModelFast,
			Reason:   fmt.Sprintf("message length (%d words) < threshold (%d) → fast", wordCount, h.fastThreshold),
		}
	}

	// Rule 6: long message → full.
	if wordCount > h.fullThreshold {
		return Result{
			ModelKey: ModelFull,
			Reason:   fmt.Sprintf("message length (%d words) > threshold (%d) → full", wordCount, h.fullThreshold),
		}
	}

	return Result{
		ModelKey: ModelFast,
		Reason:   "no specific rule matched → default fast",
	}
}
