package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// gate1Prompt instructs the local LLM to act as a sanity validator.
const gate1Prompt = `You are a safety and coherence validator for user corrections to a personal assistant.

Evaluate the following correction and respond ONLY with JSON in this exact format:
{"verdict": "pass", "reason": "explanation"}
OR
{"verdict": "reject", "reason": "explanation"}

Evaluate for:
1. Internal coherence - does the correction make logical sense?
2. Safety - is it free of harmful, abusive, or dangerous content?

Correction to evaluate: %s

Remember: Respond ONLY with valid JSON, no additional text.`

// gate2aPrompt instructs the local LLM to act as a fact checker with a
// confidence score.
const gate2aPrompt = `You are a fact-checking assistant for user corrections.

Evaluate the factual accuracy of the following statement and respond ONLY with JSON in this exact format:
{"verdict": "pass", "confidence": 0.85, "reason": "explanation"}
OR
{"verdict": "reject", "confidence": 0.90, "reason": "explanation"}

Guidelines:
- "pass" if the statement is factually plausible or likely true
- "reject" if the statement is clearly false or implausible
- confidence: 0.0 to 1.0, how certain you are of your verdict
- Be generous with uncertainty - use lower confidence when unsure

Statement to evaluate: %s

Remember: Respond ONLY with valid JSON, no additional text.`

// personalInfoAutoPassReason is the fixed gate 2a reason for the personal
// info bypass.
const personalInfoAutoPassReason = "Personal information - auto-approved"

// Gates bundles the gate implementations and their collaborators.
type Gates struct {
	sidecar  *SidecarClient
	keywords []string
	vendor   *VendorClient
}

// NewGates wires the gate functions. vendor may be nil when no external
// fact-check is configured (gate 2b then auto-passes).
func NewGates(sidecar *SidecarClient, personalInfoKeywords []string, vendor *VendorClient) *Gates {
	return &Gates{
		sidecar:  sidecar,
		keywords: personalInfoKeywords,
		vendor:   vendor,
	}
}

// IsPersonalInfo reports whether content matches any configured
// personal-information keyword. Matching is case-insensitive substring over
// the raw content.
func (g *Gates) IsPersonalInfo(content string) bool {
	lower := strings.ToLower(content)
	for _, kw := range g.keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			slog.Info("personal info detected", "keyword", kw)
			return true
		}
	}
	return false
}

// Gate1 runs the sanity check against the local LLM.
// Returns (status, reason): reject for failed checks or unrecognised
// verdicts, error for transport or parse failures.
func (g *Gates) Gate1(ctx context.Context, content string) (string, string) {
	response, err := g.sidecar.Chat(ctx, fmt.Sprintf(gate1Prompt, content))
	if err != nil {
		slog.Error("gate1: llm sidecar call failed", "err", err)
		return GateError, fmt.Sprintf("LLM sidecar unreachable: %v", err)
	}

	v, err := parseVerdict(response)
	if err != nil {
		slog.Error("gate1: unparseable response", "response", response)
		return GateError, fmt.Sprintf("LLM response parsing error: %v", err)
	}

	reason := v.Reason
	if reason == "" {
		reason = "No reason provided"
	}
	if v.Verdict != GatePass && v.Verdict != GateReject {
		slog.Warn("gate1: invalid verdict, defaulting to reject", "verdict", v.Verdict)
		return GateReject, "Invalid LLM response: " + reason
	}

	slog.Info("gate1 result", "verdict", v.Verdict, "reason", reason)
	return v.Verdict, reason
}

// Gate2A runs the local fact-check. Personal-information content
// short-circuits to an auto-pass with confidence 1.0 without any LLM call.
// Returns (status, confidence, reason, personal).
func (g *Gates) Gate2A(ctx context.Context, content string) (string, float64, string, bool) {
	if g.IsPersonalInfo(content) {
		slog.Info("gate2a: personal info detected, auto-passing")
		return GatePass, 1.0, personalInfoAutoPassReason, true
	}

	response, err := g.sidecar.Chat(ctx, fmt.Sprintf(gate2aPrompt, content))
	if err != nil {
		slog.Error("gate2a: llm sidecar call failed", "err", err)
		return GateError, 0, fmt.Sprintf("LLM sidecar unreachable: %v", err), false
	}

	v, err := parseVerdict(response)
	if err != nil {
		slog.Error("gate2a: unparseable response", "response", response)
		return GateError, 0, fmt.Sprintf("LLM response parsing error: %v", err), false
	}

	confidence := 0.5
	if v.Confidence != nil {
		confidence = clamp01(*v.Confidence)
	}
	reason := v.Reason
	if reason == "" {
		reason = "No reason provided"
	}
	if v.Verdict != GatePass && v.Verdict != GateReject {
		slog.Warn("gate2a: invalid verdict, defaulting to reject", "verdict", v.Verdict)
		return GateReject, confidence, "Invalid LLM response: " + reason, false
	}

	slog.Info("gate2a result", "verdict", v.Verdict, "confidence", confidence, "reason", reason)
	return v.Verdict, confidence, reason, false
}
