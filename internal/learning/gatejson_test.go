package learning

import (
	"testing"
)

func TestParseVerdict_PlainJSON(t *testing.T) {
	t.Parallel()
	v, err := parseVerdict(`{"verdict": "pass", "reason": "coherent"}`)
	if err != nil {
		t.Fatalf("parseVerdict: %v", err)
	}
	if v.Verdict != "pass" || v.Reason != "coherent" {
		t.Errorf("v = %+v", v)
	}
}

func TestParseVerdict_FencedJSON(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"```json\n{\"verdict\": \"reject\", \"reason\": \"nonsense\"}\n```",
		"```\n{\"verdict\": \"reject\", \"reason\": \"nonsense\"}\n```",
	} {
		v, err := parseVerdict(raw)
		if err != nil {
			t.Fatalf("parseVerdict(%q): %v", raw, err)
		}
		if v.Verdict != "reject" {
			t.Errorf("verdict = %q", v.Verdict)
		}
	}
}

func TestParseVerdict_NarratedJSON(t *testing.T) {
	t.Parallel()
	raw := `Sure! Here is my analysis: {"verdict": "pass", "confidence": 0.9, "reason": "plausible {fact}"} Hope that helps.`
	v, err := parseVerdict(raw)
	if err != nil {
		t.Fatalf("parseVerdict: %v", err)
	}
	if v.Verdict != "pass" || v.Confidence == nil || *v.Confidence != 0.9 {
		t.Errorf("v = %+v", v)
	}
	if v.Reason != "plausible {fact}" {
		t.Errorf("reason = %q (braces inside strings must not break extraction)", v.Reason)
	}
}

func TestParseVerdict_NoJSON(t *testing.T) {
	t.Parallel()
	if _, err := parseVerdict("I think this is fine."); err == nil {
		t.Error("expected parse error for prose-only response")
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBalancedObject_Nested(t *testing.T) {
	t.Parallel()
	got, ok := balancedObject(`prefix {"a": {"b": 2}} suffix {"c": 3}`)
	if !ok || got != `{"a": {"b": 2}}` {
		t.Errorf("got %q (%v), want outermost first object", got, ok)
	}
}

func TestClamp01(t *testing.T) {
	t.Parallel()
	if clamp01(-0.5) != 0 || clamp01(1.5) != 1 || clamp01(0.42) != 0.42 {
		t.Error("clamp01 bounds wrong")
	}
}
