package learning

import (
	"context"
	"strings"
	"testing"

	"github.com/foyer-ai/foyer/internal/config"
)

func TestGate1_PassAndReject(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t,
		`{"verdict": "pass", "reason": "coherent"}`,
		`{"verdict": "reject", "reason": "contradictory"}`,
	)
	g := NewGates(sidecar.client(), nil, nil)

	status, reason := g.Gate1(context.Background(), "Le chat s'assoit sur le tapis")
	if status != GatePass || reason != "coherent" {
		t.Errorf("first = (%s, %s)", status, reason)
	}
	status, reason = g.Gate1(context.Background(), "x")
	if status != GateReject || reason != "contradictory" {
		t.Errorf("second = (%s, %s)", status, reason)
	}
}

func TestGate1_InvalidVerdictDefaultsToReject(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t, `{"verdict": "maybe", "reason": "unsure"}`)
	g := NewGates(sidecar.client(), nil, nil)

	status, _ := g.Gate1(context.Background(), "x")
	if status != GateReject {
		t.Errorf("status = %s, want reject", status)
	}
}

func TestGate1_UnparseableIsError(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t, "This looks fine to me!")
	g := NewGates(sidecar.client(), nil, nil)

	status, _ := g.Gate1(context.Background(), "x")
	if status != GateError {
		t.Errorf("status = %s, want error", status)
	}
}

func TestGate1_SidecarDownIsError(t *testing.T) {
	t.Parallel()
	g := NewGates(NewSidecarClient(config.LLMSidecarConfig{
		BaseURL: "http://127.0.0.1:1", TimeoutSeconds: 1, GateUserID: "dad",
	}), nil, nil)

	status, _ := g.Gate1(context.Background(), "x")
	if status != GateError {
		t.Errorf("status = %s, want error", status)
	}
}

func TestGate2A_PersonalInfoBypassesLLM(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t) // no canned responses: any chat call fails
	g := NewGates(sidecar.client(), defaultKeywords(), nil)

	status, confidence, reason, personal := g.Gate2A(context.Background(), "Ma fille s'appelle Alice")
	if status != GatePass || confidence != 1.0 || !personal {
		t.Errorf("got (%s, %f, %q, %v)", status, confidence, reason, personal)
	}
	if reason != personalInfoAutoPassReason {
		t.Errorf("reason = %q", reason)
	}
	if chat, _ := sidecar.calls(); chat != 0 {
		t.Error("personal info must not reach the local LLM")
	}
}

func TestGate2A_ConfidenceClamped(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t, `{"verdict": "pass", "confidence": 1.7, "reason": "sure"}`)
	g := NewGates(sidecar.client(), nil, nil)

	status, confidence, _, personal := g.Gate2A(context.Background(), "L'eau bout à 100 degrés")
	if status != GatePass || confidence != 1.0 || personal {
		t.Errorf("got (%s, %f, %v)", status, confidence, personal)
	}
}

func TestGate2A_MissingConfidenceDefaults(t *testing.T) {
	t.Parallel()
	sidecar := newFakeLLMSidecar(t, `{"verdict": "pass", "reason": "plausible"}`)
	g := NewGates(sidecar.client(), nil, nil)

	_, confidence, _, _ := g.Gate2A(context.Background(), "x")
	if confidence != 0.5 {
		t.Errorf("confidence = %f, want default 0.5", confidence)
	}
}

func TestIsPersonalInfo_CaseInsensitiveSubstring(t *testing.T) {
	t.Parallel()
	g := NewGates(nil, []string{"anniversaire", "my daughter"}, nil)

	cases := []struct {
		content string
		want    bool
	}{
		{"Son ANNIVERSAIRE est en mars", true},
		{"My Daughter loves trains", true},
		{"Paris est la capitale de la France", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := g.IsPersonalInfo(tc.content); got != tc.want {
			t.Errorf("IsPersonalInfo(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestGate2B_NoKeyAutoPasses(t *testing.T) {
	t.Parallel()
	g := NewGates(nil, nil, nil)
	status, reason := g.Gate2B(context.Background(), "x")
	if status != GatePass {
		t.Errorf("status = %s, want pass", status)
	}
	if reason != "gate2b_unavailable - API key not configured" {
		t.Errorf("reason = %q", reason)
	}
}

func TestGate2B_VendorReject(t *testing.T) {
	vendor := newFakeVendor(t, `{"verdict": "reject", "reason": "false claim"}`)
	g := NewGates(nil, nil, vendor.vendorClient(t))

	status, reason := g.Gate2B(context.Background(), "La terre est plate")
	if status != GateReject || reason != "false claim" {
		t.Errorf("got (%s, %q)", status, reason)
	}
	if vendor.callCount() != 1 {
		t.Errorf("vendor calls = %d", vendor.callCount())
	}
}

func TestGate2B_VendorOutageCoercesToPass(t *testing.T) {
	vendor := newFakeVendor(t, "")
	vendor.fail = true
	g := NewGates(nil, nil, vendor.vendorClient(t))

	status, reason := g.Gate2B(context.Background(), "x")
	if status != GatePass {
		t.Errorf("status = %s, want pass on outage", status)
	}
	if !strings.HasPrefix(reason, "gate2b_unavailable") {
		t.Errorf("reason = %q, want gate2b_unavailable prefix", reason)
	}
}

func TestGate2B_NarratedVendorJSON(t *testing.T) {
	vendor := newFakeVendor(t, `The statement checks out. {"verdict": "pass", "reason": "verified"}`)
	g := NewGates(nil, nil, vendor.vendorClient(t))

	status, reason := g.Gate2B(context.Background(), "x")
	if status != GatePass || reason != "verified" {
		t.Errorf("got (%s, %q)", status, reason)
	}
}
