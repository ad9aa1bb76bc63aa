package learning

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/foyer-ai/foyer/internal/config"
)

// gate2bPrompt is deliberately minimal: by the personal-info policy the
// statement reaching the vendor carries no personal context.
const gate2bPrompt = `Is the following statement factually accurate? Answer only with JSON: {"verdict": "pass"|"reject", "reason": "..."}

Statement: %s`

// VendorClient wraps the external fact-check vendor's chat-completions API.
// A nil *VendorClient (no API key configured) is valid and auto-passes.
type VendorClient struct {
	client    oai.Client
	model     string
	maxTokens int
}

// NewVendorClient builds a vendor client from config. Returns nil when no
// API key is present in the configured environment variable — the gate then
// short-circuits to pass.
func NewVendorClient(cfg config.FactCheckConfig) *VendorClient {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.TimeoutSeconds > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		}))
	}

	return &VendorClient{
		client:    oai.NewClient(reqOpts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Gate2B runs the external fact-check. It never blocks pipeline progress: a
// missing vendor, a transport failure, or an unparseable response all coerce
// to (pass, "gate2b_unavailable - …"). Only an explicit reject verdict (or
// an unrecognised verdict value) rejects.
func (g *Gates) Gate2B(ctx context.Context, content string) (string, string) {
	if g.vendor == nil {
		slog.Warn("gate2b: vendor API key not configured, auto-passing")
		return GatePass, "gate2b_unavailable - API key not configured"
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.vendor.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(fmt.Sprintf(gate2bPrompt, content)),
		},
	}
	if g.vendor.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(g.vendor.maxTokens))
	}

	resp, err := g.vendor.client.Chat.Completions.New(ctx, params)
	if err != nil {
		slog.Warn("gate2b: vendor API error, auto-passing", "err", err)
		return GatePass, fmt.Sprintf("gate2b_unavailable - %v", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("gate2b: empty vendor response, auto-passing")
		return GatePass, "gate2b_unavailable - empty response"
	}

	v, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Warn("gate2b: unparseable vendor response, auto-passing", "err", err)
		return GatePass, fmt.Sprintf("gate2b_unavailable - %v", err)
	}

	reason := v.Reason
	if reason == "" {
		reason = "No reason provided"
	}
	if v.Verdict != GatePass && v.Verdict != GateReject {
		slog.Warn("gate2b: invalid verdict, defaulting to reject", "verdict", v.Verdict)
		return GateReject, "Invalid vendor response: " + reason
	}

	slog.Info("gate2b result", "verdict", v.Verdict, "reason", reason)
	return v.Verdict, reason
}
