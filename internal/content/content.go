// Package content implements the content providers that write the weekly
// email copy: a deterministic mock, OpenAI chat completions, and AWS
// Bedrock. Every provider returns exactly three drafts, one per funnel stage.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// Provider generates the three weekly candidate drafts.
type Provider interface {
	GenerateCandidates(ctx context.Context, gctx domain.GenerationContext) ([]domain.CandidateDraft, error)
}

// ErrMissingAPIKey is returned when a remote provider has no credentials.
var ErrMissingAPIKey = errors.New("content: api key is required")

// SystemPrompt is sent to every model-backed provider.
const SystemPrompt = "You generate internal sales enablement weekly email candidates. Return strict JSON only."

// DefaultPolicy is used when no policy file is configured.
const DefaultPolicy = `Write three weekly sales enablement emails for the field team.
Return a JSON object {"candidates": [...]} with exactly three items.
Each item has: funnel_stage (one of "top", "mid", "bottom", one of each),
subject, preview, body_html, body_text, cta, and optionally image_url.
Keep each email short with one clear call to action.`

// LoadPolicy reads the policy text at path, or returns DefaultPolicy.
func LoadPolicy(path string) (string, error) {
	if path == "" {
		return DefaultPolicy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("content: read policy: %w", err)
	}
	return string(data), nil
}

// BuildPrompt assembles the user prompt from the generation context, the
// policy and the approved image URLs.
func BuildPrompt(gctx domain.GenerationContext, policy string, allowlist []string) string {
	var b strings.Builder
	b.WriteString("Follow the policy exactly and return JSON only.\n\n")
	fmt.Fprintf(&b, "week_of: %s\n", gctx.WeekOf)
	if notes := strings.TrimSpace(gctx.FocusNotes); notes != "" {
		fmt.Fprintf(&b, "focus_notes: %s\n", notes)
	}

	var rules []string
	if gctx.Constraints.NoEmojis {
		rules = append(rules, "Do not use emojis.")
	}
	if gctx.Constraints.NoEmdash {
		rules = append(rules, "Do not use em dashes.")
	}
	if gctx.Constraints.NeverDiscussPricing {
		rules = append(rules, "Never discuss pricing.")
	}
	if len(rules) > 0 {
		b.WriteString("\nConstraints:\n")
		for _, r := range rules {
			b.WriteString("- " + r + "\n")
		}
	}

	b.WriteString("\nApproved image URL allowlist:\n")
	if len(allowlist) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, u := range allowlist {
		b.WriteString("- " + u + "\n")
	}

	b.WriteString("\nPolicy:\n")
	b.WriteString(policy)
	return b.String()
}

// ParseCandidates decodes a model response of the form {"candidates": [...]}
// and normalizes each item. It requires exactly three items. An image_url
// that is not in allowlist is dropped.
func ParseCandidates(raw string, allowlist []string) ([]domain.CandidateDraft, error) {
	var payload struct {
		Candidates []map[string]interface{} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &payload); err != nil {
		return nil, fmt.Errorf("content: expected strict JSON: %w", err)
	}
	if payload.Candidates == nil {
		return nil, fmt.Errorf("content: JSON must contain a candidates array")
	}
	if len(payload.Candidates) != 3 {
		return nil, fmt.Errorf("content: must return exactly 3 candidates, got %d", len(payload.Candidates))
	}

	allowed := make(map[string]bool, len(allowlist))
	for _, u := range allowlist {
		allowed[strings.TrimSpace(u)] = true
	}

	drafts := make([]domain.CandidateDraft, 0, 3)
	seen := make(map[domain.FunnelStage]bool, 3)
	for i, item := range payload.Candidates {
		d, err := normalize(item, allowed)
		if err != nil {
			return nil, fmt.Errorf("content: candidate %d: %w", i+1, err)
		}
		if seen[d.FunnelStage] {
			return nil, fmt.Errorf("content: funnel_stage %q appears more than once", d.FunnelStage)
		}
		seen[d.FunnelStage] = true
		drafts = append(drafts, d)
	}
	return drafts, nil
}

func normalize(item map[string]interface{}, allowed map[string]bool) (domain.CandidateDraft, error) {
	if item == nil {
		return domain.CandidateDraft{}, fmt.Errorf("not an object")
	}

	stage := domain.FunnelStage(stringField(item, "funnel_stage"))
	if !stage.Valid() {
		return domain.CandidateDraft{}, fmt.Errorf("invalid funnel_stage: %v", item["funnel_stage"])
	}

	d := domain.CandidateDraft{FunnelStage: stage}
	required := []struct {
		dst  *string
		name string
		keys []string
	}{
		{&d.Subject, "subject", []string{"subject"}},
		{&d.Preview, "preview", []string{"preview", "preview_text"}},
		{&d.BodyHTML, "body_html", []string{"body_html", "bodyHtml", "body"}},
		{&d.BodyText, "body_text", []string{"body_text", "bodyText", "body"}},
		{&d.CTA, "cta", []string{"cta"}},
	}
	for _, r := range required {
		v := stringField(item, r.keys...)
		if v == "" {
			return domain.CandidateDraft{}, fmt.Errorf("%s is required", r.name)
		}
		*r.dst = v
	}
	d.BodyMarkdown = d.BodyText
	if md := stringField(item, "body_markdown"); md != "" {
		d.BodyMarkdown = md
	}

	if u := stringField(item, "image_url"); u != "" && allowed[u] {
		d.ImageURL = &u
	}
	return d, nil
}

// stringField returns the trimmed string under the first key that is present
// and not null. Non-string values yield "".
func stringField(item map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		v, ok := item[k]
		if !ok || v == nil {
			continue
		}
		s, _ := v.(string)
		return strings.TrimSpace(s)
	}
	return ""
}
