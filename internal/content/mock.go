package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/weekly-campaign/internal/domain"
)

// MockProvider returns a fixed three-variant set. It never calls out and is
// the default in dev.
type MockProvider struct{}

// NewMockProvider creates a MockProvider.
func NewMockProvider() *MockProvider { return &MockProvider{} }

// GenerateCandidates returns one draft per funnel stage in rank order.
func (MockProvider) GenerateCandidates(ctx context.Context, gctx domain.GenerationContext) ([]domain.CandidateDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	focus := strings.TrimSpace(gctx.FocusNotes)
	if focus == "" {
		focus = "upcoming seasonal moment"
	}

	return []domain.CandidateDraft{
		{
			FunnelStage:  domain.StageTop,
			Subject:      fmt.Sprintf("Weekly touchpoint: %s", focus),
			Preview:      "One quick idea to help retailers move product this week.",
			BodyHTML:     fmt.Sprintf("<p>Tie the note to <strong>%s</strong>.</p><ul><li>Keep it short</li><li>One clear CTA</li><li>No pricing</li></ul>", focus),
			BodyText:     fmt.Sprintf("Tie the note to %s.\n\n- Keep it short\n- One clear CTA\n- No pricing", focus),
			BodyMarkdown: fmt.Sprintf("Tie the note to **%s**.\n\n- Keep it short\n- One clear CTA\n- No pricing\n", focus),
			CTA:          "Reply to request the one-pager",
		},
		{
			FunnelStage:  domain.StageMid,
			Subject:      "A simple talking point for your next retail visit",
			Preview:      "Use this 15-second script to introduce the product without sounding salesy.",
			BodyHTML:     "<p>\"Here's a small add-on that turns a standard pour into a giftable moment without extra work.\"</p><p>If you want, I can send a shelf-talker PDF you can drop at accounts.</p>",
			BodyText:     "\"Here's a small add-on that turns a standard pour into a giftable moment without extra work.\"\n\nIf you want, I can send a shelf-talker PDF you can drop at accounts.",
			BodyMarkdown: "\"Here's a small add-on that turns a standard pour into a giftable moment without extra work.\"\n\nIf you want, I can send a shelf-talker PDF you can drop at accounts.\n",
			CTA:          "Reply for the shelf-talker PDF",
		},
		{
			FunnelStage:  domain.StageBottom,
			Subject:      "Retailer-friendly: low effort, high perceived value",
			Preview:      "A positioning angle that's easy to explain and easy to stock.",
			BodyHTML:     "<p>Simple to demo. Easy to explain. Extremely giftable.</p><ul><li>No liquor license required</li><li>Small countertop footprint</li><li>Repeat-purchase gift</li></ul>",
			BodyText:     "Simple to demo. Easy to explain. Extremely giftable.\n\n- No liquor license required\n- Small countertop footprint\n- Repeat-purchase gift",
			BodyMarkdown: "Simple to demo. Easy to explain. Extremely giftable.\n\n- No liquor license required\n- Small countertop footprint\n- Repeat-purchase gift\n",
			CTA:          "Reply for a small display option",
		},
	}, nil
}
