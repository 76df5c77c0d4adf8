package segmentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/weekly-campaign/internal/domain"
)

func intPtr(n int) *int { return &n }

func candidates() []domain.Candidate {
	return []domain.Candidate{
		{ID: "cand-top", Rank: 1, FunnelStage: domain.StageTop},
		{ID: "cand-mid", Rank: 2, FunnelStage: domain.StageMid},
		{ID: "cand-bottom", Rank: 3, FunnelStage: domain.StageBottom},
	}
}

func TestStableHash_Vectors(t *testing.T) {
	tests := []struct {
		in   string
		want uint32
	}{
		{"", 5381},
		{"a", 177670},
		{"c-12026-02-16", 2948921395},
		{"contact-12026-02-16", 3310657212},
		{"contact-22026-02-16", 1253135357},
		{"contact-42026-02-16", 1433058943},
		{"c-é2026-02-16", 2322022123},
		// surrogate pair hashes as two code units
		{"😀", 7743522},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StableHash(tt.in), "hash of %q", tt.in)
	}
}

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, Bucket("contact-1", "2026-02-16"))
	assert.Equal(t, 1, Bucket("contact-2", "2026-02-16"))
	assert.Equal(t, 2, Bucket("contact-3", "2026-02-16"))
	assert.Equal(t, 3, Bucket("contact-4", "2026-02-16"))
	assert.Equal(t, 3, Bucket("c-1", "2026-02-16"))
}

func TestTargetStage(t *testing.T) {
	assert.Equal(t, domain.StageTop, TargetStage(0, true))
	assert.Equal(t, domain.StageTop, TargetStage(2, true))
	assert.Equal(t, domain.StageMid, TargetStage(3, true))
	assert.Equal(t, domain.StageBottom, TargetStage(1, false))
	assert.Equal(t, domain.StageMid, TargetStage(3, false))
}

func TestSelectForContact(t *testing.T) {
	week := "2026-02-16"

	tests := []struct {
		name    string
		contact domain.Contact
		want    string
	}{
		{"cold nil orders bucket 0", domain.Contact{ID: "contact-1"}, "cand-top"},
		{"cold zero orders bucket 1", domain.Contact{ID: "contact-2", OrderCount: intPtr(0)}, "cand-top"},
		{"buyer bucket 2", domain.Contact{ID: "contact-3", OrderCount: intPtr(4)}, "cand-bottom"},
		{"buyer bucket 3", domain.Contact{ID: "contact-4", OrderCount: intPtr(1)}, "cand-mid"},
		{"cold bucket 3", domain.Contact{ID: "c-1"}, "cand-mid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectForContact(tt.contact, candidates(), week)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestSelectForContact_Deterministic(t *testing.T) {
	c := domain.Contact{ID: "contact-5", OrderCount: intPtr(2)}
	first, err := SelectForContact(c, candidates(), "2026-02-16")
	require.NoError(t, err)

	reversed := candidates()
	reversed[0], reversed[2] = reversed[2], reversed[0]
	for i := 0; i < 10; i++ {
		got, err := SelectForContact(c, reversed, "2026-02-16")
		require.NoError(t, err)
		assert.Equal(t, first.FunnelStage, got.FunnelStage)
	}
}

func TestSelectForContact_StageMissing(t *testing.T) {
	only := []domain.Candidate{{ID: "cand-bottom", FunnelStage: domain.StageBottom}}
	_, err := SelectForContact(domain.Contact{ID: "contact-1"}, only, "2026-02-16")
	assert.ErrorIs(t, err, ErrStageMissing)
}

func TestAssign(t *testing.T) {
	a := Assign(domain.Contact{ID: "contact-4", OrderCount: intPtr(3)}, "2026-02-16")
	assert.Equal(t, 3, a.Bucket)
	assert.False(t, a.Cold)
	assert.Equal(t, domain.StageMid, a.Stage)
	assert.Equal(t, "2026-02-16", a.WeekOf)
}
