package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }

func at(min int) time.Time { return time.Date(2026, 1, 1, 12, min, 0, 0, time.UTC) }

func TestMerge_NilFragments(t *testing.T) {
	merged := Merge(nil, nil, nil)
	require.NotNil(t, merged)
	assert.True(t, merged.Empty())
}

func TestMerge_ProposedOnly(t *testing.T) {
	proposed := &Fragment{
		OriginalText: "source",
		PromptAttempts: []PromptAttempt{
			{ID: "a1", Text: "prompt", CreatedAt: at(0)},
		},
	}
	merged := Merge(proposed)
	assert.Equal(t, "source", merged.OriginalText)
	require.Len(t, merged.PromptAttempts, 1)
	assert.Equal(t, "prompt", merged.PromptAttempts[0].Text)
}

func TestMerge_AttemptUnion(t *testing.T) {
	review := &Fragment{
		PromptAttempts: []PromptAttempt{
			{ID: "a1", Text: "first", CreatedAt: at(0)},
			{ID: "a2", Text: "second", CreatedAt: at(1)},
		},
	}
	authoring := &Fragment{
		PromptAttempts: []PromptAttempt{
			{ID: "a2", Text: "second", CreatedAt: at(1)},
			{ID: "a3", Text: "third", CreatedAt: at(2)},
		},
	}

	merged := Merge(nil, review, authoring)
	require.Len(t, merged.PromptAttempts, 3)
	assert.Equal(t, "a1", merged.PromptAttempts[0].ID)
	assert.Equal(t, "a2", merged.PromptAttempts[1].ID)
	assert.Equal(t, "a3", merged.PromptAttempts[2].ID)
}

func TestMerge_LatestMutationWinsFieldByField(t *testing.T) {
	// The review copy liked the attempt later; the authoring copy carries
	// the translation result. Both edits must survive.
	reviewCopy := &Fragment{
		PromptAttempts: []PromptAttempt{
			{ID: "a1", Text: "prompt", Liked: boolPtr(true), CreatedAt: at(0), UpdatedAt: at(30)},
		},
	}
	authoringCopy := &Fragment{
		PromptAttempts: []PromptAttempt{
			{ID: "a1", Text: "prompt", Result: strPtr("translated"), CreatedAt: at(0), UpdatedAt: at(10)},
		},
	}

	merged := Merge(nil, reviewCopy, authoringCopy)
	require.Len(t, merged.PromptAttempts, 1)
	a := merged.PromptAttempts[0]
	require.NotNil(t, a.Liked)
	assert.True(t, *a.Liked)
	require.NotNil(t, a.Result)
	assert.Equal(t, "translated", *a.Result)
	assert.Equal(t, at(30), a.UpdatedAt)
}

func TestMerge_ScalarOverlayPriority(t *testing.T) {
	review := &Fragment{BestSelection: "a2", TotalPromptCount: 3}
	authoring := &Fragment{OriginalText: "source", TotalPromptCount: 2}

	merged := Merge(nil, review, authoring)
	assert.Equal(t, "a2", merged.BestSelection)
	assert.Equal(t, "source", merged.OriginalText)
	// review outranks authoring for fields both set
	assert.Equal(t, 3, merged.TotalPromptCount)
}

func TestMerge_MapUnion(t *testing.T) {
	review := &Fragment{
		Comments: map[string]string{"a1": "good pacing"},
	}
	older := &Fragment{
		Comments:           map[string]string{"a1": "stale", "a2": "kept"},
		QualityEvaluations: map[string]QualityEvaluation{"a1": {Text: "solid", Score: 4}},
	}

	merged := Merge(nil, review, older)
	assert.Equal(t, "good pacing", merged.Comments["a1"])
	assert.Equal(t, "kept", merged.Comments["a2"])
	assert.Equal(t, 4, merged.QualityEvaluations["a1"].Score)
}

func TestMerge_Idempotent(t *testing.T) {
	f := &Fragment{
		OriginalText: "source",
		PromptAttempts: []PromptAttempt{
			{ID: "a1", Text: "prompt", Liked: boolPtr(true), CreatedAt: at(0), UpdatedAt: at(5)},
		},
		Comments: map[string]string{"a1": "nice"},
	}
	once := Merge(nil, f)
	twice := Merge(nil, once, f)
	assert.Equal(t, once, twice)
}

func TestMerge_SortsByCreatedAtThenID(t *testing.T) {
	f := &Fragment{
		PromptAttempts: []PromptAttempt{
			{ID: "b", CreatedAt: at(1)},
			{ID: "a", CreatedAt: at(1)},
			{ID: "c", CreatedAt: at(0)},
		},
	}
	merged := Merge(nil, f)
	require.Len(t, merged.PromptAttempts, 3)
	assert.Equal(t, "c", merged.PromptAttempts[0].ID)
	assert.Equal(t, "a", merged.PromptAttempts[1].ID)
	assert.Equal(t, "b", merged.PromptAttempts[2].ID)
}
