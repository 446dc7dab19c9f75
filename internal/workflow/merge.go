package workflow

import "sort"

// Merge combines a stage's proposed update with previously persisted
// fragments into one consistent snapshot. existing is ordered
// most-authoritative first (later stages outrank earlier ones for the
// fields they introduced). Merging never discards data a source does not
// own:
//
//   - scalar fields overlay in reverse priority order, proposed last;
//   - prompt attempts are unioned by id across all sources, and when the
//     same id appears more than once the copy with the latest mutation
//     timestamp wins field by field, not whole-record;
//   - comment and evaluation maps are unioned by key, higher-priority
//     sources winning per key.
//
// Absent (nil) fragments contribute nothing, so the merge degrades
// gracefully to "proposed update only".
func Merge(proposed *Fragment, existing ...*Fragment) *Fragment {
	snapshot := &Fragment{}
	for i := len(existing) - 1; i >= 0; i-- {
		overlay(snapshot, existing[i])
	}
	overlay(snapshot, proposed)
	sortAttempts(snapshot.PromptAttempts)
	return snapshot
}

func overlay(dst, src *Fragment) {
	if src == nil {
		return
	}
	if src.OriginalText != "" {
		dst.OriginalText = src.OriginalText
	}
	if src.BaselineTranslation != "" {
		dst.BaselineTranslation = src.BaselineTranslation
	}
	if src.DraftPrompt != "" {
		dst.DraftPrompt = src.DraftPrompt
	}
	if src.BestSelection != "" {
		dst.BestSelection = src.BestSelection
	}
	if src.TotalPromptCount != 0 {
		dst.TotalPromptCount = src.TotalPromptCount
	}
	if src.SavedAt.After(dst.SavedAt) {
		dst.SavedAt = src.SavedAt
	}
	for _, a := range src.PromptAttempts {
		if cur := dst.Attempt(a.ID); cur != nil {
			*cur = mergeAttempt(*cur, a)
		} else {
			dst.PromptAttempts = append(dst.PromptAttempts, *cloneAttempt(&a))
		}
	}
	if len(src.Comments) > 0 {
		if dst.Comments == nil {
			dst.Comments = make(map[string]string, len(src.Comments))
		}
		for k, v := range src.Comments {
			dst.Comments[k] = v
		}
	}
	if len(src.QualityEvaluations) > 0 {
		if dst.QualityEvaluations == nil {
			dst.QualityEvaluations = make(map[string]QualityEvaluation, len(src.QualityEvaluations))
		}
		for k, v := range src.QualityEvaluations {
			dst.QualityEvaluations[k] = v
		}
	}
}

// mergeAttempt merges two copies of the same attempt field by field. The
// copy with the later mutation timestamp provides every field it has set;
// fields it left unset are preserved from the other copy, so a result
// attached by one stage survives another stage's concurrent edit of the
// like flag.
func mergeAttempt(a, b PromptAttempt) PromptAttempt {
	winner, loser := b, a
	if a.MutationTime().After(b.MutationTime()) {
		winner, loser = a, b
	}
	merged := *cloneAttempt(&winner)
	if merged.Text == "" {
		merged.Text = loser.Text
	}
	if merged.VersionLabel == "" {
		merged.VersionLabel = loser.VersionLabel
	}
	if merged.Liked == nil && loser.Liked != nil {
		liked := *loser.Liked
		merged.Liked = &liked
	}
	if merged.Result == nil && loser.Result != nil {
		result := *loser.Result
		merged.Result = &result
	}
	if merged.CreatedAt.IsZero() || (!loser.CreatedAt.IsZero() && loser.CreatedAt.Before(merged.CreatedAt)) {
		merged.CreatedAt = loser.CreatedAt
	}
	if loser.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = loser.UpdatedAt
	}
	return merged
}

func sortAttempts(attempts []PromptAttempt) {
	sort.SliceStable(attempts, func(i, j int) bool {
		if !attempts[i].CreatedAt.Equal(attempts[j].CreatedAt) {
			return attempts[i].CreatedAt.Before(attempts[j].CreatedAt)
		}
		return attempts[i].ID < attempts[j].ID
	})
}
