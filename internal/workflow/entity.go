package workflow

import "time"

// PromptAttempt is one authored prompt and its translation result. Result
// stays nil until the translation call resolves; Liked is a tri-state
// (nil = the reviewer has not decided yet).
type PromptAttempt struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	VersionLabel string    `json:"versionLabel,omitempty"`
	Liked        *bool     `json:"liked,omitempty"`
	Result       *string   `json:"result,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// MutationTime is the timestamp used to decide which copy of an attempt
// wins when the same id appears in multiple fragments.
func (a *PromptAttempt) MutationTime() time.Time {
	if !a.UpdatedAt.IsZero() {
		return a.UpdatedAt
	}
	return a.CreatedAt
}

type QualityEvaluation struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
}

// Fragment is one stage's persisted partial view of a task's workflow
// state. Several fragments may coexist for one task; none is authoritative
// in isolation — the logical state is always the merge of all of them.
//
// Nil maps/slices and empty strings mean "field not set by this fragment".
type Fragment struct {
	PromptAttempts      []PromptAttempt              `json:"promptAttempts,omitempty"`
	OriginalText        string                       `json:"originalText,omitempty"`
	BaselineTranslation string                       `json:"baselineTranslation,omitempty"`
	DraftPrompt         string                       `json:"draftPrompt,omitempty"`
	Comments            map[string]string            `json:"comments,omitempty"`
	QualityEvaluations  map[string]QualityEvaluation `json:"qualityEvaluations,omitempty"`
	BestSelection       string                       `json:"bestSelection,omitempty"`
	TotalPromptCount    int                          `json:"totalPromptCount,omitempty"`
	SavedAt             time.Time                    `json:"savedAt,omitempty"`
}

// Empty reports whether the fragment holds no meaningful content. An empty
// snapshot must never overwrite a fragment that already holds real data.
func (f *Fragment) Empty() bool {
	if f == nil {
		return true
	}
	return len(f.PromptAttempts) == 0 && f.OriginalText == "" && len(f.Comments) == 0
}

// Attempt returns the attempt with the given id, or nil.
func (f *Fragment) Attempt(id string) *PromptAttempt {
	for i := range f.PromptAttempts {
		if f.PromptAttempts[i].ID == id {
			return &f.PromptAttempts[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the fragment.
func (f *Fragment) Clone() *Fragment {
	if f == nil {
		return nil
	}
	c := *f
	if f.PromptAttempts != nil {
		c.PromptAttempts = make([]PromptAttempt, len(f.PromptAttempts))
		for i, a := range f.PromptAttempts {
			c.PromptAttempts[i] = *cloneAttempt(&a)
		}
	}
	if f.Comments != nil {
		c.Comments = make(map[string]string, len(f.Comments))
		for k, v := range f.Comments {
			c.Comments[k] = v
		}
	}
	if f.QualityEvaluations != nil {
		c.QualityEvaluations = make(map[string]QualityEvaluation, len(f.QualityEvaluations))
		for k, v := range f.QualityEvaluations {
			c.QualityEvaluations[k] = v
		}
	}
	return &c
}

func cloneAttempt(a *PromptAttempt) *PromptAttempt {
	c := *a
	if a.Liked != nil {
		liked := *a.Liked
		c.Liked = &liked
	}
	if a.Result != nil {
		result := *a.Result
		c.Result = &result
	}
	return &c
}
