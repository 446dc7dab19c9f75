package submission

import (
	"encoding/json"
	"time"

	"github.com/voithru/webnovel-prompt-lab-sub000/internal/docs"
	"github.com/voithru/webnovel-prompt-lab-sub000/internal/workflow"
)

// Record is the flattened payload sent to the remote collector. Catalog
// metadata (season labels and other display fields) is passed through as
// additional flat keys; those keys are not semantically load-bearing here.
type Record struct {
	UserID            string `json:"userId"`
	TaskID            string `json:"taskId"`
	SeasonLabel       string `json:"seasonLabel,omitempty"`
	EpisodeLabel      string `json:"episodeLabel,omitempty"`
	SourceLanguage    string `json:"sourceLanguage,omitempty"`
	TargetLanguage    string `json:"targetLanguage,omitempty"`
	BestPromptID      string `json:"bestPromptId"`
	BestPromptText    string `json:"bestPromptText"`
	BestPromptVersion string `json:"bestPromptVersion,omitempty"`
	BestTranslation   string `json:"bestTranslation,omitempty"`
	BestComment       string `json:"bestComment,omitempty"`
	EvaluationText    string `json:"evaluationText,omitempty"`
	EvaluationScore   int    `json:"evaluationScore,omitempty"`
	TotalPromptCount  int    `json:"totalPromptCount"`
	LikedPromptCount  int    `json:"likedPromptCount"`
	SubmittedAt       string `json:"submittedAt"`

	// Extra holds pass-through display metadata flattened into the wire
	// object alongside the fields above.
	Extra map[string]string `json:"-"`
}

// MarshalJSON flattens Extra into the top-level object. Typed fields win
// on key collisions.
func (rec *Record) MarshalJSON() ([]byte, error) {
	type alias Record
	data, err := json.Marshal((*alias)(rec))
	if err != nil {
		return nil, err
	}
	if len(rec.Extra) == 0 {
		return data, nil
	}
	flat := make(map[string]any, len(rec.Extra)+16)
	for k, v := range rec.Extra {
		flat[k] = v
	}
	var typed map[string]any
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, err
	}
	for k, v := range typed {
		flat[k] = v
	}
	return json.Marshal(flat)
}

// BuildRecord maps the merged snapshot and catalog entry onto the wire
// payload. It assumes pre-flight validation has already passed.
func BuildRecord(userID, taskID string, entry *docs.Entry, snapshot *workflow.Fragment, now time.Time) *Record {
	rec := &Record{
		UserID:           userID,
		TaskID:           taskID,
		BestPromptID:     snapshot.BestSelection,
		TotalPromptCount: snapshot.TotalPromptCount,
		SubmittedAt:      now.UTC().Format(time.RFC3339),
	}
	if entry != nil {
		rec.SeasonLabel = entry.SeasonLabel
		rec.EpisodeLabel = entry.EpisodeLabel
		rec.SourceLanguage = entry.SourceLanguage
		rec.TargetLanguage = entry.TargetLanguage
		rec.Extra = entry.Metadata
	}
	if best := snapshot.Attempt(snapshot.BestSelection); best != nil {
		rec.BestPromptText = best.Text
		rec.BestPromptVersion = best.VersionLabel
		if best.Result != nil {
			rec.BestTranslation = *best.Result
		}
	}
	rec.BestComment = snapshot.Comments[snapshot.BestSelection]
	if eval, ok := snapshot.QualityEvaluations[snapshot.BestSelection]; ok {
		rec.EvaluationText = eval.Text
		rec.EvaluationScore = eval.Score
	}
	for _, a := range snapshot.PromptAttempts {
		if a.Liked != nil && *a.Liked {
			rec.LikedPromptCount++
		}
	}
	return rec
}
