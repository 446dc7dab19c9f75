package workflow

import "fmt"

// Key classes persisted per task. Keys are built deterministically from a
// fixed prefix, the owning key class and the task id, so every stage of a
// session addresses the same entries.
//
// Per task:
//   - authoring fragment   promptlab/fragments/<taskID>/authoring.json
//   - review fragment      promptlab/fragments/<taskID>/review.json
//   - submission fragment  promptlab/fragments/<taskID>/submission.json (audit copy)
//   - emergency backup     promptlab/fragments/<taskID>/backup.json
//   - dedupe marker        promptlab/dedupe/<userID>__<taskID>.json
//   - task status          promptlab/tasks/<taskID>/status
//   - queued submission    promptlab/queue/<taskID>.json

const (
	keyPrefix = "promptlab"

	// FragmentsPrefix is the storage prefix holding all fragment keys.
	FragmentsPrefix = keyPrefix + "/fragments"
	// QueuePrefix is the storage prefix holding queued submissions.
	QueuePrefix = keyPrefix + "/queue"
)

// KeyClass names a fragment key class within a task's storage scope.
type KeyClass string

const (
	ClassAuthoring  KeyClass = "authoring"
	ClassReview     KeyClass = "review"
	ClassSubmission KeyClass = "submission"
	ClassBackup     KeyClass = "backup"
)

func FragmentKey(class KeyClass, taskID string) string {
	return fmt.Sprintf("%s/%s/%s.json", FragmentsPrefix, taskID, class)
}

func BackupKey(taskID string) string {
	return FragmentKey(ClassBackup, taskID)
}

func DedupeKey(userID, taskID string) string {
	return fmt.Sprintf("%s/dedupe/%s__%s.json", keyPrefix, userID, taskID)
}

func StatusKey(taskID string) string {
	return fmt.Sprintf("%s/tasks/%s/status", keyPrefix, taskID)
}

func QueueKey(taskID string) string {
	return fmt.Sprintf("%s/%s.json", QueuePrefix, taskID)
}
