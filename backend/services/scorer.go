package services

import (
	"fmt"
	"strings"

	"learnprogress/backend/models"

	"github.com/bytedance/sonic"
)

type AssignmentPayload struct {
	Content     string            `json:"content" validate:"max=20000"`
	Attachments []string          `json:"attachments,omitempty" validate:"omitempty,max=10,dive,url"`
	Answers     map[string]string `json:"answers,omitempty"`
}

// Scorer grades an auto-graded assignment and returns the raw score in
// [0, assignment.MaxScore].
type Scorer interface {
	Score(a *models.Assignment, p AssignmentPayload) (float64, error)
}

// AnswerKeyScorer compares answers against the assignment's answer key, a
// JSON object of question id to expected answer. Matching ignores case and
// surrounding whitespace; each question carries equal weight.
type AnswerKeyScorer struct{}

func (AnswerKeyScorer) Score(a *models.Assignment, p AssignmentPayload) (float64, error) {
	if len(a.AnswerKey) == 0 {
		return 0, fmt.Errorf("assignment %d has no answer key", a.ID)
	}
	var key map[string]string
	if err := sonic.Unmarshal(a.AnswerKey, &key); err != nil {
		return 0, fmt.Errorf("decode answer key of assignment %d: %w", a.ID, err)
	}
	if len(key) == 0 {
		return 0, fmt.Errorf("assignment %d has an empty answer key", a.ID)
	}
	correct := 0
	for q, want := range key {
		if got, ok := p.Answers[q]; ok && strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
			correct++
		}
	}
	return roundTo(float64(correct)/float64(len(key))*a.MaxScore, 2), nil
}

func optionCount(q *models.Quiz) (int, error) {
	if len(q.Options) == 0 {
		return 0, nil
	}
	var opts []interface{}
	if err := sonic.Unmarshal(q.Options, &opts); err != nil {
		return 0, fmt.Errorf("decode options of quiz %d: %w", q.ID, err)
	}
	return len(opts), nil
}
