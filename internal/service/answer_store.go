package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// AnswerStore validates and persists one answer per question.
type AnswerStore interface {
	Upsert(ctx context.Context, submissionID uint, question grading.Question, raw []byte) (models.SubmissionResponse, error)
}

type answerStore struct {
	submissions repository.SubmissionRepository
	sanitizer   *bluemonday.Policy
}

// NewAnswerStore constructs the answer store.
func NewAnswerStore(submissions repository.SubmissionRepository) AnswerStore {
	return &answerStore{
		submissions: submissions,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// Upsert overwrites an existing answer in place or appends a new one. It
// returns repository.ErrStatusConflict when the attempt stopped running.
func (s *answerStore) Upsert(ctx context.Context, submissionID uint, question grading.Question, raw []byte) (models.SubmissionResponse, error) {
	answer, err := question.ParseAnswer(raw)
	if err != nil {
		return models.SubmissionResponse{}, fmt.Errorf("%w: %v", ErrAnswerRejected, err)
	}

	if text, ok := answer.(grading.Text); ok {
		text.Value = strings.TrimSpace(s.sanitizer.Sanitize(text.Value))
		answer = text
	}

	encoded, err := answer.Encode()
	if err != nil {
		return models.SubmissionResponse{}, fmt.Errorf("%w: %v", ErrAnswerRejected, err)
	}

	response := models.SubmissionResponse{
		SubmissionID: submissionID,
		QuestionID:   question.QuestionID(),
		ResponseType: string(question.Type()),
		AnswerValue:  datatypes.JSON(encoded),
	}

	if err := s.submissions.UpsertResponse(ctx, &response); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return models.SubmissionResponse{}, err
		}
		return models.SubmissionResponse{}, fmt.Errorf("failed to store answer: %w", err)
	}

	return response, nil
}
