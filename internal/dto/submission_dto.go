package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// AnswerUpsertRequest is the autosave payload for one question.
type AnswerUpsertRequest struct {
	QuestionID   uint            `json:"question_id" validate:"required,gt=0"`
	ResponseType string          `json:"response_type" validate:"required,oneof=single_choice multiple_choice multi_select short_answer essay file_upload"`
	AnswerValue  json.RawMessage `json:"answer_value" validate:"required"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssessmentID *uint   `query:"assessment_id"`
	StudentID    *uint   `query:"student_id"`
	Status       *string `query:"status" validate:"omitempty,oneof=in_progress paused submitted graded"`
}

// ManualScoreRequest writes a score into a subjective response.
type ManualScoreRequest struct {
	Score *float64 `json:"score" validate:"required,gte=0"`
}

// ResponseItem is one stored answer.
type ResponseItem struct {
	ID           uint            `json:"id"`
	QuestionID   uint            `json:"question_id"`
	ResponseType string          `json:"response_type"`
	AnswerValue  json.RawMessage `json:"answer_value"`
	Score        *float64        `json:"score"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID                    uint           `json:"id"`
	AssessmentID          uint           `json:"assessment_id"`
	StudentID             uint           `json:"student_id"`
	Status                string         `json:"status"`
	AppliedTimeMultiplier float64        `json:"applied_time_multiplier"`
	TimeStartedAt         time.Time      `json:"time_started_at"`
	DeadlineAt            *time.Time     `json:"deadline_at"`
	PausedAt              *time.Time     `json:"paused_at"`
	RemainingSeconds      *int64         `json:"remaining_seconds"`
	TimeSubmittedAt       *time.Time     `json:"time_submitted_at"`
	AutoSubmitted         bool           `json:"auto_submitted"`
	TotalScore            *float64       `json:"total_score"`
	GradedAt              *time.Time     `json:"graded_at"`
	Responses             []ResponseItem `json:"responses"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// TimerResponse is the server-computed countdown projection.
type TimerResponse struct {
	SubmissionID     uint       `json:"submission_id"`
	Status           string     `json:"status"`
	RemainingSeconds *int64     `json:"remaining_seconds"`
	DeadlineAt       *time.Time `json:"deadline_at"`
	ServerTime       time.Time  `json:"server_time"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:                    model.ID,
		AssessmentID:          model.AssessmentID,
		StudentID:             model.StudentID,
		Status:                model.Status,
		AppliedTimeMultiplier: model.AppliedTimeMultiplier,
		TimeStartedAt:         model.TimeStartedAt,
		DeadlineAt:            model.DeadlineAt,
		PausedAt:              model.PausedAt,
		RemainingSeconds:      model.RemainingSeconds,
		TimeSubmittedAt:       model.TimeSubmittedAt,
		AutoSubmitted:         model.AutoSubmitted,
		TotalScore:            model.TotalScore,
		GradedAt:              model.GradedAt,
		Responses:             make([]ResponseItem, 0, len(model.Responses)),
		CreatedAt:             model.CreatedAt,
		UpdatedAt:             model.UpdatedAt,
	}

	for _, item := range model.Responses {
		value := json.RawMessage(item.AnswerValue)
		if len(value) == 0 {
			value = json.RawMessage("null")
		}
		response.Responses = append(response.Responses, ResponseItem{
			ID:           item.ID,
			QuestionID:   item.QuestionID,
			ResponseType: item.ResponseType,
			AnswerValue:  value,
			Score:        item.Score,
			UpdatedAt:    item.UpdatedAt,
		})
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
