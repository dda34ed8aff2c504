package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
)

const isoLayout = time.RFC3339

// QuestionOptionRequest is a selectable option supplied by a teacher.
type QuestionOptionRequest struct {
	ID   string `json:"id" validate:"required,max=64"`
	Text string `json:"text" validate:"required"`
}

// AssessmentQuestionRequest describes one question in a create/update payload.
type AssessmentQuestionRequest struct {
	Type           string                  `json:"type" validate:"required,oneof=single_choice multiple_choice multi_select short_answer essay file_upload"`
	Prompt         string                  `json:"prompt" validate:"required"`
	Options        []QuestionOptionRequest `json:"options" validate:"omitempty,dive"`
	CorrectAnswers []int                   `json:"correct_answers" validate:"omitempty,dive,gte=0"`
	Marks          float64                 `json:"marks" validate:"gte=0"`
}

// AssessmentCreateRequest describes the payload for creating an assessment.
type AssessmentCreateRequest struct {
	Title           string                      `json:"title" validate:"required,min=3"`
	Instructions    string                      `json:"instructions"`
	Type            string                      `json:"type" validate:"omitempty,oneof=quiz assignment exam project"`
	DurationMinutes int                         `json:"duration_minutes" validate:"gte=0"`
	DueDate         *string                     `json:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	OpenAt          *string                     `json:"open_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CloseAt         *string                     `json:"close_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	PublishStatus   string                      `json:"publish_status" validate:"omitempty,oneof=draft published"`
	Questions       []AssessmentQuestionRequest `json:"questions" validate:"omitempty,dive"`
}

// AssessmentUpdateRequest describes a partial update. Questions, when
// present, replace the whole question list.
type AssessmentUpdateRequest struct {
	Title           *string                      `json:"title" validate:"omitempty,min=3"`
	Instructions    *string                      `json:"instructions"`
	Type            *string                      `json:"type" validate:"omitempty,oneof=quiz assignment exam project"`
	DurationMinutes *int                         `json:"duration_minutes" validate:"omitempty,gte=0"`
	DueDate         *string                      `json:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	OpenAt          *string                      `json:"open_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	CloseAt         *string                      `json:"close_at" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	PublishStatus   *string                      `json:"publish_status" validate:"omitempty,oneof=draft published"`
	Questions       *[]AssessmentQuestionRequest `json:"questions" validate:"omitempty,dive"`
}

// AssessmentListRequest captures list filters.
type AssessmentListRequest struct {
	Search   string `validate:"omitempty,max=100"`
	Sort     string `validate:"omitempty,max=32"`
	Page     int    `validate:"gte=0"`
	PageSize int    `validate:"gte=0,lte=100"`
}

// QuestionResponse is a question as returned to clients. The key is only
// present for teachers and admins.
type QuestionResponse struct {
	ID             uint             `json:"id"`
	Position       int              `json:"position"`
	Type           string           `json:"type"`
	Prompt         string           `json:"prompt"`
	Options        []grading.Option `json:"options"`
	CorrectAnswers []int            `json:"correct_answers,omitempty"`
	Marks          float64          `json:"marks"`
}

// AssessmentResponse is the serialized catalog entry.
type AssessmentResponse struct {
	ID              uint               `json:"id"`
	Title           string             `json:"title"`
	Instructions    string             `json:"instructions"`
	Type            string             `json:"type"`
	DurationMinutes int                `json:"duration_minutes"`
	DueDate         *time.Time         `json:"due_date"`
	OpenAt          *time.Time         `json:"open_at"`
	CloseAt         *time.Time         `json:"close_at"`
	PublishStatus   string             `json:"publish_status"`
	MaxScore        float64            `json:"max_score"`
	OwnerTeacherID  uint               `json:"owner_teacher_id"`
	Questions       []QuestionResponse `json:"questions"`
	StudentStatus   string             `json:"student_status,omitempty"`
	StudentScore    *float64           `json:"student_score,omitempty"`
	SubmissionID    *uint              `json:"submission_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// AssessmentListResponse wraps a page of assessments.
type AssessmentListResponse struct {
	Items      []AssessmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewAssessmentResponse converts a model into a DTO. includeKey controls
// whether correct answers are exposed.
func NewAssessmentResponse(model models.Assessment, includeKey bool) AssessmentResponse {
	questions := make([]QuestionResponse, 0, len(model.Questions))
	for _, question := range model.Questions {
		item := QuestionResponse{
			ID:       question.ID,
			Position: question.Position,
			Type:     question.Type,
			Prompt:   question.Prompt,
			Options:  []grading.Option(question.Options),
			Marks:    question.Marks,
		}
		if item.Options == nil {
			item.Options = []grading.Option{}
		}
		if includeKey {
			item.CorrectAnswers = []int(question.CorrectAnswers)
		}
		questions = append(questions, item)
	}

	return AssessmentResponse{
		ID:              model.ID,
		Title:           model.Title,
		Instructions:    model.Instructions,
		Type:            model.Type,
		DurationMinutes: model.DurationMinutes,
		DueDate:         model.DueDate,
		OpenAt:          model.OpenAt,
		CloseAt:         model.CloseAt,
		PublishStatus:   model.PublishStatus,
		MaxScore:        model.MaxScore,
		OwnerTeacherID:  model.OwnerTeacherID,
		Questions:       questions,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// ParseISOTime parses an optional RFC3339 timestamp.
func ParseISOTime(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(isoLayout, *value)
	if err != nil {
		return nil, err
	}
	utc := parsed.UTC()
	return &utc, nil
}
