package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
)

const (
	AssessmentPublishDraft     = "draft"
	AssessmentPublishPublished = "published"
)

// Assessment is a catalog entry: a timed set of questions with an answer key.
type Assessment struct {
	ID              uint                 `gorm:"primaryKey" json:"id"`
	Title           string               `gorm:"size:255;not null" json:"title"`
	Instructions    string               `gorm:"type:text" json:"instructions"`
	Type            string               `gorm:"size:32;not null;default:quiz" json:"type"`
	DurationMinutes int                  `gorm:"not null;default:0" json:"duration_minutes"`
	DueDate         *time.Time           `json:"due_date"`
	OpenAt          *time.Time           `json:"open_at"`
	CloseAt         *time.Time           `json:"close_at"`
	PublishStatus   string               `gorm:"size:32;not null;default:draft" json:"publish_status"`
	MaxScore        float64              `json:"max_score"`
	OwnerTeacherID  uint                 `json:"owner_teacher_id"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Questions       []AssessmentQuestion `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
}

// BaseDuration is the unaccommodated time limit; zero means untimed.
func (a Assessment) BaseDuration() time.Duration {
	if a.DurationMinutes <= 0 {
		return 0
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

// IsPastDue returns true when the due date or hard close has already passed.
func (a Assessment) IsPastDue(reference time.Time) bool {
	if a.DueDate != nil && reference.After(*a.DueDate) {
		return true
	}
	return a.CloseAt != nil && reference.After(*a.CloseAt)
}

// IsOpen reports whether the assessment accepts new attempts at the reference time.
func (a Assessment) IsOpen(reference time.Time) bool {
	return a.OpenAt == nil || !reference.Before(*a.OpenAt)
}

// IsPublished reports whether students can see and start the assessment.
func (a Assessment) IsPublished() bool {
	return a.PublishStatus == AssessmentPublishPublished
}

// AssessmentQuestion is the stored, loosely typed form of a question.
type AssessmentQuestion struct {
	ID             uint                                `gorm:"primaryKey" json:"id"`
	AssessmentID   uint                                `gorm:"not null;index" json:"assessment_id"`
	Position       int                                 `gorm:"not null" json:"position"`
	Type           string                              `gorm:"size:32;not null" json:"type"`
	Prompt         string                              `gorm:"type:text;not null" json:"prompt"`
	Options        datatypes.JSONSlice[grading.Option] `gorm:"type:json" json:"options"`
	CorrectAnswers datatypes.JSONSlice[int]            `gorm:"type:json" json:"correct_answers"`
	Marks          float64                             `gorm:"not null;default:1" json:"marks"`
	CreatedAt      time.Time                           `json:"created_at"`
	UpdatedAt      time.Time                           `json:"updated_at"`
}

// Definition converts the stored row into the grading definition shape.
func (q AssessmentQuestion) Definition() grading.Definition {
	return grading.Definition{
		ID:             q.ID,
		Type:           q.Type,
		Marks:          q.Marks,
		Options:        []grading.Option(q.Options),
		CorrectAnswers: []int(q.CorrectAnswers),
	}
}

// Variants builds the closed question variants for every stored question.
func (a Assessment) Variants() ([]grading.Question, error) {
	variants := make([]grading.Question, 0, len(a.Questions))
	for _, question := range a.Questions {
		variant, err := grading.NewQuestion(question.Definition())
		if err != nil {
			return nil, err
		}
		variants = append(variants, variant)
	}
	return variants, nil
}
