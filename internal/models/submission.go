package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Submission is one student's attempt at one assessment.
type Submission struct {
	ID                    uint                 `gorm:"primaryKey" json:"id"`
	AssessmentID          uint                 `gorm:"not null;index:idx_submission_pair" json:"assessment_id"`
	StudentID             uint                 `gorm:"not null;index:idx_submission_pair" json:"student_id"`
	ActiveKey             *string              `gorm:"size:64;uniqueIndex" json:"-"`
	Status                string               `gorm:"size:32;not null;index" json:"status"`
	AppliedTimeMultiplier float64              `gorm:"not null;default:1" json:"applied_time_multiplier"`
	TimeStartedAt         time.Time            `gorm:"not null" json:"time_started_at"`
	DeadlineAt            *time.Time           `gorm:"index" json:"deadline_at"`
	PausedAt              *time.Time           `json:"paused_at"`
	RemainingSeconds      *int64               `json:"remaining_seconds"`
	TimeSubmittedAt       *time.Time           `json:"time_submitted_at"`
	AutoSubmitted         bool                 `gorm:"not null;default:false" json:"auto_submitted"`
	TotalScore            *float64             `json:"total_score"`
	GradedAt              *time.Time           `json:"graded_at"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
	Assessment            Assessment           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Responses             []SubmissionResponse `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"responses"`
}

const (
	// SubmissionStatusInProgress marks a running attempt whose clock is ticking.
	SubmissionStatusInProgress = "in_progress"
	// SubmissionStatusPaused marks an attempt with a frozen time balance.
	SubmissionStatusPaused = "paused"
	// SubmissionStatusSubmitted indicates the attempt is closed but not fully scored.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates every response has a score.
	SubmissionStatusGraded = "graded"
)

// NonTerminalStatuses lists the statuses a student can still act on.
var NonTerminalStatuses = []string{SubmissionStatusInProgress, SubmissionStatusPaused}

// IsTerminal reports whether the submission can no longer be changed by the student.
func (s Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusSubmitted || s.Status == SubmissionStatusGraded
}

// IsGraded reports whether the submission has a final score.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// ActivePairKey identifies the single non-terminal attempt allowed per pair.
func ActivePairKey(studentID, assessmentID uint) string {
	return fmt.Sprintf("%d:%d", studentID, assessmentID)
}

// SubmissionResponse is one answer within a submission.
type SubmissionResponse struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	SubmissionID uint           `gorm:"not null;uniqueIndex:idx_response_question" json:"submission_id"`
	QuestionID   uint           `gorm:"not null;uniqueIndex:idx_response_question" json:"question_id"`
	ResponseType string         `gorm:"size:32;not null" json:"response_type"`
	AnswerValue  datatypes.JSON `gorm:"type:json" json:"answer_value"`
	Score        *float64       `json:"score"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
