package service

import "errors"

// Error families surfaced to the transport layer. Specific errors wrap one of these.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("caller does not own this resource")
	ErrInvalidTransition = errors.New("operation not allowed in current state")
	ErrValidation        = errors.New("validation failed")
)

var (
	// ErrStudentNotFound indicates the student profile does not exist.
	ErrStudentNotFound = wrapFamily(ErrNotFound, "student not found")
	// ErrAssessmentNotFound indicates the assessment does not exist.
	ErrAssessmentNotFound = wrapFamily(ErrNotFound, "assessment not found")
	// ErrSubmissionNotFound indicates the submission does not exist.
	ErrSubmissionNotFound = wrapFamily(ErrNotFound, "submission not found")
	// ErrResponseNotFound indicates no response exists for the question.
	ErrResponseNotFound = wrapFamily(ErrNotFound, "response not found")

	// ErrNotSubmissionOwner indicates the caller is not the owning student.
	ErrNotSubmissionOwner = wrapFamily(ErrUnauthorized, "submission belongs to another student")

	// ErrAssessmentNotPublished indicates students cannot start a draft.
	ErrAssessmentNotPublished = wrapFamily(ErrInvalidTransition, "assessment is not published")
	// ErrAssessmentNotOpen indicates the assessment window has not opened yet.
	ErrAssessmentNotOpen = wrapFamily(ErrInvalidTransition, "assessment is not open yet")
	// ErrAssessmentPastDue indicates the due date or hard close has passed.
	ErrAssessmentPastDue = wrapFamily(ErrInvalidTransition, "assessment is past due")
	// ErrAssessmentHasSubmissions blocks deletion of an assessment with attempts.
	ErrAssessmentHasSubmissions = wrapFamily(ErrInvalidTransition, "assessment already has submissions")
	// ErrSubmissionNotInProgress indicates the attempt is not running.
	ErrSubmissionNotInProgress = wrapFamily(ErrInvalidTransition, "submission is not in progress")
	// ErrSubmissionNotPaused indicates only paused attempts can be resumed.
	ErrSubmissionNotPaused = wrapFamily(ErrInvalidTransition, "submission is not paused")
	// ErrSubmissionNotGradable indicates manual scores only apply to submitted attempts.
	ErrSubmissionNotGradable = wrapFamily(ErrInvalidTransition, "submission is not awaiting manual grading")
	// ErrScoreAlreadySet indicates the response already carries a score.
	ErrScoreAlreadySet = wrapFamily(ErrInvalidTransition, "response already scored")

	// ErrQuestionNotInAssessment indicates an answer for a foreign question.
	ErrQuestionNotInAssessment = wrapFamily(ErrValidation, "question is not part of the assessment")
	// ErrResponseTypeMismatch indicates the declared response type differs from the question.
	ErrResponseTypeMismatch = wrapFamily(ErrValidation, "response type does not match question type")
	// ErrAnswerRejected indicates a malformed answer value.
	ErrAnswerRejected = wrapFamily(ErrValidation, "answer rejected")
	// ErrInvalidQuestionDefinition indicates a catalog write with a broken question.
	ErrInvalidQuestionDefinition = wrapFamily(ErrValidation, "invalid question definition")
	// ErrObjectiveQuestion indicates manual scores are refused for auto-graded questions.
	ErrObjectiveQuestion = wrapFamily(ErrValidation, "question is auto-graded")
	// ErrScoreOutOfRange indicates a manual score outside 0..marks.
	ErrScoreOutOfRange = wrapFamily(ErrValidation, "score must be between 0 and the question marks")
	// ErrInvalidWindow indicates inconsistent open/close/due dates.
	ErrInvalidWindow = wrapFamily(ErrValidation, "assessment window is inconsistent")
)

type familyError struct {
	family error
	msg    string
}

func (e *familyError) Error() string { return e.msg }

func (e *familyError) Unwrap() error { return e.family }

func wrapFamily(family error, msg string) error {
	return &familyError{family: family, msg: msg}
}
