package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/deadline"
	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

const sweepLockKey = "sweep:lock"

// DeadlineEnforcer force-submits attempts whose closing instant has passed.
type DeadlineEnforcer interface {
	// Enforce returns the current record and reports whether this call, or a
	// concurrent one, closed the attempt because time ran out.
	Enforce(ctx context.Context, submission models.Submission, assessment models.Assessment, trigger string) (models.Submission, bool, error)
	EnforceByID(ctx context.Context, submissionID uint, trigger string) (bool, error)
}

type deadlineEnforcer struct {
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	activity    ActivityRecorder
	events      SubmissionEventPublisher
	logger      zerolog.Logger
	now         func() time.Time
}

// NewDeadlineEnforcer constructs the enforcer.
func NewDeadlineEnforcer(submissions repository.SubmissionRepository, assessments repository.AssessmentRepository, activity ActivityRecorder, events SubmissionEventPublisher, logger zerolog.Logger) DeadlineEnforcer {
	if events == nil {
		events = noopEvents{}
	}
	return &deadlineEnforcer{
		submissions: submissions,
		assessments: assessments,
		activity:    activity,
		events:      events,
		logger:      logger.With().Str("component", "deadline_enforcer").Logger(),
		now:         time.Now,
	}
}

// closingInstant computes when a non-terminal attempt must close.
func closingInstant(submission models.Submission, assessment models.Assessment) *time.Time {
	attempt := deadline.Attempt{
		Active:     submission.Status == models.SubmissionStatusInProgress,
		DeadlineAt: submission.DeadlineAt,
		Budget:     deadline.Budget(assessment.BaseDuration(), submission.AppliedTimeMultiplier),
	}
	window := deadline.Window{DueDate: assessment.DueDate, CloseAt: assessment.CloseAt}
	return deadline.ClosingInstant(attempt, window)
}

func (e *deadlineEnforcer) Enforce(ctx context.Context, submission models.Submission, assessment models.Assessment, trigger string) (models.Submission, bool, error) {
	if submission.IsTerminal() {
		return submission, false, nil
	}

	closing := closingInstant(submission, assessment)
	if !deadline.Expired(closing, e.now().UTC()) {
		return submission, false, nil
	}

	from := submission.Status
	err := finalizeSubmission(ctx, e.submissions, submission, assessment, finalizeOptions{
		SubmittedAt:   closing.UTC(),
		GradedAt:      e.now().UTC(),
		AutoSubmitted: true,
	}, e.logger)

	switch {
	case err == nil:
		e.recordForcedSubmit(ctx, submission, from, *closing, trigger)
	case errors.Is(err, repository.ErrStatusConflict):
		// A concurrent submit or sweep won the swap.
	default:
		return submission, false, err
	}

	current, err := e.submissions.GetByID(ctx, submission.ID)
	if err != nil {
		return submission, false, err
	}
	return current, true, nil
}

func (e *deadlineEnforcer) EnforceByID(ctx context.Context, submissionID uint, trigger string) (bool, error) {
	submission, err := e.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrSubmissionNotFound
		}
		return false, err
	}
	if submission.IsTerminal() {
		return false, nil
	}

	assessment, err := e.assessments.GetByID(ctx, submission.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrAssessmentNotFound
		}
		return false, err
	}

	_, expired, err := e.Enforce(ctx, submission, assessment, trigger)
	return expired, err
}

func (e *deadlineEnforcer) recordForcedSubmit(ctx context.Context, submission models.Submission, from string, closing time.Time, trigger string) {
	observability.AutoSubmitted().Inc()
	observability.SubmissionTransitions().WithLabelValues(from, models.SubmissionStatusSubmitted, trigger).Inc()

	e.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("student_id", submission.StudentID).
		Str("from", from).
		Str("trigger", trigger).
		Time("closing_instant", closing).
		Msg("submission force-submitted at closing instant")

	if e.activity != nil {
		_, _ = e.activity.Record(ctx, ActivityEntry{
			ActorRole:  models.ActivityRoleSystem,
			Action:     models.ActivityActionAutoSubmitted,
			EntityType: "submission",
			EntityID:   &submission.ID,
			Metadata: map[string]interface{}{
				"assessment_id":   submission.AssessmentID,
				"student_id":      submission.StudentID,
				"from":            from,
				"trigger":         trigger,
				"closing_instant": closing.Format(time.RFC3339),
			},
		})
	}

	e.events.Publish(ctx, SubmissionEvent{
		SubmissionID: submission.ID,
		StudentID:    submission.StudentID,
		AssessmentID: submission.AssessmentID,
		From:         from,
		To:           models.SubmissionStatusSubmitted,
		Trigger:      trigger,
	})
}

type finalizeOptions struct {
	SubmittedAt   time.Time
	GradedAt      time.Time
	AutoSubmitted bool
}

// finalizeSubmission is the single path into the submitted state, shared by
// explicit submits and forced closes.
func finalizeSubmission(ctx context.Context, submissions repository.SubmissionRepository, submission models.Submission, assessment models.Assessment, opts finalizeOptions, logger zerolog.Logger) error {
	fin := repository.Finalization{
		SubmittedAt:   opts.SubmittedAt,
		GradedAt:      opts.GradedAt,
		AutoSubmitted: opts.AutoSubmitted,
	}
	if submission.Status == models.SubmissionStatusInProgress && submission.DeadlineAt != nil {
		remaining := deadline.Freeze(*submission.DeadlineAt, opts.SubmittedAt)
		fin.RemainingSeconds = &remaining
	}

	questions := gradableQuestions(assessment, logger)
	scorer := func(responses []models.SubmissionResponse) repository.ScoreResult {
		input := make([]grading.Response, 0, len(responses))
		for _, response := range responses {
			input = append(input, grading.Response{QuestionID: response.QuestionID, AnswerValue: []byte(response.AnswerValue)})
		}
		result := grading.Grade(questions, input)
		return repository.ScoreResult{Scores: result.Scores, Total: result.Total, Complete: result.Complete}
	}

	return submissions.Finalize(ctx, submission.ID, fin, scorer)
}

// gradableQuestions builds the variants for an assessment. A stored
// definition that no longer validates is skipped, which leaves its responses
// unscored for manual grading.
func gradableQuestions(assessment models.Assessment, logger zerolog.Logger) []grading.Question {
	questions := make([]grading.Question, 0, len(assessment.Questions))
	for _, stored := range assessment.Questions {
		question, err := grading.NewQuestion(stored.Definition())
		if err != nil {
			logger.Warn().Err(err).Uint("assessment_id", assessment.ID).Uint("question_id", stored.ID).Msg("skipping invalid question definition")
			continue
		}
		questions = append(questions, question)
	}
	return questions
}

// SweeperConfig configures the periodic deadline sweep.
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// SweepResult summarises one sweep pass.
type SweepResult struct {
	Skipped   bool
	Checked   int
	Finalized int
}

// Sweeper periodically converges expired attempts to submitted.
type Sweeper struct {
	enforcer    DeadlineEnforcer
	submissions repository.SubmissionRepository
	assessments repository.AssessmentRepository
	lock        *redis.Client
	cfg         SweeperConfig
	logger      zerolog.Logger
	nodeID      string
	now         func() time.Time

	// cursor is the last id scanned under past-due assessments. The next
	// tick continues after it and a short page resets it.
	mu     sync.Mutex
	cursor uint
}

// NewSweeper constructs a sweeper. A nil lock client sweeps on every tick.
func NewSweeper(enforcer DeadlineEnforcer, submissions repository.SubmissionRepository, assessments repository.AssessmentRepository, lock *redis.Client, cfg SweeperConfig, logger zerolog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Sweeper{
		enforcer:    enforcer,
		submissions: submissions,
		assessments: assessments,
		lock:        lock,
		cfg:         cfg,
		logger:      logger.With().Str("component", "deadline_sweeper").Logger(),
		nodeID:      uuid.NewString(),
		now:         time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Msg("deadline sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("deadline sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("deadline sweep failed")
			}
		}
	}
}

// Sweep runs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	if s.lock != nil {
		acquired, err := s.lock.SetNX(ctx, sweepLockKey, s.nodeID, s.cfg.Interval).Result()
		if err != nil {
			return SweepResult{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			return SweepResult{Skipped: true}, nil
		}
	}

	start := time.Now()
	defer func() {
		observability.SweepDuration().Observe(time.Since(start).Seconds())
	}()

	now := s.now().UTC()
	ids, err := s.candidates(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Checked: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		expired, err := s.enforcer.EnforceByID(ctx, id, TriggerSweep)
		if err != nil {
			s.logger.Error().Err(err).Uint("submission_id", id).Msg("failed to enforce deadline")
			continue
		}
		if expired {
			result.Finalized++
			observability.SweepFinalized().Inc()
		}
	}

	if result.Finalized > 0 {
		s.logger.Info().Int("checked", result.Checked).Int("finalized", result.Finalized).Msg("deadline sweep finalized submissions")
	}
	return result, nil
}

func (s *Sweeper) candidates(ctx context.Context, now time.Time) ([]uint, error) {
	expired, err := s.submissions.ListExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list expired submissions: %w", err)
	}

	closed, err := s.assessments.ListPastWindow(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list closed assessments: %w", err)
	}
	bounded, err := s.pastDueBatch(ctx, closed)
	if err != nil {
		return nil, fmt.Errorf("list submissions of closed assessments: %w", err)
	}

	seen := make(map[uint]struct{}, len(expired)+len(bounded))
	ids := make([]uint, 0, len(expired)+len(bounded))
	for _, id := range append(expired, bounded...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Sweeper) pastDueBatch(ctx context.Context, assessmentIDs []uint) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.submissions.ListActiveByAssessments(ctx, assessmentIDs, s.cursor, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	if len(ids) < s.cfg.BatchSize {
		s.cursor = 0
	} else {
		s.cursor = ids[len(ids)-1]
	}
	return ids, nil
}
