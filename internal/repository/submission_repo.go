package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// ErrStatusConflict indicates a guarded write lost against a concurrent status change.
var ErrStatusConflict = errors.New("submission status changed concurrently")

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	AssessmentID *uint
	StudentID    *uint
	Status       *string
}

// Finalization describes the transition of an attempt into the submitted state.
type Finalization struct {
	SubmittedAt      time.Time
	GradedAt         time.Time
	AutoSubmitted    bool
	RemainingSeconds *int64
}

// ScoreResult is what a Scorer returns for the stored responses.
type ScoreResult struct {
	Scores   map[uint]*float64
	Total    float64
	Complete bool
}

// Scorer computes scores for the responses of a submission being finalized.
type Scorer func(responses []models.SubmissionResponse) ScoreResult

// SubmissionRepository defines data operations for submissions and their responses.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetLatestForPair(ctx context.Context, studentID, assessmentID uint) (models.Submission, error)
	GetActiveForPair(ctx context.Context, studentID, assessmentID uint) (models.Submission, error)
	CountByAssessment(ctx context.Context, assessmentID uint) (int64, error)
	CreateActive(ctx context.Context, submission *models.Submission) error
	Transition(ctx context.Context, id uint, from string, updates map[string]interface{}) error
	UpsertResponse(ctx context.Context, response *models.SubmissionResponse) error
	Finalize(ctx context.Context, id uint, fin Finalization, score Scorer) error
	ApplyManualScore(ctx context.Context, submissionID, questionID uint, score float64, gradedAt time.Time) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uint, error)
	ListActiveByAssessments(ctx context.Context, assessmentIDs []uint, afterID uint, limit int) ([]uint, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Responses", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("id ASC")
		})
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.AssessmentID != nil {
		query = query.Where("assessment_id = ?", *filter.AssessmentID)
	}

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("created_at DESC, id DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetLatestForPair(ctx context.Context, studentID, assessmentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("assessment_id = ?", assessmentID).
		Where("student_id = ?", studentID).
		Order("id DESC").
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) GetActiveForPair(ctx context.Context, studentID, assessmentID uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).
		Where("active_key = ?", models.ActivePairKey(studentID, assessmentID)).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) CountByAssessment(ctx context.Context, assessmentID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("assessment_id = ?", assessmentID).
		Count(&total).Error
	return total, err
}

// CreateActive inserts a non-terminal submission. The unique index on
// active_key surfaces a concurrent duplicate as gorm.ErrDuplicatedKey.
func (r *submissionRepository) CreateActive(ctx context.Context, submission *models.Submission) error {
	key := models.ActivePairKey(submission.StudentID, submission.AssessmentID)
	submission.ActiveKey = &key
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(submission).Error
}

// Transition applies updates only if the stored status still equals from.
func (r *submissionRepository) Transition(ctx context.Context, id uint, from string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// UpsertResponse writes an answer while the submission is still running.
// The guard update and the upsert share a transaction so a concurrent pause
// or submit cannot slip in between them.
func (r *submissionRepository) UpsertResponse(ctx context.Context, response *models.SubmissionResponse) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", response.SubmissionID, models.SubmissionStatusInProgress).
			Update("updated_at", time.Now().UTC())
		if guard.Error != nil {
			return guard.Error
		}
		if guard.RowsAffected == 0 {
			return ErrStatusConflict
		}

		response.Score = nil
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "submission_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"response_type", "answer_value", "score", "updated_at"}),
		}).Create(response).Error
	})
}

// Finalize moves a non-terminal submission to submitted and scores it in
// the same transaction. Only the caller that wins the status swap scores.
func (r *submissionRepository) Finalize(ctx context.Context, id uint, fin Finalization, score Scorer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":            models.SubmissionStatusSubmitted,
			"time_submitted_at": fin.SubmittedAt,
			"auto_submitted":    fin.AutoSubmitted,
			"active_key":        nil,
			"paused_at":         nil,
		}
		if fin.RemainingSeconds != nil {
			updates["remaining_seconds"] = *fin.RemainingSeconds
		}

		swap := tx.Model(&models.Submission{}).
			Where("id = ? AND status IN ?", id, models.NonTerminalStatuses).
			Updates(updates)
		if swap.Error != nil {
			return swap.Error
		}
		if swap.RowsAffected == 0 {
			return ErrStatusConflict
		}

		var responses []models.SubmissionResponse
		if err := tx.Where("submission_id = ?", id).Order("id ASC").Find(&responses).Error; err != nil {
			return err
		}

		result := score(responses)
		for _, response := range responses {
			value := result.Scores[response.QuestionID]
			if err := tx.Model(&models.SubmissionResponse{}).
				Where("id = ?", response.ID).
				Update("score", value).Error; err != nil {
				return err
			}
		}

		final := map[string]interface{}{"total_score": result.Total}
		if result.Complete {
			final["status"] = models.SubmissionStatusGraded
			final["graded_at"] = fin.GradedAt
		}
		return tx.Model(&models.Submission{}).Where("id = ?", id).Updates(final).Error
	})
}

// ApplyManualScore fills a missing score on a submitted attempt, refreshes
// the total and promotes the attempt to graded once nothing is left unscored.
func (r *submissionRepository) ApplyManualScore(ctx context.Context, submissionID, questionID uint, score float64, gradedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		guard := tx.Model(&models.Submission{}).
			Where("id = ? AND status = ?", submissionID, models.SubmissionStatusSubmitted).
			Update("updated_at", gradedAt)
		if guard.Error != nil {
			return guard.Error
		}
		if guard.RowsAffected == 0 {
			return ErrStatusConflict
		}

		write := tx.Model(&models.SubmissionResponse{}).
			Where("submission_id = ? AND question_id = ? AND score IS NULL", submissionID, questionID).
			Update("score", score)
		if write.Error != nil {
			return write.Error
		}
		if write.RowsAffected == 0 {
			return ErrStatusConflict
		}

		var responses []models.SubmissionResponse
		if err := tx.Where("submission_id = ?", submissionID).Find(&responses).Error; err != nil {
			return err
		}

		var total float64
		complete := true
		for _, response := range responses {
			if response.Score == nil {
				complete = false
				continue
			}
			total += *response.Score
		}

		final := map[string]interface{}{"total_score": total}
		if complete {
			final["status"] = models.SubmissionStatusGraded
			final["graded_at"] = gradedAt
		}
		return tx.Model(&models.Submission{}).Where("id = ?", submissionID).Updates(final).Error
	})
}

func (r *submissionRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uint, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("status = ? AND deadline_at IS NOT NULL AND deadline_at <= ?", models.SubmissionStatusInProgress, now).
		Order("deadline_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ids []uint
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListActiveByAssessments pages non-terminal submission ids under the given
// assessments in id order, starting after afterID.
func (r *submissionRepository) ListActiveByAssessments(ctx context.Context, assessmentIDs []uint, afterID uint, limit int) ([]uint, error) {
	if len(assessmentIDs) == 0 {
		return nil, nil
	}

	query := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("assessment_id IN ? AND status IN ? AND id > ?", assessmentIDs, models.NonTerminalStatuses, afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var ids []uint
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
