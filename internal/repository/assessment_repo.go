package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// AssessmentFilter describes pagination & search options.
type AssessmentFilter struct {
	Search        string
	Sort          string
	PublishStatus string
	Page          int
	PageSize      int
}

// AssessmentRepository defines persistence operations for the assessment catalog.
type AssessmentRepository interface {
	List(ctx context.Context, filter AssessmentFilter) ([]models.Assessment, int64, error)
	GetByID(ctx context.Context, id uint) (models.Assessment, error)
	ListPastWindow(ctx context.Context, now time.Time) ([]uint, error)
	Create(ctx context.Context, assessment *models.Assessment) error
	Update(ctx context.Context, assessment *models.Assessment, replaceQuestions bool) error
	Delete(ctx context.Context, id uint) error
}

type assessmentRepository struct {
	db *gorm.DB
}

// NewAssessmentRepository instantiates a GORM-backed repository.
func NewAssessmentRepository(db *gorm.DB) AssessmentRepository {
	return &assessmentRepository{db: db}
}

func (r *assessmentRepository) withQuestions(db *gorm.DB) *gorm.DB {
	return db.Preload("Questions", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC, id ASC")
	})
}

func (r *assessmentRepository) List(ctx context.Context, filter AssessmentFilter) ([]models.Assessment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Assessment{})

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(instructions) LIKE ?", pattern, pattern)
	}

	if filter.PublishStatus != "" {
		query = query.Where("publish_status = ?", filter.PublishStatus)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(normalizeAssessmentSort(filter.Sort)).Scopes(paginate(filter.Page, filter.PageSize))

	var assessments []models.Assessment
	if err := r.withQuestions(query).Find(&assessments).Error; err != nil {
		return nil, 0, err
	}

	return assessments, total, nil
}

func (r *assessmentRepository) GetByID(ctx context.Context, id uint) (models.Assessment, error) {
	var assessment models.Assessment
	if err := r.withQuestions(r.db.WithContext(ctx)).First(&assessment, id).Error; err != nil {
		return models.Assessment{}, err
	}

	return assessment, nil
}

// ListPastWindow returns assessments whose due date or hard close has passed.
func (r *assessmentRepository) ListPastWindow(ctx context.Context, now time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Assessment{}).
		Where("(due_date IS NOT NULL AND due_date < ?) OR (close_at IS NOT NULL AND close_at < ?)", now, now).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *assessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	return r.db.WithContext(ctx).Create(assessment).Error
}

func (r *assessmentRepository) Update(ctx context.Context, assessment *models.Assessment, replaceQuestions bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(assessment).Error; err != nil {
			return err
		}

		if !replaceQuestions {
			return nil
		}

		if err := tx.Where("assessment_id = ?", assessment.ID).Delete(&models.AssessmentQuestion{}).Error; err != nil {
			return err
		}

		for i := range assessment.Questions {
			assessment.Questions[i].ID = 0
			assessment.Questions[i].AssessmentID = assessment.ID
		}
		if len(assessment.Questions) == 0 {
			return nil
		}
		return tx.Create(&assessment.Questions).Error
	})
}

func (r *assessmentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("assessment_id = ?", id).Delete(&models.AssessmentQuestion{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&models.Assessment{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func normalizeAssessmentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "-due_date", "due_date:desc", "due_date.desc":
		return "due_date DESC"
	case "updated_at", "updated_at:asc", "updated_at.asc":
		return "updated_at ASC"
	case "-updated_at", "updated_at:desc", "updated_at.desc":
		return "updated_at DESC"
	case "title", "title:asc", "title.asc":
		return "title ASC"
	case "-title", "title:desc", "title.desc":
		return "title DESC"
	default:
		return "due_date ASC"
	}
}
