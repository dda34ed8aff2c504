package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// StudentRepository provides access to student profiles.
type StudentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Student, error)
	UpdatePreferences(ctx context.Context, id uint, preferences models.AccessibilityPreferences, disabilities []string) (models.Student, error)
	UpsertBatch(ctx context.Context, students []models.Student) (int64, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) UpdatePreferences(ctx context.Context, id uint, preferences models.AccessibilityPreferences, disabilities []string) (models.Student, error) {
	updates := map[string]interface{}{
		"preferences": datatypes.NewJSONType(preferences),
	}
	if disabilities != nil {
		updates["disabilities"] = datatypes.NewJSONSlice(disabilities)
	}

	result := r.db.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return models.Student{}, result.Error
	}
	if result.RowsAffected == 0 {
		return models.Student{}, gorm.ErrRecordNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *studentRepository) UpsertBatch(ctx context.Context, students []models.Student) (int64, error) {
	if len(students) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "disabilities", "preferences", "updated_at"}),
	})

	result := tx.Create(&students)
	return result.RowsAffected, result.Error
}
