package service

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-assessment-api/internal/grading"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Assessment{},
		&models.AssessmentQuestion{},
		&models.Submission{},
		&models.SubmissionResponse{},
		&models.ActivityLog{},
	))
	return db
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

// testClock is a settable clock shared by every component under test.
type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type lifecycleFixture struct {
	db          *gorm.DB
	clock       *testClock
	students    repository.StudentRepository
	assessments repository.AssessmentRepository
	submissions repository.SubmissionRepository
	activity    ActivityService
	events      SubmissionEvents
	enforcer    DeadlineEnforcer
	service     SubmissionService
	grading     GradingService
}

func newLifecycleFixture(t *testing.T, cache *redis.Client) *lifecycleFixture {
	t.Helper()
	db := setupTestDB(t)
	clock := newTestClock()
	validate := validator.New(validator.WithRequiredStructEnabled())

	f := &lifecycleFixture{
		db:          db,
		clock:       clock,
		students:    repository.NewStudentRepository(db),
		assessments: repository.NewAssessmentRepository(db),
		submissions: repository.NewSubmissionRepository(db),
		events:      NewSubmissionEvents(nil, "", nil, testLogger()),
	}
	f.activity = NewActivityService(repository.NewActivityLogRepository(db), validate, testLogger())

	enforcer := NewDeadlineEnforcer(f.submissions, f.assessments, f.activity, f.events, testLogger())
	enforcer.(*deadlineEnforcer).now = clock.Now
	f.enforcer = enforcer

	svc := NewSubmissionService(SubmissionDependencies{
		Submissions: f.submissions,
		Assessments: f.assessments,
		Resolver:    NewAccommodationService(f.students, cache, time.Minute, 4, validate, testLogger()),
		Answers:     NewAnswerStore(f.submissions),
		Enforcer:    enforcer,
		Events:      f.events,
		Validator:   validate,
		Logger:      testLogger(),
	})
	svc.(*submissionService).now = clock.Now
	f.service = svc

	f.grading = NewGradingService(f.submissions, f.assessments, validate, f.activity, f.events, testLogger())
	return f
}

func (f *lifecycleFixture) newSweeper(lock *redis.Client) *Sweeper {
	sweeper := NewSweeper(f.enforcer, f.submissions, f.assessments, lock, SweeperConfig{Interval: time.Minute, BatchSize: 50}, testLogger())
	sweeper.now = f.clock.Now
	return sweeper
}

func createStudent(t *testing.T, db *gorm.DB, email string, multiplier float64) models.Student {
	t.Helper()
	preferences := models.DefaultAccessibilityPreferences()
	preferences.ExtendedTimeMultiplier = multiplier
	student := models.Student{
		Name:        "Student " + email,
		Email:       email,
		Role:        models.RoleStudent,
		Preferences: datatypes.NewJSONType(preferences),
	}
	require.NoError(t, db.Create(&student).Error)
	return student
}

type assessmentOption func(*models.Assessment)

func withDuration(minutes int) assessmentOption {
	return func(a *models.Assessment) { a.DurationMinutes = minutes }
}

func withCloseAt(at time.Time) assessmentOption {
	return func(a *models.Assessment) { a.CloseAt = &at }
}

func withDueDate(at time.Time) assessmentOption {
	return func(a *models.Assessment) { a.DueDate = &at }
}

func withOpenAt(at time.Time) assessmentOption {
	return func(a *models.Assessment) { a.OpenAt = &at }
}

func withPublishStatus(status string) assessmentOption {
	return func(a *models.Assessment) { a.PublishStatus = status }
}

// createAssessment stores a published quiz with a single choice question
// (answer "b", 2 marks), a multi select question (answers "a" and "c",
// 2 marks) and an essay question (5 marks).
func createAssessment(t *testing.T, db *gorm.DB, opts ...assessmentOption) models.Assessment {
	t.Helper()
	assessment := models.Assessment{
		Title:           "Algebra checkpoint",
		Type:            "quiz",
		DurationMinutes: 30,
		PublishStatus:   models.AssessmentPublishPublished,
		MaxScore:        9,
		Questions: []models.AssessmentQuestion{
			{
				Position:       1,
				Type:           string(grading.TypeSingleChoice),
				Prompt:         "2 + 2?",
				Options:        datatypes.NewJSONSlice([]grading.Option{{ID: "a", Text: "3"}, {ID: "b", Text: "4"}, {ID: "c", Text: "5"}}),
				CorrectAnswers: datatypes.NewJSONSlice([]int{1}),
				Marks:          2,
			},
			{
				Position:       2,
				Type:           string(grading.TypeMultiSelect),
				Prompt:         "Pick the primes",
				Options:        datatypes.NewJSONSlice([]grading.Option{{ID: "a", Text: "2"}, {ID: "b", Text: "4"}, {ID: "c", Text: "5"}}),
				CorrectAnswers: datatypes.NewJSONSlice([]int{0, 2}),
				Marks:          2,
			},
			{
				Position: 3,
				Type:     string(grading.TypeEssay),
				Prompt:   "Explain your reasoning",
				Marks:    5,
			},
		},
	}
	for _, opt := range opts {
		opt(&assessment)
	}
	require.NoError(t, db.Create(&assessment).Error)
	return assessment
}

func questionOfType(t *testing.T, assessment models.Assessment, qType grading.QuestionType) models.AssessmentQuestion {
	t.Helper()
	for _, question := range assessment.Questions {
		if question.Type == string(qType) {
			return question
		}
	}
	t.Fatalf("assessment %d has no %s question", assessment.ID, qType)
	return models.AssessmentQuestion{}
}

func staffActor() ActivityActor {
	return ActivityActor{ID: 900, Role: models.RoleTeacher}
}
