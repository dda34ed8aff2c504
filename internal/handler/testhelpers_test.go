package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/router"
	"github.com/noah-isme/gema-assessment-api/internal/service"
)

const testJWTSecret = "handler-test-secret"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

type apiFixture struct {
	app    *fiber.App
	db     *gorm.DB
	events service.SubmissionEvents
}

func setupAPI(t *testing.T) *apiFixture {
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

	validate := validator.New(validator.WithRequiredStructEnabled())
	log := zerolog.New(io.Discard)

	studentRepo := repository.NewStudentRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)

	events := service.NewSubmissionEvents(nil, "", nil, log)
	activity := service.NewActivityService(repository.NewActivityLogRepository(db), validate, log)
	accommodations := service.NewAccommodationService(studentRepo, nil, time.Minute, 4, validate, log)
	enforcer := service.NewDeadlineEnforcer(submissionRepo, assessmentRepo, activity, events, log)
	submissions := service.NewSubmissionService(service.SubmissionDependencies{
		Submissions: submissionRepo,
		Assessments: assessmentRepo,
		Resolver:    accommodations,
		Answers:     service.NewAnswerStore(submissionRepo),
		Enforcer:    enforcer,
		Events:      events,
		Validator:   validate,
		Logger:      log,
	})
	grading := service.NewGradingService(submissionRepo, assessmentRepo, validate, activity, events, log)

	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &log})
	router.Register(app, config.Config{AppName: "Test", JWTSecret: testJWTSecret}, router.Dependencies{
		AssessmentHandler: handler.NewAssessmentHandler(service.NewAssessmentService(assessmentRepo, submissionRepo, validate, log), submissions, log),
		SubmissionHandler: handler.NewSubmissionHandler(submissions, grading, events, handler.SubmissionHandlerOptions{
			Tick: 50 * time.Millisecond,
		}, log),
		AccommodationHandler: handler.NewAccommodationHandler(accommodations, log),
		ActivityHandler:      handler.NewActivityHandler(activity, log),
		JWTMiddleware:        middleware.JWTProtected(testJWTSecret),
	})

	return &apiFixture{app: app, db: db, events: events}
}

func signToken(t *testing.T, userID uint, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(userID), 10),
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func decodeData(t *testing.T, resp *http.Response, target interface{}) envelope {
	t.Helper()
	var body envelope
	decodeResponse(t, resp, &body)
	if target != nil {
		require.NoError(t, json.Unmarshal(body.Data, target), "message: %s", body.Message)
	}
	return body
}

func (f *apiFixture) createStudent(t *testing.T, email string, multiplier float64) models.Student {
	t.Helper()
	preferences := models.DefaultAccessibilityPreferences()
	preferences.ExtendedTimeMultiplier = multiplier
	student := models.Student{
		Name:        email,
		Email:       email,
		Role:        models.RoleStudent,
		Preferences: datatypes.NewJSONType(preferences),
	}
	require.NoError(t, f.db.Create(&student).Error)
	return student
}

func startServer(t *testing.T, app *fiber.App) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	t.Cleanup(func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})

	return listener.Addr().String()
}
