package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + filepath.ToSlash(path))
	require.NoError(t, err)
	return schema
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var payload interface{}
	require.NoError(t, json.Unmarshal(data, &payload))
	require.NoError(t, schema.Validate(payload), string(data))
}

func TestSubmissionContracts(t *testing.T) {
	submissionSchema := compileSchema(t, "submission.schema.json")
	timerSchema := compileSchema(t, "timer.schema.json")

	f := setupAPI(t)
	assessment := createAssessmentViaAPI(t, f)
	student := f.createStudent(t, "maya@example.com", 1.25)
	token := signToken(t, student.ID, "student")

	resp := f.do(t, http.MethodPost, fmt.Sprintf("/api/v2/assessments/%d/start", assessment.ID), token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var started struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	decodeResponse(t, resp, &started)
	base := fmt.Sprintf("/api/v2/submissions/%d", started.Data.ID)

	resp = f.do(t, http.MethodPut, base+"/answers", token, fiber.Map{
		"question_id":   assessment.Questions[0].ID,
		"response_type": "single_choice",
		"answer_value":  "a",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, submissionSchema, resp)

	resp = f.do(t, http.MethodPost, base+"/pause", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, submissionSchema, resp)

	resp = f.do(t, http.MethodGet, base+"/timer", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, timerSchema, resp)

	resp = f.do(t, http.MethodPost, base+"/resume", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, submissionSchema, resp)

	resp = f.do(t, http.MethodPost, base+"/submit", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, submissionSchema, resp)
}
